package flow

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mesh-agent/internal/catalog"
	"mesh-agent/internal/common/logger"
	"mesh-agent/internal/models"
)

type fakeStore struct {
	products map[string]models.Product
	links    map[string]models.ProductLink
}

func (f *fakeStore) ByID(_ context.Context, id string) (*models.Product, error) {
	p, ok := f.products[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return &p, nil
}

func (f *fakeStore) ChildrenOf(_ context.Context, parentID string) ([]models.Product, error) {
	var out []models.Product
	for _, p := range f.products {
		if p.ParentID == parentID && p.Active {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeStore) AncestorsOf(_ context.Context, id string) ([]models.Product, error) {
	var out []models.Product
	cur, ok := f.products[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	for cur.ParentID != "" {
		parent, ok := f.products[cur.ParentID]
		if !ok {
			break
		}
		out = append(out, parent)
		cur = parent
	}
	return out, nil
}

func (f *fakeStore) SellableDescendantsOf(_ context.Context, rootID string) ([]models.Product, error) {
	var out []models.Product
	var walk func(id string)
	walk = func(id string) {
		if p, ok := f.products[id]; ok && p.Sellable && p.Active {
			out = append(out, p)
		}
		for _, p := range f.products {
			if p.ParentID == id {
				walk(p.ID)
			}
		}
	}
	walk(rootID)
	return out, nil
}

func (f *fakeStore) SearchText(_ context.Context, query string) ([]models.Product, error) {
	q := strings.ToLower(query)
	var out []models.Product
	for _, p := range f.products {
		if !p.Active {
			continue
		}
		haystack := strings.ToLower(p.Name + " " + p.Alias + " " + p.SizeText)
		if strings.Contains(haystack, q) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeStore) PreferredLink(_ context.Context, productID string) (*models.ProductLink, error) {
	l, ok := f.links[productID]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return &l, nil
}

type passthroughLinker struct{}

func (passthroughLinker) Track(_ context.Context, _ string, url string, _ map[string]string) string {
	return url
}

func testTree() *fakeStore {
	products := []models.Product{
		{ID: "mesh", Name: "Shade Mesh", Active: true},
		{ID: "p80", Name: "80% shade", ParentID: "mesh", Active: true},
		{ID: "p90", Name: "90% shade", ParentID: "mesh", Active: true},
		{ID: "p80-4x6", Name: "Panel 4x6", ParentID: "p80", SizeText: "4x6", Sellable: true, Active: true, Price: 42},
		{ID: "p80-4x3", Name: "Panel 3x4", ParentID: "p80", SizeText: "3x4", Sellable: true, Active: true, Price: 28},
		{ID: "p80-5x5", Name: "Panel 5x5", ParentID: "p80", SizeText: "5x5", Sellable: true, Active: true, Price: 48},
		{ID: "p80-5x6", Name: "Panel 5x6", ParentID: "p80", SizeText: "5x6", Sellable: true, Active: true, Price: 55},
		{ID: "p80-7x10", Name: "Panel 7x10", ParentID: "p80", SizeText: "7x10", Sellable: true, Active: true, Price: 120},
		{ID: "tape", Name: "Border Tape", Active: true},
		{ID: "tape-roll", Name: "Tape Roll 50m", ParentID: "tape", Sellable: true, Active: true, Price: 18},
	}

	store := &fakeStore{
		products: make(map[string]models.Product, len(products)),
		links:    make(map[string]models.ProductLink),
	}
	for _, p := range products {
		store.products[p.ID] = p
		if p.Sellable {
			store.links[p.ID] = models.ProductLink{
				ProductID: p.ID, URL: "https://market.example/" + p.ID, Preferred: true,
			}
		}
	}
	return store
}

func testMachine(store *fakeStore) *Machine {
	nav := catalog.NewNavigator(store, nil, logger.NewNoOpLogger())
	return NewMachine(nav, passthroughLinker{}, logger.NewNoOpLogger())
}

func lockedConv(id string) *models.Conversation {
	pct := 80
	return &models.Conversation{
		Identity: id,
		Flow:     models.FlowPanel,
		Stage:    models.StageAwaitingDimensions,
		Specs:    &models.ProductSpecs{Family: models.FlowPanel, Percentage: &pct},
		POI:      &models.ProductOfInterest{RootID: "p80", Name: "80% shade"},
	}
}

func TestResolve_AsksDimensionsOnFamilyMention(t *testing.T) {
	m := testMachine(testTree())
	conv := &models.Conversation{Identity: "c1"}

	out := m.Resolve(context.Background(), conv, "I need a shade mesh for my patio")

	require.NotNil(t, out.Response)
	assert.Contains(t, out.Response.Text, "width and height")
	assert.Equal(t, models.FlowPanel, conv.Flow)
	assert.Equal(t, models.StageAwaitingDimensions, conv.Stage)
}

func TestResolve_NoFamilyNoDimensionsStalls(t *testing.T) {
	m := testMachine(testTree())
	conv := &models.Conversation{Identity: "c1"}

	out := m.Resolve(context.Background(), conv, "what about the thing we talked about")

	assert.True(t, out.Stalled)
	assert.Equal(t, models.FlowNone, conv.Flow)
}

func TestResolve_AsksPercentageAfterDimensions(t *testing.T) {
	m := testMachine(testTree())
	conv := &models.Conversation{Identity: "c1", Flow: models.FlowPanel, Stage: models.StageAwaitingDimensions}

	out := m.Resolve(context.Background(), conv, "4x6")

	require.NotNil(t, out.Response)
	assert.Contains(t, out.Response.Text, "percentage")
	assert.Equal(t, models.StageAwaitingPercentage, conv.Stage)
	require.NotNil(t, conv.Specs)
	assert.Equal(t, 4.0, *conv.Specs.Width)
	assert.Equal(t, 6.0, *conv.Specs.Height)
}

func TestResolve_ExactMatchQuotes(t *testing.T) {
	m := testMachine(testTree())
	conv := lockedConv("c1")

	out := m.Resolve(context.Background(), conv, "4x6")

	require.NotNil(t, out.Response)
	assert.Contains(t, out.Response.Text, "Panel 4x6")
	assert.Contains(t, out.Response.Text, "$42.00")
	assert.Contains(t, out.Response.Text, "https://market.example/p80-4x6")

	require.Len(t, conv.LastQuoted(), 1)
	assert.Equal(t, "p80-4x6", conv.LastQuoted()[0].ProductID)
	assert.Equal(t, models.StageComplete, conv.Stage)
}

func TestResolve_OrderInsensitiveMatch(t *testing.T) {
	m := testMachine(testTree())
	conv := lockedConv("c1")

	out := m.Resolve(context.Background(), conv, "6 by 4")

	require.NotNil(t, out.Response)
	assert.Contains(t, out.Response.Text, "Panel 4x6")
}

func TestResolve_SquareAssumptionInFollowUp(t *testing.T) {
	m := testMachine(testTree())
	conv := lockedConv("c1")

	out := m.Resolve(context.Background(), conv, "5")

	require.NotNil(t, out.Response)
	assert.Contains(t, out.Response.Text, "Panel 5x5")
}

func TestResolve_DuplicateQuoteConfirms(t *testing.T) {
	m := testMachine(testTree())
	conv := lockedConv("c1")

	first := m.Resolve(context.Background(), conv, "4x6")
	require.NotNil(t, first.Response)
	version := conv.Quotes.Version

	second := m.Resolve(context.Background(), conv, "how much is the 4x6?")
	require.NotNil(t, second.Response)
	assert.Contains(t, second.Response.Text, "As I mentioned")
	assert.Equal(t, version, conv.Quotes.Version, "confirming must not re-quote")
}

func TestResolve_SameSizeAgainConfirmsInsteadOfRequoting(t *testing.T) {
	m := testMachine(testTree())
	conv := lockedConv("c1")

	m.Resolve(context.Background(), conv, "4x6")
	version := conv.Quotes.Version

	out := m.Resolve(context.Background(), conv, "4x6")

	require.NotNil(t, out.Response)
	assert.Contains(t, out.Response.Text, "quoted")
	assert.Equal(t, version, conv.Quotes.Version)
}

func TestResolve_NonstandardPercentageEscalates(t *testing.T) {
	m := testMachine(testTree())
	conv := lockedConv("c1")

	out := m.Resolve(context.Background(), conv, "do you have it in 65%?")

	assert.True(t, out.Escalate)
	assert.Contains(t, out.EscalationReason, "65%")
	assert.NotEmpty(t, out.EscalationPrefix)
}

func TestResolve_BatchQuoteListsEachSize(t *testing.T) {
	m := testMachine(testTree())
	conv := lockedConv("c1")

	out := m.Resolve(context.Background(), conv, "6x5 o 5x5")

	require.NotNil(t, out.Response)
	assert.Contains(t, out.Response.Text, "Panel 5x6")
	assert.Contains(t, out.Response.Text, "$55.00")
	assert.Contains(t, out.Response.Text, "Panel 5x5")
	assert.Contains(t, out.Response.Text, "$48.00")

	require.Len(t, conv.LastQuoted(), 2)
}

func TestResolve_PercentageSwitchMovesPOI(t *testing.T) {
	store := testTree()
	store.products["p90-4x6"] = models.Product{
		ID: "p90-4x6", Name: "Panel 4x6 Deep", ParentID: "p90", SizeText: "4x6",
		Sellable: true, Active: true, Price: 60,
	}
	store.links["p90-4x6"] = models.ProductLink{ProductID: "p90-4x6", URL: "https://market.example/p90-4x6", Preferred: true}
	m := testMachine(store)

	conv := lockedConv("c1")
	w, h := 4.0, 6.0
	conv.Specs.Width, conv.Specs.Height = &w, &h

	out := m.Resolve(context.Background(), conv, "and in 90%?")

	require.NotNil(t, out.Response)
	assert.Equal(t, "p90", conv.POI.RootID)
	assert.Contains(t, out.Response.Text, "Panel 4x6 Deep")
}

func TestResolve_PercentageSwitchDegradesToUnfilteredSet(t *testing.T) {
	// No 90% branch anywhere: sibling navigation misses and the lineage
	// filter eliminates everything, so the reply lists the unfiltered set.
	store := testTree()
	delete(store.products, "p90")
	m := testMachine(store)

	conv := lockedConv("c1")
	out := m.Resolve(context.Background(), conv, "do you have 90%?")

	require.NotNil(t, out.Response)
	assert.False(t, out.Escalate)
	assert.Contains(t, out.Response.Text, "Panel 4x6")
	assert.Contains(t, out.Response.Text, "Panel 7x10")
}

func TestResolve_PendingOfferAffirmative(t *testing.T) {
	m := testMachine(testTree())
	conv := lockedConv("c1")
	conv.PendingOffer = &models.PendingOffer{
		Kind: "cover", ProductID: "p80-5x6", Name: "Panel 5x6",
		Width: 5, Height: 6, Price: 55,
		RequestedWidth: 4.8, RequestedHeight: 5.7,
	}

	out := m.Resolve(context.Background(), conv, "yes, that works")

	require.NotNil(t, out.Response)
	assert.Contains(t, out.Response.Text, "Panel 5x6")
	assert.Contains(t, out.Response.Text, "https://market.example/p80-5x6")
	assert.Nil(t, conv.PendingOffer)
	require.Len(t, conv.LastQuoted(), 1)
}

func TestResolve_PendingOfferNegativeClears(t *testing.T) {
	m := testMachine(testTree())
	conv := lockedConv("c1")
	conv.PendingOffer = &models.PendingOffer{Kind: "cover", ProductID: "p80-5x6"}

	out := m.Resolve(context.Background(), conv, "no thanks")

	require.NotNil(t, out.Response)
	assert.Nil(t, conv.PendingOffer)
	assert.Empty(t, conv.LastQuoted())
}

func TestResolve_TapeFlowAsksQuantityThenQuotes(t *testing.T) {
	m := testMachine(testTree())
	conv := &models.Conversation{Identity: "c1"}

	first := m.Resolve(context.Background(), conv, "I need border tape")
	require.NotNil(t, first.Response)
	assert.Equal(t, models.FlowTape, conv.Flow)
	assert.Contains(t, first.Response.Text, "How many")

	second := m.Resolve(context.Background(), conv, "3 units")
	require.NotNil(t, second.Response)
	assert.Contains(t, second.Response.Text, "3x Tape Roll 50m")
	assert.Contains(t, second.Response.Text, "$54.00")
}
