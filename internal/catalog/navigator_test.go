package catalog

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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
		return nil, ErrNotFound
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
		return nil, ErrNotFound
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

func (f *fakeStore) SellableDescendantsOf(ctx context.Context, rootID string) ([]models.Product, error) {
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
		return nil, ErrNotFound
	}
	return &l, nil
}

func newTestTree() *fakeStore {
	products := []models.Product{
		{ID: "mesh", Name: "Shade Mesh", Active: true},
		{ID: "p80", Name: "80% shade", ParentID: "mesh", Active: true},
		{ID: "p90", Name: "90% shade", ParentID: "mesh", Active: true},
		{ID: "p80-4x6", Name: "Panel 4x6", ParentID: "p80", SizeText: "4x6", Sellable: true, Active: true, Price: 42},
		{ID: "p80-5x6", Name: "Panel 5x6", ParentID: "p80", SizeText: "5x6", Sellable: true, Active: true, Price: 55},
		{ID: "p80-7x10", Name: "Panel 7x10", ParentID: "p80", SizeText: "7x10", Sellable: true, Active: true, Price: 120},
		{ID: "p90-9x9", Name: "Panel 9x9", ParentID: "p90", SizeText: "9x9", Sellable: true, Active: true, Price: 150},
		{ID: "p80-old", Name: "Panel 3x3", ParentID: "p80", SizeText: "3x3", Sellable: true, Active: false},
		{ID: "tape", Name: "Border Tape", Active: true},
		{ID: "tape-roll", Name: "Tape Roll 50m", ParentID: "tape", Sellable: true, Active: true, Price: 18},
	}

	store := &fakeStore{
		products: make(map[string]models.Product, len(products)),
		links: map[string]models.ProductLink{
			"p80-4x6": {ProductID: "p80-4x6", URL: "https://market.example/p80-4x6", Marketplace: "mercado", Preferred: true},
		},
	}
	for _, p := range products {
		store.products[p.ID] = p
	}
	return store
}

func newTestNavigator(store Store) *Navigator {
	return NewNavigator(store, nil, logger.NewNoOpLogger())
}

func TestParseSize(t *testing.T) {
	w, h, ok := ParseSize("4x6")
	require.True(t, ok)
	assert.Equal(t, 4.0, w)
	assert.Equal(t, 6.0, h)

	// Order-insensitive normalization.
	w2, h2, ok := ParseSize("6 x 4")
	require.True(t, ok)
	assert.Equal(t, w, w2)
	assert.Equal(t, h, h2)

	_, _, ok = ParseSize("no size")
	assert.False(t, ok)
}

func TestNavigator_Lineage(t *testing.T) {
	nav := newTestNavigator(newTestTree())

	lineage, err := nav.Lineage(context.Background(), "p80-4x6")
	require.NoError(t, err)
	assert.Equal(t, "Shade Mesh 80% shade Panel 4x6", lineage)
}

func TestNavigator_FindVariant(t *testing.T) {
	nav := newTestNavigator(newTestTree())
	ctx := context.Background()
	poi := &models.ProductOfInterest{RootID: "p80", Name: "80% shade"}

	hit, status := nav.FindVariant(ctx, poi, 4, 6)
	require.Equal(t, StatusFound, status)
	assert.Equal(t, "p80-4x6", hit.ID)

	// Order-insensitive.
	hit, status = nav.FindVariant(ctx, poi, 6, 4)
	require.Equal(t, StatusFound, status)
	assert.Equal(t, "p80-4x6", hit.ID)
}

func TestNavigator_FindVariant_LockedSubtree(t *testing.T) {
	nav := newTestNavigator(newTestTree())
	ctx := context.Background()

	// 9x9 exists in the catalog under the 90% branch, but the POI is locked
	// to the 80% subtree: it must be reported as not in the tree.
	poi := &models.ProductOfInterest{RootID: "p80", Name: "80% shade"}
	_, status := nav.FindVariant(ctx, poi, 9, 9)
	assert.Equal(t, StatusNotInTree, status)

	_, status = nav.FindVariant(ctx, nil, 9, 9)
	assert.Equal(t, StatusNoPOI, status)

	_, status = nav.FindVariant(ctx, &models.ProductOfInterest{RootID: "gone"}, 9, 9)
	assert.Equal(t, StatusPOINotFound, status)
}

func TestNavigator_FindVariant_SkipsInactive(t *testing.T) {
	nav := newTestNavigator(newTestTree())
	poi := &models.ProductOfInterest{RootID: "p80", Name: "80% shade"}

	_, status := nav.FindVariant(context.Background(), poi, 3, 3)
	assert.Equal(t, StatusNotInTree, status)
}

func TestNavigator_FilterByLineageAttribute(t *testing.T) {
	nav := newTestNavigator(newTestTree())
	ctx := context.Background()

	candidates, err := nav.SellableSizes(ctx, "p80")
	require.NoError(t, err)
	require.NotEmpty(t, candidates)

	// Attribute present in the lineage keeps the candidates.
	kept := nav.FilterByLineageAttribute(ctx, candidates, "80%")
	assert.Len(t, kept, len(candidates))

	// Attribute absent from every lineage: degrade to the unfiltered set
	// rather than returning nothing.
	degraded := nav.FilterByLineageAttribute(ctx, candidates, "90%")
	assert.Len(t, degraded, len(candidates))
}

func TestNavigator_NavigateToSiblingBranch(t *testing.T) {
	nav := newTestNavigator(newTestTree())
	ctx := context.Background()
	poi := &models.ProductOfInterest{RootID: "p80", Name: "80% shade"}

	sibling, status := nav.NavigateToSiblingBranch(ctx, poi, "90%")
	require.Equal(t, StatusFound, status)
	assert.Equal(t, "p90", sibling.ID)

	_, status = nav.NavigateToSiblingBranch(ctx, poi, "70%")
	assert.Equal(t, StatusNotInTree, status)

	// Family roots have no siblings to navigate to.
	_, status = nav.NavigateToSiblingBranch(ctx, &models.ProductOfInterest{RootID: "mesh"}, "90%")
	assert.Equal(t, StatusNotInTree, status)
}

func TestNavigator_RootOf(t *testing.T) {
	nav := newTestNavigator(newTestTree())

	root, err := nav.RootOf(context.Background(), "p80-4x6")
	require.NoError(t, err)
	assert.Equal(t, "mesh", root.ID)

	root, err = nav.RootOf(context.Background(), "mesh")
	require.NoError(t, err)
	assert.Equal(t, "mesh", root.ID)
}
