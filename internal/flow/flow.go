package flow

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"mesh-agent/internal/catalog"
	"mesh-agent/internal/common/logger"
	"mesh-agent/internal/extract"
	"mesh-agent/internal/models"
)

// Linker wraps outbound catalog URLs in tracked links before they reach the
// customer. Implementations degrade to the raw URL on failure.
type Linker interface {
	Track(ctx context.Context, identity, url string, metadata map[string]string) string
}

// Outcome is what one flow turn produced. Exactly one of Response, Escalate
// or Stalled is meaningful; Stalled hands the turn to the fallback resolver.
type Outcome struct {
	Response         *models.Response
	Escalate         bool
	EscalationReason string
	EscalationPrefix string
	Stalled          bool
}

func respond(text string) *Outcome {
	return &Outcome{Response: models.TextResponse(text)}
}

func escalate(reason string) *Outcome {
	return &Outcome{Escalate: true, EscalationReason: reason}
}

// turn bundles everything the rules read and mutate for one message.
type turn struct {
	ctx      context.Context
	conv     *models.Conversation
	message  string
	entities extract.Entities
	pairs    []extract.DimensionPair
	family   familyConfig
}

// rule is one row of the transition table. Guards decide applicability,
// actions run; a nil outcome means "not terminal, keep evaluating". The
// slice order is the precedence, so precedence is data, not control flow.
type rule struct {
	name   string
	guard  func(*turn) bool
	action func(*turn) *Outcome
}

// Machine advances a conversation through its product-family flow:
// START -> AWAITING_DIMENSIONS -> AWAITING_PERCENTAGE -> COMPLETE.
type Machine struct {
	nav    *catalog.Navigator
	linker Linker
	logger logger.Logger
	rules  []rule
	now    func() time.Time
}

func NewMachine(nav *catalog.Navigator, linker Linker, log logger.Logger) *Machine {
	m := &Machine{
		nav:    nav,
		linker: linker,
		logger: log.WithFields(map[string]interface{}{"component": "flow"}),
		now:    time.Now,
	}
	m.rules = []rule{
		{"pending_offer_reply", m.guardPendingOfferReply, m.actPendingOfferReply},
		{"duplicate_quote", m.guardDuplicateQuote, m.actDuplicateQuote},
		{"nonstandard_percentage", m.guardNonstandardPercentage, m.actNonstandardPercentage},
		{"batch_quote", m.guardBatchQuote, m.actBatchQuote},
		{"percentage_switch", m.guardPercentageSwitch, m.actPercentageSwitch},
		{"photo_request", m.guardPhotoRequest, m.actPhotoRequest},
		{"accumulate_specs", guardAlways, m.actAccumulateSpecs},
		{"advance_stage", guardAlways, m.actAdvanceStage},
	}
	return m
}

// Resolve runs one message through the rule table. It never returns nil.
func (m *Machine) Resolve(ctx context.Context, conv *models.Conversation, message string) *Outcome {
	normalized := strings.ToLower(strings.TrimSpace(message))

	if conv.Flow == models.FlowNone {
		family := detectFamily(normalized)
		if family == models.FlowNone {
			// Bare dimensions with no family named start the main flow.
			if extract.Extract(normalized).HasDimensions() {
				family = models.FlowPanel
			} else {
				return &Outcome{Stalled: true}
			}
		}
		conv.Flow = family
		conv.Stage = models.StageStart
	}

	t := &turn{
		ctx:     ctx,
		conv:    conv,
		message: normalized,
		family:  families[conv.Flow],
		pairs:   extract.ExtractAllPairs(normalized),
	}
	if conv.Stage == models.StageAwaitingDimensions {
		t.entities = extract.ExtractWithSquareAssumption(normalized)
	} else {
		t.entities = extract.Extract(normalized)
	}

	for _, r := range m.rules {
		if !r.guard(t) {
			continue
		}
		if out := r.action(t); out != nil {
			m.logger.Debug("rule resolved turn", map[string]interface{}{
				"identity": conv.Identity, "rule": r.name, "stage": string(conv.Stage),
			})
			return out
		}
	}

	return &Outcome{Stalled: true}
}

func guardAlways(*turn) bool { return true }

var (
	affirmativeRe = regexp.MustCompile(`^(yes|yeah|yep|sure|ok|okay|sounds good|perfect|deal|that works|that one|i want it|i'?ll take (it|them))\b`)
	negativeRe    = regexp.MustCompile(`^(no|nope|nah|not really|rather not|don'?t)\b`)
	priceAskRe    = regexp.MustCompile(`\b(how much|price|cost|what does it come to)\b`)
	photoRe       = regexp.MustCompile(`\b(photo|picture|image|pic)s?\b`)
)

// --- pending offer reply -------------------------------------------------

func (m *Machine) guardPendingOfferReply(t *turn) bool {
	if t.conv.PendingOffer == nil {
		return false
	}
	return affirmativeRe.MatchString(t.message) || negativeRe.MatchString(t.message)
}

func (m *Machine) actPendingOfferReply(t *turn) *Outcome {
	offer := t.conv.PendingOffer

	if negativeRe.MatchString(t.message) {
		t.conv.PendingOffer = nil
		return respond("No problem! Tell me the size you'd like instead and I'll check it for you.")
	}

	t.conv.PendingOffer = nil
	return m.acceptOffer(t, offer)
}

func (m *Machine) acceptOffer(t *turn, offer *models.PendingOffer) *Outcome {
	if offer.ProductID == "" {
		return escalate("accepted offer lost its product reference")
	}

	url := m.trackedLink(t, offer.ProductID)
	units := offer.Units
	if units < 1 {
		units = 1
	}

	quoted := models.QuotedProduct{
		ProductID: offer.ProductID,
		Name:      offer.Name,
		Price:     offer.Price,
		URL:       url,
		Width:     offer.Width,
		Height:    offer.Height,
	}
	quoted.DisplayText = quoteLine(quoted, units)
	t.conv.SetQuotes([]models.QuotedProduct{quoted}, m.now())
	t.conv.Stage = models.StageComplete

	text := fmt.Sprintf("Perfect! %s", quoted.DisplayText)
	if url != "" {
		text += fmt.Sprintf("\nYou can order here: %s", url)
	}
	return respond(text)
}

// --- duplicate quote -----------------------------------------------------

// guardDuplicateQuote fires when the customer re-asks a bare price question
// for something already quoted. Confirming beats re-deriving.
func (m *Machine) guardDuplicateQuote(t *turn) bool {
	quoted := t.conv.LastQuoted()
	if len(quoted) == 0 || !priceAskRe.MatchString(t.message) {
		return false
	}
	if !t.entities.HasDimensions() {
		return true
	}
	for _, q := range quoted {
		if catalog.SameSize(q.Width, q.Height, *t.entities.Width, *t.entities.Height) {
			return true
		}
	}
	return false
}

func (m *Machine) actDuplicateQuote(t *turn) *Outcome {
	quoted := t.conv.LastQuoted()
	lines := make([]string, 0, len(quoted))
	for _, q := range quoted {
		lines = append(lines, q.DisplayText)
	}
	return respond("As I mentioned:\n" + strings.Join(lines, "\n") + "\nWould you like to go ahead with one of these?")
}

// --- nonstandard percentage ----------------------------------------------

func (m *Machine) guardNonstandardPercentage(t *turn) bool {
	return t.entities.Percentage != nil && !standardPercentages[*t.entities.Percentage]
}

func (m *Machine) actNonstandardPercentage(t *turn) *Outcome {
	return &Outcome{
		Escalate:         true,
		EscalationReason: fmt.Sprintf("requested a %d%% shade mesh, which we don't produce", *t.entities.Percentage),
		EscalationPrefix: fmt.Sprintf("We carry 50%%, 80%% and 90%% shade, so %d%% isn't something I can quote directly.", *t.entities.Percentage),
	}
}

// --- batch quote ---------------------------------------------------------

func (m *Machine) guardBatchQuote(t *turn) bool {
	return len(t.pairs) >= 2
}

// actBatchQuote prices every size in a list request ("6x5 o 5x5") in one
// reply and stores all of them as quoted products.
func (m *Machine) actBatchQuote(t *turn) *Outcome {
	m.actAccumulateSpecs(t)
	if out := m.ensurePOI(t); out != nil {
		return out
	}

	var lines []string
	var quoted []models.QuotedProduct
	var missing []string

	for _, pair := range t.pairs {
		variant, status := m.nav.FindVariant(t.ctx, t.conv.POI, pair.Width, pair.Height)
		if status != catalog.StatusFound {
			missing = append(missing, pair.AsSpoken)
			continue
		}
		q := m.quotedFromVariant(t, *variant, 1)
		quoted = append(quoted, q)
		lines = append(lines, q.DisplayText)
	}

	if len(quoted) == 0 {
		return escalate("none of the requested sizes exist in the catalog")
	}

	t.conv.SetQuotes(quoted, m.now())
	t.conv.Stage = models.StageComplete

	text := "Here you go:\n" + strings.Join(lines, "\n")
	if len(missing) > 0 {
		text += fmt.Sprintf("\nI couldn't find %s as a standard size, but I can check alternatives if you'd like.", strings.Join(missing, ", "))
	}
	return respond(text)
}

// --- percentage switch ---------------------------------------------------

// guardPercentageSwitch fires when a locked conversation asks for a
// different standard percentage. The POI moves to the sibling attribute
// branch, never to a global search.
func (m *Machine) guardPercentageSwitch(t *turn) bool {
	if t.conv.POI == nil || t.entities.Percentage == nil || !standardPercentages[*t.entities.Percentage] {
		return false
	}
	current := 0
	if t.conv.Specs != nil && t.conv.Specs.Percentage != nil {
		current = *t.conv.Specs.Percentage
	}
	return *t.entities.Percentage != current
}

func (m *Machine) actPercentageSwitch(t *turn) *Outcome {
	pct := *t.entities.Percentage
	attribute := fmt.Sprintf("%d%%", pct)

	branch, status := m.nav.NavigateToSiblingBranch(t.ctx, t.conv.POI, attribute)
	switch status {
	case catalog.StatusFound:
		t.conv.POI = &models.ProductOfInterest{RootID: branch.ID, Name: branch.Name}
		t.mergeSpecs(func(s *models.ProductSpecs) { s.Percentage = &pct })
		if t.conv.Specs.Width != nil && t.conv.Specs.Height != nil {
			t.conv.Stage = models.StageComplete
			return m.complete(t)
		}
		return respond(fmt.Sprintf("Sure, switching to %d%% shade. %s", pct, t.family.askDimensions))

	case catalog.StatusNotInTree:
		// The attribute branch doesn't exist here. Offer what the family
		// does carry instead of a dead end; lineage filtering degrades to
		// the unfiltered set when nothing matches.
		root, err := m.nav.RootOf(t.ctx, t.conv.POI.RootID)
		if err != nil {
			return escalate("catalog lookup failed while switching percentage")
		}
		candidates, err := m.nav.SellableSizes(t.ctx, root.ID)
		if err != nil || len(candidates) == 0 {
			return escalate("catalog lookup failed while switching percentage")
		}
		candidates = m.nav.FilterByLineageAttribute(t.ctx, candidates, attribute)
		return respond(fmt.Sprintf(
			"We don't carry %d%% in this line, but here's what's available:\n%s",
			pct, sizeLines(candidates)))

	case catalog.StatusNoPOI, catalog.StatusPOINotFound:
		t.conv.POI = nil
		return nil // fall through and rebuild the POI from scratch

	default:
		return escalate("catalog lookup failed while switching percentage")
	}
}

// --- photo request -------------------------------------------------------

func (m *Machine) guardPhotoRequest(t *turn) bool {
	return photoRe.MatchString(t.message)
}

func (m *Machine) actPhotoRequest(t *turn) *Outcome {
	resp := models.TextResponse("Product photos are on the store page, including close-ups of the weave and colors.")
	if quoted := t.conv.LastQuoted(); len(quoted) > 0 && quoted[0].URL != "" {
		resp.FollowUp = quoted[0].URL
	}
	return &Outcome{Response: resp}
}

// --- spec accumulation ---------------------------------------------------

// actAccumulateSpecs folds the extracted entities into the running
// specification. Writes replace the whole specs object.
func (m *Machine) actAccumulateSpecs(t *turn) *Outcome {
	e := t.entities
	t.mergeSpecs(func(s *models.ProductSpecs) {
		if e.HasDimensions() {
			s.Width = e.Width
			s.Height = e.Height
			s.AsSpoken = e.AsSpoken
		}
		if e.Percentage != nil && standardPercentages[*e.Percentage] {
			s.Percentage = e.Percentage
		}
		if e.Color != "" {
			s.Color = e.Color
		}
		if e.Quantity != nil {
			s.Quantity = e.Quantity
		}
	})
	return nil
}

// mergeSpecs rebuilds the specs object with the mutation applied. The specs
// value is a tagged union keyed by family; nested state is replaced
// wholesale, never merged in place.
func (t *turn) mergeSpecs(mutate func(*models.ProductSpecs)) {
	next := models.ProductSpecs{Family: t.conv.Flow}
	if t.conv.Specs != nil {
		next = *t.conv.Specs
		next.Family = t.conv.Flow
	}
	mutate(&next)
	t.conv.Specs = &next
}

// --- stage advance -------------------------------------------------------

func (m *Machine) actAdvanceStage(t *turn) *Outcome {
	specs := t.conv.Specs

	// A completed flow only re-runs on new material. Anything else is the
	// fallback resolver's territory.
	if t.conv.Stage == models.StageComplete &&
		!t.entities.HasDimensions() && t.entities.Percentage == nil && t.entities.Quantity == nil {
		return &Outcome{Stalled: true}
	}

	if t.family.usesQuantity {
		if specs == nil || specs.Quantity == nil {
			if t.conv.Stage == models.StageAwaitingDimensions {
				return &Outcome{Stalled: true}
			}
			t.conv.Stage = models.StageAwaitingDimensions
			return respond(t.family.askDimensions)
		}
		t.conv.Stage = models.StageComplete
		return m.completeQuantity(t)
	}

	if specs == nil || specs.Width == nil || specs.Height == nil {
		if t.conv.Stage == models.StageAwaitingDimensions {
			// Second turn without usable dimensions: nothing actionable.
			return &Outcome{Stalled: true}
		}
		t.conv.Stage = models.StageAwaitingDimensions
		return respond(t.family.askDimensions)
	}

	if t.family.needsPercentage && specs.Percentage == nil && t.conv.POI == nil {
		if t.conv.Stage == models.StageAwaitingPercentage {
			return &Outcome{Stalled: true}
		}
		t.conv.Stage = models.StageAwaitingPercentage
		return respond(t.family.askPercentage)
	}

	t.conv.Stage = models.StageComplete
	return m.complete(t)
}
