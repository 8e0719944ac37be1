package flow

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"mesh-agent/internal/catalog"
	"mesh-agent/internal/models"
)

// areaToleranceSqm bounds how far an offered single-piece alternative may be
// from the requested area before the turn escalates instead. Tunable; the
// multi-unit bundle path is exempt because its overshoot is inherent.
const areaToleranceSqm = 10.0

// complete handles the COMPLETE stage: concrete width and height are known
// and the conversation wants a price.
func (m *Machine) complete(t *turn) *Outcome {
	specs := t.conv.Specs
	w, h := *specs.Width, *specs.Height

	if isFractional(w) || isFractional(h) {
		return m.handleFractional(t, w, h)
	}

	if w > t.family.largeSide && h > t.family.largeSide {
		return &Outcome{
			Escalate:         true,
			EscalationReason: fmt.Sprintf("custom oversized order %s", specs.AsSpoken),
			EscalationPrefix: "A piece that size is a custom production for us.",
		}
	}

	if out := m.ensurePOI(t); out != nil {
		return out
	}

	variant, status := m.nav.FindVariant(t.ctx, t.conv.POI, w, h)
	switch status {
	case catalog.StatusFound:
		if quoted := t.conv.LastQuoted(); len(quoted) == 1 && quoted[0].ProductID == variant.ID {
			return respond(fmt.Sprintf(
				"That's the one I quoted: %s\nWould you like to go ahead?", quoted[0].DisplayText))
		}
		return m.quote(t, *variant, 1)

	case catalog.StatusNotInTree:
		return m.offerAlternative(t, w, h)

	default:
		m.logger.Error("variant lookup failed", map[string]interface{}{
			"identity": t.conv.Identity, "status": string(status),
		})
		return escalate("catalog lookup failed while matching the requested size")
	}
}

// handleFractional floors only the fractional axis and offers the result as
// a substitute. An identical repeated request is insistence and escalates;
// a second identical offer would just loop the conversation.
func (m *Machine) handleFractional(t *turn, w, h float64) *Outcome {
	if offer := t.conv.PendingOffer; offer != nil && offer.Kind == "floored" &&
		catalog.SameSize(offer.RequestedWidth, offer.RequestedHeight, w, h) {
		return &Outcome{
			Escalate:         true,
			EscalationReason: fmt.Sprintf("insists on fractional size %s", t.conv.Specs.AsSpoken),
			EscalationPrefix: "Let me get someone to check whether we can cut that exact size for you.",
		}
	}

	fw, fh := w, h
	if isFractional(fw) {
		fw = math.Floor(fw)
	}
	if isFractional(fh) {
		fh = math.Floor(fh)
	}

	if out := m.ensurePOI(t); out != nil {
		return out
	}

	offer := &models.PendingOffer{
		Kind:            "floored",
		Width:           fw,
		Height:          fh,
		RequestedWidth:  w,
		RequestedHeight: h,
	}
	text := fmt.Sprintf(
		"We cut whole-meter sizes, so the closest standard option to %s is %s x %s.",
		t.conv.Specs.AsSpoken, formatMeters(fw), formatMeters(fh))

	if variant, status := m.nav.FindVariant(t.ctx, t.conv.POI, fw, fh); status == catalog.StatusFound {
		offer.ProductID = variant.ID
		offer.Name = variant.Name
		offer.Price = variant.Price
		text += fmt.Sprintf(" It's %s at %s.", variant.Name, formatPrice(variant.Price))
	}

	t.conv.PendingOffer = offer
	return respond(text + " Would that work for you?")
}

// ensurePOI locks the product-of-interest subtree when none is set yet,
// resolving the family root and descending into the attribute branch
// matching the accumulated percentage.
func (m *Machine) ensurePOI(t *turn) *Outcome {
	if t.conv.POI != nil && t.conv.POI.RootID != "" {
		return nil
	}

	root, err := m.nav.ResolveRootByName(t.ctx, t.family.searchTerm)
	if err != nil {
		m.logger.Error("family root resolution failed", map[string]interface{}{
			"identity": t.conv.Identity, "family": string(t.conv.Flow), "error": err.Error(),
		})
		return escalate("could not resolve the product family in the catalog")
	}

	lock := &models.ProductOfInterest{RootID: root.ID, Name: root.Name}
	if t.conv.Specs != nil && t.conv.Specs.Percentage != nil {
		attribute := fmt.Sprintf("%d%%", *t.conv.Specs.Percentage)
		if branch := m.findAttributeBranch(t, root.ID, attribute); branch != nil {
			lock = &models.ProductOfInterest{RootID: branch.ID, Name: branch.Name}
		}
	}

	t.conv.POI = lock
	return nil
}

func (m *Machine) findAttributeBranch(t *turn, rootID, attribute string) *models.Product {
	children, err := m.nav.ChildrenOf(t.ctx, rootID)
	if err != nil {
		return nil
	}
	needle := strings.ToLower(attribute)
	for i := range children {
		haystack := strings.ToLower(children[i].Name + " " + children[i].Alias)
		if strings.Contains(haystack, needle) {
			return &children[i]
		}
	}
	return nil
}

// offerAlternative runs when the exact size doesn't exist in the locked
// subtree. Order: smallest single size covering the requested area, then a
// multi-unit bundle of the largest standard size, then escalation.
func (m *Machine) offerAlternative(t *turn, w, h float64) *Outcome {
	sizes, err := m.nav.SellableSizes(t.ctx, t.conv.POI.RootID)
	if err != nil || len(sizes) == 0 {
		return escalate("no sellable sizes found in the locked subtree")
	}

	sort.Slice(sizes, func(i, j int) bool { return sizes[i].Area() < sizes[j].Area() })
	reqArea := w * h
	largest := sizes[len(sizes)-1]

	for _, s := range sizes {
		if s.Area() < reqArea {
			continue
		}
		if s.Area()-reqArea > areaToleranceSqm {
			return &Outcome{
				Escalate:         true,
				EscalationReason: fmt.Sprintf("nearest standard size is %.0f m2 away from the requested %s", s.Area()-reqArea, t.conv.Specs.AsSpoken),
				EscalationPrefix: "We don't have a standard size close to that, but our team can check a custom cut.",
			}
		}
		t.conv.PendingOffer = &models.PendingOffer{
			Kind:            "cover",
			ProductID:       s.ID,
			Name:            s.Name,
			Width:           s.Width,
			Height:          s.Height,
			Price:           s.Price,
			RequestedWidth:  w,
			RequestedHeight: h,
		}
		return respond(fmt.Sprintf(
			"We don't have %s as a standard size, but %s covers that area at %s. Want that one?",
			t.conv.Specs.AsSpoken, s.Name, formatPrice(s.Price)))
	}

	// Nothing covers the area in one piece; see how many of the largest
	// standard size it takes.
	units := int(math.Ceil(reqArea / largest.Area()))
	if units >= 2 {
		total := float64(units) * largest.Price
		t.conv.PendingOffer = &models.PendingOffer{
			Kind:            "bundle",
			ProductID:       largest.ID,
			Name:            largest.Name,
			Width:           largest.Width,
			Height:          largest.Height,
			Units:           units,
			Price:           total,
			RequestedWidth:  w,
			RequestedHeight: h,
		}
		return respond(fmt.Sprintf(
			"For %s you'd need %d units of our largest standard size, %s, totaling %s. Want me to set that up?",
			t.conv.Specs.AsSpoken, units, largest.Name, formatPrice(total)))
	}

	return escalate(fmt.Sprintf("no standard size arrangement covers %s", t.conv.Specs.AsSpoken))
}

// quote prices a catalog variant, wraps its marketplace link and records the
// quote context. A sellable leaf without a link is a data fault and degrades
// to escalation rather than a broken link.
func (m *Machine) quote(t *turn, variant catalog.SizedProduct, units int) *Outcome {
	q := m.quotedFromVariant(t, variant, units)
	if q.URL == "" {
		m.logger.Error("sellable product has no marketplace link", map[string]interface{}{
			"productId": variant.ID,
		})
		return escalate("product is missing its marketplace link")
	}

	t.conv.SetQuotes([]models.QuotedProduct{q}, m.now())
	t.conv.PendingOffer = nil
	t.conv.Stage = models.StageComplete

	return respond(fmt.Sprintf("%s\nYou can order here: %s", q.DisplayText, q.URL))
}

func (m *Machine) quotedFromVariant(t *turn, variant catalog.SizedProduct, units int) models.QuotedProduct {
	price := variant.Price * float64(units)
	q := models.QuotedProduct{
		ProductID: variant.ID,
		Name:      variant.Name,
		Price:     price,
		URL:       m.trackedLink(t, variant.ID),
		Width:     variant.Width,
		Height:    variant.Height,
	}
	q.DisplayText = quoteLine(q, units)
	return q
}

// trackedLink resolves the preferred marketplace link and passes it through
// the link tracker. Empty string means the product has no link at all.
func (m *Machine) trackedLink(t *turn, productID string) string {
	link, err := m.nav.PreferredLink(t.ctx, productID)
	if err != nil || link == nil || link.URL == "" {
		return ""
	}
	return m.linker.Track(t.ctx, t.conv.Identity, link.URL, map[string]string{
		"flow":      string(t.conv.Flow),
		"productId": productID,
	})
}

// completeQuantity is the tape-family completion: quantity in, a per-unit
// price out.
func (m *Machine) completeQuantity(t *turn) *Outcome {
	if out := m.ensurePOI(t); out != nil {
		return out
	}

	leaves, err := m.nav.SellableDescendants(t.ctx, t.conv.POI.RootID)
	if err != nil || len(leaves) == 0 {
		return escalate("no sellable border tape found")
	}

	units := *t.conv.Specs.Quantity
	return m.quote(t, catalog.SizedProduct{Product: leaves[0]}, units)
}

func isFractional(v float64) bool {
	return v != math.Trunc(v)
}

func formatMeters(v float64) string {
	return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.1f", v), "0"), ".")
}

func formatPrice(v float64) string {
	return fmt.Sprintf("$%.2f", v)
}

func quoteLine(q models.QuotedProduct, units int) string {
	if units > 1 {
		return fmt.Sprintf("%dx %s - %s total", units, q.Name, formatPrice(q.Price))
	}
	return fmt.Sprintf("%s - %s", q.Name, formatPrice(q.Price))
}

func sizeLines(sizes []catalog.SizedProduct) string {
	lines := make([]string, 0, len(sizes))
	for _, s := range sizes {
		lines = append(lines, fmt.Sprintf("%s - %s", s.Name, formatPrice(s.Price)))
	}
	return strings.Join(lines, "\n")
}
