package catalog

import (
	"context"
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"

	"mesh-agent/internal/common/logger"
	"mesh-agent/internal/models"
)

// Status is the categorical result of a navigator lookup. Callers branch on
// these to decide between alternatives and escalation; lookups never raise.
type Status string

const (
	StatusFound       Status = "found"
	StatusNoPOI       Status = "no_poi"
	StatusPOINotFound Status = "poi_not_found"
	StatusNotInTree   Status = "not_in_tree"
	StatusError       Status = "error"
)

// TextSearcher is the optional free-text containment backend (Elasticsearch
// in production). When absent the navigator falls back to the store's ILIKE
// search.
type TextSearcher interface {
	Search(ctx context.Context, query string) ([]models.Product, error)
}

// SizedProduct is a sellable leaf whose size text parsed into normalized
// dimensions (width <= height).
type SizedProduct struct {
	models.Product
	Width  float64
	Height float64
}

func (s SizedProduct) Area() float64 {
	return s.Width * s.Height
}

type Navigator struct {
	store    Store
	searcher TextSearcher
	logger   logger.Logger
}

func NewNavigator(store Store, searcher TextSearcher, log logger.Logger) *Navigator {
	return &Navigator{
		store:    store,
		searcher: searcher,
		logger:   log.WithFields(map[string]interface{}{"component": "catalog-navigator"}),
	}
}

var sizeRe = regexp.MustCompile(`(\d+(?:[.,]\d+)?)\s*[xX×*]\s*(\d+(?:[.,]\d+)?)`)

// ParseSize reads a product's size text into normalized dimensions,
// order-insensitive.
func ParseSize(sizeText string) (width, height float64, ok bool) {
	m := sizeRe.FindStringSubmatch(sizeText)
	if m == nil {
		return 0, 0, false
	}
	a, err1 := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", "."), 64)
	b, err2 := strconv.ParseFloat(strings.ReplaceAll(m[2], ",", "."), 64)
	if err1 != nil || err2 != nil || a <= 0 || b <= 0 {
		return 0, 0, false
	}
	if a > b {
		a, b = b, a
	}
	return a, b, true
}

// SameSize compares two normalized dimension pairs with a small tolerance
// for decimal size texts.
func SameSize(w1, h1, w2, h2 float64) bool {
	const eps = 0.01
	return math.Abs(w1-w2) < eps && math.Abs(h1-h2) < eps
}

// Lineage concatenates the ancestor names root-first down to the node
// itself. Attributes like shade percentage live on ancestors, so attribute
// matching always runs against this string, never the leaf name alone.
func (n *Navigator) Lineage(ctx context.Context, id string) (string, error) {
	node, err := n.store.ByID(ctx, id)
	if err != nil {
		return "", err
	}

	ancestors, err := n.store.AncestorsOf(ctx, id)
	if err != nil {
		return "", err
	}

	parts := make([]string, 0, len(ancestors)+1)
	for i := len(ancestors) - 1; i >= 0; i-- {
		parts = append(parts, ancestors[i].Name)
	}
	parts = append(parts, node.Name)
	return strings.Join(parts, " "), nil
}

// RootOf walks to the top of the node's tree.
func (n *Navigator) RootOf(ctx context.Context, id string) (*models.Product, error) {
	node, err := n.store.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if node.IsRoot() {
		return node, nil
	}

	ancestors, err := n.store.AncestorsOf(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(ancestors) == 0 {
		return node, nil
	}
	return &ancestors[len(ancestors)-1], nil
}

// ResolveRootByName finds a family root from free text (e.g. "shade panel").
func (n *Navigator) ResolveRootByName(ctx context.Context, name string) (*models.Product, error) {
	hits, err := n.containmentSearch(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, ErrNotFound
	}
	return n.RootOf(ctx, hits[0].ID)
}

// SellableSizes enumerates the sellable leaves under a root whose size text
// parses, normalized and ready for matching.
func (n *Navigator) SellableSizes(ctx context.Context, rootID string) ([]SizedProduct, error) {
	leaves, err := n.store.SellableDescendantsOf(ctx, rootID)
	if err != nil {
		return nil, err
	}

	out := make([]SizedProduct, 0, len(leaves))
	for _, leaf := range leaves {
		w, h, ok := ParseSize(leaf.SizeText)
		if !ok {
			w, h, ok = ParseSize(leaf.Name)
		}
		if !ok {
			continue
		}
		out = append(out, SizedProduct{Product: leaf, Width: w, Height: h})
	}
	return out, nil
}

// FindVariant checks whether a size exists under the locked POI subtree.
// Matching is by normalized dimension equality first, then by free-text
// containment against name/alias/size fields.
func (n *Navigator) FindVariant(ctx context.Context, poi *models.ProductOfInterest, width, height float64) (*SizedProduct, Status) {
	if poi == nil || poi.RootID == "" {
		return nil, StatusNoPOI
	}

	if _, err := n.store.ByID(ctx, poi.RootID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, StatusPOINotFound
		}
		n.logger.Error("poi root lookup failed", map[string]interface{}{
			"rootId": poi.RootID, "error": err.Error(),
		})
		return nil, StatusError
	}

	sizes, err := n.SellableSizes(ctx, poi.RootID)
	if err != nil {
		n.logger.Error("subtree enumeration failed", map[string]interface{}{
			"rootId": poi.RootID, "error": err.Error(),
		})
		return nil, StatusError
	}

	w, h := width, height
	if w > h {
		w, h = h, w
	}
	for i := range sizes {
		if SameSize(sizes[i].Width, sizes[i].Height, w, h) {
			return &sizes[i], StatusFound
		}
	}

	// Containment pass: some variants carry the size only in their name or
	// alias ("mesh 4x6 reinforced").
	query := formatSizeQuery(w, h)
	hits, err := n.containmentSearch(ctx, query)
	if err == nil {
		subtree := make(map[string]SizedProduct, len(sizes))
		for _, s := range sizes {
			subtree[s.ID] = s
		}
		for _, hit := range hits {
			if s, ok := subtree[hit.ID]; ok {
				return &s, StatusFound
			}
		}
	}

	return nil, StatusNotInTree
}

// FilterByLineageAttribute keeps the candidates whose full lineage mentions
// the attribute (e.g. "80%"). When the filter eliminates everything the
// unfiltered set is returned: the caller owns the "we don't carry that"
// judgment, not the navigator.
func (n *Navigator) FilterByLineageAttribute(ctx context.Context, candidates []SizedProduct, attribute string) []SizedProduct {
	if attribute == "" || len(candidates) == 0 {
		return candidates
	}

	needle := strings.ToLower(attribute)
	var filtered []SizedProduct
	for _, c := range candidates {
		lineage, err := n.Lineage(ctx, c.ID)
		if err != nil {
			n.logger.Warn("lineage build failed, skipping candidate filter", map[string]interface{}{
				"productId": c.ID, "error": err.Error(),
			})
			continue
		}
		if strings.Contains(strings.ToLower(lineage), needle) {
			filtered = append(filtered, c)
		}
	}

	if len(filtered) == 0 {
		n.logger.Info("lineage filter eliminated all candidates, degrading to unfiltered set", map[string]interface{}{
			"attribute": attribute, "candidates": len(candidates),
		})
		return candidates
	}
	return filtered
}

// NavigateToSiblingBranch moves the POI to a sibling attribute branch (a
// different shade percentage) instead of searching the whole catalog.
func (n *Navigator) NavigateToSiblingBranch(ctx context.Context, poi *models.ProductOfInterest, attribute string) (*models.Product, Status) {
	if poi == nil || poi.RootID == "" {
		return nil, StatusNoPOI
	}

	current, err := n.store.ByID(ctx, poi.RootID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, StatusPOINotFound
		}
		return nil, StatusError
	}
	if current.IsRoot() {
		return nil, StatusNotInTree
	}

	siblings, err := n.store.ChildrenOf(ctx, current.ParentID)
	if err != nil {
		n.logger.Error("sibling lookup failed", map[string]interface{}{
			"parentId": current.ParentID, "error": err.Error(),
		})
		return nil, StatusError
	}

	needle := strings.ToLower(attribute)
	for i := range siblings {
		if siblings[i].ID == current.ID {
			continue
		}
		haystack := strings.ToLower(siblings[i].Name + " " + siblings[i].Alias)
		if strings.Contains(haystack, needle) {
			return &siblings[i], StatusFound
		}
	}
	return nil, StatusNotInTree
}

// SellableDescendants lists every sellable leaf under a root, including
// ones whose size text doesn't parse (tape, accessories).
func (n *Navigator) SellableDescendants(ctx context.Context, rootID string) ([]models.Product, error) {
	return n.store.SellableDescendantsOf(ctx, rootID)
}

// ChildrenOf lists a node's direct children.
func (n *Navigator) ChildrenOf(ctx context.Context, id string) ([]models.Product, error) {
	return n.store.ChildrenOf(ctx, id)
}

// PreferredLink resolves the marketplace link for a sellable product.
func (n *Navigator) PreferredLink(ctx context.Context, productID string) (*models.ProductLink, error) {
	return n.store.PreferredLink(ctx, productID)
}

func (n *Navigator) containmentSearch(ctx context.Context, query string) ([]models.Product, error) {
	if n.searcher != nil {
		hits, err := n.searcher.Search(ctx, query)
		if err == nil {
			return hits, nil
		}
		n.logger.Warn("search backend failed, falling back to store", map[string]interface{}{
			"query": query, "error": err.Error(),
		})
	}
	return n.store.SearchText(ctx, query)
}

func formatSizeQuery(w, h float64) string {
	return strconv.FormatFloat(w, 'f', -1, 64) + "x" + strconv.FormatFloat(h, 'f', -1, 64)
}
