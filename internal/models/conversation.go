package models

import "time"

// FlowType identifies the product-family state machine a conversation is in.
type FlowType string

const (
	FlowNone  FlowType = ""
	FlowPanel FlowType = "panel"
	FlowRoll  FlowType = "roll"
	FlowTape  FlowType = "tape"
)

// Stage is the position of a conversation inside its flow.
type Stage string

const (
	StageStart              Stage = "start"
	StageAwaitingDimensions Stage = "awaiting_dimensions"
	StageAwaitingPercentage Stage = "awaiting_percentage"
	StageComplete           Stage = "complete"
)

// ProductSpecs is the accumulated specification for the active flow. It is a
// tagged union keyed by Family: panel specs use Width/Height, roll specs use
// Width/Length semantics on the same fields, tape specs only use Quantity.
// Writes replace the whole object, never merge into it.
type ProductSpecs struct {
	Family     FlowType `json:"family"`
	Width      *float64 `json:"width,omitempty"`
	Height     *float64 `json:"height,omitempty"`
	Percentage *int     `json:"percentage,omitempty"`
	Color      string   `json:"color,omitempty"`
	Quantity   *int     `json:"quantity,omitempty"`
	// AsSpoken preserves the order the customer said the dimensions in.
	AsSpoken string `json:"asSpoken,omitempty"`
}

// QuotedProduct is a snapshot of a priced option already shown to the
// customer, kept so a later ambiguous reply ("the first one", "both") can be
// resolved without re-querying the catalog.
type QuotedProduct struct {
	ProductID   string  `json:"productId"`
	Name        string  `json:"name"`
	DisplayText string  `json:"displayText"`
	Price       float64 `json:"price"`
	URL         string  `json:"url,omitempty"`
	Width       float64 `json:"width,omitempty"`
	Height      float64 `json:"height,omitempty"`
}

// QuoteContext is the versioned quote memory attached to a conversation.
// Only the most recent quote set is kept; Version increments on every
// replacement so stale writers can be detected in logs.
type QuoteContext struct {
	Version  int             `json:"version"`
	Products []QuotedProduct `json:"products"`
	QuotedAt time.Time       `json:"quotedAt"`
}

// ProductOfInterest is the catalog subtree a conversation is locked to once a
// product lineage has been established.
type ProductOfInterest struct {
	RootID string `json:"rootId"`
	Name   string `json:"name"`
}

// PendingOffer records an alternative the bot proposed (floored fractional
// size, covering size, multi-unit bundle) so the next affirmative or negative
// reply is interpreted deterministically.
type PendingOffer struct {
	Kind      string  `json:"kind"` // "floored", "cover", "bundle"
	ProductID string  `json:"productId,omitempty"`
	Name      string  `json:"name,omitempty"`
	Width     float64 `json:"width,omitempty"`
	Height    float64 `json:"height,omitempty"`
	Units     int     `json:"units,omitempty"`
	Price     float64 `json:"price,omitempty"`
	// RequestedWidth/Height are what the customer actually asked for, kept
	// for repeat-request detection.
	RequestedWidth  float64 `json:"requestedWidth,omitempty"`
	RequestedHeight float64 `json:"requestedHeight,omitempty"`
}

// PendingHandoff is a suspended escalation waiting for the customer's
// locality before staff are notified.
type PendingHandoff struct {
	Reason string `json:"reason"`
	Prefix string `json:"prefix,omitempty"`
	Asked  bool   `json:"asked"`
}

// Conversation is the per-customer state mutated by every pipeline stage.
// One document per external identity; it persists across gaps and is never
// deleted within a session.
type Conversation struct {
	Identity   string   `json:"identity"`
	Flow       FlowType `json:"flow"`
	Stage      Stage    `json:"stage"`
	LastIntent string   `json:"lastIntent,omitempty"`

	Specs  *ProductSpecs      `json:"specs,omitempty"`
	Quotes *QuoteContext      `json:"quotes,omitempty"`
	POI    *ProductOfInterest `json:"poi,omitempty"`

	PendingOffer   *PendingOffer   `json:"pendingOffer,omitempty"`
	PendingHandoff *PendingHandoff `json:"pendingHandoff,omitempty"`

	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`

	UnintelligibleCount int `json:"unintelligibleCount"`
	UnknownIntentCount  int `json:"unknownIntentCount"`

	NeedsHuman    bool   `json:"needsHuman"`
	HandoffReason string `json:"handoffReason,omitempty"`

	// AssetMentions caps how often each marketing fact may be appended.
	AssetMentions map[string]int `json:"assetMentions,omitempty"`

	UpdatedAt time.Time `json:"updatedAt"`
}

// LastQuoted reports the most recent quote set, or nil when nothing has been
// quoted yet.
func (c *Conversation) LastQuoted() []QuotedProduct {
	if c.Quotes == nil {
		return nil
	}
	return c.Quotes.Products
}

// HasLocality reports whether shipping locality is already known.
func (c *Conversation) HasLocality() bool {
	return c.City != "" || c.PostalCode != ""
}

// SetQuotes replaces the quote context with a new set, bumping the version.
func (c *Conversation) SetQuotes(products []QuotedProduct, now time.Time) {
	version := 1
	if c.Quotes != nil {
		version = c.Quotes.Version + 1
	}
	c.Quotes = &QuoteContext{
		Version:  version,
		Products: products,
		QuotedAt: now,
	}
}
