package assets

import (
	"strings"

	"mesh-agent/internal/common/logger"
	"mesh-agent/internal/models"
)

// Asset is one marketing fact that may be appended to an outgoing reply.
type Asset struct {
	ID          string
	Text        string
	Flows       []models.FlowType
	Intents     []string
	Keywords    []string
	MaxMentions int
}

// catalogAssets is the fixed table the selector scores. Caps keep any single
// fact from being repeated at a customer.
var catalogAssets = []Asset{
	{
		ID:          "uv-stabilized",
		Text:        "By the way, all our meshes are UV-stabilized, so they hold their color and strength for years in full sun.",
		Flows:       []models.FlowType{models.FlowPanel, models.FlowRoll},
		Keywords:    []string{"sun", "heat", "summer", "fade"},
		MaxMentions: 1,
	},
	{
		ID:          "reinforced-edges",
		Text:        "Every panel ships with reinforced edges, ready to hang with clips or rope.",
		Flows:       []models.FlowType{models.FlowPanel},
		Intents:     []string{"installation", "accessories"},
		Keywords:    []string{"install", "hang", "fix"},
		MaxMentions: 1,
	},
	{
		ID:          "cut-to-order",
		Text:        "And remember, everything is cut to order, so odd sizes are no problem.",
		Flows:       []models.FlowType{models.FlowPanel, models.FlowRoll},
		Intents:     []string{"custom_size"},
		Keywords:    []string{"size", "measure", "custom"},
		MaxMentions: 2,
	},
	{
		ID:          "fast-dispatch",
		Text:        "Orders go into production right away and dispatch within 2 business days.",
		Intents:     []string{"shipping", "delivery_time"},
		Keywords:    []string{"urgent", "quick", "fast", "hurry"},
		MaxMentions: 1,
	},
	{
		ID:          "free-pickup",
		Text:        "Pickup at our store is always free if you're nearby.",
		Intents:     []string{"pickup", "store_location"},
		Keywords:    []string{"pickup", "collect"},
		MaxMentions: 1,
	},
}

// Selector picks at most one marketing fact to append to a reply.
type Selector struct {
	assets []Asset
	logger logger.Logger
}

func NewSelector(log logger.Logger) *Selector {
	return &Selector{
		assets: catalogAssets,
		logger: log.WithFields(map[string]interface{}{"component": "asset-selector"}),
	}
}

// Enrich appends the best-scoring asset to the response text, if any scores
// at all, and records the mention on the conversation.
func (s *Selector) Enrich(conv *models.Conversation, message string, resp *models.Response) {
	if resp == nil || resp.Text == "" {
		return
	}

	best := s.pick(conv, strings.ToLower(message))
	if best == nil {
		return
	}

	if conv.AssetMentions == nil {
		conv.AssetMentions = make(map[string]int)
	}
	conv.AssetMentions[best.ID]++

	resp.Text = resp.Text + "\n\n" + best.Text
	s.logger.Debug("asset appended", map[string]interface{}{
		"identity": conv.Identity, "asset": best.ID,
	})
}

func (s *Selector) pick(conv *models.Conversation, message string) *Asset {
	var best *Asset
	bestScore := 0

	for i := range s.assets {
		a := &s.assets[i]
		if conv.AssetMentions[a.ID] >= a.MaxMentions {
			continue
		}
		score := s.score(a, conv, message)
		if score > bestScore {
			best = a
			bestScore = score
		}
	}
	return best
}

func (s *Selector) score(a *Asset, conv *models.Conversation, message string) int {
	score := 0
	for _, f := range a.Flows {
		if conv.Flow == f {
			score++
			break
		}
	}
	for _, intent := range a.Intents {
		if conv.LastIntent == intent {
			score += 2
			break
		}
	}
	for _, kw := range a.Keywords {
		if strings.Contains(message, kw) {
			score += 2
			break
		}
	}

	// Flow affinity alone is not a reason to speak up.
	if score <= 1 {
		return 0
	}
	return score
}
