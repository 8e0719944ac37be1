package fallback

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/xeipuuv/gojsonschema"

	"mesh-agent/internal/common/config"
	"mesh-agent/internal/common/logger"
	"mesh-agent/internal/models"
)

// Action is the bounded vocabulary the resolver may answer with. The model
// interprets an ambiguous reply in a known, small context; it never invents
// catalog facts.
type Action string

const (
	ActionSelectOne         Action = "select_one"
	ActionSelectProducts    Action = "select_products"
	ActionProvideDimensions Action = "provide_dimensions"
	ActionAnswerQuestion    Action = "answer_question"
	ActionNone              Action = "none"
)

// Resolution is the structured interpretation of one ambiguous reply.
type Resolution struct {
	Action     Action   `json:"action"`
	Confidence float64  `json:"confidence"`
	Index      *int     `json:"index,omitempty"`
	Indices    []int    `json:"indices,omitempty"`
	Width      *float64 `json:"width,omitempty"`
	Height     *float64 `json:"height,omitempty"`
	Answer     string   `json:"answer,omitempty"`
}

// None is what every failure degrades to. The caller treats it exactly like
// "nothing matched"; resolver trouble never reaches the customer.
func None() Resolution {
	return Resolution{Action: ActionNone, Confidence: 0}
}

const responseSchema = `{
	"type": "object",
	"required": ["action", "confidence"],
	"properties": {
		"action": {"type": "string", "enum": ["select_one", "select_products", "provide_dimensions", "answer_question", "none"]},
		"confidence": {"type": "number", "minimum": 0, "maximum": 1},
		"index": {"type": "integer"},
		"indices": {"type": "array", "items": {"type": "integer"}},
		"width": {"type": "number"},
		"height": {"type": "number"},
		"answer": {"type": "string"}
	}
}`

// companyFacts is the only factual content answer_question may draw from.
var companyFacts = []string{
	"We sell made-to-order shade mesh in 50%, 80% and 90% shade, cut to any size.",
	"Available colors are green, black and beige.",
	"The mesh is UV-stabilized knitted HDPE with reinforced edges.",
	"We ship nationwide; shipping cost is calculated at checkout.",
	"Payment is by card, bank transfer or installments; no cash on delivery.",
	"Orders dispatch within 2 business days.",
	"Every mesh carries a 1-year warranty against manufacturing defects.",
}

// Resolver issues one bounded JSON-mode completion per unresolved turn.
type Resolver struct {
	client    *openai.Client
	cfg       config.LLMConfig
	schema    gojsonschema.JSONLoader
	logger    logger.Logger
	threshold float64
}

func NewResolver(cfg config.LLMConfig, log logger.Logger) *Resolver {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		oc.HTTPClient = &http.Client{Timeout: time.Duration(cfg.Timeout) * time.Millisecond}
	}

	threshold := cfg.ConfidenceThreshold
	if threshold <= 0 {
		threshold = 0.7
	}

	return &Resolver{
		client:    openai.NewClientWithConfig(oc),
		cfg:       cfg,
		schema:    gojsonschema.NewStringLoader(responseSchema),
		logger:    log.WithFields(map[string]interface{}{"component": "fallback-resolver"}),
		threshold: threshold,
	}
}

// Resolve interprets a reply that deterministic parsing could not act on.
// Preconditions are the caller's: products were quoted in the immediately
// preceding turn. Any transport, parsing or validation failure returns None.
func (r *Resolver) Resolve(ctx context.Context, conv *models.Conversation, message string) Resolution {
	quoted := conv.LastQuoted()

	req := openai.ChatCompletionRequest{
		Model:       r.cfg.Model,
		Temperature: float32(r.cfg.Temperature),
		MaxTokens:   r.cfg.MaxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: r.systemPrompt(conv, quoted)},
			{Role: openai.ChatMessageRoleUser, Content: message},
		},
	}

	resp, err := r.client.CreateChatCompletion(ctx, req)
	if err != nil {
		r.logger.Warn("completion call failed", map[string]interface{}{
			"identity": conv.Identity, "error": err.Error(),
		})
		return None()
	}
	if len(resp.Choices) == 0 {
		return None()
	}

	return r.parse(conv, resp.Choices[0].Message.Content, len(quoted))
}

func (r *Resolver) parse(conv *models.Conversation, content string, quotedCount int) Resolution {
	validation, err := gojsonschema.Validate(r.schema, gojsonschema.NewStringLoader(content))
	if err != nil || !validation.Valid() {
		r.logger.Warn("resolver response failed schema validation", map[string]interface{}{
			"identity": conv.Identity,
		})
		return None()
	}

	var res Resolution
	if err := json.Unmarshal([]byte(content), &res); err != nil {
		return None()
	}

	if res.Confidence < r.threshold {
		r.logger.Info("resolver confidence below threshold", map[string]interface{}{
			"identity": conv.Identity, "action": string(res.Action), "confidence": res.Confidence,
		})
		return None()
	}

	// Selection indices must address the actual quoted list; out-of-range
	// answers are discarded, not clamped.
	switch res.Action {
	case ActionSelectOne:
		if res.Index == nil || *res.Index < 0 || *res.Index >= quotedCount {
			return None()
		}
	case ActionSelectProducts:
		if len(res.Indices) == 0 {
			return None()
		}
		for _, i := range res.Indices {
			if i < 0 || i >= quotedCount {
				return None()
			}
		}
	case ActionProvideDimensions:
		if res.Width == nil || res.Height == nil || *res.Width <= 0 || *res.Height <= 0 {
			return None()
		}
	case ActionAnswerQuestion:
		if strings.TrimSpace(res.Answer) == "" {
			return None()
		}
	case ActionNone:
	default:
		return None()
	}

	return res
}

func (r *Resolver) systemPrompt(conv *models.Conversation, quoted []models.QuotedProduct) string {
	var b strings.Builder

	b.WriteString("You interpret a customer's ambiguous reply in a sales chat for a shade mesh store. ")
	b.WriteString("Respond with a single JSON object: {\"action\", \"confidence\", ...}.\n\n")

	b.WriteString("Allowed actions:\n")
	b.WriteString("- select_one: the reply picks exactly one quoted option; set \"index\" (0-based).\n")
	b.WriteString("- select_products: the reply picks several quoted options; set \"indices\".\n")
	b.WriteString("- provide_dimensions: the reply states a size; set \"width\" and \"height\" in meters.\n")
	b.WriteString("- answer_question: the reply asks something answerable ONLY from the company facts below; set \"answer\".\n")
	b.WriteString("- none: anything else. Never guess prices, sizes or availability.\n\n")

	b.WriteString("Company facts (the only facts you may state):\n")
	for _, fact := range companyFacts {
		b.WriteString("- " + fact + "\n")
	}

	if len(quoted) > 0 {
		b.WriteString("\nQuoted options, in order:\n")
		for i, q := range quoted {
			fmt.Fprintf(&b, "%d. %s\n", i, q.DisplayText)
		}
	}

	fmt.Fprintf(&b, "\nConversation: flow=%s stage=%s", conv.Flow, conv.Stage)
	if conv.Specs != nil && conv.Specs.AsSpoken != "" {
		fmt.Fprintf(&b, " requested_size=%s", conv.Specs.AsSpoken)
	}
	b.WriteString("\nSet confidence between 0 and 1 for how certain the interpretation is.")

	return b.String()
}
