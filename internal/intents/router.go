package intents

import (
	"regexp"
	"strings"

	"mesh-agent/internal/common/config"
	"mesh-agent/internal/common/logger"
	"mesh-agent/internal/models"
)

// Result is what a matched intent produces. Escalate routes the turn to the
// handoff orchestrator instead of answering directly.
type Result struct {
	Intent           string
	Response         *models.Response
	Escalate         bool
	EscalationReason string
}

// handlerFunc answers one intent. It may read and mutate the conversation.
type handlerFunc func(conv *models.Conversation, message string) *Result

type handler struct {
	name     string
	patterns []*regexp.Regexp
	handle   handlerFunc
}

// Router is a flat, independently evaluated set of pattern-triggered
// handlers that runs before the active flow on every message. Registration
// order is the only precedence: several handlers may technically match, the
// first registered wins. Each intent is owned by exactly one layer — flows
// never delegate back here.
type Router struct {
	handlers []handler
	business config.BusinessConfig
	logger   logger.Logger
}

func NewRouter(business config.BusinessConfig, log logger.Logger) *Router {
	r := &Router{
		business: business,
		logger:   log.WithFields(map[string]interface{}{"component": "intent-router"}),
	}
	r.registerAll()
	return r
}

func (r *Router) register(name string, handle handlerFunc, patterns ...string) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		compiled = append(compiled, regexp.MustCompile(p))
	}
	r.handlers = append(r.handlers, handler{name: name, patterns: compiled, handle: handle})
}

// Route evaluates the message against every registered intent. It returns
// nil when nothing matches, or when the message carries several distinct
// questions: a partial answer is worse than deferring to the broader
// combined-answer path.
func (r *Router) Route(conv *models.Conversation, message string) *Result {
	normalized := strings.ToLower(strings.TrimSpace(message))
	if normalized == "" {
		return nil
	}

	if isMultiQuestion(normalized) {
		r.logger.Debug("declining compound message", map[string]interface{}{
			"identity": conv.Identity,
		})
		return nil
	}

	for _, h := range r.handlers {
		if !matchesAny(h.patterns, normalized) {
			continue
		}
		result := h.handle(conv, normalized)
		if result == nil {
			// The handler inspected conversation state and declined; keep
			// trying later registrations.
			continue
		}
		result.Intent = h.name
		conv.LastIntent = h.name
		r.logger.Info("intent matched", map[string]interface{}{
			"identity": conv.Identity,
			"intent":   h.name,
		})
		return result
	}

	return nil
}

func matchesAny(patterns []*regexp.Regexp, text string) bool {
	for _, p := range patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

var questionWordRe = regexp.MustCompile(`\b(how|what|when|where|which|why|do you|can you|is it)\b`)

// isMultiQuestion detects compound messages: two or more question marks, or
// a conjunction introducing a second interrogative clause.
func isMultiQuestion(text string) bool {
	if strings.Count(text, "?") >= 2 {
		return true
	}

	idx := strings.Index(text, " and ")
	if idx < 0 {
		return false
	}
	before, after := text[:idx], text[idx+5:]
	return questionWordRe.MatchString(before) && questionWordRe.MatchString(after)
}

func textResult(text string) *Result {
	return &Result{Response: models.TextResponse(text)}
}
