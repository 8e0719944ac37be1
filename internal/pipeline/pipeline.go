package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"mesh-agent/internal/assets"
	"mesh-agent/internal/common/errors"
	"mesh-agent/internal/common/logger"
	"mesh-agent/internal/common/metrics"
	"mesh-agent/internal/fallback"
	"mesh-agent/internal/flow"
	"mesh-agent/internal/handoff"
	"mesh-agent/internal/intents"
	"mesh-agent/internal/models"
)

const (
	// maxUnknownTurns is how many consecutive unresolvable messages a
	// customer gets before the conversation goes to a human.
	maxUnknownTurns = 3

	clarifyText = "Sorry, I didn't quite catch that. Could you tell me the product and size you're looking for, like \"80% shade mesh 4x6\"?"
)

// ConversationStore is the per-identity state contract the pipeline needs.
type ConversationStore interface {
	Get(ctx context.Context, identity string) (*models.Conversation, error)
	Save(ctx context.Context, conv *models.Conversation) error
}

// Resolver is the AI fallback contract; failures surface as the None action,
// never as errors.
type Resolver interface {
	Resolve(ctx context.Context, conv *models.Conversation, message string) fallback.Resolution
}

// TurnResult is the outcome of one fully processed inbound message.
type TurnResult struct {
	Response   *models.Response
	NeedsHuman bool
	Outcome    string
}

// Pipeline runs the dialogue resolution chain for one inbound message:
// intent router, active flow, AI fallback, handoff, asset selector. State
// writes happen in handler order; the conversation is saved once per turn.
type Pipeline struct {
	store    ConversationStore
	router   *intents.Router
	flow     *flow.Machine
	resolver Resolver
	handoff  *handoff.Orchestrator
	assets   *assets.Selector
	logger   logger.Logger
}

func New(store ConversationStore, router *intents.Router, machine *flow.Machine, resolver Resolver, orchestrator *handoff.Orchestrator, selector *assets.Selector, log logger.Logger) *Pipeline {
	return &Pipeline{
		store:    store,
		router:   router,
		flow:     machine,
		resolver: resolver,
		handoff:  orchestrator,
		assets:   selector,
		logger:   log.WithFields(map[string]interface{}{"component": "pipeline"}),
	}
}

// ResolveMessage turns one inbound message into a reply, mutating and
// persisting the conversation. Only storage failures are returned as errors;
// everything else degrades inside the chain.
func (p *Pipeline) ResolveMessage(ctx context.Context, identity, message string) (*TurnResult, error) {
	start := time.Now()

	conv, err := p.store.Get(ctx, identity)
	if err != nil {
		return nil, errors.NewConversationLoadFailedError(err)
	}

	resp, outcome := p.resolveTurn(ctx, conv, message)

	if !conv.NeedsHuman {
		p.assets.Enrich(conv, message, resp)
	}

	if err := p.store.Save(ctx, conv); err != nil {
		return nil, errors.NewConversationSaveFailedError(err)
	}

	metrics.TurnsResolved.WithLabelValues(outcome).Inc()
	metrics.TurnDuration.WithLabelValues(string(conv.Flow)).Observe(time.Since(start).Seconds())

	p.logger.Info("turn resolved", map[string]interface{}{
		"identity": identity, "outcome": outcome, "needsHuman": conv.NeedsHuman,
	})

	return &TurnResult{Response: resp, NeedsHuman: conv.NeedsHuman, Outcome: outcome}, nil
}

func (p *Pipeline) resolveTurn(ctx context.Context, conv *models.Conversation, message string) (*models.Response, string) {
	if strings.TrimSpace(message) == "" {
		conv.UnintelligibleCount++
		if conv.UnintelligibleCount >= maxUnknownTurns {
			return p.handoff.Immediate(ctx, conv, "repeated unintelligible messages", "", ""), "handoff"
		}
		return models.TextResponse(clarifyText), "clarify"
	}

	// A suspended handoff owns the next reply outright.
	if conv.PendingHandoff != nil {
		return p.handoff.Resume(ctx, conv, message), "handoff_resume"
	}

	if res := p.router.Route(conv, message); res != nil {
		if res.Escalate {
			metrics.Escalations.WithLabelValues("intent").Inc()
			return p.handoff.Immediate(ctx, conv, res.EscalationReason, "", ""), "handoff"
		}
		conv.UnknownIntentCount = 0
		return res.Response, "intent"
	}

	out := p.flow.Resolve(ctx, conv, message)
	switch {
	case out.Escalate:
		metrics.Escalations.WithLabelValues("flow").Inc()
		return p.handoff.Request(ctx, conv, out.EscalationReason, out.EscalationPrefix), "handoff"
	case out.Response != nil:
		conv.UnknownIntentCount = 0
		if len(conv.LastQuoted()) > 0 {
			metrics.QuotesIssued.Inc()
		}
		return out.Response, "flow"
	}

	// Flow stalled. The AI fallback only runs in its narrow precondition:
	// products were quoted and the reply defeated deterministic parsing.
	if len(conv.LastQuoted()) > 0 {
		if resp, ok := p.runFallback(ctx, conv, message); ok {
			conv.UnknownIntentCount = 0
			return resp, "fallback"
		}
	}

	conv.UnknownIntentCount++
	if conv.UnknownIntentCount >= maxUnknownTurns {
		metrics.Escalations.WithLabelValues("repeated_failure").Inc()
		return p.handoff.Immediate(ctx, conv, "repeated unresolved messages", "", ""), "handoff"
	}
	return models.TextResponse(clarifyText), "clarify"
}

// runFallback maps an accepted resolver action back into a flow action.
// false means the resolver had nothing usable and the default path applies.
func (p *Pipeline) runFallback(ctx context.Context, conv *models.Conversation, message string) (*models.Response, bool) {
	res := p.resolver.Resolve(ctx, conv, message)
	quoted := conv.LastQuoted()

	switch res.Action {
	case fallback.ActionSelectOne:
		metrics.FallbackCalls.WithLabelValues("accepted").Inc()
		q := quoted[*res.Index]
		text := fmt.Sprintf("Great choice! %s", q.DisplayText)
		if q.URL != "" {
			text += fmt.Sprintf("\nYou can order here: %s", q.URL)
		}
		return models.TextResponse(text), true

	case fallback.ActionSelectProducts:
		metrics.FallbackCalls.WithLabelValues("accepted").Inc()
		lines := make([]string, 0, len(res.Indices))
		for _, i := range res.Indices {
			line := quoted[i].DisplayText
			if quoted[i].URL != "" {
				line += " " + quoted[i].URL
			}
			lines = append(lines, line)
		}
		return models.TextResponse("Great! Here they are:\n" + strings.Join(lines, "\n")), true

	case fallback.ActionProvideDimensions:
		metrics.FallbackCalls.WithLabelValues("accepted").Inc()
		// Re-enter the deterministic flow with the recovered size.
		synthetic := fmt.Sprintf("%gx%g", *res.Width, *res.Height)
		out := p.flow.Resolve(ctx, conv, synthetic)
		if out.Escalate {
			metrics.Escalations.WithLabelValues("flow").Inc()
			return p.handoff.Request(ctx, conv, out.EscalationReason, out.EscalationPrefix), true
		}
		if out.Response != nil {
			return out.Response, true
		}
		return nil, false

	case fallback.ActionAnswerQuestion:
		metrics.FallbackCalls.WithLabelValues("accepted").Inc()
		return models.TextResponse(res.Answer), true

	default:
		metrics.FallbackCalls.WithLabelValues("none").Inc()
		return nil, false
	}
}
