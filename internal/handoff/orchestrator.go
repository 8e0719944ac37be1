package handoff

import (
	"context"
	"fmt"
	"strings"
	"time"

	"mesh-agent/internal/common/config"
	"mesh-agent/internal/common/logger"
	"mesh-agent/internal/extract"
	"mesh-agent/internal/models"
)

// Notifier pushes a staff alert. Implementations are fire-and-forget: they
// log their own failures and never block or fail the reply.
type Notifier interface {
	Notify(ctx context.Context, identity, text string)
}

// Orchestrator is the terminal pipeline component: it ends the automated
// session and hands the conversation to a human, collecting shipping
// locality first when it isn't known yet.
type Orchestrator struct {
	notifier Notifier
	business config.BusinessConfig
	logger   logger.Logger
	now      func() time.Time
}

func NewOrchestrator(notifier Notifier, business config.BusinessConfig, log logger.Logger) *Orchestrator {
	return &Orchestrator{
		notifier: notifier,
		business: business,
		logger:   log.WithFields(map[string]interface{}{"component": "handoff"}),
		now:      time.Now,
	}
}

// Immediate completes the handoff right away: explicit human requests,
// frustration, repeated failure.
func (o *Orchestrator) Immediate(ctx context.Context, conv *models.Conversation, reason, prefix, link string) *models.Response {
	return o.complete(ctx, conv, reason, prefix, link, "")
}

// Request is the staged path used by flow-triggered escalations. When the
// shipping locality is unknown it suspends the handoff, asks for it, and
// stores the reason so the next reply resumes instead of restarting.
func (o *Orchestrator) Request(ctx context.Context, conv *models.Conversation, reason, prefix string) *models.Response {
	if conv.HasLocality() {
		return o.complete(ctx, conv, reason, prefix, "", "")
	}

	conv.PendingHandoff = &models.PendingHandoff{Reason: reason, Prefix: prefix, Asked: true}

	text := "I'll get one of our specialists to help you with that."
	if prefix != "" {
		text = prefix + " " + text
	}
	return models.TextResponse(text + " Could you send me your postal code or city first, so we route you to the right person?")
}

// Resume consumes the reply that arrives while a handoff is pending. A
// locality in the message is stored and acknowledged; either way the
// suspended handoff completes under its original reason, never a new one.
func (o *Orchestrator) Resume(ctx context.Context, conv *models.Conversation, message string) *models.Response {
	pending := conv.PendingHandoff
	if pending == nil {
		return nil
	}

	ack := ""
	if loc := extract.ParseLocation(message); loc != nil {
		if loc.City != "" {
			conv.City = loc.City
			conv.State = loc.State
		}
		if loc.PostalCode != "" {
			conv.PostalCode = loc.PostalCode
		}
		ack = "Thanks!"
	}

	return o.complete(ctx, conv, pending.Reason, pending.Prefix, "", ack)
}

func (o *Orchestrator) complete(ctx context.Context, conv *models.Conversation, reason, prefix, link, ack string) *models.Response {
	if reason == "" {
		// Reasons must stay machine-attributable.
		o.logger.Error("handoff requested without a reason", map[string]interface{}{
			"identity": conv.Identity,
		})
		reason = "escalation requested without a recorded reason"
	}

	conv.NeedsHuman = true
	conv.HandoffReason = reason
	conv.PendingHandoff = nil

	o.notifier.Notify(ctx, conv.Identity, o.staffAlert(conv, reason))

	parts := make([]string, 0, 4)
	if ack != "" {
		parts = append(parts, ack)
	}
	if prefix != "" {
		parts = append(parts, prefix)
	}
	parts = append(parts, o.timingSentence())
	if pickup := o.pickupSuggestion(conv); pickup != "" {
		parts = append(parts, pickup)
	}
	if link != "" {
		parts = append(parts, "In the meantime: "+link)
	}

	o.logger.Info("conversation handed off", map[string]interface{}{
		"identity": conv.Identity, "reason": reason,
	})
	return models.TextResponse(strings.Join(parts, " "))
}

// timingSentence tells the customer when to expect a human, aware of
// business hours.
func (o *Orchestrator) timingSentence() string {
	now := o.now()
	hour := now.Hour()
	weekday := now.Weekday()

	open := weekday >= time.Monday && weekday <= time.Friday
	if weekday == time.Saturday && o.business.OpenSaturday {
		open = true
	}
	open = open && hour >= o.business.OpenHour && hour < o.business.CloseHour

	if open {
		return "One of our specialists will continue from here shortly."
	}
	return fmt.Sprintf(
		"One of our specialists will continue from here; we're back at %dh and you'll be first in line.",
		o.business.OpenHour)
}

func (o *Orchestrator) pickupSuggestion(conv *models.Conversation) string {
	if conv.City == "" || !strings.EqualFold(conv.City, o.business.HomeCity) {
		return ""
	}
	return fmt.Sprintf("Since you're in %s, you're also welcome to visit us at %s.",
		o.business.HomeCity, o.business.StoreLocation)
}

func (o *Orchestrator) staffAlert(conv *models.Conversation, reason string) string {
	locality := conv.PostalCode
	if conv.City != "" {
		locality = strings.TrimSpace(conv.City + " " + conv.State)
	}
	if locality == "" {
		locality = "unknown"
	}
	return fmt.Sprintf("Conversation %s needs a human. Reason: %s. Locality: %s.",
		conv.Identity, reason, locality)
}
