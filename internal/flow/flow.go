package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/lovelydeco/TallerBot/internal/models"
	"github.com/lovelydeco/TallerBot/internal/store"
)

// GenAIClient is the minimal generation interface the flow needs.
type GenAIClient interface {
	GeneratePrompt(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// ContextRetriever supplies the grounding context for a query.
type ContextRetriever interface {
	Retrieve(ctx context.Context, query string) (string, error)
}

// HandoffNotifier delivers handoff notifications to the human-handoff service.
type HandoffNotifier interface {
	Notify(ctx context.Context, userID, reason string) error
}

// Flow is the dialogue state machine. It consults the conversation store,
// routes each message through the precedence rules, and produces one reply.
type Flow struct {
	cfg         DialogueConfig
	store       store.Store
	genaiClient GenAIClient
	retriever   ContextRetriever
	fullContext string
	notifier    HandoffNotifier
}

// New creates a dialogue flow. retriever may be nil when the full document is
// used as grounding; notifier may be nil when no handoff service is
// configured, in which case handoff attempts degrade to the failure reply.
func New(cfg DialogueConfig, st store.Store, client GenAIClient, retriever ContextRetriever, fullContext string, notifier HandoffNotifier) *Flow {
	slog.Debug("Flow.New: creating dialogue flow",
		"use_retrieval", cfg.UseRetrieval,
		"has_retriever", retriever != nil,
		"has_notifier", notifier != nil,
		"handoff_offer_turn", cfg.HandoffOfferTurn)
	return &Flow{
		cfg:         cfg,
		store:       st,
		genaiClient: client,
		retriever:   retriever,
		fullContext: fullContext,
		notifier:    notifier,
	}
}

// ProcessMessage routes one inbound message and returns the reply. Processing
// is serialized per user identifier so concurrent messages from the same user
// keep causal order.
func (f *Flow) ProcessMessage(ctx context.Context, userID, message string) (models.Reply, error) {
	unlock := f.store.Lock(userID)
	defer unlock()

	message = strings.TrimSpace(message)
	if message == "" {
		return models.Reply{}, models.ErrEmptyQuery
	}
	lower := strings.ToLower(message)
	slog.Debug("Flow.ProcessMessage: routing message", "userID", userID, "phase", f.store.HandoffPhase(userID))

	f.detectProduct(userID, lower)

	// Rule 1: once handed off, only grounded QA remains; no offers, no
	// re-notification.
	phase := f.store.HandoffPhase(userID)
	if phase == models.HandoffComplete {
		return f.groundedReply(ctx, userID, message, false)
	}

	// Rule 2: explicit request for a human.
	if matchesSubstring(lower, f.cfg.HandoffTriggers) {
		slog.Info("Flow.ProcessMessage: explicit handoff trigger matched", "userID", userID)
		return f.notifyHandoff(ctx, userID, message)
	}

	// Rules 3-5: resolving a pending handoff offer.
	if phase == models.HandoffAwaitingConfirmation {
		switch {
		case matchesToken(lower, f.cfg.AffirmativeTokens):
			slog.Info("Flow.ProcessMessage: handoff offer confirmed", "userID", userID)
			return f.notifyHandoff(ctx, userID, message)
		case matchesToken(lower, f.cfg.NegativeTokens):
			slog.Info("Flow.ProcessMessage: handoff offer declined", "userID", userID)
			f.store.SetHandoffPhase(userID, models.HandoffNone)
			f.recordExchange(userID, message, f.cfg.HandoffCancelledReply)
			return models.Reply{Kind: models.ReplyKindCanned, Text: f.cfg.HandoffCancelledReply}, nil
		default:
			// Ambiguous reply: withdraw the offer and answer the actual
			// question.
			slog.Debug("Flow.ProcessMessage: ambiguous handoff reply, withdrawing offer", "userID", userID)
			f.store.SetHandoffPhase(userID, models.HandoffNone)
			return f.groundedReply(ctx, userID, message, false)
		}
	}

	// Rule 6: a short affirmative resumes the last suggested topic.
	if pending := f.store.PendingSuggestion(userID); pending != "" && matchesToken(lower, f.cfg.ShortAffirmatives) {
		slog.Debug("Flow.ProcessMessage: resuming pending suggestion", "userID", userID, "suggestion", pending)
		f.store.ClearPendingSuggestion(userID)
		return f.groundedReply(ctx, userID, fmt.Sprintf("Contame sobre %s", pending), true)
	}

	// Rule 7: purchase intent gets the financing blurb plus a handoff offer.
	if matchesSubstring(lower, f.cfg.PurchaseKeywords) {
		slog.Info("Flow.ProcessMessage: purchase intent detected", "userID", userID)
		f.store.SetHandoffPhase(userID, models.HandoffAwaitingConfirmation)
		f.recordExchange(userID, message, f.cfg.PurchaseReply)
		return models.Reply{Kind: models.ReplyKindCanned, Text: f.cfg.PurchaseReply}, nil
	}

	// Rule 8: default grounded QA.
	return f.groundedReply(ctx, userID, message, true)
}

// notifyHandoff delivers the notification and transitions to HANDED_OFF on
// success. On failure the phase is left unchanged and the user is pointed at
// the fallback phone number.
func (f *Flow) notifyHandoff(ctx context.Context, userID, message string) (models.Reply, error) {
	reason := message
	if product := f.store.LastProduct(userID); product != "" {
		reason = fmt.Sprintf("%s (producto: %s)", message, product)
	}

	var err error
	if f.notifier == nil {
		err = models.ErrHandoffDelivery
	} else {
		err = f.notifier.Notify(ctx, userID, reason)
	}
	if err != nil {
		slog.Error("Flow.notifyHandoff: notification failed", "error", err, "userID", userID)
		f.recordExchange(userID, message, f.cfg.HandoffFailedReply)
		return models.Reply{Kind: models.ReplyKindCanned, Text: f.cfg.HandoffFailedReply}, nil
	}

	f.store.SetHandoffPhase(userID, models.HandoffComplete)
	f.recordExchange(userID, message, f.cfg.HandoffConfirmedReply)
	return models.Reply{Kind: models.ReplyKindHandoff, Text: f.cfg.HandoffConfirmedReply}, nil
}

// recordExchange appends a user/assistant turn pair for canned replies.
func (f *Flow) recordExchange(userID, userText, assistantText string) {
	now := time.Now()
	f.store.AppendTurn(userID, models.ConversationTurn{Role: models.RoleUser, Text: userText, Timestamp: now})
	f.store.AppendTurn(userID, models.ConversationTurn{Role: models.RoleAssistant, Text: assistantText, Timestamp: now})
}

// detectProduct scans the message for catalog keywords and records the last
// mentioned product. Best-effort metadata only.
func (f *Flow) detectProduct(userID, lowerMessage string) {
	for _, keyword := range f.cfg.CatalogKeywords {
		if strings.Contains(lowerMessage, strings.ToLower(keyword)) {
			product := titleCase(keyword)
			f.store.SetLastProduct(userID, product)
			slog.Debug("Flow.detectProduct: product mention recorded", "userID", userID, "product", product)
			return
		}
	}
}

// matchesSubstring reports whether any phrase occurs in the lowercased message.
func matchesSubstring(lowerMessage string, phrases []string) bool {
	for _, phrase := range phrases {
		if strings.Contains(lowerMessage, strings.ToLower(phrase)) {
			return true
		}
	}
	return false
}

// matchesToken reports whether the lowercased message equals one of the
// tokens, ignoring surrounding punctuation.
func matchesToken(lowerMessage string, tokens []string) bool {
	trimmed := strings.TrimFunc(lowerMessage, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSpace(r)
	})
	for _, token := range tokens {
		if trimmed == token {
			return true
		}
	}
	return false
}

// titleCase uppercases the first rune of s.
func titleCase(s string) string {
	runes := []rune(s)
	if len(runes) == 0 {
		return s
	}
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
