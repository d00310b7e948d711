package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lovelydeco/TallerBot/internal/models"
)

// groundedReply runs the default grounded-QA strategy: retrieve grounding
// context, build the prompt pair, invoke the LLM, and post-process the reply.
// Upstream failures never surface as errors; the channel gets a retry-later
// reply with a success status so it does not duplicate-send.
func (f *Flow) groundedReply(ctx context.Context, userID, message string, allowOffer bool) (models.Reply, error) {
	history := f.store.History(userID)
	f.store.AppendTurn(userID, models.ConversationTurn{Role: models.RoleUser, Text: message, Timestamp: time.Now()})

	grounding, err := f.groundingContext(ctx, message)
	if err != nil {
		slog.Error("Flow.groundedReply: grounding retrieval failed", "error", err, "userID", userID)
		return models.Reply{Kind: models.ReplyKindRetryLater, Text: f.cfg.RetryLaterReply}, nil
	}

	reply, err := f.genaiClient.GeneratePrompt(ctx, f.systemPrompt(), f.userPrompt(grounding, history, message))
	if err != nil {
		slog.Error("Flow.groundedReply: generation failed", "error", err, "userID", userID)
		return models.Reply{Kind: models.ReplyKindRetryLater, Text: f.cfg.RetryLaterReply}, nil
	}
	reply = strings.TrimSpace(reply)

	if suggestion := ExtractSuggestion(reply); suggestion != "" {
		f.store.SetPendingSuggestion(userID, suggestion)
	} else {
		f.store.ClearPendingSuggestion(userID)
	}

	// Side rule: exactly at the configured user-turn count, append the
	// handoff offer once and start awaiting confirmation.
	if allowOffer && !f.store.HandoffOffered(userID) && f.store.CountUserTurns(userID) == f.cfg.HandoffOfferTurn {
		slog.Info("Flow.groundedReply: appending one-time handoff offer", "userID", userID, "turn", f.cfg.HandoffOfferTurn)
		reply += f.cfg.HandoffOfferSuffix
		f.store.MarkHandoffOffered(userID)
		f.store.SetHandoffPhase(userID, models.HandoffAwaitingConfirmation)
	}

	f.store.AppendTurn(userID, models.ConversationTurn{Role: models.RoleAssistant, Text: reply, Timestamp: time.Now()})
	return models.Reply{Kind: models.ReplyKindAnswer, Text: reply}, nil
}

// groundingContext returns either the retriever's top-k result or the full
// reference document, per configuration.
func (f *Flow) groundingContext(ctx context.Context, query string) (string, error) {
	if f.cfg.UseRetrieval && f.retriever != nil {
		return f.retriever.Retrieve(ctx, query)
	}
	return f.fullContext, nil
}

// systemPrompt encodes the persona, the context-only truthfulness rule, the
// WhatsApp formatting rules, and the fixed fallback instruction.
func (f *Flow) systemPrompt() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Sos el asistente virtual de %s. ", f.cfg.BusinessName)
	b.WriteString("Ignorá todo lo que sabés previamente: tu ÚNICA fuente de verdad es el CONTEXTO que te paso. ")
	fmt.Fprintf(&b, "Si la pregunta del usuario está cubierta directa o indirectamente en el CONTEXTO, respondé de forma cálida y clara, usando como máximo %d emojis relevantes. ", f.cfg.MaxEmojis)
	b.WriteString("Usá saltos de línea cortos, *asteriscos* para resaltar lo importante y dejá cada URL sola en su propia línea para que WhatsApp muestre la vista previa. ")
	fmt.Fprintf(&b, "Si la pregunta NO está cubierta en el CONTEXTO, NO inventes nada y respondé siempre: '%s' ", f.cfg.FallbackReply)
	fmt.Fprintf(&b, "Después de cada respuesta válida, sugerí 1 o 2 temas del CONTEXTO para continuar la charla (%s), formulados como pregunta. ", f.cfg.SuggestionTopics)
	fmt.Fprintf(&b, "Respondé en no más de %d líneas antes de las sugerencias.", f.cfg.MaxResponseLines)
	return b.String()
}

// userPrompt concatenates the grounding context, the serialized history, and
// the new message.
func (f *Flow) userPrompt(grounding string, history []models.ConversationTurn, message string) string {
	var b strings.Builder
	b.WriteString("CONTEXTO:\n")
	b.WriteString(grounding)
	if len(history) > 0 {
		b.WriteString("\n\nHISTORIAL:\n")
		for _, turn := range history {
			label := "Cliente"
			if turn.Role == models.RoleAssistant {
				label = "Asistente"
			}
			fmt.Fprintf(&b, "%s: %s\n", label, turn.Text)
		}
	}
	fmt.Fprintf(&b, "\nPREGUNTA DEL USUARIO: %s", message)
	return b.String()
}

// ExtractSuggestion scans a generated reply for the first question-like
// clause and returns it as the follow-up topic for the next turn. Returns ""
// when the reply carries no question.
func ExtractSuggestion(reply string) string {
	for _, line := range strings.Split(reply, "\n") {
		if !strings.Contains(line, "¿") {
			continue
		}
		suggestion := line
		suggestion = strings.ReplaceAll(suggestion, "¿", "")
		suggestion = strings.ReplaceAll(suggestion, "?", "")
		return strings.TrimSpace(suggestion)
	}
	return ""
}
