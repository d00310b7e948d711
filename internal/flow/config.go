// Package flow implements the dialogue state machine that routes each
// incoming message to a response strategy.
//
// Rules apply in precedence order; the first match wins:
//
//  1. Phase HANDED_OFF: answer with grounded QA only, never re-notify.
//  2. Message contains a handoff trigger phrase: notify the handoff service.
//  3. Phase AWAITING_HANDOFF_CONFIRMATION and message is an affirmative
//     token: notify the handoff service.
//  4. Phase AWAITING_HANDOFF_CONFIRMATION and message is a negative token:
//     return to NORMAL with the courtesy cancel reply.
//  5. Phase AWAITING_HANDOFF_CONFIRMATION, anything else: withdraw the offer
//     (back to NORMAL) and answer the message with grounded QA.
//  6. A suggestion is pending and the message is a short affirmative: clear
//     it and answer "Contame sobre {sugerencia}" with grounded QA.
//  7. Message contains a purchase keyword: canned purchase blurb and move to
//     AWAITING_HANDOFF_CONFIRMATION.
//  8. Default: grounded QA.
//
// Side rule: exactly at the configured user-turn count, a grounded reply
// gets the one-time handoff offer appended and the phase moves to
// AWAITING_HANDOFF_CONFIRMATION.
package flow

import "fmt"

// DialogueConfig parameterizes the state machine: phrase lists, thresholds,
// canned replies, and prompt formatting rules. One configurable flow replaces
// per-variant code paths.
type DialogueConfig struct {
	// HandoffTriggers are matched case-insensitively as substrings and force
	// an immediate handoff notification.
	HandoffTriggers []string

	// AffirmativeTokens confirm a pending handoff offer (exact match after
	// trimming and lowercasing).
	AffirmativeTokens []string

	// NegativeTokens decline a pending handoff offer.
	NegativeTokens []string

	// ShortAffirmatives resume the pending follow-up suggestion.
	ShortAffirmatives []string

	// PurchaseKeywords are matched as substrings and trigger the purchase
	// blurb plus a handoff offer.
	PurchaseKeywords []string

	// CatalogKeywords are scanned against every message to track the last
	// mentioned product, attached as metadata to handoff notifications.
	CatalogKeywords []string

	// HandoffOfferTurn is the user-turn count at which the one-time handoff
	// offer is appended to a grounded reply. The offer fires exactly at this
	// count, once per conversation.
	HandoffOfferTurn int

	// UseRetrieval selects top-k retrieval over the full document as the
	// grounding context.
	UseRetrieval bool

	// Prompt persona and formatting.
	BusinessName     string
	MaxEmojis        int
	MaxResponseLines int
	SuggestionTopics string

	// Canned replies.
	FallbackReply         string
	HandoffConfirmedReply string
	HandoffFailedReply    string
	HandoffCancelledReply string
	PurchaseReply         string
	HandoffOfferSuffix    string
	RetryLaterReply       string
}

// FallbackPhone is the showroom phone number quoted in degraded replies.
const FallbackPhone = "011 6028-1211"

// DefaultConfig returns the Lovely Taller Deco dialogue configuration.
func DefaultConfig() DialogueConfig {
	return ConfigWithPhone(FallbackPhone)
}

// ConfigWithPhone returns the default configuration with the degraded-reply
// phone number replaced.
func ConfigWithPhone(phone string) DialogueConfig {
	return DialogueConfig{
		HandoffTriggers: []string{
			"hablar con alguien",
			"hablar con una persona",
			"asesor",
			"humano",
			"atencion al cliente",
			"atención al cliente",
		},
		AffirmativeTokens: []string{"sí", "si", "dale", "ok", "quiero", "confirmo"},
		NegativeTokens:    []string{"no", "no gracias", "ahora no", "después", "despues"},
		ShortAffirmatives: []string{
			"sí", "si", "dale", "contame", "ok", "claro", "obvio",
			"sí por favor", "si por favor", "por favor",
		},
		PurchaseKeywords: []string{"comprar", "reservar", "me interesa", "lo quiero", "encargar"},
		CatalogKeywords: []string{
			"sillón", "sillon", "sofá", "sofa", "butaca", "puff",
			"mesa", "silla", "respaldo", "almohadones",
		},
		HandoffOfferTurn: 3,
		UseRetrieval:     true,
		BusinessName:     "Lovely Taller Deco",
		MaxEmojis:        3,
		MaxResponseLines: 2,
		SuggestionTopics: "quiénes somos, showroom, garantía, envíos, precios, demoras, formas de pago",
		FallbackReply: fmt.Sprintf(
			"Mirá, con lo que tengo acá no te puedo confirmar eso, pero podés llamar al %s para más info.",
			phone),
		HandoffConfirmedReply: "¡Listo! 🙌 Ya le avisé a nuestro equipo, en breve te escribe un asesor.",
		HandoffFailedReply: fmt.Sprintf(
			"Uy, no pude avisarle al equipo en este momento 🙈. Llamanos al %s y te atendemos al toque.",
			phone),
		HandoffCancelledReply: "¡No hay problema! 😊 Seguimos por acá, contame en qué más te puedo ayudar.",
		PurchaseReply: "¡Genial! 🎉 Trabajamos con todos los medios de pago, hasta 3 cuotas sin interés, " +
			"y hacemos envíos a todo el país 📦.\n\n¿Querés que te contacte un asesor para avanzar con la compra?",
		HandoffOfferSuffix: "\n\n¿Querés que te ponga en contacto con un asesor? Respondeme \"sí\" y le aviso 😊",
		RetryLaterReply:    "Dame un segundito que estoy procesando tu consulta 🙏 Probá de nuevo en un ratito.",
	}
}
