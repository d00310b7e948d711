// Package models defines the core data structures for TallerBot.
//
// It includes conversation turns, per-user dialogue state, and the webhook
// request/response contract shared across modules.
package models

import (
	"errors"
	"strings"
	"time"
)

// Role identifies the author of a conversation turn.
type Role string

const (
	// RoleUser marks a turn written by the customer.
	RoleUser Role = "user"
	// RoleAssistant marks a turn written by the bot.
	RoleAssistant Role = "assistant"
)

// ConversationTurn is a single message in a conversation's history.
// Turns are immutable once created.
type ConversationTurn struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// HandoffPhase tracks where a user sits in the human-handoff lifecycle.
type HandoffPhase string

const (
	// HandoffNone means the dialogue runs normally with no pending offer.
	HandoffNone HandoffPhase = "NORMAL"
	// HandoffAwaitingConfirmation means an offer was made and the next
	// affirmative or negative token resolves it.
	HandoffAwaitingConfirmation HandoffPhase = "AWAITING_HANDOFF_CONFIRMATION"
	// HandoffComplete means a human was notified. This phase is sticky for
	// the lifetime of the conversation record.
	HandoffComplete HandoffPhase = "HANDED_OFF"
)

// ConversationState holds all per-user dialogue state. It is owned exclusively
// by the conversation store and keyed by user identifier.
type ConversationState struct {
	Turns             []ConversationTurn `json:"turns"`
	PendingSuggestion string             `json:"pending_suggestion,omitempty"`
	Phase             HandoffPhase       `json:"phase"`
	LastProduct       string             `json:"last_product,omitempty"`
	HandoffOffered    bool               `json:"handoff_offered"`
	// UserTurns counts every user-authored turn over the conversation's
	// lifetime. It is monotone and unaffected by history eviction.
	UserTurns int       `json:"user_turns"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AnonymousUserID is the sentinel identifier used when a webhook request
// carries no user identifier. All such callers share one conversation; this is
// a documented degradation of the upstream channel contract, not a bug.
const AnonymousUserID = "anonymous"

// WhatsAppPrefix is stripped from channel-native sender fields such as
// Twilio's "From".
const WhatsAppPrefix = "whatsapp:"

// Error variables for better error handling and testability
var (
	ErrEmptyQuery         = errors.New("query cannot be empty")
	ErrUpstreamGeneration = errors.New("upstream generation failed")
	ErrHandoffDelivery    = errors.New("handoff notification failed")
)

// WebhookRequest is the inbound message contract. The user identifier may
// arrive under several field names depending on how the channel provider is
// configured; ResolveUserID applies the precedence order.
type WebhookRequest struct {
	Consulta string `json:"consulta"`
	UserID   string `json:"user_id,omitempty"`
	Numero   string `json:"numero,omitempty"`
	From     string `json:"from,omitempty"`
}

// Validate checks the request for hard validation failures.
func (r *WebhookRequest) Validate() error {
	if strings.TrimSpace(r.Consulta) == "" {
		return ErrEmptyQuery
	}
	return nil
}

// ResolveUserID returns the effective user identifier: user_id, then numero,
// then the channel From field with any "whatsapp:" prefix stripped, then the
// anonymous sentinel.
func (r *WebhookRequest) ResolveUserID() string {
	if r.UserID != "" {
		return r.UserID
	}
	if r.Numero != "" {
		return r.Numero
	}
	if r.From != "" {
		return strings.TrimPrefix(r.From, WhatsAppPrefix)
	}
	return AnonymousUserID
}

// WebhookReply is the success payload returned to the channel provider.
type WebhookReply struct {
	Respuesta string `json:"respuesta"`
}

// WebhookError is the failure payload returned on hard validation errors.
type WebhookError struct {
	Error string `json:"error"`
}

// ReplyKind classifies how a reply was produced. The HTTP layer decides the
// status mapping once based on this kind instead of inspecting text.
type ReplyKind string

const (
	// ReplyKindAnswer is a grounded answer generated by the LLM.
	ReplyKindAnswer ReplyKind = "answer"
	// ReplyKindCanned is a fixed reply chosen by the dialogue state machine.
	ReplyKindCanned ReplyKind = "canned"
	// ReplyKindHandoff confirms a completed human handoff.
	ReplyKindHandoff ReplyKind = "handoff"
	// ReplyKindRetryLater is the degraded reply used when an upstream
	// provider failed. It is served with a success status so channel
	// providers do not retry-storm.
	ReplyKindRetryLater ReplyKind = "retry_later"
)

// Reply is the dialogue state machine's result for one inbound message.
type Reply struct {
	Kind ReplyKind `json:"kind"`
	Text string    `json:"text"`
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`            // status of the API response
	Message string      `json:"message,omitempty"` // optional message for error responses or additional info
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// APIResponseBuilder provides a fluent interface for building API responses.
type APIResponseBuilder struct {
	response APIResponse
}

// NewAPIResponseBuilder creates a new APIResponseBuilder instance.
func NewAPIResponseBuilder() *APIResponseBuilder {
	return &APIResponseBuilder{response: APIResponse{}}
}

// WithStatus sets the status of the API response.
func (b *APIResponseBuilder) WithStatus(status APIStatus) *APIResponseBuilder {
	b.response.Status = string(status)
	return b
}

// WithMessage sets the message of the API response.
func (b *APIResponseBuilder) WithMessage(message string) *APIResponseBuilder {
	b.response.Message = message
	return b
}

// WithResult sets the result data of the API response.
func (b *APIResponseBuilder) WithResult(result interface{}) *APIResponseBuilder {
	b.response.Result = result
	return b
}

// Build constructs and returns the final APIResponse.
func (b *APIResponseBuilder) Build() APIResponse {
	return b.response
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithResult(result).
		Build()
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusError).
		WithMessage(message).
		Build()
}
