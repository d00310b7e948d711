// Package store provides the conversation store for TallerBot.
//
// It owns all per-user dialogue state: bounded history, pending suggestion,
// handoff phase, and last detected product. State lives in memory only and is
// lost on restart; idle conversations are evicted on TTL.
package store

import (
	"time"

	"github.com/lovelydeco/TallerBot/internal/models"
)

// Default store tuning. History capacity matches the observed 4-6 turn window.
const (
	DefaultHistoryLimit    = 6
	DefaultConversationTTL = 12 * time.Hour
)

// Store defines the conversation state operations used by the dialogue flow.
type Store interface {
	// Get returns a snapshot of the user's conversation state.
	Get(userID string) (models.ConversationState, bool)

	// AppendTurn pushes a turn onto the bounded history, evicting the oldest
	// turn first once capacity is exceeded.
	AppendTurn(userID string, turn models.ConversationTurn)

	// History returns the user's turns oldest-first.
	History(userID string) []models.ConversationTurn

	// CountUserTurns returns the lifetime number of user-authored turns,
	// independent of history eviction.
	CountUserTurns(userID string) int

	// PendingSuggestion returns the follow-up topic proposed last turn, if any.
	PendingSuggestion(userID string) string

	// SetPendingSuggestion records a follow-up topic for the next turn.
	SetPendingSuggestion(userID, suggestion string)

	// ClearPendingSuggestion removes any pending follow-up topic.
	ClearPendingSuggestion(userID string)

	// HandoffPhase returns the user's position in the handoff lifecycle.
	HandoffPhase(userID string) models.HandoffPhase

	// SetHandoffPhase updates the handoff phase. HANDED_OFF is sticky:
	// attempts to leave it are ignored.
	SetHandoffPhase(userID string, phase models.HandoffPhase)

	// LastProduct returns the most recently mentioned catalog item.
	LastProduct(userID string) string

	// SetLastProduct records the most recently mentioned catalog item.
	SetLastProduct(userID, product string)

	// HandoffOffered reports whether the turn-count handoff offer already fired.
	HandoffOffered(userID string) bool

	// MarkHandoffOffered records that the turn-count handoff offer fired.
	MarkHandoffOffered(userID string)

	// Lock serializes message processing for one user and returns the unlock
	// function. Concurrent messages from the same user are handled in order.
	Lock(userID string) func()
}

// Opts holds configuration options for the store.
type Opts struct {
	HistoryLimit int
	TTL          time.Duration
}

// Option defines a configuration option for the store.
type Option func(*Opts)

// WithHistoryLimit sets the per-user history capacity.
func WithHistoryLimit(limit int) Option {
	return func(o *Opts) { o.HistoryLimit = limit }
}

// WithTTL sets the idle eviction TTL for conversation state.
func WithTTL(ttl time.Duration) Option {
	return func(o *Opts) { o.TTL = ttl }
}
