package store

import (
	"log/slog"
	"sync"
	"time"

	cache "github.com/patrickmn/go-cache"

	"github.com/lovelydeco/TallerBot/internal/models"
)

// InMemoryStore keeps conversation state in a TTL cache. A store-level mutex
// guards read-modify-write cycles; per-user locks serialize whole-message
// processing in the flow layer.
type InMemoryStore struct {
	mu           sync.Mutex
	cache        *cache.Cache
	historyLimit int
	userLocks    sync.Map // userID -> *sync.Mutex
}

// NewInMemoryStore creates an in-memory conversation store.
func NewInMemoryStore(opts ...Option) *InMemoryStore {
	cfg := Opts{
		HistoryLimit: DefaultHistoryLimit,
		TTL:          DefaultConversationTTL,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultHistoryLimit
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultConversationTTL
	}
	slog.Debug("NewInMemoryStore: creating conversation store", "history_limit", cfg.HistoryLimit, "ttl", cfg.TTL)
	return &InMemoryStore{
		cache:        cache.New(cfg.TTL, cfg.TTL/4),
		historyLimit: cfg.HistoryLimit,
	}
}

// state returns the live state record for userID, creating it lazily on first
// contact. Callers must hold s.mu.
func (s *InMemoryStore) state(userID string) *models.ConversationState {
	if x, found := s.cache.Get(userID); found {
		return x.(*models.ConversationState)
	}
	now := time.Now()
	st := &models.ConversationState{
		Phase:     models.HandoffNone,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.cache.Set(userID, st, cache.DefaultExpiration)
	slog.Debug("InMemoryStore: conversation created", "userID", userID)
	return st
}

// touch refreshes the TTL after a mutation. Callers must hold s.mu.
func (s *InMemoryStore) touch(userID string, st *models.ConversationState) {
	st.UpdatedAt = time.Now()
	s.cache.Set(userID, st, cache.DefaultExpiration)
}

// Get returns a snapshot of the user's conversation state.
func (s *InMemoryStore) Get(userID string) (models.ConversationState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	x, found := s.cache.Get(userID)
	if !found {
		return models.ConversationState{}, false
	}
	st := x.(*models.ConversationState)
	snapshot := *st
	snapshot.Turns = append([]models.ConversationTurn(nil), st.Turns...)
	return snapshot, true
}

// AppendTurn pushes a turn onto the bounded history with FIFO eviction.
func (s *InMemoryStore) AppendTurn(userID string, turn models.ConversationTurn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state(userID)
	if turn.Role == models.RoleUser {
		st.UserTurns++
	}
	st.Turns = append(st.Turns, turn)
	if len(st.Turns) > s.historyLimit {
		drop := len(st.Turns) - s.historyLimit
		st.Turns = append([]models.ConversationTurn(nil), st.Turns[drop:]...)
	}
	s.touch(userID, st)
}

// History returns the user's turns oldest-first.
func (s *InMemoryStore) History(userID string) []models.ConversationTurn {
	s.mu.Lock()
	defer s.mu.Unlock()
	x, found := s.cache.Get(userID)
	if !found {
		return nil
	}
	st := x.(*models.ConversationState)
	return append([]models.ConversationTurn(nil), st.Turns...)
}

// CountUserTurns returns the lifetime number of user-authored turns. The
// counter survives history eviction so turn-count thresholds keep firing
// regardless of the history cap.
func (s *InMemoryStore) CountUserTurns(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	x, found := s.cache.Get(userID)
	if !found {
		return 0
	}
	return x.(*models.ConversationState).UserTurns
}

// PendingSuggestion returns the follow-up topic proposed last turn, if any.
func (s *InMemoryStore) PendingSuggestion(userID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	x, found := s.cache.Get(userID)
	if !found {
		return ""
	}
	return x.(*models.ConversationState).PendingSuggestion
}

// SetPendingSuggestion records a follow-up topic for the next turn.
func (s *InMemoryStore) SetPendingSuggestion(userID, suggestion string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state(userID)
	st.PendingSuggestion = suggestion
	s.touch(userID, st)
}

// ClearPendingSuggestion removes any pending follow-up topic.
func (s *InMemoryStore) ClearPendingSuggestion(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	x, found := s.cache.Get(userID)
	if !found {
		return
	}
	st := x.(*models.ConversationState)
	st.PendingSuggestion = ""
	s.touch(userID, st)
}

// HandoffPhase returns the user's position in the handoff lifecycle.
func (s *InMemoryStore) HandoffPhase(userID string) models.HandoffPhase {
	s.mu.Lock()
	defer s.mu.Unlock()
	x, found := s.cache.Get(userID)
	if !found {
		return models.HandoffNone
	}
	return x.(*models.ConversationState).Phase
}

// SetHandoffPhase updates the handoff phase. HANDED_OFF never reverts within
// the lifetime of the conversation record.
func (s *InMemoryStore) SetHandoffPhase(userID string, phase models.HandoffPhase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state(userID)
	if st.Phase == models.HandoffComplete && phase != models.HandoffComplete {
		slog.Debug("InMemoryStore.SetHandoffPhase: ignoring downgrade from HANDED_OFF", "userID", userID, "requested", phase)
		return
	}
	st.Phase = phase
	s.touch(userID, st)
}

// LastProduct returns the most recently mentioned catalog item.
func (s *InMemoryStore) LastProduct(userID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	x, found := s.cache.Get(userID)
	if !found {
		return ""
	}
	return x.(*models.ConversationState).LastProduct
}

// SetLastProduct records the most recently mentioned catalog item.
func (s *InMemoryStore) SetLastProduct(userID, product string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state(userID)
	st.LastProduct = product
	s.touch(userID, st)
}

// HandoffOffered reports whether the turn-count handoff offer already fired.
func (s *InMemoryStore) HandoffOffered(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	x, found := s.cache.Get(userID)
	if !found {
		return false
	}
	return x.(*models.ConversationState).HandoffOffered
}

// MarkHandoffOffered records that the turn-count handoff offer fired.
func (s *InMemoryStore) MarkHandoffOffered(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state(userID)
	st.HandoffOffered = true
	s.touch(userID, st)
}

// Lock serializes message processing for one user. The per-user mutex lives
// outside the TTL cache so eviction cannot drop a held lock.
func (s *InMemoryStore) Lock(userID string) func() {
	v, _ := s.userLocks.LoadOrStore(userID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
