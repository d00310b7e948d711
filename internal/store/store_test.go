package store

import (
	"fmt"
	"testing"
	"time"

	"github.com/lovelydeco/TallerBot/internal/models"
)

func userTurn(text string) models.ConversationTurn {
	return models.ConversationTurn{Role: models.RoleUser, Text: text, Timestamp: time.Now()}
}

func assistantTurn(text string) models.ConversationTurn {
	return models.ConversationTurn{Role: models.RoleAssistant, Text: text, Timestamp: time.Now()}
}

func TestAppendTurn_FIFOEviction(t *testing.T) {
	s := NewInMemoryStore(WithHistoryLimit(4))
	for i := 0; i < 6; i++ {
		s.AppendTurn("u1", userTurn(fmt.Sprintf("mensaje %d", i)))
	}
	history := s.History("u1")
	if len(history) != 4 {
		t.Fatalf("expected history capped at 4, got %d", len(history))
	}
	if history[0].Text != "mensaje 2" {
		t.Errorf("expected oldest surviving turn %q, got %q", "mensaje 2", history[0].Text)
	}
	if history[3].Text != "mensaje 5" {
		t.Errorf("expected newest turn %q, got %q", "mensaje 5", history[3].Text)
	}
}

func TestCountUserTurns(t *testing.T) {
	s := NewInMemoryStore()
	s.AppendTurn("u1", userTurn("uno"))
	s.AppendTurn("u1", assistantTurn("respuesta"))
	s.AppendTurn("u1", userTurn("dos"))
	s.AppendTurn("u1", userTurn("tres"))
	if got := s.CountUserTurns("u1"); got != 3 {
		t.Errorf("expected 3 user turns, got %d", got)
	}
	if got := s.CountUserTurns("desconocido"); got != 0 {
		t.Errorf("expected 0 for unknown user, got %d", got)
	}
}

func TestCountUserTurns_SurvivesEviction(t *testing.T) {
	s := NewInMemoryStore(WithHistoryLimit(2))
	for i := 0; i < 3; i++ {
		s.AppendTurn("u1", userTurn(fmt.Sprintf("pregunta %d", i)))
		s.AppendTurn("u1", assistantTurn("respuesta"))
	}
	if got := len(s.History("u1")); got != 2 {
		t.Fatalf("expected history capped at 2, got %d", got)
	}
	if got := s.CountUserTurns("u1"); got != 3 {
		t.Errorf("lifetime count must survive eviction, got %d", got)
	}
}

func TestHandoffPhase_StickyHandedOff(t *testing.T) {
	s := NewInMemoryStore()
	s.SetHandoffPhase("u1", models.HandoffAwaitingConfirmation)
	if got := s.HandoffPhase("u1"); got != models.HandoffAwaitingConfirmation {
		t.Fatalf("expected AWAITING, got %s", got)
	}
	s.SetHandoffPhase("u1", models.HandoffComplete)
	s.SetHandoffPhase("u1", models.HandoffNone)
	if got := s.HandoffPhase("u1"); got != models.HandoffComplete {
		t.Errorf("HANDED_OFF must be sticky, got %s", got)
	}
}

func TestPendingSuggestionLifecycle(t *testing.T) {
	s := NewInMemoryStore()
	if got := s.PendingSuggestion("u1"); got != "" {
		t.Fatalf("expected empty suggestion for new user, got %q", got)
	}
	s.SetPendingSuggestion("u1", "garantía")
	if got := s.PendingSuggestion("u1"); got != "garantía" {
		t.Errorf("expected %q, got %q", "garantía", got)
	}
	s.ClearPendingSuggestion("u1")
	if got := s.PendingSuggestion("u1"); got != "" {
		t.Errorf("expected cleared suggestion, got %q", got)
	}
}

func TestLastProductAndOfferFlag(t *testing.T) {
	s := NewInMemoryStore()
	s.SetLastProduct("u1", "Sillón")
	if got := s.LastProduct("u1"); got != "Sillón" {
		t.Errorf("expected %q, got %q", "Sillón", got)
	}
	if s.HandoffOffered("u1") {
		t.Error("offer flag should start false")
	}
	s.MarkHandoffOffered("u1")
	if !s.HandoffOffered("u1") {
		t.Error("offer flag should be set")
	}
}

func TestUsersAreIsolated(t *testing.T) {
	s := NewInMemoryStore()
	s.AppendTurn("u1", userTurn("hola"))
	s.SetHandoffPhase("u2", models.HandoffComplete)
	if got := len(s.History("u2")); got != 0 {
		t.Errorf("expected empty history for u2, got %d turns", got)
	}
	if got := s.HandoffPhase("u1"); got != models.HandoffNone {
		t.Errorf("expected NORMAL for u1, got %s", got)
	}
}

func TestTTLEviction(t *testing.T) {
	s := NewInMemoryStore(WithTTL(20 * time.Millisecond))
	s.AppendTurn("u1", userTurn("hola"))
	if _, found := s.Get("u1"); !found {
		t.Fatal("expected state before TTL expiry")
	}
	time.Sleep(50 * time.Millisecond)
	if _, found := s.Get("u1"); found {
		t.Error("expected state evicted after TTL expiry")
	}
}

func TestGetReturnsSnapshot(t *testing.T) {
	s := NewInMemoryStore()
	s.AppendTurn("u1", userTurn("hola"))
	snapshot, found := s.Get("u1")
	if !found {
		t.Fatal("expected state")
	}
	snapshot.Turns[0].Text = "mutado"
	if got := s.History("u1")[0].Text; got != "hola" {
		t.Errorf("snapshot mutation leaked into store: %q", got)
	}
}

func TestLockSerializesPerUser(t *testing.T) {
	s := NewInMemoryStore()
	unlock := s.Lock("u1")
	done := make(chan struct{})
	go func() {
		u := s.Lock("u1")
		u()
		close(done)
	}()
	select {
	case <-done:
		t.Fatal("second lock acquired while first was held")
	case <-time.After(30 * time.Millisecond):
	}
	unlock()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second lock never acquired after unlock")
	}
}
