package ledger

import (
	"context"
	"sync"

	"nexus-backend/internal/models"
)

// MemStore is an in-memory Store for tests and local runs without
// Postgres. The single mutex makes DebitIfAffordable genuinely atomic, so
// the concurrency contract matches the production store.
type MemStore struct {
	mu       sync.Mutex
	accounts map[string]*memAccount
	events   []models.PointEvent
	nextID   int64
}

type memAccount struct {
	balance       int64
	messagesCount int64
	watchMinutes  int64
	displayName   string
}

func NewMemStore() *MemStore {
	return &MemStore{accounts: make(map[string]*memAccount)}
}

func (s *MemStore) EnsureAccount(_ context.Context, userID, displayName, _ string, _ int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[userID]
	if !ok {
		acct = &memAccount{displayName: "Adventurer"}
		s.accounts[userID] = acct
	}
	if displayName != "" {
		acct.displayName = displayName
	}
	return nil
}

func (s *MemStore) Balance(_ context.Context, userID string) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[userID]
	if !ok {
		return 0, false, nil
	}
	return acct.balance, true, nil
}

func (s *MemStore) ApplyCredit(_ context.Context, userID string, delta int64, isMessage, isWatch bool, _ int64) (int64, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[userID]
	if !ok {
		acct = &memAccount{}
		s.accounts[userID] = acct
	}
	before := acct.balance
	after := before + delta
	if after < 0 {
		after = 0
	}
	acct.balance = after
	if isMessage {
		acct.messagesCount++
	}
	if isWatch {
		acct.watchMinutes++
	}
	return before, after, nil
}

func (s *MemStore) DebitIfAffordable(_ context.Context, userID string, amount, _ int64) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[userID]
	if !ok || acct.balance < amount {
		return 0, false, nil
	}
	acct.balance -= amount
	return acct.balance, true, nil
}

func (s *MemStore) AppendEvent(_ context.Context, ev models.PointEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	ev.ID = s.nextID
	s.events = append(s.events, ev)
	return nil
}

func (s *MemStore) EventsFor(_ context.Context, userID string, limit int) ([]models.PointEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	out := []models.PointEvent{}
	for _, ev := range s.events {
		if ev.UserID == userID {
			out = append(out, ev)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

// Counters reports the activity counters; used by tests.
func (s *MemStore) Counters(userID string) (messages, watch int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if acct, ok := s.accounts[userID]; ok {
		return acct.messagesCount, acct.watchMinutes
	}
	return 0, 0
}
