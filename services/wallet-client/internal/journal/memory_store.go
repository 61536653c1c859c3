package journal

import (
	"context"
	"sync"

	"parkease/services/wallet-client/internal/models"
)

// MemoryStore keeps the journal in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	outcomes map[string]models.PaymentOutcome
	byUser   map[string][]string
	secrets  map[string]struct{}
}

// NewMemoryStore returns initialized store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		outcomes: make(map[string]models.PaymentOutcome),
		byUser:   make(map[string][]string),
		secrets:  make(map[string]struct{}),
	}
}

// Save stores outcome, newest first in the user's list.
func (s *MemoryStore) Save(_ context.Context, outcome models.PaymentOutcome) error {
	if outcome.IntentID == "" {
		return ErrMissingIntent
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, seen := s.outcomes[outcome.IntentID]; !seen {
		ids := append([]string{outcome.IntentID}, s.byUser[outcome.UserID]...)
		if len(ids) > maxPerUser {
			for _, dropped := range ids[maxPerUser:] {
				delete(s.outcomes, dropped)
			}
			ids = ids[:maxPerUser]
		}
		s.byUser[outcome.UserID] = ids
	}
	s.outcomes[outcome.IntentID] = outcome
	return nil
}

// Recent returns up to limit outcomes for userID, newest first.
func (s *MemoryStore) Recent(_ context.Context, userID string, limit int) ([]models.PaymentOutcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byUser[userID]
	if n := clampLimit(limit); len(ids) > n {
		ids = ids[:n]
	}
	out := make([]models.PaymentOutcome, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.outcomes[id])
	}
	return out, nil
}

// MarkSecretSpent records fingerprint and reports whether it was new.
func (s *MemoryStore) MarkSecretSpent(_ context.Context, fingerprint string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, spent := s.secrets[fingerprint]; spent {
		return false, nil
	}
	s.secrets[fingerprint] = struct{}{}
	return true, nil
}
