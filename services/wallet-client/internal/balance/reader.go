package balance

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"parkease/services/wallet-client/internal/apperr"
	"parkease/services/wallet-client/internal/models"
	"parkease/services/wallet-client/internal/session"
	"parkease/services/wallet-client/internal/ui"
)

// Ledger is the backend read used by the reader.
type Ledger interface {
	Balance(ctx context.Context, s models.Session) (models.WalletBalance, error)
}

// Expirer is told when the backend refuses the session.
type Expirer interface {
	Expire()
}

// Reader keeps the last known balance and refreshes it on demand.
type Reader struct {
	source  session.Source
	ledger  Ledger
	display ui.Display
	expirer Expirer
	logger  *zap.Logger

	mu     sync.RWMutex
	cached *models.WalletBalance
}

// NewReader builds a balance reader.
func NewReader(source session.Source, ledger Ledger, display ui.Display, expirer Expirer, logger *zap.Logger) *Reader {
	return &Reader{
		source:  source,
		ledger:  ledger,
		display: display,
		expirer: expirer,
		logger:  logger,
	}
}

// FetchBalance refreshes and publishes the balance. Without a session it does nothing; on
// failure the previously displayed value stays and nothing is retried.
func (r *Reader) FetchBalance(ctx context.Context) {
	s, ok := r.source.Current()
	if !ok {
		return
	}

	balance, err := r.ledger.Balance(ctx, s)
	if err != nil {
		r.logger.Warn("balance fetch failed", zap.String("user_id", s.UserID), zap.Error(err))
		if errors.Is(err, apperr.ErrAuthRejected) && r.expirer != nil {
			r.expirer.Expire()
		}
		return
	}
	balance.FetchedAt = time.Now().UTC()

	r.mu.Lock()
	r.cached = &balance
	r.mu.Unlock()

	r.display.ShowBalance(balance.Formatted())
}

// Cached returns the last successfully fetched balance.
func (r *Reader) Cached() (models.WalletBalance, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.cached == nil {
		return models.WalletBalance{}, false
	}
	return *r.cached, true
}
