package balance

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"parkease/services/wallet-client/internal/apperr"
	"parkease/services/wallet-client/internal/models"
	"parkease/services/wallet-client/internal/ui"
)

type staticSource struct {
	session *models.Session
}

func (s staticSource) Current() (models.Session, bool) {
	if s.session == nil {
		return models.Session{}, false
	}
	return *s.session, true
}

type fakeLedger struct {
	mu      sync.Mutex
	amounts []string
	errs    []error
	calls   int
}

func (l *fakeLedger) Balance(_ context.Context, s models.Session) (models.WalletBalance, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	i := l.calls
	l.calls++
	if i < len(l.errs) && l.errs[i] != nil {
		return models.WalletBalance{}, l.errs[i]
	}
	return models.WalletBalance{Amount: decimal.RequireFromString(l.amounts[i])}, nil
}

type expireCounter struct{ n int }

func (e *expireCounter) Expire() { e.n++ }

var signedIn = &models.Session{UserID: "user-1", IdentityAssertion: "a"}

func TestFetchBalanceNoSessionIsNoop(t *testing.T) {
	ledger := &fakeLedger{}
	display := ui.NewRecorder()
	reader := NewReader(staticSource{}, ledger, display, nil, zap.NewNop())

	reader.FetchBalance(context.Background())

	assert.Equal(t, 0, ledger.calls)
	assert.Empty(t, display.Balance())
	_, ok := reader.Cached()
	assert.False(t, ok)
}

func TestFetchBalanceFormatsTwoDecimals(t *testing.T) {
	ledger := &fakeLedger{amounts: []string{"50", "50"}}
	display := ui.NewRecorder()
	reader := NewReader(staticSource{session: signedIn}, ledger, display, nil, zap.NewNop())

	reader.FetchBalance(context.Background())
	assert.Equal(t, "50.00", display.Balance())

	// Re-fetching without an intervening mutation shows the same value.
	reader.FetchBalance(context.Background())
	assert.Equal(t, "50.00", display.Balance())
	assert.Equal(t, 2, ledger.calls)

	cached, ok := reader.Cached()
	require.True(t, ok)
	assert.True(t, cached.Amount.Equal(decimal.NewFromInt(50)))
	assert.False(t, cached.FetchedAt.IsZero())
}

func TestFetchBalanceFailureKeepsPreviousValue(t *testing.T) {
	ledger := &fakeLedger{
		amounts: []string{"12.5", ""},
		errs:    []error{nil, apperr.Transport("wallet-balance", 0, errors.New("timeout"))},
	}
	display := ui.NewRecorder()
	reader := NewReader(staticSource{session: signedIn}, ledger, display, nil, zap.NewNop())

	reader.FetchBalance(context.Background())
	reader.FetchBalance(context.Background())

	assert.Equal(t, "12.50", display.Balance())
	assert.Equal(t, 2, ledger.calls, "failures are not retried")
}

func TestFetchBalanceAuthRejectedExpiresSession(t *testing.T) {
	ledger := &fakeLedger{amounts: []string{""}, errs: []error{apperr.ErrAuthRejected}}
	expirer := &expireCounter{}
	reader := NewReader(staticSource{session: signedIn}, ledger, ui.NewRecorder(), expirer, zap.NewNop())

	reader.FetchBalance(context.Background())
	assert.Equal(t, 1, expirer.n)
}
