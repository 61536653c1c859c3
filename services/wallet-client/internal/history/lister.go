package history

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"parkease/services/wallet-client/internal/apperr"
	"parkease/services/wallet-client/internal/models"
	"parkease/services/wallet-client/internal/session"
	"parkease/services/wallet-client/internal/ui"
)

const msgUnavailable = "Could not load wallet history. Please try again."

// Ledger reads wallet history.
type Ledger interface {
	History(ctx context.Context, s models.Session) ([]models.LedgerEntry, error)
}

// Expirer is told when the backend refuses the session.
type Expirer interface {
	Expire()
}

// Lister reads the signed-in user's wallet history.
type Lister struct {
	source  session.Source
	ledger  Ledger
	display ui.Display
	expirer Expirer
	logger  *zap.Logger
	strict  bool
}

// NewLister returns lister.
func NewLister(source session.Source, ledger Ledger, display ui.Display, expirer Expirer, logger *zap.Logger, strict bool) *Lister {
	return &Lister{source: source, ledger: ledger, display: display, expirer: expirer, logger: logger, strict: strict}
}

// List returns history entries, newest first as the backend orders them.
func (l *Lister) List(ctx context.Context) ([]models.LedgerEntry, error) {
	s, ok := l.source.Current()
	if !ok {
		return nil, apperr.Violation(l.logger, l.strict, "history requested without a session")
	}

	entries, err := l.ledger.History(ctx, s)
	if err != nil {
		l.logger.Warn("history fetch failed", zap.String("user_id", s.UserID), zap.Error(err))
		if errors.Is(err, apperr.ErrAuthRejected) && l.expirer != nil {
			l.expirer.Expire()
		}
		l.display.Notify(ui.Notice{Target: ui.TargetHistory, Level: ui.LevelError, Text: apperr.UserMessage(err, msgUnavailable)})
		return nil, err
	}
	return entries, nil
}

// Totals sums credits and debits.
func Totals(entries []models.LedgerEntry) (credits, debits models.WalletBalance) {
	for _, e := range entries {
		switch e.Type {
		case models.EntryCreditTopUp:
			credits.Amount = credits.Amount.Add(e.Amount.Abs())
		case models.EntryDebitParking:
			debits.Amount = debits.Amount.Add(e.Amount.Abs())
		}
	}
	return credits, debits
}
