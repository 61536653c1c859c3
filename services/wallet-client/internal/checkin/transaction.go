package checkin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"parkease/services/wallet-client/internal/apperr"
	"parkease/services/wallet-client/internal/models"
	"parkease/services/wallet-client/internal/session"
	"parkease/services/wallet-client/internal/ui"
)

const (
	msgEmptyVehicle  = "Please enter vehicle number"
	msgUnknownResult = "Could not confirm the check-in. Check your balance before trying again."
)

// Ledger submits check-ins to the backend.
type Ledger interface {
	CheckIn(ctx context.Context, s models.Session, req models.CheckInRequest) (models.CheckInResult, error)
}

// BalanceRefresher reconciles the displayed balance after a debit.
type BalanceRefresher interface {
	FetchBalance(ctx context.Context)
}

// Expirer is told when the backend refuses the session.
type Expirer interface {
	Expire()
}

// Options tune the transaction.
type Options struct {
	Currency string
	Strict   bool
}

// Transaction submits check-ins. One submission per call; never resubmitted.
type Transaction struct {
	source   session.Source
	ledger   Ledger
	balance  BalanceRefresher
	display  ui.Display
	expirer  Expirer
	logger   *zap.Logger
	opts     Options
	inFlight atomic.Bool
}

// NewTransaction builds the check-in component.
func NewTransaction(source session.Source, ledger Ledger, balance BalanceRefresher, display ui.Display, expirer Expirer, logger *zap.Logger, opts Options) *Transaction {
	return &Transaction{
		source:  source,
		ledger:  ledger,
		balance: balance,
		display: display,
		expirer: expirer,
		logger:  logger,
		opts:    opts,
	}
}

// CheckIn debits the wallet for vehicle. The returned error follows the apperr taxonomy; the
// user-facing message has already been shown when it returns.
func (t *Transaction) CheckIn(ctx context.Context, vehicle string) (models.CheckInResult, error) {
	s, ok := t.source.Current()
	if !ok {
		return models.CheckInResult{}, apperr.Violation(t.logger, t.opts.Strict, "check-in attempted without a session")
	}

	vehicle = strings.TrimSpace(vehicle)
	if vehicle == "" {
		err := apperr.Invalid("vehicle", msgEmptyVehicle)
		t.notify(ui.LevelError, msgEmptyVehicle)
		return models.CheckInResult{}, err
	}

	if !t.inFlight.CompareAndSwap(false, true) {
		t.notify(ui.LevelError, apperr.UserMessage(apperr.ErrBusy, ""))
		return models.CheckInResult{}, apperr.ErrBusy
	}
	t.display.SetEnabled(ui.ControlCheckIn, false)
	defer func() {
		t.inFlight.Store(false)
		t.display.SetEnabled(ui.ControlCheckIn, true)
	}()

	result, err := t.ledger.CheckIn(ctx, s, models.CheckInRequest{UserID: s.UserID, Vehicle: vehicle})
	if err != nil {
		return models.CheckInResult{}, t.fail(s, vehicle, err)
	}

	if !result.Success {
		t.logger.Info("check-in declined", zap.String("user_id", s.UserID), zap.String("vehicle", vehicle), zap.String("reason", result.Message))
		t.notify(ui.LevelError, result.Message)
		return result, apperr.Reject(result.Message)
	}

	t.logger.Info("check-in accepted", zap.String("user_id", s.UserID), zap.String("vehicle", vehicle))
	if result.NewBalance != nil {
		formatted := result.NewBalance.StringFixed(2)
		t.display.ShowBalance(formatted)
		t.notify(ui.LevelSuccess, fmt.Sprintf("Checked in! New Balance: %s%s", t.opts.Currency, formatted))
	} else {
		t.notify(ui.LevelSuccess, "Checked in!")
	}
	t.balance.FetchBalance(ctx)
	return result, nil
}

func (t *Transaction) fail(s models.Session, vehicle string, err error) error {
	if errors.Is(err, apperr.ErrAuthRejected) {
		t.logger.Warn("check-in refused session", zap.String("user_id", s.UserID))
		t.notify(ui.LevelError, apperr.UserMessage(err, ""))
		if t.expirer != nil {
			t.expirer.Expire()
		}
		return err
	}
	// The debit may or may not have happened; only a balance fetch can tell.
	t.logger.Error("check-in outcome unknown", zap.String("user_id", s.UserID), zap.String("vehicle", vehicle), zap.Error(err))
	t.notify(ui.LevelError, apperr.UserMessage(err, msgUnknownResult))
	return err
}

func (t *Transaction) notify(level ui.Level, text string) {
	t.display.Notify(ui.Notice{Target: ui.TargetCheckIn, Level: level, Text: text})
}
