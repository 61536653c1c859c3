package topup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"parkease/services/wallet-client/internal/apperr"
	"parkease/services/wallet-client/internal/journal"
	"parkease/services/wallet-client/internal/models"
	"parkease/services/wallet-client/internal/payment"
	"parkease/services/wallet-client/internal/session"
	"parkease/services/wallet-client/internal/ui"
)

const (
	msgInvalidAmount  = "Please enter an amount greater than zero"
	msgIntentFailed   = "Could not start the payment. Please try again."
	msgAuthorizeError = "The card could not be authorized. No payment was made."
	msgAuthPending    = "The card payment is still processing. Check your balance shortly before trying again."
	msgConfirmUnknown = "Payment authorized but the wallet update could not be confirmed. Check your balance shortly."
	msgSignedOut      = "You were signed out before the payment finished."
)

// Ledger is the backend half of the payment exchange.
type Ledger interface {
	CreateIntent(ctx context.Context, s models.Session, amount decimal.Decimal) (models.PaymentIntent, error)
	ConfirmPayment(ctx context.Context, s models.Session, conf models.PaymentConfirmation) error
}

// BalanceRefresher reconciles the displayed balance after a credit.
type BalanceRefresher interface {
	FetchBalance(ctx context.Context)
}

// Expirer is told when the backend refuses the session.
type Expirer interface {
	Expire()
}

// Options tune the flow.
type Options struct {
	Currency string
	Strict   bool
}

// Flow drives one top-up at a time through intent, authorization and confirmation.
type Flow struct {
	source    session.Source
	ledger    Ledger
	processor payment.Processor
	journal   journal.Store
	balance   BalanceRefresher
	display   ui.Display
	expirer   Expirer
	logger    *zap.Logger
	opts      Options

	checkout CheckoutLedger
	inFlight atomic.Bool

	mu      sync.RWMutex
	state   models.TopUpState
	intent  *models.PaymentIntent
	pending map[string]decimal.Decimal
}

// NewFlow builds the top-up saga.
func NewFlow(source session.Source, ledger Ledger, processor payment.Processor, store journal.Store, balance BalanceRefresher, display ui.Display, expirer Expirer, logger *zap.Logger, opts Options) *Flow {
	return &Flow{
		source:    source,
		ledger:    ledger,
		processor: processor,
		journal:   store,
		balance:   balance,
		display:   display,
		expirer:   expirer,
		logger:    logger,
		opts:      opts,
		state:     models.TopUpIdle,
		pending:   make(map[string]decimal.Decimal),
	}
}

// ParseAmount reads a user-entered amount.
func ParseAmount(raw string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil || !amount.IsPositive() {
		return decimal.Zero, apperr.Invalid("amount", msgInvalidAmount)
	}
	return amount, nil
}

// State reports the phase of the current or most recent attempt.
func (f *Flow) State() models.TopUpState {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.state
}

// Intent returns the intent of the current or most recent attempt.
func (f *Flow) Intent() (models.PaymentIntent, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.intent == nil {
		return models.PaymentIntent{}, false
	}
	return *f.intent, true
}

// Run performs one top-up attempt. Every call starts from Idle and requests a new intent.
func (f *Flow) Run(ctx context.Context, amount decimal.Decimal, card payment.CardInput) (models.PaymentOutcome, error) {
	s, ok := f.source.Current()
	if !ok {
		return models.PaymentOutcome{}, apperr.Violation(f.logger, f.opts.Strict, "top-up attempted without a session")
	}
	if !amount.IsPositive() {
		f.notify(ui.LevelError, msgInvalidAmount)
		return models.PaymentOutcome{}, apperr.Invalid("amount", msgInvalidAmount)
	}

	release, err := f.acquire()
	if err != nil {
		return models.PaymentOutcome{}, err
	}
	defer release()

	f.reset()
	f.transition(models.TopUpIntentRequested)

	intent, err := f.ledger.CreateIntent(ctx, s, amount)
	if err != nil {
		f.logger.Warn("create intent failed", zap.String("user_id", s.UserID), zap.Error(err))
		return f.fail(ctx, s, amount, nil, err, apperr.UserMessage(err, msgIntentFailed))
	}
	f.setIntent(intent)

	first, err := f.journal.MarkSecretSpent(ctx, journal.Fingerprint(intent.ClientSecret))
	if err != nil {
		f.logger.Warn("journal unavailable, secret not recorded", zap.String("intent_id", intent.ID), zap.Error(err))
	} else if !first {
		verr := apperr.Violation(f.logger, f.opts.Strict, "client secret issued twice", zap.String("intent_id", intent.ID))
		return f.fail(ctx, s, amount, &intent, verr, msgIntentFailed)
	}

	f.transition(models.TopUpAuthorizing)
	auth, err := f.processor.Authorize(ctx, intent.ClientSecret, card)
	if err != nil {
		var decline *payment.DeclineError
		if errors.As(err, &decline) {
			return f.fail(ctx, s, amount, &intent, errors.Join(apperr.Reject(decline.Message), decline), decline.Message)
		}
		if errors.Is(err, payment.ErrMissingPaymentMethod) {
			return f.fail(ctx, s, amount, &intent, apperr.Invalid("card", "Please enter card details"), "Please enter card details")
		}
		if errors.Is(err, payment.ErrAuthorizationPending) {
			f.logger.Warn("authorization pending, not confirming", zap.String("intent_id", intent.ID))
			return f.fail(ctx, s, amount, &intent, err, msgAuthPending)
		}
		f.logger.Error("authorization failed", zap.String("intent_id", intent.ID), zap.Error(err))
		return f.fail(ctx, s, amount, &intent, err, msgAuthorizeError)
	}
	if auth.IntentID != intent.ID {
		verr := apperr.Violation(f.logger, f.opts.Strict, "authorization for a different intent",
			zap.String("intent_id", intent.ID), zap.String("authorized_id", auth.IntentID))
		return f.fail(ctx, s, amount, &intent, verr, msgAuthorizeError)
	}

	// The session may have ended while the processor was busy.
	if current, ok := f.source.Current(); !ok || current.UserID != s.UserID {
		return f.fail(ctx, s, amount, &intent, apperr.ErrAuthRejected, msgSignedOut)
	}

	f.transition(models.TopUpConfirming)
	err = f.ledger.ConfirmPayment(ctx, s, models.PaymentConfirmation{
		UserID:          s.UserID,
		Amount:          amount,
		PaymentIntentID: intent.ID,
	})
	if err != nil {
		if errors.Is(err, apperr.ErrAuthRejected) && f.expirer != nil {
			f.expirer.Expire()
		}
		f.logger.Error("confirm payment failed", zap.String("intent_id", intent.ID), zap.Error(err))
		return f.fail(ctx, s, amount, &intent, err, apperr.UserMessage(err, msgConfirmUnknown))
	}

	f.transition(models.TopUpSettled)
	f.logger.Info("top-up settled", zap.String("user_id", s.UserID), zap.String("intent_id", intent.ID), zap.String("amount", amount.StringFixed(2)))
	f.balance.FetchBalance(ctx)
	f.notify(ui.LevelSuccess, fmt.Sprintf("Wallet topped up with %s%s", f.opts.Currency, amount.StringFixed(2)))

	outcome := f.outcome(s, amount, &intent, true, "")
	f.record(ctx, outcome)
	return outcome, nil
}

// acquire claims the top-up control for one call. The returned func gives it back.
func (f *Flow) acquire() (func(), error) {
	if !f.inFlight.CompareAndSwap(false, true) {
		f.notify(ui.LevelError, apperr.UserMessage(apperr.ErrBusy, ""))
		return nil, apperr.ErrBusy
	}
	f.display.SetEnabled(ui.ControlTopUp, false)
	return func() {
		f.inFlight.Store(false)
		f.display.SetEnabled(ui.ControlTopUp, true)
	}, nil
}

func (f *Flow) fail(ctx context.Context, s models.Session, amount decimal.Decimal, intent *models.PaymentIntent, err error, reason string) (models.PaymentOutcome, error) {
	f.transition(models.TopUpFailed)
	f.notify(ui.LevelError, reason)

	outcome := f.outcome(s, amount, intent, false, reason)
	if intent != nil {
		f.record(ctx, outcome)
	}
	return outcome, err
}

func (f *Flow) outcome(s models.Session, amount decimal.Decimal, intent *models.PaymentIntent, success bool, reason string) models.PaymentOutcome {
	out := models.PaymentOutcome{
		UserID:     s.UserID,
		Amount:     amount,
		Success:    success,
		Reason:     reason,
		State:      f.State(),
		FinishedAt: time.Now().UTC(),
	}
	if intent != nil {
		out.IntentID = intent.ID
	}
	return out
}

func (f *Flow) record(ctx context.Context, outcome models.PaymentOutcome) {
	if err := f.journal.Save(ctx, outcome); err != nil {
		f.logger.Warn("journal save failed", zap.String("intent_id", outcome.IntentID), zap.Error(err))
	}
}

func (f *Flow) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = models.TopUpIdle
	f.intent = nil
}

func (f *Flow) setIntent(intent models.PaymentIntent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.intent = &intent
}

func (f *Flow) transition(next models.TopUpState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = next
	if f.intent != nil {
		f.intent.State = next
	}
	f.logger.Debug("top-up transition", zap.String("state", string(next)))
}

func (f *Flow) notify(level ui.Level, text string) {
	f.display.Notify(ui.Notice{Target: ui.TargetPayment, Level: level, Text: text})
}
