package topup

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"parkease/services/wallet-client/internal/apperr"
	"parkease/services/wallet-client/internal/journal"
	"parkease/services/wallet-client/internal/models"
	"parkease/services/wallet-client/internal/ui"
)

const (
	msgCheckoutFailed  = "Could not open the checkout page. Please try again."
	msgMissingCheckout = "Please enter the checkout session id"
	msgCheckoutSpent   = "This checkout was already confirmed. Start a new checkout to pay again."

	// Keeps checkout ids apart from client secrets in the spent set.
	checkoutFingerprintPrefix = "checkout:"
)

// ErrCheckoutDisabled is returned when no checkout backend was wired.
var ErrCheckoutDisabled = errors.New("topup: hosted checkout not configured")

// CheckoutLedger is the backend half of a hosted checkout top-up.
type CheckoutLedger interface {
	CreateCheckoutSession(ctx context.Context, s models.Session, amount decimal.Decimal) (models.CheckoutSession, error)
	ConfirmCheckoutSession(ctx context.Context, s models.Session, sessionID string) (*decimal.Decimal, error)
}

// EnableCheckout wires the hosted checkout variant. Call before the flow is shared.
func (f *Flow) EnableCheckout(ledger CheckoutLedger) {
	f.checkout = ledger
}

// StartCheckout opens a hosted checkout page for amount. The user pays there and then hands the
// session id to ConfirmCheckout.
func (f *Flow) StartCheckout(ctx context.Context, amount decimal.Decimal) (models.CheckoutSession, error) {
	s, ok := f.source.Current()
	if !ok {
		return models.CheckoutSession{}, apperr.Violation(f.logger, f.opts.Strict, "checkout attempted without a session")
	}
	if f.checkout == nil {
		return models.CheckoutSession{}, ErrCheckoutDisabled
	}
	if !amount.IsPositive() {
		f.notify(ui.LevelError, msgInvalidAmount)
		return models.CheckoutSession{}, apperr.Invalid("amount", msgInvalidAmount)
	}

	release, err := f.acquire()
	if err != nil {
		return models.CheckoutSession{}, err
	}
	defer release()

	f.reset()
	f.transition(models.TopUpIntentRequested)

	cs, err := f.checkout.CreateCheckoutSession(ctx, s, amount)
	if err != nil {
		if errors.Is(err, apperr.ErrAuthRejected) && f.expirer != nil {
			f.expirer.Expire()
		}
		f.logger.Warn("create checkout session failed", zap.String("user_id", s.UserID), zap.Error(err))
		f.transition(models.TopUpFailed)
		f.notify(ui.LevelError, apperr.UserMessage(err, msgCheckoutFailed))
		return models.CheckoutSession{}, err
	}
	cs.Amount = amount

	f.mu.Lock()
	f.pending[cs.ID] = amount
	f.mu.Unlock()
	f.setIntent(models.PaymentIntent{ID: cs.ID, Amount: amount})
	// The card is authorized on the hosted page, outside this process.
	f.transition(models.TopUpAuthorizing)

	f.logger.Info("checkout session opened", zap.String("user_id", s.UserID), zap.String("session_id", cs.ID))
	f.notify(ui.LevelInfo, fmt.Sprintf("Pay %s%s at %s then confirm checkout %s", f.opts.Currency, amount.StringFixed(2), cs.URL, cs.ID))
	return cs, nil
}

// ConfirmCheckout asks the backend to credit a paid checkout session. Each session id is
// confirmed at most once.
func (f *Flow) ConfirmCheckout(ctx context.Context, sessionID string) (models.PaymentOutcome, error) {
	s, ok := f.source.Current()
	if !ok {
		return models.PaymentOutcome{}, apperr.Violation(f.logger, f.opts.Strict, "checkout confirmed without a session")
	}
	if f.checkout == nil {
		return models.PaymentOutcome{}, ErrCheckoutDisabled
	}
	id := strings.TrimSpace(sessionID)
	if id == "" {
		f.notify(ui.LevelError, msgMissingCheckout)
		return models.PaymentOutcome{}, apperr.Invalid("session_id", msgMissingCheckout)
	}

	release, err := f.acquire()
	if err != nil {
		return models.PaymentOutcome{}, err
	}
	defer release()

	// The amount is only known when the checkout was opened by this process.
	f.mu.Lock()
	amount := f.pending[id]
	delete(f.pending, id)
	f.mu.Unlock()

	f.reset()
	intent := models.PaymentIntent{ID: id, Amount: amount}
	f.setIntent(intent)
	f.transition(models.TopUpConfirming)

	first, err := f.journal.MarkSecretSpent(ctx, journal.Fingerprint(checkoutFingerprintPrefix+id))
	if err != nil {
		f.logger.Warn("journal unavailable, checkout not recorded", zap.String("session_id", id), zap.Error(err))
	} else if !first {
		return f.fail(ctx, s, amount, &intent, apperr.Reject(msgCheckoutSpent), msgCheckoutSpent)
	}

	newBalance, err := f.checkout.ConfirmCheckoutSession(ctx, s, id)
	if err != nil {
		if errors.Is(err, apperr.ErrAuthRejected) && f.expirer != nil {
			f.expirer.Expire()
		}
		f.logger.Error("confirm checkout failed", zap.String("session_id", id), zap.Error(err))
		return f.fail(ctx, s, amount, &intent, err, apperr.UserMessage(err, msgConfirmUnknown))
	}

	f.transition(models.TopUpSettled)
	f.logger.Info("checkout settled", zap.String("user_id", s.UserID), zap.String("session_id", id))
	if newBalance != nil {
		f.display.ShowBalance(newBalance.StringFixed(2))
	}
	f.balance.FetchBalance(ctx)

	text := "Wallet topped up"
	if amount.IsPositive() {
		text = fmt.Sprintf("Wallet topped up with %s%s", f.opts.Currency, amount.StringFixed(2))
	}
	f.notify(ui.LevelSuccess, text)

	outcome := f.outcome(s, amount, &intent, true, "")
	f.record(ctx, outcome)
	return outcome, nil
}
