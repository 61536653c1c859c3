package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/paymentintent"
	"go.uber.org/zap"

	"parkease/services/wallet-client/internal/apperr"
	"parkease/services/wallet-client/internal/models"
)

// StripeProcessor confirms payment intents with the publishable key and client secret, the way
// a browser card element would.
type StripeProcessor struct {
	intents *paymentintent.Client
	logger  *zap.Logger
}

// NewStripeProcessor builds a processor. apiURL overrides the Stripe endpoint; leave it empty in
// production.
func NewStripeProcessor(publishableKey, apiURL string, httpClient *http.Client, logger *zap.Logger) *StripeProcessor {
	cfg := &stripe.BackendConfig{
		HTTPClient:        httpClient,
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	}
	if apiURL != "" {
		cfg.URL = stripe.String(strings.TrimRight(apiURL, "/"))
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, cfg)
	return &StripeProcessor{
		intents: &paymentintent.Client{B: backend, Key: publishableKey},
		logger:  logger,
	}
}

// Authorize confirms the intent named by clientSecret with the tokenized card.
func (p *StripeProcessor) Authorize(ctx context.Context, clientSecret string, card CardInput) (Authorization, error) {
	if card.PaymentMethod == "" {
		return Authorization{}, ErrMissingPaymentMethod
	}
	intentID := models.IntentIDFromSecret(clientSecret)
	if intentID == "" {
		return Authorization{}, errors.New("payment: malformed client secret")
	}

	params := &stripe.PaymentIntentConfirmParams{
		PaymentMethod: stripe.String(card.PaymentMethod),
	}
	params.Context = ctx
	params.AddExtra("client_secret", clientSecret)

	pi, err := p.intents.Confirm(intentID, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Type == stripe.ErrorTypeCard {
			p.logger.Info("card declined",
				zap.String("intent_id", intentID),
				zap.String("code", string(stripeErr.Code)),
				zap.String("decline_code", string(stripeErr.DeclineCode)),
			)
			return Authorization{}, &DeclineError{
				Code:        string(stripeErr.Code),
				DeclineCode: string(stripeErr.DeclineCode),
				Message:     stripeErr.Msg,
			}
		}
		p.logger.Error("stripe confirm failed", zap.String("intent_id", intentID), zap.Error(err))
		return Authorization{}, fmt.Errorf("payment: confirm intent: %w", err)
	}

	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded, stripe.PaymentIntentStatusRequiresCapture:
		return Authorization{IntentID: pi.ID, Status: string(pi.Status)}, nil
	case stripe.PaymentIntentStatusRequiresAction:
		return Authorization{}, &DeclineError{Code: "authentication_required", Message: "Additional authentication is required for this card."}
	case stripe.PaymentIntentStatusProcessing:
		p.logger.Warn("payment still processing", zap.String("intent_id", pi.ID))
		return Authorization{}, apperr.Transport("payment-authorize", 0, ErrAuthorizationPending)
	default:
		msg := "The payment could not be completed."
		if pi.LastPaymentError != nil && pi.LastPaymentError.Msg != "" {
			msg = pi.LastPaymentError.Msg
		}
		return Authorization{}, &DeclineError{Code: string(pi.Status), Message: msg}
	}
}
