package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"parkease/services/wallet-client/internal/apperr"
	"parkease/services/wallet-client/internal/models"
)

const (
	pathVerifySession = "/api/verify_token"
	pathBalance       = "/api/wallet/balance"
	pathCheckIn       = "/api/check-in"
	pathCreateIntent  = "/api/payment/create-intent"
	pathConfirm       = "/api/payment/confirm"
	pathHistory       = "/api/history"
	pathCheckout      = "/api/create-checkout-session"
	pathConfirmCheck  = "/api/payment/confirm-session"

	idempotencyKeyHeader = "Idempotency-Key"

	msgCheckInDeclined = "Check-in was declined"
)

// ErrMalformedResponse is wrapped into a transport error when a 2xx body cannot be interpreted.
var ErrMalformedResponse = errors.New("malformed response")

// LedgerClient talks to the wallet backend.
type LedgerClient struct {
	base   *BaseClient
	logger *zap.Logger
}

// NewLedgerClient returns client.
func NewLedgerClient(base *BaseClient, logger *zap.Logger) *LedgerClient {
	return &LedgerClient{base: base, logger: logger}
}

// VerifySession hands a freshly minted assertion to the backend. Only the status matters.
func (c *LedgerClient) VerifySession(ctx context.Context, assertion string) error {
	payload := struct {
		Token string `json:"token"`
	}{Token: assertion}

	status, body, err := c.base.DoJSON(ctx, http.MethodPost, pathVerifySession, nil, payload, nil)
	if err != nil {
		return apperr.Transport("verify-session", 0, err)
	}
	return c.check("verify-session", status, body)
}

// Balance reads the authoritative wallet balance for the session's user.
func (c *LedgerClient) Balance(ctx context.Context, session models.Session) (models.WalletBalance, error) {
	query := url.Values{"uid": []string{session.UserID}}
	status, body, err := c.base.Do(ctx, http.MethodGet, pathBalance, query, nil, authHeaders(session))
	if err != nil {
		return models.WalletBalance{}, apperr.Transport("wallet-balance", 0, err)
	}
	if err := c.check("wallet-balance", status, body); err != nil {
		return models.WalletBalance{}, err
	}

	var payload struct {
		Balance *decimal.Decimal `json:"balance"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return models.WalletBalance{}, apperr.Transport("wallet-balance", 0, fmt.Errorf("%w: %v", ErrMalformedResponse, err))
	}
	if payload.Balance == nil || payload.Balance.IsNegative() {
		return models.WalletBalance{}, apperr.Transport("wallet-balance", 0, fmt.Errorf("%w: balance missing or negative", ErrMalformedResponse))
	}
	return models.WalletBalance{Amount: *payload.Balance}, nil
}

// CheckIn submits one check-in. The idempotency key is fresh per call so the backend can
// collapse duplicates of the same click without the client ever resubmitting.
func (c *LedgerClient) CheckIn(ctx context.Context, session models.Session, req models.CheckInRequest) (models.CheckInResult, error) {
	headers := authHeaders(session)
	headers[idempotencyKeyHeader] = uuid.NewString()

	status, body, err := c.base.DoJSON(ctx, http.MethodPost, pathCheckIn, nil, req, headers)
	if err != nil {
		return models.CheckInResult{}, apperr.Transport("check-in", 0, err)
	}
	if authRefused(status) {
		return models.CheckInResult{}, fmt.Errorf("check-in: %w", apperr.ErrAuthRejected)
	}
	if status >= 500 {
		return models.CheckInResult{}, apperr.Transport("check-in", status, nil)
	}

	// The backend answers business failures with success=false, sometimes on a 4xx status.
	var result models.CheckInResult
	var flag struct {
		Success *bool `json:"success"`
	}
	if json.Unmarshal(body, &result) != nil || json.Unmarshal(body, &flag) != nil || flag.Success == nil {
		if status >= 200 && status < 300 {
			return models.CheckInResult{}, apperr.Transport("check-in", 0, ErrMalformedResponse)
		}
		return models.CheckInResult{}, apperr.Transport("check-in", status, nil)
	}
	if !result.Success && strings.TrimSpace(result.Message) == "" {
		result.Message = rejectionReason(body)
		if result.Message == "" {
			result.Message = msgCheckInDeclined
		}
	}
	return result, nil
}

// CreateIntent asks the backend for a new payment intent for amount.
func (c *LedgerClient) CreateIntent(ctx context.Context, session models.Session, amount decimal.Decimal) (models.PaymentIntent, error) {
	payload := struct {
		Amount json.Number `json:"amount"`
	}{Amount: json.Number(amount.String())}

	status, body, err := c.base.DoJSON(ctx, http.MethodPost, pathCreateIntent, nil, payload, authHeaders(session))
	if err != nil {
		return models.PaymentIntent{}, apperr.Transport("payment-create-intent", 0, err)
	}
	if err := c.check("payment-create-intent", status, body); err != nil {
		return models.PaymentIntent{}, err
	}

	var resp struct {
		ClientSecret string `json:"clientSecret"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return models.PaymentIntent{}, apperr.Transport("payment-create-intent", 0, fmt.Errorf("%w: %v", ErrMalformedResponse, err))
	}
	id := models.IntentIDFromSecret(resp.ClientSecret)
	if id == "" {
		return models.PaymentIntent{}, apperr.Transport("payment-create-intent", 0, fmt.Errorf("%w: client secret missing", ErrMalformedResponse))
	}
	return models.PaymentIntent{
		ID:           id,
		ClientSecret: resp.ClientSecret,
		Amount:       amount,
		State:        models.TopUpIntentRequested,
	}, nil
}

// ConfirmPayment reports an authorized intent. The backend verifies it with the processor
// before crediting; a nil error is only its acknowledgment.
func (c *LedgerClient) ConfirmPayment(ctx context.Context, session models.Session, conf models.PaymentConfirmation) error {
	payload := struct {
		UserID          string      `json:"uid"`
		Amount          json.Number `json:"amount"`
		PaymentIntentID string      `json:"payment_intent_id"`
	}{
		UserID:          conf.UserID,
		Amount:          json.Number(conf.Amount.String()),
		PaymentIntentID: conf.PaymentIntentID,
	}
	headers := authHeaders(session)
	headers[idempotencyKeyHeader] = "confirm-" + conf.PaymentIntentID

	status, body, err := c.base.DoJSON(ctx, http.MethodPost, pathConfirm, nil, payload, headers)
	if err != nil {
		return apperr.Transport("payment-confirm", 0, err)
	}
	if err := c.check("payment-confirm", status, body); err != nil {
		return err
	}

	// A 2xx carrying success=false is still a refusal.
	var ack struct {
		Success *bool  `json:"success"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &ack) == nil && ack.Success != nil && !*ack.Success {
		reason := ack.Message
		if reason == "" {
			reason = "Payment could not be confirmed"
		}
		return apperr.Reject(reason)
	}
	return nil
}

// CreateCheckoutSession asks the backend for a hosted checkout page charging amount.
func (c *LedgerClient) CreateCheckoutSession(ctx context.Context, session models.Session, amount decimal.Decimal) (models.CheckoutSession, error) {
	payload := struct {
		Amount json.Number `json:"amount"`
		UserID string      `json:"uid"`
		Email  string      `json:"email,omitempty"`
	}{
		Amount: json.Number(amount.String()),
		UserID: session.UserID,
		Email:  session.Email,
	}

	status, body, err := c.base.DoJSON(ctx, http.MethodPost, pathCheckout, nil, payload, authHeaders(session))
	if err != nil {
		return models.CheckoutSession{}, apperr.Transport("checkout-session", 0, err)
	}
	// This endpoint reports processor failures as 403 with an error field.
	if status == http.StatusForbidden {
		if reason := rejectionReason(body); reason != "" {
			c.logger.Warn("checkout session refused", zap.Int("status", status))
			return models.CheckoutSession{}, apperr.Reject(reason)
		}
	}
	if err := c.check("checkout-session", status, body); err != nil {
		return models.CheckoutSession{}, err
	}

	var resp models.CheckoutSession
	if err := json.Unmarshal(body, &resp); err != nil {
		return models.CheckoutSession{}, apperr.Transport("checkout-session", 0, fmt.Errorf("%w: %v", ErrMalformedResponse, err))
	}
	if resp.ID == "" || resp.URL == "" {
		return models.CheckoutSession{}, apperr.Transport("checkout-session", 0, fmt.Errorf("%w: url or id missing", ErrMalformedResponse))
	}
	resp.Amount = amount
	return resp, nil
}

// ConfirmCheckoutSession asks the backend to credit a paid checkout session. It returns the new
// balance when the backend reports one.
func (c *LedgerClient) ConfirmCheckoutSession(ctx context.Context, session models.Session, sessionID string) (*decimal.Decimal, error) {
	payload := struct {
		SessionID string `json:"session_id"`
	}{SessionID: sessionID}
	headers := authHeaders(session)
	headers[idempotencyKeyHeader] = "confirm-session-" + sessionID

	status, body, err := c.base.DoJSON(ctx, http.MethodPost, pathConfirmCheck, nil, payload, headers)
	if err != nil {
		return nil, apperr.Transport("checkout-confirm", 0, err)
	}
	if err := c.check("checkout-confirm", status, body); err != nil {
		return nil, err
	}

	var ack struct {
		Success    *bool            `json:"success"`
		NewBalance *decimal.Decimal `json:"new_balance"`
		Message    string           `json:"message"`
	}
	if err := json.Unmarshal(body, &ack); err != nil || ack.Success == nil {
		return nil, apperr.Transport("checkout-confirm", 0, ErrMalformedResponse)
	}
	if !*ack.Success {
		reason := strings.TrimSpace(ack.Message)
		if reason == "" {
			reason = "Payment could not be confirmed"
		}
		return nil, apperr.Reject(reason)
	}
	return ack.NewBalance, nil
}

// History lists recent ledger entries for the session's user.
func (c *LedgerClient) History(ctx context.Context, session models.Session) ([]models.LedgerEntry, error) {
	query := url.Values{"uid": []string{session.UserID}}
	status, body, err := c.base.Do(ctx, http.MethodGet, pathHistory, query, nil, authHeaders(session))
	if err != nil {
		return nil, apperr.Transport("wallet-history", 0, err)
	}
	if err := c.check("wallet-history", status, body); err != nil {
		return nil, err
	}

	var payload struct {
		History []models.LedgerEntry `json:"history"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, apperr.Transport("wallet-history", 0, fmt.Errorf("%w: %v", ErrMalformedResponse, err))
	}
	return payload.History, nil
}

func (c *LedgerClient) check(op string, status int, body []byte) error {
	err := classify(op, status, body)
	if err != nil {
		c.logger.Warn("ledger call returned non-success", zap.String("op", op), zap.Int("status", status))
	}
	return err
}

func authHeaders(session models.Session) map[string]string {
	headers := map[string]string{}
	if session.IdentityAssertion != "" {
		headers["Authorization"] = "Bearer " + session.IdentityAssertion
	}
	return headers
}

// classify maps a status code to the error taxonomy. 401 and 403 mean the assertion was
// refused; other 4xx bodies with a message or error field are business rejections; anything
// else non-2xx leaves the outcome unknown.
func classify(op string, status int, body []byte) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case authRefused(status):
		return fmt.Errorf("%s: %w", op, apperr.ErrAuthRejected)
	case status >= 400 && status < 500:
		if reason := rejectionReason(body); reason != "" {
			return apperr.Reject(reason)
		}
	}
	return apperr.Transport(op, status, nil)
}

func authRefused(status int) bool {
	return status == http.StatusUnauthorized || status == http.StatusForbidden
}

func rejectionReason(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if msg := strings.TrimSpace(payload.Message); msg != "" {
		return msg
	}
	return strings.TrimSpace(payload.Error)
}
