package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TopUpState enumerates the phases of one top-up attempt.
type TopUpState string

const (
	TopUpIdle            TopUpState = "idle"
	TopUpIntentRequested TopUpState = "intent_requested"
	TopUpAuthorizing     TopUpState = "authorizing"
	TopUpConfirming      TopUpState = "confirming"
	TopUpSettled         TopUpState = "settled"
	TopUpFailed          TopUpState = "failed"
)

// Terminal reports whether no further transition is possible for the attempt.
func (s TopUpState) Terminal() bool {
	return s == TopUpSettled || s == TopUpFailed
}

const clientSecretMarker = "_secret_"

// PaymentIntent is the backend-issued handle for one prospective top-up.
type PaymentIntent struct {
	ID           string
	ClientSecret string
	Amount       decimal.Decimal
	State        TopUpState
}

// IntentIDFromSecret extracts the intent id from a client secret of the form
// <intentId>_secret_<nonce>. It returns "" when the secret has another shape.
func IntentIDFromSecret(secret string) string {
	idx := strings.Index(secret, clientSecretMarker)
	if idx <= 0 {
		return ""
	}
	return secret[:idx]
}

// CheckoutSession is a hosted payment page the user completes in a browser. Its ID stands in
// for the intent when the payment is confirmed.
type CheckoutSession struct {
	ID     string          `json:"id"`
	URL    string          `json:"url"`
	Amount decimal.Decimal `json:"-"`
}

// PaymentConfirmation is posted after a successful processor authorization.
type PaymentConfirmation struct {
	UserID          string
	Amount          decimal.Decimal
	PaymentIntentID string
}

// PaymentOutcome is the terminal record of one top-up attempt.
type PaymentOutcome struct {
	IntentID   string          `json:"intent_id"`
	UserID     string          `json:"user_id"`
	Amount     decimal.Decimal `json:"amount"`
	Success    bool            `json:"success"`
	Reason     string          `json:"reason,omitempty"`
	State      TopUpState      `json:"state"`
	FinishedAt time.Time       `json:"finished_at"`
}
