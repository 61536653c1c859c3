package payment

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrMissingPaymentMethod is returned when no tokenized card was collected.
	ErrMissingPaymentMethod = errors.New("payment: payment method is required")
	// ErrAuthorizationPending means the processor accepted the card but has not settled the
	// charge yet. Funds may still move.
	ErrAuthorizationPending = errors.New("payment: authorization still processing")
)

// CardInput is the opaque output of the processor's secure card surface. Raw card data never
// reaches this package.
type CardInput struct {
	PaymentMethod string
}

// Authorization reports a successful processor authorization for one intent.
type Authorization struct {
	IntentID string
	Status   string
}

// DeclineError carries the processor's reason for refusing a card.
type DeclineError struct {
	Code        string
	DeclineCode string
	Message     string
}

func (e *DeclineError) Error() string {
	if e.DeclineCode != "" {
		return fmt.Sprintf("payment declined (%s/%s): %s", e.Code, e.DeclineCode, e.Message)
	}
	return fmt.Sprintf("payment declined (%s): %s", e.Code, e.Message)
}

// Processor authorizes a card against a backend-issued client secret.
type Processor interface {
	Authorize(ctx context.Context, clientSecret string, card CardInput) (Authorization, error)
}
