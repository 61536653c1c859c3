package journal

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"parkease/services/wallet-client/internal/models"
)

// maxPerUser bounds how many outcomes are kept per user.
const maxPerUser = 50

// ErrMissingIntent is returned when an outcome has no intent id to key it by.
var ErrMissingIntent = errors.New("journal: outcome has no intent id")

// Store records terminal top-up outcomes and the client secrets already spent.
type Store interface {
	Save(ctx context.Context, outcome models.PaymentOutcome) error
	Recent(ctx context.Context, userID string, limit int) ([]models.PaymentOutcome, error)
	// MarkSecretSpent returns true only the first time a fingerprint is seen.
	MarkSecretSpent(ctx context.Context, fingerprint string) (bool, error)
}

// Fingerprint hashes a client secret so the secret itself is never stored.
func Fingerprint(clientSecret string) string {
	sum := sha256.Sum256([]byte(clientSecret))
	return hex.EncodeToString(sum[:])
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > maxPerUser {
		return maxPerUser
	}
	return limit
}
