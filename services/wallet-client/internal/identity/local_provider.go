package identity

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"parkease/services/wallet-client/internal/models"
)

var (
	// ErrNotSignedIn is returned when an assertion is requested with nobody signed in.
	ErrNotSignedIn = errors.New("identity: not signed in")
	// ErrNoAccount is returned by SignIn when no user is configured.
	ErrNoAccount = errors.New("identity: no account configured")
)

// Claims is the payload of an identity assertion.
type Claims struct {
	UserID string `json:"uid"`
	Name   string `json:"name,omitempty"`
	Email  string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// LocalProvider signs in a single configured account and mints HS256 assertions for it. The
// backend must share the secret.
type LocalProvider struct {
	issuer    string
	secret    []byte
	expiresIn time.Duration
	account   models.Principal
	logger    *zap.Logger
	events    chan models.IdentityEvent

	mu       sync.Mutex
	signedIn bool
}

// NewLocalProvider returns configured provider.
func NewLocalProvider(issuer, secret string, expiresIn time.Duration, account models.Principal, logger *zap.Logger) *LocalProvider {
	if expiresIn <= 0 {
		expiresIn = time.Hour
	}
	return &LocalProvider{
		issuer:    issuer,
		secret:    []byte(secret),
		expiresIn: expiresIn,
		account:   account,
		logger:    logger,
		events:    make(chan models.IdentityEvent, 4),
	}
}

// Events delivers sign-in state changes in order.
func (p *LocalProvider) Events() <-chan models.IdentityEvent {
	return p.events
}

// SignIn marks the configured account signed in and announces it.
func (p *LocalProvider) SignIn(ctx context.Context) error {
	if p.account.UserID == "" {
		return ErrNoAccount
	}
	if len(p.secret) == 0 {
		return errors.New("identity: signing secret is required")
	}
	p.mu.Lock()
	p.signedIn = true
	p.mu.Unlock()

	principal := p.account
	p.logger.Info("identity signed in", zap.String("user_id", principal.UserID))
	return p.emit(ctx, models.IdentityEvent{Principal: &principal})
}

// SignOut forgets the account and announces it. Signing out twice is harmless.
func (p *LocalProvider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	p.signedIn = false
	p.mu.Unlock()
	return p.emit(ctx, models.IdentityEvent{})
}

// MintAssertion issues a fresh assertion for the signed-in account.
func (p *LocalProvider) MintAssertion(context.Context) (string, error) {
	p.mu.Lock()
	signedIn := p.signedIn
	p.mu.Unlock()
	if !signedIn {
		return "", ErrNotSignedIn
	}

	now := time.Now().UTC()
	claims := Claims{
		UserID: p.account.UserID,
		Name:   p.account.DisplayName,
		Email:  p.account.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    p.issuer,
			Subject:   p.account.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.expiresIn)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(p.secret)
}

// ValidateToken verifies and decodes an assertion minted with the same secret.
func (p *LocalProvider) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("identity: unexpected signing method")
		}
		return p.secret, nil
	}, jwt.WithIssuer(p.issuer))
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("identity: invalid claims")
}

func (p *LocalProvider) emit(ctx context.Context, ev models.IdentityEvent) error {
	select {
	case p.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
