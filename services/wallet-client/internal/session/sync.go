package session

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"parkease/services/wallet-client/internal/apperr"
	"parkease/services/wallet-client/internal/models"
	"parkease/services/wallet-client/internal/ui"
)

// IdentityProvider is the sign-in surface SessionSync consumes.
type IdentityProvider interface {
	Events() <-chan models.IdentityEvent
	MintAssertion(ctx context.Context) (string, error)
	SignIn(ctx context.Context) error
	SignOut(ctx context.Context) error
}

// Verifier hands assertions to the backend.
type Verifier interface {
	VerifySession(ctx context.Context, assertion string) error
}

// BalanceFetcher is refreshed once per sign-in.
type BalanceFetcher interface {
	FetchBalance(ctx context.Context)
}

// Sync reduces identity events into the session held by Holder. Run must be the only goroutine
// that writes the holder.
type Sync struct {
	holder   *Holder
	provider IdentityProvider
	verifier Verifier
	display  ui.Display
	logger   *zap.Logger
	balance  BalanceFetcher
	expired  chan struct{}
	barrier  chan chan struct{}
}

// NewSync builds the session reducer.
func NewSync(holder *Holder, provider IdentityProvider, verifier Verifier, display ui.Display, logger *zap.Logger) *Sync {
	return &Sync{
		holder:   holder,
		provider: provider,
		verifier: verifier,
		display:  display,
		logger:   logger,
		expired:  make(chan struct{}, 1),
		barrier:  make(chan chan struct{}),
	}
}

// SetBalanceFetcher wires the reader refreshed on sign-in. The reader depends on the holder,
// so it is attached after construction.
func (s *Sync) SetBalanceFetcher(f BalanceFetcher) {
	s.balance = f
}

// Run consumes identity events until ctx is done or the provider closes its channel.
func (s *Sync) Run(ctx context.Context) error {
	events := s.provider.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			s.handle(ctx, ev)
		case <-s.expired:
			s.expire()
		case reply := <-s.barrier:
			close(reply)
		}
	}
}

// Login starts the interactive handshake. Errors are shown, never returned; the result only
// tells the caller whether an identity event is on its way.
func (s *Sync) Login(ctx context.Context) bool {
	if err := s.provider.SignIn(ctx); err != nil {
		s.logger.Warn("identity sign-in failed", zap.Error(err))
		s.display.Notify(ui.Notice{Target: ui.TargetAuth, Level: ui.LevelError, Text: err.Error()})
		return false
	}
	return true
}

// Logout clears the principal with the provider and navigates to the entry point. Calling it
// while signed out only repeats the navigation.
func (s *Sync) Logout(ctx context.Context) {
	if err := s.provider.SignOut(ctx); err != nil {
		s.logger.Warn("identity sign-out failed", zap.Error(err))
		s.display.Notify(ui.Notice{Target: ui.TargetAuth, Level: ui.LevelError, Text: "Could not sign out. Please try again."})
		return
	}
	s.display.RedirectToEntry()
}

// Expire is called by components whose backend call was refused with an auth error. The
// session is cleared by Run, keeping a single writer.
func (s *Sync) Expire() {
	select {
	case s.expired <- struct{}{}:
	default:
	}
}

// Flush waits until Run is between events, so a handler already in progress has returned.
func (s *Sync) Flush(ctx context.Context) error {
	reply := make(chan struct{})
	select {
	case s.barrier <- reply:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-reply:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Sync) handle(ctx context.Context, ev models.IdentityEvent) {
	if ev.Principal == nil {
		s.signOut()
		return
	}

	principal := *ev.Principal
	prev := s.holder.snapshot()
	s.holder.set(StateVerifying, nil)

	assertion, err := s.provider.MintAssertion(ctx)
	if err != nil {
		s.logger.Warn("identity assertion mint failed", zap.String("user_id", principal.UserID), zap.Error(err))
		s.restore(prev, principal)
		return
	}

	if err := s.verifier.VerifySession(ctx, assertion); err != nil {
		if errors.Is(err, apperr.ErrAuthRejected) {
			s.logger.Warn("identity assertion rejected", zap.String("user_id", principal.UserID))
			s.holder.set(StateSignedOut, nil)
			s.display.Notify(ui.Notice{Target: ui.TargetAuth, Level: ui.LevelError, Text: apperr.UserMessage(err, "")})
			s.display.RedirectToEntry()
			return
		}
		s.logger.Error("session verification failed", zap.String("user_id", principal.UserID), zap.Error(err))
		s.restore(prev, principal)
		return
	}

	s.holder.set(StateAuthenticated, &models.Session{
		UserID:            principal.UserID,
		DisplayName:       principal.Label(),
		Email:             principal.Email,
		IdentityAssertion: assertion,
	})
	s.logger.Info("session verified", zap.String("user_id", principal.UserID))
	s.display.ShowUser(principal.Label())

	firstForUser := prev.state != StateAuthenticated || prev.session == nil || prev.session.UserID != principal.UserID
	if firstForUser && s.balance != nil {
		s.balance.FetchBalance(ctx)
	}
}

// restore puts back the pre-verification state when the backend could not be reached. A
// session for a different user is never restored.
func (s *Sync) restore(prev snapshot, principal models.Principal) {
	if prev.session != nil && prev.session.UserID != principal.UserID {
		s.holder.set(StateSignedOut, nil)
		return
	}
	s.holder.set(prev.state, prev.session)
}

func (s *Sync) signOut() {
	prev := s.holder.snapshot()
	s.holder.set(StateSignedOut, nil)
	if prev.session != nil {
		s.logger.Info("session cleared", zap.String("user_id", prev.session.UserID))
	}
	s.display.RedirectToEntry()
}

func (s *Sync) expire() {
	prev := s.holder.snapshot()
	if prev.state != StateAuthenticated {
		return
	}
	s.holder.set(StateSignedOut, nil)
	s.logger.Warn("session expired by backend", zap.String("user_id", prev.session.UserID))
	s.display.Notify(ui.Notice{Target: ui.TargetAuth, Level: ui.LevelError, Text: apperr.UserMessage(apperr.ErrAuthRejected, "")})
	s.display.RedirectToEntry()
}
