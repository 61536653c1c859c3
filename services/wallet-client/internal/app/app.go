package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	libredis "parkease/libs/redis"
	"parkease/services/wallet-client/internal/balance"
	"parkease/services/wallet-client/internal/checkin"
	"parkease/services/wallet-client/internal/clients"
	"parkease/services/wallet-client/internal/config"
	"parkease/services/wallet-client/internal/history"
	"parkease/services/wallet-client/internal/identity"
	"parkease/services/wallet-client/internal/journal"
	"parkease/services/wallet-client/internal/payment"
	"parkease/services/wallet-client/internal/session"
	"parkease/services/wallet-client/internal/topup"
	"parkease/services/wallet-client/internal/ui"
)

// ErrNotSignedIn is returned when sign-in did not end in an authenticated session.
var ErrNotSignedIn = errors.New("not signed in")

const handshakeGrace = 5 * time.Second

// App wires wallet client dependencies.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	Holder   *session.Holder
	Sync     *session.Sync
	Identity *identity.LocalProvider
	Balance  *balance.Reader
	CheckIn  *checkin.Transaction
	TopUp    *topup.Flow
	History  *history.Lister
	Journal  journal.Store

	redis  *goredis.Client
	cancel context.CancelFunc
	done   chan struct{}
}

// New constructs application graph.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, display ui.Display) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config is nil")
	}

	httpClient := clients.NewDefaultHTTPClient(cfg.BackendTimeout())
	base := clients.NewBaseClient(cfg.Backend.BaseURL, httpClient, clients.NewLimiter(cfg.Backend.RateLimitPerSecond))
	ledger := clients.NewLedgerClient(base, logger.Named("ledger"))

	a := &App{cfg: cfg, logger: logger, Holder: session.NewHolder()}

	a.Journal = a.openJournal(ctx)

	if cfg.Payment.PublishableKey == "" {
		logger.Warn("payment publishable key not configured; top-ups will fail at authorization")
	}
	processor := payment.NewStripeProcessor(cfg.Payment.PublishableKey, cfg.Payment.APIURL, httpClient, logger.Named("payment"))

	a.Identity = identity.NewLocalProvider(cfg.Identity.Issuer, cfg.Identity.Secret, cfg.AssertionTTL(), cfg.Account(), logger.Named("identity"))
	a.Sync = session.NewSync(a.Holder, a.Identity, ledger, display, logger.Named("session"))
	a.Balance = balance.NewReader(a.Holder, ledger, display, a.Sync, logger.Named("balance"))
	a.Sync.SetBalanceFetcher(a.Balance)

	a.CheckIn = checkin.NewTransaction(a.Holder, ledger, a.Balance, display, a.Sync, logger.Named("checkin"), checkin.Options{
		Currency: cfg.Currency(),
		Strict:   cfg.App.Strict,
	})
	a.TopUp = topup.NewFlow(a.Holder, ledger, processor, a.Journal, a.Balance, display, a.Sync, logger.Named("topup"), topup.Options{
		Currency: cfg.Currency(),
		Strict:   cfg.App.Strict,
	})
	a.TopUp.EnableCheckout(ledger)
	a.History = history.NewLister(a.Holder, ledger, display, a.Sync, logger.Named("history"), cfg.App.Strict)

	return a, nil
}

func (a *App) openJournal(ctx context.Context) journal.Store {
	if a.cfg.Journal.RedisAddr == "" {
		return journal.NewMemoryStore()
	}
	client, err := libredis.Connect(ctx, libredis.Options{
		Addr:     a.cfg.Journal.RedisAddr,
		Password: a.cfg.Journal.RedisPassword,
		DB:       a.cfg.Journal.RedisDB,
	})
	if err != nil {
		a.logger.Warn("redis journal unavailable, keeping outcomes in memory", zap.String("addr", a.cfg.Journal.RedisAddr), zap.Error(err))
		return journal.NewMemoryStore()
	}
	a.redis = client
	return journal.NewRedisStore(client, a.cfg.JournalTTL())
}

// Run reduces identity events until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	return a.Sync.Run(ctx)
}

// Start runs the session reducer in the background until Close.
func (a *App) Start(ctx context.Context) {
	ctx, a.cancel = context.WithCancel(ctx)
	a.done = make(chan struct{})
	go func() {
		defer close(a.done)
		if err := a.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Error("session reducer stopped", zap.Error(err))
		}
	}()
}

// SignIn performs the interactive sign-in and waits until the session is verified and its
// first balance fetch has finished.
func (a *App) SignIn(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.BackendTimeout()+handshakeGrace)
	defer cancel()

	since := a.Holder.Version()
	if !a.Sync.Login(ctx) {
		return ErrNotSignedIn
	}
	state, err := a.Holder.AwaitAfter(ctx, since, func(s session.State) bool { return s != session.StateVerifying })
	if err != nil {
		return fmt.Errorf("app: wait for sign-in: %w", err)
	}
	if err := a.Sync.Flush(ctx); err != nil {
		return fmt.Errorf("app: wait for sign-in: %w", err)
	}
	if state != session.StateAuthenticated {
		return ErrNotSignedIn
	}
	return nil
}

// SignOut signs out and waits for the session to clear.
func (a *App) SignOut(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, handshakeGrace)
	defer cancel()

	since := a.Holder.Version()
	a.Sync.Logout(ctx)
	if _, err := a.Holder.AwaitAfter(ctx, since, func(s session.State) bool { return s == session.StateSignedOut }); err != nil {
		return fmt.Errorf("app: wait for sign-out: %w", err)
	}
	return a.Sync.Flush(ctx)
}

// Close stops the reducer and releases the redis connection.
func (a *App) Close() {
	if a.cancel != nil {
		a.cancel()
		<-a.done
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("redis close failed", zap.Error(err))
		}
	}
}
