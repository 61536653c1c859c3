package session

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"parkease/services/wallet-client/internal/apperr"
	"parkease/services/wallet-client/internal/clients"
	"parkease/services/wallet-client/internal/models"
	"parkease/services/wallet-client/internal/ui"
)

type fakeProvider struct {
	mu        sync.Mutex
	events    chan models.IdentityEvent
	principal models.Principal
	mints     int
	mintErr   error
	signInErr error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		events:    make(chan models.IdentityEvent, 8),
		principal: models.Principal{UserID: "user-1", DisplayName: "Asha", Email: "asha@example.com"},
	}
}

func (p *fakeProvider) Events() <-chan models.IdentityEvent { return p.events }

func (p *fakeProvider) MintAssertion(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.mintErr != nil {
		return "", p.mintErr
	}
	p.mints++
	return "assertion-" + string(rune('0'+p.mints)), nil
}

func (p *fakeProvider) SignIn(context.Context) error {
	if p.signInErr != nil {
		return p.signInErr
	}
	principal := p.principal
	p.events <- models.IdentityEvent{Principal: &principal}
	return nil
}

func (p *fakeProvider) SignOut(context.Context) error {
	p.events <- models.IdentityEvent{}
	return nil
}

type fakeVerifier struct {
	mu    sync.Mutex
	err   error
	calls []string
}

func (v *fakeVerifier) VerifySession(_ context.Context, assertion string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls = append(v.calls, assertion)
	return v.err
}

func (v *fakeVerifier) setErr(err error) {
	v.mu.Lock()
	v.err = err
	v.mu.Unlock()
}

type countingFetcher struct {
	mu    sync.Mutex
	calls int
}

func (f *countingFetcher) FetchBalance(context.Context) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
}

func (f *countingFetcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type harness struct {
	holder   *Holder
	provider *fakeProvider
	verifier *fakeVerifier
	fetcher  *countingFetcher
	display  *ui.Recorder
	sync     *Sync
}

func startHarness(t *testing.T) *harness {
	t.Helper()
	return startHarnessWith(t, nil)
}

// startHarnessWith runs the reducer against verifier, or a fakeVerifier when nil.
func startHarnessWith(t *testing.T, verifier Verifier) *harness {
	t.Helper()
	h := &harness{
		holder:   NewHolder(),
		provider: newFakeProvider(),
		verifier: &fakeVerifier{},
		fetcher:  &countingFetcher{},
		display:  ui.NewRecorder(),
	}
	if verifier == nil {
		verifier = h.verifier
	}
	h.sync = NewSync(h.holder, h.provider, verifier, h.display, zap.NewNop())
	h.sync.SetBalanceFetcher(h.fetcher)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = h.sync.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return h
}

func (h *harness) settle(t *testing.T, since uint64) State {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	state, err := h.holder.AwaitAfter(ctx, since, func(s State) bool { return s != StateVerifying })
	require.NoError(t, err)
	return state
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	assert.Eventually(t, cond, time.Second, 5*time.Millisecond)
}

func TestSignInVerifiesAndFetchesBalanceOnce(t *testing.T) {
	h := startHarness(t)

	v := h.holder.Version()
	h.sync.Login(context.Background())
	require.Equal(t, StateAuthenticated, h.settle(t, v))

	session, ok := h.holder.Current()
	require.True(t, ok)
	assert.Equal(t, "user-1", session.UserID)
	assert.Equal(t, "Asha", session.DisplayName)
	assert.Equal(t, "assertion-1", session.IdentityAssertion)
	assert.Equal(t, []string{"assertion-1"}, h.verifier.calls)
	eventually(t, func() bool { return h.display.User() == "Asha" && h.fetcher.count() == 1 })

	// A repeated sign-in event for the same user re-verifies without another fetch.
	v = h.holder.Version()
	h.sync.Login(context.Background())
	require.Equal(t, StateAuthenticated, h.settle(t, v))
	session, _ = h.holder.Current()
	assert.Equal(t, "assertion-2", session.IdentityAssertion)
	assert.Equal(t, 1, h.fetcher.count())
}

func TestSignOutClearsSessionAndRedirects(t *testing.T) {
	h := startHarness(t)

	v := h.holder.Version()
	h.sync.Login(context.Background())
	require.Equal(t, StateAuthenticated, h.settle(t, v))

	v = h.holder.Version()
	h.sync.Logout(context.Background())
	require.Equal(t, StateSignedOut, h.settle(t, v))

	_, ok := h.holder.Current()
	assert.False(t, ok)
	// One redirect from Logout, one from the signed-out event.
	eventually(t, func() bool { return h.display.Redirects() == 2 })

	// Logging out again is harmless.
	v = h.holder.Version()
	h.sync.Logout(context.Background())
	assert.Equal(t, StateSignedOut, h.settle(t, v))
}

func TestRejectedAssertionForcesSignedOut(t *testing.T) {
	h := startHarness(t)
	h.verifier.setErr(apperr.ErrAuthRejected)

	v := h.holder.Version()
	h.sync.Login(context.Background())
	require.Equal(t, StateSignedOut, h.settle(t, v))

	_, ok := h.holder.Current()
	assert.False(t, ok)
	eventually(t, func() bool { return h.display.Redirects() == 1 })
	assert.Equal(t, 0, h.fetcher.count())
	notice, ok := h.display.LastNotice(ui.TargetAuth)
	require.True(t, ok)
	assert.Equal(t, ui.LevelError, notice.Level)
}

func TestForbiddenReverificationSignsOut(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if calls.Add(1) == 1 {
			_, _ = io.WriteString(w, `{"success":true}`)
			return
		}
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `{"success":false,"error":"Token expired"}`)
	}))
	t.Cleanup(srv.Close)
	ledger := clients.NewLedgerClient(clients.NewBaseClient(srv.URL, srv.Client(), nil), zap.NewNop())
	h := startHarnessWith(t, ledger)

	v := h.holder.Version()
	h.sync.Login(context.Background())
	require.Equal(t, StateAuthenticated, h.settle(t, v))

	v = h.holder.Version()
	h.sync.Login(context.Background())
	require.Equal(t, StateSignedOut, h.settle(t, v))

	_, ok := h.holder.Current()
	assert.False(t, ok)
	eventually(t, func() bool { return h.display.Redirects() == 1 })
	notice, ok := h.display.LastNotice(ui.TargetAuth)
	require.True(t, ok)
	assert.Equal(t, "Your session has expired. Please sign in again.", notice.Text)
}

func TestTransportFailureKeepsPriorState(t *testing.T) {
	h := startHarness(t)

	v := h.holder.Version()
	h.sync.Login(context.Background())
	require.Equal(t, StateAuthenticated, h.settle(t, v))

	h.verifier.setErr(apperr.Transport("verify-session", 0, errors.New("connection refused")))
	v = h.holder.Version()
	h.sync.Login(context.Background())
	require.Equal(t, StateAuthenticated, h.settle(t, v))

	session, ok := h.holder.Current()
	require.True(t, ok)
	assert.Equal(t, "assertion-1", session.IdentityAssertion)
	assert.Equal(t, 0, h.display.Redirects())
}

func TestTransportFailureFromSignedOutStaysSignedOut(t *testing.T) {
	h := startHarness(t)
	h.verifier.setErr(apperr.Transport("verify-session", 503, nil))

	v := h.holder.Version()
	h.sync.Login(context.Background())
	assert.Equal(t, StateSignedOut, h.settle(t, v))
	assert.Equal(t, 0, h.fetcher.count())
}

func TestMintFailureDoesNotAuthenticate(t *testing.T) {
	h := startHarness(t)
	h.provider.mintErr = errors.New("token endpoint down")

	v := h.holder.Version()
	h.sync.Login(context.Background())
	assert.Equal(t, StateSignedOut, h.settle(t, v))
	assert.Empty(t, h.verifier.calls)
}

func TestLoginHandshakeErrorIsShown(t *testing.T) {
	h := startHarness(t)
	h.provider.signInErr = errors.New("popup closed by user")

	h.sync.Login(context.Background())

	notice, ok := h.display.LastNotice(ui.TargetAuth)
	require.True(t, ok)
	assert.Equal(t, "popup closed by user", notice.Text)
	assert.Equal(t, StateSignedOut, h.holder.State())
}

func TestExpireClearsAuthenticatedSession(t *testing.T) {
	h := startHarness(t)

	v := h.holder.Version()
	h.sync.Login(context.Background())
	require.Equal(t, StateAuthenticated, h.settle(t, v))

	v = h.holder.Version()
	h.sync.Expire()
	require.Equal(t, StateSignedOut, h.settle(t, v))
	eventually(t, func() bool { return h.display.Redirects() == 1 })
}

func TestFlushWaitsForSignInSideEffects(t *testing.T) {
	h := startHarness(t)

	v := h.holder.Version()
	require.True(t, h.sync.Login(context.Background()))
	require.Equal(t, StateAuthenticated, h.settle(t, v))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, h.sync.Flush(ctx))
	assert.Equal(t, 1, h.fetcher.count())
	assert.Equal(t, "Asha", h.display.User())
}

func TestLoginReportsHandshakeFailure(t *testing.T) {
	h := startHarness(t)
	h.provider.signInErr = errors.New("popup closed by user")
	assert.False(t, h.sync.Login(context.Background()))
}

func TestAwaitAfterHonoursContext(t *testing.T) {
	holder := NewHolder()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	state, err := holder.AwaitAfter(ctx, holder.Version(), func(State) bool { return true })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StateSignedOut, state)
}
