package payment

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"parkease/services/wallet-client/internal/apperr"
)

type stripeCall struct {
	path          string
	auth          string
	paymentMethod string
	clientSecret  string
}

type fakeStripe struct {
	mu     sync.Mutex
	calls  []stripeCall
	status int
	body   string
}

func (f *fakeStripe) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	f.mu.Lock()
	f.calls = append(f.calls, stripeCall{
		path:          r.URL.Path,
		auth:          r.Header.Get("Authorization"),
		paymentMethod: r.PostForm.Get("payment_method"),
		clientSecret:  r.PostForm.Get("client_secret"),
	})
	status, body := f.status, f.body
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func newStripe(t *testing.T, status int, body string) (*fakeStripe, *StripeProcessor) {
	t.Helper()
	fake := &fakeStripe{status: status, body: body}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	return fake, NewStripeProcessor("pk_test_123", srv.URL, srv.Client(), zap.NewNop())
}

func TestAuthorizeSucceeded(t *testing.T) {
	fake, p := newStripe(t, http.StatusOK, `{"id":"pi_123","object":"payment_intent","status":"succeeded"}`)

	auth, err := p.Authorize(context.Background(), "pi_123_secret_abc", CardInput{PaymentMethod: "pm_card_visa"})
	require.NoError(t, err)
	assert.Equal(t, Authorization{IntentID: "pi_123", Status: "succeeded"}, auth)

	require.Len(t, fake.calls, 1)
	call := fake.calls[0]
	assert.Equal(t, "/v1/payment_intents/pi_123/confirm", call.path)
	assert.Equal(t, "Bearer pk_test_123", call.auth)
	assert.Equal(t, "pm_card_visa", call.paymentMethod)
	assert.Equal(t, "pi_123_secret_abc", call.clientSecret)
}

func TestAuthorizeCardDeclined(t *testing.T) {
	_, p := newStripe(t, http.StatusPaymentRequired,
		`{"error":{"type":"card_error","code":"card_declined","decline_code":"generic_decline","message":"Your card was declined."}}`)

	_, err := p.Authorize(context.Background(), "pi_123_secret_abc", CardInput{PaymentMethod: "pm_card_chargeDeclined"})
	var decline *DeclineError
	require.ErrorAs(t, err, &decline)
	assert.Equal(t, "card_declined", decline.Code)
	assert.Equal(t, "generic_decline", decline.DeclineCode)
	assert.Equal(t, "Your card was declined.", decline.Message)
}

func TestAuthorizeRequiresActionIsNotAuthorized(t *testing.T) {
	_, p := newStripe(t, http.StatusOK, `{"id":"pi_123","object":"payment_intent","status":"requires_action"}`)

	_, err := p.Authorize(context.Background(), "pi_123_secret_abc", CardInput{PaymentMethod: "pm_card_threeDSecure2Required"})
	var decline *DeclineError
	require.ErrorAs(t, err, &decline)
	assert.Equal(t, "authentication_required", decline.Code)
}

func TestAuthorizeProcessingLeavesOutcomeUnknown(t *testing.T) {
	_, p := newStripe(t, http.StatusOK, `{"id":"pi_123","object":"payment_intent","status":"processing"}`)

	_, err := p.Authorize(context.Background(), "pi_123_secret_abc", CardInput{PaymentMethod: "pm_card_visa"})
	require.ErrorIs(t, err, ErrAuthorizationPending)
	assert.ErrorIs(t, err, apperr.ErrTransport)
	var decline *DeclineError
	assert.NotErrorAs(t, err, &decline)
}

func TestAuthorizeServerErrorIsNotADecline(t *testing.T) {
	_, p := newStripe(t, http.StatusInternalServerError, `{"error":{"type":"api_error","message":"boom"}}`)

	_, err := p.Authorize(context.Background(), "pi_123_secret_abc", CardInput{PaymentMethod: "pm_card_visa"})
	require.Error(t, err)
	var decline *DeclineError
	assert.NotErrorAs(t, err, &decline)
}

func TestAuthorizeRejectsBadInputWithoutCalling(t *testing.T) {
	fake, p := newStripe(t, http.StatusOK, `{}`)

	_, err := p.Authorize(context.Background(), "pi_123_secret_abc", CardInput{})
	assert.ErrorIs(t, err, ErrMissingPaymentMethod)

	_, err = p.Authorize(context.Background(), "not-a-secret", CardInput{PaymentMethod: "pm_card_visa"})
	assert.Error(t, err)
	assert.Empty(t, fake.calls)
}
