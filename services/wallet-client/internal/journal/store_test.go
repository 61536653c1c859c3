package journal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parkease/services/wallet-client/internal/models"
)

// fakeRedis implements Commands over maps.
type fakeRedis struct {
	mu      sync.Mutex
	strings map[string]string
	lists   map[string][]string
	ttls    map[string]time.Duration
	failSet error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{
		strings: make(map[string]string),
		lists:   make(map[string][]string),
		ttls:    make(map[string]time.Duration),
	}
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSet != nil {
		return redis.NewStatusResult("", f.failSet)
	}
	f.strings[key] = toString(value)
	f.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.strings[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) SetNX(_ context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.strings[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.strings[key] = toString(value)
	f.ttls[key] = expiration
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) LPush(_ context.Context, key string, values ...interface{}) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range values {
		f.lists[key] = append([]string{toString(v)}, f.lists[key]...)
	}
	return redis.NewIntResult(int64(len(f.lists[key])), nil)
}

func (f *fakeRedis) LTrim(_ context.Context, key string, start, stop int64) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists[key] = slice(f.lists[key], start, stop)
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) LRange(_ context.Context, key string, start, stop int64) *redis.StringSliceCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	return redis.NewStringSliceResult(slice(f.lists[key], start, stop), nil)
}

func (f *fakeRedis) Expire(_ context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ttls[key] = expiration
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) drop(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.strings, key)
}

func slice(list []string, start, stop int64) []string {
	if start >= int64(len(list)) {
		return nil
	}
	if stop >= int64(len(list)) {
		stop = int64(len(list)) - 1
	}
	return append([]string(nil), list[start:stop+1]...)
}

func toString(v interface{}) string {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

func outcome(intentID, userID string, success bool) models.PaymentOutcome {
	return models.PaymentOutcome{
		IntentID:   intentID,
		UserID:     userID,
		Amount:     decimal.NewFromInt(100),
		Success:    success,
		State:      models.TopUpSettled,
		FinishedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func stores() map[string]func() Store {
	return map[string]func() Store{
		"memory": func() Store { return NewMemoryStore() },
		"redis":  func() Store { return NewRedisStore(newFakeRedis(), time.Hour) },
	}
}

func TestStoreRecentNewestFirstPerUser(t *testing.T) {
	for name, build := range stores() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := build()
			require.NoError(t, s.Save(ctx, outcome("pi_1", "user-1", true)))
			require.NoError(t, s.Save(ctx, outcome("pi_2", "user-2", false)))
			require.NoError(t, s.Save(ctx, outcome("pi_3", "user-1", false)))

			recent, err := s.Recent(ctx, "user-1", 10)
			require.NoError(t, err)
			require.Len(t, recent, 2)
			assert.Equal(t, "pi_3", recent[0].IntentID)
			assert.Equal(t, "pi_1", recent[1].IntentID)
			assert.True(t, recent[1].Amount.Equal(decimal.NewFromInt(100)))

			recent, err = s.Recent(ctx, "user-1", 1)
			require.NoError(t, err)
			assert.Len(t, recent, 1)

			recent, err = s.Recent(ctx, "nobody", 5)
			require.NoError(t, err)
			assert.Empty(t, recent)
		})
	}
}

func TestStoreKeepsBoundedHistory(t *testing.T) {
	for name, build := range stores() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := build()
			for i := 0; i < maxPerUser+5; i++ {
				require.NoError(t, s.Save(ctx, outcome(fmt.Sprintf("pi_%d", i), "user-1", true)))
			}
			recent, err := s.Recent(ctx, "user-1", 0)
			require.NoError(t, err)
			assert.Len(t, recent, maxPerUser)
			assert.Equal(t, fmt.Sprintf("pi_%d", maxPerUser+4), recent[0].IntentID)
		})
	}
}

func TestStoreSecretSpentOnlyOnce(t *testing.T) {
	for name, build := range stores() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := build()
			fp := Fingerprint("pi_1_secret_abc")

			first, err := s.MarkSecretSpent(ctx, fp)
			require.NoError(t, err)
			assert.True(t, first)

			again, err := s.MarkSecretSpent(ctx, fp)
			require.NoError(t, err)
			assert.False(t, again)

			other, err := s.MarkSecretSpent(ctx, Fingerprint("pi_2_secret_def"))
			require.NoError(t, err)
			assert.True(t, other)
		})
	}
}

func TestStoreRejectsOutcomeWithoutIntent(t *testing.T) {
	for name, build := range stores() {
		t.Run(name, func(t *testing.T) {
			err := build().Save(context.Background(), outcome("", "user-1", false))
			assert.ErrorIs(t, err, ErrMissingIntent)
		})
	}
}

func TestFingerprintHidesSecret(t *testing.T) {
	fp := Fingerprint("pi_1_secret_abc")
	assert.Len(t, fp, 64)
	assert.NotContains(t, fp, "secret")
	assert.Equal(t, fp, Fingerprint("pi_1_secret_abc"))
}

func TestRedisStoreKeysAndTTL(t *testing.T) {
	fake := newFakeRedis()
	s := NewRedisStore(fake, 2*time.Hour)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, outcome("pi_1", "user-1", true)))
	_, err := s.MarkSecretSpent(ctx, "abc")
	require.NoError(t, err)

	assert.Contains(t, fake.strings, "parkease:outcomes:pi_1")
	assert.Equal(t, []string{"pi_1"}, fake.lists["parkease:outcomes:user:user-1"])
	assert.Contains(t, fake.strings, "parkease:secrets:abc")
	assert.Equal(t, 2*time.Hour, fake.ttls["parkease:outcomes:user:user-1"])
	assert.Equal(t, 2*time.Hour, fake.ttls["parkease:secrets:abc"])
}

func TestRedisStoreSkipsExpiredOutcomes(t *testing.T) {
	fake := newFakeRedis()
	s := NewRedisStore(fake, time.Hour)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, outcome("pi_1", "user-1", true)))
	require.NoError(t, s.Save(ctx, outcome("pi_2", "user-1", true)))
	fake.drop("parkease:outcomes:pi_1")

	recent, err := s.Recent(ctx, "user-1", 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "pi_2", recent[0].IntentID)
}

func TestRedisStoreSaveError(t *testing.T) {
	fake := newFakeRedis()
	fake.failSet = errors.New("READONLY")
	err := NewRedisStore(fake, time.Hour).Save(context.Background(), outcome("pi_1", "user-1", true))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "READONLY")
}
