package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"parkease/services/wallet-client/internal/models"
)

// Commands is the subset of the redis client the store needs.
type Commands interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	LTrim(ctx context.Context, key string, start, stop int64) *redis.StatusCmd
	LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// RedisStore keeps the journal in redis so it survives restarts.
type RedisStore struct {
	client Commands
	ttl    time.Duration
}

// NewRedisStore returns redis-backed store.
func NewRedisStore(client Commands, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func outcomeKey(intentID string) string {
	return fmt.Sprintf("parkease:outcomes:%s", intentID)
}

func userKey(userID string) string {
	return fmt.Sprintf("parkease:outcomes:user:%s", userID)
}

func secretKey(fingerprint string) string {
	return fmt.Sprintf("parkease:secrets:%s", fingerprint)
}

// Save stores outcome and indexes it under its user.
func (s *RedisStore) Save(ctx context.Context, outcome models.PaymentOutcome) error {
	if outcome.IntentID == "" {
		return ErrMissingIntent
	}
	data, err := json.Marshal(outcome)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, outcomeKey(outcome.IntentID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("journal: save outcome: %w", err)
	}

	list := userKey(outcome.UserID)
	if err := s.client.LPush(ctx, list, outcome.IntentID).Err(); err != nil {
		return fmt.Errorf("journal: index outcome: %w", err)
	}
	if err := s.client.LTrim(ctx, list, 0, maxPerUser-1).Err(); err != nil {
		return fmt.Errorf("journal: trim index: %w", err)
	}
	if s.ttl > 0 {
		if err := s.client.Expire(ctx, list, s.ttl).Err(); err != nil {
			return fmt.Errorf("journal: expire index: %w", err)
		}
	}
	return nil
}

// Recent returns up to limit outcomes for userID, newest first. Expired entries are skipped.
func (s *RedisStore) Recent(ctx context.Context, userID string, limit int) ([]models.PaymentOutcome, error) {
	ids, err := s.client.LRange(ctx, userKey(userID), 0, int64(clampLimit(limit)-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("journal: list outcomes: %w", err)
	}

	out := make([]models.PaymentOutcome, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true

		raw, err := s.client.Get(ctx, outcomeKey(id)).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("journal: load outcome %s: %w", id, err)
		}
		var outcome models.PaymentOutcome
		if err := json.Unmarshal([]byte(raw), &outcome); err != nil {
			return nil, fmt.Errorf("journal: decode outcome %s: %w", id, err)
		}
		out = append(out, outcome)
	}
	return out, nil
}

// MarkSecretSpent sets the fingerprint key only if absent.
func (s *RedisStore) MarkSecretSpent(ctx context.Context, fingerprint string) (bool, error) {
	first, err := s.client.SetNX(ctx, secretKey(fingerprint), time.Now().UTC().Format(time.RFC3339), s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("journal: mark secret: %w", err)
	}
	return first, nil
}
