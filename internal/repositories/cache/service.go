package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"delu/internal/models"

	"github.com/redis/go-redis/v9"
)

type CacheService struct {
	client *redis.Client
	ttl    time.Duration
}

func NewCacheService(client *redis.Client, defaultTTL time.Duration) *CacheService {
	return &CacheService{
		client: client,
		ttl:    defaultTTL,
	}
}

// Base operations

func (s *CacheService) Set(ctx context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}
	return s.client.Set(ctx, key, data, s.ttl).Err()
}

func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, fmt.Errorf("failed to get cache value: %w", err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal cache value: %w", err)
	}
	return true, nil
}

func (s *CacheService) Delete(ctx context.Context, keys ...string) error {
	return s.client.Del(ctx, keys...).Err()
}

// User caching. The row itself is cached only under the id key; email and
// phone keys hold just the id, so dropping the id key is enough to
// invalidate every lookup path.

func UserKey(keyType string, value interface{}) string {
	return fmt.Sprintf("user:%s:%v", keyType, value)
}

func (s *CacheService) CacheUser(ctx context.Context, user *models.User) error {
	if err := s.Set(ctx, UserKey("id", user.ID), user); err != nil {
		return err
	}
	for _, alias := range []string{
		UserKey("email", user.Email),
		UserKey("phone", user.Phone),
	} {
		if err := s.Set(ctx, alias, user.ID); err != nil {
			return err
		}
	}
	return nil
}

func (s *CacheService) GetUser(ctx context.Context, key string) (*models.User, bool) {
	var user models.User
	found, err := s.Get(ctx, key, &user)
	if err != nil || !found {
		return nil, false
	}
	return &user, true
}

// GetUserID resolves an email or phone alias key to a user id.
func (s *CacheService) GetUserID(ctx context.Context, key string) (uint, bool) {
	var id uint
	found, err := s.Get(ctx, key, &id)
	if err != nil || !found || id == 0 {
		return 0, false
	}
	return id, true
}

func (s *CacheService) InvalidateUser(ctx context.Context, user *models.User) error {
	return s.Delete(ctx,
		UserKey("id", user.ID),
		UserKey("email", user.Email),
		UserKey("phone", user.Phone),
	)
}

// InvalidateUserID drops the cached row after a balance, rating or referral
// flag mutation. The alias keys can stay: they only map to the id.
func (s *CacheService) InvalidateUserID(ctx context.Context, userID uint) error {
	return s.Delete(ctx, UserKey("id", userID))
}

// attemptScript increments the counter and arms the expiry window in one
// server-side step, so a counter can never survive without a TTL.
var attemptScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count`)

// AttemptCounter bumps a bounded attempt counter, used to rate-limit OTP
// guesses. Returns the count after the increment; the first attempt arms the
// expiry window.
func (s *CacheService) AttemptCounter(ctx context.Context, key string, window time.Duration) (int64, error) {
	count, err := attemptScript.Run(ctx, s.client, []string{key}, window.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("failed to increment attempt counter: %w", err)
	}
	return count, nil
}

// ResetAttempts clears an attempt counter after a successful check.
func (s *CacheService) ResetAttempts(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

// HealthCheck pings Redis.
func (s *CacheService) HealthCheck(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis connection failed: %w", err)
	}
	return nil
}

// Close releases the underlying Redis connection.
func (s *CacheService) Close() error {
	return s.client.Close()
}
