package gig

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"delu/internal/logger"
	"delu/internal/repositories/cache"

	"go.uber.org/zap"
)

// generateOTP returns a 4-digit numeric code, zero-padded. crypto/rand is
// used because the OTP is the proof of handoff; math/rand would make it
// guessable given the tiny keyspace.
func generateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(10000))
	if err != nil {
		return "", fmt.Errorf("failed to generate OTP: %w", err)
	}
	return fmt.Sprintf("%04d", n.Int64()), nil
}

// RedisAttemptLimiter counts OTP guesses per gig in Redis. A 4-digit code
// survives brute force only if attempts are capped.
type RedisAttemptLimiter struct {
	cache  *cache.CacheService
	max    int64
	window time.Duration
}

func NewRedisAttemptLimiter(cs *cache.CacheService) *RedisAttemptLimiter {
	return &RedisAttemptLimiter{
		cache:  cs,
		max:    MaxOTPAttempts,
		window: OTPAttemptWindow,
	}
}

func attemptKey(gigID uint) string {
	return fmt.Sprintf("gig:otp_attempts:%d", gigID)
}

func (l *RedisAttemptLimiter) Allow(ctx context.Context, gigID uint) error {
	count, err := l.cache.AttemptCounter(ctx, attemptKey(gigID), l.window)
	if err != nil {
		// Redis being down should not block legitimate completions.
		logger.Log.Warn("otp attempt counter unavailable",
			zap.Uint("gig_id", gigID), zap.Error(err))
		return nil
	}
	if count > l.max {
		return ErrTooManyOTPAttempts
	}
	return nil
}

func (l *RedisAttemptLimiter) Reset(ctx context.Context, gigID uint) {
	if err := l.cache.ResetAttempts(ctx, attemptKey(gigID)); err != nil {
		logger.Log.Warn("failed to reset otp attempts",
			zap.Uint("gig_id", gigID), zap.Error(err))
	}
}
