package gig

import (
	"context"
	"time"
)

// CreateInput carries the requester-supplied fields for a new gig.
// BasePrice excludes the urgent surcharge; the service computes the total.
type CreateInput struct {
	ParcelInfo       string
	PickupBlock      string
	DestinationBlock string
	Size             string
	Note             string
	BasePrice        float64
	IsUrgent         bool
	DeliveryDeadline time.Time
}

// AttemptLimiter bounds OTP guesses per gig. Allow returns
// ErrTooManyOTPAttempts once the budget is spent; Reset clears the counter
// after a successful completion.
type AttemptLimiter interface {
	Allow(ctx context.Context, gigID uint) error
	Reset(ctx context.Context, gigID uint)
}

// NoopAttemptLimiter never limits. Used in tests and when Redis is absent.
type NoopAttemptLimiter struct{}

func (NoopAttemptLimiter) Allow(context.Context, uint) error { return nil }
func (NoopAttemptLimiter) Reset(context.Context, uint)       {}
