package gig

import (
	"context"

	"delu/internal/models"
)

// Service is the gig lifecycle state machine:
//
//	OPEN -> ACCEPTED -> COMPLETED
//	OPEN -> EXPIRED, ACCEPTED -> EXPIRED (deadline-driven)
//
// COMPLETED and EXPIRED are terminal. Transitions are conditional updates
// against the store; a lost race surfaces as ErrGigUnavailable or a silent
// no-op where idempotency demands it.
type Service interface {
	Create(ctx context.Context, requesterID uint, in CreateInput) (*models.Gig, error)
	Accept(ctx context.Context, gigID, delivererID uint, selfieURL string) (*models.Gig, error)
	Complete(ctx context.Context, gigID, requesterID uint, otp string) (*models.Gig, error)
	Rate(ctx context.Context, gigID, raterID uint, rating int, comments string) error
	Expire(ctx context.Context, gigID uint) error
	SweepExpired(ctx context.Context) (int, error)

	ListOpen(ctx context.Context, limit, offset int) ([]models.Gig, error)
	ListForUser(ctx context.Context, userID uint) ([]models.Gig, error)
	Get(ctx context.Context, gigID uint) (*models.Gig, error)
}

// UserCacheInvalidator drops a user's cached row after escrow, payout,
// rating or delivery-count writes touch it.
type UserCacheInvalidator interface {
	InvalidateUserID(ctx context.Context, userID uint) error
}

// NoopUserCacheInvalidator is used when no cache is wired.
type NoopUserCacheInvalidator struct{}

func (NoopUserCacheInvalidator) InvalidateUserID(context.Context, uint) error { return nil }
