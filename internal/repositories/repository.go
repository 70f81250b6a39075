// Package repositories provides the data access layer.
// It owns all database operations and the conditional-update primitives the
// services rely on for atomic state transitions.
package repositories

import (
	"context"
	"errors"
	"time"

	"delu/internal/models"
)

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrGigNotFound       = errors.New("gig not found")
	ErrRequestNotFound   = errors.New("request not found")
	ErrCouponNotFound    = errors.New("coupon not found")
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrConflict means a conditional update matched zero rows: the entity
	// moved on since the caller last observed it. Refresh, don't retry.
	ErrConflict = errors.New("conditional update lost the race")

	// ErrCouponQuotaExceeded means the atomic usage increment hit the
	// per-user cap.
	ErrCouponQuotaExceeded = errors.New("coupon usage quota exceeded")
)

// LedgerRepository is the persistence surface for the gig ledger and wallet
// settlement core. Balance mutations, their paired transaction records, and
// gig status transitions are written through this interface so that
// ExecuteInTransaction can make a whole transition atomic.
//
// Status transitions are compare-and-swap: the update applies only while the
// row still holds the expected status, and a lost race surfaces ErrConflict.
type LedgerRepository interface {
	// ExecuteInTransaction runs fn against a repository bound to a single
	// database transaction. Any error rolls the whole transaction back.
	ExecuteInTransaction(fn func(LedgerRepository) error) error

	// Users and balances.
	GetUserByID(ctx context.Context, id uint) (*models.User, error)
	GetUserByPhone(ctx context.Context, phone string) (*models.User, error)
	GetUserByReferralCode(ctx context.Context, code string) (*models.User, error)
	// AddToBalance atomically applies delta with a non-negative guard;
	// a debit past zero returns ErrInsufficientFunds without writing.
	AddToBalance(ctx context.Context, userID uint, delta float64) error
	AddRating(ctx context.Context, userID uint, rating int) error
	IncrementDeliveriesCompleted(ctx context.Context, userID uint) error
	// MarkFirstRechargeCompleted flips the one-shot flag and reports whether
	// this call was the one that flipped it.
	MarkFirstRechargeCompleted(ctx context.Context, userID uint) (bool, error)

	// Transactions.
	CreateTransaction(ctx context.Context, txn *models.Transaction) error
	ListTransactions(ctx context.Context, userID uint, limit, offset int) ([]models.Transaction, error)
	HasTransactionOfType(ctx context.Context, userID uint, txType string) (bool, error)

	// Gigs.
	CreateGig(ctx context.Context, gig *models.Gig) error
	GetGig(ctx context.Context, id uint) (*models.Gig, error)
	ListGigsByStatus(ctx context.Context, status models.GigStatus, limit, offset int) ([]models.Gig, error)
	ListGigsByUser(ctx context.Context, userID uint) ([]models.Gig, error)
	// ListExpirableGigs returns non-terminal gigs whose deadline has passed.
	ListExpirableGigs(ctx context.Context, cutoff time.Time, limit int) ([]models.Gig, error)
	UpdateGigStatusIf(ctx context.Context, gigID uint, from, to models.GigStatus, updates map[string]interface{}) error
	// ExpireGigIf marks the gig EXPIRED only while it is still OPEN or
	// ACCEPTED and past its deadline, and returns the expired row.
	ExpireGigIf(ctx context.Context, gigID uint, now time.Time) (*models.Gig, error)
	// SetGigRating writes one side's rating only if that side is still unrated.
	SetGigRating(ctx context.Context, gigID uint, side RatingSide, rating int, comments string) error

	// Wallet load requests.
	CreateLoadRequest(ctx context.Context, req *models.WalletLoadRequest) error
	GetLoadRequest(ctx context.Context, id uint) (*models.WalletLoadRequest, error)
	ListLoadRequests(ctx context.Context, status models.LoadRequestStatus, limit, offset int) ([]models.WalletLoadRequest, error)
	UpdateLoadRequestStatusIf(ctx context.Context, id uint, from, to models.LoadRequestStatus) error

	// Withdrawal requests.
	CreateWithdrawalRequest(ctx context.Context, req *models.WithdrawalRequest) error
	GetWithdrawalRequest(ctx context.Context, id uint) (*models.WithdrawalRequest, error)
	ListWithdrawalRequests(ctx context.Context, status models.WithdrawalStatus, limit, offset int) ([]models.WithdrawalRequest, error)
	UpdateWithdrawalStatusIf(ctx context.Context, id uint, from, to models.WithdrawalStatus) error

	// Coupons.
	GetCouponByCode(ctx context.Context, code string) (*models.Coupon, error)
	ListCoupons(ctx context.Context) ([]models.Coupon, error)
	CreateCoupon(ctx context.Context, coupon *models.Coupon) error
	UpdateCoupon(ctx context.Context, coupon *models.Coupon) error
	DeleteCoupon(ctx context.Context, id uint) error
	// IncrementCouponUsage atomically bumps the per-user counter, failing
	// with ErrCouponQuotaExceeded once maxUses is reached.
	IncrementCouponUsage(ctx context.Context, userID uint, code string, maxUses int) error
	GetCouponUsage(ctx context.Context, userID uint, code string) (int, error)

	// Platform settings.
	GetSettings(ctx context.Context) (*models.PlatformSettings, error)
	UpdateSettings(ctx context.Context, settings *models.PlatformSettings) error
}

// RatingSide names which participant a gig rating applies to.
type RatingSide string

const (
	RatingSideRequester RatingSide = "requester"
	RatingSideDeliverer RatingSide = "deliverer"
)
