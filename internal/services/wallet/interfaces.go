package wallet

import (
	"context"

	"delu/internal/models"
	"delu/internal/repositories"
)

// Service defines the wallet operations exposed to handlers and admin flows.
type Service interface {
	Ledger

	// Direct movements.
	Credit(ctx context.Context, userID uint, amount float64, txType, description string, gigID *uint) error
	Debit(ctx context.Context, userID uint, amount float64, description string, gigID *uint) error
	ManualCredit(ctx context.Context, phone string, amount float64, reason string) (*models.User, error)

	// Reads.
	GetBalance(ctx context.Context, userID uint) (float64, error)
	GetTransactions(ctx context.Context, userID uint, limit, offset int) ([]models.Transaction, error)

	// Top-up lifecycle.
	RequestLoad(ctx context.Context, userID uint, in LoadRequestInput) (*models.WalletLoadRequest, error)
	ApproveLoad(ctx context.Context, requestID uint) error
	RejectLoad(ctx context.Context, requestID uint) error

	// Withdrawal lifecycle.
	RequestWithdrawal(ctx context.Context, userID uint, amount float64, upiID string) (*models.WithdrawalRequest, error)
	ApproveWithdrawal(ctx context.Context, requestID uint) error
	RejectWithdrawal(ctx context.Context, requestID uint) error

	// Coupon pre-validation for the load flow.
	ValidateCoupon(ctx context.Context, userID uint, code string) (*models.Coupon, error)
}

// Ledger is the single money-moving primitive. Callers that need a movement
// inside their own database transaction (the gig escrow and payout) pass the
// transaction-bound repository in.
type Ledger interface {
	Apply(ctx context.Context, tx repositories.LedgerRepository, entry Entry) error
}

// ReferralSettler runs the one-shot referral payout inside the approving
// transaction. The top-up amount funds the referee's percentage bonus.
type ReferralSettler interface {
	Settle(ctx context.Context, tx repositories.LedgerRepository, refereeID uint, topUpAmount float64) error
}

// UserCacheInvalidator drops a user's cached row after a balance mutation,
// so the next read hits the database. The Redis cache service satisfies it.
type UserCacheInvalidator interface {
	InvalidateUserID(ctx context.Context, userID uint) error
}

// NoopUserCacheInvalidator is used when no cache is wired.
type NoopUserCacheInvalidator struct{}

func (NoopUserCacheInvalidator) InvalidateUserID(context.Context, uint) error { return nil }
