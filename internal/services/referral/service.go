// Package referral implements the one-shot first-recharge referral payout.
package referral

import (
	"context"
	"errors"
	"fmt"

	"delu/internal/logger"
	"delu/internal/models"
	"delu/internal/money"
	"delu/internal/repositories"
	"delu/internal/services/wallet"

	"go.uber.org/zap"
)

// UserCacheInvalidator drops cached user rows once the settlement has
// credited them.
type UserCacheInvalidator interface {
	InvalidateUserID(ctx context.Context, userID uint) error
}

type noopInvalidator struct{}

func (noopInvalidator) InvalidateUserID(context.Context, uint) error { return nil }

// Service settles referral rewards. It implements wallet.ReferralSettler and
// runs inside the approving top-up's database transaction.
type Service struct {
	cache UserCacheInvalidator
}

// NewService creates the settler. A nil cache disables invalidation.
func NewService(cache UserCacheInvalidator) *Service {
	if cache == nil {
		cache = noopInvalidator{}
	}
	return &Service{cache: cache}
}

// Settle pays the referee's referrer the fixed reward and the referee a
// percentage bonus on the triggering top-up, exactly once per referee.
// A referral code that resolves to nobody is silently ignored: a broken
// code must never block the top-up that triggered settlement.
func (s *Service) Settle(ctx context.Context, tx repositories.LedgerRepository, refereeID uint, topUpAmount float64) error {
	referee, err := tx.GetUserByID(ctx, refereeID)
	if err != nil {
		return err
	}
	if referee.FirstRechargeCompleted || referee.ReferredByCode == "" {
		return nil
	}

	referrer, err := tx.GetUserByReferralCode(ctx, referee.ReferredByCode)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			logger.Log.Warn("referral code resolves to nobody",
				zap.Uint("referee_id", refereeID),
				zap.String("code", referee.ReferredByCode))
			return nil
		}
		return err
	}

	// Flipping the flag first is the idempotency guard: a concurrent
	// settlement loses this conditional update and pays nothing.
	flipped, err := tx.MarkFirstRechargeCompleted(ctx, refereeID)
	if err != nil {
		return err
	}
	if !flipped {
		return nil
	}

	settings, err := tx.GetSettings(ctx)
	if err != nil {
		return err
	}

	if err := wallet.ApplyEntry(ctx, tx, wallet.Entry{
		UserID:      referrer.ID,
		Type:        models.TransactionTypeCredit,
		Amount:      settings.ReferrerReward,
		Description: fmt.Sprintf("Referral reward: %s completed their first recharge", referee.Name),
	}); err != nil {
		return err
	}

	if bonus := money.Bonus(topUpAmount, settings.RefereeBonusPercentage); bonus > 0 {
		if err := wallet.ApplyEntry(ctx, tx, wallet.Entry{
			UserID:      refereeID,
			Type:        models.TransactionTypeCredit,
			Amount:      bonus,
			Description: "First recharge referral bonus",
		}); err != nil {
			return err
		}
	}

	// The referee's row is dropped again by the approving caller after
	// commit; the referrer is only known here.
	_ = s.cache.InvalidateUserID(ctx, referrer.ID)
	_ = s.cache.InvalidateUserID(ctx, refereeID)

	logger.Log.Info("referral reward settled",
		zap.Uint("referrer_id", referrer.ID),
		zap.Uint("referee_id", refereeID),
		zap.Float64("reward", settings.ReferrerReward))
	return nil
}
