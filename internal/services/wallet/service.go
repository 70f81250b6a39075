package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"delu/internal/logger"
	"delu/internal/models"
	"delu/internal/money"
	"delu/internal/repositories"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type service struct {
	repo      repositories.LedgerRepository
	referrals ReferralSettler
	config    Config
	metrics   MetricsCollector
	cache     UserCacheInvalidator
}

// NewService creates a new wallet service. The referral settler may be nil,
// which disables referral payouts; a nil cache disables invalidation.
func NewService(
	repo repositories.LedgerRepository,
	referrals ReferralSettler,
	config Config,
	metrics MetricsCollector,
	cache UserCacheInvalidator,
) Service {
	if repo == nil {
		panic("repo is required")
	}

	if config.MinTopUpForReferral == 0 {
		config.MinTopUpForReferral = DefaultMinTopUpForReferral
	}
	if config.MaxLoadAmount == 0 {
		config.MaxLoadAmount = DefaultMaxLoadAmount
	}
	if config.MaxWithdrawalAmount == 0 {
		config.MaxWithdrawalAmount = DefaultMaxWithdrawalAmount
	}
	if metrics == nil {
		metrics = &NoopMetricsCollector{}
	}
	if cache == nil {
		cache = NoopUserCacheInvalidator{}
	}

	return &service{
		repo:      repo,
		referrals: referrals,
		config:    config,
		metrics:   metrics,
		cache:     cache,
	}
}

// dropCachedUser evicts the cached user row once a balance mutation has
// committed. Eviction failures are logged, not returned: the money already
// moved and the cache TTL bounds the damage.
func (s *service) dropCachedUser(ctx context.Context, userID uint) {
	if err := s.cache.InvalidateUserID(ctx, userID); err != nil {
		logger.Log.Warn("failed to invalidate cached user",
			zap.Uint("user_id", userID), zap.Error(err))
	}
}

// Apply performs one balance mutation with its paired Transaction record,
// both through the supplied (possibly transaction-bound) repository.
func (s *service) Apply(ctx context.Context, tx repositories.LedgerRepository, entry Entry) error {
	return ApplyEntry(ctx, tx, entry)
}

// ApplyEntry is the movement primitive behind Service.Apply. It is a package
// function so collaborators settling money inside someone else's database
// transaction (the referral payout) need no service handle.
func ApplyEntry(ctx context.Context, tx repositories.LedgerRepository, entry Entry) error {
	if entry.Amount <= 0 {
		return ErrInvalidAmount
	}

	delta := entry.Amount
	if !models.IsCreditType(entry.Type) {
		delta = -entry.Amount
	}

	if err := tx.AddToBalance(ctx, entry.UserID, delta); err != nil {
		if errors.Is(err, repositories.ErrInsufficientFunds) {
			return ErrInsufficientBalance
		}
		return err
	}

	return tx.CreateTransaction(ctx, &models.Transaction{
		UserID:       entry.UserID,
		Type:         entry.Type,
		Amount:       entry.Amount,
		Description:  entry.Description,
		Reference:    uuid.NewString(),
		RelatedGigID: entry.GigID,
	})
}

func (s *service) Credit(ctx context.Context, userID uint, amount float64, txType, description string, gigID *uint) error {
	start := time.Now()
	if !models.IsCreditType(txType) {
		return fmt.Errorf("%w: %q is not a credit type", ErrInvalidAmount, txType)
	}

	err := s.repo.ExecuteInTransaction(func(tx repositories.LedgerRepository) error {
		return s.Apply(ctx, tx, Entry{
			UserID: userID, Type: txType, Amount: amount,
			Description: description, GigID: gigID,
		})
	})
	if err != nil {
		s.metrics.RecordError("credit", err.Error())
		return err
	}

	s.dropCachedUser(ctx, userID)
	s.metrics.RecordTransaction(txType, amount)
	s.metrics.RecordOperationDuration("credit", time.Since(start))
	return nil
}

func (s *service) Debit(ctx context.Context, userID uint, amount float64, description string, gigID *uint) error {
	start := time.Now()
	err := s.repo.ExecuteInTransaction(func(tx repositories.LedgerRepository) error {
		return s.Apply(ctx, tx, Entry{
			UserID: userID, Type: models.TransactionTypeDebit, Amount: amount,
			Description: description, GigID: gigID,
		})
	})
	if err != nil {
		s.metrics.RecordError("debit", err.Error())
		return err
	}

	s.dropCachedUser(ctx, userID)
	s.metrics.RecordTransaction(models.TransactionTypeDebit, amount)
	s.metrics.RecordOperationDuration("debit", time.Since(start))
	return nil
}

func (s *service) ManualCredit(ctx context.Context, phone string, amount float64, reason string) (*models.User, error) {
	user, err := s.repo.GetUserByPhone(ctx, phone)
	if err != nil {
		return nil, err
	}

	if err := s.Credit(ctx, user.ID, amount, models.TransactionTypeCredit, reason, nil); err != nil {
		return nil, err
	}

	logger.Log.Info("manual credit applied",
		zap.Uint("user_id", user.ID),
		zap.Float64("amount", amount),
		zap.String("reason", reason))

	return s.repo.GetUserByID(ctx, user.ID)
}

func (s *service) GetBalance(ctx context.Context, userID uint) (float64, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return 0, err
	}
	return user.WalletBalance, nil
}

func (s *service) GetTransactions(ctx context.Context, userID uint, limit, offset int) ([]models.Transaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.repo.ListTransactions(ctx, userID, limit, offset)
}

// Top-up lifecycle

func (s *service) RequestLoad(ctx context.Context, userID uint, in LoadRequestInput) (*models.WalletLoadRequest, error) {
	if in.Amount <= 0 || in.Amount > s.config.MaxLoadAmount {
		return nil, ErrInvalidAmount
	}
	if in.UTR == "" {
		return nil, fmt.Errorf("%w: payment reference (UTR) is required", ErrInvalidAmount)
	}

	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	// Surface coupon problems at submission time; approval re-checks anyway.
	if in.CouponCode != "" {
		if _, err := s.ValidateCoupon(ctx, userID, in.CouponCode); err != nil {
			return nil, err
		}
	}

	req := &models.WalletLoadRequest{
		UserID:        userID,
		UserName:      user.Name,
		Amount:        in.Amount,
		UTR:           in.UTR,
		ScreenshotURL: in.ScreenshotURL,
		CouponCode:    in.CouponCode,
		Status:        models.LoadRequestPending,
	}
	if err := s.repo.CreateLoadRequest(ctx, req); err != nil {
		return nil, err
	}
	return req, nil
}

func (s *service) ApproveLoad(ctx context.Context, requestID uint) error {
	start := time.Now()
	req, err := s.repo.GetLoadRequest(ctx, requestID)
	if err != nil {
		return err
	}
	switch req.Status {
	case models.LoadRequestApproved:
		return nil // duplicate approval is a no-op
	case models.LoadRequestRejected:
		return ErrRequestSettled
	}

	err = s.repo.ExecuteInTransaction(func(tx repositories.LedgerRepository) error {
		if err := tx.UpdateLoadRequestStatusIf(ctx, requestID,
			models.LoadRequestPending, models.LoadRequestApproved); err != nil {
			return err
		}

		// First-TOPUP check must precede the credit below.
		hadTopUp, err := tx.HasTransactionOfType(ctx, req.UserID, models.TransactionTypeTopup)
		if err != nil {
			return err
		}

		if err := s.Apply(ctx, tx, Entry{
			UserID:      req.UserID,
			Type:        models.TransactionTypeTopup,
			Amount:      req.Amount,
			Description: fmt.Sprintf("Wallet load approved (UTR %s)", req.UTR),
		}); err != nil {
			return err
		}

		if req.CouponCode != "" {
			if err := s.applyCouponBonus(ctx, tx, req); err != nil {
				return err
			}
		}

		if !hadTopUp && req.Amount >= s.config.MinTopUpForReferral && s.referrals != nil {
			if err := s.referrals.Settle(ctx, tx, req.UserID, req.Amount); err != nil {
				return err
			}
		}
		return nil
	})

	if errors.Is(err, repositories.ErrConflict) {
		// Another admin settled it between our read and the update.
		settled, readErr := s.repo.GetLoadRequest(ctx, requestID)
		if readErr == nil && settled.Status == models.LoadRequestApproved {
			return nil
		}
		return ErrRequestSettled
	}
	if err != nil {
		s.metrics.RecordError("approve_load", err.Error())
		return err
	}

	s.dropCachedUser(ctx, req.UserID)
	s.metrics.RecordTransaction(models.TransactionTypeTopup, req.Amount)
	s.metrics.RecordOperationDuration("approve_load", time.Since(start))
	logger.Log.Info("wallet load approved",
		zap.Uint("request_id", requestID),
		zap.Uint("user_id", req.UserID),
		zap.Float64("amount", req.Amount))
	return nil
}

// applyCouponBonus credits the coupon bonus if the code is still valid at
// approval time. An invalid or exhausted coupon skips the bonus without
// failing the top-up itself.
func (s *service) applyCouponBonus(ctx context.Context, tx repositories.LedgerRepository, req *models.WalletLoadRequest) error {
	coupon, err := tx.GetCouponByCode(ctx, req.CouponCode)
	if err != nil {
		if errors.Is(err, repositories.ErrCouponNotFound) {
			logger.Log.Warn("coupon vanished before approval", zap.String("code", req.CouponCode))
			return nil
		}
		return err
	}
	if !coupon.IsActive {
		logger.Log.Warn("coupon inactive at approval", zap.String("code", req.CouponCode))
		return nil
	}

	if err := tx.IncrementCouponUsage(ctx, req.UserID, coupon.Code, coupon.MaxUsesPerUser); err != nil {
		if errors.Is(err, repositories.ErrCouponQuotaExceeded) {
			logger.Log.Warn("coupon quota reached at approval",
				zap.String("code", req.CouponCode), zap.Uint("user_id", req.UserID))
			return nil
		}
		return err
	}

	bonus := money.Bonus(req.Amount, coupon.BonusPercentage)
	return s.Apply(ctx, tx, Entry{
		UserID:      req.UserID,
		Type:        models.TransactionTypeCredit,
		Amount:      bonus,
		Description: fmt.Sprintf("Coupon bonus (%s)", coupon.Code),
	})
}

func (s *service) RejectLoad(ctx context.Context, requestID uint) error {
	err := s.repo.UpdateLoadRequestStatusIf(ctx, requestID,
		models.LoadRequestPending, models.LoadRequestRejected)
	if errors.Is(err, repositories.ErrConflict) {
		settled, readErr := s.repo.GetLoadRequest(ctx, requestID)
		if readErr == nil && settled.Status == models.LoadRequestRejected {
			return nil
		}
		return ErrRequestSettled
	}
	return err
}

// Withdrawal lifecycle

func (s *service) RequestWithdrawal(ctx context.Context, userID uint, amount float64, upiID string) (*models.WithdrawalRequest, error) {
	if amount <= 0 || amount > s.config.MaxWithdrawalAmount {
		return nil, ErrInvalidAmount
	}
	if upiID == "" {
		return nil, fmt.Errorf("%w: UPI id is required", ErrInvalidAmount)
	}

	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.WalletBalance < amount {
		return nil, ErrInsufficientBalance
	}

	req := &models.WithdrawalRequest{
		UserID:   userID,
		UserName: user.Name,
		Amount:   amount,
		UPIID:    upiID,
		Status:   models.WithdrawalPending,
	}
	if err := s.repo.CreateWithdrawalRequest(ctx, req); err != nil {
		return nil, err
	}
	return req, nil
}

func (s *service) ApproveWithdrawal(ctx context.Context, requestID uint) error {
	start := time.Now()
	req, err := s.repo.GetWithdrawalRequest(ctx, requestID)
	if err != nil {
		return err
	}
	switch req.Status {
	case models.WithdrawalProcessed:
		return nil // duplicate approval is a no-op
	case models.WithdrawalRejected:
		return ErrRequestSettled
	}

	err = s.repo.ExecuteInTransaction(func(tx repositories.LedgerRepository) error {
		if err := tx.UpdateWithdrawalStatusIf(ctx, requestID,
			models.WithdrawalPending, models.WithdrawalProcessed); err != nil {
			return err
		}

		// The balance may have shrunk since the request was filed; the
		// debit guard decides at approval time.
		return s.Apply(ctx, tx, Entry{
			UserID:      req.UserID,
			Type:        models.TransactionTypeWithdrawal,
			Amount:      req.Amount,
			Description: fmt.Sprintf("Withdrawal to %s", req.UPIID),
		})
	})

	if errors.Is(err, repositories.ErrConflict) {
		settled, readErr := s.repo.GetWithdrawalRequest(ctx, requestID)
		if readErr == nil && settled.Status == models.WithdrawalProcessed {
			return nil
		}
		return ErrRequestSettled
	}
	if err != nil {
		s.metrics.RecordError("approve_withdrawal", err.Error())
		return err
	}

	s.dropCachedUser(ctx, req.UserID)
	s.metrics.RecordTransaction(models.TransactionTypeWithdrawal, req.Amount)
	s.metrics.RecordOperationDuration("approve_withdrawal", time.Since(start))
	return nil
}

func (s *service) RejectWithdrawal(ctx context.Context, requestID uint) error {
	err := s.repo.UpdateWithdrawalStatusIf(ctx, requestID,
		models.WithdrawalPending, models.WithdrawalRejected)
	if errors.Is(err, repositories.ErrConflict) {
		settled, readErr := s.repo.GetWithdrawalRequest(ctx, requestID)
		if readErr == nil && settled.Status == models.WithdrawalRejected {
			return nil
		}
		return ErrRequestSettled
	}
	return err
}

// Coupons

func (s *service) ValidateCoupon(ctx context.Context, userID uint, code string) (*models.Coupon, error) {
	coupon, err := s.repo.GetCouponByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if !coupon.IsActive {
		return nil, ErrCouponInactive
	}

	uses, err := s.repo.GetCouponUsage(ctx, userID, code)
	if err != nil {
		return nil, err
	}
	if uses >= coupon.MaxUsesPerUser {
		return nil, ErrCouponQuotaReached
	}
	return coupon, nil
}
