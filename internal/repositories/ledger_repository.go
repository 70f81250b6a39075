package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"delu/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ledgerRepository struct {
	db *gorm.DB
}

// NewLedgerRepository creates the gorm-backed ledger repository.
func NewLedgerRepository(db *gorm.DB) LedgerRepository {
	return &ledgerRepository{db: db}
}

func (r *ledgerRepository) ExecuteInTransaction(fn func(LedgerRepository) error) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		return fn(&ledgerRepository{db: tx})
	})
}

// Users and balances

func (r *ledgerRepository) GetUserByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

func (r *ledgerRepository) GetUserByPhone(ctx context.Context, phone string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("phone = ?", phone).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by phone: %w", err)
	}
	return &user, nil
}

func (r *ledgerRepository) GetUserByReferralCode(ctx context.Context, code string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("referral_code = ?", code).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by referral code: %w", err)
	}
	return &user, nil
}

func (r *ledgerRepository) AddToBalance(ctx context.Context, userID uint, delta float64) error {
	// The guard rides in the WHERE clause so the check and the write are one
	// statement; a concurrent debit cannot slip the balance below zero.
	res := r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND wallet_balance + ? >= 0", userID, delta).
		UpdateColumn("wallet_balance", gorm.Expr("wallet_balance + ?", delta))
	if res.Error != nil {
		return fmt.Errorf("failed to update balance: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := r.GetUserByID(ctx, userID); err != nil {
			return err
		}
		return ErrInsufficientFunds
	}
	return nil
}

func (r *ledgerRepository) AddRating(ctx context.Context, userID uint, rating int) error {
	res := r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		UpdateColumns(map[string]interface{}{
			"rating_sum":   gorm.Expr("rating_sum + ?", rating),
			"rating_count": gorm.Expr("rating_count + 1"),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to add rating: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *ledgerRepository) IncrementDeliveriesCompleted(ctx context.Context, userID uint) error {
	res := r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		UpdateColumn("deliveries_completed", gorm.Expr("deliveries_completed + 1"))
	if res.Error != nil {
		return fmt.Errorf("failed to increment deliveries: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *ledgerRepository) MarkFirstRechargeCompleted(ctx context.Context, userID uint) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND first_recharge_completed = ?", userID, false).
		UpdateColumn("first_recharge_completed", true)
	if res.Error != nil {
		return false, fmt.Errorf("failed to mark first recharge: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// Transactions

func (r *ledgerRepository) CreateTransaction(ctx context.Context, txn *models.Transaction) error {
	if err := r.db.WithContext(ctx).Create(txn).Error; err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

func (r *ledgerRepository) ListTransactions(ctx context.Context, userID uint, limit, offset int) ([]models.Transaction, error) {
	var txns []models.Transaction
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&txns).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return txns, nil
}

func (r *ledgerRepository) HasTransactionOfType(ctx context.Context, userID uint, txType string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("user_id = ? AND type = ?", userID, txType).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to count transactions: %w", err)
	}
	return count > 0, nil
}

// Gigs

func (r *ledgerRepository) CreateGig(ctx context.Context, gig *models.Gig) error {
	if err := r.db.WithContext(ctx).Create(gig).Error; err != nil {
		return fmt.Errorf("failed to create gig: %w", err)
	}
	return nil
}

func (r *ledgerRepository) GetGig(ctx context.Context, id uint) (*models.Gig, error) {
	var gig models.Gig
	if err := r.db.WithContext(ctx).First(&gig, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrGigNotFound
		}
		return nil, fmt.Errorf("failed to get gig: %w", err)
	}
	return &gig, nil
}

func (r *ledgerRepository) ListGigsByStatus(ctx context.Context, status models.GigStatus, limit, offset int) ([]models.Gig, error) {
	var gigs []models.Gig
	err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&gigs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list gigs: %w", err)
	}
	return gigs, nil
}

func (r *ledgerRepository) ListGigsByUser(ctx context.Context, userID uint) ([]models.Gig, error) {
	var gigs []models.Gig
	err := r.db.WithContext(ctx).
		Where("requester_id = ? OR deliverer_id = ?", userID, userID).
		Order("created_at DESC").
		Find(&gigs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list user gigs: %w", err)
	}
	return gigs, nil
}

func (r *ledgerRepository) ListExpirableGigs(ctx context.Context, cutoff time.Time, limit int) ([]models.Gig, error) {
	var gigs []models.Gig
	err := r.db.WithContext(ctx).
		Where("status IN ? AND delivery_deadline < ?",
			[]models.GigStatus{models.GigStatusOpen, models.GigStatusAccepted}, cutoff).
		Order("delivery_deadline ASC").
		Limit(limit).
		Find(&gigs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list expirable gigs: %w", err)
	}
	return gigs, nil
}

func (r *ledgerRepository) UpdateGigStatusIf(ctx context.Context, gigID uint, from, to models.GigStatus, updates map[string]interface{}) error {
	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["status"] = to
	res := r.db.WithContext(ctx).Model(&models.Gig{}).
		Where("id = ? AND status = ?", gigID, from).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to update gig status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := r.GetGig(ctx, gigID); err != nil {
			return err
		}
		return ErrConflict
	}
	return nil
}

func (r *ledgerRepository) ExpireGigIf(ctx context.Context, gigID uint, now time.Time) (*models.Gig, error) {
	res := r.db.WithContext(ctx).Model(&models.Gig{}).
		Where("id = ? AND status IN ? AND delivery_deadline < ?",
			gigID, []models.GigStatus{models.GigStatusOpen, models.GigStatusAccepted}, now).
		UpdateColumn("status", models.GigStatusExpired)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to expire gig: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := r.GetGig(ctx, gigID); err != nil {
			return nil, err
		}
		return nil, ErrConflict
	}
	return r.GetGig(ctx, gigID)
}

func (r *ledgerRepository) SetGigRating(ctx context.Context, gigID uint, side RatingSide, rating int, comments string) error {
	var column, commentsColumn string
	switch side {
	case RatingSideRequester:
		column, commentsColumn = "requester_rating", "requester_comments"
	case RatingSideDeliverer:
		column, commentsColumn = "deliverer_rating", "deliverer_comments"
	default:
		return fmt.Errorf("unknown rating side: %q", side)
	}

	res := r.db.WithContext(ctx).Model(&models.Gig{}).
		Where(fmt.Sprintf("id = ? AND status = ? AND %s IS NULL", column), gigID, models.GigStatusCompleted).
		UpdateColumns(map[string]interface{}{
			column:         rating,
			commentsColumn: comments,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to set gig rating: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := r.GetGig(ctx, gigID); err != nil {
			return err
		}
		return ErrConflict
	}
	return nil
}

// Wallet load requests

func (r *ledgerRepository) CreateLoadRequest(ctx context.Context, req *models.WalletLoadRequest) error {
	if err := r.db.WithContext(ctx).Create(req).Error; err != nil {
		return fmt.Errorf("failed to create load request: %w", err)
	}
	return nil
}

func (r *ledgerRepository) GetLoadRequest(ctx context.Context, id uint) (*models.WalletLoadRequest, error) {
	var req models.WalletLoadRequest
	if err := r.db.WithContext(ctx).First(&req, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, fmt.Errorf("failed to get load request: %w", err)
	}
	return &req, nil
}

func (r *ledgerRepository) ListLoadRequests(ctx context.Context, status models.LoadRequestStatus, limit, offset int) ([]models.WalletLoadRequest, error) {
	var reqs []models.WalletLoadRequest
	q := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Offset(offset)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if err := q.Find(&reqs).Error; err != nil {
		return nil, fmt.Errorf("failed to list load requests: %w", err)
	}
	return reqs, nil
}

func (r *ledgerRepository) UpdateLoadRequestStatusIf(ctx context.Context, id uint, from, to models.LoadRequestStatus) error {
	res := r.db.WithContext(ctx).Model(&models.WalletLoadRequest{}).
		Where("id = ? AND status = ?", id, from).
		UpdateColumn("status", to)
	if res.Error != nil {
		return fmt.Errorf("failed to update load request: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := r.GetLoadRequest(ctx, id); err != nil {
			return err
		}
		return ErrConflict
	}
	return nil
}

// Withdrawal requests

func (r *ledgerRepository) CreateWithdrawalRequest(ctx context.Context, req *models.WithdrawalRequest) error {
	if err := r.db.WithContext(ctx).Create(req).Error; err != nil {
		return fmt.Errorf("failed to create withdrawal request: %w", err)
	}
	return nil
}

func (r *ledgerRepository) GetWithdrawalRequest(ctx context.Context, id uint) (*models.WithdrawalRequest, error) {
	var req models.WithdrawalRequest
	if err := r.db.WithContext(ctx).First(&req, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, fmt.Errorf("failed to get withdrawal request: %w", err)
	}
	return &req, nil
}

func (r *ledgerRepository) ListWithdrawalRequests(ctx context.Context, status models.WithdrawalStatus, limit, offset int) ([]models.WithdrawalRequest, error) {
	var reqs []models.WithdrawalRequest
	q := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Offset(offset)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if err := q.Find(&reqs).Error; err != nil {
		return nil, fmt.Errorf("failed to list withdrawal requests: %w", err)
	}
	return reqs, nil
}

func (r *ledgerRepository) UpdateWithdrawalStatusIf(ctx context.Context, id uint, from, to models.WithdrawalStatus) error {
	res := r.db.WithContext(ctx).Model(&models.WithdrawalRequest{}).
		Where("id = ? AND status = ?", id, from).
		UpdateColumn("status", to)
	if res.Error != nil {
		return fmt.Errorf("failed to update withdrawal request: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := r.GetWithdrawalRequest(ctx, id); err != nil {
			return err
		}
		return ErrConflict
	}
	return nil
}

// Coupons

func (r *ledgerRepository) GetCouponByCode(ctx context.Context, code string) (*models.Coupon, error) {
	var coupon models.Coupon
	if err := r.db.WithContext(ctx).Where("code = ?", code).First(&coupon).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCouponNotFound
		}
		return nil, fmt.Errorf("failed to get coupon: %w", err)
	}
	return &coupon, nil
}

func (r *ledgerRepository) ListCoupons(ctx context.Context) ([]models.Coupon, error) {
	var coupons []models.Coupon
	if err := r.db.WithContext(ctx).Order("created_at DESC").Find(&coupons).Error; err != nil {
		return nil, fmt.Errorf("failed to list coupons: %w", err)
	}
	return coupons, nil
}

func (r *ledgerRepository) CreateCoupon(ctx context.Context, coupon *models.Coupon) error {
	if err := r.db.WithContext(ctx).Create(coupon).Error; err != nil {
		return fmt.Errorf("failed to create coupon: %w", err)
	}
	return nil
}

func (r *ledgerRepository) UpdateCoupon(ctx context.Context, coupon *models.Coupon) error {
	if err := r.db.WithContext(ctx).Save(coupon).Error; err != nil {
		return fmt.Errorf("failed to update coupon: %w", err)
	}
	return nil
}

func (r *ledgerRepository) DeleteCoupon(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&models.Coupon{}, id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete coupon: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrCouponNotFound
	}
	return nil
}

func (r *ledgerRepository) IncrementCouponUsage(ctx context.Context, userID uint, code string, maxUses int) error {
	// Ensure the counter row exists, then increment under the quota guard.
	// Both statements are atomic on their own; the quota check lives in the
	// WHERE clause of the increment.
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.CouponUsage{UserID: userID, Code: code, Uses: 0}).Error
	if err != nil {
		return fmt.Errorf("failed to upsert coupon usage: %w", err)
	}

	res := r.db.WithContext(ctx).Model(&models.CouponUsage{}).
		Where("user_id = ? AND code = ? AND uses < ?", userID, code, maxUses).
		UpdateColumn("uses", gorm.Expr("uses + 1"))
	if res.Error != nil {
		return fmt.Errorf("failed to increment coupon usage: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrCouponQuotaExceeded
	}
	return nil
}

func (r *ledgerRepository) GetCouponUsage(ctx context.Context, userID uint, code string) (int, error) {
	var usage models.CouponUsage
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND code = ?", userID, code).
		First(&usage).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get coupon usage: %w", err)
	}
	return usage.Uses, nil
}

// Platform settings

func (r *ledgerRepository) GetSettings(ctx context.Context) (*models.PlatformSettings, error) {
	var settings models.PlatformSettings
	err := r.db.WithContext(ctx).First(&settings).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Defaults apply until an admin writes the row.
			return &models.PlatformSettings{
				PlatformFee:            0.2,
				ReferrerReward:         10,
				RefereeBonusPercentage: 0.05,
			}, nil
		}
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}
	return &settings, nil
}

func (r *ledgerRepository) UpdateSettings(ctx context.Context, settings *models.PlatformSettings) error {
	settings.ID = 1
	if err := r.db.WithContext(ctx).Save(settings).Error; err != nil {
		return fmt.Errorf("failed to update settings: %w", err)
	}
	return nil
}
