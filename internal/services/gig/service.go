package gig

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"delu/internal/logger"
	"delu/internal/models"
	"delu/internal/money"
	"delu/internal/repositories"
	"delu/internal/services/wallet"

	"go.uber.org/zap"
)

type service struct {
	repo    repositories.LedgerRepository
	limiter AttemptLimiter
	metrics MetricsCollector
	cache   UserCacheInvalidator
}

// NewService creates a new gig service. A nil limiter disables OTP attempt
// throttling; a nil metrics collector discards metrics; a nil cache
// disables invalidation.
func NewService(
	repo repositories.LedgerRepository,
	limiter AttemptLimiter,
	metrics MetricsCollector,
	cache UserCacheInvalidator,
) Service {
	if repo == nil {
		panic("repo is required")
	}
	if limiter == nil {
		limiter = NoopAttemptLimiter{}
	}
	if metrics == nil {
		metrics = &NoopMetricsCollector{}
	}
	if cache == nil {
		cache = NoopUserCacheInvalidator{}
	}
	return &service{repo: repo, limiter: limiter, metrics: metrics, cache: cache}
}

// dropCachedUser evicts a user's cached row after a committed write touched
// their balance, rating or delivery count.
func (s *service) dropCachedUser(ctx context.Context, userID uint) {
	if err := s.cache.InvalidateUserID(ctx, userID); err != nil {
		logger.Log.Warn("failed to invalidate cached user",
			zap.Uint("user_id", userID), zap.Error(err))
	}
}

func (s *service) Create(ctx context.Context, requesterID uint, in CreateInput) (*models.Gig, error) {
	if in.ParcelInfo == "" || in.PickupBlock == "" || in.DestinationBlock == "" {
		return nil, fmt.Errorf("%w: parcel info, pickup and destination are required", ErrInvalidInput)
	}
	if in.BasePrice <= 0 {
		return nil, fmt.Errorf("%w: price must be positive", ErrInvalidInput)
	}

	now := time.Now()
	if !in.DeliveryDeadline.After(now) {
		return nil, fmt.Errorf("%w: deadline must be in the future", ErrInvalidInput)
	}
	if in.IsUrgent && in.DeliveryDeadline.After(now.Add(MaxUrgentWindow)) {
		return nil, ErrUrgentDeadline
	}

	requester, err := s.repo.GetUserByID(ctx, requesterID)
	if err != nil {
		return nil, err
	}

	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return nil, err
	}

	otp, err := generateOTP()
	if err != nil {
		return nil, err
	}

	gig := &models.Gig{
		RequesterID:      requesterID,
		Requester:        models.Snapshot(requester),
		ParcelInfo:       in.ParcelInfo,
		PickupBlock:      in.PickupBlock,
		DestinationBlock: in.DestinationBlock,
		Size:             in.Size,
		Note:             in.Note,
		IsUrgent:         in.IsUrgent,
		Price:            money.GigPrice(in.BasePrice, in.IsUrgent),
		FeeRate:          settings.PlatformFee,
		DeliveryDeadline: in.DeliveryDeadline,
		Status:           models.GigStatusOpen,
		OTP:              otp,
	}

	// The gig row and its escrow debit commit or fail together, so an
	// OPEN gig always has the requester's money behind it.
	err = s.repo.ExecuteInTransaction(func(tx repositories.LedgerRepository) error {
		if err := tx.CreateGig(ctx, gig); err != nil {
			return err
		}
		return wallet.ApplyEntry(ctx, tx, wallet.Entry{
			UserID:      requesterID,
			Type:        models.TransactionTypeDebit,
			Amount:      gig.Price,
			Description: fmt.Sprintf("Gig created: %s", gig.ParcelInfo),
			GigID:       &gig.ID,
		})
	})
	if err != nil {
		s.metrics.RecordError("create", err.Error())
		return nil, err
	}

	s.dropCachedUser(ctx, requesterID)
	s.metrics.RecordGigEvent("created")
	logger.Log.Info("gig created",
		zap.Uint("gig_id", gig.ID),
		zap.Uint("requester_id", requesterID),
		zap.Float64("price", gig.Price),
		zap.Bool("urgent", gig.IsUrgent))
	return gig, nil
}

func (s *service) Accept(ctx context.Context, gigID, delivererID uint, selfieURL string) (*models.Gig, error) {
	deliverer, err := s.repo.GetUserByID(ctx, delivererID)
	if err != nil {
		return nil, err
	}

	if age := time.Since(deliverer.CreatedAt); age < MinAccountAge {
		return nil, &AccountTooNewError{Wait: MinAccountAge - age}
	}

	gig, err := s.repo.GetGig(ctx, gigID)
	if err != nil {
		return nil, err
	}
	if gig.RequesterID == delivererID {
		return nil, ErrOwnGig
	}
	if gig.Status != models.GigStatusOpen {
		return nil, ErrGigUnavailable
	}

	snapshot := models.Snapshot(deliverer)
	err = s.repo.UpdateGigStatusIf(ctx, gigID,
		models.GigStatusOpen, models.GigStatusAccepted,
		map[string]interface{}{
			"deliverer_id":          delivererID,
			"deliverer":             &snapshot,
			"acceptance_selfie_url": selfieURL,
		})
	if errors.Is(err, repositories.ErrConflict) {
		// Someone else claimed it first.
		return nil, ErrGigUnavailable
	}
	if err != nil {
		s.metrics.RecordError("accept", err.Error())
		return nil, err
	}

	s.metrics.RecordGigEvent("accepted")
	logger.Log.Info("gig accepted",
		zap.Uint("gig_id", gigID),
		zap.Uint("deliverer_id", delivererID))
	return s.repo.GetGig(ctx, gigID)
}

func (s *service) Complete(ctx context.Context, gigID, requesterID uint, otp string) (*models.Gig, error) {
	gig, err := s.repo.GetGig(ctx, gigID)
	if err != nil {
		return nil, err
	}
	if gig.RequesterID != requesterID {
		return nil, ErrNotParticipant
	}
	if gig.Status != models.GigStatusAccepted {
		return nil, ErrWrongStatus
	}

	if err := s.limiter.Allow(ctx, gigID); err != nil {
		return nil, err
	}
	if subtle.ConstantTimeCompare([]byte(gig.OTP), []byte(otp)) != 1 {
		s.metrics.RecordError("complete", "otp_mismatch")
		return nil, ErrOTPMismatch
	}

	payout := money.PayoutNet(gig.Price, gig.FeeRate)
	delivererID := *gig.DelivererID

	err = s.repo.ExecuteInTransaction(func(tx repositories.LedgerRepository) error {
		if err := tx.UpdateGigStatusIf(ctx, gigID,
			models.GigStatusAccepted, models.GigStatusCompleted, nil); err != nil {
			return err
		}
		if err := wallet.ApplyEntry(ctx, tx, wallet.Entry{
			UserID:      delivererID,
			Type:        models.TransactionTypePayout,
			Amount:      payout,
			Description: fmt.Sprintf("Delivery payout: %s", gig.ParcelInfo),
			GigID:       &gig.ID,
		}); err != nil {
			return err
		}
		return tx.IncrementDeliveriesCompleted(ctx, delivererID)
	})
	if errors.Is(err, repositories.ErrConflict) {
		return nil, ErrWrongStatus
	}
	if err != nil {
		s.metrics.RecordError("complete", err.Error())
		return nil, err
	}

	s.limiter.Reset(ctx, gigID)
	s.dropCachedUser(ctx, delivererID)
	s.metrics.RecordGigEvent("completed")
	logger.Log.Info("gig completed",
		zap.Uint("gig_id", gigID),
		zap.Uint("deliverer_id", delivererID),
		zap.Float64("payout", payout))
	return s.repo.GetGig(ctx, gigID)
}

func (s *service) Rate(ctx context.Context, gigID, raterID uint, rating int, comments string) error {
	if rating < 1 || rating > 5 {
		return ErrInvalidRating
	}

	gig, err := s.repo.GetGig(ctx, gigID)
	if err != nil {
		return err
	}
	if gig.Status != models.GigStatusCompleted {
		return ErrWrongStatus
	}

	// Each party rates the other; the column records who received the score.
	var side repositories.RatingSide
	var ratedID uint
	switch {
	case raterID == gig.RequesterID:
		side, ratedID = repositories.RatingSideDeliverer, *gig.DelivererID
	case gig.DelivererID != nil && raterID == *gig.DelivererID:
		side, ratedID = repositories.RatingSideRequester, gig.RequesterID
	default:
		return ErrNotParticipant
	}

	err = s.repo.ExecuteInTransaction(func(tx repositories.LedgerRepository) error {
		if err := tx.SetGigRating(ctx, gigID, side, rating, comments); err != nil {
			return err
		}
		return tx.AddRating(ctx, ratedID, rating)
	})
	if errors.Is(err, repositories.ErrConflict) {
		return ErrAlreadyRated
	}
	if err != nil {
		return err
	}

	s.dropCachedUser(ctx, ratedID)
	return nil
}

func (s *service) Expire(ctx context.Context, gigID uint) error {
	var requesterID uint
	err := s.repo.ExecuteInTransaction(func(tx repositories.LedgerRepository) error {
		expired, err := tx.ExpireGigIf(ctx, gigID, time.Now())
		if err != nil {
			return err
		}
		requesterID = expired.RequesterID
		// The escrow always goes back to the requester, whether the gig
		// was never picked up or was accepted and abandoned.
		return wallet.ApplyEntry(ctx, tx, wallet.Entry{
			UserID:      expired.RequesterID,
			Type:        models.TransactionTypeCredit,
			Amount:      expired.Price,
			Description: fmt.Sprintf("Refund for expired gig: %s", expired.ParcelInfo),
			GigID:       &expired.ID,
		})
	})
	if errors.Is(err, repositories.ErrConflict) {
		gig, readErr := s.repo.GetGig(ctx, gigID)
		if readErr != nil {
			return readErr
		}
		if gig.Status.Terminal() {
			return nil // already settled, refund happened elsewhere
		}
		return ErrDeadlineNotReached
	}
	if err != nil {
		s.metrics.RecordError("expire", err.Error())
		return err
	}

	s.dropCachedUser(ctx, requesterID)
	s.metrics.RecordGigEvent("expired")
	logger.Log.Info("gig expired and refunded", zap.Uint("gig_id", gigID))
	return nil
}

func (s *service) SweepExpired(ctx context.Context) (int, error) {
	overdue, err := s.repo.ListExpirableGigs(ctx, time.Now(), SweepBatchSize)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, gig := range overdue {
		if err := s.Expire(ctx, gig.ID); err != nil {
			logger.Log.Error("failed to expire gig",
				zap.Uint("gig_id", gig.ID), zap.Error(err))
			continue
		}
		expired++
	}
	return expired, nil
}

func (s *service) ListOpen(ctx context.Context, limit, offset int) ([]models.Gig, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.repo.ListGigsByStatus(ctx, models.GigStatusOpen, limit, offset)
}

func (s *service) ListForUser(ctx context.Context, userID uint) ([]models.Gig, error) {
	return s.repo.ListGigsByUser(ctx, userID)
}

func (s *service) Get(ctx context.Context, gigID uint) (*models.Gig, error) {
	return s.repo.GetGig(ctx, gigID)
}
