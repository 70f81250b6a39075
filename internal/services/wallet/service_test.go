package wallet_test

import (
	"context"
	"testing"
	"time"

	"delu/internal/models"
	"delu/internal/repositories"
	"delu/internal/repositories/repotest"
	"delu/internal/services/referral"
	"delu/internal/services/wallet"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*repotest.Ledger, wallet.Service) {
	t.Helper()
	ledger := repotest.NewLedger()
	svc := wallet.NewService(ledger, referral.NewService(nil), wallet.Config{}, nil, nil)
	return ledger, svc
}

func addUser(ledger *repotest.Ledger, name string, balance float64) *models.User {
	return ledger.AddUser(&models.User{
		Name:          name,
		Email:         name + "@campus.test",
		Phone:         "9" + name,
		WalletBalance: balance,
		ReferralCode:  "REF" + name,
	})
}

func fileLoadRequest(t *testing.T, svc wallet.Service, userID uint, amount float64, coupon string) *models.WalletLoadRequest {
	t.Helper()
	req, err := svc.RequestLoad(context.Background(), userID, wallet.LoadRequestInput{
		Amount:     amount,
		UTR:        "UTR123456",
		CouponCode: coupon,
	})
	require.NoError(t, err)
	return req
}

func TestCreditAndDebitPairTransactions(t *testing.T) {
	ledger, svc := newTestService(t)
	user := addUser(ledger, "asha", 0)
	ctx := context.Background()

	require.NoError(t, svc.Credit(ctx, user.ID, 100, models.TransactionTypeCredit, "seed", nil))
	require.NoError(t, svc.Debit(ctx, user.ID, 30, "spend", nil))

	assert.Equal(t, 70.0, ledger.Balance(user.ID))

	txns := ledger.TransactionsFor(user.ID)
	require.Len(t, txns, 2)
	assert.Equal(t, models.TransactionTypeCredit, txns[0].Type)
	assert.Equal(t, models.TransactionTypeDebit, txns[1].Type)
	assert.NotEmpty(t, txns[0].Reference)
	assert.NotEqual(t, txns[0].Reference, txns[1].Reference)
}

func TestDebitRefusesOverdraft(t *testing.T) {
	ledger, svc := newTestService(t)
	user := addUser(ledger, "asha", 20)

	err := svc.Debit(context.Background(), user.ID, 50, "too much", nil)
	assert.ErrorIs(t, err, wallet.ErrInsufficientBalance)
	assert.Equal(t, 20.0, ledger.Balance(user.ID))
	assert.Empty(t, ledger.TransactionsFor(user.ID))
}

func TestCreditRejectsDebitTypes(t *testing.T) {
	ledger, svc := newTestService(t)
	user := addUser(ledger, "asha", 0)

	err := svc.Credit(context.Background(), user.ID, 10, models.TransactionTypeDebit, "wrong", nil)
	assert.Error(t, err)
	assert.Equal(t, 0.0, ledger.Balance(user.ID))
}

func TestApproveLoadCreditsTopUp(t *testing.T) {
	ledger, svc := newTestService(t)
	user := addUser(ledger, "asha", 0)
	req := fileLoadRequest(t, svc, user.ID, 200, "")

	require.NoError(t, svc.ApproveLoad(context.Background(), req.ID))

	assert.Equal(t, 200.0, ledger.Balance(user.ID))
	txns := ledger.TransactionsFor(user.ID)
	require.Len(t, txns, 1)
	assert.Equal(t, models.TransactionTypeTopup, txns[0].Type)

	stored, err := ledger.GetLoadRequest(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LoadRequestApproved, stored.Status)
}

// TestApproveLoadWithCouponBonus covers the worked recharge scenario: a 200
// load with a 10% coupon lands exactly 220 as a TOPUP of 200 plus a CREDIT
// of 20, and a duplicate approval changes nothing.
func TestApproveLoadWithCouponBonus(t *testing.T) {
	ledger, svc := newTestService(t)
	user := addUser(ledger, "asha", 0)
	ctx := context.Background()

	_, err := ledger.GetCouponByCode(ctx, "WELCOME10")
	require.ErrorIs(t, err, repositories.ErrCouponNotFound)
	require.NoError(t, ledger.CreateCoupon(ctx, &models.Coupon{
		Code: "WELCOME10", BonusPercentage: 0.10, MaxUsesPerUser: 1, IsActive: true,
	}))

	req := fileLoadRequest(t, svc, user.ID, 200, "WELCOME10")
	require.NoError(t, svc.ApproveLoad(ctx, req.ID))

	assert.Equal(t, 220.0, ledger.Balance(user.ID))
	txns := ledger.TransactionsFor(user.ID)
	require.Len(t, txns, 2)
	assert.Equal(t, models.TransactionTypeTopup, txns[0].Type)
	assert.Equal(t, 200.0, txns[0].Amount)
	assert.Equal(t, models.TransactionTypeCredit, txns[1].Type)
	assert.Equal(t, 20.0, txns[1].Amount)

	// A second admin clicking approve is a no-op.
	require.NoError(t, svc.ApproveLoad(ctx, req.ID))
	assert.Equal(t, 220.0, ledger.Balance(user.ID))
	assert.Len(t, ledger.TransactionsFor(user.ID), 2)
}

func TestCouponQuotaHoldsAcrossLoads(t *testing.T) {
	ledger, svc := newTestService(t)
	user := addUser(ledger, "asha", 0)
	ctx := context.Background()

	require.NoError(t, ledger.CreateCoupon(ctx, &models.Coupon{
		Code: "ONCE", BonusPercentage: 0.10, MaxUsesPerUser: 1, IsActive: true,
	}))

	first := fileLoadRequest(t, svc, user.ID, 100, "ONCE")
	require.NoError(t, svc.ApproveLoad(ctx, first.ID))
	assert.Equal(t, 110.0, ledger.Balance(user.ID))

	// Validation now refuses the exhausted code up front.
	_, err := svc.RequestLoad(ctx, user.ID, wallet.LoadRequestInput{
		Amount: 100, UTR: "UTR2", CouponCode: "ONCE",
	})
	assert.ErrorIs(t, err, wallet.ErrCouponQuotaReached)
}

func TestInactiveCouponSkipsBonusAtApproval(t *testing.T) {
	ledger, svc := newTestService(t)
	user := addUser(ledger, "asha", 0)
	ctx := context.Background()

	require.NoError(t, ledger.CreateCoupon(ctx, &models.Coupon{
		Code: "SOON", BonusPercentage: 0.10, MaxUsesPerUser: 1, IsActive: true,
	}))
	req := fileLoadRequest(t, svc, user.ID, 100, "SOON")

	// Deactivated between submission and approval: the top-up still lands,
	// the bonus quietly does not.
	coupon, err := ledger.GetCouponByCode(ctx, "SOON")
	require.NoError(t, err)
	coupon.IsActive = false
	require.NoError(t, ledger.UpdateCoupon(ctx, coupon))

	require.NoError(t, svc.ApproveLoad(ctx, req.ID))
	assert.Equal(t, 100.0, ledger.Balance(user.ID))
	assert.Len(t, ledger.TransactionsFor(user.ID), 1)
}

func TestRejectLoadIsTerminal(t *testing.T) {
	ledger, svc := newTestService(t)
	user := addUser(ledger, "asha", 0)
	ctx := context.Background()
	req := fileLoadRequest(t, svc, user.ID, 100, "")

	require.NoError(t, svc.RejectLoad(ctx, req.ID))
	assert.Equal(t, 0.0, ledger.Balance(user.ID))

	// Rejected requests cannot be approved later.
	assert.ErrorIs(t, svc.ApproveLoad(ctx, req.ID), wallet.ErrRequestSettled)
	// Rejecting again stays a no-op.
	require.NoError(t, svc.RejectLoad(ctx, req.ID))
}

func TestFirstQualifyingTopUpSettlesReferral(t *testing.T) {
	ledger, svc := newTestService(t)
	referrer := addUser(ledger, "asha", 0)
	referee := ledger.AddUser(&models.User{
		Name: "bilal", Email: "b@campus.test", Phone: "9b",
		ReferralCode: "REFB", ReferredByCode: referrer.ReferralCode,
	})
	ctx := context.Background()

	req := fileLoadRequest(t, svc, referee.ID, 200, "")
	require.NoError(t, svc.ApproveLoad(ctx, req.ID))

	assert.Equal(t, 10.0, ledger.Balance(referrer.ID), "fixed referrer reward")
	// 200 top-up plus 5% first-recharge bonus.
	assert.Equal(t, 210.0, ledger.Balance(referee.ID))

	stored, err := ledger.GetUserByID(ctx, referee.ID)
	require.NoError(t, err)
	assert.True(t, stored.FirstRechargeCompleted)

	// A second qualifying top-up pays no one again.
	second := fileLoadRequest(t, svc, referee.ID, 150, "")
	require.NoError(t, svc.ApproveLoad(ctx, second.ID))
	assert.Equal(t, 10.0, ledger.Balance(referrer.ID))
	assert.Equal(t, 360.0, ledger.Balance(referee.ID))
}

func TestSmallFirstTopUpDoesNotSettleReferral(t *testing.T) {
	ledger, svc := newTestService(t)
	referrer := addUser(ledger, "asha", 0)
	referee := ledger.AddUser(&models.User{
		Name: "bilal", Email: "b@campus.test", Phone: "9b",
		ReferralCode: "REFB", ReferredByCode: referrer.ReferralCode,
	})
	ctx := context.Background()

	req := fileLoadRequest(t, svc, referee.ID, 50, "")
	require.NoError(t, svc.ApproveLoad(ctx, req.ID))

	assert.Equal(t, 0.0, ledger.Balance(referrer.ID))
	assert.Equal(t, 50.0, ledger.Balance(referee.ID))

	stored, err := ledger.GetUserByID(ctx, referee.ID)
	require.NoError(t, err)
	assert.False(t, stored.FirstRechargeCompleted, "threshold not met, chance preserved")

	// The next top-up crossing the threshold still counts as first.
	second := fileLoadRequest(t, svc, referee.ID, 150, "")
	require.NoError(t, svc.ApproveLoad(ctx, second.ID))
	assert.Equal(t, 0.0, ledger.Balance(referrer.ID), "a TOPUP already existed")
}

func TestWithdrawalLifecycle(t *testing.T) {
	ledger, svc := newTestService(t)
	user := addUser(ledger, "asha", 100)
	ctx := context.Background()

	// Balance must cover the request up front.
	_, err := svc.RequestWithdrawal(ctx, user.ID, 150, "asha@upi")
	assert.ErrorIs(t, err, wallet.ErrInsufficientBalance)

	req, err := svc.RequestWithdrawal(ctx, user.ID, 80, "asha@upi")
	require.NoError(t, err)

	require.NoError(t, svc.ApproveWithdrawal(ctx, req.ID))
	assert.Equal(t, 20.0, ledger.Balance(user.ID))

	txns := ledger.TransactionsFor(user.ID)
	require.Len(t, txns, 1)
	assert.Equal(t, models.TransactionTypeWithdrawal, txns[0].Type)

	// Duplicate approval is a no-op.
	require.NoError(t, svc.ApproveWithdrawal(ctx, req.ID))
	assert.Equal(t, 20.0, ledger.Balance(user.ID))
}

func TestApproveWithdrawalRechecksBalance(t *testing.T) {
	ledger, svc := newTestService(t)
	user := addUser(ledger, "asha", 100)
	ctx := context.Background()

	req, err := svc.RequestWithdrawal(ctx, user.ID, 80, "asha@upi")
	require.NoError(t, err)

	// The user spends the money before the admin gets to the queue.
	require.NoError(t, svc.Debit(ctx, user.ID, 50, "gig escrow", nil))

	err = svc.ApproveWithdrawal(ctx, req.ID)
	assert.ErrorIs(t, err, wallet.ErrInsufficientBalance)
	assert.Equal(t, 50.0, ledger.Balance(user.ID))
}

func TestRejectWithdrawalKeepsBalance(t *testing.T) {
	ledger, svc := newTestService(t)
	user := addUser(ledger, "asha", 100)
	ctx := context.Background()

	req, err := svc.RequestWithdrawal(ctx, user.ID, 80, "asha@upi")
	require.NoError(t, err)

	require.NoError(t, svc.RejectWithdrawal(ctx, req.ID))
	assert.Equal(t, 100.0, ledger.Balance(user.ID))
	assert.ErrorIs(t, svc.ApproveWithdrawal(ctx, req.ID), wallet.ErrRequestSettled)
}

func TestManualCreditByPhone(t *testing.T) {
	ledger, svc := newTestService(t)
	user := addUser(ledger, "asha", 10)

	updated, err := svc.ManualCredit(context.Background(), user.Phone, 25, "support adjustment")
	require.NoError(t, err)
	assert.Equal(t, 35.0, updated.WalletBalance)

	_, err = svc.ManualCredit(context.Background(), "0000000000", 25, "nobody")
	assert.ErrorIs(t, err, repositories.ErrUserNotFound)
}

func TestRequestLoadValidation(t *testing.T) {
	ledger, svc := newTestService(t)
	user := addUser(ledger, "asha", 0)
	ctx := context.Background()

	_, err := svc.RequestLoad(ctx, user.ID, wallet.LoadRequestInput{Amount: 0, UTR: "x"})
	assert.ErrorIs(t, err, wallet.ErrInvalidAmount)

	_, err = svc.RequestLoad(ctx, user.ID, wallet.LoadRequestInput{Amount: 100})
	assert.ErrorIs(t, err, wallet.ErrInvalidAmount)

	_, err = svc.RequestLoad(ctx, user.ID, wallet.LoadRequestInput{
		Amount: 100, UTR: "x", CouponCode: "GHOST",
	})
	assert.ErrorIs(t, err, repositories.ErrCouponNotFound)
}

type recordingInvalidator struct{ dropped []uint }

func (r *recordingInvalidator) InvalidateUserID(_ context.Context, userID uint) error {
	r.dropped = append(r.dropped, userID)
	return nil
}

type recordingMetrics struct {
	wallet.NoopMetricsCollector
	durations []string
}

func (r *recordingMetrics) RecordOperationDuration(operation string, _ time.Duration) {
	r.durations = append(r.durations, operation)
}

func TestApprovalDropsCachedParties(t *testing.T) {
	ledger := repotest.NewLedger()
	inv := &recordingInvalidator{}
	svc := wallet.NewService(ledger, referral.NewService(inv), wallet.Config{}, nil, inv)

	referrer := addUser(ledger, "asha", 0)
	referee := ledger.AddUser(&models.User{
		Name: "bilal", Email: "b@campus.test", Phone: "9b",
		ReferralCode: "REFB", ReferredByCode: referrer.ReferralCode,
	})
	ctx := context.Background()

	req := fileLoadRequest(t, svc, referee.ID, 200, "")
	require.NoError(t, svc.ApproveLoad(ctx, req.ID))

	// Everyone whose balance moved must be re-read from the database.
	assert.Contains(t, inv.dropped, referee.ID)
	assert.Contains(t, inv.dropped, referrer.ID)
}

func TestMovementsDropCachedUser(t *testing.T) {
	ledger := repotest.NewLedger()
	inv := &recordingInvalidator{}
	svc := wallet.NewService(ledger, nil, wallet.Config{}, nil, inv)
	user := addUser(ledger, "asha", 100)
	ctx := context.Background()

	require.NoError(t, svc.Credit(ctx, user.ID, 20, models.TransactionTypeCredit, "adjustment", nil))
	require.NoError(t, svc.Debit(ctx, user.ID, 5, "correction", nil))

	wr, err := svc.RequestWithdrawal(ctx, user.ID, 50, "asha@upi")
	require.NoError(t, err)
	inv.dropped = nil
	require.NoError(t, svc.ApproveWithdrawal(ctx, wr.ID))
	assert.Equal(t, []uint{user.ID}, inv.dropped,
		"processed withdrawal stales the cached balance")

	// A failed movement leaves the cache alone.
	inv.dropped = nil
	require.Error(t, svc.Debit(ctx, user.ID, 1e6, "overdraft", nil))
	assert.Empty(t, inv.dropped)
}

func TestOperationsRecordDurations(t *testing.T) {
	ledger := repotest.NewLedger()
	m := &recordingMetrics{}
	svc := wallet.NewService(ledger, nil, wallet.Config{}, m, nil)
	user := addUser(ledger, "asha", 100)
	ctx := context.Background()

	req := fileLoadRequest(t, svc, user.ID, 200, "")
	require.NoError(t, svc.ApproveLoad(ctx, req.ID))
	require.NoError(t, svc.Debit(ctx, user.ID, 10, "correction", nil))

	assert.Contains(t, m.durations, "approve_load")
	assert.Contains(t, m.durations, "debit")
}
