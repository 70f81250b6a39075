package gig

import (
	"context"
	"regexp"
	"testing"
	"time"

	"delu/internal/models"
	"delu/internal/repositories/repotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*repotest.Ledger, Service) {
	t.Helper()
	ledger := repotest.NewLedger()
	return ledger, NewService(ledger, nil, nil, nil)
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

func createOpenGig(t *testing.T, svc Service, requesterID uint, base float64) *models.Gig {
	t.Helper()
	g, err := svc.Create(context.Background(), requesterID, CreateInput{
		ParcelInfo:       "Amazon package",
		PickupBlock:      "Main Gate",
		DestinationBlock: "Block C",
		BasePrice:        base,
		DeliveryDeadline: time.Now().Add(2 * time.Hour),
	})
	require.NoError(t, err)
	return g
}

func TestCreateEscrowsPriceAtomically(t *testing.T) {
	ledger, svc := newTestService(t)
	requester := addUser(ledger, "asha", 100)

	g := createOpenGig(t, svc, requester.ID, 50)

	assert.Equal(t, models.GigStatusOpen, g.Status)
	assert.Equal(t, 50.0, g.Price)
	assert.Equal(t, 0.20, g.FeeRate, "fee rate pinned from settings at creation")
	assert.Regexp(t, regexp.MustCompile(`^\d{4}$`), g.OTP)
	assert.Equal(t, requester.ID, g.Requester.ID)

	assert.Equal(t, 50.0, ledger.Balance(requester.ID))
	txns := ledger.TransactionsFor(requester.ID)
	require.Len(t, txns, 1)
	assert.Equal(t, models.TransactionTypeDebit, txns[0].Type)
	assert.Equal(t, 50.0, txns[0].Amount)
	require.NotNil(t, txns[0].RelatedGigID)
	assert.Equal(t, g.ID, *txns[0].RelatedGigID)
}

func TestCreateRejectsInsufficientBalance(t *testing.T) {
	ledger, svc := newTestService(t)
	requester := addUser(ledger, "broke", 10)

	_, err := svc.Create(context.Background(), requester.ID, CreateInput{
		ParcelInfo:       "parcel",
		PickupBlock:      "A",
		DestinationBlock: "B",
		BasePrice:        50,
		DeliveryDeadline: time.Now().Add(time.Hour),
	})
	require.Error(t, err)
	assert.Equal(t, 10.0, ledger.Balance(requester.ID))
}

func TestCreateUrgentPricingAndWindow(t *testing.T) {
	ledger, svc := newTestService(t)
	requester := addUser(ledger, "hurry", 200)

	// An urgent gig with a distant deadline contradicts itself.
	_, err := svc.Create(context.Background(), requester.ID, CreateInput{
		ParcelInfo:       "food order",
		PickupBlock:      "Canteen",
		DestinationBlock: "Hostel 4",
		BasePrice:        50,
		IsUrgent:         true,
		DeliveryDeadline: time.Now().Add(2 * time.Hour),
	})
	assert.ErrorIs(t, err, ErrUrgentDeadline)

	g, err := svc.Create(context.Background(), requester.ID, CreateInput{
		ParcelInfo:       "food order",
		PickupBlock:      "Canteen",
		DestinationBlock: "Hostel 4",
		BasePrice:        50,
		IsUrgent:         true,
		DeliveryDeadline: time.Now().Add(20 * time.Minute),
	})
	require.NoError(t, err)
	assert.Equal(t, 62.5, g.Price, "25% urgent surcharge")
	assert.Equal(t, 137.5, ledger.Balance(requester.ID))
}

func TestCreateInputValidation(t *testing.T) {
	ledger, svc := newTestService(t)
	requester := addUser(ledger, "val", 100)
	ctx := context.Background()

	cases := []CreateInput{
		{PickupBlock: "A", DestinationBlock: "B", BasePrice: 10, DeliveryDeadline: time.Now().Add(time.Hour)},
		{ParcelInfo: "p", DestinationBlock: "B", BasePrice: 10, DeliveryDeadline: time.Now().Add(time.Hour)},
		{ParcelInfo: "p", PickupBlock: "A", DestinationBlock: "B", BasePrice: 0, DeliveryDeadline: time.Now().Add(time.Hour)},
		{ParcelInfo: "p", PickupBlock: "A", DestinationBlock: "B", BasePrice: 10, DeliveryDeadline: time.Now().Add(-time.Minute)},
	}
	for _, in := range cases {
		_, err := svc.Create(ctx, requester.ID, in)
		assert.ErrorIs(t, err, ErrInvalidInput)
	}
}

func TestAcceptTransitionsAndSnapshots(t *testing.T) {
	ledger, svc := newTestService(t)
	requester := addUser(ledger, "asha", 100)
	deliverer := addUser(ledger, "bilal", 0)
	g := createOpenGig(t, svc, requester.ID, 50)

	accepted, err := svc.Accept(context.Background(), g.ID, deliverer.ID, "/uploads/selfies/x.jpg")
	require.NoError(t, err)

	assert.Equal(t, models.GigStatusAccepted, accepted.Status)
	require.NotNil(t, accepted.DelivererID)
	assert.Equal(t, deliverer.ID, *accepted.DelivererID)
	require.NotNil(t, accepted.Deliverer)
	assert.Equal(t, deliverer.Name, accepted.Deliverer.Name)
	assert.Equal(t, "/uploads/selfies/x.jpg", accepted.AcceptanceSelfieURL)
}

func TestAcceptRejectsOwnGig(t *testing.T) {
	ledger, svc := newTestService(t)
	requester := addUser(ledger, "asha", 100)
	g := createOpenGig(t, svc, requester.ID, 50)

	_, err := svc.Accept(context.Background(), g.ID, requester.ID, "")
	assert.ErrorIs(t, err, ErrOwnGig)
}

func TestAcceptRejectsYoungAccounts(t *testing.T) {
	ledger, svc := newTestService(t)
	requester := addUser(ledger, "asha", 100)
	fresh := addUser(ledger, "newbie", 0)
	fresh.CreatedAt = time.Now().Add(-10 * time.Minute)
	g := createOpenGig(t, svc, requester.ID, 50)

	_, err := svc.Accept(context.Background(), g.ID, fresh.ID, "")
	var tooNew *AccountTooNewError
	require.ErrorAs(t, err, &tooNew)
	assert.Greater(t, tooNew.Wait, time.Duration(0))
	assert.Contains(t, tooNew.Error(), "minutes")
}

func TestAcceptLosesRaceToFirstClaimer(t *testing.T) {
	ledger, svc := newTestService(t)
	requester := addUser(ledger, "asha", 100)
	first := addUser(ledger, "bilal", 0)
	second := addUser(ledger, "chitra", 0)
	g := createOpenGig(t, svc, requester.ID, 50)

	_, err := svc.Accept(context.Background(), g.ID, first.ID, "")
	require.NoError(t, err)

	_, err = svc.Accept(context.Background(), g.ID, second.ID, "")
	assert.ErrorIs(t, err, ErrGigUnavailable)
}

func TestCompletePaysOutNetOfFee(t *testing.T) {
	ledger, svc := newTestService(t)
	requester := addUser(ledger, "asha", 100)
	deliverer := addUser(ledger, "bilal", 0)
	g := createOpenGig(t, svc, requester.ID, 50)
	_, err := svc.Accept(context.Background(), g.ID, deliverer.ID, "")
	require.NoError(t, err)

	stored, err := svc.Get(context.Background(), g.ID)
	require.NoError(t, err)

	completed, err := svc.Complete(context.Background(), g.ID, requester.ID, stored.OTP)
	require.NoError(t, err)

	assert.Equal(t, models.GigStatusCompleted, completed.Status)
	assert.Equal(t, 40.0, ledger.Balance(deliverer.ID), "50 gross at 20% fee")
	assert.Equal(t, 50.0, ledger.Balance(requester.ID), "escrow stays spent")

	txns := ledger.TransactionsFor(deliverer.ID)
	require.Len(t, txns, 1)
	assert.Equal(t, models.TransactionTypePayout, txns[0].Type)
	assert.Equal(t, 40.0, txns[0].Amount)

	u, err := ledger.GetUserByID(context.Background(), deliverer.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, u.DeliveriesCompleted)
}

func TestCompleteGuards(t *testing.T) {
	ledger, svc := newTestService(t)
	requester := addUser(ledger, "asha", 100)
	deliverer := addUser(ledger, "bilal", 0)
	g := createOpenGig(t, svc, requester.ID, 50)
	ctx := context.Background()

	// Not accepted yet.
	_, err := svc.Complete(ctx, g.ID, requester.ID, "0000")
	assert.ErrorIs(t, err, ErrWrongStatus)

	_, err = svc.Accept(ctx, g.ID, deliverer.ID, "")
	require.NoError(t, err)

	// Only the requester confirms the handoff.
	_, err = svc.Complete(ctx, g.ID, deliverer.ID, "0000")
	assert.ErrorIs(t, err, ErrNotParticipant)

	stored, err := svc.Get(ctx, g.ID)
	require.NoError(t, err)
	wrong := "0000"
	if stored.OTP == wrong {
		wrong = "1111"
	}
	_, err = svc.Complete(ctx, g.ID, requester.ID, wrong)
	assert.ErrorIs(t, err, ErrOTPMismatch)
	assert.Equal(t, 0.0, ledger.Balance(deliverer.ID))

	_, err = svc.Complete(ctx, g.ID, requester.ID, stored.OTP)
	require.NoError(t, err)

	// Replay cannot pay twice.
	_, err = svc.Complete(ctx, g.ID, requester.ID, stored.OTP)
	assert.ErrorIs(t, err, ErrWrongStatus)
	assert.Equal(t, 40.0, ledger.Balance(deliverer.ID))
}

type countingLimiter struct {
	budget int
}

func (l *countingLimiter) Allow(ctx context.Context, gigID uint) error {
	if l.budget <= 0 {
		return ErrTooManyOTPAttempts
	}
	l.budget--
	return nil
}

func (l *countingLimiter) Reset(ctx context.Context, gigID uint) { l.budget = MaxOTPAttempts }

func TestCompleteThrottlesOTPGuesses(t *testing.T) {
	ledger := repotest.NewLedger()
	svc := NewService(ledger, &countingLimiter{budget: 2}, nil, nil)
	requester := addUser(ledger, "asha", 100)
	deliverer := addUser(ledger, "bilal", 0)
	g := createOpenGig(t, svc, requester.ID, 50)
	ctx := context.Background()
	_, err := svc.Accept(ctx, g.ID, deliverer.ID, "")
	require.NoError(t, err)

	stored, err := svc.Get(ctx, g.ID)
	require.NoError(t, err)
	wrong := "0000"
	if stored.OTP == wrong {
		wrong = "1111"
	}

	_, err = svc.Complete(ctx, g.ID, requester.ID, wrong)
	assert.ErrorIs(t, err, ErrOTPMismatch)
	_, err = svc.Complete(ctx, g.ID, requester.ID, wrong)
	assert.ErrorIs(t, err, ErrOTPMismatch)

	// Budget spent: even the right code is refused until the window resets.
	_, err = svc.Complete(ctx, g.ID, requester.ID, stored.OTP)
	assert.ErrorIs(t, err, ErrTooManyOTPAttempts)
}

func TestRateOneShotPerSide(t *testing.T) {
	ledger, svc := newTestService(t)
	requester := addUser(ledger, "asha", 100)
	deliverer := addUser(ledger, "bilal", 0)
	g := createOpenGig(t, svc, requester.ID, 50)
	ctx := context.Background()

	// Rating is gated on completion.
	err := svc.Rate(ctx, g.ID, requester.ID, 5, "great")
	assert.ErrorIs(t, err, ErrWrongStatus)

	_, err = svc.Accept(ctx, g.ID, deliverer.ID, "")
	require.NoError(t, err)
	stored, err := svc.Get(ctx, g.ID)
	require.NoError(t, err)
	_, err = svc.Complete(ctx, g.ID, requester.ID, stored.OTP)
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Rate(ctx, g.ID, requester.ID, 6, ""), ErrInvalidRating)
	assert.ErrorIs(t, svc.Rate(ctx, g.ID, 999, 4, ""), ErrNotParticipant)

	require.NoError(t, svc.Rate(ctx, g.ID, requester.ID, 5, "fast"))
	assert.ErrorIs(t, svc.Rate(ctx, g.ID, requester.ID, 4, "changed my mind"), ErrAlreadyRated)

	require.NoError(t, svc.Rate(ctx, g.ID, deliverer.ID, 4, "clear instructions"))

	rated, err := svc.Get(ctx, g.ID)
	require.NoError(t, err)
	require.NotNil(t, rated.DelivererRating)
	assert.Equal(t, 5, *rated.DelivererRating)
	require.NotNil(t, rated.RequesterRating)
	assert.Equal(t, 4, *rated.RequesterRating)

	d, err := ledger.GetUserByID(ctx, deliverer.ID)
	require.NoError(t, err)
	assert.Equal(t, 5.0, d.Rating())
	r, err := ledger.GetUserByID(ctx, requester.ID)
	require.NoError(t, err)
	assert.Equal(t, 4.0, r.Rating())
}

func TestExpireRefundsEscrow(t *testing.T) {
	ledger, svc := newTestService(t)
	requester := addUser(ledger, "asha", 100)
	ctx := context.Background()

	g, err := svc.Create(ctx, requester.ID, CreateInput{
		ParcelInfo:       "parcel",
		PickupBlock:      "A",
		DestinationBlock: "B",
		BasePrice:        50,
		DeliveryDeadline: time.Now().Add(time.Minute),
	})
	require.NoError(t, err)
	assert.Equal(t, 50.0, ledger.Balance(requester.ID))

	// Deadline still ahead.
	assert.ErrorIs(t, svc.Expire(ctx, g.ID), ErrDeadlineNotReached)

	ledger.Gigs[g.ID].DeliveryDeadline = time.Now().Add(-time.Minute)

	require.NoError(t, svc.Expire(ctx, g.ID))
	assert.Equal(t, 100.0, ledger.Balance(requester.ID))

	expired, err := svc.Get(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, models.GigStatusExpired, expired.Status)

	// Expiring again is a no-op, not a second refund.
	require.NoError(t, svc.Expire(ctx, g.ID))
	assert.Equal(t, 100.0, ledger.Balance(requester.ID))
}

func TestExpireRefundsAcceptedGigs(t *testing.T) {
	ledger, svc := newTestService(t)
	requester := addUser(ledger, "asha", 100)
	deliverer := addUser(ledger, "bilal", 0)
	ctx := context.Background()

	g := createOpenGig(t, svc, requester.ID, 50)
	_, err := svc.Accept(ctx, g.ID, deliverer.ID, "")
	require.NoError(t, err)

	ledger.Gigs[g.ID].DeliveryDeadline = time.Now().Add(-time.Minute)

	require.NoError(t, svc.Expire(ctx, g.ID))
	assert.Equal(t, 100.0, ledger.Balance(requester.ID), "abandoned delivery refunds the requester")
	assert.Equal(t, 0.0, ledger.Balance(deliverer.ID))
}

func TestSweepExpiredHandlesBatch(t *testing.T) {
	ledger, svc := newTestService(t)
	requester := addUser(ledger, "asha", 500)
	ctx := context.Background()

	overdue1 := createOpenGig(t, svc, requester.ID, 50)
	overdue2 := createOpenGig(t, svc, requester.ID, 30)
	createOpenGig(t, svc, requester.ID, 20) // still within deadline

	ledger.Gigs[overdue1.ID].DeliveryDeadline = time.Now().Add(-time.Hour)
	ledger.Gigs[overdue2.ID].DeliveryDeadline = time.Now().Add(-time.Hour)

	n, err := svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 480.0, ledger.Balance(requester.ID), "500 - 100 escrowed + 80 refunded")
}

// TestDeliveryScenario walks the canonical flow end to end and reconciles
// the ledger against the balances.
func TestDeliveryScenario(t *testing.T) {
	ledger, svc := newTestService(t)
	requester := addUser(ledger, "asha", 100)
	deliverer := addUser(ledger, "bilal", 0)
	ctx := context.Background()

	g := createOpenGig(t, svc, requester.ID, 50)
	_, err := svc.Accept(ctx, g.ID, deliverer.ID, "")
	require.NoError(t, err)

	stored, err := svc.Get(ctx, g.ID)
	require.NoError(t, err)
	_, err = svc.Complete(ctx, g.ID, requester.ID, stored.OTP)
	require.NoError(t, err)

	assert.Equal(t, 50.0, ledger.Balance(requester.ID))
	assert.Equal(t, 40.0, ledger.Balance(deliverer.ID))

	// Every balance equals its starting point plus the signed sum of its
	// transactions.
	for userID, start := range map[uint]float64{requester.ID: 100, deliverer.ID: 0} {
		sum := start
		for _, txn := range ledger.TransactionsFor(userID) {
			sum += txn.SignedAmount()
		}
		assert.Equal(t, ledger.Balance(userID), sum)
	}
}

func TestListOpenAndForUser(t *testing.T) {
	ledger, svc := newTestService(t)
	requester := addUser(ledger, "asha", 200)
	deliverer := addUser(ledger, "bilal", 0)
	bystander := addUser(ledger, "chitra", 0)
	ctx := context.Background()

	g1 := createOpenGig(t, svc, requester.ID, 50)
	createOpenGig(t, svc, requester.ID, 30)
	_, err := svc.Accept(ctx, g1.ID, deliverer.ID, "")
	require.NoError(t, err)

	open, err := svc.ListOpen(ctx, 0, 0)
	require.NoError(t, err)
	assert.Len(t, open, 1)

	mine, err := svc.ListForUser(ctx, deliverer.ID)
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	none, err := svc.ListForUser(ctx, bystander.ID)
	require.NoError(t, err)
	assert.Empty(t, none)
}

type recordingInvalidator struct{ dropped []uint }

func (r *recordingInvalidator) InvalidateUserID(_ context.Context, userID uint) error {
	r.dropped = append(r.dropped, userID)
	return nil
}

func TestBalanceWritesDropCachedUsers(t *testing.T) {
	ledger := repotest.NewLedger()
	inv := &recordingInvalidator{}
	svc := NewService(ledger, nil, nil, inv)

	requester := addUser(ledger, "asha", 100)
	deliverer := addUser(ledger, "bilal", 0)

	g := createOpenGig(t, svc, requester.ID, 50)
	assert.Equal(t, []uint{requester.ID}, inv.dropped,
		"escrow debit stales the requester's cached balance")

	_, err := svc.Accept(context.Background(), g.ID, deliverer.ID, "selfie.jpg")
	require.NoError(t, err)

	inv.dropped = nil
	_, err = svc.Complete(context.Background(), g.ID, requester.ID, g.OTP)
	require.NoError(t, err)
	assert.Contains(t, inv.dropped, deliverer.ID,
		"payout stales the deliverer's cached balance")

	inv.dropped = nil
	require.NoError(t, svc.Rate(context.Background(), g.ID, requester.ID, 5, "quick"))
	assert.Contains(t, inv.dropped, deliverer.ID,
		"rating stales the rated user's aggregate")
}

func TestExpireDropsRequesterCache(t *testing.T) {
	ledger := repotest.NewLedger()
	inv := &recordingInvalidator{}
	svc := NewService(ledger, nil, nil, inv)

	requester := addUser(ledger, "asha", 100)
	g := createOpenGig(t, svc, requester.ID, 40)
	inv.dropped = nil

	ledger.Gigs[g.ID].DeliveryDeadline = time.Now().Add(-time.Minute)
	require.NoError(t, svc.Expire(context.Background(), g.ID))
	assert.Equal(t, []uint{requester.ID}, inv.dropped,
		"refund stales the requester's cached balance")
}
