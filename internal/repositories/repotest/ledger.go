// Package repotest provides an in-memory LedgerRepository for service tests.
// It mirrors the conditional-update semantics of the gorm implementation:
// compare-and-swap transitions fail with ErrConflict, balance debits past
// zero fail with ErrInsufficientFunds.
package repotest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"delu/internal/models"
	"delu/internal/repositories"
)

type Ledger struct {
	mu sync.Mutex

	Users        map[uint]*models.User
	Gigs         map[uint]*models.Gig
	Transactions []models.Transaction
	LoadRequests map[uint]*models.WalletLoadRequest
	Withdrawals  map[uint]*models.WithdrawalRequest
	Coupons      map[string]*models.Coupon
	CouponUses   map[string]int
	Settings     models.PlatformSettings

	nextID uint
}

func NewLedger() *Ledger {
	return &Ledger{
		Users:        make(map[uint]*models.User),
		Gigs:         make(map[uint]*models.Gig),
		LoadRequests: make(map[uint]*models.WalletLoadRequest),
		Withdrawals:  make(map[uint]*models.WithdrawalRequest),
		Coupons:      make(map[string]*models.Coupon),
		CouponUses:   make(map[string]int),
		Settings: models.PlatformSettings{
			ID:                     1,
			PlatformFee:            0.20,
			ReferrerReward:         10,
			RefereeBonusPercentage: 0.05,
		},
	}
}

var _ repositories.LedgerRepository = (*Ledger)(nil)

func (l *Ledger) id() uint {
	l.nextID++
	return l.nextID
}

// AddUser stores the user, assigning an id if needed, and returns it.
func (l *Ledger) AddUser(u *models.User) *models.User {
	l.mu.Lock()
	defer l.mu.Unlock()
	if u.ID == 0 {
		u.ID = l.id()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().Add(-24 * time.Hour)
	}
	l.Users[u.ID] = u
	return u
}

// Balance returns the current wallet balance for assertions.
func (l *Ledger) Balance(userID uint) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.Users[userID].WalletBalance
}

// TransactionsFor returns the user's transaction rows for assertions.
func (l *Ledger) TransactionsFor(userID uint) []models.Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.Transaction
	for _, t := range l.Transactions {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out
}

// ExecuteInTransaction runs fn directly; the in-memory store has no
// rollback, which is fine for the happy and conflict paths under test.
func (l *Ledger) ExecuteInTransaction(fn func(repositories.LedgerRepository) error) error {
	return fn(l)
}

// Users and balances

func (l *Ledger) GetUserByID(ctx context.Context, id uint) (*models.User, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	u, ok := l.Users[id]
	if !ok {
		return nil, repositories.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (l *Ledger) GetUserByPhone(ctx context.Context, phone string) (*models.User, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, u := range l.Users {
		if u.Phone == phone {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repositories.ErrUserNotFound
}

func (l *Ledger) GetUserByReferralCode(ctx context.Context, code string) (*models.User, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, u := range l.Users {
		if u.ReferralCode == code {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repositories.ErrUserNotFound
}

func (l *Ledger) AddToBalance(ctx context.Context, userID uint, delta float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	u, ok := l.Users[userID]
	if !ok {
		return repositories.ErrUserNotFound
	}
	if u.WalletBalance+delta < 0 {
		return repositories.ErrInsufficientFunds
	}
	u.WalletBalance += delta
	return nil
}

func (l *Ledger) AddRating(ctx context.Context, userID uint, rating int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	u, ok := l.Users[userID]
	if !ok {
		return repositories.ErrUserNotFound
	}
	u.RatingSum += float64(rating)
	u.RatingCount++
	return nil
}

func (l *Ledger) IncrementDeliveriesCompleted(ctx context.Context, userID uint) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	u, ok := l.Users[userID]
	if !ok {
		return repositories.ErrUserNotFound
	}
	u.DeliveriesCompleted++
	return nil
}

func (l *Ledger) MarkFirstRechargeCompleted(ctx context.Context, userID uint) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	u, ok := l.Users[userID]
	if !ok {
		return false, repositories.ErrUserNotFound
	}
	if u.FirstRechargeCompleted {
		return false, nil
	}
	u.FirstRechargeCompleted = true
	return true, nil
}

// Transactions

func (l *Ledger) CreateTransaction(ctx context.Context, txn *models.Transaction) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	txn.ID = l.id()
	txn.CreatedAt = time.Now()
	l.Transactions = append(l.Transactions, *txn)
	return nil
}

func (l *Ledger) ListTransactions(ctx context.Context, userID uint, limit, offset int) ([]models.Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.Transaction
	for _, t := range l.Transactions {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (l *Ledger) HasTransactionOfType(ctx context.Context, userID uint, txType string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, t := range l.Transactions {
		if t.UserID == userID && t.Type == txType {
			return true, nil
		}
	}
	return false, nil
}

// Gigs

func (l *Ledger) CreateGig(ctx context.Context, gig *models.Gig) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	gig.ID = l.id()
	gig.CreatedAt = time.Now()
	cp := *gig
	l.Gigs[gig.ID] = &cp
	return nil
}

func (l *Ledger) GetGig(ctx context.Context, id uint) (*models.Gig, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	g, ok := l.Gigs[id]
	if !ok {
		return nil, repositories.ErrGigNotFound
	}
	cp := *g
	return &cp, nil
}

func (l *Ledger) ListGigsByStatus(ctx context.Context, status models.GigStatus, limit, offset int) ([]models.Gig, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.Gig
	for _, g := range l.Gigs {
		if g.Status == status {
			out = append(out, *g)
		}
	}
	return out, nil
}

func (l *Ledger) ListGigsByUser(ctx context.Context, userID uint) ([]models.Gig, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.Gig
	for _, g := range l.Gigs {
		if g.RequesterID == userID || (g.DelivererID != nil && *g.DelivererID == userID) {
			out = append(out, *g)
		}
	}
	return out, nil
}

func (l *Ledger) ListExpirableGigs(ctx context.Context, cutoff time.Time, limit int) ([]models.Gig, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.Gig
	for _, g := range l.Gigs {
		if !g.Status.Terminal() && g.DeliveryDeadline.Before(cutoff) {
			out = append(out, *g)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (l *Ledger) UpdateGigStatusIf(ctx context.Context, gigID uint, from, to models.GigStatus, updates map[string]interface{}) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	g, ok := l.Gigs[gigID]
	if !ok {
		return repositories.ErrGigNotFound
	}
	if g.Status != from {
		return repositories.ErrConflict
	}
	g.Status = to
	for col, val := range updates {
		switch col {
		case "deliverer_id":
			id := val.(uint)
			g.DelivererID = &id
		case "deliverer":
			g.Deliverer = val.(*models.PartySnapshot)
		case "acceptance_selfie_url":
			g.AcceptanceSelfieURL = val.(string)
		default:
			return fmt.Errorf("repotest: unsupported gig column %q", col)
		}
	}
	return nil
}

func (l *Ledger) ExpireGigIf(ctx context.Context, gigID uint, now time.Time) (*models.Gig, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	g, ok := l.Gigs[gigID]
	if !ok {
		return nil, repositories.ErrGigNotFound
	}
	if g.Status.Terminal() || !g.DeliveryDeadline.Before(now) {
		return nil, repositories.ErrConflict
	}
	g.Status = models.GigStatusExpired
	cp := *g
	return &cp, nil
}

func (l *Ledger) SetGigRating(ctx context.Context, gigID uint, side repositories.RatingSide, rating int, comments string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	g, ok := l.Gigs[gigID]
	if !ok {
		return repositories.ErrGigNotFound
	}
	if g.Status != models.GigStatusCompleted {
		return repositories.ErrConflict
	}
	switch side {
	case repositories.RatingSideRequester:
		if g.RequesterRating != nil {
			return repositories.ErrConflict
		}
		g.RequesterRating = &rating
		g.RequesterComments = comments
	case repositories.RatingSideDeliverer:
		if g.DelivererRating != nil {
			return repositories.ErrConflict
		}
		g.DelivererRating = &rating
		g.DelivererComments = comments
	default:
		return fmt.Errorf("repotest: unknown rating side %q", side)
	}
	return nil
}

// Wallet load requests

func (l *Ledger) CreateLoadRequest(ctx context.Context, req *models.WalletLoadRequest) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	req.ID = l.id()
	req.CreatedAt = time.Now()
	cp := *req
	l.LoadRequests[req.ID] = &cp
	return nil
}

func (l *Ledger) GetLoadRequest(ctx context.Context, id uint) (*models.WalletLoadRequest, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.LoadRequests[id]
	if !ok {
		return nil, repositories.ErrRequestNotFound
	}
	cp := *r
	return &cp, nil
}

func (l *Ledger) ListLoadRequests(ctx context.Context, status models.LoadRequestStatus, limit, offset int) ([]models.WalletLoadRequest, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.WalletLoadRequest
	for _, r := range l.LoadRequests {
		if r.Status == status {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (l *Ledger) UpdateLoadRequestStatusIf(ctx context.Context, id uint, from, to models.LoadRequestStatus) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.LoadRequests[id]
	if !ok {
		return repositories.ErrRequestNotFound
	}
	if r.Status != from {
		return repositories.ErrConflict
	}
	r.Status = to
	return nil
}

// Withdrawal requests

func (l *Ledger) CreateWithdrawalRequest(ctx context.Context, req *models.WithdrawalRequest) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	req.ID = l.id()
	req.CreatedAt = time.Now()
	cp := *req
	l.Withdrawals[req.ID] = &cp
	return nil
}

func (l *Ledger) GetWithdrawalRequest(ctx context.Context, id uint) (*models.WithdrawalRequest, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.Withdrawals[id]
	if !ok {
		return nil, repositories.ErrRequestNotFound
	}
	cp := *r
	return &cp, nil
}

func (l *Ledger) ListWithdrawalRequests(ctx context.Context, status models.WithdrawalStatus, limit, offset int) ([]models.WithdrawalRequest, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.WithdrawalRequest
	for _, r := range l.Withdrawals {
		if r.Status == status {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (l *Ledger) UpdateWithdrawalStatusIf(ctx context.Context, id uint, from, to models.WithdrawalStatus) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.Withdrawals[id]
	if !ok {
		return repositories.ErrRequestNotFound
	}
	if r.Status != from {
		return repositories.ErrConflict
	}
	r.Status = to
	return nil
}

// Coupons

func (l *Ledger) GetCouponByCode(ctx context.Context, code string) (*models.Coupon, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.Coupons[code]
	if !ok {
		return nil, repositories.ErrCouponNotFound
	}
	cp := *c
	return &cp, nil
}

func (l *Ledger) ListCoupons(ctx context.Context) ([]models.Coupon, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.Coupon
	for _, c := range l.Coupons {
		out = append(out, *c)
	}
	return out, nil
}

func (l *Ledger) CreateCoupon(ctx context.Context, coupon *models.Coupon) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.Coupons[coupon.Code]; exists {
		return fmt.Errorf("repotest: duplicate coupon %q", coupon.Code)
	}
	coupon.ID = l.id()
	cp := *coupon
	l.Coupons[coupon.Code] = &cp
	return nil
}

func (l *Ledger) UpdateCoupon(ctx context.Context, coupon *models.Coupon) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for code, c := range l.Coupons {
		if c.ID == coupon.ID {
			delete(l.Coupons, code)
			cp := *coupon
			l.Coupons[coupon.Code] = &cp
			return nil
		}
	}
	return repositories.ErrCouponNotFound
}

func (l *Ledger) DeleteCoupon(ctx context.Context, id uint) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for code, c := range l.Coupons {
		if c.ID == id {
			delete(l.Coupons, code)
			return nil
		}
	}
	return repositories.ErrCouponNotFound
}

func couponUsageKey(userID uint, code string) string {
	return fmt.Sprintf("%d:%s", userID, code)
}

func (l *Ledger) IncrementCouponUsage(ctx context.Context, userID uint, code string, maxUses int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := couponUsageKey(userID, code)
	if l.CouponUses[key] >= maxUses {
		return repositories.ErrCouponQuotaExceeded
	}
	l.CouponUses[key]++
	return nil
}

func (l *Ledger) GetCouponUsage(ctx context.Context, userID uint, code string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.CouponUses[couponUsageKey(userID, code)], nil
}

// Platform settings

func (l *Ledger) GetSettings(ctx context.Context) (*models.PlatformSettings, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cp := l.Settings
	return &cp, nil
}

func (l *Ledger) UpdateSettings(ctx context.Context, settings *models.PlatformSettings) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	settings.ID = 1
	l.Settings = *settings
	return nil
}
