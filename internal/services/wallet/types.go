package wallet

// Entry is a single signed ledger movement: one balance delta plus its
// paired Transaction record. Amount is always positive; Type determines
// the sign.
type Entry struct {
	UserID      uint
	Type        string
	Amount      float64
	Description string
	GigID       *uint
}

// Config holds tunables for wallet operations.
type Config struct {
	// MinTopUpForReferral is the smallest first top-up that triggers the
	// referral settlement.
	MinTopUpForReferral float64
	// MaxLoadAmount bounds a single top-up request.
	MaxLoadAmount float64
	// MaxWithdrawalAmount bounds a single withdrawal request.
	MaxWithdrawalAmount float64
}

// LoadRequestInput is a user-submitted top-up with payment proof.
type LoadRequestInput struct {
	Amount        float64
	UTR           string
	ScreenshotURL string
	CouponCode    string
}
