package models

import "gorm.io/gorm"

type LoadRequestStatus string

const (
	LoadRequestPending  LoadRequestStatus = "PENDING"
	LoadRequestApproved LoadRequestStatus = "APPROVED"
	LoadRequestRejected LoadRequestStatus = "REJECTED"
)

// WalletLoadRequest is a user-submitted top-up backed by a UPI payment proof.
// Terminal once approved or rejected; approval credits the balance.
type WalletLoadRequest struct {
	gorm.Model
	UserID        uint `gorm:"index;not null"`
	UserName      string
	Amount        float64 `gorm:"not null"`
	UTR           string  `gorm:"not null"`
	ScreenshotURL string
	CouponCode    string
	Status        LoadRequestStatus `gorm:"index;not null;default:'PENDING'"`
}

type WithdrawalStatus string

const (
	WithdrawalPending   WithdrawalStatus = "PENDING"
	WithdrawalProcessed WithdrawalStatus = "PROCESSED"
	WithdrawalRejected  WithdrawalStatus = "REJECTED"
)

// WithdrawalRequest asks the platform to pay out wallet funds to a UPI id.
// The balance is checked again at approval time, not just at request time.
type WithdrawalRequest struct {
	gorm.Model
	UserID   uint `gorm:"index;not null"`
	UserName string
	Amount   float64 `gorm:"not null"`
	UPIID    string  `gorm:"not null"`
	Status   WithdrawalStatus `gorm:"index;not null;default:'PENDING'"`
}
