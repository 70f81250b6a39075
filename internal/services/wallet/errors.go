package wallet

import "errors"

// Service errors
var (
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrRequestSettled      = errors.New("request already settled")
	ErrCouponInactive      = errors.New("coupon is not active")
	ErrCouponQuotaReached  = errors.New("coupon usage limit reached")
)
