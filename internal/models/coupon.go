package models

import "gorm.io/gorm"

// Coupon grants a percentage bonus on approved wallet loads.
// BonusPercentage is a fraction: 0.10 means a 10% bonus.
type Coupon struct {
	gorm.Model
	Code            string  `gorm:"uniqueIndex;not null"`
	BonusPercentage float64 `gorm:"not null"`
	MaxUsesPerUser  int     `gorm:"not null;default:1"`
	IsActive        bool    `gorm:"not null;default:true"`
}

// CouponUsage tracks per-user redemptions. Incremented with an atomic
// increment-and-check against MaxUsesPerUser, never read-then-write.
type CouponUsage struct {
	ID     uint   `gorm:"primarykey"`
	UserID uint   `gorm:"uniqueIndex:idx_coupon_usage_user_code;not null"`
	Code   string `gorm:"uniqueIndex:idx_coupon_usage_user_code;not null"`
	Uses   int    `gorm:"not null;default:0"`
}
