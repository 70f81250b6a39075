package models

import "gorm.io/gorm"

type User struct {
	gorm.Model
	Email           string `gorm:"uniqueIndex;not null"`
	Password        string `gorm:"not null" json:"-"`
	Name            string `gorm:"not null"`
	Phone           string `gorm:"uniqueIndex;not null"`
	Block           string
	ProfilePhotoURL string
	CollegeIDURL    string
	Role            string `gorm:"default:'user'"`

	// Wallet fields. WalletBalance is the single source of truth for
	// spendable funds; every mutation pairs with a Transaction row.
	WalletBalance float64 `gorm:"not null;default:0"`

	// Rating aggregate, recomputed on every completed-gig rating.
	RatingSum           float64 `gorm:"default:0"`
	RatingCount         int     `gorm:"default:0"`
	DeliveriesCompleted int     `gorm:"default:0"`

	// Referral fields, immutable after signup.
	ReferralCode           string `gorm:"uniqueIndex;not null"`
	ReferredByCode         string
	FirstRechargeCompleted bool `gorm:"default:false"`

	TokenVersion int `gorm:"default:1"`
}

// Rating returns the running average rating, 0 when unrated.
func (u *User) Rating() float64 {
	if u.RatingCount == 0 {
		return 0
	}
	return u.RatingSum / float64(u.RatingCount)
}

func (u *User) IsAdmin() bool {
	return u.Role == "admin"
}
