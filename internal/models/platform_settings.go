package models

import "time"

// PlatformSettings is the admin-tunable singleton configuration row.
// Percentages are stored as fractions (0.20 = 20%).
type PlatformSettings struct {
	ID                     uint    `gorm:"primarykey"`
	PlatformFee            float64 `gorm:"not null;default:0.2"`
	ReferrerReward         float64 `gorm:"not null;default:10"`
	RefereeBonusPercentage float64 `gorm:"not null;default:0.05"`
	OfferBarText           string
	UpdatedAt              time.Time
}
