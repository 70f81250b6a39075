package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
)

type GigStatus string

const (
	GigStatusOpen      GigStatus = "OPEN"
	GigStatusAccepted  GigStatus = "ACCEPTED"
	GigStatusCompleted GigStatus = "COMPLETED"
	GigStatusExpired   GigStatus = "EXPIRED"
)

// Terminal reports whether no further transitions are possible.
func (s GigStatus) Terminal() bool {
	return s == GigStatusCompleted || s == GigStatusExpired
}

// PartySnapshot is a point-in-time copy of a participant, captured at the
// moment of posting or acceptance. It is stored denormalized on the gig and
// never re-fetched, so the gig always shows what the counterparty saw when
// they committed.
type PartySnapshot struct {
	ID    uint   `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

// Value implements the driver.Valuer interface.
func (p PartySnapshot) Value() (driver.Value, error) {
	return json.Marshal(p)
}

// Scan implements the sql.Scanner interface.
func (p *PartySnapshot) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		if s, ok := value.(string); ok {
			bytes = []byte(s)
		} else {
			return errors.New("failed to scan party snapshot")
		}
	}
	return json.Unmarshal(bytes, p)
}

// Snapshot captures the embedded participant copy for a user.
func Snapshot(u *User) PartySnapshot {
	return PartySnapshot{ID: u.ID, Name: u.Name, Phone: u.Phone, Email: u.Email}
}

type Gig struct {
	gorm.Model
	RequesterID uint           `gorm:"index;not null"`
	Requester   PartySnapshot  `gorm:"type:jsonb"`
	DelivererID *uint          `gorm:"index"`
	Deliverer   *PartySnapshot `gorm:"type:jsonb"`

	ParcelInfo       string `gorm:"not null"`
	PickupBlock      string
	DestinationBlock string
	Size             string
	Note             string
	IsUrgent         bool

	// Price is immutable after creation: base price plus the urgent
	// surcharge, already escrowed from the requester while the gig is live.
	Price float64 `gorm:"not null"`

	// FeeRate is the platform fee in effect at creation time. Payouts use
	// this pinned rate, not the live setting, so the earnings quoted to a
	// deliverer cannot drift while the gig is in flight.
	FeeRate float64 `gorm:"not null"`

	DeliveryDeadline time.Time `gorm:"index;not null"`
	Status           GigStatus `gorm:"index;not null;default:'OPEN'"`

	// OTP proves the physical handoff. Generated at creation, shown to the
	// deliverer only after acceptance, required to complete.
	OTP string `gorm:"not null" json:"-"`

	AcceptanceSelfieURL string

	// One-shot feedback, settable only after completion.
	RequesterRating   *int
	RequesterComments string
	DelivererRating   *int
	DelivererComments string
}
