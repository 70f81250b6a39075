package models

import "time"

// Transaction types
const (
	TransactionTypeCredit     = "CREDIT"
	TransactionTypeDebit      = "DEBIT"
	TransactionTypeTopup      = "TOPUP"
	TransactionTypePayout     = "PAYOUT"
	TransactionTypeWithdrawal = "WITHDRAWAL"
)

// Transaction is an immutable audit record. Every wallet balance mutation is
// paired with exactly one Transaction with matching sign and amount, written
// in the same database transaction.
type Transaction struct {
	ID           uint    `gorm:"primarykey"`
	UserID       uint    `gorm:"index;not null"`
	Type         string  `gorm:"not null"`
	Amount       float64 `gorm:"not null"`
	Description  string
	Reference    string `gorm:"uniqueIndex"` // external reference id
	RelatedGigID *uint  `gorm:"index"`
	CreatedAt    time.Time
}

// IsCreditType reports whether a transaction type increases the balance.
// DEBIT and WITHDRAWAL decrease it; the rest increase it.
func IsCreditType(txType string) bool {
	switch txType {
	case TransactionTypeCredit, TransactionTypeTopup, TransactionTypePayout:
		return true
	default:
		return false
	}
}

// SignedAmount is the balance delta this record represents.
func (t *Transaction) SignedAmount() float64 {
	if IsCreditType(t.Type) {
		return t.Amount
	}
	return -t.Amount
}
