package wallet

// Default configuration values
const (
	DefaultMinTopUpForReferral = 100.0
	DefaultMaxLoadAmount       = 10000.0
	DefaultMaxWithdrawalAmount = 10000.0
)
