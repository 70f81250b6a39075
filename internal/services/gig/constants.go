package gig

import "time"

const (
	// MinAccountAge is the anti-abuse gate: accounts younger than this
	// cannot accept gigs.
	MinAccountAge = time.Hour

	// MaxUrgentWindow bounds how far out an urgent gig's deadline may be.
	MaxUrgentWindow = 30 * time.Minute

	// OTP brute-force guard.
	MaxOTPAttempts   = 5
	OTPAttemptWindow = 10 * time.Minute

	// SweepBatchSize caps how many overdue gigs one sweep pass handles.
	SweepBatchSize = 100
)
