package gig

import (
	"errors"
	"fmt"
	"time"
)

// Service errors
var (
	ErrInvalidInput       = errors.New("invalid gig input")
	ErrUrgentDeadline     = errors.New("urgent gigs must be deliverable within 30 minutes")
	ErrOwnGig             = errors.New("cannot accept your own gig")
	ErrGigUnavailable     = errors.New("gig is no longer available")
	ErrNotParticipant     = errors.New("user is not a participant of this gig")
	ErrWrongStatus        = errors.New("gig is not in the required status")
	ErrOTPMismatch        = errors.New("incorrect OTP")
	ErrTooManyOTPAttempts = errors.New("too many OTP attempts, try again later")
	ErrAlreadyRated       = errors.New("rating already submitted")
	ErrInvalidRating      = errors.New("rating must be between 1 and 5")
	ErrDeadlineNotReached = errors.New("gig deadline has not passed")
)

// AccountTooNewError reports how long a fresh account must wait before it
// may accept gigs.
type AccountTooNewError struct {
	Wait time.Duration
}

func (e *AccountTooNewError) Error() string {
	minutes := int(e.Wait.Minutes()) + 1
	return fmt.Sprintf("account is too new: you can start accepting gigs in about %d minutes", minutes)
}
