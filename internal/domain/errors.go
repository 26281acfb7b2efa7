package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrRoundNotFound     = errors.New("round not found")
	ErrNoBet             = errors.New("no bet in round")
	ErrLockHeld          = errors.New("lock already held")
	ErrRateLimited       = errors.New("rate limited")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrNotConfigured     = errors.New("not configured")
	ErrTxReverted        = errors.New("transaction reverted")
	ErrTxTimeout         = errors.New("transaction not confirmed in time")
	ErrInvalidSignature  = errors.New("invalid claim signature")
	ErrClaimExpired      = errors.New("claim deadline passed")
	ErrNothingToClaim    = errors.New("nothing to claim")
	ErrDuplicate         = errors.New("duplicate request in flight")
	ErrOracleUnavailable = errors.New("price oracle unavailable")
)
