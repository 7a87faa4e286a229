package engine

import "errors"

// Error definitions for zero-tolerance error handling. Phase-sequencing
// and validation failures are always rejected atomically: no cursor
// advances and no balance changes on a rejected call.
var (
	ErrUnexpectedPhase         = errors.New("machine is not in the expected phase")
	ErrEpochNotDue             = errors.New("epoch boundary has not elapsed")
	ErrNotIdle                 = errors.New("protocol is not idle")
	ErrUnauthorized            = errors.New("caller is not authorized")
	ErrVaultAlreadyRegistered  = errors.New("vault id is already registered")
	ErrInvalidEngineConfig     = errors.New("engine configuration is invalid")
	ErrInsufficientBuffer      = errors.New("buffer balance smaller than requested amount")
	ErrInsufficientProtocolFee = errors.New("protocol fee balance smaller than requested amount")
	ErrNegativeBasis           = errors.New("NAV pipeline produced a negative basis")
)
