package stable

import "errors"

var (
	// ErrNotConfigured indicates a required collaborator reference is unset.
	ErrNotConfigured = errors.New("stable: collaborator not configured")
	// ErrAmountBelowMinimum indicates the requested amount is under the protocol floor.
	ErrAmountBelowMinimum = errors.New("stable: amount below protocol minimum")
	// ErrAmountAboveMaximum indicates the requested amount exceeds the protocol ceiling.
	ErrAmountAboveMaximum = errors.New("stable: amount above protocol maximum")
	// ErrStalePrice indicates no trustworthy quote could be produced within the freshness window.
	ErrStalePrice = errors.New("stable: price quote stale or unavailable")
	// ErrDeviationExceeded indicates the AMM price deviated from the reference beyond the configured bound.
	ErrDeviationExceeded = errors.New("stable: price deviation exceeds bound")
	// ErrInsufficientBalance indicates the caller lacks the funds backing the operation.
	ErrInsufficientBalance = errors.New("stable: insufficient balance")
	// ErrPermission indicates the caller is not authorised for an admin operation.
	ErrPermission = errors.New("stable: caller not authorised")
	// ErrReentrancy indicates an operation attempted to start while another was in flight.
	ErrReentrancy = errors.New("stable: reentrant call rejected")
	// ErrUndercollateralized gates operations that require the system to hold a full backing.
	ErrUndercollateralized = errors.New("stable: collateral ratio below parity")
	// ErrBoundCooldown indicates a deviation bound update arrived before the cooldown elapsed.
	ErrBoundCooldown = errors.New("stable: deviation bound cooldown active")
	// ErrBoundLoosened rejects deviation bound updates that do not strictly tighten.
	ErrBoundLoosened = errors.New("stable: deviation bound may only tighten")
	// ErrBoundOutOfRange rejects deviation bound updates outside the configured floor/ceiling.
	ErrBoundOutOfRange = errors.New("stable: deviation bound outside permitted range")
)
