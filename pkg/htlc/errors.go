package htlc

import "errors"

// Error taxonomy shared by the ledger adapters and the coordinator. Adapters
// translate ledger-native failures into these values so the coordinator can
// react uniformly regardless of which chain produced them.
var (
	// ErrInvalidRequest marks malformed parameters, rejected before any
	// ledger interaction.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrInvalidTimelock marks a lock window outside the configured bounds.
	ErrInvalidTimelock = errors.New("invalid timelock")

	// ErrAlreadyExists marks a duplicate lock submission with identical
	// parameters; the existing escrow stands, no second one is created.
	ErrAlreadyExists = errors.New("lock already exists")

	// ErrInvalidSecret marks a claim whose secret does not hash to the
	// stored hashlock.
	ErrInvalidSecret = errors.New("secret does not match hashlock")

	// ErrExpired marks a claim attempted at or after the timelock.
	ErrExpired = errors.New("lock has expired")

	// ErrNotExpired marks a refund attempted before the timelock.
	ErrNotExpired = errors.New("lock has not expired yet")

	// ErrAlreadySettled marks a claim or refund on a lock that was already
	// claimed or refunded. The coordinator treats this as "someone already
	// resolved it", not as a hard failure.
	ErrAlreadySettled = errors.New("lock already settled")

	// ErrLockNotFound marks a query for an unknown lock id.
	ErrLockNotFound = errors.New("lock not found")
)
