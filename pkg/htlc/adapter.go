package htlc

import (
	"context"
	"math/big"
	"time"

	"swapsage-bridge/pkg/types"
)

// LockParams are the uniform inputs for escrowing funds under a hashlock.
// Address and asset encodings are chain-specific; each adapter validates them
// before any network call.
type LockParams struct {
	Sender    string
	Recipient string
	Asset     string // empty means the chain's native asset
	Amount    *big.Int
	Hashlock  Hashlock
	Timelock  time.Time
}

// LockResult identifies a newly created escrow.
type LockResult struct {
	LockID string // ledger-native lock identifier
	TxRef  string // ledger-native transaction reference
}

// ClaimResult is returned when escrowed funds are released to the recipient.
type ClaimResult struct {
	TxRef string
}

// RefundResult is returned when escrowed funds go back to the locker.
type RefundResult struct {
	TxRef string
}

// LockInfo is the read-only view of an escrow's current state.
type LockInfo struct {
	LockID    string
	Sender    string
	Recipient string
	Asset     string
	Amount    *big.Int
	Hashlock  Hashlock
	Timelock  time.Time
	State     LockState
	// Preimage is set once the lock has been claimed, on ledgers where the
	// claim record exposes it. Nil otherwise.
	Preimage *Secret
}

// Adapter abstracts one ledger's lock/claim/refund mechanics. Implementations
// exist for the EVM HTLC contract, Stellar claimable balances, and an
// in-memory ledger used by tests and demo mode. Every operation is safe to
// retry: adapters re-check current lock state and report ErrAlreadyExists or
// ErrAlreadySettled rather than creating duplicate effects.
type Adapter interface {
	// Kind names the ledger this adapter drives.
	Kind() types.ChainKind

	// ValidateAddress rejects account identifiers that are malformed for
	// this chain, before any network call.
	ValidateAddress(addr string) error

	// Lock escrows funds under hashlock until timelock. The timelock must
	// be within the adapter's configured [min, max] window from now.
	Lock(ctx context.Context, p LockParams) (*LockResult, error)

	// Claim releases the escrow to the recipient by revealing the secret.
	// The secret becomes part of the permanent ledger record.
	Claim(ctx context.Context, lockID string, secret Secret) (*ClaimResult, error)

	// Refund returns the escrow to the locker once the timelock has passed.
	Refund(ctx context.Context, lockID string) (*RefundResult, error)

	// QueryLock reads the escrow's current state.
	QueryLock(ctx context.Context, lockID string) (*LockInfo, error)
}
