package htlc

import (
	"context"
	"fmt"
)

// LockState is the lifecycle position of a single leg's escrow.
type LockState string

const (
	StateCreated  LockState = "created"  // parameters known, nothing on-ledger
	StateLocked   LockState = "locked"   // funds escrowed
	StateClaimed  LockState = "claimed"  // released by secret reveal; terminal
	StateRefunded LockState = "refunded" // returned after timeout; terminal
)

// Terminal returns true for states no transition leaves.
func (s LockState) Terminal() bool {
	return s == StateClaimed || s == StateRefunded
}

// CanTransition reports whether moving from one state to another is legal.
// Locked has no explicit expired state: expiry only changes which transition
// (claim vs refund) the ledger will accept.
func CanTransition(from, to LockState) bool {
	switch from {
	case StateCreated:
		return to == StateLocked
	case StateLocked:
		return to == StateClaimed || to == StateRefunded
	}
	return false
}

// Machine drives one leg of a swap through its ledger adapter while holding
// the leg's position in the lifecycle. The same machine runs both sides of a
// swap; only the adapter differs. It is not safe for concurrent use; the
// coordinator serializes all operations per swap id.
type Machine struct {
	adapter Adapter
	lockID  string
	state   LockState
}

// NewMachine returns a machine for a leg that has not locked yet.
func NewMachine(adapter Adapter) *Machine {
	return &Machine{adapter: adapter, state: StateCreated}
}

// Resume returns a machine positioned at a previously persisted state, used
// when the coordinator picks an in-flight swap back up after a restart.
func Resume(adapter Adapter, lockID string, state LockState) *Machine {
	return &Machine{adapter: adapter, lockID: lockID, state: state}
}

func (m *Machine) State() LockState { return m.state }
func (m *Machine) LockID() string   { return m.lockID }

// Lock escrows the leg. Valid exactly once; a machine already past Created
// refuses rather than double-locking, and an ErrAlreadyExists from the ledger
// (duplicate parameters, e.g. a retry racing a confirmed submission) moves the
// machine to Locked since the escrow provably exists.
func (m *Machine) Lock(ctx context.Context, p LockParams) (*LockResult, error) {
	if m.state != StateCreated {
		return nil, fmt.Errorf("lock from %s: %w", m.state, ErrAlreadyExists)
	}
	res, err := m.adapter.Lock(ctx, p)
	if err != nil {
		return nil, err
	}
	m.lockID = res.LockID
	m.state = StateLocked
	return res, nil
}

// Claim releases the escrow with the secret. Only legal from Locked.
func (m *Machine) Claim(ctx context.Context, secret Secret) (*ClaimResult, error) {
	if !CanTransition(m.state, StateClaimed) {
		return nil, fmt.Errorf("claim from %s: %w", m.state, ErrAlreadySettled)
	}
	res, err := m.adapter.Claim(ctx, m.lockID, secret)
	if err != nil {
		return nil, err
	}
	m.state = StateClaimed
	return res, nil
}

// Refund returns the escrow to the locker. Only legal from Locked, and the
// ledger will additionally require the timelock to have passed.
func (m *Machine) Refund(ctx context.Context) (*RefundResult, error) {
	if !CanTransition(m.state, StateRefunded) {
		return nil, fmt.Errorf("refund from %s: %w", m.state, ErrAlreadySettled)
	}
	res, err := m.adapter.Refund(ctx, m.lockID)
	if err != nil {
		return nil, err
	}
	m.state = StateRefunded
	return res, nil
}

// Reconcile re-reads the ledger and adopts its view of the leg. The ledger is
// the source of truth after a crash: a counterparty may have claimed or
// refunded while the coordinator was down.
func (m *Machine) Reconcile(ctx context.Context) (*LockInfo, error) {
	if m.lockID == "" {
		return nil, ErrLockNotFound
	}
	info, err := m.adapter.QueryLock(ctx, m.lockID)
	if err != nil {
		return nil, err
	}
	m.state = info.State
	return info, nil
}
