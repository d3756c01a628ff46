package htlc

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swapsage-bridge/pkg/types"
)

// stubAdapter records calls and plays back canned results.
type stubAdapter struct {
	lockErr   error
	claimErr  error
	refundErr error
	queryInfo *LockInfo
	queryErr  error

	lockCalls   int
	claimCalls  int
	refundCalls int
}

func (s *stubAdapter) Kind() types.ChainKind             { return types.ChainEVM }
func (s *stubAdapter) ValidateAddress(addr string) error { return nil }

func (s *stubAdapter) Lock(_ context.Context, _ LockParams) (*LockResult, error) {
	s.lockCalls++
	if s.lockErr != nil {
		return nil, s.lockErr
	}
	return &LockResult{LockID: "lock-1", TxRef: "tx-lock"}, nil
}

func (s *stubAdapter) Claim(_ context.Context, _ string, _ Secret) (*ClaimResult, error) {
	s.claimCalls++
	if s.claimErr != nil {
		return nil, s.claimErr
	}
	return &ClaimResult{TxRef: "tx-claim"}, nil
}

func (s *stubAdapter) Refund(_ context.Context, _ string) (*RefundResult, error) {
	s.refundCalls++
	if s.refundErr != nil {
		return nil, s.refundErr
	}
	return &RefundResult{TxRef: "tx-refund"}, nil
}

func (s *stubAdapter) QueryLock(_ context.Context, _ string) (*LockInfo, error) {
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	return s.queryInfo, nil
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StateCreated, StateLocked))
	assert.True(t, CanTransition(StateLocked, StateClaimed))
	assert.True(t, CanTransition(StateLocked, StateRefunded))

	assert.False(t, CanTransition(StateCreated, StateClaimed))
	assert.False(t, CanTransition(StateCreated, StateRefunded))
	assert.False(t, CanTransition(StateClaimed, StateLocked))
	assert.False(t, CanTransition(StateClaimed, StateRefunded))
	assert.False(t, CanTransition(StateRefunded, StateClaimed))
	assert.False(t, CanTransition(StateLocked, StateLocked))
}

func TestMachineLifecycle(t *testing.T) {
	ctx := context.Background()
	adapter := &stubAdapter{}
	m := NewMachine(adapter)
	assert.Equal(t, StateCreated, m.State())

	res, err := m.Lock(ctx, LockParams{})
	require.NoError(t, err)
	assert.Equal(t, "lock-1", res.LockID)
	assert.Equal(t, StateLocked, m.State())
	assert.Equal(t, "lock-1", m.LockID())

	// Second lock on the same machine must be refused without a ledger call.
	_, err = m.Lock(ctx, LockParams{})
	assert.ErrorIs(t, err, ErrAlreadyExists)
	assert.Equal(t, 1, adapter.lockCalls)

	secret, _, err := GenerateSecret()
	require.NoError(t, err)
	_, err = m.Claim(ctx, secret)
	require.NoError(t, err)
	assert.Equal(t, StateClaimed, m.State())

	// Terminal states admit nothing further.
	_, err = m.Claim(ctx, secret)
	assert.ErrorIs(t, err, ErrAlreadySettled)
	_, err = m.Refund(ctx)
	assert.ErrorIs(t, err, ErrAlreadySettled)
	assert.Equal(t, 1, adapter.claimCalls)
	assert.Equal(t, 0, adapter.refundCalls)
}

func TestMachineRefundPath(t *testing.T) {
	ctx := context.Background()
	adapter := &stubAdapter{}
	m := NewMachine(adapter)

	_, err := m.Lock(ctx, LockParams{})
	require.NoError(t, err)

	_, err = m.Refund(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateRefunded, m.State())

	_, err = m.Refund(ctx)
	assert.ErrorIs(t, err, ErrAlreadySettled)
}

func TestMachineClaimBeforeLock(t *testing.T) {
	m := NewMachine(&stubAdapter{})
	secret, _, err := GenerateSecret()
	require.NoError(t, err)

	_, err = m.Claim(context.Background(), secret)
	assert.ErrorIs(t, err, ErrAlreadySettled)
}

func TestMachineLockErrorKeepsState(t *testing.T) {
	adapter := &stubAdapter{lockErr: errors.New("rpc down")}
	m := NewMachine(adapter)

	_, err := m.Lock(context.Background(), LockParams{})
	require.Error(t, err)
	assert.Equal(t, StateCreated, m.State(), "failed lock must not advance the machine")
}

func TestResumeAndReconcile(t *testing.T) {
	ctx := context.Background()
	adapter := &stubAdapter{
		queryInfo: &LockInfo{LockID: "lock-9", State: StateClaimed},
	}

	m := Resume(adapter, "lock-9", StateLocked)
	assert.Equal(t, StateLocked, m.State())

	info, err := m.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateClaimed, info.State)
	assert.Equal(t, StateClaimed, m.State(), "reconcile adopts the ledger's state")
}

func TestReconcileWithoutLockID(t *testing.T) {
	m := NewMachine(&stubAdapter{})
	_, err := m.Reconcile(context.Background())
	assert.ErrorIs(t, err, ErrLockNotFound)
}
