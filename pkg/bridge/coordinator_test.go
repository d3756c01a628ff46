package bridge

import (
	"context"
	"io"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swapsage-bridge/config"
	"swapsage-bridge/pkg/htlc"
	"swapsage-bridge/pkg/ledger"
	"swapsage-bridge/pkg/registry"
	"swapsage-bridge/pkg/types"
)

type testBridge struct {
	coord  *Coordinator
	reg    *registry.Registry
	source *ledger.MemoryLedger
	dest   *ledger.MemoryLedger
	now    time.Time
}

func (b *testBridge) advance(d time.Duration) {
	b.now = b.now.Add(d)
}

func newTestBridge(t *testing.T) *testBridge {
	t.Helper()

	cfg := &config.Config{
		FeeBps: 30,
		Timelock: config.TimelockConfig{
			Window:       time.Hour,
			SafetyMargin: 30 * time.Minute,
			MinWindow:    10 * time.Minute,
			MaxWindow:    24 * time.Hour,
		},
	}
	require.NoError(t, cfg.Validate())

	reg, err := registry.Open(filepath.Join(t.TempDir(), "swaps.db"))
	require.NoError(t, err)
	t.Cleanup(func() { reg.Close() })

	b := &testBridge{
		reg:    reg,
		source: ledger.NewMemoryLedger(types.ChainEVM, cfg.Timelock.MinWindow, cfg.Timelock.MaxWindow),
		dest:   ledger.NewMemoryLedger(types.ChainStellar, cfg.Timelock.MinWindow, cfg.Timelock.MaxWindow),
		now:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return b.now }
	b.source.SetClock(clock)
	b.dest.SetClock(clock)

	log := logrus.New()
	log.SetOutput(io.Discard)

	adapters := map[types.ChainKind]htlc.Adapter{
		types.ChainEVM:     b.source,
		types.ChainStellar: b.dest,
	}
	b.coord = New(cfg, reg, adapters, NewStaticRateSource(decimal.NewFromInt(1)), log)
	b.coord.SetClock(clock)

	b.source.Fund("alice", "", big.NewInt(10_000))
	b.dest.Fund(b.dest.AccountAddress(), "", big.NewInt(10_000))
	return b
}

func testRequest() *types.SwapRequest {
	return &types.SwapRequest{
		SourceChain:   types.ChainEVM,
		DestChain:     types.ChainStellar,
		Amount:        "1000",
		InitiatorAddr: "alice",
		RecipientAddr: "bob",
	}
}

func TestSwapHappyPath(t *testing.T) {
	ctx := context.Background()
	b := newTestBridge(t)

	swap, err := b.coord.InitiateSwap(ctx, testRequest())
	require.NoError(t, err)
	assert.Equal(t, types.StatusClaimed, swap.Status)
	assert.Equal(t, "1000", swap.SourceAmount)
	assert.Equal(t, "997", swap.DestAmount, "30 bps fee comes off the destination leg")

	// The recipient got the destination leg, the bridge got the source leg.
	assert.Equal(t, int64(997), b.dest.Balance("bob", "").Int64())
	assert.Equal(t, int64(9_000), b.source.Balance("alice", "").Int64())
	assert.Equal(t, int64(1_000), b.source.Balance(b.source.AccountAddress(), "").Int64())

	// Both legs settled under the same hashlock, with the secret on record.
	sourceInfo, err := b.source.QueryLock(ctx, swap.SourceLockID)
	require.NoError(t, err)
	destInfo, err := b.dest.QueryLock(ctx, swap.DestLockID)
	require.NoError(t, err)
	assert.Equal(t, htlc.StateClaimed, sourceInfo.State)
	assert.Equal(t, htlc.StateClaimed, destInfo.State)
	assert.Equal(t, sourceInfo.Hashlock, destInfo.Hashlock)
	assert.Equal(t, swap.Hashlock, sourceInfo.Hashlock.Hex())

	secret, err := htlc.ParseSecret(swap.Secret)
	require.NoError(t, err)
	assert.True(t, htlc.Verify(secret, sourceInfo.Hashlock))

	// The durable record matches.
	stored, err := b.reg.Get(ctx, swap.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusClaimed, stored.Status)
}

func TestSwapTimelockOrdering(t *testing.T) {
	ctx := context.Background()
	b := newTestBridge(t)

	swap, err := b.coord.InitiateSwap(ctx, testRequest())
	require.NoError(t, err)

	assert.True(t, swap.DestTimelock.Before(swap.SourceTimelock),
		"destination leg must expire before the source leg")
	assert.Equal(t, 30*time.Minute, swap.SourceTimelock.Sub(swap.DestTimelock))
	assert.Equal(t, b.now.Add(time.Hour).Unix(), swap.SourceTimelock.Unix())
}

func TestSwapRejectsInvalidRequests(t *testing.T) {
	ctx := context.Background()
	b := newTestBridge(t)

	req := testRequest()
	req.SourceChain = "dogecoin"
	_, err := b.coord.InitiateSwap(ctx, req)
	assert.ErrorIs(t, err, htlc.ErrInvalidRequest)

	req = testRequest()
	req.Amount = "-5"
	_, err = b.coord.InitiateSwap(ctx, req)
	assert.ErrorIs(t, err, htlc.ErrInvalidRequest)

	// A window that leaves no room for the safety margin.
	req = testRequest()
	req.TimelockSeconds = int64((30 * time.Minute).Seconds())
	_, err = b.coord.InitiateSwap(ctx, req)
	assert.ErrorIs(t, err, htlc.ErrInvalidTimelock)
}

func TestSwapDestLockFailureRefundsSource(t *testing.T) {
	ctx := context.Background()
	b := newTestBridge(t)
	b.dest.FailNextLock(assert.AnError)

	swap, err := b.coord.InitiateSwap(ctx, testRequest())
	require.Error(t, err)
	require.NotNil(t, swap)
	assert.Equal(t, types.StatusSourceLocked, swap.Status)
	assert.NotEmpty(t, swap.FailureDetail)
	assert.False(t, swap.FundsSafe(), "source escrow is still outstanding")
	assert.Equal(t, int64(9_000), b.source.Balance("alice", "").Int64())

	// Before the source timelock passes the watcher can only wait.
	w := NewWatcher(b.coord, time.Second, logrusDiscard())
	w.Sweep(ctx)
	stored, err := b.reg.Get(ctx, swap.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusSourceLocked, stored.Status)

	// Once it passes, the sweep refunds the initiator.
	b.advance(time.Hour + time.Second)
	w.Sweep(ctx)

	stored, err = b.reg.Get(ctx, swap.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusRefunded, stored.Status)
	assert.True(t, stored.FundsSafe())
	assert.Equal(t, int64(10_000), b.source.Balance("alice", "").Int64())
}

func TestManualRefundBeforeExpiry(t *testing.T) {
	ctx := context.Background()
	b := newTestBridge(t)
	b.dest.FailNextLock(assert.AnError)

	swap, _ := b.coord.InitiateSwap(ctx, testRequest())
	require.NotNil(t, swap)

	_, err := b.coord.Refund(ctx, swap.ID)
	require.Error(t, err)

	stored, err := b.reg.Get(ctx, swap.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusSourceLocked, stored.Status, "early refund must not change state")

	b.advance(time.Hour + time.Second)
	refunded, err := b.coord.Refund(ctx, swap.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusRefunded, refunded.Status)
}

// TestCrashRecoveryResumesSettlement simulates a coordinator that died after
// locking both legs: a fresh coordinator finds the record, replays the claims
// from the persisted secret, and completes the swap.
func TestCrashRecoveryResumesSettlement(t *testing.T) {
	ctx := context.Background()
	b := newTestBridge(t)

	secret, hashlock, err := htlc.GenerateSecret()
	require.NoError(t, err)

	sourceRes, err := b.source.Lock(ctx, htlc.LockParams{
		Sender:    "alice",
		Recipient: b.source.AccountAddress(),
		Amount:    big.NewInt(1_000),
		Hashlock:  hashlock,
		Timelock:  b.now.Add(time.Hour),
	})
	require.NoError(t, err)
	destRes, err := b.dest.Lock(ctx, htlc.LockParams{
		Sender:    b.dest.AccountAddress(),
		Recipient: "bob",
		Amount:    big.NewInt(997),
		Hashlock:  hashlock,
		Timelock:  b.now.Add(30 * time.Minute),
	})
	require.NoError(t, err)

	swap := &types.Swap{
		ID:             uuid.New().String(),
		SourceChain:    types.ChainEVM,
		DestChain:      types.ChainStellar,
		InitiatorAddr:  "alice",
		RecipientAddr:  "bob",
		SourceAmount:   "1000",
		DestAmount:     "997",
		Hashlock:       hashlock.Hex(),
		Secret:         secret.Hex(),
		SourceTimelock: b.now.Add(time.Hour),
		DestTimelock:   b.now.Add(30 * time.Minute),
		Status:         types.StatusDestLocked,
		SourceLockID:   sourceRes.LockID,
		DestLockID:     destRes.LockID,
		Created:        b.now,
	}
	require.NoError(t, b.reg.Put(ctx, swap))

	w := NewWatcher(b.coord, time.Second, logrusDiscard())
	w.Sweep(ctx)

	stored, err := b.reg.Get(ctx, swap.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusClaimed, stored.Status)
	assert.Equal(t, int64(997), b.dest.Balance("bob", "").Int64())
	assert.Equal(t, int64(1_000), b.source.Balance(b.source.AccountAddress(), "").Int64())
}

// TestExpiredSwapUnwinds covers the no-claim path: both legs locked, nothing
// settled, every timelock passed. The sweep refunds both sides.
func TestExpiredSwapUnwinds(t *testing.T) {
	ctx := context.Background()
	b := newTestBridge(t)

	_, hashlock, err := htlc.GenerateSecret()
	require.NoError(t, err)

	sourceRes, err := b.source.Lock(ctx, htlc.LockParams{
		Sender:    "alice",
		Recipient: b.source.AccountAddress(),
		Amount:    big.NewInt(1_000),
		Hashlock:  hashlock,
		Timelock:  b.now.Add(time.Hour),
	})
	require.NoError(t, err)
	destRes, err := b.dest.Lock(ctx, htlc.LockParams{
		Sender:    b.dest.AccountAddress(),
		Recipient: "bob",
		Amount:    big.NewInt(997),
		Hashlock:  hashlock,
		Timelock:  b.now.Add(30 * time.Minute),
	})
	require.NoError(t, err)

	swap := &types.Swap{
		ID:             uuid.New().String(),
		SourceChain:    types.ChainEVM,
		DestChain:      types.ChainStellar,
		InitiatorAddr:  "alice",
		RecipientAddr:  "bob",
		SourceAmount:   "1000",
		DestAmount:     "997",
		Hashlock:       hashlock.Hex(),
		SourceTimelock: b.now.Add(time.Hour),
		DestTimelock:   b.now.Add(30 * time.Minute),
		Status:         types.StatusDestLocked,
		SourceLockID:   sourceRes.LockID,
		DestLockID:     destRes.LockID,
		Created:        b.now,
	}
	require.NoError(t, b.reg.Put(ctx, swap))

	b.advance(time.Hour + time.Second)
	w := NewWatcher(b.coord, time.Second, logrusDiscard())
	w.Sweep(ctx)

	stored, err := b.reg.Get(ctx, swap.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusExpired, stored.Status)
	assert.Equal(t, int64(10_000), b.source.Balance("alice", "").Int64())
	assert.Equal(t, int64(10_000), b.dest.Balance(b.dest.AccountAddress(), "").Int64())
	assert.Equal(t, int64(0), b.dest.Balance("bob", "").Int64())
}

func TestStatusReconcilesInFlight(t *testing.T) {
	ctx := context.Background()
	b := newTestBridge(t)
	b.dest.FailNextLock(assert.AnError)

	swap, _ := b.coord.InitiateSwap(ctx, testRequest())
	require.NotNil(t, swap)

	// Status on the stalled swap reports it untouched before expiry.
	got, err := b.coord.Status(ctx, swap.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusSourceLocked, got.Status)

	// After expiry a status read alone drives the refund.
	b.advance(time.Hour + time.Second)
	got, err = b.coord.Status(ctx, swap.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusRefunded, got.Status)
}

func logrusDiscard() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}
