package registry

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swapsage-bridge/pkg/types"
)

func openTestRegistry(t *testing.T) *Registry {
	t.Helper()
	reg, err := Open(filepath.Join(t.TempDir(), "swaps.db"))
	require.NoError(t, err)
	t.Cleanup(func() { reg.Close() })
	return reg
}

func sampleSwap(initiator string) *types.Swap {
	now := time.Now().UTC().Truncate(time.Second)
	return &types.Swap{
		ID:             uuid.New().String(),
		SourceChain:    types.ChainEVM,
		DestChain:      types.ChainStellar,
		InitiatorAddr:  initiator,
		RecipientAddr:  "GABC",
		SourceAmount:   "1000000",
		DestAmount:     "997000",
		Hashlock:       "aa11",
		Secret:         "bb22",
		SourceTimelock: now.Add(time.Hour),
		DestTimelock:   now.Add(30 * time.Minute),
		Status:         types.StatusPending,
		Created:        now,
	}
}

func TestPutAndGet(t *testing.T) {
	ctx := context.Background()
	reg := openTestRegistry(t)
	s := sampleSwap("0xalice")

	require.NoError(t, reg.Put(ctx, s))

	got, err := reg.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)
	assert.Equal(t, types.ChainEVM, got.SourceChain)
	assert.Equal(t, types.ChainStellar, got.DestChain)
	assert.Equal(t, s.Hashlock, got.Hashlock)
	assert.Equal(t, s.Secret, got.Secret, "secret survives a round trip for crash recovery")
	assert.Equal(t, s.SourceTimelock.Unix(), got.SourceTimelock.Unix())
	assert.Equal(t, s.DestTimelock.Unix(), got.DestTimelock.Unix())
	assert.False(t, got.LastUpdated.IsZero())
}

func TestGetMissing(t *testing.T) {
	reg := openTestRegistry(t)
	_, err := reg.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPutReplacesById(t *testing.T) {
	ctx := context.Background()
	reg := openTestRegistry(t)
	s := sampleSwap("0xalice")
	require.NoError(t, reg.Put(ctx, s))

	s.Status = types.StatusSourceLocked
	s.SourceLockID = "lock-1"
	require.NoError(t, reg.Put(ctx, s))

	got, err := reg.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusSourceLocked, got.Status)
	assert.Equal(t, "lock-1", got.SourceLockID)

	swaps, err := reg.ListByAddress(ctx, "0xalice")
	require.NoError(t, err)
	assert.Len(t, swaps, 1, "replacing must not duplicate the row")
}

func TestListByAddress(t *testing.T) {
	ctx := context.Background()
	reg := openTestRegistry(t)

	first := sampleSwap("0xalice")
	first.Created = first.Created.Add(-time.Hour)
	second := sampleSwap("0xalice")
	other := sampleSwap("0xmallory")
	require.NoError(t, reg.Put(ctx, first))
	require.NoError(t, reg.Put(ctx, second))
	require.NoError(t, reg.Put(ctx, other))

	swaps, err := reg.ListByAddress(ctx, "0xalice")
	require.NoError(t, err)
	require.Len(t, swaps, 2)
	assert.Equal(t, second.ID, swaps[0].ID, "most recent first")
	assert.Equal(t, first.ID, swaps[1].ID)

	// Recipient side matches too.
	swaps, err = reg.ListByAddress(ctx, "GABC")
	require.NoError(t, err)
	assert.Len(t, swaps, 3)
}

func TestListActive(t *testing.T) {
	ctx := context.Background()
	reg := openTestRegistry(t)

	active := sampleSwap("0xalice")
	active.Status = types.StatusSourceLocked
	done := sampleSwap("0xalice")
	done.Status = types.StatusClaimed
	failed := sampleSwap("0xalice")
	failed.Status = types.StatusFailed
	require.NoError(t, reg.Put(ctx, active))
	require.NoError(t, reg.Put(ctx, done))
	require.NoError(t, reg.Put(ctx, failed))

	swaps, err := reg.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, swaps, 1)
	assert.Equal(t, active.ID, swaps[0].ID)
}

func TestUpdateStatus(t *testing.T) {
	ctx := context.Background()
	reg := openTestRegistry(t)
	s := sampleSwap("0xalice")
	require.NoError(t, reg.Put(ctx, s))

	require.NoError(t, reg.UpdateStatus(ctx, s.ID, types.StatusRefunded, "dest leg failed"))

	got, err := reg.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusRefunded, got.Status)
	assert.Equal(t, "dest leg failed", got.FailureDetail)

	// Re-applying the same status is a no-op, not an error.
	require.NoError(t, reg.UpdateStatus(ctx, s.ID, types.StatusRefunded, "dest leg failed"))

	err = reg.UpdateStatus(ctx, "missing", types.StatusClaimed, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "swaps.db")

	reg, err := Open(path)
	require.NoError(t, err)
	s := sampleSwap("0xalice")
	require.NoError(t, reg.Put(ctx, s))
	require.NoError(t, reg.Close())

	reg, err = Open(path)
	require.NoError(t, err)
	defer reg.Close()

	got, err := reg.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)
}
