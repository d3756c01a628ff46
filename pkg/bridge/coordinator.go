// Package bridge orchestrates cross-chain swaps: two hashlocked escrows, one
// per chain, settled by a single secret. The coordinator owns the secret,
// drives both legs through their state machines, and records every transition
// in the registry before touching a ledger.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"swapsage-bridge/config"
	"swapsage-bridge/pkg/htlc"
	"swapsage-bridge/pkg/registry"
	"swapsage-bridge/pkg/types"
)

// accountHolder is implemented by adapters that control a funded bridge
// account on their chain. The coordinator uses it to name the bridge side of
// each leg.
type accountHolder interface {
	AccountAddress() string
}

// Coordinator runs swaps end to end. All operations on one swap id are
// serialized through a per-swap mutex; operations on different swaps proceed
// concurrently.
type Coordinator struct {
	cfg      *config.Config
	reg      *registry.Registry
	adapters map[types.ChainKind]htlc.Adapter
	rates    RateSource
	log      *logrus.Entry
	now      func() time.Time

	mu     sync.Mutex
	swapMu map[string]*sync.Mutex
}

// New builds a coordinator over the given adapters. One adapter per chain
// kind; both legs of a swap may use the same adapter map entry.
func New(cfg *config.Config, reg *registry.Registry, adapters map[types.ChainKind]htlc.Adapter, rates RateSource, log *logrus.Logger) *Coordinator {
	return &Coordinator{
		cfg:      cfg,
		reg:      reg,
		adapters: adapters,
		rates:    rates,
		log:      log.WithField("component", "coordinator"),
		now:      time.Now,
		swapMu:   make(map[string]*sync.Mutex),
	}
}

// SetClock replaces the coordinator's notion of now. Test helper.
func (c *Coordinator) SetClock(now func() time.Time) { c.now = now }

// Adapter returns the adapter registered for a chain kind.
func (c *Coordinator) Adapter(kind types.ChainKind) (htlc.Adapter, bool) {
	a, ok := c.adapters[kind]
	return a, ok
}

// Registry exposes the underlying swap store for read-side commands.
func (c *Coordinator) Registry() *registry.Registry { return c.reg }

// lockSwap serializes work on one swap id and returns the unlock func.
func (c *Coordinator) lockSwap(id string) func() {
	c.mu.Lock()
	m, ok := c.swapMu[id]
	if !ok {
		m = &sync.Mutex{}
		c.swapMu[id] = m
	}
	c.mu.Unlock()
	m.Lock()
	return m.Unlock
}

// InitiateSwap validates the request, prepares the durable swap record, and
// runs both legs. The returned swap reflects the final outcome: Claimed on
// success, or a non-terminal status the watcher will finish (refund paths
// cannot complete until the timelock passes).
func (c *Coordinator) InitiateSwap(ctx context.Context, req *types.SwapRequest) (*types.Swap, error) {
	swap, err := c.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := c.reg.Put(ctx, swap); err != nil {
		return nil, err
	}
	if err := c.execute(ctx, swap); err != nil {
		return swap, err
	}
	return swap, nil
}

// prepare turns a request into a pending swap record: amounts resolved,
// secret generated, timelocks fixed. Nothing touches a ledger here.
func (c *Coordinator) prepare(ctx context.Context, req *types.SwapRequest) (*types.Swap, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", htlc.ErrInvalidRequest, err)
	}
	source, ok := c.adapters[req.SourceChain]
	if !ok {
		return nil, fmt.Errorf("%w: no adapter for %s", htlc.ErrInvalidRequest, req.SourceChain)
	}
	dest, ok := c.adapters[req.DestChain]
	if !ok {
		return nil, fmt.Errorf("%w: no adapter for %s", htlc.ErrInvalidRequest, req.DestChain)
	}
	if err := source.ValidateAddress(req.InitiatorAddr); err != nil {
		return nil, err
	}
	if err := dest.ValidateAddress(req.RecipientAddr); err != nil {
		return nil, err
	}

	amount, ok := new(big.Int).SetString(req.Amount, 10)
	if !ok || amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: invalid amount %q", htlc.ErrInvalidRequest, req.Amount)
	}

	rate, err := c.rates.Convert(ctx, req, amount)
	if err != nil {
		return nil, fmt.Errorf("resolving rate: %w", err)
	}
	if rate.Outcome == RateUnavailable {
		return nil, fmt.Errorf("no conversion available from %s to %s: %s",
			req.SourceChain, req.DestChain, rate.Detail)
	}
	destAmount := ApplyFee(rate.DestAmount, c.cfg.FeeBps)
	if destAmount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amount too small after fee", htlc.ErrInvalidRequest)
	}

	window := c.cfg.Timelock.Window
	if req.TimelockSeconds > 0 {
		window = time.Duration(req.TimelockSeconds) * time.Second
	}
	if window < c.cfg.Timelock.MinWindow || window > c.cfg.Timelock.MaxWindow {
		return nil, fmt.Errorf("%w: window %s outside [%s, %s]",
			htlc.ErrInvalidTimelock, window, c.cfg.Timelock.MinWindow, c.cfg.Timelock.MaxWindow)
	}
	// The shortened destination window must itself clear the minimum.
	if window-c.cfg.Timelock.SafetyMargin < c.cfg.Timelock.MinWindow {
		return nil, fmt.Errorf("%w: window %s leaves less than %s after the %s safety margin",
			htlc.ErrInvalidTimelock, window, c.cfg.Timelock.MinWindow, c.cfg.Timelock.SafetyMargin)
	}

	secret, hashlock, err := htlc.GenerateSecret()
	if err != nil {
		return nil, fmt.Errorf("generating secret: %w", err)
	}

	now := c.now().UTC()
	// The destination leg expires before the source leg by the safety
	// margin, so the bridge always has time to claim the source with the
	// revealed secret before the initiator can refund it.
	sourceTimelock := now.Add(window)
	destTimelock := sourceTimelock.Add(-c.cfg.Timelock.SafetyMargin)

	return &types.Swap{
		ID:             uuid.New().String(),
		SourceChain:    req.SourceChain,
		DestChain:      req.DestChain,
		InitiatorAddr:  req.InitiatorAddr,
		RecipientAddr:  req.RecipientAddr,
		SourceAsset:    req.SourceAsset,
		DestAsset:      req.DestAsset,
		SourceAmount:   amount.String(),
		DestAmount:     destAmount.String(),
		Hashlock:       hashlock.Hex(),
		Secret:         secret.Hex(),
		SourceTimelock: sourceTimelock,
		DestTimelock:   destTimelock,
		Status:         types.StatusPending,
		Created:        now,
	}, nil
}

// execute drives the swap forward: lock source, lock destination, claim the
// destination (revealing the secret on-ledger), claim the source. Each step
// is persisted before the next ledger call so a crash leaves a resumable
// record.
func (c *Coordinator) execute(ctx context.Context, swap *types.Swap) error {
	unlock := c.lockSwap(swap.ID)
	defer unlock()

	log := c.log.WithField("swap", swap.ID)
	source := c.adapters[swap.SourceChain]
	dest := c.adapters[swap.DestChain]
	hashlock, err := htlc.ParseHashlock(swap.Hashlock)
	if err != nil {
		return err
	}

	// Source leg: initiator's funds escrowed for the bridge.
	sourceAmount, _ := new(big.Int).SetString(swap.SourceAmount, 10)
	sourceLeg := htlc.NewMachine(source)
	lockRes, err := sourceLeg.Lock(ctx, htlc.LockParams{
		Sender:    swap.InitiatorAddr,
		Recipient: bridgeAddress(source),
		Asset:     swap.SourceAsset,
		Amount:    sourceAmount,
		Hashlock:  hashlock,
		Timelock:  swap.SourceTimelock,
	})
	if err != nil {
		return c.fail(ctx, swap, fmt.Errorf("source lock: %w", err))
	}
	swap.SourceLockID = lockRes.LockID
	swap.SourceTxRef = lockRes.TxRef
	swap.Status = types.StatusSourceLocked
	if err := c.reg.Put(ctx, swap); err != nil {
		return err
	}
	log.WithField("lock_id", swap.SourceLockID).Info("source leg locked")

	// Destination leg: bridge liquidity escrowed for the recipient, under
	// the same hashlock and the shorter timelock.
	destAmount, _ := new(big.Int).SetString(swap.DestAmount, 10)
	destLeg := htlc.NewMachine(dest)
	lockRes, err = destLeg.Lock(ctx, htlc.LockParams{
		Sender:    bridgeAddress(dest),
		Recipient: swap.RecipientAddr,
		Asset:     swap.DestAsset,
		Amount:    destAmount,
		Hashlock:  hashlock,
		Timelock:  swap.DestTimelock,
	})
	if err != nil {
		// Source funds are already escrowed. The watcher refunds them
		// once the source timelock passes.
		swap.FailureDetail = fmt.Sprintf("destination lock failed: %v", err)
		if perr := c.reg.Put(ctx, swap); perr != nil {
			return perr
		}
		log.WithError(err).Warn("destination lock failed, source leg awaiting refund")
		return fmt.Errorf("destination lock: %w", err)
	}
	swap.DestLockID = lockRes.LockID
	swap.DestTxRef = lockRes.TxRef
	swap.Status = types.StatusDestLocked
	if err := c.reg.Put(ctx, swap); err != nil {
		return err
	}
	log.WithField("lock_id", swap.DestLockID).Info("destination leg locked")

	return c.settle(ctx, swap, sourceLeg, destLeg)
}

// settle claims both legs. The destination claim reveals the secret; the
// source claim uses it. A source claim failure is retried by the watcher,
// never rolled back: after the destination claim the secret is public.
func (c *Coordinator) settle(ctx context.Context, swap *types.Swap, sourceLeg, destLeg *htlc.Machine) error {
	log := c.log.WithField("swap", swap.ID)
	secret, err := htlc.ParseSecret(swap.Secret)
	if err != nil {
		return err
	}

	if destLeg.State() == htlc.StateLocked {
		res, err := destLeg.Claim(ctx, secret)
		if err != nil {
			swap.FailureDetail = fmt.Sprintf("destination claim failed: %v", err)
			if perr := c.reg.Put(ctx, swap); perr != nil {
				return perr
			}
			return fmt.Errorf("destination claim: %w", err)
		}
		swap.DestTxRef = res.TxRef
		if err := c.reg.Put(ctx, swap); err != nil {
			return err
		}
		log.Info("destination leg claimed, secret revealed")
	}

	res, err := sourceLeg.Claim(ctx, secret)
	if err != nil {
		swap.FailureDetail = fmt.Sprintf("source claim failed: %v", err)
		if perr := c.reg.Put(ctx, swap); perr != nil {
			return perr
		}
		return fmt.Errorf("source claim: %w", err)
	}
	swap.SourceTxRef = res.TxRef
	swap.Status = types.StatusClaimed
	swap.FailureDetail = ""
	if err := c.reg.Put(ctx, swap); err != nil {
		return err
	}
	log.Info("swap claimed on both legs")
	return nil
}

// fail marks a swap that never moved funds as failed.
func (c *Coordinator) fail(ctx context.Context, swap *types.Swap, cause error) error {
	swap.Status = types.StatusFailed
	swap.FailureDetail = cause.Error()
	if err := c.reg.Put(ctx, swap); err != nil {
		return err
	}
	c.log.WithField("swap", swap.ID).WithError(cause).Warn("swap failed before funds moved")
	return cause
}

// Status returns the swap record, refreshed against the ledgers when the swap
// is still in flight.
func (c *Coordinator) Status(ctx context.Context, id string) (*types.Swap, error) {
	swap, err := c.reg.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if swap.Status.IsTerminal() {
		return swap, nil
	}
	unlock := c.lockSwap(swap.ID)
	defer unlock()
	if err := c.reconcile(ctx, swap); err != nil {
		c.log.WithField("swap", id).WithError(err).Debug("reconcile during status read")
	}
	return swap, nil
}

// Refund manually refunds an in-flight swap's outstanding legs. The ledgers
// refuse until the relevant timelocks pass, so calling early returns
// htlc.ErrNotExpired.
func (c *Coordinator) Refund(ctx context.Context, id string) (*types.Swap, error) {
	swap, err := c.reg.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if swap.Status.IsTerminal() {
		return swap, fmt.Errorf("swap %s: %w", id, htlc.ErrAlreadySettled)
	}
	unlock := c.lockSwap(swap.ID)
	defer unlock()
	if err := c.refundLegs(ctx, swap); err != nil {
		return swap, err
	}
	if !swap.Status.IsTerminal() {
		return swap, fmt.Errorf("swap %s still has locked legs: %w", id, htlc.ErrNotExpired)
	}
	return swap, nil
}

// reconcile adopts the ledgers' view of an in-flight swap and pushes it
// toward a terminal state: finish interrupted claims, refund expired legs.
// Caller holds the swap lock.
func (c *Coordinator) reconcile(ctx context.Context, swap *types.Swap) error {
	log := c.log.WithField("swap", swap.ID)

	switch swap.Status {
	case types.StatusPending:
		// Nothing ever locked. The initiate call owns this record; only
		// an initiate crash strands it here, and then it is safe to fail.
		if c.now().After(swap.SourceTimelock) {
			return c.fail(ctx, swap, errors.New("abandoned before any leg locked"))
		}
		return nil

	case types.StatusSourceLocked:
		// Destination leg never locked. The source escrow can only come
		// back via refund once its timelock passes.
		if c.now().After(swap.SourceTimelock) {
			return c.refundLegs(ctx, swap)
		}
		return nil

	case types.StatusDestLocked:
		return c.reconcileSettlement(ctx, swap, log)
	}
	return nil
}

// reconcileSettlement handles a swap with both legs locked: resume claims if
// the destination window is still open, otherwise refund.
func (c *Coordinator) reconcileSettlement(ctx context.Context, swap *types.Swap, log *logrus.Entry) error {
	source := c.adapters[swap.SourceChain]
	dest := c.adapters[swap.DestChain]

	destInfo, err := dest.QueryLock(ctx, swap.DestLockID)
	if err != nil {
		return fmt.Errorf("querying destination leg: %w", err)
	}
	sourceInfo, err := source.QueryLock(ctx, swap.SourceLockID)
	if err != nil {
		return fmt.Errorf("querying source leg: %w", err)
	}

	switch {
	case destInfo.State == htlc.StateClaimed && sourceInfo.State == htlc.StateClaimed:
		swap.Status = types.StatusClaimed
		swap.FailureDetail = ""
		return c.reg.Put(ctx, swap)

	case destInfo.State == htlc.StateClaimed:
		// Secret is public; the source claim just needs to land.
		log.Info("destination already claimed, resuming source claim")
		sourceLeg := htlc.Resume(source, swap.SourceLockID, sourceInfo.State)
		destLeg := htlc.Resume(dest, swap.DestLockID, destInfo.State)
		return c.settle(ctx, swap, sourceLeg, destLeg)

	case c.now().Before(swap.DestTimelock):
		// Both legs locked, window open: the interrupted settlement can
		// simply run again.
		sourceLeg := htlc.Resume(source, swap.SourceLockID, sourceInfo.State)
		destLeg := htlc.Resume(dest, swap.DestLockID, destInfo.State)
		return c.settle(ctx, swap, sourceLeg, destLeg)

	default:
		// Destination window closed without a claim. Unwind both legs.
		return c.refundLegs(ctx, swap)
	}
}

// refundLegs refunds whatever is still escrowed. Legs whose timelocks have
// not passed are left for the next pass; the swap reaches a terminal status
// only once every escrowed leg is back.
func (c *Coordinator) refundLegs(ctx context.Context, swap *types.Swap) error {
	log := c.log.WithField("swap", swap.ID)
	outstanding := false

	for _, leg := range []struct {
		name   string
		chain  types.ChainKind
		lockID string
		txRef  *string
	}{
		{"dest", swap.DestChain, swap.DestLockID, &swap.DestTxRef},
		{"source", swap.SourceChain, swap.SourceLockID, &swap.SourceTxRef},
	} {
		if leg.lockID == "" {
			continue
		}
		adapter := c.adapters[leg.chain]
		res, err := adapter.Refund(ctx, leg.lockID)
		switch {
		case err == nil:
			*leg.txRef = res.TxRef
			log.WithField("leg", leg.name).Info("leg refunded")
		case errors.Is(err, htlc.ErrAlreadySettled):
			// Settled by a claim or an earlier refund pass.
		case errors.Is(err, htlc.ErrNotExpired):
			outstanding = true
			log.WithField("leg", leg.name).Debug("refund window not open yet")
		default:
			outstanding = true
			log.WithField("leg", leg.name).WithError(err).Warn("leg refund failed")
		}
	}

	if outstanding {
		return c.reg.Put(ctx, swap)
	}
	if swap.FailureDetail != "" {
		swap.Status = types.StatusRefunded
	} else {
		swap.Status = types.StatusExpired
	}
	if err := c.reg.Put(ctx, swap); err != nil {
		return err
	}
	log.WithField("status", swap.Status).Info("swap unwound")
	return nil
}

// bridgeAddress names the bridge-controlled account on an adapter's chain, or
// empty when the adapter does not expose one.
func bridgeAddress(a htlc.Adapter) string {
	if h, ok := a.(accountHolder); ok {
		return h.AccountAddress()
	}
	return ""
}
