package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"sync"
	"time"

	"swapsage-bridge/pkg/htlc"
	"swapsage-bridge/pkg/types"
)

// MemoryLedger is a complete in-process HTLC ledger. It backs demo mode and
// the coordinator tests: every precondition a real chain enforces (windows,
// balances, expiry, replay) is enforced here too, so test outcomes carry over.
type MemoryLedger struct {
	kind      types.ChainKind
	minWindow time.Duration
	maxWindow time.Duration

	mu       sync.Mutex
	locks    map[string]*memLock
	balances map[string]*big.Int // account|asset -> balance
	now      func() time.Time
	lockErr  error // injected failure for the next Lock call
}

type memLock struct {
	info     htlc.LockInfo
	txSeq    int
	preimage htlc.Secret
}

// NewMemoryLedger creates an empty ledger posing as the given chain kind.
func NewMemoryLedger(kind types.ChainKind, minWindow, maxWindow time.Duration) *MemoryLedger {
	return &MemoryLedger{
		kind:      kind,
		minWindow: minWindow,
		maxWindow: maxWindow,
		locks:     make(map[string]*memLock),
		balances:  make(map[string]*big.Int),
		now:       time.Now,
	}
}

// SetClock replaces the ledger's notion of now. Test helper.
func (l *MemoryLedger) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

// FailNextLock makes the next Lock call return err. Test helper for
// simulating a destination-leg failure.
func (l *MemoryLedger) FailNextLock(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lockErr = err
}

// Fund credits an account so it can lock. Demo/test helper.
func (l *MemoryLedger) Fund(account, asset string, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := balanceKey(account, asset)
	if cur, ok := l.balances[key]; ok {
		l.balances[key] = new(big.Int).Add(cur, amount)
		return
	}
	l.balances[key] = new(big.Int).Set(amount)
}

// Balance reads an account balance. Test helper.
func (l *MemoryLedger) Balance(account, asset string) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if cur, ok := l.balances[balanceKey(account, asset)]; ok {
		return new(big.Int).Set(cur)
	}
	return big.NewInt(0)
}

func (l *MemoryLedger) Kind() types.ChainKind { return l.kind }

// AccountAddress names the ledger's built-in bridge account. Fund it before
// using the ledger as a destination chain.
func (l *MemoryLedger) AccountAddress() string { return "bridge" }

// ValidateAddress accepts any non-empty identifier; the memory ledger has no
// native account encoding.
func (l *MemoryLedger) ValidateAddress(addr string) error {
	if addr == "" {
		return fmt.Errorf("%w: empty address", htlc.ErrInvalidRequest)
	}
	return nil
}

// Lock escrows funds under the hashlock. The lock id is derived from the
// parameters, so an identical resubmission hits the same id and is rejected
// instead of creating a second escrow.
func (l *MemoryLedger) Lock(_ context.Context, p htlc.LockParams) (*htlc.LockResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.lockErr != nil {
		err := l.lockErr
		l.lockErr = nil
		return nil, err
	}

	if p.Sender == "" || p.Recipient == "" {
		return nil, fmt.Errorf("%w: sender and recipient required", htlc.ErrInvalidRequest)
	}
	if p.Amount == nil || p.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", htlc.ErrInvalidRequest)
	}
	now := l.now()
	if p.Timelock.Before(now.Add(l.minWindow)) {
		return nil, fmt.Errorf("%w: expires sooner than %s from now", htlc.ErrInvalidTimelock, l.minWindow)
	}
	if p.Timelock.After(now.Add(l.maxWindow)) {
		return nil, fmt.Errorf("%w: expires later than %s from now", htlc.ErrInvalidTimelock, l.maxWindow)
	}

	id := memLockID(p)
	if _, exists := l.locks[id]; exists {
		return nil, fmt.Errorf("lock %s: %w", id, htlc.ErrAlreadyExists)
	}

	key := balanceKey(p.Sender, p.Asset)
	bal, ok := l.balances[key]
	if !ok || bal.Cmp(p.Amount) < 0 {
		return nil, fmt.Errorf("insufficient balance for %s: have %s, need %s",
			p.Sender, bal, p.Amount)
	}
	bal.Sub(bal, p.Amount)

	l.locks[id] = &memLock{
		info: htlc.LockInfo{
			LockID:    id,
			Sender:    p.Sender,
			Recipient: p.Recipient,
			Asset:     p.Asset,
			Amount:    new(big.Int).Set(p.Amount),
			Hashlock:  p.Hashlock,
			Timelock:  p.Timelock,
			State:     htlc.StateLocked,
		},
	}
	return &htlc.LockResult{LockID: id, TxRef: l.txRef(id, "lock")}, nil
}

// Claim releases the escrow to the recipient if the secret matches and the
// timelock has not passed.
func (l *MemoryLedger) Claim(_ context.Context, lockID string, secret htlc.Secret) (*htlc.ClaimResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	lk, ok := l.locks[lockID]
	if !ok {
		return nil, fmt.Errorf("lock %s: %w", lockID, htlc.ErrLockNotFound)
	}
	if lk.info.State.Terminal() {
		return nil, fmt.Errorf("lock %s: %w", lockID, htlc.ErrAlreadySettled)
	}
	if !l.now().Before(lk.info.Timelock) {
		return nil, fmt.Errorf("lock %s: %w", lockID, htlc.ErrExpired)
	}
	if !htlc.Verify(secret, lk.info.Hashlock) {
		return nil, fmt.Errorf("lock %s: %w", lockID, htlc.ErrInvalidSecret)
	}

	lk.info.State = htlc.StateClaimed
	lk.preimage = secret
	lk.info.Preimage = &lk.preimage
	l.credit(lk.info.Recipient, lk.info.Asset, lk.info.Amount)
	return &htlc.ClaimResult{TxRef: l.txRef(lockID, "claim")}, nil
}

// Refund returns the escrow to the locker once the timelock has passed.
func (l *MemoryLedger) Refund(_ context.Context, lockID string) (*htlc.RefundResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	lk, ok := l.locks[lockID]
	if !ok {
		return nil, fmt.Errorf("lock %s: %w", lockID, htlc.ErrLockNotFound)
	}
	if lk.info.State.Terminal() {
		return nil, fmt.Errorf("lock %s: %w", lockID, htlc.ErrAlreadySettled)
	}
	if l.now().Before(lk.info.Timelock) {
		return nil, fmt.Errorf("lock %s: %w", lockID, htlc.ErrNotExpired)
	}

	lk.info.State = htlc.StateRefunded
	l.credit(lk.info.Sender, lk.info.Asset, lk.info.Amount)
	return &htlc.RefundResult{TxRef: l.txRef(lockID, "refund")}, nil
}

// QueryLock returns a copy of the escrow's current state.
func (l *MemoryLedger) QueryLock(_ context.Context, lockID string) (*htlc.LockInfo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	lk, ok := l.locks[lockID]
	if !ok {
		return nil, fmt.Errorf("lock %s: %w", lockID, htlc.ErrLockNotFound)
	}
	info := lk.info
	info.Amount = new(big.Int).Set(lk.info.Amount)
	if lk.info.Preimage != nil {
		p := lk.preimage
		info.Preimage = &p
	}
	return &info, nil
}

func (l *MemoryLedger) credit(account, asset string, amount *big.Int) {
	key := balanceKey(account, asset)
	if cur, ok := l.balances[key]; ok {
		cur.Add(cur, amount)
		return
	}
	l.balances[key] = new(big.Int).Set(amount)
}

func (l *MemoryLedger) txRef(lockID, op string) string {
	lk := l.locks[lockID]
	lk.txSeq++
	return fmt.Sprintf("mem-%s-%s-%d", op, lockID[:8], lk.txSeq)
}

func balanceKey(account, asset string) string {
	return account + "|" + asset
}

// memLockID derives the lock id from the lock parameters, mirroring the EVM
// contract's replay protection.
func memLockID(p htlc.LockParams) string {
	h := sha256.New()
	h.Write([]byte(p.Sender))
	h.Write([]byte{0})
	h.Write([]byte(p.Recipient))
	h.Write([]byte{0})
	h.Write([]byte(p.Asset))
	h.Write([]byte{0})
	h.Write(p.Amount.Bytes())
	h.Write(p.Hashlock[:])
	h.Write(big.NewInt(p.Timelock.Unix()).Bytes())
	return hex.EncodeToString(h.Sum(nil))
}
