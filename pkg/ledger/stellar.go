package ledger

import (
	"context"
	"encoding/base64"
	"fmt"
	"math/big"
	"strings"
	"time"

	"swapsage-bridge/config"
	"swapsage-bridge/pkg/htlc"
	"swapsage-bridge/pkg/types"

	"github.com/shopspring/decimal"
	"github.com/stellar/go/clients/horizonclient"
	"github.com/stellar/go/keypair"
	"github.com/stellar/go/protocols/horizon"
	"github.com/stellar/go/protocols/horizon/operations"
	"github.com/stellar/go/strkey"
	"github.com/stellar/go/txnbuild"
	"github.com/stellar/go/xdr"
)

// stellarDecimals is the fixed scale of Stellar amounts (1 XLM = 1e7 stroops).
const stellarDecimals = 7

// StellarAdapter maps the lock/claim/refund contract onto Stellar claimable
// balances: one claimant is the recipient, valid only before the timelock,
// the other is the locker, valid only after it. Stellar claim predicates
// cannot express preimage conditions, so the hashlock is carried in the lock
// transaction's hash memo and enforced here before a claim is submitted; the
// coordinator treats this adapter as the single source of truth for the
// hashlock on this leg.
type StellarAdapter struct {
	cfg        config.StellarConfig
	minWindow  time.Duration
	maxWindow  time.Duration
	client     *horizonclient.Client
	kp         *keypair.Full
	passphrase string
}

// NewStellarAdapter connects to Horizon and parses the bridge account seed.
func NewStellarAdapter(cfg config.StellarConfig, tl config.TimelockConfig) (*StellarAdapter, error) {
	if cfg.HorizonURL == "" {
		return nil, fmt.Errorf("horizon URL not configured for Stellar")
	}
	if cfg.SecretSeed == "" {
		return nil, fmt.Errorf("secret seed not configured for Stellar")
	}
	kp, err := keypair.ParseFull(cfg.SecretSeed)
	if err != nil {
		return nil, fmt.Errorf("invalid secret seed: %w", err)
	}
	return &StellarAdapter{
		cfg:        cfg,
		minWindow:  tl.MinWindow,
		maxWindow:  tl.MaxWindow,
		client:     &horizonclient.Client{HorizonURL: cfg.HorizonURL},
		kp:         kp,
		passphrase: cfg.NetworkPassphrase,
	}, nil
}

func (s *StellarAdapter) Kind() types.ChainKind { return types.ChainStellar }

// AccountAddress returns the bridge account's public key.
func (s *StellarAdapter) AccountAddress() string { return s.kp.Address() }

// ValidateAddress rejects anything that is not a Stellar ed25519 public key.
func (s *StellarAdapter) ValidateAddress(addr string) error {
	if !strkey.IsValidEd25519PublicKey(addr) {
		return fmt.Errorf("%w: invalid Stellar address: %s", htlc.ErrInvalidRequest, addr)
	}
	return nil
}

// Lock creates a claimable balance with two claimants: the recipient, who may
// claim strictly before the timelock, and the locker, who may claim (refund)
// only after it. The hashlock rides in the transaction's hash memo so the
// lock's gating digest is part of the permanent ledger record.
//
// Stellar balance ids depend on the creating account's sequence number, so
// replay protection for identical parameters is the coordinator's state
// machine, not the ledger, on this leg.
func (s *StellarAdapter) Lock(ctx context.Context, p htlc.LockParams) (*htlc.LockResult, error) {
	if err := s.ValidateAddress(p.Recipient); err != nil {
		return nil, err
	}
	if p.Amount == nil || p.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", htlc.ErrInvalidRequest)
	}
	now := time.Now()
	if p.Timelock.Before(now.Add(s.minWindow)) || p.Timelock.After(now.Add(s.maxWindow)) {
		return nil, fmt.Errorf("%w: timelock must be between %s and %s from now",
			htlc.ErrInvalidTimelock, s.minWindow, s.maxWindow)
	}
	asset, err := parseStellarAsset(p.Asset)
	if err != nil {
		return nil, err
	}

	account, err := s.client.AccountDetail(horizonclient.AccountRequest{AccountID: s.kp.Address()})
	if err != nil {
		return nil, fmt.Errorf("failed to load bridge account: %w", err)
	}

	expiry := p.Timelock.UTC().Unix()
	beforeExpiry := txnbuild.BeforeAbsoluteTimePredicate(expiry)
	afterExpiry := txnbuild.NotPredicate(beforeExpiry)

	op := txnbuild.CreateClaimableBalance{
		Amount: StroopsToAmount(p.Amount),
		Asset:  asset,
		Destinations: []txnbuild.Claimant{
			txnbuild.NewClaimant(p.Recipient, &beforeExpiry),
			txnbuild.NewClaimant(s.kp.Address(), &afterExpiry),
		},
	}

	tx, err := txnbuild.NewTransaction(txnbuild.TransactionParams{
		SourceAccount:        &account,
		IncrementSequenceNum: true,
		Operations:           []txnbuild.Operation{&op},
		BaseFee:              s.cfg.BaseFee,
		Memo:                 txnbuild.MemoHash(p.Hashlock),
		Preconditions:        txnbuild.Preconditions{TimeBounds: txnbuild.NewInfiniteTimeout()},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build lock transaction: %w", err)
	}
	tx, err = tx.Sign(s.passphrase, s.kp)
	if err != nil {
		return nil, fmt.Errorf("failed to sign lock transaction: %w", err)
	}

	balanceID, err := tx.ClaimableBalanceID(0)
	if err != nil {
		return nil, fmt.Errorf("failed to derive balance id: %w", err)
	}

	resp, err := s.client.SubmitTransaction(tx)
	if err != nil {
		return nil, fmt.Errorf("failed to submit lock transaction: %w", err)
	}

	return &htlc.LockResult{LockID: balanceID, TxRef: resp.Hash}, nil
}

// Claim releases the balance to the recipient. The preimage is verified
// against the hashlock recorded in the lock transaction's memo before
// anything is submitted.
//
// Stellar only accepts a claim from a claimant account, so this succeeds when
// the bridge account is the satisfied claimant. A recipient claiming with
// their own key settles the balance just the same; QueryLock picks that up.
func (s *StellarAdapter) Claim(ctx context.Context, lockID string, secret htlc.Secret) (*htlc.ClaimResult, error) {
	info, err := s.QueryLock(ctx, lockID)
	if err != nil {
		return nil, err
	}
	if info.State.Terminal() {
		return nil, fmt.Errorf("lock %s: %w", lockID, htlc.ErrAlreadySettled)
	}
	if !time.Now().Before(info.Timelock) {
		return nil, fmt.Errorf("lock %s: %w", lockID, htlc.ErrExpired)
	}
	if !htlc.Verify(secret, info.Hashlock) {
		return nil, fmt.Errorf("lock %s: %w", lockID, htlc.ErrInvalidSecret)
	}
	txRef, err := s.claimBalance(lockID)
	if err != nil {
		return nil, fmt.Errorf("claim failed: %w", err)
	}
	return &htlc.ClaimResult{TxRef: txRef}, nil
}

// Refund reclaims the balance through the locker's after-expiry claimant.
func (s *StellarAdapter) Refund(ctx context.Context, lockID string) (*htlc.RefundResult, error) {
	info, err := s.QueryLock(ctx, lockID)
	if err != nil {
		return nil, err
	}
	if info.State.Terminal() {
		return nil, fmt.Errorf("lock %s: %w", lockID, htlc.ErrAlreadySettled)
	}
	if time.Now().Before(info.Timelock) {
		return nil, fmt.Errorf("lock %s: %w", lockID, htlc.ErrNotExpired)
	}
	txRef, err := s.claimBalance(lockID)
	if err != nil {
		return nil, fmt.Errorf("refund failed: %w", err)
	}
	return &htlc.RefundResult{TxRef: txRef}, nil
}

// QueryLock reads the balance's current state. A balance that no longer
// exists has been claimed by one of its claimants; which one is resolved from
// the claim operation's source account.
func (s *StellarAdapter) QueryLock(ctx context.Context, lockID string) (*htlc.LockInfo, error) {
	record, err := s.client.ClaimableBalance(lockID)
	if err != nil {
		if isHorizonNotFound(err) {
			return s.resolveSettled(lockID)
		}
		return nil, fmt.Errorf("failed to query claimable balance: %w", err)
	}

	amount, err := AmountToStroops(record.Amount)
	if err != nil {
		return nil, fmt.Errorf("failed to parse balance amount: %w", err)
	}

	info := &htlc.LockInfo{
		LockID: lockID,
		Sender: record.Sponsor,
		Amount: amount,
		State:  htlc.StateLocked,
	}
	if record.Asset != "native" {
		info.Asset = record.Asset
	}
	for _, c := range record.Claimants {
		if expiry, ok := absBefore(c.Predicate); ok {
			info.Recipient = c.Destination
			info.Timelock = expiry
		}
	}

	if hashlock, err := s.lockHashlock(lockID); err == nil {
		info.Hashlock = hashlock
	}
	return info, nil
}

// claimBalance submits the ClaimClaimableBalance operation from the bridge
// account; the ledger decides which claimant predicate applies.
func (s *StellarAdapter) claimBalance(lockID string) (string, error) {
	account, err := s.client.AccountDetail(horizonclient.AccountRequest{AccountID: s.kp.Address()})
	if err != nil {
		return "", fmt.Errorf("failed to load bridge account: %w", err)
	}
	op := txnbuild.ClaimClaimableBalance{BalanceID: lockID}
	tx, err := txnbuild.NewTransaction(txnbuild.TransactionParams{
		SourceAccount:        &account,
		IncrementSequenceNum: true,
		Operations:           []txnbuild.Operation{&op},
		BaseFee:              s.cfg.BaseFee,
		Preconditions:        txnbuild.Preconditions{TimeBounds: txnbuild.NewInfiniteTimeout()},
	})
	if err != nil {
		return "", fmt.Errorf("failed to build transaction: %w", err)
	}
	tx, err = tx.Sign(s.passphrase, s.kp)
	if err != nil {
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}
	resp, err := s.client.SubmitTransaction(tx)
	if err != nil {
		return "", fmt.Errorf("failed to submit transaction: %w", err)
	}
	return resp.Hash, nil
}

// resolveSettled determines how a vanished balance was settled by inspecting
// its claim operation. A claim by the locker account is a refund; anything
// else is a recipient claim. Stellar claim records carry no preimage, so
// Preimage stays nil and the coordinator falls back to its persisted secret.
func (s *StellarAdapter) resolveSettled(lockID string) (*htlc.LockInfo, error) {
	page, err := s.client.Operations(horizonclient.OperationRequest{
		ForClaimableBalance: lockID,
		Limit:               50,
	})
	if err != nil {
		if isHorizonNotFound(err) {
			return nil, fmt.Errorf("lock %s: %w", lockID, htlc.ErrLockNotFound)
		}
		return nil, fmt.Errorf("failed to list balance operations: %w", err)
	}

	info := &htlc.LockInfo{LockID: lockID}
	for _, rec := range page.Embedded.Records {
		claim, ok := rec.(operations.ClaimClaimableBalance)
		if !ok {
			continue
		}
		if claim.Claimant == s.kp.Address() {
			info.State = htlc.StateRefunded
		} else {
			info.State = htlc.StateClaimed
		}
		info.Recipient = claim.Claimant
		return info, nil
	}
	return nil, fmt.Errorf("lock %s: %w", lockID, htlc.ErrLockNotFound)
}

// lockHashlock recovers the hashlock from the hash memo of the transaction
// that created the balance.
func (s *StellarAdapter) lockHashlock(lockID string) (htlc.Hashlock, error) {
	page, err := s.client.Transactions(horizonclient.TransactionRequest{
		ForClaimableBalance: lockID,
		Limit:               1,
	})
	if err != nil || len(page.Embedded.Records) == 0 {
		return htlc.Hashlock{}, fmt.Errorf("lock transaction not found for %s", lockID)
	}
	return memoHashlock(page.Embedded.Records[0])
}

func memoHashlock(tx horizon.Transaction) (htlc.Hashlock, error) {
	if tx.MemoType != "hash" {
		return htlc.Hashlock{}, fmt.Errorf("lock transaction has no hash memo")
	}
	raw, err := base64.StdEncoding.DecodeString(tx.Memo)
	if err != nil || len(raw) != htlc.SecretSize {
		return htlc.Hashlock{}, fmt.Errorf("malformed hash memo")
	}
	var h htlc.Hashlock
	copy(h[:], raw)
	return h, nil
}

// absBefore extracts the expiry from a before-absolute-time predicate.
func absBefore(p xdr.ClaimPredicate) (time.Time, bool) {
	if p.Type != xdr.ClaimPredicateTypeClaimPredicateBeforeAbsoluteTime || p.AbsBefore == nil {
		return time.Time{}, false
	}
	return time.Unix(int64(*p.AbsBefore), 0), true
}

func isHorizonNotFound(err error) bool {
	herr, ok := err.(*horizonclient.Error)
	return ok && herr.Problem.Status == 404
}

// StroopsToAmount renders a base-unit (stroop) amount as the fixed 7-decimal
// string Horizon expects.
func StroopsToAmount(stroops *big.Int) string {
	return decimal.NewFromBigInt(stroops, -stellarDecimals).StringFixed(stellarDecimals)
}

// AmountToStroops parses a Horizon amount string into base units.
func AmountToStroops(amount string) (*big.Int, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	return d.Shift(stellarDecimals).BigInt(), nil
}

// parseStellarAsset maps the adapter's asset encoding ("" for native,
// "CODE:ISSUER" for issued assets) onto txnbuild assets.
func parseStellarAsset(asset string) (txnbuild.Asset, error) {
	if asset == "" || asset == "native" {
		return txnbuild.NativeAsset{}, nil
	}
	parts := strings.SplitN(asset, ":", 2)
	if len(parts) != 2 || parts[0] == "" || !strkey.IsValidEd25519PublicKey(parts[1]) {
		return nil, fmt.Errorf("%w: invalid Stellar asset %q, want CODE:ISSUER", htlc.ErrInvalidRequest, asset)
	}
	return txnbuild.CreditAsset{Code: parts[0], Issuer: parts[1]}, nil
}
