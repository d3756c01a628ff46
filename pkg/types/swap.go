package types

import (
	"fmt"
	"time"
)

// ChainKind identifies a supported ledger. Chain selection happens once,
// through a lookup keyed by this type, never by ad hoc string comparison.
type ChainKind string

const (
	ChainEVM     ChainKind = "evm"
	ChainStellar ChainKind = "stellar"
)

// Known returns true if the kind names a supported ledger.
func (k ChainKind) Known() bool {
	return k == ChainEVM || k == ChainStellar
}

// SwapStatus defines the current state of a cross-chain swap
type SwapStatus string

const (
	StatusPending      SwapStatus = "pending"       // Swap created, no leg locked yet
	StatusSourceLocked SwapStatus = "source_locked" // Source leg escrowed
	StatusDestLocked   SwapStatus = "dest_locked"   // Both legs escrowed
	StatusClaimed      SwapStatus = "claimed"       // Both legs settled by secret reveal
	StatusRefunded     SwapStatus = "refunded"      // Funds returned after timeout or dest failure
	StatusFailed       SwapStatus = "failed"        // Rejected before any funds moved
	StatusExpired      SwapStatus = "expired"       // Timelock passed with no claim observed
)

// IsTerminal returns true once no further transition is possible.
func (s SwapStatus) IsTerminal() bool {
	switch s {
	case StatusClaimed, StatusRefunded, StatusFailed, StatusExpired:
		return true
	}
	return false
}

// SwapRequest represents an incoming cross-chain swap order
type SwapRequest struct {
	SourceChain     ChainKind
	DestChain       ChainKind
	SourceAsset     string // chain-native asset encoding; empty means native asset
	DestAsset       string
	Amount          string // base units on the source chain
	InitiatorAddr   string // source-chain account funding the swap
	RecipientAddr   string // dest-chain account receiving funds
	TimelockSeconds int64  // optional; 0 means use the configured window
}

// Swap is the durable record of one logical cross-chain exchange.
// Hashlock and Secret are lowercase hex; Secret stays empty until generated
// and is retained until the swap reaches a terminal state so a restarted
// coordinator can still perform the source-side claim.
type Swap struct {
	ID             string     `json:"id"`
	SourceChain    ChainKind  `json:"source_chain"`
	DestChain      ChainKind  `json:"dest_chain"`
	InitiatorAddr  string     `json:"initiator_addr"`
	RecipientAddr  string     `json:"recipient_addr"`
	SourceAsset    string     `json:"source_asset,omitempty"`
	DestAsset      string     `json:"dest_asset,omitempty"`
	SourceAmount   string     `json:"source_amount"`
	DestAmount     string     `json:"dest_amount"` // source amount minus bridge fee
	Hashlock       string     `json:"hashlock"`
	Secret         string     `json:"secret,omitempty"`
	SourceTimelock time.Time  `json:"source_timelock"`
	DestTimelock   time.Time  `json:"dest_timelock"`
	Status         SwapStatus `json:"status"`
	SourceLockID   string     `json:"source_lock_id,omitempty"`
	DestLockID     string     `json:"dest_lock_id,omitempty"`
	SourceTxRef    string     `json:"source_tx_ref,omitempty"`
	DestTxRef      string     `json:"dest_tx_ref,omitempty"`
	FailureDetail  string     `json:"failure_detail,omitempty"`
	Created        time.Time  `json:"created"`
	LastUpdated    time.Time  `json:"last_updated"`
}

// FundsSafe reports whether the initiator's funds are accounted for: either
// nothing ever moved, or everything that moved has been settled or returned.
// A false result means at least one leg is still escrowed, waiting for a
// claim or for its refund window.
func (s *Swap) FundsSafe() bool {
	switch s.Status {
	case StatusPending, StatusFailed, StatusClaimed, StatusRefunded, StatusExpired:
		return true
	}
	return false
}

// Validate checks the chain-independent request fields. Address formats are
// validated at the adapter boundary where the chain encoding is known.
func (r *SwapRequest) Validate() error {
	if !r.SourceChain.Known() {
		return fmt.Errorf("unsupported source chain: %q", r.SourceChain)
	}
	if !r.DestChain.Known() {
		return fmt.Errorf("unsupported destination chain: %q", r.DestChain)
	}
	if r.Amount == "" || r.Amount == "0" {
		return fmt.Errorf("amount must be greater than 0")
	}
	if r.InitiatorAddr == "" {
		return fmt.Errorf("initiator address is required")
	}
	if r.RecipientAddr == "" {
		return fmt.Errorf("recipient address is required")
	}
	if r.SourceChain == r.DestChain && r.InitiatorAddr == r.RecipientAddr {
		return fmt.Errorf("source and destination identify the same account")
	}
	if r.TimelockSeconds < 0 {
		return fmt.Errorf("timelock seconds cannot be negative")
	}
	return nil
}
