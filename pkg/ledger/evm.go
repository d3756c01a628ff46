package ledger

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"swapsage-bridge/config"
	"swapsage-bridge/pkg/htlc"
	"swapsage-bridge/pkg/types"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	etypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// HTLC escrow contract ABI. The contract derives each lock id from the lock
// parameters, so resubmitting identical parameters lands on an existing lock.
const htlcContractABI = `[
	{"constant":false,"inputs":[{"name":"recipient","type":"address"},{"name":"token","type":"address"},{"name":"amount","type":"uint256"},{"name":"hashlock","type":"bytes32"},{"name":"timelock","type":"uint256"}],"name":"newLock","outputs":[{"name":"lockId","type":"bytes32"}],"payable":true,"type":"function"},
	{"constant":false,"inputs":[{"name":"lockId","type":"bytes32"},{"name":"preimage","type":"bytes32"}],"name":"claim","outputs":[],"type":"function"},
	{"constant":false,"inputs":[{"name":"lockId","type":"bytes32"}],"name":"refund","outputs":[],"type":"function"},
	{"constant":true,"inputs":[{"name":"lockId","type":"bytes32"}],"name":"getLock","outputs":[{"name":"sender","type":"address"},{"name":"recipient","type":"address"},{"name":"token","type":"address"},{"name":"amount","type":"uint256"},{"name":"hashlock","type":"bytes32"},{"name":"timelock","type":"uint256"},{"name":"claimed","type":"bool"},{"name":"refunded","type":"bool"},{"name":"preimage","type":"bytes32"}],"type":"function"}
]`

// ERC20 approve function ABI, for the token lock path.
const erc20ApproveABI = `[{"constant":false,"inputs":[{"name":"_spender","type":"address"},{"name":"_value","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"type":"function"}]`

// EVMAdapter drives the HTLC escrow contract on an EVM-compatible chain.
type EVMAdapter struct {
	cfg        config.EVMConfig
	minWindow  time.Duration
	maxWindow  time.Duration
	client     *ethclient.Client
	privateKey *ecdsa.PrivateKey
	from       common.Address
	contract   common.Address
	htlcABI    abi.ABI
	erc20ABI   abi.ABI
}

// NewEVMAdapter connects to the configured RPC endpoint and prepares the
// signing key.
func NewEVMAdapter(cfg config.EVMConfig, tl config.TimelockConfig) (*EVMAdapter, error) {
	if cfg.RPCUrl == "" {
		return nil, fmt.Errorf("RPC URL not configured for EVM chain")
	}
	if cfg.PrivateKey == "" {
		return nil, fmt.Errorf("private key not configured for EVM chain")
	}
	if !common.IsHexAddress(cfg.HTLCContract) {
		return nil, fmt.Errorf("invalid HTLC contract address: %s", cfg.HTLCContract)
	}

	client, err := ethclient.Dial(cfg.RPCUrl)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC endpoint: %w", err)
	}

	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	htlcABI, err := abi.JSON(strings.NewReader(htlcContractABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTLC ABI: %w", err)
	}
	erc20ABI, err := abi.JSON(strings.NewReader(erc20ApproveABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ERC20 ABI: %w", err)
	}

	return &EVMAdapter{
		cfg:        cfg,
		minWindow:  tl.MinWindow,
		maxWindow:  tl.MaxWindow,
		client:     client,
		privateKey: privateKey,
		from:       crypto.PubkeyToAddress(privateKey.PublicKey),
		contract:   common.HexToAddress(cfg.HTLCContract),
		htlcABI:    htlcABI,
		erc20ABI:   erc20ABI,
	}, nil
}

func (e *EVMAdapter) Kind() types.ChainKind { return types.ChainEVM }

// AccountAddress returns the bridge's signing address on this chain.
func (e *EVMAdapter) AccountAddress() string { return e.from.Hex() }

// ValidateAddress rejects anything that is not a 20-byte hex address.
func (e *EVMAdapter) ValidateAddress(addr string) error {
	if !common.IsHexAddress(addr) {
		return fmt.Errorf("%w: invalid EVM address: %s", htlc.ErrInvalidRequest, addr)
	}
	return nil
}

// ComputeLockID derives the contract's lock id from the lock parameters:
// keccak256(sender . recipient . token . amount . hashlock . timelock).
// Duplicate submissions with identical parameters therefore collide on the
// same id and are rejected without an external nonce.
func ComputeLockID(sender, recipient, token common.Address, amount *big.Int, hashlock htlc.Hashlock, timelock int64) common.Hash {
	packed := make([]byte, 0, 3*20+32+32+32)
	packed = append(packed, sender.Bytes()...)
	packed = append(packed, recipient.Bytes()...)
	packed = append(packed, token.Bytes()...)
	packed = append(packed, common.LeftPadBytes(amount.Bytes(), 32)...)
	packed = append(packed, hashlock[:]...)
	packed = append(packed, common.LeftPadBytes(big.NewInt(timelock).Bytes(), 32)...)
	return common.BytesToHash(crypto.Keccak256(packed))
}

// Lock escrows funds in the HTLC contract. Native and token transfers are
// distinct paths: the native path attaches the exact value, the token path
// attaches none and issues an ERC20 approve for the contract first.
func (e *EVMAdapter) Lock(ctx context.Context, p htlc.LockParams) (*htlc.LockResult, error) {
	if err := e.ValidateAddress(p.Recipient); err != nil {
		return nil, err
	}
	token := common.Address{}
	if p.Asset != "" {
		if !common.IsHexAddress(p.Asset) {
			return nil, fmt.Errorf("%w: invalid token contract address: %s", htlc.ErrInvalidRequest, p.Asset)
		}
		token = common.HexToAddress(p.Asset)
	}
	if p.Amount == nil || p.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", htlc.ErrInvalidRequest)
	}
	now := time.Now()
	if p.Timelock.Before(now.Add(e.minWindow)) || p.Timelock.After(now.Add(e.maxWindow)) {
		return nil, fmt.Errorf("%w: timelock must be between %s and %s from now",
			htlc.ErrInvalidTimelock, e.minWindow, e.maxWindow)
	}

	recipient := common.HexToAddress(p.Recipient)
	timelock := p.Timelock.Unix()
	lockID := ComputeLockID(e.from, recipient, token, p.Amount, p.Hashlock, timelock)

	// A lock with these exact parameters may already exist (e.g. a retried
	// submission that actually confirmed).
	if existing, err := e.QueryLock(ctx, lockID.Hex()); err == nil && existing != nil {
		return nil, fmt.Errorf("lock %s: %w", lockID.Hex(), htlc.ErrAlreadyExists)
	}

	nonce, err := e.client.PendingNonceAt(ctx, e.from)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}

	value := new(big.Int)
	if token == (common.Address{}) {
		// Native path: the locked amount rides along as tx value.
		balance, err := e.client.BalanceAt(ctx, e.from, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to get balance: %w", err)
		}
		if balance.Cmp(p.Amount) < 0 {
			return nil, fmt.Errorf("insufficient balance: have %s wei, need %s wei", balance, p.Amount)
		}
		value.Set(p.Amount)
	} else {
		// Token path: approve the escrow contract to pull the amount, then
		// lock with zero value. The contract does the transferFrom.
		approveData, err := e.erc20ABI.Pack("approve", e.contract, p.Amount)
		if err != nil {
			return nil, fmt.Errorf("failed to pack approve data: %w", err)
		}
		if _, err := e.sendTx(ctx, nonce, token, new(big.Int), approveData); err != nil {
			return nil, fmt.Errorf("token approve failed: %w", err)
		}
		nonce++
	}

	lockData, err := e.htlcABI.Pack("newLock", recipient, token, p.Amount, [32]byte(p.Hashlock), big.NewInt(timelock))
	if err != nil {
		return nil, fmt.Errorf("failed to pack newLock data: %w", err)
	}

	txHash, err := e.sendTx(ctx, nonce, e.contract, value, lockData)
	if err != nil {
		return nil, fmt.Errorf("newLock failed: %w", err)
	}

	return &htlc.LockResult{LockID: lockID.Hex(), TxRef: txHash}, nil
}

// Claim reveals the preimage to the contract. Preconditions are checked
// against the current lock state first, so precondition failures surface as
// typed errors instead of burned gas on a revert.
func (e *EVMAdapter) Claim(ctx context.Context, lockID string, secret htlc.Secret) (*htlc.ClaimResult, error) {
	info, err := e.QueryLock(ctx, lockID)
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

	data, err := e.htlcABI.Pack("claim", common.HexToHash(lockID), [32]byte(secret))
	if err != nil {
		return nil, fmt.Errorf("failed to pack claim data: %w", err)
	}
	nonce, err := e.client.PendingNonceAt(ctx, e.from)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}
	txHash, err := e.sendTx(ctx, nonce, e.contract, new(big.Int), data)
	if err != nil {
		return nil, fmt.Errorf("claim failed: %w", err)
	}
	return &htlc.ClaimResult{TxRef: txHash}, nil
}

// Refund returns the escrow to the locker after expiry.
func (e *EVMAdapter) Refund(ctx context.Context, lockID string) (*htlc.RefundResult, error) {
	info, err := e.QueryLock(ctx, lockID)
	if err != nil {
		return nil, err
	}
	if info.State.Terminal() {
		return nil, fmt.Errorf("lock %s: %w", lockID, htlc.ErrAlreadySettled)
	}
	if time.Now().Before(info.Timelock) {
		return nil, fmt.Errorf("lock %s: %w", lockID, htlc.ErrNotExpired)
	}

	data, err := e.htlcABI.Pack("refund", common.HexToHash(lockID))
	if err != nil {
		return nil, fmt.Errorf("failed to pack refund data: %w", err)
	}
	nonce, err := e.client.PendingNonceAt(ctx, e.from)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}
	txHash, err := e.sendTx(ctx, nonce, e.contract, new(big.Int), data)
	if err != nil {
		return nil, fmt.Errorf("refund failed: %w", err)
	}
	return &htlc.RefundResult{TxRef: txHash}, nil
}

// QueryLock reads the lock record from the contract.
func (e *EVMAdapter) QueryLock(ctx context.Context, lockID string) (*htlc.LockInfo, error) {
	data, err := e.htlcABI.Pack("getLock", common.HexToHash(lockID))
	if err != nil {
		return nil, fmt.Errorf("failed to pack getLock data: %w", err)
	}

	result, err := e.client.CallContract(ctx, ethereum.CallMsg{To: &e.contract, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call getLock: %w", err)
	}

	fields, err := e.htlcABI.Unpack("getLock", result)
	if err != nil {
		return nil, fmt.Errorf("failed to decode getLock result: %w", err)
	}
	if len(fields) != 9 {
		return nil, fmt.Errorf("unexpected getLock result arity: %d", len(fields))
	}

	sender := fields[0].(common.Address)
	if sender == (common.Address{}) {
		return nil, fmt.Errorf("lock %s: %w", lockID, htlc.ErrLockNotFound)
	}
	recipient := fields[1].(common.Address)
	token := fields[2].(common.Address)
	amount := fields[3].(*big.Int)
	hashlock := fields[4].([32]byte)
	timelock := fields[5].(*big.Int)
	claimed := fields[6].(bool)
	refunded := fields[7].(bool)
	preimage := fields[8].([32]byte)

	info := &htlc.LockInfo{
		LockID:    lockID,
		Sender:    sender.Hex(),
		Recipient: recipient.Hex(),
		Amount:    amount,
		Hashlock:  htlc.Hashlock(hashlock),
		Timelock:  time.Unix(timelock.Int64(), 0),
		State:     htlc.StateLocked,
	}
	if token != (common.Address{}) {
		info.Asset = token.Hex()
	}
	switch {
	case claimed:
		info.State = htlc.StateClaimed
		s := htlc.Secret(preimage)
		info.Preimage = &s
	case refunded:
		info.State = htlc.StateRefunded
	}
	return info, nil
}

// sendTx signs and submits a transaction, returning its hash.
func (e *EVMAdapter) sendTx(ctx context.Context, nonce uint64, to common.Address, value *big.Int, data []byte) (string, error) {
	gasPrice, err := e.gasPrice(ctx)
	if err != nil {
		return "", err
	}

	gasLimit := e.cfg.GasLimit
	if gasLimit == 0 {
		msg := ethereum.CallMsg{From: e.from, To: &to, Value: value, Data: data}
		estimated, err := e.client.EstimateGas(ctx, msg)
		if err != nil {
			return "", fmt.Errorf("failed to estimate gas: %w", err)
		}
		gasLimit = estimated * 120 / 100 // 20% buffer
	}

	tx := etypes.NewTransaction(nonce, to, value, gasLimit, gasPrice, data)
	signedTx, err := etypes.SignTx(tx, etypes.NewEIP155Signer(big.NewInt(e.cfg.ChainID)), e.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}
	if err := e.client.SendTransaction(ctx, signedTx); err != nil {
		return "", fmt.Errorf("failed to send transaction: %w", err)
	}
	return signedTx.Hash().Hex(), nil
}

func (e *EVMAdapter) gasPrice(ctx context.Context) (*big.Int, error) {
	if e.cfg.GasPrice > 0 {
		return big.NewInt(e.cfg.GasPrice), nil
	}
	gasPrice, err := e.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}
	return gasPrice, nil
}

// Close closes the client connection
func (e *EVMAdapter) Close() {
	if e.client != nil {
		e.client.Close()
	}
}

// DecodeLockID parses a 0x-prefixed 32-byte lock id.
func DecodeLockID(s string) (common.Hash, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil || len(b) != 32 {
		return common.Hash{}, fmt.Errorf("invalid lock id: %s", s)
	}
	return common.BytesToHash(b), nil
}
