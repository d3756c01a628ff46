package ledger

import (
	"fmt"

	"swapsage-bridge/config"
	"swapsage-bridge/pkg/htlc"
	"swapsage-bridge/pkg/types"
)

// builder constructs an adapter for one chain kind from configuration.
type builder func(cfg *config.Config) (htlc.Adapter, error)

var builders = map[types.ChainKind]builder{
	types.ChainEVM: func(cfg *config.Config) (htlc.Adapter, error) {
		return NewEVMAdapter(cfg.EVM, cfg.Timelock)
	},
	types.ChainStellar: func(cfg *config.Config) (htlc.Adapter, error) {
		return NewStellarAdapter(cfg.Stellar, cfg.Timelock)
	},
}

// New returns the adapter for the given chain kind. In demo mode every kind
// resolves to a fresh in-memory ledger so swaps can run without RPC access.
func New(kind types.ChainKind, cfg *config.Config) (htlc.Adapter, error) {
	if cfg.DemoMode {
		return NewMemoryLedger(kind, cfg.Timelock.MinWindow, cfg.Timelock.MaxWindow), nil
	}
	build, ok := builders[kind]
	if !ok {
		return nil, fmt.Errorf("unsupported chain: %s", kind)
	}
	return build(cfg)
}

// Supported lists the chain kinds an adapter exists for.
func Supported() []types.ChainKind {
	kinds := make([]types.ChainKind, 0, len(builders))
	for k := range builders {
		kinds = append(kinds, k)
	}
	return kinds
}
