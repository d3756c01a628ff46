package cmd

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"swapsage-bridge/config"
	"swapsage-bridge/pkg/bridge"
	"swapsage-bridge/pkg/htlc"
	"swapsage-bridge/pkg/ledger"
	"swapsage-bridge/pkg/registry"
	"swapsage-bridge/pkg/types"
)

var rootCmd = &cobra.Command{
	Use:   "swapsage",
	Short: "A CLI for atomic cross-chain swaps between EVM chains and Stellar",
	Long: `swapsage coordinates atomic swaps between an EVM chain and Stellar using
hashed timelock contracts. Funds on both chains are escrowed under the same
secret hash; either both legs settle or both refund after their timelocks.

Examples:
  swapsage swap 1000000 native to native --from-chain evm --to-chain stellar --initiator 0x... --recipient G...
  swapsage status <swap-id>
  swapsage list <address>
  swapsage refund <swap-id>
  swapsage daemon`,
	Version: "0.1.0",
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Add global flags
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "Output in JSON format")
	rootCmd.PersistentFlags().Bool("demo", false, "Run against in-memory ledgers instead of live chains")
}

func printError(err error) {
	fmt.Printf("\nError: %v\n\n", err)
}

func printSuccess(message string) {
	fmt.Printf("\n%s\n\n", message)
}

// newLogger builds the process logger; verbose switches on debug level.
func newLogger(cmd *cobra.Command) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.WarnLevel)
	}
	return log
}

// newCoordinator wires config, registry, ledger adapters, and the rate source
// into a ready coordinator. The caller must Close the returned registry.
func newCoordinator(cmd *cobra.Command) (*bridge.Coordinator, *registry.Registry, error) {
	return newCoordinatorWithLogger(cmd, newLogger(cmd))
}

func newCoordinatorWithLogger(cmd *cobra.Command, log *logrus.Logger) (*bridge.Coordinator, *registry.Registry, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if demo, _ := cmd.Flags().GetBool("demo"); demo {
		cfg.DemoMode = true
	}

	reg, err := registry.Open(cfg.RegistryPath)
	if err != nil {
		return nil, nil, err
	}

	adapters := make(map[types.ChainKind]htlc.Adapter)
	for _, kind := range ledger.Supported() {
		a, err := ledger.New(kind, cfg)
		if err != nil {
			reg.Close()
			return nil, nil, fmt.Errorf("building %s adapter: %w", kind, err)
		}
		adapters[kind] = a
	}

	rates := bridge.NewStaticRateSource(decimal.NewFromInt(1))
	coord := bridge.New(cfg, reg, adapters, rates, log)
	return coord, reg, nil
}
