package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"swapsage-bridge/pkg/bridge"
	"swapsage-bridge/pkg/ledger"
	"swapsage-bridge/pkg/parser"
	"swapsage-bridge/pkg/types"
)

var (
	fromChain       string
	toChain         string
	initiatorAddr   string
	recipientAddr   string
	timelockSeconds int64
	noConfirm       bool
)

var swapCmd = &cobra.Command{
	Use:   "swap <amount> <source-asset> to <dest-asset>",
	Short: "Perform an atomic cross-chain swap",
	Long: `Swap assets between an EVM chain and Stellar through hashed timelock escrows.

IMPORTANT:
  - Amounts are integers in the source chain's base units (wei, stroops)
  - You MUST specify --initiator (source-chain account funding the swap)
  - You MUST specify --recipient (destination-chain account receiving funds)
  - Use the asset name "native" for the chain's native asset

Examples:
  # Native-to-native swap, EVM to Stellar
  swapsage swap 1000000000000000000 native to native --from-chain evm --to-chain stellar --initiator 0x123... --recipient GABC...

  # ERC20 to a Stellar issued asset
  swapsage swap 5000000 0xA0b8...eB48 to USDC:GA5Z... --from-chain evm --to-chain stellar --initiator 0x123... --recipient GABC...

  # Against in-memory ledgers, no RPC needed
  swapsage swap 1000 native to native --from-chain evm --to-chain stellar --initiator alice --recipient bob --demo

  # Skip the confirmation prompt
  swapsage swap 1000 native to native --from-chain evm --to-chain stellar --initiator alice --recipient bob --demo --yes`,
	Args: cobra.MinimumNArgs(1),
	Run:  runSwap,
}

func init() {
	rootCmd.AddCommand(swapCmd)

	swapCmd.Flags().StringVar(&fromChain, "from-chain", "", "Source chain: evm or stellar (REQUIRED)")
	swapCmd.Flags().StringVar(&toChain, "to-chain", "", "Destination chain: evm or stellar (REQUIRED)")
	swapCmd.Flags().StringVar(&initiatorAddr, "initiator", "", "Initiator address on the source chain (REQUIRED)")
	swapCmd.Flags().StringVar(&recipientAddr, "recipient", "", "Recipient address on the destination chain (REQUIRED)")
	swapCmd.Flags().Int64Var(&timelockSeconds, "timelock", 0, "Source timelock window in seconds (default: configured window)")
	swapCmd.Flags().BoolVarP(&noConfirm, "yes", "y", false, "Skip confirmation prompt")
}

func runSwap(cmd *cobra.Command, args []string) {
	commandStr := strings.Join(args, " ")
	parsed, err := parser.ParseSwapCommand(commandStr)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	jsonOutput, _ := cmd.Flags().GetBool("json")

	req := &types.SwapRequest{
		SourceChain:     types.ChainKind(strings.ToLower(fromChain)),
		DestChain:       types.ChainKind(strings.ToLower(toChain)),
		SourceAsset:     parsed.SourceAsset,
		DestAsset:       parsed.DestAsset,
		Amount:          parsed.Amount,
		InitiatorAddr:   initiatorAddr,
		RecipientAddr:   recipientAddr,
		TimelockSeconds: timelockSeconds,
	}
	if err := req.Validate(); err != nil {
		printError(err)
		os.Exit(1)
	}

	coord, reg, err := newCoordinator(cmd)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer reg.Close()

	fundDemoLedgers(coord, req)

	if !noConfirm && !jsonOutput {
		displaySwapPlan(req)
		if !confirmSwap() {
			fmt.Println("\nSwap cancelled.")
			os.Exit(0)
		}
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Executing swap..."
		s.Start()
	}

	swap, err := coord.InitiateSwap(cmd.Context(), req)
	if !jsonOutput {
		s.Stop()
	}

	if err != nil {
		if swap != nil && !swap.FundsSafe() {
			color.Yellow("\nSwap %s did not complete; escrowed funds will be refunded after the timelock.", swap.ID)
			color.Yellow("Track it with: swapsage status %s", swap.ID)
		}
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		jsonData, _ := json.MarshalIndent(swap, "", "  ")
		fmt.Println(string(jsonData))
		return
	}

	printSuccess(color.GreenString("Swap %s completed.", swap.ID))
	displaySwap(swap)
}

// fundDemoLedgers seeds the in-memory ledgers so a demo swap has balances to
// move: the initiator on the source chain, the bridge account on the
// destination chain. No effect outside demo mode.
func fundDemoLedgers(coord *bridge.Coordinator, req *types.SwapRequest) {
	seed, ok := new(big.Int).SetString(req.Amount, 10)
	if !ok {
		return
	}
	seed.Mul(seed, big.NewInt(2))

	if a, ok := coord.Adapter(req.SourceChain); ok {
		if mem, ok := a.(*ledger.MemoryLedger); ok {
			mem.Fund(req.InitiatorAddr, req.SourceAsset, seed)
		}
	}
	if a, ok := coord.Adapter(req.DestChain); ok {
		if mem, ok := a.(*ledger.MemoryLedger); ok {
			mem.Fund(mem.AccountAddress(), req.DestAsset, seed)
		}
	}
}

func displaySwapPlan(req *types.SwapRequest) {
	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Green("                     SWAP PLAN")
	fmt.Println(strings.Repeat("=", 60))

	fmt.Printf("\n  From:       %s %s on %s\n", req.Amount, assetLabel(req.SourceAsset), color.YellowString(string(req.SourceChain)))
	fmt.Printf("  To:         %s on %s\n", assetLabel(req.DestAsset), color.YellowString(string(req.DestChain)))
	fmt.Printf("  Initiator:  %s\n", color.CyanString(req.InitiatorAddr))
	fmt.Printf("  Recipient:  %s\n", color.CyanString(req.RecipientAddr))
	if req.TimelockSeconds > 0 {
		fmt.Printf("  Timelock:   %d seconds\n", req.TimelockSeconds)
	}

	fmt.Println("\n" + strings.Repeat("=", 60))
}

func displaySwap(swap *types.Swap) {
	fmt.Printf("  Status:          %s\n", coloredStatus(swap.Status))
	fmt.Printf("  Sent:            %s %s on %s\n", swap.SourceAmount, assetLabel(swap.SourceAsset), swap.SourceChain)
	fmt.Printf("  Received:        %s %s on %s\n", swap.DestAmount, assetLabel(swap.DestAsset), swap.DestChain)
	fmt.Printf("  Hashlock:        %s\n", color.HiBlackString(swap.Hashlock))
	if swap.SourceTxRef != "" {
		fmt.Printf("  Source Tx:       %s\n", color.HiBlackString(swap.SourceTxRef))
	}
	if swap.DestTxRef != "" {
		fmt.Printf("  Destination Tx:  %s\n", color.HiBlackString(swap.DestTxRef))
	}
	fmt.Println()
}

func assetLabel(asset string) string {
	if asset == "" {
		return "native"
	}
	return asset
}

func confirmSwap() bool {
	reader := bufio.NewReader(os.Stdin)
	fmt.Print("\nProceed with swap? (y/N): ")

	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}

	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}
