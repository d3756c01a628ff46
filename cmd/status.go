package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"swapsage-bridge/pkg/bridge"
	"swapsage-bridge/pkg/types"
)

var (
	watchStatus   bool
	watchInterval int
)

var statusCmd = &cobra.Command{
	Use:   "status <swap-id>",
	Short: "Check the status of a swap",
	Long: `Check the current state of a cross-chain swap by its id. In-flight swaps are
reconciled against both ledgers before display, so the output reflects what
actually happened on-chain even after a restart.

Examples:
  swapsage status 2f1c9a4e-...
  swapsage status 2f1c9a4e-... --watch
  swapsage status 2f1c9a4e-... --watch --interval 10`,
	Args: cobra.ExactArgs(1),
	Run:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().BoolVarP(&watchStatus, "watch", "w", false, "Watch status updates continuously")
	statusCmd.Flags().IntVar(&watchInterval, "interval", 5, "Polling interval in seconds (when watching)")
}

func runStatus(cmd *cobra.Command, args []string) {
	swapID := args[0]
	jsonOutput, _ := cmd.Flags().GetBool("json")

	coord, reg, err := newCoordinator(cmd)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer reg.Close()

	if watchStatus {
		watchSwapStatus(cmd, coord, swapID, jsonOutput)
	} else {
		checkSwapStatus(cmd, coord, swapID, jsonOutput)
	}
}

func checkSwapStatus(cmd *cobra.Command, coord *bridge.Coordinator, swapID string, jsonOutput bool) {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Checking swap status..."
		s.Start()
	}

	swap, err := coord.Status(cmd.Context(), swapID)
	if !jsonOutput {
		s.Stop()
	}

	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		jsonData, _ := json.MarshalIndent(swap, "", "  ")
		fmt.Println(string(jsonData))
	} else {
		displayStatus(swap)
	}
}

func watchSwapStatus(cmd *cobra.Command, coord *bridge.Coordinator, swapID string, jsonOutput bool) {
	if jsonOutput {
		fmt.Println(`{"error": "watch mode not supported with JSON output"}`)
		os.Exit(1)
	}

	fmt.Printf("\nWatching swap %s\n", color.CyanString(swapID))
	fmt.Printf("Checking every %d seconds. Press Ctrl+C to stop.\n", watchInterval)

	ticker := time.NewTicker(time.Duration(watchInterval) * time.Second)
	defer ticker.Stop()

	// Check immediately first
	if done := checkAndDisplayStatus(cmd, coord, swapID); done {
		return
	}

	for range ticker.C {
		if done := checkAndDisplayStatus(cmd, coord, swapID); done {
			return
		}
	}
}

// checkAndDisplayStatus returns true once the swap hits a terminal status.
func checkAndDisplayStatus(cmd *cobra.Command, coord *bridge.Coordinator, swapID string) bool {
	swap, err := coord.Status(cmd.Context(), swapID)
	if err != nil {
		color.Red("Error: %v", err)
		return false
	}

	displayStatus(swap)
	return swap.Status.IsTerminal()
}

func displayStatus(swap *types.Swap) {
	fmt.Println("\n" + strings.Repeat("=", 70))
	color.Green("                        SWAP STATUS")
	fmt.Println(strings.Repeat("=", 70))

	fmt.Printf("\n  Swap ID:         %s\n", color.CyanString(swap.ID))
	fmt.Printf("  Status:          %s\n", coloredStatus(swap.Status))
	fmt.Printf("  Route:           %s -> %s\n", swap.SourceChain, swap.DestChain)
	fmt.Printf("  Amount In:       %s %s\n", swap.SourceAmount, assetLabel(swap.SourceAsset))
	fmt.Printf("  Amount Out:      %s %s\n", swap.DestAmount, assetLabel(swap.DestAsset))
	fmt.Printf("  Hashlock:        %s\n", color.HiBlackString(swap.Hashlock))
	fmt.Printf("  Source Expires:  %s\n", swap.SourceTimelock.Local().Format("2006-01-02 15:04:05"))
	fmt.Printf("  Dest Expires:    %s\n", swap.DestTimelock.Local().Format("2006-01-02 15:04:05"))

	if swap.SourceLockID != "" {
		fmt.Printf("  Source Lock:     %s\n", color.HiBlackString(swap.SourceLockID))
	}
	if swap.DestLockID != "" {
		fmt.Printf("  Dest Lock:       %s\n", color.HiBlackString(swap.DestLockID))
	}
	if swap.SourceTxRef != "" {
		fmt.Printf("  Source Tx:       %s\n", color.HiBlackString(swap.SourceTxRef))
	}
	if swap.DestTxRef != "" {
		fmt.Printf("  Dest Tx:         %s\n", color.HiBlackString(swap.DestTxRef))
	}
	if swap.FailureDetail != "" {
		fmt.Printf("  Detail:          %s\n", color.YellowString(swap.FailureDetail))
	}
	fmt.Printf("  Last Updated:    %s\n", swap.LastUpdated.Local().Format("2006-01-02 15:04:05"))

	fmt.Println("\n" + strings.Repeat("=", 70) + "\n")
}

func coloredStatus(status types.SwapStatus) string {
	s := strings.ToUpper(string(status))

	switch status {
	case types.StatusClaimed:
		return color.GreenString(s)
	case types.StatusPending, types.StatusSourceLocked, types.StatusDestLocked:
		return color.YellowString(s)
	case types.StatusFailed, types.StatusExpired:
		return color.RedString(s)
	case types.StatusRefunded:
		return color.MagentaString(s)
	default:
		return s
	}
}
