package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"swapsage-bridge/pkg/htlc"
)

var refundCmd = &cobra.Command{
	Use:   "refund <swap-id>",
	Short: "Refund the escrowed legs of a stalled swap",
	Long: `Refund whatever a stalled swap still holds in escrow. The ledgers only
release escrows after their timelocks pass; calling this early reports how
long is left. The daemon performs the same refunds automatically.

Examples:
  swapsage refund 2f1c9a4e-...`,
	Args: cobra.ExactArgs(1),
	Run:  runRefund,
}

func init() {
	rootCmd.AddCommand(refundCmd)
}

func runRefund(cmd *cobra.Command, args []string) {
	swapID := args[0]
	jsonOutput, _ := cmd.Flags().GetBool("json")

	coord, reg, err := newCoordinator(cmd)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer reg.Close()

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Refunding swap..."
		s.Start()
	}

	swap, err := coord.Refund(cmd.Context(), swapID)
	if !jsonOutput {
		s.Stop()
	}

	if err != nil {
		if errors.Is(err, htlc.ErrNotExpired) && swap != nil {
			color.Yellow("\nRefund window not open yet.")
			fmt.Printf("  Source leg unlocks at %s\n", swap.SourceTimelock.Local().Format("2006-01-02 15:04:05"))
			fmt.Printf("  Dest leg unlocks at   %s\n\n", swap.DestTimelock.Local().Format("2006-01-02 15:04:05"))
			os.Exit(1)
		}
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		jsonData, _ := json.MarshalIndent(swap, "", "  ")
		fmt.Println(string(jsonData))
		return
	}

	printSuccess(color.GreenString("Swap %s unwound: %s", swap.ID, swap.Status))
}
