package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"swapsage-bridge/pkg/types"
)

var filterStatus string

var listCmd = &cobra.Command{
	Use:     "list <address>",
	Aliases: []string{"ls"},
	Short:   "List swaps involving an address",
	Long: `List every swap where the address appears as initiator or recipient, most
recent first.

Examples:
  swapsage list 0x1234...abcd
  swapsage list GABC... --status claimed`,
	Args: cobra.ExactArgs(1),
	Run:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringVar(&filterStatus, "status", "", "Filter by swap status")
}

func runList(cmd *cobra.Command, args []string) {
	address := args[0]
	jsonOutput, _ := cmd.Flags().GetBool("json")

	_, reg, err := newCoordinator(cmd)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer reg.Close()

	swaps, err := reg.ListByAddress(cmd.Context(), address)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if filterStatus != "" {
		want := types.SwapStatus(strings.ToLower(filterStatus))
		filtered := swaps[:0]
		for _, s := range swaps {
			if s.Status == want {
				filtered = append(filtered, s)
			}
		}
		swaps = filtered
	}

	if jsonOutput {
		jsonData, _ := json.MarshalIndent(swaps, "", "  ")
		fmt.Println(string(jsonData))
		return
	}

	if len(swaps) == 0 {
		fmt.Printf("\nNo swaps found for %s\n\n", color.CyanString(address))
		return
	}

	fmt.Printf("\nSwaps for %s:\n\n", color.CyanString(address))
	for _, s := range swaps {
		fmt.Printf("  %s  %s\n", color.CyanString(s.ID), coloredStatus(s.Status))
		fmt.Printf("    %s %s on %s -> %s %s on %s\n",
			s.SourceAmount, assetLabel(s.SourceAsset), s.SourceChain,
			s.DestAmount, assetLabel(s.DestAsset), s.DestChain)
		fmt.Printf("    created %s\n\n", s.Created.Local().Format("2006-01-02 15:04:05"))
	}
}
