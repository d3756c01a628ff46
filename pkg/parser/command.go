package parser

import (
	"fmt"
	"regexp"
	"strings"
)

// SwapCommand is the parsed form of a swap command line: a base-unit amount
// and the asset identifier on each leg. Chains and addresses come from flags.
type SwapCommand struct {
	Amount      string
	SourceAsset string
	DestAsset   string
}

var swapPattern = regexp.MustCompile(`^(\d+)\s+(\S+)\s+(?i:to)\s+(\S+)$`)

// ParseSwapCommand parses a swap command of the form
// "<amount> <source-asset> to <dest-asset>".
// Examples:
//   - "1000000 native to native"
//   - "swap 500 0xA0b8...eB48 to USDC:GA5Z..."
//
// Amounts are integers in the source chain's base units. The asset "native"
// (or "xlm"/"eth") selects the chain's native asset.
func ParseSwapCommand(command string) (*SwapCommand, error) {
	command = strings.TrimSpace(command)
	if len(command) > 5 && strings.EqualFold(command[:5], "swap ") {
		command = strings.TrimSpace(command[5:])
	}

	matches := swapPattern.FindStringSubmatch(command)
	if matches == nil {
		return nil, fmt.Errorf("invalid swap command format. Expected: '<amount> <asset> to <asset>' (e.g., '1000000 native to native')")
	}

	return &SwapCommand{
		Amount:      matches[1],
		SourceAsset: NormalizeAsset(matches[2]),
		DestAsset:   NormalizeAsset(matches[3]),
	}, nil
}

// NormalizeAsset maps the spellings of a chain's native asset to the empty
// string the ledger adapters expect; anything else passes through unchanged.
func NormalizeAsset(asset string) string {
	switch strings.ToLower(asset) {
	case "native", "xlm", "eth":
		return ""
	}
	return asset
}
