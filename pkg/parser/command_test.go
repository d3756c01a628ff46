package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSwapCommand(t *testing.T) {
	cmd, err := ParseSwapCommand("1000000 native to native")
	require.NoError(t, err)
	assert.Equal(t, "1000000", cmd.Amount)
	assert.Equal(t, "", cmd.SourceAsset)
	assert.Equal(t, "", cmd.DestAsset)

	// Leading "swap" and mixed case are tolerated.
	cmd, err = ParseSwapCommand("swap 500 XLM TO 0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	require.NoError(t, err)
	assert.Equal(t, "500", cmd.Amount)
	assert.Equal(t, "", cmd.SourceAsset)
	assert.Equal(t, "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", cmd.DestAsset)

	cmd, err = ParseSwapCommand("42 USDC:GA5ZSEJYB37JRC5AVCIA5MOP4RHTM335X2KGX3IHOJAPP5RE34K4KZVN to native")
	require.NoError(t, err)
	assert.Equal(t, "USDC:GA5ZSEJYB37JRC5AVCIA5MOP4RHTM335X2KGX3IHOJAPP5RE34K4KZVN", cmd.SourceAsset)
}

func TestParseSwapCommandRejectsMalformed(t *testing.T) {
	for _, bad := range []string{
		"",
		"native to native",       // missing amount
		"1.5 native to native",   // fractional amounts are not base units
		"100 native",             // missing destination
		"100 native to",          // missing destination asset
		"100 native into native", // wrong keyword
	} {
		_, err := ParseSwapCommand(bad)
		assert.Error(t, err, "command %q", bad)
	}
}

func TestNormalizeAsset(t *testing.T) {
	assert.Equal(t, "", NormalizeAsset("native"))
	assert.Equal(t, "", NormalizeAsset("XLM"))
	assert.Equal(t, "", NormalizeAsset("eth"))
	assert.Equal(t, "0xABC", NormalizeAsset("0xABC"))
	assert.Equal(t, "USDC:GABC", NormalizeAsset("USDC:GABC"))
}
