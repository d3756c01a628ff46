package bridge

import (
	"context"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"swapsage-bridge/pkg/types"
)

// RateOutcome qualifies how a conversion was obtained. Callers surface it so
// users know whether the destination amount is firm or indicative.
type RateOutcome string

const (
	RateResolved    RateOutcome = "resolved"    // live market rate
	RateEstimated   RateOutcome = "estimated"   // fallback or static rate
	RateUnavailable RateOutcome = "unavailable" // no conversion possible
)

// Rate is the destination amount computed for a source amount, before the
// bridge fee is applied.
type Rate struct {
	Outcome    RateOutcome
	DestAmount *big.Int
	Detail     string
}

// RateSource converts a source-chain amount into a destination-chain amount.
// The production source is an external quote service; the bridge itself only
// consumes the result.
type RateSource interface {
	Convert(ctx context.Context, req *types.SwapRequest, amount *big.Int) (*Rate, error)
}

// StaticRateSource converts at a fixed multiplier. It backs demo mode and
// same-asset transfers; its outcomes are always Estimated.
type StaticRateSource struct {
	multiplier decimal.Decimal
}

// NewStaticRateSource returns a source converting at the given multiplier.
// A multiplier of 1 treats both assets as equivalent in base units.
func NewStaticRateSource(multiplier decimal.Decimal) *StaticRateSource {
	return &StaticRateSource{multiplier: multiplier}
}

func (s *StaticRateSource) Convert(_ context.Context, _ *types.SwapRequest, amount *big.Int) (*Rate, error) {
	if s.multiplier.Sign() <= 0 {
		return &Rate{Outcome: RateUnavailable, Detail: "no rate configured"}, nil
	}
	dest := decimal.NewFromBigInt(amount, 0).Mul(s.multiplier).Floor().BigInt()
	return &Rate{
		Outcome:    RateEstimated,
		DestAmount: dest,
		Detail:     fmt.Sprintf("static rate %s", s.multiplier),
	}, nil
}

// ApplyFee deducts the bridge fee, expressed in basis points, from a
// destination amount. Rounding always favors the bridge.
func ApplyFee(amount *big.Int, feeBps int64) *big.Int {
	if feeBps <= 0 {
		return new(big.Int).Set(amount)
	}
	fee := new(big.Int).Mul(amount, big.NewInt(feeBps))
	fee.Div(fee, big.NewInt(10000))
	out := new(big.Int).Sub(amount, fee)
	if out.Sign() < 0 {
		return big.NewInt(0)
	}
	return out
}
