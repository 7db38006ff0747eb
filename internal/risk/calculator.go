// Package risk computes cross-venue exposure and hedge instructions
package risk

import (
	"grid_hedger/internal/core"

	"github.com/shopspring/decimal"
)

// OpenRisk returns the net exposure across both venues in primary-venue lots:
// primary position plus hedge position scaled by the lot ratio.
func OpenRisk(primaryPos, hedgePos, lotRatio decimal.Decimal) decimal.Decimal {
	return primaryPos.Add(hedgePos.Mul(lotRatio))
}

// MaxUnhedged returns the open-risk tolerance in primary-venue lots
func MaxUnhedged(lotRatio, riskCoefficient decimal.Decimal) decimal.Decimal {
	return lotRatio.Mul(riskCoefficient)
}

// HedgeInstruction sizes the market order that brings open risk back within
// tolerance. The excess beyond maxUnhedged is converted to whole hedge-venue
// contracts, rounding up so a partial lot of excess still triggers one
// contract, and capped at the venue's max order size. Exposure at or below
// the tolerance yields a zero instruction.
func HedgeInstruction(openRisk, lotRatio, maxUnhedged, maxHedgeOrderSize decimal.Decimal) core.HedgeInstruction {
	excess := openRisk.Abs().Sub(maxUnhedged)
	if !excess.IsPositive() {
		return core.HedgeInstruction{}
	}

	size := excess.Div(lotRatio).Ceil()
	if size.GreaterThan(maxHedgeOrderSize) {
		size = maxHedgeOrderSize
	}
	if !size.IsPositive() {
		return core.HedgeInstruction{}
	}

	side := core.SideSell
	if openRisk.IsNegative() {
		side = core.SideBuy
	}
	return core.HedgeInstruction{Side: side, Size: size}
}

// Evaluate combines the three steps for one hedger wake-up
func Evaluate(spec core.SymbolSpec, primaryPos, hedgePos, riskCoefficient decimal.Decimal) (decimal.Decimal, core.HedgeInstruction) {
	openRisk := OpenRisk(primaryPos, hedgePos, spec.LotRatio)
	limit := MaxUnhedged(spec.LotRatio, riskCoefficient)
	return openRisk, HedgeInstruction(openRisk, spec.LotRatio, limit, spec.MaxHedgeOrderSize)
}
