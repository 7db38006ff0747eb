// Package grid computes order ladders from grid specifications.
// Everything here is pure: no I/O, no state, deterministic for a given input.
package grid

import (
	"fmt"

	"grid_hedger/internal/core"

	"github.com/shopspring/decimal"
)

// Fixed rounding policy for ladder construction
const (
	spreadDecimals   = 3
	positionDecimals = 0
)

// ConfigError represents an invalid grid specification
type ConfigError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ConfigError) Error() string {
	return fmt.Sprintf("invalid grid spec for field '%s' (value: %v): %s", e.Field, e.Value, e.Message)
}

// Ladders holds the two ordered breakpoint sequences derived from a GridSpec
type Ladders struct {
	Spread   []decimal.Decimal
	Position []decimal.Decimal
}

// Steps returns the ladder length
func (l Ladders) Steps() int {
	return len(l.Position)
}

// ComputeLadders expands a GridSpec into its spread and position ladders.
// ladder[i] = step*(i - (steps-1)/2) + mid, so both ladders are symmetric
// around their mid value and strictly increasing for positive steps.
func ComputeLadders(spec core.GridSpec) (Ladders, error) {
	if spec.Steps < 1 {
		return Ladders{}, ConfigError{
			Field:   "steps",
			Value:   spec.Steps,
			Message: "must be a positive integer",
		}
	}

	center := decimal.NewFromInt(int64(spec.Steps-1)).Div(decimal.NewFromInt(2))

	ladders := Ladders{
		Spread:   make([]decimal.Decimal, spec.Steps),
		Position: make([]decimal.Decimal, spec.Steps),
	}
	for i := 0; i < spec.Steps; i++ {
		offset := decimal.NewFromInt(int64(i)).Sub(center)
		ladders.Spread[i] = spec.StepSpread.Mul(offset).Add(spec.MidSpread).Round(spreadDecimals)
		ladders.Position[i] = spec.StepPosition.Mul(offset).Add(spec.MidPosition).Round(positionDecimals)
	}
	return ladders, nil
}

// PoseIndex returns the left-insertion index of pose into the position
// ladder: the first index whose breakpoint is >= pose. Rungs below the index
// are sell rungs, rungs at or above it are buy rungs.
func PoseIndex(positionLadder []decimal.Decimal, pose decimal.Decimal) int {
	for i, breakpoint := range positionLadder {
		if breakpoint.GreaterThanOrEqual(pose) {
			return i
		}
	}
	return len(positionLadder)
}

// BuildTarget produces the target rung set for the current position and
// hedge-venue quote. Rung volumes saturate the gap between successive
// position breakpoints and the current position; rungs are priced off the
// quote using the mirrored spread ladder, capped at the symbol's max order
// size, and zero-volume rungs are dropped.
func BuildTarget(sym core.SymbolSpec, ladders Ladders, pose decimal.Decimal, quote core.Quote) []core.TargetRung {
	steps := ladders.Steps()
	poseIndex := PoseIndex(ladders.Position, pose)

	rungs := make([]core.TargetRung, 0, steps)
	for i := 0; i < steps; i++ {
		mirrored := ladders.Spread[steps-1-i]

		var side core.Side
		var volume, price decimal.Decimal
		if i < poseIndex {
			side = core.SideSell
			upper := pose
			if i < steps-1 {
				upper = decimal.Min(ladders.Position[i+1], pose)
			}
			volume = upper.Sub(ladders.Position[i])
			price = quote.Ask.Add(mirrored)
		} else {
			side = core.SideBuy
			lower := pose
			if i > 0 {
				lower = decimal.Max(ladders.Position[i-1], pose)
			}
			volume = ladders.Position[i].Sub(lower)
			price = quote.Bid.Add(mirrored)
		}

		if volume.IsZero() || volume.IsNegative() {
			continue
		}
		if volume.GreaterThan(sym.MaxOrderSize) {
			volume = sym.MaxOrderSize
		}

		rungs = append(rungs, core.TargetRung{
			Side:   side,
			Price:  price.Round(sym.PriceDecimals),
			Volume: volume,
		})
	}
	return rungs
}
