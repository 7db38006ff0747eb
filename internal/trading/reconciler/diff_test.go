package reconciler

import (
	"testing"

	"grid_hedger/internal/core"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func rung(side core.Side, volume, price string) core.TargetRung {
	return core.TargetRung{Side: side, Volume: dec(volume), Price: dec(price)}
}

func liveOrder(id string, side core.Side, volume, price string) core.LiveOrder {
	return core.LiveOrder{OrderID: id, Side: side, VolumeRemaining: dec(volume), Price: dec(price)}
}

func TestDiffEmptyBothSides(t *testing.T) {
	actions := Diff(nil, nil)
	assert.True(t, actions.IsEmpty())
}

func TestDiffAllNewRungsArePlaced(t *testing.T) {
	target := []core.TargetRung{
		rung(core.SideSell, "10", "52"),
		rung(core.SideBuy, "6", "49"),
	}

	actions := Diff(target, nil)
	assert.Empty(t, actions.Cancels)
	assert.Empty(t, actions.Modifies)
	require.Len(t, actions.Places, 2)
}

func TestDiffUnchangedLadderIsIdempotent(t *testing.T) {
	target := []core.TargetRung{
		rung(core.SideSell, "10", "52"),
		rung(core.SideSell, "4", "51"),
		rung(core.SideBuy, "6", "49"),
	}
	live := []core.LiveOrder{
		liveOrder("A", core.SideSell, "10", "52"),
		liveOrder("B", core.SideSell, "4", "51"),
		liveOrder("C", core.SideBuy, "6", "49"),
	}

	actions := Diff(target, live)
	assert.True(t, actions.IsEmpty())

	// Matched rungs adopt the live order ids
	assert.Equal(t, "A", target[0].OrderID)
	assert.Equal(t, "B", target[1].OrderID)
	assert.Equal(t, "C", target[2].OrderID)
}

func TestDiffPriceChangeBecomesModify(t *testing.T) {
	// Same side and volume at a new price modifies in place
	target := []core.TargetRung{rung(core.SideSell, "5", "101")}
	live := []core.LiveOrder{liveOrder("A", core.SideSell, "5", "100")}

	actions := Diff(target, live)
	assert.Empty(t, actions.Cancels)
	assert.Empty(t, actions.Places)
	require.Len(t, actions.Modifies, 1)
	assert.Equal(t, "A", actions.Modifies[0].OrderID)
	assert.True(t, actions.Modifies[0].Price.Equal(dec("101")))
}

func TestDiffVolumeChangeBecomesCancelPlace(t *testing.T) {
	target := []core.TargetRung{rung(core.SideSell, "7", "100")}
	live := []core.LiveOrder{liveOrder("A", core.SideSell, "5", "100")}

	actions := Diff(target, live)
	require.Len(t, actions.Cancels, 1)
	assert.Equal(t, "A", actions.Cancels[0].OrderID)
	assert.Empty(t, actions.Modifies)
	require.Len(t, actions.Places, 1)
}

func TestDiffSideChangeBecomesCancelPlace(t *testing.T) {
	target := []core.TargetRung{rung(core.SideBuy, "5", "100")}
	live := []core.LiveOrder{liveOrder("A", core.SideSell, "5", "100")}

	actions := Diff(target, live)
	require.Len(t, actions.Cancels, 1)
	require.Len(t, actions.Places, 1)
	assert.Empty(t, actions.Modifies)
}

func TestDiffNoOrderAppearsInTwoActionSets(t *testing.T) {
	target := []core.TargetRung{
		rung(core.SideSell, "10", "52"),
		rung(core.SideSell, "4", "51"),
		rung(core.SideBuy, "6", "49"),
	}
	live := []core.LiveOrder{
		liveOrder("A", core.SideSell, "10", "53"), // price moved -> modify
		liveOrder("B", core.SideSell, "9", "51"),  // volume changed -> cancel
		liveOrder("C", core.SideBuy, "6", "49"),   // unchanged
	}

	actions := Diff(target, live)

	seen := make(map[string]int)
	for _, o := range actions.Cancels {
		seen[o.OrderID]++
	}
	for _, m := range actions.Modifies {
		seen[m.OrderID]++
	}
	for id, n := range seen {
		assert.Equal(t, 1, n, "order %s appears in multiple action sets", id)
	}

	require.Len(t, actions.Cancels, 1)
	assert.Equal(t, "B", actions.Cancels[0].OrderID)
	require.Len(t, actions.Modifies, 1)
	assert.Equal(t, "A", actions.Modifies[0].OrderID)
	require.Len(t, actions.Places, 1)
	assert.Equal(t, core.SideSell, actions.Places[0].Side)
	assert.True(t, actions.Places[0].Volume.Equal(dec("4")))
}

func TestDiffPrefersExactPriceMatch(t *testing.T) {
	// Two rungs share side and volume; the exact price match must pair
	// first so the other rung modifies the remaining order.
	target := []core.TargetRung{
		rung(core.SideSell, "5", "100"),
		rung(core.SideSell, "5", "102"),
	}
	live := []core.LiveOrder{
		liveOrder("A", core.SideSell, "5", "101"),
		liveOrder("B", core.SideSell, "5", "100"),
	}

	actions := Diff(target, live)
	assert.Empty(t, actions.Cancels)
	assert.Empty(t, actions.Places)
	require.Len(t, actions.Modifies, 1)
	assert.Equal(t, "A", actions.Modifies[0].OrderID)
	assert.True(t, actions.Modifies[0].Price.Equal(dec("102")))
	assert.Equal(t, "B", target[0].OrderID)
}
