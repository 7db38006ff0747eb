package reconciler

import (
	"grid_hedger/internal/core"

	"github.com/shopspring/decimal"
)

// Modify is a price change for a resting order
type Modify struct {
	OrderID string
	Price   decimal.Decimal
}

// Actions is the outcome of diffing a target ladder against live orders
type Actions struct {
	Cancels  []core.LiveOrder
	Modifies []Modify
	Places   []*core.TargetRung
}

// IsEmpty reports whether the pass requires no venue calls
func (a Actions) IsEmpty() bool {
	return len(a.Cancels) == 0 && len(a.Modifies) == 0 && len(a.Places) == 0
}

// Diff matches target rungs to live orders on (side, volume) and adopts the
// live order id onto the matched rung. Matched pairs with equal prices need
// nothing; price differences become modifies. Unmatched live orders are
// cancelled and unmatched rungs are placed. Volume and side never change on a
// live order, so a volume mismatch always falls through to cancel+place.
func Diff(target []core.TargetRung, live []core.LiveOrder) Actions {
	claimed := make(map[string]bool, len(live))

	// Exact matches first so an unchanged ladder produces zero actions even
	// when two rungs share a side and volume at different prices.
	for i := range target {
		for j := range live {
			o := &live[j]
			if claimed[o.OrderID] {
				continue
			}
			if o.Side == target[i].Side && o.VolumeRemaining.Equal(target[i].Volume) && o.Price.Equal(target[i].Price) {
				target[i].OrderID = o.OrderID
				claimed[o.OrderID] = true
				break
			}
		}
	}

	var actions Actions
	for i := range target {
		if target[i].OrderID != "" {
			continue
		}
		for j := range live {
			o := &live[j]
			if claimed[o.OrderID] {
				continue
			}
			if o.Side == target[i].Side && o.VolumeRemaining.Equal(target[i].Volume) {
				target[i].OrderID = o.OrderID
				claimed[o.OrderID] = true
				actions.Modifies = append(actions.Modifies, Modify{OrderID: o.OrderID, Price: target[i].Price})
				break
			}
		}
	}

	for j := range live {
		if !claimed[live[j].OrderID] {
			actions.Cancels = append(actions.Cancels, live[j])
		}
	}
	for i := range target {
		if target[i].OrderID == "" {
			actions.Places = append(actions.Places, &target[i])
		}
	}
	return actions
}
