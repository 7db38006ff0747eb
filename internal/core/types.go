// Package core defines the shared types and interfaces for the grid hedger
package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side represents an order side
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the other side
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// GridSpec describes one grid strategy: two ladders of length Steps,
// centered on MidSpread/MidPosition and spaced by StepSpread/StepPosition.
type GridSpec struct {
	StepSpread   decimal.Decimal
	StepPosition decimal.Decimal
	Steps        int
	MidSpread    decimal.Decimal
	MidPosition  decimal.Decimal
}

// TargetRung is one price/volume level of the target order ladder.
// OrderID links the rung to a live order once placed; empty means not yet placed.
type TargetRung struct {
	Side    Side
	Price   decimal.Decimal
	Volume  decimal.Decimal
	OrderID string
}

// LiveOrder is a snapshot of one resting order on the primary venue
type LiveOrder struct {
	OrderID         string
	Side            Side
	VolumeRemaining decimal.Decimal
	Price           decimal.Decimal
}

// HistoricalOrder is a terminal-state order record from the primary venue
type HistoricalOrder struct {
	OrderID         string
	Side            Side
	VolumeRemaining decimal.Decimal
	VolumeFilled    decimal.Decimal
	Price           decimal.Decimal
	DoneAt          time.Time
}

// Quote is a top-of-book snapshot from the hedge venue.
// Valid is false until both sides of the book have been observed.
type Quote struct {
	Symbol string
	Bid    decimal.Decimal
	Ask    decimal.Decimal
	Valid  bool
	At     time.Time
}

// TradeRecord is one executed hedge trade handed to the trade store
type TradeRecord struct {
	Timestamp     time.Time
	PrimarySymbol string
	HedgeSymbol   string
	Side          Side
	Size          decimal.Decimal
	PrimaryPrice  decimal.Decimal
	HedgePrice    decimal.Decimal
	Latency       time.Duration
	Fees          decimal.Decimal
}

// SymbolSpec identifies one tradable pair and its limits. Immutable after load.
type SymbolSpec struct {
	Name string

	PrimarySymbol string
	HedgeSymbol   string

	// Primary-venue lots per one hedge-venue contract
	LotRatio decimal.Decimal

	PriceDecimals int32

	MaxOrderSize      decimal.Decimal
	MaxHedgeOrderSize decimal.Decimal

	// Max unhedged risk as a multiple of the lot ratio
	RiskCoefficient decimal.Decimal
}

// HedgeInstruction is the output of the risk calculator: submit a market
// order of Size contracts on the hedge venue, or do nothing if Size is zero.
type HedgeInstruction struct {
	Side Side
	Size decimal.Decimal
}

// IsZero reports whether no hedge action is required
func (h HedgeInstruction) IsZero() bool {
	return h.Size.IsZero()
}
