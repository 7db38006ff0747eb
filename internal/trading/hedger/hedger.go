// Package hedger bounds cross-venue net exposure with market orders on the
// hedge venue.
package hedger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"grid_hedger/internal/core"
	"grid_hedger/internal/risk"
	"grid_hedger/internal/signal"
	"grid_hedger/pkg/retry"
	"grid_hedger/pkg/telemetry"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ErrConvergenceTimeout reports a hedge fill whose position impact could not
// be verified within the bound. This is the one fatal escalation in the core:
// the symbol must stop trading.
var ErrConvergenceTimeout = errors.New("hedge position convergence timeout")

// Config bounds the hedge verification waits
type Config struct {
	// Minimum pause between wake-ups
	Floor time.Duration
	// Max wait for the hedge position to reach its expected value
	ConvergenceWait time.Duration
	// Poll interval during the convergence wait
	ConvergencePoll time.Duration
}

// DefaultConfig returns the standard hedge bounds
func DefaultConfig() Config {
	return Config{
		Floor:           time.Second,
		ConvergenceWait: 30 * time.Second,
		ConvergencePoll: 500 * time.Millisecond,
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.Floor <= 0 {
		c.Floor = def.Floor
	}
	if c.ConvergenceWait <= 0 {
		c.ConvergenceWait = def.ConvergenceWait
	}
	if c.ConvergencePoll <= 0 {
		c.ConvergencePoll = def.ConvergencePoll
	}
}

// Hedger watches open risk for one symbol and offsets any excess with market
// orders. It never clears its wake flag while risk is out of tolerance.
type Hedger struct {
	spec core.SymbolSpec
	cfg  Config

	primary  core.PrimaryVenue
	hedge    core.HedgeVenue
	store    core.TradeStore
	notifier core.Notifier
	logger   core.ILogger

	quote    func() core.Quote
	riskCoef func() decimal.Decimal

	wake *signal.Flag

	hedgeCounter metric.Int64Counter
	fatalCounter metric.Int64Counter
}

// New creates a hedger for one symbol
func New(
	spec core.SymbolSpec,
	primary core.PrimaryVenue,
	hedge core.HedgeVenue,
	store core.TradeStore,
	quote func() core.Quote,
	riskCoef func() decimal.Decimal,
	notifier core.Notifier,
	cfg Config,
	logger core.ILogger,
) *Hedger {
	cfg.applyDefaults()

	meter := telemetry.GetMeter("hedger")
	hedgeCounter, _ := meter.Int64Counter("hedge_orders_total",
		metric.WithDescription("Total number of hedge market orders submitted"))
	fatalCounter, _ := meter.Int64Counter("hedge_convergence_timeouts_total",
		metric.WithDescription("Total number of fatal hedge convergence timeouts"))

	return &Hedger{
		spec:         spec,
		cfg:          cfg,
		primary:      primary,
		hedge:        hedge,
		store:        store,
		notifier:     notifier,
		logger:       logger.WithField("component", "hedger").WithField("symbol", spec.Name),
		quote:        quote,
		riskCoef:     riskCoef,
		wake:         signal.NewFlag(),
		hedgeCounter: hedgeCounter,
		fatalCounter: fatalCounter,
	}
}

// Wake flags the hedger for attention. Level-triggered: setting an already
// raised flag is a no-op.
func (h *Hedger) Wake() {
	h.wake.Set()
}

// Run handles wakes until the context is cancelled. Returning
// ErrConvergenceTimeout signals the symbol's task group to stop trading.
func (h *Hedger) Run(ctx context.Context) error {
	h.logger.Info("Hedger started")
	defer h.logger.Info("Hedger stopped")

	for {
		if err := h.wake.Wait(ctx); err != nil {
			return nil
		}

		if err := h.handleWake(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			h.logger.Error("Hedger stopping", "error", err.Error())
			return err
		}

		// Floor pause keeps a stuck flag from busy-looping the venue
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(h.cfg.Floor):
		}
	}
}

func (h *Hedger) handleWake(ctx context.Context) error {
	primaryPos, err := h.primary.GetPosition(ctx, h.spec.PrimarySymbol)
	if err != nil {
		return fmt.Errorf("fetch primary position: %w", err)
	}
	hedgePos, err := h.hedge.GetPosition(ctx, h.spec.HedgeSymbol)
	if err != nil {
		return fmt.Errorf("fetch hedge position: %w", err)
	}

	openRisk, instr := risk.Evaluate(h.spec, primaryPos, hedgePos, h.riskCoef())

	metrics := telemetry.GetGlobalMetrics()
	metrics.SetOpenRisk(h.spec.Name, openRisk.InexactFloat64())
	metrics.SetPrimaryPosition(h.spec.Name, primaryPos.InexactFloat64())
	metrics.SetHedgePosition(h.spec.Name, hedgePos.InexactFloat64())

	if instr.IsZero() {
		// Risk back within tolerance: safe to stand down
		h.wake.Clear()
		return nil
	}

	h.logger.Info("Hedging excess risk",
		"open_risk", openRisk,
		"side", instr.Side,
		"size", instr.Size)

	submittedAt := time.Now()
	orderID, err := h.hedge.SubmitMarket(ctx, h.spec.HedgeSymbol, instr.Side, instr.Size)
	if err != nil {
		return fmt.Errorf("submit hedge order: %w", err)
	}

	h.hedgeCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("symbol", h.spec.Name),
		attribute.String("side", string(instr.Side)),
	))
	if metrics.HedgeVolumeTotal != nil {
		metrics.HedgeVolumeTotal.Add(ctx, instr.Size.InexactFloat64(),
			metric.WithAttributes(attribute.String("symbol", h.spec.Name)))
	}

	fillPrice, err := h.hedge.AwaitFill(ctx, orderID)
	if err != nil {
		return fmt.Errorf("await hedge fill: %w", err)
	}
	latency := time.Since(submittedAt)

	signed := instr.Size
	if instr.Side == core.SideSell {
		signed = signed.Neg()
	}
	expected := hedgePos.Add(signed)

	if err := h.awaitConvergence(ctx, expected); err != nil {
		h.fatalCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("symbol", h.spec.Name)))
		h.notify("CRITICAL", "Hedge fill unverifiable",
			fmt.Sprintf("%s: hedge position did not reach %s within %s, stopping symbol",
				h.spec.Name, expected, h.cfg.ConvergenceWait))
		return err
	}

	h.recordTrade(ctx, instr, fillPrice, latency)
	h.notify("INFO", "Hedge executed",
		fmt.Sprintf("%s: %s %s @ %s (risk was %s)",
			h.spec.Name, instr.Side, instr.Size, fillPrice, openRisk))
	return nil
}

// awaitConvergence polls the hedge venue until its reported position matches
// the expected post-trade value
func (h *Hedger) awaitConvergence(ctx context.Context, expected decimal.Decimal) error {
	deadline := time.Now().Add(h.cfg.ConvergenceWait)
	for {
		pos, err := h.hedge.GetPosition(ctx, h.spec.HedgeSymbol)
		if err == nil && pos.Equal(expected) {
			return nil
		}
		if err != nil {
			h.logger.Warn("Hedge position fetch failed during convergence wait", "error", err.Error())
		}
		if time.Now().After(deadline) {
			return ErrConvergenceTimeout
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(h.cfg.ConvergencePoll):
		}
	}
}

func (h *Hedger) recordTrade(ctx context.Context, instr core.HedgeInstruction, fillPrice decimal.Decimal, latency time.Duration) {
	if h.store == nil {
		return
	}

	quote := h.quote()
	primaryPrice := quote.Bid
	if instr.Side == core.SideBuy {
		primaryPrice = quote.Ask
	}

	record := core.TradeRecord{
		Timestamp:     time.Now(),
		PrimarySymbol: h.spec.PrimarySymbol,
		HedgeSymbol:   h.spec.HedgeSymbol,
		Side:          instr.Side,
		Size:          instr.Size,
		PrimaryPrice:  primaryPrice,
		HedgePrice:    fillPrice,
		Latency:       latency,
	}
	// SQLite can report busy under WAL checkpointing; a short retry covers it
	err := retry.Do(ctx, retry.DefaultPolicy,
		func(error) bool { return true },
		func() error { return h.store.SaveTrade(ctx, record) })
	if err != nil {
		h.logger.Error("Failed to persist hedge trade", "error", err.Error())
	}
}

func (h *Hedger) notify(level, title, message string) {
	if h.notifier != nil {
		h.notifier.Notify(level, title, message, map[string]string{"symbol": h.spec.Name})
	}
}
