// Package reconciler keeps one symbol's resting orders on the primary venue
// converged onto the target ladder computed from position and quotes.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"grid_hedger/internal/core"
	"grid_hedger/internal/grid"
	"grid_hedger/internal/signal"
	"grid_hedger/pkg/concurrency"
	apperrors "grid_hedger/pkg/errors"
	"grid_hedger/pkg/telemetry"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ActionExecutor submits order actions to the primary venue
type ActionExecutor interface {
	PlaceLimit(ctx context.Context, symbol string, side core.Side, volume, price decimal.Decimal, clientOrderID string) (string, error)
	ModifyLimit(ctx context.Context, symbol, orderID string, price decimal.Decimal) error
	Cancel(ctx context.Context, symbol, orderID string) error
}

// Config bounds the settlement-verification waits of a reconciliation pass
type Config struct {
	// Max wait for cancelled orders to appear in historical records
	SettlementWait time.Duration
	// Poll interval while waiting for settlement or position sync
	SettlementPoll time.Duration
	// Lookback window for historical-order queries
	HistoryWindow time.Duration
	// Sleep before retrying a pass whose venue reads hit a closed market
	MarketClosedBackoff time.Duration
}

// DefaultConfig returns the standard settlement bounds
func DefaultConfig() Config {
	return Config{
		SettlementWait:      5 * time.Second,
		SettlementPoll:      250 * time.Millisecond,
		HistoryWindow:       24 * time.Hour,
		MarketClosedBackoff: 300 * time.Second,
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.SettlementWait <= 0 {
		c.SettlementWait = def.SettlementWait
	}
	if c.SettlementPoll <= 0 {
		c.SettlementPoll = def.SettlementPoll
	}
	if c.HistoryWindow <= 0 {
		c.HistoryWindow = def.HistoryWindow
	}
	if c.MarketClosedBackoff <= 0 {
		c.MarketClosedBackoff = def.MarketClosedBackoff
	}
}

// Reconciler owns the target ladder for one symbol. It wakes on its mailbox,
// rebuilds the ladder, diffs it against live orders, and executes the
// resulting actions in strict cancel, verify, place order.
type Reconciler struct {
	spec    core.SymbolSpec
	ladders grid.Ladders
	cfg     Config

	venue    core.PrimaryVenue
	exec     ActionExecutor
	pool     *concurrency.WorkerPool
	quote    func() core.Quote
	notifier core.Notifier
	logger   core.ILogger

	wake *signal.Mailbox[signal.Wake]

	mu     sync.Mutex
	target []core.TargetRung

	passCounter       metric.Int64Counter
	settlementTimeout metric.Int64Counter
}

// New creates a reconciler for one symbol
func New(
	spec core.SymbolSpec,
	ladders grid.Ladders,
	venue core.PrimaryVenue,
	exec ActionExecutor,
	pool *concurrency.WorkerPool,
	quote func() core.Quote,
	notifier core.Notifier,
	cfg Config,
	logger core.ILogger,
) *Reconciler {
	cfg.applyDefaults()

	meter := telemetry.GetMeter("reconciler")
	passCounter, _ := meter.Int64Counter("reconcile_passes_total",
		metric.WithDescription("Total number of reconciliation passes"))
	settlementTimeout, _ := meter.Int64Counter("reconcile_settlement_timeouts_total",
		metric.WithDescription("Total number of bounded settlement waits that timed out"))

	return &Reconciler{
		spec:              spec,
		ladders:           ladders,
		cfg:               cfg,
		venue:             venue,
		exec:              exec,
		pool:              pool,
		quote:             quote,
		notifier:          notifier,
		logger:            logger.WithField("component", "reconciler").WithField("symbol", spec.Name),
		wake:              signal.NewMailbox[signal.Wake](),
		passCounter:       passCounter,
		settlementTimeout: settlementTimeout,
	}
}

// Wake requests a reconciliation pass. Bursts collapse into one wake-up.
func (r *Reconciler) Wake(reason string) {
	r.wake.Put(signal.NewWake(reason))
}

// Target returns a copy of the current target ladder
func (r *Reconciler) Target() []core.TargetRung {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]core.TargetRung, len(r.target))
	copy(out, r.target)
	return out
}

func (r *Reconciler) setTarget(target []core.TargetRung) {
	r.mu.Lock()
	r.target = target
	r.mu.Unlock()
}

// Run executes passes until the context is cancelled. A pass failure other
// than market-closed exits the loop; restart is an operator action.
func (r *Reconciler) Run(ctx context.Context) error {
	r.logger.Info("Reconciler started")
	defer func() {
		r.setTarget(nil)
		r.logger.Info("Reconciler stopped")
	}()

	for {
		if err := r.Pass(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, apperrors.ErrMarketClosed) {
				r.logger.Warn("Market closed, backing off", "backoff", r.cfg.MarketClosedBackoff)
				if !r.sleep(ctx, r.cfg.MarketClosedBackoff) {
					return nil
				}
				continue
			}
			r.logger.Error("Reconciliation pass failed", "error", err.Error())
			r.notify("ERROR", "Reconciliation stopped", err.Error())
			return err
		}

		if _, err := r.wake.Get(ctx); err != nil {
			return nil
		}
	}
}

// Pass performs one reconciliation cycle
func (r *Reconciler) Pass(ctx context.Context) error {
	quote := r.quote()
	if !quote.Valid {
		r.logger.Debug("No quote yet, deferring pass")
		return nil
	}

	live, err := r.venue.GetOpenOrders(ctx, r.spec.PrimarySymbol)
	if err != nil {
		return fmt.Errorf("fetch open orders: %w", err)
	}
	pose, err := r.venue.GetPosition(ctx, r.spec.PrimarySymbol)
	if err != nil {
		return fmt.Errorf("fetch position: %w", err)
	}

	target := grid.BuildTarget(r.spec, r.ladders, pose, quote)
	actions := Diff(target, live)

	r.passCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("symbol", r.spec.Name)))
	telemetry.GetGlobalMetrics().SetActiveOrders(r.spec.Name, int64(len(target)))

	if actions.IsEmpty() {
		r.setTarget(target)
		return nil
	}

	r.logger.Info("Reconciling orders",
		"position", pose,
		"cancels", len(actions.Cancels),
		"modifies", len(actions.Modifies),
		"places", len(actions.Places))

	r.executeCancelsAndModifies(ctx, actions)
	if ctx.Err() != nil {
		return nil
	}

	if len(actions.Cancels) > 0 {
		r.verifySettlement(ctx, pose, actions.Cancels)
		if ctx.Err() != nil {
			return nil
		}
	}

	for _, rung := range actions.Places {
		orderID, err := r.exec.PlaceLimit(ctx, r.spec.PrimarySymbol, rung.Side, rung.Volume, rung.Price, uuid.NewString())
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			r.reportActionFailure("place", "", err)
			continue
		}
		rung.OrderID = orderID
	}

	r.setTarget(target)
	return nil
}

// executeCancelsAndModifies runs both action sets concurrently on the shared
// worker pool. A rejected action is reported and does not block the others.
func (r *Reconciler) executeCancelsAndModifies(ctx context.Context, actions Actions) {
	var wg sync.WaitGroup

	for _, o := range actions.Cancels {
		o := o
		wg.Add(1)
		if err := r.pool.Submit(func() {
			defer wg.Done()
			if err := r.exec.Cancel(ctx, r.spec.PrimarySymbol, o.OrderID); err != nil && ctx.Err() == nil {
				// A cancel racing a fill is settled by the history check
				if errors.Is(err, apperrors.ErrOrderNotFound) {
					r.logger.Debug("Cancel target already gone", "order_id", o.OrderID)
					return
				}
				r.reportActionFailure("cancel", o.OrderID, err)
			}
		}); err != nil {
			wg.Done()
			r.reportActionFailure("cancel", o.OrderID, err)
		}
	}

	for _, m := range actions.Modifies {
		m := m
		wg.Add(1)
		if err := r.pool.Submit(func() {
			defer wg.Done()
			if err := r.exec.ModifyLimit(ctx, r.spec.PrimarySymbol, m.OrderID, m.Price); err != nil && ctx.Err() == nil {
				r.reportActionFailure("modify", m.OrderID, err)
			}
		}); err != nil {
			wg.Done()
			r.reportActionFailure("modify", m.OrderID, err)
		}
	}

	wg.Wait()
}

// verifySettlement waits for cancelled orders to reach historical records,
// derives the volume that filled before each cancel landed, and waits for the
// venue position to absorb those fills. Both waits are bounded and non-fatal.
func (r *Reconciler) verifySettlement(ctx context.Context, oldPose decimal.Decimal, cancels []core.LiveOrder) {
	pending := make(map[string]core.LiveOrder, len(cancels))
	for _, o := range cancels {
		pending[o.OrderID] = o
	}

	records := make(map[string]core.HistoricalOrder, len(pending))
	since := time.Now().Add(-r.cfg.HistoryWindow)
	deadline := time.Now().Add(r.cfg.SettlementWait)

	for len(records) < len(pending) {
		hist, err := r.venue.GetHistoricalOrders(ctx, r.spec.PrimarySymbol, since)
		if err != nil {
			r.logger.Warn("Historical order fetch failed during settlement wait", "error", err.Error())
		} else {
			for _, h := range hist {
				if _, want := pending[h.OrderID]; want {
					records[h.OrderID] = h
				}
			}
		}
		if len(records) == len(pending) {
			break
		}
		if time.Now().After(deadline) {
			r.settlementTimeout.Add(ctx, 1, metric.WithAttributes(attribute.String("symbol", r.spec.Name)))
			r.logger.Warn("Cancel settlement wait timed out, proceeding with stale view",
				"confirmed", len(records), "expected", len(pending))
			r.notify("WARNING", "Cancel settlement timeout",
				fmt.Sprintf("%s: %d of %d cancels unconfirmed after %s",
					r.spec.Name, len(pending)-len(records), len(pending), r.cfg.SettlementWait))
			break
		}
		if !r.sleep(ctx, r.cfg.SettlementPoll) {
			return
		}
	}

	filled := decimal.Zero
	for orderID, snap := range pending {
		rec, ok := records[orderID]
		if !ok {
			continue
		}
		delta := snap.VolumeRemaining.Sub(rec.VolumeRemaining)
		if !delta.IsPositive() {
			continue
		}
		if snap.Side == core.SideBuy {
			filled = filled.Add(delta)
		} else {
			filled = filled.Sub(delta)
		}
	}
	if filled.IsZero() {
		return
	}

	expected := oldPose.Add(filled)
	r.logger.Info("Fills landed before cancel, waiting for position sync",
		"filled", filled, "expected_position", expected)

	deadline = time.Now().Add(r.cfg.SettlementWait)
	for {
		pose, err := r.venue.GetPosition(ctx, r.spec.PrimarySymbol)
		if err == nil && pose.Equal(expected) {
			return
		}
		if time.Now().After(deadline) {
			r.settlementTimeout.Add(ctx, 1, metric.WithAttributes(attribute.String("symbol", r.spec.Name)))
			r.logger.Warn("Position sync wait timed out, proceeding with stale position",
				"expected", expected)
			r.notify("WARNING", "Position sync timeout",
				fmt.Sprintf("%s: position did not reach %s within %s", r.spec.Name, expected, r.cfg.SettlementWait))
			return
		}
		if !r.sleep(ctx, r.cfg.SettlementPoll) {
			return
		}
	}
}

func (r *Reconciler) reportActionFailure(action, orderID string, err error) {
	r.logger.Error("Order action rejected", "action", action, "order_id", orderID, "error", err.Error())
	r.notify("ERROR", "Order action rejected",
		fmt.Sprintf("%s: %s %s failed: %v", r.spec.Name, action, orderID, err))
}

func (r *Reconciler) notify(level, title, message string) {
	if r.notifier != nil {
		r.notifier.Notify(level, title, message, map[string]string{"symbol": r.spec.Name})
	}
}

func (r *Reconciler) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
