// Package lifecycle starts, supervises and stops per-symbol trading loops.
package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"grid_hedger/internal/core"
	"grid_hedger/internal/grid"
	"grid_hedger/internal/trading/hedger"
	"grid_hedger/internal/trading/order"
	"grid_hedger/internal/trading/reconciler"
	"grid_hedger/pkg/concurrency"
	"grid_hedger/pkg/telemetry"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"
)

// Config carries the per-symbol loop settings the manager hands down
type Config struct {
	// Interval between primary position polls
	PollInterval time.Duration
	// Rate limit for order actions against the primary venue
	OrderRate  float64
	OrderBurst int
	// Backoff between retries of order actions rejected as market-closed
	MarketClosedBackoff time.Duration

	Reconciler reconciler.Config
	Hedger     hedger.Config
}

// DefaultConfig returns the standard loop settings
func DefaultConfig() Config {
	return Config{
		PollInterval:        5 * time.Second,
		OrderRate:           10,
		OrderBurst:          20,
		MarketClosedBackoff: 300 * time.Second,
		Reconciler:          reconciler.DefaultConfig(),
		Hedger:              hedger.DefaultConfig(),
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.PollInterval <= 0 {
		c.PollInterval = def.PollInterval
	}
	if c.OrderRate <= 0 {
		c.OrderRate = def.OrderRate
	}
	if c.OrderBurst <= 0 {
		c.OrderBurst = def.OrderBurst
	}
	if c.MarketClosedBackoff <= 0 {
		c.MarketClosedBackoff = def.MarketClosedBackoff
	}
}

// symbolRun is one live symbol: its loops, latest quote, last observed
// position and runtime-tunable risk coefficient.
type symbolRun struct {
	spec   core.SymbolSpec
	cancel context.CancelFunc
	done   chan struct{}

	rec *reconciler.Reconciler
	hed *hedger.Hedger

	mu       sync.Mutex
	quote    core.Quote
	lastPose decimal.Decimal
	hasPose  bool
	riskCoef decimal.Decimal
}

func (s *symbolRun) setQuote(q core.Quote) {
	s.mu.Lock()
	s.quote = q
	s.mu.Unlock()
}

func (s *symbolRun) getQuote() core.Quote {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quote
}

func (s *symbolRun) getRiskCoef() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.riskCoef
}

func (s *symbolRun) setRiskCoef(coef decimal.Decimal) {
	s.mu.Lock()
	s.riskCoef = coef
	s.mu.Unlock()
}

// poseChanged records the observed position and reports whether it moved
// since the previous observation.
func (s *symbolRun) poseChanged(pose decimal.Decimal) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hasPose && s.lastPose.Equal(pose) {
		return false
	}
	s.lastPose = pose
	s.hasPose = true
	return true
}

// Manager owns the set of active symbols. Starting a symbol that is already
// live drains the old run before the new one begins.
type Manager struct {
	cfg      Config
	primary  core.PrimaryVenue
	hedge    core.HedgeVenue
	feed     core.QuoteFeed
	store    core.TradeStore
	notifier core.Notifier
	pool     *concurrency.WorkerPool
	logger   core.ILogger

	mu           sync.Mutex
	runs         map[string]*symbolRun
	pollInterval time.Duration

	activeGauge  metric.Int64UpDownCounter
	fatalCounter metric.Int64Counter
}

// NewManager wires a manager over the two venues and the quote feed
func NewManager(
	cfg Config,
	primary core.PrimaryVenue,
	hedge core.HedgeVenue,
	feed core.QuoteFeed,
	store core.TradeStore,
	notifier core.Notifier,
	pool *concurrency.WorkerPool,
	logger core.ILogger,
) *Manager {
	cfg.applyDefaults()

	meter := telemetry.GetMeter("lifecycle")
	activeGauge, _ := meter.Int64UpDownCounter("active_symbols",
		metric.WithDescription("Number of symbols currently trading"))
	fatalCounter, _ := meter.Int64Counter("symbol_failures_total",
		metric.WithDescription("Total number of symbol loops stopped by an error"))

	return &Manager{
		cfg:          cfg,
		primary:      primary,
		hedge:        hedge,
		feed:         feed,
		store:        store,
		notifier:     notifier,
		pool:         pool,
		logger:       logger.WithField("component", "lifecycle"),
		runs:         make(map[string]*symbolRun),
		pollInterval: cfg.PollInterval,
		activeGauge:  activeGauge,
		fatalCounter: fatalCounter,
	}
}

// Start begins trading a symbol. An existing run for the same symbol is
// stopped and drained first.
func (m *Manager) Start(ctx context.Context, spec core.SymbolSpec, gridSpec core.GridSpec) error {
	ladders, err := grid.ComputeLadders(gridSpec)
	if err != nil {
		return fmt.Errorf("compute ladders for %s: %w", spec.Name, err)
	}

	if err := m.Stop(context.Background(), spec.Name); err != nil {
		return fmt.Errorf("drain previous run of %s: %w", spec.Name, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	run := &symbolRun{
		spec:     spec,
		cancel:   cancel,
		done:     make(chan struct{}),
		riskCoef: spec.RiskCoefficient,
	}

	exec := order.NewExecutor(m.primary, m.cfg.MarketClosedBackoff, m.cfg.OrderRate, m.cfg.OrderBurst, m.logger)
	run.rec = reconciler.New(spec, ladders, m.primary, exec, m.pool, run.getQuote, m.notifier, m.cfg.Reconciler, m.logger)
	run.hed = hedger.New(spec, m.primary, m.hedge, m.store, run.getQuote, run.getRiskCoef, m.notifier, m.cfg.Hedger, m.logger)

	if err := m.feed.Subscribe(spec.PrimarySymbol, func(q core.Quote) {
		run.setQuote(q)
		run.rec.Wake("quote")
	}); err != nil {
		cancel()
		return fmt.Errorf("subscribe quotes for %s: %w", spec.Name, err)
	}

	m.mu.Lock()
	m.runs[spec.Name] = run
	m.mu.Unlock()
	m.activeGauge.Add(ctx, 1, metric.WithAttributes(attribute.String("symbol", spec.Name)))

	g, gCtx := errgroup.WithContext(runCtx)
	g.Go(func() error { return run.rec.Run(gCtx) })
	g.Go(func() error { return run.hed.Run(gCtx) })
	g.Go(func() error { return m.pollPosition(gCtx, run) })

	go m.supervise(run, g)

	run.rec.Wake("start")
	run.hed.Wake()
	m.logger.Info("Symbol started", "symbol", spec.Name)
	return nil
}

// supervise waits for a run's loops and performs cleanup. An error from any
// loop (hedge convergence timeout being the main one) has already cancelled
// the group's context, so the remaining loops drain on their own.
func (m *Manager) supervise(run *symbolRun, g *errgroup.Group) {
	err := g.Wait()

	cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	m.cleanup(cleanupCtx, run)

	m.mu.Lock()
	if m.runs[run.spec.Name] == run {
		delete(m.runs, run.spec.Name)
	}
	m.mu.Unlock()
	m.activeGauge.Add(context.Background(), -1, metric.WithAttributes(attribute.String("symbol", run.spec.Name)))

	if err != nil {
		m.fatalCounter.Add(context.Background(), 1, metric.WithAttributes(attribute.String("symbol", run.spec.Name)))
		m.logger.Error("Symbol stopped on error", "symbol", run.spec.Name, "error", err.Error())
		if m.notifier != nil {
			m.notifier.Notify("CRITICAL", "Symbol stopped",
				fmt.Sprintf("%s trading loops stopped: %v", run.spec.Name, err),
				map[string]string{"symbol": run.spec.Name})
		}
	}
	close(run.done)
}

// cleanup cancels whatever live orders remain and drops the quote
// subscription. Both are best effort.
func (m *Manager) cleanup(ctx context.Context, run *symbolRun) {
	if err := m.feed.Unsubscribe(run.spec.PrimarySymbol); err != nil {
		m.logger.Warn("Quote unsubscribe failed", "symbol", run.spec.Name, "error", err.Error())
	}

	live, err := m.primary.GetOpenOrders(ctx, run.spec.PrimarySymbol)
	if err != nil {
		m.logger.Warn("Could not list live orders during cleanup", "symbol", run.spec.Name, "error", err.Error())
		return
	}
	for _, o := range live {
		if err := m.primary.Cancel(ctx, o.OrderID); err != nil {
			m.logger.Warn("Cleanup cancel failed",
				"symbol", run.spec.Name, "order_id", o.OrderID, "error", err.Error())
		}
	}
	if len(live) > 0 {
		m.logger.Info("Cancelled remaining live orders", "symbol", run.spec.Name, "count", len(live))
	}
}

// pollPosition watches the primary position and wakes both loops when it
// moves. Fills are the only position source, so a move means the ladder and
// the open risk are both stale.
func (m *Manager) pollPosition(ctx context.Context, run *symbolRun) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(m.getPollInterval()):
		}

		pose, err := m.primary.GetPosition(ctx, run.spec.PrimarySymbol)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			m.logger.Warn("Position poll failed", "symbol", run.spec.Name, "error", err.Error())
			continue
		}
		if run.poseChanged(pose) {
			run.rec.Wake("position")
			run.hed.Wake()
		}
	}
}

// Stop drains one symbol's loops. Stopping a symbol that is not running is a
// reported no-op.
func (m *Manager) Stop(ctx context.Context, name string) error {
	m.mu.Lock()
	run, ok := m.runs[name]
	m.mu.Unlock()
	if !ok {
		m.logger.Info("Stop requested for inactive symbol", "symbol", name)
		return nil
	}

	run.cancel()
	run.rec.Wake("stop")
	run.hed.Wake()

	select {
	case <-run.done:
	case <-ctx.Done():
		return fmt.Errorf("drain %s: %w", name, ctx.Err())
	}
	m.logger.Info("Symbol stopped", "symbol", name)
	return nil
}

// StopAll drains every active symbol
func (m *Manager) StopAll(ctx context.Context) error {
	m.mu.Lock()
	names := make([]string, 0, len(m.runs))
	for name := range m.runs {
		names = append(names, name)
	}
	m.mu.Unlock()

	var firstErr error
	for _, name := range names {
		if err := m.Stop(ctx, name); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ActiveSymbols lists symbols currently trading
func (m *Manager) ActiveSymbols() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.runs))
	for name := range m.runs {
		names = append(names, name)
	}
	return names
}

// SetPollInterval retunes position polling for all symbols. Takes effect on
// each loop's next tick.
func (m *Manager) SetPollInterval(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", d)
	}
	m.mu.Lock()
	m.pollInterval = d
	m.mu.Unlock()
	m.logger.Info("Poll interval updated", "interval", d.String())
	return nil
}

func (m *Manager) getPollInterval() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pollInterval
}

// SetRiskCoefficient retunes the unhedged tolerance for one active symbol
// and wakes its hedger so the new bound is applied immediately.
func (m *Manager) SetRiskCoefficient(name string, coef decimal.Decimal) error {
	if coef.IsNegative() {
		return fmt.Errorf("risk coefficient must be non-negative, got %s", coef)
	}
	m.mu.Lock()
	run, ok := m.runs[name]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("symbol %s is not active", name)
	}
	run.setRiskCoef(coef)
	run.hed.Wake()
	m.logger.Info("Risk coefficient updated", "symbol", name, "coefficient", coef.String())
	return nil
}
