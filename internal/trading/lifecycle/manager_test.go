package lifecycle

import (
	"context"
	"sync"
	"testing"
	"time"

	"grid_hedger/internal/core"
	"grid_hedger/internal/mock"
	"grid_hedger/pkg/concurrency"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockLogger struct{}

func (l *mockLogger) Debug(msg string, fields ...interface{})          {}
func (l *mockLogger) Info(msg string, fields ...interface{})           {}
func (l *mockLogger) Warn(msg string, fields ...interface{})           {}
func (l *mockLogger) Error(msg string, fields ...interface{})          {}
func (l *mockLogger) Fatal(msg string, fields ...interface{})          {}
func (l *mockLogger) WithField(k string, v interface{}) core.ILogger   { return l }
func (l *mockLogger) WithFields(f map[string]interface{}) core.ILogger { return l }

type mockNotifier struct {
	mu     sync.Mutex
	levels []string
}

func (n *mockNotifier) Notify(level, title, message string, fields map[string]string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.levels = append(n.levels, level)
}

type mockStore struct {
	mu     sync.Mutex
	trades []core.TradeRecord
}

func (s *mockStore) SaveTrade(ctx context.Context, trade core.TradeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades = append(s.trades, trade)
	return nil
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type fixture struct {
	primary *mock.PrimaryVenue
	hedge   *mock.HedgeVenue
	feed    *mock.QuoteFeed
	manager *Manager
}

func testSpec() core.SymbolSpec {
	return core.SymbolSpec{
		Name:              "NG",
		PrimarySymbol:     "NG-PRIMARY",
		HedgeSymbol:       "NG-HEDGE",
		LotRatio:          dec("117"),
		PriceDecimals:     3,
		MaxOrderSize:      dec("100"),
		MaxHedgeOrderSize: dec("3"),
		RiskCoefficient:   dec("1"),
	}
}

func testGrid() core.GridSpec {
	return core.GridSpec{
		StepSpread:   dec("1"),
		StepPosition: dec("10"),
		Steps:        3,
		MidSpread:    dec("1"),
		MidPosition:  dec("0"),
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := &mockLogger{}
	pool := concurrency.NewWorkerPool(concurrency.PoolConfig{Name: "test", MaxWorkers: 4}, logger)
	t.Cleanup(pool.Stop)

	primary := mock.NewPrimaryVenue()
	hedge := mock.NewHedgeVenue(dec("50.5"))
	feed := mock.NewQuoteFeed()

	cfg := DefaultConfig()
	cfg.PollInterval = 20 * time.Millisecond
	cfg.Reconciler.SettlementWait = 200 * time.Millisecond
	cfg.Reconciler.SettlementPoll = 10 * time.Millisecond
	cfg.Reconciler.MarketClosedBackoff = 20 * time.Millisecond
	cfg.Hedger.Floor = 5 * time.Millisecond
	cfg.Hedger.ConvergenceWait = 200 * time.Millisecond
	cfg.Hedger.ConvergencePoll = 10 * time.Millisecond

	manager := NewManager(cfg, primary, hedge, feed, &mockStore{}, &mockNotifier{}, pool, logger)
	return &fixture{primary: primary, hedge: hedge, feed: feed, manager: manager}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestStartPlacesLadderOnQuote(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, f.manager.Start(ctx, testSpec(), testGrid()))
	assert.True(t, f.feed.Subscribed("NG-PRIMARY"))
	assert.Equal(t, []string{"NG"}, f.manager.ActiveSymbols())

	f.feed.Push("NG-PRIMARY", dec("50"), dec("51"))
	waitFor(t, 2*time.Second, func() bool { return f.primary.OpenOrderCount() == 3 },
		"ladder was not placed after the first quote")

	require.NoError(t, f.manager.StopAll(context.Background()))
}

func TestStartRejectsBadGrid(t *testing.T) {
	f := newFixture(t)
	bad := testGrid()
	bad.Steps = 0
	err := f.manager.Start(context.Background(), testSpec(), bad)
	assert.Error(t, err)
	assert.Empty(t, f.manager.ActiveSymbols())
}

func TestStopCancelsLiveOrdersAndUnsubscribes(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, f.manager.Start(ctx, testSpec(), testGrid()))
	f.feed.Push("NG-PRIMARY", dec("50"), dec("51"))
	waitFor(t, 2*time.Second, func() bool { return f.primary.OpenOrderCount() == 3 },
		"ladder was not placed")

	require.NoError(t, f.manager.Stop(context.Background(), "NG"))
	assert.Zero(t, f.primary.OpenOrderCount(), "live orders survive stop")
	assert.False(t, f.feed.Subscribed("NG-PRIMARY"))
	assert.Empty(t, f.manager.ActiveSymbols())
}

func TestStopInactiveSymbolIsNoOp(t *testing.T) {
	f := newFixture(t)
	assert.NoError(t, f.manager.Stop(context.Background(), "UNKNOWN"))
}

func TestRestartDrainsPreviousRun(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, f.manager.Start(ctx, testSpec(), testGrid()))
	f.feed.Push("NG-PRIMARY", dec("50"), dec("51"))
	waitFor(t, 2*time.Second, func() bool { return f.primary.OpenOrderCount() == 3 },
		"first run did not place orders")

	require.NoError(t, f.manager.Start(ctx, testSpec(), testGrid()))
	assert.Equal(t, []string{"NG"}, f.manager.ActiveSymbols(), "restart keeps exactly one run")

	f.feed.Push("NG-PRIMARY", dec("50"), dec("51"))
	waitFor(t, 2*time.Second, func() bool { return f.primary.OpenOrderCount() == 3 },
		"second run did not place orders")

	require.NoError(t, f.manager.StopAll(context.Background()))
}

func TestPositionPollWakesHedger(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, f.manager.Start(ctx, testSpec(), testGrid()))
	f.feed.Push("NG-PRIMARY", dec("50"), dec("51"))

	// Simulate fills pushing the position two hedge lots past tolerance
	f.primary.SetPosition("NG-PRIMARY", dec("351"))

	waitFor(t, 2*time.Second, func() bool {
		pos, err := f.hedge.GetPosition(context.Background(), "NG-HEDGE")
		return err == nil && pos.Equal(dec("-2"))
	}, "hedger did not offset the polled position change")

	require.NoError(t, f.manager.StopAll(context.Background()))
}

func TestConvergenceTimeoutStopsSymbol(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.hedge.FreezePosition(true)
	require.NoError(t, f.manager.Start(ctx, testSpec(), testGrid()))
	f.primary.SetPosition("NG-PRIMARY", dec("351"))

	waitFor(t, 3*time.Second, func() bool { return len(f.manager.ActiveSymbols()) == 0 },
		"symbol kept trading after a fatal hedge convergence timeout")
}

func TestSetRiskCoefficient(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	assert.Error(t, f.manager.SetRiskCoefficient("NG", dec("1")), "inactive symbol rejected")

	require.NoError(t, f.manager.Start(ctx, testSpec(), testGrid()))
	assert.Error(t, f.manager.SetRiskCoefficient("NG", dec("-1")))
	assert.NoError(t, f.manager.SetRiskCoefficient("NG", dec("0.5")))

	require.NoError(t, f.manager.StopAll(context.Background()))
}

func TestSetPollInterval(t *testing.T) {
	f := newFixture(t)
	assert.Error(t, f.manager.SetPollInterval(0))
	assert.NoError(t, f.manager.SetPollInterval(time.Second))
}
