package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric names
const (
	MetricOpenRisk         = "grid_hedger_open_risk"
	MetricPrimaryPosition  = "grid_hedger_primary_position"
	MetricHedgePosition    = "grid_hedger_hedge_position"
	MetricOrdersActive     = "grid_hedger_orders_active"
	MetricHedgeVolumeTotal = "grid_hedger_hedge_volume_total"
	MetricLatencyVenue     = "grid_hedger_latency_venue_ms"
)

// MetricsHolder holds initialized instruments
type MetricsHolder struct {
	OpenRisk         metric.Float64ObservableGauge
	PrimaryPosition  metric.Float64ObservableGauge
	HedgePosition    metric.Float64ObservableGauge
	OrdersActive     metric.Int64ObservableGauge
	HedgeVolumeTotal metric.Float64Counter
	LatencyVenue     metric.Float64Histogram

	// State for observable gauges
	mu              sync.RWMutex
	openRiskMap     map[string]float64
	primaryPoseMap  map[string]float64
	hedgePoseMap    map[string]float64
	activeOrdersMap map[string]int64
}

var (
	globalMetrics *MetricsHolder
	initOnce      sync.Once
)

// GetGlobalMetrics returns the singleton metrics holder
func GetGlobalMetrics() *MetricsHolder {
	initOnce.Do(func() {
		globalMetrics = &MetricsHolder{
			openRiskMap:     make(map[string]float64),
			primaryPoseMap:  make(map[string]float64),
			hedgePoseMap:    make(map[string]float64),
			activeOrdersMap: make(map[string]int64),
		}
		// Initialization of instruments happens in InitMetrics
	})
	return globalMetrics
}

// InitMetrics initializes instruments using the meter
func (m *MetricsHolder) InitMetrics(meter metric.Meter) error {
	var err error

	m.HedgeVolumeTotal, err = meter.Float64Counter(MetricHedgeVolumeTotal, metric.WithDescription("Cumulative hedge volume in hedge contracts"))
	if err != nil {
		return err
	}

	m.LatencyVenue, err = meter.Float64Histogram(MetricLatencyVenue, metric.WithDescription("Latency of venue API calls"), metric.WithUnit("ms"))
	if err != nil {
		return err
	}

	// Observables
	m.OpenRisk, err = meter.Float64ObservableGauge(MetricOpenRisk, metric.WithDescription("Current net exposure in primary units"),
		metric.WithFloat64Callback(func(ctx context.Context, obs metric.Float64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for sym, val := range m.openRiskMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("symbol", sym)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	m.PrimaryPosition, err = meter.Float64ObservableGauge(MetricPrimaryPosition, metric.WithDescription("Current primary venue position"),
		metric.WithFloat64Callback(func(ctx context.Context, obs metric.Float64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for sym, val := range m.primaryPoseMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("symbol", sym)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	m.HedgePosition, err = meter.Float64ObservableGauge(MetricHedgePosition, metric.WithDescription("Current hedge venue position"),
		metric.WithFloat64Callback(func(ctx context.Context, obs metric.Float64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for sym, val := range m.hedgePoseMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("symbol", sym)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	m.OrdersActive, err = meter.Int64ObservableGauge(MetricOrdersActive, metric.WithDescription("Number of currently open grid orders"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for sym, val := range m.activeOrdersMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("symbol", sym)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	return nil
}

// Helpers to update observable state

func (m *MetricsHolder) SetOpenRisk(symbol string, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openRiskMap[symbol] = value
}

func (m *MetricsHolder) SetPrimaryPosition(symbol string, size float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.primaryPoseMap[symbol] = size
}

func (m *MetricsHolder) SetHedgePosition(symbol string, size float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hedgePoseMap[symbol] = size
}

func (m *MetricsHolder) SetActiveOrders(symbol string, count int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activeOrdersMap[symbol] = count
}

func (m *MetricsHolder) GetActiveOrders() map[string]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make(map[string]int64)
	for k, v := range m.activeOrdersMap {
		res[k] = v
	}
	return res
}

func (m *MetricsHolder) GetOpenRisk() map[string]float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make(map[string]float64)
	for k, v := range m.openRiskMap {
		res[k] = v
	}
	return res
}
