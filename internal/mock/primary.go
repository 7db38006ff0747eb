// Package mock provides in-memory venue implementations for tests and paper trading
package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"grid_hedger/internal/core"
	apperrors "grid_hedger/pkg/errors"

	"github.com/shopspring/decimal"
)

// PrimaryVenue implements core.PrimaryVenue against in-memory state
type PrimaryVenue struct {
	mu             sync.RWMutex
	orders         map[string]core.LiveOrder
	history        map[string]core.HistoricalOrder
	positions      map[string]decimal.Decimal
	clientOrderMap map[string]string
	orderIDCounter int64

	marketClosed bool
	rejectNext   error
}

// NewPrimaryVenue creates an empty mock primary venue
func NewPrimaryVenue() *PrimaryVenue {
	return &PrimaryVenue{
		orders:         make(map[string]core.LiveOrder),
		history:        make(map[string]core.HistoricalOrder),
		positions:      make(map[string]decimal.Decimal),
		clientOrderMap: make(map[string]string),
		orderIDCounter: 1000,
	}
}

// SetMarketClosed makes subsequent order actions fail with ErrMarketClosed
func (m *PrimaryVenue) SetMarketClosed(closed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.marketClosed = closed
}

// RejectNext makes the next order action fail with the given error
func (m *PrimaryVenue) RejectNext(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejectNext = err
}

// SetPosition overrides the venue-reported position
func (m *PrimaryVenue) SetPosition(symbol string, size decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[symbol] = size
}

func (m *PrimaryVenue) takeInjectedError() error {
	if m.marketClosed {
		return apperrors.ErrMarketClosed
	}
	if m.rejectNext != nil {
		err := m.rejectNext
		m.rejectNext = nil
		return err
	}
	return nil
}

func (m *PrimaryVenue) GetOpenOrders(ctx context.Context, symbol string) ([]core.LiveOrder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]core.LiveOrder, 0, len(m.orders))
	for _, o := range m.orders {
		out = append(out, o)
	}
	return out, nil
}

func (m *PrimaryVenue) GetPosition(ctx context.Context, symbol string) (decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.positions[symbol], nil
}

func (m *PrimaryVenue) PlaceLimit(ctx context.Context, symbol string, side core.Side, volume, price decimal.Decimal, clientOrderID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.takeInjectedError(); err != nil {
		return "", err
	}

	// Idempotency on client order id
	if clientOrderID != "" {
		if existing, ok := m.clientOrderMap[clientOrderID]; ok {
			return existing, nil
		}
	}

	m.orderIDCounter++
	orderID := fmt.Sprintf("P%d", m.orderIDCounter)
	m.orders[orderID] = core.LiveOrder{
		OrderID:         orderID,
		Side:            side,
		VolumeRemaining: volume,
		Price:           price,
	}
	if clientOrderID != "" {
		m.clientOrderMap[clientOrderID] = orderID
	}
	return orderID, nil
}

func (m *PrimaryVenue) ModifyLimit(ctx context.Context, orderID string, price decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.takeInjectedError(); err != nil {
		return err
	}

	o, ok := m.orders[orderID]
	if !ok {
		return apperrors.ErrOrderNotFound
	}
	o.Price = price
	m.orders[orderID] = o
	return nil
}

func (m *PrimaryVenue) Cancel(ctx context.Context, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.takeInjectedError(); err != nil {
		return err
	}

	o, ok := m.orders[orderID]
	if !ok {
		return apperrors.ErrOrderNotFound
	}
	delete(m.orders, orderID)
	m.history[orderID] = core.HistoricalOrder{
		OrderID:         orderID,
		Side:            o.Side,
		VolumeRemaining: o.VolumeRemaining,
		Price:           o.Price,
		DoneAt:          time.Now(),
	}
	return nil
}

func (m *PrimaryVenue) GetHistoricalOrders(ctx context.Context, symbol string, since time.Time) ([]core.HistoricalOrder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]core.HistoricalOrder, 0, len(m.history))
	for _, h := range m.history {
		if h.DoneAt.Before(since) {
			continue
		}
		out = append(out, h)
	}
	return out, nil
}

// Fill simulates a partial or full fill of a resting order, adjusting the
// venue position accordingly
func (m *PrimaryVenue) Fill(symbol, orderID string, volume decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[orderID]
	if !ok {
		return apperrors.ErrOrderNotFound
	}
	if volume.GreaterThan(o.VolumeRemaining) {
		volume = o.VolumeRemaining
	}

	signed := volume
	if o.Side == core.SideSell {
		signed = volume.Neg()
	}
	m.positions[symbol] = m.positions[symbol].Add(signed)

	o.VolumeRemaining = o.VolumeRemaining.Sub(volume)
	if o.VolumeRemaining.IsZero() {
		delete(m.orders, orderID)
		m.history[orderID] = core.HistoricalOrder{
			OrderID:      orderID,
			Side:         o.Side,
			VolumeFilled: volume,
			Price:        o.Price,
			DoneAt:       time.Now(),
		}
	} else {
		m.orders[orderID] = o
	}
	return nil
}

// OpenOrderCount reports the number of resting orders
func (m *PrimaryVenue) OpenOrderCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.orders)
}
