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

type hedgeFill struct {
	price decimal.Decimal
	done  chan struct{}
}

// HedgeVenue implements core.HedgeVenue with immediate or deferred fills
type HedgeVenue struct {
	mu             sync.Mutex
	positions      map[string]decimal.Decimal
	fills          map[string]*hedgeFill
	orderIDCounter int64

	fillPrice decimal.Decimal
	fillDelay time.Duration
	// When set, positions do not move on fill; convergence waits then time out
	freezePosition bool
}

// NewHedgeVenue creates a mock hedge venue filling at the given price
func NewHedgeVenue(fillPrice decimal.Decimal) *HedgeVenue {
	return &HedgeVenue{
		positions:      make(map[string]decimal.Decimal),
		fills:          make(map[string]*hedgeFill),
		orderIDCounter: 5000,
		fillPrice:      fillPrice,
	}
}

// SetFillDelay defers fill confirmation by d
func (m *HedgeVenue) SetFillDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fillDelay = d
}

// FreezePosition stops fills from moving the reported position
func (m *HedgeVenue) FreezePosition(frozen bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.freezePosition = frozen
}

// SetPosition overrides the venue-reported position
func (m *HedgeVenue) SetPosition(symbol string, size decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[symbol] = size
}

func (m *HedgeVenue) SubmitMarket(ctx context.Context, symbol string, side core.Side, volume decimal.Decimal) (string, error) {
	m.mu.Lock()
	m.orderIDCounter++
	orderID := fmt.Sprintf("H%d", m.orderIDCounter)
	fill := &hedgeFill{price: m.fillPrice, done: make(chan struct{})}
	m.fills[orderID] = fill
	delay := m.fillDelay
	frozen := m.freezePosition
	m.mu.Unlock()

	go func() {
		if delay > 0 {
			time.Sleep(delay)
		}
		m.mu.Lock()
		if !frozen {
			signed := volume
			if side == core.SideSell {
				signed = volume.Neg()
			}
			m.positions[symbol] = m.positions[symbol].Add(signed)
		}
		m.mu.Unlock()
		close(fill.done)
	}()

	return orderID, nil
}

func (m *HedgeVenue) AwaitFill(ctx context.Context, orderID string) (decimal.Decimal, error) {
	m.mu.Lock()
	fill, ok := m.fills[orderID]
	m.mu.Unlock()
	if !ok {
		return decimal.Zero, apperrors.ErrOrderNotFound
	}

	select {
	case <-fill.done:
		return fill.price, nil
	case <-ctx.Done():
		return decimal.Zero, ctx.Err()
	}
}

func (m *HedgeVenue) GetPosition(ctx context.Context, symbol string) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.positions[symbol], nil
}
