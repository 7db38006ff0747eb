package mock

import (
	"sync"
	"time"

	"grid_hedger/internal/core"

	"github.com/shopspring/decimal"
)

// QuoteFeed implements core.QuoteFeed with manually pushed quotes
type QuoteFeed struct {
	mu        sync.RWMutex
	callbacks map[string]func(core.Quote)
}

// NewQuoteFeed creates an empty mock feed
func NewQuoteFeed() *QuoteFeed {
	return &QuoteFeed{
		callbacks: make(map[string]func(core.Quote)),
	}
}

func (m *QuoteFeed) Subscribe(symbol string, callback func(core.Quote)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks[symbol] = callback
	return nil
}

func (m *QuoteFeed) Unsubscribe(symbol string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.callbacks, symbol)
	return nil
}

// Push delivers a quote to the subscriber, if any
func (m *QuoteFeed) Push(symbol string, bid, ask decimal.Decimal) {
	m.mu.RLock()
	cb := m.callbacks[symbol]
	m.mu.RUnlock()
	if cb != nil {
		cb(core.Quote{Symbol: symbol, Bid: bid, Ask: ask, Valid: true, At: time.Now()})
	}
}

// Subscribed reports whether a symbol has an active subscription
func (m *QuoteFeed) Subscribed(symbol string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.callbacks[symbol]
	return ok
}
