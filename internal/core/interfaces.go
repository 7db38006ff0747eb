package core

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// PrimaryVenue is the exchange holding the resting limit-order grid
type PrimaryVenue interface {
	GetOpenOrders(ctx context.Context, symbol string) ([]LiveOrder, error)
	GetPosition(ctx context.Context, symbol string) (decimal.Decimal, error)
	PlaceLimit(ctx context.Context, symbol string, side Side, volume, price decimal.Decimal, clientOrderID string) (string, error)
	ModifyLimit(ctx context.Context, orderID string, price decimal.Decimal) error
	Cancel(ctx context.Context, orderID string) error
	GetHistoricalOrders(ctx context.Context, symbol string, since time.Time) ([]HistoricalOrder, error)
}

// HedgeVenue is the exchange where market orders offset net exposure
type HedgeVenue interface {
	SubmitMarket(ctx context.Context, symbol string, side Side, volume decimal.Decimal) (string, error)
	// AwaitFill suspends until the order is fully filled and returns the fill price
	AwaitFill(ctx context.Context, orderID string) (decimal.Decimal, error)
	GetPosition(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// QuoteFeed delivers top-of-book updates for primary-venue instruments
type QuoteFeed interface {
	Subscribe(symbol string, callback func(Quote)) error
	Unsubscribe(symbol string) error
}

// TradeStore persists executed hedge trades
type TradeStore interface {
	SaveTrade(ctx context.Context, trade TradeRecord) error
}

// Notifier delivers operator notifications without blocking the caller
type Notifier interface {
	Notify(level string, title, message string, fields map[string]string)
}

// ILogger defines the interface for logging
type ILogger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})
	WithField(key string, value interface{}) ILogger
	WithFields(fields map[string]interface{}) ILogger
}
