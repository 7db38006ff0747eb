package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"grid_hedger/internal/core"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "trades.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestSaveAndLoadTrade(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	trade := core.TradeRecord{
		Timestamp:     time.Now().Truncate(time.Millisecond),
		PrimarySymbol: "NG2609",
		HedgeSymbol:   "NG-HEDGE",
		Side:          core.SideSell,
		Size:          dec("2"),
		PrimaryPrice:  dec("50.123"),
		HedgePrice:    dec("50.5"),
		Latency:       42 * time.Millisecond,
		Fees:          dec("0.15"),
	}
	require.NoError(t, s.SaveTrade(ctx, trade))

	trades, err := s.TradesSince(ctx, trade.Timestamp.Add(-time.Second))
	require.NoError(t, err)
	require.Len(t, trades, 1)

	got := trades[0]
	assert.Equal(t, trade.PrimarySymbol, got.PrimarySymbol)
	assert.Equal(t, trade.HedgeSymbol, got.HedgeSymbol)
	assert.Equal(t, core.SideSell, got.Side)
	assert.True(t, got.Size.Equal(trade.Size))
	assert.True(t, got.PrimaryPrice.Equal(trade.PrimaryPrice))
	assert.True(t, got.HedgePrice.Equal(trade.HedgePrice))
	assert.Equal(t, trade.Latency, got.Latency)
	assert.True(t, got.Fees.Equal(trade.Fees))
	assert.True(t, got.Timestamp.Equal(trade.Timestamp))
}

func TestTradesSinceFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now()

	for i, offset := range []time.Duration{-2 * time.Hour, -time.Hour, -time.Minute} {
		trade := core.TradeRecord{
			Timestamp:     base.Add(offset),
			PrimarySymbol: "NG2609",
			HedgeSymbol:   "NG-HEDGE",
			Side:          core.SideBuy,
			Size:          decimal.NewFromInt(int64(i + 1)),
			PrimaryPrice:  dec("50"),
			HedgePrice:    dec("50.5"),
		}
		require.NoError(t, s.SaveTrade(ctx, trade))
	}

	trades, err := s.TradesSince(ctx, base.Add(-90*time.Minute))
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.True(t, trades[0].Timestamp.Before(trades[1].Timestamp), "oldest first")
}

func TestTradesSinceEmpty(t *testing.T) {
	s := newTestStore(t)
	trades, err := s.TradesSince(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Empty(t, trades)
}
