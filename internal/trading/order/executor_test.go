package order

import (
	"context"
	"errors"
	"testing"
	"time"

	"grid_hedger/internal/core"
	"grid_hedger/internal/mock"
	apperrors "grid_hedger/pkg/errors"

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

func newTestExecutor(venue core.PrimaryVenue) *Executor {
	return NewExecutor(venue, 5*time.Millisecond, 1000, 1000, &mockLogger{})
}

func TestPlaceLimit(t *testing.T) {
	venue := mock.NewPrimaryVenue()
	exec := newTestExecutor(venue)

	orderID, err := exec.PlaceLimit(context.Background(), "NG", core.SideBuy,
		decimal.NewFromInt(3), decimal.NewFromFloat(2.517), "cli-1")
	require.NoError(t, err)
	require.NotEmpty(t, orderID)

	live, err := venue.GetOpenOrders(context.Background(), "NG")
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, orderID, live[0].OrderID)
	assert.True(t, live[0].Price.Equal(decimal.NewFromFloat(2.517)))
}

func TestPlaceLimitRetriesWhileMarketClosed(t *testing.T) {
	venue := mock.NewPrimaryVenue()
	exec := newTestExecutor(venue)

	venue.SetMarketClosed(true)
	go func() {
		time.Sleep(20 * time.Millisecond)
		venue.SetMarketClosed(false)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	orderID, err := exec.PlaceLimit(ctx, "NG", core.SideSell,
		decimal.NewFromInt(1), decimal.NewFromFloat(2.530), "cli-2")
	require.NoError(t, err)
	assert.NotEmpty(t, orderID)
}

func TestPlaceLimitMarketClosedHonorsContext(t *testing.T) {
	venue := mock.NewPrimaryVenue()
	exec := newTestExecutor(venue)
	venue.SetMarketClosed(true)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := exec.PlaceLimit(ctx, "NG", core.SideBuy,
		decimal.NewFromInt(1), decimal.NewFromFloat(2.500), "cli-3")
	require.Error(t, err)
}

func TestPlaceLimitRejectionNotRetried(t *testing.T) {
	venue := mock.NewPrimaryVenue()
	exec := newTestExecutor(venue)

	rejection := errors.New("insufficient margin")
	venue.RejectNext(rejection)

	_, err := exec.PlaceLimit(context.Background(), "NG", core.SideBuy,
		decimal.NewFromInt(1), decimal.NewFromFloat(2.500), "cli-4")
	require.Error(t, err)
	assert.ErrorIs(t, err, rejection)

	// The injected error was consumed by the single attempt, so the next
	// call goes through.
	_, err = exec.PlaceLimit(context.Background(), "NG", core.SideBuy,
		decimal.NewFromInt(1), decimal.NewFromFloat(2.500), "cli-5")
	assert.NoError(t, err)
}

func TestModifyAndCancel(t *testing.T) {
	venue := mock.NewPrimaryVenue()
	exec := newTestExecutor(venue)
	ctx := context.Background()

	orderID, err := exec.PlaceLimit(ctx, "NG", core.SideBuy,
		decimal.NewFromInt(2), decimal.NewFromFloat(2.510), "cli-6")
	require.NoError(t, err)

	require.NoError(t, exec.ModifyLimit(ctx, "NG", orderID, decimal.NewFromFloat(2.505)))

	live, err := venue.GetOpenOrders(ctx, "NG")
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.True(t, live[0].Price.Equal(decimal.NewFromFloat(2.505)))

	require.NoError(t, exec.Cancel(ctx, "NG", orderID))

	live, err = venue.GetOpenOrders(ctx, "NG")
	require.NoError(t, err)
	assert.Empty(t, live)
}

func TestCancelUnknownOrder(t *testing.T) {
	venue := mock.NewPrimaryVenue()
	exec := newTestExecutor(venue)

	err := exec.Cancel(context.Background(), "NG", "no-such-order")
	assert.ErrorIs(t, err, apperrors.ErrOrderNotFound)
}
