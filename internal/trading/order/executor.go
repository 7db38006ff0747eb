// Package order executes venue order actions with rate limiting and retry logic
package order

import (
	"context"
	"errors"
	"time"

	"grid_hedger/internal/core"
	apperrors "grid_hedger/pkg/errors"
	"grid_hedger/pkg/telemetry"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/shopspring/decimal"
)

// Executor wraps a primary venue with rate limiting and a market-closed retry
// policy. Transient "market closed" responses are retried with a fixed backoff
// until the context is cancelled; any other rejection aborts immediately so the
// caller can report it.
type Executor struct {
	venue  core.PrimaryVenue
	logger core.ILogger

	rateLimiter *rate.Limiter
	backoff     time.Duration

	placePipeline failsafe.Executor[string]
	errPipeline   failsafe.Executor[any]

	// OTel
	tracer        trace.Tracer
	actionCounter metric.Int64Counter
	retryCounter  metric.Int64Counter
	failCounter   metric.Int64Counter
}

func marketClosedPolicy[T any](backoff time.Duration, onRetry func()) retrypolicy.RetryPolicy[T] {
	return retrypolicy.NewBuilder[T]().
		HandleIf(func(_ T, err error) bool {
			return errors.Is(err, apperrors.ErrMarketClosed)
		}).
		WithDelay(backoff).
		WithMaxRetries(-1).
		OnRetry(func(_ failsafe.ExecutionEvent[T]) {
			onRetry()
		}).
		Build()
}

// NewExecutor creates an executor for one primary venue
func NewExecutor(venue core.PrimaryVenue, marketClosedBackoff time.Duration, orderRate float64, burst int, logger core.ILogger) *Executor {
	tracer := telemetry.GetTracer("order-executor")
	meter := telemetry.GetMeter("order-executor")

	actionCounter, _ := meter.Int64Counter("order_actions_total",
		metric.WithDescription("Total number of order actions submitted"))
	retryCounter, _ := meter.Int64Counter("order_action_retries_total",
		metric.WithDescription("Total number of order action retries on market-closed"))
	failCounter, _ := meter.Int64Counter("order_action_failures_total",
		metric.WithDescription("Total number of rejected order actions"))

	e := &Executor{
		venue:         venue,
		logger:        logger.WithField("component", "order_executor"),
		rateLimiter:   rate.NewLimiter(rate.Limit(orderRate), burst),
		backoff:       marketClosedBackoff,
		tracer:        tracer,
		actionCounter: actionCounter,
		retryCounter:  retryCounter,
		failCounter:   failCounter,
	}

	onRetry := func() {
		e.retryCounter.Add(context.Background(), 1)
		e.logger.Warn("Market closed, retrying order action", "backoff", e.backoff)
	}
	e.placePipeline = failsafe.With[string](marketClosedPolicy[string](marketClosedBackoff, onRetry))
	e.errPipeline = failsafe.With[any](marketClosedPolicy[any](marketClosedBackoff, onRetry))

	return e
}

// PlaceLimit places a limit order, returning the venue order id
func (e *Executor) PlaceLimit(ctx context.Context, symbol string, side core.Side, volume, price decimal.Decimal, clientOrderID string) (string, error) {
	ctx, span := e.tracer.Start(ctx, "PlaceLimit",
		trace.WithAttributes(
			attribute.String("symbol", symbol),
			attribute.String("side", string(side)),
		),
	)
	defer span.End()

	if err := e.rateLimiter.Wait(ctx); err != nil {
		return "", err
	}

	e.actionCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", "place"),
		attribute.String("symbol", symbol),
	))

	orderID, err := e.placePipeline.WithContext(ctx).Get(func() (string, error) {
		return e.venue.PlaceLimit(ctx, symbol, side, volume, price, clientOrderID)
	})
	if err != nil {
		span.RecordError(err)
		e.recordFailure(ctx, "place", symbol)
		return "", err
	}
	return orderID, nil
}

// ModifyLimit changes the price of a resting order
func (e *Executor) ModifyLimit(ctx context.Context, symbol, orderID string, price decimal.Decimal) error {
	ctx, span := e.tracer.Start(ctx, "ModifyLimit",
		trace.WithAttributes(attribute.String("order_id", orderID)),
	)
	defer span.End()

	if err := e.rateLimiter.Wait(ctx); err != nil {
		return err
	}

	e.actionCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", "modify"),
		attribute.String("symbol", symbol),
	))

	_, err := e.errPipeline.WithContext(ctx).Get(func() (any, error) {
		return nil, e.venue.ModifyLimit(ctx, orderID, price)
	})
	if err != nil {
		span.RecordError(err)
		e.recordFailure(ctx, "modify", symbol)
	}
	return err
}

// Cancel removes a resting order
func (e *Executor) Cancel(ctx context.Context, symbol, orderID string) error {
	ctx, span := e.tracer.Start(ctx, "Cancel",
		trace.WithAttributes(attribute.String("order_id", orderID)),
	)
	defer span.End()

	if err := e.rateLimiter.Wait(ctx); err != nil {
		return err
	}

	e.actionCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", "cancel"),
		attribute.String("symbol", symbol),
	))

	_, err := e.errPipeline.WithContext(ctx).Get(func() (any, error) {
		return nil, e.venue.Cancel(ctx, orderID)
	})
	if err != nil {
		span.RecordError(err)
		e.recordFailure(ctx, "cancel", symbol)
	}
	return err
}

func (e *Executor) recordFailure(ctx context.Context, action, symbol string) {
	e.failCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", action),
		attribute.String("symbol", symbol),
	))
}
