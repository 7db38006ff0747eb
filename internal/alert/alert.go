// Package alert fans operator notifications out to external channels through
// a bounded queue, keeping slow webhooks off the trading path.
package alert

import (
	"context"
	"sync"
	"time"

	"grid_hedger/internal/core"
	"grid_hedger/pkg/telemetry"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type AlertLevel string

const (
	Info     AlertLevel = "INFO"
	Warning  AlertLevel = "WARNING"
	Error    AlertLevel = "ERROR"
	Critical AlertLevel = "CRITICAL"
)

type AlertPayload struct {
	Level     AlertLevel
	Title     string
	Message   string
	Timestamp time.Time
	Fields    map[string]string
}

type AlertChannel interface {
	Send(ctx context.Context, alert AlertPayload) error
	Name() string
}

// AlertManager queues alerts and delivers them from a single sender
// goroutine. When the queue is full the alert is dropped and counted; the
// trading path never blocks on delivery.
type AlertManager struct {
	channels []AlertChannel
	queue    chan AlertPayload
	logger   core.ILogger
	mu       sync.RWMutex
	wg       sync.WaitGroup

	sentCounter    metric.Int64Counter
	droppedCounter metric.Int64Counter
}

func NewAlertManager(queueSize int, logger core.ILogger) *AlertManager {
	if queueSize <= 0 {
		queueSize = 100
	}

	meter := telemetry.GetMeter("alert")
	sentCounter, _ := meter.Int64Counter("alerts_sent_total",
		metric.WithDescription("Total number of alerts delivered to a channel"))
	droppedCounter, _ := meter.Int64Counter("alerts_dropped_total",
		metric.WithDescription("Total number of alerts dropped on a full queue"))

	return &AlertManager{
		channels:       make([]AlertChannel, 0),
		queue:          make(chan AlertPayload, queueSize),
		logger:         logger.WithField("component", "alert_manager"),
		sentCounter:    sentCounter,
		droppedCounter: droppedCounter,
	}
}

func (am *AlertManager) AddChannel(ch AlertChannel) {
	am.mu.Lock()
	defer am.mu.Unlock()
	am.channels = append(am.channels, ch)
	am.logger.Info("Added alert channel", "name", ch.Name())
}

// Start launches the sender goroutine
func (am *AlertManager) Start() {
	am.wg.Add(1)
	go am.senderLoop()
	am.logger.Info("Alert manager started")
}

// Stop drains the queue and waits for the sender to finish. Notify must not
// be called after Stop.
func (am *AlertManager) Stop() {
	close(am.queue)
	am.wg.Wait()
	am.logger.Info("Alert manager stopped")
}

// Notify implements core.Notifier. Unknown levels are treated as INFO.
func (am *AlertManager) Notify(level, title, message string, fields map[string]string) {
	payload := AlertPayload{
		Level:     AlertLevel(level),
		Title:     title,
		Message:   message,
		Timestamp: time.Now(),
		Fields:    fields,
	}
	switch payload.Level {
	case Info, Warning, Error, Critical:
	default:
		payload.Level = Info
	}

	select {
	case am.queue <- payload:
	default:
		am.droppedCounter.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("level", string(payload.Level))))
		am.logger.Warn("Alert queue full, dropping alert", "title", title)
	}
}

func (am *AlertManager) senderLoop() {
	defer am.wg.Done()
	for payload := range am.queue {
		am.deliver(payload)
	}
}

func (am *AlertManager) deliver(payload AlertPayload) {
	am.mu.RLock()
	channels := make([]AlertChannel, len(am.channels))
	copy(channels, am.channels)
	am.mu.RUnlock()

	for _, ch := range channels {
		sendCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := ch.Send(sendCtx, payload)
		cancel()
		if err != nil {
			am.logger.Error("Failed to send alert", "channel", ch.Name(), "error", err)
			continue
		}
		am.sentCounter.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("channel", ch.Name())))
	}
}
