package alert

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"grid_hedger/internal/core"
)

type mockAlertChannel struct {
	name     string
	sent     []AlertPayload
	sendFunc func(ctx context.Context, alert AlertPayload) error
	mu       sync.Mutex
}

func (m *mockAlertChannel) Name() string {
	return m.name
}

func (m *mockAlertChannel) Send(ctx context.Context, alert AlertPayload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, alert)
	if m.sendFunc != nil {
		return m.sendFunc(ctx, alert)
	}
	return nil
}

func (m *mockAlertChannel) getSent() []AlertPayload {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := make([]AlertPayload, len(m.sent))
	copy(res, m.sent)
	return res
}

type mockLogger struct{}

func (m *mockLogger) Debug(msg string, f ...interface{})               {}
func (m *mockLogger) Info(msg string, f ...interface{})                {}
func (m *mockLogger) Warn(msg string, f ...interface{})                {}
func (m *mockLogger) Error(msg string, f ...interface{})               {}
func (m *mockLogger) Fatal(msg string, f ...interface{})               {}
func (m *mockLogger) WithField(k string, v interface{}) core.ILogger   { return m }
func (m *mockLogger) WithFields(f map[string]interface{}) core.ILogger { return m }

func TestAlertManager_Notify(t *testing.T) {
	am := NewAlertManager(10, &mockLogger{})

	ch1 := &mockAlertChannel{name: "mock1"}
	ch2 := &mockAlertChannel{name: "mock2"}
	am.AddChannel(ch1)
	am.AddChannel(ch2)

	am.Start()
	am.Notify("INFO", "Test Alert", "This is a test", map[string]string{"key": "value"})
	am.Stop()

	sent1 := ch1.getSent()
	sent2 := ch2.getSent()
	if len(sent1) != 1 {
		t.Fatalf("Expected ch1 to receive 1 alert, got %d", len(sent1))
	}
	if len(sent2) != 1 {
		t.Fatalf("Expected ch2 to receive 1 alert, got %d", len(sent2))
	}

	payload := sent1[0]
	if payload.Title != "Test Alert" {
		t.Errorf("Expected title 'Test Alert', got '%s'", payload.Title)
	}
	if payload.Level != Info {
		t.Errorf("Expected level INFO, got %s", payload.Level)
	}
	if payload.Fields["key"] != "value" {
		t.Errorf("Expected field key=value, got %s", payload.Fields["key"])
	}
}

func TestAlertManager_UnknownLevelBecomesInfo(t *testing.T) {
	am := NewAlertManager(10, &mockLogger{})
	ch := &mockAlertChannel{name: "mock"}
	am.AddChannel(ch)

	am.Start()
	am.Notify("BOGUS", "Title", "Message", nil)
	am.Stop()

	sent := ch.getSent()
	if len(sent) != 1 {
		t.Fatalf("Expected 1 alert, got %d", len(sent))
	}
	if sent[0].Level != Info {
		t.Errorf("Expected unknown level to map to INFO, got %s", sent[0].Level)
	}
}

func TestAlertManager_DropsWhenQueueFull(t *testing.T) {
	am := NewAlertManager(1, &mockLogger{})

	release := make(chan struct{})
	ch := &mockAlertChannel{
		name: "slow",
		sendFunc: func(ctx context.Context, alert AlertPayload) error {
			<-release
			return nil
		},
	}
	am.AddChannel(ch)
	am.Start()

	// First alert occupies the sender, second fills the queue, the rest drop
	for i := 0; i < 5; i++ {
		am.Notify("INFO", "Flood", "m", nil)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	am.Stop()

	sent := ch.getSent()
	if len(sent) > 2 {
		t.Errorf("Expected at most 2 alerts delivered, got %d", len(sent))
	}
	if len(sent) == 0 {
		t.Error("Expected at least one alert delivered")
	}
}

func TestAlertManager_ContinuesAfterChannelError(t *testing.T) {
	am := NewAlertManager(10, &mockLogger{})
	failing := &mockAlertChannel{
		name: "failing",
		sendFunc: func(ctx context.Context, alert AlertPayload) error {
			return errors.New("webhook down")
		},
	}
	healthy := &mockAlertChannel{name: "healthy"}
	am.AddChannel(failing)
	am.AddChannel(healthy)

	am.Start()
	am.Notify("ERROR", "Something broke", "details", nil)
	am.Stop()

	if len(healthy.getSent()) != 1 {
		t.Error("Expected healthy channel to receive the alert despite the failing one")
	}
}
