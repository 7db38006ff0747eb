package alert

import (
	"context"
	"fmt"
	"time"

	httpclient "grid_hedger/pkg/http"
)

type SlackChannel struct {
	client *httpclient.Client
	armed  bool
}

func NewSlackChannel(webhookURL string) *SlackChannel {
	return &SlackChannel{
		client: httpclient.NewClient(webhookURL, 5*time.Second, nil),
		armed:  webhookURL != "",
	}
}

func (s *SlackChannel) Name() string {
	return "slack"
}

func (s *SlackChannel) Send(ctx context.Context, alert AlertPayload) error {
	if !s.armed {
		return nil
	}

	color := "#36a64f" // Green (Info)
	switch alert.Level {
	case Warning:
		color = "#ffcc00" // Yellow
	case Error:
		color = "#ff0000" // Red
	case Critical:
		color = "#8b0000" // Dark Red
	}

	var fields []map[string]interface{}
	for k, v := range alert.Fields {
		fields = append(fields, map[string]interface{}{
			"title": k,
			"value": v,
			"short": true,
		})
	}

	payload := map[string]interface{}{
		"attachments": []map[string]interface{}{
			{
				"color":   color,
				"pretext": fmt.Sprintf("[%s] %s", alert.Level, alert.Title),
				"text":    alert.Message,
				"fields":  fields,
				"ts":      alert.Timestamp.Unix(),
				"footer":  "Grid Hedger",
			},
		},
	}

	if _, err := s.client.Post(ctx, "", payload); err != nil {
		return fmt.Errorf("slack webhook failed: %w", err)
	}
	return nil
}
