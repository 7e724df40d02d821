package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"
)

type Webhook struct {
	HTTP *http.Client
	URL  string
}

type webhookPayload struct {
	Project string `json:"project"`
	Event   string `json:"event"`
	Message string `json:"message"`
	Alert   Alert  `json:"alert"`
}

func (s *Webhook) Notify(ctx context.Context, alert Alert) error {
	b, err := json.Marshal(webhookPayload{
		Project: "greenfloor",
		Event:   "low_inventory." + alert.Reason,
		Message: alert.Message(),
		Alert:   alert,
	})
	if err != nil {
		return err
	}
	client := s.HTTP
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &httpError{Channel: "webhook", StatusCode: resp.StatusCode}
	}
	return nil
}
