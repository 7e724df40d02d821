package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"greenfloor/internal/config"
)

// Alert is a low-inventory notification.
type Alert struct {
	MarketID       string `json:"market_id"`
	Ticker         string `json:"ticker"`
	Remaining      int64  `json:"remaining_amount"`
	ReceiveAddress string `json:"receive_address"`
	Reason         string `json:"reason"`
}

func (a Alert) Title() string {
	return "GreenFloor Low Inventory: " + a.Ticker
}

func (a Alert) Message() string {
	return fmt.Sprintf("[%s] Running low on %s. Remaining: %d. Send more to receive address: %s.",
		a.MarketID, a.Ticker, a.Remaining, a.ReceiveAddress)
}

type Notifier interface {
	Notify(ctx context.Context, alert Alert) error
}

// Multi fans out to every channel and joins the failures.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, alert Alert) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// New builds the configured channels. Channels without credentials are skipped.
func New(cfg config.NotifyConfig, secrets config.Secrets) Multi {
	client := &http.Client{Timeout: 10 * time.Second}
	var out Multi
	if cfg.Pushover && secrets.PushoverAppToken != "" && secrets.PushoverUser() != "" {
		out = append(out, &Pushover{HTTP: client, Token: secrets.PushoverAppToken, User: secrets.PushoverUser()})
	}
	if cfg.Slack && secrets.SlackWebhookURL != "" {
		out = append(out, &Slack{HTTP: client, WebhookURL: secrets.SlackWebhookURL})
	}
	if cfg.Webhook != "" {
		out = append(out, &Webhook{HTTP: client, URL: cfg.Webhook})
	}
	return out
}

type httpError struct {
	Channel    string
	StatusCode int
}

func (e *httpError) Error() string {
	return e.Channel + " http status " + http.StatusText(e.StatusCode)
}
