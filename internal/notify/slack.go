package notify

import (
	"context"
	"net/http"

	"github.com/slack-go/slack"
)

type Slack struct {
	HTTP       *http.Client
	WebhookURL string
}

func (s *Slack) Notify(ctx context.Context, alert Alert) error {
	msg := &slack.WebhookMessage{
		Text: "*" + alert.Title() + "*\n" + alert.Message(),
	}
	client := s.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	return slack.PostWebhookCustomHTTPContext(ctx, s.WebhookURL, client, msg)
}
