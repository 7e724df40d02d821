package notify

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const PushoverURL = "https://api.pushover.net/1/messages.json"

type Pushover struct {
	HTTP  *http.Client
	URL   string
	Token string
	User  string
}

func (p *Pushover) Notify(ctx context.Context, alert Alert) error {
	endpoint := p.URL
	if endpoint == "" {
		endpoint = PushoverURL
	}
	form := url.Values{
		"token":    {p.Token},
		"user":     {p.User},
		"title":    {alert.Title()},
		"message":  {alert.Message()},
		"priority": {"0"},
	}
	client := p.HTTP
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &httpError{Channel: "pushover", StatusCode: resp.StatusCode}
	}
	return nil
}
