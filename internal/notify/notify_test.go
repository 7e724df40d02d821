package notify

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"greenfloor/internal/config"
)

func TestPushover_FormBody(t *testing.T) {
	var got url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		got, _ = url.ParseQuery(string(raw))
	}))
	defer srv.Close()

	p := &Pushover{URL: srv.URL, Token: "tok", User: "usr"}
	alert := Alert{MarketID: "m1", Ticker: "BYC", Remaining: 7, ReceiveAddress: "xch1abc", Reason: "low_triggered"}
	if err := p.Notify(context.Background(), alert); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if got.Get("token") != "tok" || got.Get("user") != "usr" {
		t.Fatalf("credentials=%v", got)
	}
	if got.Get("title") != "GreenFloor Low Inventory: BYC" {
		t.Fatalf("title=%q", got.Get("title"))
	}
	if !strings.Contains(got.Get("message"), "Remaining: 7") {
		t.Fatalf("message=%q", got.Get("message"))
	}
}

func TestMulti_JoinsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	m := Multi{&Webhook{URL: srv.URL}, &Pushover{URL: srv.URL}}
	err := m.Notify(context.Background(), Alert{MarketID: "m1"})
	if err == nil || !strings.Contains(err.Error(), "webhook") || !strings.Contains(err.Error(), "pushover") {
		t.Fatalf("err=%v", err)
	}
}

func TestNew_SkipsChannelsWithoutCredentials(t *testing.T) {
	m := New(config.NotifyConfig{Pushover: true, Slack: true}, config.Secrets{PushoverAppToken: "t"})
	if len(m) != 0 {
		t.Fatalf("channels=%d want=0", len(m))
	}
	m = New(config.NotifyConfig{Pushover: true, Webhook: "http://x"}, config.Secrets{PushoverAppToken: "t", PushoverUserKey: "u"})
	if len(m) != 2 {
		t.Fatalf("channels=%d want=2", len(m))
	}
}
