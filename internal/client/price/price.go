package price

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"greenfloor/internal/config"
)

const DefaultURL = "https://coincodex.com/api/coincodex/get_coin/xch"

var ErrMissingPrice = errors.New("coincodex_response_missing_price")

// Client fetches the XCH/USD reference price and caches it for TTL. A failed
// refresh falls back to the last good price when there is one.
type Client struct {
	URL  string
	TTL  time.Duration
	Now  func() time.Time
	http *http.Client

	mu       sync.Mutex
	cached   decimal.Decimal
	cachedAt time.Time
	hasValue bool
}

func NewClient(cfg config.PriceConfig) *Client {
	url := strings.TrimSpace(cfg.BaseURL)
	if url == "" {
		url = DefaultURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	ttl := cfg.TTL
	if ttl < time.Second {
		ttl = time.Second
	}
	return &Client{URL: url, TTL: ttl, http: &http.Client{Timeout: timeout}}
}

type Quote struct {
	PriceUSD decimal.Decimal
	At       time.Time
	Stale    bool
}

func (c *Client) XCHPriceUSD(ctx context.Context) (Quote, error) {
	now := c.now()
	c.mu.Lock()
	if c.hasValue && now.Sub(c.cachedAt) <= c.TTL {
		q := Quote{PriceUSD: c.cached, At: c.cachedAt}
		c.mu.Unlock()
		return q, nil
	}
	c.mu.Unlock()

	price, err := c.fetch(ctx)
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		if c.hasValue {
			return Quote{PriceUSD: c.cached, At: c.cachedAt, Stale: true}, nil
		}
		return Quote{}, err
	}
	c.cached, c.cachedAt, c.hasValue = price, now, true
	return Quote{PriceUSD: price, At: now}, nil
}

func (c *Client) fetch(ctx context.Context) (decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return decimal.Zero, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return decimal.Zero, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return decimal.Zero, err
	}
	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("coincodex status %d", resp.StatusCode)
	}
	return parsePrice(body)
}

func parsePrice(body []byte) (decimal.Decimal, error) {
	var payload any
	dec := json.NewDecoder(strings.NewReader(string(body)))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return decimal.Zero, err
	}
	switch t := payload.(type) {
	case map[string]any:
		if v, ok := t["last_price_usd"]; ok {
			return toDecimal(v)
		}
	case []any:
		if len(t) > 0 {
			if m, ok := t[0].(map[string]any); ok {
				if v, ok := m["current_price"]; ok {
					return toDecimal(v)
				}
			}
		}
	}
	return decimal.Zero, ErrMissingPrice
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch t := v.(type) {
	case json.Number:
		return decimal.NewFromString(t.String())
	case string:
		return decimal.NewFromString(strings.TrimSpace(t))
	}
	return decimal.Zero, ErrMissingPrice
}

func (c *Client) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}
