package coinset

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

const (
	MainnetWSURL   = "wss://api.coinset.org/ws"
	Testnet11WSURL = "wss://testnet11.api.coinset.org/ws"
)

// WSURL derives the websocket endpoint from the configured API base.
func WSURL(configured, apiBase, network string) string {
	if v := strings.TrimSpace(configured); v != "" {
		return v
	}
	base := strings.TrimSpace(apiBase)
	if base == "" {
		if n := strings.ToLower(strings.TrimSpace(network)); n == "testnet" || n == NetworkTestnet11 {
			return Testnet11WSURL
		}
		return MainnetWSURL
	}
	u, err := url.Parse(base)
	if err != nil || u.Host == "" {
		return MainnetWSURL
	}
	scheme := "ws"
	if u.Scheme == "https" {
		scheme = "wss"
	}
	return scheme + "://" + u.Host + "/ws"
}

type StreamOptions struct {
	URL               string
	HeartbeatInterval time.Duration
	PingTimeout       time.Duration
	BackoffMin        time.Duration
	BackoffMax        time.Duration
	Logger            *zap.Logger

	OnConnecting func(ctx context.Context)
	// OnConnected runs after every successful dial, before the first read.
	OnConnected    func(ctx context.Context)
	OnDisconnected func(ctx context.Context, err error)
}

// Stream keeps one websocket to the ledger open, reconnecting with jittered
// exponential backoff until ctx ends.
type Stream struct {
	opts StreamOptions
}

func NewStream(opts StreamOptions) *Stream {
	if opts.URL == "" {
		opts.URL = MainnetWSURL
	}
	if opts.HeartbeatInterval == 0 {
		opts.HeartbeatInterval = 20 * time.Second
	}
	if opts.PingTimeout == 0 {
		opts.PingTimeout = 5 * time.Second
	}
	if opts.BackoffMin == 0 {
		opts.BackoffMin = time.Second
	}
	if opts.BackoffMax == 0 {
		opts.BackoffMax = 2 * time.Minute
	}
	return &Stream{opts: opts}
}

func (s *Stream) Run(ctx context.Context, onMessage func([]byte)) error {
	if s == nil {
		return fmt.Errorf("stream is nil")
	}
	backoff := s.opts.BackoffMin
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if s.opts.OnConnecting != nil {
			s.opts.OnConnecting(ctx)
		}
		conn, _, err := websocket.Dial(ctx, s.opts.URL, nil)
		if err != nil {
			if s.opts.Logger != nil {
				s.opts.Logger.Warn("coinset ws connect failed", zap.Error(err))
			}
			if s.opts.OnDisconnected != nil {
				s.opts.OnDisconnected(ctx, err)
			}
			if err := sleepWithJitter(ctx, backoff); err != nil {
				return err
			}
			backoff = nextBackoff(backoff, s.opts.BackoffMax)
			continue
		}
		conn.SetReadLimit(4 << 20)
		if s.opts.Logger != nil {
			s.opts.Logger.Info("coinset ws connected", zap.String("url", s.opts.URL))
		}
		if s.opts.OnConnected != nil {
			s.opts.OnConnected(ctx)
		}
		backoff = s.opts.BackoffMin

		err = s.consume(ctx, conn, onMessage)
		_ = conn.Close(websocket.StatusNormalClosure, "reconnect")
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if s.opts.OnDisconnected != nil {
			s.opts.OnDisconnected(ctx, err)
		}
		if err := sleepWithJitter(ctx, backoff); err != nil {
			return err
		}
		backoff = nextBackoff(backoff, s.opts.BackoffMax)
	}
}

func (s *Stream) consume(ctx context.Context, conn *websocket.Conn, onMessage func([]byte)) error {
	heartbeatErr := make(chan error, 1)
	heartbeatCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		ticker := time.NewTicker(s.opts.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-heartbeatCtx.Done():
				return
			case <-ticker.C:
				pingCtx, cancelPing := context.WithTimeout(heartbeatCtx, s.opts.PingTimeout)
				err := conn.Ping(pingCtx)
				cancelPing()
				if err != nil {
					heartbeatErr <- err
					cancel()
					return
				}
			}
		}
	}()

	for {
		_, data, err := conn.Read(heartbeatCtx)
		if err != nil {
			select {
			case hbErr := <-heartbeatErr:
				return fmt.Errorf("heartbeat: %w", hbErr)
			default:
			}
			if s.opts.Logger != nil && !errors.Is(err, context.Canceled) {
				s.opts.Logger.Warn("coinset ws read failed", zap.Error(err))
			}
			return err
		}
		if onMessage != nil {
			onMessage(data)
		}
	}
}

func nextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func sleepWithJitter(ctx context.Context, base time.Duration) error {
	if base <= 0 {
		return nil
	}
	jitter := time.Duration(0)
	if half := int64(base / 2); half > 0 {
		jitter = time.Duration(rand.Int63n(half))
	}
	timer := time.NewTimer(base + jitter)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
