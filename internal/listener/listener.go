package listener

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"greenfloor/internal/audit"
	"greenfloor/internal/client/coinset"
	"greenfloor/internal/db"
	"greenfloor/internal/metrics"
	"greenfloor/internal/repository"
	gormrepository "greenfloor/internal/repository/gorm"
)

const (
	SourceWebsocket = "coinset_websocket"
	SourceWebhook   = "coinset_webhook"
	SourceRecovery  = "coinset_recovery_poll"

	KindMempool   = "mempool"
	KindConfirmed = "confirmed"
	KindIgnored   = "ignored"
	KindError     = "parse_error"
)

// Store is the write surface one listener write needs.
type Store interface {
	repository.TxSignalRepository
	audit.Recorder
}

// Opener hands fn a store handle that lives only for the call.
type Opener func(ctx context.Context, fn func(Store) error) error

type MempoolSource interface {
	GetAllMempoolTxIDs(ctx context.Context) ([]string, error)
}

type Runner interface {
	Run(ctx context.Context, onMessage func([]byte)) error
}

type factoryStore struct {
	*gormrepository.Store
	*audit.Log
}

// FactoryOpener opens a fresh database handle per write.
func FactoryOpener(f *db.Factory, logger *zap.Logger, sinks ...audit.Sink) Opener {
	return func(ctx context.Context, fn func(Store) error) error {
		return f.With(func(handle *db.DB) error {
			repo := gormrepository.New(handle.Gorm)
			return fn(factoryStore{Store: repo, Log: audit.New(repo, logger, sinks...)})
		})
	}
}

type Listener struct {
	Open    Opener
	Mempool MempoolSource
	Stream  Runner
	Metrics *metrics.Metrics
	Logger  *zap.Logger
	Now     func() time.Time

	RecoveryPoll bool
}

func (l *Listener) now() time.Time {
	if l.Now != nil {
		return l.Now().UTC()
	}
	return time.Now().UTC()
}

func (l *Listener) logger() *zap.Logger {
	if l.Logger == nil {
		return zap.NewNop()
	}
	return l.Logger
}

// Classify splits a payload into mempool and confirmed tx ids. A payload is a
// block event when it says so explicitly or its event/type hint mentions a
// confirmation or a block.
func Classify(payload map[string]any) (mempool []string, confirmed []string) {
	ids := coinset.ExtractTxIDs(payload)
	if len(ids) == 0 {
		return nil, nil
	}
	if isConfirmed(payload) {
		return nil, ids
	}
	return ids, nil
}

func isConfirmed(payload map[string]any) bool {
	for _, key := range []string{"confirmed", "in_block"} {
		if v, ok := payload[key].(bool); ok && v {
			return true
		}
	}
	for _, key := range []string{"event", "type"} {
		hint, _ := payload[key].(string)
		hint = strings.ToLower(hint)
		if strings.Contains(hint, "confirm") || strings.Contains(hint, "block") {
			return true
		}
	}
	return false
}

// HandleMessage processes one raw websocket frame and returns its kind.
func (l *Listener) HandleMessage(ctx context.Context, raw []byte) (string, error) {
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		text := string(raw)
		if len(text) > 200 {
			text = text[:200]
		}
		l.Metrics.ListenerEvent(KindError)
		return KindError, l.write(ctx, func(s Store) error {
			return s.Record(ctx, audit.EventWSPayloadParseError, "", map[string]any{"raw": text, "error": err.Error()})
		})
	}
	payload, ok := decoded.(map[string]any)
	if !ok {
		l.Metrics.ListenerEvent(KindIgnored)
		return KindIgnored, nil
	}
	mempool, confirmed := Classify(payload)
	switch {
	case len(confirmed) > 0:
		return KindConfirmed, l.confirm(ctx, confirmed, SourceWebsocket, audit.EventWSTxBlock)
	case len(mempool) > 0:
		return KindMempool, l.observe(ctx, mempool, SourceWebsocket)
	}
	l.Metrics.ListenerEvent(KindIgnored)
	return KindIgnored, nil
}

// HandleTxBlock ingests a tx-block webhook body. Every id in it is confirmed.
func (l *Listener) HandleTxBlock(ctx context.Context, payload any) (int, error) {
	if _, ok := payload.(map[string]any); !ok {
		payload = map[string]any{"raw": payload}
	}
	ids := coinset.ExtractTxIDs(payload)
	if len(ids) == 0 {
		l.Metrics.ListenerEvent(KindIgnored)
		return 0, nil
	}
	return len(ids), l.confirm(ctx, ids, SourceWebhook, audit.EventTxBlockWebhook)
}

func (l *Listener) confirm(ctx context.Context, ids []string, source string, eventType string) error {
	at := l.now()
	err := l.write(ctx, func(s Store) error {
		n, err := s.ConfirmTxBlock(ctx, ids, source, at)
		if err != nil {
			return err
		}
		return s.Record(ctx, eventType, "", map[string]any{
			"tx_ids":          ids,
			"tx_id_count":     len(ids),
			"confirmed_count": n,
			"source":          source,
		})
	})
	if err == nil {
		l.Metrics.ListenerEvent(KindConfirmed)
	}
	return err
}

func (l *Listener) observe(ctx context.Context, ids []string, source string) error {
	at := l.now()
	err := l.write(ctx, func(s Store) error {
		n, err := s.ObserveMempoolTx(ctx, ids, source, at)
		if err != nil {
			return err
		}
		return s.Record(ctx, audit.EventWSMempool, "", map[string]any{
			"tx_id_count": len(ids),
			"new_count":   n,
			"source":      source,
		})
	})
	if err == nil {
		l.Metrics.ListenerEvent(KindMempool)
	}
	return err
}

func (l *Listener) write(ctx context.Context, fn func(Store) error) error {
	if l == nil || l.Open == nil {
		return fmt.Errorf("listener store is not configured")
	}
	return l.Open(ctx, fn)
}

func (l *Listener) event(ctx context.Context, eventType string, payload map[string]any) {
	if err := l.write(ctx, func(s Store) error {
		return s.Record(ctx, eventType, "", payload)
	}); err != nil {
		l.logger().Warn("listener audit failed", zap.String("event", eventType), zap.Error(err))
	}
}

// Recover polls the current mempool once so sightings missed while
// disconnected are not lost.
func (l *Listener) Recover(ctx context.Context) (int, error) {
	if l.Mempool == nil {
		return 0, nil
	}
	ids, err := l.Mempool.GetAllMempoolTxIDs(ctx)
	if err != nil {
		l.event(ctx, audit.EventWSRecoveryError, map[string]any{"error": err.Error()})
		return 0, err
	}
	if len(ids) > 0 {
		if err := l.write(ctx, func(s Store) error {
			_, err := s.ObserveMempoolTx(ctx, ids, SourceRecovery, l.now())
			return err
		}); err != nil {
			return 0, err
		}
	}
	l.event(ctx, audit.EventWSRecoveryPoll, map[string]any{"tx_id_count": len(ids)})
	return len(ids), nil
}

// Hooks returns the callbacks a coinset.Stream should be built with.
func (l *Listener) Hooks(url string) (connecting func(context.Context), connected func(context.Context), disconnected func(context.Context, error)) {
	connecting = func(ctx context.Context) {
		l.event(ctx, audit.EventWSConnecting, map[string]any{"url": url})
	}
	connected = func(ctx context.Context) {
		l.event(ctx, audit.EventWSConnected, map[string]any{"url": url})
		if l.RecoveryPoll {
			if _, err := l.Recover(ctx); err != nil {
				l.logger().Warn("mempool recovery poll failed", zap.Error(err))
			}
		}
	}
	disconnected = func(ctx context.Context, err error) {
		msg := ""
		if err != nil {
			msg = err.Error()
		}
		l.Metrics.ListenerEvent("disconnected")
		l.event(ctx, audit.EventWSDisconnected, map[string]any{"url": url, "error": msg})
	}
	return connecting, connected, disconnected
}

// Run consumes the stream until ctx ends. Message failures are logged, never fatal.
func (l *Listener) Run(ctx context.Context) error {
	if l == nil || l.Stream == nil {
		return fmt.Errorf("listener stream is not configured")
	}
	return l.Stream.Run(ctx, func(raw []byte) {
		if _, err := l.HandleMessage(ctx, raw); err != nil {
			l.logger().Warn("listener message failed", zap.Error(err))
		}
	})
}
