package listener

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"greenfloor/internal/audit"
	"greenfloor/internal/config"
	"greenfloor/internal/db"
	"greenfloor/internal/models"
	gormrepository "greenfloor/internal/repository/gorm"
)

const (
	txA = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	txB = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

type memStore struct {
	mempool   map[string]string
	confirmed map[string]string
	events    []string
	opens     int
}

func newMemStore() *memStore {
	return &memStore{mempool: map[string]string{}, confirmed: map[string]string{}}
}

func (m *memStore) ObserveMempoolTx(_ context.Context, ids []string, source string, _ time.Time) (int64, error) {
	var n int64
	for _, id := range ids {
		if _, ok := m.mempool[id]; !ok {
			m.mempool[id] = source
			n++
		}
	}
	return n, nil
}

func (m *memStore) ConfirmTxBlock(_ context.Context, ids []string, source string, _ time.Time) (int64, error) {
	var n int64
	for _, id := range ids {
		if _, ok := m.confirmed[id]; !ok {
			m.confirmed[id] = source
			n++
		}
	}
	return n, nil
}

func (m *memStore) GetTxSignals(context.Context, []string) (map[string]models.TxSignalState, error) {
	return nil, nil
}

func (m *memStore) Record(_ context.Context, eventType string, _ string, _ map[string]any) error {
	m.events = append(m.events, eventType)
	return nil
}

func (m *memStore) opener() Opener {
	return func(_ context.Context, fn func(Store) error) error {
		m.opens++
		return fn(m)
	}
}

type stubMempool struct {
	ids []string
	err error
}

func (s stubMempool) GetAllMempoolTxIDs(context.Context) ([]string, error) {
	return s.ids, s.err
}

func TestClassify(t *testing.T) {
	mem, conf := Classify(map[string]any{"type": "mempool", "tx_id": txA})
	if len(mem) != 1 || len(conf) != 0 {
		t.Fatalf("mempool=%v confirmed=%v want mempool only", mem, conf)
	}
	mem, conf = Classify(map[string]any{"event": "tx_block", "items": []any{map[string]any{"tx_id": txA}, map[string]any{"txId": txB}}})
	if len(mem) != 0 || len(conf) != 2 {
		t.Fatalf("mempool=%v confirmed=%v want 2 confirmed", mem, conf)
	}
	_, conf = Classify(map[string]any{"in_block": true, "tx_id": strings.ToUpper(txA)})
	if len(conf) != 1 || conf[0] != txA {
		t.Fatalf("confirmed=%v want lowercased id", conf)
	}
	mem, conf = Classify(map[string]any{"type": "peak"})
	if mem != nil || conf != nil {
		t.Fatalf("no ids should classify to nothing")
	}
}

func TestHandleMessage(t *testing.T) {
	store := newMemStore()
	l := &Listener{Open: store.opener()}
	ctx := context.Background()

	kind, err := l.HandleMessage(ctx, []byte(`{"type":"mempool","tx_id":"`+txA+`"}`))
	if err != nil || kind != KindMempool {
		t.Fatalf("kind=%s err=%v want mempool", kind, err)
	}
	kind, err = l.HandleMessage(ctx, []byte(`{"confirmed":true,"tx_id":"`+txA+`"}`))
	if err != nil || kind != KindConfirmed {
		t.Fatalf("kind=%s err=%v want confirmed", kind, err)
	}
	if store.confirmed[txA] != SourceWebsocket {
		t.Fatalf("confirmed source=%q", store.confirmed[txA])
	}
	kind, _ = l.HandleMessage(ctx, []byte(`not json`))
	if kind != KindError {
		t.Fatalf("kind=%s want parse_error", kind)
	}
	kind, _ = l.HandleMessage(ctx, []byte(`[1,2]`))
	if kind != KindIgnored {
		t.Fatalf("kind=%s want ignored", kind)
	}
	want := []string{audit.EventWSMempool, audit.EventWSTxBlock, audit.EventWSPayloadParseError}
	if strings.Join(store.events, ",") != strings.Join(want, ",") {
		t.Fatalf("events=%v want=%v", store.events, want)
	}
	if store.opens != 3 {
		t.Fatalf("opens=%d want=3", store.opens)
	}
}

func TestHandleTxBlock(t *testing.T) {
	store := newMemStore()
	l := &Listener{Open: store.opener()}
	n, err := l.HandleTxBlock(context.Background(), map[string]any{"confirmed_tx_ids": []any{txA, txB}})
	if err != nil || n != 2 {
		t.Fatalf("n=%d err=%v want 2", n, err)
	}
	if store.confirmed[txB] != SourceWebhook {
		t.Fatalf("source=%q want webhook", store.confirmed[txB])
	}
	// a bare list is wrapped under "raw" and carries no known key
	n, _ = l.HandleTxBlock(context.Background(), []any{txA})
	if n != 0 {
		t.Fatalf("n=%d want=0", n)
	}
}

func TestHooksRecoveryPoll(t *testing.T) {
	store := newMemStore()
	l := &Listener{Open: store.opener(), Mempool: stubMempool{ids: []string{txA}}, RecoveryPoll: true}
	connecting, connected, disconnected := l.Hooks("wss://example/ws")
	ctx := context.Background()
	connecting(ctx)
	connected(ctx)
	disconnected(ctx, errors.New("eof"))

	if store.mempool[txA] != SourceRecovery {
		t.Fatalf("recovery source=%q", store.mempool[txA])
	}
	want := []string{audit.EventWSConnecting, audit.EventWSConnected, audit.EventWSRecoveryPoll, audit.EventWSDisconnected}
	if strings.Join(store.events, ",") != strings.Join(want, ",") {
		t.Fatalf("events=%v want=%v", store.events, want)
	}

	store = newMemStore()
	l = &Listener{Open: store.opener(), Mempool: stubMempool{err: errors.New("down")}}
	if _, err := l.Recover(ctx); err == nil {
		t.Fatalf("expected recovery error")
	}
	if len(store.events) != 1 || store.events[0] != audit.EventWSRecoveryError {
		t.Fatalf("events=%v", store.events)
	}
}

func TestFactoryOpenerWritesThroughFreshHandles(t *testing.T) {
	cfg := config.DBConfig{Driver: db.DriverSQLite, DSN: filepath.Join(t.TempDir(), "listener.db")}
	handle, err := db.Open(cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := db.AutoMigrate(handle); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	defer db.Close(handle)

	l := &Listener{Open: FactoryOpener(db.NewFactory(cfg), nil)}
	if _, err := l.HandleMessage(context.Background(), []byte(`{"type":"tx_block","confirmed_tx_ids":["`+txA+`"]}`)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	got, err := gormrepository.New(handle.Gorm).GetTxSignals(context.Background(), []string{txA})
	if err != nil {
		t.Fatalf("signals: %v", err)
	}
	if got[txA].State() != models.TxStateBlockConfirmed {
		t.Fatalf("state=%s want=confirmed", got[txA].State())
	}
}
