package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"greenfloor/internal/config"
	"greenfloor/internal/daemon"
	"greenfloor/internal/db"
	"greenfloor/internal/executor"
	"greenfloor/internal/models"
	gormrepository "greenfloor/internal/repository/gorm"
	"greenfloor/internal/service"
)

func newStore(t *testing.T) (*db.DB, *gormrepository.Store) {
	t.Helper()
	handle, err := db.Open(config.DBConfig{Driver: db.DriverSQLite, DSN: filepath.Join(t.TempDir(), "api.db")})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close(handle) })
	if err := db.AutoMigrate(handle); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return handle, gormrepository.New(handle.Gorm)
}

func serve(r *gin.Engine, method, path, body string) (int, map[string]any) {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var out map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w.Code, out
}

func newEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

func TestOffersListAndGet(t *testing.T) {
	_, store := newStore(t)
	ctx := context.Background()
	for _, o := range []models.OfferState{
		{OfferID: "a", MarketID: "m1", Side: "sell", Venue: "dexie", State: "open"},
		{OfferID: "b", MarketID: "m1", Side: "sell", Venue: "dexie", State: "cancelled"},
		{OfferID: "c", MarketID: "m2", Side: "sell", Venue: "dexie", State: "open"},
	} {
		o := o
		if err := store.UpsertOfferState(ctx, &o); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	r := newEngine()
	(&OfferHandler{Repo: store}).Register(r)

	code, body := serve(r, http.MethodGet, "/api/v1/offers?market_id=m1&state=open", "")
	if code != http.StatusOK {
		t.Fatalf("code=%d", code)
	}
	items, _ := body["data"].([]any)
	if len(items) != 1 {
		t.Fatalf("items=%d want=1", len(items))
	}
	meta, _ := body["meta"].(map[string]any)
	if meta["total"] != float64(1) {
		t.Fatalf("total=%v want=1", meta["total"])
	}

	if code, _ := serve(r, http.MethodGet, "/api/v1/offers?state=open,bogus", ""); code != http.StatusBadRequest {
		t.Fatalf("unknown state code=%d want=400", code)
	}

	if code, _ := serve(r, http.MethodGet, "/api/v1/offers/c", ""); code != http.StatusOK {
		t.Fatalf("get code=%d", code)
	}
	if code, _ := serve(r, http.MethodGet, "/api/v1/offers/missing", ""); code != http.StatusNotFound {
		t.Fatalf("missing code=%d want=404", code)
	}
}

func TestAuditEventsRejectsBadTime(t *testing.T) {
	_, store := newStore(t)
	r := newEngine()
	(&AuditHandler{Repo: store}).Register(r)
	if code, _ := serve(r, http.MethodGet, "/api/v1/audit-events?since=yesterday", ""); code != http.StatusBadRequest {
		t.Fatalf("code=%d want=400", code)
	}
	if code, _ := serve(r, http.MethodGet, "/api/v1/audit-events?since=2026-01-01", ""); code != http.StatusOK {
		t.Fatalf("code=%d want=200", code)
	}
}

func TestSwitches(t *testing.T) {
	_, store := newStore(t)
	settings := &service.SystemSettingsService{Repo: store}
	r := newEngine()
	(&SystemSettingsHandler{Repo: store, Settings: settings}).Register(r)

	if code, _ := serve(r, http.MethodPut, "/api/v1/system-settings/switches/labeler", `{"enabled":true}`); code != http.StatusNotFound {
		t.Fatalf("unknown switch code=%d want=404", code)
	}
	if code, _ := serve(r, http.MethodPut, "/api/v1/system-settings/switches/cancel_policy", `{}`); code != http.StatusBadRequest {
		t.Fatalf("missing enabled code=%d want=400", code)
	}
	if code, _ := serve(r, http.MethodPut, "/api/v1/system-settings/switches/cancel_policy", `{"enabled":true}`); code != http.StatusOK {
		t.Fatalf("put code=%d", code)
	}
	if !settings.IsEnabled(context.Background(), service.FeatureCancelPolicy, false) {
		t.Fatalf("switch not stored")
	}
	_, body := serve(r, http.MethodGet, "/api/v1/system-settings/switches/cancel_policy", "")
	data, _ := body["data"].(map[string]any)
	if data["enabled"] != true {
		t.Fatalf("data=%v want enabled", data)
	}
}

type sink struct {
	got int
	err error
}

func (s *sink) HandleTxBlock(_ context.Context, payload any) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.got++
	return 1, nil
}

func TestTxBlockWebhook(t *testing.T) {
	s := &sink{}
	r := newEngine()
	(&TxBlockHandler{Sink: s}).Register(r)

	if code, _ := serve(r, http.MethodPost, "/coinset/tx-block", "{not json"); code != http.StatusBadRequest {
		t.Fatalf("bad json code=%d want=400", code)
	}
	if code, _ := serve(r, http.MethodPost, "/coinset/other", `{}`); code != http.StatusNotFound {
		t.Fatalf("wrong path code=%d want=404", code)
	}
	code, body := serve(r, http.MethodPost, "/coinset/tx-block", `{"tx_id":"abc"}`)
	if code != http.StatusOK || body["ok"] != true || s.got != 1 {
		t.Fatalf("code=%d body=%v got=%d", code, body, s.got)
	}

	s.err = errors.New("database is locked")
	if code, _ := serve(r, http.MethodPost, "/coinset/tx-block", `{"tx_id":"abc"}`); code != http.StatusInternalServerError {
		t.Fatalf("store failure code=%d want=500", code)
	}
}

type cycles struct {
	last *daemon.CycleSummary
	runs int
}

func (c *cycles) Last() (daemon.CycleSummary, bool) {
	if c.last == nil {
		return daemon.CycleSummary{}, false
	}
	return *c.last, true
}

func (c *cycles) RunOnce(context.Context) (daemon.CycleSummary, error) {
	c.runs++
	sum := daemon.CycleSummary{CycleID: "c1", MarketsProcessed: 2}
	c.last = &sum
	return sum, nil
}

func TestCyclesAndReload(t *testing.T) {
	stateDir := t.TempDir()
	cs := &cycles{}
	r := newEngine()
	(&CycleHandler{Cycles: cs, StateDir: stateDir}).Register(r)

	if code, _ := serve(r, http.MethodGet, "/api/v1/cycles/last", ""); code != http.StatusNotFound {
		t.Fatalf("no cycle code=%d want=404", code)
	}
	if code, _ := serve(r, http.MethodPost, "/api/v1/cycles/run", ""); code != http.StatusOK || cs.runs != 1 {
		t.Fatalf("run code=%d runs=%d", code, cs.runs)
	}
	_, body := serve(r, http.MethodGet, "/api/v1/cycles/last", "")
	data, _ := body["data"].(map[string]any)
	if data["cycle_id"] != "c1" {
		t.Fatalf("data=%v", data)
	}

	if code, _ := serve(r, http.MethodPost, "/api/v1/reload", ""); code != http.StatusOK {
		t.Fatalf("reload code=%d", code)
	}
	if _, err := os.Stat(daemon.ReloadMarkerPath(stateDir)); err != nil {
		t.Fatalf("marker missing: %v", err)
	}
}

func TestReadyzStaleCycle(t *testing.T) {
	handle, _ := newStore(t)
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	cs := &cycles{last: &daemon.CycleSummary{FinishedAt: now.Add(-10 * time.Minute)}}
	r := newEngine()
	(&HealthHandler{DB: handle.Gorm, Cycles: cs, MaxCycleAge: 5 * time.Minute, Now: func() time.Time { return now }}).Register(r)

	code, body := serve(r, http.MethodGet, "/readyz", "")
	if code != http.StatusServiceUnavailable || body["status"] != "cycle_stale" {
		t.Fatalf("code=%d body=%v", code, body)
	}
	cs.last.FinishedAt = now.Add(-time.Minute)
	if code, _ := serve(r, http.MethodGet, "/readyz", ""); code != http.StatusOK {
		t.Fatalf("code=%d want=200", code)
	}
}

func TestCooldownClear(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	exec := &executor.Executor{Cooldowns: executor.NewMemoryCooldowns(clock), Now: clock}
	ctx := context.Background()
	if err := exec.Cooldowns.Start(ctx, executor.CooldownKey("m1", executor.KindPost), now.Add(30*time.Second)); err != nil {
		t.Fatalf("start: %v", err)
	}
	r := newEngine()
	(&CooldownHandler{Executor: exec}).Register(r)

	_, body := serve(r, http.MethodGet, "/api/v1/cooldowns/m1/post", "")
	data, _ := body["data"].(map[string]any)
	if data["active"] != true || data["remaining_seconds"] != float64(30) {
		t.Fatalf("data=%v want active 30s", data)
	}
	if code, _ := serve(r, http.MethodDelete, "/api/v1/cooldowns/m1/settle", ""); code != http.StatusBadRequest {
		t.Fatalf("bad kind code=%d want=400", code)
	}
	if code, _ := serve(r, http.MethodDelete, "/api/v1/cooldowns/m1/post", ""); code != http.StatusOK {
		t.Fatalf("clear code=%d", code)
	}
	if left, err := exec.Cooldown(ctx, "m1", executor.KindPost); err != nil || left != 0 {
		t.Fatalf("left=%v err=%v want=0", left, err)
	}
	calls := 0
	out := exec.Do(ctx, executor.KindPost, "m1", func(context.Context) error { calls++; return nil })
	if !out.Success || calls != 1 {
		t.Fatalf("after clear success=%v calls=%d", out.Success, calls)
	}
}
