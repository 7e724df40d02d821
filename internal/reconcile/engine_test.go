package reconcile

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"greenfloor/internal/client/venue"
	"greenfloor/internal/config"
	"greenfloor/internal/db"
	"greenfloor/internal/lifecycle"
	"greenfloor/internal/models"
	gormrepository "greenfloor/internal/repository/gorm"
)

type stubVenue struct {
	statuses map[string]venue.OfferStatus
	calls    int
}

func (s *stubVenue) GetOffer(_ context.Context, offerID string) (venue.OfferStatus, error) {
	s.calls++
	st, ok := s.statuses[offerID]
	if !ok {
		return venue.OfferStatus{}, venue.ErrNotFound
	}
	return st, nil
}

type event struct {
	eventType string
	payload   map[string]any
}

type recorder struct{ events []event }

func (r *recorder) Record(_ context.Context, eventType string, _ string, payload map[string]any) error {
	r.events = append(r.events, event{eventType, payload})
	return nil
}

func (r *recorder) count(eventType string) int {
	n := 0
	for _, e := range r.events {
		if e.eventType == eventType {
			n++
		}
	}
	return n
}

func newStore(t *testing.T) *gormrepository.Store {
	t.Helper()
	handle, err := db.Open(config.DBConfig{Driver: db.DriverSQLite, DSN: filepath.Join(t.TempDir(), "reconcile.db")})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := db.AutoMigrate(handle); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { _ = db.Close(handle) })
	return gormrepository.New(handle.Gorm)
}

const (
	txA = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	txB = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	txC = "cccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccc"
)

func seed(t *testing.T, s *gormrepository.Store, offerID string, state lifecycle.State, mutate func(*models.OfferState)) {
	t.Helper()
	item := &models.OfferState{OfferID: offerID, MarketID: "m1", Side: "sell", Venue: "dexie", State: string(state)}
	if mutate != nil {
		mutate(item)
	}
	if err := s.UpsertOfferState(context.Background(), item); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func newEngine(s *gormrepository.Store, v *stubVenue, rec *recorder, now *time.Time) *Engine {
	return &Engine{
		Offers:         s,
		Signals:        s,
		Venue:          v,
		Audit:          rec,
		FallbackWindow: 30 * time.Minute,
		Now:            func() time.Time { return *now },
	}
}

func TestRun_ChainConfirmationWinsOverVenueCancel(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	seed(t, s, "o1", lifecycle.StateOpen, func(o *models.OfferState) { o.AddTxIDs(txA) })
	if _, err := s.ConfirmTxBlock(ctx, []string{txA}, "ws", now); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	v := &stubVenue{statuses: map[string]venue.OfferStatus{"o1": {OfferID: "o1", Status: lifecycle.VenueCancelled}}}
	rec := &recorder{}

	res, err := newEngine(s, v, rec, &now).Run(ctx, "m1")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.CompletedByChain != 1 || res.Cancelled != 0 {
		t.Fatalf("result=%+v want completed_by_chain=1", res)
	}
	got, _ := s.GetOfferState(ctx, "o1")
	if got.State != string(lifecycle.StateCompleted) || got.PreviousState != string(lifecycle.StateOpen) {
		t.Fatalf("state=%s prev=%s", got.State, got.PreviousState)
	}
	if rec.count("taker_detection") != 1 || rec.count("offer_state_changed") != 1 {
		t.Fatalf("events=%+v", rec.events)
	}
	if rec.count("reconciliation_pass") != 1 {
		t.Fatalf("missing reconciliation_pass event")
	}
}

func TestRun_NotFoundOrphansOnce(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	seed(t, s, "o1", lifecycle.StateOpen, nil)
	rec := &recorder{}
	e := newEngine(s, &stubVenue{}, rec, &now)

	res, err := e.Run(ctx, "m1")
	if err != nil || res.Orphaned != 1 {
		t.Fatalf("res=%+v err=%v want orphaned=1", res, err)
	}
	got, _ := s.GetOfferState(ctx, "o1")
	if got.State != string(lifecycle.StateOrphaned) || got.Flag != lifecycle.FlagOrphaned {
		t.Fatalf("state=%s flag=%s", got.State, got.Flag)
	}

	res, err = e.Run(ctx, "m1")
	if err != nil || res.Transitioned != 0 {
		t.Fatalf("second res=%+v err=%v", res, err)
	}
	if n := rec.count("offer_state_changed"); n != 1 {
		t.Fatalf("state events=%d want=1", n)
	}
}

func TestRun_OrphanRecoversWhenVenueListsOfferAgain(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	seed(t, s, "o1", lifecycle.StateOpen, nil)
	v := &stubVenue{}
	rec := &recorder{}
	e := newEngine(s, v, rec, &now)

	if _, err := e.Run(ctx, "m1"); err != nil {
		t.Fatalf("first run: %v", err)
	}
	v.statuses = map[string]venue.OfferStatus{"o1": {OfferID: "o1", Status: lifecycle.VenueOpen}}
	res, err := e.Run(ctx, "m1")
	if err != nil || res.Transitioned != 1 {
		t.Fatalf("res=%+v err=%v want transitioned=1", res, err)
	}
	got, _ := s.GetOfferState(ctx, "o1")
	if got.State != string(lifecycle.StateOpen) || got.Flag != lifecycle.FlagNone || got.PreviousState != string(lifecycle.StateOrphaned) {
		t.Fatalf("state=%s flag=%q prev=%s", got.State, got.Flag, got.PreviousState)
	}
	if n := rec.count("offer_state_changed"); n != 2 {
		t.Fatalf("state events=%d want=2", n)
	}
}

func TestRun_VenueCompletedFallsBackAfterWindow(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	seed(t, s, "o1", lifecycle.StateOpen, nil)
	v := &stubVenue{statuses: map[string]venue.OfferStatus{"o1": {OfferID: "o1", Status: lifecycle.VenueCompleted}}}
	rec := &recorder{}
	e := newEngine(s, v, rec, &now)

	if _, err := e.Run(ctx, "m1"); err != nil {
		t.Fatalf("run: %v", err)
	}
	got, _ := s.GetOfferState(ctx, "o1")
	if got.State != string(lifecycle.StatePending) || got.VenueCompletedAt == nil {
		t.Fatalf("state=%s completed_at=%v want pending with window start", got.State, got.VenueCompletedAt)
	}
	if rec.count("taker_diagnostic_signal") != 1 {
		t.Fatalf("diagnostic events=%d want=1", rec.count("taker_diagnostic_signal"))
	}

	now = now.Add(10 * time.Minute)
	if _, err := e.Run(ctx, "m1"); err != nil {
		t.Fatalf("run: %v", err)
	}
	got, _ = s.GetOfferState(ctx, "o1")
	if got.State != string(lifecycle.StatePending) {
		t.Fatalf("state=%s want pending inside window", got.State)
	}
	if rec.count("taker_diagnostic_signal") != 1 {
		t.Fatalf("diagnostic repeated")
	}

	now = now.Add(25 * time.Minute)
	res, err := e.Run(ctx, "m1")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.CompletedByFallback != 1 {
		t.Fatalf("res=%+v want completed_by_fallback=1", res)
	}
}

func TestRun_AttachesVenueTxIDsButNotCancelTx(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	seed(t, s, "o1", lifecycle.StateOpen, func(o *models.OfferState) { o.CancelTxID = txC })
	v := &stubVenue{statuses: map[string]venue.OfferStatus{"o1": {
		OfferID: "o1",
		Status:  lifecycle.VenuePending,
		Payload: map[string]any{"offer": map[string]any{
			"take_tx_id":     strings.ToUpper(txA),
			"mempool_tx_ids": []any{txB, txC, "nothex"},
		}},
	}}}
	if _, err := s.ObserveMempoolTx(ctx, []string{txB}, "ws", now); err != nil {
		t.Fatalf("observe: %v", err)
	}
	rec := &recorder{}
	res, err := newEngine(s, v, rec, &now).Run(ctx, "m1")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.TxIDsAttached != 2 {
		t.Fatalf("attached=%d want=2", res.TxIDsAttached)
	}
	got, _ := s.GetOfferState(ctx, "o1")
	ids := got.TxIDList()
	if len(ids) != 2 || ids[0] != txA || ids[1] != txB {
		t.Fatalf("tx_ids=%v", ids)
	}
	if got.State != string(lifecycle.StatePending) || got.ChainEvidenceAt == nil {
		t.Fatalf("state=%s chain_at=%v", got.State, got.ChainEvidenceAt)
	}
}

func TestRun_CancelTxConfirmedCancels(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	seed(t, s, "o1", lifecycle.StateCancelling, func(o *models.OfferState) { o.CancelTxID = txC })
	if _, err := s.ConfirmTxBlock(ctx, []string{txC}, "ws", now); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	v := &stubVenue{statuses: map[string]venue.OfferStatus{"o1": {OfferID: "o1", Status: lifecycle.VenueCancelling}}}
	res, err := newEngine(s, v, &recorder{}, &now).Run(ctx, "m1")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Cancelled != 1 || res.CompletedByChain != 0 {
		t.Fatalf("res=%+v want cancelled=1", res)
	}
}

func TestRun_UnknownStatusFlagsWithoutStateChange(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	seed(t, s, "o1", lifecycle.StateOpen, nil)
	v := &stubVenue{statuses: map[string]venue.OfferStatus{"o1": {OfferID: "o1", Status: 42}}}
	rec := &recorder{}
	res, err := newEngine(s, v, rec, &now).Run(ctx, "m1")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Unknown != 1 || res.Transitioned != 0 {
		t.Fatalf("res=%+v want unknown=1 transitioned=0", res)
	}
	got, _ := s.GetOfferState(ctx, "o1")
	if got.State != string(lifecycle.StateOpen) || got.Flag != lifecycle.FlagUnknown {
		t.Fatalf("state=%s flag=%s", got.State, got.Flag)
	}
	if rec.count("offer_flagged") != 1 {
		t.Fatalf("flag events=%d", rec.count("offer_flagged"))
	}
}

func TestRun_ExpiredByClock(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	exp := now.Add(-time.Second)
	seed(t, s, "o1", lifecycle.StateOpen, func(o *models.OfferState) { o.ExpiresAt = &exp })
	res, err := newEngine(s, &stubVenue{}, &recorder{}, &now).Run(ctx, "m1")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Expired != 1 || res.Orphaned != 0 {
		t.Fatalf("res=%+v want expired=1", res)
	}
}
