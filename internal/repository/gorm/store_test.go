package gormrepository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"greenfloor/internal/models"
	"greenfloor/internal/repository"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "store.db") + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := gdb.AutoMigrate(
		&models.OfferState{},
		&models.AuditEvent{},
		&models.CoinOpLedgerEntry{},
		&models.TxSignalState{},
		&models.AlertState{},
		&models.PriceSnapshot{},
		&models.SystemSetting{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return New(gdb)
}

func TestTxSignalsAreMonotonic(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	t0 := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	if _, err := s.ObserveMempoolTx(ctx, []string{"aa", "bb"}, "ws", t0); err != nil {
		t.Fatalf("observe: %v", err)
	}
	if _, err := s.ConfirmTxBlock(ctx, []string{"aa"}, "ws", t0.Add(time.Minute)); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	// A late mempool sighting must not downgrade, a second confirm must not move the time.
	if _, err := s.ObserveMempoolTx(ctx, []string{"aa"}, "poll", t0.Add(2*time.Minute)); err != nil {
		t.Fatalf("observe again: %v", err)
	}
	if _, err := s.ConfirmTxBlock(ctx, []string{"aa"}, "webhook", t0.Add(3*time.Minute)); err != nil {
		t.Fatalf("confirm again: %v", err)
	}

	got, err := s.GetTxSignals(ctx, []string{"aa", "bb", "cc"})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len=%d want=2", len(got))
	}
	aa := got["aa"]
	if aa.State() != models.TxStateBlockConfirmed {
		t.Fatalf("aa state=%s", aa.State())
	}
	if !aa.BlockConfirmedAt.Equal(t0.Add(time.Minute)) {
		t.Fatalf("confirmed_at=%v want=%v", aa.BlockConfirmedAt, t0.Add(time.Minute))
	}
	if !aa.MempoolObservedAt.Equal(t0) {
		t.Fatalf("mempool_at=%v want=%v", aa.MempoolObservedAt, t0)
	}
	if got["bb"].State() != models.TxStateMempoolObserved {
		t.Fatalf("bb state=%s", got["bb"].State())
	}
}

func TestApplyOfferTransition(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	if err := s.UpsertOfferState(ctx, &models.OfferState{OfferID: "o1", MarketID: "m1", Side: "sell", Venue: "dexie", State: "open"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	item, err := s.ApplyOfferTransition(ctx, "o1", func(item *models.OfferState) (bool, error) {
		item.PreviousState = item.State
		item.State = "pending"
		item.AddTxIDs("ff")
		return true, nil
	})
	if err != nil || item == nil {
		t.Fatalf("apply item=%v err=%v", item, err)
	}
	stored, err := s.GetOfferState(ctx, "o1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.State != "pending" || stored.PreviousState != "open" {
		t.Fatalf("state=%s prev=%s", stored.State, stored.PreviousState)
	}
	if ids := stored.TxIDList(); len(ids) != 1 || ids[0] != "ff" {
		t.Fatalf("tx_ids=%v", ids)
	}

	missing, err := s.ApplyOfferTransition(ctx, "nope", func(*models.OfferState) (bool, error) { return true, nil })
	if err != nil || missing != nil {
		t.Fatalf("missing=%v err=%v", missing, err)
	}
}

func TestListNonTerminalOffers(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	for _, o := range []models.OfferState{
		{OfferID: "a", MarketID: "m1", Side: "sell", Venue: "dexie", State: "open"},
		{OfferID: "b", MarketID: "m1", Side: "sell", Venue: "dexie", State: "completed"},
		{OfferID: "c", MarketID: "m1", Side: "buy", Venue: "dexie", State: "orphaned"},
		{OfferID: "d", MarketID: "m2", Side: "sell", Venue: "dexie", State: "pending"},
	} {
		o := o
		if err := s.UpsertOfferState(ctx, &o); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}
	items, err := s.ListNonTerminalOffers(ctx, "m1", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("len=%d want=2", len(items))
	}
	market := "m1"
	total, err := s.CountOfferStates(ctx, repository.ListOfferStatesParams{MarketID: &market})
	if err != nil || total != 3 {
		t.Fatalf("total=%d err=%v want=3", total, err)
	}
}

func TestLedgerDay(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	day := "2026-01-02"
	err := s.InTx(ctx, func(tx *gorm.DB) error {
		return s.InsertCoinOpLedgerEntriesTx(ctx, tx, []models.CoinOpLedgerEntry{
			{Day: day, MarketID: "m1", OpType: "split", OpCount: 2, FeeMojos: 20, Status: models.CoinOpStatusReserved, OperationID: "op1"},
			{Day: day, MarketID: "m1", OpType: "split", OpCount: 1, FeeMojos: 10, Status: models.CoinOpStatusSkipped, Reason: "fee_budget_exceeded"},
			{Day: day, MarketID: "m1", OpType: "combine", OpCount: 1, FeeMojos: 5, Status: models.CoinOpStatusPlanned, Reason: "dry_run"},
		})
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	committed, err := s.SumCommittedFeesTx(ctx, nil, day)
	if err != nil || committed != 20 {
		t.Fatalf("committed=%d err=%v want=20", committed, err)
	}
	if err := s.SettleCoinOp(ctx, "op1", models.CoinOpStatusExecuted, ""); err != nil {
		t.Fatalf("settle: %v", err)
	}
	// settled rows do not move again
	if err := s.SettleCoinOp(ctx, "op1", models.CoinOpStatusSkipped, "late"); err != nil {
		t.Fatalf("settle again: %v", err)
	}
	report, err := s.FeeLedgerDay(ctx, day)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if report.SpentMojos != 20 || report.ExecutedCount != 1 || report.SkippedCount != 1 || report.PlannedCount != 1 || report.FeeBudgetSkippedCount != 1 {
		t.Fatalf("report=%+v", report)
	}
}

func TestAuditEventsNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	for _, et := range []string{"a", "b", "c"} {
		if err := s.InsertAuditEvent(ctx, &models.AuditEvent{EventType: et, MarketID: "m1", Payload: []byte(`{}`)}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	items, err := s.ListAuditEvents(ctx, repository.ListAuditEventsParams{Limit: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 2 || items[0].EventType != "c" {
		t.Fatalf("items=%v", items)
	}
}
