package feebudget

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"greenfloor/internal/config"
	"greenfloor/internal/db"
	"greenfloor/internal/models"
	gormrepository "greenfloor/internal/repository/gorm"
)

func newLedger(t *testing.T, cap int64) *Ledger {
	t.Helper()
	handle, err := db.Open(config.DBConfig{Driver: db.DriverSQLite, DSN: filepath.Join(t.TempDir(), "ledger.db")})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close(handle) })
	if err := db.AutoMigrate(handle); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	now := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	return &Ledger{Repo: gormrepository.New(handle.Gorm), CapMojos: cap, Now: func() time.Time { return now }}
}

func TestLedgerAdmitReservesBudget(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, 100)

	first, err := l.Admit(ctx, "m1", []models.CoinOpPlan{combine(60, 0)}, false)
	if err != nil || len(first.Admitted) != 1 {
		t.Fatalf("first=%+v err=%v", first, err)
	}
	// reserved budget counts even before execution settles
	second, err := l.Admit(ctx, "m1", []models.CoinOpPlan{combine(60, 0)}, false)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if len(second.Admitted) != 0 || len(second.Skipped) != 1 || second.SpentBefore != 60 {
		t.Fatalf("second=%+v", second)
	}

	if err := l.RecordFailed(ctx, first.Admitted[0].OperationID, "push_failed"); err != nil {
		t.Fatalf("fail: %v", err)
	}
	third, err := l.Admit(ctx, "m1", []models.CoinOpPlan{combine(60, 0)}, false)
	if err != nil || len(third.Admitted) != 1 {
		t.Fatalf("third=%+v err=%v", third, err)
	}
	if err := l.RecordExecuted(ctx, third.Admitted[0].OperationID); err != nil {
		t.Fatalf("executed: %v", err)
	}

	report, err := l.Report(ctx)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if report.SpentMojos != 60 || report.ExecutedCount != 1 || report.RemainingMojos != 40 || report.FeeBudgetSkippedCount != 1 {
		t.Fatalf("report=%+v", report)
	}
	if report.SkippedCount != 2 {
		t.Fatalf("skipped=%d want=2", report.SkippedCount)
	}
}

func TestLedgerConcurrentAdmitRespectsCap(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, 100)
	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := l.Admit(ctx, "m1", []models.CoinOpPlan{combine(30, 0)}, false)
			if err != nil {
				t.Errorf("admit: %v", err)
				return
			}
			for _, op := range res.Admitted {
				if err := l.RecordExecuted(ctx, op.OperationID); err != nil {
					t.Errorf("executed: %v", err)
				}
			}
			mu.Lock()
			admitted += len(res.Admitted)
			mu.Unlock()
		}()
	}
	wg.Wait()
	if admitted != 3 {
		t.Fatalf("admitted=%d want=3", admitted)
	}
	spent, err := l.SpentToday(ctx)
	if err != nil || spent != 90 {
		t.Fatalf("spent=%d err=%v want=90", spent, err)
	}
}

func TestLedgerDryRunHoldsNoBudget(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, 50)
	for i := 0; i < 3; i++ {
		res, err := l.Admit(ctx, "m1", []models.CoinOpPlan{combine(40, 0)}, true)
		if err != nil || len(res.Admitted) != 1 {
			t.Fatalf("dry run %d res=%+v err=%v", i, res, err)
		}
	}
	report, err := l.Report(ctx)
	if err != nil || report.PlannedCount != 3 || report.SpentMojos != 0 {
		t.Fatalf("report=%+v err=%v", report, err)
	}
}
