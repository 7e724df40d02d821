package feebudget

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"greenfloor/internal/models"
	"greenfloor/internal/repository"
)

const ReasonDryRun = "dry_run"

type Ledger struct {
	Repo     repository.LedgerRepository
	Logger   *zap.Logger
	CapMojos int64
	Now      func() time.Time

	// mu serialises admission within the process; the transaction covers the rest.
	mu sync.Mutex
}

type AdmittedOp struct {
	Plan        models.CoinOpPlan
	OperationID string
}

type Admission struct {
	Day         string
	SpentBefore int64
	Admitted    []AdmittedOp
	Skipped     []Skipped
}

func Day(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func (l *Ledger) now() time.Time {
	if l.Now != nil {
		return l.Now().UTC()
	}
	return time.Now().UTC()
}

// Admit reads the day's committed spend, partitions plans against the cap and
// writes reserved and skipped rows in one transaction. Reserved rows hold budget
// until RecordExecuted or RecordFailed settles them. In dry-run admitted plans are
// written as planned and hold no budget.
func (l *Ledger) Admit(ctx context.Context, marketID string, plans []models.CoinOpPlan, dryRun bool) (Admission, error) {
	day := Day(l.now())
	out := Admission{Day: day}
	if len(plans) == 0 {
		return out, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	err := l.Repo.InTx(ctx, func(tx *gorm.DB) error {
		spent, err := l.Repo.SumCommittedFeesTx(ctx, tx, day)
		if err != nil {
			return err
		}
		out.SpentBefore = spent
		part := Partition(plans, spent, l.CapMojos)

		rows := make([]models.CoinOpLedgerEntry, 0, len(part.Admitted)+len(part.Skipped))
		for _, p := range part.Admitted {
			op := AdmittedOp{Plan: p, OperationID: uuid.NewString()}
			out.Admitted = append(out.Admitted, op)
			status, reason := models.CoinOpStatusReserved, p.Reason
			if dryRun {
				status, reason = models.CoinOpStatusPlanned, ReasonDryRun
			}
			rows = append(rows, ledgerRow(day, marketID, p, status, reason, op.OperationID))
		}
		for _, s := range part.Skipped {
			out.Skipped = append(out.Skipped, s)
			rows = append(rows, ledgerRow(day, marketID, s.Plan, models.CoinOpStatusSkipped, s.Reason, ""))
		}
		return l.Repo.InsertCoinOpLedgerEntriesTx(ctx, tx, rows)
	})
	if err != nil {
		return Admission{Day: day}, err
	}
	if l.Logger != nil && len(out.Skipped) > 0 {
		l.Logger.Info("coin ops skipped by fee budget",
			zap.String("market_id", marketID),
			zap.Int("admitted", len(out.Admitted)),
			zap.Int("skipped", len(out.Skipped)),
			zap.Int64("spent_mojos", out.SpentBefore),
			zap.Int64("cap_mojos", l.CapMojos),
		)
	}
	return out, nil
}

func ledgerRow(day, marketID string, p models.CoinOpPlan, status, reason, opID string) models.CoinOpLedgerEntry {
	if marketID == "" {
		marketID = p.MarketID
	}
	return models.CoinOpLedgerEntry{
		Day:         day,
		MarketID:    marketID,
		OpType:      p.OpType,
		OpCount:     p.OpCount,
		FeeMojos:    p.EstimatedFeeMojos,
		Status:      status,
		Reason:      reason,
		OperationID: opID,
	}
}

func (l *Ledger) RecordExecuted(ctx context.Context, operationID string) error {
	return l.Repo.SettleCoinOp(ctx, operationID, models.CoinOpStatusExecuted, "")
}

// RecordFailed releases the reservation; the row stays as skipped with the failure reason.
func (l *Ledger) RecordFailed(ctx context.Context, operationID string, reason string) error {
	if reason == "" {
		reason = "operation_failed"
	}
	return l.Repo.SettleCoinOp(ctx, operationID, models.CoinOpStatusSkipped, reason)
}

func (l *Ledger) SpentToday(ctx context.Context) (int64, error) {
	day, err := l.Repo.FeeLedgerDay(ctx, Day(l.now()))
	if err != nil {
		return 0, err
	}
	return day.SpentMojos, nil
}

func (l *Ledger) Report(ctx context.Context) (models.FeeLedgerDay, error) {
	day, err := l.Repo.FeeLedgerDay(ctx, Day(l.now()))
	if err != nil {
		return day, err
	}
	day.CapMojos = l.CapMojos
	if l.CapMojos > 0 {
		day.RemainingMojos = l.CapMojos - day.SpentMojos - day.ReservedMojos
		if day.RemainingMojos < 0 {
			day.RemainingMojos = 0
		}
	} else {
		day.RemainingMojos = -1
	}
	return day, nil
}
