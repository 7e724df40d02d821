package gormrepository

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"greenfloor/internal/models"
	"greenfloor/internal/repository"
)

// Skip reasons that count toward fee_budget_skipped_count.
var feeBudgetSkipReasons = []string{"fee_budget_exceeded", "fee_budget_partial_overflow"}

func (s *Store) SumCommittedFeesTx(ctx context.Context, tx *gorm.DB, day string) (int64, error) {
	if tx == nil {
		if s == nil || s.db == nil {
			return 0, nil
		}
		tx = s.db
	}
	var total int64
	err := tx.WithContext(ctx).Model(&models.CoinOpLedgerEntry{}).
		Where("day = ?", day).
		Where("status IN ?", []string{models.CoinOpStatusExecuted, models.CoinOpStatusReserved}).
		Select("COALESCE(SUM(fee_mojos), 0)").
		Scan(&total).Error
	return total, err
}

func (s *Store) InsertCoinOpLedgerEntriesTx(ctx context.Context, tx *gorm.DB, items []models.CoinOpLedgerEntry) error {
	if len(items) == 0 {
		return nil
	}
	if tx == nil {
		if s == nil || s.db == nil {
			return nil
		}
		tx = s.db
	}
	return tx.WithContext(ctx).Create(&items).Error
}

// SettleCoinOp moves a reserved row to its final status. Settled rows are left alone.
func (s *Store) SettleCoinOp(ctx context.Context, operationID string, status string, reason string) error {
	if s == nil || s.db == nil {
		return nil
	}
	operationID = strings.TrimSpace(operationID)
	if operationID == "" {
		return nil
	}
	return s.db.WithContext(ctx).Model(&models.CoinOpLedgerEntry{}).
		Where("operation_id = ? AND status = ?", operationID, models.CoinOpStatusReserved).
		Updates(map[string]any{"status": status, "reason": reason}).Error
}

type ledgerGroupRow struct {
	Status string
	Reason string
	N      int64
	Fees   int64
}

func (s *Store) FeeLedgerDay(ctx context.Context, day string) (models.FeeLedgerDay, error) {
	out := models.FeeLedgerDay{Date: day}
	if s == nil || s.db == nil {
		return out, nil
	}
	var rows []ledgerGroupRow
	err := s.db.WithContext(ctx).Model(&models.CoinOpLedgerEntry{}).
		Select("status, reason, COUNT(*) AS n, COALESCE(SUM(fee_mojos), 0) AS fees").
		Where("day = ?", day).
		Group("status, reason").
		Scan(&rows).Error
	if err != nil {
		return out, err
	}
	for _, r := range rows {
		switch r.Status {
		case models.CoinOpStatusExecuted:
			out.ExecutedCount += r.N
			out.SpentMojos += r.Fees
		case models.CoinOpStatusReserved:
			out.ReservedCount += r.N
			out.ReservedMojos += r.Fees
		case models.CoinOpStatusPlanned:
			out.PlannedCount += r.N
		case models.CoinOpStatusSkipped:
			out.SkippedCount += r.N
			for _, reason := range feeBudgetSkipReasons {
				if r.Reason == reason {
					out.FeeBudgetSkippedCount += r.N
				}
			}
		}
	}
	return out, nil
}

func (s *Store) ListCoinOpLedger(ctx context.Context, params repository.ListCoinOpLedgerParams) ([]models.CoinOpLedgerEntry, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.CoinOpLedgerEntry{})
	if v := trimmed(params.Day); v != "" {
		query = query.Where("day = ?", v)
	}
	if v := trimmed(params.MarketID); v != "" {
		query = query.Where("market_id = ?", v)
	}
	if v := trimmed(params.Status); v != "" {
		query = query.Where("status = ?", v)
	}
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.CoinOpLedgerEntry
	if err := query.Order("id desc").Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}
