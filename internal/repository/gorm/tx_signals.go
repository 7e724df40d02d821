package gormrepository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"greenfloor/internal/models"
)

// ObserveMempoolTx records first mempool sightings. An existing mempool timestamp
// is kept; a confirmed row is never downgraded because State() prefers confirmation.
func (s *Store) ObserveMempoolTx(ctx context.Context, txIDs []string, source string, at time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	ids := cleanStrings(txIDs)
	if len(ids) == 0 {
		return 0, nil
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}
	items := make([]models.TxSignalState, 0, len(ids))
	for _, id := range ids {
		ts := at
		items = append(items, models.TxSignalState{TxID: id, MempoolObservedAt: &ts, LastSource: source, UpdatedAt: at})
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tx_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"mempool_observed_at": gorm.Expr("COALESCE(tx_signal_state.mempool_observed_at, excluded.mempool_observed_at)"),
			"last_source":         gorm.Expr("excluded.last_source"),
			"updated_at":          gorm.Expr("excluded.updated_at"),
		}),
	}).Create(&items)
	return res.RowsAffected, res.Error
}

// ConfirmTxBlock sets the confirmation timestamp once. Later confirmations do not move it.
func (s *Store) ConfirmTxBlock(ctx context.Context, txIDs []string, source string, at time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	ids := cleanStrings(txIDs)
	if len(ids) == 0 {
		return 0, nil
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}
	items := make([]models.TxSignalState, 0, len(ids))
	for _, id := range ids {
		ts := at
		items = append(items, models.TxSignalState{TxID: id, BlockConfirmedAt: &ts, LastSource: source, UpdatedAt: at})
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tx_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"block_confirmed_at": gorm.Expr("COALESCE(tx_signal_state.block_confirmed_at, excluded.block_confirmed_at)"),
			"last_source":        gorm.Expr("excluded.last_source"),
			"updated_at":         gorm.Expr("excluded.updated_at"),
		}),
	}).Create(&items)
	return res.RowsAffected, res.Error
}

func (s *Store) GetTxSignals(ctx context.Context, txIDs []string) (map[string]models.TxSignalState, error) {
	out := map[string]models.TxSignalState{}
	if s == nil || s.db == nil {
		return out, nil
	}
	ids := cleanStrings(txIDs)
	if len(ids) == 0 {
		return out, nil
	}
	var items []models.TxSignalState
	if err := s.db.WithContext(ctx).Where("tx_id IN ?", ids).Find(&items).Error; err != nil {
		return nil, err
	}
	for _, item := range items {
		out[item.TxID] = item
	}
	return out, nil
}
