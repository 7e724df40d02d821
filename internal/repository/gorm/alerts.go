package gormrepository

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"greenfloor/internal/models"
)

func (s *Store) GetAlertState(ctx context.Context, marketID string) (*models.AlertState, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	marketID = strings.TrimSpace(marketID)
	if marketID == "" {
		return nil, nil
	}
	var item models.AlertState
	err := s.db.WithContext(ctx).Where("market_id = ?", marketID).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) UpsertAlertState(ctx context.Context, item *models.AlertState) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	item.MarketID = strings.TrimSpace(item.MarketID)
	if item.MarketID == "" {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "market_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"is_low", "last_alert_at", "updated_at"}),
	}).Create(item).Error
}

func (s *Store) GetPriceSnapshot(ctx context.Context, marketID string) (*models.PriceSnapshot, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	marketID = strings.TrimSpace(marketID)
	if marketID == "" {
		return nil, nil
	}
	var item models.PriceSnapshot
	err := s.db.WithContext(ctx).Where("market_id = ?", marketID).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) UpsertPriceSnapshot(ctx context.Context, item *models.PriceSnapshot) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	item.MarketID = strings.TrimSpace(item.MarketID)
	if item.MarketID == "" {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "market_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"price_usd", "source", "observed_at"}),
	}).Create(item).Error
}
