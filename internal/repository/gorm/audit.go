package gormrepository

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"greenfloor/internal/models"
	"greenfloor/internal/repository"
)

func (s *Store) InsertAuditEvent(ctx context.Context, item *models.AuditEvent) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	item.EventType = strings.TrimSpace(item.EventType)
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) auditQuery(ctx context.Context, params repository.ListAuditEventsParams) *gorm.DB {
	query := s.db.WithContext(ctx).Model(&models.AuditEvent{})
	if v := trimmed(params.EventType); v != "" {
		query = query.Where("event_type = ?", v)
	}
	if v := trimmed(params.MarketID); v != "" {
		query = query.Where("market_id = ?", v)
	}
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("created_at >= ?", *params.Since)
	}
	if params.Until != nil && !params.Until.IsZero() {
		query = query.Where("created_at < ?", *params.Until)
	}
	return query
}

func (s *Store) ListAuditEvents(ctx context.Context, params repository.ListAuditEventsParams) ([]models.AuditEvent, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	direction := "desc"
	if params.Asc != nil && *params.Asc {
		direction = "asc"
	}
	query := s.auditQuery(ctx, params).Order("created_at " + direction).Order("id " + direction)
	limit := normalizeLimit(params.Limit, 100)
	offset := normalizeOffset(params.Offset)
	var items []models.AuditEvent
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountAuditEvents(ctx context.Context, params repository.ListAuditEventsParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var total int64
	if err := s.auditQuery(ctx, params).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}
