package gormrepository

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"greenfloor/internal/lifecycle"
	"greenfloor/internal/models"
	"greenfloor/internal/repository"
)

var offerOrderColumns = map[string]struct{}{
	"created_at": {},
	"updated_at": {},
	"market_id":  {},
	"state":      {},
}

func (s *Store) UpsertOfferState(ctx context.Context, item *models.OfferState) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	item.OfferID = strings.TrimSpace(item.OfferID)
	if item.OfferID == "" {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "offer_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"market_id",
			"side",
			"venue",
			"size_base_units",
			"price_terms",
			"expires_at",
			"state",
			"previous_state",
			"flag",
			"last_seen_status",
			"flag_reason",
			"signature_request_id",
			"cancel_tx_id",
			"tx_ids",
			"coin_ids",
			"emitted_effects",
			"chain_evidence_at",
			"venue_completed_at",
			"updated_at",
		}),
	}).Create(item).Error
}

func (s *Store) GetOfferState(ctx context.Context, offerID string) (*models.OfferState, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	offerID = strings.TrimSpace(offerID)
	if offerID == "" {
		return nil, nil
	}
	var item models.OfferState
	err := s.db.WithContext(ctx).Where("offer_id = ?", offerID).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) offerQuery(ctx context.Context, params repository.ListOfferStatesParams) *gorm.DB {
	query := s.db.WithContext(ctx).Model(&models.OfferState{})
	if v := trimmed(params.MarketID); v != "" {
		query = query.Where("market_id = ?", v)
	}
	if states := cleanStrings(params.States); len(states) > 0 {
		query = query.Where("state IN ?", states)
	}
	if params.Flag != nil {
		query = query.Where("flag = ?", strings.TrimSpace(*params.Flag))
	}
	return query
}

func (s *Store) ListOfferStates(ctx context.Context, params repository.ListOfferStatesParams) ([]models.OfferState, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	orderBy := strings.TrimSpace(params.OrderBy)
	if _, ok := offerOrderColumns[orderBy]; !ok {
		orderBy = ""
	}
	query := applyOrder(s.offerQuery(ctx, params), orderBy, params.Asc, "created_at")
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.OfferState
	if err := query.Order("offer_id asc").Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountOfferStates(ctx context.Context, params repository.ListOfferStatesParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var total int64
	if err := s.offerQuery(ctx, params).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

// ListNonTerminalOffers returns offers reconciliation still has to visit, oldest first.
func (s *Store) ListNonTerminalOffers(ctx context.Context, marketID string, limit int) ([]models.OfferState, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	states := make([]string, 0, len(lifecycle.NonTerminal()))
	for _, st := range lifecycle.NonTerminal() {
		states = append(states, string(st))
	}
	query := s.db.WithContext(ctx).Model(&models.OfferState{}).Where("state IN ?", states)
	if marketID = strings.TrimSpace(marketID); marketID != "" {
		query = query.Where("market_id = ?", marketID)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	var items []models.OfferState
	if err := query.Order("created_at asc").Order("offer_id asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// ApplyOfferTransition locks the row (FOR UPDATE on postgres; sqlite serialises
// writers) for the duration of fn.
func (s *Store) ApplyOfferTransition(ctx context.Context, offerID string, fn func(item *models.OfferState) (bool, error)) (*models.OfferState, error) {
	if s == nil || s.db == nil || fn == nil {
		return nil, nil
	}
	offerID = strings.TrimSpace(offerID)
	if offerID == "" {
		return nil, nil
	}
	var out *models.OfferState
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var item models.OfferState
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("offer_id = ?", offerID).First(&item).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		changed, err := fn(&item)
		if err != nil {
			return err
		}
		if changed {
			item.UpdatedAt = time.Now().UTC()
			if err := tx.Save(&item).Error; err != nil {
				return err
			}
		}
		out = &item
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
