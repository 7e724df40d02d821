package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"greenfloor/internal/models"
)

// OfferRepository is the durable offer table. Rows are never deleted.
type OfferRepository interface {
	UpsertOfferState(ctx context.Context, item *models.OfferState) error
	GetOfferState(ctx context.Context, offerID string) (*models.OfferState, error)
	ListOfferStates(ctx context.Context, params ListOfferStatesParams) ([]models.OfferState, error)
	CountOfferStates(ctx context.Context, params ListOfferStatesParams) (int64, error)
	ListNonTerminalOffers(ctx context.Context, marketID string, limit int) ([]models.OfferState, error)

	// ApplyOfferTransition runs fn on a locked copy of the row and persists it when fn
	// reports a change. The read-modify-write is atomic per offer id.
	ApplyOfferTransition(ctx context.Context, offerID string, fn func(item *models.OfferState) (bool, error)) (*models.OfferState, error)
}

type AuditRepository interface {
	InsertAuditEvent(ctx context.Context, item *models.AuditEvent) error
	ListAuditEvents(ctx context.Context, params ListAuditEventsParams) ([]models.AuditEvent, error)
	CountAuditEvents(ctx context.Context, params ListAuditEventsParams) (int64, error)
}

type LedgerRepository interface {
	InTx(ctx context.Context, fn func(tx *gorm.DB) error) error
	// SumCommittedFeesTx sums executed and reserved fees for one UTC day.
	SumCommittedFeesTx(ctx context.Context, tx *gorm.DB, day string) (int64, error)
	InsertCoinOpLedgerEntriesTx(ctx context.Context, tx *gorm.DB, items []models.CoinOpLedgerEntry) error
	SettleCoinOp(ctx context.Context, operationID string, status string, reason string) error
	FeeLedgerDay(ctx context.Context, day string) (models.FeeLedgerDay, error)
	ListCoinOpLedger(ctx context.Context, params ListCoinOpLedgerParams) ([]models.CoinOpLedgerEntry, error)
}

// TxSignalRepository is written by the ledger listener and read by reconciliation.
type TxSignalRepository interface {
	ObserveMempoolTx(ctx context.Context, txIDs []string, source string, at time.Time) (int64, error)
	ConfirmTxBlock(ctx context.Context, txIDs []string, source string, at time.Time) (int64, error)
	GetTxSignals(ctx context.Context, txIDs []string) (map[string]models.TxSignalState, error)
}

type AlertRepository interface {
	GetAlertState(ctx context.Context, marketID string) (*models.AlertState, error)
	UpsertAlertState(ctx context.Context, item *models.AlertState) error
	GetPriceSnapshot(ctx context.Context, marketID string) (*models.PriceSnapshot, error)
	UpsertPriceSnapshot(ctx context.Context, item *models.PriceSnapshot) error
}

type SettingsRepository interface {
	UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error
	GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error)
	ListSystemSettings(ctx context.Context, params ListSystemSettingsParams) ([]models.SystemSetting, error)
	CountSystemSettings(ctx context.Context, params ListSystemSettingsParams) (int64, error)
}

// Repository is everything the daemon persists.
type Repository interface {
	OfferRepository
	AuditRepository
	LedgerRepository
	TxSignalRepository
	AlertRepository
	SettingsRepository
}

type ListOfferStatesParams struct {
	Limit    int
	Offset   int
	MarketID *string
	States   []string
	Flag     *string
	OrderBy  string
	Asc      *bool
}

type ListAuditEventsParams struct {
	Limit     int
	Offset    int
	EventType *string
	MarketID  *string
	Since     *time.Time
	Until     *time.Time
	Asc       *bool
}

type ListCoinOpLedgerParams struct {
	Limit    int
	Offset   int
	Day      *string
	MarketID *string
	Status   *string
}

type ListSystemSettingsParams struct {
	Limit   int
	Offset  int
	Prefix  *string
	OrderBy string
	Asc     *bool
}
