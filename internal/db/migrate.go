package db

import (
	"greenfloor/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}

	return db.Gorm.AutoMigrate(
		&models.OfferState{},
		&models.AuditEvent{},
		&models.CoinOpLedgerEntry{},
		&models.TxSignalState{},
		&models.AlertState{},
		&models.PriceSnapshot{},
		&models.SystemSetting{},
	)
}
