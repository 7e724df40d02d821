package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type AlertState struct {
	MarketID    string `gorm:"primaryKey;type:varchar(120)"`
	IsLow       bool   `gorm:"not null;default:false"`
	LastAlertAt *time.Time
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
}

func (AlertState) TableName() string {
	return "alert_state"
}

// PriceSnapshot keeps the last reference price per market for the cancel policy.
type PriceSnapshot struct {
	MarketID   string          `gorm:"primaryKey;type:varchar(120)"`
	PriceUSD   decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	Source     string          `gorm:"type:varchar(40)"`
	ObservedAt time.Time       `gorm:"not null"`
}

func (PriceSnapshot) TableName() string {
	return "price_snapshot"
}
