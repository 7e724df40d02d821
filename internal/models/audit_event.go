package models

import (
	"time"

	"gorm.io/datatypes"
)

// AuditEvent is append-only; rows are never updated.
type AuditEvent struct {
	ID        uint64         `gorm:"primaryKey;autoIncrement"`
	EventType string         `gorm:"type:varchar(80);not null;index"`
	MarketID  string         `gorm:"type:varchar(120);index"`
	Payload   datatypes.JSON `gorm:"not null"`
	CreatedAt time.Time      `gorm:"autoCreateTime;index"`
}

func (AuditEvent) TableName() string {
	return "audit_event"
}
