package models

import "time"

const (
	TxStateNone            = ""
	TxStateMempoolObserved = "mempool_observed"
	TxStateBlockConfirmed  = "block_confirmed"
)

type TxSignalState struct {
	TxID              string `gorm:"primaryKey;type:varchar(128)"`
	MempoolObservedAt *time.Time
	BlockConfirmedAt  *time.Time
	LastSource        string    `gorm:"type:varchar(40)"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime"`
}

func (TxSignalState) TableName() string {
	return "tx_signal_state"
}

// State derives the strongest observed evidence; confirmation always wins.
func (t TxSignalState) State() string {
	if t.BlockConfirmedAt != nil {
		return TxStateBlockConfirmed
	}
	if t.MempoolObservedAt != nil {
		return TxStateMempoolObserved
	}
	return TxStateNone
}
