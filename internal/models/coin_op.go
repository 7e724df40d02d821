package models

import "time"

const (
	CoinOpSplit   = "split"
	CoinOpCombine = "combine"

	CoinOpStatusExecuted = "executed"
	CoinOpStatusPlanned  = "planned"
	CoinOpStatusSkipped  = "skipped"

	// CoinOpStatusReserved holds budget for an admitted op until it settles
	// as executed or skipped.
	CoinOpStatusReserved = "reserved"
)

// CoinOpPlan is one proposed split or combine. It is never persisted; only its outcome is.
type CoinOpPlan struct {
	OpType   string `json:"op_type"`
	MarketID string `json:"market_id"`
	Side     string `json:"side"`
	AssetID  string `json:"asset_id"`

	// AmountPerCoin is the split output size; TargetCoinCount is the combine output count.
	AmountPerCoin   int64 `json:"amount_per_coin,omitempty"`
	TargetCoinCount int   `json:"target_coin_count,omitempty"`
	NumberOfCoins   int   `json:"number_of_coins"`

	// OpCount is the number of fee-bearing units (output coins for a split, one per combine).
	OpCount           int    `json:"op_count"`
	Priority          int    `json:"priority"`
	EstimatedFeeMojos int64  `json:"estimated_fee_mojos"`
	Reason            string `json:"reason"`
}

// FeePerOp returns the per-unit fee, used when a plan is admitted partially.
func (p CoinOpPlan) FeePerOp() int64 {
	if p.OpCount <= 0 {
		return p.EstimatedFeeMojos
	}
	return p.EstimatedFeeMojos / int64(p.OpCount)
}

type CoinOpLedgerEntry struct {
	ID          uint64    `gorm:"primaryKey;autoIncrement"`
	Day         string    `gorm:"type:varchar(10);not null;index"`
	MarketID    string    `gorm:"type:varchar(120);not null;index"`
	OpType      string    `gorm:"type:varchar(16);not null"`
	OpCount     int       `gorm:"not null;default:0"`
	FeeMojos    int64     `gorm:"not null;default:0"`
	Status      string    `gorm:"type:varchar(16);not null;index"`
	Reason      string    `gorm:"type:varchar(160)"`
	OperationID string    `gorm:"type:varchar(64);index"`
	CreatedAt   time.Time `gorm:"autoCreateTime;index"`
}

func (CoinOpLedgerEntry) TableName() string {
	return "coin_op_ledger"
}

// FeeLedgerDay is the per-day view over coin_op_ledger.
type FeeLedgerDay struct {
	Date                  string `json:"date"`
	SpentMojos            int64  `json:"spent_mojos"`
	ReservedMojos         int64  `json:"reserved_mojos"`
	CapMojos              int64  `json:"cap_mojos"`
	RemainingMojos        int64  `json:"remaining_mojos"`
	ExecutedCount         int64  `json:"executed_count"`
	PlannedCount          int64  `json:"planned_count"`
	ReservedCount         int64  `json:"reserved_count"`
	SkippedCount          int64  `json:"skipped_count"`
	FeeBudgetSkippedCount int64  `json:"fee_budget_skipped_count"`
}
