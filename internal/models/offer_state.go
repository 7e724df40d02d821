package models

import (
	"encoding/json"
	"sort"
	"time"

	"gorm.io/datatypes"
)

// OfferState is the durable record of one posted offer.
type OfferState struct {
	OfferID  string `gorm:"primaryKey;type:varchar(128)"`
	MarketID string `gorm:"type:varchar(120);not null;index"`
	Side     string `gorm:"type:varchar(8);not null"`
	Venue    string `gorm:"type:varchar(20);not null"`

	SizeBaseUnits int64 `gorm:"not null;default:0"`
	PriceTerms    datatypes.JSON
	ExpiresAt     *time.Time

	State          string `gorm:"type:varchar(20);not null;index"`
	PreviousState  string `gorm:"type:varchar(20)"`
	Flag           string `gorm:"type:varchar(20);index"`
	LastSeenStatus *int
	FlagReason     string `gorm:"type:varchar(120)"`

	SignatureRequestID string `gorm:"type:varchar(128)"`
	CancelTxID         string `gorm:"type:varchar(128)"`
	TxIDs              datatypes.JSON
	// CoinIDs are the coins the signer spent into the offer; they stay locked
	// until the offer is terminal.
	CoinIDs            datatypes.JSON
	EmittedEffects     datatypes.JSON

	ChainEvidenceAt  *time.Time
	VenueCompletedAt *time.Time

	CreatedAt time.Time `gorm:"autoCreateTime;index"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (OfferState) TableName() string {
	return "offer_state"
}

func (o *OfferState) TxIDList() []string {
	return decodeStringSet(o.TxIDs)
}

// AddTxIDs merges ids into the offer and reports whether anything changed.
func (o *OfferState) AddTxIDs(ids ...string) bool {
	merged, changed := mergeStringSet(decodeStringSet(o.TxIDs), ids)
	if changed {
		o.TxIDs = encodeStringSet(merged)
	}
	return changed
}

func (o *OfferState) CoinIDList() []string {
	return decodeStringSet(o.CoinIDs)
}

func (o *OfferState) SetCoinIDs(ids []string) {
	merged, _ := mergeStringSet(nil, ids)
	if len(merged) == 0 {
		o.CoinIDs = nil
		return
	}
	o.CoinIDs = encodeStringSet(merged)
}

func (o *OfferState) EmittedList() []string {
	return decodeStringSet(o.EmittedEffects)
}

func (o *OfferState) HasEmitted(key string) bool {
	for _, k := range decodeStringSet(o.EmittedEffects) {
		if k == key {
			return true
		}
	}
	return false
}

func (o *OfferState) MarkEmitted(key string) {
	merged, changed := mergeStringSet(decodeStringSet(o.EmittedEffects), []string{key})
	if changed {
		o.EmittedEffects = encodeStringSet(merged)
	}
}

func decodeStringSet(raw datatypes.JSON) []string {
	if len(raw) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

func encodeStringSet(items []string) datatypes.JSON {
	raw, _ := json.Marshal(items)
	return datatypes.JSON(raw)
}

func mergeStringSet(current []string, add []string) ([]string, bool) {
	seen := make(map[string]struct{}, len(current)+len(add))
	for _, v := range current {
		seen[v] = struct{}{}
	}
	changed := false
	for _, v := range add {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		changed = true
	}
	if !changed {
		return current, false
	}
	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out, true
}
