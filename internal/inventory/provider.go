package inventory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"greenfloor/internal/client/coinset"
	"greenfloor/internal/coinops"
	"greenfloor/internal/config"
	"greenfloor/internal/models"
	"greenfloor/internal/strategy"
)

// Coin states outside the spendable allow-list.
const (
	CoinStateSpent       = "spent"
	CoinStateUnconfirmed = "unconfirmed"
	CoinStateLocked      = "locked"
)

type CoinLister interface {
	GetCoinRecordsByPuzzleHash(ctx context.Context, puzzleHash string, includeSpent bool) ([]coinset.CoinRecord, error)
}

// Provider lists a market's coins from the ledger and buckets them by size.
type Provider struct {
	Ledger CoinLister
	// Locked returns coin ids held by offers still in flight.
	Locked func(ctx context.Context, marketID string) (map[string]struct{}, error)
}

// OfferLister is the slice of the offer store LockedByOffers reads.
type OfferLister interface {
	ListNonTerminalOffers(ctx context.Context, marketID string, limit int) ([]models.OfferState, error)
}

// LockedByOffers reports the coins spent into offers that are not terminal yet.
func LockedByOffers(offers OfferLister) func(ctx context.Context, marketID string) (map[string]struct{}, error) {
	return func(ctx context.Context, marketID string) (map[string]struct{}, error) {
		items, err := offers.ListNonTerminalOffers(ctx, marketID, 0)
		if err != nil {
			return nil, err
		}
		out := make(map[string]struct{})
		for _, o := range items {
			for _, id := range o.CoinIDList() {
				id = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(id), "0x"))
				out[id] = struct{}{}
			}
		}
		return out, nil
	}
}

type Snapshot struct {
	MarketID  string
	Coins     []coinops.Coin
	Buckets   map[int64]int
	Spendable int64
}

func (p *Provider) Snapshot(ctx context.Context, m config.MarketConfig) (Snapshot, error) {
	snap := Snapshot{MarketID: m.ID, Buckets: map[int64]int{}}
	ph := strings.TrimSpace(m.PuzzleHash)
	if p == nil || p.Ledger == nil || ph == "" {
		return snap, fmt.Errorf("market %s: no ledger or puzzle hash for inventory", m.ID)
	}
	records, err := p.Ledger.GetCoinRecordsByPuzzleHash(ctx, ph, false)
	if err != nil {
		return snap, err
	}
	var locked map[string]struct{}
	if p.Locked != nil {
		if locked, err = p.Locked(ctx, m.ID); err != nil {
			return snap, err
		}
	}
	mult := strategy.MultiplierOr(m, "base_unit_mojo_multiplier", 1000)

	ladder := map[int64]struct{}{}
	for _, entries := range m.Ladders {
		for _, e := range entries {
			ladder[e.SizeBaseUnits] = struct{}{}
			snap.Buckets[e.SizeBaseUnits] = 0
		}
	}
	for _, rec := range records {
		id := rec.Coin.ID()
		mojos := int64(rec.Coin.Amount)
		coin := coinops.Coin{ID: id, Amount: mojos / mult, Remainder: mojos % mult, State: coinState(rec, locked, id)}
		snap.Coins = append(snap.Coins, coin)
		if coin.State != coinops.CoinStateSpendable {
			continue
		}
		snap.Spendable += coin.Amount
		if _, ok := ladder[coin.Amount]; ok && coin.Remainder == 0 {
			snap.Buckets[coin.Amount]++
		}
	}
	sort.Slice(snap.Coins, func(i, j int) bool {
		if snap.Coins[i].Amount != snap.Coins[j].Amount {
			return snap.Coins[i].Amount > snap.Coins[j].Amount
		}
		return snap.Coins[i].ID < snap.Coins[j].ID
	})
	return snap, nil
}

func coinState(rec coinset.CoinRecord, locked map[string]struct{}, id string) string {
	switch {
	case rec.Spent:
		return CoinStateSpent
	case rec.ConfirmedBlockIndex <= 0:
		return CoinStateUnconfirmed
	}
	if _, ok := locked[id]; ok {
		return CoinStateLocked
	}
	return coinops.CoinStateSpendable
}

// SideInventory shapes a snapshot for the ladder planner.
func (s Snapshot) SideInventory(m config.MarketConfig, side string) coinops.SideInventory {
	asset := m.BaseAsset
	if side == config.SideBuy {
		asset = m.QuoteAsset
	}
	return coinops.SideInventory{
		Side:    side,
		AssetID: asset,
		Coins:   s.Coins,
		Rungs:   coinops.RungsFromConfig(m.Ladders[side]),
	}
}
