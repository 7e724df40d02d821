package coinops

import (
	"math"
	"sort"

	"greenfloor/internal/config"
	"greenfloor/internal/models"
)

// CoinStateSpendable is the only coin state eligible as an operation input.
const CoinStateSpendable = "spendable"

// Plan-level reasons.
const (
	ReasonSplitDeficit      = "split_deficit"
	ReasonCombineExcess     = "combine_excess"
	ReasonMaxOperations     = "max_operations_per_run"
	ReasonDeferredForSplits = "combine_deferred_for_splits"
)

type Coin struct {
	ID        string
	Amount    int64
	// Remainder is the mojo amount beyond whole base units. Such a coin never
	// fills a ladder bucket and only serves as a split source.
	Remainder int64
	State     string
}

type Rung struct {
	SizeBaseUnits           int64
	TargetCount             int
	SplitBufferCount        int
	CombineWhenExcessFactor float64
}

// SideInventory is a snapshot of one asset's spendable coins for one ladder side.
type SideInventory struct {
	Side    string
	AssetID string
	Coins   []Coin
	Rungs   []Rung
}

type PlanInput struct {
	MarketID            string
	Sides               []SideInventory
	MaxOperationsPerRun int
	SplitFeeMojos       int64
	CombineFeeMojos     int64
}

type Deferred struct {
	Plan   models.CoinOpPlan
	Reason string
}

type Result struct {
	Plans    []models.CoinOpPlan
	Deferred []Deferred
}

func RungsFromConfig(entries []config.LadderEntry) []Rung {
	out := make([]Rung, 0, len(entries))
	for _, e := range entries {
		out = append(out, Rung{
			SizeBaseUnits:           e.SizeBaseUnits,
			TargetCount:             e.TargetCount,
			SplitBufferCount:        e.SplitBufferCount,
			CombineWhenExcessFactor: e.CombineWhenExcessFactor,
		})
	}
	return out
}

// CombineThreshold is ceil(target*factor) with a floor of 2.
func CombineThreshold(target int, factor float64) int {
	if factor <= 0 {
		factor = 2.0
	}
	th := int(math.Ceil(float64(target) * factor))
	if th < 2 {
		th = 2
	}
	return th
}

// Spendable filters coins by the allow-listed state; anything else is ignored.
func Spendable(coins []Coin) []Coin {
	out := make([]Coin, 0, len(coins))
	for _, c := range coins {
		if c.State == CoinStateSpendable && c.Amount > 0 {
			out = append(out, c)
		}
	}
	return out
}

type candidate struct {
	plan    models.CoinOpPlan
	sideIdx int
	deficit int
	target  int
}

// Plan is deterministic: identical input always yields an identical result.
func Plan(in PlanInput) Result {
	sides := orderedSides(in.Sides)
	var splits, combines []candidate
	for idx, side := range sides {
		var sideSplits []candidate
		coins := Spendable(side.Coins)
		ladderSizes := make(map[int64]struct{}, len(side.Rungs))
		for _, r := range side.Rungs {
			ladderSizes[r.SizeBaseUnits] = struct{}{}
		}
		counts := make(map[int64]int)
		var sources []int64
		for _, c := range coins {
			if _, ok := ladderSizes[c.Amount]; ok && c.Remainder == 0 {
				counts[c.Amount]++
				continue
			}
			sources = append(sources, c.Amount)
		}
		sort.Slice(sources, func(i, j int) bool { return sources[i] > sources[j] })

		rungs := append([]Rung(nil), side.Rungs...)
		sort.SliceStable(rungs, func(i, j int) bool { return rungs[i].SizeBaseUnits < rungs[j].SizeBaseUnits })
		for _, r := range rungs {
			current := counts[r.SizeBaseUnits]
			if r.TargetCount > 0 && current < r.TargetCount {
				want := r.TargetCount + r.SplitBufferCount - current
				sideSplits = append(sideSplits, candidate{
					plan: models.CoinOpPlan{
						OpType:        models.CoinOpSplit,
						MarketID:      in.MarketID,
						Side:          side.Side,
						AssetID:       side.AssetID,
						AmountPerCoin: r.SizeBaseUnits,
						NumberOfCoins: want,
						Reason:        ReasonSplitDeficit,
					},
					sideIdx: idx,
					deficit: r.TargetCount - current,
					target:  r.TargetCount,
				})
				continue
			}
			if current > CombineThreshold(r.TargetCount, r.CombineWhenExcessFactor) {
				excess := current - r.TargetCount
				combines = append(combines, candidate{
					plan: models.CoinOpPlan{
						OpType:          models.CoinOpCombine,
						MarketID:        in.MarketID,
						Side:            side.Side,
						AssetID:         side.AssetID,
						AmountPerCoin:   r.SizeBaseUnits * int64(excess),
						TargetCoinCount: 1,
						NumberOfCoins:   excess,
						Reason:          ReasonCombineExcess,
					},
					sideIdx: idx,
				})
			}
		}
		// The most deficient bucket gets the first pick of source coins.
		sort.SliceStable(sideSplits, func(i, j int) bool { return splitBefore(sideSplits[i], sideSplits[j]) })
		splits = append(splits, assignSources(sideSplits, sources)...)
	}

	sort.SliceStable(splits, func(i, j int) bool {
		if splits[i].sideIdx != splits[j].sideIdx {
			return splits[i].sideIdx < splits[j].sideIdx
		}
		return splitBefore(splits[i], splits[j])
	})
	sort.SliceStable(combines, func(i, j int) bool {
		a, b := combines[i], combines[j]
		if a.sideIdx != b.sideIdx {
			return a.sideIdx < b.sideIdx
		}
		return a.plan.AmountPerCoin/int64(max(a.plan.NumberOfCoins, 1)) < b.plan.AmountPerCoin/int64(max(b.plan.NumberOfCoins, 1))
	})

	var res Result
	ordered := make([]models.CoinOpPlan, 0, len(splits)+len(combines))
	for _, c := range splits {
		ordered = append(ordered, c.plan)
	}
	if len(ordered) > 0 {
		for _, c := range combines {
			res.Deferred = append(res.Deferred, Deferred{Plan: c.plan, Reason: ReasonDeferredForSplits})
		}
	} else {
		for _, c := range combines {
			ordered = append(ordered, c.plan)
		}
	}

	for i := range ordered {
		p := &ordered[i]
		if in.MaxOperationsPerRun > 0 && i >= in.MaxOperationsPerRun {
			res.Deferred = append(res.Deferred, Deferred{Plan: *p, Reason: ReasonMaxOperations})
			continue
		}
		p.Priority = i
		if p.OpType == models.CoinOpSplit {
			p.OpCount = p.NumberOfCoins
			p.EstimatedFeeMojos = in.SplitFeeMojos * int64(p.OpCount)
		} else {
			p.OpCount = 1
			p.EstimatedFeeMojos = in.CombineFeeMojos
		}
		res.Plans = append(res.Plans, *p)
	}
	return res
}

// splitBefore orders splits by deficit ratio descending, then by size.
func splitBefore(a, b candidate) bool {
	l, r := int64(a.deficit)*int64(b.target), int64(b.deficit)*int64(a.target)
	if l != r {
		return l > r
	}
	return a.plan.AmountPerCoin < b.plan.AmountPerCoin
}

// assignSources bounds each split by the largest unused source coin larger than
// its size. A split with no such coin keeps its full count; coin selection is
// the signer's job and it reports any shortfall.
func assignSources(splits []candidate, sources []int64) []candidate {
	used := make([]bool, len(sources))
	for i := range splits {
		c := &splits[i]
		size := c.plan.AmountPerCoin
		for j, amt := range sources {
			if used[j] || amt <= size {
				continue
			}
			used[j] = true
			if bound := int(amt / size); c.plan.NumberOfCoins > bound {
				c.plan.NumberOfCoins = bound
			}
			break
		}
	}
	return splits
}

func orderedSides(sides []SideInventory) []SideInventory {
	out := append([]SideInventory(nil), sides...)
	rank := func(s string) int {
		switch s {
		case config.SideSell:
			return 0
		case config.SideBuy:
			return 1
		}
		return 2
	}
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := rank(out[i].Side), rank(out[j].Side)
		if ri != rj {
			return ri < rj
		}
		return out[i].AssetID < out[j].AssetID
	})
	return out
}
