package coinops

import (
	"encoding/json"
	"testing"

	"greenfloor/internal/models"
)

func coins(amount int64, n int, state string) []Coin {
	out := make([]Coin, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, Coin{ID: "c", Amount: amount, State: state})
	}
	return out
}

func rung10() []Rung {
	return []Rung{{SizeBaseUnits: 10, TargetCount: 4, SplitBufferCount: 2, CombineWhenExcessFactor: 2.5}}
}

func TestPlan_WithinBandEmitsNothing(t *testing.T) {
	in := PlanInput{
		MarketID: "m1",
		Sides:    []SideInventory{{Side: "sell", AssetID: "a", Coins: coins(10, 6, CoinStateSpendable), Rungs: rung10()}},
	}
	res := Plan(in)
	if len(res.Plans) != 0 || len(res.Deferred) != 0 {
		t.Fatalf("res=%+v want empty", res)
	}
}

func TestPlan_SplitTrigger(t *testing.T) {
	side := SideInventory{Side: "sell", AssetID: "a", Rungs: rung10(), Coins: coins(10, 1, CoinStateSpendable)}
	res := Plan(PlanInput{MarketID: "m1", Sides: []SideInventory{side}, SplitFeeMojos: 3})
	if len(res.Plans) != 1 {
		t.Fatalf("plans=%+v", res.Plans)
	}
	p := res.Plans[0]
	if p.OpType != models.CoinOpSplit || p.NumberOfCoins != 5 || p.AmountPerCoin != 10 {
		t.Fatalf("plan=%+v want split of 5x10", p)
	}
	if p.OpCount != 5 || p.EstimatedFeeMojos != 15 || p.Priority != 0 {
		t.Fatalf("plan=%+v", p)
	}
}

func TestPlan_SplitBoundedBySource(t *testing.T) {
	side := SideInventory{Side: "sell", AssetID: "a", Rungs: rung10()}
	side.Coins = []Coin{{ID: "src", Amount: 35, State: CoinStateSpendable}}
	res := Plan(PlanInput{MarketID: "m1", Sides: []SideInventory{side}})
	if len(res.Plans) != 1 || res.Plans[0].NumberOfCoins != 3 {
		t.Fatalf("plans=%+v want 3 coins", res.Plans)
	}

	// no known source: the signer selects coins and reports a shortfall
	side.Coins = nil
	res = Plan(PlanInput{MarketID: "m1", Sides: []SideInventory{side}})
	if len(res.Plans) != 1 || res.Plans[0].NumberOfCoins != 6 || len(res.Deferred) != 0 {
		t.Fatalf("res=%+v want unbounded split of 6", res)
	}
}

func TestPlan_MostDeficientBucketPicksSourceFirst(t *testing.T) {
	side := SideInventory{Side: "sell", AssetID: "a", Rungs: []Rung{
		{SizeBaseUnits: 1, TargetCount: 10, CombineWhenExcessFactor: 2},
		{SizeBaseUnits: 10, TargetCount: 4, CombineWhenExcessFactor: 2},
	}}
	side.Coins = append(coins(1, 9, CoinStateSpendable), Coin{ID: "src", Amount: 25, State: CoinStateSpendable})
	res := Plan(PlanInput{MarketID: "m1", Sides: []SideInventory{side}})
	if len(res.Plans) != 2 {
		t.Fatalf("plans=%+v want 2", res.Plans)
	}
	first, second := res.Plans[0], res.Plans[1]
	if first.AmountPerCoin != 10 || first.NumberOfCoins != 2 {
		t.Fatalf("first=%+v want 10-unit split bounded to 2 by the 25 source", first)
	}
	if second.AmountPerCoin != 1 || second.NumberOfCoins != 1 {
		t.Fatalf("second=%+v want 1-unit split of 1", second)
	}
}

func TestPlan_CoinWithRemainderIsNotLadderCoin(t *testing.T) {
	side := SideInventory{Side: "sell", AssetID: "a", Rungs: rung10()}
	side.Coins = append(coins(10, 5, CoinStateSpendable), Coin{ID: "change", Amount: 10, Remainder: 999, State: CoinStateSpendable})
	res := Plan(PlanInput{MarketID: "m1", Sides: []SideInventory{side}})
	if len(res.Plans) != 0 {
		t.Fatalf("plans=%+v want none with 5 exact coins", res.Plans)
	}

	side.Coins = append(coins(10, 3, CoinStateSpendable), Coin{ID: "change", Amount: 10, Remainder: 999, State: CoinStateSpendable})
	res = Plan(PlanInput{MarketID: "m1", Sides: []SideInventory{side}})
	if len(res.Plans) != 1 || res.Plans[0].NumberOfCoins != 3 {
		t.Fatalf("plans=%+v want split of 3", res.Plans)
	}
}

func TestPlan_IgnoresNonSpendable(t *testing.T) {
	side := SideInventory{Side: "sell", AssetID: "a", Rungs: rung10()}
	side.Coins = append(coins(10, 4, CoinStateSpendable), coins(10, 20, "pending")...)
	side.Coins = append(side.Coins, coins(10, 20, "")...)
	res := Plan(PlanInput{MarketID: "m1", Sides: []SideInventory{side}})
	if len(res.Plans) != 0 {
		t.Fatalf("plans=%+v want none", res.Plans)
	}
}

func TestPlan_CombineAboveThreshold(t *testing.T) {
	side := SideInventory{Side: "sell", AssetID: "a", Coins: coins(10, 11, CoinStateSpendable), Rungs: rung10()}
	res := Plan(PlanInput{MarketID: "m1", Sides: []SideInventory{side}, CombineFeeMojos: 7})
	if len(res.Plans) != 1 {
		t.Fatalf("plans=%+v", res.Plans)
	}
	p := res.Plans[0]
	if p.OpType != models.CoinOpCombine || p.NumberOfCoins != 7 || p.TargetCoinCount != 1 || p.OpCount != 1 || p.EstimatedFeeMojos != 7 {
		t.Fatalf("plan=%+v", p)
	}
}

func TestPlan_CombineThresholdFloor(t *testing.T) {
	if got := CombineThreshold(0, 2.5); got != 2 {
		t.Fatalf("threshold=%d want=2", got)
	}
	if got := CombineThreshold(4, 2.5); got != 10 {
		t.Fatalf("threshold=%d want=10", got)
	}
	if got := CombineThreshold(3, 1.1); got != 4 {
		t.Fatalf("threshold=%d want=4", got)
	}
}

func TestPlan_OrderingAndDeferral(t *testing.T) {
	sell := SideInventory{Side: "sell", AssetID: "base", Rungs: []Rung{
		{SizeBaseUnits: 1, TargetCount: 10, SplitBufferCount: 0, CombineWhenExcessFactor: 2},
		{SizeBaseUnits: 10, TargetCount: 4, SplitBufferCount: 0, CombineWhenExcessFactor: 2},
		{SizeBaseUnits: 100, TargetCount: 2, SplitBufferCount: 0, CombineWhenExcessFactor: 2},
	}}
	sell.Coins = append(coins(1, 8, CoinStateSpendable), coins(10, 1, CoinStateSpendable)...)
	sell.Coins = append(sell.Coins, coins(100, 9, CoinStateSpendable)...)
	sell.Coins = append(sell.Coins, coins(5000, 3, CoinStateSpendable)...)
	buy := SideInventory{Side: "buy", AssetID: "quote", Rungs: []Rung{{SizeBaseUnits: 5, TargetCount: 2, CombineWhenExcessFactor: 2}}}
	buy.Coins = coins(500, 1, CoinStateSpendable)

	in := PlanInput{MarketID: "m1", Sides: []SideInventory{buy, sell}, MaxOperationsPerRun: 2}
	res := Plan(in)
	if len(res.Plans) != 2 {
		t.Fatalf("plans=%+v", res.Plans)
	}
	// 10-unit bucket misses 3/4, 1-unit bucket misses 2/10
	if res.Plans[0].AmountPerCoin != 10 || res.Plans[1].AmountPerCoin != 1 {
		t.Fatalf("order=%d,%d want 10,1", res.Plans[0].AmountPerCoin, res.Plans[1].AmountPerCoin)
	}
	reasons := map[string]int{}
	for _, d := range res.Deferred {
		reasons[d.Reason]++
	}
	if reasons[ReasonMaxOperations] != 1 || reasons[ReasonDeferredForSplits] != 1 {
		t.Fatalf("deferred=%v", reasons)
	}

	a, _ := json.Marshal(Plan(in))
	b, _ := json.Marshal(Plan(in))
	if string(a) != string(b) {
		t.Fatalf("plan is not deterministic")
	}
}
