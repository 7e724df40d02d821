package strategy

import (
	"testing"

	"github.com/shopspring/decimal"

	"greenfloor/internal/config"
)

func price(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestEvaluate_OneActionPerDeficientSize(t *testing.T) {
	cfg := ConfigFromMarket(config.MarketConfig{ID: "m1", QuoteAsset: "xch"})
	actions := Evaluate(MarketState{Counts: map[int64]int{1: 2, 10: 2}, XCHPriceUSD: price("30")}, cfg)
	if len(actions) != 2 {
		t.Fatalf("actions=%d want=2", len(actions))
	}
	if actions[0].Size != 1 || actions[0].Repeat != 3 {
		t.Fatalf("first=%+v want size 1 repeat 3", actions[0])
	}
	if actions[1].Size != 100 || actions[1].Repeat != 1 {
		t.Fatalf("second=%+v want size 100 repeat 1", actions[1])
	}
	if actions[0].ExpiryUnit != ExpiryMinutes || actions[0].ExpiryValue != 10 || !actions[0].CancelAfterCreate {
		t.Fatalf("expiry defaults wrong: %+v", actions[0])
	}
}

func TestEvaluate_PriceGates(t *testing.T) {
	m := config.MarketConfig{
		ID:         "m1",
		QuoteAsset: "xch",
		Pricing:    map[string]any{KeyMinXCHPriceUSD: 20, KeyMaxXCHPriceUSD: "40"},
	}
	cfg := ConfigFromMarket(m)
	if got := Evaluate(MarketState{XCHPriceUSD: price("19.99")}, cfg); len(got) != 0 {
		t.Fatalf("below min produced %d actions", len(got))
	}
	if got := Evaluate(MarketState{XCHPriceUSD: price("40.01")}, cfg); len(got) != 0 {
		t.Fatalf("above max produced %d actions", len(got))
	}
	if got := Evaluate(MarketState{}, cfg); len(got) != 0 {
		t.Fatalf("missing price produced %d actions", len(got))
	}
	if got := Evaluate(MarketState{XCHPriceUSD: price("30")}, cfg); len(got) != 3 {
		t.Fatalf("in band actions=%d want=3", len(got))
	}
}

func TestEvaluate_UsdcIgnoresPriceAndUsesLadderOverrides(t *testing.T) {
	m := config.MarketConfig{
		ID:         "m2",
		QuoteAsset: "wUSDC.b",
		Ladders:    map[string][]config.LadderEntry{config.SideSell: {{SizeBaseUnits: 1, TargetCount: 1}}},
		Pricing:    map[string]any{KeyExpiryUnit: "Hours", KeyExpiryValue: 2},
	}
	cfg := ConfigFromMarket(m)
	if cfg.Pair != PairUSDC {
		t.Fatalf("pair=%s want=usdc", cfg.Pair)
	}
	actions := Evaluate(MarketState{Counts: map[int64]int{1: 1}}, cfg)
	if len(actions) != 2 || actions[0].Size != 10 {
		t.Fatalf("actions=%+v", actions)
	}
	if actions[0].Expiry().Hours() != 2 {
		t.Fatalf("expiry=%v want=2h", actions[0].Expiry())
	}
}

func TestValidatePricing(t *testing.T) {
	bad := config.MarketConfig{ID: "m", Pricing: map[string]any{KeyMinXCHPriceUSD: 50, KeyMaxXCHPriceUSD: 40}}
	if err := ValidatePricing(bad); err == nil {
		t.Fatalf("expected min>max error")
	}
	if err := ValidatePricing(config.MarketConfig{ID: "m", Pricing: map[string]any{KeyTargetSpreadBps: "x"}}); err == nil {
		t.Fatalf("expected spread error")
	}
}

func TestQuotePerBase(t *testing.T) {
	q, err := QuotePerBase(config.MarketConfig{Pricing: map[string]any{"min_price_quote_per_base": "1", "max_price_quote_per_base": 2}})
	if err != nil || q.String() != "1.5" {
		t.Fatalf("quote=%v err=%v", q, err)
	}
	if _, err := QuotePerBase(config.MarketConfig{}); err != ErrNoQuotePrice {
		t.Fatalf("err=%v", err)
	}
}
