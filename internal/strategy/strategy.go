package strategy

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"greenfloor/internal/config"
)

const (
	PairXCH  = "xch"
	PairUSDC = "usdc"

	ExpiryMinutes = "minutes"
	ExpiryHours   = "hours"

	ReasonBelowTarget = "below_target"
	ReasonReseed      = "offer_size_gap_reseed"
)

// Pricing keys read from a market's pricing map.
const (
	KeyTargetSpreadBps = "strategy_target_spread_bps"
	KeyMinXCHPriceUSD  = "strategy_min_xch_price_usd"
	KeyMaxXCHPriceUSD  = "strategy_max_xch_price_usd"
	KeyExpiryUnit      = "strategy_offer_expiry_unit"
	KeyExpiryValue     = "strategy_offer_expiry_value"
)

var defaultTargets = map[int64]int{1: 5, 10: 2, 100: 1}

// MarketState is the inventory the strategy reacts to: open offers per size.
type MarketState struct {
	Counts      map[int64]int
	XCHPriceUSD *decimal.Decimal
}

type Config struct {
	Pair            string
	Targets         map[int64]int
	TargetSpreadBps *int
	MinXCHPriceUSD  *decimal.Decimal
	MaxXCHPriceUSD  *decimal.Decimal
	ExpiryUnit      string
	ExpiryValue     int
}

type PlannedAction struct {
	Size              int64  `json:"size"`
	Repeat            int    `json:"repeat"`
	Pair              string `json:"pair"`
	ExpiryUnit        string `json:"expiry_unit"`
	ExpiryValue       int    `json:"expiry_value"`
	CancelAfterCreate bool   `json:"cancel_after_create"`
	Reason            string `json:"reason"`
	TargetSpreadBps   *int   `json:"target_spread_bps,omitempty"`
}

func (a PlannedAction) Expiry() time.Duration {
	if a.ExpiryUnit == ExpiryHours {
		return time.Duration(a.ExpiryValue) * time.Hour
	}
	return time.Duration(a.ExpiryValue) * time.Minute
}

// NormalizePair maps a quote asset to the strategy pair name.
func NormalizePair(quoteAsset string) string {
	lowered := strings.ToLower(strings.TrimSpace(quoteAsset))
	if lowered == PairXCH {
		return PairXCH
	}
	if strings.Contains(lowered, PairUSDC) {
		return PairUSDC
	}
	return lowered
}

// ConfigFromMarket derives targets from the sell ladder and reads overrides
// from pricing. Sizes 1, 10 and 100 fall back to 5, 2 and 1.
func ConfigFromMarket(m config.MarketConfig) Config {
	cfg := Config{
		Pair:    NormalizePair(m.QuoteAsset),
		Targets: make(map[int64]int, len(defaultTargets)),
	}
	for size, target := range defaultTargets {
		cfg.Targets[size] = target
	}
	for _, e := range m.Ladders[config.SideSell] {
		cfg.Targets[e.SizeBaseUnits] = e.TargetCount
	}
	if v, ok := pricingInt(m.Pricing, KeyTargetSpreadBps); ok {
		cfg.TargetSpreadBps = &v
	}
	cfg.MinXCHPriceUSD = pricingDecimal(m.Pricing, KeyMinXCHPriceUSD)
	cfg.MaxXCHPriceUSD = pricingDecimal(m.Pricing, KeyMaxXCHPriceUSD)
	cfg.ExpiryUnit = strings.ToLower(m.PricingString(KeyExpiryUnit))
	if v, ok := pricingInt(m.Pricing, KeyExpiryValue); ok {
		cfg.ExpiryValue = v
	}
	return cfg
}

// ValidatePricing rejects malformed strategy keys in a market's pricing map.
func ValidatePricing(m config.MarketConfig) error {
	if raw := m.PricingString(KeyTargetSpreadBps); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("market %s: %s must be an integer", m.ID, KeyTargetSpreadBps)
		}
		if v <= 0 {
			return fmt.Errorf("market %s: %s must be positive", m.ID, KeyTargetSpreadBps)
		}
	}
	var bounds [2]*decimal.Decimal
	for i, key := range []string{KeyMinXCHPriceUSD, KeyMaxXCHPriceUSD} {
		raw := m.PricingString(key)
		if raw == "" {
			continue
		}
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return fmt.Errorf("market %s: %s must be numeric", m.ID, key)
		}
		if !d.IsPositive() {
			return fmt.Errorf("market %s: %s must be > 0", m.ID, key)
		}
		bounds[i] = &d
	}
	if bounds[0] != nil && bounds[1] != nil && bounds[0].GreaterThan(*bounds[1]) {
		return fmt.Errorf("market %s: %s must be <= %s", m.ID, KeyMinXCHPriceUSD, KeyMaxXCHPriceUSD)
	}
	return nil
}

// Evaluate returns one action per size below target, smallest size first.
// XCH-quoted markets act only with a positive price inside the configured gates.
func Evaluate(state MarketState, cfg Config) []PlannedAction {
	if cfg.Pair == PairXCH {
		if state.XCHPriceUSD == nil || !state.XCHPriceUSD.IsPositive() {
			return nil
		}
		if cfg.MinXCHPriceUSD != nil && state.XCHPriceUSD.LessThan(*cfg.MinXCHPriceUSD) {
			return nil
		}
		if cfg.MaxXCHPriceUSD != nil && state.XCHPriceUSD.GreaterThan(*cfg.MaxXCHPriceUSD) {
			return nil
		}
	}
	unit, value := ExpiryMinutes, 10
	if (cfg.ExpiryUnit == ExpiryMinutes || cfg.ExpiryUnit == ExpiryHours) && cfg.ExpiryValue > 0 {
		unit, value = cfg.ExpiryUnit, cfg.ExpiryValue
	}

	sizes := make([]int64, 0, len(cfg.Targets))
	for size := range cfg.Targets {
		sizes = append(sizes, size)
	}
	sort.Slice(sizes, func(i, j int) bool { return sizes[i] < sizes[j] })

	var out []PlannedAction
	for _, size := range sizes {
		target, current := cfg.Targets[size], state.Counts[size]
		if current >= target {
			continue
		}
		out = append(out, PlannedAction{
			Size:              size,
			Repeat:            target - current,
			Pair:              cfg.Pair,
			ExpiryUnit:        unit,
			ExpiryValue:       value,
			CancelAfterCreate: true,
			Reason:            ReasonBelowTarget,
			TargetSpreadBps:   cfg.TargetSpreadBps,
		})
	}
	return out
}

func pricingInt(pricing map[string]any, key string) (int, bool) {
	v, ok := pricing[key]
	if !ok || v == nil {
		return 0, false
	}
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		return int(t), true
	}
	n, err := strconv.Atoi(strings.TrimSpace(fmt.Sprint(v)))
	if err != nil {
		return 0, false
	}
	return n, true
}

func pricingDecimal(pricing map[string]any, key string) *decimal.Decimal {
	v, ok := pricing[key]
	if !ok || v == nil {
		return nil
	}
	d, err := decimal.NewFromString(strings.TrimSpace(fmt.Sprint(v)))
	if err != nil {
		return nil
	}
	return &d
}
