package strategy

import (
	"errors"

	"github.com/shopspring/decimal"

	"greenfloor/internal/config"
)

var ErrNoQuotePrice = errors.New("market pricing must define fixed_quote_per_base or min/max_price_quote_per_base")

// QuotePerBase resolves the quote price for an offer: the fixed price when set,
// else the midpoint of the min/max band, else whichever bound exists.
func QuotePerBase(m config.MarketConfig) (decimal.Decimal, error) {
	if d := pricingDecimal(m.Pricing, "fixed_quote_per_base"); d != nil {
		return *d, nil
	}
	lo := pricingDecimal(m.Pricing, "min_price_quote_per_base")
	hi := pricingDecimal(m.Pricing, "max_price_quote_per_base")
	switch {
	case lo != nil && hi != nil:
		return lo.Add(*hi).Div(decimal.NewFromInt(2)), nil
	case lo != nil:
		return *lo, nil
	case hi != nil:
		return *hi, nil
	}
	return decimal.Zero, ErrNoQuotePrice
}

// MultiplierOr reads an integer multiplier from pricing with a default.
func MultiplierOr(m config.MarketConfig, key string, def int64) int64 {
	if v, ok := pricingInt(m.Pricing, key); ok && v > 0 {
		return int64(v)
	}
	return def
}
