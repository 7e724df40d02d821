package daemon

import (
	"testing"

	"github.com/shopspring/decimal"

	"greenfloor/internal/config"
)

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestMoveBps(t *testing.T) {
	if got := MoveBps(dec("21"), dec("20")); got == nil || !got.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("move=%v want=500", got)
	}
	if got := MoveBps(dec("19"), dec("20")); got == nil || !got.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("move=%v want=500 for a drop", got)
	}
	if MoveBps(nil, dec("20")) != nil || MoveBps(dec("20"), dec("0")) != nil {
		t.Fatalf("missing or zero baseline must yield nil")
	}
}

func TestEvaluateCancelPolicy(t *testing.T) {
	m := config.MarketConfig{ID: "m1", QuoteAssetType: config.QuoteUnstable, Pricing: map[string]any{PricingStableVsUnstable: true}}

	d := EvaluateCancelPolicy(m, dec("21"), dec("20"), 0)
	if !d.Triggered || d.Reason != CancelStrongMove || d.ThresholdBps != DefaultCancelMoveBps {
		t.Fatalf("decision=%+v want triggered at default threshold", d)
	}
	if d := EvaluateCancelPolicy(m, dec("20.5"), dec("20"), 500); d.Triggered || d.Reason != CancelBelowThreshold {
		t.Fatalf("decision=%+v want below threshold", d)
	}
	if d := EvaluateCancelPolicy(m, dec("20"), nil, 500); !d.Eligible || d.Reason != CancelMissingBaseline {
		t.Fatalf("decision=%+v want missing baseline", d)
	}

	stable := m
	stable.QuoteAssetType = config.QuoteStable
	if d := EvaluateCancelPolicy(stable, dec("30"), dec("20"), 500); d.Eligible || d.Reason != CancelNotUnstable {
		t.Fatalf("decision=%+v want not eligible", d)
	}
	plain := m
	plain.Pricing = map[string]any{PricingStableVsUnstable: "false"}
	if d := EvaluateCancelPolicy(plain, dec("30"), dec("20"), 500); d.Eligible || d.Reason != CancelNotStableVsUnst {
		t.Fatalf("decision=%+v want not stable-vs-unstable", d)
	}
}
