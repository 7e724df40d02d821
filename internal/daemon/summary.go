package daemon

import (
	"context"
	"time"

	"greenfloor/internal/metrics"
	"greenfloor/internal/reconcile"
)

// CycleSummary is the structured outcome of one cycle.
type CycleSummary struct {
	CycleID    string    `json:"cycle_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	DurationMs int64     `json:"duration_ms"`
	DryRun     bool      `json:"dry_run"`
	Skipped    bool      `json:"skipped,omitempty"`
	Reloaded   bool      `json:"reloaded,omitempty"`

	XCHPriceUSD string `json:"xch_price_usd,omitempty"`
	PriceStale  bool   `json:"price_stale,omitempty"`

	MarketsProcessed int               `json:"markets_processed"`
	MarketsFailed    int               `json:"markets_failed"`
	MarketErrors     map[string]string `json:"market_errors,omitempty"`

	CoinOpsPlanned    int   `json:"coin_ops_planned"`
	CoinOpsExecuted   int   `json:"coin_ops_executed"`
	CoinOpsSkipped    int   `json:"coin_ops_skipped"`
	CoinOpsFailed     int   `json:"coin_ops_failed"`
	FeeCommittedMojos int64 `json:"fee_committed_mojos"`

	OffersPlanned    int `json:"offers_planned"`
	OffersPosted     int `json:"offers_posted"`
	OffersPostFailed int `json:"offers_post_failed"`
	CancelTriggered  int `json:"cancel_triggered"`
	OffersCancelled  int `json:"offers_cancelled"`

	Reconcile reconcile.Result `json:"reconcile"`

	Aborted bool   `json:"aborted,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (s *CycleSummary) merge(r marketResult) {
	s.CoinOpsPlanned += r.CoinOpsPlanned
	s.CoinOpsExecuted += r.CoinOpsExecuted
	s.CoinOpsSkipped += r.CoinOpsSkipped
	s.CoinOpsFailed += r.CoinOpsFailed
	s.OffersPlanned += r.OffersPlanned
	s.OffersPosted += r.OffersPosted
	s.OffersPostFailed += r.OffersPostFailed
	if r.CancelTriggered {
		s.CancelTriggered++
	}
	s.OffersCancelled += r.OffersCancelled
}

func (s CycleSummary) Payload() map[string]any {
	out := map[string]any{
		"cycle_id":            s.CycleID,
		"started_at":          s.StartedAt.Format(time.RFC3339Nano),
		"duration_ms":         s.DurationMs,
		"dry_run":             s.DryRun,
		"reloaded":            s.Reloaded,
		"markets_processed":   s.MarketsProcessed,
		"markets_failed":      s.MarketsFailed,
		"coin_ops_planned":    s.CoinOpsPlanned,
		"coin_ops_executed":   s.CoinOpsExecuted,
		"coin_ops_skipped":    s.CoinOpsSkipped,
		"coin_ops_failed":     s.CoinOpsFailed,
		"fee_committed_mojos": s.FeeCommittedMojos,
		"offers_planned":      s.OffersPlanned,
		"offers_posted":       s.OffersPosted,
		"offers_post_failed":  s.OffersPostFailed,
		"cancel_triggered":    s.CancelTriggered,
		"offers_cancelled":    s.OffersCancelled,
		"reconcile":           s.Reconcile.Payload(),
		"aborted":             s.Aborted,
	}
	if s.XCHPriceUSD != "" {
		out["xch_price_usd"] = s.XCHPriceUSD
		out["price_stale"] = s.PriceStale
	}
	if len(s.MarketErrors) > 0 {
		out["market_errors"] = s.MarketErrors
	}
	if s.Error != "" {
		out["error"] = s.Error
	}
	return out
}

func (s CycleSummary) Sample() metrics.Sample {
	return metrics.Sample{
		MarketsProcessed: s.MarketsProcessed,
		MarketsFailed:    s.MarketsFailed,
		OffersPosted:     s.OffersPosted,
		OffersCancelled:  s.OffersCancelled,
		CoinOpsExecuted:  s.CoinOpsExecuted,
		FeeCommitted:     s.FeeCommittedMojos,
		Duration:         time.Duration(s.DurationMs) * time.Millisecond,
		Failed:           s.Aborted || s.MarketsFailed > 0,
	}
}

// SummarySink receives every finished cycle, e.g. CloudWatch.
type SummarySink interface {
	Publish(ctx context.Context, sample metrics.Sample) error
}

type marketResult struct {
	CoinOpsPlanned   int
	CoinOpsExecuted  int
	CoinOpsSkipped   int
	CoinOpsFailed    int
	OffersPlanned    int
	OffersPosted     int
	OffersPostFailed int
	CancelTriggered  bool
	OffersCancelled  int
	Errors           []string
}

func (r *marketResult) fail(step string, err error) {
	r.Errors = append(r.Errors, step+": "+err.Error())
}
