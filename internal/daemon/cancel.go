package daemon

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"greenfloor/internal/audit"
	"greenfloor/internal/config"
	"greenfloor/internal/executor"
	"greenfloor/internal/lifecycle"
	"greenfloor/internal/models"
	"greenfloor/internal/repository"
	"greenfloor/internal/signer"
)

const (
	CancelViaVenue   = "venue"
	CancelViaOnchain = "onchain"

	DefaultCancelMoveBps = 500

	PricingStableVsUnstable = "cancel_policy_stable_vs_unstable"
)

// Cancel policy outcomes.
const (
	CancelNotUnstable      = "not_unstable_leg_market"
	CancelNotStableVsUnst  = "not_stable_vs_unstable_market"
	CancelMissingBaseline  = "missing_price_baseline"
	CancelBelowThreshold   = "price_move_below_threshold"
	CancelStrongMove       = "strong_unstable_price_move"
	reasonCancelPushFailed = "cancel_push_rejected"
)

type CancelDecision struct {
	Eligible     bool
	Triggered    bool
	Reason       string
	MoveBps      *decimal.Decimal
	ThresholdBps int64
}

// MoveBps is |current-previous|/previous in basis points. It is nil without a
// usable baseline.
func MoveBps(current, previous *decimal.Decimal) *decimal.Decimal {
	if current == nil || previous == nil || !current.IsPositive() || !previous.IsPositive() {
		return nil
	}
	bps := current.Sub(*previous).Abs().Div(*previous).Mul(decimal.NewFromInt(10_000))
	return &bps
}

// EvaluateCancelPolicy applies only to unstable-quoted markets that opted into
// stable-vs-unstable pricing.
func EvaluateCancelPolicy(m config.MarketConfig, current, previous *decimal.Decimal, thresholdBps int64) CancelDecision {
	if thresholdBps <= 0 {
		thresholdBps = DefaultCancelMoveBps
	}
	d := CancelDecision{ThresholdBps: thresholdBps, MoveBps: MoveBps(current, previous)}
	if m.QuoteAssetType != config.QuoteUnstable {
		d.Reason = CancelNotUnstable
		return d
	}
	if !pricingBool(m.Pricing, PricingStableVsUnstable) {
		d.Reason = CancelNotStableVsUnst
		return d
	}
	d.Eligible = true
	switch {
	case d.MoveBps == nil:
		d.Reason = CancelMissingBaseline
	case d.MoveBps.LessThan(decimal.NewFromInt(thresholdBps)):
		d.Reason = CancelBelowThreshold
	default:
		d.Triggered = true
		d.Reason = CancelStrongMove
	}
	return d
}

func pricingBool(pricing map[string]any, key string) bool {
	switch v := pricing[key].(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(strings.TrimSpace(v), "true")
	}
	return false
}

func (c *Cycle) runCancelPolicy(ctx context.Context, m config.MarketConfig, xch *decimal.Decimal, res *marketResult) error {
	prev, err := c.Repo.GetPriceSnapshot(ctx, m.ID)
	if err != nil {
		return storage(err)
	}
	var previous *decimal.Decimal
	if prev != nil {
		p := prev.PriceUSD
		previous = &p
	}
	cfg := c.program().CancelPolicy
	d := EvaluateCancelPolicy(m, xch, previous, cfg.MoveBps)
	if xch != nil {
		snap := &models.PriceSnapshot{MarketID: m.ID, PriceUSD: *xch, Source: "cycle", ObservedAt: c.Runtime.Clock()}
		if err := c.Repo.UpsertPriceSnapshot(ctx, snap); err != nil {
			return storage(err)
		}
	}

	payload := map[string]any{
		"eligible":      d.Eligible,
		"triggered":     d.Triggered,
		"reason":        d.Reason,
		"threshold_bps": d.ThresholdBps,
		"mechanism":     cancelMechanism(cfg),
	}
	if d.MoveBps != nil {
		payload["move_bps"] = d.MoveBps.StringFixed(2)
	}
	if !d.Triggered {
		payload["planned_count"] = 0
		payload["executed_count"] = 0
		c.record(ctx, audit.EventCancelPolicy, m.ID, payload)
		return nil
	}
	res.CancelTriggered = true

	market := m.ID
	offers, err := c.Repo.ListOfferStates(ctx, repository.ListOfferStatesParams{
		MarketID: &market,
		States:   []string{string(lifecycle.StateOpen)},
	})
	if err != nil {
		return storage(err)
	}
	var items []map[string]any
	executed := 0
	for _, o := range offers {
		item, ok, err := c.cancelOne(ctx, m, o)
		if err != nil {
			return err
		}
		if ok {
			executed++
		}
		items = append(items, item)
	}
	res.OffersCancelled += executed
	payload["planned_count"] = len(offers)
	payload["executed_count"] = executed
	payload["items"] = items
	c.record(ctx, audit.EventCancelPolicy, m.ID, payload)
	return nil
}

func cancelMechanism(cfg config.CancelPolicyConfig) string {
	if strings.EqualFold(strings.TrimSpace(cfg.Mechanism), CancelViaOnchain) {
		return CancelViaOnchain
	}
	return CancelViaVenue
}

// cancelOne requests one cancellation and moves the offer to cancelling.
func (c *Cycle) cancelOne(ctx context.Context, m config.MarketConfig, o models.OfferState) (map[string]any, bool, error) {
	item := map[string]any{"offer_id": o.OfferID}
	if c.Runtime.DryRun {
		item["status"], item["reason"] = "planned", "dry_run"
		return item, false, nil
	}
	if c.Executor == nil {
		return nil, false, fmt.Errorf("cancel needs an executor")
	}
	mechanism := cancelMechanism(c.program().CancelPolicy)
	var cancelTxID string
	out := c.Executor.Do(ctx, executor.KindCancel, m.ID, func(ctx context.Context) error {
		txID, err := c.requestCancel(ctx, m, o.OfferID, mechanism)
		if err != nil {
			return err
		}
		cancelTxID = txID
		return nil
	})
	item["attempts"] = out.Attempts
	if !out.Success {
		item["status"], item["reason"] = "skipped", out.Reason
		if out.Error != "" {
			item["error"] = out.Error
		}
		if c.Metrics != nil {
			c.Metrics.OffersCancelled.WithLabelValues(m.ID, "failed").Inc()
		}
		c.record(ctx, audit.EventOfferCancelFailed, m.ID, map[string]any{"offer_id": o.OfferID, "reason": out.Reason, "attempts": out.Attempts, "error": out.Error})
		return item, false, nil
	}

	var tr lifecycle.Transition
	_, err := c.Repo.ApplyOfferTransition(ctx, o.OfferID, func(row *models.OfferState) (bool, error) {
		tr = lifecycle.Apply(offerView(row), lifecycle.Signal{Kind: lifecycle.SignalCancelRequested, Source: mechanism})
		changed := false
		if cancelTxID != "" && row.CancelTxID != cancelTxID {
			row.CancelTxID = cancelTxID
			changed = true
		}
		if tr.Changed {
			row.PreviousState = row.State
			row.State = string(tr.To)
			changed = true
		}
		for _, e := range tr.Effects {
			row.MarkEmitted(e.Key)
		}
		return changed, nil
	})
	if err != nil {
		return nil, false, storage(err)
	}
	if c.Metrics != nil {
		c.Metrics.OffersCancelled.WithLabelValues(m.ID, "cancelled").Inc()
	}
	item["status"], item["reason"] = "executed", "cancelled_on_strong_unstable_move"
	payload := map[string]any{"offer_id": o.OfferID, "mechanism": mechanism, "from": string(tr.From), "to": string(tr.To)}
	if cancelTxID != "" {
		item["cancel_tx_id"] = cancelTxID
		payload["cancel_tx_id"] = cancelTxID
	}
	c.record(ctx, audit.EventOfferCancelled, m.ID, payload)
	return item, true, nil
}

// requestCancel returns the cancel tx id for on-chain cancels.
func (c *Cycle) requestCancel(ctx context.Context, m config.MarketConfig, offerID, mechanism string) (string, error) {
	if mechanism == CancelViaVenue {
		if c.Venue == nil {
			return "", fmt.Errorf("venue is not configured")
		}
		return "", c.Venue.CancelOffer(ctx, offerID)
	}
	if c.Signer == nil || c.Ledger == nil {
		return "", fmt.Errorf("on-chain cancel needs a signer and a ledger client")
	}
	bundle, err := c.Signer.SignCancel(ctx, signer.CancelRequest{
		OfferID:  offerID,
		KeyID:    c.Runtime.KeyFor(m),
		Network:  c.Runtime.Network,
		FeeMojos: c.program().CoinOps.CombineFeeMojos,
	})
	if err != nil {
		return "", err
	}
	push, err := c.Ledger.PushTx(ctx, bundle.Hex)
	if err != nil {
		return "", err
	}
	if !push.Success {
		return "", executor.Permanent(reasonCancelPushFailed, fmt.Errorf("push_tx: %s %s", push.Status, push.Error))
	}
	return bundle.TxID, nil
}

func offerView(o *models.OfferState) lifecycle.Offer {
	return lifecycle.Offer{
		ID:            o.OfferID,
		State:         lifecycle.State(o.State),
		Flag:          o.Flag,
		HasTxIDs:      len(o.TxIDList()) > 0,
		ChainEvidence: o.ChainEvidenceAt != nil,
		Emitted:       o.EmittedList(),
	}
}
