package daemon

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"greenfloor/internal/audit"
	"greenfloor/internal/client/venue"
	"greenfloor/internal/config"
	"greenfloor/internal/executor"
	"greenfloor/internal/lifecycle"
	"greenfloor/internal/models"
	"greenfloor/internal/signer"
	"greenfloor/internal/strategy"
)

const (
	reasonPricingInvalid    = "pricing_invalid"
	reasonPriceTermsInvalid = "price_terms_encoding_failed"
)

// activeOfferCounts counts live sell offers per size.
func (c *Cycle) activeOfferCounts(ctx context.Context, marketID string) (map[int64]int, error) {
	offers, err := c.Repo.ListNonTerminalOffers(ctx, marketID, 0)
	if err != nil {
		return nil, storage(err)
	}
	now := c.Runtime.Clock()
	counts := map[int64]int{}
	for _, o := range offers {
		switch lifecycle.State(o.State) {
		case lifecycle.StateSubmitted, lifecycle.StateOpen, lifecycle.StatePending:
		default:
			continue
		}
		if o.Side != config.SideSell {
			continue
		}
		if o.ExpiresAt != nil && !o.ExpiresAt.After(now) {
			continue
		}
		counts[o.SizeBaseUnits]++
	}
	return counts, nil
}

func (c *Cycle) runStrategy(ctx context.Context, m config.MarketConfig, xch *decimal.Decimal, res *marketResult) error {
	counts, err := c.activeOfferCounts(ctx, m.ID)
	if err != nil {
		return err
	}
	actions := strategy.Evaluate(strategy.MarketState{Counts: counts, XCHPriceUSD: xch}, strategy.ConfigFromMarket(m))
	if len(actions) == 0 {
		return nil
	}
	quote, qerr := strategy.QuotePerBase(m)
	for _, a := range actions {
		for i := 0; i < a.Repeat; i++ {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			res.OffersPlanned++
			if qerr != nil {
				res.OffersPostFailed++
				c.postFailed(ctx, m, a, reasonPricingInvalid, 0, qerr)
				continue
			}
			posted, err := c.postOne(ctx, m, a, quote)
			if err != nil {
				if IsStorage(err) {
					return err
				}
				continue
			}
			if posted {
				res.OffersPosted++
			} else {
				res.OffersPostFailed++
			}
		}
	}
	return nil
}

// postOne builds, gates and posts one offer. It reports false with a nil error
// for refusals that were already audited.
func (c *Cycle) postOne(ctx context.Context, m config.MarketConfig, a strategy.PlannedAction, quote decimal.Decimal) (bool, error) {
	if c.Signer == nil || c.Venue == nil || c.Executor == nil {
		return false, fmt.Errorf("posting needs a signer, a venue and an executor")
	}
	now := c.Runtime.Clock()
	expiresAt := now.Add(a.Expiry())
	if c.Runtime.DryRun {
		c.record(ctx, audit.EventOfferPosted, m.ID, map[string]any{
			"status":          "planned",
			"reason":          "dry_run",
			"size_base_units": a.Size,
			"expires_at":      expiresAt,
		})
		return false, nil
	}

	art, err := c.Signer.BuildOffer(ctx, signer.OfferRequest{
		MarketID:        m.ID,
		KeyID:           c.Runtime.KeyFor(m),
		Network:         c.Runtime.Network,
		Side:            config.SideSell,
		Pair:            a.Pair,
		BaseAsset:       m.BaseAsset,
		QuoteAsset:      m.QuoteAsset,
		ReceiveAddress:  m.ReceiveAddress,
		SizeBaseUnits:   a.Size,
		QuotePerBase:    quote,
		BaseMultiplier:  strategy.MultiplierOr(m, "base_unit_mojo_multiplier", 1000),
		QuoteMultiplier: strategy.MultiplierOr(m, "quote_unit_mojo_multiplier", 1000),
		ExpiresAt:       expiresAt,
		Reason:          a.Reason,
	})
	if err != nil {
		c.postFailed(ctx, m, a, executor.ReasonOf(err), 0, err)
		return false, nil
	}
	if !art.Signed() {
		if art, err = c.awaitSignature(ctx, m.ID, art); err != nil {
			if IsStorage(err) {
				return false, err
			}
			c.postFailed(ctx, m, a, executor.ReasonOf(err), 0, err)
			return false, nil
		}
	}
	if err := signer.CheckExpiry(art); err != nil {
		c.postFailed(ctx, m, a, executor.ReasonOf(err), 0, err)
		return false, nil
	}

	terms, err := json.Marshal(map[string]any{
		"pair":                a.Pair,
		"quote_per_base":      quote.String(),
		"reason":              a.Reason,
		"target_spread_bps":   a.TargetSpreadBps,
		"cancel_after_create": a.CancelAfterCreate,
	})
	if err != nil {
		c.postFailed(ctx, m, a, reasonPriceTermsInvalid, 0, err)
		return false, nil
	}

	var posted venue.PostResult
	out := c.Executor.Do(ctx, executor.KindPost, m.ID, func(ctx context.Context) error {
		r, err := c.Venue.PostOffer(ctx, art.Offer)
		if err != nil {
			return err
		}
		posted = r
		return nil
	})
	if !out.Success {
		c.postFailed(ctx, m, a, out.Reason, out.Attempts, out.Err)
		return false, nil
	}

	tr := lifecycle.Apply(lifecycle.Offer{ID: posted.OfferID, State: lifecycle.StatePlanned}, lifecycle.Signal{Kind: lifecycle.SignalSubmitted, Source: c.Venue.Name()})
	item := &models.OfferState{
		OfferID:            posted.OfferID,
		MarketID:           m.ID,
		Side:               config.SideSell,
		Venue:              c.Venue.Name(),
		SizeBaseUnits:      a.Size,
		PriceTerms:         datatypes.JSON(terms),
		ExpiresAt:          &expiresAt,
		State:              string(tr.To),
		PreviousState:      string(tr.From),
		SignatureRequestID: art.SignatureRequestID,
	}
	item.SetCoinIDs(art.CoinIDs)
	for _, e := range tr.Effects {
		item.MarkEmitted(e.Key)
	}
	if err := c.Repo.UpsertOfferState(ctx, item); err != nil {
		return false, storage(err)
	}
	if c.Metrics != nil {
		c.Metrics.OffersPosted.WithLabelValues(m.ID, "posted").Inc()
	}
	c.record(ctx, audit.EventOfferPosted, m.ID, map[string]any{
		"offer_id":             posted.OfferID,
		"venue":                c.Venue.Name(),
		"size_base_units":      a.Size,
		"quote_per_base":       quote.String(),
		"expires_at":           expiresAt,
		"attempts":             out.Attempts,
		"signature_request_id": art.SignatureRequestID,
		"state":                item.State,
	})
	return true, nil
}

func (c *Cycle) awaitSignature(ctx context.Context, marketID string, art signer.Artifact) (signer.Artifact, error) {
	if art.SignatureRequestID == "" || c.Waiter == nil {
		return art, &signer.Error{Code: signer.ReasonSigningFailed, Message: "artifact is unsigned and has no signature request"}
	}
	latest := art
	err := c.Waiter.Wait(ctx, WaitSignature, marketID, c.program().Waits.SignatureTimeout, func(ctx context.Context) (bool, error) {
		next, err := c.Signer.SignatureStatus(ctx, art.SignatureRequestID)
		if err != nil {
			return false, err
		}
		latest = next
		return next.Signed(), nil
	})
	return latest, err
}

func (c *Cycle) postFailed(ctx context.Context, m config.MarketConfig, a strategy.PlannedAction, reason string, attempts int, err error) {
	payload := map[string]any{
		"size_base_units": a.Size,
		"reason":          reason,
		"attempts":        attempts,
	}
	if err != nil {
		payload["error"] = err.Error()
	}
	if c.Metrics != nil {
		c.Metrics.OffersPosted.WithLabelValues(m.ID, "failed").Inc()
	}
	c.record(ctx, audit.EventOfferPostFailed, m.ID, payload)
}
