package reconcile

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"greenfloor/internal/audit"
	"greenfloor/internal/client/coinset"
	"greenfloor/internal/client/venue"
	"greenfloor/internal/lifecycle"
	"greenfloor/internal/models"
	"greenfloor/internal/repository"
)

// StatusSource is the read side of a venue.
type StatusSource interface {
	GetOffer(ctx context.Context, offerID string) (venue.OfferStatus, error)
}

type Engine struct {
	Offers  repository.OfferRepository
	Signals repository.TxSignalRepository
	Venue   StatusSource
	Audit   audit.Recorder
	Logger  *zap.Logger

	// FallbackWindow is how long a venue-reported completion may wait for
	// chain evidence before it is accepted on its own.
	FallbackWindow time.Duration
	MaxOffers      int
	Now            func() time.Time
}

type Result struct {
	MarketID            string `json:"market_id"`
	Checked             int    `json:"checked"`
	Transitioned        int    `json:"transitioned"`
	Orphaned            int    `json:"orphaned"`
	Unknown             int    `json:"unknown"`
	CompletedByChain    int    `json:"completed_by_chain"`
	CompletedByFallback int    `json:"completed_by_fallback"`
	Expired             int    `json:"expired"`
	Cancelled           int    `json:"cancelled"`
	TxIDsAttached       int    `json:"tx_ids_attached"`
	Errors              int    `json:"errors"`
}

func (r Result) Payload() map[string]any {
	return map[string]any{
		"market_id":             r.MarketID,
		"checked":               r.Checked,
		"transitioned":          r.Transitioned,
		"orphaned":              r.Orphaned,
		"unknown":               r.Unknown,
		"completed_by_chain":    r.CompletedByChain,
		"completed_by_fallback": r.CompletedByFallback,
		"expired":               r.Expired,
		"cancelled":             r.Cancelled,
		"tx_ids_attached":       r.TxIDsAttached,
		"errors":                r.Errors,
	}
}

func (r *Result) Add(o Result) {
	r.Checked += o.Checked
	r.Transitioned += o.Transitioned
	r.Orphaned += o.Orphaned
	r.Unknown += o.Unknown
	r.CompletedByChain += o.CompletedByChain
	r.CompletedByFallback += o.CompletedByFallback
	r.Expired += o.Expired
	r.Cancelled += o.Cancelled
	r.TxIDsAttached += o.TxIDsAttached
	r.Errors += o.Errors
}

type pendingEvent struct {
	eventType string
	payload   map[string]any
}

// Run reconciles every non-terminal offer of one market (all markets when
// marketID is empty). Only a storage failure on the initial listing is returned;
// per-offer failures are counted.
func (e *Engine) Run(ctx context.Context, marketID string) (Result, error) {
	res := Result{MarketID: marketID}
	if e == nil || e.Offers == nil {
		return res, nil
	}
	offers, err := e.Offers.ListNonTerminalOffers(ctx, marketID, e.MaxOffers)
	if err != nil {
		return res, err
	}
	for _, offer := range offers {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		res.Checked++
		if err := e.reconcileOne(ctx, offer, &res); err != nil {
			res.Errors++
			e.logger().Warn("reconcile offer failed",
				zap.String("offer_id", offer.OfferID),
				zap.String("market_id", offer.MarketID),
				zap.Error(err))
		}
	}
	e.record(ctx, audit.EventReconciliationPass, marketID, res.Payload())
	return res, nil
}

type observation struct {
	venueChecked bool
	venueFound   bool
	venueStatus  int
	venueTxIDs   []string
	signals      map[string]models.TxSignalState
}

func (e *Engine) observe(ctx context.Context, offer models.OfferState, res *Result) (observation, error) {
	var obs observation
	if e.Venue != nil {
		status, err := e.Venue.GetOffer(ctx, offer.OfferID)
		switch {
		case err == nil:
			obs.venueChecked, obs.venueFound = true, true
			obs.venueStatus = status.Status
			obs.venueTxIDs = coinset.ExtractTxIDs(status.Payload)
		case errors.Is(err, venue.ErrNotFound):
			obs.venueChecked = true
		case errors.Is(err, venue.ErrNotSupported):
		default:
			// Venue unreachable: chain and clock evidence still apply.
			res.Errors++
			e.logger().Warn("venue status lookup failed", zap.String("offer_id", offer.OfferID), zap.Error(err))
		}
	}

	ids := takerTxIDs(offer.TxIDList(), obs.venueTxIDs, offer.CancelTxID)
	if offer.CancelTxID != "" {
		ids = append(ids, offer.CancelTxID)
	}
	if len(ids) > 0 && e.Signals != nil {
		signals, err := e.Signals.GetTxSignals(ctx, ids)
		if err != nil {
			return obs, err
		}
		obs.signals = signals
	}
	return obs, nil
}

func (e *Engine) reconcileOne(ctx context.Context, offer models.OfferState, res *Result) error {
	obs, err := e.observe(ctx, offer, res)
	if err != nil {
		return err
	}
	now := e.now()

	var events []pendingEvent
	var delta Result
	_, err = e.Offers.ApplyOfferTransition(ctx, offer.OfferID, func(item *models.OfferState) (bool, error) {
		events = events[:0]
		delta = Result{}
		changed := false

		if obs.venueFound {
			status := obs.venueStatus
			if item.LastSeenStatus == nil || *item.LastSeenStatus != status {
				item.LastSeenStatus = &status
				changed = true
			}
			if status == lifecycle.VenueCompleted && item.VenueCompletedAt == nil {
				at := now
				item.VenueCompletedAt = &at
				changed = true
			}
		}
		before := len(item.TxIDList())
		if item.AddTxIDs(takerTxIDs(nil, obs.venueTxIDs, item.CancelTxID)...) {
			delta.TxIDsAttached = len(item.TxIDList()) - before
			changed = true
		}

		taker := takerTxIDs(item.TxIDList(), nil, item.CancelTxID)
		ev := lifecycle.Evidence{
			VenueChecked: obs.venueChecked,
			VenueFound:   obs.venueFound,
			VenueStatus:  obs.venueStatus,
			ChainState:   strongest(obs.signals, taker),
		}
		if item.CancelTxID != "" {
			if sig, ok := obs.signals[item.CancelTxID]; ok && sig.State() == models.TxStateBlockConfirmed {
				ev.CancelConfirmedOnChain = true
			}
		}
		if ev.ChainState != lifecycle.ChainNone && item.ChainEvidenceAt == nil {
			at := now
			item.ChainEvidenceAt = &at
			changed = true
		}
		ev.ExpiryPassed = item.ExpiresAt != nil && !now.Before(*item.ExpiresAt)
		ev.FallbackDue = item.State == string(lifecycle.StatePending) &&
			item.ChainEvidenceAt == nil &&
			item.VenueCompletedAt != nil &&
			now.Sub(*item.VenueCompletedAt) >= e.FallbackWindow

		start := lifecycle.Offer{
			ID:            item.OfferID,
			State:         lifecycle.State(item.State),
			Flag:          item.Flag,
			HasTxIDs:      len(taker) > 0,
			ChainEvidence: item.ChainEvidenceAt != nil,
			Emitted:       item.EmittedList(),
		}
		final, transitions := lifecycle.Run(start, lifecycle.Signals(ev))

		for _, tr := range transitions {
			if tr.Diagnostic != "" && obs.venueFound && lifecycle.TakerLikeStatus(obs.venueStatus) {
				key := lifecycle.EffectKey(item.OfferID, "diag_"+lifecycle.VenueStatusName(obs.venueStatus))
				if !item.HasEmitted(key) {
					item.MarkEmitted(key)
					changed = true
					events = append(events, pendingEvent{audit.EventTakerDiagnostic, map[string]any{
						"offer_id":     item.OfferID,
						"venue_status": obs.venueStatus,
						"diagnostic":   tr.Diagnostic,
						"state":        string(tr.To),
						"tx_ids":       taker,
					}})
				}
			}
			if !tr.Changed {
				continue
			}
			for _, eff := range tr.Effects {
				item.MarkEmitted(eff.Key)
				payload := map[string]any{
					"offer_id":       item.OfferID,
					"from_state":     string(tr.From),
					"to_state":       string(tr.To),
					"previous_state": string(tr.From),
					"flag":           tr.Flag,
					"signal":         string(tr.Signal.Kind),
					"source":         tr.Signal.Source,
				}
				switch eff.Type {
				case lifecycle.EffectStateChanged:
					events = append(events, pendingEvent{audit.EventOfferStateChanged, payload})
				case lifecycle.EffectFlagged:
					events = append(events, pendingEvent{audit.EventOfferFlagged, payload})
				case lifecycle.EffectTakerConfirmed:
					payload["tx_ids"] = taker
					events = append(events, pendingEvent{audit.EventTakerDetection, payload})
				}
			}
			if tr.To != tr.From {
				delta.Transitioned++
				switch {
				case tr.To == lifecycle.StateOrphaned:
					delta.Orphaned++
				case tr.To == lifecycle.StateCompleted && tr.Signal.Kind == lifecycle.SignalChainConfirmed:
					delta.CompletedByChain++
				case tr.To == lifecycle.StateCompleted && tr.Signal.Kind == lifecycle.SignalVenueCompletedFallback:
					delta.CompletedByFallback++
				case tr.To == lifecycle.StateExpired:
					delta.Expired++
				case tr.To == lifecycle.StateCancelled:
					delta.Cancelled++
				}
			}
			if tr.Flag == lifecycle.FlagUnknown && tr.FromFlag != lifecycle.FlagUnknown {
				delta.Unknown++
			}
		}

		if string(final.State) != item.State || final.Flag != item.Flag {
			if string(final.State) != item.State {
				item.PreviousState = item.State
			}
			item.State = string(final.State)
			item.Flag = final.Flag
			item.FlagReason = flagReason(transitions)
			changed = true
		}
		return changed, nil
	})
	if err != nil {
		return err
	}

	res.Add(delta)
	for _, ev := range events {
		e.record(ctx, ev.eventType, offer.MarketID, ev.payload)
	}
	return nil
}

func (e *Engine) record(ctx context.Context, eventType string, marketID string, payload map[string]any) {
	if e.Audit == nil {
		return
	}
	if err := e.Audit.Record(ctx, eventType, marketID, payload); err != nil {
		e.logger().Warn("audit record failed", zap.String("event_type", eventType), zap.Error(err))
	}
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

func (e *Engine) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

// strongest returns the strongest chain evidence across ids.
func strongest(signals map[string]models.TxSignalState, ids []string) string {
	out := lifecycle.ChainNone
	for _, id := range ids {
		sig, ok := signals[id]
		if !ok {
			continue
		}
		switch sig.State() {
		case models.TxStateBlockConfirmed:
			return lifecycle.ChainConfirmed
		case models.TxStateMempoolObserved:
			out = lifecycle.ChainMempool
		}
	}
	return out
}

// takerTxIDs merges known and newly seen ids, dropping the offer's own cancel tx.
func takerTxIDs(known []string, seen []string, cancelTxID string) []string {
	out := make([]string, 0, len(known)+len(seen))
	dup := make(map[string]struct{}, len(known)+len(seen))
	for _, list := range [][]string{known, seen} {
		for _, id := range list {
			if id == "" || id == cancelTxID {
				continue
			}
			if _, ok := dup[id]; ok {
				continue
			}
			dup[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

func flagReason(transitions []lifecycle.Transition) string {
	for i := len(transitions) - 1; i >= 0; i-- {
		tr := transitions[i]
		if !tr.Changed {
			continue
		}
		switch tr.Flag {
		case lifecycle.FlagUnknown:
			return lifecycle.ReasonUnrecognized
		case lifecycle.FlagOrphaned:
			return "venue_not_found"
		}
		return ""
	}
	return ""
}
