package lifecycle

type SignalKind string

const (
	SignalSubmitted              SignalKind = "submitted"
	SignalVenueStatus            SignalKind = "venue_status"
	SignalVenueNotFound          SignalKind = "venue_not_found"
	SignalChainMempool           SignalKind = "chain_mempool"
	SignalChainConfirmed         SignalKind = "chain_confirmed"
	SignalCancelRequested        SignalKind = "cancel_requested"
	SignalCancelConfirmed        SignalKind = "cancel_confirmed"
	SignalExpiredByClock         SignalKind = "expired_by_clock"
	SignalVenueCompletedFallback SignalKind = "venue_completed_fallback"
)

type Signal struct {
	Kind        SignalKind
	VenueStatus int
	Source      string
}

// Offer is the slice of offer state the machine needs.
type Offer struct {
	ID            string
	State         State
	Flag          string
	HasTxIDs      bool
	ChainEvidence bool
	Emitted       []string
}

type EffectType string

const (
	EffectStateChanged   EffectType = "offer_state_changed"
	EffectFlagged        EffectType = "offer_flagged"
	EffectTakerConfirmed EffectType = "taker_confirmed"
)

type Effect struct {
	Type  EffectType
	Key   string
	State State
	Flag  string
}

type Transition struct {
	OfferID    string
	Signal     Signal
	From       State
	To         State
	FromFlag   string
	Flag       string
	Changed    bool
	Effects    []Effect
	Diagnostic string
	Reason     string
}

// Diagnostics and reasons reported on transitions that leave state untouched.
const (
	DiagChainWins           = "venue_status_diagnostic_chain_wins"
	DiagVenueCompleted      = "venue_completed_awaiting_chain"
	DiagTakerPattern        = "venue_taker_pattern"
	ReasonTerminal          = "terminal_state"
	ReasonNotAllowed        = "transition_not_allowed"
	ReasonNoTxIDs           = "no_tx_ids_for_chain_completion"
	ReasonUnrecognized      = "unrecognized_venue_status"
	ReasonFallbackNotActive = "fallback_requires_pending_without_chain"
)

// EffectKey deduplicates side effects per offer and target.
func EffectKey(offerID string, target string) string {
	return offerID + ":" + target
}

// Apply is the pure transition function. It never fails; refusals are reported in Reason.
func Apply(o Offer, sig Signal) Transition {
	tr := Transition{
		OfferID:  o.ID,
		Signal:   sig,
		From:     o.State,
		To:       o.State,
		FromFlag: o.Flag,
		Flag:     o.Flag,
	}
	if o.State.Terminal() {
		tr.Reason = ReasonTerminal
		return tr
	}

	target := o.State
	flag := o.Flag
	switch sig.Kind {
	case SignalSubmitted:
		target = StateSubmitted
	case SignalVenueStatus:
		if o.ChainEvidence {
			tr.Diagnostic = DiagChainWins
			return tr
		}
		if TakerLikeStatus(sig.VenueStatus) {
			tr.Diagnostic = DiagTakerPattern
		}
		switch sig.VenueStatus {
		case VenueOpen:
			target = StateOpen
		case VenuePending:
			target = StatePending
		case VenueCancelling:
			target = StateCancelling
		case VenueCancelled:
			target = StateCancelled
		case VenueCompleted:
			// Venue completion alone only proves a taker acted.
			target = StatePending
			tr.Diagnostic = DiagVenueCompleted
		case VenueExpired:
			target = StateExpired
		default:
			flag = FlagUnknown
			tr.Reason = ReasonUnrecognized
		}
		if flag == FlagUnknown && tr.Reason == "" {
			flag = FlagNone
		}
	case SignalVenueNotFound:
		if o.ChainEvidence {
			tr.Diagnostic = DiagChainWins
			return tr
		}
		target = StateOrphaned
		flag = FlagOrphaned
	case SignalChainMempool:
		target = StatePending
		if o.State == StateOrphaned || flag == FlagUnknown {
			flag = FlagNone
		}
	case SignalChainConfirmed:
		if !o.HasTxIDs {
			tr.Reason = ReasonNoTxIDs
			return tr
		}
		target = StateCompleted
		flag = FlagNone
	case SignalCancelRequested:
		target = StateCancelling
	case SignalCancelConfirmed:
		target = StateCancelled
	case SignalExpiredByClock:
		if o.ChainEvidence {
			tr.Diagnostic = DiagChainWins
			return tr
		}
		target = StateExpired
	case SignalVenueCompletedFallback:
		if o.ChainEvidence || o.State != StatePending {
			tr.Reason = ReasonFallbackNotActive
			return tr
		}
		target = StateCompleted
		flag = FlagNone
	}

	if target != o.State && !CanTransition(o.State, target) {
		tr.Reason = ReasonNotAllowed
		return tr
	}
	if target == StateOrphaned {
		flag = FlagOrphaned
	} else if o.Flag == FlagOrphaned && target != o.State {
		flag = FlagNone
	}
	if target == o.State && flag == o.Flag {
		return tr
	}

	tr.To = target
	tr.Flag = flag
	tr.Changed = true
	emitted := make(map[string]struct{}, len(o.Emitted))
	for _, k := range o.Emitted {
		emitted[k] = struct{}{}
	}
	add := func(e Effect) {
		if _, ok := emitted[e.Key]; ok {
			return
		}
		emitted[e.Key] = struct{}{}
		tr.Effects = append(tr.Effects, e)
	}
	if target != o.State {
		key := EffectKey(o.ID, string(target))
		if o.State == StateOrphaned {
			// the target key was usually emitted before the offer went missing
			key = EffectKey(o.ID, "recovered_"+string(target))
		}
		add(Effect{Type: EffectStateChanged, Key: key, State: target, Flag: flag})
		if target == StateCompleted && sig.Kind == SignalChainConfirmed {
			add(Effect{Type: EffectTakerConfirmed, Key: EffectKey(o.ID, string(EffectTakerConfirmed)), State: target})
		}
	}
	if flag == FlagUnknown && o.Flag != FlagUnknown {
		add(Effect{Type: EffectFlagged, Key: EffectKey(o.ID, "flag_"+flag), State: target, Flag: flag})
	}
	return tr
}

// Evidence is what one reconciliation pass observed for an offer.
type Evidence struct {
	VenueChecked bool
	VenueFound   bool
	VenueStatus  int

	// ChainState is the strongest tx signal over the offer's taker tx ids.
	ChainState             string
	CancelConfirmedOnChain bool
	ExpiryPassed           bool
	FallbackDue            bool
}

const (
	ChainNone      = ""
	ChainMempool   = "mempool_observed"
	ChainConfirmed = "block_confirmed"
)

// Signals orders the evidence into signals. Chain evidence comes first and, when
// present, venue status is passed only as a diagnostic.
func Signals(ev Evidence) []Signal {
	out := make([]Signal, 0, 3)
	switch ev.ChainState {
	case ChainConfirmed:
		return append(out, Signal{Kind: SignalChainConfirmed, Source: "chain"})
	case ChainMempool:
		out = append(out, Signal{Kind: SignalChainMempool, Source: "chain"})
		if ev.VenueChecked && ev.VenueFound {
			out = append(out, Signal{Kind: SignalVenueStatus, VenueStatus: ev.VenueStatus, Source: "venue"})
		}
		return out
	}
	if ev.CancelConfirmedOnChain {
		return append(out, Signal{Kind: SignalCancelConfirmed, Source: "chain"})
	}
	if !ev.VenueChecked {
		if ev.ExpiryPassed {
			out = append(out, Signal{Kind: SignalExpiredByClock, Source: "clock"})
		}
		return out
	}
	if !ev.VenueFound {
		if ev.ExpiryPassed {
			return append(out, Signal{Kind: SignalExpiredByClock, Source: "clock"})
		}
		return append(out, Signal{Kind: SignalVenueNotFound, Source: "venue"})
	}
	out = append(out, Signal{Kind: SignalVenueStatus, VenueStatus: ev.VenueStatus, Source: "venue"})
	if ev.FallbackDue {
		out = append(out, Signal{Kind: SignalVenueCompletedFallback, Source: "venue"})
	}
	return out
}

// Run applies signals in order, threading state and emitted keys between steps.
func Run(o Offer, signals []Signal) (Offer, []Transition) {
	out := make([]Transition, 0, len(signals))
	for _, sig := range signals {
		tr := Apply(o, sig)
		out = append(out, tr)
		if !tr.Changed {
			continue
		}
		o.State = tr.To
		o.Flag = tr.Flag
		for _, e := range tr.Effects {
			o.Emitted = append(o.Emitted, e.Key)
		}
	}
	return o, out
}
