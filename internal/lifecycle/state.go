package lifecycle

// State is the lifecycle position of one offer.
type State string

const (
	StatePlanned    State = "planned"
	StateSubmitted  State = "submitted"
	StateOpen       State = "open"
	StatePending    State = "pending"
	StateCancelling State = "cancelling"
	StateCancelled  State = "cancelled"
	StateCompleted  State = "completed"
	StateExpired    State = "expired"
	StateOrphaned   State = "orphaned"
	StateUnknown    State = "unknown"
)

const (
	FlagNone     = ""
	FlagOrphaned = "orphaned"
	FlagUnknown  = "unknown"
)

// Venue status codes as reported by the posting venue.
const (
	VenueOpen       = 0
	VenuePending    = 1
	VenueCancelling = 2
	VenueCancelled  = 3
	VenueCompleted  = 4
	VenueUnknown    = 5
	VenueExpired    = 6
)

func (s State) Terminal() bool {
	switch s {
	case StateCancelled, StateCompleted, StateExpired:
		return true
	}
	return false
}

func (s State) Valid() bool {
	switch s {
	case StatePlanned, StateSubmitted, StateOpen, StatePending, StateCancelling,
		StateCancelled, StateCompleted, StateExpired, StateOrphaned:
		return true
	}
	return false
}

// NonTerminal lists states reconciliation has to revisit.
func NonTerminal() []State {
	return []State{StateSubmitted, StateOpen, StatePending, StateCancelling, StateOrphaned}
}

// edges is the directed transition graph. Terminal states have no outgoing edges.
var edges = map[State]map[State]bool{
	StatePlanned: {
		StateSubmitted: true,
	},
	StateSubmitted: {
		StateOpen: true, StatePending: true, StateCancelling: true, StateCancelled: true,
		StateCompleted: true, StateExpired: true, StateOrphaned: true,
	},
	StateOpen: {
		StatePending: true, StateCancelling: true, StateCancelled: true,
		StateCompleted: true, StateExpired: true, StateOrphaned: true,
	},
	StatePending: {
		StateOpen: true, StateCancelling: true, StateCancelled: true,
		StateCompleted: true, StateExpired: true, StateOrphaned: true,
	},
	StateCancelling: {
		StatePending: true, StateCancelled: true, StateCompleted: true,
		StateExpired: true, StateOrphaned: true,
	},
	// The venue listing the offer again clears the orphan mark.
	StateOrphaned: {
		StateOpen: true, StatePending: true, StateCancelling: true, StateCancelled: true,
		StateCompleted: true, StateExpired: true,
	},
}

// CanTransition reports whether from -> to is an edge of the lifecycle graph.
func CanTransition(from, to State) bool {
	return edges[from][to]
}

// VenueStatusName maps a venue code to its name; unrecognised codes map to unknown.
func VenueStatusName(code int) string {
	switch code {
	case VenueOpen:
		return "open"
	case VenuePending:
		return "pending"
	case VenueCancelling:
		return "cancelling"
	case VenueCancelled:
		return "cancelled"
	case VenueCompleted:
		return "completed"
	case VenueExpired:
		return "expired"
	}
	return "unknown"
}

// TakerLikeStatus reports venue statuses that suggest a taker acted.
func TakerLikeStatus(code int) bool {
	return code == VenuePending || code == VenueCompleted
}
