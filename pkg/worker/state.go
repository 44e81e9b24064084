package worker

import "k8s.io/apimachinery/pkg/util/sets"

// State is a worker lifecycle state.
type State int

const (
	// Initial: process spawned, not yet reported ready.
	Initial State = iota
	// Fresh: ready and never used.
	Fresh
	// Busy: executing an event.
	Busy
	// Targeted: available again while still bound to its last target.
	Targeted
	// Timeouted: exceeded its deadline and is being killed.
	Timeouted
	// Outdated: invalidated, must never be scheduled again.
	Outdated
)

var stateNames = map[State]string{
	Initial:   "initial",
	Fresh:     "fresh",
	Busy:      "busy",
	Targeted:  "targeted",
	Timeouted: "timeouted",
	Outdated:  "outdated",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// AllStates lists every state in declaration order.
func AllStates() []State {
	return []State{Initial, Fresh, Busy, Targeted, Timeouted, Outdated}
}

// Outdated is terminal: an invalidated worker is never re-labelled as timed out.
var transitions = map[State]sets.Set[State]{
	Initial:   sets.New(Fresh, Timeouted, Outdated),
	Fresh:     sets.New(Busy, Timeouted, Outdated),
	Busy:      sets.New(Targeted, Timeouted, Outdated),
	Targeted:  sets.New(Busy, Timeouted, Outdated),
	Timeouted: sets.New[State](),
	Outdated:  sets.New[State](),
}

// CanTransition reports whether from -> to is in the adjacency table.
func CanTransition(from, to State) bool {
	next, ok := transitions[from]
	return ok && next.Has(to)
}

func (s State) IsTerminal() bool {
	return s == Timeouted || s == Outdated
}

// IsAvailable reports whether a worker in this state can take an event.
func (s State) IsAvailable() bool {
	return s == Fresh || s == Targeted
}
