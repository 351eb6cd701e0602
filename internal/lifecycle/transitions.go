package lifecycle

import (
	"fmt"

	"github.com/keystone-erp/keystone-erp/internal/accounting/journals"
)

// TransitionMap declares the legal target states per current state. It is
// overridable per organization; missing states fall back to the default map.
type TransitionMap map[journals.Status][]journals.Status

// DefaultTransitions returns the built-in state machine.
func DefaultTransitions() TransitionMap {
	return TransitionMap{
		journals.StatusDraft:            {journals.StatusAwaitingApproval, journals.StatusPosted},
		journals.StatusAwaitingApproval: {journals.StatusApproved, journals.StatusRejected},
		journals.StatusApproved:         {journals.StatusPosted},
		journals.StatusRejected:         {journals.StatusDraft},
		journals.StatusPosted:           {journals.StatusReversed},
		journals.StatusReversed:         {},
	}
}

// Allowed reports whether from -> to is a legal transition.
func (m TransitionMap) Allowed(from, to journals.Status) bool {
	targets, ok := m[from]
	if !ok {
		targets = DefaultTransitions()[from]
	}
	for _, t := range targets {
		if t == to {
			return true
		}
	}
	return false
}

// TransitionError reports an illegal state transition, including no-ops.
type TransitionError struct {
	From journals.Status
	To   journals.Status
}

func (e *TransitionError) Error() string {
	if e.From == e.To {
		return fmt.Sprintf("lifecycle: document already in status %s", e.From)
	}
	return fmt.Sprintf("lifecycle: transition %s -> %s not allowed", e.From, e.To)
}
