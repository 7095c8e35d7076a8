package workflow

// Status is the lifecycle state of a return request.
type Status string

const (
	StatusRequested   Status = "requested"
	StatusApproved    Status = "approved"
	StatusDenied      Status = "denied"
	StatusLabelIssued Status = "label_issued"
	StatusInTransit   Status = "in_transit"
	StatusReceived    Status = "received"
	StatusResolved    Status = "resolved"
)

// transitions lists every legal status edge. A status that maps to an empty
// slice is terminal; a status missing from the map is unknown and has no
// outgoing edges either way.
var transitions = map[Status][]Status{
	StatusRequested:   {StatusApproved, StatusDenied},
	StatusApproved:    {StatusLabelIssued, StatusDenied},
	StatusLabelIssued: {StatusInTransit},
	StatusInTransit:   {StatusReceived},
	StatusReceived:    {StatusResolved, StatusDenied},
	StatusDenied:      {},
	StatusResolved:    {},
}

// CanTransition reports whether moving a return from `from` to `to` is legal.
// Unknown statuses, self-loops and edges out of terminal statuses all return
// false; a false result is the error signal, no error type exists for it.
func CanTransition(from, to Status) bool {
	allowed, ok := transitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a return in this status can never move again.
func IsTerminal(status Status) bool {
	allowed, ok := transitions[status]
	return ok && len(allowed) == 0
}

// ValidStatus reports whether s is a member of the fixed status set.
func ValidStatus(s Status) bool {
	_, ok := transitions[s]
	return ok
}

// AllowedTransitions returns a copy of the legal targets from a status.
func AllowedTransitions(from Status) []Status {
	allowed, ok := transitions[from]
	if !ok {
		return []Status{}
	}
	out := make([]Status, len(allowed))
	copy(out, allowed)
	return out
}

// Statuses returns the full status set in workflow order.
func Statuses() []Status {
	return []Status{
		StatusRequested,
		StatusApproved,
		StatusDenied,
		StatusLabelIssued,
		StatusInTransit,
		StatusReceived,
		StatusResolved,
	}
}
