package hooks

import "fmt"

// Outcome is the verdict of an approval hook on a pending order.
type Outcome string

const (
	// OutcomePending keeps the order waiting for more approvals.
	OutcomePending Outcome = "PENDING"
	// OutcomeAdvance routes the order to the next approval group.
	OutcomeAdvance Outcome = "ADVANCE"
	// OutcomeApproved completes the approval of the order.
	OutcomeApproved Outcome = "APPROVED"
	// OutcomeDenied rejects the order.
	OutcomeDenied Outcome = "DENIED"
)

// Decision is recorded on the hook context by hooks that decide the fate of an order.
type Decision struct {
	Outcome Outcome `json:"outcome" yaml:"outcome"`
	// Group is the group responsible for the next approval when Outcome is OutcomeAdvance.
	Group  string `json:"group,omitempty" yaml:"group,omitempty"`
	Reason string `json:"reason,omitempty" yaml:"reason,omitempty"`
}

func Pending(reason string) Decision {
	return Decision{Outcome: OutcomePending, Reason: reason}
}

func AdvanceTo(group, reason string) Decision {
	return Decision{Outcome: OutcomeAdvance, Group: group, Reason: reason}
}

func Approved(reason string) Decision {
	return Decision{Outcome: OutcomeApproved, Reason: reason}
}

func Denied(reason string) Decision {
	return Decision{Outcome: OutcomeDenied, Reason: reason}
}

func (d Decision) String() string {
	if d.Outcome == OutcomeAdvance {
		return fmt.Sprintf("%s(%s)", d.Outcome, d.Group)
	}
	return string(d.Outcome)
}
