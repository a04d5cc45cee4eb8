// Package approval implements the order approval workflow: the built-in hooks for the
// submission, approval and pre-execution trigger points, and the service that applies their
// decisions to orders.
package approval

import (
	"fmt"
	"strings"

	"github.com/mhrivnak/orderflow/pkg/database/models"
	"github.com/mhrivnak/orderflow/pkg/hooks"
)

// Stage is one step of a multi-stage approval.
type Stage struct {
	// Group whose approver must be among the approvers. Empty means any approver counts.
	Group string
	// MinApprovers is the total number of approvers needed once this stage is reached,
	// counting the approvers of earlier stages.
	MinApprovers int
}

// Workflow is an ordered list of stages. Stage k is satisfied when the approvers number at
// least its MinApprovers and include an approver of every group of stages 1..k.
type Workflow struct {
	stages []Stage
}

func NewWorkflow(stages ...Stage) (*Workflow, error) {
	if len(stages) == 0 {
		return nil, fmt.Errorf("workflow needs at least one stage")
	}
	for i, stage := range stages {
		if stage.MinApprovers < 0 {
			return nil, fmt.Errorf("stage %d: min approvers cannot be negative", i+1)
		}
		if stage.Group == "" && stage.MinApprovers == 0 {
			return nil, fmt.Errorf("stage %d: needs a group or a minimum number of approvers", i+1)
		}
	}
	return &Workflow{stages: stages}, nil
}

func (w *Workflow) Stages() []Stage {
	return w.stages
}

// FirstGroup is the group an order starts with.
func (w *Workflow) FirstGroup() string {
	return w.stages[0].Group
}

// Evaluate decides the state of an order from its approvers alone, so the same approvers
// always produce the same decision.
func (w *Workflow) Evaluate(approvers []models.User) hooks.Decision {
	for k, stage := range w.stages {
		missing := missingGroups(approvers, w.groupsThrough(k))
		if len(approvers) >= stage.MinApprovers && len(missing) == 0 {
			continue
		}

		reason := fmt.Sprintf("stage %d of %d: %d of %d approvers", k+1, len(w.stages), len(approvers), stage.MinApprovers)
		if len(missing) > 0 {
			reason += fmt.Sprintf(", waiting for %s", strings.Join(missing, ", "))
		}
		if k == 0 || stage.Group == "" {
			return hooks.Pending(reason)
		}
		return hooks.AdvanceTo(stage.Group, reason)
	}
	return hooks.Approved(fmt.Sprintf("all %d stages approved", len(w.stages)))
}

func (w *Workflow) groupsThrough(k int) []string {
	var groups []string
	for _, stage := range w.stages[:k+1] {
		if stage.Group != "" {
			groups = append(groups, stage.Group)
		}
	}
	return groups
}

// missingGroups returns the groups without an approver among approvers.
func missingGroups(approvers []models.User, groups []string) []string {
	var missing []string
	for _, group := range groups {
		covered := false
		for i := range approvers {
			if approvers[i].HasRole(group, models.RoleApprover) {
				covered = true
				break
			}
		}
		if !covered {
			missing = append(missing, group)
		}
	}
	return missing
}
