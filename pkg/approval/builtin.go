package approval

import (
	"context"
	"fmt"
	"strings"

	"github.com/mhrivnak/orderflow/pkg/database/models"
	"github.com/mhrivnak/orderflow/pkg/hooks"
	"github.com/mhrivnak/orderflow/pkg/quota"
)

// FirstApproverHook routes orders of the source groups to a single approver group at
// submission. With no source groups every order is routed.
type FirstApproverHook struct {
	SourceGroups  []string
	ApproverGroup string
}

func (h *FirstApproverHook) Run(ctx context.Context, hc *hooks.Context) (hooks.Result, error) {
	if hc.Order == nil || hc.Order.Group == nil {
		return hooks.Failure("", "order with its group is required"), nil
	}
	if len(h.SourceGroups) > 0 && !contains(h.SourceGroups, hc.Order.Group.Name) {
		return hooks.Neutral(), nil
	}
	if hc.Groups == nil {
		return hooks.Failure("", "no group directory available"), nil
	}

	group, err := hc.Groups.GetByName(ctx, h.ApproverGroup)
	if err != nil {
		return hooks.Failure("", fmt.Sprintf("approver group %q: %v", h.ApproverGroup, err)), nil
	}

	hc.AssignApprovalGroups(*group)
	hc.Log().WithField("group", group.Name).Info("Order routed to first approver group")
	return hooks.Neutral(), nil
}

// StagedApprovalHook evaluates a workflow every time an approver approves.
type StagedApprovalHook struct {
	Workflow *Workflow
}

func (h *StagedApprovalHook) Run(ctx context.Context, hc *hooks.Context) (hooks.Result, error) {
	decision := h.Workflow.Evaluate(hc.Approvers)
	hc.Decide(decision)
	return hooks.Result{Output: decision.Reason}, nil
}

// PreExecutionCheckHook fails orders that reach execution without every stage of the
// workflow satisfied.
type PreExecutionCheckHook struct {
	Workflow *Workflow
}

func (h *PreExecutionCheckHook) Run(ctx context.Context, hc *hooks.Context) (hooks.Result, error) {
	decision := h.Workflow.Evaluate(hc.Approvers)
	if decision.Outcome != hooks.OutcomeApproved {
		return hooks.Failure("", "order is missing required approvals: "+decision.Reason), nil
	}
	return hooks.Neutral(), nil
}

// ThresholdSubmissionHook approves orders outright when they keep the group below the
// threshold on every checked attribute.
type ThresholdSubmissionHook struct {
	Threshold  float64
	Attributes []quota.Attribute
}

func (h *ThresholdSubmissionHook) Run(ctx context.Context, hc *hooks.Context) (hooks.Result, error) {
	if hc.Order == nil || hc.Order.Group == nil {
		return hooks.Failure("", "order with its group is required"), nil
	}
	exceeds, err := quota.Evaluate(hc.Order.Group.QuotaSet(), hc.Order.NetUsage(), h.Threshold, h.Attributes...)
	if err != nil {
		return hooks.Result{}, err
	}
	if exceeds {
		return hooks.Result{Output: fmt.Sprintf("order reaches %.0f%% of the group quota", h.Threshold*100)}, nil
	}
	hc.Decide(hooks.Approved(fmt.Sprintf("order keeps the group below %.0f%% of its quota", h.Threshold*100)))
	return hooks.Neutral(), nil
}

// ThresholdApprovalHook escalates orders that push the group to the escalation threshold:
// they need MinApprovers approvers covering every escalation group. Other orders are
// approved by a single approval.
type ThresholdApprovalHook struct {
	Threshold    float64
	Attributes   []quota.Attribute
	Groups       []string
	MinApprovers int
}

func (h *ThresholdApprovalHook) Run(ctx context.Context, hc *hooks.Context) (hooks.Result, error) {
	if hc.Order == nil || hc.Order.Group == nil {
		return hooks.Failure("", "order with its group is required"), nil
	}
	exceeds, err := quota.Evaluate(hc.Order.Group.QuotaSet(), hc.Order.NetUsage(), h.Threshold, h.Attributes...)
	if err != nil {
		return hooks.Result{}, err
	}
	if !exceeds {
		hc.Decide(hooks.Approved("order is below the escalation threshold"))
		return hooks.Neutral(), nil
	}

	missing := missingGroups(hc.Approvers, h.Groups)
	if len(hc.Approvers) >= h.MinApprovers && len(missing) == 0 {
		hc.Decide(hooks.Approved("escalated order approved by " + strings.Join(h.Groups, ", ")))
		return hooks.Neutral(), nil
	}
	reason := fmt.Sprintf("escalated order has %d of %d approvers", len(hc.Approvers), h.MinApprovers)
	if len(missing) > 0 {
		reason += ", waiting for " + strings.Join(missing, ", ")
	}
	hc.Decide(hooks.Pending(reason))
	return hooks.Result{Output: reason}, nil
}

// RateThresholdHook approves pending orders whose rate is below Threshold and leaves a
// comment on the others.
type RateThresholdHook struct {
	Threshold float64
}

func (h *RateThresholdHook) Run(ctx context.Context, hc *hooks.Context) (hooks.Result, error) {
	if hc.Order == nil {
		return hooks.Failure("", "order is required"), nil
	}
	if hc.Order.Status != models.OrderPending {
		return hooks.Result{Output: "order is not pending"}, nil
	}
	if hc.Order.Rate < h.Threshold {
		hc.Decide(hooks.Approved(fmt.Sprintf("rate %v is below %v", hc.Order.Rate, h.Threshold)))
		return hooks.Neutral(), nil
	}
	hc.AddComment(fmt.Sprintf("Rate %v is at or above the auto-approval threshold of %v, manual approval is required.",
		hc.Order.Rate, h.Threshold))
	return hooks.Neutral(), nil
}

// QuotaGuardHook denies orders that would push any attribute past its hard limit.
type QuotaGuardHook struct{}

func (h *QuotaGuardHook) Run(ctx context.Context, hc *hooks.Context) (hooks.Result, error) {
	if hc.Order == nil || hc.Order.Group == nil {
		return hooks.Failure("", "order with its group is required"), nil
	}
	if err := hc.Order.Group.QuotaSet().CanUse(hc.Order.NetUsage()); err != nil {
		hc.Decide(hooks.Denied(err.Error()))
		return hooks.Warning(err.Error()), nil
	}
	return hooks.Neutral(), nil
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}
