package approval

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/mhrivnak/orderflow/pkg/config"
	"github.com/mhrivnak/orderflow/pkg/hooks"
	"github.com/mhrivnak/orderflow/pkg/quota"
)

// Hook types accepted in approval.hooks.
const (
	TypeFirstApproverGroup = "first_approver_group"
	TypeStagedApproval     = "staged_approval"
	TypeTwoUserApproval    = "two_user_approval"
	TypePreExecutionCheck  = "pre_execution_check"
	TypeThresholdSubmit    = "threshold_submission"
	TypeThresholdApproval  = "threshold_approval"
	TypeRateThreshold      = "rate_threshold"
	TypeQuotaGuard         = "quota_guard"
)

var defaultTriggers = map[string]hooks.Trigger{
	TypeFirstApproverGroup: hooks.OrderSubmission,
	TypeStagedApproval:     hooks.OrderApproval,
	TypeTwoUserApproval:    hooks.OrderApproval,
	TypePreExecutionCheck:  hooks.PreOrderExecution,
	TypeThresholdSubmit:    hooks.OrderSubmission,
	TypeThresholdApproval:  hooks.OrderApproval,
	TypeRateThreshold:      hooks.OrderSubmission,
	TypeQuotaGuard:         hooks.OrderSubmission,
}

// BuildRunner registers the hooks declared in cfg. Param values and stage groups may use
// {{ name }} to refer to cfg.Parameters.
func BuildRunner(cfg config.Approval, log logrus.FieldLogger) (*hooks.Runner, error) {
	runner := hooks.NewRunner(log)
	for i, hc := range cfg.Hooks {
		name := hc.Name
		if name == "" {
			name = fmt.Sprintf("%s-%d", hc.Type, i+1)
		}

		params, err := hooks.SubstituteAll(hc.Params, cfg.Parameters)
		if err != nil {
			return nil, fmt.Errorf("hook %q: %w", name, err)
		}
		stages := make([]Stage, 0, len(hc.Stages))
		for _, s := range hc.Stages {
			group, err := hooks.Substitute(s.Group, cfg.Parameters)
			if err != nil {
				return nil, fmt.Errorf("hook %q: %w", name, err)
			}
			stages = append(stages, Stage{Group: group, MinApprovers: s.MinApprovers})
		}

		hook, err := newHook(hc.Type, stages, params)
		if err != nil {
			return nil, fmt.Errorf("hook %q: %w", name, err)
		}

		trigger := hooks.Trigger(hc.Trigger)
		if trigger == "" {
			trigger = defaultTriggers[hc.Type]
		}
		if err := runner.Register(trigger, name, hook, params); err != nil {
			return nil, err
		}
		log.WithFields(logrus.Fields{"hook": name, "type": hc.Type, "trigger": trigger}).Info("Registered hook")
	}
	return runner, nil
}

func newHook(hookType string, stages []Stage, params map[string]string) (hooks.Hook, error) {
	switch hookType {
	case TypeFirstApproverGroup:
		group := params["group"]
		if group == "" {
			return nil, fmt.Errorf("param group is required")
		}
		return &FirstApproverHook{SourceGroups: splitList(params["source_groups"]), ApproverGroup: group}, nil

	case TypeStagedApproval, TypePreExecutionCheck:
		workflow, err := NewWorkflow(stages...)
		if err != nil {
			return nil, err
		}
		if hookType == TypeStagedApproval {
			return &StagedApprovalHook{Workflow: workflow}, nil
		}
		return &PreExecutionCheckHook{Workflow: workflow}, nil

	case TypeTwoUserApproval:
		min, err := intParam(params, "min_approvers", 2)
		if err != nil {
			return nil, err
		}
		workflow, err := NewWorkflow(Stage{MinApprovers: min})
		if err != nil {
			return nil, err
		}
		return &StagedApprovalHook{Workflow: workflow}, nil

	case TypeThresholdSubmit:
		threshold, err := thresholdParam(params, 0.5)
		if err != nil {
			return nil, err
		}
		attrs, err := attributesParam(params, []quota.Attribute{quota.Rate, quota.VMCount})
		if err != nil {
			return nil, err
		}
		return &ThresholdSubmissionHook{Threshold: threshold, Attributes: attrs}, nil

	case TypeThresholdApproval:
		threshold, err := thresholdParam(params, 0.9)
		if err != nil {
			return nil, err
		}
		attrs, err := attributesParam(params, []quota.Attribute{quota.Rate, quota.VMCount})
		if err != nil {
			return nil, err
		}
		min, err := intParam(params, "min_approvers", 2)
		if err != nil {
			return nil, err
		}
		groups := splitList(params["groups"])
		if len(groups) == 0 {
			groups = []string{"IT", "Finance"}
		}
		return &ThresholdApprovalHook{Threshold: threshold, Attributes: attrs, Groups: groups, MinApprovers: min}, nil

	case TypeRateThreshold:
		threshold, err := floatParam(params, "rate_threshold", 0)
		if err != nil {
			return nil, err
		}
		if threshold <= 0 {
			return nil, fmt.Errorf("param rate_threshold must be positive")
		}
		return &RateThresholdHook{Threshold: threshold}, nil

	case TypeQuotaGuard:
		return &QuotaGuardHook{}, nil

	default:
		return nil, fmt.Errorf("unknown hook type %q", hookType)
	}
}

func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func floatParam(params map[string]string, name string, def float64) (float64, error) {
	value, ok := params[name]
	if !ok || value == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("param %s: %q is not a number", name, value)
	}
	return f, nil
}

func thresholdParam(params map[string]string, def float64) (float64, error) {
	threshold, err := floatParam(params, "threshold", def)
	if err != nil {
		return 0, err
	}
	if !(threshold >= 0 && threshold <= 1) {
		return 0, fmt.Errorf("param threshold must be between 0 and 1, got %v", threshold)
	}
	return threshold, nil
}

func intParam(params map[string]string, name string, def int) (int, error) {
	value, ok := params[name]
	if !ok || value == "" {
		return def, nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("param %s: %q is not an integer", name, value)
	}
	return i, nil
}

func attributesParam(params map[string]string, def []quota.Attribute) ([]quota.Attribute, error) {
	names := splitList(params["attributes"])
	if len(names) == 0 {
		return def, nil
	}
	return quota.ParseAttributes(names)
}
