package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mhrivnak/orderflow/pkg/approval"
	"github.com/mhrivnak/orderflow/pkg/errdef"
	"github.com/mhrivnak/orderflow/pkg/hooks"
)

// hookReport is what run-hook prints. Nothing it shows is saved.
type hookReport struct {
	Trigger        hooks.Trigger     `yaml:"trigger"`
	Order          string            `yaml:"order"`
	Executions     []hooks.Execution `yaml:"executions"`
	Decision       *hooks.Decision   `yaml:"decision,omitempty"`
	ApprovalGroups []string          `yaml:"approval_groups,omitempty"`
	Comments       []string          `yaml:"comments,omitempty"`
	Failure        string            `yaml:"failure,omitempty"`
}

func newRunHookCommand(a *app) *cobra.Command {
	var paramsFile string

	cmd := &cobra.Command{
		Use:   "run-hook <trigger> <order-id>",
		Short: "Run the configured hooks of a trigger point against an order without saving anything",
		Long: "Runs the hooks registered for order_submission, order_approval or pre_order_execution " +
			"and prints their results, the decision and any approval group assignment as YAML. " +
			"--params points to a YAML map that overrides approval.parameters.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			trigger := hooks.Trigger(args[0])
			if !trigger.Valid() {
				return errdef.NewBadRequest("unknown trigger point %q", args[0])
			}
			orderID, err := uuid.Parse(args[1])
			if err != nil {
				return errdef.NewBadRequest("invalid order id %q", args[1])
			}

			cfg := a.cfg.Approval
			if paramsFile != "" {
				cfg.Parameters, err = mergeParams(cfg.Parameters, paramsFile)
				if err != nil {
					return err
				}
			}
			runner, err := approval.BuildRunner(cfg, a.log)
			if err != nil {
				return err
			}

			order, err := a.orders.GetByID(ctx, orderID)
			if err != nil {
				return err
			}
			hc := hooks.NewOrderContext(order, a.groups, a.log)
			executions, runErr := runner.Run(ctx, trigger, hc)

			report := hookReport{Trigger: trigger, Order: order.ID.String(), Executions: executions, Comments: hc.Comments()}
			if decision, ok := hc.Decision(); ok {
				report.Decision = &decision
			}
			if groups, ok := hc.ApprovalGroups(); ok {
				for _, g := range groups {
					report.ApprovalGroups = append(report.ApprovalGroups, g.Name)
				}
			}
			var failure *hooks.FailureError
			if errors.As(runErr, &failure) {
				report.Failure = failure.Error()
			} else if runErr != nil {
				return runErr
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(report); err != nil {
				return err
			}
			if err := enc.Close(); err != nil {
				return err
			}
			return runErr
		},
	}
	cmd.Flags().StringVar(&paramsFile, "params", "", "YAML file with hook parameters")
	return cmd
}

// mergeParams returns base overlaid with the string map in path.
func mergeParams(base map[string]string, path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read params file: %w", err)
	}
	var overrides map[string]string
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, errdef.NewBadRequest("params file %s: %v", path, err)
	}

	merged := make(map[string]string, len(base)+len(overrides))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged, nil
}
