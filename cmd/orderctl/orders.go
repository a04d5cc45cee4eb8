package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mhrivnak/orderflow/pkg/database/models"
	"github.com/mhrivnak/orderflow/pkg/database/repositories"
	"github.com/mhrivnak/orderflow/pkg/errdef"
)

func newOrderCommand(a *app) *cobra.Command {
	orderCmd := &cobra.Command{
		Use:   "order",
		Short: "Inspect orders",
	}
	orderCmd.AddCommand(newOrderListCommand(a))
	return orderCmd
}

func newOrderListCommand(a *app) *cobra.Command {
	var status, group string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List orders, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			filter := repositories.OrderFilter{Status: models.OrderStatus(strings.ToUpper(status))}
			if filter.Status != "" && !filter.Status.Valid() {
				return errdef.NewBadRequest("unknown order status %q", status)
			}
			if group != "" {
				g, err := a.groups.GetByName(ctx, group)
				if err != nil {
					return err
				}
				filter.GroupID = g.ID
			}

			orders, total, err := a.orders.List(ctx, filter, limit, 0, "")
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-36s %-20s %-10s %-15s %-20s %8s\n", "ID", "NAME", "STATUS", "GROUP", "APPROVAL GROUPS", "RATE")
			for _, o := range orders {
				groupName := ""
				if o.Group != nil {
					groupName = o.Group.Name
				}
				fmt.Fprintf(out, "%-36s %-20s %-10s %-15s %-20s %8.2f\n",
					o.ID, o.Name, o.Status, groupName, strings.Join(o.ApprovalGroupNames(), ","), o.Rate)
			}
			if int64(len(orders)) < total {
				fmt.Fprintf(out, "(%d of %d orders)\n", len(orders), total)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "only orders in this status")
	cmd.Flags().StringVar(&group, "group", "", "only orders of this group")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of orders to show")
	return cmd
}
