package main

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mhrivnak/orderflow/pkg/database/models"
	"github.com/mhrivnak/orderflow/pkg/errdef"
	"github.com/mhrivnak/orderflow/pkg/quota"
)

func newGroupCommand(a *app) *cobra.Command {
	groupCmd := &cobra.Command{
		Use:   "group",
		Short: "Manage groups, memberships and quotas",
	}
	groupCmd.AddCommand(
		newGroupCreateCommand(a),
		newGroupListCommand(a),
		newGroupSetParentCommand(a),
		newGroupAddMemberCommand(a),
		newGroupSetQuotaCommand(a),
	)
	return groupCmd
}

func newGroupCreateCommand(a *app) *cobra.Command {
	var parent string
	var autoApprove bool

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if _, err := a.groups.GetByName(ctx, args[0]); err == nil {
				return errdef.NewDuplicated("group %q already exists", args[0])
			} else if !errdef.IsNotFound(err) {
				return err
			}

			group := &models.Group{Name: args[0], AutoApprove: autoApprove}
			if parent != "" {
				p, err := a.groups.GetByName(ctx, parent)
				if err != nil {
					return err
				}
				group.ParentID = &p.ID
			}
			if err := a.groups.Create(ctx, group); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created group %s (%s)\n", group.Name, group.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&parent, "parent", "", "name of the parent group")
	cmd.Flags().BoolVar(&autoApprove, "auto-approve", false, "approve orders of this group on submission")
	return cmd
}

func newGroupListCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List groups with their parents",
		RunE: func(cmd *cobra.Command, args []string) error {
			groups, _, err := a.groups.List(cmd.Context(), 1000, 0, "")
			if err != nil {
				return err
			}
			names := make(map[uuid.UUID]string, len(groups))
			for _, g := range groups {
				names[g.ID] = g.Name
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-25s %-25s %-12s\n", "NAME", "PARENT", "AUTO APPROVE")
			for _, g := range groups {
				parent := "-"
				if g.ParentID != nil {
					parent = names[*g.ParentID]
				}
				fmt.Fprintf(out, "%-25s %-25s %-12t\n", g.Name, parent, g.AutoApprove)
			}
			return nil
		},
	}
}

func newGroupSetParentCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set-parent <group> [parent]",
		Short: "Move a group under another one, or to the top without a parent",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			group, err := a.groups.GetByName(ctx, args[0])
			if err != nil {
				return err
			}
			var parentID *uuid.UUID
			if len(args) == 2 {
				parent, err := a.groups.GetByName(ctx, args[1])
				if err != nil {
					return err
				}
				parentID = &parent.ID
			}
			if err := a.groups.SetParent(ctx, group.ID, parentID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated parent of %s\n", group.Name)
			return nil
		},
	}
}

func newGroupAddMemberCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "add-member <group> <username> <role>",
		Short: "Grant a user a role in a group",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			role := models.Role(args[2])
			if !role.Valid() {
				return errdef.NewBadRequest("unknown role %q", args[2])
			}
			group, err := a.groups.GetByName(ctx, args[0])
			if err != nil {
				return err
			}
			user, err := a.users.GetByUsername(ctx, args[1])
			if err != nil {
				return err
			}
			if err := a.groups.AddMember(ctx, group.ID, user.ID, role); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s of %s\n", user.Username, role, group.Name)
			return nil
		},
	}
}

func newGroupSetQuotaCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set-quota <group> <attribute> <limit>",
		Short: "Set the quota limit of an attribute; 0 means unlimited",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			limit, err := strconv.ParseFloat(args[2], 64)
			if err != nil {
				return errdef.NewBadRequest("invalid limit %q", args[2])
			}
			group, err := a.groups.GetByName(ctx, args[0])
			if err != nil {
				return err
			}
			if err := a.groups.SetQuota(ctx, group.ID, quota.Attribute(args[1]), limit); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Set %s quota of %s to %s\n", args[1], group.Name, args[2])
			return nil
		},
	}
}
