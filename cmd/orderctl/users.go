package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mhrivnak/orderflow/pkg/auth"
	"github.com/mhrivnak/orderflow/pkg/errdef"
)

func newUserCommand(a *app) *cobra.Command {
	userCmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
	}
	userCmd.AddCommand(newUserCreateCommand(a), newUserListCommand(a))
	return userCmd
}

func newUserCreateCommand(a *app) *cobra.Command {
	var req auth.CreateUserRequest

	cmd := &cobra.Command{
		Use:   "create <username> <email>",
		Short: "Create an active user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Username = args[0]
			req.Email = args[1]
			if len(req.Password) < 8 {
				return errdef.NewBadRequest("password must be at least 8 characters")
			}
			user, err := auth.NewService(a.users, nil, a.log).CreateUser(cmd.Context(), &req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created user %s (%s)\n", user.Username, user.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&req.Password, "password", "", "initial password (at least 8 characters)")
	cmd.Flags().StringVar(&req.FullName, "full-name", "", "display name")
	cmd.Flags().BoolVar(&req.IsSuperAdmin, "super-admin", false, "grant super admin rights")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newUserListCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			users, _, err := a.users.List(cmd.Context(), 1000, 0)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-20s %-30s %-8s %-11s\n", "USERNAME", "EMAIL", "ACTIVE", "SUPER ADMIN")
			for _, u := range users {
				fmt.Fprintf(out, "%-20s %-30s %-8t %-11t\n", u.Username, u.Email, u.IsActive, u.IsSuperAdmin)
			}
			return nil
		},
	}
}
