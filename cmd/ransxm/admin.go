package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/ransxm/ransxm-console/console"
	"github.com/ransxm/ransxm-console/gateway"
	"github.com/ransxm/ransxm-console/session"
)

// logsCmd creates the logs command
func logsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recent key validations",
		RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
			if !a.requireAdmin(ctx) {
				return a.done(ctx, false)
			}
			return a.done(ctx, a.Admin.LoadLogs(ctx, limit))
		}),
	}
	cmd.Flags().IntVarP(&limit, "limit", "l", console.DefaultLogLimit, "Number of entries")

	return cmd
}

// analyticsCmd creates the analytics command
func analyticsCmd() *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "analytics",
		Short: "Show validations per day",
		RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
			if !a.requireAdmin(ctx) {
				return a.done(ctx, false)
			}
			return a.done(ctx, a.Admin.LoadAnalytics(ctx, days))
		}),
	}
	cmd.Flags().IntVarP(&days, "days", "d", 7, "Window in days")

	return cmd
}

// usersCmd creates the users command with subcommands
func usersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage console users",
	}

	cmd.AddCommand(usersListCmd())
	cmd.AddCommand(usersCreateCmd())
	cmd.AddCommand(usersRoleCmd())
	cmd.AddCommand(usersDeleteCmd())

	return cmd
}

func usersListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all users",
		RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
			if !a.requireAdmin(ctx) {
				return a.done(ctx, false)
			}
			return a.done(ctx, a.Admin.LoadUsers(ctx))
		}),
	}
}

func usersCreateCmd() *cobra.Command {
	var email, password, role string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user (super admin only)",
		RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
			email, password, err := credentials(email, password)
			if err != nil {
				return err
			}
			if !a.requireAdmin(ctx) {
				return a.done(ctx, false)
			}
			_, ok := a.Admin.CreateUser(ctx, gateway.CreateUserParams{
				Email:    email,
				Password: password,
				Role:     session.Role(role),
			})
			return a.done(ctx, ok)
		}),
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "User email (prompted when empty)")
	cmd.Flags().StringVarP(&password, "password", "p", "", "User password (prompted when empty)")
	cmd.Flags().StringVarP(&role, "role", "r", string(session.RoleAdmin), "Role: user, admin or super_admin")

	return cmd
}

func usersRoleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "role <id> <role>",
		Short: "Change a user's role (super admin only)",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(func(ctx context.Context, a *app, args []string) error {
			role, err := session.ParseRole(args[1])
			if err != nil {
				return err
			}
			if !a.requireAdmin(ctx) {
				return a.done(ctx, false)
			}
			return a.done(ctx, a.Admin.UpdateRole(ctx, session.ID(args[0]), role))
		}),
	}
}

func usersDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a user (super admin only)",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, a *app, args []string) error {
			if !a.requireAdmin(ctx) {
				return a.done(ctx, false)
			}
			return a.done(ctx, a.Admin.DeleteUser(ctx, session.ID(args[0])))
		}),
	}
}
