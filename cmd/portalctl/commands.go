package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/asjpl/pcl-portal/internal/app"
	"github.com/asjpl/pcl-portal/internal/apperr"
	"github.com/asjpl/pcl-portal/internal/models"
	"github.com/asjpl/pcl-portal/internal/services/auth"
	"github.com/asjpl/pcl-portal/internal/storage"
)

type opener func() (*app.App, error)

// Seed accounts for local development
const (
	seedAdminEmail       = "admin@pcl.dev"
	seedAdminPassword    = "Admin123!"
	seedCustomerEmail    = "customer@pcl.dev"
	seedCustomerPassword = "Customer123!"
)

func seedCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create the development admin and customer logins",
		Long: `Create the development logins. Existing accounts are left untouched.

  admin@pcl.dev     Admin123!
  customer@pcl.dev  Customer123!`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := open()
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()

			_, err = a.Auth.CreateAdmin(ctx, auth.CreateAdminInput{
				Email:    seedAdminEmail,
				Password: seedAdminPassword,
				FullName: "PCL Admin",
			})
			if err := skipExisting(err); err != nil {
				return fmt.Errorf("failed to seed admin: %w", err)
			}

			hash, err := auth.HashPassword(seedCustomerPassword)
			if err != nil {
				return err
			}
			customer := models.NewUser(seedCustomerEmail, hash, models.RoleCustomer)
			if err := skipExisting(storage.NewUserRepository(a.DB).Create(ctx, customer)); err != nil {
				return fmt.Errorf("failed to seed customer: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Seed complete")
			fmt.Fprintln(out, "Admin login:", seedAdminEmail, seedAdminPassword)
			fmt.Fprintln(out, "Customer login:", seedCustomerEmail, seedCustomerPassword)
			return nil
		},
	}
}

func skipExisting(err error) error {
	if errors.Is(err, apperr.ErrConflict) {
		return nil
	}
	return err
}

func accrueFeesCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "accrue-fees",
		Short: "Mark overdue payments and apply today's late fees",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := open()
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.LateFees.Run(cmd.Context(), time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "marked overdue: %d\ncreated: %d\nskipped: %d\nfailed: %d\n",
				result.MarkedOverdue, result.Created, result.Skipped, result.Failed)
			return nil
		},
	}
}

func markOverdueCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "mark-overdue",
		Short: "Mark pending payments past their due date as overdue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := open()
			if err != nil {
				return err
			}
			defer a.Close()

			marked, err := a.LateFees.MarkOverdue(cmd.Context(), time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "marked overdue: %d\n", marked)
			return nil
		},
	}
}

func issueTempPasswordCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "issue-temp-password <email>",
		Short: "Replace a user's password with a temporary one",
		Long: `Replace a user's password with a temporary one. Customers must reset it at
next sign-in and are emailed the new password when SMTP is configured. Admins
are not asked to reset. The password is always printed here.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := open()
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			user, err := a.Auth.GetUserByEmail(ctx, args[0])
			if err != nil {
				return err
			}

			if user.Role == models.RoleCustomer {
				if customer, err := a.Customers.GetByUser(ctx, user.ID); err == nil {
					result, err := a.Customers.IssueTemporaryPassword(ctx, customer.ID)
					if err != nil {
						return err
					}
					fmt.Fprintln(out, "Temporary password:", result.TempPassword)
					if !result.EmailSent {
						fmt.Fprintln(out, "Email not sent:", result.EmailError)
					}
					return nil
				}
			}

			password, err := a.Auth.IssueTemporaryPassword(ctx, user.ID)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, "Temporary password:", password)
			return nil
		},
	}
}

func pruneSessionsCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "prune-sessions",
		Short: "Delete sign-out records for sessions that have expired",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := open()
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.Auth.CleanupRevocations(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pruned: %d\n", n)
			return nil
		},
	}
}
