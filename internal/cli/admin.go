package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/josh-kwaku/agency-ledger/internal/app"
	"github.com/josh-kwaku/agency-ledger/internal/domain"
)

const (
	adminPasswordEnv  = "LEDGER_ADMIN_PASSWORD"
	minPasswordLength = 10
)

func newSeedAdminCommand() *cobra.Command {
	var email, name string

	cmd := &cobra.Command{
		Use:   "seed-admin",
		Short: "Create a staff user that can log in to the API",
		Long:  "Create a staff user. The password is read from " + adminPasswordEnv + ".",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			user, err := newStaffUser(email, name, os.Getenv(adminPasswordEnv))
			if err != nil {
				return err
			}

			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				if err := a.Users.Create(ctx, user); err != nil {
					if errors.Is(err, domain.ErrDuplicate) {
						return fmt.Errorf("user %s already exists", user.Email)
					}
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]string{
					"id":    user.ID.String(),
					"email": user.Email,
				})
			})
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "login email (required)")
	cmd.Flags().StringVar(&name, "name", "", "display name (required)")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func newUserStatusCommand() *cobra.Command {
	var email, status string

	cmd := &cobra.Command{
		Use:   "user-status",
		Short: "Suspend or reinstate a staff user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st := domain.UserStatus(strings.ToLower(status))
			if !st.IsValid() {
				return fmt.Errorf("--status: %q must be %s or %s", status, domain.UserStatusActive, domain.UserStatusSuspended)
			}

			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				user, err := a.Users.SetStatus(ctx, email, st)
				if err != nil {
					if errors.Is(err, domain.ErrNotFound) {
						return fmt.Errorf("no user with email %s", email)
					}
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]string{
					"id":     user.ID.String(),
					"email":  user.Email,
					"status": string(user.Status),
				})
			})
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "login email (required)")
	cmd.Flags().StringVar(&status, "status", "", "active or suspended (required)")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("status")

	return cmd
}

func newStaffUser(email, name, password string) (*domain.User, error) {
	email = domain.NormalizeEmail(email)
	if err := validator.New().Var(email, "required,email"); err != nil {
		return nil, fmt.Errorf("email: %q is not a valid address", email)
	}
	if len(password) < minPasswordLength {
		return nil, fmt.Errorf("%s must hold a password of at least %d characters", adminPasswordEnv, minPasswordLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	return &domain.User{
		ID:           uuid.New(),
		Email:        email,
		Name:         strings.TrimSpace(name),
		PasswordHash: string(hash),
		Status:       domain.UserStatusActive,
		CreatedAt:    time.Now().UTC(),
	}, nil
}
