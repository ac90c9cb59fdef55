package main

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/courierdesk/gateway/internal/auth"
	"github.com/courierdesk/gateway/internal/user"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// seedPasswordEnv lets scripted bootstraps skip the prompt
const seedPasswordEnv = "SEED_USER_PASSWORD"

type seedOptions struct {
	email     string
	role      string
	status    string
	companyID string
}

func seedUserCommand() *cobra.Command {
	var opts seedOptions

	cmd := &cobra.Command{
		Use:   "seed-user",
		Short: "Create a user account, e.g. the first SYSTEM_ADMIN",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readPassword(cmd.InOrStdin(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			u, err := buildUser(opts, password)
			if err != nil {
				return err
			}

			db, err := connect()
			if err != nil {
				return err
			}
			defer db.Close()

			repo := user.NewRepository(db.DB)
			existing, err := repo.FindByEmail(cmd.Context(), u.Email)
			if err != nil {
				return err
			}
			if existing != nil {
				return fmt.Errorf("a user with email %s already exists", u.Email)
			}

			if err := repo.Create(cmd.Context(), u); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s %s (%s) id=%s\n", u.Role, u.Email, u.Status, u.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.email, "email", "", "account email")
	cmd.Flags().StringVar(&opts.role, "role", string(user.RoleSystemAdmin), "SYSTEM_ADMIN, COMPANY or COURIER")
	cmd.Flags().StringVar(&opts.status, "status", string(user.StatusActive), "initial account status")
	cmd.Flags().StringVar(&opts.companyID, "company-id", "", "company the account belongs to")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

// buildUser validates the seed input and hashes the password
func buildUser(opts seedOptions, password string) (*user.User, error) {
	email := auth.NormalizeEmail(opts.email)
	if !auth.IsValidEmail(email) {
		return nil, fmt.Errorf("invalid email %q", opts.email)
	}
	role, err := user.ParseRole(opts.role)
	if err != nil {
		return nil, err
	}
	status, err := user.ParseStatus(opts.status)
	if err != nil {
		return nil, err
	}
	if role == user.RoleSystemAdmin && opts.companyID != "" {
		return nil, errors.New("system admins do not belong to a company")
	}
	if err := auth.ValidateNewPassword(password); err != nil {
		return nil, err
	}

	digest, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}

	u := &user.User{
		Email:          email,
		PasswordDigest: digest,
		Role:           role,
		Status:         status,
	}
	if opts.companyID != "" {
		u.CompanyID = sql.NullString{String: opts.companyID, Valid: true}
	}
	return u, nil
}

// readPassword takes the password from the environment, a terminal prompt,
// or the first line of piped input
func readPassword(in io.Reader, prompt io.Writer) (string, error) {
	if pw := os.Getenv(seedPasswordEnv); pw != "" {
		return pw, nil
	}

	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(prompt, "Password: ")
		pw, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(pw), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func setStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set-status <email> <status>",
		Short: "Approve, suspend or block an account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := user.ParseStatus(args[1])
			if err != nil {
				return err
			}

			db, err := connect()
			if err != nil {
				return err
			}
			defer db.Close()

			return setStatus(cmd.Context(), user.NewRepository(db.DB), auth.NormalizeEmail(args[0]), status, cmd.OutOrStdout())
		},
	}
}

type statusStore interface {
	FindByEmail(ctx context.Context, email string) (*user.User, error)
	UpdateStatus(ctx context.Context, id string, status user.Status) error
	ClearRefreshTokenHash(ctx context.Context, id string) error
}

// setStatus changes an account's status. Leaving ACTIVE also revokes the
// refresh token so the account cannot renew its session.
func setStatus(ctx context.Context, store statusStore, email string, status user.Status, out io.Writer) error {
	u, err := store.FindByEmail(ctx, email)
	if err != nil {
		return err
	}
	if u == nil {
		return fmt.Errorf("no user with email %s", email)
	}

	if err := store.UpdateStatus(ctx, u.ID, status); err != nil {
		return err
	}
	if !status.CanLogin() {
		if err := store.ClearRefreshTokenHash(ctx, u.ID); err != nil {
			return err
		}
	}

	fmt.Fprintf(out, "%s: %s -> %s\n", email, u.Status, status)
	return nil
}
