package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/courierdesk/gateway/internal/portal"
	"github.com/courierdesk/gateway/internal/session"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"
)

const defaultGateway = "http://localhost:8080"

// app is what every subcommand works against
type app struct {
	session *session.Session
	client  *session.Client
}

func newApp(gateway, sessionPath string, verbose bool) (*app, error) {
	if sessionPath == "" {
		p, err := session.DefaultFilePath()
		if err != nil {
			return nil, err
		}
		sessionPath = p
	}

	logger := zap.NewNop()
	if verbose {
		l, err := zap.NewDevelopment()
		if err != nil {
			return nil, err
		}
		logger = l
	}

	client := session.NewClient(gateway)
	sess := session.New(session.NewFileStore(sessionPath), client, portal.NewAuthorizer(), session.WithLogger(logger))
	return &app{session: sess, client: client}, nil
}

// newRootCommand builds the CLI. A nil a is built from flags on first use.
func newRootCommand(a *app) *cobra.Command {
	var (
		gateway     string
		sessionPath string
		verbose     bool
	)

	root := &cobra.Command{
		Use:           "courierctl",
		Short:         "Sign in to Courier Desk from the terminal",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if a == nil {
				built, err := newApp(gateway, sessionPath, verbose)
				if err != nil {
					return err
				}
				a = built
			}
			_, err := a.session.Rehydrate(cmd.Context())
			return err
		},
	}

	envGateway := os.Getenv("COURIERCTL_GATEWAY")
	if envGateway == "" {
		envGateway = defaultGateway
	}
	root.PersistentFlags().StringVar(&gateway, "gateway", envGateway, "gateway base URL")
	root.PersistentFlags().StringVar(&sessionPath, "session", "", "session file (default: user config dir)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log session activity")

	// Subcommands resolve the app lazily, after PersistentPreRunE ran
	get := func() *app { return a }
	root.AddCommand(
		loginCommand(get),
		whoamiCommand(get),
		refreshCommand(get),
		logoutCommand(get),
		openCommand(get),
	)
	return root
}

func loginCommand(get func() *app) *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with email and password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := promptPassword(cmd.InOrStdin(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			profile, err := get().session.Login(cmd.Context(), email, password)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "signed in as %s (%s)\n", profile.Email, profile.Role)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func whoamiCommand(get func() *app) *cobra.Command {
	var remote bool

	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			out := cmd.OutOrStdout()

			claims, ok := a.session.Claims()
			if !ok {
				fmt.Fprintln(out, "not signed in")
				return nil
			}

			fmt.Fprintf(out, "%s %s (%s)\n", claims.UserID(), claims.Email, claims.Role)
			fmt.Fprintf(out, "access token expires %s\n", claims.ExpiresAt.Time.Format(time.RFC3339))

			if remote {
				access, err := a.session.AccessToken(cmd.Context())
				if err != nil {
					return err
				}
				profile, err := a.client.Me(cmd.Context(), access)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "status %s\n", profile.Status)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&remote, "remote", false, "also ask the gateway for the account status")
	return cmd
}

func refreshCommand(get func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Rotate the stored token pair now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := get().session.Refresh(cmd.Context()); err != nil {
				if errors.Is(err, session.ErrNotSignedIn) {
					return errors.New("not signed in, run courierctl login")
				}
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "tokens refreshed")
			return nil
		},
	}
}

func logoutCommand(get func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := get().session.Logout(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), "signed out")
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning: gateway logout failed:", err)
			}
			return nil
		},
	}
}

func openCommand(get func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "open <path>",
		Short: "Show where the portal would send you for a path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := get().session
			d := s.Navigate(args[0])

			out := cmd.OutOrStdout()
			switch d.Action {
			case portal.Allow:
				fmt.Fprintf(out, "allow %s as %s\n", args[0], s.State())
			default:
				fmt.Fprintf(out, "%s -> %s\n", d.Action, d.Location)
			}
			return nil
		},
	}
}

func promptPassword(in io.Reader, prompt io.Writer) (string, error) {
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
