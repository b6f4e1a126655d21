package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"codeberg.org/algorave/passage/internal/authstate"
	"codeberg.org/algorave/passage/internal/chat"
	"codeberg.org/algorave/passage/internal/config"
	"codeberg.org/algorave/passage/internal/gateway"
	"codeberg.org/algorave/passage/internal/logger"
	"codeberg.org/algorave/passage/internal/persist"
	"codeberg.org/algorave/passage/internal/sealbox"
	"codeberg.org/algorave/passage/internal/sessionstore"
	"codeberg.org/algorave/passage/internal/telemetry"
	"codeberg.org/algorave/passage/internal/tui"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

const opTimeout = 30 * time.Second

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "passage: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "passage",
		Short:         "terminal front end for the algorave auth service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUI()
		},
	}

	cmd.AddCommand(
		newUICommand(),
		newLoginCommand(),
		newSignupCommand(),
		newLogoutCommand(),
		newWhoamiCommand(),
		newUsersCommand(),
		newForgotCommand(),
		newResetCommand(),
	)

	return cmd
}

// everything a command needs, wired once. The gateway is attached
// after the store exists because its 401 hook points back at the
// store.
type app struct {
	cfg     *config.Config
	store   *authstate.Store
	adapter *persist.Adapter
	chat    *chat.Client
}

func buildApp() (*app, error) {
	cfg, err := config.LoadEnvironmentVariables()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	if cfg.MetricsAddr != "" {
		telemetry.Serve(cfg.MetricsAddr)
	}

	codec := sealbox.New()
	sessions := sessionstore.New(cfg.StateDir, codec)

	if !sessions.IsWorking() {
		logger.Warn("session storage is not persisting, sessions will not survive restarts")
	}

	adapter := persist.New(cfg.StateDir, codec, cfg.WriteThrottle)
	store := authstate.New(sessions, adapter)
	gw := gateway.New(cfg.APIEndpoint, store.Token, store.ForceLogout)
	store.AttachGateway(gw)
	store.LoadFromStorage()

	chatClient := chat.NewClient(cfg.WSEndpoint, store.Token)

	return &app{
		cfg:     cfg,
		store:   store,
		adapter: adapter,
		chat:    chatClient,
	}, nil
}

// flushes anything the throttled adapter is still holding
func (a *app) close() {
	a.chat.Close()
	a.adapter.Close()
}

func newUICommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ui",
		Short: "launch the interactive terminal interface",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUI()
		},
	}
}

func runUI() error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.close()

	// the alternate screen owns stdout, so logs go to a file for
	// the duration of the session
	logFile, err := logger.RedirectToFile(filepath.Join(a.cfg.StateDir, "passage.log"))
	if err == nil {
		defer logFile.Close()
	}

	app := tui.NewApp(a.store, a.chat, a.cfg.OAuthPort)
	p := tea.NewProgram(app, tea.WithAltScreen())

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running interface: %w", err)
	}

	return nil
}

func newLoginCommand() *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "sign in with email and password",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}
			defer a.close()

			ctx, cancel := context.WithTimeout(cmd.Context(), opTimeout)
			defer cancel()

			if err := a.store.Login(ctx, email, password); err != nil {
				return fmt.Errorf("%s", a.store.Snapshot().Error)
			}

			snap := a.store.Snapshot()
			fmt.Printf("signed in as %s\n", snap.User.Email)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")

	return cmd
}

func newSignupCommand() *cobra.Command {
	var name, email, password string

	cmd := &cobra.Command{
		Use:   "signup",
		Short: "create an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}
			defer a.close()

			ctx, cancel := context.WithTimeout(cmd.Context(), opTimeout)
			defer cancel()

			if err := a.store.Signup(ctx, name, email, password); err != nil {
				return fmt.Errorf("%s", a.store.Snapshot().Error)
			}

			snap := a.store.Snapshot()
			fmt.Printf("account created, signed in as %s\n", snap.User.Email)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")

	return cmd
}

func newLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "sign out and erase the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}
			defer a.close()

			a.store.Logout()
			fmt.Println("signed out")
			return nil
		},
	}
}

func newWhoamiCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "show the currently stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}
			defer a.close()

			snap := a.store.Snapshot()
			if !snap.IsAuthenticated {
				fmt.Println("not signed in")
				return nil
			}

			fmt.Printf("%s <%s> via %s\n", snap.User.Name, snap.User.Email, snap.User.Provider)
			return nil
		},
	}
}

func newUsersCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "users",
		Short: "list registered users",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}
			defer a.close()

			ctx, cancel := context.WithTimeout(cmd.Context(), opTimeout)
			defer cancel()

			if err := a.store.ListUsers(ctx); err != nil {
				return fmt.Errorf("%s", a.store.Snapshot().Error)
			}

			for _, u := range a.store.Snapshot().Users {
				fmt.Printf("%s <%s>\n", u.Name, u.Email)
			}
			return nil
		},
	}
}

func newForgotCommand() *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "forgot",
		Short: "request a password reset code",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}
			defer a.close()

			ctx, cancel := context.WithTimeout(cmd.Context(), opTimeout)
			defer cancel()

			if err := a.store.ForgotPassword(ctx, email); err != nil {
				return fmt.Errorf("%s", a.store.Snapshot().Error)
			}

			fmt.Println(a.store.Snapshot().ForgotPasswordMessage)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "account email")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func newResetCommand() *cobra.Command {
	var email, otp, newPassword string

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "reset a password with an emailed code",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}
			defer a.close()

			ctx, cancel := context.WithTimeout(cmd.Context(), opTimeout)
			defer cancel()

			if err := a.store.ResetPassword(ctx, email, otp, newPassword); err != nil {
				return fmt.Errorf("%s", a.store.Snapshot().Error)
			}

			snap := a.store.Snapshot()
			fmt.Println(snap.ResetPasswordMessage)
			if snap.IsAuthenticated {
				fmt.Printf("signed in as %s\n", snap.User.Email)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&otp, "otp", "", "six digit code from the reset email")
	cmd.Flags().StringVar(&newPassword, "new-password", "", "replacement password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("otp")
	_ = cmd.MarkFlagRequired("new-password")

	return cmd
}
