package main

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/opsboard/opsboard/internal/auth"
	"github.com/opsboard/opsboard/internal/auth/providers"
	"github.com/opsboard/opsboard/internal/config"
	"github.com/opsboard/opsboard/internal/logging"
	"github.com/opsboard/opsboard/internal/state"
	"github.com/spf13/cobra"
)

// The session commands operate on the persisted auth store, which holds the
// identity of the operator signed in on this host.

var (
	loginEmail string
	loginPass  passwordFlags
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in with an admin email and password.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		email := auth.NormalizeEmail(loginEmail)
		if email == "" {
			return errors.New("--email is required")
		}
		password, err := resolveLoginPassword(cmd)
		if err != nil {
			return err
		}
		return withSessionApp(func(ctx context.Context, app *state.App) error {
			user, err := providers.NewPasswordProvider(app.Admin).Authenticate(ctx, email, password)
			if err != nil {
				app.Auth.SetError(err.Error())
				return err
			}
			app.Auth.Login(user)
			cmd.Printf("signed in as %s (%s)\n", user.Email, user.Role)
			return nil
		})
	},
}

// resolveLoginPassword prompts once; there is nothing to confirm.
func resolveLoginPassword(cmd *cobra.Command) (string, error) {
	if loginPass.stdin || loginPass.password != "" {
		password, _, err := resolvePassword(cmd, loginPass, os.Stdin)
		return password, err
	}
	return promptPassword(cmd, int(os.Stdin.Fd()), "Password: ")
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSessionApp(func(_ context.Context, app *state.App) error {
			app.Auth.Logout()
			cmd.Println("signed out")
			return nil
		})
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in identity.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSessionApp(func(_ context.Context, app *state.App) error {
			u, ok := app.Auth.CurrentUser()
			if !ok {
				return errors.New("not signed in")
			}
			cmd.Printf("%s <%s>\nrole: %s\nadmin: %t\n", u.DisplayName, u.Email, u.Role, app.Auth.IsAdmin())
			return nil
		})
	},
}

var accessCmd = &cobra.Command{
	Use:   "access <path>...",
	Short: "Report whether the signed-in identity may open each dashboard page.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSessionApp(func(_ context.Context, app *state.App) error {
			for _, path := range args {
				verdict := "denied"
				if app.Auth.CanAccessPage(path) {
					verdict = "allowed"
				}
				cmd.Printf("%s\t%s\n", path, verdict)
			}
			return nil
		})
	},
}

func init() {
	f := loginCmd.Flags()
	f.StringVar(&loginEmail, "email", "", "Admin email address.")
	f.StringVar(&loginPass.password, "password", "", "Password (prefer --password-stdin or the prompt).")
	f.BoolVar(&loginPass.stdin, "password-stdin", false, "Read the password from stdin.")
}

func withSessionApp(fn func(ctx context.Context, app *state.App) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	rt, err := openRuntime(ctx, cfg, logging.Discard())
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt.app)
}
