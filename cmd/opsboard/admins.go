package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/opsboard/opsboard/internal/auth"
	"github.com/opsboard/opsboard/internal/config"
	"github.com/opsboard/opsboard/internal/logging"
	"github.com/opsboard/opsboard/internal/state"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var adminsCmd = &cobra.Command{
	Use:   "admins",
	Short: "Manage dashboard admin accounts.",
}

type passwordFlags struct {
	password string
	stdin    bool
	generate bool
}

var (
	createAdminEmail string
	createAdminName  string
	createAdminRole  string
	createAdminPass  passwordFlags
)

var createAdminCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a dashboard admin with a password login.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		email := auth.NormalizeEmail(createAdminEmail)
		if email == "" {
			return errors.New("--email is required")
		}
		role, ok := state.ParseRole(createAdminRole)
		if !ok {
			return fmt.Errorf("invalid --role %q (want super_admin, admin or user)", createAdminRole)
		}

		password, generated, err := resolvePassword(cmd, createAdminPass, os.Stdin)
		if err != nil {
			return err
		}
		hash, err := auth.HashPassword(password)
		if err != nil {
			return err
		}

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

		if _, exists := rt.app.Admin.FindByEmail(email); exists {
			return fmt.Errorf("admin already exists: %s", email)
		}
		name := strings.TrimSpace(createAdminName)
		if name == "" {
			name = email
		}
		rt.app.Admin.AddAdmin(state.DashboardAdmin{
			ID:           uuid.NewString(),
			Email:        email,
			DisplayName:  name,
			Role:         role,
			Status:       state.AdminActive,
			PasswordHash: hash,
		})

		cmd.Printf("created %s: %s\n", role, email)
		if generated {
			cmd.Printf("generated password: %s\n", password)
		}
		return nil
	},
}

func init() {
	f := createAdminCmd.Flags()
	f.StringVar(&createAdminEmail, "email", "", "Admin email address.")
	f.StringVar(&createAdminName, "name", "", "Display name (defaults to the email).")
	f.StringVar(&createAdminRole, "role", string(state.RoleAdmin), "Role: super_admin, admin or user.")
	f.StringVar(&createAdminPass.password, "password", "", "Password (prefer --password-stdin or the prompt).")
	f.BoolVar(&createAdminPass.stdin, "password-stdin", false, "Read the password from stdin.")
	f.BoolVar(&createAdminPass.generate, "generate-password", false, "Generate and print a random password.")
	adminsCmd.AddCommand(createAdminCmd)
}

// resolvePassword picks the password from the flags, stdin or an
// interactive prompt. The bool reports whether the password was generated.
func resolvePassword(cmd *cobra.Command, flags passwordFlags, stdin *os.File) (string, bool, error) {
	switch {
	case flags.stdin && flags.generate:
		return "", false, errors.New("--password-stdin and --generate-password are mutually exclusive")
	case flags.stdin && flags.password != "":
		return "", false, errors.New("--password-stdin and --password are mutually exclusive")
	case flags.generate && flags.password != "":
		return "", false, errors.New("--generate-password and --password are mutually exclusive")
	}

	if flags.stdin {
		info, err := stdin.Stat()
		if err != nil {
			return "", false, err
		}
		if info.Mode()&os.ModeCharDevice != 0 {
			return "", false, errors.New("stdin is a terminal; use --password or omit to prompt")
		}
		password, err := readFirstLine(stdin)
		if err != nil {
			return "", false, err
		}
		if password == "" {
			return "", false, errors.New("password is empty")
		}
		return password, false, nil
	}

	if flags.generate {
		password, err := generatePassword(24)
		if err != nil {
			return "", false, err
		}
		return password, true, nil
	}

	if flags.password != "" {
		return flags.password, false, nil
	}

	fd := int(stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", false, errors.New("no password provided (use --password, --password-stdin, or --generate-password)")
	}
	first, err := promptPassword(cmd, fd, "Password: ")
	if err != nil {
		return "", false, err
	}
	second, err := promptPassword(cmd, fd, "Confirm password: ")
	if err != nil {
		return "", false, err
	}
	if first != second {
		return "", false, errors.New("passwords do not match")
	}
	return first, false, nil
}

func promptPassword(cmd *cobra.Command, fd int, prompt string) (string, error) {
	cmd.Print(prompt)
	raw, err := term.ReadPassword(fd)
	cmd.Println()
	if err != nil {
		return "", err
	}
	if len(raw) == 0 {
		return "", errors.New("password is empty")
	}
	return string(raw), nil
}

func readFirstLine(r io.Reader) (string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	if !scanner.Scan() {
		return "", scanner.Err()
	}
	return strings.TrimRight(scanner.Text(), "\r\n"), nil
}

func generatePassword(length int) (string, error) {
	if length < auth.MinPasswordLength {
		return "", fmt.Errorf("password length must be at least %d", auth.MinPasswordLength)
	}
	const alphabet = "abcdefghijkmnopqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	for i := range b {
		b[i] = alphabet[int(b[i])%len(alphabet)]
	}
	return string(b), nil
}
