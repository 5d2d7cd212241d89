package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/reelvault/reelvault/internal/model"
)

func newAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage admin users",
		Long:  "Create and list the accounts that can sign in to the system API.",
	}

	cmd.AddCommand(newAdminCreateCmd())
	cmd.AddCommand(newAdminListCmd())

	return cmd
}

// ---------- admin create ----------

func newAdminCreateCmd() *cobra.Command {
	var (
		email    string
		password string
		role     string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new admin user",
		Example: `  reelvault admin create --email admin@example.com --password secret123
  reelvault admin create --email admin@example.com  # prompts for password`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdminCreate(email, password, role)
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Admin email address (required)")
	cmd.Flags().StringVar(&password, "password", "", "Admin password (prompted if omitted)")
	cmd.Flags().StringVar(&role, "role", model.RoleAdmin, "Account role: admin or user")
	cmd.MarkFlagRequired("email")

	return cmd
}

func runAdminCreate(email, password, role string) error {
	if password == "" {
		var err error
		if password, err = promptPassword(); err != nil {
			return err
		}
	}

	cfg, err := loadAppConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	authSvc := newAuthService(store, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	user, err := authSvc.CreateUser(context.Background(), email, password, role)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}

	fmt.Printf("Created %s user %q\n", user.Role, user.Email)
	return nil
}

// promptPassword reads a password twice from the terminal without echo.
func promptPassword() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("stdin is not a terminal; pass --password")
	}

	read := func(prompt string) (string, error) {
		fmt.Print(prompt)
		b, err := term.ReadPassword(fd)
		fmt.Println()
		return string(b), err
	}
	password, err := read("Password: ")
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	confirm, err := read("Confirm password: ")
	if err != nil {
		return "", fmt.Errorf("read confirmation: %w", err)
	}
	if password != confirm {
		return "", fmt.Errorf("passwords do not match")
	}
	return password, nil
}

// ---------- admin list ----------

func newAdminListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List all users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdminList(jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runAdminList(jsonOutput bool) error {
	cfg, err := loadAppConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	users, err := store.ListUsers(context.Background())
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}
	return writeUsers(os.Stdout, users, jsonOutput)
}

// writeUsers prints accounts as a table or JSON. Password hashes never leave
// the store: model.User does not serialize them.
func writeUsers(w io.Writer, users []model.User, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(users)
	}

	if len(users) == 0 {
		fmt.Fprintln(w, "No users configured. Use 'reelvault admin create' to create one.")
		return nil
	}

	const row = "%-36s %-30s %-8s %s\n"
	fmt.Fprintf(w, row, "ID", "EMAIL", "ROLE", "CREATED")
	for _, u := range users {
		fmt.Fprintf(w, row, u.ID, u.Email, u.Role, u.CreatedAt.Local().Format(time.DateTime))
	}
	return nil
}
