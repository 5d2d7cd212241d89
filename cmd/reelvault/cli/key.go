package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/reelvault/reelvault/internal/config"
	"github.com/reelvault/reelvault/internal/model"
	"github.com/reelvault/reelvault/internal/service"
)

func newKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "key",
		Aliases: []string{"apikey"},
		Short:   "Manage API keys",
		Long:    "Create, list, activate, deactivate, and delete the API keys that gate the public movie API.",
	}

	cmd.AddCommand(newKeyCreateCmd())
	cmd.AddCommand(newKeyListCmd())
	cmd.AddCommand(newKeyToggleCmd())
	cmd.AddCommand(newKeyDeleteCmd())

	return cmd
}

// withKeyService opens the store and cache, runs fn, and releases both.
func withKeyService(fn func(ctx context.Context, keys *service.KeyService) error) error {
	cfg, err := loadAppConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	ctx := context.Background()
	kc, err := openSharedKeyCache(ctx, cfg)
	if err != nil {
		return err
	}
	defer kc.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return fn(ctx, newKeyService(store, cfg, kc, nil, logger))
}

// ---------- key create ----------

func newKeyCreateCmd() *cobra.Command {
	var label string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new API key",
		Long:  "Generate a new API key. The raw key is shown once and cannot be retrieved again.",
		Example: `  reelvault key create --label "Website"
  reelvault key create --label "Mobile App"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withKeyService(func(ctx context.Context, keys *service.KeyService) error {
				return runKeyCreate(ctx, keys, label)
			})
		},
	}

	cmd.Flags().StringVar(&label, "label", "", "Human-readable label for the key (required)")
	cmd.MarkFlagRequired("label")

	return cmd
}

func runKeyCreate(ctx context.Context, keys *service.KeyService, label string) error {
	issued, err := keys.Issue(ctx, label)
	if err != nil {
		return fmt.Errorf("create api key: %w", err)
	}

	fmt.Println("API Key created:")
	fmt.Println()
	fmt.Printf("  ID:    %s\n", issued.Key.ID)
	fmt.Printf("  Key:   %s\n", issued.Secret)
	fmt.Printf("  Label: %s\n", issued.Key.Label)
	fmt.Println()
	fmt.Println("  Save this key now - it cannot be retrieved again.")
	return nil
}

// ---------- key list ----------

func newKeyListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List all API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withKeyService(func(ctx context.Context, keys *service.KeyService) error {
				return runKeyList(ctx, keys, os.Stdout, jsonOutput)
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

type keyRow struct {
	ID         string     `json:"id"`
	Key        string     `json:"masked_key"`
	Label      string     `json:"label"`
	Active     bool       `json:"active"`
	UsageCount int64      `json:"usage_count"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

func runKeyList(ctx context.Context, keys *service.KeyService, w io.Writer, jsonOutput bool) error {
	list, err := keys.List(ctx)
	if err != nil {
		return fmt.Errorf("list api keys: %w", err)
	}

	rows := make([]keyRow, len(list))
	for i := range list {
		k := &list[i]
		rows[i] = keyRow{
			ID:         k.ID,
			Key:        k.MaskedKey(),
			Label:      k.Label,
			Active:     k.IsActive,
			UsageCount: k.UsageCount,
			LastUsedAt: k.LastUsedAt,
		}
	}

	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	if len(rows) == 0 {
		fmt.Fprintln(w, "No API keys configured. Use 'reelvault key create' to create one.")
		return nil
	}

	fmt.Fprintf(w, "%-36s %-10s %-24s %-8s %-8s %s\n", "ID", "KEY", "LABEL", "ACTIVE", "USAGE", "LAST USED")
	fmt.Fprintf(w, "%-36s %-10s %-24s %-8s %-8s %s\n", "--", "---", "-----", "------", "-----", "---------")
	for _, k := range rows {
		active := "yes"
		if !k.Active {
			active = "no"
		}
		lastUsed := "never"
		if k.LastUsedAt != nil {
			lastUsed = k.LastUsedAt.Local().Format(time.DateTime)
		}
		fmt.Fprintf(w, "%-36s %-10s %-24s %-8s %-8d %s\n", k.ID, k.Key, k.Label, active, k.UsageCount, lastUsed)
	}

	return nil
}

// ---------- key toggle ----------

func newKeyToggleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "toggle <id>",
		Short: "Activate or deactivate an API key",
		Long:  "Flip an API key between active and inactive. Inactive keys are rejected by the public API until toggled back.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withKeyService(func(ctx context.Context, keys *service.KeyService) error {
				key, err := keys.Toggle(ctx, args[0])
				if err != nil {
					return keyCmdError("toggle", args[0], err)
				}
				state := "deactivated"
				if key.IsActive {
					state = "activated"
				}
				fmt.Printf("API key %s %s\n", keyLabel(key), state)
				return nil
			})
		},
	}

	return cmd
}

// ---------- key delete ----------

func newKeyDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Permanently delete an API key",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withKeyService(func(ctx context.Context, keys *service.KeyService) error {
				if err := keys.Delete(ctx, args[0]); err != nil {
					return keyCmdError("delete", args[0], err)
				}
				fmt.Printf("Deleted API key %s\n", args[0])
				return nil
			})
		},
	}

	return cmd
}

func keyCmdError(op, id string, err error) error {
	if errors.Is(err, config.ErrNotFound) {
		return fmt.Errorf("no API key found with id %q", id)
	}
	return fmt.Errorf("%s api key: %w", op, err)
}

// keyLabel renders a key the way admins recognize it.
func keyLabel(k *model.APIKey) string {
	return fmt.Sprintf("%s (%s)", k.MaskedKey(), k.Label)
}
