package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ransxm/ransxm-console/console"
	"github.com/ransxm/ransxm-console/formats"
	"github.com/ransxm/ransxm-console/gateway"
	"github.com/ransxm/ransxm-console/session"
)

// listFlags select the page a keys subcommand works on.
type listFlags struct {
	page   int
	search string
	status string
	tier   string
}

func (f *listFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.page, "page", 1, "Page number")
	cmd.Flags().StringVarP(&f.search, "search", "s", "", "Search key value or note")
	cmd.Flags().StringVar(&f.status, "status", "", "Filter by status (active, disabled, banned, expired)")
	cmd.Flags().StringVar(&f.tier, "tier", "", "Filter by tier (basic, premium, ransxm)")
}

// open gates the key dashboard and loads the selected page.
func (f *listFlags) open(ctx context.Context, a *app) (bool, error) {
	if err := a.Keys.Seek(f.page, console.Filters{Search: f.search, Status: f.status, Tier: f.tier}); err != nil {
		return false, err
	}
	if !a.requireAdmin(ctx) {
		return false, a.done(ctx, false)
	}
	if !a.Keys.LoadKeys(ctx) {
		return false, a.done(ctx, false)
	}
	return true, nil
}

// keysCmd creates the keys command with subcommands
func keysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage license keys",
	}

	cmd.AddCommand(keysListCmd())
	cmd.AddCommand(keysCreateCmd())
	cmd.AddCommand(keysBulkCmd())
	cmd.AddCommand(keysEditCmd())
	cmd.AddCommand(keysIDCmd("delete <id>", "Delete a key", (*console.Keys).DeleteKey))
	cmd.AddCommand(keysIDCmd("reset-hwid <id>", "Unbind a key from its hardware", (*console.Keys).ResetHWID))
	cmd.AddCommand(keysIDCmd("reset-uses <id>", "Reset a key's usage count", (*console.Keys).ResetUses))
	cmd.AddCommand(keysBatchDeleteCmd())
	cmd.AddCommand(keysBatchStatusCmd())
	cmd.AddCommand(keysExportCmd())
	cmd.AddCommand(keysCopyCmd())

	return cmd
}

func keysListCmd() *cobra.Command {
	var f listFlags

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List license keys",
		RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
			_, err := f.open(ctx, a)
			return err
		}),
	}
	f.register(cmd)

	return cmd
}

type createFlags struct {
	maxUses int64
	expires string
	tier    string
	note    string
}

func (f *createFlags) register(cmd *cobra.Command, withNote bool) {
	cmd.Flags().Int64Var(&f.maxUses, "max-uses", 0, "Maximum validations (0 for unlimited)")
	cmd.Flags().StringVar(&f.expires, "expires", "", "Expiry date (YYYY-MM-DD or RFC 3339, empty for never)")
	cmd.Flags().StringVar(&f.tier, "tier", "", "Tier (basic, premium, ransxm)")
	if withNote {
		cmd.Flags().StringVar(&f.note, "note", "", "Free-form note")
	}
}

func (f *createFlags) params() (gateway.CreateKeyParams, error) {
	expires, err := console.ParseExpiry(f.expires)
	if err != nil {
		return gateway.CreateKeyParams{}, err
	}
	tier, err := gateway.ParseTier(f.tier)
	if err != nil {
		return gateway.CreateKeyParams{}, err
	}
	return gateway.CreateKeyParams{ExpiresAt: expires, MaxUses: f.maxUses, Tier: tier, Note: f.note}, nil
}

func keysCreateCmd() *cobra.Command {
	var f createFlags

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a license key",
		RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
			params, err := f.params()
			if err != nil {
				return err
			}
			if !a.requireAdmin(ctx) {
				return a.done(ctx, false)
			}
			key, ok := a.Keys.CreateKey(ctx, params)
			if ok {
				fmt.Println(key.KeyValue)
			}
			return a.done(ctx, ok)
		}),
	}
	f.register(cmd, true)

	return cmd
}

func keysBulkCmd() *cobra.Command {
	var f createFlags
	var count int

	cmd := &cobra.Command{
		Use:   "bulk",
		Short: "Create many license keys with the same settings",
		RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
			p, err := f.params()
			if err != nil {
				return err
			}
			if !a.requireAdmin(ctx) {
				return a.done(ctx, false)
			}
			_, ok := a.Keys.BulkCreate(ctx, gateway.BulkCreateParams{
				Count:     count,
				ExpiresAt: p.ExpiresAt,
				MaxUses:   p.MaxUses,
				Tier:      p.Tier,
			})
			return a.done(ctx, ok)
		}),
	}
	cmd.Flags().IntVarP(&count, "count", "n", 10, "Number of keys")
	f.register(cmd, false)

	return cmd
}

func keysEditCmd() *cobra.Command {
	var status, tier, note string

	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change a key's status, tier or note",
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		choose := !flags.Changed("status") && !flags.Changed("tier") && !flags.Changed("note")
		setNote := flags.Changed("note")

		return withApp(func(ctx context.Context, a *app, args []string) error {
			if choose {
				names := make([]string, len(gateway.EditableStatuses))
				for i, st := range gateway.EditableStatuses {
					names[i] = string(st)
				}
				if choice, ok := a.view.Choose("New status", names); ok {
					status = choice
				}
			}
			params, err := updateParams(status, tier, note, setNote)
			if err != nil {
				return err
			}
			if !a.requireAdmin(ctx) {
				return a.done(ctx, false)
			}
			return a.done(ctx, a.Keys.EditKey(ctx, session.ID(args[0]), params))
		})(cmd, args)
	}
	cmd.Flags().StringVar(&status, "status", "", "New status (active, disabled, banned)")
	cmd.Flags().StringVar(&tier, "tier", "", "New tier (basic, premium, ransxm)")
	cmd.Flags().StringVar(&note, "note", "", "New note (empty clears it)")

	return cmd
}

func updateParams(status, tier, note string, setNote bool) (gateway.UpdateKeyParams, error) {
	var params gateway.UpdateKeyParams
	if status != "" {
		st, err := gateway.ParseStatus(status)
		if err != nil {
			return params, err
		}
		params.Status = &st
	}
	if tier != "" {
		t, err := gateway.ParseTier(tier)
		if err != nil {
			return params, err
		}
		params.Tier = &t
	}
	if setNote {
		params.Note = &note
	}
	return params, nil
}

func keysIDCmd(use, short string, action func(*console.Keys, context.Context, session.ID) bool) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, a *app, args []string) error {
			if !a.requireAdmin(ctx) {
				return a.done(ctx, false)
			}
			return a.done(ctx, action(a.Keys, ctx, session.ID(args[0])))
		}),
	}
}

// selectKeys loads the page and selects ids, or every visible key.
func selectKeys(ctx context.Context, a *app, f *listFlags, all bool, ids []string) (bool, error) {
	if !all && len(ids) == 0 {
		return false, fmt.Errorf("pass key ids or --all")
	}
	if ok, err := f.open(ctx, a); !ok {
		return false, err
	}
	if all {
		a.Keys.SelectAll()
		return true, nil
	}
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if !a.Keys.Toggle(session.ID(id)) {
			return false, fmt.Errorf("key %s is not on the selected page", id)
		}
	}
	return true, nil
}

func keysBatchDeleteCmd() *cobra.Command {
	var f listFlags
	var all bool

	cmd := &cobra.Command{
		Use:   "batch-delete [id...]",
		Short: "Delete several keys",
		RunE: withApp(func(ctx context.Context, a *app, args []string) error {
			if ok, err := selectKeys(ctx, a, &f, all, args); !ok {
				return err
			}
			return a.done(ctx, a.Keys.BatchDelete(ctx))
		}),
	}
	f.register(cmd)
	cmd.Flags().BoolVar(&all, "all", false, "Select every key on the page")

	return cmd
}

func keysBatchStatusCmd() *cobra.Command {
	var f listFlags
	var all bool

	cmd := &cobra.Command{
		Use:   "batch-status <status> [id...]",
		Short: "Set the status of several keys",
		Args:  cobra.MinimumNArgs(1),
		RunE: withApp(func(ctx context.Context, a *app, args []string) error {
			status, err := gateway.ParseStatus(args[0])
			if err != nil {
				return err
			}
			if !status.Editable() {
				return fmt.Errorf("status %q cannot be set directly", status)
			}
			if ok, err := selectKeys(ctx, a, &f, all, args[1:]); !ok {
				return err
			}
			return a.done(ctx, a.Keys.BatchStatus(ctx, status))
		}),
	}
	f.register(cmd)
	cmd.Flags().BoolVar(&all, "all", false, "Select every key on the page")

	return cmd
}

func keysExportCmd() *cobra.Command {
	var format, output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export every key to a file",
		Long: `Export every key to a file.

CSV and JSON come straight from the service; Arrow IPC and Parquet are
written locally from the JSON export.`,
		RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
			fmtName, err := formats.ParseFormat(format)
			if err != nil {
				return err
			}
			if output == "" {
				output = "keys" + fmtName.Extension()
			}
			if !a.requireAdmin(ctx) {
				return a.done(ctx, false)
			}
			return runExport(ctx, a, fmtName, output)
		}),
	}
	cmd.Flags().StringVarP(&format, "format", "f", "csv", "Format: csv, json, arrow or parquet")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default keys.<ext>)")

	return cmd
}

func runExport(ctx context.Context, a *app, format formats.Format, output string) error {
	file, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", output, err)
	}
	err = a.Keys.Export(ctx, format, file)
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(output)
		a.logger.Warn("Export failed", zap.String("output", output), zap.Error(err))
		return a.done(ctx, false)
	}
	abs, _ := filepath.Abs(output)
	fmt.Printf("Wrote %s\n", abs)
	return nil
}

func keysCopyCmd() *cobra.Command {
	var f listFlags

	cmd := &cobra.Command{
		Use:   "copy <id|key>",
		Short: "Copy a key value to the clipboard",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, a *app, args []string) error {
			if ok, err := f.open(ctx, a); !ok {
				return err
			}
			ref := strings.TrimSpace(args[0])
			key, ok := a.Keys.Lookup(ref)
			if !ok {
				return fmt.Errorf("key %s is not on the selected page", ref)
			}
			_, ok = a.Keys.CopyKey(key.ID)
			return a.done(ctx, ok)
		}),
	}
	f.register(cmd)

	return cmd
}
