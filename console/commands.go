package console

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ransxm/ransxm-console/formats"
	"github.com/ransxm/ransxm-console/gateway"
	"github.com/ransxm/ransxm-console/session"
)

// ErrUsage is returned by shell handlers given malformed arguments.
var ErrUsage = errors.New("usage")

func usage(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUsage, fmt.Sprintf(format, args...))
}

// ParseExpiry parses an expiry given as a date (local midnight) or an
// RFC 3339 timestamp. Empty means no expiry.
func ParseExpiry(s string) (*time.Time, error) {
	if s == "" || strings.EqualFold(s, "never") {
		return nil, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", s, time.Local); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, fmt.Errorf("invalid expiry %q (want YYYY-MM-DD or RFC 3339)", s)
	}
	return &t, nil
}

func parseInt64(name, s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", name, s)
	}
	return n, nil
}

// createOptions parses max_uses, expires, tier and note.
func createOptions(opts map[string]string) (gateway.CreateKeyParams, error) {
	var p gateway.CreateKeyParams
	var err error
	if p.MaxUses, err = parseInt64("max_uses", opts["max_uses"]); err != nil {
		return p, err
	}
	if p.ExpiresAt, err = ParseExpiry(opts["expires"]); err != nil {
		return p, err
	}
	if p.Tier, err = gateway.ParseTier(opts["tier"]); err != nil {
		return p, err
	}
	p.Note = opts["note"]
	return p, nil
}

// updateOptions parses status, tier and note. Absent keys stay nil.
func updateOptions(opts map[string]string) (gateway.UpdateKeyParams, error) {
	var p gateway.UpdateKeyParams
	if s, ok := opts["status"]; ok {
		st, err := gateway.ParseStatus(s)
		if err != nil {
			return p, err
		}
		p.Status = &st
	}
	if s, ok := opts["tier"]; ok {
		t, err := gateway.ParseTier(s)
		if err != nil {
			return p, err
		}
		p.Tier = &t
	}
	if s, ok := opts["note"]; ok {
		p.Note = &s
	}
	return p, nil
}

func oneID(args []string, name string) (session.ID, error) {
	if len(args) != 1 || args[0] == "" {
		return "", usage("%s <id>", name)
	}
	return session.ID(args[0]), nil
}

// Bind registers the key dashboard's shell commands.
func (k *Keys) Bind(r *Registry) {
	r.MustRegister("load", "load", "Reload the key list", func(ctx context.Context, _ []string) error {
		k.LoadKeys(ctx)
		return nil
	})
	r.MustRegister("search", "search [text]", "Search keys (debounced)", func(ctx context.Context, args []string) error {
		k.SearchInput(ctx, strings.Join(args, " "))
		return nil
	})
	r.MustRegister("status", "status [active|disabled|banned|expired]", "Filter by status", func(ctx context.Context, args []string) error {
		k.FilterStatus(ctx, strings.Join(args, ""))
		return nil
	})
	r.MustRegister("tier", "tier [basic|premium|ransxm]", "Filter by tier", func(ctx context.Context, args []string) error {
		k.FilterTier(ctx, strings.Join(args, ""))
		return nil
	})
	r.MustRegister("next", "next", "Next page", func(ctx context.Context, _ []string) error {
		if !k.NextPage(ctx) {
			k.view.Alert(AlertInfo, "Already on the last page")
		}
		return nil
	})
	r.MustRegister("prev", "prev", "Previous page", func(ctx context.Context, _ []string) error {
		if !k.PrevPage(ctx) {
			k.view.Alert(AlertInfo, "Already on the first page")
		}
		return nil
	})
	r.MustRegister("create", "create [max_uses=N] [expires=DATE] [tier=T] [note=TEXT]", "Create a key", func(ctx context.Context, args []string) error {
		opts, err := options(args)
		if err != nil {
			return err
		}
		p, err := createOptions(opts)
		if err != nil {
			return err
		}
		k.CreateKey(ctx, p)
		return nil
	})
	r.MustRegister("bulk", "bulk count=N [max_uses=N] [expires=DATE] [tier=T]", "Create several keys", func(ctx context.Context, args []string) error {
		opts, err := options(args)
		if err != nil {
			return err
		}
		p, err := createOptions(opts)
		if err != nil {
			return err
		}
		count, err := parseInt64("count", opts["count"])
		if err != nil {
			return err
		}
		k.BulkCreate(ctx, gateway.BulkCreateParams{
			Count:     int(count),
			ExpiresAt: p.ExpiresAt,
			MaxUses:   p.MaxUses,
			Tier:      p.Tier,
		})
		return nil
	})
	r.MustRegister("edit", "edit <id> [status=S] [tier=T] [note=TEXT]", "Update a key", func(ctx context.Context, args []string) error {
		if len(args) < 2 {
			return usage("edit <id> key=value...")
		}
		opts, err := options(args[1:])
		if err != nil {
			return err
		}
		p, err := updateOptions(opts)
		if err != nil {
			return err
		}
		k.EditKey(ctx, session.ID(args[0]), p)
		return nil
	})
	r.MustRegister("delete", "delete <id>", "Delete a key", func(ctx context.Context, args []string) error {
		id, err := oneID(args, "delete")
		if err != nil {
			return err
		}
		k.DeleteKey(ctx, id)
		return nil
	})
	r.MustRegister("reset-hwid", "reset-hwid <id>", "Unbind a key from its device", func(ctx context.Context, args []string) error {
		id, err := oneID(args, "reset-hwid")
		if err != nil {
			return err
		}
		k.ResetHWID(ctx, id)
		return nil
	})
	r.MustRegister("reset-uses", "reset-uses <id>", "Zero a key's use counter", func(ctx context.Context, args []string) error {
		id, err := oneID(args, "reset-uses")
		if err != nil {
			return err
		}
		k.ResetUses(ctx, id)
		return nil
	})
	r.MustRegister("select", "select <id>...", "Toggle the selection of keys", func(_ context.Context, args []string) error {
		if len(args) == 0 {
			return usage("select <id>...")
		}
		for _, a := range args {
			if !k.State().IsVisible(session.ID(a)) {
				k.view.Alert(AlertError, fmt.Sprintf("Key %s is not on the current page", a))
				continue
			}
			k.Toggle(session.ID(a))
		}
		k.view.Alert(AlertInfo, fmt.Sprintf("%d selected", len(k.Selected())))
		return nil
	})
	r.MustRegister("select-all", "select-all", "Select every key on the page", func(context.Context, []string) error {
		k.view.Alert(AlertInfo, fmt.Sprintf("%d selected", k.SelectAll()))
		return nil
	})
	r.MustRegister("clear", "clear", "Clear the selection", func(context.Context, []string) error {
		k.ClearSelection()
		return nil
	})
	r.MustRegister("selected", "selected", "List selected keys", func(context.Context, []string) error {
		ids := k.Selected()
		if len(ids) == 0 {
			k.view.Alert(AlertInfo, "No keys selected")
			return nil
		}
		names := make([]string, len(ids))
		for i, id := range ids {
			names[i] = id.String()
		}
		k.view.Alert(AlertInfo, "Selected: "+strings.Join(names, ", "))
		return nil
	})
	r.MustRegister("batch-delete", "batch-delete", "Delete the selected keys", func(ctx context.Context, _ []string) error {
		k.BatchDelete(ctx)
		return nil
	})
	r.MustRegister("batch-status", "batch-status <active|disabled|banned>", "Set the status of the selected keys", func(ctx context.Context, args []string) error {
		if len(args) != 1 {
			return usage("batch-status <status>")
		}
		k.BatchStatus(ctx, gateway.KeyStatus(args[0]))
		return nil
	})
	r.MustRegister("copy", "copy <id|key>", "Copy a key value", func(_ context.Context, args []string) error {
		if len(args) != 1 {
			return usage("copy <id|key>")
		}
		key, ok := k.Lookup(args[0])
		if !ok {
			k.view.Alert(AlertError, "Key is not on the current page")
			return nil
		}
		k.CopyKey(key.ID)
		return nil
	})
	r.MustRegister("stats", "stats", "Reload the dashboard stats", func(ctx context.Context, _ []string) error {
		k.LoadStats(ctx)
		return nil
	})
	r.MustRegister("export", "export <csv|json|arrow|parquet> <file>", "Export keys matching the filters", func(ctx context.Context, args []string) error {
		if len(args) != 2 {
			return usage("export <format> <file>")
		}
		format, err := formats.ParseFormat(args[0])
		if err != nil {
			return err
		}
		f, err := os.Create(args[1])
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", args[1], err)
		}
		if err := k.Export(ctx, format, f); err != nil {
			f.Close()
			os.Remove(args[1])
			return err
		}
		return f.Close()
	})
}

// Bind registers the admin views' shell commands.
func (a *Admin) Bind(r *Registry) {
	r.MustRegister("logs", "logs [limit]", "Show recent usage logs", func(ctx context.Context, args []string) error {
		limit := 0
		if len(args) > 0 {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return usage("logs [limit]")
			}
			limit = n
		}
		a.LoadLogs(ctx, limit)
		return nil
	})
	r.MustRegister("analytics", "analytics [days]", "Show validation analytics", func(ctx context.Context, args []string) error {
		days := 0
		if len(args) > 0 {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return usage("analytics [days]")
			}
			days = n
		}
		a.LoadAnalytics(ctx, days)
		return nil
	})
	r.MustRegister("users", "users", "List users", func(ctx context.Context, _ []string) error {
		a.LoadUsers(ctx)
		return nil
	})
	r.MustRegister("user-create", "user-create <email> <password> [role]", "Create a privileged user", func(ctx context.Context, args []string) error {
		if len(args) < 2 || len(args) > 3 {
			return usage("user-create <email> <password> [role]")
		}
		p := gateway.CreateUserParams{Email: args[0], Password: args[1]}
		if len(args) == 3 {
			role, err := session.ParseRole(args[2])
			if err != nil {
				return err
			}
			p.Role = role
		}
		a.CreateUser(ctx, p)
		return nil
	})
	r.MustRegister("user-role", "user-role <id> <role>", "Change a user's role", func(ctx context.Context, args []string) error {
		if len(args) != 2 {
			return usage("user-role <id> <role>")
		}
		role, err := session.ParseRole(args[1])
		if err != nil {
			return err
		}
		a.UpdateRole(ctx, session.ID(args[0]), role)
		return nil
	})
	r.MustRegister("user-delete", "user-delete <id>", "Delete a user", func(ctx context.Context, args []string) error {
		id, err := oneID(args, "user-delete")
		if err != nil {
			return err
		}
		a.DeleteUser(ctx, id)
		return nil
	})
}

// Bind registers the plain-user dashboard's shell commands.
func (a *Account) Bind(r *Registry) {
	r.MustRegister("me", "me", "Show the signed-in account", func(ctx context.Context, _ []string) error {
		a.LoadIdentity(ctx)
		return nil
	})
	r.MustRegister("my-logs", "my-logs", "Show usage logs of your keys", func(ctx context.Context, _ []string) error {
		a.LoadMyLogs(ctx)
		return nil
	})
}
