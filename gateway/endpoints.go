package gateway

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/ransxm/ransxm-console/session"
)

// DefaultAnalyticsDays is the analytics window used when none is given.
const DefaultAnalyticsDays = 7

func keyPath(id session.ID, suffix string) string {
	return "/keys/" + url.PathEscape(id.String()) + suffix
}

func userPath(id session.ID, suffix string) string {
	return "/admin/users/" + url.PathEscape(id.String()) + suffix
}

// Login exchanges credentials for a token.
func (g *Gateway) Login(ctx context.Context, email, password string) Result {
	return g.Request(ctx, "/auth/login", Options{
		Method: http.MethodPost,
		Body:   map[string]string{"email": email, "password": password},
	})
}

// Register creates an account bound to a license key.
func (g *Gateway) Register(ctx context.Context, email, password, key string) Result {
	body := map[string]string{"email": email, "password": password}
	if key != "" {
		body["key"] = key
	}
	return g.Request(ctx, "/auth/register", Options{Method: http.MethodPost, Body: body})
}

// Me returns the current identity.
func (g *Gateway) Me(ctx context.Context) Result {
	return g.Request(ctx, "/auth/me", Options{})
}

// MyLogs returns the caller's own usage logs.
func (g *Gateway) MyLogs(ctx context.Context) Result {
	return g.Request(ctx, "/auth/my-logs", Options{})
}

// ListKeys returns one page of keys.
func (g *Gateway) ListKeys(ctx context.Context, params ListParams) Result {
	return g.Request(ctx, "/keys", Options{Query: params.Values()})
}

// CreateKey creates one key.
func (g *Gateway) CreateKey(ctx context.Context, params CreateKeyParams) Result {
	return g.Request(ctx, "/keys", Options{Method: http.MethodPost, Body: params})
}

// BulkCreateKeys creates several keys at once.
func (g *Gateway) BulkCreateKeys(ctx context.Context, params BulkCreateParams) Result {
	return g.Request(ctx, "/keys/bulk", Options{Method: http.MethodPost, Body: params})
}

// UpdateKey changes status, tier or note of a key.
func (g *Gateway) UpdateKey(ctx context.Context, id session.ID, params UpdateKeyParams) Result {
	return g.Request(ctx, keyPath(id, ""), Options{Method: http.MethodPut, Body: params})
}

// DeleteKey removes a key.
func (g *Gateway) DeleteKey(ctx context.Context, id session.ID) Result {
	return g.Request(ctx, keyPath(id, ""), Options{Method: http.MethodDelete})
}

// ResetHWID unbinds a key from its device.
func (g *Gateway) ResetHWID(ctx context.Context, id session.ID) Result {
	return g.Request(ctx, keyPath(id, "/reset-hwid"), Options{Method: http.MethodPost})
}

// ResetUses sets a key's use counter back to zero.
func (g *Gateway) ResetUses(ctx context.Context, id session.ID) Result {
	return g.Request(ctx, keyPath(id, "/reset-uses"), Options{Method: http.MethodPost})
}

// BatchDeleteKeys removes several keys.
func (g *Gateway) BatchDeleteKeys(ctx context.Context, ids []session.ID) Result {
	return g.Request(ctx, "/keys/batch-delete", Options{
		Method: http.MethodPost,
		Body:   map[string]any{"ids": ids},
	})
}

// BatchSetStatus sets the status of several keys.
func (g *Gateway) BatchSetStatus(ctx context.Context, ids []session.ID, status KeyStatus) Result {
	return g.Request(ctx, "/keys/batch-status", Options{
		Method: http.MethodPost,
		Body:   map[string]any{"ids": ids, "status": status},
	})
}

// ExportKeys downloads keys in csv or json. A csv export comes back as
// Result content.
func (g *Gateway) ExportKeys(ctx context.Context, params ExportParams) Result {
	return g.Request(ctx, "/keys/export", Options{Query: params.Values(), AcceptContent: true})
}

// Stats returns the dashboard aggregates.
func (g *Gateway) Stats(ctx context.Context) Result {
	return g.Request(ctx, "/admin/stats", Options{})
}

// Logs returns recent usage logs. limit <= 0 leaves the server default.
func (g *Gateway) Logs(ctx context.Context, limit int) Result {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return g.Request(ctx, "/admin/logs", Options{Query: q})
}

// Users lists all users.
func (g *Gateway) Users(ctx context.Context) Result {
	return g.Request(ctx, "/admin/users", Options{})
}

// CreateUser creates a privileged user.
func (g *Gateway) CreateUser(ctx context.Context, params CreateUserParams) Result {
	return g.Request(ctx, "/admin/users", Options{Method: http.MethodPost, Body: params})
}

// UpdateUserRole changes a user's role.
func (g *Gateway) UpdateUserRole(ctx context.Context, id session.ID, role session.Role) Result {
	return g.Request(ctx, userPath(id, "/role"), Options{
		Method: http.MethodPut,
		Body:   map[string]string{"role": string(role)},
	})
}

// DeleteUser removes a user.
func (g *Gateway) DeleteUser(ctx context.Context, id session.ID) Result {
	return g.Request(ctx, userPath(id, ""), Options{Method: http.MethodDelete})
}

// Analytics returns validation analytics for the last days days.
func (g *Gateway) Analytics(ctx context.Context, days int) Result {
	if days <= 0 {
		days = DefaultAnalyticsDays
	}
	return g.Request(ctx, "/admin/analytics", Options{
		Query: url.Values{"days": {strconv.Itoa(days)}},
	})
}
