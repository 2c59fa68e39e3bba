package console

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ransxm/ransxm-console/gateway"
	"github.com/ransxm/ransxm-console/session"
)

// DefaultLogLimit is the number of usage logs requested when none is given.
const DefaultLogLimit = 50

// AdminAPI is the slice of the gateway the admin views use.
type AdminAPI interface {
	Stats(ctx context.Context) gateway.Result
	Logs(ctx context.Context, limit int) gateway.Result
	Analytics(ctx context.Context, days int) gateway.Result
	Users(ctx context.Context) gateway.Result
	CreateUser(ctx context.Context, params gateway.CreateUserParams) gateway.Result
	UpdateUserRole(ctx context.Context, id session.ID, role session.Role) gateway.Result
	DeleteUser(ctx context.Context, id session.ID) gateway.Result
}

// Admin drives the admin views: stats, usage logs, analytics and users.
type Admin struct {
	api    AdminAPI
	gate   Gate
	view   View
	logger *zap.Logger
}

// NewAdmin creates the admin views controller.
func NewAdmin(api AdminAPI, gate Gate, view View, logger *zap.Logger) *Admin {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Admin{api: api, gate: gate, view: view, logger: logger}
}

// Init gates the views to admins and loads stats and recent logs.
func (a *Admin) Init(ctx context.Context) bool {
	if !a.gate.RequireAuth(ctx) || !a.gate.RequireAdmin(ctx) {
		return false
	}
	a.LoadStats(ctx)
	a.LoadLogs(ctx, DefaultLogLimit)
	return true
}

// LoadStats fetches and renders the dashboard aggregates.
func (a *Admin) LoadStats(ctx context.Context) bool {
	return loadStats(ctx, a.api, a.view, a.logger)
}

// LoadLogs renders the most recent usage logs.
func (a *Admin) LoadLogs(ctx context.Context, limit int) bool {
	if limit <= 0 {
		limit = DefaultLogLimit
	}
	a.view.ShowLoading(SectionLogs)

	res := a.api.Logs(ctx, limit)
	var logs []gateway.UsageLog
	if err := decodeField(res, "logs", &logs); err != nil {
		a.view.RenderLogs(nil)
		reportFailure(a.view, a.logger, res, "Failed to load logs", err)
		return false
	}
	a.view.RenderLogs(logs)
	return true
}

// LoadAnalytics renders validation analytics for the last days days.
func (a *Admin) LoadAnalytics(ctx context.Context, days int) bool {
	if days <= 0 {
		days = gateway.DefaultAnalyticsDays
	}
	a.view.ShowLoading(SectionAnalytics)

	res := a.api.Analytics(ctx, days)
	if !res.OK() {
		a.view.RenderAnalytics(days, nil)
		reportFailure(a.view, a.logger, res, "Failed to load analytics", nil)
		return false
	}
	a.view.RenderAnalytics(days, res)
	return true
}

// LoadUsers renders every account.
func (a *Admin) LoadUsers(ctx context.Context) bool {
	a.view.ShowLoading(SectionUsers)

	res := a.api.Users(ctx)
	var users []session.User
	if err := decodeField(res, "users", &users); err != nil {
		a.view.RenderUsers(nil)
		reportFailure(a.view, a.logger, res, "Failed to load users", err)
		return false
	}
	a.view.RenderUsers(users)
	return true
}

// CreateUser creates a privileged account. Super admins only.
func (a *Admin) CreateUser(ctx context.Context, params gateway.CreateUserParams) (*session.User, bool) {
	if !a.gate.RequireSuperAdmin(ctx) {
		return nil, false
	}
	params.Email = strings.TrimSpace(params.Email)
	if params.Email == "" || params.Password == "" {
		a.view.Alert(AlertError, "Email and password are required")
		return nil, false
	}
	if params.Role == "" {
		params.Role = session.RoleAdmin
	}
	if !params.Role.Valid() {
		a.view.Alert(AlertError, fmt.Sprintf("Invalid role %q", params.Role))
		return nil, false
	}

	res := a.api.CreateUser(ctx, params)
	var user session.User
	if err := decodeField(res, "user", &user); err != nil {
		reportFailure(a.view, a.logger, res, "Failed to create user", err)
		return nil, false
	}
	a.view.Alert(AlertSuccess, "User created: "+user.Email)
	a.LoadUsers(ctx)
	return &user, true
}

// UpdateRole changes a user's role. Super admins only.
func (a *Admin) UpdateRole(ctx context.Context, id session.ID, role session.Role) bool {
	if !a.gate.RequireSuperAdmin(ctx) {
		return false
	}
	if !role.Valid() {
		a.view.Alert(AlertError, fmt.Sprintf("Invalid role %q", role))
		return false
	}

	res := a.api.UpdateUserRole(ctx, id, role)
	if !res.OK() {
		reportFailure(a.view, a.logger, res, "Failed to update role", nil)
		return false
	}
	a.view.Alert(AlertSuccess, "Role updated")
	a.LoadUsers(ctx)
	return true
}

// DeleteUser removes an account after confirmation. Super admins only.
func (a *Admin) DeleteUser(ctx context.Context, id session.ID) bool {
	if !a.gate.RequireSuperAdmin(ctx) {
		return false
	}
	if !a.view.Confirm("Are you sure you want to delete this user?") {
		return false
	}

	res := a.api.DeleteUser(ctx, id)
	if !res.OK() {
		reportFailure(a.view, a.logger, res, "Failed to delete user", nil)
		return false
	}
	a.view.Alert(AlertSuccess, "User deleted")
	a.LoadUsers(ctx)
	return true
}
