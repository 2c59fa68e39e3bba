// Package auth interprets gateway responses as identity transitions and
// gates console pages by role.
package auth

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/ransxm/ransxm-console/gateway"
	"github.com/ransxm/ransxm-console/nav"
	"github.com/ransxm/ransxm-console/session"
)

// Exchanger performs the credential exchanges auth depends on.
// *gateway.Gateway implements it.
type Exchanger interface {
	Login(ctx context.Context, email, password string) gateway.Result
	Register(ctx context.Context, email, password, key string) gateway.Result
}

// Result reports the outcome of a login or registration.
type Result struct {
	Success bool
	User    *session.User
	Error   string
}

// Auth owns the current identity.
type Auth struct {
	exchanger Exchanger
	session   *session.Manager
	nav       nav.Navigator
	logger    *zap.Logger
}

// New creates an Auth.
func New(exchanger Exchanger, sess *session.Manager, navigator nav.Navigator, logger *zap.Logger) *Auth {
	if navigator == nil {
		navigator = nav.Discard
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Auth{
		exchanger: exchanger,
		session:   sess,
		nav:       navigator,
		logger:    logger,
	}
}

// Login exchanges credentials for a session.
func (a *Auth) Login(ctx context.Context, email, password string) Result {
	return a.establish(ctx, "login", a.exchanger.Login(ctx, email, password))
}

// Register creates an account bound to a license key and logs it in.
func (a *Auth) Register(ctx context.Context, email, password, key string) Result {
	return a.establish(ctx, "register", a.exchanger.Register(ctx, email, password, key))
}

func (a *Auth) establish(ctx context.Context, op string, res gateway.Result) Result {
	token := res.String("token")
	if token == "" {
		msg := res.Err()
		if msg == "" {
			msg = "Authentication failed"
		}
		a.logger.Debug("Authentication rejected", zap.String("op", op), zap.String("error", msg))
		return Result{Error: msg}
	}

	raw, ok := res.Raw("user")
	if !ok {
		raw = json.RawMessage("null")
	}
	if err := a.session.Save(ctx, token, raw); err != nil {
		a.logger.Error("Failed to persist session", zap.String("op", op), zap.Error(err))
		return Result{Error: "Failed to save session"}
	}

	user := a.session.User(ctx)
	fields := []zap.Field{zap.String("op", op)}
	if user != nil {
		fields = append(fields, zap.String("user_id", user.ID.String()), zap.String("role", string(user.Role)))
	}
	a.logger.Info("Session established", fields...)

	return Result{Success: true, User: user}
}

// Logout clears the session and navigates to the entry page. It is safe to
// call when already logged out.
func (a *Auth) Logout(ctx context.Context) {
	if err := a.session.Destroy(ctx); err != nil {
		a.logger.Error("Failed to clear session on logout", zap.Error(err))
	}
	a.nav.Navigate(nav.EntryPage)
}

// GetUser returns the persisted user, or nil.
func (a *Auth) GetUser(ctx context.Context) *session.User {
	return a.session.User(ctx)
}

// IsLoggedIn reports whether a token is present.
func (a *Auth) IsLoggedIn(ctx context.Context) bool {
	return a.session.Token(ctx) != ""
}

func (a *Auth) role(ctx context.Context) session.Role {
	if u := a.GetUser(ctx); u != nil {
		return u.Role
	}
	return ""
}

// IsAdmin reports whether the user is admin or super_admin.
func (a *Auth) IsAdmin(ctx context.Context) bool {
	return a.role(ctx).AdminCapable()
}

// IsSuperAdmin reports whether the user is super_admin.
func (a *Auth) IsSuperAdmin(ctx context.Context) bool {
	return a.role(ctx) == session.RoleSuperAdmin
}

// IsUser reports whether the user is a plain user.
func (a *Auth) IsUser(ctx context.Context) bool {
	return a.role(ctx) == session.RoleUser
}

// RequireAuth navigates to the entry page and returns false when nobody is
// logged in.
func (a *Auth) RequireAuth(ctx context.Context) bool {
	if !a.IsLoggedIn(ctx) {
		a.nav.Navigate(nav.EntryPage)
		return false
	}
	return true
}

// RequireAdmin navigates to the user dashboard and returns false when the
// user is not admin-capable.
func (a *Auth) RequireAdmin(ctx context.Context) bool {
	if !a.IsAdmin(ctx) {
		a.nav.Navigate(nav.UserDashboard)
		return false
	}
	return true
}

// RequireSuperAdmin navigates to the admin dashboard and returns false when
// the user is not super_admin.
func (a *Auth) RequireSuperAdmin(ctx context.Context) bool {
	if !a.IsSuperAdmin(ctx) {
		a.nav.Navigate(nav.AdminDashboard)
		return false
	}
	return true
}

// RedirectToDashboard routes the current identity to its dashboard and
// returns the target.
func (a *Auth) RedirectToDashboard(ctx context.Context) nav.Page {
	target := nav.EntryPage
	if a.IsLoggedIn(ctx) {
		switch {
		case a.IsAdmin(ctx):
			target = nav.AdminDashboard
		case a.GetUser(ctx) != nil:
			target = nav.UserDashboard
		}
	}
	a.nav.Navigate(target)
	return target
}

// TokenExpiry returns the exp claim of the session token. The token is
// decoded only; its signature is not checked.
func (a *Auth) TokenExpiry(ctx context.Context) (time.Time, bool) {
	token := a.session.Token(ctx)
	if token == "" {
		return time.Time{}, false
	}

	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, false
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
