package auth

import (
	"context"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/ransxm/ransxm-console/gateway"
	"github.com/ransxm/ransxm-console/gateway/gatewaytest"
	"github.com/ransxm/ransxm-console/nav"
	"github.com/ransxm/ransxm-console/session"
)

func setupAuthTest(t *testing.T) (*Auth, *gatewaytest.Server, *session.MemoryStore, *nav.Recorder, func()) {
	t.Helper()
	srv := gatewaytest.NewServer()
	srv.AddUser("admin@ransxm.io", "admin-pw", session.RoleAdmin)
	srv.AddUser("root@ransxm.io", "root-pw", session.RoleSuperAdmin)
	srv.AddUser("user@ransxm.io", "user-pw", session.RoleUser)

	store := session.NewMemoryStore()
	mgr := session.NewManager(store, zap.NewNop())
	rec := nav.NewRecorder(nil)

	gw, err := gateway.New(gateway.Config{BaseURL: srv.BaseURL(), Timeout: 2 * time.Second}, mgr, rec, zap.NewNop())
	if err != nil {
		srv.Close()
		t.Fatalf("Failed to create gateway: %v", err)
	}
	return New(gw, mgr, rec, zap.NewNop()), srv, store, rec, srv.Close
}

// stubExchanger returns canned results.
type stubExchanger struct {
	result gateway.Result
}

func (s stubExchanger) Login(context.Context, string, string) gateway.Result { return s.result }
func (s stubExchanger) Register(context.Context, string, string, string) gateway.Result {
	return s.result
}

func TestLogin_Admin(t *testing.T) {
	a, _, _, rec, done := setupAuthTest(t)
	defer done()
	ctx := context.Background()

	res := a.Login(ctx, "admin@ransxm.io", "admin-pw")
	if !res.Success {
		t.Fatalf("Expected login to succeed, got error '%s'", res.Error)
	}
	if res.User == nil || res.User.Email != "admin@ransxm.io" {
		t.Errorf("Expected admin user in result, got %+v", res.User)
	}
	if !a.IsLoggedIn(ctx) || a.GetUser(ctx) == nil {
		t.Error("Expected token and user to be persisted together")
	}
	if !a.IsAdmin(ctx) {
		t.Error("Expected IsAdmin to be true")
	}
	if a.IsSuperAdmin(ctx) || a.IsUser(ctx) {
		t.Error("Expected admin to be neither super_admin nor plain user")
	}
	if got := a.RedirectToDashboard(ctx); got != nav.AdminDashboard {
		t.Errorf("Expected %s, got %s", nav.AdminDashboard, got)
	}
	if last, _ := rec.Last(); last != nav.AdminDashboard {
		t.Errorf("Expected navigation to %s, got %s", nav.AdminDashboard, last)
	}
}

func TestLogin_PlainUser(t *testing.T) {
	a, _, _, _, done := setupAuthTest(t)
	defer done()
	ctx := context.Background()

	if res := a.Login(ctx, "user@ransxm.io", "user-pw"); !res.Success {
		t.Fatalf("Expected login to succeed, got '%s'", res.Error)
	}
	if a.IsAdmin(ctx) {
		t.Error("Expected IsAdmin to be false")
	}
	if !a.IsUser(ctx) {
		t.Error("Expected IsUser to be true")
	}
	if got := a.RedirectToDashboard(ctx); got != nav.UserDashboard {
		t.Errorf("Expected %s, got %s", nav.UserDashboard, got)
	}
}

func TestLogin_SuperAdmin(t *testing.T) {
	a, _, _, _, done := setupAuthTest(t)
	defer done()
	ctx := context.Background()

	a.Login(ctx, "root@ransxm.io", "root-pw")
	if !a.IsAdmin(ctx) || !a.IsSuperAdmin(ctx) {
		t.Error("Expected super_admin to be admin-capable and super_admin")
	}
	if !a.RequireSuperAdmin(ctx) {
		t.Error("Expected RequireSuperAdmin to allow")
	}
}

func TestLogin_BadCredentialsPersistsNothing(t *testing.T) {
	a, _, store, _, done := setupAuthTest(t)
	defer done()
	ctx := context.Background()

	res := a.Login(ctx, "admin@ransxm.io", "wrong")
	if res.Success {
		t.Fatal("Expected login to fail")
	}
	if res.Error != "Invalid credentials" {
		t.Errorf("Expected server error verbatim, got '%s'", res.Error)
	}
	if store.Len() != 0 {
		t.Errorf("Expected nothing persisted, got %d slots", store.Len())
	}
}

func TestLogin_TokenWithoutUser(t *testing.T) {
	mgr := session.NewManager(session.NewMemoryStore(), nil)
	a := New(stubExchanger{result: gateway.Result{"token": "t"}}, mgr, nil, nil)
	ctx := context.Background()

	res := a.Login(ctx, "x", "y")
	if !res.Success {
		t.Fatalf("Expected success, got '%s'", res.Error)
	}
	if !a.IsLoggedIn(ctx) {
		t.Error("Expected logged in")
	}
	if a.GetUser(ctx) != nil || a.IsAdmin(ctx) {
		t.Error("Expected no user and no admin rights")
	}
	if got := a.RedirectToDashboard(ctx); got != nav.EntryPage {
		t.Errorf("Expected %s without identity, got %s", nav.EntryPage, got)
	}
}

func TestLogin_ConnectionFailed(t *testing.T) {
	mgr := session.NewManager(session.NewMemoryStore(), nil)
	a := New(stubExchanger{result: gateway.Result{"error": gateway.ErrConnectionFailed}}, mgr, nil, nil)

	res := a.Login(context.Background(), "x", "y")
	if res.Success || res.Error != gateway.ErrConnectionFailed {
		t.Errorf("Expected connection failure, got %+v", res)
	}
}

func TestRegister(t *testing.T) {
	a, srv, _, _, done := setupAuthTest(t)
	defer done()
	ctx := context.Background()
	k := srv.AddKey(gateway.Key{KeyValue: "RANSXM-REG"})

	if res := a.Register(ctx, "new@ransxm.io", "pw", "RANSXM-NOPE"); res.Success {
		t.Error("Expected registration with unknown key to fail")
	}
	if a.IsLoggedIn(ctx) {
		t.Fatal("Expected no session after failed registration")
	}

	res := a.Register(ctx, "new@ransxm.io", "pw", k.KeyValue)
	if !res.Success {
		t.Fatalf("Expected registration to succeed, got '%s'", res.Error)
	}
	if !a.IsUser(ctx) {
		t.Error("Expected registered user to be a plain user")
	}
}

func TestLogout_Idempotent(t *testing.T) {
	a, _, store, rec, done := setupAuthTest(t)
	defer done()
	ctx := context.Background()

	a.Login(ctx, "admin@ransxm.io", "admin-pw")

	for i := 0; i < 2; i++ {
		a.Logout(ctx)
		if store.Len() != 0 {
			t.Errorf("Logout %d: expected empty store, got %d slots", i+1, store.Len())
		}
		if page, _ := rec.Last(); page != nav.EntryPage {
			t.Errorf("Logout %d: expected %s, got %s", i+1, nav.EntryPage, page)
		}
	}
}

func TestRequireGates(t *testing.T) {
	a, _, _, rec, done := setupAuthTest(t)
	defer done()
	ctx := context.Background()

	if a.RequireAuth(ctx) {
		t.Error("Expected RequireAuth to deny when logged out")
	}
	if page, _ := rec.Last(); page != nav.EntryPage {
		t.Errorf("Expected %s, got %s", nav.EntryPage, page)
	}

	a.Login(ctx, "user@ransxm.io", "user-pw")
	if !a.RequireAuth(ctx) {
		t.Error("Expected RequireAuth to allow")
	}
	if a.RequireAdmin(ctx) {
		t.Error("Expected RequireAdmin to deny a plain user")
	}
	if page, _ := rec.Last(); page != nav.UserDashboard {
		t.Errorf("Expected %s, got %s", nav.UserDashboard, page)
	}

	a.Login(ctx, "admin@ransxm.io", "admin-pw")
	if !a.RequireAdmin(ctx) {
		t.Error("Expected RequireAdmin to allow an admin")
	}
	if a.RequireSuperAdmin(ctx) {
		t.Error("Expected RequireSuperAdmin to deny an admin")
	}
	if page, _ := rec.Last(); page != nav.AdminDashboard {
		t.Errorf("Expected %s, got %s", nav.AdminDashboard, page)
	}
}

func TestExpiredSessionLogsOut(t *testing.T) {
	a, srv, _, rec, done := setupAuthTest(t)
	defer done()
	ctx := context.Background()

	a.Login(ctx, "admin@ransxm.io", "admin-pw")
	srv.ExpireTokens()

	gw := a.exchanger.(*gateway.Gateway)
	if res := gw.Stats(ctx); res.Err() != gateway.ErrSessionExpired {
		t.Fatalf("Expected session expired, got %v", res)
	}
	if a.IsLoggedIn(ctx) || a.GetUser(ctx) != nil {
		t.Error("Expected identity to be gone")
	}
	if page, _ := rec.Last(); page != nav.EntryPage {
		t.Errorf("Expected %s, got %s", nav.EntryPage, page)
	}
}

func TestTokenExpiry(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "1",
		"exp": exp.Unix(),
	}).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}

	mgr := session.NewManager(session.NewMemoryStore(), nil)
	a := New(stubExchanger{}, mgr, nil, nil)
	ctx := context.Background()

	if _, ok := a.TokenExpiry(ctx); ok {
		t.Error("Expected no expiry without a token")
	}

	mgr.Save(ctx, token, json.RawMessage(`{}`))
	got, ok := a.TokenExpiry(ctx)
	if !ok {
		t.Fatal("Expected expiry to decode")
	}
	if !got.Equal(exp) {
		t.Errorf("Expected %v, got %v", exp, got)
	}

	mgr.Save(ctx, "opaque-token", json.RawMessage(`{}`))
	if _, ok := a.TokenExpiry(ctx); ok {
		t.Error("Expected opaque token to have no expiry")
	}
}
