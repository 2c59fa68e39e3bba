package console

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/ransxm/ransxm-console/auth"
	"github.com/ransxm/ransxm-console/gateway"
	"github.com/ransxm/ransxm-console/gateway/gatewaytest"
	"github.com/ransxm/ransxm-console/nav"
	"github.com/ransxm/ransxm-console/session"
)

type alert struct {
	kind AlertKind
	msg  string
}

// fakeView records everything controllers present.
type fakeView struct {
	mu sync.Mutex

	events    []string
	loading   map[Section]int
	rows      []KeyRow
	page      Pagination
	keyRender int
	stats     *gateway.Stats
	created   []gateway.Key
	logs      []gateway.UsageLog
	users     []session.User
	days      int
	analytics gateway.Result
	identity  *session.User
	alerts    []alert
	prompts   []string
	copied    []string
	confirm   bool
}

func newFakeView() *fakeView {
	return &fakeView{loading: make(map[Section]int), confirm: true}
}

func (v *fakeView) settle(section Section, event string) {
	if v.loading[section] > 0 {
		v.loading[section]--
	}
	v.events = append(v.events, event)
}

func (v *fakeView) ShowLoading(section Section) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.loading[section]++
	v.events = append(v.events, "loading:"+string(section))
}

func (v *fakeView) RenderKeys(rows []KeyRow, page Pagination) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.rows, v.page = rows, page
	v.keyRender++
	v.settle(SectionKeys, "keys")
}

func (v *fakeView) RenderStats(stats *gateway.Stats) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.stats = stats
	v.settle(SectionStats, "stats")
}

func (v *fakeView) RenderCreated(keys []gateway.Key) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.created = keys
	v.events = append(v.events, "created")
}

func (v *fakeView) RenderLogs(logs []gateway.UsageLog) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.logs = logs
	v.settle(SectionLogs, "logs")
}

func (v *fakeView) RenderUsers(users []session.User) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.users = users
	v.settle(SectionUsers, "users")
}

func (v *fakeView) RenderAnalytics(days int, data gateway.Result) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.days, v.analytics = days, data
	v.settle(SectionAnalytics, "analytics")
}

func (v *fakeView) RenderIdentity(user *session.User) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.identity = user
	v.settle(SectionIdentity, "identity")
}

func (v *fakeView) Alert(kind AlertKind, msg string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.alerts = append(v.alerts, alert{kind, msg})
}

func (v *fakeView) Confirm(prompt string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.prompts = append(v.prompts, prompt)
	return v.confirm
}

func (v *fakeView) Copy(text string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.copied = append(v.copied, text)
}

func (v *fakeView) lastAlert() alert {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.alerts) == 0 {
		return alert{}
	}
	return v.alerts[len(v.alerts)-1]
}

func (v *fakeView) pending() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	n := 0
	for _, c := range v.loading {
		n += c
	}
	return n
}

func (v *fakeView) renderedRows() []KeyRow {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.rows
}

type consoleTest struct {
	srv  *gatewaytest.Server
	gw   *gateway.Gateway
	auth *auth.Auth
	nav  *nav.Recorder
	view *fakeView
}

const (
	adminEmail = "admin@ransxm.io"
	rootEmail  = "root@ransxm.io"
	userEmail  = "user@ransxm.io"
	testPass   = "pw"
)

// setupConsoleTest starts a fake service with one account per role and
// signs in as email.
func setupConsoleTest(t *testing.T, email string) (*consoleTest, func()) {
	t.Helper()
	srv := gatewaytest.NewServer()
	srv.AddUser(adminEmail, testPass, session.RoleAdmin)
	srv.AddUser(rootEmail, testPass, session.RoleSuperAdmin)
	srv.AddUser(userEmail, testPass, session.RoleUser)

	mgr := session.NewManager(session.NewMemoryStore(), zap.NewNop())
	rec := nav.NewRecorder(nil)
	gw, err := gateway.New(gateway.Config{BaseURL: srv.BaseURL(), Timeout: 2 * time.Second}, mgr, rec, zap.NewNop())
	if err != nil {
		srv.Close()
		t.Fatalf("Failed to create gateway: %v", err)
	}
	a := auth.New(gw, mgr, rec, zap.NewNop())
	if email != "" {
		if res := a.Login(context.Background(), email, testPass); !res.Success {
			srv.Close()
			t.Fatalf("Failed to log in as %s: %s", email, res.Error)
		}
	}
	srv.ResetRequests()

	return &consoleTest{srv: srv, gw: gw, auth: a, nav: rec, view: newFakeView()}, srv.Close
}

func (c *consoleTest) keys(pageSize int, debounce time.Duration) *Keys {
	return NewKeys(c.gw, c.auth, c.view, KeysConfig{PageSize: pageSize, SearchDebounce: debounce}, zap.NewNop())
}

// allowAll is a Gate that admits everyone.
type allowAll struct{}

func (allowAll) RequireAuth(context.Context) bool       { return true }
func (allowAll) RequireAdmin(context.Context) bool      { return true }
func (allowAll) RequireSuperAdmin(context.Context) bool { return true }
