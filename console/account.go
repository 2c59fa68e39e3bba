package console

import (
	"context"

	"go.uber.org/zap"

	"github.com/ransxm/ransxm-console/gateway"
	"github.com/ransxm/ransxm-console/session"
)

// AccountAPI is the slice of the gateway the plain-user dashboard uses.
type AccountAPI interface {
	Me(ctx context.Context) gateway.Result
	MyLogs(ctx context.Context) gateway.Result
}

// Account is the plain-user dashboard controller.
type Account struct {
	api    AccountAPI
	gate   Gate
	view   View
	logger *zap.Logger
}

// NewAccount creates the plain-user dashboard controller.
func NewAccount(api AccountAPI, gate Gate, view View, logger *zap.Logger) *Account {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Account{api: api, gate: gate, view: view, logger: logger}
}

// Init requires a session and loads the identity and own usage logs.
func (a *Account) Init(ctx context.Context) bool {
	if !a.gate.RequireAuth(ctx) {
		return false
	}
	a.LoadIdentity(ctx)
	a.LoadMyLogs(ctx)
	return true
}

// LoadIdentity renders the identity the service reports for the session.
func (a *Account) LoadIdentity(ctx context.Context) (*session.User, bool) {
	a.view.ShowLoading(SectionIdentity)

	res := a.api.Me(ctx)
	var user session.User
	if err := decodeField(res, "user", &user); err != nil {
		a.view.RenderIdentity(nil)
		reportFailure(a.view, a.logger, res, "Failed to load account", err)
		return nil, false
	}
	a.view.RenderIdentity(&user)
	return &user, true
}

// LoadMyLogs renders the usage logs of the caller's own keys.
func (a *Account) LoadMyLogs(ctx context.Context) bool {
	a.view.ShowLoading(SectionLogs)

	res := a.api.MyLogs(ctx)
	var logs []gateway.UsageLog
	if err := decodeField(res, "logs", &logs); err != nil {
		a.view.RenderLogs(nil)
		reportFailure(a.view, a.logger, res, "Failed to load logs", err)
		return false
	}
	a.view.RenderLogs(logs)
	return true
}
