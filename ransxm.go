// Package ransxm wires the RANSXM license console: configuration, logging,
// the session store, the API gateway, auth and the page controllers.
package ransxm

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ransxm/ransxm-console/auth"
	"github.com/ransxm/ransxm-console/console"
	"github.com/ransxm/ransxm-console/gateway"
	"github.com/ransxm/ransxm-console/nav"
	"github.com/ransxm/ransxm-console/session"
)

// Console is a fully wired console instance.
type Console struct {
	Config  *Config
	Store   session.Store
	Session *session.Manager
	Nav     *nav.Recorder
	Gateway *gateway.Gateway
	Auth    *auth.Auth
	Keys    *console.Keys
	Admin   *console.Admin
	Account *console.Account

	logger *zap.Logger
}

// Options supply the collaborators a Console cannot build itself.
type Options struct {
	View   console.View
	Logger *zap.Logger
	// Store overrides the store described by the config.
	Store session.Store
}

// New opens the session store and wires every component.
func New(ctx context.Context, cfg *Config, opts Options) (*Console, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if opts.View == nil {
		return nil, fmt.Errorf("view is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	store := opts.Store
	if store == nil {
		sc := cfg.SessionConfig()
		sc.Logger = logger.Named("session")
		var err error
		store, err = session.Open(ctx, sc)
		if err != nil {
			return nil, fmt.Errorf("failed to open session store: %w", err)
		}
	}

	c := &Console{Config: cfg, Store: store, logger: logger}
	c.Session = session.NewManager(store, logger.Named("session"))
	c.Nav = nav.NewRecorder(nav.NavigatorFunc(func(page nav.Page) {
		logger.Debug("Navigate", zap.String("page", page.String()))
	}))

	gw, err := gateway.New(gateway.Config{
		BaseURL: cfg.APIBase,
		Timeout: cfg.RequestTimeout,
	}, c.Session, c.Nav, logger.Named("gateway"))
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to create gateway: %w", err)
	}
	c.Gateway = gw
	c.Auth = auth.New(gw, c.Session, c.Nav, logger.Named("auth"))

	c.Keys = console.NewKeys(gw, c.Auth, opts.View, console.KeysConfig{
		PageSize:       cfg.PageSize,
		SearchDebounce: cfg.SearchDebounce,
	}, logger.Named("keys"))
	c.Admin = console.NewAdmin(gw, c.Auth, opts.View, logger.Named("admin"))
	c.Account = console.NewAccount(gw, c.Auth, opts.View, logger.Named("account"))

	logger.Info("Console initialized",
		zap.String("api_base", gw.BaseURL()),
		zap.String("session_store", cfg.SessionStore),
		zap.Duration("request_timeout", cfg.RequestTimeout),
		zap.Int("page_size", cfg.PageSize),
	)
	return c, nil
}

// Registry returns a shell registry with the commands the signed-in role may
// use: admins get the key dashboard and admin views, users their own
// dashboard.
func (c *Console) Registry(ctx context.Context) *console.Registry {
	r := console.NewRegistry()
	c.Account.Bind(r)
	if c.Auth.IsAdmin(ctx) {
		c.Keys.Bind(r)
		c.Admin.Bind(r)
	}
	return r
}

// Close releases the session store.
func (c *Console) Close() error {
	m := c.Gateway.Metrics()
	c.logger.Debug("Console closing",
		zap.Uint64("requests", m.Requests),
		zap.Uint64("auth_failures", m.AuthFailures),
		zap.Uint64("transport_failures", m.TransportFailures),
	)
	if c.Store != nil {
		return c.Store.Close()
	}
	return nil
}
