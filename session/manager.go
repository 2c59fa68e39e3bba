package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

// ErrNoToken is returned by Save when the token is empty.
var ErrNoToken = errors.New("session token is empty")

// Manager is the only writer of session state. Token and user are always
// written and cleared together.
type Manager struct {
	store  Store
	logger *zap.Logger
}

// NewManager wraps store.
func NewManager(store Store, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{store: store, logger: logger}
}

// Store returns the underlying store.
func (m *Manager) Store() Store {
	return m.store
}

// Save persists token and the user record in one unit. user is stored as
// given so fields the console does not model are kept.
func (m *Manager) Save(ctx context.Context, token string, user json.RawMessage) error {
	if token == "" {
		return ErrNoToken
	}
	if len(user) == 0 {
		user = json.RawMessage("null")
	}
	if !json.Valid(user) {
		return fmt.Errorf("user record is not valid JSON")
	}

	err := m.store.Set(ctx, map[string]string{
		SlotToken: token,
		SlotUser:  string(user),
	})
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Destroy clears token and user. It succeeds when no session exists.
func (m *Manager) Destroy(ctx context.Context) error {
	if err := m.store.Clear(ctx, SlotToken, SlotUser); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

// Token returns the bearer token, or "" when there is none or the store
// cannot be read.
func (m *Manager) Token(ctx context.Context) string {
	token, ok, err := m.store.Get(ctx, SlotToken)
	if err != nil {
		m.logger.Warn("Failed to read session token", zap.Error(err))
		return ""
	}
	if !ok {
		return ""
	}
	return token
}

// User returns the persisted user record, or nil when absent or unreadable.
func (m *Manager) User(ctx context.Context) *User {
	raw, ok, err := m.store.Get(ctx, SlotUser)
	if err != nil {
		m.logger.Warn("Failed to read session user", zap.Error(err))
		return nil
	}
	if !ok || raw == "" || raw == "null" {
		return nil
	}

	var user User
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		m.logger.Warn("Discarding unreadable session user", zap.Error(err))
		return nil
	}
	return &user
}

// RawUser returns the user record exactly as stored.
func (m *Manager) RawUser(ctx context.Context) (json.RawMessage, bool) {
	raw, ok, err := m.store.Get(ctx, SlotUser)
	if err != nil || !ok {
		return nil, false
	}
	return json.RawMessage(raw), true
}
