// Package session persists the console's identity (bearer token and user
// record) behind a small key-value store abstraction.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrStoreClosed is returned by stores used after Close.
var ErrStoreClosed = errors.New("session store closed")

// Store is a key-value persistence abstraction for session slots.
//
// Set writes every given slot as one unit: either all values are stored or
// none are. Clear removes the named slots as one unit and succeeds when they
// are already absent.
type Store interface {
	Get(ctx context.Context, slot string) (value string, ok bool, err error)
	Set(ctx context.Context, values map[string]string) error
	Clear(ctx context.Context, slots ...string) error
	Close() error
}

// Kind names a store implementation.
type Kind string

const (
	KindMemory Kind = "memory"
	KindDuckDB Kind = "duckdb"
	KindRedis  Kind = "redis"
)

// Config selects and configures a store.
type Config struct {
	Kind Kind

	// Path is the DuckDB database file. Empty means in-memory.
	Path string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
	// TTL bounds how long a Redis-held session survives. Zero keeps it until cleared.
	TTL time.Duration

	Logger *zap.Logger
}

// Open creates the store described by cfg.
func Open(ctx context.Context, cfg Config) (Store, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	switch cfg.Kind {
	case KindMemory, "":
		return NewMemoryStore(), nil
	case KindDuckDB:
		return NewDuckDBStore(ctx, cfg.Path, cfg.Logger)
	case KindRedis:
		return NewRedisStore(ctx, RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisPrefix,
			TTL:      cfg.TTL,
		}, cfg.Logger)
	default:
		return nil, fmt.Errorf("unknown session store %q (must be memory, duckdb or redis)", cfg.Kind)
	}
}

// MemoryStore keeps slots in process memory. It is the store used in tests
// and for throwaway sessions.
type MemoryStore struct {
	mu     sync.RWMutex
	slots  map[string]string
	closed bool
}

// NewMemoryStore creates an empty memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{slots: make(map[string]string)}
}

// Get returns the value held in slot.
func (m *MemoryStore) Get(_ context.Context, slot string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return "", false, ErrStoreClosed
	}
	v, ok := m.slots[slot]
	return v, ok, nil
}

// Set stores all values at once.
func (m *MemoryStore) Set(_ context.Context, values map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStoreClosed
	}
	for k, v := range values {
		m.slots[k] = v
	}
	return nil
}

// Clear removes the named slots.
func (m *MemoryStore) Clear(_ context.Context, slots ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStoreClosed
	}
	for _, s := range slots {
		delete(m.slots, s)
	}
	return nil
}

// Len returns the number of occupied slots.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.slots)
}

// Close marks the store unusable.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
