package session

import (
	"context"
	"errors"
	"testing"

	"github.com/goccy/go-json"
)

// failingStore rejects every write with err.
type failingStore struct {
	*MemoryStore
	err error
}

func (f *failingStore) Set(ctx context.Context, values map[string]string) error {
	if f.err != nil {
		return f.err
	}
	return f.MemoryStore.Set(ctx, values)
}

func (f *failingStore) Clear(ctx context.Context, slots ...string) error {
	if f.err != nil {
		return f.err
	}
	return f.MemoryStore.Clear(ctx, slots...)
}

func TestManager_SaveAndRead(t *testing.T) {
	mgr := NewManager(NewMemoryStore(), nil)
	ctx := context.Background()

	raw := json.RawMessage(`{"id":7,"email":"alice@example.com","role":"admin","plan":"pro"}`)
	if err := mgr.Save(ctx, "jwt-token", raw); err != nil {
		t.Fatalf("Failed to save session: %v", err)
	}

	if got := mgr.Token(ctx); got != "jwt-token" {
		t.Errorf("Expected token 'jwt-token', got '%s'", got)
	}

	user := mgr.User(ctx)
	if user == nil {
		t.Fatal("Expected user, got nil")
	}
	if user.ID != "7" {
		t.Errorf("Expected id '7', got '%s'", user.ID)
	}
	if user.Role != RoleAdmin {
		t.Errorf("Expected role admin, got %s", user.Role)
	}
	if user.Name() != "alice" {
		t.Errorf("Expected name 'alice', got '%s'", user.Name())
	}

	// Unmodelled fields are kept.
	stored, ok := mgr.RawUser(ctx)
	if !ok || string(stored) != string(raw) {
		t.Errorf("Expected raw user to round-trip, got %s", stored)
	}
}

func TestManager_SaveRejectsEmptyToken(t *testing.T) {
	mgr := NewManager(NewMemoryStore(), nil)
	if err := mgr.Save(context.Background(), "", nil); !errors.Is(err, ErrNoToken) {
		t.Errorf("Expected ErrNoToken, got %v", err)
	}
}

func TestManager_SaveRejectsInvalidJSON(t *testing.T) {
	mgr := NewManager(NewMemoryStore(), nil)
	if err := mgr.Save(context.Background(), "tok", json.RawMessage(`{broken`)); err == nil {
		t.Error("Expected error for invalid user JSON")
	}
}

func TestManager_DestroyClearsBoth(t *testing.T) {
	store := NewMemoryStore()
	mgr := NewManager(store, nil)
	ctx := context.Background()

	if err := mgr.Save(ctx, "tok", json.RawMessage(`{"id":"u1","email":"a@b.c","role":"user"}`)); err != nil {
		t.Fatalf("Failed to save session: %v", err)
	}
	if err := mgr.Destroy(ctx); err != nil {
		t.Fatalf("Failed to destroy session: %v", err)
	}

	if store.Len() != 0 {
		t.Errorf("Expected empty store, got %d slots", store.Len())
	}
	if mgr.Token(ctx) != "" {
		t.Error("Expected no token after destroy")
	}
	if mgr.User(ctx) != nil {
		t.Error("Expected no user after destroy")
	}

	// Idempotent.
	if err := mgr.Destroy(ctx); err != nil {
		t.Errorf("Expected second destroy to succeed, got %v", err)
	}
}

func TestManager_FailedSaveLeavesNothing(t *testing.T) {
	store := &failingStore{MemoryStore: NewMemoryStore(), err: errors.New("disk full")}
	mgr := NewManager(store, nil)
	ctx := context.Background()

	if err := mgr.Save(ctx, "tok", json.RawMessage(`{}`)); err == nil {
		t.Fatal("Expected save to fail")
	}
	if mgr.Token(ctx) != "" || mgr.User(ctx) != nil {
		t.Error("Expected no partial session after failed save")
	}
}

func TestManager_UnreadableUser(t *testing.T) {
	store := NewMemoryStore()
	mgr := NewManager(store, nil)
	ctx := context.Background()

	store.Set(ctx, map[string]string{SlotToken: "tok", SlotUser: "not json"})
	if mgr.User(ctx) != nil {
		t.Error("Expected nil user for unreadable record")
	}
	if mgr.Token(ctx) != "tok" {
		t.Error("Expected token to remain readable")
	}
}

func TestManager_DuckDBBacked(t *testing.T) {
	store, done := newDuckDBStoreTest(t)
	defer done()
	mgr := NewManager(store, nil)
	ctx := context.Background()

	if err := mgr.Save(ctx, "tok", json.RawMessage(`{"id":"1","email":"x@y.z","role":"super_admin"}`)); err != nil {
		t.Fatalf("Failed to save session: %v", err)
	}
	user := mgr.User(ctx)
	if user == nil || user.Role != RoleSuperAdmin {
		t.Fatalf("Expected super_admin user, got %+v", user)
	}
	if err := mgr.Destroy(ctx); err != nil {
		t.Fatalf("Failed to destroy session: %v", err)
	}
	if mgr.Token(ctx) != "" {
		t.Error("Expected token cleared")
	}
}

func TestParseRole(t *testing.T) {
	tests := []struct {
		in      string
		want    Role
		wantErr bool
	}{
		{"user", RoleUser, false},
		{"admin", RoleAdmin, false},
		{"super_admin", RoleSuperAdmin, false},
		{"root", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseRole(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseRole(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseRole(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestID_Unmarshal(t *testing.T) {
	var v struct {
		A ID `json:"a"`
		B ID `json:"b"`
		C ID `json:"c"`
	}
	if err := json.Unmarshal([]byte(`{"a":"abc","b":42,"c":null}`), &v); err != nil {
		t.Fatalf("Failed to unmarshal ids: %v", err)
	}
	if v.A != "abc" || v.B != "42" || v.C != "" {
		t.Errorf("Unexpected ids: %+v", v)
	}
	if err := json.Unmarshal([]byte(`{"a":true}`), &v); err == nil {
		t.Error("Expected error for boolean id")
	}
}
