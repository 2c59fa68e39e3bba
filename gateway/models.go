package gateway

import (
	"fmt"
	"time"

	"github.com/ransxm/ransxm-console/session"
)

// KeyStatus is the lifecycle state of a license key.
type KeyStatus string

const (
	StatusActive   KeyStatus = "active"
	StatusDisabled KeyStatus = "disabled"
	StatusBanned   KeyStatus = "banned"
	StatusExpired  KeyStatus = "expired"
)

// KeyStatuses lists every status the service reports.
var KeyStatuses = []KeyStatus{StatusActive, StatusDisabled, StatusBanned, StatusExpired}

// EditableStatuses are the statuses an admin may set directly.
var EditableStatuses = []KeyStatus{StatusActive, StatusDisabled, StatusBanned}

// ParseStatus validates a status name. Empty is allowed and means "any".
func ParseStatus(s string) (KeyStatus, error) {
	if s == "" {
		return "", nil
	}
	for _, st := range KeyStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("invalid status %q (must be active, disabled, banned or expired)", s)
}

// Editable reports whether an admin may set s directly.
func (s KeyStatus) Editable() bool {
	for _, st := range EditableStatuses {
		if st == s {
			return true
		}
	}
	return false
}

// Tier is a license class.
type Tier string

const (
	TierBasic   Tier = "basic"
	TierPremium Tier = "premium"
	TierRansxm  Tier = "ransxm"
)

// Tiers lists every tier.
var Tiers = []Tier{TierBasic, TierPremium, TierRansxm}

// ParseTier validates a tier name. Empty is allowed and means "any".
func ParseTier(s string) (Tier, error) {
	if s == "" {
		return "", nil
	}
	for _, t := range Tiers {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("invalid tier %q (must be basic, premium or ransxm)", s)
}

// Key is a license key as reported by the service.
type Key struct {
	ID          session.ID `json:"id"`
	KeyValue    string     `json:"key_value"`
	Status      KeyStatus  `json:"status"`
	Tier        Tier       `json:"tier,omitempty"`
	HWID        *string    `json:"hwid"`
	CurrentUses int64      `json:"current_uses"`
	MaxUses     int64      `json:"max_uses"`
	ExpiresAt   *time.Time `json:"expires_at"`
	Note        *string    `json:"note"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Unlimited reports whether the key has no use cap.
func (k *Key) Unlimited() bool {
	return k.MaxUses == 0
}

// KeyPage is one page of the key list.
type KeyPage struct {
	Keys       []Key `json:"keys"`
	Page       int   `json:"page"`
	TotalPages int   `json:"totalPages"`
	Total      int   `json:"total"`
}

// Stats are the dashboard aggregates.
type Stats struct {
	TotalKeys        int64 `json:"totalKeys"`
	ActiveKeys       int64 `json:"activeKeys"`
	TotalUsers       int64 `json:"totalUsers"`
	TodayValidations int64 `json:"todayValidations"`
}

// UsageLog is one key validation record.
type UsageLog struct {
	ID        session.ID `json:"id"`
	KeyID     session.ID `json:"key_id"`
	KeyValue  string     `json:"key_value"`
	HWID      string     `json:"hwid"`
	IP        string     `json:"ip"`
	Action    string     `json:"action"`
	Success   bool       `json:"success"`
	Message   string     `json:"message"`
	CreatedAt time.Time  `json:"created_at"`
}

// CreateKeyParams are the fields of a new key. MaxUses 0 means unlimited.
type CreateKeyParams struct {
	ExpiresAt *time.Time `json:"expires_at"`
	MaxUses   int64      `json:"max_uses"`
	Tier      Tier       `json:"tier,omitempty"`
	Note      string     `json:"note,omitempty"`
}

// BulkCreateParams creates Count keys sharing the same settings.
type BulkCreateParams struct {
	Count     int        `json:"count"`
	ExpiresAt *time.Time `json:"expires_at"`
	MaxUses   int64      `json:"max_uses"`
	Tier      Tier       `json:"tier,omitempty"`
}

// Validate rejects counts the service would refuse.
func (p BulkCreateParams) Validate() error {
	if p.Count <= 0 {
		return fmt.Errorf("count must be positive, got %d", p.Count)
	}
	if p.MaxUses < 0 {
		return fmt.Errorf("max uses must not be negative, got %d", p.MaxUses)
	}
	return nil
}

// UpdateKeyParams changes a key. Nil fields are left unchanged.
type UpdateKeyParams struct {
	Status *KeyStatus `json:"status,omitempty"`
	Tier   *Tier      `json:"tier,omitempty"`
	Note   *string    `json:"note,omitempty"`
}

// Empty reports whether the update changes nothing.
func (p UpdateKeyParams) Empty() bool {
	return p.Status == nil && p.Tier == nil && p.Note == nil
}

// CreateUserParams creates a privileged user.
type CreateUserParams struct {
	Email    string       `json:"email"`
	Password string       `json:"password"`
	Role     session.Role `json:"role"`
}
