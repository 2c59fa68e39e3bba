package console

import (
	"strconv"
	"time"

	"github.com/ransxm/ransxm-console/gateway"
	"github.com/ransxm/ransxm-console/session"
)

const hwidDisplayLen = 20

// KeyRow is one display row of the key table.
type KeyRow struct {
	ID        session.ID
	Key       string
	Status    gateway.KeyStatus
	Tier      gateway.Tier
	HWID      string
	Uses      string
	Expires   string
	Note      string
	CreatedAt time.Time
	Selected  bool
}

// NewKeyRow formats k for display.
func NewKeyRow(k gateway.Key, selected bool) KeyRow {
	row := KeyRow{
		ID:        k.ID,
		Key:       k.KeyValue,
		Status:    k.Status,
		Tier:      k.Tier,
		HWID:      FormatHWID(k.HWID),
		Uses:      FormatUses(k.CurrentUses, k.MaxUses),
		Expires:   FormatExpiry(k.ExpiresAt),
		CreatedAt: k.CreatedAt,
		Selected:  selected,
	}
	if k.Note != nil {
		row.Note = *k.Note
	}
	return row
}

// FormatUses renders "current/max", with ∞ for unlimited keys.
func FormatUses(current, maxUses int64) string {
	limit := "∞"
	if maxUses > 0 {
		limit = strconv.FormatInt(maxUses, 10)
	}
	return strconv.FormatInt(current, 10) + "/" + limit
}

// FormatHWID truncates a bound hardware id, or returns "-" when unbound.
func FormatHWID(hwid *string) string {
	if hwid == nil || *hwid == "" {
		return "-"
	}
	r := []rune(*hwid)
	if len(r) <= hwidDisplayLen {
		return *hwid
	}
	return string(r[:hwidDisplayLen]) + "..."
}

// FormatExpiry renders an expiry date, or "Never".
func FormatExpiry(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "Never"
	}
	return t.Local().Format("2006-01-02")
}
