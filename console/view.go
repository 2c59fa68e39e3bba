package console

import (
	"github.com/ransxm/ransxm-console/gateway"
	"github.com/ransxm/ransxm-console/session"
)

// Section names a region of the console that can show a loading placeholder.
type Section string

const (
	SectionKeys      Section = "keys"
	SectionStats     Section = "stats"
	SectionLogs      Section = "logs"
	SectionUsers     Section = "users"
	SectionAnalytics Section = "analytics"
	SectionIdentity  Section = "identity"
)

// AlertKind classifies a transient notification.
type AlertKind string

const (
	AlertSuccess AlertKind = "success"
	AlertError   AlertKind = "error"
	AlertInfo    AlertKind = "info"
)

// Pagination describes the displayed page of keys.
type Pagination struct {
	Page       int
	TotalPages int
	Total      int
}

// HasPrev reports whether the previous-page control is enabled.
func (p Pagination) HasPrev() bool {
	return p.Page > 1
}

// HasNext reports whether the next-page control is enabled.
func (p Pagination) HasNext() bool {
	return p.Page < p.TotalPages
}

// View renders what the controllers produce. Every ShowLoading is followed
// by the matching Render call once the request settles, success or not.
type View interface {
	ShowLoading(section Section)
	RenderKeys(rows []KeyRow, page Pagination)
	// RenderStats receives nil when the stats could not be loaded.
	RenderStats(stats *gateway.Stats)
	RenderCreated(keys []gateway.Key)
	RenderLogs(logs []gateway.UsageLog)
	RenderUsers(users []session.User)
	RenderAnalytics(days int, data gateway.Result)
	RenderIdentity(user *session.User)
	Alert(kind AlertKind, message string)
	Confirm(prompt string) bool
	Copy(text string)
}
