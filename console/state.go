// Package console holds the page controllers of the RANSXM console: the
// admin key dashboard, the admin views and the plain-user dashboard.
// Controllers talk to the service only through the gateway and present
// results only through a View.
package console

import (
	"slices"

	"github.com/ransxm/ransxm-console/gateway"
	"github.com/ransxm/ransxm-console/session"
)

// DefaultPageSize is the key list page size used when none is configured.
const DefaultPageSize = 20

// State is the key dashboard's page state. Transitions return a new State
// and never modify the receiver.
type State struct {
	Page       int
	Limit      int
	Search     string
	Status     gateway.KeyStatus
	Tier       gateway.Tier
	TotalPages int
	Total      int

	// Visible holds the ids on the displayed page, in display order.
	Visible []session.ID
	// Selection holds the checked ids, in the order they were checked.
	Selection []session.ID
}

// NewState returns the state of a freshly opened dashboard.
func NewState(limit int) State {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	return State{Page: 1, Limit: limit}
}

// Params returns the list query for the current state.
func (s State) Params() gateway.ListParams {
	return gateway.ListParams{
		Page:   s.Page,
		Limit:  s.Limit,
		Search: s.Search,
		Status: s.Status,
		Tier:   s.Tier,
	}
}

// WithSearch sets the search text and returns to page 1.
func (s State) WithSearch(search string) State {
	s.Search = search
	s.Page = 1
	return s
}

// WithStatus sets the status filter and returns to page 1.
func (s State) WithStatus(status gateway.KeyStatus) State {
	s.Status = status
	s.Page = 1
	return s
}

// WithTier sets the tier filter and returns to page 1.
func (s State) WithTier(tier gateway.Tier) State {
	s.Tier = tier
	s.Page = 1
	return s
}

// HasPrev reports whether a previous page exists.
func (s State) HasPrev() bool {
	return s.Page > 1
}

// HasNext reports whether a next page exists. An unknown page count allows
// moving forward.
func (s State) HasNext() bool {
	return s.TotalPages == 0 || s.Page < s.TotalPages
}

// PrevPage moves back one page when possible.
func (s State) PrevPage() State {
	if s.HasPrev() {
		s.Page--
	}
	return s
}

// NextPage moves forward one page when possible.
func (s State) NextPage() State {
	if s.HasNext() {
		s.Page++
	}
	return s
}

// Loaded records a fetched page. The selection is always cleared.
func (s State) Loaded(page gateway.KeyPage) State {
	if page.Page > 0 {
		s.Page = page.Page
	}
	s.TotalPages = page.TotalPages
	s.Total = page.Total
	s.Visible = make([]session.ID, len(page.Keys))
	for i, k := range page.Keys {
		s.Visible[i] = k.ID
	}
	s.Selection = nil
	return s
}

// Failed records a failed fetch: nothing is displayed or selected.
func (s State) Failed() State {
	s.Visible = nil
	s.Selection = nil
	return s
}

// IsVisible reports whether id is on the displayed page.
func (s State) IsVisible(id session.ID) bool {
	return slices.Contains(s.Visible, id)
}

// IsSelected reports whether id is selected.
func (s State) IsSelected(id session.ID) bool {
	return slices.Contains(s.Selection, id)
}

// Toggle flips the selection of id. Ids not on the displayed page are ignored.
func (s State) Toggle(id session.ID) State {
	if !s.IsVisible(id) {
		return s
	}
	if i := slices.Index(s.Selection, id); i >= 0 {
		s.Selection = slices.Delete(slices.Clone(s.Selection), i, i+1)
		return s
	}
	s.Selection = append(slices.Clone(s.Selection), id)
	return s
}

// SelectAll selects every id on the displayed page.
func (s State) SelectAll() State {
	s.Selection = slices.Clone(s.Visible)
	return s
}

// ClearSelection empties the selection.
func (s State) ClearSelection() State {
	s.Selection = nil
	return s
}

// Selected returns a copy of the selection in display order.
func (s State) Selected() []session.ID {
	out := make([]session.ID, 0, len(s.Selection))
	for _, id := range s.Visible {
		if s.IsSelected(id) {
			out = append(out, id)
		}
	}
	return out
}

// Pagination returns the pager view of the state.
func (s State) Pagination() Pagination {
	return Pagination{Page: s.Page, TotalPages: s.TotalPages, Total: s.Total}
}
