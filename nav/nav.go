// Package nav names the console's pages and carries navigation requests
// from the session layer to whatever presents the console.
package nav

import "sync"

// Page identifies a console page.
type Page string

const (
	// EntryPage is the unauthenticated entry point (login/registration).
	EntryPage Page = "index"
	// UserDashboard is the dashboard for plain users.
	UserDashboard Page = "user"
	// AdminDashboard is the key management dashboard for admin-capable users.
	AdminDashboard Page = "dashboard"
)

// String returns the page name.
func (p Page) String() string {
	return string(p)
}

// Navigator receives navigation requests.
type Navigator interface {
	Navigate(page Page)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(page Page)

// Navigate calls f(page).
func (f NavigatorFunc) Navigate(page Page) {
	f(page)
}

// Discard ignores every navigation request.
var Discard Navigator = NavigatorFunc(func(Page) {})

// Recorder remembers the most recent navigation target.
// It is safe for concurrent use.
type Recorder struct {
	mu    sync.Mutex
	last  Page
	count int
	next  Navigator
}

// NewRecorder creates a recorder that forwards to next (which may be nil).
func NewRecorder(next Navigator) *Recorder {
	return &Recorder{next: next}
}

// Navigate records page and forwards it.
func (r *Recorder) Navigate(page Page) {
	r.mu.Lock()
	r.last = page
	r.count++
	next := r.next
	r.mu.Unlock()

	if next != nil {
		next.Navigate(page)
	}
}

// Last returns the most recent target and whether any navigation happened.
func (r *Recorder) Last() (Page, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last, r.count > 0
}

// Count returns the number of navigations recorded.
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Reset forgets recorded navigations.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.last = ""
	r.count = 0
	r.mu.Unlock()
}
