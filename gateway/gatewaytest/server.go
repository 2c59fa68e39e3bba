// Package gatewaytest provides an in-memory RANSXM service for tests.
package gatewaytest

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/ransxm/ransxm-console/gateway"
	"github.com/ransxm/ransxm-console/session"
)

const defaultLimit = 20

// Recorded is one request seen by the server.
type Recorded struct {
	Method        string
	Path          string
	Query         url.Values
	Authorization string
	RequestID     string
	Body          []byte
}

type fakeUser struct {
	ID        session.ID   `json:"id"`
	Email     string       `json:"email"`
	Role      session.Role `json:"role"`
	CreatedAt time.Time    `json:"created_at"`
	password  string
}

// Server is a fake RANSXM API. BaseURL returns the API base.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	keys     []gateway.Key
	users    []*fakeUser
	tokens   map[string]*fakeUser
	logs     []gateway.UsageLog
	nextID   int
	requests []Recorded
	latency  time.Duration
	pageSize int
}

// NewServer starts a fake service. Close it when done.
func NewServer() *Server {
	s := &Server{tokens: make(map[string]*fakeUser)}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.HandleFunc("POST /api/auth/register", s.register)
	mux.HandleFunc("GET /api/auth/me", s.authed(s.me))
	mux.HandleFunc("GET /api/auth/my-logs", s.authed(s.myLogs))

	mux.HandleFunc("GET /api/keys", s.admin(s.listKeys))
	mux.HandleFunc("POST /api/keys", s.admin(s.createKey))
	mux.HandleFunc("POST /api/keys/bulk", s.admin(s.bulkCreate))
	mux.HandleFunc("POST /api/keys/batch-delete", s.admin(s.batchDelete))
	mux.HandleFunc("POST /api/keys/batch-status", s.admin(s.batchStatus))
	mux.HandleFunc("GET /api/keys/export", s.admin(s.export))
	mux.HandleFunc("PUT /api/keys/{id}", s.admin(s.updateKey))
	mux.HandleFunc("DELETE /api/keys/{id}", s.admin(s.deleteKey))
	mux.HandleFunc("POST /api/keys/{id}/reset-hwid", s.admin(s.resetHWID))
	mux.HandleFunc("POST /api/keys/{id}/reset-uses", s.admin(s.resetUses))

	mux.HandleFunc("GET /api/admin/stats", s.admin(s.stats))
	mux.HandleFunc("GET /api/admin/logs", s.admin(s.adminLogs))
	mux.HandleFunc("GET /api/admin/analytics", s.admin(s.analytics))
	mux.HandleFunc("GET /api/admin/users", s.admin(s.listUsers))
	mux.HandleFunc("POST /api/admin/users", s.superAdmin(s.createUser))
	mux.HandleFunc("PUT /api/admin/users/{id}/role", s.superAdmin(s.updateRole))
	mux.HandleFunc("DELETE /api/admin/users/{id}", s.superAdmin(s.deleteUser))

	s.Server = httptest.NewServer(s.record(mux))
	return s
}

// BaseURL returns the API base URL.
func (s *Server) BaseURL() string {
	return s.Server.URL + "/api"
}

// SetPageSize makes the key list use n rows per page regardless of the
// requested limit. Zero restores the requested limit.
func (s *Server) SetPageSize(n int) {
	s.mu.Lock()
	s.pageSize = n
	s.mu.Unlock()
}

// SetLatency delays every response by d.
func (s *Server) SetLatency(d time.Duration) {
	s.mu.Lock()
	s.latency = d
	s.mu.Unlock()
}

// AddUser registers a user that can log in.
func (s *Server) AddUser(email, password string, role session.Role) session.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addUserLocked(email, password, role).ID
}

func (s *Server) addUserLocked(email, password string, role session.Role) *fakeUser {
	u := &fakeUser{
		ID:        s.newIDLocked(),
		Email:     email,
		Role:      role,
		CreatedAt: time.Now().UTC(),
		password:  password,
	}
	s.users = append(s.users, u)
	return u
}

// IssueToken returns a valid token for email without a login round trip.
func (s *Server) IssueToken(email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return s.issueLocked(u)
		}
	}
	return ""
}

// ExpireTokens invalidates every issued token.
func (s *Server) ExpireTokens() {
	s.mu.Lock()
	s.tokens = make(map[string]*fakeUser)
	s.mu.Unlock()
}

// AddKey stores k, assigning an id and creation time when missing.
func (s *Server) AddKey(k gateway.Key) gateway.Key {
	s.mu.Lock()
	defer s.mu.Unlock()
	if k.ID == "" {
		k.ID = s.newIDLocked()
	}
	if k.CreatedAt.IsZero() {
		k.CreatedAt = time.Now().UTC()
	}
	if k.Status == "" {
		k.Status = gateway.StatusActive
	}
	if k.KeyValue == "" {
		k.KeyValue = newKeyValue()
	}
	s.keys = append(s.keys, k)
	return k
}

// AddLog stores a usage log entry.
func (s *Server) AddLog(l gateway.UsageLog) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l.ID == "" {
		l.ID = s.newIDLocked()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	s.logs = append(s.logs, l)
}

// Key returns the stored key with id.
func (s *Server) Key(id session.ID) (gateway.Key, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.keyIndexLocked(id); i >= 0 {
		return s.keys[i], true
	}
	return gateway.Key{}, false
}

// KeyCount returns the number of stored keys.
func (s *Server) KeyCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keys)
}

// Requests returns every request seen so far.
func (s *Server) Requests() []Recorded {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Recorded, len(s.requests))
	copy(out, s.requests)
	return out
}

// Count returns how many requests hit method and path (path without /api).
func (s *Server) Count(method, path string) int {
	n := 0
	for _, r := range s.Requests() {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

// Last returns the most recent request to method and path.
func (s *Server) Last(method, path string) (Recorded, bool) {
	reqs := s.Requests()
	for i := len(reqs) - 1; i >= 0; i-- {
		if reqs[i].Method == method && reqs[i].Path == path {
			return reqs[i], true
		}
	}
	return Recorded{}, false
}

// ResetRequests forgets recorded requests.
func (s *Server) ResetRequests() {
	s.mu.Lock()
	s.requests = nil
	s.mu.Unlock()
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		r.Body = io.NopCloser(strings.NewReader(string(body)))

		s.mu.Lock()
		s.requests = append(s.requests, Recorded{
			Method:        r.Method,
			Path:          strings.TrimPrefix(r.URL.EscapedPath(), "/api"),
			Query:         r.URL.Query(),
			Authorization: r.Header.Get("Authorization"),
			RequestID:     r.Header.Get("X-Request-ID"),
			Body:          body,
		})
		latency := s.latency
		s.mu.Unlock()

		if latency > 0 {
			time.Sleep(latency)
		}
		next.ServeHTTP(w, r)
	})
}

type handler func(w http.ResponseWriter, r *http.Request, caller *fakeUser)

func (s *Server) caller(r *http.Request) *fakeUser {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens[token]
}

func (s *Server) authed(h handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u := s.caller(r)
		if u == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "Invalid or expired token"})
			return
		}
		h(w, r, u)
	}
}

func (s *Server) admin(h handler) http.HandlerFunc {
	return s.authed(func(w http.ResponseWriter, r *http.Request, u *fakeUser) {
		if !u.Role.AdminCapable() {
			writeJSON(w, http.StatusForbidden, map[string]any{"error": "Admin access required"})
			return
		}
		h(w, r, u)
	})
}

func (s *Server) superAdmin(h handler) http.HandlerFunc {
	return s.authed(func(w http.ResponseWriter, r *http.Request, u *fakeUser) {
		if u.Role != session.RoleSuperAdmin {
			writeJSON(w, http.StatusForbidden, map[string]any{"error": "Super admin access required"})
			return
		}
		h(w, r, u)
	})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Invalid request"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == req.Email && u.password == req.Password {
			writeJSON(w, http.StatusOK, map[string]any{"token": s.issueLocked(u), "user": u})
			return
		}
	}
	writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Invalid credentials"})
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Key      string `json:"key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Invalid request"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == req.Email {
			writeJSON(w, http.StatusConflict, map[string]any{"error": "Email already registered"})
			return
		}
	}
	valid := false
	for _, k := range s.keys {
		if k.KeyValue == req.Key && k.Status == gateway.StatusActive {
			valid = true
			break
		}
	}
	if !valid {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Invalid license key"})
		return
	}
	u := s.addUserLocked(req.Email, req.Password, session.RoleUser)
	writeJSON(w, http.StatusCreated, map[string]any{"token": s.issueLocked(u), "user": u})
}

func (s *Server) me(w http.ResponseWriter, _ *http.Request, u *fakeUser) {
	writeJSON(w, http.StatusOK, map[string]any{"user": u})
}

func (s *Server) myLogs(w http.ResponseWriter, _ *http.Request, _ *fakeUser) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"logs": s.logs})
}

func (s *Server) listKeys(w http.ResponseWriter, r *http.Request, _ *fakeUser) {
	q := r.URL.Query()
	page := gateway.ParsePage(q.Get("page"))
	limit := defaultLimit
	if l, err := strconv.Atoi(q.Get("limit")); err == nil && l > 0 {
		limit = l
	}

	s.mu.Lock()
	if s.pageSize > 0 {
		limit = s.pageSize
	}
	matched := s.filterLocked(q.Get("search"), q.Get("status"), q.Get("tier"))
	s.mu.Unlock()

	total := len(matched)
	totalPages := (total + limit - 1) / limit
	if totalPages < 1 {
		totalPages = 1
	}
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"keys":       matched[start:end],
		"page":       page,
		"totalPages": totalPages,
		"total":      total,
	})
}

func (s *Server) filterLocked(search, status, tier string) []gateway.Key {
	out := make([]gateway.Key, 0, len(s.keys))
	for _, k := range s.keys {
		if search != "" && !strings.Contains(k.KeyValue, search) &&
			(k.Note == nil || !strings.Contains(*k.Note, search)) {
			continue
		}
		if status != "" && string(k.Status) != status {
			continue
		}
		if tier != "" && string(k.Tier) != tier {
			continue
		}
		out = append(out, k)
	}
	return out
}

func (s *Server) createKey(w http.ResponseWriter, r *http.Request, _ *fakeUser) {
	var p gateway.CreateKeyParams
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Invalid request"})
		return
	}
	k := gateway.Key{MaxUses: p.MaxUses, ExpiresAt: p.ExpiresAt, Tier: p.Tier}
	if k.Tier == "" {
		k.Tier = gateway.TierBasic
	}
	if p.Note != "" {
		note := p.Note
		k.Note = &note
	}
	writeJSON(w, http.StatusCreated, map[string]any{"key": s.AddKey(k)})
}

func (s *Server) bulkCreate(w http.ResponseWriter, r *http.Request, _ *fakeUser) {
	var p gateway.BulkCreateParams
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil || p.Count <= 0 || p.Count > 100 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Count must be between 1 and 100"})
		return
	}
	tier := p.Tier
	if tier == "" {
		tier = gateway.TierBasic
	}
	keys := make([]gateway.Key, 0, p.Count)
	for i := 0; i < p.Count; i++ {
		keys = append(keys, s.AddKey(gateway.Key{MaxUses: p.MaxUses, ExpiresAt: p.ExpiresAt, Tier: tier}))
	}
	writeJSON(w, http.StatusCreated, map[string]any{"keys": keys})
}

func (s *Server) updateKey(w http.ResponseWriter, r *http.Request, _ *fakeUser) {
	var p gateway.UpdateKeyParams
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Invalid request"})
		return
	}
	s.withKey(w, r, func(k *gateway.Key) {
		if p.Status != nil {
			k.Status = *p.Status
		}
		if p.Tier != nil {
			k.Tier = *p.Tier
		}
		if p.Note != nil {
			note := *p.Note
			k.Note = &note
		}
	})
}

func (s *Server) resetHWID(w http.ResponseWriter, r *http.Request, _ *fakeUser) {
	s.withKey(w, r, func(k *gateway.Key) { k.HWID = nil })
}

func (s *Server) resetUses(w http.ResponseWriter, r *http.Request, _ *fakeUser) {
	s.withKey(w, r, func(k *gateway.Key) { k.CurrentUses = 0 })
}

func (s *Server) withKey(w http.ResponseWriter, r *http.Request, mutate func(k *gateway.Key)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.keyIndexLocked(session.ID(r.PathValue("id")))
	if i < 0 {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "Key not found"})
		return
	}
	mutate(&s.keys[i])
	writeJSON(w, http.StatusOK, map[string]any{"key": s.keys[i]})
}

func (s *Server) deleteKey(w http.ResponseWriter, r *http.Request, _ *fakeUser) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.keyIndexLocked(session.ID(r.PathValue("id")))
	if i < 0 {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "Key not found"})
		return
	}
	s.keys = append(s.keys[:i], s.keys[i+1:]...)
	writeJSON(w, http.StatusOK, map[string]any{"message": "Key deleted"})
}

func (s *Server) batchDelete(w http.ResponseWriter, r *http.Request, _ *fakeUser) {
	var req struct {
		IDs []session.ID `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.IDs) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "No keys selected"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for _, id := range req.IDs {
		if i := s.keyIndexLocked(id); i >= 0 {
			s.keys = append(s.keys[:i], s.keys[i+1:]...)
			deleted++
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": deleted})
}

func (s *Server) batchStatus(w http.ResponseWriter, r *http.Request, _ *fakeUser) {
	var req struct {
		IDs    []session.ID      `json:"ids"`
		Status gateway.KeyStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.IDs) == 0 || !req.Status.Editable() {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Invalid batch status request"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	updated := 0
	for _, id := range req.IDs {
		if i := s.keyIndexLocked(id); i >= 0 {
			s.keys[i].Status = req.Status
			updated++
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"updated": updated})
}

func (s *Server) export(w http.ResponseWriter, r *http.Request, _ *fakeUser) {
	q := r.URL.Query()
	s.mu.Lock()
	keys := s.filterLocked("", q.Get("status"), q.Get("tier"))
	s.mu.Unlock()

	switch q.Get("format") {
	case "json":
		writeJSON(w, http.StatusOK, map[string]any{"keys": keys})
	case "csv", "":
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "key_value,status,tier,current_uses,max_uses")
		for _, k := range keys {
			fmt.Fprintf(w, "%s,%s,%s,%d,%d\n", k.KeyValue, k.Status, k.Tier, k.CurrentUses, k.MaxUses)
		}
	default:
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Unsupported format"})
	}
}

func (s *Server) stats(w http.ResponseWriter, _ *http.Request, _ *fakeUser) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := gateway.Stats{TotalKeys: int64(len(s.keys)), TotalUsers: int64(len(s.users))}
	for _, k := range s.keys {
		if k.Status == gateway.StatusActive {
			st.ActiveKeys++
		}
	}
	today := time.Now().UTC().Truncate(24 * time.Hour)
	for _, l := range s.logs {
		if !l.CreatedAt.Before(today) {
			st.TodayValidations++
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"stats": st})
}

func (s *Server) adminLogs(w http.ResponseWriter, r *http.Request, _ *fakeUser) {
	s.mu.Lock()
	logs := make([]gateway.UsageLog, len(s.logs))
	copy(logs, s.logs)
	s.mu.Unlock()

	sort.Slice(logs, func(i, j int) bool { return logs[i].CreatedAt.After(logs[j].CreatedAt) })
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 && l < len(logs) {
		logs = logs[:l]
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

func (s *Server) analytics(w http.ResponseWriter, r *http.Request, _ *fakeUser) {
	days, err := strconv.Atoi(r.URL.Query().Get("days"))
	if err != nil || days <= 0 {
		days = gateway.DefaultAnalyticsDays
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	perDay := make(map[string]int)
	for _, l := range s.logs {
		perDay[l.CreatedAt.Format("2006-01-02")]++
	}
	daily := make([]map[string]any, 0, days)
	for i := days - 1; i >= 0; i-- {
		d := time.Now().UTC().AddDate(0, 0, -i).Format("2006-01-02")
		daily = append(daily, map[string]any{"date": d, "validations": perDay[d]})
	}
	writeJSON(w, http.StatusOK, map[string]any{"days": days, "daily": daily})
}

func (s *Server) listUsers(w http.ResponseWriter, _ *http.Request, _ *fakeUser) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"users": s.users})
}

func (s *Server) createUser(w http.ResponseWriter, r *http.Request, _ *fakeUser) {
	var p gateway.CreateUserParams
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil || p.Email == "" || !p.Role.Valid() {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Invalid user"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == p.Email {
			writeJSON(w, http.StatusConflict, map[string]any{"error": "Email already registered"})
			return
		}
	}
	writeJSON(w, http.StatusCreated, map[string]any{"user": s.addUserLocked(p.Email, p.Password, p.Role)})
}

func (s *Server) updateRole(w http.ResponseWriter, r *http.Request, _ *fakeUser) {
	var req struct {
		Role session.Role `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !req.Role.Valid() {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Invalid role"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.ID == session.ID(r.PathValue("id")) {
			u.Role = req.Role
			writeJSON(w, http.StatusOK, map[string]any{"user": u})
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]any{"error": "User not found"})
}

func (s *Server) deleteUser(w http.ResponseWriter, r *http.Request, _ *fakeUser) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, u := range s.users {
		if u.ID == session.ID(r.PathValue("id")) {
			s.users = append(s.users[:i], s.users[i+1:]...)
			for tok, owner := range s.tokens {
				if owner == u {
					delete(s.tokens, tok)
				}
			}
			writeJSON(w, http.StatusOK, map[string]any{"message": "User deleted"})
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]any{"error": "User not found"})
}

func (s *Server) issueLocked(u *fakeUser) string {
	token := "tok-" + uuid.New().String()
	s.tokens[token] = u
	return token
}

func (s *Server) newIDLocked() session.ID {
	s.nextID++
	return session.ID(strconv.Itoa(s.nextID))
}

func (s *Server) keyIndexLocked(id session.ID) int {
	for i, k := range s.keys {
		if k.ID == id {
			return i
		}
	}
	return -1
}

func newKeyValue() string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))
	return "RANSXM-" + raw[0:4] + "-" + raw[4:8] + "-" + raw[8:12]
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
