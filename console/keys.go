package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/ransxm/ransxm-console/formats"
	"github.com/ransxm/ransxm-console/gateway"
	"github.com/ransxm/ransxm-console/session"
)

// Gate is the access policy controllers consult before doing work.
// *auth.Auth implements it.
type Gate interface {
	RequireAuth(ctx context.Context) bool
	RequireAdmin(ctx context.Context) bool
	RequireSuperAdmin(ctx context.Context) bool
}

// KeyAPI is the slice of the gateway the key dashboard uses.
type KeyAPI interface {
	Stats(ctx context.Context) gateway.Result
	ListKeys(ctx context.Context, params gateway.ListParams) gateway.Result
	CreateKey(ctx context.Context, params gateway.CreateKeyParams) gateway.Result
	BulkCreateKeys(ctx context.Context, params gateway.BulkCreateParams) gateway.Result
	UpdateKey(ctx context.Context, id session.ID, params gateway.UpdateKeyParams) gateway.Result
	DeleteKey(ctx context.Context, id session.ID) gateway.Result
	ResetHWID(ctx context.Context, id session.ID) gateway.Result
	ResetUses(ctx context.Context, id session.ID) gateway.Result
	BatchDeleteKeys(ctx context.Context, ids []session.ID) gateway.Result
	BatchSetStatus(ctx context.Context, ids []session.ID, status gateway.KeyStatus) gateway.Result
	ExportKeys(ctx context.Context, params gateway.ExportParams) gateway.Result
}

// KeysConfig configures the key dashboard.
type KeysConfig struct {
	PageSize       int
	SearchDebounce time.Duration
}

// Keys is the admin key dashboard controller.
type Keys struct {
	api    KeyAPI
	gate   Gate
	view   View
	logger *zap.Logger

	mu     sync.Mutex
	state  State
	rows   *lru.Cache[session.ID, gateway.Key]
	search *Debouncer
}

// NewKeys creates the key dashboard controller.
func NewKeys(api KeyAPI, gate Gate, view View, cfg KeysConfig, logger *zap.Logger) *Keys {
	if logger == nil {
		logger = zap.NewNop()
	}
	state := NewState(cfg.PageSize)
	// Resized to the returned page on every reload.
	rows, _ := lru.New[session.ID, gateway.Key](max(state.Limit, 1))
	return &Keys{
		api:    api,
		gate:   gate,
		view:   view,
		logger: logger,
		state:  state,
		rows:   rows,
		search: NewDebouncer(cfg.SearchDebounce),
	}
}

// State returns a snapshot of the page state.
func (k *Keys) State() State {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.state
}

func (k *Keys) update(fn func(State) State) State {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.state = fn(k.state)
	return k.state
}

// reload applies fn and replaces the row index with keys in one step, so
// the index always matches State.Visible.
func (k *Keys) reload(fn func(State) State, keys []gateway.Key) State {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.state = fn(k.state)
	k.rows.Purge()
	k.rows.Resize(max(len(keys), 1))
	for _, key := range keys {
		k.rows.Add(key.ID, key)
	}
	return k.state
}

// Init gates the dashboard to admins and loads stats and the first page.
func (k *Keys) Init(ctx context.Context) bool {
	if !k.gate.RequireAuth(ctx) {
		return false
	}
	if !k.gate.RequireAdmin(ctx) {
		return false
	}
	k.LoadStats(ctx)
	k.LoadKeys(ctx)
	return true
}

// LoadStats fetches and renders the dashboard aggregates.
func (k *Keys) LoadStats(ctx context.Context) bool {
	return loadStats(ctx, k.api, k.view, k.logger)
}

type statsSource interface {
	Stats(ctx context.Context) gateway.Result
}

func loadStats(ctx context.Context, api statsSource, view View, logger *zap.Logger) bool {
	view.ShowLoading(SectionStats)

	res := api.Stats(ctx)
	var stats gateway.Stats
	if err := decodeField(res, "stats", &stats); err != nil {
		view.RenderStats(nil)
		reportFailure(view, logger, res, "Failed to load stats", err)
		return false
	}
	view.RenderStats(&stats)
	return true
}

// LoadKeys fetches the current page and renders it. The selection is
// cleared whether or not the fetch succeeds.
func (k *Keys) LoadKeys(ctx context.Context) bool {
	params := k.State().Params()
	k.view.ShowLoading(SectionKeys)

	res := k.api.ListKeys(ctx, params)
	var page gateway.KeyPage
	err := errors.New(res.Err())
	if res.OK() {
		err = res.DecodeAll(&page)
	}
	if err != nil {
		state := k.reload(State.Failed, nil)
		k.view.RenderKeys(nil, state.Pagination())
		k.fail(res, "Failed to load keys", err)
		return false
	}

	state := k.reload(func(s State) State { return s.Loaded(page) }, page.Keys)
	rows := make([]KeyRow, len(page.Keys))
	for i, key := range page.Keys {
		rows[i] = NewKeyRow(key, false)
	}

	k.logger.Debug("Keys loaded",
		zap.Int("page", state.Page),
		zap.Int("total_pages", state.TotalPages),
		zap.Int("count", len(rows)),
	)
	k.view.RenderKeys(rows, state.Pagination())
	return true
}

// Filters narrow the key list. Empty fields match everything.
type Filters struct {
	Search string
	Status string
	Tier   string
}

// Seek sets the filters and page without loading.
func (k *Keys) Seek(page int, f Filters) error {
	status, err := gateway.ParseStatus(f.Status)
	if err != nil {
		return err
	}
	tier, err := gateway.ParseTier(f.Tier)
	if err != nil {
		return err
	}
	k.update(func(s State) State {
		s = s.WithSearch(f.Search).WithStatus(status).WithTier(tier)
		if page > 1 {
			s.Page = page
		}
		return s
	})
	return nil
}

// SearchInput records a search keystroke. Bursts of input collapse into one
// reload with the last text once input has been quiet for the debounce delay.
func (k *Keys) SearchInput(ctx context.Context, text string) {
	ctx = context.WithoutCancel(ctx)
	k.search.Trigger(func() {
		k.update(func(s State) State { return s.WithSearch(text) })
		k.LoadKeys(ctx)
	})
}

// Search applies text immediately, cancelling pending input.
func (k *Keys) Search(ctx context.Context, text string) bool {
	k.search.Stop()
	k.update(func(s State) State { return s.WithSearch(text) })
	return k.LoadKeys(ctx)
}

// StopSearch drops pending search input.
func (k *Keys) StopSearch() bool {
	return k.search.Stop()
}

// FlushSearch applies pending search input immediately. It reports whether
// any input was pending.
func (k *Keys) FlushSearch() bool {
	return k.search.Flush()
}

// FilterStatus filters by status ("" for any) and reloads from page 1.
func (k *Keys) FilterStatus(ctx context.Context, status string) bool {
	st, err := gateway.ParseStatus(status)
	if err != nil {
		k.view.Alert(AlertError, err.Error())
		return false
	}
	k.update(func(s State) State { return s.WithStatus(st) })
	return k.LoadKeys(ctx)
}

// FilterTier filters by tier ("" for any) and reloads from page 1.
func (k *Keys) FilterTier(ctx context.Context, tier string) bool {
	t, err := gateway.ParseTier(tier)
	if err != nil {
		k.view.Alert(AlertError, err.Error())
		return false
	}
	k.update(func(s State) State { return s.WithTier(t) })
	return k.LoadKeys(ctx)
}

// PrevPage loads the previous page. It does nothing on page 1.
func (k *Keys) PrevPage(ctx context.Context) bool {
	if !k.State().HasPrev() {
		return false
	}
	k.update(State.PrevPage)
	return k.LoadKeys(ctx)
}

// NextPage loads the next page. It does nothing on the last page.
func (k *Keys) NextPage(ctx context.Context) bool {
	if !k.State().HasNext() {
		return false
	}
	k.update(State.NextPage)
	return k.LoadKeys(ctx)
}

// CreateKey creates one key and reloads the dashboard.
func (k *Keys) CreateKey(ctx context.Context, params gateway.CreateKeyParams) (*gateway.Key, bool) {
	if params.MaxUses < 0 {
		k.view.Alert(AlertError, "Max uses must not be negative")
		return nil, false
	}

	res := k.api.CreateKey(ctx, params)
	var key gateway.Key
	if err := decodeField(res, "key", &key); err != nil {
		k.fail(res, "Failed to create key", err)
		return nil, false
	}

	k.view.Alert(AlertSuccess, "Key created: "+key.KeyValue)
	k.LoadKeys(ctx)
	k.LoadStats(ctx)
	return &key, true
}

// BulkCreate creates several keys, shows them and offers to copy them all.
func (k *Keys) BulkCreate(ctx context.Context, params gateway.BulkCreateParams) ([]gateway.Key, bool) {
	if err := params.Validate(); err != nil {
		k.view.Alert(AlertError, err.Error())
		return nil, false
	}

	res := k.api.BulkCreateKeys(ctx, params)
	var keys []gateway.Key
	if err := decodeField(res, "keys", &keys); err != nil {
		k.fail(res, "Failed to create keys", err)
		return nil, false
	}

	k.view.Alert(AlertSuccess, fmt.Sprintf("%d keys created successfully", len(keys)))
	k.view.RenderCreated(keys)
	if len(keys) > 0 && k.view.Confirm("Copy all keys to clipboard?") {
		values := make([]string, len(keys))
		for i, key := range keys {
			values[i] = key.KeyValue
		}
		k.view.Copy(strings.Join(values, "\n"))
	}

	k.LoadKeys(ctx)
	k.LoadStats(ctx)
	return keys, true
}

// EditKey changes status, tier or note of a key and reloads the list.
func (k *Keys) EditKey(ctx context.Context, id session.ID, params gateway.UpdateKeyParams) bool {
	if params.Empty() {
		k.view.Alert(AlertError, "Nothing to update")
		return false
	}
	if params.Status != nil && !params.Status.Editable() {
		k.view.Alert(AlertError, fmt.Sprintf("Invalid status %q (must be active, disabled or banned)", *params.Status))
		return false
	}

	res := k.api.UpdateKey(ctx, id, params)
	var key gateway.Key
	if err := decodeField(res, "key", &key); err != nil {
		k.fail(res, "Failed to update", err)
		return false
	}
	k.view.Alert(AlertSuccess, "Key updated")
	k.LoadKeys(ctx)
	return true
}

// ResetHWID unbinds a key from its device after confirmation.
func (k *Keys) ResetHWID(ctx context.Context, id session.ID) bool {
	if !k.view.Confirm("Reset HWID for this key?") {
		return false
	}
	res := k.api.ResetHWID(ctx, id)
	if err := decodeField(res, "key", &gateway.Key{}); err != nil {
		k.fail(res, "Failed to reset HWID", err)
		return false
	}
	k.view.Alert(AlertSuccess, "HWID reset successfully")
	k.LoadKeys(ctx)
	return true
}

// ResetUses zeroes a key's use counter after confirmation.
func (k *Keys) ResetUses(ctx context.Context, id session.ID) bool {
	if !k.view.Confirm("Reset usage count for this key?") {
		return false
	}
	res := k.api.ResetUses(ctx, id)
	if err := decodeField(res, "key", &gateway.Key{}); err != nil {
		k.fail(res, "Failed to reset uses", err)
		return false
	}
	k.view.Alert(AlertSuccess, "Usage count reset")
	k.LoadKeys(ctx)
	return true
}

// DeleteKey removes a key after confirmation.
func (k *Keys) DeleteKey(ctx context.Context, id session.ID) bool {
	if !k.view.Confirm("Are you sure you want to delete this key?") {
		return false
	}
	res := k.api.DeleteKey(ctx, id)
	if !res.OK() {
		k.fail(res, "Failed to delete", nil)
		return false
	}
	k.view.Alert(AlertSuccess, "Key deleted")
	k.LoadKeys(ctx)
	k.LoadStats(ctx)
	return true
}

// Lookup returns a key on the displayed page by id or key value.
func (k *Keys) Lookup(ref string) (gateway.Key, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if key, ok := k.rows.Peek(session.ID(ref)); ok {
		return key, true
	}
	for _, id := range k.rows.Keys() {
		if key, ok := k.rows.Peek(id); ok && key.KeyValue == ref {
			return key, true
		}
	}
	return gateway.Key{}, false
}

// CopyKey copies the value of a key on the displayed page.
func (k *Keys) CopyKey(id session.ID) (string, bool) {
	k.mu.Lock()
	key, ok := k.rows.Get(id)
	k.mu.Unlock()
	if !ok {
		k.view.Alert(AlertError, "Key is not on the current page")
		return "", false
	}
	k.view.Copy(key.KeyValue)
	k.view.Alert(AlertSuccess, "Key copied to clipboard")
	return key.KeyValue, true
}

// Toggle flips the selection of a key on the displayed page.
func (k *Keys) Toggle(id session.ID) bool {
	state := k.update(func(s State) State { return s.Toggle(id) })
	return state.IsSelected(id)
}

// SelectAll selects every key on the displayed page.
func (k *Keys) SelectAll() int {
	return len(k.update(State.SelectAll).Selection)
}

// ClearSelection empties the selection.
func (k *Keys) ClearSelection() {
	k.update(State.ClearSelection)
}

// Selected returns the selected ids in display order.
func (k *Keys) Selected() []session.ID {
	return k.State().Selected()
}

// BatchDelete deletes every selected key after confirmation.
func (k *Keys) BatchDelete(ctx context.Context) bool {
	ids := k.Selected()
	if len(ids) == 0 {
		k.view.Alert(AlertError, "No keys selected")
		return false
	}
	if !k.view.Confirm(fmt.Sprintf("Delete %d selected keys?", len(ids))) {
		return false
	}

	res := k.api.BatchDeleteKeys(ctx, ids)
	if !res.OK() {
		k.fail(res, "Failed to delete keys", nil)
		return false
	}
	k.view.Alert(AlertSuccess, fmt.Sprintf("%d keys deleted", countOr(res, "deleted", len(ids))))
	k.LoadKeys(ctx)
	k.LoadStats(ctx)
	return true
}

// BatchStatus sets the status of every selected key.
func (k *Keys) BatchStatus(ctx context.Context, status gateway.KeyStatus) bool {
	if !status.Editable() {
		k.view.Alert(AlertError, fmt.Sprintf("Invalid status %q (must be active, disabled or banned)", status))
		return false
	}
	ids := k.Selected()
	if len(ids) == 0 {
		k.view.Alert(AlertError, "No keys selected")
		return false
	}

	res := k.api.BatchSetStatus(ctx, ids, status)
	if !res.OK() {
		k.fail(res, "Failed to update keys", nil)
		return false
	}
	k.view.Alert(AlertSuccess, fmt.Sprintf("%d keys set to %s", countOr(res, "updated", len(ids)), status))
	k.LoadKeys(ctx)
	k.LoadStats(ctx)
	return true
}

// Export writes the keys matching the current status and tier filters to w.
// csv and json come from the service; arrow and parquet are encoded locally
// from the service's json export.
func (k *Keys) Export(ctx context.Context, format formats.Format, w io.Writer) error {
	state := k.State()
	remote := gateway.ExportJSON
	if format == formats.CSV {
		remote = gateway.ExportCSV
	}

	res := k.api.ExportKeys(ctx, gateway.ExportParams{Format: remote, Status: state.Status, Tier: state.Tier})
	if !res.OK() {
		k.fail(res, "Failed to export keys", nil)
		return errors.New(res.Err())
	}

	if content, _, ok := res.Content(); ok && format == formats.CSV {
		if _, err := io.WriteString(w, content); err != nil {
			return fmt.Errorf("failed to write export: %w", err)
		}
		k.view.Alert(AlertSuccess, "Export complete")
		return nil
	}

	keys, err := exportedKeys(res)
	if err != nil {
		k.fail(res, "Failed to export keys", err)
		return err
	}
	if err := formats.Write(w, format, keys); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}
	k.view.Alert(AlertSuccess, fmt.Sprintf("Exported %d keys", len(keys)))
	return nil
}

func exportedKeys(res gateway.Result) ([]gateway.Key, error) {
	var keys []gateway.Key
	for _, field := range []string{"keys", "data"} {
		if res.Has(field) {
			if err := res.Decode(field, &keys); err != nil {
				return nil, err
			}
			return keys, nil
		}
	}
	return nil, fmt.Errorf("export response has no keys")
}

// fail alerts with the server's error, or fallback when the server sent none.
func (k *Keys) fail(res gateway.Result, fallback string, err error) {
	reportFailure(k.view, k.logger, res, fallback, err)
}

func reportFailure(view View, logger *zap.Logger, res gateway.Result, fallback string, err error) {
	msg := res.Err()
	if msg == "" {
		msg = fallback
		if err != nil {
			logger.Warn(fallback, zap.Error(err))
		}
	}
	view.Alert(AlertError, msg)
}

// decodeField decodes res[field] into v, failing when res carries an error.
func decodeField(res gateway.Result, field string, v any) error {
	if !res.OK() {
		return errors.New(res.Err())
	}
	return res.Decode(field, v)
}

func countOr(res gateway.Result, field string, fallback int) int {
	if n, ok := res[field].(float64); ok {
		return int(n)
	}
	return fallback
}
