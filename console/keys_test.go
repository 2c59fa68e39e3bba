package console

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ransxm/ransxm-console/formats"
	"github.com/ransxm/ransxm-console/gateway"
	"github.com/ransxm/ransxm-console/nav"
)

func addKeys(c *consoleTest, n int) []gateway.Key {
	out := make([]gateway.Key, n)
	for i := range out {
		out[i] = c.srv.AddKey(gateway.Key{Tier: gateway.TierBasic})
	}
	return out
}

func TestKeys_InitLoadsStatsAndKeys(t *testing.T) {
	c, done := setupConsoleTest(t, adminEmail)
	defer done()
	addKeys(c, 3)
	k := c.keys(10, 0)

	if !k.Init(context.Background()) {
		t.Fatal("Expected Init to succeed for an admin")
	}
	want := []string{"loading:stats", "stats", "loading:keys", "keys"}
	if strings.Join(c.view.events, ",") != strings.Join(want, ",") {
		t.Errorf("Expected events %v, got %v", want, c.view.events)
	}
	if c.view.stats == nil || c.view.stats.TotalKeys != 3 {
		t.Errorf("Expected stats with 3 keys, got %+v", c.view.stats)
	}
	if len(c.view.rows) != 3 {
		t.Errorf("Expected 3 rows, got %d", len(c.view.rows))
	}
}

func TestKeys_InitRedirectsPlainUser(t *testing.T) {
	c, done := setupConsoleTest(t, userEmail)
	defer done()
	k := c.keys(10, 0)

	if k.Init(context.Background()) {
		t.Fatal("Expected Init to refuse a plain user")
	}
	if page, _ := c.nav.Last(); page != nav.UserDashboard {
		t.Errorf("Expected redirect to %s, got %s", nav.UserDashboard, page)
	}
	if n := c.srv.Count(http.MethodGet, "/keys"); n != 0 {
		t.Errorf("Expected no list request, got %d", n)
	}
}

func TestKeys_InitRedirectsAnonymous(t *testing.T) {
	c, done := setupConsoleTest(t, "")
	defer done()
	k := c.keys(10, 0)

	if k.Init(context.Background()) {
		t.Fatal("Expected Init to refuse without a session")
	}
	if page, _ := c.nav.Last(); page != nav.EntryPage {
		t.Errorf("Expected redirect to %s, got %s", nav.EntryPage, page)
	}
}

func TestKeys_SelectionClearedOnReload(t *testing.T) {
	c, done := setupConsoleTest(t, adminEmail)
	defer done()
	keys := addKeys(c, 3)
	k := c.keys(10, 0)
	ctx := context.Background()

	k.LoadKeys(ctx)
	k.Toggle(keys[0].ID)
	k.Toggle(keys[2].ID)
	if got := k.Selected(); len(got) != 2 {
		t.Fatalf("Expected 2 selected, got %v", got)
	}

	k.LoadKeys(ctx)
	if got := k.Selected(); len(got) != 0 {
		t.Errorf("Expected selection cleared after reload, got %v", got)
	}

	k.SelectAll()
	c.srv.ExpireTokens()
	if k.LoadKeys(ctx) {
		t.Fatal("Expected reload to fail with an expired token")
	}
	if got := k.Selected(); len(got) != 0 {
		t.Errorf("Expected selection cleared after failed reload, got %v", got)
	}
	if rows := c.view.renderedRows(); len(rows) != 0 {
		t.Errorf("Expected empty table after failure, got %d rows", len(rows))
	}
	if page, _ := c.nav.Last(); page != nav.EntryPage {
		t.Errorf("Expected forced logout to %s, got %s", nav.EntryPage, page)
	}
}

func TestKeys_ToggleIgnoresOffPageIDs(t *testing.T) {
	c, done := setupConsoleTest(t, adminEmail)
	defer done()
	addKeys(c, 2)
	k := c.keys(10, 0)
	k.LoadKeys(context.Background())

	if k.Toggle("does-not-exist") {
		t.Error("Expected unknown id to stay unselected")
	}
	if n := len(k.Selected()); n != 0 {
		t.Errorf("Expected empty selection, got %d", n)
	}
}

func TestKeys_PlaceholderAlwaysReplaced(t *testing.T) {
	c, done := setupConsoleTest(t, adminEmail)
	addKeys(c, 1)
	k := c.keys(10, 0)
	done()

	ctx := context.Background()
	if k.LoadStats(ctx) || k.LoadKeys(ctx) {
		t.Fatal("Expected loads to fail against a closed server")
	}
	if n := c.view.pending(); n != 0 {
		t.Errorf("Expected every placeholder replaced, %d pending", n)
	}
	if got := c.view.lastAlert(); got.kind != AlertError || got.msg != gateway.ErrConnectionFailed {
		t.Errorf("Expected '%s' alert, got %+v", gateway.ErrConnectionFailed, got)
	}
	if c.view.stats != nil {
		t.Errorf("Expected nil stats on failure, got %+v", c.view.stats)
	}
}

func TestKeys_SearchDebounce(t *testing.T) {
	c, done := setupConsoleTest(t, adminEmail)
	defer done()
	c.srv.AddKey(gateway.Key{KeyValue: "RANSXM-ABC"})
	c.srv.AddKey(gateway.Key{KeyValue: "RANSXM-XYZ"})
	k := c.keys(10, 30*time.Millisecond)
	ctx := context.Background()

	for _, text := range []string{"A", "AB", "ABC"} {
		k.SearchInput(ctx, text)
		time.Sleep(5 * time.Millisecond)
	}

	deadline := time.Now().Add(2 * time.Second)
	for c.srv.Count(http.MethodGet, "/keys") == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	time.Sleep(150 * time.Millisecond)

	if n := c.srv.Count(http.MethodGet, "/keys"); n != 1 {
		t.Fatalf("Expected exactly 1 list request, got %d", n)
	}
	last, _ := c.srv.Last(http.MethodGet, "/keys")
	if got := last.Query.Get("search"); got != "ABC" {
		t.Errorf("Expected search 'ABC', got '%s'", got)
	}
	if rows := c.view.renderedRows(); len(rows) != 1 || rows[0].Key != "RANSXM-ABC" {
		t.Errorf("Expected the single matching row, got %+v", rows)
	}
}

func TestKeys_SearchCancelsPendingInput(t *testing.T) {
	c, done := setupConsoleTest(t, adminEmail)
	defer done()
	k := c.keys(10, 50*time.Millisecond)
	ctx := context.Background()

	k.SearchInput(ctx, "stale")
	k.Search(ctx, "fresh")
	time.Sleep(150 * time.Millisecond)

	if n := c.srv.Count(http.MethodGet, "/keys"); n != 1 {
		t.Fatalf("Expected 1 list request, got %d", n)
	}
	if got := k.State().Search; got != "fresh" {
		t.Errorf("Expected search 'fresh', got '%s'", got)
	}
}

func TestKeys_FlushSearch(t *testing.T) {
	c, done := setupConsoleTest(t, adminEmail)
	defer done()
	c.srv.AddKey(gateway.Key{KeyValue: "RANSXM-FOO"})
	c.srv.AddKey(gateway.Key{KeyValue: "RANSXM-BAR"})
	k := c.keys(10, time.Hour)

	k.SearchInput(context.Background(), "FOO")
	if !k.FlushSearch() {
		t.Fatal("Expected pending search input to be flushed")
	}
	if n := c.srv.Count(http.MethodGet, "/keys"); n != 1 {
		t.Fatalf("Expected 1 list request, got %d", n)
	}
	last, _ := c.srv.Last(http.MethodGet, "/keys")
	if got := last.Query.Get("search"); got != "FOO" {
		t.Errorf("Expected search 'FOO', got '%s'", got)
	}
	if rows := c.view.renderedRows(); len(rows) != 1 || rows[0].Key != "RANSXM-FOO" {
		t.Errorf("Expected the matching row, got %+v", rows)
	}
	if k.FlushSearch() {
		t.Error("Expected nothing pending after a flush")
	}
}

func TestKeys_IndexCoversServerPageSize(t *testing.T) {
	c, done := setupConsoleTest(t, adminEmail)
	defer done()
	keys := addKeys(c, 5)
	c.srv.SetPageSize(5)
	k := c.keys(2, 0)
	ctx := context.Background()

	if !k.LoadKeys(ctx) {
		t.Fatal("Expected the page to load")
	}
	if n := len(k.State().Visible); n != 5 {
		t.Fatalf("Expected 5 visible keys, got %d", n)
	}
	for _, key := range keys {
		if _, ok := k.Lookup(string(key.ID)); !ok {
			t.Errorf("Expected key %s to be found", key.ID)
		}
		if value, ok := k.CopyKey(key.ID); !ok || value != key.KeyValue {
			t.Errorf("Expected to copy %s, got '%s'", key.KeyValue, value)
		}
	}

	c.srv.SetPageSize(1)
	if !k.LoadKeys(ctx) {
		t.Fatal("Expected the smaller page to load")
	}
	if _, ok := k.Lookup(string(keys[4].ID)); ok {
		t.Error("Expected a key from the previous page to be gone")
	}
}

func TestKeys_IndexMatchesVisibleAfterConcurrentReloads(t *testing.T) {
	c, done := setupConsoleTest(t, adminEmail)
	defer done()
	for i := 0; i < 6; i++ {
		c.srv.AddKey(gateway.Key{Tier: gateway.TierBasic})
	}
	for i := 0; i < 4; i++ {
		c.srv.AddKey(gateway.Key{Tier: gateway.TierPremium})
	}
	k := c.keys(20, 0)
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, tier := range []string{"basic", "premium"} {
		wg.Add(1)
		go func(tier string) {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				k.FilterTier(ctx, tier)
			}
		}(tier)
	}
	wg.Wait()

	visible := k.State().Visible
	indexed := make(map[string]bool)
	for _, id := range k.rows.Keys() {
		indexed[string(id)] = true
	}
	if len(indexed) != len(visible) {
		t.Fatalf("Expected %d indexed rows, got %d", len(visible), len(indexed))
	}
	for _, id := range visible {
		if !indexed[string(id)] {
			t.Errorf("Expected visible key %s in the row index", id)
		}
	}
}

func TestKeys_Pagination(t *testing.T) {
	c, done := setupConsoleTest(t, adminEmail)
	defer done()
	addKeys(c, 25)
	k := c.keys(10, 0)
	ctx := context.Background()

	if k.PrevPage(ctx) {
		t.Error("Expected PrevPage to do nothing on page 1")
	}
	k.LoadKeys(ctx)
	if st := k.State(); st.TotalPages != 3 || st.Total != 25 {
		t.Fatalf("Expected 3 pages of 25 keys, got %d pages of %d", st.TotalPages, st.Total)
	}
	if !k.NextPage(ctx) || !k.NextPage(ctx) {
		t.Fatal("Expected to reach page 3")
	}
	if k.NextPage(ctx) {
		t.Error("Expected NextPage to do nothing on the last page")
	}
	if rows := c.view.renderedRows(); len(rows) != 5 {
		t.Errorf("Expected 5 rows on the last page, got %d", len(rows))
	}
	if !c.view.page.HasPrev() || c.view.page.HasNext() {
		t.Errorf("Expected prev enabled and next disabled, got %+v", c.view.page)
	}
	if !k.PrevPage(ctx) || k.State().Page != 2 {
		t.Errorf("Expected page 2 after PrevPage, got %d", k.State().Page)
	}
}

func TestKeys_FilterResetsPage(t *testing.T) {
	c, done := setupConsoleTest(t, adminEmail)
	defer done()
	addKeys(c, 15)
	c.srv.AddKey(gateway.Key{Status: gateway.StatusBanned, Tier: gateway.TierPremium})
	k := c.keys(10, 0)
	ctx := context.Background()

	k.LoadKeys(ctx)
	k.NextPage(ctx)
	if !k.FilterStatus(ctx, "banned") {
		t.Fatal("Expected status filter to load")
	}
	last, _ := c.srv.Last(http.MethodGet, "/keys")
	if last.Query.Get("page") != "1" || last.Query.Get("status") != "banned" {
		t.Errorf("Expected page 1 with status banned, got %v", last.Query)
	}
	if rows := c.view.renderedRows(); len(rows) != 1 {
		t.Errorf("Expected 1 banned key, got %d", len(rows))
	}

	if !k.FilterTier(ctx, "premium") {
		t.Fatal("Expected tier filter to load")
	}
	last, _ = c.srv.Last(http.MethodGet, "/keys")
	if last.Query.Get("tier") != "premium" || last.Query.Get("status") != "banned" {
		t.Errorf("Expected both filters, got %v", last.Query)
	}

	before := c.srv.Count(http.MethodGet, "/keys")
	if k.FilterStatus(ctx, "bogus") {
		t.Error("Expected invalid status to be rejected")
	}
	if c.srv.Count(http.MethodGet, "/keys") != before {
		t.Error("Expected no request for an invalid status")
	}
	if got := c.view.lastAlert(); got.kind != AlertError {
		t.Errorf("Expected error alert, got %+v", got)
	}
}

func TestKeys_Seek(t *testing.T) {
	c, done := setupConsoleTest(t, adminEmail)
	defer done()
	addKeys(c, 15)
	k := c.keys(10, 0)
	ctx := context.Background()

	if err := k.Seek(2, Filters{Search: "RANSXM", Tier: "basic"}); err != nil {
		t.Fatalf("Failed to seek: %v", err)
	}
	if n := c.srv.Count(http.MethodGet, "/keys"); n != 0 {
		t.Errorf("Expected Seek not to load, got %d requests", n)
	}
	if !k.LoadKeys(ctx) {
		t.Fatal("Expected the page to load")
	}
	last, _ := c.srv.Last(http.MethodGet, "/keys")
	if last.Query.Get("page") != "2" || last.Query.Get("tier") != "basic" || last.Query.Get("search") != "RANSXM" {
		t.Errorf("Expected page 2 with both filters, got %v", last.Query)
	}

	if err := k.Seek(1, Filters{Status: "gone"}); err == nil {
		t.Error("Expected error for an unknown status")
	}
	if st := k.State(); st.Page != 2 || st.Tier != gateway.TierBasic {
		t.Errorf("Expected state unchanged after a rejected seek, got %+v", st)
	}
}

func TestKeys_CreateKey(t *testing.T) {
	c, done := setupConsoleTest(t, adminEmail)
	defer done()
	k := c.keys(10, 0)
	ctx := context.Background()

	key, ok := k.CreateKey(ctx, gateway.CreateKeyParams{MaxUses: 0, Tier: gateway.TierRansxm, Note: "vip"})
	if !ok {
		t.Fatalf("Expected key to be created, alerts %+v", c.view.alerts)
	}
	if got := c.view.alerts[0]; got.kind != AlertSuccess || got.msg != "Key created: "+key.KeyValue {
		t.Errorf("Expected creation alert, got %+v", got)
	}
	rows := c.view.renderedRows()
	if len(rows) != 1 || rows[0].Uses != "0/∞" || rows[0].Tier != gateway.TierRansxm {
		t.Errorf("Expected one unlimited ransxm row after reload, got %+v", rows)
	}
	if c.view.stats == nil || c.view.stats.TotalKeys != 1 {
		t.Errorf("Expected stats reloaded, got %+v", c.view.stats)
	}

	if _, ok := k.CreateKey(ctx, gateway.CreateKeyParams{MaxUses: -1}); ok {
		t.Error("Expected negative max uses to be rejected")
	}
}

func TestKeys_BulkCreate(t *testing.T) {
	c, done := setupConsoleTest(t, adminEmail)
	defer done()
	k := c.keys(10, 0)
	ctx := context.Background()

	keys, ok := k.BulkCreate(ctx, gateway.BulkCreateParams{Count: 3, MaxUses: 5})
	if !ok || len(keys) != 3 {
		t.Fatalf("Expected 3 keys, got %d (alerts %+v)", len(keys), c.view.alerts)
	}
	if c.view.alerts[0].msg != "3 keys created successfully" {
		t.Errorf("Expected bulk alert, got '%s'", c.view.alerts[0].msg)
	}
	if len(c.view.created) != 3 {
		t.Errorf("Expected created keys rendered, got %d", len(c.view.created))
	}
	if len(c.view.prompts) != 1 || c.view.prompts[0] != "Copy all keys to clipboard?" {
		t.Errorf("Expected copy prompt, got %v", c.view.prompts)
	}
	if len(c.view.copied) != 1 || strings.Count(c.view.copied[0], "\n") != 2 {
		t.Errorf("Expected 3 newline-joined keys copied, got %q", c.view.copied)
	}

	if _, ok := k.BulkCreate(ctx, gateway.BulkCreateParams{Count: 101}); ok {
		t.Fatal("Expected the service to refuse 101 keys")
	}
	if got := c.view.lastAlert(); got.msg != "Count must be between 1 and 100" {
		t.Errorf("Expected server error surfaced verbatim, got '%s'", got.msg)
	}

	before := len(c.srv.Requests())
	if _, ok := k.BulkCreate(ctx, gateway.BulkCreateParams{Count: 0}); ok {
		t.Error("Expected zero count to be rejected")
	}
	if len(c.srv.Requests()) != before {
		t.Error("Expected no request for a zero count")
	}
}

func TestKeys_BulkCreateDeclineCopy(t *testing.T) {
	c, done := setupConsoleTest(t, adminEmail)
	defer done()
	c.view.confirm = false
	k := c.keys(10, 0)

	if _, ok := k.BulkCreate(context.Background(), gateway.BulkCreateParams{Count: 2}); !ok {
		t.Fatal("Expected bulk create to succeed")
	}
	if len(c.view.copied) != 0 {
		t.Errorf("Expected nothing copied, got %v", c.view.copied)
	}
}

func TestKeys_EditKey(t *testing.T) {
	c, done := setupConsoleTest(t, adminEmail)
	defer done()
	key := c.srv.AddKey(gateway.Key{})
	k := c.keys(10, 0)
	ctx := context.Background()

	banned := gateway.StatusBanned
	note := "chargeback"
	if !k.EditKey(ctx, key.ID, gateway.UpdateKeyParams{Status: &banned, Note: &note}) {
		t.Fatalf("Expected update to succeed, alerts %+v", c.view.alerts)
	}
	if c.view.alerts[0].msg != "Key updated" {
		t.Errorf("Expected 'Key updated', got '%s'", c.view.alerts[0].msg)
	}
	rows := c.view.renderedRows()
	if len(rows) != 1 || rows[0].Status != gateway.StatusBanned || rows[0].Note != "chargeback" {
		t.Errorf("Expected banned row after reload, got %+v", rows)
	}

	before := c.srv.Count(http.MethodPut, "/keys/"+key.ID.String())
	if k.EditKey(ctx, key.ID, gateway.UpdateKeyParams{}) {
		t.Error("Expected empty update to be rejected")
	}
	expired := gateway.StatusExpired
	if k.EditKey(ctx, key.ID, gateway.UpdateKeyParams{Status: &expired}) {
		t.Error("Expected expired to be rejected as an edit status")
	}
	if c.srv.Count(http.MethodPut, "/keys/"+key.ID.String()) != before {
		t.Error("Expected no request for rejected edits")
	}

	if k.EditKey(ctx, "404", gateway.UpdateKeyParams{Note: &note}) {
		t.Error("Expected update of a missing key to fail")
	}
	if got := c.view.lastAlert(); got.msg != "Key not found" {
		t.Errorf("Expected 'Key not found', got '%s'", got.msg)
	}
}

func TestKeys_ConfirmedActions(t *testing.T) {
	c, done := setupConsoleTest(t, adminEmail)
	defer done()
	hwid := "HWID-1234567890-ABCDEFGHIJ"
	key := c.srv.AddKey(gateway.Key{HWID: &hwid, CurrentUses: 4, MaxUses: 10})
	k := c.keys(10, 0)
	ctx := context.Background()
	path := "/keys/" + key.ID.String()

	c.view.confirm = false
	if k.ResetHWID(ctx, key.ID) || k.ResetUses(ctx, key.ID) || k.DeleteKey(ctx, key.ID) {
		t.Fatal("Expected declined confirmations to abort")
	}
	if len(c.srv.Requests()) != 0 {
		t.Fatalf("Expected no requests after declining, got %d", len(c.srv.Requests()))
	}
	wantPrompts := []string{"Reset HWID for this key?", "Reset usage count for this key?", "Are you sure you want to delete this key?"}
	if strings.Join(c.view.prompts, "|") != strings.Join(wantPrompts, "|") {
		t.Errorf("Expected prompts %v, got %v", wantPrompts, c.view.prompts)
	}

	c.view.confirm = true
	if !k.ResetHWID(ctx, key.ID) {
		t.Fatal("Expected HWID reset to succeed")
	}
	if got, _ := c.srv.Key(key.ID); got.HWID != nil {
		t.Errorf("Expected HWID cleared, got %v", *got.HWID)
	}
	if c.view.lastAlert().msg != "HWID reset successfully" {
		t.Errorf("Expected HWID alert, got '%s'", c.view.lastAlert().msg)
	}
	if !k.ResetUses(ctx, key.ID) {
		t.Fatal("Expected use reset to succeed")
	}
	if got, _ := c.srv.Key(key.ID); got.CurrentUses != 0 {
		t.Errorf("Expected uses zeroed, got %d", got.CurrentUses)
	}
	if !k.DeleteKey(ctx, key.ID) {
		t.Fatal("Expected delete to succeed")
	}
	if c.srv.Count(http.MethodDelete, path) != 1 || c.srv.KeyCount() != 0 {
		t.Errorf("Expected key deleted, %d remain", c.srv.KeyCount())
	}
	if c.view.lastAlert().msg != "Key deleted" {
		t.Errorf("Expected 'Key deleted', got '%s'", c.view.lastAlert().msg)
	}
}

func TestKeys_BatchOperations(t *testing.T) {
	c, done := setupConsoleTest(t, adminEmail)
	defer done()
	keys := addKeys(c, 4)
	k := c.keys(10, 0)
	ctx := context.Background()
	k.LoadKeys(ctx)

	if k.BatchDelete(ctx) {
		t.Fatal("Expected batch delete with no selection to fail")
	}
	if got := c.view.lastAlert(); got.msg != "No keys selected" {
		t.Errorf("Expected 'No keys selected', got '%s'", got.msg)
	}

	k.Toggle(keys[0].ID)
	k.Toggle(keys[1].ID)
	if !k.BatchStatus(ctx, gateway.StatusDisabled) {
		t.Fatalf("Expected batch status to succeed, alerts %+v", c.view.alerts)
	}
	for _, key := range keys[:2] {
		if got, _ := c.srv.Key(key.ID); got.Status != gateway.StatusDisabled {
			t.Errorf("Expected key %s disabled, got %s", key.ID, got.Status)
		}
	}
	if got := c.view.lastAlert(); got.msg != "2 keys set to disabled" {
		t.Errorf("Expected count alert, got '%s'", got.msg)
	}
	if len(k.Selected()) != 0 {
		t.Error("Expected selection cleared after the batch reload")
	}

	if k.SelectAll() != 4 {
		t.Fatal("Expected all 4 keys selected")
	}
	if k.BatchStatus(ctx, gateway.StatusExpired) {
		t.Error("Expected expired to be rejected for batch status")
	}
	if !k.BatchDelete(ctx) {
		t.Fatalf("Expected batch delete to succeed, alerts %+v", c.view.alerts)
	}
	if c.srv.KeyCount() != 0 {
		t.Errorf("Expected every key deleted, %d remain", c.srv.KeyCount())
	}
	if got := c.view.lastAlert(); got.msg != "4 keys deleted" {
		t.Errorf("Expected '4 keys deleted', got '%s'", got.msg)
	}
}

func TestKeys_CopyKey(t *testing.T) {
	c, done := setupConsoleTest(t, adminEmail)
	defer done()
	key := c.srv.AddKey(gateway.Key{KeyValue: "RANSXM-COPY"})
	k := c.keys(10, 0)

	if _, ok := k.CopyKey(key.ID); ok {
		t.Error("Expected copy to fail before the page is loaded")
	}
	k.LoadKeys(context.Background())

	value, ok := k.CopyKey(key.ID)
	if !ok || value != "RANSXM-COPY" {
		t.Fatalf("Expected RANSXM-COPY, got '%s'", value)
	}
	if len(c.view.copied) != 1 || c.view.copied[0] != "RANSXM-COPY" {
		t.Errorf("Expected value copied, got %v", c.view.copied)
	}
	if got := c.view.lastAlert(); got.msg != "Key copied to clipboard" {
		t.Errorf("Expected copy alert, got '%s'", got.msg)
	}
	if found, ok := k.Lookup("RANSXM-COPY"); !ok || found.ID != key.ID {
		t.Errorf("Expected lookup by value to find %s, got %+v", key.ID, found)
	}
}

func TestKeys_Export(t *testing.T) {
	c, done := setupConsoleTest(t, adminEmail)
	defer done()
	c.srv.AddKey(gateway.Key{KeyValue: "RANSXM-ONE", Tier: gateway.TierBasic})
	c.srv.AddKey(gateway.Key{KeyValue: "RANSXM-TWO", Tier: gateway.TierPremium})
	k := c.keys(10, 0)
	ctx := context.Background()

	var csvOut bytes.Buffer
	if err := k.Export(ctx, formats.CSV, &csvOut); err != nil {
		t.Fatalf("Failed to export csv: %v", err)
	}
	if !strings.HasPrefix(csvOut.String(), "key_value,status,tier") {
		t.Errorf("Expected the service's csv verbatim, got %q", csvOut.String())
	}
	last, _ := c.srv.Last(http.MethodGet, "/keys/export")
	if last.Query.Get("format") != "csv" {
		t.Errorf("Expected csv requested, got %v", last.Query)
	}

	k.FilterTier(ctx, "premium")
	for _, f := range []formats.Format{formats.JSON, formats.Arrow, formats.Parquet} {
		var out bytes.Buffer
		if err := k.Export(ctx, f, &out); err != nil {
			t.Fatalf("Failed to export %s: %v", f, err)
		}
		if out.Len() == 0 {
			t.Errorf("Expected %s output", f)
		}
		last, _ := c.srv.Last(http.MethodGet, "/keys/export")
		if last.Query.Get("format") != "json" || last.Query.Get("tier") != "premium" {
			t.Errorf("Expected filtered json export for %s, got %v", f, last.Query)
		}
	}
	if got := c.view.lastAlert(); got.msg != "Exported 1 keys" {
		t.Errorf("Expected export alert, got '%s'", got.msg)
	}
}

func TestKeys_ForbiddenIsSurfaced(t *testing.T) {
	c, done := setupConsoleTest(t, userEmail)
	defer done()
	k := NewKeys(c.gw, allowAll{}, c.view, KeysConfig{}, nil)

	if k.LoadKeys(context.Background()) {
		t.Fatal("Expected a plain user's list request to fail")
	}
	if got := c.view.lastAlert(); got.msg != "Admin access required" {
		t.Errorf("Expected server message, got '%s'", got.msg)
	}
	if c.nav.Count() != 0 {
		t.Errorf("Expected no navigation on 403, got %d", c.nav.Count())
	}
	if _, ok := c.gw.Session().RawUser(context.Background()); !ok {
		t.Error("Expected session to survive a 403")
	}
}
