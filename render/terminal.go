// Package render presents console output on a terminal.
package render

import (
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/manifoldco/promptui"
	"github.com/mattn/go-isatty"

	"github.com/ransxm/ransxm-console/console"
	"github.com/ransxm/ransxm-console/gateway"
	"github.com/ransxm/ransxm-console/session"
)

const (
	colorReset   = "\x1b[0m"
	colorRed     = "31"
	colorGreen   = "32"
	colorYellow  = "33"
	colorDefault = "39"
	colorGray    = "90"

	barWidth = 40
)

// Options configures a Terminal.
type Options struct {
	// Color enables ANSI colors.
	Color bool
	// Interactive enables loading lines, prompts and OSC 52 clipboard writes.
	Interactive bool
	// AssumeYes answers every confirmation with yes.
	AssumeYes bool
	// Stdin feeds prompts. Defaults to os.Stdin.
	Stdin io.ReadCloser
}

// IsTerminal reports whether w is a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Detect returns options suited to w: colors and prompts only on a terminal.
func Detect(w io.Writer, assumeYes bool) Options {
	tty := IsTerminal(w)
	return Options{Color: tty, Interactive: tty, AssumeYes: assumeYes}
}

// Terminal implements console.View on a writer.
type Terminal struct {
	mu   sync.Mutex
	out  io.Writer
	opts Options
	now  func() time.Time
}

var _ console.View = (*Terminal)(nil)

// NewTerminal creates a terminal view writing to out.
func NewTerminal(out io.Writer, opts Options) *Terminal {
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	return &Terminal{out: out, opts: opts, now: time.Now}
}

func (t *Terminal) paint(code, s string) string {
	if !t.opts.Color {
		return s
	}
	return "\x1b[" + code + "m" + s + colorReset
}

func (t *Terminal) statusColor(s gateway.KeyStatus) string {
	switch s {
	case gateway.StatusActive:
		return colorGreen
	case gateway.StatusDisabled:
		return colorYellow
	case gateway.StatusBanned:
		return colorRed
	}
	return colorGray
}

func (t *Terminal) ago(ts time.Time) string {
	if ts.IsZero() {
		return "-"
	}
	return humanize.RelTime(ts, t.now(), "ago", "from now")
}

// ShowLoading prints a placeholder line on interactive terminals.
func (t *Terminal) ShowLoading(section console.Section) {
	if !t.opts.Interactive {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintln(t.out, t.paint(colorGray, "Loading "+string(section)+"..."))
}

// RenderKeys prints the key table and the pager line.
func (t *Terminal) RenderKeys(rows []console.KeyRow, page console.Pagination) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(rows) == 0 {
		fmt.Fprintln(t.out, "No keys found.")
		return
	}

	w := tabwriter.NewWriter(t.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, " \tID\tKEY\t%s\tTIER\tHWID\tUSES\tEXPIRES\tNOTE\tCREATED\n", t.paint(colorDefault, "STATUS"))
	fmt.Fprintf(w, " \t--\t---\t%s\t----\t----\t----\t-------\t----\t-------\n", t.paint(colorDefault, "------"))
	for _, r := range rows {
		mark := " "
		if r.Selected {
			mark = "*"
		}
		tier := string(r.Tier)
		if tier == "" {
			tier = "-"
		}
		note := r.Note
		if note == "" {
			note = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			mark, r.ID, r.Key, t.paint(t.statusColor(r.Status), string(r.Status)),
			tier, r.HWID, r.Uses, r.Expires, note, t.ago(r.CreatedAt))
	}
	w.Flush()

	pages := "?"
	if page.TotalPages > 0 {
		pages = humanize.Comma(int64(page.TotalPages))
	}
	fmt.Fprintf(t.out, "Page %d of %s (%s keys)\n", page.Page, pages, humanize.Comma(int64(page.Total)))
}

// RenderStats prints the dashboard aggregates.
func (t *Terminal) RenderStats(stats *gateway.Stats) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if stats == nil {
		fmt.Fprintln(t.out, "Stats unavailable.")
		return
	}
	w := tabwriter.NewWriter(t.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TOTAL KEYS\tACTIVE KEYS\tUSERS\tVALIDATIONS TODAY")
	fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
		humanize.Comma(stats.TotalKeys), humanize.Comma(stats.ActiveKeys),
		humanize.Comma(stats.TotalUsers), humanize.Comma(stats.TodayValidations))
	w.Flush()
}

// RenderCreated prints freshly created key values, one per line.
func (t *Terminal) RenderCreated(keys []gateway.Key) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, k := range keys {
		fmt.Fprintln(t.out, k.KeyValue)
	}
}

// RenderLogs prints usage logs, newest first as received.
func (t *Terminal) RenderLogs(logs []gateway.UsageLog) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(logs) == 0 {
		fmt.Fprintln(t.out, "No logs found.")
		return
	}
	w := tabwriter.NewWriter(t.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "TIME\tKEY\tHWID\tIP\tACTION\t%s\tMESSAGE\n", t.paint(colorDefault, "RESULT"))
	fmt.Fprintf(w, "----\t---\t----\t--\t------\t%s\t-------\n", t.paint(colorDefault, "------"))
	for _, l := range logs {
		result := t.paint(colorGreen, "ok  ")
		if !l.Success {
			result = t.paint(colorRed, "fail")
		}
		hwid := l.HWID
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			t.ago(l.CreatedAt), dash(l.KeyValue), console.FormatHWID(&hwid),
			dash(l.IP), dash(l.Action), result, dash(l.Message))
	}
	w.Flush()
}

// RenderUsers prints the account list.
func (t *Terminal) RenderUsers(users []session.User) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(users) == 0 {
		fmt.Fprintln(t.out, "No users found.")
		return
	}
	w := tabwriter.NewWriter(t.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tEMAIL\tROLE\tCREATED")
	fmt.Fprintln(w, "--\t-----\t----\t-------")
	for _, u := range users {
		created := "-"
		if ts, err := time.Parse(time.RFC3339, u.CreatedAt); err == nil {
			created = t.ago(ts)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", u.ID, u.Email, u.Role, created)
	}
	w.Flush()
}

type dailyPoint struct {
	Date        string `json:"date"`
	Validations int64  `json:"validations"`
}

// RenderAnalytics prints the daily validation series as a bar chart.
func (t *Terminal) RenderAnalytics(days int, data gateway.Result) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var daily []dailyPoint
	if data == nil || data.Decode("daily", &daily) != nil {
		fmt.Fprintln(t.out, "Analytics unavailable.")
		return
	}

	var peak, total int64
	for _, p := range daily {
		peak = max(peak, p.Validations)
		total += p.Validations
	}
	fmt.Fprintf(t.out, "Validations, last %d days (%s total)\n", days, humanize.Comma(total))
	w := tabwriter.NewWriter(t.out, 0, 0, 2, ' ', 0)
	for _, p := range daily {
		bar := ""
		if peak > 0 {
			bar = strings.Repeat("█", int(p.Validations*barWidth/peak))
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", p.Date, humanize.Comma(p.Validations), t.paint(colorGreen, bar))
	}
	w.Flush()
}

// RenderIdentity prints the signed-in account.
func (t *Terminal) RenderIdentity(user *session.User) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if user == nil {
		fmt.Fprintln(t.out, "Not signed in.")
		return
	}
	fmt.Fprintf(t.out, "Signed in as %s (%s), id %s\n", user.Email, user.Role, user.ID)
}

// Alert prints a notification.
func (t *Terminal) Alert(kind console.AlertKind, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch kind {
	case console.AlertSuccess:
		fmt.Fprintln(t.out, t.paint(colorGreen, "✓ ")+message)
	case console.AlertError:
		fmt.Fprintln(t.out, t.paint(colorRed, "✗ ")+message)
	default:
		fmt.Fprintln(t.out, message)
	}
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// Confirm asks a yes/no question. Without a terminal it declines unless
// AssumeYes is set.
func (t *Terminal) Confirm(prompt string) bool {
	if t.opts.AssumeYes {
		return true
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.opts.Interactive {
		fmt.Fprintf(t.out, "%s Declined (pass --yes to confirm).\n", prompt)
		return false
	}
	p := promptui.Prompt{
		Label:     strings.TrimSuffix(prompt, "?"),
		IsConfirm: true,
		Stdin:     t.opts.Stdin,
		Stdout:    nopWriteCloser{t.out},
	}
	_, err := p.Run()
	return err == nil
}

// Choose asks the user to pick one of items.
func (t *Terminal) Choose(label string, items []string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.opts.Interactive || len(items) == 0 {
		return "", false
	}
	s := promptui.Select{
		Label:  label,
		Items:  items,
		Stdin:  t.opts.Stdin,
		Stdout: nopWriteCloser{t.out},
	}
	_, choice, err := s.Run()
	if err != nil {
		return "", false
	}
	return choice, true
}

// Copy places text on the clipboard with an OSC 52 escape on interactive
// terminals, and prints it otherwise.
func (t *Terminal) Copy(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.opts.Interactive {
		fmt.Fprintln(t.out, text)
		return
	}
	fmt.Fprintf(t.out, "\x1b]52;c;%s\a", base64.StdEncoding.EncodeToString([]byte(text)))
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
