// Package formats writes license keys as CSV, JSON, Arrow IPC or Parquet.
package formats

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ransxm/ransxm-console/gateway"
)

// Format is an export format.
type Format string

const (
	CSV     Format = "csv"
	JSON    Format = "json"
	Arrow   Format = "arrow"
	Parquet Format = "parquet"
)

// Formats lists every supported format.
var Formats = []Format{CSV, JSON, Arrow, Parquet}

// Columns is the fixed column order of every tabular export.
var Columns = []string{
	"id",
	"key_value",
	"status",
	"tier",
	"hwid",
	"current_uses",
	"max_uses",
	"expires_at",
	"note",
	"created_at",
}

// ParseFormat validates a format name (case-insensitive).
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Formats {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("unsupported format %q (must be csv, json, arrow or parquet)", s)
}

// Extension returns the file extension for f.
func (f Format) Extension() string {
	switch f {
	case Arrow:
		return ".arrow"
	default:
		return "." + string(f)
	}
}

// ContentType returns the media type for f.
func (f Format) ContentType() string {
	switch f {
	case CSV:
		return "text/csv"
	case JSON:
		return "application/json"
	case Arrow:
		return "application/vnd.apache.arrow.stream"
	case Parquet:
		return "application/parquet"
	}
	return "application/octet-stream"
}

// Write encodes keys to w in format f.
func Write(w io.Writer, f Format, keys []gateway.Key) error {
	switch f {
	case CSV:
		return WriteCSV(w, keys)
	case JSON:
		return WriteJSON(w, keys)
	case Arrow:
		return WriteArrowIPC(w, keys)
	case Parquet:
		return WriteParquet(w, keys)
	}
	return fmt.Errorf("unsupported format %q", f)
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
