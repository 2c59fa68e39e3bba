package gateway

import (
	"fmt"
	"net/url"
	"strconv"
)

// ExportFormat is a server-side export format.
type ExportFormat string

const (
	ExportCSV  ExportFormat = "csv"
	ExportJSON ExportFormat = "json"
)

// ListParams filters the key list. Zero values are omitted from the query.
type ListParams struct {
	Page   int
	Limit  int
	Search string
	Status KeyStatus
	Tier   Tier
}

// Values encodes the non-empty parameters.
func (p ListParams) Values() url.Values {
	v := url.Values{}
	if p.Page > 0 {
		v.Set("page", strconv.Itoa(p.Page))
	}
	if p.Limit > 0 {
		v.Set("limit", strconv.Itoa(p.Limit))
	}
	if p.Search != "" {
		v.Set("search", p.Search)
	}
	if p.Status != "" {
		v.Set("status", string(p.Status))
	}
	if p.Tier != "" {
		v.Set("tier", string(p.Tier))
	}
	return v
}

// ExportParams selects the keys to export.
type ExportParams struct {
	Format ExportFormat
	Status KeyStatus
	Tier   Tier
}

// Values encodes the export query. Format defaults to csv.
func (p ExportParams) Values() url.Values {
	v := url.Values{}
	format := p.Format
	if format == "" {
		format = ExportCSV
	}
	v.Set("format", string(format))
	if p.Status != "" {
		v.Set("status", string(p.Status))
	}
	if p.Tier != "" {
		v.Set("tier", string(p.Tier))
	}
	return v
}

// ParseExportFormat validates a server-side export format.
func ParseExportFormat(s string) (ExportFormat, error) {
	switch ExportFormat(s) {
	case ExportCSV, ExportJSON:
		return ExportFormat(s), nil
	}
	return "", fmt.Errorf("invalid export format %q (must be csv or json)", s)
}

// ParsePage parses a 1-based page number, falling back to 1.
func ParsePage(s string) int {
	if p, err := strconv.Atoi(s); err == nil && p > 0 {
		return p
	}
	return 1
}
