package formats

import (
	"bytes"
	"context"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/apache/arrow/go/v18/arrow/array"
	"github.com/apache/arrow/go/v18/arrow/ipc"
	"github.com/apache/arrow/go/v18/arrow/memory"
	"github.com/apache/arrow/go/v18/parquet/file"
	"github.com/apache/arrow/go/v18/parquet/pqarrow"
	"github.com/goccy/go-json"

	"github.com/ransxm/ransxm-console/gateway"
)

func testKeys() []gateway.Key {
	hwid := "HWID-ABCDEF0123456789XYZ"
	note := "reseller batch"
	expires := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	created := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	return []gateway.Key{
		{
			ID: "1", KeyValue: "RANSXM-AAAA", Status: gateway.StatusActive, Tier: gateway.TierPremium,
			HWID: &hwid, CurrentUses: 3, MaxUses: 10, ExpiresAt: &expires, Note: &note, CreatedAt: created,
		},
		{
			ID: "2", KeyValue: "RANSXM-BBBB", Status: gateway.StatusBanned, Tier: gateway.TierBasic,
			CurrentUses: 0, MaxUses: 0, CreatedAt: created,
		},
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"csv", CSV, false},
		{"JSON", JSON, false},
		{" arrow ", Arrow, false},
		{"parquet", Parquet, false},
		{"xlsx", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, testKeys()); err != nil {
		t.Fatalf("WriteCSV failed: %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("Failed to parse CSV: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("Expected 3 records (header + 2), got %d", len(records))
	}
	if strings.Join(records[0], ",") != strings.Join(Columns, ",") {
		t.Errorf("Unexpected header: %v", records[0])
	}
	if records[1][7] != "2027-01-01T00:00:00Z" {
		t.Errorf("Expected RFC3339 expiry, got '%s'", records[1][7])
	}
	if records[2][4] != "" || records[2][7] != "" || records[2][8] != "" {
		t.Errorf("Expected empty nullable fields, got %v", records[2])
	}
	if records[2][6] != "0" {
		t.Errorf("Expected max_uses 0, got '%s'", records[2][6])
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, testKeys()); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}

	var keys []gateway.Key
	if err := json.Unmarshal(buf.Bytes(), &keys); err != nil {
		t.Fatalf("Failed to decode JSON: %v", err)
	}
	if len(keys) != 2 || keys[0].KeyValue != "RANSXM-AAAA" || keys[1].HWID != nil {
		t.Errorf("Unexpected keys: %+v", keys)
	}

	buf.Reset()
	if err := WriteJSON(&buf, nil); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}
	if strings.TrimSpace(buf.String()) != "[]" {
		t.Errorf("Expected empty array, got %s", buf.String())
	}
}

func TestWriteArrowIPC(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteArrowIPC(&buf, testKeys()); err != nil {
		t.Fatalf("WriteArrowIPC failed: %v", err)
	}

	reader, err := ipc.NewReader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("Failed to create IPC reader: %v", err)
	}
	defer reader.Release()

	if reader.Schema().NumFields() != len(Columns) {
		t.Errorf("Expected %d fields, got %d", len(Columns), reader.Schema().NumFields())
	}

	rows := 0
	for reader.Next() {
		rec := reader.Record()
		rows += int(rec.NumRows())

		values := rec.Column(1).(*array.String)
		if values.Value(0) != "RANSXM-AAAA" {
			t.Errorf("Expected first key RANSXM-AAAA, got %s", values.Value(0))
		}
		hwid := rec.Column(4)
		if !hwid.IsNull(1) {
			t.Error("Expected null hwid for second key")
		}
		maxUses := rec.Column(6).(*array.Int64)
		if maxUses.Value(0) != 10 || maxUses.Value(1) != 0 {
			t.Errorf("Unexpected max_uses: %d, %d", maxUses.Value(0), maxUses.Value(1))
		}
		if !rec.Column(7).IsNull(1) {
			t.Error("Expected null expires_at for second key")
		}
	}
	if rows != 2 {
		t.Errorf("Expected 2 rows, got %d", rows)
	}
}

func TestWriteArrowIPC_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteArrowIPC(&buf, nil); err != nil {
		t.Fatalf("WriteArrowIPC failed: %v", err)
	}
	reader, err := ipc.NewReader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("Failed to create IPC reader: %v", err)
	}
	defer reader.Release()
	if reader.Next() {
		t.Error("Expected no record batches")
	}
}

func TestWriteParquet(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteParquet(&buf, testKeys()); err != nil {
		t.Fatalf("WriteParquet failed: %v", err)
	}

	reader, err := file.NewParquetReader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("Failed to create Parquet reader: %v", err)
	}
	defer reader.Close()

	if reader.MetaData().Schema.NumColumns() != len(Columns) {
		t.Errorf("Expected %d columns, got %d", len(Columns), reader.MetaData().Schema.NumColumns())
	}
	if reader.NumRows() != 2 {
		t.Errorf("Expected 2 rows, got %d", reader.NumRows())
	}

	fr, err := pqarrow.NewFileReader(reader, pqarrow.ArrowReadProperties{}, memory.DefaultAllocator)
	if err != nil {
		t.Fatalf("Failed to create arrow file reader: %v", err)
	}
	table, err := fr.ReadTable(context.Background())
	if err != nil {
		t.Fatalf("Failed to read table: %v", err)
	}
	defer table.Release()

	if table.Schema().Field(1).Name != "key_value" {
		t.Errorf("Expected key_value column, got %s", table.Schema().Field(1).Name)
	}
}

func TestWriteParquet_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteParquet(&buf, nil); err != nil {
		t.Fatalf("WriteParquet failed: %v", err)
	}
	reader, err := file.NewParquetReader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("Failed to create Parquet reader: %v", err)
	}
	defer reader.Close()
	if reader.NumRows() != 0 {
		t.Errorf("Expected 0 rows, got %d", reader.NumRows())
	}
}

func TestWrite_Dispatch(t *testing.T) {
	for _, f := range Formats {
		var buf bytes.Buffer
		if err := Write(&buf, f, testKeys()); err != nil {
			t.Errorf("Write(%s) failed: %v", f, err)
		}
		if buf.Len() == 0 {
			t.Errorf("Write(%s) produced no output", f)
		}
	}
	if err := Write(&bytes.Buffer{}, "xml", nil); err == nil {
		t.Error("Expected error for unknown format")
	}
}
