package formats

import (
	"fmt"
	"io"
	"time"

	"github.com/apache/arrow/go/v18/arrow"
	"github.com/apache/arrow/go/v18/arrow/array"
	"github.com/apache/arrow/go/v18/arrow/ipc"
	"github.com/apache/arrow/go/v18/arrow/memory"

	"github.com/ransxm/ransxm-console/gateway"
)

// batchSize bounds the rows per Arrow record batch.
const batchSize = 1024

// keySchema is the Arrow schema of exported keys, in Columns order.
var keySchema = arrow.NewSchema([]arrow.Field{
	{Name: "id", Type: arrow.BinaryTypes.String},
	{Name: "key_value", Type: arrow.BinaryTypes.String},
	{Name: "status", Type: arrow.BinaryTypes.String},
	{Name: "tier", Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: "hwid", Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: "current_uses", Type: arrow.PrimitiveTypes.Int64},
	{Name: "max_uses", Type: arrow.PrimitiveTypes.Int64},
	{Name: "expires_at", Type: arrow.FixedWidthTypes.Timestamp_us, Nullable: true},
	{Name: "note", Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: "created_at", Type: arrow.FixedWidthTypes.Timestamp_us},
}, nil)

// WriteArrowIPC writes keys as an Arrow IPC stream.
func WriteArrowIPC(w io.Writer, keys []gateway.Key) error {
	pool := memory.NewGoAllocator()

	writer := ipc.NewWriter(w, ipc.WithSchema(keySchema), ipc.WithAllocator(pool))

	for start := 0; start < len(keys); start += batchSize {
		end := min(start+batchSize, len(keys))
		record := buildRecord(pool, keys[start:end])
		err := writer.Write(record)
		record.Release()
		if err != nil {
			writer.Close()
			return fmt.Errorf("failed to write record batch: %w", err)
		}
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close arrow stream: %w", err)
	}
	return nil
}

// buildRecord converts keys into one record batch.
func buildRecord(pool memory.Allocator, keys []gateway.Key) arrow.Record {
	b := array.NewRecordBuilder(pool, keySchema)
	defer b.Release()

	id := b.Field(0).(*array.StringBuilder)
	value := b.Field(1).(*array.StringBuilder)
	status := b.Field(2).(*array.StringBuilder)
	tier := b.Field(3).(*array.StringBuilder)
	hwid := b.Field(4).(*array.StringBuilder)
	current := b.Field(5).(*array.Int64Builder)
	maxUses := b.Field(6).(*array.Int64Builder)
	expires := b.Field(7).(*array.TimestampBuilder)
	note := b.Field(8).(*array.StringBuilder)
	created := b.Field(9).(*array.TimestampBuilder)

	for i := range keys {
		k := &keys[i]
		id.Append(k.ID.String())
		value.Append(k.KeyValue)
		status.Append(string(k.Status))
		appendOptional(tier, string(k.Tier))
		appendOptional(hwid, deref(k.HWID))
		current.Append(k.CurrentUses)
		maxUses.Append(k.MaxUses)
		if k.ExpiresAt != nil {
			expires.Append(toTimestamp(*k.ExpiresAt))
		} else {
			expires.AppendNull()
		}
		if k.Note != nil {
			note.Append(*k.Note)
		} else {
			note.AppendNull()
		}
		created.Append(toTimestamp(k.CreatedAt))
	}

	return b.NewRecord()
}

func appendOptional(b *array.StringBuilder, s string) {
	if s == "" {
		b.AppendNull()
		return
	}
	b.Append(s)
}

func toTimestamp(t time.Time) arrow.Timestamp {
	return arrow.Timestamp(t.UTC().UnixMicro())
}
