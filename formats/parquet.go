package formats

import (
	"fmt"
	"io"

	"github.com/apache/arrow/go/v18/arrow"
	"github.com/apache/arrow/go/v18/arrow/array"
	"github.com/apache/arrow/go/v18/arrow/memory"
	"github.com/apache/arrow/go/v18/parquet"
	"github.com/apache/arrow/go/v18/parquet/compress"
	"github.com/apache/arrow/go/v18/parquet/pqarrow"

	"github.com/ransxm/ransxm-console/gateway"
)

// WriteParquet writes keys as a Snappy-compressed Parquet file with the
// Arrow schema stored in its metadata.
func WriteParquet(w io.Writer, keys []gateway.Key) error {
	pool := memory.NewGoAllocator()

	var records []arrow.Record
	for start := 0; start < len(keys); start += batchSize {
		end := min(start+batchSize, len(keys))
		records = append(records, buildRecord(pool, keys[start:end]))
	}
	if len(records) == 0 {
		records = append(records, buildRecord(pool, nil))
	}

	table := array.NewTableFromRecords(keySchema, records)
	defer table.Release()

	for _, r := range records {
		r.Release()
	}

	writerProps := parquet.NewWriterProperties(
		parquet.WithCompression(compress.Codecs.Snappy),
		parquet.WithDictionaryDefault(true),
	)
	arrowWriterProps := pqarrow.NewArrowWriterProperties(
		pqarrow.WithStoreSchema(),
	)

	chunk := table.NumRows()
	if chunk == 0 {
		chunk = 1
	}
	if err := pqarrow.WriteTable(table, w, chunk, writerProps, arrowWriterProps); err != nil {
		return fmt.Errorf("failed to write parquet: %w", err)
	}
	return nil
}
