package formats

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/ransxm/ransxm-console/gateway"
)

// WriteCSV writes keys as CSV with a header row. Null fields are empty.
func WriteCSV(w io.Writer, keys []gateway.Key) error {
	csvWriter := csv.NewWriter(w)

	if err := csvWriter.Write(Columns); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for i := range keys {
		k := &keys[i]
		record := []string{
			k.ID.String(),
			k.KeyValue,
			string(k.Status),
			string(k.Tier),
			deref(k.HWID),
			strconv.FormatInt(k.CurrentUses, 10),
			strconv.FormatInt(k.MaxUses, 10),
			formatTime(k.ExpiresAt),
			deref(k.Note),
			formatTime(&k.CreatedAt),
		}
		if err := csvWriter.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	csvWriter.Flush()
	if err := csvWriter.Error(); err != nil {
		return fmt.Errorf("failed to flush CSV: %w", err)
	}
	return nil
}
