package formats

import (
	"fmt"
	"io"

	"github.com/goccy/go-json"

	"github.com/ransxm/ransxm-console/gateway"
)

// WriteJSON writes keys as an indented JSON array.
func WriteJSON(w io.Writer, keys []gateway.Key) error {
	if keys == nil {
		keys = []gateway.Key{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(keys); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}
