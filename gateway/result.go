package gateway

import (
	"fmt"

	"github.com/goccy/go-json"
)

// Synthetic error messages produced by the gateway itself.
const (
	ErrSessionExpired   = "Session expired"
	ErrConnectionFailed = "Connection failed"
)

// Result is the decoded response body. Callers branch on the presence of
// expected keys such as "token", "key", "keys" or "error".
type Result map[string]any

func errorResult(msg string) Result {
	return Result{"error": msg}
}

// Err returns the error message, or "" when the result carries none.
func (r Result) Err() string {
	v, ok := r["error"]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// OK reports whether the result carries no error.
func (r Result) OK() bool {
	return r.Err() == ""
}

// Has reports whether key is present.
func (r Result) Has(key string) bool {
	_, ok := r[key]
	return ok
}

// String returns key as a string, or "" when absent or not a string.
func (r Result) String(key string) string {
	s, _ := r[key].(string)
	return s
}

// Raw re-encodes the value under key.
func (r Result) Raw(key string) (json.RawMessage, bool) {
	v, ok := r[key]
	if !ok {
		return nil, false
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, false
	}
	return data, true
}

// Decode converts the value under key into v.
func (r Result) Decode(key string, v any) error {
	data, ok := r.Raw(key)
	if !ok {
		return fmt.Errorf("response has no '%s' field", key)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode '%s': %w", key, err)
	}
	return nil
}

// DecodeAll converts the whole result into v.
func (r Result) DecodeAll(v any) error {
	data, err := json.Marshal(map[string]any(r))
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode result: %w", err)
	}
	return nil
}

// Content returns a non-JSON response body and its content type.
func (r Result) Content() (content string, contentType string, ok bool) {
	content, ok = r["content"].(string)
	contentType, _ = r["content_type"].(string)
	return content, contentType, ok
}
