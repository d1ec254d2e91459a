package audit

import (
	"fmt"
	"strings"
)

// defaultDenyList covers the field names that must never reach an audit sink
// in the clear. Matching is case-insensitive on substrings, so "apiKey",
// "refresh_token" and "DB_PASSWORD" are all caught.
var defaultDenyList = []string{"password", "token", "secret", "key", "credential"}

const redactedPlaceholder = "[REDACTED]"

// Redactor strips sensitive values from context snapshots before storage.
type Redactor struct {
	denyList []string
}

// NewRedactor builds a redactor. An empty term list falls back to the
// default deny list.
func NewRedactor(terms ...string) *Redactor {
	if len(terms) == 0 {
		terms = defaultDenyList
	}
	lowered := make([]string, len(terms))
	for i, t := range terms {
		lowered[i] = strings.ToLower(t)
	}
	return &Redactor{denyList: lowered}
}

// Snapshot flattens a payload into a storable string map, replacing every
// deny-listed field's value with a placeholder. Values of clean fields are
// rendered with %v; nested maps are redacted recursively with dotted keys.
func (r *Redactor) Snapshot(payload map[string]any) map[string]string {
	if len(payload) == 0 {
		return nil
	}
	out := make(map[string]string, len(payload))
	r.flatten("", payload, out)
	return out
}

func (r *Redactor) flatten(prefix string, payload map[string]any, out map[string]string) {
	for field, value := range payload {
		key := field
		if prefix != "" {
			key = prefix + "." + field
		}
		if r.Denied(field) {
			out[key] = redactedPlaceholder
			continue
		}
		if nested, ok := value.(map[string]any); ok {
			r.flatten(key, nested, out)
			continue
		}
		out[key] = fmt.Sprintf("%v", value)
	}
}

// Denied reports whether a field name matches the deny list.
func (r *Redactor) Denied(field string) bool {
	lowered := strings.ToLower(field)
	for _, term := range r.denyList {
		if strings.Contains(lowered, term) {
			return true
		}
	}
	return false
}
