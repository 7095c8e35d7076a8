package repository

import "strings"

// RedactedValue replaces sensitive field values in audit log output.
const RedactedValue = "[REDACTED]"

// sensitiveFields are the field names whose values never reach a log line.
// Matching is case-insensitive.
var sensitiveFields = map[string]struct{}{
	"customer_email": {},
	"customer_name":  {},
	"email":          {},
	"name":           {},
	"phone":          {},
	"address":        {},
}

// Redact returns a copy of doc with every sensitive value replaced by
// RedactedValue. The walk recurses into nested maps but not into slices of
// maps; that is a known limitation of the redaction policy, kept so the
// behavior stays predictable. Non-sensitive fields and structure are
// preserved so the log line still shows the query shape.
func Redact(doc Document) Document {
	if doc == nil {
		return nil
	}
	out := make(Document, len(doc))
	for key, value := range doc {
		if _, sensitive := sensitiveFields[strings.ToLower(key)]; sensitive {
			out[key] = RedactedValue
			continue
		}
		if nested, ok := value.(map[string]interface{}); ok {
			out[key] = Redact(nested)
			continue
		}
		out[key] = value
	}
	return out
}
