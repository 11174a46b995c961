package log

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	redactedValue = "[REDACTED]"
	redactedDepth = "[REDACTED_DEPTH]"

	// maxDepth is the redaction walk limit; values nested deeper are
	// replaced rather than inspected.
	maxDepth = 5
)

// piiPatterns are applied in order; card runs before phone so a 16-digit
// number is not half-matched as a phone.
var piiPatterns = []struct {
	name string
	re   *regexp.Regexp
}{
	{"EMAIL", regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)},
	{"SSN", regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	{"CARD", regexp.MustCompile(`\b(?:\d{4}[ \-]?){3}\d{4}\b`)},
	{"PHONE", regexp.MustCompile(`(?:\+?\d{1,3}[ .\-])?\(?\d{3}\)?[ .\-]?\d{3}[ .\-]?\d{4}\b`)},
}

var sensitiveKeyParts = []string{"password", "secret", "token", "key", "authorization"}

func sensitiveKey(name string) bool {
	lower := strings.ToLower(name)
	for _, part := range sensitiveKeyParts {
		if strings.Contains(lower, part) {
			return true
		}
	}
	return false
}

// Redactor rewrites PII in log output. When disabled it still normalizes
// metadata so encoding cannot fail, but leaves content untouched.
type Redactor struct {
	enabled bool
}

// NewRedactor builds a redactor.
func NewRedactor(enabled bool) *Redactor {
	return &Redactor{enabled: enabled}
}

// String replaces PII patterns in s with their sentinels.
func (r *Redactor) String(s string) string {
	if !r.enabled {
		return s
	}
	for _, p := range piiPatterns {
		s = p.re.ReplaceAllString(s, "[REDACTED_"+p.name+"]")
	}
	return s
}

// Value normalizes v for encoding, applying the redaction rules: strings
// are pattern-matched, sensitive field names have their values replaced
// wholesale, nesting beyond maxDepth becomes a sentinel, and types the
// encoder cannot represent degrade to their string form.
func (r *Redactor) Value(v any, depth int) any {
	if depth > maxDepth {
		return redactedDepth
	}
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		return r.String(x)
	case error:
		return map[string]any{
			"name":    fmt.Sprintf("%T", x),
			"message": r.String(x.Error()),
		}
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			if r.enabled && sensitiveKey(k) {
				out[k] = redactedValue
				continue
			}
			out[k] = r.Value(val, depth+1)
		}
		return out
	case map[string]string:
		out := make(map[string]any, len(x))
		for k, val := range x {
			if r.enabled && sensitiveKey(k) {
				out[k] = redactedValue
				continue
			}
			out[k] = r.String(val)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, elem := range x {
			out[i] = r.Value(elem, depth+1)
		}
		return out
	case []string:
		out := make([]any, len(x))
		for i, elem := range x {
			out[i] = r.String(elem)
		}
		return out
	case bool, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return x
	default:
		return r.String(fmt.Sprintf("%v", x))
	}
}
