package audit

import "strings"

// Redacted is the literal that replaces sensitive values on disk.
const Redacted = "[REDACTED]"

// sensitiveKeyParts flags any parameter key containing one of these
// substrings, matched case-insensitively.
var sensitiveKeyParts = []string{
	"key", "token", "password", "secret", "credential", "auth",
}

// Redact returns a copy of the parameter tree with every sensitive value
// replaced by the Redacted literal. Structure is preserved; nested maps and
// lists are walked recursively. The input is not mutated.
func Redact(params map[string]any) map[string]any {
	if params == nil {
		return nil
	}
	out := make(map[string]any, len(params))
	for key, value := range params {
		if isSensitiveKey(key) {
			out[key] = Redacted
			continue
		}
		out[key] = redactValue(value)
	}
	return out
}

func redactValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		return Redact(v)
	case []any:
		out := make([]any, len(v))
		for i, inner := range v {
			out[i] = redactValue(inner)
		}
		return out
	default:
		return value
	}
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, part := range sensitiveKeyParts {
		if strings.Contains(lower, part) {
			return true
		}
	}
	return false
}
