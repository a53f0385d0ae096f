package executor

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
)

// GenerateIdempotencyKey derives a stable 16-character lowercase hex key
// for a (tool, args, session) triple. Args are canonicalized by sorting map
// keys recursively, so reordering argument keys never changes the key,
// while any change to the tool, an argument value, or the session does.
func GenerateIdempotencyKey(toolName string, args map[string]any, sessionID string) string {
	var b strings.Builder
	b.WriteString(toolName)
	b.WriteByte('|')
	writeCanonical(&b, args)
	b.WriteByte('|')
	b.WriteString(sessionID)

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])[:16]
}

func writeCanonical(b *strings.Builder, value any) {
	switch v := value.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			encoded, _ := json.Marshal(k)
			b.Write(encoded)
			b.WriteByte(':')
			writeCanonical(b, v[k])
		}
		b.WriteByte('}')
	case []any:
		b.WriteByte('[')
		for i, inner := range v {
			if i > 0 {
				b.WriteByte(',')
			}
			writeCanonical(b, inner)
		}
		b.WriteByte(']')
	default:
		encoded, _ := json.Marshal(v)
		b.Write(encoded)
	}
}
