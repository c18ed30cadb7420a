// Package cache defines the expiring key-value layer that shields the
// engine from tool latency and cost. Entries are shared across runs and
// products; keys are derived from (tool name, normalized arguments) so that
// trivially different spellings of the same request collide.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"
)

// Cache is an expiring key-value store. Get treats expired entries as
// absent. Implementations must be safe for concurrent use from many runs;
// a racing Put on the same key resolves last-writer-wins.
type Cache interface {
	Get(ctx context.Context, key string) (json.RawMessage, bool, error)
	Put(ctx context.Context, key string, value json.RawMessage, ttl time.Duration) error
}

// Key derives the cache key for a tool call: `<tool>:<digest>` where the
// digest covers the canonical JSON of the normalized arguments. String
// values are lower-cased and whitespace-normalized so "iPhone 17" and
// "iphone 17 " produce the same key. The tool-name prefix is the
// cross-process key namespace.
func Key(toolName string, args map[string]any) string {
	b, err := json.Marshal(normalizeValue(args))
	if err != nil {
		// Arguments already passed schema validation; non-serializable
		// args cannot occur for map[string]any inputs.
		b = []byte("{}")
	}
	sum := sha256.Sum256(b)
	return toolName + ":" + hex.EncodeToString(sum[:])[:16]
}

// normalizeValue lower-cases and whitespace-collapses strings, recursing
// into maps and slices. encoding/json writes map keys in sorted order, so
// the marshaled form is canonical.
func normalizeValue(v any) any {
	switch t := v.(type) {
	case string:
		return strings.Join(strings.Fields(strings.ToLower(t)), " ")
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalizeValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalizeValue(val)
		}
		return out
	default:
		return v
	}
}

// ContentKey derives a key from arbitrary content rather than tool
// arguments. Used for synthesized reports, which are keyed by the digest of
// the collected inputs they were built from.
func ContentKey(class string, content any) string {
	b, err := json.Marshal(content)
	if err != nil {
		b = []byte("null")
	}
	sum := sha256.Sum256(b)
	return class + ":" + hex.EncodeToString(sum[:])[:16]
}
