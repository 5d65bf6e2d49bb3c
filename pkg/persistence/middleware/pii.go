package middleware

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/aretw0/wabuilder/pkg/ports"
)

// Mask replaces the values of masked keys.
const Mask = "***"

type piiMiddleware struct {
	ports.SessionCache
	patterns []*regexp.Regexp
}

// NewPIIMiddleware creates a middleware that masks session values whose key
// matches one of the patterns before they reach the cache. User props saved
// under e.g. "password" or "cpf" never leave the process in clear.
func NewPIIMiddleware(patternStrings []string) (CacheMiddleware, error) {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid pii pattern %q: %w", p, err)
		}
		patterns[i] = re
	}
	return func(next ports.SessionCache) ports.SessionCache {
		return &piiMiddleware{SessionCache: next, patterns: patterns}
	}, nil
}

func (m *piiMiddleware) Store(ctx context.Context, sessionID string, data map[string]any, ttl time.Duration) error {
	// Deep clone to avoid side effects on the caller's map.
	cloned := deepCopyMap(data)
	maskMap(cloned, m.patterns)
	return m.SessionCache.Store(ctx, sessionID, cloned, ttl)
}

// Helpers

func deepCopyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		// Handle nested maps
		if subMap, ok := v.(map[string]any); ok {
			out[k] = deepCopyMap(subMap)
		} else {
			out[k] = v // shallow copy of value
		}
	}
	return out
}

func maskMap(m map[string]any, patterns []*regexp.Regexp) {
	for k, v := range m {
		// Check key against patterns
		masked := false
		for _, p := range patterns {
			if p.MatchString(k) {
				m[k] = Mask
				masked = true
				break
			}
		}

		// Recurse if map
		if subMap, ok := v.(map[string]any); ok && !masked {
			maskMap(subMap, patterns)
		}
	}
}
