package llm

import "strings"

// MergeProviderOptions deep-merges provider option maps with last-writer-wins
// semantics, normalizing snake_case keys to camelCase so per-provider
// passthrough options can be written either way in config. Nested maps merge
// recursively; any other value type replaces the previous one wholesale.
func MergeProviderOptions(partials ...map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{})
	for _, partial := range partials {
		mergeInto(merged, partial)
	}
	return merged
}

func mergeInto(dst, src map[string]interface{}) {
	for key, val := range src {
		key = camelCase(key)
		if sub, ok := val.(map[string]interface{}); ok {
			existing, ok := dst[key].(map[string]interface{})
			if !ok {
				existing = make(map[string]interface{})
			}
			mergeInto(existing, sub)
			dst[key] = existing
			continue
		}
		dst[key] = val
	}
}

// camelCase converts snake_case to camelCase; keys without underscores pass
// through untouched.
func camelCase(key string) string {
	if !strings.Contains(key, "_") {
		return key
	}
	parts := strings.Split(key, "_")
	var sb strings.Builder
	for i, part := range parts {
		if part == "" {
			continue
		}
		if sb.Len() == 0 && i == 0 {
			sb.WriteString(part)
			continue
		}
		sb.WriteString(strings.ToUpper(part[:1]))
		sb.WriteString(part[1:])
	}
	return sb.String()
}
