package textutil

import (
	"sort"
	"strings"
	"unicode/utf8"
)

// Gateway metadata limits (Stripe: 50 keys, 40 character keys, 500 character values).
const (
	maxMetadataKeys     = 50
	maxMetadataKeyLen   = 40
	maxMetadataValueLen = 500
)

// Metadata trims keys and values, drops entries with an empty key or value and clips the rest to
// the gateway limits. Keys beyond the limit are dropped in sorted order so the result is stable.
func Metadata(values map[string]string) map[string]string {
	if len(values) == 0 {
		return nil
	}
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	out := make(map[string]string, len(values))
	for _, key := range keys {
		k := clipRunes(strings.TrimSpace(key), maxMetadataKeyLen)
		v := clipRunes(strings.TrimSpace(values[key]), maxMetadataValueLen)
		if k == "" || v == "" {
			continue
		}
		if _, exists := out[k]; exists {
			continue
		}
		out[k] = v
		if len(out) == maxMetadataKeys {
			break
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func clipRunes(value string, limit int) string {
	if utf8.RuneCountInString(value) <= limit {
		return value
	}
	return string([]rune(value)[:limit])
}
