package pagekey

import (
	"fmt"
	"sort"
	"strings"
)

// DefaultNamespace is the storage namespace prefix used when none is configured.
const DefaultNamespace = "dashlens"

// LogicalKeyFilters is the logical key under which the persisted filter
// snapshot for a page is stored.
const LogicalKeyFilters = "filters"

// Sanitize normalizes a raw page identifier (usually a URL pathname) into a
// storage-safe component: lowercase, alphanumerics plus dash/underscore,
// everything else collapsed to a dash. An empty or fully-stripped input maps
// to "home" so every pathname resolves to some namespace.
func Sanitize(raw string) string {
	raw = strings.ToLower(strings.TrimSpace(raw))
	raw = strings.Trim(raw, "/")
	if raw == "" {
		return "home"
	}

	builder := strings.Builder{}
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z':
			builder.WriteRune(r)
		case r >= '0' && r <= '9':
			builder.WriteRune(r)
		case r == '-' || r == '_':
			builder.WriteRune(r)
		default:
			builder.WriteRune('-')
		}
	}
	result := strings.Trim(builder.String(), "-")
	for strings.Contains(result, "--") {
		result = strings.ReplaceAll(result, "--", "-")
	}
	if result == "" {
		return "home"
	}
	return result
}

// StorageKey composes the durable-storage key pattern
// <namespace>:<sanitized-page-id>:<logical-key>.
func StorageKey(namespace, pageID, logicalKey string) string {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if logicalKey == "" {
		logicalKey = LogicalKeyFilters
	}
	return fmt.Sprintf("%s:%s:%s", namespace, Sanitize(pageID), logicalKey)
}

// SplitStorageKey is the inverse of StorageKey. It returns an error when the
// key does not have exactly three components.
func SplitStorageKey(key string) (namespace, pageID, logicalKey string, err error) {
	parts := strings.Split(key, ":")
	if len(parts) != 3 {
		return "", "", "", fmt.Errorf("storage key %q must have 3 components, got %d", key, len(parts))
	}
	for i, part := range parts {
		if part == "" {
			return "", "", "", fmt.Errorf("storage key %q component %d is empty", key, i)
		}
	}
	return parts[0], parts[1], parts[2], nil
}

// EncodeParams renders a flat parameter map as a stable, order-independent
// string ("a=1&b=2", keys sorted). It is used wherever two parameter maps must
// compare equal by value: cache signatures and derived filter keys.
func EncodeParams(params map[string]string) string {
	if len(params) == 0 {
		return ""
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	builder := strings.Builder{}
	for i, k := range keys {
		if i > 0 {
			builder.WriteByte('&')
		}
		builder.WriteString(k)
		builder.WriteByte('=')
		builder.WriteString(params[k])
	}
	return builder.String()
}
