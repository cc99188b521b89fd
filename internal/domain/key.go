package domain

import "strings"

// NormalizeKey trims leading/trailing whitespace from a caller-supplied
// idempotency key. An empty result means the caller did not provide a usable
// key.
func NormalizeKey(s string) string {
	return strings.TrimSpace(s)
}

// FullKey composes the namespaced key the store sees. The prefix keeps
// multiple engines sharing one backend from colliding.
func FullKey(prefix, key string) string {
	return prefix + key
}
