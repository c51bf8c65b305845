package util

import "strings"

// ValidKey reports whether key is usable: non-empty and not only whitespace.
func ValidKey(key string) bool {
	return strings.TrimSpace(key) != ""
}

// StorageKey prefixes key with the namespace when one is set.
func StorageKey(ns, key string) string {
	if ns == "" {
		return key
	}
	return ns + ":" + key
}
