package util

import "testing"

func TestValidKey(t *testing.T) {
	cases := map[string]bool{
		"":         false,
		" ":        false,
		"\t\n ":    false,
		"k":        true,
		" padded ": true,
	}
	for in, want := range cases {
		if got := ValidKey(in); got != want {
			t.Fatalf("ValidKey(%q)=%v want %v", in, got, want)
		}
	}
}

func TestStorageKey(t *testing.T) {
	if got := StorageKey("", "a"); got != "a" {
		t.Fatalf("no namespace: got %q", got)
	}
	if got := StorageKey("app:user", "42"); got != "app:user:42" {
		t.Fatalf("namespaced: got %q", got)
	}
}
