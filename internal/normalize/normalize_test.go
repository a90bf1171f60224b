package normalize

import "testing"

func TestAppIDPassthrough(t *testing.T) {
	if got := AppID("  com.mail ", false); got != "com.mail" {
		t.Fatalf("got %q", got)
	}
	if got := AppID("", false); got != "" {
		t.Fatalf("empty id must stay empty, got %q", got)
	}
}

func TestAppIDHashing(t *testing.T) {
	a := AppID("com.browser", true)
	b := AppID("com.browser", true)
	if a != b {
		t.Fatalf("hashing must be deterministic: %q vs %q", a, b)
	}
	if len(a) != 16 {
		t.Fatalf("hash length = %d, want 16 hex chars", len(a))
	}
	if a == "com.browser" {
		t.Fatalf("hashed id must not equal the raw id")
	}
}
