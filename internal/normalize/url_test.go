package normalize

import "testing"

func TestCanonicalizeURL_StripsWWWAndTracking(t *testing.T) {
	got := CanonicalizeURL("https://www.example.com/path/?utm_source=x&id=1")
	want := "example.com/path?id=1"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestCanonicalizeURL_LowercasesHost(t *testing.T) {
	got := CanonicalizeURL("https://Example.COM/Path")
	want := "example.com/Path"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestCanonicalizeURL_StripsTrailingSlash(t *testing.T) {
	got := CanonicalizeURL("https://example.com/path/")
	want := "example.com/path"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestCanonicalizeURL_TrackingParamsInDifferentPositions(t *testing.T) {
	a := CanonicalizeURL("https://example.com/x?a=1&utm_source=foo&b=2")
	b := CanonicalizeURL("https://example.com/x?a=1&b=2")
	if a != b {
		t.Fatalf("expected equal canonical keys, got %q and %q", a, b)
	}
}

func TestCanonicalizeURL_FallsBackOnParseFailure(t *testing.T) {
	got := CanonicalizeURL("HTTPS://Not A Valid URL///")
	if got == "" {
		t.Fatal("expected a non-empty fallback key")
	}
}

func TestCanonicalizeURL_IsPureFunction(t *testing.T) {
	input := "https://www.A.com/x?utm_source=y"
	first := CanonicalizeURL(input)
	second := CanonicalizeURL(input)
	if first != second {
		t.Fatalf("expected deterministic output, got %q then %q", first, second)
	}
}
