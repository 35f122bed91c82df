package artifact

import "testing"

func TestSlug_LowercasesAndCollapsesPunctuation(t *testing.T) {
	got := Slug("PostgreSQL: Connection pooling!!")
	want := "postgresql-connection-pooling"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestSlug_TruncatesTo40Chars(t *testing.T) {
	got := Slug("this is a very long research query that exceeds the forty character limit by quite a lot")
	if len(got) > 40 {
		t.Fatalf("slug %q exceeds 40 characters (%d)", got, len(got))
	}
}

func TestSlug_CollapsesWhitespaceAndDashes(t *testing.T) {
	got := Slug("foo   bar---baz")
	want := "foo-bar-baz"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestSlug_TrimsLeadingAndTrailingDashes(t *testing.T) {
	got := Slug("!!!hello!!!")
	want := "hello"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
