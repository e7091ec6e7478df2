package format

import "testing"

func TestEscapeMarkdownV2(t *testing.T) {
	got := EscapeMarkdownV2("a_b*c.d!e (f)")
	want := `a\_b\*c\.d\!e \(f\)`
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestEscapeMarkdownV1LeavesV2Specials(t *testing.T) {
	got := EscapeMarkdown("dots. and _underscores_")
	want := `dots. and \_underscores\_`
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestEscapePassesUnicodeThrough(t *testing.T) {
	in := "привет 🙂"
	if got := EscapeMarkdownV2(in); got != in {
		t.Fatalf("got %q, want %q", got, in)
	}
}
