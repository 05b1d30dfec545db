package index

import (
	"strings"
	"testing"
)

func TestEmbedPrefix(t *testing.T) {
	cases := []struct {
		name string
		text string
		max  int
		want string
	}{
		{"fits", "Short text.", 100, "Short text."},
		{"no limit", "Anything goes.", 0, "Anything goes."},
		{"sentence boundary", "The sky is blue. Grass is green and tall.", 24, "The sky is blue."},
		{"newline boundary", "first line\nsecond line keeps going", 16, "first line"},
		{"boundary too early", "Hi. Then a very long sentence without an end", 30, "Hi. Then a very long sentence "},
		{"no boundary", strings.Repeat("ä", 25), 10, strings.Repeat("ä", 10)},
		{"abbreviation without space", "Version 1.2.3 is out now", 12, "Version 1.2."},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := embedPrefix(c.text, c.max); got != c.want {
				t.Fatalf("embedPrefix(%q, %d) = %q, want %q", c.text, c.max, got, c.want)
			}
		})
	}
}

func TestLastSentenceEnd(t *testing.T) {
	if got := lastSentenceEnd("no terminator"); got != 0 {
		t.Fatalf("got %d", got)
	}
	if got := lastSentenceEnd("One. Two! Three"); got != len("One. Two!") {
		t.Fatalf("got %d", got)
	}
	if got := lastSentenceEnd("ends with dot."); got != 0 {
		t.Fatalf("a trailing terminator needs following whitespace, got %d", got)
	}
}
