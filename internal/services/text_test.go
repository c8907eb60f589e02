package services

import (
	"strings"
	"testing"
)

func TestCleanLine(t *testing.T) {
	cases := map[string]string{
		"  Blue   bike  ":     "Blue bike",
		"<b>Desk</b>\n\tlamp": "<b>Desk</b> lamp",
		"Tom &amp; Jerry":     "Tom &amp; Jerry",
		"e\u0301te\u0301":     "\u00e9t\u00e9", // NFC
	}
	for in, want := range cases {
		if got := cleanLine(in); got != want {
			t.Fatalf("cleanLine(%q) = %q; want %q", in, got, want)
		}
	}
}

func TestCleanText_KeepsContentVerbatim(t *testing.T) {
	cases := map[string]string{
		"if a<b and c>d then swap":          "if a<b and c>d then swap",
		"&lt;b&gt;bold&lt;/b&gt;":           "&lt;b&gt;bold&lt;/b&gt;",
		"<script>x</script>":                "<script>x</script>",
		"  hello   there \r\n\r\n\r\nnext ": "hello   there \n\n\nnext",
		"A\u030a":                           "\u00c5",
	}
	for in, want := range cases {
		if got := cleanText(in); got != want {
			t.Fatalf("cleanText(%q) = %q; want %q", in, got, want)
		}
	}
	if cleanText("  \r\n\t ") != "" {
		t.Fatalf("whitespace-only text should be empty")
	}
}

func TestTooLongAndSlug(t *testing.T) {
	if tooLong("héllo", 5) || !tooLong("héllo!", 5) || tooLong(strings.Repeat("x", 100), 0) {
		t.Fatalf("tooLong rune accounting is off")
	}
	if got := listingSlug("Blue Bike!", "1234567890ab"); got != "blue-bike-12345678" {
		t.Fatalf("listingSlug = %q", got)
	}
	if got := listingSlug("!!!", "abc"); got != "abc" {
		t.Fatalf("listingSlug fallback = %q", got)
	}
}
