package stamps

import (
	"strings"
	"testing"
)

func TestFormatEmpty(t *testing.T) {
	if got := Format(""); got != "" {
		t.Fatalf("Format(\"\") = %q, want empty", got)
	}
}

func TestFormatShortLineUnchanged(t *testing.T) {
	if got := Format("Hack Club"); got != "Hack Club" {
		t.Fatalf("Format = %q, want unchanged", got)
	}
}

func TestFormatKeepsExistingBreaks(t *testing.T) {
	got := Format("1x stickers\n1x card")
	want := "1x stickers\n1x card"
	if got != want {
		t.Fatalf("Format = %q, want %q", got, want)
	}
}

func TestFormatSplitsOnWordBoundaries(t *testing.T) {
	got := Format("Haxmas 2024 Winner")
	want := "Haxmas 2024\nWinner"
	if got != want {
		t.Fatalf("Format = %q, want %q", got, want)
	}
}

func TestFormatForceSplitsLongWords(t *testing.T) {
	got := Format("Congratulations")
	want := "Congratulat\nions"
	if got != want {
		t.Fatalf("Format = %q, want %q", got, want)
	}
}

func TestFormatLineLengthLimit(t *testing.T) {
	got := Format("Hack Club\nHaxmas 2024 Winner Congratulations")
	for _, line := range strings.Split(got, "\n") {
		if len(line) > MaxLineLength {
			t.Fatalf("line %q exceeds %d chars", line, MaxLineLength)
		}
	}
}

func TestFormatDropsEmptyLines(t *testing.T) {
	got := Format("a\n\n\nb")
	want := "a\nb"
	if got != want {
		t.Fatalf("Format = %q, want %q", got, want)
	}
}

func TestFormatForDisplay(t *testing.T) {
	got := FormatForDisplay("1x stickers\n1x card")
	want := "  > 1x stickers\n  > 1x card"
	if got != want {
		t.Fatalf("FormatForDisplay = %q, want %q", got, want)
	}

	if got := FormatForDisplay(""); got != "" {
		t.Fatalf("FormatForDisplay(\"\") = %q, want empty", got)
	}
}
