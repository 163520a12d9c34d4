package episodekey_test

import (
	"strings"
	"testing"

	"podbay/internal/episodekey"
)

func TestMakeParseRoundTrip(t *testing.T) {
	cases := []struct {
		podcast string
		episode string
	}{
		{"P1", "E1"},
		{"The Daily", "Monday, March 3"},
		{"Tech | Culture", "Episode 12"},
		{"Unicode Café", "Über Episode"},
		{"spaced  ", "  titles"},
	}
	for _, tc := range cases {
		key := episodekey.Make(tc.podcast, tc.episode)
		p, e, ok := episodekey.Parse(key)
		if !ok {
			t.Fatalf("Parse(Make(%q, %q)) not ok", tc.podcast, tc.episode)
		}
		if p != strings.TrimSpace(tc.podcast) || e != strings.TrimSpace(tc.episode) {
			t.Fatalf("round trip (%q, %q) -> (%q, %q)", tc.podcast, tc.episode, p, e)
		}
	}
}

func TestParseLegacyDelimiter(t *testing.T) {
	p, e, ok := episodekey.Parse(episodekey.Key("Old Show|Old Episode"))
	if !ok || p != "Old Show" || e != "Old Episode" {
		t.Fatalf("legacy parse = (%q, %q, %v)", p, e, ok)
	}
}

func TestParseAmbiguousLegacyKeyRefused(t *testing.T) {
	// Two pipes and no canonical delimiter: no defensible split exists.
	if _, _, ok := episodekey.Parse(episodekey.Key("A|B|C")); ok {
		t.Fatal("expected ambiguous legacy key to be unidentifiable")
	}
}

func TestParseUnidentifiable(t *testing.T) {
	if _, _, ok := episodekey.Parse(episodekey.Key("no delimiter at all")); ok {
		t.Fatal("expected parse failure for delimiterless key")
	}
}

func TestCanonicalDelimiterWinsOverLegacy(t *testing.T) {
	// A pipe inside a title must not confuse parsing when the canonical
	// delimiter is present.
	key := episodekey.Make("Tech | Culture", "E1")
	p, e, ok := episodekey.Parse(key)
	if !ok || p != "Tech | Culture" || e != "E1" {
		t.Fatalf("parse = (%q, %q, %v)", p, e, ok)
	}
}

func TestDistinctPodcastsSameEpisodeTitle(t *testing.T) {
	a := episodekey.Make("P1", "Shared Title")
	b := episodekey.Make("P2", "Shared Title")
	if a == b {
		t.Fatal("expected distinct keys for distinct podcasts")
	}
}

func TestBaseName(t *testing.T) {
	if got := episodekey.BaseName("P1", "E1"); got != "P1_E1" {
		t.Fatalf("BaseName = %q", got)
	}
	if got := episodekey.BaseName("A/B", "C?D"); got != "A-B_CD" {
		t.Fatalf("BaseName with unsafe chars = %q", got)
	}
	if got := episodekey.BaseName("", ""); got != "unknown_unknown" {
		t.Fatalf("BaseName empty = %q", got)
	}
}

func TestBaseNameForKey(t *testing.T) {
	base, ok := episodekey.BaseNameForKey(episodekey.Make("P1", "E1"))
	if !ok || base != "P1_E1" {
		t.Fatalf("BaseNameForKey = (%q, %v)", base, ok)
	}
	if _, ok := episodekey.BaseNameForKey(episodekey.Key("ambiguous|a|b")); ok {
		t.Fatal("expected BaseNameForKey to refuse ambiguous key")
	}
}
