// Package episodekey derives and parses the canonical identity used for
// every per-episode operation in podbay. A key joins the podcast and episode
// titles with a reserved non-printable delimiter so the pair can round-trip
// losslessly through job maps, log fields, and the metadata store.
package episodekey

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"podbay/internal/textutil"
)

// Delimiter is the canonical key separator: the ASCII unit separator, which
// cannot occur in natural podcast or episode titles.
const Delimiter = "\x1f"

// LegacyDelimiter is the literal pipe used by records written before the key
// schema change. Parsing falls back to it; new keys never use it.
const LegacyDelimiter = "|"

// Key is the opaque canonical identity of one episode.
type Key string

// Make builds a Key from podcast and episode titles. Titles are
// NFC-normalized and whitespace-trimmed so visually identical strings map to
// the same key regardless of their Unicode composition.
func Make(podcastTitle, episodeTitle string) Key {
	p := norm.NFC.String(strings.TrimSpace(podcastTitle))
	e := norm.NFC.String(strings.TrimSpace(episodeTitle))
	return Key(p + Delimiter + e)
}

// Parse recovers the (podcastTitle, episodeTitle) pair from a key. The
// canonical delimiter is tried first; the legacy pipe is a fallback for old
// records. A key matching neither returns ok=false and callers must treat the
// record as unidentifiable rather than guessing.
//
// A legacy key containing more than one pipe is ambiguous: a naive split
// cannot tell which pipe was the separator, so Parse refuses it. Callers that
// hold the original title fields (the metadata store does) should prefer
// those over parsing.
func Parse(key Key) (podcastTitle, episodeTitle string, ok bool) {
	raw := string(key)
	if p, e, found := strings.Cut(raw, Delimiter); found {
		return p, e, true
	}
	if strings.Count(raw, LegacyDelimiter) == 1 {
		p, e, _ := strings.Cut(raw, LegacyDelimiter)
		return p, e, true
	}
	return "", "", false
}

// BaseName returns the deterministic filename stem shared by every artifact
// of an episode: sanitized podcast title, underscore, sanitized episode
// title. Audio, caption, and sidecar files all derive from this stem.
func BaseName(podcastTitle, episodeTitle string) string {
	p := textutil.SanitizeFileName(textutil.CollapseWhitespace(podcastTitle))
	e := textutil.SanitizeFileName(textutil.CollapseWhitespace(episodeTitle))
	if p == "" {
		p = "unknown"
	}
	if e == "" {
		e = "unknown"
	}
	return p + "_" + e
}

// BaseNameForKey is BaseName applied to a parsed key. ok=false mirrors Parse.
func BaseNameForKey(key Key) (string, bool) {
	p, e, ok := Parse(key)
	if !ok {
		return "", false
	}
	return BaseName(p, e), true
}

// String implements fmt.Stringer with the delimiter made visible for logs.
func (k Key) String() string {
	return strings.ReplaceAll(string(k), Delimiter, "␟")
}
