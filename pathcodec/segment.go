package pathcodec

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MaxSegmentLength bounds a single segment in bytes.
const MaxSegmentLength = 128

// Segment derives the path segment for a display name. Names that differ only
// in case, accents, or punctuation map to the same segment, so sibling collision
// checks on segments are case-insensitive.
func Segment(name string) (string, error) {
	stripped, _, err := transform.String(
		transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC),
		strings.TrimSpace(name),
	)
	if err != nil {
		return "", &InvalidSegmentError{Segment: name, Reason: err.Error()}
	}
	folded := cases.Fold().String(stripped)

	var b strings.Builder
	dash := false
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			dash = false
			b.WriteRune(r)
			continue
		}
		dash = true
	}

	seg := b.String()
	if seg == "" {
		return "", &InvalidSegmentError{Segment: name, Reason: "name has no letters or digits"}
	}
	if len(seg) > MaxSegmentLength {
		return "", &InvalidSegmentError{Segment: name, Reason: "segment exceeds maximum length"}
	}
	return seg, nil
}
