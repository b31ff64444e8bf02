package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Slugify converts text into a filesystem-safe slug: lowercase, with
// everything outside letters, digits, underscores, spaces, and hyphens
// dropped, and runs of spaces/hyphens collapsed to a single hyphen.
func Slugify(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToLower(strings.TrimSpace(text)) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '_':
			b.WriteRune(r)
		case unicode.IsSpace(r), r == '-':
			b.WriteRune(' ')
		}
	}
	fields := strings.Fields(b.String())
	return strings.Join(fields, "-")
}

var keyFolder = cases.Fold()

// NormalizeKey canonicalizes a source string for cache lookups: Unicode NFC
// composition, case folding, and interior whitespace collapsed to single
// spaces. Lookup and store must both go through this or equivalent strings
// silently miss each other.
func NormalizeKey(text string) string {
	folded := keyFolder.String(norm.NFC.String(text))
	return strings.Join(strings.Fields(folded), " ")
}

// PadIdentifier left-pads a numeric catalog identifier with zeros to the
// given width, matching the catalog's directory naming. Identifiers with a
// trailing letter suffix keep the suffix outside the padding ("12A" → "012A").
func PadIdentifier(id string, width int) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return id
	}
	digits := 0
	for _, r := range id {
		if r < '0' || r > '9' {
			break
		}
		digits++
	}
	if digits == 0 {
		return id
	}
	numeric, suffix := id[:digits], id[digits:]
	for len(numeric) < width {
		numeric = "0" + numeric
	}
	return numeric + suffix
}
