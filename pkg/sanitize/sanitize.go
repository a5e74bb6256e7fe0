// Package sanitize normalizes and filters user-supplied text before it is
// stored or broadcast.
package sanitize

import (
	"errors"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// ErrEmpty indicates the input reduced to nothing after sanitization.
var ErrEmpty = errors.New("text empty after sanitization")

// bidiControls covers directional formatting and override code points.
var bidiControls = map[rune]bool{
	'؜': true, // arabic letter mark
	'‎': true, // left-to-right mark
	'‏': true, // right-to-left mark
	'‪': true, // left-to-right embedding
	'‫': true, // right-to-left embedding
	'‬': true, // pop directional formatting
	'‭': true, // left-to-right override
	'‮': true, // right-to-left override
	'⁦': true, // left-to-right isolate
	'⁧': true, // right-to-left isolate
	'⁨': true, // first strong isolate
	'⁩': true, // pop directional isolate
}

// invisibles covers zero-width and invisible formatting code points plus the
// byte-order mark.
var invisibles = map[rune]bool{
	'​': true, // zero width space
	'‌': true, // zero width non-joiner
	'‍': true, // zero width joiner
	'⁠': true, // word joiner
	'⁡': true, // function application
	'⁢': true, // invisible times
	'⁣': true, // invisible separator
	'⁤': true, // invisible plus
	'\uFEFF': true, // byte order mark
}

// Clean normalizes text with NFKC, strips bidirectional controls, combining
// marks and invisible formatting code points, and retains only letters,
// numbers, punctuation, symbols and whitespace. It fails with ErrEmpty when
// the result is empty or all-whitespace.
//
// Clean is deterministic and idempotent: Clean(Clean(x)) == Clean(x) whenever
// the first call succeeds.
func Clean(text string) (string, error) {
	// Stripping an invisible code point can expose a newly composable pair
	// (e.g. Hangul jamo around a zero-width space), so normalize-and-filter
	// runs until it reaches a fixpoint.
	cleaned := normalizeAndFilter(text)
	for {
		next := normalizeAndFilter(cleaned)
		if next == cleaned {
			break
		}
		cleaned = next
	}

	if strings.TrimSpace(cleaned) == "" {
		return "", ErrEmpty
	}
	return cleaned, nil
}

func normalizeAndFilter(text string) string {
	normalized := norm.NFKC.String(text)

	var b strings.Builder
	b.Grow(len(normalized))
	for _, r := range normalized {
		if bidiControls[r] || invisibles[r] {
			continue
		}
		if unicode.IsMark(r) {
			continue
		}
		if unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.IsPunct(r) ||
			unicode.IsSymbol(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
