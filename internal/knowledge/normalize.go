package knowledge

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// normalizer strips diacritics by decomposing to NFD, removing combining
// marks, and recomposing. Safe for concurrent use.
var normalizer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// runeFolds maps letters with no combining-mark decomposition to their base
// forms. NFD stripping leaves these untouched, but roster names carry them
// (Sørloth, Łukasz, Đorđević).
var runeFolds = map[rune]string{
	'ø': "o",
	'ł': "l",
	'đ': "d",
	'ð': "d",
	'þ': "th",
	'æ': "ae",
	'œ': "oe",
	'ß': "ss",
}

// Normalize maps a name or span to its canonical comparison form: lowercase,
// diacritics stripped, punctuation removed, internal whitespace collapsed to
// single spaces. "Kylian Mbappé" and "kylian  mbappe" normalize identically.
func Normalize(s string) string {
	folded, _, err := transform.String(normalizer, s)
	if err != nil {
		// Transform only fails on malformed UTF-8; fall back to the input
		// so a bad byte never drops a whole record.
		folded = s
	}

	var sb strings.Builder
	sb.Grow(len(folded))
	for _, r := range strings.ToLower(folded) {
		if rep, ok := runeFolds[r]; ok {
			sb.WriteString(rep)
			continue
		}
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			sb.WriteRune(r)
		case unicode.IsSpace(r) || r == '-':
			sb.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}

// tokenize splits s into normalized word tokens.
func tokenize(s string) []string {
	return strings.Fields(Normalize(s))
}

// lastWord returns the final whitespace-separated word of name, or "" when
// name has no words. Used for last-name-only indexing.
func lastWord(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}
