// Package match locates knowledge-base names inside a transcript by sliding
// n-gram windows over the token stream and scoring each window against every
// known name form with phonetic and string similarity.
package match

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// Similarity scores how closely a transcribed span resembles a name form.
// Both inputs are normalized before scoring. Scores are in [0, 100].
type Similarity interface {
	Score(span, name string) float64
}

// JaroWinkler is the default Similarity. It takes the best of three
// comparison strategies so multi-word mismatches are handled robustly:
// the full strings, the space-stripped strings, and the mean of the
// position-aligned token scores.
type JaroWinkler struct{}

// Score implements Similarity.
func (JaroWinkler) Score(span, name string) float64 {
	spanTokens := strings.Fields(span)
	nameTokens := strings.Fields(name)
	if len(spanTokens) == 0 || len(nameTokens) == 0 {
		return 0
	}

	score := matchr.JaroWinkler(span, name, false)

	if len(spanTokens) > 1 || len(nameTokens) > 1 {
		concatSpan := strings.Join(spanTokens, "")
		concatName := strings.Join(nameTokens, "")
		if s := matchr.JaroWinkler(concatSpan, concatName, false); s > score {
			score = s
		}
	}

	// Aligned token scores only apply when the word counts line up. The
	// mean is used rather than the best single token: one strong surname
	// must not carry an otherwise unrelated span.
	if len(spanTokens) == len(nameTokens) {
		var sum float64
		for i := range spanTokens {
			sum += matchr.JaroWinkler(spanTokens[i], nameTokens[i], false)
		}
		if mean := sum / float64(len(spanTokens)); mean > score {
			score = mean
		}
	}

	return score * 100
}

// phoneticCodes returns the union of Double Metaphone codes over the given
// tokens. Codes the encoder cannot produce (very short or vowel-only words)
// are excluded.
func phoneticCodes(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

// codesOverlap reports whether the two code sets share at least one code.
func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}
