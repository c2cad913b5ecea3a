// Package whisper provides the two whisper.cpp-backed recognizers:
//
//   - [Native] runs inference in-process through the whisper.cpp CGO
//     bindings; the model is loaded once and shared across passes.
//   - [Server] talks to a running whisper-server binary over its REST API
//     (POST /inference) and needs no CGO at build time.
//
// Both produce word-level tokens: whisper reports timing per decoded
// segment, so each segment's text is split into words and the segment's
// time range is distributed evenly across them. Token confidence is the
// segment's mean token probability for the native backend; the server API
// does not expose probabilities, so its tokens carry nil confidence.
package whisper

import (
	"regexp"

	"github.com/ATAboukhadra/T30-Mazad/pkg/provider/asr"
)

const defaultLanguage = "en"

// wordRE matches word tokens: letter runs with internal apostrophes or
// hyphens, or digit runs. Punctuation never forms a token.
var wordRE = regexp.MustCompile(`[\p{L}\p{M}]+(?:['-][\p{L}\p{M}]+)*|\p{N}+`)

// SegmentTokens splits a decoded segment's text into word tokens and
// distributes the segment's [start, end) time range evenly across them.
// conf is attached to every produced token; it may be nil.
func SegmentTokens(text string, start, end float64, conf *float64) []asr.Token {
	words := wordRE.FindAllString(text, -1)
	if len(words) == 0 {
		return nil
	}

	span := end - start
	if span < 0 {
		span = 0
	}
	step := span / float64(len(words))

	tokens := make([]asr.Token, len(words))
	for i, w := range words {
		tokens[i] = asr.Token{
			Text:       w,
			Start:      start + float64(i)*step,
			End:        start + float64(i+1)*step,
			Confidence: conf,
		}
	}
	// Pin the last token's end to the segment end to avoid float drift.
	tokens[len(tokens)-1].End = end
	return tokens
}
