package transcribe

import (
	"strings"

	"github.com/ATAboukhadra/T30-Mazad/internal/knowledge"
	"github.com/ATAboukhadra/T30-Mazad/pkg/provider/asr"
)

// Aggregate folds multiple recognition passes into one consensus result.
//
// The pass with the most tokens becomes the reference (ties keep the lowest
// pass index). Every other pass's tokens are assigned to the reference token
// they overlap most in time, and each reference position is then decided by
// vote: cumulative confidence when every contributing token carries one,
// plain majority otherwise. Ties keep the reference pass's word. The result
// is deterministic for a given pass order, independent of how the passes
// were produced.
func Aggregate(passes []asr.PassResult) asr.PassResult {
	passes = nonEmpty(passes)
	switch len(passes) {
	case 0:
		return asr.PassResult{}
	case 1:
		return passes[0]
	}

	ref := referenceIndex(passes)
	cells := make([]cell, len(passes[ref].Tokens))
	for i, tok := range passes[ref].Tokens {
		cells[i].add(tok, true)
	}

	for p, pass := range passes {
		if p == ref {
			continue
		}
		for _, tok := range pass.Tokens {
			if i, ok := bestOverlap(passes[ref].Tokens, tok); ok {
				cells[i].add(tok, false)
			}
		}
	}

	tokens := make([]asr.Token, len(cells))
	words := make([]string, len(cells))
	for i := range cells {
		refTok := passes[ref].Tokens[i]
		tokens[i] = cells[i].decide(refTok)
		words[i] = tokens[i].Text
	}

	return asr.PassResult{
		Text:   strings.Join(words, " "),
		Tokens: tokens,
	}
}

func nonEmpty(passes []asr.PassResult) []asr.PassResult {
	out := passes[:0:0]
	for _, p := range passes {
		if len(p.Tokens) > 0 {
			out = append(out, p)
		}
	}
	return out
}

// referenceIndex picks the pass with the most tokens, lowest index first.
func referenceIndex(passes []asr.PassResult) int {
	ref := 0
	for i, p := range passes {
		if len(p.Tokens) > len(passes[ref].Tokens) {
			ref = i
		}
	}
	return ref
}

// bestOverlap returns the index of the reference token sharing the largest
// time overlap with tok, or false when tok overlaps none of them.
func bestOverlap(refTokens []asr.Token, tok asr.Token) (int, bool) {
	best := -1
	bestOv := 0.0
	for i, ref := range refTokens {
		ov := min(ref.End, tok.End) - max(ref.Start, tok.Start)
		if ov > bestOv {
			best = i
			bestOv = ov
		}
	}
	return best, best >= 0
}

// variant accumulates the votes for one spelling at one reference position.
type variant struct {
	text    string
	count   int
	confSum float64
	confN   int
	isRef   bool
}

// cell collects all tokens assigned to one reference position.
type cell struct {
	variants []*variant
	total    int
	withConf int
}

func (c *cell) add(tok asr.Token, isRef bool) {
	c.total++
	if tok.Confidence != nil {
		c.withConf++
	}
	key := knowledge.Normalize(tok.Text)
	var v *variant
	for _, cand := range c.variants {
		if knowledge.Normalize(cand.text) == key {
			v = cand
			break
		}
	}
	if v == nil {
		v = &variant{text: tok.Text}
		c.variants = append(c.variants, v)
	}
	v.count++
	if tok.Confidence != nil {
		v.confSum += *tok.Confidence
		v.confN++
	}
	if isRef {
		v.isRef = true
	}
}

// decide resolves the cell to a single consensus token, anchored on the
// reference token's timing.
func (c *cell) decide(refTok asr.Token) asr.Token {
	useConf := c.withConf == c.total && c.total > 0

	var winner *variant
	for _, v := range c.variants {
		if winner == nil || c.beats(v, winner, useConf) {
			winner = v
		}
	}
	if winner == nil {
		return refTok
	}

	tok := asr.Token{
		Text:  winner.text,
		Start: refTok.Start,
		End:   refTok.End,
		Pass:  refTok.Pass,
	}
	if winner.confN > 0 {
		mean := winner.confSum / float64(winner.confN)
		tok.Confidence = &mean
	}
	return tok
}

// beats reports whether a outranks b under the cell's voting rule. Ties go
// to the reference pass's spelling.
func (c *cell) beats(a, b *variant, useConf bool) bool {
	if useConf {
		if a.confSum != b.confSum {
			return a.confSum > b.confSum
		}
	} else if a.count != b.count {
		return a.count > b.count
	}
	return a.isRef && !b.isRef
}
