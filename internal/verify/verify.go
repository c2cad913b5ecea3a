// Package verify runs the third pipeline stage: a second, stricter
// recognition round conditioned only on the names stage two proposed, then
// reconciliation of the two rounds into final per-mention confidences.
package verify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/ATAboukhadra/T30-Mazad/internal/knowledge"
	"github.com/ATAboukhadra/T30-Mazad/internal/match"
	"github.com/ATAboukhadra/T30-Mazad/internal/prompt"
	"github.com/ATAboukhadra/T30-Mazad/pkg/media"
	"github.com/ATAboukhadra/T30-Mazad/pkg/provider/asr"
)

// DefaultDisagreementPenalty scales a candidate's score when the
// verification round does not reproduce the mention.
const DefaultDisagreementPenalty = 0.6

// strictThresholdBump is added to the matching threshold for the
// verification round, capped at 100.
const strictThresholdBump = 5.0

// Match is one reconciled record. FirstScore is absent when only the
// verification round produced the record, SecondScore when only the first
// round did.
type Match struct {
	RecordID    string   `json:"record_id"`
	Name        string   `json:"name"`
	Gram        string   `json:"gram"`
	SpanStart   float64  `json:"span_start"`
	SpanEnd     float64  `json:"span_end"`
	FirstScore  *float64 `json:"first_score,omitempty"`
	SecondScore *float64 `json:"second_score,omitempty"`

	// Agreement is true when the verification round independently matched
	// the same record.
	Agreement       bool    `json:"agreement"`
	FinalConfidence float64 `json:"final_confidence"`
}

// Result is the stage output.
type Result struct {
	Matches []Match `json:"matches"`

	// Prompt is the narrowed prompt the verification round ran with, and
	// Transcript its consensus text. Kept for the stage artifact.
	Prompt     string `json:"prompt"`
	Transcript string `json:"transcript"`
}

// Verifier reconciles stage-two candidates against a verification round.
type Verifier struct {
	rec     asr.Recognizer
	store   *knowledge.Store
	sim     match.Similarity
	minGram, maxGram int
	threshold  float64
	penalty    float64
	charBudget int
	language   string
	logger     *slog.Logger
}

// Option is a functional option for Verifier.
type Option func(*Verifier)

// WithSimilarity replaces the default Jaro-Winkler scorer.
func WithSimilarity(sim match.Similarity) Option {
	return func(v *Verifier) { v.sim = sim }
}

// WithGramRange sets the n-gram window sizes for the verification match.
func WithGramRange(minGram, maxGram int) Option {
	return func(v *Verifier) {
		v.minGram = minGram
		v.maxGram = maxGram
	}
}

// WithThreshold sets the base matching threshold. The verification round
// itself runs slightly stricter.
func WithThreshold(threshold float64) Option {
	return func(v *Verifier) { v.threshold = threshold }
}

// WithDisagreementPenalty overrides the penalty factor in [0, 1].
func WithDisagreementPenalty(p float64) Option {
	return func(v *Verifier) { v.penalty = p }
}

// WithCharBudget bounds the narrowed prompt length.
func WithCharBudget(n int) Option {
	return func(v *Verifier) { v.charBudget = n }
}

// WithLanguage sets the language hint for the verification round.
func WithLanguage(lang string) Option {
	return func(v *Verifier) { v.language = lang }
}

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(v *Verifier) { v.logger = l }
}

// New constructs a Verifier.
func New(rec asr.Recognizer, store *knowledge.Store, opts ...Option) (*Verifier, error) {
	if rec == nil {
		return nil, errors.New("verify: recognizer must not be nil")
	}
	if store == nil {
		return nil, errors.New("verify: store must not be nil")
	}
	v := &Verifier{
		rec:        rec,
		store:      store,
		sim:        match.JaroWinkler{},
		minGram:    match.DefaultMinGram,
		maxGram:    match.DefaultMaxGram,
		threshold:  match.DefaultThreshold,
		penalty:    DefaultDisagreementPenalty,
		charBudget: prompt.DefaultCharBudget,
		logger:     slog.Default(),
	}
	for _, o := range opts {
		o(v)
	}
	if v.penalty < 0 || v.penalty > 1 {
		return nil, fmt.Errorf("verify: penalty must be in [0, 1], got %v", v.penalty)
	}
	return v, nil
}

// Verify runs the verification round over clip and reconciles candidates.
//
// The round is deliberately stricter than the first: a single greedy pass,
// a prompt narrowed to the candidate names (question-filtered when a
// question is given), and a slightly higher matching threshold. Every record
// either round produced appears in the result exactly once: records both
// rounds agree on keep the mean of their best scores, records only one round
// produced are scaled by the disagreement penalty, never dropped.
func (v *Verifier) Verify(ctx context.Context, clip media.Clip, question string, candidates []match.Candidate) (Result, error) {
	if len(candidates) == 0 {
		return Result{}, nil
	}

	promptText := v.buildPrompt(question, candidates)

	pass, err := v.rec.Transcribe(ctx, asr.Request{
		Clip:     clip,
		Prompt:   promptText,
		Language: v.language,
		Task:     asr.TaskTranscribe,
	})
	if err != nil {
		return Result{}, fmt.Errorf("verify: verification round: %w", err)
	}

	second, err := v.secondRound(pass.Tokens)
	if err != nil {
		return Result{}, err
	}

	first := bestPerRecord(candidates)

	var matches []Match
	for id, c := range first {
		m := Match{
			RecordID:   id,
			Name:       c.Name,
			Gram:       c.Gram,
			SpanStart:  c.SpanStart,
			SpanEnd:    c.SpanEnd,
			FirstScore: ptr(c.Score),
		}
		if sc, ok := second[id]; ok {
			m.SecondScore = ptr(sc.Score)
			m.Agreement = true
			m.FinalConfidence = (c.Score + sc.Score) / 2
		} else {
			m.FinalConfidence = c.Score * v.penalty
			v.logger.Debug("verification round missed candidate",
				"record", id,
				"gram", c.Gram,
				"penalized_confidence", m.FinalConfidence)
		}
		matches = append(matches, m)
	}
	for id, c := range second {
		if _, ok := first[id]; ok {
			continue
		}
		matches = append(matches, Match{
			RecordID:        id,
			Name:            c.Name,
			Gram:            c.Gram,
			SpanStart:       c.SpanStart,
			SpanEnd:         c.SpanEnd,
			SecondScore:     ptr(c.Score),
			FinalConfidence: c.Score * v.penalty,
		})
		v.logger.Debug("verification round added record",
			"record", id,
			"gram", c.Gram,
			"penalized_confidence", c.Score*v.penalty)
	}

	sort.SliceStable(matches, func(a, b int) bool {
		if matches[a].FinalConfidence != matches[b].FinalConfidence {
			return matches[a].FinalConfidence > matches[b].FinalConfidence
		}
		if matches[a].Agreement != matches[b].Agreement {
			return matches[a].Agreement
		}
		return matches[a].RecordID < matches[b].RecordID
	})

	return Result{
		Matches:    matches,
		Prompt:     promptText,
		Transcript: pass.Text,
	}, nil
}

// buildPrompt renders the narrowed prompt from the candidate records,
// question-filtered when a question is present.
func (v *Verifier) buildPrompt(question string, candidates []match.Candidate) string {
	seen := make(map[string]struct{}, len(candidates))
	var recs []knowledge.Record
	for _, c := range candidates {
		if _, ok := seen[c.RecordID]; ok {
			continue
		}
		seen[c.RecordID] = struct{}{}
		if rec, ok := v.store.Get(c.RecordID); ok {
			recs = append(recs, rec)
		}
	}
	if question != "" {
		recs = knowledge.FilterByQuestion(question, recs)
	}
	names := make([]string, len(recs))
	for i, rec := range recs {
		names[i] = rec.Name
	}
	return prompt.Render(prompt.DefaultPrefix, names, v.charBudget)
}

// secondRound matches the verification tokens at the stricter threshold and
// returns the best candidate per record.
func (v *Verifier) secondRound(tokens []asr.Token) (map[string]match.Candidate, error) {
	threshold := min(v.threshold+strictThresholdBump, 100)
	m, err := match.New(v.store,
		match.WithSimilarity(v.sim),
		match.WithGramRange(v.minGram, v.maxGram),
		match.WithThreshold(threshold),
		match.WithLogger(v.logger))
	if err != nil {
		return nil, fmt.Errorf("verify: build matcher: %w", err)
	}
	cands, err := m.Match(tokens)
	if err != nil {
		return nil, fmt.Errorf("verify: match verification round: %w", err)
	}
	return bestPerRecord(cands), nil
}

// bestPerRecord collapses candidates to the highest-scoring span per record.
func bestPerRecord(cands []match.Candidate) map[string]match.Candidate {
	best := make(map[string]match.Candidate, len(cands))
	for _, c := range cands {
		if cur, ok := best[c.RecordID]; !ok || c.Score > cur.Score {
			best[c.RecordID] = c
		}
	}
	return best
}

func ptr(f float64) *float64 { return &f }
