package match

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/ATAboukhadra/T30-Mazad/internal/knowledge"
	"github.com/ATAboukhadra/T30-Mazad/pkg/provider/asr"
)

// ErrInvalidGramRange marks an n-gram configuration where the minimum gram
// length is below one or exceeds the maximum.
var ErrInvalidGramRange = errors.New("match: invalid gram range")

// Defaults for the matcher configuration.
const (
	DefaultMinGram        = 1
	DefaultMaxGram        = 3
	DefaultThreshold      = 70.0
	DefaultMaxSuggestions = 3
	DefaultMaxCandidates  = 100

	// fuzzyFloor is the minimum score for spans with no phonetic overlap
	// with the name they are compared against.
	fuzzyFloor = 85.0
)

// Candidate is one proposed mention of a knowledge record in the transcript.
type Candidate struct {
	// RecordID and Name identify the matched record; MatchedName is the
	// name form (canonical, full, or alias) the span actually matched.
	RecordID    string  `json:"record_id"`
	Name        string  `json:"name"`
	MatchedName string  `json:"matched_name"`
	Gram        string  `json:"gram"`
	GramLen     int     `json:"gram_len"`
	SpanStart   float64 `json:"span_start"`
	SpanEnd     float64 `json:"span_end"`
	Score       float64 `json:"score"`

	// Ambiguous marks spans whose matched name form resolves to more than
	// one record in the knowledge base.
	Ambiguous bool `json:"ambiguous,omitempty"`

	// tokenStart and tokenEnd are the half-open token index range of the
	// span, used for overlap suppression.
	tokenStart, tokenEnd int
}

// overlaps reports whether two candidates claim overlapping token ranges.
func (c Candidate) overlaps(o Candidate) bool {
	return c.tokenStart < o.tokenEnd && o.tokenStart < c.tokenEnd
}

// nameEntry is a precomputed view of one record name form.
type nameEntry struct {
	recordID   string
	name       string // canonical record name
	form       string // this name form as written
	normalized string
	tokens     []string
	codes      map[string]struct{}
	ambiguous  bool
}

// Matcher finds candidate mentions. It is read-only after construction and
// safe for concurrent use.
type Matcher struct {
	entries []nameEntry

	sim            Similarity
	minGram        int
	maxGram        int
	threshold      float64
	maxSuggestions int
	maxCandidates  int
	logger         *slog.Logger
}

// Option is a functional option for Matcher.
type Option func(*Matcher)

// WithSimilarity replaces the default Jaro-Winkler scorer.
func WithSimilarity(sim Similarity) Option {
	return func(m *Matcher) { m.sim = sim }
}

// WithGramRange sets the inclusive n-gram window sizes.
func WithGramRange(minGram, maxGram int) Option {
	return func(m *Matcher) {
		m.minGram = minGram
		m.maxGram = maxGram
	}
}

// WithThreshold sets the minimum accepted score, in [0, 100].
func WithThreshold(threshold float64) Option {
	return func(m *Matcher) { m.threshold = threshold }
}

// WithMaxSuggestions caps the candidates kept per record.
func WithMaxSuggestions(n int) Option {
	return func(m *Matcher) { m.maxSuggestions = n }
}

// WithMaxCandidates caps the total candidates returned.
func WithMaxCandidates(n int) Option {
	return func(m *Matcher) { m.maxCandidates = n }
}

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(m *Matcher) { m.logger = l }
}

// New builds a Matcher over the store's records. The gram range and
// threshold are validated here, before any matching work happens.
func New(store *knowledge.Store, opts ...Option) (*Matcher, error) {
	if store == nil {
		return nil, errors.New("match: store must not be nil")
	}
	m := &Matcher{
		sim:            JaroWinkler{},
		minGram:        DefaultMinGram,
		maxGram:        DefaultMaxGram,
		threshold:      DefaultThreshold,
		maxSuggestions: DefaultMaxSuggestions,
		maxCandidates:  DefaultMaxCandidates,
		logger:         slog.Default(),
	}
	for _, o := range opts {
		o(m)
	}
	if m.minGram < 1 || m.maxGram < m.minGram {
		return nil, fmt.Errorf("%w: min %d, max %d", ErrInvalidGramRange, m.minGram, m.maxGram)
	}
	if m.threshold < 0 || m.threshold > 100 {
		return nil, fmt.Errorf("match: threshold must be in [0, 100], got %v", m.threshold)
	}

	for _, rec := range store.Records() {
		for _, form := range rec.Names() {
			normalized := knowledge.Normalize(form)
			if normalized == "" {
				continue
			}
			toks := strings.Fields(normalized)
			m.entries = append(m.entries, nameEntry{
				recordID:   rec.ID,
				name:       rec.Name,
				form:       form,
				normalized: normalized,
				tokens:     toks,
				codes:      phoneticCodes(toks),
				ambiguous:  store.Ambiguous(form),
			})
		}
	}
	return m, nil
}

// Match scans the token stream and returns candidate mentions ordered by
// descending score, then ascending gram length, then ascending span start.
// Per record, overlapping spans are suppressed in favor of the best one and
// at most the configured number of suggestions survive.
func (m *Matcher) Match(tokens []asr.Token) ([]Candidate, error) {
	if len(tokens) == 0 {
		return nil, nil
	}

	perRecord := make(map[string][]Candidate)
	maxGram := min(m.maxGram, len(tokens))

	for n := m.minGram; n <= maxGram; n++ {
		for i := 0; i+n <= len(tokens); i++ {
			span := tokens[i : i+n]
			words := make([]string, n)
			for j, tok := range span {
				words[j] = tok.Text
			}
			gram := strings.Join(words, " ")
			normalized := knowledge.Normalize(gram)
			if normalized == "" {
				continue
			}
			spanCodes := phoneticCodes(strings.Fields(normalized))

			for _, e := range m.entries {
				floor := m.threshold
				if !codesOverlap(spanCodes, e.codes) {
					floor = max(m.threshold, fuzzyFloor)
				}
				score := m.sim.Score(normalized, e.normalized)
				if score < floor {
					continue
				}
				perRecord[e.recordID] = append(perRecord[e.recordID], Candidate{
					RecordID:    e.recordID,
					Name:        e.name,
					MatchedName: e.form,
					Gram:        gram,
					GramLen:     n,
					SpanStart:   span[0].Start,
					SpanEnd:     span[n-1].End,
					Score:       score,
					Ambiguous:   e.ambiguous,
					tokenStart:  i,
					tokenEnd:    i + n,
				})
			}
		}
	}

	var out []Candidate
	for _, cands := range perRecord {
		out = append(out, m.dedupe(cands)...)
	}
	sortCandidates(out)
	if len(out) > m.maxCandidates {
		out = out[:m.maxCandidates]
	}

	for _, c := range out {
		if c.Ambiguous {
			m.logger.Warn("ambiguous name match",
				"gram", c.Gram,
				"matched_name", c.MatchedName,
				"record", c.RecordID)
		}
	}
	return out, nil
}

// dedupe keeps the best non-overlapping candidates for one record, capped at
// maxSuggestions.
func (m *Matcher) dedupe(cands []Candidate) []Candidate {
	sortCandidates(cands)
	var kept []Candidate
	for _, c := range cands {
		if len(kept) == m.maxSuggestions {
			break
		}
		conflict := false
		for _, k := range kept {
			if c.overlaps(k) {
				conflict = true
				break
			}
		}
		if !conflict {
			kept = append(kept, c)
		}
	}
	return kept
}

// sortCandidates orders by descending score, ascending gram length, then
// ascending span start.
func sortCandidates(cands []Candidate) {
	sort.SliceStable(cands, func(a, b int) bool {
		if cands[a].Score != cands[b].Score {
			return cands[a].Score > cands[b].Score
		}
		if cands[a].GramLen != cands[b].GramLen {
			return cands[a].GramLen < cands[b].GramLen
		}
		if cands[a].SpanStart != cands[b].SpanStart {
			return cands[a].SpanStart < cands[b].SpanStart
		}
		return cands[a].RecordID < cands[b].RecordID
	})
}
