// Package prompt renders the knowledge-conditioned recognition prompt: a
// short piece of text listing player names so the recognizer biases toward
// spelling them correctly.
package prompt

import (
	"errors"
	"strings"

	"github.com/ATAboukhadra/T30-Mazad/internal/knowledge"
)

// DefaultPrefix introduces the name list. Recognizers treat the prompt as
// preceding context, so a declarative sentence works better than a bare list.
const DefaultPrefix = "Football players mentioned: "

// DefaultCharBudget bounds the rendered prompt. Whisper-family models only
// attend to roughly the last 224 tokens of prompt text, so anything much
// longer is wasted.
const DefaultCharBudget = 800

// Ellipsis is appended when the name list is cut to fit the budget.
const Ellipsis = "..."

// DefaultRecordLimit caps how many records contribute a name before the
// character budget is even consulted.
const DefaultRecordLimit = 1000

// Builder renders prompts from a knowledge store.
type Builder struct {
	store       *knowledge.Store
	prefix      string
	charBudget  int
	recordLimit int
}

// Option is a functional option for Builder.
type Option func(*Builder)

// WithPrefix overrides the prompt prefix.
func WithPrefix(prefix string) Option {
	return func(b *Builder) { b.prefix = prefix }
}

// WithCharBudget overrides the maximum rendered prompt length in runes.
// Must be large enough to hold the prefix and at least part of one name.
func WithCharBudget(n int) Option {
	return func(b *Builder) { b.charBudget = n }
}

// WithRecordLimit overrides the maximum number of records selected into the
// prompt. Must be at least 1.
func WithRecordLimit(n int) Option {
	return func(b *Builder) { b.recordLimit = n }
}

// New constructs a Builder over store.
func New(store *knowledge.Store, opts ...Option) (*Builder, error) {
	if store == nil {
		return nil, errors.New("prompt: store must not be nil")
	}
	b := &Builder{
		store:       store,
		prefix:      DefaultPrefix,
		charBudget:  DefaultCharBudget,
		recordLimit: DefaultRecordLimit,
	}
	for _, o := range opts {
		o(b)
	}
	if b.charBudget <= len(b.prefix)+len(Ellipsis) {
		return nil, errors.New("prompt: char budget too small for prefix")
	}
	if b.recordLimit < 1 {
		return nil, errors.New("prompt: record limit must be at least 1")
	}
	return b, nil
}

// Build renders the prompt. When question is non-empty the name list is
// narrowed to the records the question selects, falling back to lexical
// retrieval when the question constrains nothing; otherwise records
// contribute their canonical names in load order. At most the record limit
// names are selected. An empty store yields an empty prompt, which
// recognizers treat as unconditioned.
func (b *Builder) Build(question string) string {
	var recs []knowledge.Record
	switch {
	case question == "":
		recs = b.store.Records()
	case questionConstrains(question, b.store.Records()):
		recs = knowledge.FilterByQuestion(question, b.store.Records())
	default:
		// The question names no attribute the filter scores; rank by
		// lexical overlap instead so it still orders the prompt.
		recs = b.store.Retrieve(question, b.recordLimit)
	}
	if len(recs) > b.recordLimit {
		recs = recs[:b.recordLimit]
	}
	if len(recs) == 0 {
		return ""
	}

	names := make([]string, len(recs))
	for i, rec := range recs {
		names[i] = rec.Name
	}
	return Render(b.prefix, names, b.charBudget)
}

// questionConstrains reports whether the question positively selects at
// least one record.
func questionConstrains(question string, recs []knowledge.Record) bool {
	for _, rec := range recs {
		if knowledge.QuestionScore(question, rec) > 0 {
			return true
		}
	}
	return false
}

// Render joins names under prefix and fits the result into budget runes.
// Callers that already hold a narrowed name list (rather than a store) use
// this directly.
func Render(prefix string, names []string, budget int) string {
	if len(names) == 0 {
		return ""
	}
	return truncate(prefix+strings.Join(names, ", "), budget)
}

// truncate cuts s to at most budget runes, replacing the tail with an
// ellipsis when it does not fit.
func truncate(s string, budget int) string {
	runes := []rune(s)
	if len(runes) <= budget {
		return s
	}
	return string(runes[:budget-len(Ellipsis)]) + Ellipsis
}
