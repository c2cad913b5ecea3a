package match_test

import (
	"errors"
	"testing"

	"github.com/ATAboukhadra/T30-Mazad/internal/knowledge"
	"github.com/ATAboukhadra/T30-Mazad/internal/match"
	"github.com/ATAboukhadra/T30-Mazad/pkg/provider/asr"
)

func newStore(t *testing.T, recs []knowledge.Record) *knowledge.Store {
	t.Helper()
	store, err := knowledge.New(recs)
	if err != nil {
		t.Fatalf("knowledge.New: %v", err)
	}
	return store
}

func wordTokens(words ...string) []asr.Token {
	out := make([]asr.Token, len(words))
	for i, w := range words {
		out[i] = asr.Token{Text: w, Start: float64(i), End: float64(i + 1)}
	}
	return out
}

func TestMatch_FindsFuzzyMention(t *testing.T) {
	t.Parallel()

	store := newStore(t, []knowledge.Record{
		{ID: "1", Name: "John Smith"},
		{ID: "2", Name: "Jane Kowalski"},
	})
	m, err := match.New(store)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got, err := m.Match(wordTokens("jon", "smith", "scores", "again"))
	if err != nil {
		t.Fatalf("Match: unexpected error: %v", err)
	}
	if len(got) == 0 {
		t.Fatal("Match: no candidates for a close misspelling")
	}

	top := got[0]
	if top.RecordID != "1" {
		t.Errorf("top candidate record = %s, want 1", top.RecordID)
	}
	if top.Gram != "jon smith" {
		t.Errorf("top candidate gram = %q, want %q", top.Gram, "jon smith")
	}
	if top.Score < 70 {
		t.Errorf("top candidate score = %v, want >= 70", top.Score)
	}
	if top.SpanStart != 0 || top.SpanEnd != 2 {
		t.Errorf("top candidate span = [%v, %v], want [0, 2]", top.SpanStart, top.SpanEnd)
	}
	if top.MatchedName != "John Smith" {
		t.Errorf("top candidate matched name = %q, want %q", top.MatchedName, "John Smith")
	}

	for _, c := range got {
		if c.RecordID == "2" {
			t.Errorf("unexpected candidate for record 2: %+v", c)
		}
	}
}

func TestMatch_AliasResolvesToRecord(t *testing.T) {
	t.Parallel()

	store := newStore(t, []knowledge.Record{
		{ID: "3", Name: "Kylian Mbappé", Aliases: []string{"Donatello"}},
	})
	m, err := match.New(store)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got, err := m.Match(wordTokens("donatello", "with", "the", "finish"))
	if err != nil {
		t.Fatalf("Match: unexpected error: %v", err)
	}
	if len(got) == 0 {
		t.Fatal("Match: alias mention produced no candidates")
	}
	if got[0].RecordID != "3" || got[0].Name != "Kylian Mbappé" {
		t.Errorf("alias candidate = %+v, want record 3 under its canonical name", got[0])
	}
	if got[0].MatchedName != "Donatello" {
		t.Errorf("MatchedName = %q, want the alias form", got[0].MatchedName)
	}
}

func TestMatch_AmbiguousNameFlagged(t *testing.T) {
	t.Parallel()

	store := newStore(t, []knowledge.Record{
		{ID: "1", Name: "Danilo"},
		{ID: "2", Name: "Danilo"},
	})
	m, err := match.New(store)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got, err := m.Match(wordTokens("danilo", "shoots"))
	if err != nil {
		t.Fatalf("Match: unexpected error: %v", err)
	}
	if len(got) < 2 {
		t.Fatalf("Match: got %d candidates, want one per record sharing the name", len(got))
	}
	seen := map[string]bool{}
	for _, c := range got {
		if c.Gram == "danilo" {
			if !c.Ambiguous {
				t.Errorf("candidate for record %s not flagged ambiguous", c.RecordID)
			}
			seen[c.RecordID] = true
		}
	}
	if !seen["1"] || !seen["2"] {
		t.Errorf("ambiguous name did not yield candidates for both records: %v", seen)
	}
}

func TestMatch_ThresholdFiltersWeakSpans(t *testing.T) {
	t.Parallel()

	store := newStore(t, []knowledge.Record{{ID: "1", Name: "John Smith"}})
	m, err := match.New(store, match.WithThreshold(99))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got, err := m.Match(wordTokens("jon", "smith"))
	if err != nil {
		t.Fatalf("Match: unexpected error: %v", err)
	}
	for _, c := range got {
		if c.Score < 99 {
			t.Errorf("candidate below threshold survived: %+v", c)
		}
	}

	got, err = m.Match(wordTokens("john", "smith"))
	if err != nil {
		t.Fatalf("Match: unexpected error: %v", err)
	}
	if len(got) == 0 {
		t.Fatal("Match: exact mention filtered out at threshold 99")
	}
}

func TestMatch_OverlapSuppression(t *testing.T) {
	t.Parallel()

	store := newStore(t, []knowledge.Record{{ID: "1", Name: "John Smith"}})
	m, err := match.New(store)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got, err := m.Match(wordTokens("john", "smith"))
	if err != nil {
		t.Fatalf("Match: unexpected error: %v", err)
	}

	// "john smith", "john", and "smith" all hit record 1, but the spans
	// overlap; only the best survives per token range.
	for i, a := range got {
		for _, b := range got[i+1:] {
			if a.RecordID == b.RecordID &&
				a.SpanStart < b.SpanEnd && b.SpanStart < a.SpanEnd {
				t.Errorf("overlapping candidates kept for one record: %+v and %+v", a, b)
			}
		}
	}
	if len(got) == 0 || got[0].Gram != "john smith" {
		t.Fatalf("best candidate = %+v, want the full-name span", got)
	}
}

func TestMatch_Ordering(t *testing.T) {
	t.Parallel()

	store := newStore(t, []knowledge.Record{
		{ID: "1", Name: "John Smith"},
		{ID: "2", Name: "Jane Kowalski"},
	})
	m, err := match.New(store)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got, err := m.Match(wordTokens("jon", "smith", "passes", "to", "jane", "kowalski"))
	if err != nil {
		t.Fatalf("Match: unexpected error: %v", err)
	}
	for i := 1; i < len(got); i++ {
		prev, cur := got[i-1], got[i]
		if cur.Score > prev.Score {
			t.Errorf("candidates not in descending score order: %v before %v", prev.Score, cur.Score)
		}
		if cur.Score == prev.Score && cur.GramLen < prev.GramLen {
			t.Errorf("equal-score candidates not in ascending gram length order")
		}
	}
}

func TestMatch_EmptyTokens(t *testing.T) {
	t.Parallel()

	store := newStore(t, []knowledge.Record{{ID: "1", Name: "John Smith"}})
	m, err := match.New(store)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := m.Match(nil)
	if err != nil {
		t.Fatalf("Match(nil): unexpected error: %v", err)
	}
	if got != nil {
		t.Errorf("Match(nil) = %v, want nil", got)
	}
}

func TestNew_InvalidGramRange(t *testing.T) {
	t.Parallel()

	store := newStore(t, []knowledge.Record{{ID: "1", Name: "John Smith"}})

	_, err := match.New(store, match.WithGramRange(3, 1))
	if !errors.Is(err, match.ErrInvalidGramRange) {
		t.Errorf("New(min 3, max 1): error = %v, want ErrInvalidGramRange", err)
	}

	_, err = match.New(store, match.WithGramRange(0, 2))
	if !errors.Is(err, match.ErrInvalidGramRange) {
		t.Errorf("New(min 0): error = %v, want ErrInvalidGramRange", err)
	}
}
