package knowledge_test

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/ATAboukhadra/T30-Mazad/internal/knowledge"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRecords() []knowledge.Record {
	return []knowledge.Record{
		{ID: "1", Name: "John Smith", Position: "Defender", Nationality: "England", Clubs: []string{"Arsenal"}, Leagues: []string{"Premier League"}, FameScore: 80},
		{ID: "2", Name: "Jane Kowalski", Position: "Midfielder", Nationality: "Poland", FameScore: 60},
		{ID: "3", Name: "Kylian Mbappé", Aliases: []string{"Donatello"}, Position: "Forward", Nationality: "France", Clubs: []string{"Real Madrid"}, FameScore: 95},
		{ID: "4", Name: "James Smith", Position: "Forward", Nationality: "Scotland", FameScore: 40},
	}
}

func TestNew_RejectsMalformed(t *testing.T) {
	t.Parallel()

	_, err := knowledge.New([]knowledge.Record{{ID: "1"}})
	if !errors.Is(err, knowledge.ErrMalformedRecord) {
		t.Fatalf("New(record without name): error = %v, want ErrMalformedRecord", err)
	}

	_, err = knowledge.New([]knowledge.Record{{Name: "John Smith"}})
	if !errors.Is(err, knowledge.ErrMalformedRecord) {
		t.Fatalf("New(record without id): error = %v, want ErrMalformedRecord", err)
	}

	_, err = knowledge.New([]knowledge.Record{
		{ID: "1", Name: "John Smith"},
		{ID: "1", Name: "Jane Kowalski"},
	})
	if !errors.Is(err, knowledge.ErrMalformedRecord) {
		t.Fatalf("New(duplicate id): error = %v, want ErrMalformedRecord", err)
	}
}

func TestLoadJSONL_SkipsMalformedLines(t *testing.T) {
	t.Parallel()

	input := strings.Join([]string{
		`{"id": "1", "name": "John Smith", "position": "Defender"}`,
		`not json at all`,
		`{"id": "2"}`,
		``,
		`{"id": "3", "name": "Kylian Mbappé", "aliases": ["Donatello"]}`,
	}, "\n")

	store, err := knowledge.LoadJSONL(strings.NewReader(input), discardLogger())
	if err != nil {
		t.Fatalf("LoadJSONL: unexpected error: %v", err)
	}
	if store.Len() != 2 {
		t.Fatalf("Len() = %d, want 2 (malformed lines skipped)", store.Len())
	}
	if _, ok := store.Get("1"); !ok {
		t.Error("record 1 missing after load")
	}
	if _, ok := store.Get("3"); !ok {
		t.Error("record 3 missing after load")
	}
}

func TestLookupByName(t *testing.T) {
	t.Parallel()

	store, err := knowledge.New(testRecords())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got := store.LookupByName("kylian  MBAPPE")
	if len(got) != 1 || got[0].ID != "3" {
		t.Fatalf("LookupByName(accent/case variant) = %v, want record 3", got)
	}

	// Aliases resolve to the same record.
	got = store.LookupByName("Donatello")
	if len(got) != 1 || got[0].ID != "3" {
		t.Fatalf("LookupByName(alias) = %v, want record 3", got)
	}

	if got := store.LookupByName("nobody at all"); got != nil {
		t.Fatalf("LookupByName(unknown) = %v, want nil", got)
	}
}

func TestLookupByLastName(t *testing.T) {
	t.Parallel()

	store, err := knowledge.New(testRecords())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got := store.LookupByLastName("Smith")
	if len(got) != 2 {
		t.Fatalf("LookupByLastName(Smith) returned %d records, want 2", len(got))
	}
	// Load order preserved.
	if got[0].ID != "1" || got[1].ID != "4" {
		t.Errorf("LookupByLastName(Smith) order = [%s %s], want [1 4]", got[0].ID, got[1].ID)
	}
}

func TestAmbiguous(t *testing.T) {
	t.Parallel()

	store, err := knowledge.New([]knowledge.Record{
		{ID: "1", Name: "John Smith"},
		{ID: "2", Name: "Danilo"},
		{ID: "3", Name: "Danilo"},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if !store.Ambiguous("danilo") {
		t.Error("Ambiguous(danilo) = false, want true (two records share the name)")
	}
	if store.Ambiguous("John Smith") {
		t.Error("Ambiguous(John Smith) = true, want false")
	}
}

func TestRetrieve(t *testing.T) {
	t.Parallel()

	store, err := knowledge.New(testRecords())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got := store.Retrieve("the defender from England", 2)
	if len(got) == 0 || got[0].ID != "1" {
		t.Fatalf("Retrieve(defender from England) top = %v, want record 1", got)
	}

	// No lexical overlap: fall back to load order so the prompt is never empty.
	got = store.Retrieve("zzz qqq", 3)
	if len(got) != 3 {
		t.Fatalf("Retrieve(no overlap) returned %d records, want 3", len(got))
	}
	if got[0].ID != "1" || got[1].ID != "2" || got[2].ID != "3" {
		t.Errorf("Retrieve(no overlap) order = [%s %s %s], want load order", got[0].ID, got[1].ID, got[2].ID)
	}

	if got := store.Retrieve("anything", 0); got != nil {
		t.Errorf("Retrieve(limit 0) = %v, want nil", got)
	}
}

func TestAllNames(t *testing.T) {
	t.Parallel()

	store, err := knowledge.New(testRecords())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	names := store.AllNames()
	want := []string{"John Smith", "Jane Kowalski", "Kylian Mbappé", "Donatello", "James Smith"}
	if len(names) != len(want) {
		t.Fatalf("AllNames() = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("AllNames()[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}
