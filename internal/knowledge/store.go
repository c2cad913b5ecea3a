package knowledge

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
)

// Store is an in-memory, read-only view over the knowledge base. It is built
// once from records and is safe for concurrent use afterwards.
type Store struct {
	records []Record

	byID   map[string]int
	byName map[string][]int // normalized name, full name, or alias -> record indices
	byLast map[string][]int // normalized last word of canonical name -> record indices

	// tokens caches the normalized token set per record, spanning all name
	// forms and attribute values. Used by Retrieve.
	tokens []map[string]struct{}
}

// New builds a Store from records. Every record must pass Validate; the
// first malformed record aborts construction. Use LoadJSONL for lenient
// file ingestion.
func New(records []Record) (*Store, error) {
	s := &Store{
		byID:   make(map[string]int, len(records)),
		byName: make(map[string][]int),
		byLast: make(map[string][]int),
	}
	for _, rec := range records {
		if err := rec.Validate(); err != nil {
			return nil, err
		}
		if _, dup := s.byID[rec.ID]; dup {
			return nil, &MalformedRecordError{Reason: fmt.Sprintf("duplicate id %q", rec.ID)}
		}
		s.add(rec)
	}
	return s, nil
}

// LoadJSONL reads one JSON record per line from r. Malformed lines are
// logged and skipped so a single bad entry never aborts the load.
func LoadJSONL(r io.Reader, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		byID:   make(map[string]int),
		byName: make(map[string][]int),
		byLast: make(map[string][]int),
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	line := 0
	skipped := 0
	for sc.Scan() {
		line++
		raw := strings.TrimSpace(sc.Text())
		if raw == "" {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			logger.Warn("skipping unparseable knowledge record", "line", line, "error", err)
			skipped++
			continue
		}
		if err := rec.Validate(); err != nil {
			var mErr *MalformedRecordError
			if ok := asMalformed(err, &mErr); ok {
				mErr.Line = line
			}
			logger.Warn("skipping malformed knowledge record", "line", line, "error", err)
			skipped++
			continue
		}
		if _, dup := s.byID[rec.ID]; dup {
			logger.Warn("skipping duplicate knowledge record", "line", line, "id", rec.ID)
			skipped++
			continue
		}
		s.add(rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("knowledge: read records: %w", err)
	}
	if skipped > 0 {
		logger.Warn("knowledge base loaded with skipped records", "loaded", len(s.records), "skipped", skipped)
	}
	return s, nil
}

// LoadFile loads a JSONL knowledge base from path.
func LoadFile(path string, logger *slog.Logger) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("knowledge: open %q: %w", path, err)
	}
	defer f.Close()
	return LoadJSONL(f, logger)
}

func asMalformed(err error, target **MalformedRecordError) bool {
	m, ok := err.(*MalformedRecordError)
	if ok {
		*target = m
	}
	return ok
}

// add indexes rec. Caller has already validated it.
func (s *Store) add(rec Record) {
	idx := len(s.records)
	s.records = append(s.records, rec)
	s.byID[rec.ID] = idx

	seen := make(map[string]struct{})
	for _, name := range rec.Names() {
		key := Normalize(name)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		s.byName[key] = append(s.byName[key], idx)
	}
	if last := lastWord(Normalize(rec.Name)); last != "" {
		s.byLast[last] = append(s.byLast[last], idx)
	}

	toks := make(map[string]struct{})
	for _, name := range rec.Names() {
		for _, t := range tokenize(name) {
			toks[t] = struct{}{}
		}
	}
	for _, v := range append([]string{rec.Nationality, rec.Position}, append(rec.Clubs, rec.Leagues...)...) {
		for _, t := range tokenize(v) {
			toks[t] = struct{}{}
		}
	}
	s.tokens = append(s.tokens, toks)
}

// Len returns the number of loaded records.
func (s *Store) Len() int { return len(s.records) }

// Records returns all records in load order. The slice must not be mutated.
func (s *Store) Records() []Record { return s.records }

// Get returns the record with the given id.
func (s *Store) Get(id string) (Record, bool) {
	idx, ok := s.byID[id]
	if !ok {
		return Record{}, false
	}
	return s.records[idx], true
}

// LookupByName returns every record whose canonical name, full name, or
// alias normalizes to the same form as name, in load order.
func (s *Store) LookupByName(name string) []Record {
	return s.collect(s.byName[Normalize(name)])
}

// LookupByLastName returns the records whose canonical name ends with the
// given word, in load order.
func (s *Store) LookupByLastName(name string) []Record {
	return s.collect(s.byLast[lastWord(Normalize(name))])
}

// Ambiguous reports whether name resolves to more than one record, i.e. the
// normalized form is shared across distinct entries.
func (s *Store) Ambiguous(name string) bool {
	return len(s.byName[Normalize(name)]) > 1
}

// AllNames returns every distinct name form in the store, in load order.
func (s *Store) AllNames() []string {
	var names []string
	seen := make(map[string]struct{})
	for _, rec := range s.records {
		for _, name := range rec.Names() {
			key := Normalize(name)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			names = append(names, name)
		}
	}
	return names
}

func (s *Store) collect(idxs []int) []Record {
	if len(idxs) == 0 {
		return nil
	}
	out := make([]Record, len(idxs))
	for i, idx := range idxs {
		out[i] = s.records[idx]
	}
	return out
}

// Retrieve returns up to limit records ranked by lexical relevance to query:
// the number of query tokens appearing among a record's names and attributes.
// Ties keep load order. When nothing overlaps, the first records in load
// order are returned so a caller always has candidates to condition on.
func (s *Store) Retrieve(query string, limit int) []Record {
	if limit <= 0 || len(s.records) == 0 {
		return nil
	}

	qtoks := tokenize(query)
	type scored struct {
		idx   int
		score int
	}
	ranked := make([]scored, 0, len(s.records))
	for i := range s.records {
		score := 0
		for _, t := range qtoks {
			if _, ok := s.tokens[i][t]; ok {
				score++
			}
		}
		if score > 0 {
			ranked = append(ranked, scored{idx: i, score: score})
		}
	}

	if len(ranked) == 0 {
		n := min(limit, len(s.records))
		out := make([]Record, n)
		copy(out, s.records[:n])
		return out
	}

	sort.SliceStable(ranked, func(a, b int) bool {
		return ranked[a].score > ranked[b].score
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	out := make([]Record, len(ranked))
	for i, r := range ranked {
		out[i] = s.records[r.idx]
	}
	return out
}
