// Package knowledge holds the player knowledge base: loading records from
// JSONL, normalizing names for comparison, and retrieving the records most
// relevant to a query or a commentary question.
package knowledge

import (
	"errors"
	"fmt"
)

// ErrMalformedRecord marks a knowledge record missing its required fields.
// MalformedRecordError wraps it, so errors.Is(err, ErrMalformedRecord) works.
var ErrMalformedRecord = errors.New("knowledge: malformed record")

// MalformedRecordError describes a single record that failed validation.
// During JSONL loading these are logged and the record skipped, not fatal.
type MalformedRecordError struct {
	// Line is the 1-based JSONL line number, or 0 when the record did not
	// come from a file.
	Line   int
	Reason string
}

func (e *MalformedRecordError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("knowledge: malformed record at line %d: %s", e.Line, e.Reason)
	}
	return "knowledge: malformed record: " + e.Reason
}

func (e *MalformedRecordError) Unwrap() error { return ErrMalformedRecord }

// Record is a single player entry in the knowledge base.
//
// Name is the canonical display form. Aliases carry nicknames and alternate
// spellings; they resolve to the same record during matching. The remaining
// fields are attributes used for question-conditioned retrieval and carry no
// matching weight on their own.
type Record struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	FullName    string   `json:"full_name,omitempty"`
	Aliases     []string `json:"aliases,omitempty"`
	Nationality string   `json:"nationality,omitempty"`
	Position    string   `json:"position,omitempty"`
	Clubs       []string `json:"clubs,omitempty"`
	Leagues     []string `json:"leagues,omitempty"`

	// FameScore orders otherwise-equal retrieval candidates; larger is more
	// prominent. Zero is a valid score.
	FameScore float64 `json:"fame_score,omitempty"`
}

// Validate reports whether the record carries the required id and name.
func (r Record) Validate() error {
	if r.ID == "" {
		return &MalformedRecordError{Reason: "missing id"}
	}
	if r.Name == "" {
		return &MalformedRecordError{Reason: fmt.Sprintf("record %q missing name", r.ID)}
	}
	return nil
}

// Names returns the canonical name, full name, and aliases in declaration
// order, without duplicates.
func (r Record) Names() []string {
	names := make([]string, 0, len(r.Aliases)+2)
	seen := make(map[string]struct{}, len(r.Aliases)+2)
	add := func(n string) {
		if n == "" {
			return
		}
		key := Normalize(n)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		names = append(names, n)
	}
	add(r.Name)
	add(r.FullName)
	for _, a := range r.Aliases {
		add(a)
	}
	return names
}
