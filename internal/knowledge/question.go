package knowledge

import (
	"sort"
	"strings"
)

// positionGroups maps a canonical position group to the keywords that name it
// in commentary questions, and the score awarded when the record's position
// belongs to that group. Defenders weigh highest because position is the
// strongest disambiguator for them in the source data.
var positionGroups = []struct {
	group    string
	keywords []string
	score    int
}{
	{"goalkeeper", []string{"goalkeeper", "keeper", "goalie"}, 2},
	{"defender", []string{"defender", "defence", "defense", "centre back", "center back", "full back", "fullback", "left back", "right back"}, 5},
	{"midfielder", []string{"midfielder", "midfield", "playmaker"}, 3},
	{"forward", []string{"forward", "striker", "attacker", "winger"}, 3},
}

// leagueSynonyms lists alternate spellings per league, keyed by the
// normalized league name as it appears in records.
var leagueSynonyms = map[string][]string{
	"premier league": {"premier league", "epl", "english premier league"},
}

// positionGroup returns the canonical group a record position falls into, or
// "" when it matches none.
func positionGroup(position string) string {
	p := Normalize(position)
	if p == "" {
		return ""
	}
	for _, g := range positionGroups {
		for _, kw := range g.keywords {
			if strings.Contains(p, kw) {
				return g.group
			}
		}
	}
	return ""
}

// QuestionScore rates how well rec matches the constraints stated in a
// commentary question. Nationality mentions add 3, an explicit
// "played for <club>" phrase adds 4, a league mention adds 3, and position
// keywords add their group score. Naming a position group the record does
// not play costs 1. A score of zero means the question says nothing about
// this record.
func QuestionScore(question string, rec Record) int {
	q := Normalize(question)
	if q == "" {
		return 0
	}

	score := 0

	if nat := Normalize(rec.Nationality); nat != "" && strings.Contains(q, nat) {
		score += 3
	}

	for _, club := range rec.Clubs {
		c := Normalize(club)
		if c == "" {
			continue
		}
		if strings.Contains(q, "played for "+c) || strings.Contains(q, "plays for "+c) {
			score += 4
			break
		}
	}

	for _, league := range rec.Leagues {
		l := Normalize(league)
		if l == "" {
			continue
		}
		terms := leagueSynonyms[l]
		if terms == nil {
			terms = []string{l}
		}
		for _, term := range terms {
			if strings.Contains(q, term) {
				score += 3
				break
			}
		}
	}

	recGroup := positionGroup(rec.Position)
	for _, g := range positionGroups {
		mentioned := false
		for _, kw := range g.keywords {
			if strings.Contains(q, kw) {
				mentioned = true
				break
			}
		}
		if !mentioned {
			continue
		}
		if g.group == recGroup {
			score += g.score
		} else {
			score--
		}
	}

	return score
}

// FilterByQuestion keeps the records the question positively selects,
// ordered by question score, then fame, then name. When the question
// constrains nothing, the input is returned unchanged so conditioning
// degrades to the full candidate set rather than an empty prompt.
func FilterByQuestion(question string, recs []Record) []Record {
	type scored struct {
		rec   Record
		score int
	}
	kept := make([]scored, 0, len(recs))
	for _, rec := range recs {
		if sc := QuestionScore(question, rec); sc > 0 {
			kept = append(kept, scored{rec: rec, score: sc})
		}
	}
	if len(kept) == 0 {
		out := make([]Record, len(recs))
		copy(out, recs)
		return out
	}

	sort.SliceStable(kept, func(a, b int) bool {
		if kept[a].score != kept[b].score {
			return kept[a].score > kept[b].score
		}
		if kept[a].rec.FameScore != kept[b].rec.FameScore {
			return kept[a].rec.FameScore > kept[b].rec.FameScore
		}
		return kept[a].rec.Name < kept[b].rec.Name
	})

	out := make([]Record, len(kept))
	for i, s := range kept {
		out[i] = s.rec
	}
	return out
}
