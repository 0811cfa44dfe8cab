// Package matcher ranks catalog cities against a free-text query.
package matcher

import (
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/cityair/cityair/internal/catalog"
)

const (
	// DefaultLimit is the number of suggestions returned when no limit is given.
	DefaultLimit = 5

	// MinScore is the exclusive lower bound a candidate must exceed to be returned.
	MinScore = 0.3

	prefixBonus    = 1.0
	substringBonus = 0.8
)

// Source provides the records to match against.
type Source interface {
	Records() []catalog.CityRecord
}

// Match is a scored candidate.
type Match struct {
	Record catalog.CityRecord
	Score  float64
}

// Matcher scores catalog records against queries.
type Matcher struct {
	source Source
}

// New creates a Matcher over the given source.
func New(source Source) *Matcher {
	return &Matcher{source: source}
}

// Match returns at most limit records, best first. Records scoring at or
// below MinScore are never returned. Callers are expected to reject queries
// shorter than three characters before calling.
func (m *Matcher) Match(query string, limit int) []catalog.CityRecord {
	ranked := m.Rank(query, limit)
	records := make([]catalog.CityRecord, len(ranked))
	for i, r := range ranked {
		records[i] = r.Record
	}
	return records
}

// Rank is Match with the scores attached.
func (m *Matcher) Rank(query string, limit int) []Match {
	if limit <= 0 {
		limit = DefaultLimit
	}

	records := m.source.Records()
	if len(records) == 0 {
		return []Match{}
	}

	scored := make([]Match, len(records))
	for i, r := range records {
		scored[i] = Match{Record: r, Score: Score(query, r)}
	}

	// Stable so equal scores keep catalog order.
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if len(scored) > limit {
		scored = scored[:limit]
	}

	results := make([]Match, 0, len(scored))
	for _, s := range scored {
		if s.Score > MinScore {
			results = append(results, s)
		}
	}
	return results
}

// Score rates how well query matches a record:
//   - city name starts with the query: 1.0 + similarity to the city name
//   - query occurs in the search string: 0.8 + similarity to the search string
//   - otherwise: similarity to the search string
func Score(query string, r catalog.CityRecord) float64 {
	q := strings.ToLower(query)
	search := strings.ToLower(r.SearchString)

	switch {
	case strings.HasPrefix(strings.ToLower(r.City), q):
		return prefixBonus + Similarity(query, r.City)
	case strings.Contains(search, q):
		return substringBonus + Similarity(query, search)
	default:
		return Similarity(query, search)
	}
}

// Similarity returns the case-insensitive sequence-matcher ratio of a and b:
// 2*M/T, where M is the total size of the matching blocks and T the combined
// length, both counted in code points. Identical strings score 1.0.
func Similarity(a, b string) float64 {
	sm := difflib.NewMatcher(runes(strings.ToLower(a)), runes(strings.ToLower(b)))
	return sm.Ratio()
}

func runes(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}
