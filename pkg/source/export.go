package source

import (
	"sort"

	"github.com/civicworks/precinctbook/pkg/roster"
)

// PollAssignment is the serializable form of one precinct-to-poll
// assignment, used when caching parsed roster data between runs.
type PollAssignment struct {
	Ward     int    `json:"ward"`
	Precinct int    `json:"precinct"`
	Key      string `json:"key"`
	Name     string `json:"name"`
}

// Export returns the poll set's assignments, sorted by ward and
// precinct for stable serialization.
func (s *PollSet) Export() []PollAssignment {
	out := make([]PollAssignment, 0, len(s.keyByPrecinct))
	for p, key := range s.keyByPrecinct {
		out = append(out, PollAssignment{
			Ward:     p.Ward,
			Precinct: p.Number,
			Key:      key,
			Name:     s.nameByKey[key],
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Ward != out[j].Ward {
			return out[i].Ward < out[j].Ward
		}
		return out[i].Precinct < out[j].Precinct
	})
	return out
}

// PollSetFrom rebuilds a poll set from exported assignments.
func PollSetFrom(assignments []PollAssignment) *PollSet {
	s := NewPollSet()
	for _, a := range assignments {
		s.Add(roster.Precinct{Ward: a.Ward, Number: a.Precinct}, a.Key, a.Name)
	}
	return s
}
