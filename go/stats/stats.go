// Package stats derives live round statistics from a room snapshot: the
// vote distribution, mean, modal value, participation counts, and the
// consensus condition used to drive celebratory feedback. Everything here
// is a pure read of the snapshot.
package stats

import (
	"slices"
	"strconv"

	"github.com/pointcasthq/pointcast/go/room"
)

// Summary bundles every aggregate a renderer needs for one snapshot.
type Summary struct {
	Distribution  map[string]int
	Mean          float64
	HasMean       bool
	Mode          string
	HasMode       bool
	VotedCount    int
	TotalCount    int
	FullConsensus bool
}

// Summarize computes all aggregates in one pass over the snapshot.
func Summarize(s *room.Snapshot) Summary {
	sum := Summary{
		Distribution: Distribution(s),
		VotedCount:   VotedCount(s),
		TotalCount:   TotalCount(s),
	}
	sum.Mean, sum.HasMean = Mean(s)
	sum.Mode, sum.HasMode = Mode(s)
	sum.FullConsensus = IsFullConsensus(s)
	return sum
}

// Distribution counts, per estimate option, the participants whose current
// vote equals that option. Every configured option is present, at zero if
// unvoted, so displays keep a stable order. Vote values outside the
// configured set still get counted under their own key.
func Distribution(s *room.Snapshot) map[string]int {
	dist := make(map[string]int, len(s.Settings.EstimateOptions))
	for _, opt := range s.Settings.EstimateOptions {
		dist[opt] = 0
	}
	for _, v := range s.Votes {
		if v != nil {
			dist[*v]++
		}
	}
	return dist
}

// Mean returns the arithmetic mean of all numeric votes, excluding nulls
// and the unsure token. The second return is false when no numeric vote
// exists; callers render "not applicable" rather than zero.
func Mean(s *room.Snapshot) (float64, bool) {
	unsure := s.Settings.Unsure()
	var sum float64
	var n int
	for _, v := range s.Votes {
		if v == nil || *v == unsure {
			continue
		}
		f, err := strconv.ParseFloat(*v, 64)
		if err != nil {
			continue
		}
		sum += f
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

// Mode returns the option with the highest distribution count. Ties break
// by first occurrence in the configured option order, never by vote
// arrival time, so every client agrees on the modal value. The second
// return is false when nobody has voted.
func Mode(s *room.Snapshot) (string, bool) {
	dist := Distribution(s)
	best := ""
	bestCount := 0
	for _, opt := range optionOrder(s) {
		if c := dist[opt]; c > bestCount {
			best, bestCount = opt, c
		}
	}
	if bestCount == 0 {
		return "", false
	}
	return best, true
}

// VotedCount is the number of participants with a non-null vote.
func VotedCount(s *room.Snapshot) int {
	n := 0
	for _, v := range s.Votes {
		if v != nil {
			n++
		}
	}
	return n
}

// TotalCount is the number of known participants.
func TotalCount(s *room.Snapshot) int {
	return len(s.Users)
}

// IsFullConsensus reports whether every current participant has voted and
// all chose the same option. The predicate drops back to false the moment
// a new participant joins mid-round, so stale celebrations cannot
// re-trigger.
func IsFullConsensus(s *room.Snapshot) bool {
	voted := VotedCount(s)
	total := TotalCount(s)
	if total == 0 || voted != total {
		return false
	}
	_, ok := Mode(s)
	if !ok {
		return false
	}
	dist := Distribution(s)
	for _, c := range dist {
		if c == voted {
			return true
		}
	}
	return false
}

// optionOrder lists the configured options first, then any vote values the
// configuration does not know about, in participant order. The appendix
// keeps Mode total even when the server accepts free-form values.
func optionOrder(s *room.Snapshot) []string {
	order := slices.Clone(s.Settings.EstimateOptions)
	seen := make(map[string]bool, len(order))
	for _, opt := range order {
		seen[opt] = true
	}
	for _, u := range s.Users {
		if v := s.Votes[u]; v != nil && !seen[*v] {
			seen[*v] = true
			order = append(order, *v)
		}
	}
	return order
}
