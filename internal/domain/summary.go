package domain

import "math"

// driftTolerance is the relative error tolerated between an aggregate and its ledger.
const driftTolerance = 1e-9

// Summary is the mean rating and vote count of one pokemon.
//
// The mutation methods implement O(1) incremental updates of the mean; they never
// touch the ledger. Results are clamped to [MinRating, MaxRating] so accumulated
// floating-point error cannot push the stored mean out of range.
type Summary struct {
	Rating        float64
	NumberOfVotes int64
}

// Insert adds a first-time vote.
func (s Summary) Insert(value float64) Summary {
	n := s.NumberOfVotes + 1
	return Summary{
		Rating:        clampRating((s.Rating*float64(s.NumberOfVotes) + value) / float64(n)),
		NumberOfVotes: n,
	}
}

// Replace swaps an existing vote for a new value; the vote count is unchanged.
func (s Summary) Replace(previous, value float64) Summary {
	if s.NumberOfVotes <= 0 {
		return s.Insert(value)
	}
	n := float64(s.NumberOfVotes)
	return Summary{
		Rating:        clampRating((s.Rating*n - previous + value) / n),
		NumberOfVotes: s.NumberOfVotes,
	}
}

// Remove drops an existing vote. Removing the last vote yields the zero Summary.
func (s Summary) Remove(previous float64) Summary {
	if s.NumberOfVotes <= 1 {
		return Summary{}
	}
	n := s.NumberOfVotes - 1
	return Summary{
		Rating:        clampRating((s.Rating*float64(s.NumberOfVotes) - previous) / float64(n)),
		NumberOfVotes: n,
	}
}

// Empty reports whether no votes remain.
func (s Summary) Empty() bool {
	return s.NumberOfVotes == 0
}

// SummaryFromTotals derives a Summary from a full ledger scan.
func SummaryFromTotals(sum float64, count int64) Summary {
	if count <= 0 {
		return Summary{}
	}
	return Summary{Rating: clampRating(sum / float64(count)), NumberOfVotes: count}
}

// Drifted reports whether s disagrees with the ledger totals beyond tolerance.
func (s Summary) Drifted(sum float64, count int64) bool {
	if s.NumberOfVotes != count {
		return true
	}
	got := s.Rating * float64(s.NumberOfVotes)
	return math.Abs(got-sum) > driftTolerance*math.Max(1, math.Abs(sum))
}

func clampRating(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return MinRating
	case v < MinRating:
		return MinRating
	case v > MaxRating:
		return MaxRating
	default:
		return v
	}
}
