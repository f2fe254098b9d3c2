package scoring

import "math"

// Criterion IDs for structured voting. Scores outside the documented
// ranges are a caller bug; the formula does not clamp.
const (
	CriterionComplexity = "complexity" // 0-4
	CriterionConfidence = "confidence" // 0-4
	CriterionVolume     = "volume"     // 0-4
	CriterionUnknowns   = "unknowns"   // 0-2
)

// CriteriaScores maps criterion IDs to integer scores. Missing criteria
// count as zero.
type CriteriaScores map[string]int

// Criterion describes one scored axis of a structured vote.
type Criterion struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Max   int    `json:"max"`
}

// DefaultCriteria returns the fixed four-criterion set used by structured
// voting, in display order.
func DefaultCriteria() []Criterion {
	return []Criterion{
		{ID: CriterionComplexity, Label: "Complexity", Max: 4},
		{ID: CriterionConfidence, Label: "Confidence", Max: 4},
		{ID: CriterionVolume, Label: "Volume", Max: 4},
		{ID: CriterionUnknowns, Label: "Unknowns", Max: 2},
	}
}

// Weighted returns the raw weighted percentage for a set of criteria
// scores, including the threshold floors. Both the UI preview and the
// bucketed result are derived from this single expression so the two can
// never drift apart.
func Weighted(cs CriteriaScores) float64 {
	weighted := float64(cs[CriterionComplexity])*(100.0/4)*0.35 +
		float64(cs[CriterionConfidence])*(100.0/4)*0.25 +
		float64(cs[CriterionVolume])*(100.0/4)*0.25 +
		float64(cs[CriterionUnknowns])*(100.0/2)*0.15

	if cs[CriterionUnknowns] == 2 {
		weighted = math.Max(weighted, 80)
	}
	if cs[CriterionUnknowns] == 1 {
		weighted = math.Max(weighted, 35)
	}
	if cs[CriterionVolume] == 4 {
		weighted = math.Max(weighted, 80)
	}
	return weighted
}

// StoryPoints buckets the weighted percentage into a discrete estimate.
func StoryPoints(cs CriteriaScores) int {
	weighted := Weighted(cs)
	switch {
	case weighted < 35:
		return 1
	case weighted < 50:
		return 3
	case weighted < 80:
		return 5
	default:
		return 8
	}
}
