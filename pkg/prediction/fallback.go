package prediction

import (
	"fmt"
	"time"

	"github.com/raredx/triage/pkg/common/models"
)

// FallbackPolicy decides what Predict returns when the prediction service
// fails.
type FallbackPolicy int

const (
	// FallbackToDemo substitutes the built-in demonstration candidates.
	FallbackToDemo FallbackPolicy = iota
	// FailFast returns the PredictionError to the caller.
	FailFast
)

func (p FallbackPolicy) String() string {
	switch p {
	case FallbackToDemo:
		return "demo"
	case FailFast:
		return "fail-fast"
	default:
		return fmt.Sprintf("FallbackPolicy(%d)", int(p))
	}
}

// MockToken is the session token attached to demonstration results.
func MockToken(now time.Time) string {
	return fmt.Sprintf("mock-%d", now.UnixMilli())
}

// MockCandidates returns a fresh copy of the demonstration dataset.
func MockCandidates() []models.DiseaseCandidate {
	return []models.DiseaseCandidate{
		{
			ID:              "1",
			Name:            "Ehlers-Danlos Syndrome",
			Confidence:      78,
			MatchPercentage: "78%",
			MatchedNodes:    "3/28",
			MatchedCount:    3,
			TotalCount:      28,
			Rank:            1,
			Weight:          2.2,
			Description:     "A group of inherited disorders that affect connective tissues, primarily the skin, joints, and blood vessel walls.",
			Symptoms:        []string{"Joint pain", "Skin discoloration", "Fatigue", "Muscle pain", "Weakness"},
			Prevalence:      "1 in 2,500 to 1 in 5,000 people worldwide",
			Links: []models.Link{
				{Title: "Mayo Clinic - Ehlers-Danlos Syndrome", URL: "https://www.mayoclinic.org/diseases-conditions/ehlers-danlos-syndrome"},
				{Title: "National Organization for Rare Disorders", URL: "https://rarediseases.org/rare-diseases/ehlers-danlos-syndrome/"},
			},
		},
		{
			ID:              "2",
			Name:            "Fibromyalgia",
			Confidence:      72,
			MatchPercentage: "72%",
			MatchedNodes:    "2/15",
			MatchedCount:    2,
			TotalCount:      15,
			Rank:            2,
			Weight:          1.8,
			Description:     "A disorder characterized by widespread musculoskeletal pain accompanied by fatigue, sleep, memory, and mood issues.",
			Symptoms:        []string{"Muscle pain", "Fatigue", "Sleep problems", "Memory loss", "Joint pain"},
			Prevalence:      "2-4% of the population, more common in women",
			Links: []models.Link{
				{Title: "Mayo Clinic - Fibromyalgia", URL: "https://www.mayoclinic.org/diseases-conditions/fibromyalgia"},
				{Title: "National Fibromyalgia Association", URL: "https://www.fmaware.org/"},
			},
		},
	}
}
