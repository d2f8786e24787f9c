package prediction

import (
	"fmt"

	"github.com/raredx/triage/pkg/common/models"
)

const (
	maxAgeYears = 120
	// DefaultMinSymptoms is the smallest symptom set accepted for prediction.
	DefaultMinSymptoms = 3
)

// Validate checks the submission before any upstream call is made.
func Validate(req models.PredictionRequest, minSymptoms int) error {
	if minSymptoms <= 0 {
		minSymptoms = DefaultMinSymptoms
	}
	errs := ValidationErrors{}

	switch {
	case req.AgeYears < 0 || req.AgeYears > maxAgeYears:
		errs["age_years"] = fmt.Sprintf("age must be between 0 and %d years", maxAgeYears)
	case req.AgeMonths < 0 || req.AgeMonths > 11:
		errs["age_months"] = "months must be between 0 and 11"
	case req.AgeInMonths() < 1:
		errs["age_years"] = "age is required"
	case req.AgeYears == maxAgeYears && req.AgeMonths > 0:
		errs["age_months"] = fmt.Sprintf("age must not exceed %d years", maxAgeYears)
	}

	if n := req.SymptomCount(); n < minSymptoms {
		errs["symptoms"] = fmt.Sprintf("select at least %d symptoms, got %d", minSymptoms, n)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
