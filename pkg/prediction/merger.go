package prediction

import (
	"context"

	"github.com/raredx/triage/pkg/common/logger"
	"github.com/raredx/triage/pkg/common/models"
	"github.com/raredx/triage/pkg/observability/metrics"
	"github.com/raredx/triage/pkg/phenotype"
	"github.com/raredx/triage/pkg/registry"
)

// MatchEvidence collects the canonical codes known to be matched for one
// disease from every stored source.
func MatchEvidence(registryCodes phenotype.CodeSet, summary *models.DiseaseCandidate) phenotype.CodeSet {
	evidence := phenotype.NewCodeSet()
	evidence.Union(registryCodes)
	if summary == nil {
		return evidence
	}
	for _, d := range summary.Phenotypes {
		if d.Matched {
			evidence.Add(d.Code)
		}
	}
	for _, code := range SplitCodes(summary.MatchingCodes) {
		evidence.Add(code)
	}
	return evidence
}

// MergeMatchStatus returns a copy of fresh in which a phenotype is matched if
// the detail response flagged it or any evidence source contains its code.
// MatchedSymptoms is recomputed from the result.
func MergeMatchStatus(fresh models.DiseasePhenotypes, registryCodes phenotype.CodeSet, summary *models.DiseaseCandidate) models.DiseasePhenotypes {
	evidence := MatchEvidence(registryCodes, summary)

	out := fresh
	out.Symptoms = make([]models.PhenotypeMatchDetail, len(fresh.Symptoms))
	matched := 0
	for i, s := range fresh.Symptoms {
		merged := s
		if s.Connected != nil {
			merged.Connected = append([]models.ConnectedTerm(nil), s.Connected...)
		}
		merged.Matched = s.Matched || evidence.Has(s.Code)
		if merged.Matched {
			matched++
		}
		out.Symptoms[i] = merged
	}
	out.MatchedSymptoms = matched
	if out.TotalSymptoms <= 0 {
		out.TotalSymptoms = len(out.Symptoms)
	}
	return out
}

type Merger struct {
	registry registry.Registry
}

func NewMerger(reg registry.Registry) *Merger {
	return &Merger{registry: reg}
}

// Merge looks up the registry entry for (token, disease) and merges it with
// the summary evidence. Registry errors are logged and contribute nothing.
func (m *Merger) Merge(ctx context.Context, fresh models.DiseasePhenotypes, token, disease string, summary *models.DiseaseCandidate) models.DiseasePhenotypes {
	var codes phenotype.CodeSet
	if m.registry != nil && token != "" {
		found, ok, err := m.registry.GetMatched(ctx, token, disease)
		switch {
		case err != nil:
			logger.Log.WithError(err).WithField("disease", disease).Warn("match registry lookup failed")
		case ok:
			codes = found
		}
	}

	merged := MergeMatchStatus(fresh, codes, summary)
	if flipped := merged.MatchedSymptoms - CountMatched(fresh.Symptoms); flipped > 0 {
		metrics.ObserveMergedMatches(flipped)
	}
	return merged
}
