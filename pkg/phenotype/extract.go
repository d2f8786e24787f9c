package phenotype

import (
	"strings"

	"github.com/raredx/triage/pkg/common/logger"
	"github.com/raredx/triage/pkg/common/models"
)

// Resolver maps a display name or synonym to a catalog term.
type Resolver interface {
	Resolve(name string) (models.PhenotypeTerm, bool)
}

// ExtractCodes collects the codes of already-resolved selections. Empty codes
// and unresolved placeholders are dropped; duplicates pass through.
func ExtractCodes(selections []models.SymptomSelection) []string {
	codes := make([]string, 0, len(selections))
	for _, s := range selections {
		code := strings.TrimSpace(s.Code)
		if code == "" {
			continue
		}
		if IsPlaceholder(code) {
			logger.Log.WithField("symptom", s.Name).Debug("skipping unresolved placeholder symptom")
			continue
		}
		codes = append(codes, Normalize(code))
	}
	return codes
}

// ResolveNames handles the legacy input mode where only display names are
// known. Names the catalog cannot resolve are logged and dropped.
func ResolveNames(names []string, resolver Resolver) []string {
	codes := make([]string, 0, len(names))
	if resolver == nil {
		logger.Log.WithField("names", len(names)).Warn("no phenotype catalog loaded, legacy symptom names dropped")
		return codes
	}
	for _, name := range names {
		term, ok := resolver.Resolve(name)
		if !ok || term.ID == "" {
			logger.Log.WithField("symptom", name).Warn("symptom name not found in phenotype catalog")
			continue
		}
		codes = append(codes, Normalize(term.ID))
	}
	return codes
}

// Extract uses the object form when selections are given and
// falls back to name resolution otherwise.
func Extract(selections []models.SymptomSelection, names []string, resolver Resolver) []string {
	if len(selections) > 0 {
		return ExtractCodes(selections)
	}
	return ResolveNames(names, resolver)
}
