// Package prediction turns prediction-service payloads into ranked disease
// candidates and reconciles matched phenotype evidence for detail views.
package prediction

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/raredx/triage/pkg/common/logger"
	"github.com/raredx/triage/pkg/common/models"
	"github.com/raredx/triage/pkg/observability/metrics"
	"github.com/raredx/triage/pkg/phenotype"
	"github.com/raredx/triage/pkg/rdx"
	"github.com/raredx/triage/pkg/registry"
)

const DefaultMaxCandidates = 20

type Mapper struct {
	registry      registry.Registry
	maxCandidates int
}

// NewMapper returns a mapper that records matched codes in reg. A nil
// registry disables recording.
func NewMapper(reg registry.Registry, maxCandidates int) *Mapper {
	if maxCandidates <= 0 {
		maxCandidates = DefaultMaxCandidates
	}
	return &Mapper{registry: reg, maxCandidates: maxCandidates}
}

// MapResponse converts the ranked payload into display candidates, keeping
// the upstream order. Matched codes of each disease are stored under
// (token, disease name); a failed store is logged and mapping continues.
func (m *Mapper) MapResponse(ctx context.Context, payload *rdx.PredictionPayload, token string) []models.DiseaseCandidate {
	if payload == nil || len(payload.Predictions) == 0 {
		return []models.DiseaseCandidate{}
	}
	entries := payload.Predictions
	if len(entries) > m.maxCandidates {
		entries = entries[:m.maxCandidates]
	}

	out := make([]models.DiseaseCandidate, 0, len(entries))
	for i, raw := range entries {
		candidate, matchedCodes := mapEntry(i, raw)
		if token != "" && raw.Disease != "" {
			m.record(ctx, token, raw.Disease, matchedCodes)
		}
		out = append(out, candidate)
	}
	return out
}

func (m *Mapper) record(ctx context.Context, token, disease string, codes []string) {
	if m.registry == nil {
		return
	}
	if err := m.registry.SetMatched(ctx, token, disease, codes); err != nil {
		metrics.ObserveRegistryWriteFailure()
		logger.Log.WithError(err).WithField("disease", disease).Warn("unable to store matched phenotype codes")
	}
}

func mapEntry(i int, raw rdx.RawPrediction) (models.DiseaseCandidate, []string) {
	n := i + 1
	details := make([]models.PhenotypeMatchDetail, 0, len(raw.Details))
	var matchedCodes []string
	for _, d := range raw.Details {
		detail := d.Detail()
		details = append(details, detail)
		if detail.Matched {
			if code := phenotype.Normalize(detail.Code); code != "" {
				matchedCodes = append(matchedCodes, code)
			}
		}
	}
	matched := CountMatched(details)
	total := len(details)

	name := raw.Disease
	if name == "" {
		name = fmt.Sprintf("Disease %d", n)
	}

	c := models.DiseaseCandidate{
		ID:              fmt.Sprintf("disease-%d", n),
		Name:            name,
		Confidence:      ParseConfidence(raw.MatchPercentage),
		MatchPercentage: Percentage(matched, total),
		MatchedNodes:    fmt.Sprintf("%d/%d", matched, total),
		MatchingCodes:   strings.Join(matchedCodes, ","),
		MatchedCount:    matched,
		TotalCount:      total,
		Rank:            n,
		Description:     raw.Description,
		Symptoms:        raw.Symptoms,
		Prevalence:      raw.Prevalence,
		RDXScore:        raw.RDXScore.Ptr(),
		Phenotypes:      details,
		Links:           make([]models.Link, 0, len(raw.Resources)),
	}
	if raw.Rank.Valid && raw.Rank.Value >= 1 {
		c.Rank = int(raw.Rank.Value)
	}
	if raw.Weight.Valid {
		c.Weight = raw.Weight.Value
	}
	if c.Description == "" {
		c.Description = "Description for " + name
	}
	if c.Prevalence == "" {
		c.Prevalence = "Unknown"
	}
	if c.Symptoms == nil {
		c.Symptoms = make([]string, 0, len(details))
		for _, d := range details {
			c.Symptoms = append(c.Symptoms, d.Name)
		}
	}
	for j, r := range raw.Resources {
		link := models.Link{Title: r.Title, URL: r.URL}
		if link.Title == "" {
			link.Title = fmt.Sprintf("Resource %d", j+1)
		}
		if link.URL == "" {
			link.URL = "#"
		}
		c.Links = append(c.Links, link)
	}
	return c, matchedCodes
}

// CountMatched returns the number of details flagged matched.
func CountMatched(details []models.PhenotypeMatchDetail) int {
	n := 0
	for _, d := range details {
		if d.Matched {
			n++
		}
	}
	return n
}

// Percentage renders round(matched/total*100) with a "%" suffix, or "0%"
// when total is zero.
func Percentage(matched, total int) string {
	if total <= 0 {
		return "0%"
	}
	return fmt.Sprintf("%d%%", int(math.Round(float64(matched)/float64(total)*100)))
}

// ParseConfidence reads the leading number of a percentage string such as
// "78.5%". Unparsable input yields 0; the result is clamped to [0, 100].
func ParseConfidence(s string) float64 {
	s = strings.TrimSpace(s)
	end := 0
	seenDigit, seenDot := false, false
scan:
	for ; end < len(s); end++ {
		ch := s[end]
		switch {
		case ch >= '0' && ch <= '9':
			seenDigit = true
		case ch == '.' && !seenDot:
			seenDot = true
		case (ch == '-' || ch == '+') && end == 0:
		default:
			break scan
		}
	}
	if !seenDigit {
		return 0
	}
	v, err := strconv.ParseFloat(strings.TrimSuffix(s[:end], "."), 64)
	if err != nil || math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(100, v))
}

// SplitCodes splits a comma-separated code string, normalizing each part and
// dropping blanks.
func SplitCodes(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if code := phenotype.Normalize(strings.TrimSpace(p)); code != "" {
			out = append(out, code)
		}
	}
	return out
}
