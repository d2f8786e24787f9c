// Package dlp removes direct identifiers from free-text symptom descriptions
// before they are sent to the phenotype mapping service.
package dlp

import (
	"regexp"
	"sort"
)

type compiledRule struct {
	rule Rule
	re   *regexp.Regexp
}

type Detector struct {
	rules []compiledRule
}

// Finding is the location of one identifier in the scanned text.
type Finding struct {
	Type  string `json:"type"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

type Report struct {
	Detected bool      `json:"detected"`
	Types    []string  `json:"types,omitempty"`
	Findings []Finding `json:"findings,omitempty"`
}

func NewDetector(cfg RulesConfig) (*Detector, error) {
	var compiled []compiledRule
	for _, rule := range cfg.Rules {
		if !rule.Enabled {
			continue
		}
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, compiledRule{rule: rule, re: re})
	}
	return &Detector{rules: compiled}, nil
}

// Scan reports every identifier found in text. Values are never included.
func (d *Detector) Scan(text string) Report {
	if d == nil {
		return Report{}
	}

	var findings []Finding
	types := make(map[string]struct{})
	for _, rule := range d.rules {
		for _, m := range rule.re.FindAllStringIndex(text, -1) {
			findings = append(findings, Finding{Type: rule.rule.Type, Start: m[0], End: m[1]})
			types[rule.rule.Type] = struct{}{}
		}
	}

	report := Report{Detected: len(findings) > 0, Findings: findings}
	for t := range types {
		report.Types = append(report.Types, t)
	}
	sort.Strings(report.Types)
	sort.Slice(report.Findings, func(i, j int) bool { return report.Findings[i].Start < report.Findings[j].Start })
	return report
}

// Scrub replaces every identifier with its rule mask. A nil detector returns
// text unchanged.
func (d *Detector) Scrub(text string) (string, Report) {
	if d == nil {
		return text, Report{}
	}
	report := d.Scan(text)
	if !report.Detected {
		return text, report
	}
	masked := text
	for _, rule := range d.rules {
		masked = rule.re.ReplaceAllLiteralString(masked, rule.rule.Mask)
	}
	return masked, report
}
