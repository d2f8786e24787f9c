// Package phenotype canonicalizes HPO phenotype codes and derives the code
// list submitted to the prediction service.
package phenotype

import (
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
)

const (
	// Prefix is the canonical ontology prefix, colon included.
	Prefix = "HP:"

	placeholderPrefix = "temp-"
	termBrowserURL    = "https://hpo.jax.org/app/browse/term/"
)

// Normalize returns the canonical HP:NNNNNNN form of raw. Blank input is
// returned as the empty string; callers must not use it as a map key.
func Normalize(raw string) string {
	if raw == "" {
		return raw
	}
	t := strings.ToUpper(strings.TrimSpace(norm.NFKC.String(raw)))
	if t == "" {
		return ""
	}
	if strings.HasPrefix(t, Prefix) {
		return t
	}
	bare := strings.TrimPrefix(t, "HP")
	bare = strings.TrimPrefix(bare, "_")
	return Prefix + bare
}

// IsCanonical reports whether code is already in normalized form.
func IsCanonical(code string) bool {
	return code != "" && Normalize(code) == code
}

// IsPlaceholder reports whether code is an unresolved free-text placeholder.
func IsPlaceholder(code string) bool {
	return strings.HasPrefix(strings.TrimSpace(code), placeholderPrefix)
}

// TermURL links a code to the public HPO browser.
func TermURL(code string) string {
	return termBrowserURL + Normalize(code)
}

// CodeSet is a set of canonical phenotype codes.
type CodeSet map[string]struct{}

// NewCodeSet normalizes every non-blank code into a new set.
func NewCodeSet(codes ...string) CodeSet {
	s := make(CodeSet, len(codes))
	for _, c := range codes {
		s.Add(c)
	}
	return s
}

// Add normalizes code and inserts it. Blank codes are ignored.
func (s CodeSet) Add(code string) {
	if n := Normalize(code); n != "" {
		s[n] = struct{}{}
	}
}

// Has normalizes code before the membership test. A nil set contains nothing.
func (s CodeSet) Has(code string) bool {
	if s == nil {
		return false
	}
	_, ok := s[Normalize(code)]
	return ok
}

func (s CodeSet) Len() int {
	return len(s)
}

// Union adds every member of other.
func (s CodeSet) Union(other CodeSet) {
	for c := range other {
		s[c] = struct{}{}
	}
}

// Sorted returns the members in lexical order.
func (s CodeSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
