// Package registry remembers which phenotype codes the prediction service
// reported as matched for each (session token, disease) pair so that later
// detail views can recover them.
package registry

import (
	"context"
	"strings"

	"github.com/raredx/triage/pkg/phenotype"
)

// Registry is written once per mapped prediction response and read by detail
// views. Absence is reported through the bool, never through an empty set.
type Registry interface {
	SetMatched(ctx context.Context, token, diseaseName string, codes []string) error
	GetMatched(ctx context.Context, token, diseaseName string) (phenotype.CodeSet, bool, error)
}

// NormalizeDiseaseName folds a disease display name into its key form.
func NormalizeDiseaseName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Key is the composite lookup key. Tokens are server-generated UUIDs, so the
// pair is unique per session even when disease names repeat across sessions.
func Key(token, diseaseName string) string {
	return token + "::" + NormalizeDiseaseName(diseaseName)
}
