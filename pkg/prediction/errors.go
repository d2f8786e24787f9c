package prediction

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/raredx/triage/pkg/gateway/httpclient"
	"github.com/raredx/triage/pkg/rdx"
)

var (
	ErrSessionRequired = errors.New("prediction session token is required")
	ErrNoTermsFound    = errors.New("no matching terms found")
	ErrEmptyText       = errors.New("text is required")
	ErrEmptyDisease    = errors.New("disease name is required")
	ErrEmptyCode       = errors.New("phenotype code is required")
)

// ErrorKind classifies an upstream failure.
type ErrorKind string

const (
	KindNetwork   ErrorKind = "network"
	KindStatus    ErrorKind = "status"
	KindMalformed ErrorKind = "malformed"
	KindCancelled ErrorKind = "cancelled"
)

// PredictionError is returned when the prediction service could not produce
// a usable response. Status is set for KindStatus only.
type PredictionError struct {
	Kind   ErrorKind
	Status int
	Err    error
}

func (e *PredictionError) Error() string {
	if e.Kind == KindStatus {
		return fmt.Sprintf("prediction %s error (%d): %v", e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("prediction %s error: %v", e.Kind, e.Err)
}

func (e *PredictionError) Unwrap() error {
	return e.Err
}

// Classify wraps an upstream error in a PredictionError. Transport failures,
// timeouts and anything unrecognised are reported as KindNetwork.
func Classify(err error) *PredictionError {
	if err == nil {
		return nil
	}
	var pe *PredictionError
	if errors.As(err, &pe) {
		return pe
	}
	var statusErr *httpclient.StatusError
	switch {
	case errors.Is(err, context.Canceled):
		return &PredictionError{Kind: KindCancelled, Err: err}
	case errors.As(err, &statusErr):
		return &PredictionError{Kind: KindStatus, Status: statusErr.StatusCode, Err: err}
	case errors.Is(err, rdx.ErrMalformedResponse):
		return &PredictionError{Kind: KindMalformed, Err: err}
	}
	return &PredictionError{Kind: KindNetwork, Err: err}
}

// ValidationErrors maps request fields to their messages.
type ValidationErrors map[string]string

func (v ValidationErrors) Error() string {
	fields := make([]string, 0, len(v))
	for f := range v {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+": "+v[f])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}
