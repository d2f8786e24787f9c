package prediction

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/raredx/triage/pkg/common/logger"
	"github.com/raredx/triage/pkg/common/models"
	"github.com/raredx/triage/pkg/dlp"
	"github.com/raredx/triage/pkg/observability/metrics"
	"github.com/raredx/triage/pkg/phenotype"
	"github.com/raredx/triage/pkg/rdx"
	"github.com/raredx/triage/pkg/registry"
	"github.com/raredx/triage/pkg/session"
)

// EventPredictionCompleted is published after every answered submission.
const EventPredictionCompleted = "prediction.completed"

// Upstream is the set of remote RDX calls the service depends on.
type Upstream interface {
	Predict(ctx context.Context, codes []string, ageMonths int, token string) (*rdx.PredictionPayload, error)
	DiseasePhenotypes(ctx context.Context, disease, token string) (models.DiseasePhenotypes, error)
	DiseaseInfo(ctx context.Context, name string) (models.DiseaseInfo, error)
	MapText(ctx context.Context, text string) ([]models.PhenotypeTerm, error)
	RelatedTerms(ctx context.Context, code, token string) ([]models.ConnectedTerm, error)
}

type Publisher interface {
	PublishEvent(ctx context.Context, eventType, source, key string, data map[string]interface{}) error
}

type Scrubber interface {
	Scrub(text string) (string, dlp.Report)
}

// Deps are the collaborators of a Service. Upstream is required; the rest
// may be nil.
type Deps struct {
	Upstream  Upstream
	Registry  registry.Registry
	Sessions  session.Store
	Resolver  phenotype.Resolver
	Publisher Publisher
	Scrubber  Scrubber
}

type Options struct {
	Policy        FallbackPolicy
	MinSymptoms   int
	MaxCandidates int
	Source        string
}

// Result is the outcome of one submission. When Fallback is set the
// candidates are the demonstration dataset and Cause holds the upstream error.
type Result struct {
	Token      string
	Candidates []models.DiseaseCandidate
	Fallback   bool
	Cause      *PredictionError
}

type Service struct {
	deps     Deps
	opts     Options
	mapper   *Mapper
	merger   *Merger
	nowFunc  func() time.Time
	newToken func() string
}

func NewService(deps Deps, opts Options) *Service {
	if opts.MinSymptoms <= 0 {
		opts.MinSymptoms = DefaultMinSymptoms
	}
	if opts.Source == "" {
		opts.Source = "triage-gateway"
	}
	return &Service{
		deps:     deps,
		opts:     opts,
		mapper:   NewMapper(deps.Registry, opts.MaxCandidates),
		merger:   NewMerger(deps.Registry),
		nowFunc:  time.Now,
		newToken: func() string { return uuid.New().String() },
	}
}

// Predict validates the request, submits the extracted codes under a fresh
// session token and maps the ranked response. An empty code list returns an
// empty result with no token and no upstream call.
func (s *Service) Predict(ctx context.Context, req models.PredictionRequest) (Result, error) {
	if err := Validate(req, s.opts.MinSymptoms); err != nil {
		metrics.ObservePrediction(metrics.OutcomeInvalid)
		return Result{}, err
	}

	codes := phenotype.Extract(req.Symptoms, req.Names, s.deps.Resolver)
	if len(codes) == 0 {
		logger.Log.WithField("symptoms", req.SymptomCount()).Warn("no valid phenotype codes found for the selected symptoms")
		metrics.ObservePrediction(metrics.OutcomeEmpty)
		return Result{Candidates: []models.DiseaseCandidate{}}, nil
	}

	token := s.newToken()
	log := logger.Log.WithField("session", token)

	payload, err := s.deps.Upstream.Predict(ctx, codes, req.AgeInMonths(), token)
	if err != nil {
		pe := Classify(err)
		metrics.ObserveUpstreamError(string(pe.Kind))
		if s.opts.Policy != FallbackToDemo || pe.Kind == KindCancelled {
			metrics.ObservePrediction(metrics.OutcomeFailed)
			return Result{}, pe
		}
		log.WithError(pe).Warn("prediction service failed, returning demonstration results")
		metrics.ObservePrediction(metrics.OutcomeFallback)
		res := Result{Token: MockToken(s.nowFunc()), Candidates: MockCandidates(), Fallback: true, Cause: pe}
		s.saveSnapshot(ctx, res, req)
		return res, nil
	}

	candidates := s.mapper.MapResponse(ctx, payload, token)
	if len(candidates) == 0 {
		log.Warn("no predictions found in prediction response")
	}
	metrics.ObservePrediction(metrics.OutcomeUpstream)

	res := Result{Token: token, Candidates: candidates}
	s.saveSnapshot(ctx, res, req)
	s.publish(ctx, res, codes, req.AgeInMonths())

	log.WithFields(map[string]interface{}{
		"codes":      len(codes),
		"candidates": len(candidates),
	}).Info("prediction completed")
	return res, nil
}

func (s *Service) saveSnapshot(ctx context.Context, res Result, req models.PredictionRequest) {
	if s.deps.Sessions == nil || res.Token == "" {
		return
	}
	snapshot := models.SessionSnapshot{
		Token:            res.Token,
		Predictions:      res.Candidates,
		SelectedSymptoms: req.Symptoms,
		AgeYears:         req.AgeYears,
		AgeMonths:        req.AgeMonths,
		Timestamp:        s.nowFunc().UTC(),
	}
	if snapshot.SelectedSymptoms == nil {
		for _, name := range req.Names {
			snapshot.SelectedSymptoms = append(snapshot.SelectedSymptoms, models.SymptomSelection{Name: name})
		}
	}
	if err := s.deps.Sessions.Save(ctx, snapshot); err != nil {
		logger.Log.WithError(err).WithField("session", res.Token).Warn("unable to save session snapshot")
	}
}

func (s *Service) publish(ctx context.Context, res Result, codes []string, ageMonths int) {
	if s.deps.Publisher == nil {
		return
	}
	diseases := make([]interface{}, 0, len(res.Candidates))
	for _, c := range res.Candidates {
		diseases = append(diseases, map[string]interface{}{
			"name":             c.Name,
			"rank":             c.Rank,
			"confidence":       c.Confidence,
			"match_percentage": c.MatchPercentage,
		})
	}
	submitted := make([]interface{}, 0, len(codes))
	for _, c := range codes {
		submitted = append(submitted, c)
	}
	data := map[string]interface{}{
		"session":    res.Token,
		"age_months": ageMonths,
		"codes":      submitted,
		"candidates": diseases,
	}
	if err := s.deps.Publisher.PublishEvent(ctx, EventPredictionCompleted, s.opts.Source, res.Token, data); err != nil {
		logger.Log.WithError(err).WithField("session", res.Token).Warn("unable to publish prediction event")
	}
}

// Session returns the stored results of a prediction session.
func (s *Service) Session(ctx context.Context, token string) (models.SessionSnapshot, error) {
	if strings.TrimSpace(token) == "" {
		return models.SessionSnapshot{}, ErrSessionRequired
	}
	if s.deps.Sessions == nil {
		return models.SessionSnapshot{}, session.ErrSnapshotNotFound
	}
	return s.deps.Sessions.Load(ctx, token)
}

// DiseaseDetail fetches every phenotype of disease for the session and merges
// the matched evidence recorded when the prediction was mapped.
func (s *Service) DiseaseDetail(ctx context.Context, token, disease string) (models.DiseasePhenotypes, error) {
	if strings.TrimSpace(token) == "" {
		return models.DiseasePhenotypes{}, ErrSessionRequired
	}
	if strings.TrimSpace(disease) == "" {
		return models.DiseasePhenotypes{}, ErrEmptyDisease
	}

	fresh, err := s.deps.Upstream.DiseasePhenotypes(ctx, disease, token)
	if err != nil {
		return models.DiseasePhenotypes{}, err
	}
	return s.merger.Merge(ctx, fresh, token, disease, s.summary(ctx, token, disease)), nil
}

// summary finds the candidate for disease in the stored session, if any.
func (s *Service) summary(ctx context.Context, token, disease string) *models.DiseaseCandidate {
	if s.deps.Sessions == nil {
		return nil
	}
	snapshot, err := s.deps.Sessions.Load(ctx, token)
	if err != nil {
		if !errors.Is(err, session.ErrSnapshotNotFound) {
			logger.Log.WithError(err).WithField("session", token).Warn("unable to load session snapshot")
		}
		return nil
	}
	want := registry.NormalizeDiseaseName(disease)
	for i := range snapshot.Predictions {
		if registry.NormalizeDiseaseName(snapshot.Predictions[i].Name) == want {
			c := snapshot.Predictions[i]
			return &c
		}
	}
	return nil
}

func (s *Service) DiseaseInfo(ctx context.Context, name string) (models.DiseaseInfo, error) {
	if strings.TrimSpace(name) == "" {
		return models.DiseaseInfo{}, ErrEmptyDisease
	}
	return s.deps.Upstream.DiseaseInfo(ctx, strings.TrimSpace(name))
}

// MapText maps free text to phenotype terms. Identifiers are masked before
// the text leaves the process.
func (s *Service) MapText(ctx context.Context, text string) ([]models.PhenotypeTerm, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}
	if s.deps.Scrubber != nil {
		scrubbed, report := s.deps.Scrubber.Scrub(text)
		if report.Detected {
			metrics.ObserveFreeTextScrubbed()
			logger.Log.WithField("types", report.Types).Info("identifiers masked in free-text symptoms")
		}
		text = scrubbed
	}

	terms, err := s.deps.Upstream.MapText(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(terms) == 0 {
		metrics.ObserveNoTermsFound()
		return nil, ErrNoTermsFound
	}
	for i := range terms {
		terms[i].ID = phenotype.Normalize(terms[i].ID)
	}
	return terms, nil
}

// Related lists the ontology neighbours of code for the session.
func (s *Service) Related(ctx context.Context, code, token string) ([]models.ConnectedTerm, error) {
	code = phenotype.Normalize(code)
	if code == "" {
		return nil, ErrEmptyCode
	}
	if strings.TrimSpace(token) == "" {
		return nil, ErrSessionRequired
	}
	return s.deps.Upstream.RelatedTerms(ctx, code, token)
}
