// Package rdx is the client for the upstream RDX services: graph prediction,
// disease phenotype listing, free-text mapping, related terms, phenotype
// catalog, authentication and disease information.
package rdx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/raredx/triage/pkg/common/config"
	"github.com/raredx/triage/pkg/common/logger"
	"github.com/raredx/triage/pkg/common/models"
	"github.com/raredx/triage/pkg/common/requestid"
	"github.com/raredx/triage/pkg/gateway/httpclient"
)

const tokenHeader = "rdxtoken"

var (
	// ErrMalformedResponse wraps every body that could not be decoded.
	ErrMalformedResponse = errors.New("malformed upstream response")
	// ErrCatalogUnavailable is returned when no catalog service is configured.
	ErrCatalogUnavailable = errors.New("phenotype catalog service not configured")
)

type Endpoints struct {
	Predict  string
	Mapping  string
	Related  string
	Catalog  string
	Auth     string
	Email    string
	Password string
}

type Client struct {
	http      *http.Client
	endpoints Endpoints
	retries   int
	backoff   time.Duration
	tokens    *tokenCache
}

type Option func(*Client)

func WithRetries(attempts int, backoff time.Duration) Option {
	return func(c *Client) {
		c.retries = attempts
		c.backoff = backoff
	}
}

func WithTokenTTL(ttl, timeout time.Duration) Option {
	return func(c *Client) {
		c.tokens = newTokenCache(&loginTokenSource{client: c, ttl: ttl, timeout: timeout, nowFunc: time.Now})
	}
}

func NewClient(httpClient *http.Client, endpoints Endpoints, opts ...Option) *Client {
	c := &Client{
		http:      httpClient,
		endpoints: endpoints,
		retries:   3,
		backoff:   200 * time.Millisecond,
	}
	c.tokens = newTokenCache(&loginTokenSource{client: c, ttl: 30 * time.Minute, timeout: 10 * time.Second, nowFunc: time.Now})
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewClientFromConfig wires the client from the environment configuration.
func NewClientFromConfig(cfg *config.Config) *Client {
	return NewClient(httpclient.New(cfg.UpstreamTimeout), Endpoints{
		Predict:  cfg.PredictBaseURL,
		Mapping:  cfg.MappingBaseURL,
		Related:  cfg.RelatedTermsBaseURL,
		Catalog:  cfg.CatalogBaseURL,
		Auth:     cfg.AuthBaseURL,
		Email:    cfg.AuthEmail,
		Password: cfg.AuthPassword,
	},
		WithRetries(cfg.UpstreamRetries, 200*time.Millisecond),
		WithTokenTTL(cfg.AuthTokenTTL, cfg.UpstreamTimeout),
	)
}

// Predict submits phenotype codes and the age in months for one session.
func (c *Client) Predict(ctx context.Context, codes []string, ageMonths int, token string) (*PredictionPayload, error) {
	var payload PredictionPayload
	body := predictRequest{HPOIDs: codes, Age: ageMonths, UUID: token}
	if err := c.doJSON(ctx, http.MethodPost, join(c.endpoints.Predict, "/graphpredict"), body, nil, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// DiseasePhenotypes lists every phenotype of a disease with the matched flags
// the upstream computed for the session.
func (c *Client) DiseasePhenotypes(ctx context.Context, disease, token string) (models.DiseasePhenotypes, error) {
	q := url.Values{}
	q.Set("disease", strings.TrimSpace(disease))
	q.Set("uuid", token)

	var payload DiseasePhenotypesPayload
	if err := c.doJSON(ctx, http.MethodGet, join(c.endpoints.Predict, "/disease/hpos")+"?"+q.Encode(), nil, nil, &payload); err != nil {
		return models.DiseasePhenotypes{}, err
	}
	return payload.Model(disease), nil
}

// MapText resolves free text to phenotype terms.
func (c *Client) MapText(ctx context.Context, text string) ([]models.PhenotypeTerm, error) {
	var resp mappingResponse
	body := mappingRequest{Text: text, UUID: uuid.New().String()}
	if err := c.doJSON(ctx, http.MethodPost, join(c.endpoints.Mapping, "/map-hpo"), body, nil, &resp); err != nil {
		return nil, err
	}
	terms := make([]models.PhenotypeTerm, 0, len(resp.HPOTerms))
	for _, t := range resp.HPOTerms {
		id := firstNonEmpty(t.ID, t.HPOID)
		if id == "" {
			continue
		}
		terms = append(terms, models.PhenotypeTerm{ID: id, Name: firstNonEmpty(t.Name, t.HPOName)})
	}
	return terms, nil
}

// RelatedTerms fetches ontology neighbours of a phenotype for a session.
func (c *Client) RelatedTerms(ctx context.Context, code, token string) ([]models.ConnectedTerm, error) {
	q := url.Values{}
	q.Set("hpo_id", code)
	q.Set("uuid", token)

	var resp relatedResponse
	if err := c.doJSON(ctx, http.MethodGet, join(c.endpoints.Related, "/hpo/related")+"?"+q.Encode(), nil, nil, &resp); err != nil {
		return nil, err
	}
	out := make([]models.ConnectedTerm, 0, len(resp.RelatedTerms))
	for _, t := range resp.RelatedTerms {
		out = append(out, connectedTerm(t))
	}
	return out, nil
}

// SearchPhenotypes queries the remote catalog. Only one attempt is made so a
// superseded search is abandoned immediately.
func (c *Client) SearchPhenotypes(ctx context.Context, query string) ([]models.PhenotypeTerm, error) {
	if c.endpoints.Catalog == "" {
		return nil, ErrCatalogUnavailable
	}
	q := url.Values{}
	q.Set("q", strings.TrimSpace(query))
	return c.catalogTerms(ctx, join(c.endpoints.Catalog, "/hpo/search")+"?"+q.Encode(), 1)
}

// ListPhenotypes downloads the full catalog for local resolution.
func (c *Client) ListPhenotypes(ctx context.Context) ([]models.PhenotypeTerm, error) {
	if c.endpoints.Catalog == "" {
		return nil, ErrCatalogUnavailable
	}
	return c.catalogTerms(ctx, join(c.endpoints.Catalog, "/hpo/terms"), c.retries)
}

func (c *Client) catalogTerms(ctx context.Context, target string, attempts int) ([]models.PhenotypeTerm, error) {
	var entries []catalogEntry
	if err := c.do(ctx, attempts, http.MethodGet, target, nil, nil, &entries); err != nil {
		return nil, err
	}
	terms := make([]models.PhenotypeTerm, 0, len(entries))
	for _, e := range entries {
		terms = append(terms, e.term())
	}
	return terms, nil
}

// DiseaseInfo looks up descriptive disease metadata. A rejected token is
// refreshed once.
func (c *Client) DiseaseInfo(ctx context.Context, name string) (models.DiseaseInfo, error) {
	info, err := c.diseaseInfo(ctx, name)
	var statusErr *httpclient.StatusError
	if errors.As(err, &statusErr) && (statusErr.StatusCode == http.StatusUnauthorized || statusErr.StatusCode == http.StatusForbidden) {
		logger.Log.WithField("disease", name).Info("rdx token rejected, logging in again")
		c.tokens.Invalidate()
		info, err = c.diseaseInfo(ctx, name)
	}
	return info, err
}

func (c *Client) diseaseInfo(ctx context.Context, name string) (models.DiseaseInfo, error) {
	tok, err := c.tokens.Token()
	if err != nil {
		return models.DiseaseInfo{}, fmt.Errorf("rdx login: %w", err)
	}
	header := http.Header{}
	header.Set(tokenHeader, tok.AccessToken)

	var raw json.RawMessage
	if err := c.doJSON(ctx, http.MethodPost, join(c.endpoints.Auth, "/doctors/diseaseinfo"), diseaseInfoRequest{Name: name}, header, &raw); err != nil {
		return models.DiseaseInfo{}, err
	}
	return decodeDiseaseInfo(raw)
}

// decodeDiseaseInfo unwraps array responses to their first element and fills
// disease_name from name when only the latter is sent.
func decodeDiseaseInfo(raw json.RawMessage) (models.DiseaseInfo, error) {
	var info models.DiseaseInfo
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var list []models.DiseaseInfo
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return info, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		if len(list) > 0 {
			info = list[0]
		}
	} else if err := json.Unmarshal(trimmed, &info); err != nil {
		return info, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if info.DiseaseName == "" && info.Name != "" {
		info.DiseaseName = info.Name
	}
	return info, nil
}

func (c *Client) login(ctx context.Context) (string, error) {
	var resp loginResponse
	body := loginRequest{Email: c.endpoints.Email, Password: c.endpoints.Password}
	if err := c.doJSON(ctx, http.MethodPost, join(c.endpoints.Auth, "/login"), body, nil, &resp); err != nil {
		return "", err
	}
	if resp.Token == "" {
		return "", ErrNoToken
	}
	return resp.Token, nil
}

func (c *Client) doJSON(ctx context.Context, method, target string, body interface{}, header http.Header, out interface{}) error {
	return c.do(ctx, c.retries, method, target, body, header, out)
}

func (c *Client) do(ctx context.Context, attempts int, method, target string, body interface{}, header http.Header, out interface{}) error {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = b
	}
	reqID := requestid.FromContext(ctx)
	start := time.Now()

	var status int
	err := httpclient.Retry(ctx, attempts, c.backoff, func() error {
		var reqBody io.Reader
		if payload != nil {
			reqBody = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
		if err != nil {
			return err
		}
		for k, v := range header {
			req.Header[k] = v
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set(requestid.Header, reqID)

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		status = resp.StatusCode

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &httpclient.StatusError{URL: redact(target), StatusCode: resp.StatusCode, Message: errorMessage(resp.Body)}
		}
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		return nil
	})

	entry := logger.Log.WithFields(map[string]interface{}{
		"method":     method,
		"url":        redact(target),
		"status":     status,
		"request_id": reqID,
		"latency_ms": time.Since(start).Milliseconds(),
	})
	if err != nil {
		entry.WithError(err).Warn("rdx upstream call failed")
		return err
	}
	entry.Debug("rdx upstream call completed")
	return nil
}

// errorMessage extracts {"message": ...} from an error body when present.
func errorMessage(body io.Reader) string {
	var e struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(body, 64*1024)).Decode(&e); err != nil {
		return ""
	}
	return firstNonEmpty(e.Message, e.Error)
}

func join(base, path string) string {
	return strings.TrimRight(base, "/") + path
}

// redact drops the query string, which carries session tokens.
func redact(target string) string {
	if i := strings.IndexByte(target, '?'); i >= 0 {
		return target[:i]
	}
	return target
}
