package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/raredx/triage/pkg/common/models"
	"github.com/raredx/triage/pkg/gateway/httpclient"
	"github.com/raredx/triage/pkg/gateway/middleware"
	"github.com/raredx/triage/pkg/prediction"
	"github.com/raredx/triage/pkg/rdx"
	"github.com/raredx/triage/pkg/registry"
	"github.com/raredx/triage/pkg/session"
	"github.com/raredx/triage/pkg/terminology"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubUpstream struct {
	payload    *rdx.PredictionPayload
	predictErr error
	detail     models.DiseasePhenotypes
	detailErr  error
	mapped     []models.PhenotypeTerm
	related    []models.ConnectedTerm
	disease    string
}

func (s *stubUpstream) Predict(context.Context, []string, int, string) (*rdx.PredictionPayload, error) {
	return s.payload, s.predictErr
}

func (s *stubUpstream) DiseasePhenotypes(_ context.Context, disease, _ string) (models.DiseasePhenotypes, error) {
	s.disease = disease
	return s.detail, s.detailErr
}

func (s *stubUpstream) DiseaseInfo(_ context.Context, name string) (models.DiseaseInfo, error) {
	return models.DiseaseInfo{DiseaseName: name, Prevalence: "1-5 / 10 000"}, nil
}

func (s *stubUpstream) MapText(context.Context, string) ([]models.PhenotypeTerm, error) {
	return s.mapped, nil
}

func (s *stubUpstream) RelatedTerms(context.Context, string, string) ([]models.ConnectedTerm, error) {
	return s.related, nil
}

func newRouter(t *testing.T, upstream *stubUpstream, policy prediction.FallbackPolicy) (*mux.Router, *session.MemoryStore) {
	t.Helper()
	catalog := terminology.DefaultCatalog()
	sessions := session.NewMemoryStore(time.Hour)
	svc := prediction.NewService(prediction.Deps{
		Upstream: upstream,
		Registry: registry.NewMemoryRegistry(time.Hour, 100),
		Sessions: sessions,
		Resolver: catalog,
	}, prediction.Options{Policy: policy})
	searcher := terminology.NewSearcher(func(_ context.Context, q string) ([]models.PhenotypeTerm, error) {
		return catalog.Filter(q, 10), nil
	})

	r := NewRouter()
	NewPredictionHandler(svc).Register(r)
	NewPhenotypeHandler(svc, catalog, searcher).Register(r)
	return r, sessions
}

func serve(r http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

const validRequest = `{"age_years":25,"age_months":0,"symptoms":[
	{"id":"HP:0001166","name":"Arachnodactyly"},
	{"id":"HP:0002650","name":"Scoliosis"},
	{"id":"HP:0001382","name":"Joint hypermobility"}]}`

func TestPredictRoute(t *testing.T) {
	upstream := &stubUpstream{payload: &rdx.PredictionPayload{Predictions: []rdx.RawPrediction{{
		Disease:         "Marfan Syndrome",
		MatchPercentage: "66%",
	}}}}
	r, sessions := newRouter(t, upstream, prediction.FailFast)

	rec := serve(r, http.MethodPost, "/predict", validRequest)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp predictResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Token)
	assert.False(t, resp.Fallback)
	assert.Empty(t, resp.Warning)
	require.Len(t, resp.Candidates, 1)
	assert.Equal(t, "Marfan Syndrome", resp.Candidates[0].Name)

	_, err := sessions.Load(context.Background(), resp.Token)
	assert.NoError(t, err)

	rec = serve(r, http.MethodGet, "/sessions/"+resp.Token, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPredictRouteFallback(t *testing.T) {
	upstream := &stubUpstream{predictErr: &httpclient.StatusError{URL: "u", StatusCode: http.StatusServiceUnavailable}}
	r, _ := newRouter(t, upstream, prediction.FallbackToDemo)

	rec := serve(r, http.MethodPost, "/predict", validRequest)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp predictResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Fallback)
	assert.NotEmpty(t, resp.Warning)
	assert.True(t, strings.HasPrefix(resp.Token, "mock-"))
	assert.Len(t, resp.Candidates, 2)
}

func TestPredictRouteErrors(t *testing.T) {
	upstream := &stubUpstream{predictErr: &httpclient.StatusError{URL: "u", StatusCode: http.StatusInternalServerError}}
	r, _ := newRouter(t, upstream, prediction.FailFast)

	rec := serve(r, http.MethodPost, "/predict", validRequest)
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	rec = serve(r, http.MethodPost, "/predict", `{"age_years":200,"symptoms":[]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body.Fields, "age_years")
	assert.Contains(t, body.Fields, "symptoms")

	rec = serve(r, http.MethodPost, "/predict", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(r, http.MethodGet, "/sessions/unknown", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDiseaseRoutes(t *testing.T) {
	upstream := &stubUpstream{detail: models.DiseasePhenotypes{
		DiseaseName: "Marfan Syndrome",
		Symptoms: []models.PhenotypeMatchDetail{
			{Code: "HP:0001166", Name: "Arachnodactyly", Matched: true},
			{Code: "HP:0001250", Name: "Seizure"},
		},
	}}
	r, _ := newRouter(t, upstream, prediction.FailFast)

	rec := serve(r, http.MethodGet, "/diseases/Marfan%20Syndrome/phenotypes?uuid=tok", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var detail models.DiseasePhenotypes
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	assert.Equal(t, 1, detail.MatchedSymptoms)
	assert.Equal(t, 2, detail.TotalSymptoms)

	rec = serve(r, http.MethodGet, "/diseases/Marfan%20Syndrome/phenotypes", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	upstream.detailErr = &httpclient.StatusError{URL: "u", StatusCode: http.StatusNotFound}
	rec = serve(r, http.MethodGet, "/diseases/Nothing/phenotypes?uuid=tok", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(r, http.MethodGet, "/diseases/Marfan%20Syndrome/info", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var info models.DiseaseInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, "Marfan Syndrome", info.DiseaseName)
}

func TestPhenotypeSearchRoutes(t *testing.T) {
	r, _ := newRouter(t, &stubUpstream{}, prediction.FailFast)

	rec := serve(r, http.MethodGet, "/phenotypes?q=se", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var short termsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &short))
	assert.Empty(t, short.Terms)
	assert.NotNil(t, short.Terms)

	rec = serve(r, http.MethodGet, "/phenotypes?q=seiz&client=c1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var found termsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &found))
	require.NotEmpty(t, found.Terms)
	assert.Equal(t, "HP:0001250", found.Terms[0].ID)

	rec = serve(r, http.MethodGet, "/phenotypes/filter?q=scol&limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var filtered termsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &filtered))
	require.NotEmpty(t, filtered.Terms)
	assert.Equal(t, "HP:0002650", filtered.Terms[0].ID)
}

func TestNormalizeRoute(t *testing.T) {
	r, _ := newRouter(t, &stubUpstream{}, prediction.FailFast)

	rec := serve(r, http.MethodGet, "/phenotypes/normalize?id=hp0001250", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp normalizeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "HP:0001250", resp.Code)
	assert.False(t, resp.Canonical)
	assert.Equal(t, "Seizure", resp.Name)
	assert.Contains(t, resp.URL, "HP:0001250")

	rec = serve(r, http.MethodGet, "/phenotypes/normalize?id=HP:0009999", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Canonical)
	assert.Equal(t, "HP:0009999", resp.Name)

	rec = serve(r, http.MethodGet, "/phenotypes/normalize?id=%20", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMapAndRelatedRoutes(t *testing.T) {
	upstream := &stubUpstream{
		mapped:  []models.PhenotypeTerm{{ID: "0001250", Name: "Seizure"}},
		related: []models.ConnectedTerm{{Code: "HP:0001251", Name: "Ataxia", Relation: "related"}},
	}
	r, _ := newRouter(t, upstream, prediction.FailFast)

	rec := serve(r, http.MethodPost, "/phenotypes/map", `{"text":"my child has fits"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var mapped termsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &mapped))
	require.Len(t, mapped.Terms, 1)
	assert.Equal(t, "HP:0001250", mapped.Terms[0].ID)

	rec = serve(r, http.MethodPost, "/phenotypes/map", `{"text":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	upstream.mapped = nil
	rec = serve(r, http.MethodPost, "/phenotypes/map", `{"text":"nothing useful"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = serve(r, http.MethodGet, "/phenotypes/hp0001250/related?uuid=tok", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var related relatedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &related))
	assert.Equal(t, "HP:0001250", related.Code)
	assert.Len(t, related.RelatedTerms, 1)

	rec = serve(r, http.MethodGet, "/phenotypes/HP:0001250/related", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDiseaseNameWithSlash(t *testing.T) {
	upstream := &stubUpstream{detail: models.DiseasePhenotypes{
		Symptoms: []models.PhenotypeMatchDetail{{Code: "HP:0001006", Name: "Hypotrichosis"}},
	}}
	r, _ := newRouter(t, upstream, prediction.FailFast)
	const escaped = "Hypotrichosis-lymphedema-telangiectasia%2Frenal%20defect%20syndrome"
	const name = "Hypotrichosis-lymphedema-telangiectasia/renal defect syndrome"

	rec := serve(r, http.MethodGet, "/diseases/"+escaped+"/info", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var info models.DiseaseInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, name, info.DiseaseName)

	rec = serve(r, http.MethodGet, "/diseases/"+escaped+"/phenotypes?uuid=tok", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, name, upstream.disease)
}

func TestCORSPreflightThroughRouter(t *testing.T) {
	r, _ := newRouter(t, &stubUpstream{}, prediction.FailFast)
	r.Use(middleware.Logging)
	h := middleware.CORS(r)

	req := httptest.NewRequest(http.MethodOptions, "/predict", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader("not json")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
