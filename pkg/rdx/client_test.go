package rdx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/raredx/triage/pkg/common/requestid"
	"github.com/raredx/triage/pkg/gateway/httpclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(srv *httptest.Server) *Client {
	return NewClient(srv.Client(), Endpoints{
		Predict:  srv.URL,
		Mapping:  srv.URL,
		Related:  srv.URL,
		Catalog:  srv.URL,
		Auth:     srv.URL,
		Email:    "doctor@example.org",
		Password: "secret",
	}, WithRetries(3, time.Millisecond))
}

func TestPredictSendsPayloadAndDecodesVariants(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/graphpredict", r.URL.Path)
		assert.Equal(t, "req-42", r.Header.Get(requestid.Header))

		var body map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, float64(300), body["age"])
		assert.Equal(t, "tok", body["uuid"])
		assert.Len(t, body["hpo_ids"], 2)

		fmt.Fprint(w, `{"diseases":[{"Disease":"Marfan Syndrome","Match_Percentage":"50%","Weight":"1.5","RDX_Score":0.7,"Rank":"2",
			"HPO_Details":[{"hpo_id":"HP:0001166","hpo_name":"Arachnodactyly","matched":true,
				"connected_hpos":[{"hpo_id":"HP:0001519","hpo_name":"Disproportionate tall stature"}]}]}]}`)
	}))
	defer srv.Close()

	ctx := requestid.NewContext(context.Background(), "req-42")
	payload, err := newTestClient(srv).Predict(ctx, []string{"HP:0001166", "HP:0002650"}, 300, "tok")
	require.NoError(t, err)
	require.Len(t, payload.Predictions, 1)

	p := payload.Predictions[0]
	assert.Equal(t, "Marfan Syndrome", p.Disease)
	assert.Equal(t, 1.5, p.Weight.Value)
	assert.True(t, p.RDXScore.Valid)
	assert.Equal(t, 2.0, p.Rank.Value)
	require.Len(t, p.Details, 1)

	detail := p.Details[0].Detail()
	assert.True(t, detail.Matched)
	require.Len(t, detail.Connected, 1)
	assert.Equal(t, "related", detail.Connected[0].Relation)
}

func TestPredictPrefersHpoDetails(t *testing.T) {
	var p RawPrediction
	require.NoError(t, json.Unmarshal([]byte(`{"Disease":"X",
		"hpoDetails":[{"hpo_id":"HP:1","hpo_name":"a","matched":true}],
		"HPO_Details":[{"hpo_id":"HP:2","hpo_name":"b","matched":false},{"hpo_id":"HP:3","hpo_name":"c","matched":false}]}`), &p))
	require.Len(t, p.Details, 1)
	assert.Equal(t, "HP:1", p.Details[0].HPOID)
}

func TestStatusErrorCarriesMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"message":"hpo_ids must not be empty"}`)
	}))
	defer srv.Close()

	_, err := newTestClient(srv).Predict(context.Background(), nil, 12, "tok")
	var statusErr *httpclient.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
	assert.Equal(t, "hpo_ids must not be empty", statusErr.Message)
}

func TestRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"predictions":[]}`)
	}))
	defer srv.Close()

	payload, err := newTestClient(srv).Predict(context.Background(), []string{"HP:1"}, 12, "tok")
	require.NoError(t, err)
	assert.Empty(t, payload.Predictions)
	assert.Equal(t, int32(3), calls.Load())
}

func TestMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"predictions": [`)
	}))
	defer srv.Close()

	_, err := newTestClient(srv).Predict(context.Background(), []string{"HP:1"}, 12, "tok")
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestDiseasePhenotypes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/disease/hpos", r.URL.Path)
		assert.Equal(t, "Marfan Syndrome", r.URL.Query().Get("disease"))
		assert.Equal(t, "tok", r.URL.Query().Get("uuid"))
		fmt.Fprint(w, `{"disease_name":"Marfan Syndrome",
			"symptoms":[{"hpo_id":"HP:9","hpo_name":"ignored","matched":true}],
			"connected_hpos":[{"hpo_id":"HP:0001166","hpo_name":"Arachnodactyly","matched":true},{"hpo_id":"HP:0002650","hpo_name":"Scoliosis","matched":null}],
			"total_symptoms":0}`)
	}))
	defer srv.Close()

	detail, err := newTestClient(srv).DiseasePhenotypes(context.Background(), "Marfan Syndrome", "tok")
	require.NoError(t, err)
	assert.Equal(t, "Marfan Syndrome", detail.DiseaseID)
	require.Len(t, detail.Symptoms, 2)
	assert.Equal(t, "HP:0001166", detail.Symptoms[0].Code)
	assert.False(t, detail.Symptoms[1].Matched)
	assert.Equal(t, 2, detail.TotalSymptoms)
	assert.Equal(t, 1, detail.MatchedSymptoms)
}

func TestMapTextAndRelated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/map-hpo":
			var body mappingRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "long fingers", body.Text)
			assert.NotEmpty(t, body.UUID)
			fmt.Fprint(w, `{"hpo_terms":[{"id":"HP:0001166","name":"Arachnodactyly"},{"hpo_id":"HP:0001519","hpo_name":"Tall stature"},{"name":"no id"}]}`)
		case "/hpo/related":
			assert.Equal(t, "HP:0001166", r.URL.Query().Get("hpo_id"))
			fmt.Fprint(w, `{"related_terms":[{"hpo_id":"HP:0001238","hpo_name":"Slender finger","relation":"child","score":0.9}]}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()
	c := newTestClient(srv)

	terms, err := c.MapText(context.Background(), "long fingers")
	require.NoError(t, err)
	require.Len(t, terms, 2)
	assert.Equal(t, "Tall stature", terms[1].Name)

	related, err := c.RelatedTerms(context.Background(), "HP:0001166", "tok")
	require.NoError(t, err)
	require.Len(t, related, 1)
	assert.Equal(t, "child", related[0].Relation)
	require.NotNil(t, related[0].Score)
	assert.Equal(t, 0.9, *related[0].Score)
}

func TestCatalog(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/hpo/search":
			assert.Equal(t, "seiz", r.URL.Query().Get("q"))
			fmt.Fprint(w, `[{"hpoid":"HP:0001250","name":"Seizure","synonyms":["Fits"]}]`)
		case "/hpo/terms":
			fmt.Fprint(w, `[{"id":"HP:0001250","name":"Seizure"},{"id":"HP:0001166","name":"Arachnodactyly"}]`)
		}
	}))
	defer srv.Close()
	c := newTestClient(srv)

	found, err := c.SearchPhenotypes(context.Background(), " seiz ")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "HP:0001250", found[0].ID)
	assert.Equal(t, []string{"Fits"}, found[0].Synonyms)

	all, err := c.ListPhenotypes(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = NewClient(http.DefaultClient, Endpoints{}).SearchPhenotypes(context.Background(), "x")
	assert.ErrorIs(t, err, ErrCatalogUnavailable)
}

func TestDiseaseInfoReusesAndRefreshesToken(t *testing.T) {
	var logins, lookups atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/login":
			var body loginRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "doctor@example.org", body.Email)
			n := logins.Add(1)
			fmt.Fprintf(w, `{"token":"t%d"}`, n)
		case "/doctors/diseaseinfo":
			n := lookups.Add(1)
			// the first issued token is revoked after two lookups
			if r.Header.Get(tokenHeader) == "t1" && n > 2 {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			fmt.Fprint(w, `[{"name":"Marfan Syndrome","prevalence":"1-5 / 10 000","inheritance":"Autosomal dominant"}]`)
		}
	}))
	defer srv.Close()
	c := newTestClient(srv)

	for i := 0; i < 2; i++ {
		info, err := c.DiseaseInfo(context.Background(), "Marfan Syndrome")
		require.NoError(t, err)
		assert.Equal(t, "Marfan Syndrome", info.DiseaseName)
		assert.Equal(t, "Autosomal dominant", info.Inheritance)
	}
	assert.Equal(t, int32(1), logins.Load())

	_, err := c.DiseaseInfo(context.Background(), "Marfan Syndrome")
	require.NoError(t, err)
	assert.Equal(t, int32(2), logins.Load())
}

func TestLoginWithoutToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	_, err := newTestClient(srv).DiseaseInfo(context.Background(), "Marfan Syndrome")
	assert.ErrorIs(t, err, ErrNoToken)
}

func TestDecodeDiseaseInfoObject(t *testing.T) {
	info, err := decodeDiseaseInfo(json.RawMessage(`{"disease_name":"Fibromyalgia","name":"other"}`))
	require.NoError(t, err)
	assert.Equal(t, "Fibromyalgia", info.DiseaseName)

	info, err = decodeDiseaseInfo(json.RawMessage(`[]`))
	require.NoError(t, err)
	assert.Empty(t, info.DiseaseName)

	_, err = decodeDiseaseInfo(json.RawMessage(`"nope"`))
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestFlexFloat(t *testing.T) {
	var v struct {
		A FlexFloat `json:"a"`
		B FlexFloat `json:"b"`
		C FlexFloat `json:"c"`
		D FlexFloat `json:"d"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":1.25,"b":"42%","c":null,"d":"abc"}`), &v))
	assert.Equal(t, 1.25, v.A.Value)
	assert.Equal(t, 42.0, v.B.Value)
	assert.False(t, v.C.Valid)
	assert.False(t, v.D.Valid)
	assert.Nil(t, v.D.Ptr())
}
