package routes

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/raredx/triage/pkg/common/models"
	"github.com/raredx/triage/pkg/observability/metrics"
	"github.com/raredx/triage/pkg/phenotype"
	"github.com/raredx/triage/pkg/prediction"
	"github.com/raredx/triage/pkg/terminology"
)

const (
	minSearchLength = 3
	clientHeader    = "X-Client-ID"
)

type PhenotypeHandler struct {
	service  *prediction.Service
	catalog  *terminology.Catalog
	searcher *terminology.Searcher
}

func NewPhenotypeHandler(service *prediction.Service, catalog *terminology.Catalog, searcher *terminology.Searcher) *PhenotypeHandler {
	return &PhenotypeHandler{service: service, catalog: catalog, searcher: searcher}
}

func (h *PhenotypeHandler) Register(r *mux.Router) {
	r.HandleFunc("/phenotypes", h.handleSearch).Methods(http.MethodGet)
	r.HandleFunc("/phenotypes/filter", h.handleFilter).Methods(http.MethodGet)
	r.HandleFunc("/phenotypes/normalize", h.handleNormalize).Methods(http.MethodGet)
	r.HandleFunc("/phenotypes/map", h.handleMap).Methods(http.MethodPost)
	r.HandleFunc("/phenotypes/{id}/related", h.handleRelated).Methods(http.MethodGet)
}

type termsResponse struct {
	Terms []models.PhenotypeTerm `json:"terms"`
}

// handleSearch runs the catalog search. A newer search from the same client
// (client query parameter or X-Client-ID header) cancels this one.
func (h *PhenotypeHandler) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if len([]rune(q)) < minSearchLength {
		respondJSON(w, http.StatusOK, termsResponse{Terms: []models.PhenotypeTerm{}})
		return
	}
	client := r.URL.Query().Get("client")
	if client == "" {
		client = r.Header.Get(clientHeader)
	}

	terms, err := h.searcher.Search(r.Context(), client, q)
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		if errors.Is(err, terminology.ErrSuperseded) {
			metrics.ObserveSearchSuperseded()
		}
		respondFailure(w, err, "failed to search phenotypes")
		return
	}
	if terms == nil {
		terms = []models.PhenotypeTerm{}
	}
	respondJSON(w, http.StatusOK, termsResponse{Terms: terms})
}

func (h *PhenotypeHandler) handleFilter(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	terms := h.catalog.Filter(r.URL.Query().Get("q"), limit)
	respondJSON(w, http.StatusOK, termsResponse{Terms: terms})
}

type normalizeResponse struct {
	Input     string `json:"input"`
	Code      string `json:"code"`
	Canonical bool   `json:"canonical"`
	URL       string `json:"url"`
	Name      string `json:"name,omitempty"`
}

func (h *PhenotypeHandler) handleNormalize(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("id")
	code := phenotype.Normalize(raw)
	if code == "" {
		respondError(w, http.StatusBadRequest, "id is required")
		return
	}
	respondJSON(w, http.StatusOK, normalizeResponse{
		Input:     raw,
		Code:      code,
		Canonical: phenotype.IsCanonical(raw),
		URL:       phenotype.TermURL(code),
		Name:      h.catalog.Describe(code).Name,
	})
}

type mapRequest struct {
	Text string `json:"text"`
}

func (h *PhenotypeHandler) handleMap(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req mapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid mapping request")
		return
	}

	terms, err := h.service.MapText(r.Context(), req.Text)
	if err != nil {
		respondFailure(w, err, "failed to map symptoms")
		return
	}
	respondJSON(w, http.StatusOK, termsResponse{Terms: terms})
}

type relatedResponse struct {
	Code         string                 `json:"hpo_id"`
	RelatedTerms []models.ConnectedTerm `json:"related_terms"`
}

func (h *PhenotypeHandler) handleRelated(w http.ResponseWriter, r *http.Request) {
	code, err := pathVar(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	terms, err := h.service.Related(r.Context(), code, r.URL.Query().Get("uuid"))
	if err != nil {
		respondFailure(w, err, "failed to fetch related phenotypes")
		return
	}
	if terms == nil {
		terms = []models.ConnectedTerm{}
	}
	respondJSON(w, http.StatusOK, relatedResponse{Code: phenotype.Normalize(code), RelatedTerms: terms})
}
