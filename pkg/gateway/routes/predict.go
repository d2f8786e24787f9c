package routes

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/raredx/triage/pkg/common/models"
	"github.com/raredx/triage/pkg/prediction"
)

type PredictionHandler struct {
	service *prediction.Service
}

func NewPredictionHandler(service *prediction.Service) *PredictionHandler {
	return &PredictionHandler{service: service}
}

func (h *PredictionHandler) Register(r *mux.Router) {
	r.HandleFunc("/predict", h.handlePredict).Methods(http.MethodPost)
	r.HandleFunc("/sessions/{token}", h.handleSession).Methods(http.MethodGet)
	r.HandleFunc("/diseases/{name}/phenotypes", h.handleDiseasePhenotypes).Methods(http.MethodGet)
	r.HandleFunc("/diseases/{name}/info", h.handleDiseaseInfo).Methods(http.MethodGet)
}

type predictResponse struct {
	models.PredictionResponse
	Warning string `json:"warning,omitempty"`
}

func (h *PredictionHandler) handlePredict(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req models.PredictionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid prediction request")
		return
	}

	res, err := h.service.Predict(r.Context(), req)
	if err != nil {
		respondFailure(w, err, "failed to get predictions")
		return
	}

	resp := predictResponse{PredictionResponse: models.PredictionResponse{
		Token:      res.Token,
		Candidates: res.Candidates,
		Fallback:   res.Fallback,
	}}
	if res.Fallback {
		resp.Warning = "prediction service unavailable, showing demonstration results"
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *PredictionHandler) handleSession(w http.ResponseWriter, r *http.Request) {
	token, err := pathVar(r, "token")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	snapshot, err := h.service.Session(r.Context(), token)
	if err != nil {
		respondFailure(w, err, "failed to load session")
		return
	}
	respondJSON(w, http.StatusOK, snapshot)
}

func (h *PredictionHandler) handleDiseasePhenotypes(w http.ResponseWriter, r *http.Request) {
	name, err := pathVar(r, "name")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	detail, err := h.service.DiseaseDetail(r.Context(), r.URL.Query().Get("uuid"), name)
	if err != nil {
		respondFailure(w, err, "failed to load disease phenotypes")
		return
	}
	respondJSON(w, http.StatusOK, detail)
}

func (h *PredictionHandler) handleDiseaseInfo(w http.ResponseWriter, r *http.Request) {
	name, err := pathVar(r, "name")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	info, err := h.service.DiseaseInfo(r.Context(), name)
	if err != nil {
		respondFailure(w, err, "failed to load disease information")
		return
	}
	respondJSON(w, http.StatusOK, info)
}
