package audit

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/raredx/triage/pkg/common/logger"
)

type Handler struct {
	store Store
}

func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/predictions/recent", h.handleRecent).Methods(http.MethodGet)
}

func (h *Handler) handleRecent(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit > 500 {
		limit = 500
	}
	logs, err := h.store.Recent(r.Context(), limit)
	if err != nil {
		logger.Log.WithError(err).Error("failed to list prediction logs")
		http.Error(w, "failed to list prediction logs", http.StatusInternalServerError)
		return
	}
	if logs == nil {
		logs = []PredictionLog{}
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"predictions": logs}); err != nil {
		logger.Log.WithError(err).Error("failed to write json response")
	}
}
