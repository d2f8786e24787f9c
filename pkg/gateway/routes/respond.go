package routes

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/gorilla/mux"
	"github.com/raredx/triage/pkg/common/logger"
	"github.com/raredx/triage/pkg/gateway/httpclient"
	"github.com/raredx/triage/pkg/prediction"
	"github.com/raredx/triage/pkg/rdx"
	"github.com/raredx/triage/pkg/session"
	"github.com/raredx/triage/pkg/terminology"
)

type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Log.WithError(err).Error("failed to write json response")
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, errorResponse{Error: msg})
}

// respondFailure maps service and upstream errors onto HTTP statuses.
func respondFailure(w http.ResponseWriter, err error, fallbackMsg string) {
	var verrs prediction.ValidationErrors
	var statusErr *httpclient.StatusError
	switch {
	case errors.As(err, &verrs):
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "validation failed", Fields: verrs})
	case errors.Is(err, prediction.ErrSessionRequired),
		errors.Is(err, prediction.ErrEmptyText),
		errors.Is(err, prediction.ErrEmptyDisease),
		errors.Is(err, prediction.ErrEmptyCode):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, session.ErrSnapshotNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, prediction.ErrNoTermsFound):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, terminology.ErrSuperseded):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, rdx.ErrCatalogUnavailable):
		respondError(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound:
		respondError(w, http.StatusNotFound, fallbackMsg)
	default:
		logger.Log.WithError(err).Warn(fallbackMsg)
		respondError(w, http.StatusBadGateway, fallbackMsg)
	}
}

// NewRouter returns the router the handlers expect. Paths are matched in
// their encoded form so that a disease name may contain an escaped slash;
// handlers read path variables through pathVar.
func NewRouter() *mux.Router {
	return mux.NewRouter().UseEncodedPath()
}

// pathVar returns the decoded value of a path variable.
func pathVar(r *http.Request, key string) (string, error) {
	v, err := url.PathUnescape(mux.Vars(r)[key])
	if err != nil {
		return "", fmt.Errorf("invalid %s in path", key)
	}
	return v, nil
}
