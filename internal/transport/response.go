package transport

import (
	"encoding/json"
	"net/http"

	"quizlive/internal/apperr"
	"quizlive/internal/config"

	"github.com/go-chi/chi/v5/middleware"
)

var production bool

// SetProduction gates developer-only error detail, called once from the
// composition root after config is loaded.
func SetProduction(cfg *config.Config) {
	production = cfg.Server.Env == "production"
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}

// writeError renders any error as the stable wire envelope from spec.md's
// error taxonomy, classifying plain errors as INTERNAL.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	ae := apperr.As(err)
	requestID := middleware.GetReqID(r.Context())
	writeJSON(w, ae.StatusCode(), apperr.ToEnvelope(ae, requestID, production))
}

func apperrRateLimited() *apperr.AppError {
	return apperr.New(apperr.CategoryRateLimit, apperr.CodeRateLimitExceeded, "too many requests, slow down", nil)
}
