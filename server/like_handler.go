package server

import (
	"errors"
	"net/http"

	"moodfm/core/backend"
	"moodfm/logger"

	"github.com/gorilla/mux"
)

// LikeHandler likes (POST) or unlikes (DELETE) a track. There is no local
// equivalent, so an unreachable backend is a 503.
func (h *APIHandler) LikeHandler(w http.ResponseWriter, r *http.Request) {
	rc := FromContext(r.Context())
	id := mux.Vars(r)["id"]

	token := h.backendToken(rc)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "login required")
		return
	}
	if !h.gateway.HealthCheck(r.Context()) {
		writeError(w, http.StatusServiceUnavailable, "music service is unavailable")
		return
	}

	liked := r.Method == http.MethodPost
	var err error
	if liked {
		err = h.gateway.Like(r.Context(), id, token)
	} else {
		err = h.gateway.Unlike(r.Context(), id, token)
	}

	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "liked": liked})
	case backend.IsUnavailable(err):
		logger.Warn("[Like] backend unavailable", logger.String("id", id), logger.ErrorField(err))
		writeError(w, http.StatusServiceUnavailable, "music service is unavailable")
	case errors.Is(err, backend.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "login required")
	case errors.Is(err, backend.ErrNotFound):
		writeError(w, http.StatusNotFound, "music not found")
	default:
		logger.Warn("[Like] backend rejected request", logger.String("id", id), logger.ErrorField(err))
		writeError(w, http.StatusBadGateway, "music service error")
	}
}
