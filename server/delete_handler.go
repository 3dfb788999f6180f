package server

import (
	"errors"
	"net/http"

	"moodfm/core/backend"
	"moodfm/logger"
	"moodfm/metrics"

	"github.com/gorilla/mux"
)

// DeleteHandler deletes a track on the backend when the session can, and
// from the local store otherwise. A backend 404 falls through to the local
// store since the track may only exist there.
func (h *APIHandler) DeleteHandler(w http.ResponseWriter, r *http.Request) {
	rc := FromContext(r.Context())
	id := mux.Vars(r)["id"]

	if token := h.backendToken(rc); token != "" && h.gateway.HealthCheck(r.Context()) {
		err := h.gateway.DeleteRemote(r.Context(), id, token)
		switch {
		case err == nil:
			logger.Info("[Music] deleted on backend", logger.String("id", id))
			writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
			return
		case errors.Is(err, backend.ErrUnauthorized):
			writeError(w, http.StatusUnauthorized, "login required")
			return
		case errors.Is(err, backend.ErrForbidden):
			writeError(w, http.StatusForbidden, "you do not have permission to delete this music")
			return
		case errors.Is(err, backend.ErrNotFound):
		default:
			logger.Warn("[Music] backend delete failed, using local store", logger.String("id", id), logger.ErrorField(err))
		}
	}
	h.metrics.IncFallback(metrics.OpDelete)

	removed, err := h.repo.DeleteByID(id, rc.Requester())
	if err != nil {
		writeStoreError(w, "delete", err)
		return
	}
	logger.Info("[Music] deleted locally", logger.String("id", removed.ID), logger.String("user_id", removed.UserID))
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}
