package server

import (
	"net/http"

	"moodfm/logger"
	"moodfm/metrics"
	"moodfm/model"
	"moodfm/web"
)

// PlaylistHandler lists the caller's music: the backend's "my music" when the
// session has a token, otherwise the local records of the session user.
func (h *APIHandler) PlaylistHandler(w http.ResponseWriter, r *http.Request) {
	rc := FromContext(r.Context())
	data := pageData(rc)
	data.MusicID = r.URL.Query().Get("music_id")

	if token := h.backendToken(rc); token != "" && h.gateway.HealthCheck(r.Context()) {
		music, err := h.gateway.ListPlaylist(r.Context(), token)
		if err == nil {
			data.Music, data.Source = music, sourceBackend
			h.render(w, http.StatusOK, web.PagePlaylist, data)
			return
		}
		logger.Warn("[Playlist] backend listing failed, using local store", logger.ErrorField(err))
	}
	h.metrics.IncFallback(metrics.OpPlaylist)

	music, err := h.repo.ListForOwner(rc.Requester())
	if err != nil {
		h.renderStoreError(w, "playlist", err)
		return
	}
	data.Music, data.Source = music, sourceLocal
	h.render(w, http.StatusOK, web.PagePlaylist, data)
}

// PlaylistMainHandler lists everyone's music.
func (h *APIHandler) PlaylistMainHandler(w http.ResponseWriter, r *http.Request) {
	rc := FromContext(r.Context())
	data := pageData(rc)
	data.MusicID = r.URL.Query().Get("music_id")

	if h.gateway.HealthCheck(r.Context()) {
		music, err := h.gateway.ListPlaylist(r.Context(), "")
		if err == nil {
			data.Music, data.Source = music, sourceBackend
			h.render(w, http.StatusOK, web.PagePlaylistMain, data)
			return
		}
		logger.Warn("[Playlist] backend public listing failed, using local store", logger.ErrorField(err))
	}
	h.metrics.IncFallback(metrics.OpPlaylist)

	music, err := h.repo.ListForOwner("")
	if err != nil {
		h.renderStoreError(w, "playlist-main", err)
		return
	}
	data.Music, data.Source = music, sourceLocal
	h.render(w, http.StatusOK, web.PagePlaylistMain, data)
}

// renderStoreError is writeStoreError for page routes.
func (h *APIHandler) renderStoreError(w http.ResponseWriter, op string, err error) {
	logger.Error("[Store] listing failed", logger.String("op", op), logger.ErrorField(err))
	http.Error(w, "Music data is unreadable", http.StatusInternalServerError)
}

// findLocal looks a record up in the fallback store, answering 404 or 500 itself.
func (h *APIHandler) findLocal(w http.ResponseWriter, op, id string) *model.MusicRecord {
	rec, err := h.repo.FindByID(id)
	if err != nil {
		writeStoreError(w, op, err)
		return nil
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "music not found")
		return nil
	}
	return rec
}
