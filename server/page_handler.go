package server

import (
	"net/http"

	"moodfm/web"
)

func (h *APIHandler) IndexHandler(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusOK, web.PageIndex, pageData(FromContext(r.Context())))
}

func (h *APIHandler) CreatePageHandler(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusOK, web.PageCreate, pageData(FromContext(r.Context())))
}

// ImageCreatePageHandler renders the upload step; mode is image or video.
func (h *APIHandler) ImageCreatePageHandler(w http.ResponseWriter, r *http.Request) {
	data := pageData(FromContext(r.Context()))
	data.Mode = "image"
	if r.URL.Query().Get("mode") == "video" {
		data.Mode = "video"
	}
	h.render(w, http.StatusOK, web.PageImageCreate, data)
}

// DetailInputPageHandler renders the detail step for music_id. A record that
// only exists on the backend is rendered without a summary.
func (h *APIHandler) DetailInputPageHandler(w http.ResponseWriter, r *http.Request) {
	data := pageData(FromContext(r.Context()))
	data.MusicID = r.URL.Query().Get("music_id")
	if data.MusicID != "" {
		rec, err := h.repo.FindByID(data.MusicID)
		if err != nil {
			h.renderStoreError(w, "detail-input", err)
			return
		}
		data.Selected = rec
	}
	h.render(w, http.StatusOK, web.PageDetailInput, data)
}

// HealthzHandler reports liveness and whether the backend is reachable.
func (h *APIHandler) HealthzHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"backend": h.gateway.HealthCheck(r.Context()),
	})
}
