package server

import (
	"errors"
	"mime"
	"net/http"

	"moodfm/logger"
	"moodfm/model"
	"moodfm/storage"

	"github.com/gorilla/mux"
)

// assetName picks the record's own file when it exists, else the placeholder.
func (h *APIHandler) assetName(r *http.Request, rec *model.MusicRecord) string {
	if rec.FilePath != "" && storage.ValidateName(rec.FilePath) == nil && h.media.Exists(r.Context(), rec.FilePath) {
		return rec.FilePath
	}
	return h.cfg.MediaPlaceholder
}

// PlayHandler returns the URL the player should load.
func (h *APIHandler) PlayHandler(w http.ResponseWriter, r *http.Request) {
	rec := h.findLocal(w, "play", mux.Vars(r)["id"])
	if rec == nil {
		return
	}
	url := rec.MusicURL
	if url == "" {
		url = "/media/" + h.assetName(r, rec)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"url":     url,
	})
}

// DownloadHandler sends the record's audio as an attachment named after its title.
func (h *APIHandler) DownloadHandler(w http.ResponseWriter, r *http.Request) {
	rec := h.findLocal(w, "download", mux.Vars(r)["id"])
	if rec == nil {
		return
	}
	name := h.assetName(r, rec)
	obj, info, err := h.media.Open(r.Context(), name)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrInvalidName) {
			writeError(w, http.StatusNotFound, "music file not found")
			return
		}
		logger.Error("[Media] failed to open asset", logger.String("name", name), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "failed to open music file")
		return
	}
	defer obj.Close()

	title := rec.Title
	if title == "" {
		title = rec.ID
	}
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
		"filename": title + ".mp3",
	}))
	w.Header().Set("Content-Type", info.ContentType)
	http.ServeContent(w, r, name, info.LastModified, obj)
}

// MediaHandler serves generated music assets by name.
func (h *APIHandler) MediaHandler(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	obj, info, err := h.media.Open(r.Context(), name)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrInvalidName) {
			http.NotFound(w, r)
			return
		}
		logger.Error("[Media] failed to open asset", logger.String("name", name), logger.ErrorField(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	defer obj.Close()

	w.Header().Set("Content-Type", info.ContentType)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	http.ServeContent(w, r, name, info.LastModified, obj)
}
