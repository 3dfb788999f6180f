package server

import (
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"moodfm/core/backend"
	"moodfm/logger"
	"moodfm/metrics"
	"moodfm/model"
	"moodfm/repository"
	"moodfm/storage"

	"github.com/google/uuid"
)

// Sources reported in generation responses.
const (
	sourceBackend = "backend"
	sourceLocal   = "local"
)

type createRequest struct {
	Tempo *model.BPM `json:"tempo"`
	Mood  *string    `json:"mood"`
	Place *string    `json:"place"`
}

// CreateHandler stores a record built from tempo, mood and place in the
// local store. It never calls the backend.
func (h *APIHandler) CreateHandler(w http.ResponseWriter, r *http.Request) {
	rc := FromContext(r.Context())

	var req createRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var missing []string
	if req.Tempo == nil {
		missing = append(missing, "tempo")
	}
	if req.Mood == nil {
		missing = append(missing, "mood")
	}
	if req.Place == nil {
		missing = append(missing, "place")
	}
	if len(missing) > 0 {
		writeMissing(w, missing)
		return
	}

	id := uuid.NewString()
	record := model.MusicRecord{
		ID:         id,
		Title:      settingsTitle(*req.Mood, *req.Place),
		Tempo:      req.Tempo,
		Mood:       *req.Mood,
		Place:      *req.Place,
		CreatedAt:  model.Timestamp(time.Now()),
		FilePath:   id + ".mp3",
		UserID:     rc.Session.Owner(),
		SourceType: model.SourceSettings,
	}
	if err := h.repo.Create(record); err != nil {
		writeStoreError(w, "create", err)
		return
	}
	logger.Info("[Music] record created", logger.String("id", id), logger.String("user_id", record.UserID))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"music":   record,
	})
}

type generateRequest struct {
	Mood     string     `json:"mood"`
	Speed    *model.BPM `json:"speed"`
	Tempo    *model.BPM `json:"tempo"`
	Location string     `json:"location"`
	Place    string     `json:"place"`
}

func (g *generateRequest) settings() model.Settings {
	s := model.Settings{Mood: strings.TrimSpace(g.Mood), Location: strings.TrimSpace(g.Location)}
	if s.Location == "" {
		s.Location = strings.TrimSpace(g.Place)
	}
	switch {
	case g.Speed != nil:
		s.Speed = g.Speed
	case g.Tempo != nil:
		s.Speed = g.Tempo
	}
	return s
}

func (g *generateRequest) missing() []string {
	var missing []string
	if strings.TrimSpace(g.Mood) == "" {
		missing = append(missing, "mood")
	}
	if g.Speed == nil && g.Tempo == nil {
		missing = append(missing, "speed")
	}
	if strings.TrimSpace(g.Location) == "" && strings.TrimSpace(g.Place) == "" {
		missing = append(missing, "location")
	}
	return missing
}

func settingsTitle(mood, location string) string {
	switch {
	case mood != "" && location != "":
		return fmt.Sprintf("%s music for %s", capitalize(mood), location)
	case mood != "":
		return fmt.Sprintf("%s music", capitalize(mood))
	case location != "":
		return fmt.Sprintf("Music for %s", location)
	}
	return "Untitled music"
}

func detailTitle(s model.Settings, detail string) string {
	const excerptRunes = 24
	excerpt := strings.Join(strings.Fields(detail), " ")
	if utf8.RuneCountInString(excerpt) > excerptRunes {
		excerpt = string([]rune(excerpt)[:excerptRunes]) + "..."
	}
	if s.Mood == "" {
		return excerpt
	}
	return fmt.Sprintf("%s: %s", capitalize(s.Mood), excerpt)
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return strings.ToUpper(string(r)) + s[size:]
}

// buildPrompt turns the wizard inputs into the text sent to the generator.
func buildPrompt(s model.Settings, detail string) string {
	var parts []string
	if s.Mood != "" {
		parts = append(parts, fmt.Sprintf("Mood: %s.", s.Mood))
	}
	if bpm := s.Speed.Int(); bpm > 0 {
		parts = append(parts, fmt.Sprintf("Tempo: %d BPM.", bpm))
	}
	if s.Location != "" {
		parts = append(parts, fmt.Sprintf("Place: %s.", s.Location))
	}
	if detail = strings.TrimSpace(detail); detail != "" {
		parts = append(parts, "Details: "+detail)
	}
	return strings.Join(parts, " ")
}

func detailInputURL(id string) string {
	return "/detail-input?music_id=" + url.QueryEscape(id)
}

func playlistURL(id string) string {
	return "/playlist?music_id=" + url.QueryEscape(id)
}

// GenerateMusicHandler handles the first wizard step. The backend is tried
// first; any failure falls back to a local record.
func (h *APIHandler) GenerateMusicHandler(w http.ResponseWriter, r *http.Request) {
	rc := FromContext(r.Context())

	var req generateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if missing := req.missing(); len(missing) > 0 {
		writeMissing(w, missing)
		return
	}
	settings := req.settings()
	prompt := buildPrompt(settings, "")

	if h.gateway.HealthCheck(r.Context()) {
		res, err := h.gateway.Generate(r.Context(), backend.GenerateRequest{Prompt: prompt, Settings: &settings}, h.backendToken(rc))
		if err == nil {
			title := res.Title
			if title == "" {
				title = settingsTitle(settings.Mood, settings.Location)
			}
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"success":      true,
				"music_id":     res.ID,
				"title":        title,
				"redirect_url": detailInputURL(res.ID),
				"source":       sourceBackend,
			})
			return
		}
		logger.Warn("[Music] backend generation failed, using local store", logger.ErrorField(err))
	}
	h.metrics.IncFallback(metrics.OpGenerate)

	id := uuid.NewString()
	record := model.MusicRecord{
		ID:               id,
		Title:            settingsTitle(settings.Mood, settings.Location),
		Mood:             settings.Mood,
		Location:         settings.Location,
		Speed:            settings.Speed,
		CreatedAt:        model.Timestamp(time.Now()),
		FilePath:         id + ".mp3",
		UserID:           rc.Session.Owner(),
		FullPrompt:       prompt,
		OriginalSettings: &settings,
		SourceType:       model.SourceSettings,
	}
	if err := h.repo.Create(record); err != nil {
		writeStoreError(w, "generate", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":      true,
		"music_id":     id,
		"title":        record.Title,
		"redirect_url": detailInputURL(id),
		"source":       sourceLocal,
	})
}

type detailRequest struct {
	MusicID    string `json:"music_id"`
	DetailText string `json:"detail_text"`
}

// GenerateWithDetailHandler completes a generation with free text. Locally
// the detail is merged into the record created by the first step.
func (h *APIHandler) GenerateWithDetailHandler(w http.ResponseWriter, r *http.Request) {
	rc := FromContext(r.Context())

	var req detailRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	detail := strings.TrimSpace(req.DetailText)
	if detail == "" {
		writeMissing(w, []string{"detail_text"})
		return
	}
	musicID := strings.TrimSpace(req.MusicID)

	var existing *model.MusicRecord
	if musicID != "" {
		var err error
		if existing, err = h.repo.FindByID(musicID); err != nil {
			writeStoreError(w, "detail", err)
			return
		}
		if existing != nil && !repository.CanModify(existing, rc.Requester()) {
			writeStoreError(w, "detail", repository.ErrForbidden)
			return
		}
	}

	var settings model.Settings
	if existing != nil {
		settings = existing.Settings()
	}
	prompt := buildPrompt(settings, detail)

	if h.gateway.HealthCheck(r.Context()) {
		genReq := backend.GenerateRequest{Prompt: prompt, DetailText: detail, MusicID: musicID}
		if existing != nil {
			genReq.Settings = &settings
		}
		res, err := h.gateway.Generate(r.Context(), genReq, h.backendToken(rc))
		if err == nil {
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"success":      true,
				"music_id":     res.ID,
				"title":        res.Title,
				"redirect_url": playlistURL(res.ID),
				"source":       sourceBackend,
			})
			return
		}
		logger.Warn("[Music] backend detail generation failed, using local store", logger.ErrorField(err))
	}
	h.metrics.IncFallback(metrics.OpDetail)

	id := musicID
	if id == "" {
		id = uuid.NewString()
	}
	patch := model.MusicRecord{
		ID:         id,
		Title:      detailTitle(settings, detail),
		DetailText: detail,
		FullPrompt: prompt,
		SourceType: model.SourceDetail,
	}
	if existing == nil {
		patch.CreatedAt = model.Timestamp(time.Now())
		patch.UserID = rc.Session.Owner()
		patch.FilePath = id + ".mp3"
	} else {
		patch.OriginalSettings = &settings
	}
	if err := h.repo.MergeByID(id, rc.Requester(), patch); err != nil {
		writeStoreError(w, "detail", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":      true,
		"music_id":     id,
		"title":        patch.Title,
		"redirect_url": playlistURL(id),
		"source":       sourceLocal,
	})
}

var mediaExtensions = map[backend.MediaKind]map[string]bool{
	backend.MediaImage: {".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true, ".heic": true},
	backend.MediaVideo: {".mp4": true, ".mov": true, ".webm": true, ".avi": true, ".mkv": true},
}

// GenerateFromImageHandler accepts multipart field "image".
func (h *APIHandler) GenerateFromImageHandler(w http.ResponseWriter, r *http.Request) {
	h.generateFromMedia(w, r, backend.MediaImage)
}

// GenerateFromVideoHandler accepts multipart field "video".
func (h *APIHandler) GenerateFromVideoHandler(w http.ResponseWriter, r *http.Request) {
	h.generateFromMedia(w, r, backend.MediaVideo)
}

func (h *APIHandler) generateFromMedia(w http.ResponseWriter, r *http.Request, kind backend.MediaKind) {
	rc := FromContext(r.Context())
	field := string(kind)

	if err := r.ParseMultipartForm(64 << 20); err != nil {
		writeMissing(w, []string{field})
		return
	}
	file, header, err := r.FormFile(field)
	if err != nil || header.Filename == "" {
		writeMissing(w, []string{field})
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !mediaExtensions[kind][ext] {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported %s file type", field))
		return
	}

	uploadName := uuid.NewString() + ext
	if err := h.uploads.Save(r.Context(), uploadName, file, header.Size, header.Header.Get("Content-Type")); err != nil {
		logger.Error("[Music] failed to store upload", logger.String("kind", field), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}

	if h.gateway.HealthCheck(r.Context()) {
		if _, err := file.Seek(0, 0); err == nil {
			res, err := h.gateway.GenerateFromMedia(r.Context(), kind, header.Filename, file, h.backendToken(rc))
			if err == nil {
				writeJSON(w, http.StatusOK, map[string]interface{}{
					"success":      true,
					"music_id":     res.ID,
					"title":        res.Title,
					"redirect_url": playlistURL(res.ID),
					"source":       sourceBackend,
				})
				return
			}
			logger.Warn("[Music] backend media generation failed, using local store",
				logger.String("kind", field), logger.ErrorField(err))
		}
	}
	h.metrics.IncFallback(metrics.OpMedia)

	sourceType, title := model.SourceImage, "Music from your photo"
	if kind == backend.MediaVideo {
		sourceType, title = model.SourceVideo, "Music from your video"
	}
	id := uuid.NewString()
	record := model.MusicRecord{
		ID:         id,
		Title:      title,
		Speed:      model.IntPtr(randomTempo()),
		CreatedAt:  model.Timestamp(time.Now()),
		FilePath:   id + ".mp3",
		UserID:     rc.Session.Owner(),
		SourceType: sourceType,
		UploadFile: uploadName,
	}
	if err := h.repo.Create(record); err != nil {
		writeStoreError(w, "media", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":      true,
		"music_id":     id,
		"title":        title,
		"redirect_url": playlistURL(id),
		"source":       sourceLocal,
	})
}

// randomTempo stands in for the tempo a media analysis would produce.
func randomTempo() int {
	return 60 + rand.Intn(121)
}

var audioExtensions = map[string]bool{".mp3": true, ".wav": true, ".ogg": true}

// UploadHandler stores an audio file in the uploads directory.
func (h *APIHandler) UploadHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(64 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "no file in request")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file in request")
		return
	}
	defer file.Close()

	if header.Filename == "" {
		writeError(w, http.StatusBadRequest, "no file selected")
		return
	}
	filename := safeFilename(header.Filename)
	if !audioExtensions[strings.ToLower(filepath.Ext(filename))] {
		writeError(w, http.StatusBadRequest, "file type not allowed")
		return
	}

	if err := h.uploads.Save(r.Context(), filename, file, header.Size, header.Header.Get("Content-Type")); err != nil {
		if errors.Is(err, storage.ErrInvalidName) {
			writeError(w, http.StatusBadRequest, "invalid file name")
			return
		}
		logger.Error("[Upload] failed to save file", logger.String("filename", filename), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "failed to save file")
		return
	}
	logger.Info("[Upload] file saved", logger.String("filename", filename), logger.Int64("size", header.Size))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"filename": filename,
	})
}
