package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"moodfm/config"
	"moodfm/core/auth"
	"moodfm/core/backend"
	"moodfm/logger"
	"moodfm/metrics"
	"moodfm/model"
	"moodfm/repository"
	"moodfm/storage"
	"moodfm/web"

	json "github.com/goccy/go-json"
)

// Gateway is the part of the backend client the handlers use.
type Gateway interface {
	HealthCheck(ctx context.Context) bool
	Generate(ctx context.Context, req backend.GenerateRequest, token string) (*backend.GenerateResult, error)
	GenerateFromMedia(ctx context.Context, kind backend.MediaKind, filename string, media io.Reader, token string) (*backend.GenerateResult, error)
	ListPlaylist(ctx context.Context, token string) ([]model.MusicRecord, error)
	Like(ctx context.Context, id, token string) error
	Unlike(ctx context.Context, id, token string) error
	DeleteRemote(ctx context.Context, id, token string) error
	Federate(ctx context.Context, req backend.FederationRequest) (string, error)
}

// IdentityProvider runs the OAuth login.
type IdentityProvider interface {
	LoginURL(ctx context.Context, state string) (string, bool)
	Exchange(ctx context.Context, code string) (*auth.Identity, error)
}

// Deps are the collaborators of APIHandler.
type Deps struct {
	Config   *config.Config
	Repo     repository.MusicRepository
	Gateway  Gateway
	Media    storage.MediaStore // generated music
	Uploads  storage.MediaStore // user uploads
	Sessions *auth.SessionManager
	Identity IdentityProvider
	Metrics  *metrics.Recorder
	Pages    *web.Renderer
}

// APIHandler handles all page and API requests.
type APIHandler struct {
	cfg      *config.Config
	repo     repository.MusicRepository
	gateway  Gateway
	media    storage.MediaStore
	uploads  storage.MediaStore
	sessions *auth.SessionManager
	identity IdentityProvider
	metrics  *metrics.Recorder
	pages    *web.Renderer
}

// NewAPIHandler creates the API handler.
func NewAPIHandler(d Deps) *APIHandler {
	return &APIHandler{
		cfg:      d.Config,
		repo:     d.Repo,
		gateway:  d.Gateway,
		media:    d.Media,
		uploads:  d.Uploads,
		sessions: d.Sessions,
		identity: d.Identity,
		metrics:  d.Metrics,
		pages:    d.Pages,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		logger.Warn("[HTTP] failed to write response", logger.ErrorField(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   msg,
	})
}

// writeMissing answers 400 with the list of missing required fields.
func writeMissing(w http.ResponseWriter, missing []string) {
	writeJSON(w, http.StatusBadRequest, map[string]interface{}{
		"success": false,
		"error":   "missing required fields: " + strings.Join(missing, ", "),
		"missing": missing,
	})
}

// writeStoreError maps fallback store errors onto HTTP statuses.
func writeStoreError(w http.ResponseWriter, op string, err error) {
	var parseErr *repository.ParseError
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "music not found")
	case errors.Is(err, repository.ErrForbidden):
		writeError(w, http.StatusForbidden, "you do not have permission to change this music")
	case errors.As(err, &parseErr):
		logger.Error("[Store] music data file is corrupt",
			logger.String("op", op),
			logger.String("path", parseErr.Path),
			logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "music data is unreadable")
	default:
		logger.Error("[Store] operation failed", logger.String("op", op), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func decodeJSON(r *http.Request, dst interface{}) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read request body: %w", err)
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// backendToken is the session token to forward, or "" when the session has
// none or only a locally issued placeholder.
func (h *APIHandler) backendToken(rc *RequestContext) string {
	token := rc.Session.AccessToken
	if token == "" || h.sessions.IsPlaceholderToken(token) {
		return ""
	}
	return token
}

// pageData fills the user fields every page shows.
func pageData(rc *RequestContext) *web.PageData {
	return &web.PageData{
		LoggedIn:    rc.Session.LoggedIn,
		UserName:    rc.Session.UserName,
		UserPicture: rc.Session.UserPicture,
		UserEmail:   rc.Session.UserEmail,
	}
}

func (h *APIHandler) render(w http.ResponseWriter, status int, page string, data *web.PageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.pages.Render(w, page, data); err != nil {
		logger.Error("[HTTP] failed to render page", logger.String("page", page), logger.ErrorField(err))
	}
}

var nonFilenameChars = regexp.MustCompile(`[^\p{L}\p{N}_\-.]`)
var multipleSpaces = regexp.MustCompile(`\s+`)
var dotRuns = regexp.MustCompile(`\.{2,}`)

// safeFilename reduces an uploaded file name to a flat, storable name.
func safeFilename(name string) string {
	name = name[strings.LastIndexAny(name, `/\`)+1:]
	name = multipleSpaces.ReplaceAllString(strings.TrimSpace(name), "_")
	name = nonFilenameChars.ReplaceAllString(name, "")
	name = dotRuns.ReplaceAllString(name, ".")
	name = strings.TrimLeft(name, ".")
	if runes := []rune(name); len(runes) > 150 {
		name = string(runes[len(runes)-150:])
	}
	return name
}
