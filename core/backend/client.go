package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"moodfm/cache"
	"moodfm/logger"
	"moodfm/model"

	json "github.com/goccy/go-json"
)

var (
	// ErrUnavailable covers transport failures: refused connections, timeouts, reset streams.
	ErrUnavailable = errors.New("backend unavailable")
	// ErrMalformedResponse is returned when a success response has an unexpected shape.
	ErrMalformedResponse = errors.New("malformed backend response")
	ErrUnauthorized      = errors.New("backend: unauthenticated")
	ErrForbidden         = errors.New("backend: forbidden")
	ErrNotFound          = errors.New("backend: not found")
)

// StatusError is a non-success HTTP status from the backend. errors.Is maps
// 401, 403 and 404 onto ErrUnauthorized, ErrForbidden and ErrNotFound.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend returned status %d", e.Code)
	}
	return fmt.Sprintf("backend returned status %d: %s", e.Code, e.Message)
}

func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Code == http.StatusUnauthorized
	case ErrForbidden:
		return e.Code == http.StatusForbidden
	case ErrNotFound:
		return e.Code == http.StatusNotFound
	}
	return false
}

// IsUnavailable reports whether err means the backend could not be used at
// all, as opposed to a definite answer such as 403.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, ErrMalformedResponse)
}

// Timeouts bounds each kind of call. Calls are never retried.
type Timeouts struct {
	Health        time.Duration
	Auth          time.Duration
	Request       time.Duration
	Generate      time.Duration
	MediaGenerate time.Duration
}

// DefaultTimeouts are used for zero fields.
var DefaultTimeouts = Timeouts{
	Health:        5 * time.Second,
	Auth:          10 * time.Second,
	Request:       10 * time.Second,
	Generate:      30 * time.Second,
	MediaGenerate: 60 * time.Second,
}

// Client talks to the music generation backend.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	timeouts    Timeouts
	cache       cache.Cache
	healthTTL   time.Duration
	playlistTTL time.Duration
}

// NewClient creates a client for baseURL. A nil httpClient uses a fresh
// client without its own timeout; every call sets a context deadline.
func NewClient(baseURL string, httpClient *http.Client, timeouts Timeouts) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if timeouts.Health <= 0 {
		timeouts.Health = DefaultTimeouts.Health
	}
	if timeouts.Auth <= 0 {
		timeouts.Auth = DefaultTimeouts.Auth
	}
	if timeouts.Request <= 0 {
		timeouts.Request = DefaultTimeouts.Request
	}
	if timeouts.Generate <= 0 {
		timeouts.Generate = DefaultTimeouts.Generate
	}
	if timeouts.MediaGenerate <= 0 {
		timeouts.MediaGenerate = DefaultTimeouts.MediaGenerate
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		timeouts:   timeouts,
		cache:      cache.NopCache{},
	}
}

// WithCache caches health results and the public playlist.
func (c *Client) WithCache(store cache.Cache, healthTTL, playlistTTL time.Duration) *Client {
	if store != nil {
		c.cache = store
	}
	c.healthTTL = healthTTL
	c.playlistTTL = playlistTTL
	return c
}

// BaseURL returns the configured backend root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

type request struct {
	method      string
	path        string
	body        io.Reader
	contentType string
	token       string
	timeout     time.Duration
}

func (c *Client) do(ctx context.Context, r request) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+r.path, r.body)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s %s: %w", r.method, r.path, err)
	}
	req.Header.Set("Accept", "application/json")
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.Warn("[Backend] request failed",
			logger.String("method", r.method),
			logger.String("path", r.path),
			logger.Duration("elapsed", time.Since(start)),
			logger.ErrorField(err))
		return nil, fmt.Errorf("%w: %s %s: %v", ErrUnavailable, r.method, r.path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s %s: %v", ErrUnavailable, r.method, r.path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logger.Warn("[Backend] non-success status",
			logger.String("method", r.method),
			logger.String("path", r.path),
			logger.Int("status", resp.StatusCode))
		return nil, &StatusError{Code: resp.StatusCode, Message: errorMessage(data)}
	}
	logger.Debug("[Backend] request ok",
		logger.String("method", r.method),
		logger.String("path", r.path),
		logger.Duration("elapsed", time.Since(start)))
	return data, nil
}

// errorMessage pulls "error" / "detail" / "message" out of a JSON error body.
func errorMessage(data []byte) string {
	var body struct {
		Error   string `json:"error"`
		Detail  string `json:"detail"`
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &body) == nil {
		for _, s := range []string{body.Error, body.Detail, body.Message} {
			if s != "" {
				return s
			}
		}
	}
	s := strings.TrimSpace(string(data))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

// HealthCheck reports whether the backend answers GET /health with 2xx.
func (c *Client) HealthCheck(ctx context.Context) bool {
	var cached bool
	if hit, err := c.cache.GetJSON(ctx, cache.KeyBackendHealth, &cached); err != nil {
		logger.Warn("[Backend] health cache read failed", logger.ErrorField(err))
	} else if hit {
		return cached
	}

	_, err := c.do(ctx, request{method: http.MethodGet, path: "/health", timeout: c.timeouts.Health})
	healthy := err == nil
	if c.healthTTL > 0 {
		if err := c.cache.SetJSON(ctx, cache.KeyBackendHealth, healthy, c.healthTTL); err != nil {
			logger.Warn("[Backend] health cache write failed", logger.ErrorField(err))
		}
	}
	return healthy
}

// GenerateRequest is the body of a text-prompt generation.
type GenerateRequest struct {
	Prompt     string          `json:"prompt"`
	Settings   *model.Settings `json:"settings,omitempty"`
	DetailText string          `json:"detail_text,omitempty"`
	MusicID    string          `json:"music_id,omitempty"`
}

// GenerateResult is what the backend returns for a finished generation.
type GenerateResult struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	MusicURL string `json:"music_url"`
}

type generateResponse struct {
	Success  *bool  `json:"success"`
	ID       string `json:"id"`
	MusicID  string `json:"music_id"`
	Title    string `json:"title"`
	MusicURL string `json:"music_url"`
	FileURL  string `json:"file_url"`
	Error    string `json:"error"`
}

func parseGenerate(data []byte) (*GenerateResult, error) {
	var body generateResponse
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if body.Success != nil && !*body.Success {
		return nil, fmt.Errorf("%w: backend reported failure: %s", ErrMalformedResponse, body.Error)
	}
	res := &GenerateResult{ID: body.ID, Title: body.Title, MusicURL: body.MusicURL}
	if res.ID == "" {
		res.ID = body.MusicID
	}
	if res.MusicURL == "" {
		res.MusicURL = body.FileURL
	}
	if res.ID == "" {
		return nil, fmt.Errorf("%w: generation response has no id", ErrMalformedResponse)
	}
	return res, nil
}

// Generate asks the backend to compose music for a text prompt.
func (c *Client) Generate(ctx context.Context, in GenerateRequest, token string) (*GenerateResult, error) {
	payload, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("failed to encode generate request: %w", err)
	}
	data, err := c.do(ctx, request{
		method:      http.MethodPost,
		path:        "/api/music/generate",
		body:        bytes.NewReader(payload),
		contentType: "application/json",
		token:       token,
		timeout:     c.timeouts.Generate,
	})
	if err != nil {
		return nil, err
	}
	return parseGenerate(data)
}

// MediaKind selects the media generation endpoint.
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
)

// GenerateFromMedia uploads an image or video as multipart field kind.
func (c *Client) GenerateFromMedia(ctx context.Context, kind MediaKind, filename string, media io.Reader, token string) (*GenerateResult, error) {
	if kind != MediaImage && kind != MediaVideo {
		return nil, fmt.Errorf("unsupported media kind %q", kind)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(string(kind), filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create multipart field: %w", err)
	}
	if _, err := io.Copy(part, media); err != nil {
		return nil, fmt.Errorf("failed to copy %s into request: %w", kind, err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish multipart body: %w", err)
	}

	data, err := c.do(ctx, request{
		method:      http.MethodPost,
		path:        "/api/music/generate-from-" + string(kind),
		body:        &buf,
		contentType: mw.FormDataContentType(),
		token:       token,
		timeout:     c.timeouts.MediaGenerate,
	})
	if err != nil {
		return nil, err
	}
	return parseGenerate(data)
}

func parsePlaylist(data []byte) ([]model.MusicRecord, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var records []model.MusicRecord
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		return records, nil
	}

	var body struct {
		Music []model.MusicRecord `json:"music"`
		Items []model.MusicRecord `json:"items"`
	}
	if err := json.Unmarshal(trimmed, &body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	switch {
	case body.Music != nil:
		return body.Music, nil
	case body.Items != nil:
		return body.Items, nil
	}
	return nil, fmt.Errorf("%w: playlist response has no music list", ErrMalformedResponse)
}

// ListPlaylist returns the caller's music when token is set, otherwise the
// public playlist. The public playlist may be served from cache.
func (c *Client) ListPlaylist(ctx context.Context, token string) ([]model.MusicRecord, error) {
	path := "/api/music/public"
	if token != "" {
		path = "/api/music/my"
	} else {
		var cached []model.MusicRecord
		if hit, err := c.cache.GetJSON(ctx, cache.KeyPublicPlaylist, &cached); err != nil {
			logger.Warn("[Backend] playlist cache read failed", logger.ErrorField(err))
		} else if hit {
			return cached, nil
		}
	}

	data, err := c.do(ctx, request{method: http.MethodGet, path: path, token: token, timeout: c.timeouts.Request})
	if err != nil {
		return nil, err
	}
	records, err := parsePlaylist(data)
	if err != nil {
		return nil, err
	}

	if token == "" && c.playlistTTL > 0 {
		if err := c.cache.SetJSON(ctx, cache.KeyPublicPlaylist, records, c.playlistTTL); err != nil {
			logger.Warn("[Backend] playlist cache write failed", logger.ErrorField(err))
		}
	}
	return records, nil
}

func musicPath(id string, suffix string) string {
	return "/api/music/" + url.PathEscape(id) + suffix
}

// Like marks a track as liked by the token's user.
func (c *Client) Like(ctx context.Context, id, token string) error {
	_, err := c.do(ctx, request{method: http.MethodPost, path: musicPath(id, "/like"), token: token, timeout: c.timeouts.Request})
	return err
}

// Unlike removes the like.
func (c *Client) Unlike(ctx context.Context, id, token string) error {
	_, err := c.do(ctx, request{method: http.MethodDelete, path: musicPath(id, "/like"), token: token, timeout: c.timeouts.Request})
	return err
}

// DeleteRemote deletes a track on the backend. 401/403/404 come back as
// *StatusError matching ErrUnauthorized/ErrForbidden/ErrNotFound.
func (c *Client) DeleteRemote(ctx context.Context, id, token string) error {
	_, err := c.do(ctx, request{method: http.MethodDelete, path: musicPath(id, ""), token: token, timeout: c.timeouts.Request})
	if err == nil {
		if delErr := c.cache.Delete(ctx, cache.KeyPublicPlaylist); delErr != nil {
			logger.Warn("[Backend] playlist cache invalidation failed", logger.ErrorField(delErr))
		}
	}
	return err
}

// FederationRequest carries a verified Google identity to the backend.
type FederationRequest struct {
	GoogleID string `json:"google_id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Picture  string `json:"picture,omitempty"`
}

// Federate links or creates the backend account and returns its access token.
func (c *Client) Federate(ctx context.Context, in FederationRequest) (string, error) {
	payload, err := json.Marshal(in)
	if err != nil {
		return "", fmt.Errorf("failed to encode federation request: %w", err)
	}
	data, err := c.do(ctx, request{
		method:      http.MethodPost,
		path:        "/api/auth/google",
		body:        bytes.NewReader(payload),
		contentType: "application/json",
		timeout:     c.timeouts.Auth,
	})
	if err != nil {
		return "", err
	}

	var body struct {
		AccessToken string `json:"access_token"`
		Token       string `json:"token"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	token := body.AccessToken
	if token == "" {
		token = body.Token
	}
	if token == "" {
		return "", fmt.Errorf("%w: federation response has no token", ErrMalformedResponse)
	}
	return token, nil
}
