package server

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"moodfm/config"
	"moodfm/core/auth"
	"moodfm/core/backend"
	"moodfm/metrics"
	"moodfm/model"
	"moodfm/repository"
	"moodfm/storage"
	"moodfm/web"

	"github.com/gorilla/mux"
	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
)

type fakeIdentity struct {
	loginURL string
	ok       bool
	identity *auth.Identity
	err      error
	codes    []string
}

func (f *fakeIdentity) LoginURL(_ context.Context, state string) (string, bool) {
	return f.loginURL + "?state=" + state, f.ok
}

func (f *fakeIdentity) Exchange(_ context.Context, code string) (*auth.Identity, error) {
	f.codes = append(f.codes, code)
	if f.err != nil {
		return nil, f.err
	}
	return f.identity, nil
}

type testEnv struct {
	t         *testing.T
	cfg       *config.Config
	repo      repository.MusicRepository
	dataFile  string
	mediaDir  string
	uploadDir string
	sessions  *auth.SessionManager
	identity  *fakeIdentity
	metrics   *metrics.Recorder
	router    *mux.Router
}

// newTestEnv builds a router against backendHandler. A nil handler means the
// backend is unreachable.
func newTestEnv(t *testing.T, backendHandler http.HandlerFunc) *testEnv {
	t.Helper()
	dir := t.TempDir()

	backendURL := "http://127.0.0.1:1"
	if backendHandler != nil {
		srv := httptest.NewServer(backendHandler)
		t.Cleanup(srv.Close)
		backendURL = srv.URL
	}

	cfg := &config.Config{
		StaticDir:          filepath.Join(dir, "static"),
		MediaDir:           filepath.Join(dir, "media"),
		UploadDir:          filepath.Join(dir, "uploads"),
		MusicDataFile:      filepath.Join(dir, "music_data.json"),
		MediaPlaceholder:   "demo.mp3",
		BackendURL:         backendURL,
		GoogleClientID:     "client-id",
		GoogleClientSecret: "client-secret",
	}
	media, err := storage.NewLocalStore(cfg.MediaDir)
	require.NoError(t, err)
	uploads, err := storage.NewLocalStore(cfg.UploadDir)
	require.NoError(t, err)
	sessions, err := auth.NewSessionManager("test-secret", false)
	require.NoError(t, err)
	pages, err := web.NewRenderer()
	require.NoError(t, err)

	env := &testEnv{
		t:         t,
		cfg:       cfg,
		repo:      repository.NewJSONMusicRepository(cfg.MusicDataFile, media, cfg.MediaPlaceholder),
		dataFile:  cfg.MusicDataFile,
		mediaDir:  cfg.MediaDir,
		uploadDir: cfg.UploadDir,
		sessions:  sessions,
		identity: &fakeIdentity{
			loginURL: "https://accounts.example.com/auth",
			ok:       true,
			identity: &auth.Identity{Subject: "g-1", Email: "a@example.com", GivenName: "Minsu"},
		},
		metrics: metrics.NewRecorder(),
	}
	gateway := backend.NewClient(backendURL, nil, backend.Timeouts{
		Health:  500 * time.Millisecond,
		Auth:    time.Second,
		Request: time.Second,
	})
	env.router = NewRouter(NewAPIHandler(Deps{
		Config:   cfg,
		Repo:     env.repo,
		Gateway:  gateway,
		Media:    media,
		Uploads:  uploads,
		Sessions: sessions,
		Identity: env.identity,
		Metrics:  env.metrics,
		Pages:    pages,
	}))
	return env
}

func (e *testEnv) do(req *http.Request, session *auth.Session) *httptest.ResponseRecorder {
	e.t.Helper()
	if session != nil {
		signed, err := e.sessions.Encode(session)
		require.NoError(e.t, err)
		req.AddCookie(&http.Cookie{Name: auth.SessionCookieName, Value: signed})
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) postJSON(path string, body interface{}, session *auth.Session) *httptest.ResponseRecorder {
	e.t.Helper()
	data, err := json.Marshal(body)
	require.NoError(e.t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return e.do(req, session)
}

func (e *testEnv) postFile(path, field, filename string, content []byte, session *auth.Session) *httptest.ResponseRecorder {
	e.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if field != "" {
		part, err := mw.CreateFormFile(field, filename)
		require.NoError(e.t, err)
		_, err = part.Write(content)
		require.NoError(e.t, err)
	}
	require.NoError(e.t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return e.do(req, session)
}

func (e *testEnv) seed(records ...model.MusicRecord) {
	e.t.Helper()
	require.NoError(e.t, e.repo.Save(records))
}

func (e *testEnv) records() []model.MusicRecord {
	e.t.Helper()
	records, err := e.repo.Load()
	require.NoError(e.t, err)
	return records
}

func (e *testEnv) writeMedia(name, content string) {
	e.t.Helper()
	require.NoError(e.t, os.WriteFile(filepath.Join(e.mediaDir, name), []byte(content), 0644))
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func loggedIn(userID, token string) *auth.Session {
	return &auth.Session{LoggedIn: true, UserID: userID, UserName: strings.ToUpper(userID), AccessToken: token}
}

// healthyBackend answers /health and delegates everything else to h.
func healthyBackend(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		h(w, r)
	}
}
