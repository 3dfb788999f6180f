package web

import (
	"bytes"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var assetRef = regexp.MustCompile(`(?:src|href)="/static/([^"]+)"`)

func TestAssets_EveryPageReferenceIsBundled(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	seen := map[string]bool{}
	for page := range r.pages {
		var buf bytes.Buffer
		require.NoError(t, r.Render(&buf, page, &PageData{LoggedIn: true, Mode: "image"}))
		for _, m := range assetRef.FindAllStringSubmatch(buf.String(), -1) {
			seen[m[1]] = true
		}
	}

	require.NotEmpty(t, seen)
	for name := range seen {
		_, err := fs.Stat(Assets(), name)
		assert.NoError(t, err, name)
	}
	for _, name := range []string{"css/style.css", "js/main.js", "js/create.js", "js/detail_input.js", "js/image_create.js", "js/playlist.js"} {
		assert.True(t, seen[name], name)
	}
}

func TestAssets_ScriptsCallTheJSONEndpoints(t *testing.T) {
	tests := map[string][]string{
		"js/create.js":       {"/generate-music", "redirect_url"},
		"js/detail_input.js": {"/generate-music-with-detail", "music_id", "detail_text"},
		"js/image_create.js": {"/generate-music-from-", "FormData"},
		"js/playlist.js":     {"function playMusic", "function deleteMusic", "function toggleLike", "'DELETE'", "data.liked"},
		"js/main.js":         {"data.missing", "function followRedirect"},
	}
	for name, wants := range tests {
		data, err := fs.ReadFile(Assets(), name)
		require.NoError(t, err, name)
		for _, want := range wants {
			assert.Contains(t, string(data), want, name)
		}
	}
}

func TestStaticHandler(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "images"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "images", "cover.png"), []byte("png"), 0644))
	h := http.StripPrefix("/static/", StaticHandler(dir))

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	rec := get("/static/js/create.js")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "javascript")
	assert.Contains(t, rec.Body.String(), "/generate-music")

	rec = get("/static/css/style.css")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/css")

	rec = get("/static/images/cover.png")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "png", rec.Body.String())

	assert.Equal(t, http.StatusNotFound, get("/static/js/missing.js").Code)

	rec = httptest.NewRecorder()
	http.StripPrefix("/static/", StaticHandler("")).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/static/images/cover.png", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
