package server

import (
	"mime"
	"net/http"
	"net/http/httptest"
	"testing"

	"moodfm/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ownedRecords() []model.MusicRecord {
	return []model.MusicRecord{
		{ID: "a1", Title: "Alice tune", FilePath: "a1.mp3", UserID: "alice", CreatedAt: "2024-03-01T10:00:00.000000+00:00"},
		{ID: "b1", Title: "Bob tune", FilePath: "b1.mp3", UserID: "bob", CreatedAt: "2024-03-02T10:00:00.000000+00:00"},
		{ID: "legacy", Title: "Legacy tune", FilePath: "legacy.mp3", CreatedAt: "2023-12-31T10:00:00.000000+00:00"},
	}
}

func deleteReq(id string) *http.Request {
	return httptest.NewRequest(http.MethodDelete, "/delete/"+id, nil)
}

func TestDeleteHandler_Local(t *testing.T) {
	t.Run("unknown id", func(t *testing.T) {
		env := newTestEnv(t, nil)
		env.seed(ownedRecords()...)
		rec := env.do(deleteReq("nope"), loggedIn("alice", ""))
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Len(t, env.records(), 3)
	})

	t.Run("another user's record", func(t *testing.T) {
		env := newTestEnv(t, nil)
		env.seed(ownedRecords()...)
		rec := env.do(deleteReq("b1"), loggedIn("alice", ""))
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Len(t, env.records(), 3)
	})

	t.Run("own record and its asset", func(t *testing.T) {
		env := newTestEnv(t, nil)
		env.seed(ownedRecords()...)
		env.writeMedia("a1.mp3", "audio")

		rec := env.do(deleteReq("a1"), loggedIn("alice", ""))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, true, decodeBody(t, rec)["success"])
		assert.Len(t, env.records(), 2)
		assert.NoFileExists(t, env.mediaDir+"/a1.mp3")
	})

	t.Run("shared placeholder survives", func(t *testing.T) {
		env := newTestEnv(t, nil)
		env.seed(model.MusicRecord{ID: "p1", Title: "Stand-in", FilePath: "demo.mp3", UserID: "alice", CreatedAt: "2024-03-01T10:00:00.000000+00:00"})
		env.writeMedia("demo.mp3", "placeholder audio")

		rec := env.do(deleteReq("p1"), loggedIn("alice", ""))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Empty(t, env.records())
		assert.FileExists(t, env.mediaDir+"/demo.mp3")
	})

	t.Run("unowned record by any user", func(t *testing.T) {
		env := newTestEnv(t, nil)
		env.seed(ownedRecords()...)
		rec := env.do(deleteReq("legacy"), loggedIn("bob", ""))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("session-less request", func(t *testing.T) {
		env := newTestEnv(t, nil)
		env.seed(ownedRecords()...)
		rec := env.do(deleteReq("b1"), nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, env.records(), 2)
	})
}

func TestDeleteHandler_Backend(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		wantCode    int
		wantRecords int
	}{
		{"deleted remotely", http.StatusOK, http.StatusOK, 3},
		{"unauthorized", http.StatusUnauthorized, http.StatusUnauthorized, 3},
		{"forbidden", http.StatusForbidden, http.StatusForbidden, 3},
		{"not found falls through to local", http.StatusNotFound, http.StatusOK, 2},
		{"server error falls through to local", http.StatusBadGateway, http.StatusOK, 2},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var gotPath, gotAuth string
			env := newTestEnv(t, healthyBackend(func(w http.ResponseWriter, r *http.Request) {
				gotPath, gotAuth = r.URL.Path, r.Header.Get("Authorization")
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(`{}`))
			}))
			env.seed(ownedRecords()...)

			rec := env.do(deleteReq("a1"), loggedIn("alice", "tok"))
			assert.Equal(t, tc.wantCode, rec.Code, rec.Body.String())
			assert.Equal(t, "/api/music/a1", gotPath)
			assert.Equal(t, "Bearer tok", gotAuth)
			assert.Len(t, env.records(), tc.wantRecords)
		})
	}
}

func TestLikeHandler(t *testing.T) {
	likeReq := func(method string) *http.Request {
		return httptest.NewRequest(method, "/api/music/m1/like", nil)
	}

	t.Run("requires a token", func(t *testing.T) {
		env := newTestEnv(t, healthyBackend(func(w http.ResponseWriter, r *http.Request) {}))
		rec := env.do(likeReq(http.MethodPost), loggedIn("u1", ""))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("placeholder token is not enough", func(t *testing.T) {
		env := newTestEnv(t, healthyBackend(func(w http.ResponseWriter, r *http.Request) {}))
		placeholder, err := env.sessions.SignPlaceholderToken(env.identity.identity)
		require.NoError(t, err)
		rec := env.do(likeReq(http.MethodPost), loggedIn("u1", placeholder))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("backend down", func(t *testing.T) {
		env := newTestEnv(t, nil)
		rec := env.do(likeReq(http.MethodPost), loggedIn("u1", "tok"))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("backend error", func(t *testing.T) {
		env := newTestEnv(t, healthyBackend(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		rec := env.do(likeReq(http.MethodPost), loggedIn("u1", "tok"))
		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})

	t.Run("like and unlike", func(t *testing.T) {
		var methods []string
		env := newTestEnv(t, healthyBackend(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/music/m1/like", r.URL.Path)
			methods = append(methods, r.Method)
			_, _ = w.Write([]byte(`{"success":true}`))
		}))

		rec := env.do(likeReq(http.MethodPost), loggedIn("u1", "tok"))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, true, decodeBody(t, rec)["liked"])

		rec = env.do(likeReq(http.MethodDelete), loggedIn("u1", "tok"))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, false, decodeBody(t, rec)["liked"])
		assert.Equal(t, []string{http.MethodPost, http.MethodDelete}, methods)
	})
}

func TestPlayHandler(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seed(
		model.MusicRecord{ID: "has-file", Title: "A", FilePath: "has-file.mp3"},
		model.MusicRecord{ID: "no-file", Title: "B", FilePath: "no-file.mp3"},
		model.MusicRecord{ID: "remote", Title: "C", MusicURL: "https://cdn.example.com/c.mp3"},
		model.MusicRecord{ID: "escape", Title: "D", FilePath: "../secret.mp3"},
	)
	env.writeMedia("has-file.mp3", "audio")

	tests := map[string]string{
		"has-file": "/media/has-file.mp3",
		"no-file":  "/media/demo.mp3",
		"remote":   "https://cdn.example.com/c.mp3",
		"escape":   "/media/demo.mp3",
	}
	for id, want := range tests {
		rec := env.do(httptest.NewRequest(http.MethodGet, "/play/"+id, nil), nil)
		require.Equal(t, http.StatusOK, rec.Code, id)
		assert.Equal(t, want, decodeBody(t, rec)["url"], id)
	}

	rec := env.do(httptest.NewRequest(http.MethodGet, "/play/missing", nil), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDownloadHandler(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seed(
		model.MusicRecord{ID: "m1", Title: "비 오는 날", FilePath: "m1.mp3"},
		model.MusicRecord{ID: "m2", Title: "Quiet night", FilePath: "m2.mp3"},
	)
	env.writeMedia("m1.mp3", "real audio")
	env.writeMedia("demo.mp3", "placeholder audio")

	rec := env.do(httptest.NewRequest(http.MethodGet, "/download/m1", nil), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "real audio", rec.Body.String())
	assert.Equal(t, "audio/mpeg", rec.Header().Get("Content-Type"))
	disposition, params, err := mime.ParseMediaType(rec.Header().Get("Content-Disposition"))
	require.NoError(t, err)
	assert.Equal(t, "attachment", disposition)
	assert.Equal(t, "비 오는 날.mp3", params["filename"])

	rec = env.do(httptest.NewRequest(http.MethodGet, "/download/m2", nil), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "placeholder audio", rec.Body.String())
	_, params, err = mime.ParseMediaType(rec.Header().Get("Content-Disposition"))
	require.NoError(t, err)
	assert.Equal(t, "Quiet night.mp3", params["filename"])

	rec = env.do(httptest.NewRequest(http.MethodGet, "/download/absent", nil), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDownloadHandler_NoPlaceholder(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seed(model.MusicRecord{ID: "m1", Title: "Gone", FilePath: "m1.mp3"})

	rec := env.do(httptest.NewRequest(http.MethodGet, "/download/m1", nil), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMediaHandler(t *testing.T) {
	env := newTestEnv(t, nil)
	env.writeMedia("song.mp3", "0123456789")

	req := httptest.NewRequest(http.MethodGet, "/media/song.mp3", nil)
	req.Header.Set("Range", "bytes=2-4")
	rec := env.do(req, nil)
	assert.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "234", rec.Body.String())

	rec = env.do(httptest.NewRequest(http.MethodGet, "/media/nothing.mp3", nil), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPlaylistHandler(t *testing.T) {
	t.Run("local records of the session user", func(t *testing.T) {
		env := newTestEnv(t, nil)
		env.seed(ownedRecords()...)

		rec := env.do(httptest.NewRequest(http.MethodGet, "/playlist?music_id=a1", nil), loggedIn("alice", ""))
		require.Equal(t, http.StatusOK, rec.Code)
		body := rec.Body.String()
		assert.Contains(t, body, "Alice tune")
		assert.NotContains(t, body, "Bob tune")
		assert.Contains(t, body, `data-source="local"`)
		assert.Contains(t, body, "music-container selected")
	})

	t.Run("backend list with a token", func(t *testing.T) {
		env := newTestEnv(t, healthyBackend(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/music/my", r.URL.Path)
			_, _ = w.Write([]byte(`[{"id":"r1","title":"Remote tune"}]`))
		}))
		env.seed(ownedRecords()...)

		rec := env.do(httptest.NewRequest(http.MethodGet, "/playlist", nil), loggedIn("alice", "tok"))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "Remote tune")
		assert.NotContains(t, rec.Body.String(), "Alice tune")
	})

	t.Run("main playlist shows everyone", func(t *testing.T) {
		env := newTestEnv(t, nil)
		env.seed(ownedRecords()...)

		rec := env.do(httptest.NewRequest(http.MethodGet, "/playlist-main", nil), nil)
		require.Equal(t, http.StatusOK, rec.Code)
		for _, title := range []string{"Alice tune", "Bob tune", "Legacy tune"} {
			assert.Contains(t, rec.Body.String(), title)
		}
	})
}
