package web

import (
	"bytes"
	"testing"

	"moodfm/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderer_AllPagesRender(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	data := &PageData{
		LoggedIn: true,
		UserName: "Minsu",
		Mode:     "video",
		MusicID:  "a",
		Selected: &model.MusicRecord{ID: "a", Title: "Calm", Speed: model.IntPtr(90), Place: "cafe"},
		Music: []model.MusicRecord{
			{ID: "a", Title: "비 오는 날", CreatedAt: "2024-01-02T03:04:05", Tempo: model.IntPtr(120)},
			{ID: "b", Title: "<script>"},
		},
	}
	for _, page := range []string{PageIndex, PageCreate, PageImageCreate, PageDetailInput, PagePlaylist, PagePlaylistMain, PageLogin} {
		var buf bytes.Buffer
		require.NoError(t, r.Render(&buf, page, data), page)
		assert.Contains(t, buf.String(), "Minsu", page)
	}
}

func TestRenderer_PlaylistContent(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, r.Render(&buf, PagePlaylist, &PageData{
		MusicID: "a",
		Music: []model.MusicRecord{
			{ID: "a", Title: "비 오는 날", CreatedAt: "2024-01-02T03:04:05", Tempo: model.IntPtr(120)},
			{ID: "b", Title: "<script>"},
		},
	}))
	out := buf.String()
	assert.Contains(t, out, "비 오는 날")
	assert.Contains(t, out, "120 BPM")
	assert.Contains(t, out, "2024-01-02 03:04")
	assert.Contains(t, out, `music-container selected" data-id="a"`)
	assert.NotContains(t, out, "<script>\n")
	assert.Contains(t, out, "&lt;script&gt;")
	assert.Contains(t, out, "Log in")
}

func TestRenderer_LoginError(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, r.Render(&buf, PageLogin, &PageData{Error: "Cannot reach the Google authentication server."}))
	assert.Contains(t, buf.String(), "Cannot reach the Google authentication server.")
}

func TestRenderer_UnknownPage(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)
	assert.Error(t, r.Render(&bytes.Buffer{}, "missing.html", nil))
}

func TestFormatDate(t *testing.T) {
	assert.Equal(t, "2024-05-06 07:08", FormatDate("2024-05-06T07:08:09.123456"))
	assert.Equal(t, "2024-05-06 07:08", FormatDate("2024-05-06T07:08:09Z"))
	assert.Equal(t, "yesterday", FormatDate(" yesterday "))
}
