package web

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"path"
	"strings"

	"moodfm/model"
)

//go:embed templates/*.html
var templateFS embed.FS

// Page names accepted by Render.
const (
	PageIndex        = "index.html"
	PageCreate       = "create.html"
	PageImageCreate  = "image_create.html"
	PageDetailInput  = "detail_input.html"
	PagePlaylist     = "playlist.html"
	PagePlaylistMain = "playlist_main.html"
	PageLogin        = "login.html"
)

// PageData is the view model shared by every page.
type PageData struct {
	LoggedIn    bool
	UserName    string
	UserPicture string
	UserEmail   string

	Error    string
	Mode     string
	MusicID  string
	Selected *model.MusicRecord
	Music    []model.MusicRecord
	// Source is "backend" or "local" for listing pages.
	Source string
}

// Renderer holds one parsed template set per page, each combined with the layout.
type Renderer struct {
	pages map[string]*template.Template
}

var funcs = template.FuncMap{
	"formatDate": FormatDate,
	"tempo": func(r model.MusicRecord) int {
		return r.EffectiveTempo()
	},
	"location": func(r model.MusicRecord) string {
		return r.EffectiveLocation()
	},
}

func NewRenderer() (*Renderer, error) {
	entries, err := fs.Glob(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	r := &Renderer{pages: make(map[string]*template.Template)}
	for _, entry := range entries {
		name := path.Base(entry)
		if name == "layout.html" {
			continue
		}
		t, err := template.New(name).Funcs(funcs).ParseFS(templateFS, "templates/layout.html", entry)
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		r.pages[name] = t
	}
	return r, nil
}

// Render executes page inside the layout.
func (r *Renderer) Render(w io.Writer, page string, data *PageData) error {
	t, ok := r.pages[page]
	if !ok {
		return fmt.Errorf("unknown page %q", page)
	}
	if data == nil {
		data = &PageData{}
	}
	return t.ExecuteTemplate(w, "layout", data)
}

// FormatDate renders a created_at value as "2006-01-02 15:04"; unparseable
// values are shown as stored.
func FormatDate(value string) string {
	t, ok := model.ParseTimestamp(value)
	if !ok {
		return strings.TrimSpace(value)
	}
	return t.Format("2006-01-02 15:04")
}
