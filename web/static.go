package web

import (
	"embed"
	"io/fs"
	"net/http"
	"path"
	"strings"
)

//go:embed static
var staticFS embed.FS

var assets = mustSub(staticFS, "static")

func mustSub(fsys fs.FS, dir string) fs.FS {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		panic(err)
	}
	return sub
}

// Assets returns the bundled scripts and stylesheet, rooted like /static/.
func Assets() fs.FS {
	return assets
}

// StaticHandler serves a request path (already stripped of /static/) from the
// bundled assets first and from dir otherwise. An empty dir serves only the
// bundle.
func StaticHandler(dir string) http.Handler {
	bundled := http.FileServer(http.FS(assets))
	var disk http.Handler
	if dir != "" {
		disk = http.FileServer(http.Dir(dir))
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
		if info, err := fs.Stat(assets, name); err == nil && !info.IsDir() {
			bundled.ServeHTTP(w, r)
			return
		}
		if disk == nil {
			http.NotFound(w, r)
			return
		}
		disk.ServeHTTP(w, r)
	})
}
