// Package uistatic serves the single-page question UI. The page is rendered
// once per process with the server's default connection settings filled into
// the sidebar form; the password field always starts empty.
package uistatic

import (
	"bytes"
	"embed"
	"html/template"
	"io/fs"
	"net/http"
	"path"
	"strings"

	"github.com/querychat/querychat/internal/session"
)

//go:embed all:app
var appFS embed.FS

type Options struct {
	Title    string
	Defaults session.Params
	RAG      bool
}

func Handler(opts Options) http.Handler {
	sub, err := fs.Sub(appFS, "app")
	if err != nil {
		return http.NotFoundHandler()
	}
	index, err := renderIndex(sub, opts)
	if err != nil {
		return http.NotFoundHandler()
	}
	fileServer := http.FileServer(http.FS(sub))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cleanPath := path.Clean(strings.TrimPrefix(r.URL.Path, "/"))
		if cleanPath != "." && cleanPath != "index.html" {
			if _, err := fs.Stat(sub, cleanPath); err == nil {
				fileServer.ServeHTTP(w, r)
				return
			}
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(index)
	})
}

func renderIndex(filesystem fs.FS, opts Options) ([]byte, error) {
	tmpl, err := template.ParseFS(filesystem, "index.html")
	if err != nil {
		return nil, err
	}
	data := opts
	if data.Title == "" {
		data.Title = "Chat with your database"
	}
	data.Defaults.Password = ""
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
