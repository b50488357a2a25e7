// Package web embeds the single-page chat front end.
package web

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed static
var content embed.FS

// Static is the front-end asset tree rooted at the static directory.
var Static fs.FS = mustSub(content, "static")

func mustSub(fsys fs.FS, dir string) fs.FS {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		panic(err)
	}
	return sub
}

// IndexHandler serves index.html.
func IndexHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeFileFS(w, r, Static, "index.html")
	})
}

// AssetHandler serves the front-end assets under prefix, for example
// "/static/".
func AssetHandler(prefix string) http.Handler {
	return http.StripPrefix(prefix, http.FileServerFS(Static))
}
