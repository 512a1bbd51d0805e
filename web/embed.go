package web

import (
	"embed"
	"io/fs"
)

// staticFS embeds the web client build output (web/dist) into the binary.
//
//go:embed all:dist
var staticFS embed.FS

// FS returns the embedded web client rooted at the dist directory.
func FS() (fs.FS, error) {
	return fs.Sub(staticFS, "dist")
}
