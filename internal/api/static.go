package api

import (
	"io/fs"
	"net/http"
	"path"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/sqldesk/internal/middleware"
)

// staticHandler serves the bundled web client. Unknown paths outside /api fall back to
// index.html so client-side routes survive a reload.
func staticHandler(static fs.FS) gin.HandlerFunc {
	if static == nil {
		return middleware.NotFoundHandler
	}

	index, indexErr := fs.ReadFile(static, "index.html")
	files := http.FS(static)

	return func(c *gin.Context) {
		method := c.Request.Method
		if middleware.IsAPIRequest(c.Request) || (method != http.MethodGet && method != http.MethodHead) {
			middleware.NotFoundHandler(c)
			return
		}

		name := strings.TrimPrefix(path.Clean(c.Request.URL.Path), "/")
		if name != "" && name != "index.html" {
			if info, err := fs.Stat(static, name); err == nil && !info.IsDir() {
				c.FileFromFS(name, files)
				return
			}
		}

		if indexErr != nil {
			middleware.NotFoundHandler(c)
			return
		}
		c.Header("Cache-Control", "no-cache")
		c.Data(http.StatusOK, "text/html; charset=utf-8", index)
	}
}
