package handler

import (
	"mime"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/imagescout/archiver"
	"github.com/use-agent/imagescout/models"
	"github.com/use-agent/imagescout/prober"
	"github.com/use-agent/imagescout/relay"
)

// Proxy returns a handler for GET /api/v1/proxy?url=.
// The image bytes are passed through unchanged.
func Proxy(rl *relay.Relay) gin.HandlerFunc {
	return func(c *gin.Context) {
		target := strings.TrimSpace(c.Query("url"))
		if target == "" {
			badRequest(c, "url query parameter is required")
			return
		}

		img, err := rl.Fetch(c.Request.Context(), target)
		if err != nil {
			respondError(c, err)
			return
		}

		c.Header("Cache-Control", relay.CacheControl)
		c.Data(http.StatusOK, img.ContentType, img.Body)
	}
}

// Download returns a handler for GET /api/v1/download?url=&alt=.
// It relays one image as an attachment named "<alt>.<ext>".
func Download(rl *relay.Relay) gin.HandlerFunc {
	return func(c *gin.Context) {
		target := strings.TrimSpace(c.Query("url"))
		if target == "" {
			badRequest(c, "url query parameter is required")
			return
		}

		img, err := rl.Fetch(c.Request.Context(), target)
		if err != nil {
			respondError(c, err)
			return
		}

		subtype := ""
		if strings.HasPrefix(img.ContentType, "image/") {
			subtype = prober.Subtype(img.ContentType)
		}
		resolved := models.ResolvedImage{URL: target, Type: subtype}
		filename := archiver.SanitizeName(c.Query("alt")) + "." + archiver.Extension(resolved, img.Body)

		c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
		c.Header("Cache-Control", relay.CacheControl)
		c.Data(http.StatusOK, img.ContentType, img.Body)
	}
}
