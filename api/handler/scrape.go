package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/imagescout/models"
	"github.com/use-agent/imagescout/scraper"
)

// Scrape returns a handler for POST /api/v1/scrape.
//
//  1. Parse & validate request, apply defaults.
//  2. Scraper.Scrape → every valid image on the page, in discovery order.
//  3. Apply type/size filters and pagination.
func Scrape(sc *scraper.Scraper) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.ScrapeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		req.Defaults()
		if req.URL == "" {
			badRequest(c, "url is required")
			return
		}

		resp, err := sc.Query(c.Request.Context(), &req)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, resp)
	}
}
