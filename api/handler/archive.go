package handler

import (
	"mime"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/imagescout/archiver"
	"github.com/use-agent/imagescout/jobs"
	"github.com/use-agent/imagescout/models"
)

const zipContentType = "application/zip"

var archiveDisposition = mime.FormatMediaType("attachment", map[string]string{"filename": models.ArchiveFileName})

// Archive returns a handler for POST /api/v1/archive. It blocks until every
// image has been attempted and answers with the ZIP itself.
func Archive(a *archiver.Archiver) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.ArchiveRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		res, err := a.Archive(c.Request.Context(), req.Images, nil)
		if err != nil {
			respondError(c, err)
			return
		}

		c.Header("Content-Disposition", archiveDisposition)
		c.Header("X-Archive-Succeeded", strconv.Itoa(res.Succeeded))
		c.Header("X-Archive-Total", strconv.Itoa(res.Total))
		c.Data(http.StatusOK, zipContentType, res.Data)
	}
}

// PostArchiveJob returns a handler for POST /api/v1/archive/jobs.
func PostArchiveJob(r *jobs.Runner) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.ArchiveRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		job, err := r.Start(c.Request.Context(), &req)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusAccepted, models.ArchiveJobResponse{
			ID:     job.ID,
			Status: job.Status,
			Total:  job.Progress.Total,
		})
	}
}

// GetArchiveJob returns a handler for GET /api/v1/archive/jobs/:id.
func GetArchiveJob(store jobs.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		job, err := store.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.ArchiveJobStatusResponse{
			ArchiveJob: *job,
			Percent:    job.Progress.Percent(),
		})
	}
}

// DownloadArchiveJob returns a handler for GET /api/v1/archive/jobs/:id/download.
func DownloadArchiveJob(store jobs.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		job, err := store.Get(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		if !job.Done() {
			respondError(c, models.NewScrapeError(models.ErrCodeJobPending, "archive job is still processing", nil))
			return
		}
		if job.Status == models.JobFailed {
			resp := models.ErrorResponse{Error: "archive job failed", Code: models.ErrCodeArchiveEmpty}
			if job.Error != nil {
				resp = *job.Error
			}
			c.JSON(http.StatusGone, resp)
			return
		}

		data, err := store.Archive(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}

		c.Header("Content-Disposition", archiveDisposition)
		c.Header("X-Archive-Succeeded", strconv.Itoa(job.Succeeded))
		c.Header("X-Archive-Total", strconv.Itoa(job.Progress.Total))
		c.Data(http.StatusOK, zipContentType, data)
	}
}
