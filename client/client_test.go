package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/imagescout/models"
)

func TestScrape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/scrape", r.URL.Path)
		assert.Equal(t, "k", r.Header.Get("X-API-Key"))
		var req models.ScrapeRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		_ = json.NewEncoder(w).Encode(models.ScrapeResponse{
			Images: []models.ResolvedImage{{URL: req.URL + "/a.jpg", Alt: "image", Type: "jpeg", Size: 5}},
			Total:  1,
		})
	}))
	defer srv.Close()

	resp, err := New(srv.URL+"/", "k").Scrape(context.Background(), &models.ScrapeRequest{URL: "https://site.example"})
	require.NoError(t, err)
	require.Len(t, resp.Images, 1)
	assert.Equal(t, "https://site.example/a.jpg", resp.Images[0].URL)
}

func TestAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(models.ErrorResponse{Error: "url is required", Code: models.ErrCodeInvalidInput})
	}))
	defer srv.Close()

	_, err := New(srv.URL, "").Scrape(context.Background(), &models.ScrapeRequest{})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, models.ErrCodeInvalidInput, apiErr.Body.Code)
	assert.Contains(t, err.Error(), "url is required")
}

func TestArchiveRoundTrip(t *testing.T) {
	var polls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/archive/jobs", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(models.ArchiveJobResponse{ID: "j1", Status: models.JobProcessing, Total: 6})
	})
	mux.HandleFunc("GET /api/v1/archive/jobs/j1", func(w http.ResponseWriter, r *http.Request) {
		n := int(polls.Add(1))
		job := models.ArchiveJob{ID: "j1", Status: models.JobProcessing, Progress: models.ArchiveProgress{Completed: 3 * n, Total: 6}}
		if n >= 2 {
			job.Status = models.JobCompleted
			job.Succeeded = 6
		}
		_ = json.NewEncoder(w).Encode(models.ArchiveJobStatusResponse{ArchiveJob: job, Percent: job.Progress.Percent()})
	})
	mux.HandleFunc("GET /api/v1/archive/jobs/j1/download", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("PKzip"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(srv.URL, "")
	c.PollInterval = time.Millisecond

	job, err := c.StartArchive(context.Background(), &models.ArchiveRequest{Images: []models.ResolvedImage{{URL: "https://x/a.jpg", Size: 1}}})
	require.NoError(t, err)
	assert.Equal(t, "j1", job.ID)

	var seen []models.ArchiveProgress
	status, err := c.WaitArchive(context.Background(), job.ID, func(p models.ArchiveProgress) { seen = append(seen, p) })
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, status.Status)
	assert.Equal(t, []models.ArchiveProgress{{Completed: 3, Total: 6}, {Completed: 6, Total: 6}}, seen)

	var buf bytes.Buffer
	n, err := c.DownloadArchive(context.Background(), job.ID, &buf)
	require.NoError(t, err)
	assert.EqualValues(t, 5, n)
	assert.Equal(t, "PKzip", buf.String())
}
