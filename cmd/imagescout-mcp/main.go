package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/use-agent/imagescout/client"
	"github.com/use-agent/imagescout/models"
)

// maxListed caps how many images a tool result spells out.
const maxListed = 50

func main() {
	apiURL := os.Getenv("IMAGESCOUT_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	// Optional: the server may run without auth.
	apiKey := os.Getenv("IMAGESCOUT_API_KEY")

	c := client.New(apiURL, apiKey)

	s := server.NewMCPServer(
		"imagescout",
		"0.1.0",
		server.WithToolCapabilities(false),
	)

	scrapeTool := mcp.NewTool("scrape_images",
		mcp.WithDescription("Find every image on a web page and resolve each to its best available quality. Returns the image URLs with their type and byte size."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The URL of the web page to scan"),
		),
		mcp.WithString("type",
			mcp.Description("Keep only images of this type, e.g. 'jpeg', 'png', 'webp'. Default: all"),
		),
		mcp.WithNumber("min_size",
			mcp.Description("Keep only images at least this many bytes large"),
		),
	)
	s.AddTool(scrapeTool, handleScrapeImages(c))

	archiveTool := mcp.NewTool("archive_images",
		mcp.WithDescription("Scan a web page for images and bundle them into a ZIP archive on the imagescout server. Returns the job status and a download path."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The URL of the web page to archive images from"),
		),
		mcp.WithString("type",
			mcp.Description("Archive only images of this type. Default: all"),
		),
	)
	s.AddTool(archiveTool, handleArchiveImages(c))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func scrapeRequest(request mcp.CallToolRequest) (*models.ScrapeRequest, error) {
	url, err := request.RequireString("url")
	if err != nil {
		return nil, errors.New("url is required")
	}
	req := &models.ScrapeRequest{
		URL:     url,
		Type:    request.GetString("type", ""),
		MinSize: uint64(max(request.GetFloat("min_size", 0), 0)),
	}
	req.Defaults()
	return req, nil
}

func handleScrapeImages(c *client.Client) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		req, err := scrapeRequest(request)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		resp, err := c.Scrape(ctx, req)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		return mcp.NewToolResultText(formatScrape(resp)), nil
	}
}

func handleArchiveImages(c *client.Client) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		req, err := scrapeRequest(request)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		scraped, err := c.Scrape(ctx, req)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if len(scraped.Images) == 0 {
			return mcp.NewToolResultError("no images found on " + scraped.PageURL), nil
		}

		job, err := c.StartArchive(ctx, &models.ArchiveRequest{Images: scraped.Images})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		pollCtx, cancel := context.WithTimeout(ctx, 10*time.Minute)
		defer cancel()

		status, err := c.WaitArchive(pollCtx, job.ID, nil)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("archive job %s: %v", job.ID, err)), nil
		}

		return mcp.NewToolResultText(formatArchive(status)), nil
	}
}

func formatScrape(resp *models.ScrapeResponse) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Page: %s\nImages: %d of %d candidates\n\n", resp.PageURL, resp.Total, resp.Candidates)
	for i, img := range resp.Images {
		if i == maxListed {
			fmt.Fprintf(&b, "... and %d more\n", len(resp.Images)-maxListed)
			break
		}
		fmt.Fprintf(&b, "%d. %s (%s, %d bytes) %q\n", i+1, img.URL, img.Type, img.Size, img.Alt)
	}
	if len(resp.Failures) > 0 {
		fmt.Fprintf(&b, "\n%d candidates could not be resolved\n", len(resp.Failures))
	}
	return b.String()
}

func formatArchive(status *models.ArchiveJobStatusResponse) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Job: %s\nStatus: %s\nStored: %d of %d\n",
		status.ID, status.Status, status.Succeeded, status.Progress.Total)
	if status.Error != nil {
		fmt.Fprintf(&b, "Error: [%s] %s\n", status.Error.Code, status.Error.Error)
	}
	if status.Status != models.JobFailed {
		fmt.Fprintf(&b, "Download: /api/v1/archive/jobs/%s/download\n", status.ID)
	}
	for _, f := range status.Failures {
		fmt.Fprintf(&b, "- failed %s: %s\n", f.URL, f.Reason)
	}
	return b.String()
}
