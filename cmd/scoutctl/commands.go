package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/use-agent/imagescout/models"
)

type scrapeFlags struct {
	imageType string
	minSize   uint64
	maxSize   uint64
}

func (f *scrapeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.imageType, "type", "t", "", `Only images of this type ("jpeg", "png", ...)`)
	cmd.Flags().Uint64Var(&f.minSize, "min-size", 0, "Minimum size in bytes")
	cmd.Flags().Uint64Var(&f.maxSize, "max-size", 0, "Maximum size in bytes")
}

func (f *scrapeFlags) request(url string) *models.ScrapeRequest {
	req := &models.ScrapeRequest{
		URL:     url,
		Type:    f.imageType,
		MinSize: f.minSize,
		MaxSize: f.maxSize,
	}
	req.Defaults()
	return req
}

func scrapeCommand(g *globalFlags) *cobra.Command {
	f := &scrapeFlags{}
	cmd := &cobra.Command{
		Use:   "scrape <url>",
		Short: "List the resolved images of a page as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := newBackend(g)
			if err != nil {
				return err
			}
			defer b.Close()

			resp, err := b.Scrape(cmd.Context(), f.request(args[0]))
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(resp)
		},
	}
	f.register(cmd)
	return cmd
}

func archiveCommand(g *globalFlags) *cobra.Command {
	f := &scrapeFlags{}
	var output string

	cmd := &cobra.Command{
		Use:   "archive <url>",
		Short: "Archive every image of a page into a ZIP file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := newBackend(g)
			if err != nil {
				return err
			}
			defer b.Close()

			ctx := cmd.Context()
			scraped, err := b.Scrape(ctx, f.request(args[0]))
			if err != nil {
				return err
			}
			if len(scraped.Images) == 0 {
				return errors.New("no images found on " + scraped.PageURL)
			}

			file, err := os.Create(output)
			if err != nil {
				return err
			}

			stderr := cmd.ErrOrStderr()
			out, err := b.Archive(ctx, scraped.Images, func(p models.ArchiveProgress) {
				fmt.Fprintf(stderr, "\rarchiving %d/%d", p.Completed, p.Total)
			}, file)
			fmt.Fprintln(stderr)
			if cerr := file.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				_ = os.Remove(output)
				return err
			}

			for _, fail := range out.Failures {
				fmt.Fprintf(stderr, "skipped %s: %s\n", fail.URL, fail.Reason)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d of %d images)\n", output, out.Succeeded, out.Total)
			return nil
		},
	}
	f.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", models.ArchiveFileName, "Output ZIP file")
	return cmd
}
