// Command scoutctl scans pages for images and archives them from the
// command line, either in-process or against a running imagescout server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCommand().ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// flags shared by every subcommand.
type globalFlags struct {
	server string
	apiKey string
}

func rootCommand() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:   "scoutctl",
		Short: "Discover, resolve and archive the images of a web page",
		Long: `scoutctl finds every image on a web page, resolves each one to the
best available quality and can bundle them into a ZIP archive.

By default the work runs in-process with the IMAGESCOUT_* configuration.
With --server it is delegated to a running imagescout API.

Examples:
  # List the images of a page as JSON
  scoutctl scrape https://example.com/gallery

  # Only large PNGs
  scoutctl scrape https://example.com/gallery -t png --min-size 100000

  # Archive every image into gallery.zip
  scoutctl archive https://example.com/gallery -o gallery.zip
`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&g.server, "server", os.Getenv("IMAGESCOUT_API_URL"), "imagescout API base URL (default: run in-process)")
	root.PersistentFlags().StringVar(&g.apiKey, "api-key", os.Getenv("IMAGESCOUT_API_KEY"), "API key for --server")

	root.AddCommand(scrapeCommand(g), archiveCommand(g), benchCommand(g))
	return root
}
