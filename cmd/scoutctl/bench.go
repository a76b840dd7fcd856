package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/use-agent/imagescout/models"
)

// benchResult aggregates the runs against one page.
type benchResult struct {
	URL      string
	Runs     int
	Failed   int
	AvgMs    int64
	Images   int
	Failures int
	Engine   string
	LastErr  error
}

func benchCommand(g *globalFlags) *cobra.Command {
	var runs int

	cmd := &cobra.Command{
		Use:   "bench <url>...",
		Short: "Time repeated scrapes of one or more pages",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := newBackend(g)
			if err != nil {
				return err
			}
			defer b.Close()

			results := make([]benchResult, 0, len(args))
			for _, u := range args {
				results = append(results, benchPage(cmd.Context(), b, u, runs))
			}
			printBench(cmd.OutOrStdout(), results)
			return nil
		},
	}
	cmd.Flags().IntVarP(&runs, "runs", "n", 3, "Scrapes per URL")
	return cmd
}

func benchPage(ctx context.Context, b backend, pageURL string, runs int) benchResult {
	res := benchResult{URL: pageURL, Runs: max(runs, 1)}
	var total time.Duration
	ok := 0

	for range res.Runs {
		start := time.Now()
		resp, err := b.Scrape(ctx, &models.ScrapeRequest{URL: pageURL})
		if err != nil {
			res.Failed++
			res.LastErr = err
			continue
		}
		total += time.Since(start)
		ok++
		res.Images = resp.Total
		res.Failures = len(resp.Failures)
		res.Engine = resp.EngineUsed
	}
	if ok > 0 {
		res.AvgMs = (total / time.Duration(ok)).Milliseconds()
	}
	return res
}

func printBench(out io.Writer, results []benchResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "URL\tAvg Latency\tImages\tDropped\tEngine\tFailed Runs\n")
	for _, r := range results {
		if r.Failed == r.Runs {
			fmt.Fprintf(w, "%s\tFAILED\t-\t-\t-\t%d/%d (%v)\n", r.URL, r.Failed, r.Runs, r.LastErr)
			continue
		}
		fmt.Fprintf(w, "%s\t%dms\t%d\t%d\t%s\t%d/%d\n",
			r.URL, r.AvgMs, r.Images, r.Failures, r.Engine, r.Failed, r.Runs)
	}
	_ = w.Flush()
}
