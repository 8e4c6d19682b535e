package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"subplan-backend/internal/components/chrono"
	"subplan-backend/internal/components/telemetry"
	"subplan-backend/internal/plan"
	"subplan-backend/internal/scrapers/untis"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var crawlFlags struct {
	dialect          string
	groups           string
	waveSize         int
	maxPages         int
	pageTimeout      time.Duration
	waveTimeout      time.Duration
	rateLimit        float64
	cloudflareBypass bool
}

func init() {
	flags := crawlCmd.Flags()
	flags.StringVar(&crawlFlags.dialect, "dialect", "students", "Plan dialect, students or teachers.")
	flags.StringVar(&crawlFlags.groups, "groups", "", "Only show groups matching these comma separated tokens.")
	flags.IntVar(&crawlFlags.waveSize, "wave-size", 5, "Pages fetched concurrently per wave.")
	flags.IntVar(&crawlFlags.maxPages, "max-pages", 99, "Give up after this many pages.")
	flags.DurationVar(&crawlFlags.pageTimeout, "page-timeout", 5*time.Second, "Timeout of a single page request.")
	flags.DurationVar(&crawlFlags.waveTimeout, "wave-timeout", 15*time.Second, "Timeout of a wave of page requests.")
	flags.Float64Var(&crawlFlags.rateLimit, "rate-limit", 0, "Maximum requests per second, 0 disables limiting.")
	flags.BoolVar(&crawlFlags.cloudflareBypass, "cloudflare-bypass", false, "Use the cloudflare bypass transport.")
	rootCmd.AddCommand(crawlCmd)
}

var crawlCmd = &cobra.Command{
	Use:   "crawl <url template>",
	Short: "Crawls a plan once and prints it, the url template contains the page number verb like subst_%03d.htm.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dialect, err := untis.DialectByName(crawlFlags.dialect)
		if err != nil {
			return err
		}
		tel := telemetry.SlogAPI{}
		fetcher := untis.NewHTTPFetcher(untis.HTTPFetcherOptions{
			URLTemplate:      args[0],
			Timeout:          crawlFlags.pageTimeout,
			RateLimit:        crawlFlags.rateLimit,
			CloudflareBypass: crawlFlags.cloudflareBypass,
		}, tel)
		crawler := untis.NewCrawler(
			dialect,
			fetcher,
			chrono.NewStandardTime(),
			tel,
			untis.WithWaveSize(crawlFlags.waveSize),
			untis.WithMaxPages(crawlFlags.maxPages),
			untis.WithPageTimeout(crawlFlags.pageTimeout),
			untis.WithWaveTimeout(crawlFlags.waveTimeout),
		)
		return runCrawl(cmd.Context(), cmd.OutOrStdout(), crawler, plan.ParseSelection(crawlFlags.groups))
	},
}

func runCrawl(ctx context.Context, out io.Writer, crawler *untis.Crawler, selection []string) error {
	start := time.Now()
	result, err := crawler.Crawl(ctx, "", "")
	if err != nil {
		return fmt.Errorf("crawl: %w", err)
	}
	slog.Info("crawled plan", "pages", result.Pages, "status", result.Status.Token, "took", time.Since(start))

	view := result.Snapshot.Project(selection)
	if jsonOutput {
		return printJSON(out, view)
	}
	renderView(out, crawler.Dialect(), view)
	return nil
}

func renderView(out io.Writer, dialect untis.Dialect, view plan.View) {
	fmt.Fprintf(out, "Stand: %s\n", view.Status)
	for _, day := range view.Days {
		fmt.Fprintf(out, "\n%s %s %s\n", day.Date, day.Name, day.Week)
		for _, news := range day.News {
			fmt.Fprintf(out, "  * %s\n", news)
		}
		for _, info := range day.Info {
			fmt.Fprintf(out, "  %s: %s\n", info.Label, info.Text)
		}
		if len(day.Groups) == 0 {
			continue
		}

		t := newTable(out)
		header := table.Row{"Group"}
		for _, f := range dialect.Columns {
			header = append(header, f.String())
		}
		t.AppendHeader(header)
		for _, group := range day.Groups {
			name := group.Name
			if group.Pretty != "" && group.Pretty != group.Name {
				name = fmt.Sprintf("%s (%s)", group.Name, group.Pretty)
			}
			if group.Struck {
				name = "~" + name + "~"
			}
			for _, entry := range group.Entries {
				row := table.Row{name}
				for _, f := range dialect.Columns {
					value := entry.Fields[f.String()]
					for _, s := range entry.Struck {
						if s == f.String() {
							value = "~" + value + "~"
						}
					}
					row = append(row, value)
				}
				t.AppendRow(row)
			}
		}
		t.Render()
	}
}

// joinTokens is used by the state command to keep lists short in tables.
func joinTokens(tokens []string) string {
	if len(tokens) > 6 {
		return strings.Join(tokens[:6], ", ") + ", ..."
	}
	return strings.Join(tokens, ", ")
}
