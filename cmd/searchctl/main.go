package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/Adithya-Monish-Kumar-K/sitesearch/internal/app"
	"github.com/Adithya-Monish-Kumar-K/sitesearch/internal/events"
	"github.com/Adithya-Monish-Kumar-K/sitesearch/internal/searcher"
	"github.com/Adithya-Monish-Kumar-K/sitesearch/internal/stats"
	"github.com/Adithya-Monish-Kumar-K/sitesearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/sitesearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/sitesearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/sitesearch/pkg/logger"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "searchctl",
		Usage: "Crawl the configured sites and query the index without the HTTP service",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file",
				Value:   "configs/development.yaml",
				EnvVars: []string{"SS_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "warn",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "crawl",
				Usage:  "Run a full crawl and wait for it; Ctrl-C stops it",
				Action: crawlCommand,
			},
			{
				Name:      "index-page",
				Usage:     "Fetch and re-index a single page of a configured site",
				ArgsUsage: "URL",
				Action:    indexPageCommand,
			},
			{
				Name:      "search",
				Usage:     "Query the index",
				ArgsUsage: "QUERY",
				Action:    searchCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "site", Aliases: []string{"s"}, Usage: "Restrict results to one site URL"},
					&cli.IntFlag{Name: "offset", Usage: "Results to skip"},
					&cli.IntFlag{Name: "limit", Usage: "Results to return (0 uses the configured default)"},
					&cli.BoolFlag{Name: "json", Usage: "Print the raw JSON response"},
				},
			},
			{
				Name:   "stats",
				Usage:  "Print index statistics",
				Action: statsCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "json", Usage: "Print the raw JSON report"},
				},
			},
			{
				Name:   "watch",
				Usage:  "Tail crawl events from Kafka and print a summary on exit",
				Action: watchCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "from-start", Usage: "Replay retained events from the oldest offset"},
				},
			},
		},
	}
}

// setupLogger sends logs to stderr so command output stays parseable.
func setupLogger(c *cli.Context) error {
	logger.Setup(os.Stderr, "searchctl", c.String("log-level"), "text")
	return nil
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func open(c *cli.Context) (*app.App, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	return app.New(c.Context, cfg)
}

// userError turns application errors into their operator message.
func userError(err error) error {
	var appErr *apperrors.AppError
	if apperrors.As(err, &appErr) {
		return cli.Exit(appErr.Message, 1)
	}
	return err
}

func crawlCommand(c *cli.Context) (err error) {
	a, err := open(c)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	if err := a.Crawler.Start(ctx); err != nil {
		return userError(err)
	}
	fmt.Fprintf(c.App.ErrWriter, "crawling %d site(s)...\n", len(a.Config.Sites))
	select {
	case <-a.Crawler.Done():
	case <-ctx.Done():
		fmt.Fprintln(c.App.ErrWriter, "stopping crawl")
		if err := a.Crawler.Stop(); err != nil && !apperrors.Is(err, apperrors.ErrCrawlNotRunning) {
			return err
		}
		a.Crawler.Wait()
	}
	fmt.Fprintf(c.App.ErrWriter, "crawl finished in %s\n", time.Since(start).Round(time.Millisecond))

	report, err := a.Stats.Statistics(context.WithoutCancel(ctx))
	if err != nil {
		return err
	}
	printStats(c, report)
	return nil
}

func indexPageCommand(c *cli.Context) (err error) {
	if c.NArg() != 1 {
		return cli.Exit("index-page needs exactly one URL", 2)
	}
	a, err := open(c)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	ok, err := a.Pages.IndexPage(c.Context, c.Args().First())
	if err != nil {
		return userError(err)
	}
	if !ok {
		return cli.Exit("page is outside the configured sites or has no content", 1)
	}
	fmt.Fprintf(c.App.Writer, "indexed %s\n", c.Args().First())
	return nil
}

func searchCommand(c *cli.Context) (err error) {
	if c.NArg() == 0 {
		return cli.Exit("search needs a query", 2)
	}
	a, err := open(c)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	resp, err := a.Search.Search(c.Context, searcher.Query{
		Text:   strings.Join(c.Args().Slice(), " "),
		Site:   c.String("site"),
		Offset: c.Int("offset"),
		Limit:  c.Int("limit"),
	})
	if err != nil {
		return userError(err)
	}
	if c.Bool("json") {
		return printJSON(c, resp)
	}
	if resp.Count == 0 {
		fmt.Fprintln(c.App.Writer, "nothing found")
		return nil
	}
	fmt.Fprintf(c.App.Writer, "%d result(s)\n", resp.Count)
	for _, r := range resp.Results {
		fmt.Fprintf(c.App.Writer, "\n%.3f  %s%s\n  %s\n  %s\n", r.Relevance, r.Site, r.URI, r.Title, r.Snippet)
	}
	return nil
}

func statsCommand(c *cli.Context) (err error) {
	a, err := open(c)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	report, err := a.Stats.Statistics(c.Context)
	if err != nil {
		return err
	}
	if c.Bool("json") {
		return printJSON(c, report)
	}
	printStats(c, report)
	return nil
}

func watchCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if len(cfg.Kafka.Brokers) == 0 {
		return cli.Exit("no kafka brokers configured", 1)
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	tally := events.NewTally()
	consumer := kafka.NewConsumer(cfg.Kafka, c.Bool("from-start"), tally.Handler(func(e events.Event) {
		fmt.Fprintf(c.App.Writer, "%s %-14s %s %s %s %s\n",
			e.Timestamp.Format(time.RFC3339), e.Type, e.Site, e.URL, e.Status, e.Error)
	}))
	if err := consumer.Start(ctx); err != nil {
		return err
	}

	summary := tally.Summary()
	fmt.Fprintf(c.App.Writer, "\nruns: %d, stopped: %d, pages: %d, page errors: %d\n",
		summary.Runs, summary.Stopped, summary.PagesIndexed, summary.PageErrors)
	for _, s := range summary.Sites {
		fmt.Fprintf(c.App.Writer, "  %s %s pages=%d %s\n", s.Site, s.Status, s.Pages, s.Error)
	}
	return nil
}

func printStats(c *cli.Context, report *stats.Report) {
	t := report.Total
	fmt.Fprintf(c.App.Writer, "sites: %d, pages: %d, lemmas: %d, indexing: %t\n\n", t.Sites, t.Pages, t.Lemmas, t.Indexing)
	w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "URL\tSTATUS\tPAGES\tLEMMAS\tUPDATED\tERROR")
	for _, d := range report.Detailed {
		updated := time.UnixMilli(d.StatusTime).Format(time.DateTime)
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\n", d.URL, d.Status, d.Pages, d.Lemmas, updated, d.Error)
	}
	w.Flush()
}

func printJSON(c *cli.Context, v any) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
