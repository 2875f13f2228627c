package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/linkgraph-crawler/internal/crawler"
	"github.com/JakeFAU/linkgraph-crawler/internal/export"
	"github.com/JakeFAU/linkgraph-crawler/internal/server"
)

type crawlOptions struct {
	seed          string
	maxDepth      int
	limit         int
	search        string
	stayInDomain  bool
	noRobots      bool
	concurrency   int
	globalTimeout time.Duration
	delay         time.Duration
	allow         []string
	deny          []string
	format        string
	outDir        string
}

// newCrawlCmd creates the one-shot 'crawl' subcommand. It runs a single job
// in-process through the job manager and writes one export file.
func newCrawlCmd() *cobra.Command {
	opts := &crawlOptions{}
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawls from a seed URL and writes the graph export",
		Long: `Runs one crawl job to completion using the configured crawler defaults,
overridden by any flags given, then exports the graph in the chosen format.
Interrupting the command stops the crawl and still exports what was collected.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCrawl(cmd, opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.seed, "seed", "", "seed URL (required)")
	f.IntVar(&opts.maxDepth, "max-depth", 0, "maximum link depth from the seed")
	f.IntVar(&opts.limit, "limit", 0, "hard limit on visited pages")
	f.StringVar(&opts.search, "search", "", "traversal order: BFS or DFS")
	f.BoolVar(&opts.stayInDomain, "stay-in-domain", true, "only follow links on the seed host")
	f.BoolVar(&opts.noRobots, "no-robots", false, "ignore robots.txt")
	f.IntVar(&opts.concurrency, "concurrency", 0, "maximum concurrent fetches")
	f.DurationVar(&opts.globalTimeout, "timeout", 0, "stop the crawl after this duration")
	f.DurationVar(&opts.delay, "delay", 0, "pause between requests")
	f.StringSliceVar(&opts.allow, "allow", nil, "regex a link must match to be followed (repeatable)")
	f.StringSliceVar(&opts.deny, "deny", nil, "regex that excludes a link (repeatable)")
	f.StringVar(&opts.format, "format", "json", "export format: json, csv, graphml, zip")
	f.StringVar(&opts.outDir, "out", ".", "directory for the export file")
	_ = cmd.MarkFlagRequired("seed")
	return cmd
}

// applyCrawlFlags overlays explicitly set flags on the configured defaults.
func applyCrawlFlags(cmd *cobra.Command, opts *crawlOptions, defaults crawler.CrawlConfig) crawler.CrawlConfig {
	cfg := defaults
	cfg.SeedURL = opts.seed
	f := cmd.Flags()
	if f.Changed("max-depth") {
		cfg.MaxDepth = opts.maxDepth
	}
	if f.Changed("limit") {
		cfg.HardLinkLimit = opts.limit
	}
	if f.Changed("search") {
		cfg.SearchMethod = crawler.SearchMethod(strings.ToUpper(opts.search))
	}
	if f.Changed("stay-in-domain") {
		cfg.StayInDomain = opts.stayInDomain
	}
	if f.Changed("no-robots") {
		cfg.FollowRobotsTxt = !opts.noRobots
	}
	if f.Changed("concurrency") {
		cfg.MaxConcurrency = opts.concurrency
	}
	if f.Changed("timeout") {
		cfg.GlobalTimeout = opts.globalTimeout
	}
	if f.Changed("delay") {
		cfg.Delay = opts.delay
	}
	if f.Changed("allow") {
		cfg.Filter.AllowPatterns = opts.allow
	}
	if f.Changed("deny") {
		cfg.Filter.DenyPatterns = opts.deny
	}
	return cfg
}

func runCrawl(cmd *cobra.Command, opts *crawlOptions) error {
	cfg, err := resolveConfig(cmd.Context())
	if err != nil {
		return err
	}
	// Validate the format before spending time on the crawl.
	if _, err := export.ParseFormat(opts.format); err != nil {
		return err
	}
	app, err := server.Build(cmd.Context(), cfg, nil)
	if err != nil {
		return fmt.Errorf("build application: %w", err)
	}
	defer app.Close()
	logger := app.Logger()
	manager := app.Manager()

	jobCfg := applyCrawlFlags(cmd, opts, cfg.CrawlDefaults())
	runID, err := manager.Create(cmd.Context(), jobCfg)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	manager.RunJob(ctx, runID)

	summary, err := manager.Status(context.WithoutCancel(ctx), runID)
	if err != nil {
		return fmt.Errorf("job status: %w", err)
	}
	logger.Info("crawl finished",
		zap.String("run_id", runID),
		zap.String("status", string(summary.Status)),
		zap.Int("nodes", summary.TotalNodes),
		zap.Int("edges", summary.TotalEdges),
		zap.String("error", summary.Error),
	)
	if summary.Status == crawler.JobStatusError {
		return fmt.Errorf("crawl %s failed: %s", runID, summary.Error)
	}

	file, err := manager.Export(context.WithoutCancel(ctx), runID, opts.format)
	if err != nil {
		return fmt.Errorf("export %s: %w", opts.format, err)
	}
	if err := os.MkdirAll(opts.outDir, 0o750); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	target := filepath.Join(opts.outDir, file.Name)
	if err := os.WriteFile(target, file.Data, 0o600); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), target)
	return nil
}
