// Package cli wires newsctl's cobra command surface to the orchestrator,
// backfill driver, monitor loop, and pair aggregator.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/spf13/cobra"

	"github.com/newsctl/newsctl/internal/aggregator"
	"github.com/newsctl/newsctl/internal/analyzer"
	"github.com/newsctl/newsctl/internal/analyzer/providers"
	"github.com/newsctl/newsctl/internal/backfill"
	"github.com/newsctl/newsctl/internal/calendar"
	"github.com/newsctl/newsctl/internal/config"
	"github.com/newsctl/newsctl/internal/errs"
	"github.com/newsctl/newsctl/internal/forum"
	"github.com/newsctl/newsctl/internal/logging"
	"github.com/newsctl/newsctl/internal/monitor"
	"github.com/newsctl/newsctl/internal/orchestrator"
	"github.com/newsctl/newsctl/internal/store"
)

// NewRootCmd builds newsctl's root command. No action flag on the bare
// "run" invocation prints usage and exits 0 (spec §6).
func NewRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "newsctl",
		Short: "newsctl harvests, scores, and aggregates financial-news sentiment",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to config.toml (default: platform config dir)")

	root.AddCommand(newRunCmd(&configPath))
	root.AddCommand(newBackfillCmd(&configPath))
	root.AddCommand(newMonitorCmd(&configPath))
	root.AddCommand(newToolsCmd())

	return root
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrMissingConfig, err)
	}
	cfg.LoadEnv()
	return cfg, nil
}

// newRunCmd implements the orchestrator CLI surface (spec §6's flag table).
func newRunCmd(configPath *string) *cobra.Command {
	var (
		scrapeEvents string
		scrapePosts  string
		postsLimit   int
		channels     []string
		analyzeFlag  bool
		pair         string
		pairAll      bool
		dryRun       bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run selected harvest/analyze/aggregate phases once",
		RunE: func(cmd *cobra.Command, args []string) error {
			noAction := scrapeEvents == "" && scrapePosts == "" && !analyzeFlag && pair == "" && !pairAll
			if noAction {
				return cmd.Usage()
			}

			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			logger := logging.Init(cfg.Telemetry.LogLevel, cfg.Telemetry.PrettyLogs)

			if len(channels) == 0 {
				channels = cfg.Forum.DefaultChannels
			}
			if postsLimit <= 0 {
				postsLimit = 25
			}

			ctx := context.Background()
			orch, st, err := buildOrchestrator(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			runCfg := orchestrator.Config{
				ScrapeEvents: orchestrator.ScrapePeriod(scrapeEvents),
				ScrapePosts:  orchestrator.PostSort(scrapePosts),
				Analyze:      analyzeFlag,
				DryRun:       dryRun,
				PostChannels: channels,
				PostLimit:    postsLimit,
				PairQuery:    pair,
			}
			if runCfg.ScrapeEvents == "" {
				runCfg.ScrapeEvents = orchestrator.ScrapeNone
			}
			if runCfg.ScrapePosts == "" {
				runCfg.ScrapePosts = orchestrator.PostsNone
			}

			result, err := orch.Run(ctx, time.Now(), runCfg)
			if err != nil {
				return fmt.Errorf("run: %w", err)
			}
			printResult(result)

			if pairAll {
				if err := printAllPairs(ctx, st, logger); err != nil {
					return err
				}
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&scrapeEvents, "scrape-events", "", "today|week|month")
	cmd.Flags().StringVar(&scrapePosts, "scrape-posts", "", "hot|new|top")
	cmd.Flags().IntVar(&postsLimit, "posts-limit", 25, "per-channel post cap")
	cmd.Flags().StringSliceVar(&channels, "channels", nil, "override default channel list")
	cmd.Flags().BoolVar(&analyzeFlag, "analyze", false, "run analyze phase over unscored items")
	cmd.Flags().StringVar(&pair, "pair", "", "compute and print pair sentiment, e.g. EURUSD")
	cmd.Flags().BoolVar(&pairAll, "pair-all", false, "print sentiment for every supported pair")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "rollback all writes on success")

	return cmd
}

func newBackfillCmd(configPath *string) *cobra.Command {
	var startStr, endStr string

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Drive the calendar scraper over a date range, week by week",
		RunE: func(cmd *cobra.Command, args []string) error {
			if startStr == "" || endStr == "" {
				return fmt.Errorf("--start and --end are required")
			}
			start, err := time.Parse("2006-01-02", startStr)
			if err != nil {
				return fmt.Errorf("invalid --start: %w", err)
			}
			end, err := time.Parse("2006-01-02", endStr)
			if err != nil {
				return fmt.Errorf("invalid --end: %w", err)
			}

			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			logger := logging.Init(cfg.Telemetry.LogLevel, cfg.Telemetry.PrettyLogs)

			ctx := context.Background()
			scraper := calendar.New(
				cfg.Scraping.BaseURL, cfg.Scraping.Headless,
				durationSec(cfg.Scraping.MinRequestDelaySec), durationSec(cfg.Scraping.MaxRequestDelaySec),
				cfg.Scraping.MaxRetries, logger,
			)
			st, err := store.New(ctx, cfg.Database)
			if err != nil {
				return fmt.Errorf("connecting to store: %w", err)
			}
			defer st.Close()

			checkpointPath := cfg.Backfill.CheckpointPath
			if checkpointPath == "" {
				checkpointPath, err = config.CacheDir()
				if err != nil {
					return err
				}
				checkpointPath += "-backfill-checkpoint.json"
			}

			driver := backfill.New(
				scraper, st, checkpointPath,
				cfg.Backfill.MaxWeekRetries, durationSec(cfg.Backfill.InterWeekJitterSec),
				logger,
			)

			checkpoint, err := driver.Run(ctx, start, end)
			if err != nil {
				return fmt.Errorf("backfill: %w", err)
			}

			fmt.Printf("backfill complete: last_completed_week=%v failed_weeks=%d\n",
				checkpoint.LastCompletedWeekAnchor, len(checkpoint.FailedWeeks))
			return nil
		},
	}

	cmd.Flags().StringVar(&startStr, "start", "", "start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&endStr, "end", "", "end date (YYYY-MM-DD)")
	cmd.Flags().Bool("resume", true, "accepted but not read: backfill always resumes from an existing checkpoint")

	return cmd
}

func newMonitorCmd(configPath *string) *cobra.Command {
	var pair string

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Periodically harvest+analyze a pair's currencies and print its sentiment",
		RunE: func(cmd *cobra.Command, args []string) error {
			if pair == "" {
				return fmt.Errorf("--pair is required")
			}

			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			logger := logging.Init(cfg.Telemetry.LogLevel, cfg.Telemetry.PrettyLogs)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			orch, st, err := buildOrchestrator(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			if _, ok := aggregator.SupportedPairs[strings.ToUpper(pair)]; !ok {
				return fmt.Errorf("%w: %s", errs.ErrInvalidPair, pair)
			}

			m := monitor.New(
				orch, pair, cfg.Forum.DefaultChannels, 25,
				time.Duration(cfg.Monitor.IntervalMinutes)*time.Minute,
				func(result orchestrator.Result) { printResult(result) },
				logger,
			)

			m.Start()
			<-ctx.Done()
			m.Stop()
			return nil
		},
	}

	cmd.Flags().StringVar(&pair, "pair", "", "currency pair to monitor, e.g. EURUSD")
	return cmd
}

func newToolsCmd() *cobra.Command {
	toolsCmd := &cobra.Command{
		Use:   "tools",
		Short: "Maintenance and debugging utilities",
	}

	toolsCmd.AddCommand(&cobra.Command{
		Use:   "bot-test",
		Short: "Open bot.sannysoft.com with the scraper's browser flags, to audit fingerprinting",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBotTest()
		},
	})

	return toolsCmd
}

func runBotTest() error {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)

	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)
	defer cancel()

	ctx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	if err := chromedp.Run(ctx, chromedp.Navigate("https://bot.sannysoft.com")); err != nil {
		return fmt.Errorf("navigating to bot.sannysoft.com: %w", err)
	}

	fmt.Println("Press Enter to close...")
	fmt.Scanln()
	return nil
}

func buildOrchestrator(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*orchestrator.Orchestrator, *store.Store, error) {
	scraper := calendar.New(
		cfg.Scraping.BaseURL, cfg.Scraping.Headless,
		durationSec(cfg.Scraping.MinRequestDelaySec), durationSec(cfg.Scraping.MaxRequestDelaySec),
		cfg.Scraping.MaxRetries, logger,
	)

	forumClient, err := forum.New(ctx, cfg.Forum.ClientID, cfg.Forum.ClientSecret, cfg.Forum.UserAgent, cfg.Forum.RequestsPerMinute, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("building forum client: %w", err)
	}

	if cfg.Analysis.APIKey == "" {
		return nil, nil, fmt.Errorf("%w: LLM_API_KEY", errs.ErrMissingAPIKey)
	}
	provider := providers.NewAnthropicProvider(cfg.Analysis.APIKey, cfg.Analysis.Model)
	an := analyzer.New(provider, cfg.Analysis.Model, analyzer.Config{
		MaxRetries:      cfg.Analysis.MaxRetries,
		BatchSize:       cfg.Analysis.BatchSize,
		ImageTimeout:    time.Duration(cfg.Analysis.ImageTimeoutSec) * time.Second,
		ImageMaxRetries: cfg.Analysis.MaxRetries,
	}, logger)

	st, err := store.New(ctx, cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to store: %w", err)
	}

	return orchestrator.New(scraper, forumClient, st, an, logger), st, nil
}

func printResult(result orchestrator.Result) {
	fmt.Printf("run %s: events scraped=%d analyzed=%d; posts scraped=%d analyzed=%d\n",
		result.RunID, result.EventsScraped, result.EventsAnalyzed, result.PostsScraped, result.PostsAnalyzed)
	if result.Pair != nil {
		fmt.Printf("%s: sentiment=%.4f signal=%q (base %s=%.4f, quote %s=%.4f)\n",
			result.Pair.Pair, result.Pair.Sentiment, result.Pair.Signal,
			result.Pair.Base.Currency, result.Pair.Base.Average,
			result.Pair.Quote.Currency, result.Pair.Quote.Average)
	}
}

func printAllPairs(ctx context.Context, st *store.Store, logger *slog.Logger) error {
	for code := range aggregator.SupportedPairs {
		pair, err := aggregator.Aggregate(ctx, st, code, aggregator.DefaultLookback, time.Now())
		if err != nil {
			logger.Warn("pair aggregation failed", "pair", code, "error", err)
			continue
		}
		fmt.Printf("%s: sentiment=%.4f signal=%q\n", pair.Pair, pair.Sentiment, pair.Signal)
	}
	return nil
}

func durationSec(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}
