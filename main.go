package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/streamlens/streamlens/internal/cache"
	"github.com/streamlens/streamlens/internal/config"
	"github.com/streamlens/streamlens/internal/providers"
	"github.com/streamlens/streamlens/internal/ratelimit"
	"github.com/streamlens/streamlens/internal/search"
)

// Version information (set during build)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// parseLogLevel parses the LOG_LEVEL environment variable and returns the
// appropriate logrus level. Defaults to WarnLevel if not set or invalid.
func parseLogLevel() logrus.Level {
	logLevelStr := strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL")))
	switch logLevelStr {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn", "warning", "":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.WarnLevel
	}
}

func main() {
	// Load .env before anything reads the environment; missing files are fine.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logrus.New()
	logger.SetLevel(parseLogLevel())
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	app := &cli.App{
		Name:    "streamlens",
		Usage:   "search independent content providers and view merged analytics",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "path to an optional YAML config overlay",
			},
		},
		Commands: []*cli.Command{
			searchCommand(logger),
			resumeCommand(logger),
			statusCommand(logger),
			clearCommand(logger),
		},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		logger.WithError(err).Error("Command failed")
		color.Red("error: %v", err)
		os.Exit(1)
	}
}

// app wires the full stack for one command invocation.
type app struct {
	cfg        *config.Config
	store      cache.Store
	set        *providers.Set
	controller *search.Controller
	limiter    *ratelimit.Limiter
	logger     *logrus.Logger
}

func buildApp(c *cli.Context, logger *logrus.Logger) (*app, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}

	store, err := cache.NewSQLite(cfg.CachePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache at %s: %w", cfg.CachePath, err)
	}

	set := providers.FromConfig(cfg, logger)
	limiter := ratelimit.New(cfg.RateLimit, cfg.RateWindow)
	orchestrator := search.NewOrchestrator(set.Providers, limiter, logger)
	cascade := search.NewCascade(set.Strategies, cfg.Politeness, logger)

	controller := search.NewController(orchestrator, cascade, store, search.ControllerConfig{
		Owner:              cfg.Owner,
		ParamsTTL:          cfg.ParamsTTL,
		ResultTTL:          cfg.ResultTTL,
		ProgressTTL:        cfg.ProgressTTL,
		CompletionGrace:    cfg.CompletionGrace,
		MaxEnrichItems:     cfg.MaxEnrichItems,
		MaxSubItemsPerItem: cfg.MaxSubItemsPerItem,
		Priority:           set.Priority,
	}, logger)

	return &app{
		cfg:        cfg,
		store:      store,
		set:        set,
		controller: controller,
		limiter:    limiter,
		logger:     logger,
	}, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.logger.WithError(err).Warn("Failed to close cache store")
	}
}

func searchCommand(logger *logrus.Logger) *cli.Command {
	return &cli.Command{
		Name:  "search",
		Usage: "run a search across the configured providers",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:    "provider",
				Aliases: []string{"p"},
				Usage:   "provider to query (repeatable; default: all configured)",
			},
			&cli.StringFlag{Name: "query", Aliases: []string{"q"}, Usage: "free-text query"},
			&cli.StringSliceFlag{Name: "tag", Aliases: []string{"t"}, Usage: "tag / community filter (repeatable)"},
			&cli.StringFlag{Name: "author", Usage: "author handle filter"},
			&cli.StringFlag{Name: "region", Usage: "region / language filter (BCP-47)"},
			&cli.BoolFlag{Name: "replies", Usage: "enrich top results with replies/comments"},
			&cli.StringFlag{Name: "sort", Value: search.SortPopular, Usage: "sort preference: recent or popular"},
			&cli.IntFlag{Name: "limit", Value: 20, Usage: "maximum merged results"},
		},
		Action: func(c *cli.Context) error {
			a, err := buildApp(c, logger)
			if err != nil {
				return err
			}
			defer a.close()

			req := &search.Request{
				Query:           c.String("query"),
				Tags:            c.StringSlice("tag"),
				AuthorHandle:    c.String("author"),
				Region:          c.String("region"),
				IncludeSubItems: c.Bool("replies"),
				SortPreference:  c.String("sort"),
				Limit:           c.Int("limit"),
				IssuedAt:        time.Now(),
			}
			for _, p := range c.StringSlice("provider") {
				req.Providers = append(req.Providers, search.ProviderID(p))
			}
			if len(req.Providers) == 0 {
				req.Providers = a.set.Priority
			}

			result, err := a.controller.Submit(c.Context, req)
			if err != nil {
				return err
			}
			printResult(result)
			return nil
		},
	}
}

func resumeCommand(logger *logrus.Logger) *cli.Command {
	return &cli.Command{
		Name:  "resume",
		Usage: "reconcile an interrupted search: surface its cached result or restart it",
		Action: func(c *cli.Context) error {
			a, err := buildApp(c, logger)
			if err != nil {
				return err
			}
			defer a.close()

			result, err := a.controller.Reconcile(c.Context)
			if err != nil {
				return err
			}
			if result == nil {
				fmt.Println("nothing to resume")
				return nil
			}
			printResult(result)
			return nil
		},
	}
}

func statusCommand(logger *logrus.Logger) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "show the persisted search progress and remaining rate budget",
		Action: func(c *cli.Context) error {
			a, err := buildApp(c, logger)
			if err != nil {
				return err
			}
			defer a.close()

			record, ok, err := a.controller.Progress()
			if err != nil {
				return err
			}
			if !ok {
				fmt.Println("no search on record")
			} else {
				fmt.Printf("search %s: %s (updated %s)\n",
					record.SearchID, record.State, record.LastUpdatedAt.Format(time.RFC3339))
				if record.Error != "" {
					color.Red("  error: %s", record.Error)
				}
			}
			fmt.Printf("rate budget: %d calls remaining in the current window\n", a.limiter.Remaining())
			return nil
		},
	}
}

func clearCommand(logger *logrus.Logger) *cli.Command {
	return &cli.Command{
		Name:  "clear",
		Usage: "discard the persisted request, result and progress record",
		Action: func(c *cli.Context) error {
			a, err := buildApp(c, logger)
			if err != nil {
				return err
			}
			defer a.close()

			for _, ns := range []string{cache.KeyParams, cache.KeyResults, cache.KeyProgress} {
				if err := a.store.Delete(cache.Key(ns, a.cfg.Owner)); err != nil {
					return err
				}
			}
			fmt.Println("cleared")
			return nil
		},
	}
}

func printResult(result *search.Result) {
	bold := color.New(color.Bold)
	_, _ = bold.Printf("search %s: %s\n", result.SearchID, result.State)
	fmt.Printf("fetched %d, unique %d, duplicates %d (%.1f%% overlap)\n",
		result.Analytics.TotalFetched, result.Analytics.UniqueCount,
		result.Analytics.DuplicateCount, result.Analytics.OverlapPercentage)

	for _, id := range result.Analytics.ProvidersUsed {
		pr := result.ProviderResults[id]
		fmt.Printf("  %s: %d items\n", id, len(pr.Items))
	}
	for id, pr := range result.ProviderResults {
		if pr.Status == search.StatusFailed && pr.Error != nil {
			color.Yellow("  %s failed: %s", id, pr.Error.Message)
		}
	}

	fmt.Println()
	for i, item := range result.Items {
		line := item.Text
		if idx := strings.IndexByte(line, '\n'); idx >= 0 {
			line = line[:idx]
		}
		if len(line) > 100 {
			line = line[:100] + "…"
		}
		fmt.Printf("%2d. [%s] @%s (%d/%d/%d) %s\n", i+1, item.Provider, item.AuthorHandle,
			item.Metrics.Primary, item.Metrics.Secondary, item.Metrics.Tertiary, line)
		for _, sub := range item.SubItems {
			subLine := sub.Text
			if idx := strings.IndexByte(subLine, '\n'); idx >= 0 {
				subLine = subLine[:idx]
			}
			if len(subLine) > 80 {
				subLine = subLine[:80] + "…"
			}
			fmt.Printf("      ↳ @%s (%.0f) %s\n", sub.AuthorHandle, sub.EngagementScore, subLine)
		}
	}
}
