package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/raaihank/pii-sentinel/internal/annotator"
	"github.com/raaihank/pii-sentinel/internal/batch"
	"github.com/raaihank/pii-sentinel/internal/config"
	"github.com/raaihank/pii-sentinel/internal/ledger"
	"github.com/raaihank/pii-sentinel/internal/logger"
	"github.com/raaihank/pii-sentinel/internal/privacy"
	"github.com/raaihank/pii-sentinel/internal/pseudonym"
)

var version = "0.1.0"

// Exit codes.
const (
	exitOK       = 0
	exitError    = 1
	exitUsage    = 2
	exitFailures = 3
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath  = flag.String("config", "", "Configuration file path")
		categories  = flag.String("categories", "", "Comma separated categories to pseudonymize, or \"all\" (default from config)")
		workers     = flag.Int("workers", 0, "Number of worker goroutines (default from config)")
		suffix      = flag.String("suffix", "", "Output file suffix (default from config)")
		report      = flag.String("report", "", "Write a findings report (.json, .csv or .parquet)")
		noLedger    = flag.Bool("no-ledger", false, "Do not record the run in the ledger")
		showStats   = flag.Bool("stats", false, "Show ledger and annotator cache statistics and exit")
		showRunID   = flag.String("run", "", "Show a recorded run and its documents from the ledger and exit")
		clearCache  = flag.Bool("clear-cache", false, "Clear the annotator cache and exit")
		migrate     = flag.String("migrate", "", "Run ledger migrations (up, down or version) and exit")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Printf("pii-sentinel protect %s\n", version)
		return exitOK
	}

	adminMode := *showStats || *clearCache || *migrate != "" || *showRunID != ""
	if flag.NArg() == 0 && !adminMode {
		usage()
		return exitUsage
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return exitError
	}
	if *workers > 0 {
		cfg.Batch.Workers = *workers
	}
	if *suffix != "" {
		cfg.Privacy.OutputSuffix = *suffix
	}
	if *report != "" {
		cfg.Batch.Report = *report
	}
	if *noLedger {
		cfg.Ledger.Enabled = false
	}

	// Validate the policy before touching any file
	policy := cfg.Privacy.Categories
	if *categories != "" {
		policy = []string{*categories}
	}
	enabled, err := privacy.ResolveCategoryList(policy)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitUsage
	}
	if cfg.Batch.Report != "" {
		if err := batch.ValidateReportPath(cfg.Batch.Report); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			return exitUsage
		}
	}

	log, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return exitError
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("Received shutdown signal, cancelling run...")
		cancel()
	}()

	switch {
	case *migrate != "":
		err = runMigrations(cfg, *migrate, log)
	case *showStats:
		err = showStatistics(ctx, cfg, log)
	case *showRunID != "":
		err = showRun(ctx, cfg, *showRunID, log)
	case *clearCache:
		err = clearAnnotatorCache(ctx, cfg, log)
	default:
		return protectFiles(ctx, cfg, enabled, flag.Args(), log)
	}

	if err != nil {
		log.Error("Command failed", zap.Error(err))
		return exitError
	}
	return exitOK
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [options] <file or pattern>...\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "\nOptions:\n")
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, "\nExamples:\n")
	fmt.Fprintf(os.Stderr, "  %s 'pages/*.txt'\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "  %s --categories email,ipv4 --report findings.parquet data/*.json\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "  %s --migrate up\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "  %s --stats\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "  %s --run <run id>\n", os.Args[0])
}

func newLogger(cfg *config.Config) (*logger.Logger, error) {
	loggerConfig := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}
	if cfg.Logging.File.Enabled {
		loggerConfig.File = &logger.FileConfig{
			Enabled: true,
			Path:    cfg.Logging.File.Path,
		}
	}
	return logger.New(loggerConfig)
}

func ledgerConfig(cfg *config.Config) *ledger.Config {
	return &ledger.Config{
		DatabaseURL:     cfg.Ledger.DatabaseURL,
		MaxOpenConns:    cfg.Ledger.MaxOpenConns,
		MaxIdleConns:    cfg.Ledger.MaxIdleConns,
		ConnMaxLifetime: cfg.Ledger.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Ledger.ConnMaxIdleTime,
	}
}

// protectFiles runs the batch pipeline over the expanded arguments.
func protectFiles(ctx context.Context, cfg *config.Config, enabled privacy.CategorySet, args []string, log *logger.Logger) int {
	paths, err := batch.ExpandPaths(args)
	if err != nil {
		log.Error("No input files", zap.Error(err))
		return exitUsage
	}

	// One salt per run, never stored
	salt, err := pseudonym.NewSalt()
	if err != nil {
		log.Error("Failed to generate salt", zap.Error(err))
		return exitError
	}
	p, err := pseudonym.New(salt)
	if err != nil {
		log.Error("Failed to create pseudonymizer", zap.Error(err))
		return exitError
	}

	ann, closeAnnotator, err := annotator.New(cfg.Annotator, nil, log)
	if err != nil {
		log.Error("Failed to initialize annotator", zap.Error(err))
		return exitError
	}
	defer closeAnnotator()

	engine, err := privacy.NewEngine(p, enabled, ann, log.WithComponent("privacy"))
	if err != nil {
		log.Error("Failed to create privacy engine", zap.Error(err))
		return exitError
	}

	var recorder batch.Recorder
	if cfg.Ledger.Enabled {
		store, err := ledger.NewStore(ledgerConfig(cfg), log.WithComponent("ledger").Logger)
		if err != nil {
			log.Warn("Ledger unavailable, run will not be recorded", zap.Error(err))
		} else {
			defer store.Close()
			recorder = store
		}
	}

	runner := batch.NewRunner(engine, &batch.Config{
		Workers: cfg.Batch.Workers,
		Suffix:  cfg.Privacy.OutputSuffix,
	}, recorder, nil, log.WithComponent("batch"))

	result, runErr := runner.Run(ctx, paths)

	if cfg.Batch.Report != "" && result != nil {
		if err := batch.WriteReport(cfg.Batch.Report, result); err != nil {
			log.Error("Failed to write report", zap.String("report", cfg.Batch.Report), zap.Error(err))
			return exitError
		}
		log.Info("Findings report written", zap.String("report", cfg.Batch.Report))
	}

	if runErr != nil {
		log.Error("Run interrupted", zap.Error(runErr))
		return exitError
	}

	printSummary(result)

	if result.ProcessedFailed > 0 {
		return exitFailures
	}
	return exitOK
}

func printSummary(result *batch.ProcessingResult) {
	fmt.Printf("\n=== PII Sentinel Run %s ===\n", result.RunID)
	fmt.Printf("Documents:     %d\n", result.TotalDocuments)
	fmt.Printf("Protected:     %d\n", result.ProcessedOK)
	fmt.Printf("Failed:        %d\n", result.ProcessedFailed)
	fmt.Printf("Skipped:       %d\n", result.Skipped)
	fmt.Printf("Replacements:  %d\n", result.Replacements)
	for _, f := range result.Categories {
		fmt.Printf("  %-12s %d\n", f.Category, f.Count)
	}
	fmt.Printf("Duration:      %v\n", result.Duration)

	for _, msg := range result.Errors {
		fmt.Fprintf(os.Stderr, "error: %s\n", msg)
	}
}

// runMigrations applies or rolls back the ledger schema.
func runMigrations(cfg *config.Config, direction string, log *logger.Logger) error {
	migrator, err := ledger.NewMigrator(cfg.Ledger.DatabaseURL, log.WithComponent("migrator").Logger)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer migrator.Close()

	switch direction {
	case "up":
		if err := migrator.Up(); err != nil {
			return err
		}
	case "down":
		if err := migrator.Down(); err != nil {
			return err
		}
	case "version":
	default:
		return fmt.Errorf("unknown migration direction %q (must be up, down or version)", direction)
	}

	v, dirty, err := migrator.Version()
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	fmt.Printf("Ledger schema version: %d (dirty: %t)\n", v, dirty)
	return nil
}

// showStatistics displays ledger and cache statistics
func showStatistics(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	if !cfg.Ledger.Enabled && !cfg.Annotator.Cache.Enabled {
		return fmt.Errorf("neither the ledger nor the annotator cache is enabled")
	}

	if cfg.Ledger.Enabled {
		store, err := ledger.NewStore(ledgerConfig(cfg), log.WithComponent("ledger").Logger)
		if err != nil {
			return fmt.Errorf("failed to open ledger: %w", err)
		}
		defer store.Close()

		stats, err := store.GetStats(ctx)
		if err != nil {
			return fmt.Errorf("failed to get ledger stats: %w", err)
		}

		fmt.Printf("\n=== PII Sentinel Ledger Statistics ===\n")
		fmt.Printf("Runs:               %d\n", stats.Runs)
		fmt.Printf("Documents:          %d\n", stats.Documents)
		fmt.Printf("Failed Documents:   %d\n", stats.Failed)
		fmt.Printf("Replacements:       %d\n", stats.Replacements)
	}

	if cfg.Annotator.Cache.Enabled {
		entityCache, err := annotator.NewCache(cfg.Annotator.Cache, log)
		if err != nil {
			return err
		}
		defer entityCache.Close()

		cacheStats, err := entityCache.GetStats(ctx)
		if err != nil {
			return fmt.Errorf("failed to get cache stats: %w", err)
		}

		fmt.Printf("\n=== Annotator Cache Statistics ===\n")
		fmt.Printf("Cache Hits:         %d\n", cacheStats.Hits)
		fmt.Printf("Cache Misses:       %d\n", cacheStats.Misses)
		fmt.Printf("Hit Rate:           %.1f%%\n", cacheStats.HitRate)
		fmt.Printf("Total Keys:         %d\n", cacheStats.TotalKeys)
	}

	return nil
}

// showRun prints a recorded run and its document rows
func showRun(ctx context.Context, cfg *config.Config, runID string, log *logger.Logger) error {
	if !cfg.Ledger.Enabled {
		return fmt.Errorf("ledger is not enabled")
	}

	store, err := ledger.NewStore(ledgerConfig(cfg), log.WithComponent("ledger").Logger)
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	defer store.Close()

	run, err := store.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	docs, err := store.ListDocuments(ctx, runID)
	if err != nil {
		return err
	}

	printRun(os.Stdout, run, docs)
	return nil
}

func printRun(w io.Writer, run *ledger.Run, docs []*ledger.Document) {
	fmt.Fprintf(w, "\n=== PII Sentinel Run %s ===\n", run.ID)
	fmt.Fprintf(w, "Source:        %s\n", run.Source)
	fmt.Fprintf(w, "Categories:    %s\n", strings.Join(run.Categories, ","))
	fmt.Fprintf(w, "Started:       %s\n", run.StartedAt.Format("2006-01-02T15:04:05Z07:00"))
	if run.FinishedAt != nil {
		fmt.Fprintf(w, "Finished:      %s\n", run.FinishedAt.Format("2006-01-02T15:04:05Z07:00"))
	} else {
		fmt.Fprintf(w, "Finished:      (running)\n")
	}
	fmt.Fprintf(w, "Documents:     %d (ok %d, failed %d, skipped %d)\n", run.Documents, run.Succeeded, run.Failed, run.Skipped)
	fmt.Fprintf(w, "Replacements:  %d\n", run.Replacements)

	for _, doc := range docs {
		fmt.Fprintf(w, "  %-7s %-8s %4d  %s", doc.Status, doc.Format, doc.Replacements, doc.Path)
		if len(doc.Findings) > 0 {
			fmt.Fprintf(w, "  [%s]", formatFindings(doc.Findings))
		}
		if doc.Error != "" {
			fmt.Fprintf(w, "  error: %s", doc.Error)
		}
		fmt.Fprintln(w)
	}
}

// formatFindings renders counts as "email=2,ipv4=1" in category name order.
func formatFindings(f ledger.Findings) string {
	names := make([]string, 0, len(f))
	for name := range f {
		names = append(names, name)
	}
	slices.Sort(names)

	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s=%d", name, f[name])
	}
	return strings.Join(parts, ",")
}

// clearAnnotatorCache removes every cached annotation
func clearAnnotatorCache(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	if !cfg.Annotator.Cache.Enabled {
		return fmt.Errorf("annotator cache is not enabled")
	}

	entityCache, err := annotator.NewCache(cfg.Annotator.Cache, log)
	if err != nil {
		return err
	}
	defer entityCache.Close()

	if err := entityCache.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}

	log.Info("Annotator cache cleared")
	return nil
}
