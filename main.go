package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/AsHfIEXE/cybersage/internal/config"
	"github.com/AsHfIEXE/cybersage/internal/controller"
	"github.com/AsHfIEXE/cybersage/internal/events"
	"github.com/AsHfIEXE/cybersage/internal/store"
)

func main() {
	var (
		targetURL  = flag.String("url", "", "Target URL to scan")
		configFile = flag.String("config", "", "Optional YAML config file")
		maxDepth   = flag.Int("depth", 5, "Maximum crawl depth")
		dynamic    = flag.Bool("dynamic", false, "Enable headless-browser discovery")
		budget     = flag.Duration("budget", 0, "Wall-clock scan budget (0 = unlimited)")
		outputDir  = flag.String("output", "scan_results", "Directory for the JSON report")
		seed       = flag.Int64("seed", 0, "Payload engine RNG seed (0 = time-based)")
		quiet      = flag.Bool("quiet", false, "Quiet output (findings only)")
	)
	flag.Parse()

	if *targetURL == "" {
		fmt.Println("Usage: cybersage -url https://example.com [options]")
		flag.PrintDefaults()
		return
	}

	opts := config.Default()
	if *configFile != "" {
		loaded, err := config.Load(*configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "config: %v\n", err)
			os.Exit(1)
		}
		opts = loaded
	}
	opts.MaxDepth = *maxDepth
	opts.EnableDynamic = *dynamic
	opts.ScanBudget = *budget
	opts.Seed = *seed
	opts.Quiet = *quiet

	level := hclog.Info
	if opts.Quiet {
		level = hclog.Warn
	}
	logger := hclog.New(&hclog.LoggerOptions{
		Name:  "cybersage",
		Level: level,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db := store.NewMemoryStore()
	sink := events.NewConsoleSink(logger)
	scanID := uuid.NewString()

	logger.Info("starting scan", "scan_id", scanID, "target", *targetURL)

	report, err := controller.New(logger, sink, db, opts).Run(ctx, scanID, *targetURL)
	if err != nil {
		logger.Error("scan failed", "error", err)
		os.Exit(1)
	}

	if err := writeReport(*outputDir, report); err != nil {
		logger.Error("report write failed", "error", err)
		os.Exit(1)
	}

	logger.Info("scan finished",
		"status", report.Status,
		"urls", len(report.Crawl.URLs),
		"findings", len(report.Findings),
		"duration", report.Duration.Round(time.Millisecond),
	)
}

func writeReport(dir string, report *controller.Report) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(dir, fmt.Sprintf("scan_%s.json", report.ScanID))
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
