// Package controller runs the full pipeline: crawl the target, scan the
// discovered surface, finalize the report.
package controller

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/url"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/AsHfIEXE/cybersage/internal/config"
	"github.com/AsHfIEXE/cybersage/internal/crawler"
	"github.com/AsHfIEXE/cybersage/internal/differ"
	"github.com/AsHfIEXE/cybersage/internal/events"
	"github.com/AsHfIEXE/cybersage/internal/finding"
	"github.com/AsHfIEXE/cybersage/internal/fuzz"
	"github.com/AsHfIEXE/cybersage/internal/scanner"
	"github.com/AsHfIEXE/cybersage/internal/store"
)

// Scan statuses in the final report.
const (
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// ErrInvalidTarget is the only fatal input error: the start URL has no host
// or a scheme other than http/https.
var ErrInvalidTarget = errors.New("controller: invalid target URL")

// Report is the outcome of one full pipeline run. Findings already persisted
// are kept even when the scan was cancelled mid-flight.
type Report struct {
	ScanID     string            `json:"scan_id"`
	Target     string            `json:"target"`
	Status     string            `json:"status"`
	Crawl      *crawler.Report   `json:"crawl"`
	Findings   []finding.Finding `json:"findings"`
	Statistics store.Statistics  `json:"statistics"`
	Duration   time.Duration     `json:"duration"`
}

// Controller wires the pipeline components together.
type Controller struct {
	log   hclog.Logger
	sink  events.Sink
	store store.Store
	opts  config.Options
}

func New(logger hclog.Logger, sink events.Sink, st store.Store, opts config.Options) *Controller {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if sink == nil {
		sink = events.NewMemorySink()
	}
	return &Controller{log: logger, sink: sink, store: st, opts: opts}
}

// Run executes crawl then scan against targetURL under an optional
// wall-clock budget. Cancellation stops new work, keeps persisted findings
// and marks the report cancelled.
func (c *Controller) Run(ctx context.Context, scanID, targetURL string) (*Report, error) {
	if err := validateTarget(targetURL); err != nil {
		return nil, err
	}

	if c.opts.ScanBudget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.ScanBudget)
		defer cancel()
	}

	start := time.Now()
	report := &Report{ScanID: scanID, Target: targetURL, Status: StatusCompleted}

	// Crawl phase.
	c.sink.ToolStarted(scanID, "Crawler", targetURL)
	crawl, err := crawler.New(c.log, c.sink, c.opts).Crawl(ctx, targetURL, c.opts.MaxDepth, c.opts.EnableDynamic)
	if err != nil {
		c.sink.ToolCompleted(scanID, "Crawler", "failed", 0)
		return nil, fmt.Errorf("crawl: %w", err)
	}
	report.Crawl = crawl
	c.sink.ToolCompleted(scanID, "Crawler", "success", len(crawl.URLs))

	// Scan phase.
	seed := c.opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	fuzzer := fuzz.New(rand.New(rand.NewSource(seed)))

	c.sink.ToolStarted(scanID, "Active Scanner", targetURL)
	sc := scanner.New(scanID, c.log, c.sink, c.store, differ.NewAnalyzer(), fuzzer, c.opts)
	findings, scanErr := sc.Scan(ctx, crawl)
	report.Findings = findings

	status := "success"
	if scanErr != nil {
		status = StatusCancelled
	}
	c.sink.ToolCompleted(scanID, "Active Scanner", status, len(findings))

	report.Duration = time.Since(start)
	report.Statistics = store.Statistics{
		EndpointsDiscovered:  len(crawl.URLs),
		PayloadsSent:         0,
		VulnerabilitiesFound: len(findings),
	}
	if mem, ok := c.store.(*store.MemoryStore); ok && mem != nil {
		report.Statistics = mem.Statistics(scanID)
	}

	if ctx.Err() != nil {
		report.Status = StatusCancelled
		c.sink.SendLog(fmt.Sprintf("[Controller] Scan %s cancelled after %s", scanID, report.Duration))
		return report, nil
	}

	c.sink.SendLog(fmt.Sprintf("[Controller] Scan %s complete: %d findings in %s",
		scanID, len(findings), report.Duration))
	return report, nil
}

// validateTarget rejects URLs the pipeline cannot scan.
func validateTarget(targetURL string) error {
	parsed, err := url.Parse(targetURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTarget, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%w: scheme %q", ErrInvalidTarget, parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidTarget)
	}
	return nil
}
