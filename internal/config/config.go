// Package config holds the scan options shared by the crawler, the active
// scanner and the controller.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Options controls a full scan. Zero values of MaxPages, the worker counts
// and the request timeouts mean "use the default"; MaxDepth is used as
// given, so 0 crawls only the start URL.
type Options struct {
	MaxDepth      int
	MaxPages      int
	CrawlWorkers  int
	ScanWorkers   int
	EnableDynamic bool

	RequestTimeout time.Duration
	TimingTimeout  time.Duration
	TimingDelay    time.Duration
	ScanBudget     time.Duration

	// RequestsPerSecond caps the scanner's request rate; 0 disables the cap.
	RequestsPerSecond float64

	// Seed feeds the payload engine's RNG; 0 picks a time-based seed. A
	// fixed seed reproduces payload output exactly.
	Seed int64

	Quiet bool
}

// fileOptions is the YAML shape. Durations are strings ("10s", "1m30s")
// because yaml.v3 has no native time.Duration support.
type fileOptions struct {
	MaxDepth          int     `yaml:"max_depth"`
	MaxPages          int     `yaml:"max_pages"`
	CrawlWorkers      int     `yaml:"crawl_workers"`
	ScanWorkers       int     `yaml:"scan_workers"`
	EnableDynamic     bool    `yaml:"enable_dynamic"`
	RequestTimeout    string  `yaml:"request_timeout"`
	TimingTimeout     string  `yaml:"timing_timeout"`
	TimingDelay       string  `yaml:"timing_delay"`
	ScanBudget        string  `yaml:"scan_budget"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Seed              int64   `yaml:"seed"`
	Quiet             bool    `yaml:"quiet"`
}

// Default returns the options the pipeline runs with out of the box.
func Default() Options {
	return Options{
		MaxDepth:       5,
		MaxPages:       500,
		CrawlWorkers:   8,
		ScanWorkers:    16,
		RequestTimeout: 10 * time.Second,
		TimingTimeout:  15 * time.Second,
		TimingDelay:    5 * time.Second,
	}
}

// Load reads YAML options from path on top of the defaults.
func Load(path string) (Options, error) {
	opts := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return opts, fmt.Errorf("read config: %w", err)
	}

	var file fileOptions
	if err := yaml.Unmarshal(data, &file); err != nil {
		return opts, fmt.Errorf("parse config: %w", err)
	}

	if file.MaxDepth > 0 {
		opts.MaxDepth = file.MaxDepth
	}
	if file.MaxPages > 0 {
		opts.MaxPages = file.MaxPages
	}
	if file.CrawlWorkers > 0 {
		opts.CrawlWorkers = file.CrawlWorkers
	}
	if file.ScanWorkers > 0 {
		opts.ScanWorkers = file.ScanWorkers
	}
	opts.EnableDynamic = file.EnableDynamic
	opts.RequestsPerSecond = file.RequestsPerSecond
	opts.Seed = file.Seed
	opts.Quiet = file.Quiet

	durations := []struct {
		raw  string
		name string
		dst  *time.Duration
	}{
		{file.RequestTimeout, "request_timeout", &opts.RequestTimeout},
		{file.TimingTimeout, "timing_timeout", &opts.TimingTimeout},
		{file.TimingDelay, "timing_delay", &opts.TimingDelay},
		{file.ScanBudget, "scan_budget", &opts.ScanBudget},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return opts, fmt.Errorf("parse config %s: %w", d.name, err)
		}
		*d.dst = parsed
	}

	return opts, nil
}
