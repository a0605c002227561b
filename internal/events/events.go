// Package events defines the sink through which the pipeline streams log
// lines and structured progress events to a user interface.
package events

import (
	"github.com/hashicorp/go-hclog"

	"github.com/AsHfIEXE/cybersage/internal/finding"
)

// Sink receives free-form log lines and structured scan events. Messages are
// self-describing; ordering across workers is not guaranteed.
type Sink interface {
	SendLog(text string)
	ToolStarted(scanID, tool, target string)
	ToolCompleted(scanID, tool, status string, count int)
	VulnerabilityFound(scanID string, f finding.Finding)
}

// ConsoleSink writes every event through an hclog logger.
type ConsoleSink struct {
	log hclog.Logger
}

// NewConsoleSink wraps logger; a nil logger discards everything.
func NewConsoleSink(logger hclog.Logger) *ConsoleSink {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &ConsoleSink{log: logger.Named("events")}
}

func (s *ConsoleSink) SendLog(text string) {
	s.log.Info(text)
}

func (s *ConsoleSink) ToolStarted(scanID, tool, target string) {
	s.log.Info("tool started", "scan_id", scanID, "tool", tool, "target", target)
}

func (s *ConsoleSink) ToolCompleted(scanID, tool, status string, count int) {
	s.log.Info("tool completed", "scan_id", scanID, "tool", tool, "status", status, "count", count)
}

func (s *ConsoleSink) VulnerabilityFound(scanID string, f finding.Finding) {
	s.log.Warn("vulnerability found",
		"scan_id", scanID,
		"type", string(f.Class),
		"severity", string(f.Severity),
		"parameter", f.Parameter,
		"url", f.URL,
		"confidence", f.Confidence,
	)
}
