package events

import (
	"fmt"
	"sync"

	"github.com/AsHfIEXE/cybersage/internal/finding"
)

// MemorySink records everything it receives. Used by tests, and as the
// default sink when a component is built without one.
type MemorySink struct {
	mu       sync.Mutex
	logs     []string
	findings []finding.Finding
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) SendLog(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, text)
}

func (s *MemorySink) ToolStarted(scanID, tool, target string) {
	s.SendLog(fmt.Sprintf("[%s] started %s on %s", scanID, tool, target))
}

func (s *MemorySink) ToolCompleted(scanID, tool, status string, count int) {
	s.SendLog(fmt.Sprintf("[%s] completed %s status=%s count=%d", scanID, tool, status, count))
}

func (s *MemorySink) VulnerabilityFound(scanID string, f finding.Finding) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.findings = append(s.findings, f)
	s.logs = append(s.logs, fmt.Sprintf("[%s] vulnerability %s in %s", scanID, f.Class, f.Parameter))
}

// Logs returns a copy of the recorded log lines.
func (s *MemorySink) Logs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.logs))
	copy(out, s.logs)
	return out
}

// Findings returns a copy of the broadcast findings.
func (s *MemorySink) Findings() []finding.Finding {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]finding.Finding, len(s.findings))
	copy(out, s.findings)
	return out
}
