package events

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/AsHfIEXE/cybersage/internal/finding"
)

func TestMemorySinkRecords(t *testing.T) {
	sink := NewMemorySink()

	sink.SendLog("line one")
	sink.ToolStarted("s1", "Crawler", "http://t.test/")
	sink.VulnerabilityFound("s1", finding.Finding{Class: finding.ClassXSS, Parameter: "q"})

	logs := sink.Logs()
	assert.Len(t, logs, 3)
	assert.Equal(t, "line one", logs[0])

	findings := sink.Findings()
	assert.Len(t, findings, 1)
	assert.Equal(t, "q", findings[0].Parameter)
}

func TestMemorySinkConcurrentWriters(t *testing.T) {
	sink := NewMemorySink()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				sink.SendLog("line")
			}
		}()
	}
	wg.Wait()

	assert.Len(t, sink.Logs(), 1600)
}

func TestConsoleSinkNilLogger(t *testing.T) {
	// A nil logger must not panic; everything is discarded.
	sink := NewConsoleSink(nil)
	sink.SendLog("dropped")
	sink.ToolCompleted("s1", "Scanner", "success", 2)
	sink.VulnerabilityFound("s1", finding.Finding{Class: finding.ClassSQLi})
}
