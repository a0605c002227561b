package store

import (
	"sync"

	"github.com/google/uuid"

	"github.com/AsHfIEXE/cybersage/internal/finding"
)

// MemoryStore keeps all evidence in process. A mutex gives the single-writer
// discipline; IDs are allocated by the store and returned before any
// back-link is written.
type MemoryStore struct {
	mu       sync.Mutex
	evidence map[string]*HTTPEvidence
	vulns    map[string]*finding.Finding
	stats    map[string]Statistics
	closed   bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		evidence: make(map[string]*HTTPEvidence),
		vulns:    make(map[string]*finding.Finding),
		stats:    make(map[string]Statistics),
	}
}

func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}

func (m *MemoryStore) AddHTTPRequest(scanID string, ev HTTPEvidence) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", ErrClosed
	}

	ev.ID = uuid.NewString()
	ev.ScanID = scanID
	ev.ReqBody = truncate(ev.ReqBody, MaxRequestBody)
	ev.RespHeaders = truncate(ev.RespHeaders, MaxResponseHeaders)
	ev.RespBody = truncate(ev.RespBody, MaxResponseBody)

	m.evidence[ev.ID] = &ev
	return ev.ID, nil
}

func (m *MemoryStore) AddVulnerability(scanID string, f finding.Finding) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", ErrClosed
	}

	id := uuid.NewString()
	stored := f
	m.vulns[id] = &stored
	return id, nil
}

func (m *MemoryStore) LinkHTTPEvidenceToVuln(evidenceID, findingID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	ev, ok := m.evidence[evidenceID]
	if !ok {
		return ErrNotFound
	}
	vuln, ok := m.vulns[findingID]
	if !ok {
		return ErrNotFound
	}

	ev.VulnID = findingID
	vuln.EvidenceIDs = append(vuln.EvidenceIDs, evidenceID)
	return nil
}

func (m *MemoryStore) UpdateScanStatistics(scanID string, stats Statistics) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.stats[scanID] = stats
	return nil
}

// Close rejects further writes.
func (m *MemoryStore) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
}

// Evidence returns the stored evidence record, or nil.
func (m *MemoryStore) Evidence(id string) *HTTPEvidence {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ev, ok := m.evidence[id]; ok {
		copied := *ev
		return &copied
	}
	return nil
}

// Vulnerability returns the stored finding, or nil.
func (m *MemoryStore) Vulnerability(id string) *finding.Finding {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.vulns[id]; ok {
		copied := *v
		return &copied
	}
	return nil
}

// Statistics returns the tally for a scan.
func (m *MemoryStore) Statistics(scanID string) Statistics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats[scanID]
}

// VulnerabilityCount reports how many findings the store holds.
func (m *MemoryStore) VulnerabilityCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.vulns)
}
