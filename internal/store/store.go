// Package store defines the evidence store: the persistence boundary for
// HTTP request/response evidence, vulnerabilities and scan statistics.
package store

import (
	"errors"

	"github.com/AsHfIEXE/cybersage/internal/finding"
)

// Body and header caps applied at write time.
const (
	MaxRequestBody     = 10 * 1024
	MaxResponseHeaders = 10 * 1024
	MaxResponseBody    = 50 * 1024
)

var (
	// ErrNotFound is returned when a link target does not exist.
	ErrNotFound = errors.New("store: record not found")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("store: closed")
)

// HTTPEvidence is a persisted request/response pair. VulnID is filled by
// LinkHTTPEvidenceToVuln; evidence and finding never own pointers to each
// other, only opaque IDs.
type HTTPEvidence struct {
	ID          string `json:"id"`
	ScanID      string `json:"scan_id"`
	Method      string `json:"method"`
	URL         string `json:"url"`
	ReqHeaders  string `json:"request_headers"`
	ReqBody     string `json:"request_body"`
	RespCode    int    `json:"response_code"`
	RespHeaders string `json:"response_headers"`
	RespBody    string `json:"response_body"`
	RespTimeMS  int64  `json:"response_time_ms"`
	VulnID      string `json:"vuln_id,omitempty"`
}

// Statistics is the running tally for a scan.
type Statistics struct {
	EndpointsDiscovered  int `json:"endpoints_discovered"`
	PayloadsSent         int `json:"payloads_sent"`
	VulnerabilitiesFound int `json:"vulnerabilities_found"`
}

// Store persists scan evidence. Implementations must be safe for use from
// the scanner's worker pool; writes go through a single-writer discipline.
type Store interface {
	AddHTTPRequest(scanID string, ev HTTPEvidence) (string, error)
	AddVulnerability(scanID string, f finding.Finding) (string, error)
	LinkHTTPEvidenceToVuln(evidenceID, findingID string) error
	UpdateScanStatistics(scanID string, stats Statistics) error
}
