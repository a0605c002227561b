package scanner

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/AsHfIEXE/cybersage/internal/finding"
	"github.com/AsHfIEXE/cybersage/internal/store"
)

// requiredSecurityHeaders and their absence severity.
var requiredSecurityHeaders = []struct {
	name     string
	severity finding.Severity
}{
	{"Content-Security-Policy", finding.SeverityMedium},
	{"X-Frame-Options", finding.SeverityLow},
	{"X-Content-Type-Options", finding.SeverityLow},
	{"Strict-Transport-Security", finding.SeverityLow},
}

// sensitiveFiles maps probe paths onto a content marker that proves the file
// is the real thing and not a custom 200 page.
var sensitiveFiles = []struct {
	path   string
	marker string
}{
	{"/.git/config", "[core]"},
	{"/.env", "="},
	{"/backup.sql", "CREATE TABLE"},
	{"/phpinfo.php", "phpinfo"},
	{"/.htaccess", "RewriteEngine"},
	{"/config.php.bak", "<?php"},
}

// checkSecurityHeaders flags missing response headers on the start URL.
func (s *Scanner) checkSecurityHeaders(ctx context.Context, startURL string) {
	resp, err := s.fetchRaw(ctx, startURL)
	if err != nil {
		s.sink.SendLog(fmt.Sprintf("[CONNECTION_ERROR] security header check: %v", err))
		return
	}

	for _, required := range requiredSecurityHeaders {
		if resp.header.Get(required.name) != "" {
			continue
		}

		f := finding.Finding{
			Class:      finding.ClassSecurityHeaders,
			Title:      fmt.Sprintf("Missing %s header", required.name),
			Severity:   required.severity,
			URL:        startURL,
			Method:     "GET",
			Evidence:   fmt.Sprintf("Response did not include the %s header", required.name),
			Confidence: 90,
			CWE:        "CWE-693",
			PoC: fmt.Sprintf("Request %s and inspect the response headers: %s is absent.",
				startURL, required.name),
			Remediation: fmt.Sprintf("Configure the web server or application to send the %s header on every response.", required.name),
		}
		s.persist(&f, store.HTTPEvidence{
			Method:      "GET",
			URL:         startURL,
			RespCode:    resp.status,
			RespHeaders: headerString(resp.header),
			RespTimeMS:  resp.elapsed.Milliseconds(),
		})

		s.mu.Lock()
		s.findings = append(s.findings, f)
		s.mu.Unlock()
		s.sink.VulnerabilityFound(s.scanID, f)
	}
}

// scanSensitiveFiles probes for exposed files under the target origin.
func (s *Scanner) scanSensitiveFiles(ctx context.Context, startURL string) {
	base, err := url.Parse(startURL)
	if err != nil {
		return
	}

	for _, probe := range sensitiveFiles {
		target := base.Scheme + "://" + base.Host + probe.path
		resp, err := s.fetchRaw(ctx, target)
		if err != nil {
			continue
		}
		if resp.status != http.StatusOK || !strings.Contains(resp.body, probe.marker) {
			continue
		}

		f := finding.Finding{
			Class:      finding.ClassSensitiveFile,
			Title:      fmt.Sprintf("Exposed sensitive file %s", probe.path),
			Severity:   finding.SeverityMedium,
			URL:        target,
			Method:     "GET",
			Evidence:   fmt.Sprintf("File served with marker %q present", probe.marker),
			Confidence: 90,
			CWE:        "CWE-538",
			PoC:        fmt.Sprintf("GET %s returns the file contents.", target),
			Remediation: "Remove the file from the web root or deny access to it in the server configuration. " +
				"Rotate any credentials it contained.",
		}
		s.persist(&f, store.HTTPEvidence{
			Method:      "GET",
			URL:         target,
			RespCode:    resp.status,
			RespHeaders: headerString(resp.header),
			RespBody:    resp.body,
			RespTimeMS:  resp.elapsed.Milliseconds(),
		})

		s.mu.Lock()
		s.findings = append(s.findings, f)
		s.mu.Unlock()
		s.sink.SendLog(fmt.Sprintf("[VULNERABILITY] Sensitive file exposed at %s", target))
		s.sink.VulnerabilityFound(s.scanID, f)
	}
}

type rawResponse struct {
	status  int
	header  http.Header
	body    string
	elapsed time.Duration
}

func (s *Scanner) fetchRaw(ctx context.Context, rawURL string) (*rawResponse, error) {
	reqCtx, cancel := context.WithTimeout(ctx, s.opts.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	s.setCommonHeaders(req)

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyRead))
	if err != nil {
		return nil, err
	}

	return &rawResponse{
		status:  resp.StatusCode,
		header:  resp.Header,
		body:    string(body),
		elapsed: time.Since(start),
	}, nil
}
