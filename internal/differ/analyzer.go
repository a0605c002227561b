package differ

import (
	"fmt"
	neturl "net/url"
	"strings"
	"sync"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/AsHfIEXE/cybersage/internal/finding"
)

// Detection thresholds and confidence weights.
const (
	lengthChangeThreshold = 20.0 // percent
	similarityThreshold   = 80.0 // percent
	timeDiffThreshold     = 3.0  // seconds
	domChangeThreshold    = 30.0 // percent

	baseConfidence = 50
	maxConfidence  = 95
)

var debugHeaders = map[string]bool{
	"x-error": true, "x-exception": true, "x-debug": true, "x-stacktrace": true,
}

var securityHeaders = map[string]bool{
	"x-frame-options": true, "x-xss-protection": true, "content-security-policy": true,
}

var watchedHeaders = []string{"content-type", "location", "set-cookie"}

// Analyzer caches one baseline per URL and scores test responses against it.
type Analyzer struct {
	mu        sync.Mutex
	baselines map[string]*Baseline
	dmp       *diffmatchpatch.DiffMatchPatch
}

func NewAnalyzer() *Analyzer {
	return &Analyzer{
		baselines: make(map[string]*Baseline),
		dmp:       diffmatchpatch.New(),
	}
}

// StoreBaseline snapshots resp as the baseline for url. The first snapshot
// wins; later calls return the existing baseline unchanged.
func (a *Analyzer) StoreBaseline(url string, resp Response) *Baseline {
	a.mu.Lock()
	defer a.mu.Unlock()
	if existing, ok := a.baselines[url]; ok {
		return existing
	}
	baseline := newBaseline(resp)
	a.baselines[url] = baseline
	return baseline
}

// HasBaseline reports whether a baseline exists for url.
func (a *Analyzer) HasBaseline(url string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.baselines[url]
	return ok
}

// BaselineFor returns the stored baseline for url, or nil.
func (a *Analyzer) BaselineFor(url string) *Baseline {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.baselines[url]
}

// Analyze compares resp against the stored baseline for url. It returns nil
// when there is no baseline or when nothing deviates.
func (a *Analyzer) Analyze(url string, resp Response, payload string) *Result {
	a.mu.Lock()
	baseline, ok := a.baselines[url]
	a.mu.Unlock()
	if !ok {
		return nil
	}

	var anomalies []Anomaly
	confidence := baseConfidence

	// Status code.
	if resp.StatusCode != baseline.StatusCode {
		significance := finding.SeverityMedium
		if resp.StatusCode >= 500 {
			significance = finding.SeverityHigh
		}
		anomalies = append(anomalies, Anomaly{
			Kind:         KindStatusChange,
			Significance: significance,
			Baseline:     fmt.Sprintf("%d", baseline.StatusCode),
			Current:      fmt.Sprintf("%d", resp.StatusCode),
		})
		confidence += 15
	}

	// Content length, relative to the baseline length.
	if baseline.ContentLength > 0 {
		change := absFloat(float64(len(resp.Body))-float64(baseline.ContentLength)) / float64(baseline.ContentLength) * 100
		if change > lengthChangeThreshold {
			significance := finding.SeverityMedium
			if change > 50 {
				significance = finding.SeverityHigh
			}
			anomalies = append(anomalies, Anomaly{
				Kind:          KindLengthChange,
				Significance:  significance,
				ChangePercent: change,
				Baseline:      fmt.Sprintf("%d", baseline.ContentLength),
				Current:       fmt.Sprintf("%d", len(resp.Body)),
			})
			confidence += 10
		}
	}

	// Content hash plus similarity.
	if hashBody(resp.Body) != baseline.BodyHash {
		similarity := a.similarity(bodyPrefix(resp.Body), baseline.BodyPrefix)
		if similarity < similarityThreshold {
			significance := finding.SeverityMedium
			if similarity < 50 {
				significance = finding.SeverityHigh
			}
			anomalies = append(anomalies, Anomaly{
				Kind:         KindContentChange,
				Significance: significance,
				Similarity:   similarity,
			})
			confidence += 20
		}
	}

	// Response time.
	timeDiff := absFloat(resp.Elapsed.Seconds() - baseline.ResponseTime.Seconds())
	if timeDiff > timeDiffThreshold {
		significance := finding.SeverityHigh
		if timeDiff > 5 {
			significance = finding.SeverityCritical
		}
		anomalies = append(anomalies, Anomaly{
			Kind:         KindTimingAnomaly,
			Significance: significance,
			Baseline:     fmt.Sprintf("%.2f", baseline.ResponseTime.Seconds()),
			Current:      fmt.Sprintf("%.2f", resp.Elapsed.Seconds()),
			Difference:   timeDiff,
		})
		confidence += 25
	}

	// Error indicators that were not present in the baseline.
	currentErrors := extractErrorTokens(string(resp.Body))
	newErrors := currentErrors.Difference(baseline.ErrorTokens)
	if newErrors.Cardinality() > 0 {
		indicators := newErrors.ToSlice()
		significance := finding.SeverityHigh
		for _, token := range indicators {
			if token == "exception" || token == "fatal" || token == "panic" {
				significance = finding.SeverityCritical
				break
			}
		}
		anomalies = append(anomalies, Anomaly{
			Kind:         KindNewErrors,
			Significance: significance,
			Indicators:   indicators,
		})
		confidence += 30
	}

	// DOM structure.
	if significantDOMChange(baseline.DOMCounts, extractDOMCounts(string(resp.Body))) {
		anomalies = append(anomalies, Anomaly{
			Kind:         KindDOMStructureChange,
			Significance: finding.SeverityMedium,
		})
		confidence += 10
	}

	// Headers.
	headerAnomalies := analyzeHeaders(baseline.Headers, flattenHeaders(resp.Header))
	anomalies = append(anomalies, headerAnomalies...)
	confidence += 5 * len(headerAnomalies)

	// Payload reflection, literal or URL-encoded.
	if payload != "" {
		body := string(resp.Body)
		if strings.Contains(body, payload) || strings.Contains(body, neturl.QueryEscape(payload)) {
			reflected := payload
			if len(reflected) > 100 {
				reflected = reflected[:100]
			}
			anomalies = append(anomalies, Anomaly{
				Kind:         KindPayloadReflection,
				Significance: finding.SeverityCritical,
				Payload:      reflected,
			})
			confidence += 30
		}
	}

	if len(anomalies) == 0 {
		return nil
	}
	if confidence > maxConfidence {
		confidence = maxConfidence
	}

	return &Result{
		Anomalies:  anomalies,
		Confidence: confidence,
		Severity:   overallSeverity(anomalies),
		Payload:    payload,
	}
}

// similarity is the matching-block ratio between two texts, in percent.
func (a *Analyzer) similarity(text1, text2 string) float64 {
	if text1 == "" || text2 == "" {
		return 0
	}
	diffs := a.dmp.DiffMain(text1, text2, false)
	common := 0
	for _, d := range diffs {
		if d.Type == diffmatchpatch.DiffEqual {
			common += len(d.Text)
		}
	}
	return 200 * float64(common) / float64(len(text1)+len(text2))
}

// significantDOMChange is true when any counted tag moved by more than the
// threshold, or a tag absent from the baseline shows up more than five times.
func significantDOMChange(baseline, current map[string]int) bool {
	if len(baseline) == 0 || len(current) == 0 {
		return false
	}
	for element, baselineCount := range baseline {
		currentCount := current[element]
		if baselineCount > 0 {
			change := absFloat(float64(currentCount)-float64(baselineCount)) / float64(baselineCount) * 100
			if change > domChangeThreshold {
				return true
			}
		} else if currentCount > 5 {
			return true
		}
	}
	return false
}

func analyzeHeaders(baseline, current map[string]string) []Anomaly {
	var anomalies []Anomaly

	for header, value := range current {
		if _, existed := baseline[header]; !existed && debugHeaders[header] {
			if len(value) > 100 {
				value = value[:100]
			}
			anomalies = append(anomalies, Anomaly{
				Kind:         KindNewDebugHeader,
				Significance: finding.SeverityHigh,
				Header:       header,
				Current:      value,
			})
		}
	}

	for header := range baseline {
		if _, present := current[header]; !present && securityHeaders[header] {
			anomalies = append(anomalies, Anomaly{
				Kind:         KindRemovedSecurityHeader,
				Significance: finding.SeverityMedium,
				Header:       header,
			})
		}
	}

	for _, header := range watchedHeaders {
		before, hadBefore := baseline[header]
		after, hasAfter := current[header]
		if hadBefore && hasAfter && before != after {
			anomalies = append(anomalies, Anomaly{
				Kind:         KindHeaderValueChange,
				Significance: finding.SeverityMedium,
				Header:       header,
				Baseline:     clip(before, 50),
				Current:      clip(after, 50),
			})
		}
	}

	return anomalies
}

// overallSeverity is the maximum significance, escalated when anomalies pile
// up: three or more promote medium to high, five or more promote to critical.
func overallSeverity(anomalies []Anomaly) finding.Severity {
	max := finding.SeverityLow
	for _, a := range anomalies {
		if a.Significance.Rank() > max.Rank() {
			max = a.Significance
		}
	}
	if len(anomalies) >= 5 {
		return finding.SeverityCritical
	}
	if len(anomalies) >= 3 && max == finding.SeverityMedium {
		return finding.SeverityHigh
	}
	return max
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func clip(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}
