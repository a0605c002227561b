// Package differ compares test responses against per-URL baselines and
// classifies the differences as anomalies with a confidence score.
package differ

import (
	"crypto/md5"
	"encoding/hex"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	mapset "github.com/deckarep/golang-set/v2"
)

// bodyPrefixSize bounds how much body the baseline keeps for similarity
// comparison.
const bodyPrefixSize = 10 * 1024

// Response is the slice of an HTTP exchange the analyzer needs. The scanner
// builds one after reading the body, so the analyzer never touches a live
// connection.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Elapsed    time.Duration
}

// Baseline is the immutable pre-fuzzing snapshot of a URL. Exactly one
// baseline exists per URL for the lifetime of a scan.
type Baseline struct {
	StatusCode    int
	ContentLength int
	BodyHash      string
	Headers       map[string]string
	ResponseTime  time.Duration
	BodyPrefix    string
	ErrorTokens   mapset.Set[string]
	DOMCounts     map[string]int
}

// errorTokens are substrings whose appearance in a response suggests the
// server hit an internal failure.
var errorTokens = []string{
	"error", "exception", "fatal", "warning", "failed",
	"stack trace", "traceback", "syntax error", "undefined",
	"null pointer", "division by zero", "timeout", "denied",
	"unauthorized", "forbidden", "not found", "bad request",
	"internal server", "service unavailable", "panic",
}

var (
	lineNumberPattern = regexp.MustCompile(`(?i)at line \d+`)
	filePathPattern   = regexp.MustCompile(`(?i)in file .+\.(?:php|py|js|java|rb)`)
	sqlErrorPattern   = regexp.MustCompile(`(?i)SQL.*error|ORA-\d+|MySQL.*error`)
)

// countedSelectors are the DOM shapes tracked for structural comparison.
var countedSelectors = []string{"form", "input", "a[href]", "script", "div"}

// newBaseline snapshots a response.
func newBaseline(resp Response) *Baseline {
	return &Baseline{
		StatusCode:    resp.StatusCode,
		ContentLength: len(resp.Body),
		BodyHash:      hashBody(resp.Body),
		Headers:       flattenHeaders(resp.Header),
		ResponseTime:  resp.Elapsed,
		BodyPrefix:    bodyPrefix(resp.Body),
		ErrorTokens:   extractErrorTokens(string(resp.Body)),
		DOMCounts:     extractDOMCounts(string(resp.Body)),
	}
}

func hashBody(body []byte) string {
	sum := md5.Sum(body)
	return hex.EncodeToString(sum[:])
}

func bodyPrefix(body []byte) string {
	if len(body) > bodyPrefixSize {
		body = body[:bodyPrefixSize]
	}
	return string(body)
}

func flattenHeaders(header http.Header) map[string]string {
	flat := make(map[string]string, len(header))
	for name, values := range header {
		flat[strings.ToLower(name)] = strings.Join(values, ", ")
	}
	return flat
}

// extractErrorTokens collects the error indicators present in text.
func extractErrorTokens(text string) mapset.Set[string] {
	indicators := mapset.NewSet[string]()
	lower := strings.ToLower(text)

	for _, token := range errorTokens {
		if strings.Contains(lower, token) {
			indicators.Add(token)
		}
	}
	if lineNumberPattern.MatchString(text) {
		indicators.Add("line_number_error")
	}
	if filePathPattern.MatchString(text) {
		indicators.Add("file_path_error")
	}
	if sqlErrorPattern.MatchString(text) {
		indicators.Add("sql_error")
	}

	return indicators
}

// extractDOMCounts counts the tracked element shapes. Parse failures yield
// empty counts, which disables the structural comparison for that response.
func extractDOMCounts(html string) map[string]int {
	counts := make(map[string]int, len(countedSelectors))
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return counts
	}
	for _, selector := range countedSelectors {
		counts[selector] = doc.Find(selector).Length()
	}
	return counts
}
