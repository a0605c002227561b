package scanner

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AsHfIEXE/cybersage/internal/config"
	"github.com/AsHfIEXE/cybersage/internal/crawler"
	"github.com/AsHfIEXE/cybersage/internal/differ"
	"github.com/AsHfIEXE/cybersage/internal/events"
	"github.com/AsHfIEXE/cybersage/internal/finding"
	"github.com/AsHfIEXE/cybersage/internal/fuzz"
	"github.com/AsHfIEXE/cybersage/internal/scope"
	"github.com/AsHfIEXE/cybersage/internal/store"
)

func testOpts() config.Options {
	opts := config.Default()
	opts.ScanWorkers = 4
	opts.RequestTimeout = 5 * time.Second
	opts.TimingTimeout = 5 * time.Second
	return opts
}

func newTestScanner(t *testing.T, sink events.Sink, db store.Store) *Scanner {
	t.Helper()
	fuzzer := fuzz.New(rand.New(rand.NewSource(1)))
	return New("scan-1", nil, sink, db, differ.NewAnalyzer(), fuzzer, testOpts())
}

// reportFor builds a minimal crawl report with one query-parameter URL.
func reportFor(serverURL, path string, params map[string]string) *crawler.Report {
	query := ""
	var crawlParams []crawler.Param
	for name, value := range params {
		if query != "" {
			query += "&"
		}
		query += name + "=" + value
		crawlParams = append(crawlParams, crawler.Param{
			Name: name, Value: value, Location: "query", Type: "text",
		})
	}
	pageURL := scope.Normalize(serverURL + path + "?" + query)
	return &crawler.Report{
		StartURL:   scope.Normalize(serverURL + "/"),
		URLs:       []string{pageURL},
		Parameters: map[string][]crawler.Param{pageURL: crawlParams},
	}
}

func TestReflectedXSSEndToEnd(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		// Echoes q unencoded: the classic reflected XSS hole.
		fmt.Fprintf(w, "<html><body>You searched for: %s</body></html>", r.URL.Query().Get("q"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	sink := events.NewMemorySink()
	db := store.NewMemoryStore()
	sc := newTestScanner(t, sink, db)

	findings, err := sc.Scan(context.Background(), reportFor(server.URL, "/", map[string]string{"q": "hello"}))
	require.NoError(t, err)

	var xss *finding.Finding
	for i := range findings {
		if findings[i].Class == finding.ClassXSS {
			xss = &findings[i]
		}
	}
	require.NotNil(t, xss, "reflected XSS must be found")

	assert.Equal(t, "q", xss.Parameter)
	assert.Equal(t, "<script>alert(1)</script>", xss.Payload)
	assert.GreaterOrEqual(t, xss.Confidence, 90)
	assert.Equal(t, finding.SeverityHigh, xss.Severity)
	assert.Equal(t, "CWE-79", xss.CWE)

	// Exactly one linked evidence record, stored with a back-link.
	require.Len(t, xss.EvidenceIDs, 1)
	ev := db.Evidence(xss.EvidenceIDs[0])
	require.NotNil(t, ev)
	assert.NotEmpty(t, ev.VulnID)
	assert.Contains(t, ev.URL, "q=")
}

func TestErrorBasedSQLi(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("id")
		if strings.Contains(id, "'") {
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprint(w, "<html>You have an error in your SQL syntax near line 1</html>")
			return
		}
		fmt.Fprint(w, "<html><body>user record</body></html>")
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	sink := events.NewMemorySink()
	db := store.NewMemoryStore()
	sc := newTestScanner(t, sink, db)

	findings, err := sc.Scan(context.Background(), reportFor(server.URL, "/user", map[string]string{"id": "1"}))
	require.NoError(t, err)

	var sqli *finding.Finding
	for i := range findings {
		if findings[i].Class == finding.ClassSQLi {
			sqli = &findings[i]
		}
	}
	require.NotNil(t, sqli)

	assert.Equal(t, "Error-based", sqli.Technique)
	assert.GreaterOrEqual(t, sqli.Confidence, 90)
	assert.Equal(t, finding.SeverityCritical, sqli.Severity)
	assert.Equal(t, "CWE-89", sqli.CWE)
	assert.NotEmpty(t, sqli.EvidenceIDs)
}

func TestBooleanSQLiLengthDelta(t *testing.T) {
	padding := strings.Repeat("x", 500)
	mux := http.NewServeMux()
	mux.HandleFunc("/items", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("filter")
		if strings.Contains(q, "'1'='1") {
			// Tautology dumps every row.
			fmt.Fprintf(w, "<html><body>%s</body></html>", padding)
			return
		}
		fmt.Fprint(w, "<html><body>one row</body></html>")
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	sc := newTestScanner(t, events.NewMemorySink(), store.NewMemoryStore())
	findings, err := sc.Scan(context.Background(), reportFor(server.URL, "/items", map[string]string{"filter": "a"}))
	require.NoError(t, err)

	var sqli *finding.Finding
	for i := range findings {
		if findings[i].Class == finding.ClassSQLi {
			sqli = &findings[i]
		}
	}
	require.NotNil(t, sqli)
	assert.Contains(t, sqli.Technique, "Boolean-based")
	assert.Contains(t, sqli.Evidence, "length changed")
}

func TestPathTraversal(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/file", func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Query().Get("name")
		if strings.Contains(name, "etc/passwd") || strings.Contains(name, "etc%2fpasswd") {
			fmt.Fprint(w, "root:x:0:0:root:/root:/bin/bash\ndaemon:x:1:1:")
			return
		}
		fmt.Fprint(w, "<html><body>file contents</body></html>")
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	sc := newTestScanner(t, events.NewMemorySink(), store.NewMemoryStore())
	findings, err := sc.Scan(context.Background(), reportFor(server.URL, "/file", map[string]string{"name": "readme.txt"}))
	require.NoError(t, err)

	var traversal *finding.Finding
	for i := range findings {
		if findings[i].Class == finding.ClassPathTraversal {
			traversal = &findings[i]
		}
	}
	require.NotNil(t, traversal)
	assert.Equal(t, "CWE-22", traversal.CWE)
	assert.Contains(t, traversal.Evidence, "root:x:")
}

func TestRedirectEscapeBlocked(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/go", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", "http://evil.test/")
		w.WriteHeader(http.StatusFound)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	sink := events.NewMemorySink()
	sc := newTestScanner(t, sink, store.NewMemoryStore())

	findings, err := sc.Scan(context.Background(), reportFor(server.URL, "/go", map[string]string{"u": "X"}))
	require.NoError(t, err)

	for _, f := range findings {
		assert.NotEqual(t, finding.ClassXSS, f.Class, "no finding may come from a blocked redirect")
		assert.NotEqual(t, finding.ClassSQLi, f.Class)
	}

	var blocked bool
	for _, line := range sink.Logs() {
		if strings.Contains(line, "[REDIRECT_BLOCKED]") && strings.Contains(line, "evil.test") {
			blocked = true
		}
	}
	assert.True(t, blocked, "REDIRECT_BLOCKED event recorded")
}

func TestDifferentialOnlyAnomaly(t *testing.T) {
	var baselineSeen bool
	mux := http.NewServeMux()
	mux.HandleFunc("/form", func(w http.ResponseWriter, r *http.Request) {
		value := r.URL.Query().Get("comment")
		if !baselineSeen || value == "benign" {
			baselineSeen = true
			fmt.Fprint(w, "<html><body>thanks</body></html>")
			return
		}
		// Every non-baseline value crashes the handler.
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, "<html><body>Traceback (most recent call last): boom</body></html>")
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	sink := events.NewMemorySink()
	sc := newTestScanner(t, sink, store.NewMemoryStore())

	findings, err := sc.Scan(context.Background(), reportFor(server.URL, "/form", map[string]string{"comment": "benign"}))
	require.NoError(t, err)

	for _, f := range findings {
		assert.NotEqual(t, finding.ClassXSS, f.Class)
		assert.NotEqual(t, finding.ClassSQLi, f.Class)
	}

	var differential bool
	for _, line := range sink.Logs() {
		if strings.Contains(line, "[DIFFERENTIAL]") {
			differential = true
		}
	}
	assert.True(t, differential, "differential anomaly surfaced as an event")
}

func TestBaselineCreatedOncePerURL(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/multi", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body>static page</body></html>")
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	sc := newTestScanner(t, events.NewMemorySink(), store.NewMemoryStore())
	// Two parameters on the same URL share one baseline.
	_, err := sc.Scan(context.Background(), reportFor(server.URL, "/multi", map[string]string{"a": "1", "b": "2"}))
	require.NoError(t, err)

	assert.Len(t, sc.baselineOnce, 1)
}

func TestTimingFallbackClassification(t *testing.T) {
	sink := events.NewMemorySink()
	db := store.NewMemoryStore()
	sc := newTestScanner(t, sink, db)
	policy, err := scope.NewPolicy("http://t.test/")
	require.NoError(t, err)
	sc.policy = policy

	point := InjectionPoint{
		URL:       "http://t.test/user",
		Method:    "GET",
		Param:     "id",
		BaseValue: "1",
		Params:    map[string]string{"id": "1"},
		Kind:      KindURL,
	}

	timeoutErr := context.DeadlineExceeded

	// A timeout on a timing payload is a candidate finding at confidence 80.
	sc.handleSendError(point, finding.ClassSQLi, "' OR SLEEP(5) --", timeoutErr)
	require.Len(t, sc.findings, 1)
	assert.Equal(t, 80, sc.findings[0].Confidence)
	assert.Equal(t, finding.SeverityHigh, sc.findings[0].Severity)
	assert.Equal(t, "Request timed out", sc.findings[0].Evidence)

	// A timeout on anything else is just an event.
	sc.handleSendError(point, finding.ClassXSS, "<script>alert(1)</script>", timeoutErr)
	assert.Len(t, sc.findings, 1)

	var timeoutLogged bool
	for _, line := range sink.Logs() {
		if strings.Contains(line, "[TIMEOUT]") {
			timeoutLogged = true
		}
	}
	assert.True(t, timeoutLogged)
}

func TestTimingDetectionEvidenceMentionsSeconds(t *testing.T) {
	det := classifySQLi("' OR SLEEP(5) --", "<html></html>", 5300*time.Millisecond, 100, 5*time.Second)
	require.NotNil(t, det)
	assert.Equal(t, "Time-based blind", det.technique)
	assert.Contains(t, det.evidence, "5.30")
}

func TestXSSEncodedReflectionNotFlagged(t *testing.T) {
	body := "<html>You searched for: &lt;script&gt;alert(1)&lt;/script&gt;</html>"
	assert.Nil(t, classifyXSS("<script>alert(1)</script>", body))
}

func TestSecurityHeadersAndSensitiveFiles(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		// No security headers at all.
		fmt.Fprint(w, "<html><body>home</body></html>")
	})
	mux.HandleFunc("/.git/config", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "[core]\n\trepositoryformatversion = 0\n")
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	db := store.NewMemoryStore()
	sc := newTestScanner(t, events.NewMemorySink(), db)

	report := &crawler.Report{StartURL: scope.Normalize(server.URL + "/")}
	findings, err := sc.Scan(context.Background(), report)
	require.NoError(t, err)

	var headerFindings, fileFindings int
	for _, f := range findings {
		switch f.Class {
		case finding.ClassSecurityHeaders:
			headerFindings++
			assert.Equal(t, "CWE-693", f.CWE)
		case finding.ClassSensitiveFile:
			fileFindings++
			assert.Contains(t, f.URL, "/.git/config")
		}
	}
	assert.Equal(t, len(requiredSecurityHeaders), headerFindings)
	assert.Equal(t, 1, fileFindings)
}

func TestProgressLinesStreamed(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body>page</body></html>")
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	sink := events.NewMemorySink()
	sc := newTestScanner(t, sink, store.NewMemoryStore())

	_, err := sc.Scan(context.Background(), reportFor(server.URL, "/", map[string]string{"x": "1"}))
	require.NoError(t, err)

	var attackLines int
	for _, line := range sink.Logs() {
		if strings.HasPrefix(line, "[Attack ") {
			attackLines++
		}
	}
	assert.Greater(t, attackLines, 10, "every test streams a progress line")
}

func TestScanCancellation(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body>page</body></html>")
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sc := newTestScanner(t, events.NewMemorySink(), store.NewMemoryStore())
	_, err := sc.Scan(ctx, reportFor(server.URL, "/", map[string]string{"x": "1"}))
	assert.ErrorIs(t, err, context.Canceled)
}
