// Package scanner orchestrates per-class attacks across the injection
// points of a crawl report, classifies responses with pattern and
// differential evidence, and persists findings linked to HTTP evidence.
package scanner

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/time/rate"

	"github.com/AsHfIEXE/cybersage/internal/config"
	"github.com/AsHfIEXE/cybersage/internal/crawler"
	"github.com/AsHfIEXE/cybersage/internal/differ"
	"github.com/AsHfIEXE/cybersage/internal/events"
	"github.com/AsHfIEXE/cybersage/internal/finding"
	"github.com/AsHfIEXE/cybersage/internal/fuzz"
	"github.com/AsHfIEXE/cybersage/internal/scope"
	"github.com/AsHfIEXE/cybersage/internal/store"
)

// ErrOutOfScope marks a test request that would leave the scan scope.
var ErrOutOfScope = errors.New("scanner: request out of scope")

// Rough per-class payload count, used only for the progress estimate.
const payloadsPerClassEstimate = 10

// smartFuzzPerPoint bounds the differential-only smart fuzzing pass.
const smartFuzzPerPoint = 5

const maxBodyRead = 1024 * 1024

// Scanner drives attacks against one crawl report on behalf of one scan.
type Scanner struct {
	client   *http.Client
	log      hclog.Logger
	sink     events.Sink
	store    store.Store
	analyzer *differ.Analyzer
	fuzzer   *fuzz.Fuzzer
	opts     config.Options
	limiter  *rate.Limiter
	scanID   string

	policy *scope.Policy

	mu             sync.Mutex
	testsTotal     int
	testsCompleted int
	findings       []finding.Finding
	classHits      map[string]bool

	baselineMu   sync.Mutex
	baselineOnce map[string]*sync.Once
}

// New builds a scanner. The analyzer keeps the per-URL baselines for the
// scan's lifetime; the fuzzer feeds the differential-only pass.
func New(scanID string, logger hclog.Logger, sink events.Sink, st store.Store, analyzer *differ.Analyzer, fuzzer *fuzz.Fuzzer, opts config.Options) *Scanner {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if sink == nil {
		sink = events.NewMemorySink()
	}
	if analyzer == nil {
		analyzer = differ.NewAnalyzer()
	}
	if opts.ScanWorkers <= 0 {
		opts.ScanWorkers = config.Default().ScanWorkers
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = config.Default().RequestTimeout
	}
	if opts.TimingTimeout <= 0 {
		opts.TimingTimeout = config.Default().TimingTimeout
	}
	if opts.TimingDelay <= 0 {
		opts.TimingDelay = config.Default().TimingDelay
	}

	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}

	return &Scanner{
		client: &http.Client{
			Transport: &http.Transport{
				TLSClientConfig:     &tls.Config{InsecureSkipVerify: true},
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
			},
			// Test requests never follow redirects; escapes are judged on
			// the Location header instead.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		log:          logger.Named("scanner"),
		sink:         sink,
		store:        st,
		analyzer:     analyzer,
		fuzzer:       fuzzer,
		opts:         opts,
		limiter:      limiter,
		scanID:       scanID,
		classHits:    make(map[string]bool),
		baselineOnce: make(map[string]*sync.Once),
	}
}

// Scan attacks every injection point in the report and returns the findings.
// Per-test failures are events; only an unusable start URL is fatal.
func (s *Scanner) Scan(ctx context.Context, report *crawler.Report) ([]finding.Finding, error) {
	policy, err := scope.NewPolicy(report.StartURL)
	if err != nil {
		return nil, err
	}
	s.policy = policy

	targets := prepareTargets(report)
	var points []InjectionPoint
	for _, target := range targets {
		points = append(points, explode(target)...)
	}

	s.mu.Lock()
	s.testsTotal = len(points) * len(attackClasses) * payloadsPerClassEstimate
	total := s.testsTotal
	s.mu.Unlock()

	s.sink.SendLog(fmt.Sprintf("[Scanner] Starting detailed scan: %d injection points, ~%d tests",
		len(points), total))

	queue := make(chan InjectionPoint)
	var workers sync.WaitGroup
	for i := 0; i < s.opts.ScanWorkers; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			for point := range queue {
				if ctx.Err() != nil {
					continue
				}
				s.scanPoint(ctx, point)
			}
		}()
	}
	for _, point := range points {
		queue <- point
	}
	close(queue)
	workers.Wait()

	if ctx.Err() == nil {
		s.checkSecurityHeaders(ctx, report.StartURL)
		s.scanSensitiveFiles(ctx, report.StartURL)
	}

	s.mu.Lock()
	found := append([]finding.Finding(nil), s.findings...)
	completed := s.testsCompleted
	s.mu.Unlock()

	if s.store != nil {
		stats := store.Statistics{
			EndpointsDiscovered:  len(targets),
			PayloadsSent:         completed,
			VulnerabilitiesFound: len(found),
		}
		if err := s.store.UpdateScanStatistics(s.scanID, stats); err != nil {
			s.log.Warn("statistics update failed", "error", err)
		}
	}

	s.sink.SendLog(fmt.Sprintf("[Scanner] Scan complete: %d tests performed, %d vulnerabilities found",
		completed, len(found)))

	return found, ctx.Err()
}

// scanPoint runs every class in deterministic order against one injection
// point, then the differential-only smart pass.
func (s *Scanner) scanPoint(ctx context.Context, point InjectionPoint) {
	baseline := s.ensureBaseline(ctx, point)

	if point.Param == "" {
		// Zero-parameter endpoint: baseline only.
		return
	}

	for _, class := range attackClasses {
		for _, payload := range classPayloads(class, point.Method) {
			if ctx.Err() != nil {
				return
			}
			if s.hasHit(point, class) {
				break
			}
			s.executeAttack(ctx, point, class, payload, baseline)
		}
	}

	if s.fuzzer != nil {
		smart := s.fuzzer.Smart(point.BaseValue)
		if len(smart) > smartFuzzPerPoint {
			smart = smart[:smartFuzzPerPoint]
		}
		for _, payload := range smart {
			if ctx.Err() != nil {
				return
			}
			s.differentialProbe(ctx, point, payload)
		}
	}
}

// ensureBaseline serialises baseline creation per URL: the first worker
// snapshots, everyone else waits and reuses it.
func (s *Scanner) ensureBaseline(ctx context.Context, point InjectionPoint) *differ.Baseline {
	key := point.URL

	s.baselineMu.Lock()
	once, ok := s.baselineOnce[key]
	if !ok {
		once = &sync.Once{}
		s.baselineOnce[key] = once
	}
	s.baselineMu.Unlock()

	once.Do(func() {
		resp, err := s.sendTest(ctx, point, point.BaseValue, false, false)
		if err != nil {
			s.log.Debug("baseline request failed", "url", key, "error", err)
			return
		}
		s.analyzer.StoreBaseline(key, *resp)
	})

	return s.analyzer.BaselineFor(key)
}

// executeAttack sends one payload and classifies the result.
func (s *Scanner) executeAttack(ctx context.Context, point InjectionPoint, class finding.Class, payload string, baseline *differ.Baseline) {
	s.progress(string(class), point)

	timing := isTimingPayload(payload)
	resp, err := s.sendTest(ctx, point, payload, class == finding.ClassXXE, timing)
	if err != nil {
		s.handleSendError(point, class, payload, err)
		return
	}

	// A 3xx pointing out of scope is abandoned before any analysis.
	if resp.StatusCode >= 301 && resp.StatusCode <= 308 {
		if location := resp.Header.Get("Location"); location != "" && !s.policy.Allows(location) {
			s.sink.SendLog(fmt.Sprintf("[REDIRECT_BLOCKED] %s -> %s", point.URL, location))
			return
		}
	}

	baselineLength := -1
	if baseline != nil {
		baselineLength = baseline.ContentLength
	}

	det := classify(class, payload, string(resp.Body), resp.Elapsed, baselineLength, s.opts.TimingDelay)
	diffResult := s.analyzer.Analyze(point.URL, *resp, payload)

	if det == nil {
		if diffResult != nil {
			s.reportDifferential(point, diffResult)
		}
		return
	}

	confidence := det.confidence
	if det.literal {
		confidence = 95
	} else if diffResult != nil && diffResult.Confidence < confidence {
		// Both analyses saw a change but neither is certain; meet the
		// differential score halfway.
		confidence = (confidence + diffResult.Confidence) / 2
	}

	s.recordFinding(point, class, payload, det.technique, det.evidence, confidence, classSeverity(class), resp)
}

// differentialProbe sends an engine-generated payload purely for anomaly
// analysis; it never produces a class finding.
func (s *Scanner) differentialProbe(ctx context.Context, point InjectionPoint, payload string) {
	s.progress("Differential", point)

	resp, err := s.sendTest(ctx, point, payload, false, false)
	if err != nil {
		return
	}
	if result := s.analyzer.Analyze(point.URL, *resp, payload); result != nil {
		s.reportDifferential(point, result)
	}
}

func (s *Scanner) reportDifferential(point InjectionPoint, result *differ.Result) {
	s.sink.SendLog(fmt.Sprintf("[DIFFERENTIAL] %s param=%s confidence=%d severity=%s anomalies=%d",
		point.URL, point.Param, result.Confidence, result.Severity, len(result.Anomalies)))
	for _, anomaly := range result.Anomalies {
		s.log.Debug(anomaly.Detail(), "url", point.URL, "param", point.Param)
	}
}

// handleSendError applies the error taxonomy: a timeout on a timing-class
// payload is a candidate finding at reduced confidence; everything else is
// logged and discarded.
func (s *Scanner) handleSendError(point InjectionPoint, class finding.Class, payload string, err error) {
	if errors.Is(err, ErrOutOfScope) {
		s.sink.SendLog(fmt.Sprintf("[OUT_OF_SCOPE] %s param=%s", point.URL, point.Param))
		return
	}

	if isTimeoutErr(err) {
		if isTimingPayload(payload) {
			s.recordFinding(point, class, payload, "Time-based",
				"Request timed out", 80, finding.SeverityHigh, nil)
			return
		}
		s.sink.SendLog(fmt.Sprintf("[TIMEOUT] %s param=%s", point.URL, point.Param))
		return
	}

	s.sink.SendLog(fmt.Sprintf("[CONNECTION_ERROR] %s param=%s: %v", point.URL, point.Param, err))
}

// sendTest builds and sends one test request, reading the body in full.
func (s *Scanner) sendTest(ctx context.Context, point InjectionPoint, value string, asXML, timing bool) (*differ.Response, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	timeout := s.opts.RequestTimeout
	if timing {
		timeout = s.opts.TimingTimeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := s.buildRequest(reqCtx, point, value, asXML)
	if err != nil {
		return nil, err
	}
	if !s.policy.Allows(req.URL.String()) {
		return nil, ErrOutOfScope
	}

	start := time.Now()
	httpResp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodyRead))
	if err != nil {
		return nil, err
	}

	return &differ.Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       body,
		Elapsed:    time.Since(start),
	}, nil
}

// buildRequest substitutes value into the target parameter. GET rebuilds the
// query leaving siblings intact; POST substitutes in the body map; XXE sends
// the raw XML document with its proper content type.
func (s *Scanner) buildRequest(ctx context.Context, point InjectionPoint, value string, asXML bool) (*http.Request, error) {
	if asXML {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, point.URL, strings.NewReader(value))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/xml")
		s.setCommonHeaders(req)
		return req, nil
	}

	form := url.Values{}
	for name, val := range point.Params {
		form.Set(name, val)
	}
	if point.Param != "" {
		form.Set(point.Param, value)
	}

	if point.Method == "POST" {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, point.URL, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		s.setCommonHeaders(req)
		return req, nil
	}

	target, err := url.Parse(point.URL)
	if err != nil {
		return nil, err
	}
	target.RawQuery = form.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, err
	}
	s.setCommonHeaders(req)
	return req, nil
}

func (s *Scanner) setCommonHeaders(req *http.Request) {
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 CyberSage/2.0")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
}

// recordFinding persists evidence and the finding, links them, and skips the
// rest of the class for this parameter. resp is nil for timeout findings.
func (s *Scanner) recordFinding(point InjectionPoint, class finding.Class, payload, technique, evidence string, confidence int, severity finding.Severity, resp *differ.Response) {
	f := finding.Finding{
		Class:       class,
		Title:       fmt.Sprintf("%s in %s (%s)", class, point.Param, technique),
		Severity:    severity,
		URL:         point.URL,
		Method:      point.Method,
		Parameter:   point.Param,
		Payload:     payload,
		Technique:   technique,
		Evidence:    evidence,
		Confidence:  confidence,
		CWE:         classCWE(class),
		CVSS:        classCVSS(class),
		PoC:         generatePoC(class, point.URL, point.Method, point.Param, payload, evidence),
		Remediation: remediation(class),
	}

	s.persist(&f, s.buildEvidence(point, payload, resp))

	s.markHit(point, class)
	s.mu.Lock()
	s.findings = append(s.findings, f)
	s.mu.Unlock()

	s.sink.SendLog(fmt.Sprintf("[VULNERABILITY] %s found in %s at %s (confidence %d)",
		class, point.Param, point.URL, confidence))
	s.sink.VulnerabilityFound(s.scanID, f)
	s.log.Warn("vulnerability found", "class", string(class), "param", point.Param, "url", point.URL)
}

// buildEvidence assembles the stored request/response pair for a detection.
func (s *Scanner) buildEvidence(point InjectionPoint, payload string, resp *differ.Response) store.HTTPEvidence {
	form := url.Values{}
	for name, val := range point.Params {
		form.Set(name, val)
	}
	if point.Param != "" {
		form.Set(point.Param, payload)
	}

	reqURL := point.URL
	reqBody := ""
	if point.Method == "POST" {
		reqBody = form.Encode()
	} else if encoded := form.Encode(); encoded != "" {
		reqURL = point.URL + "?" + encoded
	}

	ev := store.HTTPEvidence{
		Method:     point.Method,
		URL:        reqURL,
		ReqHeaders: "User-Agent: Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 CyberSage/2.0",
		ReqBody:    reqBody,
	}
	if resp != nil {
		ev.RespCode = resp.StatusCode
		ev.RespHeaders = headerString(resp.Header)
		ev.RespBody = string(resp.Body)
		ev.RespTimeMS = resp.Elapsed.Milliseconds()
	}
	return ev
}

// persist writes evidence and finding with one retry each; on repeated
// failure the finding still reaches the event sink and the scan carries on.
func (s *Scanner) persist(f *finding.Finding, ev store.HTTPEvidence) {
	if s.store == nil {
		return
	}

	evidenceID, err := s.storeWithRetry(func() (string, error) {
		return s.store.AddHTTPRequest(s.scanID, ev)
	})
	if err != nil {
		s.sink.SendLog(fmt.Sprintf("[STORE_ERROR] evidence not persisted: %v", err))
		return
	}

	findingID, err := s.storeWithRetry(func() (string, error) {
		return s.store.AddVulnerability(s.scanID, *f)
	})
	if err != nil {
		s.sink.SendLog(fmt.Sprintf("[STORE_ERROR] finding not persisted: %v", err))
		return
	}

	if err := s.store.LinkHTTPEvidenceToVuln(evidenceID, findingID); err != nil {
		if err = s.store.LinkHTTPEvidenceToVuln(evidenceID, findingID); err != nil {
			s.sink.SendLog(fmt.Sprintf("[STORE_ERROR] evidence link failed: %v", err))
			return
		}
	}
	f.EvidenceIDs = append(f.EvidenceIDs, evidenceID)
}

func (s *Scanner) storeWithRetry(op func() (string, error)) (string, error) {
	id, err := op()
	if err == nil {
		return id, nil
	}
	return op()
}

// progress bumps the test counter and streams the attack line.
func (s *Scanner) progress(label string, point InjectionPoint) {
	s.mu.Lock()
	s.testsCompleted++
	k := s.testsCompleted
	total := s.testsTotal
	s.mu.Unlock()

	pct := 0.0
	if total > 0 {
		pct = float64(k) / float64(total) * 100
	}
	s.sink.SendLog(fmt.Sprintf("[Attack %d/%d] (%.1f%%) %s -> %s @ %s",
		k, total, pct, label, point.Param, clipString(point.URL, 50)))
}

func (s *Scanner) hasHit(point InjectionPoint, class finding.Class) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.classHits[hitKey(point, class)]
}

func (s *Scanner) markHit(point InjectionPoint, class finding.Class) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.classHits[hitKey(point, class)] = true
}

func hitKey(point InjectionPoint, class finding.Class) string {
	return point.URL + "|" + point.Method + "|" + point.Param + "|" + string(class)
}

func headerString(header http.Header) string {
	var b strings.Builder
	for name, values := range header {
		for _, value := range values {
			b.WriteString(name)
			b.WriteString(": ")
			b.WriteString(value)
			b.WriteString("\n")
		}
	}
	return b.String()
}

func clipString(s string, max int) string {
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}

func isTimeoutErr(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
