package crawler

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

	"github.com/PuerkitoBio/goquery"
	"github.com/hashicorp/go-hclog"

	"github.com/AsHfIEXE/cybersage/internal/config"
	"github.com/AsHfIEXE/cybersage/internal/events"
	"github.com/AsHfIEXE/cybersage/internal/headless"
	"github.com/AsHfIEXE/cybersage/internal/scope"
)

// maxBodyRead bounds how much of a page the crawler reads.
const maxBodyRead = 1024 * 1024

// errRedirectOutOfScope aborts a redirect chain before the client contacts a
// host outside the scan scope.
var errRedirectOutOfScope = errors.New("crawler: redirect out of scope")

// Crawler walks a target origin breadth-first with a bounded fetch pool.
type Crawler struct {
	client  *http.Client
	log     hclog.Logger
	sink    events.Sink
	opts    config.Options
	browser headless.Launcher

	mu      sync.Mutex
	policy  *scope.Policy
	visited map[string]bool
	forms   []Form
	params  map[string][]Param
	apis    []APIEndpoint
	apiSeen map[string]bool
	jsURLs  []string
	events  []Event
	pages   int
}

type queueItem struct {
	url   string
	depth int
}

// New builds a crawler. logger and sink may be nil; opts zero values fall
// back to defaults.
func New(logger hclog.Logger, sink events.Sink, opts config.Options) *Crawler {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if sink == nil {
		sink = events.NewMemorySink()
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = config.Default().MaxPages
	}
	if opts.CrawlWorkers <= 0 {
		opts.CrawlWorkers = config.Default().CrawlWorkers
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = config.Default().RequestTimeout
	}

	c := &Crawler{
		log:     logger.Named("crawler"),
		sink:    sink,
		opts:    opts,
		browser: headless.PlaywrightLauncher,
		visited: make(map[string]bool),
		params:  make(map[string][]Param),
		apiSeen: make(map[string]bool),
	}
	c.client = &http.Client{
		Timeout: opts.RequestTimeout,
		Transport: &http.Transport{
			// A security tool has to reach targets with broken TLS.
			TLSClientConfig:     &tls.Config{InsecureSkipVerify: true},
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     30 * time.Second,
		},
		// Redirects are followed, but every hop is scope-checked before the
		// client dials it.
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			c.mu.Lock()
			policy := c.policy
			c.mu.Unlock()
			if policy != nil && !policy.Allows(req.URL.String()) {
				return errRedirectOutOfScope
			}
			if len(via) >= 10 {
				return errors.New("stopped after 10 redirects")
			}
			return nil
		},
	}
	return c
}

// SetBrowserLauncher swaps the headless launcher; tests install fakes here.
func (c *Crawler) SetBrowserLauncher(launcher headless.Launcher) {
	c.browser = launcher
}

// Crawl explores startURL down to maxDepth and returns the attack surface.
// Per-URL failures become events and the crawl continues; only an unusable
// start URL is fatal.
func (c *Crawler) Crawl(ctx context.Context, startURL string, maxDepth int, enableDynamic bool) (*Report, error) {
	start := time.Now()

	policy, err := scope.NewPolicy(startURL)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.policy = policy
	c.mu.Unlock()

	c.recordEvent("SCOPE_SET", fmt.Sprintf("domain=%s allowed=%v", policy.PrimaryDomain(), policy.AllowedHosts()), 0)
	c.recordEvent("CRAWL_START", startURL, 0)
	c.sink.SendLog(fmt.Sprintf("[Crawler] Starting crawl of %s (depth %d, dynamic %t)", startURL, maxDepth, enableDynamic))

	queue := make(chan queueItem, c.opts.MaxPages*4)
	var pending sync.WaitGroup

	normalized := scope.Normalize(startURL)
	c.mu.Lock()
	c.visited[normalized] = true
	c.pages = 1
	c.mu.Unlock()
	pending.Add(1)
	queue <- queueItem{url: normalized, depth: 0}

	go func() {
		pending.Wait()
		close(queue)
	}()

	var workers sync.WaitGroup
	for i := 0; i < c.opts.CrawlWorkers; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			for item := range queue {
				if ctx.Err() == nil {
					c.crawlPage(ctx, item, maxDepth, queue, &pending)
				}
				pending.Done()
			}
		}()
	}
	workers.Wait()

	if enableDynamic && ctx.Err() == nil {
		c.dynamicDiscovery(ctx, normalized)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	urls := make([]string, 0, len(c.visited))
	for u := range c.visited {
		urls = append(urls, u)
	}

	report := &Report{
		StartURL:     normalized,
		URLs:         urls,
		Forms:        c.forms,
		Parameters:   c.params,
		APIEndpoints: c.apis,
		JSURLs:       c.jsURLs,
		Events:       append([]Event(nil), c.events...),
		TotalPages:   c.pages,
		Duration:     time.Since(start),
	}

	c.sink.SendLog(fmt.Sprintf("[Crawler] Crawl complete: %d URLs, %d forms, %d parameters, %d API endpoints",
		len(report.URLs), len(report.Forms), report.ParamCount(), len(report.APIEndpoints)))

	return report, nil
}

// enqueue scope-checks a child URL and schedules it. Returns false when the
// URL was dropped (visited, out of scope, blocked, or at the page cap).
func (c *Crawler) enqueue(child string, depth int, queue chan<- queueItem, pending *sync.WaitGroup) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.visited[child] {
		return false
	}
	if !c.policy.Allows(child) {
		c.recordEventLocked("OUT_OF_SCOPE", "Skipping: "+child, depth)
		return false
	}
	if scope.BlockedExtension(child) {
		return false
	}
	if c.pages >= c.opts.MaxPages {
		return false
	}

	c.visited[child] = true
	c.pages++
	pending.Add(1)
	select {
	case queue <- queueItem{url: child, depth: depth}:
		return true
	default:
		// Queue saturated; the page cap keeps this from recursing forever.
		c.pages--
		delete(c.visited, child)
		pending.Done()
		return false
	}
}

// crawlPage fetches one URL, records its surface, and enqueues children.
func (c *Crawler) crawlPage(ctx context.Context, item queueItem, maxDepth int, queue chan<- queueItem, pending *sync.WaitGroup) {
	c.recordEvent("CRAWLING", fmt.Sprintf("Depth %d: %s", item.depth, item.url), item.depth)

	body, finalURL, err := c.fetch(ctx, item.url)
	if err != nil {
		kind := "CONNECTION_ERROR"
		switch {
		case errors.Is(err, errRedirectOutOfScope):
			kind = "REDIRECT_OUT_OF_SCOPE"
		case isTimeout(err):
			kind = "TIMEOUT"
		}
		c.recordEvent(kind, fmt.Sprintf("%s: %v", item.url, err), item.depth)
		return
	}

	// Redirects are followed, but the landing URL must still be in scope.
	if finalURL != item.url && !c.policy.Allows(finalURL) {
		c.recordEvent("REDIRECT_OUT_OF_SCOPE", fmt.Sprintf("%s -> %s", item.url, finalURL), item.depth)
		return
	}

	base, err := url.Parse(finalURL)
	if err != nil {
		c.recordEvent("PARSE_ERROR", fmt.Sprintf("%s: %v", finalURL, err), item.depth)
		return
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		c.recordEvent("PARSE_ERROR", fmt.Sprintf("%s: %v", item.url, err), item.depth)
		return
	}

	links := extractLinks(doc, base)
	forms := extractForms(doc, base)
	params := extractParameters(item.url, doc)
	apis := extractAPIEndpoints(body, base)

	c.mu.Lock()
	c.forms = append(c.forms, forms...)
	if len(params) > 0 {
		c.params[item.url] = params
	}
	for _, api := range apis {
		if c.policy.Allows(api.URL) && !c.apiSeen[api.URL] {
			c.apiSeen[api.URL] = true
			c.apis = append(c.apis, api)
		}
	}
	c.mu.Unlock()

	if len(forms) > 0 {
		c.recordEvent("FOUND_FORMS", fmt.Sprintf("Found %d forms on %s", len(forms), item.url), item.depth)
	}

	if item.depth >= maxDepth {
		return
	}
	for _, link := range links {
		c.enqueue(link, item.depth+1, queue, pending)
	}
}

// fetch GETs a page and returns up to maxBodyRead of its body plus the final
// URL after redirects.
func (c *Crawler) fetch(ctx context.Context, pageURL string) (string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", "", err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 CyberSage/2.0")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyRead))
	if err != nil {
		return "", "", err
	}
	return string(body), resp.Request.URL.String(), nil
}

// dynamicDiscovery runs the headless phase. The browser is exclusive to this
// phase, single-threaded, and torn down before returning; launch failure
// downgrades to static-only and is never fatal.
func (c *Crawler) dynamicDiscovery(ctx context.Context, startURL string) {
	driver, err := c.browser(c.log)
	if err != nil {
		c.recordEvent("BROWSER_UNAVAILABLE", err.Error(), 0)
		c.sink.SendLog("[Crawler] Headless browser unavailable, continuing static-only")
		return
	}
	defer driver.Quit()

	result, err := headless.Discover(ctx, driver, startURL, c.policy.Allows)
	if err != nil {
		c.recordEvent("AJAX_SPIDER_ERROR", err.Error(), 0)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, u := range result.URLs {
		normalized := scope.Normalize(u)
		if !c.visited[normalized] && c.policy.Allows(normalized) {
			c.jsURLs = append(c.jsURLs, normalized)
		}
	}
	for _, capture := range result.Requests {
		normalized := scope.Normalize(capture.URL)
		if !c.policy.Allows(normalized) || c.apiSeen[normalized] {
			continue
		}
		c.apiSeen[normalized] = true
		c.apis = append(c.apis, APIEndpoint{URL: normalized, Method: capture.Method, Source: "ajax"})
	}
	c.recordEventLocked("AJAX_SPIDER_DONE",
		fmt.Sprintf("%d URLs, %d captured requests", len(result.URLs), len(result.Requests)), 0)
}

func (c *Crawler) recordEvent(kind, message string, depth int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recordEventLocked(kind, message, depth)
}

func (c *Crawler) recordEventLocked(kind, message string, depth int) {
	c.events = append(c.events, Event{Time: time.Now(), Type: kind, Message: message, Depth: depth})
	if len(c.events) > maxEvents {
		c.events = c.events[len(c.events)-maxEvents:]
	}
	c.log.Debug(message, "event", kind, "depth", depth)
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
