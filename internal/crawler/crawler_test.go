package crawler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AsHfIEXE/cybersage/internal/config"
	"github.com/AsHfIEXE/cybersage/internal/events"
	"github.com/AsHfIEXE/cybersage/internal/scope"
)

func fixtureSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>
			<a href="/page1">Page 1</a>
			<a href="/page2?id=1&cat=tools">Page 2</a>
			<a href="http://evil.test/ping">External</a>
			<a href="/logo.png">Logo</a>
			<iframe src="/framed"></iframe>
			<form action="/submit" method="post" id="login">
				<input type="text" name="username" value="">
				<input type="password" name="password">
				<input type="hidden" name="csrf" value="tok123">
				<input type="submit" value="Go">
			</form>
			<div data-feature="beta"></div>
			<script>fetch('/api/users');</script>
		</body></html>`)
	})
	mux.HandleFunc("/page1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><button onclick="load('/deep.php')">More</button></body></html>`)
	})
	mux.HandleFunc("/page2", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>item</body></html>`)
	})
	mux.HandleFunc("/framed", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>framed</body></html>`)
	})
	mux.HandleFunc("/deep.php", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>deep</body></html>`)
	})
	mux.HandleFunc("/api/users", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"id":1}]`)
	})
	mux.HandleFunc("/submit", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>submitted</body></html>`)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestCrawlDiscoversSurface(t *testing.T) {
	server := fixtureSite(t)
	sink := events.NewMemorySink()

	c := New(nil, sink, config.Default())
	report, err := c.Crawl(context.Background(), server.URL, 3, false)
	require.NoError(t, err)

	urlSet := make(map[string]bool, len(report.URLs))
	for _, u := range report.URLs {
		urlSet[u] = true
	}

	assert.True(t, urlSet[scope.Normalize(server.URL+"/page1")], "page1 crawled")
	assert.True(t, urlSet[scope.Normalize(server.URL+"/page2?id=1&cat=tools")], "page2 crawled")
	assert.True(t, urlSet[scope.Normalize(server.URL+"/framed")], "iframe source crawled")
	assert.True(t, urlSet[scope.Normalize(server.URL+"/deep.php")], "onclick handler URL crawled")

	for u := range urlSet {
		assert.NotContains(t, u, "evil.test", "out-of-scope URL must never be visited")
		assert.NotContains(t, u, ".png", "blocked extension must never be queued")
	}

	// Form extraction: three fields, submit excluded.
	require.Len(t, report.Forms, 1)
	form := report.Forms[0]
	assert.Equal(t, "POST", form.Method)
	assert.Equal(t, scope.Normalize(server.URL+"/submit"), form.Action)
	require.Len(t, form.Params, 3)

	byName := make(map[string]Param)
	for _, p := range form.Params {
		byName[p.Name] = p
	}
	assert.Equal(t, "form-visible", byName["username"].Location)
	assert.Equal(t, "password", byName["password"].Type)
	assert.Equal(t, "form-hidden", byName["csrf"].Location)
	assert.Equal(t, "tok123", byName["csrf"].Value)

	// Query parameters of page2.
	page2 := scope.Normalize(server.URL + "/page2?id=1&cat=tools")
	params := report.Parameters[page2]
	require.NotEmpty(t, params, "page2 parameters extracted")
	names := make(map[string]string)
	for _, p := range params {
		names[p.Name] = p.Location
	}
	assert.Equal(t, "query", names["id"])
	assert.Equal(t, "query", names["cat"])

	// API endpoint from the fetch() call site.
	require.NotEmpty(t, report.APIEndpoints)
	assert.Equal(t, scope.Normalize(server.URL+"/api/users"), report.APIEndpoints[0].URL)

	// The scope escape shows up in the event log.
	var sawOutOfScope bool
	for _, event := range report.Events {
		if event.Type == "OUT_OF_SCOPE" && strings.Contains(event.Message, "evil.test") {
			sawOutOfScope = true
		}
	}
	assert.True(t, sawOutOfScope, "OUT_OF_SCOPE event recorded")
}

func TestCrawlRepeatable(t *testing.T) {
	server := fixtureSite(t)

	first, err := New(nil, nil, config.Default()).Crawl(context.Background(), server.URL, 3, false)
	require.NoError(t, err)
	second, err := New(nil, nil, config.Default()).Crawl(context.Background(), server.URL, 3, false)
	require.NoError(t, err)

	assert.ElementsMatch(t, first.URLs, second.URLs)
	assert.Equal(t, len(first.Forms), len(second.Forms))
	assert.Equal(t, first.ParamCount(), second.ParamCount())
}

func TestCrawlDepthLimit(t *testing.T) {
	server := fixtureSite(t)

	report, err := New(nil, nil, config.Default()).Crawl(context.Background(), server.URL, 0, false)
	require.NoError(t, err)

	// Depth 0: only the start URL is fetched.
	assert.Len(t, report.URLs, 1)
}

func TestCrawlPageCap(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		// Every page links to ten more.
		for i := 0; i < 10; i++ {
			fmt.Fprintf(w, `<a href="%s/n%d">n</a>`, r.URL.Path, i)
		}
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	opts := config.Default()
	opts.MaxPages = 20
	report, err := New(nil, nil, opts).Crawl(context.Background(), server.URL, 10, false)
	require.NoError(t, err)

	assert.LessOrEqual(t, len(report.URLs), 20)
}

func TestCrawlRedirectOutOfScope(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<a href="/leave">go</a>`)
	})
	mux.HandleFunc("/leave", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "http://evil.test/", http.StatusFound)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	report, err := New(nil, nil, config.Default()).Crawl(context.Background(), server.URL, 2, false)
	require.NoError(t, err)

	var sawRedirectEscape bool
	for _, event := range report.Events {
		if event.Type == "REDIRECT_OUT_OF_SCOPE" {
			sawRedirectEscape = true
		}
	}
	assert.True(t, sawRedirectEscape)
}

func TestCrawlInvalidStartURL(t *testing.T) {
	_, err := New(nil, nil, config.Default()).Crawl(context.Background(), "://broken", 1, false)
	assert.Error(t, err)
}
