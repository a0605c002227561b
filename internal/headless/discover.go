package headless

import (
	"context"
	"fmt"
	"time"
)

// Fixed settle times for dynamic content. Variables so tests can shrink
// them; production code never changes them.
var (
	loadWait   = 3 * time.Second
	scrollWait = 2 * time.Second
	clickWait  = 1 * time.Second
	xhrWait    = 3 * time.Second
)

// maxButtonClicks bounds interaction so pages with endless buttons terminate.
const maxButtonClicks = 5

// interceptorScript records every XHR and fetch call into a page-global
// array that Discover reads back later.
const interceptorScript = `
window.__cybersageRequests = window.__cybersageRequests || [];
var originalOpen = XMLHttpRequest.prototype.open;
XMLHttpRequest.prototype.open = function(method, url) {
	window.__cybersageRequests.push({method: String(method), url: String(url)});
	return originalOpen.apply(this, arguments);
};
var originalFetch = window.fetch;
window.fetch = function(input, init) {
	var url = (typeof input === 'string') ? input : (input && input.url) || '';
	var method = (init && init.method) || 'GET';
	window.__cybersageRequests.push({method: String(method), url: String(url)});
	return originalFetch.apply(this, arguments);
};
`

// Discover loads startURL, lets scripts settle, scrolls, interacts with
// buttons and intercepts XHR/fetch traffic. inScope filters everything that
// leaves the page.
func Discover(ctx context.Context, driver Driver, startURL string, inScope func(string) bool) (*Result, error) {
	if err := driver.Get(startURL); err != nil {
		return nil, fmt.Errorf("load %s: %w", startURL, err)
	}
	if err := wait(ctx, loadWait); err != nil {
		return nil, err
	}

	if _, err := driver.ExecuteScript("window.scrollTo(0, document.body.scrollHeight);"); err == nil {
		if err := wait(ctx, scrollWait); err != nil {
			return nil, err
		}
	}

	result := &Result{}
	seen := make(map[string]bool)
	collect := func() {
		for _, u := range enumerateURLs(driver) {
			if !inScope(u) || seen[u] {
				continue
			}
			seen[u] = true
			result.URLs = append(result.URLs, u)
		}
	}
	collect()

	// Click through visible buttons; each click may reveal new surface.
	if buttons, err := driver.FindElements("button"); err == nil {
		clicked := 0
		for _, button := range buttons {
			if clicked >= maxButtonClicks {
				break
			}
			if !button.Visible() || !button.Enabled() {
				continue
			}
			if err := button.Click(); err != nil {
				continue
			}
			clicked++
			if err := wait(ctx, clickWait); err != nil {
				return result, err
			}
			collect()
		}
	}

	// Intercept the traffic the page generates on its own.
	if _, err := driver.ExecuteScript(interceptorScript); err == nil {
		if err := wait(ctx, xhrWait); err != nil {
			return result, err
		}
		for _, capture := range readCaptures(driver) {
			if inScope(capture.URL) {
				result.Requests = append(result.Requests, capture)
			}
		}
	}

	return result, nil
}

// enumerateURLs reads anchor hrefs and form actions from the live DOM.
func enumerateURLs(driver Driver) []string {
	var urls []string
	if anchors, err := driver.FindElements("a[href]"); err == nil {
		for _, a := range anchors {
			if href := a.Attribute("href"); href != "" {
				urls = append(urls, href)
			}
		}
	}
	if forms, err := driver.FindElements("form[action]"); err == nil {
		for _, form := range forms {
			if action := form.Attribute("action"); action != "" {
				urls = append(urls, action)
			}
		}
	}
	return urls
}

// readCaptures pulls the intercepted request tuples back out of the page.
func readCaptures(driver Driver) []Capture {
	raw, err := driver.ExecuteScript("return window.__cybersageRequests;")
	if err != nil {
		return nil
	}
	entries, ok := raw.([]interface{})
	if !ok {
		return nil
	}

	var captures []Capture
	for _, entry := range entries {
		fields, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		method, _ := fields["method"].(string)
		url, _ := fields["url"].(string)
		if url == "" {
			continue
		}
		if method == "" {
			method = "GET"
		}
		captures = append(captures, Capture{Method: method, URL: url})
	}
	return captures
}

func wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
