package crawler

import (
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/AsHfIEXE/cybersage/internal/scope"
)

// handlerURLPattern pulls script-extension URL literals out of inline event
// handlers (onclick and friends).
var handlerURLPattern = regexp.MustCompile(`['"]([^'"\s]+\.(?:php|asp|jsp|html|htm|do|action))['"]`)

// API endpoint regex families. Submatch 1 is the endpoint.
var apiPatterns = []*regexp.Regexp{
	regexp.MustCompile(`['"](/api/[^'"\s]+)['"]`),
	regexp.MustCompile(`['"](/v\d+/[^'"\s]+)['"]`),
	regexp.MustCompile(`['"](/rest/[^'"\s]+)['"]`),
	regexp.MustCompile(`['"](/graphql[^'"\s]*)['"]`),
	regexp.MustCompile(`['"](/ws/[^'"\s]+)['"]`),
	regexp.MustCompile(`(?i)fetch\s*\(\s*['"]([^'"\s]+)['"]`),
	regexp.MustCompile(`(?i)axios\.\w+\s*\(\s*['"]([^'"\s]+)['"]`),
	regexp.MustCompile(`(?i)XMLHttpRequest.*open\s*\(\s*['"](?:GET|POST|PUT|DELETE)['"],\s*['"]([^'"\s]+)['"]`),
}

var skipSchemes = []string{"javascript:", "data:", "mailto:", "tel:", "#"}

// extractLinks collects anchor hrefs, form actions, iframe/frame sources and
// URL literals inside inline handlers, resolved against base and normalized.
// Scope filtering happens at the caller.
func extractLinks(doc *goquery.Document, base *url.URL) []string {
	seen := make(map[string]bool)
	var links []string
	add := func(raw string) {
		resolved := resolveURL(raw, base)
		if resolved == "" || seen[resolved] {
			return
		}
		seen[resolved] = true
		links = append(links, resolved)
	}

	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		if href, ok := sel.Attr("href"); ok {
			add(href)
		}
	})
	doc.Find("form[action]").Each(func(_ int, sel *goquery.Selection) {
		if action, ok := sel.Attr("action"); ok {
			add(action)
		}
	})
	doc.Find("iframe[src], frame[src]").Each(func(_ int, sel *goquery.Selection) {
		if src, ok := sel.Attr("src"); ok {
			add(src)
		}
	})

	doc.Find("*").Each(func(_ int, sel *goquery.Selection) {
		for _, attr := range []string{"onclick", "onsubmit", "onchange"} {
			if js, ok := sel.Attr(attr); ok {
				for _, match := range handlerURLPattern.FindAllStringSubmatch(js, -1) {
					add(match[1])
				}
			}
		}
	})

	return links
}

// resolveURL resolves raw against base and normalizes. Non-HTTP schemes and
// bare fragments return "".
func resolveURL(raw string, base *url.URL) string {
	for _, prefix := range skipSchemes {
		if strings.HasPrefix(raw, prefix) {
			return ""
		}
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	resolved := base.ResolveReference(parsed)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	return scope.Normalize(resolved.String())
}

// extractForms pulls every form with its input metadata. Submit, button and
// reset controls are dropped; the rest keep their declared order.
func extractForms(doc *goquery.Document, base *url.URL) []Form {
	var forms []Form

	doc.Find("form").Each(func(_ int, sel *goquery.Selection) {
		action := base.String()
		if raw, ok := sel.Attr("action"); ok && raw != "" {
			if resolved := resolveURL(raw, base); resolved != "" {
				action = resolved
			}
		}

		method := strings.ToUpper(sel.AttrOr("method", "GET"))
		if method != "POST" {
			method = "GET"
		}

		form := Form{
			Action: action,
			Method: method,
			ID:     sel.AttrOr("id", ""),
			Name:   sel.AttrOr("name", ""),
		}

		sel.Find("input, textarea, select").Each(func(_ int, input *goquery.Selection) {
			name := input.AttrOr("name", "")
			if name == "" {
				return
			}
			inputType := strings.ToLower(input.AttrOr("type", "text"))
			if inputType == "submit" || inputType == "button" || inputType == "reset" {
				return
			}

			location := "form-visible"
			if inputType == "hidden" {
				location = "form-hidden"
			}
			value := input.AttrOr("value", "")
			form.Params = append(form.Params, Param{
				Name:     name,
				Value:    value,
				Location: location,
				Type:     inferParamType(name, value, inputType),
			})
		})

		if len(form.Params) > 0 {
			forms = append(forms, form)
		}
	})

	return forms
}

// extractParameters gathers injection point candidates on a page: the URL's
// own query parameters, hidden inputs, and data-* attributes.
func extractParameters(pageURL string, doc *goquery.Document) []Param {
	var params []Param
	seen := make(map[string]bool)
	add := func(p Param) {
		if seen[p.Name] {
			return
		}
		seen[p.Name] = true
		params = append(params, p)
	}

	if parsed, err := url.Parse(pageURL); err == nil {
		for _, name := range sortedQueryKeys(parsed.Query()) {
			value := parsed.Query().Get(name)
			add(Param{
				Name:     name,
				Value:    value,
				Location: "query",
				Type:     inferParamType(name, value, ""),
			})
		}
	}

	doc.Find(`input[type="hidden"]`).Each(func(_ int, sel *goquery.Selection) {
		name := sel.AttrOr("name", "")
		if name == "" {
			return
		}
		add(Param{
			Name:     name,
			Value:    sel.AttrOr("value", ""),
			Location: "form-hidden",
			Type:     "hidden",
		})
	})

	doc.Find("*").Each(func(_ int, sel *goquery.Selection) {
		for _, attr := range sel.Nodes[0].Attr {
			if !strings.HasPrefix(attr.Key, "data-") {
				continue
			}
			name := strings.TrimPrefix(attr.Key, "data-")
			add(Param{
				Name:     name,
				Value:    attr.Val,
				Location: "data-attribute",
				Type:     inferParamType(name, attr.Val, ""),
			})
		}
	})

	return params
}

// extractAPIEndpoints matches the API regex families over raw page source.
func extractAPIEndpoints(content string, base *url.URL) []APIEndpoint {
	seen := make(map[string]bool)
	var endpoints []APIEndpoint

	for _, pattern := range apiPatterns {
		for _, match := range pattern.FindAllStringSubmatch(content, -1) {
			endpoint := match[1]
			if strings.HasPrefix(endpoint, "/") {
				resolved, err := url.Parse(endpoint)
				if err != nil {
					continue
				}
				endpoint = base.ResolveReference(resolved).String()
			}
			endpoint = scope.Normalize(endpoint)
			if seen[endpoint] {
				continue
			}
			seen[endpoint] = true
			endpoints = append(endpoints, APIEndpoint{URL: endpoint, Method: "GET", Source: "static"})
		}
	}

	return endpoints
}

// inferParamType prefers the input element's declared type, then falls back
// to name heuristics and value shape.
func inferParamType(name, value, inputType string) string {
	switch inputType {
	case "email", "number", "password", "hidden":
		return inputType
	}

	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "email") || strings.Contains(lower, "e-mail"):
		return "email"
	case strings.Contains(lower, "pass") || strings.Contains(lower, "pwd"):
		return "password"
	case strings.Contains(lower, "id") || strings.Contains(lower, "key"):
		return "identifier"
	case value != "" && isDigits(value):
		return "number"
	default:
		return "text"
	}
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func sortedQueryKeys(values url.Values) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	// Map iteration order is random; keep extraction deterministic.
	sort.Strings(keys)
	return keys
}
