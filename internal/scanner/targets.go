package scanner

import (
	"net/url"
	"sort"
	"strings"

	"github.com/AsHfIEXE/cybersage/internal/crawler"
	"github.com/AsHfIEXE/cybersage/internal/scope"
)

// TargetKind says where an injection target came from.
type TargetKind string

const (
	KindURL  TargetKind = "url"
	KindForm TargetKind = "form"
	KindAPI  TargetKind = "api"
)

// Target is one attackable request shape: a URL with its parameter bag.
type Target struct {
	URL    string
	Method string
	Params map[string]string
	Kind   TargetKind
}

// InjectionPoint is a single parameter of a target. Param is empty for
// zero-parameter API endpoints, which only get a baseline request.
type InjectionPoint struct {
	URL       string
	Method    string
	Param     string
	BaseValue string
	Params    map[string]string
	Kind      TargetKind
}

// dedupKey implements the injection-point identity: normalized URL without
// query, method, sorted parameter-name set.
func (t Target) dedupKey() string {
	names := make([]string, 0, len(t.Params))
	for name := range t.Params {
		names = append(names, name)
	}
	sort.Strings(names)
	return scope.StripQuery(t.URL) + ":" + t.Method + ":" + strings.Join(names, ",")
}

// prepareTargets translates the crawl report into a deduplicated, ordered
// list of targets: query-parameter URLs, forms, API endpoints.
func prepareTargets(report *crawler.Report) []Target {
	var targets []Target

	// URLs with parameters. Only query-located parameters make a GET target;
	// hidden inputs and data attributes ride along in form targets or are
	// informational.
	urls := make([]string, 0, len(report.Parameters))
	for pageURL := range report.Parameters {
		urls = append(urls, pageURL)
	}
	sort.Strings(urls)
	for _, pageURL := range urls {
		params := make(map[string]string)
		for _, p := range report.Parameters[pageURL] {
			if p.Location == "query" {
				params[p.Name] = p.Value
			}
		}
		if len(params) == 0 {
			continue
		}
		targets = append(targets, Target{
			URL:    scope.StripQuery(pageURL),
			Method: "GET",
			Params: params,
			Kind:   KindURL,
		})
	}

	// Forms, with typed placeholder values for empty fields.
	for _, form := range report.Forms {
		params := make(map[string]string, len(form.Params))
		for _, p := range form.Params {
			params[p.Name] = placeholderValue(p)
		}
		if len(params) == 0 {
			continue
		}
		targets = append(targets, Target{
			URL:    form.Action,
			Method: form.Method,
			Params: params,
			Kind:   KindForm,
		})
	}

	// API endpoints: zero-parameter unless the URL itself carries a query.
	for _, api := range report.APIEndpoints {
		params := make(map[string]string)
		if parsed, err := url.Parse(api.URL); err == nil {
			for name, values := range parsed.Query() {
				if len(values) > 0 {
					params[name] = values[0]
				}
			}
		}
		method := api.Method
		if method == "" {
			method = "GET"
		}
		targets = append(targets, Target{
			URL:    scope.StripQuery(api.URL),
			Method: method,
			Params: params,
			Kind:   KindAPI,
		})
	}

	// Deduplicate on the injection-point identity.
	seen := make(map[string]bool, len(targets))
	unique := targets[:0]
	for _, t := range targets {
		key := t.dedupKey()
		if seen[key] {
			continue
		}
		seen[key] = true
		unique = append(unique, t)
	}

	return unique
}

// explode turns a target into one injection point per parameter, or a single
// zero-parameter point.
func explode(t Target) []InjectionPoint {
	if len(t.Params) == 0 {
		return []InjectionPoint{{
			URL:    t.URL,
			Method: t.Method,
			Params: map[string]string{},
			Kind:   t.Kind,
		}}
	}

	names := make([]string, 0, len(t.Params))
	for name := range t.Params {
		names = append(names, name)
	}
	sort.Strings(names)

	points := make([]InjectionPoint, 0, len(names))
	for _, name := range names {
		points = append(points, InjectionPoint{
			URL:       t.URL,
			Method:    t.Method,
			Param:     name,
			BaseValue: t.Params[name],
			Params:    t.Params,
			Kind:      t.Kind,
		})
	}
	return points
}

// placeholderValue picks a submit-friendly value for a form field.
func placeholderValue(p crawler.Param) string {
	if p.Value != "" {
		return p.Value
	}
	switch p.Type {
	case "email":
		return "test@example.com"
	case "number":
		return "123"
	case "password":
		return "test123"
	default:
		return "test"
	}
}
