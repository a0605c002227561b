package scope

import (
	"net/url"
	"sort"
	"strings"
)

// Normalize puts a URL in canonical form: lowercased scheme and host, sorted
// query, no fragment, no trailing slash except at the root. The result is the
// identity used by deduplication sets, so Normalize(Normalize(u)) == Normalize(u).
func Normalize(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = strings.ToLower(parsed.Host)
	parsed.Fragment = ""

	if parsed.Host != "" && parsed.Path == "" {
		parsed.Path = "/"
	}
	if len(parsed.Path) > 1 {
		parsed.Path = strings.TrimRight(parsed.Path, "/")
		if parsed.Path == "" {
			parsed.Path = "/"
		}
	}

	if parsed.RawQuery != "" {
		parsed.RawQuery = sortQuery(parsed.RawQuery)
	}

	return parsed.String()
}

// sortQuery re-encodes a query string with keys in sorted order.
// url.Values.Encode already sorts by key; values keep their relative order.
func sortQuery(rawQuery string) string {
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return rawQuery
	}
	return values.Encode()
}

// StripQuery returns the normalized URL without its query component. Used by
// the scanner when building injection-point deduplication keys.
func StripQuery(rawURL string) string {
	parsed, err := url.Parse(Normalize(rawURL))
	if err != nil {
		return rawURL
	}
	parsed.RawQuery = ""
	return parsed.String()
}

// SortedParamNames returns the keys of params in sorted order, joined by
// commas.
func SortedParamNames(params map[string]string) string {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}
