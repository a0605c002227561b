package fuzz

import (
	"strings"
)

// Smart selects strategies from the shape of the input: email addresses,
// URLs, numbers, ISO dates and JSON each get targeted invalid values;
// anything else falls back to the full strategy set.
func (f *Fuzzer) Smart(base string) []string {
	var fuzzed []string

	switch {
	case strings.Contains(base, "@"):
		fuzzed = fuzzEmail(base)
	case strings.Contains(base, "http"):
		fuzzed = fuzzURL(base)
	case base != "" && isAllDigits(base):
		fuzzed = fuzzNumber(base)
	case looksLikeDate(base):
		fuzzed = fuzzDate(base)
	case strings.HasPrefix(base, "{"):
		fuzzed = fuzzJSON()
	default:
		return f.Generate(base, StrategyAll)
	}

	return dedupe(fuzzed, MaxValues)
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// looksLikeDate matches the YYYY-MM-DD shape without validating the calendar.
func looksLikeDate(s string) bool {
	if len(s) != 10 || s[4] != '-' || s[7] != '-' {
		return false
	}
	for i, r := range s {
		if i == 4 || i == 7 {
			continue
		}
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func fuzzEmail(email string) []string {
	var fuzzed []string

	if user, domain, ok := strings.Cut(email, "@"); ok {
		fuzzed = append(fuzzed,
			strings.Repeat("A", 100)+"@"+domain,
			"..@"+domain,
			user+"+test@"+domain,
			"<"+user+">@"+domain,
			user+"@",
			user+"@.",
			user+"@localhost",
			user+"@127.0.0.1",
		)
	}

	fuzzed = append(fuzzed, "@", "@@", "test@", "@test", "test@@test")
	return fuzzed
}

func fuzzURL(rawURL string) []string {
	return []string{
		strings.Replace(rawURL, "http://", "file://", 1),
		strings.Replace(rawURL, "http://", "javascript:", 1),
		strings.Replace(rawURL, "http://", "data:", 1),
		rawURL + "/../../../etc/passwd",
		rawURL + "/.git/config",
		rawURL + "/.env",
		rawURL + "&debug=1",
		rawURL + "&admin=true",
	}
}

func fuzzNumber(number string) []string {
	var fuzzed []string

	if mutated, ok := numberNeighbors(number); ok {
		fuzzed = append(fuzzed, mutated...)
	}

	fuzzed = append(fuzzed,
		"0", "-1", "1",
		"Infinity", "-Infinity", "NaN",
		"2147483647", "-2147483648", "4294967295",
	)
	return fuzzed
}

func fuzzDate(date string) []string {
	fuzzed := []string{
		// Invalid calendar dates.
		"0000-00-00", "9999-99-99",
		"2024-13-01", "2024-01-32",
		"2024-02-30", "2023-02-29",
		// Boundary dates.
		"1970-01-01", "2038-01-19",
		"1900-01-01", "2100-12-31",
	}

	if strings.Contains(date, "-") {
		fuzzed = append(fuzzed,
			strings.ReplaceAll(date, "-", "/"),
			strings.ReplaceAll(date, "-", "."),
		)
	}

	return fuzzed
}

func fuzzJSON() []string {
	fuzzed := []string{
		"{", "}", "[", "]",
		`{"test": }`, `{"test": "value"`,
		`{"test": undefined}`, `{"test": NaN}`,
		`{"__proto__": {"isAdmin": true}}`,
	}

	// Deeply nested object to stress recursive parsers.
	fuzzed = append(fuzzed, strings.Repeat(`{"a": `, 1000)+"1"+strings.Repeat("}", 1000))
	return fuzzed
}
