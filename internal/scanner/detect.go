package scanner

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/AsHfIEXE/cybersage/internal/finding"
)

// detection is a positive classification of one test response.
type detection struct {
	technique  string
	evidence   string
	confidence int
	// literal means the proof sits verbatim in the response body, which
	// pins confidence at the ceiling.
	literal bool
}

// booleanLengthDelta is the body-size difference that flags boolean SQLi.
const booleanLengthDelta = 100

// classify applies the per-class detection rule to a completed response.
func classify(class finding.Class, payload, body string, elapsed time.Duration, baselineLength int, timingDelay time.Duration) *detection {
	switch class {
	case finding.ClassXSS:
		return classifyXSS(payload, body)
	case finding.ClassSQLi:
		return classifySQLi(payload, body, elapsed, baselineLength, timingDelay)
	case finding.ClassCommand:
		return classifyCommand(payload, body, elapsed, timingDelay)
	case finding.ClassPathTraversal:
		return classifyTraversal(body)
	case finding.ClassXXE:
		return classifyXXE(body)
	}
	return nil
}

// classifyXSS requires the payload (or its URL-encoded form) in the body and
// rejects reflections that were HTML-entity-encoded on the way out.
func classifyXSS(payload, body string) *detection {
	reflected := strings.Contains(body, payload) || strings.Contains(body, url.QueryEscape(payload))
	if !reflected {
		return nil
	}

	entityEncoded := strings.ReplaceAll(strings.ReplaceAll(payload, "<", "&lt;"), ">", "&gt;")
	if entityEncoded != payload && strings.Contains(body, entityEncoded) && !strings.Contains(body, payload) {
		return nil
	}

	return &detection{
		technique:  "Reflected",
		evidence:   "Payload reflected in response without encoding",
		confidence: 90,
		literal:    true,
	}
}

func classifySQLi(payload, body string, elapsed time.Duration, baselineLength int, timingDelay time.Duration) *detection {
	var test sqliTest
	for _, t := range sqliTests {
		if t.payload == payload {
			test = t
			break
		}
	}

	switch test.detection {
	case "error":
		for _, pattern := range sqlErrorPatterns {
			if match := pattern.FindString(body); match != "" {
				return &detection{
					technique:  test.technique,
					evidence:   fmt.Sprintf("SQL error detected: %s", match),
					confidence: 95,
					literal:    true,
				}
			}
		}
	case "differential":
		if baselineLength >= 0 {
			delta := len(body) - baselineLength
			if delta < 0 {
				delta = -delta
			}
			if delta > booleanLengthDelta {
				return &detection{
					technique:  test.technique,
					evidence:   fmt.Sprintf("Response length changed by %d bytes", delta),
					confidence: 90,
				}
			}
		}
	case "time":
		if elapsed >= timingDelay {
			return &detection{
				technique:  test.technique,
				evidence:   fmt.Sprintf("Response delayed by %.2f seconds", elapsed.Seconds()),
				confidence: 90,
			}
		}
	}
	return nil
}

func classifyCommand(payload, body string, elapsed time.Duration, timingDelay time.Duration) *detection {
	for _, marker := range commandMarkers {
		if strings.Contains(body, marker) {
			return &detection{
				technique:  "Output-based",
				evidence:   fmt.Sprintf("Command output detected: %s", marker),
				confidence: 95,
				literal:    true,
			}
		}
	}

	if strings.Contains(payload, "sleep") && elapsed >= timingDelay {
		return &detection{
			technique:  "Time-based",
			evidence:   fmt.Sprintf("Response delayed by %.2f seconds", elapsed.Seconds()),
			confidence: 90,
		}
	}
	return nil
}

func classifyTraversal(body string) *detection {
	for _, marker := range traversalMarkers {
		if strings.Contains(body, marker) {
			return &detection{
				technique:  "Path traversal",
				evidence:   fmt.Sprintf("System file accessed: %s", marker),
				confidence: 95,
				literal:    true,
			}
		}
	}
	return nil
}

func classifyXXE(body string) *detection {
	for _, marker := range xxeMarkers {
		if strings.Contains(body, marker) {
			return &detection{
				technique:  "External entity",
				evidence:   fmt.Sprintf("External entity processed: %s", marker),
				confidence: 90,
				literal:    true,
			}
		}
	}
	return nil
}
