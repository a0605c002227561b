package differ

import (
	"fmt"

	"github.com/AsHfIEXE/cybersage/internal/finding"
)

// Kind classifies an anomaly.
type Kind string

const (
	KindStatusChange          Kind = "status_change"
	KindLengthChange          Kind = "length_change"
	KindContentChange         Kind = "content_change"
	KindTimingAnomaly         Kind = "timing_anomaly"
	KindNewErrors             Kind = "new_errors"
	KindDOMStructureChange    Kind = "dom_structure_change"
	KindHeaderValueChange     Kind = "header_value_change"
	KindNewDebugHeader        Kind = "new_debug_header"
	KindRemovedSecurityHeader Kind = "removed_security_header"
	KindPayloadReflection     Kind = "payload_reflection"
)

// Anomaly is one detected deviation from the baseline. Only the fields that
// make sense for the kind are set.
type Anomaly struct {
	Kind         Kind             `json:"type"`
	Significance finding.Severity `json:"significance"`

	Baseline      string   `json:"baseline,omitempty"`
	Current       string   `json:"current,omitempty"`
	ChangePercent float64  `json:"change_percent,omitempty"`
	Similarity    float64  `json:"similarity,omitempty"`
	Difference    float64  `json:"difference,omitempty"`
	Indicators    []string `json:"indicators,omitempty"`
	Header        string   `json:"header,omitempty"`
	Payload       string   `json:"payload,omitempty"`
}

// Detail renders the anomaly as a single report line.
func (a Anomaly) Detail() string {
	switch a.Kind {
	case KindStatusChange:
		return fmt.Sprintf("[STATUS_CHANGE] Status code changed from %s to %s", a.Baseline, a.Current)
	case KindLengthChange:
		return fmt.Sprintf("[LENGTH_CHANGE] Content length changed by %.1f%%", a.ChangePercent)
	case KindContentChange:
		return fmt.Sprintf("[CONTENT_CHANGE] Content similarity only %.1f%%", a.Similarity)
	case KindTimingAnomaly:
		return fmt.Sprintf("[TIMING_ANOMALY] Response time changed by %.2f seconds", a.Difference)
	case KindNewErrors:
		return fmt.Sprintf("[NEW_ERRORS] New error indicators: %v", a.Indicators)
	case KindPayloadReflection:
		return "[PAYLOAD_REFLECTION] Payload reflected in response"
	default:
		return fmt.Sprintf("[%s] Anomaly detected with %s significance", a.Kind, a.Significance)
	}
}

// Result bundles the anomalies found in one response.
type Result struct {
	Anomalies  []Anomaly        `json:"anomalies"`
	Confidence int              `json:"confidence"`
	Severity   finding.Severity `json:"severity"`
	Payload    string           `json:"payload,omitempty"`
}
