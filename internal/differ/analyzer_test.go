package differ

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AsHfIEXE/cybersage/internal/finding"
)

func okResponse(body string) Response {
	return Response{
		StatusCode: 200,
		Header:     http.Header{"Content-Type": []string{"text/html"}},
		Body:       []byte(body),
		Elapsed:    100 * time.Millisecond,
	}
}

func TestIdenticalResponseYieldsNil(t *testing.T) {
	a := NewAnalyzer()
	resp := okResponse("<html><body>hello</body></html>")
	a.StoreBaseline("http://t.test/", resp)

	assert.Nil(t, a.Analyze("http://t.test/", resp, ""))
}

func TestNoBaselineYieldsNil(t *testing.T) {
	a := NewAnalyzer()
	assert.Nil(t, a.Analyze("http://t.test/", okResponse("x"), "payload"))
}

func TestBaselineIsImmutable(t *testing.T) {
	a := NewAnalyzer()
	first := a.StoreBaseline("http://t.test/", okResponse("first"))
	second := a.StoreBaseline("http://t.test/", okResponse("second and much longer"))

	assert.Same(t, first, second)
	assert.Equal(t, len("first"), second.ContentLength)
}

func TestStatusChangeHigh(t *testing.T) {
	a := NewAnalyzer()
	a.StoreBaseline("u", okResponse("ok"))

	resp := okResponse("ok")
	resp.StatusCode = 503
	result := a.Analyze("u", resp, "")

	require.NotNil(t, result)
	require.Len(t, result.Anomalies, 1)
	assert.Equal(t, KindStatusChange, result.Anomalies[0].Kind)
	assert.Equal(t, finding.SeverityHigh, result.Anomalies[0].Significance)
	assert.Equal(t, 65, result.Confidence)
}

func TestStatusChangeMediumBelow500(t *testing.T) {
	a := NewAnalyzer()
	a.StoreBaseline("u", okResponse("ok"))

	resp := okResponse("ok")
	resp.StatusCode = 404
	result := a.Analyze("u", resp, "")

	require.NotNil(t, result)
	assert.Equal(t, finding.SeverityMedium, result.Anomalies[0].Significance)
}

func TestTimingAnomaly(t *testing.T) {
	a := NewAnalyzer()
	a.StoreBaseline("u", okResponse("ok"))

	// 5.1s against a 0.1s baseline: diff 5.0s, high but not critical.
	resp := okResponse("ok")
	resp.Elapsed = 5100 * time.Millisecond
	result := a.Analyze("u", resp, "")

	require.NotNil(t, result)
	require.Len(t, result.Anomalies, 1)
	assert.Equal(t, KindTimingAnomaly, result.Anomalies[0].Kind)
	assert.Equal(t, finding.SeverityHigh, result.Anomalies[0].Significance)

	// Past five seconds of difference it becomes critical.
	resp.Elapsed = 5300 * time.Millisecond
	a2 := NewAnalyzer()
	a2.StoreBaseline("u", okResponse("ok"))
	result = a2.Analyze("u", resp, "")
	require.NotNil(t, result)
	assert.Equal(t, finding.SeverityCritical, result.Anomalies[0].Significance)
}

func TestLengthChangeSkippedOnEmptyBaseline(t *testing.T) {
	a := NewAnalyzer()
	a.StoreBaseline("u", okResponse(""))

	resp := okResponse("")
	result := a.Analyze("u", resp, "")
	assert.Nil(t, result)
}

func TestNewErrorTokens(t *testing.T) {
	a := NewAnalyzer()
	a.StoreBaseline("u", okResponse("<html>fine</html>"))

	resp := okResponse("<html>Traceback (most recent call last)</html>")
	resp.StatusCode = 500
	result := a.Analyze("u", resp, "")

	require.NotNil(t, result)
	kinds := map[Kind]finding.Severity{}
	for _, anomaly := range result.Anomalies {
		kinds[anomaly.Kind] = anomaly.Significance
	}
	assert.Equal(t, finding.SeverityHigh, kinds[KindStatusChange])
	assert.Contains(t, kinds, KindNewErrors)
	assert.GreaterOrEqual(t, result.Confidence, 80)
}

func TestNewErrorsCriticalTokens(t *testing.T) {
	a := NewAnalyzer()
	a.StoreBaseline("u", okResponse("fine"))

	resp := okResponse("unhandled exception in request handler")
	result := a.Analyze("u", resp, "")

	require.NotNil(t, result)
	var errAnomaly *Anomaly
	for i := range result.Anomalies {
		if result.Anomalies[i].Kind == KindNewErrors {
			errAnomaly = &result.Anomalies[i]
		}
	}
	require.NotNil(t, errAnomaly)
	assert.Equal(t, finding.SeverityCritical, errAnomaly.Significance)
}

func TestPayloadReflectionCritical(t *testing.T) {
	a := NewAnalyzer()
	a.StoreBaseline("u", okResponse("<html>static</html>"))

	resp := okResponse("<html>static <script>alert(1)</script></html>")
	result := a.Analyze("u", resp, "<script>alert(1)</script>")

	require.NotNil(t, result)
	var found bool
	for _, anomaly := range result.Anomalies {
		if anomaly.Kind == KindPayloadReflection {
			found = true
			assert.Equal(t, finding.SeverityCritical, anomaly.Significance)
		}
	}
	assert.True(t, found)
}

func TestHeaderAnomalies(t *testing.T) {
	a := NewAnalyzer()
	baseline := okResponse("ok")
	baseline.Header = http.Header{
		"Content-Type":    []string{"text/html"},
		"X-Frame-Options": []string{"DENY"},
	}
	a.StoreBaseline("u", baseline)

	resp := okResponse("ok")
	resp.Header = http.Header{
		"Content-Type": []string{"application/json"},
		"X-Debug":      []string{"query took 4s"},
	}
	result := a.Analyze("u", resp, "")

	require.NotNil(t, result)
	kinds := map[Kind]bool{}
	for _, anomaly := range result.Anomalies {
		kinds[anomaly.Kind] = true
	}
	assert.True(t, kinds[KindNewDebugHeader])
	assert.True(t, kinds[KindRemovedSecurityHeader])
	assert.True(t, kinds[KindHeaderValueChange])
}

func TestConfidenceCap(t *testing.T) {
	a := NewAnalyzer()
	a.StoreBaseline("u", okResponse("<html><div>a</div></html>"))

	resp := Response{
		StatusCode: 500,
		Header:     http.Header{"X-Error": []string{"boom"}},
		Body:       []byte("fatal exception panic Traceback <script>p</script>" + string(make([]byte, 4096))),
		Elapsed:    9 * time.Second,
	}
	result := a.Analyze("u", resp, "p")

	require.NotNil(t, result)
	assert.Equal(t, 95, result.Confidence)
	assert.Equal(t, finding.SeverityCritical, result.Severity)
}

func TestSeverityEscalation(t *testing.T) {
	// Three medium anomalies escalate to high.
	anomalies := []Anomaly{
		{Kind: KindStatusChange, Significance: finding.SeverityMedium},
		{Kind: KindLengthChange, Significance: finding.SeverityMedium},
		{Kind: KindHeaderValueChange, Significance: finding.SeverityMedium},
	}
	assert.Equal(t, finding.SeverityHigh, overallSeverity(anomalies))

	// Five of anything escalates to critical.
	anomalies = append(anomalies,
		Anomaly{Kind: KindNewDebugHeader, Significance: finding.SeverityLow},
		Anomaly{Kind: KindDOMStructureChange, Significance: finding.SeverityLow},
	)
	assert.Equal(t, finding.SeverityCritical, overallSeverity(anomalies))
}

func TestDOMStructureChange(t *testing.T) {
	a := NewAnalyzer()
	a.StoreBaseline("u", okResponse("<html><body><div>1</div><div>2</div><div>3</div></body></html>"))

	resp := okResponse("<html><body><div>1</div></body></html>")
	result := a.Analyze("u", resp, "")

	require.NotNil(t, result)
	var found bool
	for _, anomaly := range result.Anomalies {
		if anomaly.Kind == KindDOMStructureChange {
			found = true
			assert.Equal(t, finding.SeverityMedium, anomaly.Significance)
		}
	}
	assert.True(t, found)
}
