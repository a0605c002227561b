package store

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AsHfIEXE/cybersage/internal/finding"
)

func TestEvidenceAndFindingLink(t *testing.T) {
	m := NewMemoryStore()

	evidenceID, err := m.AddHTTPRequest("scan-1", HTTPEvidence{
		Method:   "GET",
		URL:      "http://t.test/?q=x",
		RespCode: 200,
	})
	require.NoError(t, err)
	require.NotEmpty(t, evidenceID)

	findingID, err := m.AddVulnerability("scan-1", finding.Finding{
		Class:     finding.ClassXSS,
		Parameter: "q",
	})
	require.NoError(t, err)

	require.NoError(t, m.LinkHTTPEvidenceToVuln(evidenceID, findingID))

	ev := m.Evidence(evidenceID)
	require.NotNil(t, ev)
	assert.Equal(t, findingID, ev.VulnID)

	vuln := m.Vulnerability(findingID)
	require.NotNil(t, vuln)
	assert.Equal(t, []string{evidenceID}, vuln.EvidenceIDs)
}

func TestLinkUnknownIDs(t *testing.T) {
	m := NewMemoryStore()
	assert.ErrorIs(t, m.LinkHTTPEvidenceToVuln("nope", "nope"), ErrNotFound)

	evidenceID, err := m.AddHTTPRequest("scan-1", HTTPEvidence{})
	require.NoError(t, err)
	assert.ErrorIs(t, m.LinkHTTPEvidenceToVuln(evidenceID, "nope"), ErrNotFound)
}

func TestWriteCaps(t *testing.T) {
	m := NewMemoryStore()

	id, err := m.AddHTTPRequest("scan-1", HTTPEvidence{
		ReqBody:     strings.Repeat("a", MaxRequestBody+100),
		RespHeaders: strings.Repeat("b", MaxResponseHeaders+100),
		RespBody:    strings.Repeat("c", MaxResponseBody+100),
	})
	require.NoError(t, err)

	ev := m.Evidence(id)
	require.NotNil(t, ev)
	assert.Len(t, ev.ReqBody, MaxRequestBody)
	assert.Len(t, ev.RespHeaders, MaxResponseHeaders)
	assert.Len(t, ev.RespBody, MaxResponseBody)
}

func TestStatistics(t *testing.T) {
	m := NewMemoryStore()
	stats := Statistics{EndpointsDiscovered: 12, PayloadsSent: 340, VulnerabilitiesFound: 3}
	require.NoError(t, m.UpdateScanStatistics("scan-1", stats))
	assert.Equal(t, stats, m.Statistics("scan-1"))
}

func TestClosedStoreRejectsWrites(t *testing.T) {
	m := NewMemoryStore()
	m.Close()

	_, err := m.AddHTTPRequest("scan-1", HTTPEvidence{})
	assert.ErrorIs(t, err, ErrClosed)
	_, err = m.AddVulnerability("scan-1", finding.Finding{})
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, m.UpdateScanStatistics("scan-1", Statistics{}), ErrClosed)
}

func TestIDsAreUnique(t *testing.T) {
	m := NewMemoryStore()
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		id, err := m.AddHTTPRequest("scan-1", HTTPEvidence{})
		require.NoError(t, err)
		assert.False(t, seen[id])
		seen[id] = true
	}
}
