package scope

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicyAllows(t *testing.T) {
	policy, err := NewPolicy("http://example.com/app")
	require.NoError(t, err)

	tests := []struct {
		name string
		url  string
		want bool
	}{
		{"same host", "http://example.com/page", true},
		{"www variant", "http://www.example.com/page", true},
		{"subdomain of registered domain", "http://api.example.com/v1", true},
		{"relative URL", "/login?next=/home", true},
		{"loopback", "http://127.0.0.1:8080/debug", true},
		{"private 10", "http://10.0.0.5/", true},
		{"private 192.168", "http://192.168.1.1/router", true},
		{"other domain", "http://evil.test/ping", false},
		{"lookalike domain", "http://example.com.evil.test/", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, policy.Allows(tt.url), tt.url)
		})
	}
}

func TestPolicyWWWVariants(t *testing.T) {
	policy, err := NewPolicy("https://www.example.com/")
	require.NoError(t, err)

	assert.True(t, policy.Allows("https://example.com/page"))
	assert.True(t, policy.Allows("https://www.example.com/page"))
}

func TestNewPolicyRejectsHostless(t *testing.T) {
	_, err := NewPolicy("not a url at all ://")
	if err == nil {
		_, err = NewPolicy("/relative/only")
	}
	require.Error(t, err)
}

func TestBlockedExtension(t *testing.T) {
	assert.True(t, BlockedExtension("http://example.com/logo.png"))
	assert.True(t, BlockedExtension("http://example.com/doc.PDF"))
	assert.True(t, BlockedExtension("http://example.com/archive.tar"))
	assert.False(t, BlockedExtension("http://example.com/index.php"))
	assert.False(t, BlockedExtension("http://example.com/page"))
}

func TestNormalizeIdempotent(t *testing.T) {
	urls := []string{
		"HTTP://Example.COM/Path/?b=2&a=1#frag",
		"http://example.com/path/",
		"http://example.com",
		"http://example.com/?z=3&a=1&m=2",
	}
	for _, u := range urls {
		once := Normalize(u)
		assert.Equal(t, once, Normalize(once), u)
	}
}

func TestNormalizeCanonicalForm(t *testing.T) {
	assert.Equal(t, "http://example.com/path?a=1&b=2",
		Normalize("HTTP://Example.com/path/?b=2&a=1#section"))
	// Root keeps its slash.
	assert.Equal(t, "http://example.com/", Normalize("http://example.com"))
}

func TestStripQuery(t *testing.T) {
	assert.Equal(t, "http://example.com/search",
		StripQuery("http://example.com/search?q=test&page=2"))
}
