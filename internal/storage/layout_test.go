package storage

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomain(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"https://News.Example.COM/a/b":  "news.example.com",
		"http://example.com:8080/x":     "example.com",
		"https://[::1]/":                "1",
		"not a url":                     "unknown",
		"":                              "unknown",
		"https://xn--bcher-kva.example": "xn--bcher-kva.example",
	}
	for in, want := range tests {
		assert.Equal(t, want, Domain(in), in)
	}
}

func TestArtifactIDIsSafeAndCollisionFree(t *testing.T) {
	t.Parallel()

	safe := regexp.MustCompile(`^[A-Za-z0-9._-]+$`)
	a := ArtifactID("q1/r 1")
	b := ArtifactID("q1:r_1")
	assert.Regexp(t, safe, a)
	assert.Regexp(t, safe, b)
	assert.NotEqual(t, a, b, "ids that sanitise alike must still differ")
	assert.Equal(t, a, ArtifactID("q1/r 1"), "derivation is deterministic")
	assert.Regexp(t, `^[0-9a-f]{8}$`, ArtifactID("../.."))
}

func TestPaths(t *testing.T) {
	t.Parallel()

	raw := RawPath("https://example.com/report.pdf", "t1", "application/pdf")
	assert.Regexp(t, `^raw/example\.com/t1-[0-9a-f]{8}\.pdf$`, raw)
	clean := CleanPath("https://example.com/report.pdf", "t1")
	assert.Regexp(t, `^clean/example\.com/t1-[0-9a-f]{8}\.txt$`, clean)

	assert.Equal(t, ".html", Extension("text/html; charset=utf-8", ""))
	assert.Equal(t, ".txt", Extension("text/plain", ""))
	assert.Equal(t, ".bin", Extension("image/png", "https://example.com/a.png"))
}
