package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"path"
	"strings"

	"github.com/JakeFAU/research-scraper/internal/extract"
)

// Top-level areas of the artifact layout.
const (
	RawArea   = "raw"
	CleanArea = "clean"
)

const maxIDLength = 80

// Domain returns the lowercased host of rawURL restricted to [a-z0-9._-].
func Domain(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "unknown"
	}
	host := sanitize(strings.ToLower(u.Hostname()), false)
	if host == "" {
		return "unknown"
	}
	return host
}

// ArtifactID derives a filesystem-safe, collision-free name from a task id.
// Two ids that sanitise to the same text still differ in the hash suffix.
func ArtifactID(taskID string) string {
	sum := sha256.Sum256([]byte(taskID))
	suffix := hex.EncodeToString(sum[:])[:8]
	base := sanitize(taskID, true)
	if len(base) > maxIDLength {
		base = base[:maxIDLength]
	}
	if base == "" {
		return suffix
	}
	return base + "-" + suffix
}

// RawPath is the relative location of a task's raw bytes.
func RawPath(rawURL, taskID, contentType string) string {
	return path.Join(RawArea, Domain(rawURL), ArtifactID(taskID)+Extension(contentType, rawURL))
}

// CleanPath is the relative location of a task's cleaned text.
func CleanPath(rawURL, taskID string) string {
	return path.Join(CleanArea, Domain(rawURL), ArtifactID(taskID)+".txt")
}

// Extension picks the raw artifact file extension.
func Extension(contentType, rawURL string) string {
	switch extract.DetectKind(contentType, rawURL) {
	case extract.KindHTML:
		return ".html"
	case extract.KindPDF:
		return ".pdf"
	case extract.KindText:
		return ".txt"
	default:
		return ".bin"
	}
}

func sanitize(s string, allowUpper bool) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		case allowUpper && r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return strings.Trim(b.String(), "._")
}
