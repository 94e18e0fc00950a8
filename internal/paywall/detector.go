// Package paywall flags extracted text that looks like a subscription teaser.
package paywall

import (
	"fmt"
	"strings"
)

// Default thresholds. Both are tunable approximations.
const (
	DefaultMinWords           = 150
	DefaultLargeResponseBytes = 50_000
	shortTeaserChars          = 500
)

var (
	weakPhrases = []string{
		"subscribe",
		"subscription",
		"create an account",
		"already a subscriber",
	}
	strongPhrases = []string{
		"paywall",
		"members-only",
		"sign up to continue",
		"login to read",
		"log in to read",
		"subscribe to continue",
		"subscribe to read",
	}
)

// Config tunes the length heuristic.
type Config struct {
	MinWords           int
	LargeResponseBytes int64
}

// Verdict is the classifier output.
type Verdict struct {
	Paywalled bool
	Reason    string
}

// Detector is a pure classifier over extracted text.
type Detector struct {
	minWords  int
	largeBody int64
}

// New builds a Detector, filling zero values with defaults.
func New(cfg Config) *Detector {
	if cfg.MinWords <= 0 {
		cfg.MinWords = DefaultMinWords
	}
	if cfg.LargeResponseBytes <= 0 {
		cfg.LargeResponseBytes = DefaultLargeResponseBytes
	}
	return &Detector{minWords: cfg.MinWords, largeBody: cfg.LargeResponseBytes}
}

// Classify inspects text extracted from a response of rawBytes bytes.
func (d *Detector) Classify(text string, rawBytes int64) Verdict {
	lower := strings.ToLower(text)

	if phrase := firstMatch(lower, strongPhrases); phrase != "" {
		return Verdict{Paywalled: true, Reason: fmt.Sprintf("phrase %q", phrase)}
	}
	weak := countMatches(lower, weakPhrases)
	if weak >= 2 {
		return Verdict{Paywalled: true, Reason: fmt.Sprintf("%d subscription phrases", weak)}
	}
	if weak == 1 && len(strings.TrimSpace(text)) < shortTeaserChars {
		return Verdict{Paywalled: true, Reason: "short text with subscription phrase"}
	}

	words := len(strings.Fields(text))
	if rawBytes > d.largeBody && words < d.minWords {
		return Verdict{
			Paywalled: true,
			Reason:    fmt.Sprintf("%d words from a %d byte response", words, rawBytes),
		}
	}
	return Verdict{}
}

func firstMatch(lower string, phrases []string) string {
	for _, p := range phrases {
		if strings.Contains(lower, p) {
			return p
		}
	}
	return ""
}

func countMatches(lower string, phrases []string) int {
	n := 0
	for _, p := range phrases {
		if strings.Contains(lower, p) {
			n++
		}
	}
	return n
}
