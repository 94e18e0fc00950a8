// Package extract turns fetched bytes into clean text through ordered
// per-content-type strategy chains.
package extract

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/url"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/JakeFAU/research-scraper/internal/metrics"
	"github.com/JakeFAU/research-scraper/internal/scraper"
)

// Kind is the extraction family chosen from the content type.
type Kind string

// Supported kinds.
const (
	KindHTML    Kind = "html"
	KindPDF     Kind = "pdf"
	KindText    Kind = "text"
	KindUnknown Kind = "unknown"
)

// Defaults for the acceptance check.
const (
	DefaultMinChars      = 100
	DefaultMinParagraphs = 1
)

// Input is one fetched document.
type Input struct {
	URL         string
	ContentType string
	Body        []byte
}

// Extracted is the output of a successful strategy.
type Extracted struct {
	Title     string
	Language  string
	Text      string
	WordCount int
	Strategy  string
}

// Strategy is one way of pulling text out of a document.
type Strategy interface {
	Name() string
	Extract(ctx context.Context, in Input) (Extracted, error)
}

// Config controls the acceptance check.
type Config struct {
	MinChars      int
	MinParagraphs int
}

// Engine owns the strategy chains and runs them in order.
type Engine struct {
	cfg    Config
	chains map[Kind][]Strategy
	logger *zap.Logger
}

// DefaultChains returns the built-in chains for every supported kind.
func DefaultChains() map[Kind][]Strategy {
	return map[Kind][]Strategy{
		KindHTML: {ArticleStrategy{}, ReadabilityStrategy{}, TagStripStrategy{}},
		KindPDF:  {PDFStrategy{}},
		KindText: {PlainTextStrategy{}},
	}
}

// New builds an Engine with the default chains.
func New(cfg Config, logger *zap.Logger) *Engine {
	return NewWithChains(cfg, DefaultChains(), logger)
}

// NewWithChains builds an Engine with caller-supplied chains.
func NewWithChains(cfg Config, chains map[Kind][]Strategy, logger *zap.Logger) *Engine {
	if cfg.MinChars <= 0 {
		cfg.MinChars = DefaultMinChars
	}
	if cfg.MinParagraphs <= 0 {
		cfg.MinParagraphs = DefaultMinParagraphs
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{cfg: cfg, chains: chains, logger: logger}
}

// Extract returns the first strategy output that passes the acceptance check.
// Every failure wraps scraper.ErrExtractionFailed.
func (e *Engine) Extract(ctx context.Context, in Input) (Extracted, error) {
	kind := DetectKind(in.ContentType, in.URL)
	chain := e.chains[kind]
	if len(chain) == 0 {
		return Extracted{}, fmt.Errorf("%w: %w %q", scraper.ErrExtractionFailed, scraper.ErrUnsupportedContent, in.ContentType)
	}

	var reasons []string
	for _, strategy := range chain {
		if err := ctx.Err(); err != nil {
			return Extracted{}, fmt.Errorf("%w: %w", scraper.ErrExtractionFailed, err)
		}
		out, err := runStrategy(ctx, strategy, in)
		if err != nil {
			e.logger.Debug("extraction strategy failed",
				zap.String("url", in.URL),
				zap.String("strategy", strategy.Name()),
				zap.Error(err),
			)
			reasons = append(reasons, fmt.Sprintf("%s: %v", strategy.Name(), err))
			continue
		}
		out.Text = Normalize(out.Text)
		if reason := e.reject(out.Text); reason != "" {
			e.logger.Debug("extraction strategy rejected",
				zap.String("url", in.URL),
				zap.String("strategy", strategy.Name()),
				zap.String("reason", reason),
			)
			reasons = append(reasons, fmt.Sprintf("%s: %s", strategy.Name(), reason))
			continue
		}
		out.Strategy = strategy.Name()
		out.Title = strings.Join(strings.Fields(out.Title), " ")
		out.Language = normalizeLangTag(out.Language)
		if out.Language == "" {
			out.Language = DetectLanguage(out.Text)
		}
		out.WordCount = len(strings.Fields(out.Text))
		metrics.ObserveExtraction(out.Strategy)
		return out, nil
	}
	return Extracted{}, fmt.Errorf("%w: %s", scraper.ErrExtractionFailed, strings.Join(reasons, "; "))
}

// runStrategy isolates a strategy so a panic inside a parser only fails that step.
func runStrategy(ctx context.Context, s Strategy, in Input) (out Extracted, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = Extracted{}
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.Extract(ctx, in)
}

func (e *Engine) reject(text string) string {
	letters := 0
	for _, r := range text {
		if unicode.IsLetter(r) {
			letters++
		}
	}
	if letters < e.cfg.MinChars {
		return fmt.Sprintf("only %d alphabetic characters", letters)
	}
	if n := countParagraphs(text); n < e.cfg.MinParagraphs {
		return fmt.Sprintf("only %d paragraphs", n)
	}
	return ""
}

// DetectKind maps a content type, falling back to the URL suffix, to a Kind.
func DetectKind(contentType, rawURL string) Kind {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(contentType))
	}
	switch {
	case strings.Contains(mediaType, "pdf"):
		return KindPDF
	case strings.Contains(mediaType, "html"):
		return KindHTML
	case mediaType == "text/plain":
		return KindText
	}
	if u, err := url.Parse(rawURL); err == nil && strings.HasSuffix(strings.ToLower(u.Path), ".pdf") {
		return KindPDF
	}
	return KindUnknown
}

// Normalize unifies line endings, trims every line and collapses blank-line runs.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	blank := true
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			if !blank {
				out = append(out, "")
			}
			blank = true
			continue
		}
		out = append(out, line)
		blank = false
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

func countParagraphs(text string) int {
	n := 0
	for _, block := range strings.Split(text, "\n\n") {
		if strings.TrimSpace(block) != "" {
			n++
		}
	}
	return n
}

// Summarize returns a bounded excerpt of text cut at a word boundary.
func Summarize(text string, maxChars int) string {
	flat := strings.Join(strings.Fields(text), " ")
	if maxChars <= 0 || len([]rune(flat)) <= maxChars {
		return flat
	}
	runes := []rune(flat)[:maxChars]
	cut := string(runes)
	if i := strings.LastIndexByte(cut, ' '); i > maxChars/2 {
		cut = cut[:i]
	}
	return strings.TrimRightFunc(cut, func(r rune) bool { return unicode.IsPunct(r) || unicode.IsSpace(r) }) + "..."
}

// IsUnsupported reports whether err came from a content type with no chain.
func IsUnsupported(err error) bool {
	return errors.Is(err, scraper.ErrUnsupportedContent)
}
