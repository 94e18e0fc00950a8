package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
)

// nonContentSelectors lists elements stripped before pulling text.
const nonContentSelectors = "script, style, noscript, nav, footer, aside, header, form, iframe, svg"

const blockSelectors = "p, h1, h2, h3, h4, h5, h6, li, blockquote, pre, figcaption, dd, td"

// articleSelectors are tried in order; the first one holding text wins.
var articleSelectors = []string{
	"article",
	"main",
	"[role=main]",
	"[itemprop=articleBody]",
	".article-body",
	".article-content",
	".entry-content",
	".post-content",
	".story-body",
	"#content",
}

var errNoContent = errors.New("no content found")

// ArticleStrategy pulls paragraphs from the page's main article container.
type ArticleStrategy struct{}

// Name implements Strategy.
func (ArticleStrategy) Name() string { return "article" }

// Extract implements Strategy.
func (ArticleStrategy) Extract(_ context.Context, in Input) (Extracted, error) {
	doc, err := parseDocument(in.Body)
	if err != nil {
		return Extracted{}, err
	}
	for _, selector := range articleSelectors {
		sel := doc.Find(selector).First()
		if sel.Length() == 0 {
			continue
		}
		sel.Find(nonContentSelectors).Remove()
		if text := blocksText(sel); text != "" {
			return Extracted{
				Title:    documentTitle(doc),
				Language: documentLang(doc),
				Text:     text,
			}, nil
		}
	}
	return Extracted{}, errNoContent
}

// ReadabilityStrategy runs a readability port over the whole document.
type ReadabilityStrategy struct{}

// Name implements Strategy.
func (ReadabilityStrategy) Name() string { return "readability" }

// Extract implements Strategy.
func (ReadabilityStrategy) Extract(_ context.Context, in Input) (Extracted, error) {
	pageURL, err := url.Parse(in.URL)
	if err != nil {
		return Extracted{}, fmt.Errorf("parse url: %w", err)
	}
	article, err := readability.FromReader(bytes.NewReader(in.Body), pageURL)
	if err != nil {
		return Extracted{}, fmt.Errorf("readability: %w", err)
	}

	text := ""
	if content := strings.TrimSpace(article.Content); content != "" {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(content)); err == nil {
			text = blocksText(doc.Selection)
		}
	}
	if text == "" {
		text = strings.TrimSpace(article.TextContent)
	}
	if text == "" {
		return Extracted{}, errNoContent
	}

	out := Extracted{Title: strings.TrimSpace(article.Title), Text: text}
	if doc, err := parseDocument(in.Body); err == nil {
		out.Language = documentLang(doc)
		if out.Title == "" {
			out.Title = documentTitle(doc)
		}
	}
	return out, nil
}

// TagStripStrategy is the last resort: all visible body text.
type TagStripStrategy struct{}

// Name implements Strategy.
func (TagStripStrategy) Name() string { return "tagstrip" }

// Extract implements Strategy.
func (TagStripStrategy) Extract(_ context.Context, in Input) (Extracted, error) {
	doc, err := parseDocument(in.Body)
	if err != nil {
		return Extracted{}, err
	}
	body := doc.Find("body").First()
	if body.Length() == 0 {
		body = doc.Selection
	}
	body.Find(nonContentSelectors).Remove()

	text := blocksText(body)
	if text == "" {
		text = visibleLines(body.Text())
	}
	if text == "" {
		return Extracted{}, errNoContent
	}
	return Extracted{
		Title:    documentTitle(doc),
		Language: documentLang(doc),
		Text:     text,
	}, nil
}

// PlainTextStrategy passes text/plain bodies through.
type PlainTextStrategy struct{}

// Name implements Strategy.
func (PlainTextStrategy) Name() string { return "plaintext" }

// Extract implements Strategy.
func (PlainTextStrategy) Extract(_ context.Context, in Input) (Extracted, error) {
	text := strings.ToValidUTF8(string(in.Body), "")
	if strings.TrimSpace(text) == "" {
		return Extracted{}, errNoContent
	}
	return Extracted{Text: text}, nil
}

func parseDocument(body []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

// blocksText joins the outermost block elements under sel, one paragraph each.
func blocksText(sel *goquery.Selection) string {
	var paragraphs []string
	sel.Find(blockSelectors).Each(func(_ int, s *goquery.Selection) {
		if s.ParentsFiltered(blockSelectors).Length() > 0 {
			return
		}
		if text := strings.Join(strings.Fields(s.Text()), " "); text != "" {
			paragraphs = append(paragraphs, text)
		}
	})
	return strings.Join(paragraphs, "\n\n")
}

func visibleLines(text string) string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

// documentTitle prefers <title>, then og:title.
func documentTitle(doc *goquery.Document) string {
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		return title
	}
	if ogTitle, exists := doc.Find("meta[property='og:title']").Attr("content"); exists {
		return strings.TrimSpace(ogTitle)
	}
	return ""
}

func documentLang(doc *goquery.Document) string {
	if lang, exists := doc.Find("html").First().Attr("lang"); exists {
		return strings.TrimSpace(lang)
	}
	if lang, exists := doc.Find("meta[http-equiv='content-language']").Attr("content"); exists {
		return strings.TrimSpace(lang)
	}
	return ""
}
