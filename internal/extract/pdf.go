package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFStrategy extracts the plain text layer of a PDF.
type PDFStrategy struct{}

// Name implements Strategy.
func (PDFStrategy) Name() string { return "pdf" }

// Extract implements Strategy.
func (PDFStrategy) Extract(_ context.Context, in Input) (Extracted, error) {
	reader, err := pdf.NewReader(bytes.NewReader(in.Body), int64(len(in.Body)))
	if err != nil {
		return Extracted{}, fmt.Errorf("open pdf: %w", err)
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return Extracted{}, fmt.Errorf("pdf text: %w", err)
	}
	raw, err := io.ReadAll(plain)
	if err != nil {
		return Extracted{}, fmt.Errorf("read pdf text: %w", err)
	}
	text := strings.ToValidUTF8(string(raw), "")
	if strings.TrimSpace(text) == "" {
		return Extracted{}, errNoContent
	}
	return Extracted{
		Title: strings.TrimSpace(reader.Trailer().Key("Info").Key("Title").Text()),
		Text:  text,
	}, nil
}
