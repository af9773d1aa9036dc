package layout

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dslipak/pdf"
)

// PDFText is a pure-Go fallback partitioner for deployments without a layout
// service. It extracts plain text only, one element per page; tables and
// images are not recovered.
type PDFText struct{}

// NewPDFText creates the fallback partitioner.
func NewPDFText() *PDFText {
	return &PDFText{}
}

// Partition extracts per-page text elements from a PDF. The reader is
// spooled to a temp file because the PDF parser needs random access.
func (p *PDFText) Partition(ctx context.Context, r io.Reader, filename string) ([]Element, error) {
	tmp, err := os.CreateTemp("", "layout-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("failed to spool PDF: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("failed to close temp file: %w", err)
	}

	reader, err := pdf.Open(tmp.Name())
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}

	var elements []Element
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// Skip unreadable pages rather than failing the whole document
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		elements = append(elements, Element{Kind: KindText, Text: text})
	}

	return elements, nil
}
