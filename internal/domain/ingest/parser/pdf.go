package parser

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

var (
	ErrUnreadablePDF = errors.New("unreadable PDF")
	ErrNoTextInPDF   = errors.New("no extractable text in PDF")
)

// DefaultMinPageText is the shortest trimmed page text kept for pattern
// extraction. Shorter pages are usually scans or blank separators.
const DefaultMinPageText = 20

// Page is the plain text of one PDF page.
type Page struct {
	Number int // 1-based
	Text   string
}

// PDFReader extracts per-page plain text from PDF bytes.
type PDFReader struct {
	MinPageText int
}

func NewPDFReader(minPageText int) *PDFReader {
	if minPageText <= 0 {
		minPageText = DefaultMinPageText
	}
	return &PDFReader{MinPageText: minPageText}
}

// ReadPages returns the pages with enough text to be worth scanning.
// Pages that fail to decode are skipped; a file with no usable page is an
// error.
func (r *PDFReader) ReadPages(data []byte) (pages []Page, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			pages = nil
			err = fmt.Errorf("%w: panic while decoding: %v", ErrUnreadablePDF, rec)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadablePDF, err)
	}

	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if len(strings.TrimSpace(text)) < r.MinPageText {
			continue
		}
		pages = append(pages, Page{Number: i, Text: text})
	}

	if len(pages) == 0 {
		return nil, ErrNoTextInPDF
	}
	return pages, nil
}
