// Package pdftext extracts plain text from PDF files.
package pdftext

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Extract opens the PDF at path and returns the text of every page that has
// any, each followed by a newline. Pages without text (scanned images) are skipped.
func Extract(path string) (string, error) {
	file, reader, err := openPDF(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer file.Close()
	return extractPages(reader)
}

// ExtractReader is Extract for an in-memory or already opened source.
func ExtractReader(r io.ReaderAt, size int64) (string, error) {
	reader, err := newReader(r, size)
	if err != nil {
		return "", fmt.Errorf("read pdf: %w", err)
	}
	return extractPages(reader)
}

func extractPages(reader *pdf.Reader) (text string, err error) {
	// The parser panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("parse pdf: %v", r)
		}
	}()
	var sb strings.Builder
	total := reader.NumPage()
	for i := 1; i <= total; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("extract page %d: %w", i, err)
		}
		if strings.TrimSpace(pageText) == "" {
			continue
		}
		sb.WriteString(pageText)
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

func openPDF(path string) (f *os.File, r *pdf.Reader, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			f, r, err = nil, nil, fmt.Errorf("parse pdf: %v", rec)
		}
	}()
	return pdf.Open(path)
}

func newReader(ra io.ReaderAt, size int64) (r *pdf.Reader, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r, err = nil, fmt.Errorf("parse pdf: %v", rec)
		}
	}()
	return pdf.NewReader(ra, size)
}
