// Package pdftext converts PDF attachment bytes into plain text for the
// extraction engine. Text extraction is a capability that may be absent:
// callers get an empty result with Skipped set rather than an error, so a
// missing or broken extractor can never abort the pipeline.
package pdftext

import (
	"bytes"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Result is the outcome of a text-extraction attempt.
type Result struct {
	// Text is the extracted plain text, empty when extraction was skipped
	// or produced nothing.
	Text string

	// Skipped is set when no extraction capability was available or the
	// document could not be read.
	Skipped bool
}

// Extractor converts PDF content bytes into plain text.
type Extractor interface {
	Extract(content []byte) Result
}

// IsPDF reports whether an attachment's filename extension or declared
// MIME type indicates a PDF document.
func IsPDF(filename, mimeType string) bool {
	if strings.HasPrefix(strings.ToLower(mimeType), "application/pdf") {
		return true
	}
	return strings.EqualFold(filepath.Ext(filename), ".pdf")
}

// PDFExtractor extracts text using the ledongthuc/pdf reader.
type PDFExtractor struct{}

// NewPDFExtractor creates a PDF-backed extractor.
func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{}
}

// Extract reads the plain text of a PDF document. Malformed documents
// yield a skipped result, never an error.
func (e *PDFExtractor) Extract(content []byte) (res Result) {
	// The pdf package panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			res = Result{Skipped: true}
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return Result{Skipped: true}
	}

	textReader, err := reader.GetPlainText()
	if err != nil {
		return Result{Skipped: true}
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(textReader); err != nil {
		return Result{Skipped: true}
	}

	return Result{Text: buf.String()}
}

// Noop is the fallback extractor used when PDF extraction is disabled.
// It always reports the extraction as skipped.
type Noop struct{}

// Extract implements Extractor.
func (Noop) Extract(_ []byte) Result {
	return Result{Skipped: true}
}
