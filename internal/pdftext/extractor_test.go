package pdftext

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsPDF(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		mimeType string
		want     bool
	}{
		{"pdf extension", "invoice.pdf", "", true},
		{"uppercase extension", "INVOICE.PDF", "", true},
		{"mime type", "attachment.bin", "application/pdf", true},
		{"mime type with params", "doc", "application/pdf; name=x", true},
		{"spreadsheet", "sheet.xlsx", "application/vnd.ms-excel", false},
		{"plain text", "notes.txt", "text/plain", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsPDF(tt.filename, tt.mimeType))
		})
	}
}

func TestPDFExtractorMalformedInput(t *testing.T) {
	e := NewPDFExtractor()

	res := e.Extract([]byte("definitely not a pdf"))
	assert.True(t, res.Skipped)
	assert.Empty(t, res.Text)
}

func TestPDFExtractorEmptyInput(t *testing.T) {
	e := NewPDFExtractor()

	res := e.Extract(nil)
	assert.True(t, res.Skipped)
}

func TestNoop(t *testing.T) {
	res := Noop{}.Extract([]byte("%PDF-1.4"))
	assert.True(t, res.Skipped)
	assert.Empty(t, res.Text)
}
