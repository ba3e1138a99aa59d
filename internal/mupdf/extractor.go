// Package mupdf extracts plain text from PDF documents through go-fitz (MuPDF bindings).
package mupdf

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode"

	fitz "github.com/gen2brain/go-fitz"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/rs/zerolog/log"
)

// TempPrefix names the temporary files Extract writes.
const TempPrefix = "quizdoc-"

// DefaultMinChars is the non-whitespace character count below which a PDF is treated as scanned.
const DefaultMinChars = 300

// ErrTooManyPages is returned when a document exceeds Extractor.MaxPages.
var ErrTooManyPages = errors.New("pdf has too many pages")

// Extractor pulls text from every page of a PDF.
type Extractor struct {
	// MaxPages rejects larger documents before any page is rendered. Zero disables the check.
	MaxPages int
}

// Result is the extracted text of one document.
type Result struct {
	Text  string
	Pages int
	// EmptyPages counts pages with no text layer (scans).
	EmptyPages int
}

// HasExtractableText reports whether the text layer holds at least minChars non-whitespace
// runes. Headers and page numbers alone do not make a scan readable.
func (r *Result) HasExtractableText(minChars int) bool {
	if minChars <= 0 {
		minChars = 1
	}
	n := 0
	for _, c := range r.Text {
		if !unicode.IsSpace(c) {
			n++
			if n >= minChars {
				return true
			}
		}
	}
	return false
}

func NewExtractor(maxPages int) *Extractor {
	return &Extractor{MaxPages: maxPages}
}

// Extract writes data to a temp file, validates it with pdfcpu and reads page text with go-fitz.
func (e *Extractor) Extract(ctx context.Context, data []byte) (*Result, error) {
	f, err := os.CreateTemp("", TempPrefix+"*.pdf")
	if err != nil {
		return nil, fmt.Errorf("create temp pdf: %w", err)
	}
	defer os.Remove(f.Name())
	if _, err := f.Write(data); err != nil {
		f.Close()
		return nil, fmt.Errorf("write temp pdf: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close temp pdf: %w", err)
	}

	pages, err := api.PageCountFile(f.Name())
	if err != nil {
		return nil, fmt.Errorf("pdf page count failed: %w", err)
	}
	if e.MaxPages > 0 && pages > e.MaxPages {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyPages, pages, e.MaxPages)
	}

	doc, err := fitz.New(f.Name())
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer doc.Close()

	res := &Result{Pages: doc.NumPage()}
	var b strings.Builder
	for i := 0; i < doc.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		raw, err := doc.Text(i)
		if err != nil {
			log.Warn().Err(err).Int("page", i+1).Msg("failed to extract text from page")
			res.EmptyPages++
			continue
		}
		text := cleanText(raw, i+1)
		if text == "" {
			res.EmptyPages++
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(text)
	}
	res.Text = b.String()

	log.Debug().Int("pages", res.Pages).Int("empty_pages", res.EmptyPages).Int("chars", len(res.Text)).Msg("extracted pdf text")
	return res, nil
}
