package document

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/dhopegraphics/hivedemia-web-version-sub001/internal/filetype"
	"github.com/dhopegraphics/hivedemia-web-version-sub001/internal/mupdf"
	"github.com/dhopegraphics/hivedemia-web-version-sub001/internal/tokens"
)

// PDFExtractor reads the text layer of a PDF.
type PDFExtractor interface {
	Extract(ctx context.Context, data []byte) (*mupdf.Result, error)
}

// Converter turns office documents into PDF.
type Converter interface {
	ToPDF(ctx context.Context, data []byte, name string) ([]byte, error)
}

// Preparer fetches a reference, detects its type and extracts text.
type Preparer struct {
	Source   Source
	Detector *filetype.Detector
	PDF      PDFExtractor
	Office   Converter // nil rejects office documents
	// MinPDFChars is the text needed before a PDF counts as text rather than a scan.
	// Zero accepts any non-whitespace text.
	MinPDFChars int
}

func NewPreparer(src Source, pdf PDFExtractor, office Converter) *Preparer {
	return &Preparer{Source: src, Detector: filetype.New(), PDF: pdf, Office: office}
}

// Prepare returns the document's text, or its raw bytes when there is no text layer. Every
// failure is a *FilePreparationError.
func (p *Preparer) Prepare(ctx context.Context, ref Reference) (*Prepared, error) {
	name := ref.Name
	fail := func(stage string, err error) (*Prepared, error) {
		return nil, &FilePreparationError{Name: name, Stage: stage, Err: err}
	}

	fetched, err := p.Source.Fetch(ctx, ref)
	if err != nil {
		return fail("fetch", err)
	}
	if name == "" {
		name = fetched.Name
	}
	out := &Prepared{Name: name, Role: ref.Role}
	if out.Role == "" {
		out.Role = RolePrimary
	}

	if ref.Text != "" {
		out.MIMEType = "text/plain"
		out.Text = ref.Text
		out.Tokens = tokens.Estimate(out.Text)
		return out, nil
	}

	info := p.Detector.DetectBytes(fetched.Data, name)
	out.MIMEType = info.MIMEType

	switch info.Kind {
	case filetype.KindText:
		out.Text = strings.ToValidUTF8(string(fetched.Data), "")
	case filetype.KindPDF:
		if err := p.extractPDF(ctx, out, fetched.Data); err != nil {
			return fail("extract", err)
		}
	case filetype.KindOffice:
		if p.Office == nil {
			return fail("extract", fmt.Errorf("%s cannot be converted on this server", info.Description))
		}
		pdf, err := p.Office.ToPDF(ctx, fetched.Data, name)
		if err != nil {
			return fail("extract", err)
		}
		out.MIMEType = "application/pdf"
		if err := p.extractPDF(ctx, out, pdf); err != nil {
			return fail("extract", err)
		}
	case filetype.KindImage:
		out.Data = fetched.Data
	default:
		return fail("detect", errors.New(info.Description))
	}

	out.Text = strings.TrimSpace(out.Text)
	if out.Text == "" && len(out.Data) == 0 {
		return fail("extract", errors.New("no readable content"))
	}
	out.Tokens = tokens.Estimate(out.Text)

	log.Debug().
		Str("file", name).
		Str("mime", out.MIMEType).
		Int("pages", out.Pages).
		Int("tokens", out.Tokens).
		Bool("binary", len(out.Data) > 0).
		Msg("prepared document")
	return out, nil
}

func (p *Preparer) extractPDF(ctx context.Context, out *Prepared, data []byte) error {
	if p.PDF == nil {
		return errors.New("pdf extraction is not configured")
	}
	res, err := p.PDF.Extract(ctx, data)
	if err != nil {
		return err
	}
	out.Pages = res.Pages
	if !res.HasExtractableText(p.MinPDFChars) {
		// Scanned document: the primary service can read the PDF itself.
		out.Data = data
		return nil
	}
	out.Text = res.Text
	return nil
}
