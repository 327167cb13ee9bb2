// -----------------------------------------------------------------------
// Extractor service - pulls text out of downloaded admissions documents
// (PDF via pdfcpu; DOC/DOCX/XLS/XLSX via a best-effort scrape) for the
// Renamer's naming pass.
// -----------------------------------------------------------------------

package pdf

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/nyushi/internal/interfaces"
)

// Extractor implements interfaces.Extractor over in-memory document bytes.
// PDF goes through pdfcpu's content-extraction pipeline, which requires a
// temp file; other formats extract text directly from the supplied bytes.
type Extractor struct {
	logger   arbor.ILogger
	tempDir  string
	maxPages int
}

var _ interfaces.Extractor = (*Extractor)(nil)

// NewExtractor creates an Extractor. maxPages bounds PDF page extraction;
// pages beyond it are dropped, never failed.
func NewExtractor(logger arbor.ILogger, maxPages int) *Extractor {
	tempDir := filepath.Join(os.TempDir(), "nyushi-extract")
	os.MkdirAll(tempDir, 0755)

	if maxPages <= 0 {
		maxPages = 200
	}

	return &Extractor{logger: logger, tempDir: tempDir, maxPages: maxPages}
}

// Extract dispatches to a format-specific extraction path by extension.
// Unsupported extensions return an error rather than silently empty text,
// so the caller can mark the file process-failed instead of renaming off
// nothing.
func (e *Extractor) Extract(ctx context.Context, data []byte, ext string) (*interfaces.ExtractResult, error) {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))

	switch ext {
	case "pdf":
		return e.extractPDF(data)
	case "docx", "xlsx":
		return e.extractOOXML(data)
	case "doc", "xls":
		return e.extractLegacyOffice(data)
	default:
		return nil, fmt.Errorf("unsupported extension for extraction: %q", ext)
	}
}

// extractPDF runs pdfcpu's content extraction over a temp file (pdfcpu has
// no in-memory API) and returns per-page text bounded to maxPages.
func (e *Extractor) extractPDF(data []byte) (result *interfaces.ExtractResult, err error) {
	tempFile := filepath.Join(e.tempDir, fmt.Sprintf("extract_%d_%d.pdf", os.Getpid(), len(data)))
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write temp pdf: %w", err)
	}
	defer os.Remove(tempFile)

	conf := model.NewDefaultConfiguration()
	pdfCtx, err := api.ReadContextFile(tempFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read pdf context: %w", err)
	}

	pageCount := pdfCtx.PageCount
	if pageCount > e.maxPages {
		pageCount = e.maxPages
	}

	outDir := filepath.Join(e.tempDir, fmt.Sprintf("pages_%d_%d", os.Getpid(), len(data)))
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create extraction scratch dir: %w", err)
	}
	defer os.RemoveAll(outDir)

	pages := make([]interfaces.PDFPageContent, 0, pageCount)

	if err := api.ExtractContentFile(tempFile, outDir, nil, conf); err != nil {
		e.logger.Warn().Err(err).Msg("pdf content extraction failed, returning empty pages")
		for n := 1; n <= pageCount; n++ {
			pages = append(pages, interfaces.PDFPageContent{PageNumber: n})
		}
		return &interfaces.ExtractResult{Pages: pages}, nil
	}

	files, _ := os.ReadDir(outDir)
	pageTexts := make(map[int]string)
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		content, err := os.ReadFile(filepath.Join(outDir, f.Name()))
		if err != nil {
			continue
		}
		var pageNum int
		if _, err := fmt.Sscanf(f.Name(), "Content_page_%d", &pageNum); err != nil {
			fmt.Sscanf(f.Name(), "page_%d", &pageNum)
		}
		if pageNum > 0 {
			pageTexts[pageNum] = string(content)
		}
	}

	var fullText strings.Builder
	for n := 1; n <= pageCount; n++ {
		text := pageTexts[n]
		pages = append(pages, interfaces.PDFPageContent{PageNumber: n, Text: text})
		if n > 1 {
			fullText.WriteString("\n\n")
		}
		fullText.WriteString(text)
	}

	return &interfaces.ExtractResult{Text: fullText.String(), Pages: pages}, nil
}

// extractOOXML scrapes visible text out of a DOCX/XLSX zip package by
// reading every XML part and pulling text-node content, skipping markup.
// DOCX keeps text under word/document.xml; XLSX spreads it across
// xl/sharedStrings.xml and per-sheet XML. Walking every part inside the
// zip covers both without format-specific branching.
func (e *Extractor) extractOOXML(data []byte) (*interfaces.ExtractResult, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open office document as zip: %w", err)
	}

	var builder strings.Builder
	for _, f := range r.File {
		if !strings.HasSuffix(f.Name, ".xml") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			continue
		}
		text := extractXMLText(rc)
		rc.Close()
		if text == "" {
			continue
		}
		if builder.Len() > 0 {
			builder.WriteString("\n")
		}
		builder.WriteString(text)
	}

	return &interfaces.ExtractResult{Text: builder.String()}, nil
}

// extractXMLText walks an XML document's token stream, concatenating
// character data. It never fails: malformed XML just stops early with
// whatever text was read so far.
func extractXMLText(r io.Reader) string {
	dec := xml.NewDecoder(r)
	var builder strings.Builder

	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		if cd, ok := tok.(xml.CharData); ok {
			trimmed := strings.TrimSpace(string(cd))
			if trimmed != "" {
				if builder.Len() > 0 {
					builder.WriteString(" ")
				}
				builder.WriteString(trimmed)
			}
		}
	}

	return builder.String()
}

// extractLegacyOffice handles the pre-OOXML binary formats (.doc, .xls),
// which have no practical dependency-free parser in the Go ecosystem. This
// is a best-effort scrape: it scans for runs of printable text long enough
// to be real content and discards short runs, which are almost always
// binary structure bytes rather than document text.
func (e *Extractor) extractLegacyOffice(data []byte) (*interfaces.ExtractResult, error) {
	const minRunLength = 4

	var builder strings.Builder
	var run []rune

	flush := func() {
		if len(run) >= minRunLength {
			if builder.Len() > 0 {
				builder.WriteString(" ")
			}
			builder.WriteString(string(run))
		}
		run = run[:0]
	}

	for _, b := range data {
		r := rune(b)
		if (unicode.IsPrint(r) && r < unicode.MaxASCII) || r == ' ' {
			run = append(run, r)
		} else {
			flush()
		}
	}
	flush()

	return &interfaces.ExtractResult{Text: builder.String()}, nil
}
