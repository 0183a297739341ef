// Package ingest implements the document loader and chunker: turning
// raw document bytes into metadata-enriched, retrievable chunks.
package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/eduassist/tutorbridge/domain"
	"github.com/eduassist/tutorbridge/rag"
	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"
)

// Sentinel errors surfaced by the loader. Ingestion errors are per-file
// and never abort a batch (see Orchestrator).
var (
	ErrUnsupportedFormat = errors.New("ingest: unsupported document format")
	ErrOCRUnavailable    = errors.New("ingest: OCR subsystem unavailable")
)

// OCRThreshold is the average-characters-per-page below which a PDF is
// treated as image-based and routed through OCR.
const OCRThreshold = 100

// Loader turns document bytes into a slice of Pages. PDF is the only
// format that triggers OCR fallback; plain text is passed through as a
// single page.
type Loader struct {
	ocr         OCREngine
	ocrDPI      float64
	samplePages int
	httpClient  *http.Client
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithOCREngine overrides the OCR engine used for image-based PDFs.
// NewLoader defaults to NewTesseractEngine; a nil engine makes
// image-based PDFs fail with ErrOCRUnavailable.
func WithOCREngine(engine OCREngine) LoaderOption {
	return func(l *Loader) { l.ocr = engine }
}

// WithOCRDPI sets the rasterization resolution used before OCR. Spec
// requires at least 200 DPI.
func WithOCRDPI(dpi float64) LoaderOption {
	return func(l *Loader) { l.ocrDPI = dpi }
}

// WithHTTPClient overrides the client LoadURL uses to fetch web pages.
func WithHTTPClient(client *http.Client) LoaderOption {
	return func(l *Loader) { l.httpClient = client }
}

// NewLoader builds a Loader with sensible defaults: a Tesseract OCR
// engine rasterizing at 200 DPI, sampling the first 5 pages to decide
// whether OCR is needed, and a 30-second HTTP client for LoadURL.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		ocr:         NewTesseractEngine(),
		ocrDPI:      200,
		samplePages: 5,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load extracts page-level text from a document. source identifies the
// document (used for Page.Source and logging), and its file extension
// selects the strategy. The returned bool reports whether OCR fallback was used,
// for the orchestrator's per-file ocr_used reporting.
func (l *Loader) Load(ctx context.Context, source string, data []byte) ([]domain.Page, bool, error) {
	ext := strings.ToLower(filepath.Ext(source))
	switch ext {
	case ".pdf":
		return l.loadPDF(ctx, source, data)
	case ".txt", ".md":
		return []domain.Page{{Source: source, PageIndex: 0, RawText: string(data), PageCount: 1}}, false, nil
	default:
		rag.GlobalLogger.Error("unsupported document format", "source", source, "ext", ext)
		return nil, false, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
}

func (l *Loader) loadPDF(ctx context.Context, source string, data []byte) ([]domain.Page, bool, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, false, fmt.Errorf("ingest: open pdf %s: %w", source, err)
	}

	numPages := reader.NumPage()
	pages := make([]domain.Page, numPages)
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		var text string
		if !page.V.IsNull() {
			if t, err := page.GetPlainText(nil); err == nil {
				text = t
			} else {
				rag.GlobalLogger.Warn("direct pdf extraction failed for page", "source", source, "page", i, "error", err)
			}
		}
		pages[i-1] = domain.Page{Source: source, PageIndex: i - 1, RawText: text, PageCount: numPages}
	}

	sample := l.samplePages
	if sample > numPages {
		sample = numPages
	}
	avg := avgCharsPerPage(pages, sample)
	if avg >= OCRThreshold || sample == 0 {
		return pages, false, nil
	}

	rag.GlobalLogger.Info("pdf looks image-based, falling back to OCR", "source", source, "avg_chars_per_page", avg)
	if l.ocr == nil {
		return nil, false, fmt.Errorf("%w: %s", ErrOCRUnavailable, source)
	}
	pages, err = l.ocrPages(ctx, source, data, pages)
	return pages, true, err
}

func avgCharsPerPage(pages []domain.Page, sample int) float64 {
	if sample == 0 {
		return 0
	}
	total := 0
	for i := 0; i < sample; i++ {
		total += len(strings.TrimSpace(pages[i].RawText))
	}
	return float64(total) / float64(sample)
}

// ocrPages rasterizes every page and runs OCR over it, replacing each
// page's RawText. Rasterization or recognition failure on a single page
// is logged and that page is left with empty text; the document as a
// whole never fails because of one bad page.
func (l *Loader) ocrPages(ctx context.Context, source string, data []byte, pages []domain.Page) ([]domain.Page, error) {
	images, err := RasterizePDF(data, l.ocrDPI)
	if err != nil {
		return nil, fmt.Errorf("ingest: rasterize %s: %w", source, err)
	}

	var wg sync.WaitGroup
	for i := range pages {
		if i >= len(images) {
			break
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			select {
			case <-ctx.Done():
				return
			default:
			}
			text, err := l.ocr.Recognize(ctx, images[i])
			if err != nil {
				rag.GlobalLogger.Warn("ocr failed for page, emitting empty text", "source", source, "page", i, "error", err)
				pages[i].RawText = ""
				return
			}
			pages[i].RawText = text
		}(i)
	}
	wg.Wait()
	return pages, nil
}

// LoadFile is a convenience wrapper reading source off disk before
// calling Load.
func (l *Loader) LoadFile(ctx context.Context, path string) ([]domain.Page, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false, fmt.Errorf("ingest: read %s: %w", path, err)
	}
	return l.Load(ctx, path, data)
}

// LoadURL ingests a web page as a single-page pseudo-document: it
// fetches pageURL and strips markup down to its visible text, which is
// what /process-webpages requires. It extracts text directly rather
// than downloading to a temp file for a second Load pass, since a web
// page is never a PDF that needs its own extraction strategy.
func (l *Loader) LoadURL(ctx context.Context, pageURL string) (domain.Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return domain.Page{}, fmt.Errorf("ingest: build request for %s: %w", pageURL, err)
	}
	req.Header.Set("User-Agent", "tutorbridge-ingest/1.0")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return domain.Page{}, fmt.Errorf("ingest: fetch %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.Page{}, fmt.Errorf("ingest: fetch %s: http %d", pageURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return domain.Page{}, fmt.Errorf("ingest: read body of %s: %w", pageURL, err)
	}

	root, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return domain.Page{}, fmt.Errorf("ingest: parse html of %s: %w", pageURL, err)
	}

	text := strings.TrimSpace(extractVisibleText(root))
	return domain.Page{Source: pageURL, PageIndex: 0, RawText: text, PageCount: 1}, nil
}

// extractVisibleText walks the HTML tree collecting text nodes,
// skipping script/style subtrees entirely so they never pollute the
// chunker's input.
func extractVisibleText(n *html.Node) string {
	if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style" || n.Data == "noscript") {
		return ""
	}

	var b strings.Builder
	if n.Type == html.TextNode {
		b.WriteString(n.Data)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := extractVisibleText(c); t != "" {
			b.WriteString(t)
			b.WriteString(" ")
		}
	}
	return b.String()
}
