package ingest

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"

	"github.com/eduassist/tutorbridge/rag"
	fitz "github.com/gen2brain/go-fitz"
	"github.com/otiai10/gosseract/v2"
)

func encodePNG(img image.Image) ([]byte, error) {
	if img == nil {
		return nil, fmt.Errorf("nil page image")
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// OCREngine recognizes text in a rasterized page image. It is a tagged
// variant point: swap in a different implementation at construction time
// rather than auto-detecting at call time.
type OCREngine interface {
	Recognize(ctx context.Context, img image.Image) (string, error)
}

// TesseractEngine runs OCR via the Tesseract C++ library through
// gosseract bindings. gosseract clients are not safe for concurrent
// use, so each Recognize call creates its own client and closes it on
// return; no client is shared between pages.
type TesseractEngine struct {
	languages string
}

// NewTesseractEngine returns an OCREngine recognizing English text by
// default.
func NewTesseractEngine() *TesseractEngine {
	return &TesseractEngine{languages: "eng"}
}

// WithLanguages sets the Tesseract language set, e.g. "eng+ind".
func (t *TesseractEngine) WithLanguages(languages string) *TesseractEngine {
	t.languages = languages
	return t
}

func (t *TesseractEngine) Recognize(ctx context.Context, img image.Image) (string, error) {
	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(t.languages); err != nil {
		return "", fmt.Errorf("ocr: set language: %w", err)
	}

	buf, err := encodePNG(img)
	if err != nil {
		return "", fmt.Errorf("ocr: encode page image: %w", err)
	}
	if err := client.SetImageFromBytes(buf); err != nil {
		return "", fmt.Errorf("ocr: load page image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("ocr: recognize: %w", err)
	}
	return text, nil
}

// RasterizePDF renders every page of a PDF to an image at the given DPI
// using MuPDF (via go-fitz), opening the document directly from memory.
func RasterizePDF(data []byte, dpi float64) ([]image.Image, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("fitz: open document: %w", err)
	}
	defer doc.Close()

	n := doc.NumPage()
	images := make([]image.Image, 0, n)
	for i := 0; i < n; i++ {
		img, err := doc.ImageDPI(i, dpi)
		if err != nil {
			rag.GlobalLogger.Warn("rasterization failed for page", "page", i, "error", err)
			images = append(images, nil)
			continue
		}
		images = append(images, img)
	}
	return images, nil
}
