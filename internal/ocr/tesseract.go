//go:build ocr

package ocr

import (
	"context"
	"fmt"
	"image"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"
)

// TesseractLines is the primary engine. It reports one TextLine per text
// line Tesseract finds, with the line's mean confidence.
type TesseractLines struct {
	mu     sync.Mutex // gosseract clients are not safe for concurrent use
	client *gosseract.Client
}

// NewTesseractLines loads Tesseract with the given "+"-separated languages.
func NewTesseractLines(languages string) (*TesseractLines, error) {
	client := gosseract.NewClient()
	if err := client.SetLanguage(strings.Split(languages, "+")...); err != nil {
		client.Close()
		return nil, fmt.Errorf("setting languages: %w", err)
	}
	return &TesseractLines{client: client}, nil
}

// RecognizeLines implements LineRecognizer.
func (t *TesseractLines) RecognizeLines(ctx context.Context, img *image.Gray) ([]TextLine, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := encodePNG(img)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.client.SetImageFromBytes(data); err != nil {
		return nil, fmt.Errorf("setting image: %w", err)
	}
	boxes, err := t.client.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return nil, fmt.Errorf("reading text lines: %w", err)
	}

	lines := make([]TextLine, 0, len(boxes))
	for _, b := range boxes {
		text := strings.TrimSpace(b.Word)
		if text == "" {
			continue
		}
		lines = append(lines, TextLine{Text: text, Confidence: b.Confidence / 100})
	}
	return lines, nil
}

// Close releases the Tesseract handle.
func (t *TesseractLines) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.client.Close()
}
