package ocr

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"strings"
)

// ConfidenceThreshold is the minimum confidence, exclusive, for a primary
// engine line to be kept.
const ConfidenceThreshold = 0.3

// Stage names the engine that produced a Result.
type Stage string

const (
	StagePrimary  Stage = "primary"
	StageFallback Stage = "fallback"
	StageNone     Stage = "none"
)

// Result is the outcome of one extraction.
type Result struct {
	Text  string
	Stage Stage
}

// Extractor runs the primary engine and falls back to the secondary one.
type Extractor struct {
	engines  *Cache
	fallback TextRecognizer
}

// NewExtractor returns an Extractor. Either engine may be nil, in which case
// that stage always fails.
func NewExtractor(engines *Cache, fallback TextRecognizer) *Extractor {
	return &Extractor{
		engines:  engines,
		fallback: fallback,
	}
}

// Extract returns the text recognized in img, or "" when neither engine
// recovered any.
func (e *Extractor) Extract(ctx context.Context, img *image.Gray) string {
	return e.Run(ctx, img).Text
}

// Run is Extract, also reporting which stage produced the text.
func (e *Extractor) Run(ctx context.Context, img *image.Gray) Result {
	first := e.primary(ctx, img)
	if first.err == nil && first.text != "" {
		return Result{Text: first.text, Stage: StagePrimary}
	}
	if first.err != nil {
		slog.Warn("Primary text recognition failed, trying fallback", "error", first.err)
	} else {
		slog.Info("Primary text recognition found no confident lines, trying fallback")
	}

	second := e.secondary(ctx, img)
	if second.err != nil {
		slog.Error("Fallback text recognition failed", "error", second.err)
		return Result{Stage: StageNone}
	}
	if second.text == "" {
		return Result{Stage: StageNone}
	}
	return Result{Text: second.text, Stage: StageFallback}
}

// attempt is the outcome of one stage. An empty text with a nil error means
// the stage ran but found nothing.
type attempt struct {
	text string
	err  error
}

func (e *Extractor) primary(ctx context.Context, img *image.Gray) (a attempt) {
	defer recoverInto(&a)

	if e.engines == nil {
		return attempt{err: errors.New("no primary engine configured")}
	}
	engine, err := e.engines.Get()
	if err != nil {
		return attempt{err: err}
	}
	lines, err := engine.RecognizeLines(ctx, img)
	if err != nil {
		return attempt{err: fmt.Errorf("recognizing lines: %w", err)}
	}

	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if line.Confidence > ConfidenceThreshold {
			kept = append(kept, line.Text)
		}
	}
	text := strings.Join(kept, "\n")
	if strings.TrimSpace(text) == "" {
		return attempt{}
	}
	return attempt{text: text}
}

func (e *Extractor) secondary(ctx context.Context, img *image.Gray) (a attempt) {
	defer recoverInto(&a)

	if e.fallback == nil {
		return attempt{err: errors.New("no fallback engine configured")}
	}
	text, err := e.fallback.RecognizeText(ctx, img)
	if err != nil {
		return attempt{err: fmt.Errorf("recognizing text: %w", err)}
	}
	if strings.TrimSpace(text) == "" {
		return attempt{}
	}
	return attempt{text: text}
}

// recoverInto turns an engine panic into a failed attempt.
func recoverInto(a *attempt) {
	if r := recover(); r != nil {
		*a = attempt{err: fmt.Errorf("engine panicked: %v", r)}
	}
}
