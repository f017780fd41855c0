package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os/exec"
	"strings"
)

// Runner runs an external command with stdin and returns its stdout.
type Runner interface {
	Run(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = bytes.NewReader(stdin)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return out, nil
}

// TesseractCLI is the fallback engine. It pipes the raster through the
// tesseract executable and returns whatever it prints.
type TesseractCLI struct {
	Path      string
	Languages string
	Runner    Runner
}

// NewTesseractCLI returns a fallback engine running the executable at path,
// or "tesseract" from PATH when path is empty.
func NewTesseractCLI(path, languages string) *TesseractCLI {
	if path == "" {
		path = "tesseract"
	}
	if languages == "" {
		languages = DefaultLanguages
	}
	return &TesseractCLI{
		Path:      path,
		Languages: languages,
		Runner:    execRunner{},
	}
}

// RecognizeText implements TextRecognizer.
func (t *TesseractCLI) RecognizeText(ctx context.Context, img *image.Gray) (string, error) {
	data, err := encodePNG(img)
	if err != nil {
		return "", err
	}
	out, err := t.Runner.Run(ctx, data, t.Path, "stdin", "stdout", "-l", t.Languages)
	if err != nil {
		return "", fmt.Errorf("running %s: %w", t.Path, err)
	}
	return string(out), nil
}
