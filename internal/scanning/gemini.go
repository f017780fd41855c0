package scanning

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/zombor/receipt-reader/internal/fields"
)

// Gemini implements the Scanner interface using Google Gemini
type Gemini struct {
	client       *genai.Client
	model        *genai.GenerativeModel
	maxDimension int
}

// NewGemini creates a new Gemini Scanner instance
func NewGemini(apiKey string, modelName string, maxDimension int) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.0-flash"
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)

	return &Gemini{
		client:       client,
		model:        model,
		maxDimension: maxDimension,
	}, nil
}

// ScanReceipt reads a receipt with the hosted model
func (g *Gemini) ScanReceipt(ctx context.Context, imageData []byte, contentType string) (*fields.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	finalImageData, err := prepareImageData(imageData, contentType, g.maxDimension)
	if err != nil {
		return nil, err
	}

	// genai.ImageData expects just the format suffix, and prepareImageData always produces PNG
	parts := []genai.Part{
		genai.ImageData("png", finalImageData),
		genai.Text(receiptScanPrompt),
	}

	// Generate response
	resp, err := g.model.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, fmt.Errorf("generating content: %w", err)
	}

	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("no response from gemini")
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			responseText.WriteString(string(text))
		}
	}

	rec, err := parseRecordJSON(responseText.String())
	if err != nil {
		return nil, fmt.Errorf("parsing receipt data: %w", err)
	}

	return rec, nil
}

// Close closes the Gemini client
func (g *Gemini) Close() error {
	return g.client.Close()
}
