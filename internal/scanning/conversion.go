package scanning

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif" // Register GIF decoder
	"image/png"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

// DefaultMaxDimension caps the long edge of an uploaded photograph.
const DefaultMaxDimension = 1200

// receiptScanPrompt is the shared prompt used by all LLM providers for scanning receipts
const receiptScanPrompt = `You are analyzing a photograph of a Japanese shop receipt. Carefully read all text in the image and extract the following information:

1. **store_name**: The shop or business name, usually the first lines of the receipt.

2. **date**: The purchase date in YYYY/MM/DD format.

3. **items**: Every purchased item in the order printed, each as {"name": string, "amount": integer yen}. Do not include subtotal, tax, cash tendered or change lines.

4. **total**: The amount printed next to 合計 or TOTAL, as an integer.

Return ONLY valid JSON in this exact format:
{
  "store_name": "Store Name",
  "date": "YYYY/MM/DD",
  "items": [{"name": "Item", "amount": 0}],
  "total": 0
}

Important:
- Amounts must be numbers (not strings) without currency symbols or separators
- If you cannot find a field, use null for that field
- Do not include any text before or after the JSON
- Do not use markdown code blocks`

// decodeImage turns uploaded bytes into an upright image. PDFs yield their
// first page.
func decodeImage(data []byte, contentType string) (image.Image, error) {
	mimeType := strings.ToLower(strings.TrimSpace(contentType))

	switch {
	case mimeType == "application/pdf":
		img, err := pdfToImage(data)
		if err != nil {
			return nil, fmt.Errorf("converting PDF to image: %w", err)
		}
		return img, nil
	case isHEICFormat(data) || isHEICMimeType(mimeType):
		// Go's standard image package doesn't support HEIC
		img, err := heic.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
		return img, nil
	}

	// Phone cameras store rotation in EXIF rather than in the pixels
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		if strings.Contains(err.Error(), "unknown format") || strings.Contains(err.Error(), "unsupported") {
			return nil, fmt.Errorf("unsupported image format. Supported formats: JPEG, PNG, GIF, BMP, TIFF, HEIC, HEIF, PDF. Error: %w", err)
		}
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	return img, nil
}

// fitImage shrinks img so neither side exceeds maxDimension. Smaller images
// and a non-positive maxDimension leave it untouched.
func fitImage(img image.Image, maxDimension int) image.Image {
	b := img.Bounds()
	if maxDimension <= 0 || (b.Dx() <= maxDimension && b.Dy() <= maxDimension) {
		return img
	}
	return imaging.Fit(img, maxDimension, maxDimension, imaging.Lanczos)
}

// pdfToImage renders the first page of a PDF
func pdfToImage(pdfData []byte) (image.Image, error) {
	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page: %w", err)
	}
	return img, nil
}

// isHEICFormat checks for an ftyp box with a HEIC-related brand
func isHEICFormat(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heif", "mif1", "msf1":
		return true
	}
	return false
}

// isHEICMimeType checks if the MIME type indicates HEIC/HEIF format
func isHEICMimeType(mimeType string) bool {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	return strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif")
}

// prepareImageData decodes, orients and caps the upload and re-encodes it as
// PNG for the vision models.
func prepareImageData(imageData []byte, contentType string, maxDimension int) ([]byte, error) {
	img, err := decodeImage(imageData, contentType)
	if err != nil {
		return nil, err
	}
	img = fitImage(img, maxDimension)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}
