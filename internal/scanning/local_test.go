package scanning

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/receipt-reader/internal/fields"
	"github.com/zombor/receipt-reader/internal/normalize"
)

type mockExtractor struct {
	text   string
	raster *image.Gray
}

func (m *mockExtractor) Extract(ctx context.Context, img *image.Gray) string {
	m.raster = img
	return m.text
}

// receiptPNG encodes a w x h white image with a dark band across it.
func receiptPNG(w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.RGBA{R: 250, G: 250, B: 245, A: 255}
			if y > h/3 && y < h/2 && x > w/5 && x < 4*w/5 {
				c = color.RGBA{R: 10, G: 10, B: 10, A: 255}
			}
			img.SetRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	Expect(png.Encode(&buf, img)).To(Succeed())
	return buf.Bytes()
}

var _ = Describe("Local", func() {
	var (
		extractor *mockExtractor
		scanner   *Local
		rec       *fields.Record
		err       error
		data      []byte
	)

	BeforeEach(func() {
		extractor = &mockExtractor{}
		scanner = NewLocal(normalize.New(), extractor, 80)
		data = receiptPNG(160, 100)
	})

	JustBeforeEach(func() {
		rec, err = scanner.ScanReceipt(context.Background(), data, "image/png")
	})

	When("text is extracted", func() {
		BeforeEach(func() {
			extractor.text = "スーパー田中\n2024年1月15日\n牛乳 198\nパン 150\n合計 348"
		})

		It("parses it into a record", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(rec.Store).To(Equal("スーパー田中"))
			Expect(rec.Date).To(Equal("2024年1月15日"))
			Expect(rec.Items).To(HaveLen(2))
			Expect(rec.Total).To(Equal(348.0))
			Expect(rec.Consistent()).To(BeTrue())
		})

		It("hands the extractor a capped binary raster", func() {
			b := extractor.raster.Bounds()
			Expect(b.Dx()).To(Equal(80))
			Expect(b.Dy()).To(Equal(50))
			for _, v := range extractor.raster.Pix {
				Expect(v).To(Or(Equal(normalize.Ink), Equal(normalize.Background)))
			}
		})
	})

	When("no text is extracted", func() {
		It("returns ErrNoTextExtracted", func() {
			Expect(err).To(MatchError(ErrNoTextExtracted))
			Expect(rec).To(BeNil())
		})
	})

	When("the upload is not an image", func() {
		BeforeEach(func() {
			data = []byte("not an image")
			extractor.text = "text"
		})

		It("returns a decoding error", func() {
			Expect(err).To(MatchError(ContainSubstring("unsupported image format")))
			Expect(extractor.raster).To(BeNil())
		})
	})

	It("closes without error", func() {
		Expect(scanner.Close()).To(Succeed())
	})
})
