//go:build !ocr

package ocr

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("TesseractLines without the ocr tag", func() {
	It("reports that OCR is not enabled", func() {
		engine, err := NewTesseractLines(DefaultLanguages)
		Expect(err).To(MatchError(ErrOCRNotEnabled))
		Expect(engine).To(BeNil())
	})

	It("is safe to use as a nil engine", func() {
		var engine *TesseractLines
		_, err := engine.RecognizeLines(context.Background(), raster)
		Expect(err).To(MatchError(ErrOCRNotEnabled))
		Expect(engine.Close()).To(Succeed())
	})
})
