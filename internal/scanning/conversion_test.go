package scanning

import (
	"bytes"
	"image"
	"image/color"
	"image/png"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 8, 6))
	for x := 0; x < 8; x++ {
		for y := 0; y < 6; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 30), G: uint8(y * 40), B: 128, A: 255})
		}
	}
	return img
}

var _ = Describe("PrepareImage", func() {
	var (
		input       []byte
		contentType string
		output      []byte
		converted   bool
		err         error
	)

	JustBeforeEach(func() {
		output, converted, err = PrepareImage(input, contentType)
	})

	When("the input is already JPEG", func() {
		BeforeEach(func() {
			input, err = EncodeJPEG(testImage())
			Expect(err).NotTo(HaveOccurred())
			contentType = "image/jpeg"
		})

		It("passes it through unchanged", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(converted).To(BeFalse())
			Expect(output).To(Equal(input))
		})
	})

	When("the input is PNG", func() {
		BeforeEach(func() {
			var buf bytes.Buffer
			Expect(png.Encode(&buf, testImage())).To(Succeed())
			input = buf.Bytes()
			contentType = "image/png"
		})

		It("converts it to JPEG at the same resolution", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(converted).To(BeTrue())
			cfg, format, decodeErr := image.DecodeConfig(bytes.NewReader(output))
			Expect(decodeErr).NotTo(HaveOccurred())
			Expect(format).To(Equal("jpeg"))
			Expect(cfg.Width).To(Equal(8))
			Expect(cfg.Height).To(Equal(6))
		})
	})

	When("the content type is missing", func() {
		BeforeEach(func() {
			var buf bytes.Buffer
			Expect(png.Encode(&buf, testImage())).To(Succeed())
			input = buf.Bytes()
			contentType = ""
		})

		It("sniffs the format from the bytes", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(converted).To(BeTrue())
		})
	})

	When("the input is not an image", func() {
		BeforeEach(func() {
			input = []byte("definitely not an image")
			contentType = "image/png"
		})

		It("returns an error", func() {
			Expect(err).To(HaveOccurred())
		})
	})

	When("the input is empty", func() {
		BeforeEach(func() {
			input = nil
			contentType = "image/jpeg"
		})

		It("returns an error", func() {
			Expect(err).To(MatchError(ContainSubstring("empty")))
		})
	})
})

var _ = Describe("isHEICFormat", func() {
	It("detects the heic brand", func() {
		data := append([]byte{0, 0, 0, 24}, []byte("ftypheic0000")...)
		Expect(isHEICFormat(data)).To(BeTrue())
	})

	It("rejects short input", func() {
		Expect(isHEICFormat([]byte("ftyp"))).To(BeFalse())
	})
})
