package scanning

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif" // Register GIF decoder
	"image/jpeg"
	_ "image/png" // Register PNG decoder
	"net/http"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

// JPEGQuality is used for every frame and upload sent to the service
const JPEGQuality = 90

// EncodeJPEG encodes a decoded image or captured frame for upload
func EncodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, fmt.Errorf("encoding JPEG: %w", err)
	}
	return buf.Bytes(), nil
}

// pdfToImage renders the first page of a PDF (menus, flyers)
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

// decodeImage decodes any supported upload format
func decodeImage(imageData []byte, mimeType string) (image.Image, error) {
	// Go's standard image package doesn't support HEIC (common on iPhones)
	if isHEICFormat(imageData) || isHEICMimeType(mimeType) {
		img, err := heic.Decode(bytes.NewReader(imageData))
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
		return img, nil
	}

	img, _, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		if strings.Contains(err.Error(), "unknown format") {
			return nil, fmt.Errorf("unsupported image format. Supported formats: JPEG, PNG, GIF, HEIC, HEIF, PDF. Error: %w", err)
		}
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	return img, nil
}

// isHEICFormat checks for an ftyp box with a HEIC-related brand at offset 4
func isHEICFormat(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	brand := string(data[8:12])
	return brand == "heic" || brand == "heif" || brand == "mif1" || brand == "msf1"
}

func isHEICMimeType(mimeType string) bool {
	return strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif")
}

// normalizeMimeType trims and lowercases contentType, sniffing the bytes when it is missing
func normalizeMimeType(imageData []byte, contentType string) string {
	mimeType := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(imageData)
	}
	return mimeType
}

// PrepareImage converts uploads to JPEG.
// Returns the JPEG data and whether conversion occurred.
func PrepareImage(imageData []byte, contentType string) ([]byte, bool, error) {
	if len(imageData) == 0 {
		return nil, false, fmt.Errorf("image is empty")
	}

	mimeType := normalizeMimeType(imageData, contentType)
	if mimeType == "image/jpeg" && !isHEICFormat(imageData) {
		return imageData, false, nil
	}

	var (
		img image.Image
		err error
	)
	if mimeType == "application/pdf" {
		img, err = pdfToImage(imageData)
		if err != nil {
			return nil, false, fmt.Errorf("converting PDF to image: %w", err)
		}
	} else {
		img, err = decodeImage(imageData, mimeType)
		if err != nil {
			return nil, false, err
		}
	}

	jpegData, err := EncodeJPEG(img)
	if err != nil {
		return nil, false, err
	}
	return jpegData, true, nil
}
