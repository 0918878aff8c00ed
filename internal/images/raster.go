package images

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"net/http"
	"strings"

	_ "image/gif"
	_ "image/png"

	"MerchScanner/internal/ports"
)

const (
	// maxImageBytes rejects oversized downloads before they reach
	// object storage.
	maxImageBytes = 10 << 20
	// minCropEdge discards composite crop regions too small to be a
	// reliable product photo.
	minCropEdge = 50
)

// validateImage sniffs the payload and returns its content type and
// file extension, or an error for non-image or oversized data.
func validateImage(data []byte) (contentType, ext string, err error) {
	if len(data) == 0 {
		return "", "", fmt.Errorf("empty payload")
	}
	if len(data) > maxImageBytes {
		return "", "", fmt.Errorf("image too large: %d bytes", len(data))
	}

	contentType = http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") {
		return "", "", fmt.Errorf("not an image: %s", contentType)
	}

	switch contentType {
	case "image/jpeg":
		ext = "jpg"
	case "image/png":
		ext = "png"
	case "image/gif":
		ext = "gif"
	case "image/webp":
		ext = "webp"
	default:
		ext = "img"
	}
	return contentType, ext, nil
}

type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

// cropRegion cuts the normalized percentage box out of the raster and
// re-encodes it as JPEG. Regions below the minimum pixel floor are
// rejected as unreliable.
func cropRegion(data []byte, box ports.BoundingBox) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	bounds := src.Bounds()
	w := float64(bounds.Dx())
	h := float64(bounds.Dy())

	rect := image.Rect(
		bounds.Min.X+int(w*box.X/100),
		bounds.Min.Y+int(h*box.Y/100),
		bounds.Min.X+int(w*(box.X+box.W)/100),
		bounds.Min.Y+int(h*(box.Y+box.H)/100),
	).Intersect(bounds)

	if rect.Dx() < minCropEdge || rect.Dy() < minCropEdge {
		return nil, fmt.Errorf("crop region %dx%d below %dpx floor", rect.Dx(), rect.Dy(), minCropEdge)
	}

	cropper, ok := src.(subImager)
	if !ok {
		return nil, fmt.Errorf("image format does not support cropping")
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, cropper.SubImage(rect), &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("encode crop: %w", err)
	}
	return buf.Bytes(), nil
}
