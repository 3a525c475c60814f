package imageprocessor

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/nfnt/resize"
)

const (
	DefaultMaxDimension = 512
	DefaultJPEGQuality  = 85
)

// Thumbnail downscales img so neither side exceeds maxDim, keeping the aspect
// ratio. Images already within bounds are returned unchanged.
func Thumbnail(img image.Image, maxDim int) image.Image {
	return resize.Thumbnail(uint(maxDim), uint(maxDim), img, resize.Lanczos3)
}

// EncodeDataURI downscales img and re-encodes it as a base64 JPEG data URI.
func EncodeDataURI(img image.Image, maxDim, quality int) (string, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, Thumbnail(img, maxDim), &jpeg.Options{Quality: quality}); err != nil {
		return "", fmt.Errorf("encode jpeg: %w", err)
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
