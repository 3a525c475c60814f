package imageprocessor

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"time"

	"github.com/nfnt/resize"
	"go.uber.org/zap"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/example/ai-detect/internal/detection"
)

const (
	// DefaultFetchTimeout bounds a single image download.
	DefaultFetchTimeout = 10 * time.Second
	// MaxImageBytes caps the size of a downloaded image.
	MaxImageBytes = 20 << 20
	// DefaultMaxPixels caps width×height of a decoded image. Compressed
	// formats can declare far more pixels than their byte size suggests.
	DefaultMaxPixels = 50_000_000
)

// Fetcher downloads raw image bytes.
type Fetcher struct {
	client   *http.Client
	timeout  time.Duration
	maxBytes int64
}

// NewFetcher builds a fetcher with the given per-request timeout.
func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &Fetcher{
		client:   &http.Client{Timeout: timeout},
		timeout:  timeout,
		maxBytes: MaxImageBytes,
	}
}

// Fetch downloads url. Network failures, timeouts and non-2xx responses are
// reported as *detection.FetchError.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &detection.FetchError{URL: url, Err: err}
	}
	req.Header.Set("Accept", "image/*")
	req.Header.Set("User-Agent", "ai-detect/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &detection.FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &detection.FetchError{URL: url, StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, &detection.FetchError{URL: url, Err: err}
	}
	if int64(len(data)) > f.maxBytes {
		return nil, &detection.FetchError{URL: url, Err: fmt.Errorf("image exceeds %d bytes", f.maxBytes)}
	}
	return data, nil
}

// Decode parses JPEG, PNG, GIF, WebP, BMP or TIFF bytes, refusing images
// larger than DefaultMaxPixels.
func Decode(data []byte) (image.Image, string, error) {
	return DecodeLimited(data, DefaultMaxPixels)
}

// DecodeLimited is Decode with an explicit pixel budget. The header is read
// first so oversized images are rejected before any pixel buffer is allocated.
// A non-positive maxPixels means DefaultMaxPixels.
func DecodeLimited(data []byte, maxPixels int) (image.Image, string, error) {
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", &detection.DecodeError{Err: err}
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); pixels > int64(maxPixels) {
		return nil, "", &detection.DecodeError{
			Err: fmt.Errorf("image is %dx%d, exceeds %d pixels", cfg.Width, cfg.Height, maxPixels),
		}
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", &detection.DecodeError{Err: err}
	}
	return img, format, nil
}

// Resize scales img to exactly width×height with bicubic resampling.
func Resize(img image.Image, width, height int) image.Image {
	bounds := img.Bounds()
	if bounds.Dx() == width && bounds.Dy() == height {
		return img
	}
	return resize.Resize(uint(width), uint(height), img, resize.Bicubic)
}

// Loader fetches, decodes and normalizes images into tensors.
type Loader struct {
	fetcher   *Fetcher
	maxPixels int
	logger    *zap.Logger
}

// LoaderOption customizes a Loader.
type LoaderOption func(*Loader)

// WithMaxPixels overrides DefaultMaxPixels.
func WithMaxPixels(n int) LoaderOption {
	return func(l *Loader) {
		if n > 0 {
			l.maxPixels = n
		}
	}
}

// NewLoader builds a loader around fetcher.
func NewLoader(fetcher *Fetcher, logger *zap.Logger, opts ...LoaderOption) *Loader {
	l := &Loader{fetcher: fetcher, maxPixels: DefaultMaxPixels, logger: logger.Named("image_loader")}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load downloads url and returns a width×height RGB tensor.
func (l *Loader) Load(ctx context.Context, url string, width, height int) (*Tensor, error) {
	data, err := l.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	img, format, err := DecodeLimited(data, l.maxPixels)
	if err != nil {
		return nil, err
	}
	l.logger.Debug("image decoded",
		zap.String("format", format),
		zap.Int("width", img.Bounds().Dx()),
		zap.Int("height", img.Bounds().Dy()),
	)
	return FromImage(Resize(img, width, height)), nil
}
