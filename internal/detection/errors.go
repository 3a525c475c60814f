package detection

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrFetch         = errors.New("image fetch failed")
	ErrDecode        = errors.New("image decode failed")
	ErrConfig        = errors.New("configuration error")
	ErrUpstream      = errors.New("upstream inference failed")
	ErrShapeMismatch = errors.New("unexpected upstream response shape")
)

// FetchError reports a network failure, timeout or non-2xx status while downloading an image.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error        { return e.Err }
func (e *FetchError) Is(target error) bool { return target == ErrFetch }

// DecodeError reports bytes that are not a supported raster format.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string        { return fmt.Sprintf("decode image: %v", e.Err) }
func (e *DecodeError) Unwrap() error        { return e.Err }
func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

// ConfigError reports a missing credential or model artifact.
type ConfigError struct {
	Key    string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s", e.Key, e.Reason)
}

func (e *ConfigError) Is(target error) bool { return target == ErrConfig }

// UpstreamError reports a terminal failure of the external inference service.
// StatusCode is zero for transport failures.
type UpstreamError struct {
	StatusCode int
	Body       string
	Attempts   int
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		body := strings.TrimSpace(e.Body)
		if body == "" {
			return fmt.Sprintf("upstream status %d after %d attempt(s)", e.StatusCode, e.Attempts)
		}
		return fmt.Sprintf("upstream status %d after %d attempt(s): %s", e.StatusCode, e.Attempts, body)
	}
	return fmt.Sprintf("upstream request: %v", e.Err)
}

func (e *UpstreamError) Unwrap() error        { return e.Err }
func (e *UpstreamError) Is(target error) bool { return target == ErrUpstream }

// ShapeMismatchError reports an upstream body that is not a list of label scores.
// It is recovered into a fallback result and never reaches callers.
type ShapeMismatchError struct {
	Body string
	Err  error
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("unexpected response shape: %v", e.Err)
}

func (e *ShapeMismatchError) Unwrap() error        { return e.Err }
func (e *ShapeMismatchError) Is(target error) bool { return target == ErrShapeMismatch }

// InvalidInput wraps a request validation failure.
func InvalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
