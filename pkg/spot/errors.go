package spot

import (
	"errors"
	"fmt"
)

// Sentinel errors for conversion failures. Test with errors.Is.
var (
	// ErrUnknownPixelFormat is returned for pixel formats with no sample layout.
	ErrUnknownPixelFormat = errors.New("spot: unknown pixel format")

	// ErrUnknownCompressionFormat is returned for unrecognized image formats.
	ErrUnknownCompressionFormat = errors.New("spot: unknown image format")

	// ErrDecode is returned when image data cannot be decoded.
	ErrDecode = errors.New("spot: decode failed")

	// ErrNotImplemented is returned for conversions that are not supported
	// (RLE, raw color or 8-bit greyscale data).
	ErrNotImplemented = errors.New("spot: not implemented")

	// ErrSkewUnavailable is returned when the clock skew cannot be resolved.
	ErrSkewUnavailable = errors.New("spot: clock skew unavailable")

	// ErrUnknownSource is returned for image source names with no known camera.
	ErrUnknownSource = errors.New("spot: unknown image source")

	// ErrDuplicateSource is returned when a batch resolves two responses to
	// the same source. The first one is kept.
	ErrDuplicateSource = errors.New("spot: duplicate image source")
)

// Stage identifies where a batch item failed.
type Stage string

const (
	StagePixelFormat Stage = "pixel_format"
	StageDecode      Stage = "decode"
	StageResolve     Stage = "resolve_source"
	StageInsert      Stage = "insert"
)

// ItemFailure describes one response that was dropped from a batch.
type ItemFailure struct {
	// Index is the position of the response in the batch.
	Index int

	// SourceName is the vendor image source name of the response.
	SourceName string

	// Stage is the conversion step that failed.
	Stage Stage

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (f *ItemFailure) Error() string {
	return fmt.Sprintf("spot: image %d (%s) failed at %s: %v", f.Index, f.SourceName, f.Stage, f.Err)
}

// Unwrap returns the underlying error.
func (f *ItemFailure) Unwrap() error {
	return f.Err
}
