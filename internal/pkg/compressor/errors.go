package compressor

import (
	"errors"
	"fmt"
)

var (
	ErrEmptySource       = errors.New("source is empty")
	ErrSourceTooLarge    = errors.New("source exceeds the maximum size")
	ErrUnsupportedFormat = errors.New("unsupported image format")
	ErrEmptyOutput       = errors.New("encoder produced no output")
	ErrTooManyPixels     = errors.New("image has too many pixels")
)

// ReadError means the source bytes could not be read to completion.
type ReadError struct {
	Err error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read image: %v", e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// DecodeError means the source could not be interpreted as a raster image.
type DecodeError struct {
	Format string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Format != "" {
		return fmt.Sprintf("decode %s image: %v", e.Format, e.Err)
	}
	return fmt.Sprintf("decode image: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// EncodeError means the JPEG encoder failed at Quality. It is not retried.
type EncodeError struct {
	Quality float64
	Err     error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode jpeg at quality %.2f: %v", e.Quality, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }
