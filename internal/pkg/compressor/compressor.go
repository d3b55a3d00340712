package compressor

import (
	"bytes"
	"fmt"
	"io"
	"math"

	"github.com/gofiber/fiber/v2/log"
)

const ContentTypeJPEG = "image/jpeg"

// Attempt is one encode of the scaled raster.
type Attempt struct {
	Quality float64
	Size    int
}

// Result is the accepted candidate of one Compress call. The caller owns Data.
type Result struct {
	Data         []byte
	ContentType  string
	Width        int
	Height       int
	Quality      float64
	Attempts     []Attempt
	SourceFormat string
	SourceWidth  int
	SourceHeight int
	SourceSize   int64
}

// Size returns the byte length of the output.
func (r *Result) Size() int64 {
	return int64(len(r.Data))
}

// SizeKB returns the output size in KiB.
func (r *Result) SizeKB() float64 {
	return float64(len(r.Data)) / 1024
}

// Retries is the number of encodes after the first.
func (r *Result) Retries() int {
	if len(r.Attempts) == 0 {
		return 0
	}
	return len(r.Attempts) - 1
}

// Compressor downsamples an image to the configured bounds and re-encodes it
// as JPEG at decreasing quality until the size envelope is met.
// A Compressor holds no per-call state and is safe for concurrent use.
type Compressor struct {
	cfg   Config
	codec Codec
}

type Option func(*Compressor)

// WithCodec replaces the default imaging codec.
func WithCodec(codec Codec) Option {
	return func(c *Compressor) {
		c.codec = codec
	}
}

// New validates cfg and returns a Compressor.
func New(cfg Config, opts ...Option) (*Compressor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Compressor{
		cfg:   cfg,
		codec: NewImagingCodec(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Config returns the configuration the compressor was built with.
func (c *Compressor) Config() Config {
	return c.cfg
}

// Compress reads r to completion and compresses it. Read failures are
// returned as *ReadError and no partial result is produced.
func (c *Compressor) Compress(r io.Reader) (*Result, error) {
	data, err := io.ReadAll(io.LimitReader(r, c.cfg.MaxSourceBytes+1))
	if err != nil {
		return nil, &ReadError{Err: err}
	}
	if int64(len(data)) > c.cfg.MaxSourceBytes {
		return nil, &ReadError{Err: fmt.Errorf("%w (%d bytes)", ErrSourceTooLarge, c.cfg.MaxSourceBytes)}
	}
	return c.CompressBytes(data)
}

// CompressBytes runs decode, scale and the quality loop on data.
func (c *Compressor) CompressBytes(data []byte) (*Result, error) {
	if len(data) == 0 {
		return nil, &DecodeError{Err: ErrEmptySource}
	}

	header, format, err := c.codec.DecodeConfig(data)
	if err != nil {
		return nil, &DecodeError{Format: format, Err: err}
	}
	if pixels := int64(header.Width) * int64(header.Height); pixels > c.cfg.MaxSourcePixels {
		return nil, &DecodeError{Format: format, Err: fmt.Errorf("%w: %dx%d exceeds %d", ErrTooManyPixels, header.Width, header.Height, c.cfg.MaxSourcePixels)}
	}

	src, format, err := c.codec.Decode(data)
	if err != nil {
		return nil, &DecodeError{Format: format, Err: err}
	}
	bounds := src.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return nil, &DecodeError{Format: format, Err: fmt.Errorf("image has no pixels (%dx%d)", bounds.Dx(), bounds.Dy())}
	}

	width, height := ScaleDimensions(bounds.Dx(), bounds.Dy(), c.cfg.MaxWidth, c.cfg.MaxHeight)
	raster := c.codec.Render(src, width, height)
	src = nil

	result := &Result{
		ContentType:  ContentTypeJPEG,
		Width:        width,
		Height:       height,
		SourceFormat: format,
		SourceWidth:  bounds.Dx(),
		SourceHeight: bounds.Dy(),
		SourceSize:   int64(len(data)),
	}

	var buf bytes.Buffer
	for attempt := 0; ; attempt++ {
		quality := c.cfg.qualityAt(attempt)

		buf.Reset()
		if err := c.codec.Encode(&buf, raster, quality); err != nil {
			return nil, &EncodeError{Quality: quality, Err: err}
		}
		if buf.Len() == 0 {
			return nil, &EncodeError{Quality: quality, Err: ErrEmptyOutput}
		}

		result.Attempts = append(result.Attempts, Attempt{Quality: quality, Size: buf.Len()})
		sizeKB := float64(buf.Len()) / 1024

		if c.cfg.accepts(sizeKB, quality) {
			result.Quality = quality
			result.Data = bytes.Clone(buf.Bytes())
			log.Infof("[Compressor] Compressed image: %.0fKB at quality %.2f (%dx%d -> %dx%d, %d attempts)",
				sizeKB, quality, result.SourceWidth, result.SourceHeight, width, height, len(result.Attempts))
			return result, nil
		}
	}
}

// ScaleDimensions fits width x height inside maxWidth x maxHeight with a
// single ratio applied to both axes. It never upscales.
func ScaleDimensions(width, height, maxWidth, maxHeight int) (int, int) {
	if width <= maxWidth && height <= maxHeight {
		return width, height
	}

	ratio := math.Min(float64(maxWidth)/float64(width), float64(maxHeight)/float64(height))
	w := int(math.Round(float64(width) * ratio))
	h := int(math.Round(float64(height) * ratio))
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h
}
