package compressor

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"io"
	"math"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	"github.com/kolesa-team/go-webp/decoder"
	"github.com/kolesa-team/go-webp/webp"
	"github.com/rwcarlsen/goexif/exif"
)

// Codec is the raster capability the compressor needs: decode, render at a
// size, and encode JPEG at a quality in (0,1]. Implementations must not share
// mutable state between calls.
type Codec interface {
	// DecodeConfig reads only the header of data.
	DecodeConfig(data []byte) (cfg image.Config, format string, err error)
	Decode(data []byte) (img image.Image, format string, err error)
	Render(img image.Image, width, height int) image.Image
	Encode(w io.Writer, img image.Image, quality float64) error
}

// ImagingCodec decodes JPEG, PNG, GIF, BMP and TIFF through imaging, WebP
// through libwebp, and encodes JPEG through imaging.
type ImagingCodec struct{}

// NewImagingCodec returns the default codec.
func NewImagingCodec() *ImagingCodec {
	return &ImagingCodec{}
}

func (ImagingCodec) DecodeConfig(data []byte) (image.Config, string, error) {
	mtype := mimetype.Detect(data)
	format := strings.TrimPrefix(mtype.Extension(), ".")

	switch {
	case mtype.Is("image/webp"):
		cfg, err := webp.DecodeConfig(bytes.NewReader(data), &decoder.Options{})
		return cfg, format, err
	case strings.HasPrefix(mtype.String(), "image/"):
		cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
		return cfg, format, err
	default:
		return image.Config{}, format, fmt.Errorf("%w: %s", ErrUnsupportedFormat, mtype.String())
	}
}

func (ImagingCodec) Decode(data []byte) (image.Image, string, error) {
	mtype := mimetype.Detect(data)
	format := strings.TrimPrefix(mtype.Extension(), ".")

	switch {
	case mtype.Is("image/webp"):
		img, err := webp.Decode(bytes.NewReader(data), &decoder.Options{})
		if err != nil {
			return nil, format, err
		}
		return img, format, nil
	case strings.HasPrefix(mtype.String(), "image/"):
		img, err := imaging.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, format, err
		}
		if mtype.Is("image/jpeg") {
			img = applyOrientation(img, readOrientation(data))
		}
		return img, format, nil
	default:
		return nil, format, fmt.Errorf("%w: %s", ErrUnsupportedFormat, mtype.String())
	}
}

// Render scales img with Lanczos resampling and flattens it onto white, since
// JPEG carries no alpha channel.
func (ImagingCodec) Render(img image.Image, width, height int) image.Image {
	scaled := img
	if b := img.Bounds(); b.Dx() != width || b.Dy() != height {
		scaled = imaging.Resize(img, width, height, imaging.Lanczos)
	}
	canvas := imaging.New(width, height, color.White)
	return imaging.Overlay(canvas, scaled, image.Pt(0, 0), 1.0)
}

func (ImagingCodec) Encode(w io.Writer, img image.Image, quality float64) error {
	return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(jpegQuality(quality)))
}

// jpegQuality maps a quality factor in (0,1] to the encoder's 1..100 scale.
func jpegQuality(q float64) int {
	v := int(math.Round(q * 100))
	if v < 1 {
		return 1
	}
	if v > 100 {
		return 100
	}
	return v
}

// readOrientation returns the EXIF orientation tag, or 1 when absent.
func readOrientation(data []byte) int {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return 1
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	v, err := tag.Int(0)
	if err != nil {
		return 1
	}
	return v
}

// applyOrientation rotates/flips img so it displays upright.
func applyOrientation(img image.Image, orientation int) image.Image {
	switch orientation {
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		return imaging.Transpose(img)
	case 6:
		return imaging.Rotate270(img)
	case 7:
		return imaging.Transverse(img)
	case 8:
		return imaging.Rotate90(img)
	default:
		return img
	}
}
