package compressor_test

import (
	"bytes"
	"image"
	"image/color"
	"io"
	"math/rand"
	"sync"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"
)

// gradientImage is smooth and compresses well.
func gradientImage(w, h int) *image.NRGBA {
	img := imaging.New(w, h, color.White)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8(x * 255 / w),
				G: uint8(y * 255 / h),
				B: 128,
				A: 255,
			})
		}
	}
	return img
}

// noiseImage is high entropy and compresses badly.
func noiseImage(w, h int, seed int64) *image.NRGBA {
	rng := rand.New(rand.NewSource(seed))
	img := imaging.New(w, h, color.Black)
	rng.Read(img.Pix)
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 255
	}
	return img
}

func encode(t *testing.T, img image.Image, format imaging.Format) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, format))
	return buf.Bytes()
}

// fakeCodec decodes to a blank raster of a fixed size and encodes a payload
// whose length is chosen by sizeFor, so the quality loop can be driven
// without real image content.
type fakeCodec struct {
	width, height int
	sizeFor       func(quality float64) int
	encodeErr     error
	decodeErr     error

	mu        sync.Mutex
	qualities []float64
}

func (f *fakeCodec) DecodeConfig(data []byte) (image.Config, string, error) {
	if f.decodeErr != nil {
		return image.Config{}, "fake", f.decodeErr
	}
	return image.Config{Width: f.width, Height: f.height}, "fake", nil
}

func (f *fakeCodec) Decode(data []byte) (image.Image, string, error) {
	if f.decodeErr != nil {
		return nil, "fake", f.decodeErr
	}
	return image.NewNRGBA(image.Rect(0, 0, f.width, f.height)), "fake", nil
}

func (f *fakeCodec) Render(img image.Image, width, height int) image.Image {
	return image.NewNRGBA(image.Rect(0, 0, width, height))
}

func (f *fakeCodec) Encode(w io.Writer, img image.Image, quality float64) error {
	f.mu.Lock()
	f.qualities = append(f.qualities, quality)
	f.mu.Unlock()
	if f.encodeErr != nil {
		return f.encodeErr
	}
	_, err := w.Write(make([]byte, f.sizeFor(quality)))
	return err
}

func kb(n float64) int {
	return int(n * 1024)
}
