package upload

import (
	"errors"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

var (
	ErrNotAnImage      = errors.New("Please select an image file")
	ErrUnsupportedType = errors.New("Only the following image formats are supported: JPG, JPEG, PNG, GIF, WEBP, BMP, TIFF")
	ErrScriptable      = errors.New("Invalid file type: HTML, SVG and XML content is not allowed")
)

var allowedExt = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
	// SVG is excluded: it cannot be rasterized and carries XSS risk
}

var allowedMime = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
	"image/bmp":  true,
	"image/tiff": true,
}

// ValidateDeclaredType accepts any declared image/* media type.
func ValidateDeclaredType(contentType string) error {
	if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "image/") {
		return ErrNotAnImage
	}
	return nil
}

// ValidateImageBySniff checks the provided filename (extension) and the first bytes (head)
// against a whitelist of image types. Returns detected mime or an error.
func ValidateImageBySniff(filename string, head []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext != "" && !allowedExt[ext] {
		return "", ErrUnsupportedType
	}

	detected := mimetype.Detect(head)

	// Block obvious scriptable types regardless of extension
	for _, blocked := range []string{"text/html", "application/xhtml+xml", "text/xml", "application/xml", "image/svg+xml"} {
		if detected.Is(blocked) {
			return "", ErrScriptable
		}
	}

	for mt := detected; mt != nil; mt = mt.Parent() {
		if allowedMime[mt.String()] {
			return mt.String(), nil
		}
	}

	return "", ErrUnsupportedType
}

// JPEGFileName returns the base name of name with its last extension
// replaced by .jpg, so ".hidden" becomes ".jpg" and "photo." becomes
// "photo.jpg". Names without an extension get .jpg appended.
func JPEGFileName(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "." || base == ".." || base == "/" || base == "" {
		base = "photo"
	}
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return base + ".jpg"
}
