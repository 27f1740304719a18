// Package imaging handles decoding camera image payloads and saving them
// in lossless output formats.
//
// Supported outputs are PNG, uncompressed TIFF and BMP. Saves are atomic:
// the image is written to a temporary file in the target directory and
// renamed into place, so a failed encode never leaves a partial file.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"

	// Decoders for payloads the camera may return.
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	"github.com/google/uuid"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

// ErrInvalidFormat is returned when an unsupported output format is
// requested.
var ErrInvalidFormat = errors.New("imaging: invalid format")

// A Format is a lossless output image format.
type Format string

const (
	// FormatPNG produces PNG images. This is the default.
	FormatPNG Format = "png"

	// FormatTIFF produces uncompressed TIFF images.
	FormatTIFF Format = "tiff"

	// FormatBMP produces BMP images.
	FormatBMP Format = "bmp"
)

// ParseFormat converts a user-supplied format name into a Format.
// Matching is case-insensitive; "tif" is accepted for TIFF.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "png":
		return FormatPNG, nil
	case "tiff", "tif":
		return FormatTIFF, nil
	case "bmp":
		return FormatBMP, nil
	default:
		return "", fmt.Errorf("%w: %q (supported: png, tiff, bmp)", ErrInvalidFormat, s)
	}
}

// Ext returns the file extension for the format, without the dot.
func (f Format) Ext() string {
	return string(f)
}

// Encode writes img to w in the given format.
func Encode(w io.Writer, img image.Image, f Format) error {
	switch f {
	case FormatPNG:
		return png.Encode(w, img)
	case FormatTIFF:
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Uncompressed})
	case FormatBMP:
		return bmp.Encode(w, img)
	default:
		return fmt.Errorf("%w: %q", ErrInvalidFormat, f)
	}
}

// Decode parses an encoded image payload (JPEG, PNG, GIF, BMP or TIFF).
func Decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// Save encodes img in the given format and writes it to path atomically.
func Save(path string, img image.Image, f Format) error {
	dir := filepath.Dir(path)
	tmp := filepath.Join(dir, fmt.Sprintf(".%s.%s.tmp", filepath.Base(path), uuid.NewString()))

	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}

	if err := Encode(out, img, f); err != nil {
		out.Close()
		os.Remove(tmp)
		return fmt.Errorf("encode %s: %w", f, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close %s: %w", tmp, err)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

// Dimensions reads the pixel dimensions of an encoded image file without
// decoding the full raster.
func Dimensions(path string) (width, height int, err error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer file.Close()

	cfg, _, err := image.DecodeConfig(file)
	if err != nil {
		return 0, 0, fmt.Errorf("read image header: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}
