package imaging

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func testImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 7), uint8(y * 11), uint8(x + y), 0xff})
		}
	}
	return img
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"png", FormatPNG, false},
		{"PNG", FormatPNG, false},
		{"tiff", FormatTIFF, false},
		{"TIFF", FormatTIFF, false},
		{"tif", FormatTIFF, false},
		{"bmp", FormatBMP, false},
		{"jpeg", "", true},
		{"webp", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseFormat(%q): expected error, got %q", tt.in, got)
			}
			if !errors.Is(err, ErrInvalidFormat) {
				t.Errorf("ParseFormat(%q): error %v is not ErrInvalidFormat", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseFormat(%q): unexpected error %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEncodeDecodeRoundTripPreservesDimensions(t *testing.T) {
	src := testImage(33, 21)

	for _, f := range []Format{FormatPNG, FormatTIFF, FormatBMP} {
		var buf bytes.Buffer
		if err := Encode(&buf, src, f); err != nil {
			t.Fatalf("Encode(%s): %v", f, err)
		}

		decoded, err := Decode(buf.Bytes())
		if err != nil {
			t.Fatalf("Decode(%s): %v", f, err)
		}

		got, want := decoded.Bounds(), src.Bounds()
		if got.Dx() != want.Dx() || got.Dy() != want.Dy() {
			t.Errorf("%s round trip: dimensions %dx%d, want %dx%d",
				f, got.Dx(), got.Dy(), want.Dx(), want.Dy())
		}
	}
}

func TestEncodeInvalidFormat(t *testing.T) {
	var buf bytes.Buffer
	err := Encode(&buf, testImage(4, 4), Format("jpeg"))
	if !errors.Is(err, ErrInvalidFormat) {
		t.Fatalf("expected ErrInvalidFormat, got %v", err)
	}
}

func TestSaveWritesFileAtomically(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.png")

	if err := Save(path, testImage(16, 9), FormatPNG); err != nil {
		t.Fatalf("Save: %v", err)
	}

	w, h, err := Dimensions(path)
	if err != nil {
		t.Fatalf("Dimensions: %v", err)
	}
	if w != 16 || h != 9 {
		t.Errorf("saved dimensions %dx%d, want 16x9", w, h)
	}

	// No temp files should survive a successful save.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("leftover temp file %s", e.Name())
		}
	}
	if len(entries) != 1 {
		t.Errorf("expected exactly one file in output dir, found %d", len(entries))
	}
}

func TestSaveAllFormats(t *testing.T) {
	dir := t.TempDir()
	src := testImage(20, 10)

	for _, f := range []Format{FormatPNG, FormatTIFF, FormatBMP} {
		path := filepath.Join(dir, "out."+f.Ext())
		if err := Save(path, src, f); err != nil {
			t.Fatalf("Save(%s): %v", f, err)
		}
		w, h, err := Dimensions(path)
		if err != nil {
			t.Fatalf("Dimensions(%s): %v", f, err)
		}
		if w != 20 || h != 10 {
			t.Errorf("%s: saved dimensions %dx%d, want 20x10", f, w, h)
		}
	}
}

func TestDecodeGarbage(t *testing.T) {
	if _, err := Decode([]byte("not an image")); err == nil {
		t.Fatal("expected error decoding garbage")
	}
}
