package ioutils

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteFile_Replaces(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "abc123.m3u")

	if err := WriteFile(path, []byte("first")); err != nil {
		t.Fatal(err)
	}
	if err := WriteFile(path, []byte("second")); err != nil {
		t.Fatal(err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "second" {
		t.Errorf("content = %q, want second", got)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("got %d entries, temporary file left behind", len(entries))
	}
}

func TestWriteJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "abc123.json")

	if err := WriteJSON(path, map[string]any{"title": "Some Book"}); err != nil {
		t.Fatal(err)
	}

	got, _ := os.ReadFile(path)
	if want := "{\n  \"title\": \"Some Book\"\n}\n"; string(got) != want {
		t.Errorf("content = %q, want %q", got, want)
	}
}

func TestEnsureDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b")
	if err := EnsureDir(path); err != nil {
		t.Fatal(err)
	}
	if err := EnsureDir(path); err != nil {
		t.Errorf("second EnsureDir() error = %v", err)
	}
}

func pngImage(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestPrepareCover(t *testing.T) {
	svc := NewImageService()
	ctx := context.Background()

	tests := []struct {
		name          string
		w, h, maxSize int
		wantW, wantH  int
	}{
		{"landscape shrinks", 1500, 1000, 1000, 1000, 666},
		{"portrait shrinks", 300, 600, 150, 75, 150},
		{"small kept", 200, 100, 1000, 200, 100},
		{"no limit", 1200, 50, 0, 1200, 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := svc.PrepareCover(ctx, pngImage(t, tt.w, tt.h), tt.maxSize)
			if err != nil {
				t.Fatal(err)
			}
			cfg, err := jpeg.DecodeConfig(bytes.NewReader(out))
			if err != nil {
				t.Fatalf("output is not JPEG: %v", err)
			}
			if cfg.Width != tt.wantW || cfg.Height != tt.wantH {
				t.Errorf("size = %dx%d, want %dx%d", cfg.Width, cfg.Height, tt.wantW, tt.wantH)
			}
		})
	}
}

func TestPrepareCover_InvalidData(t *testing.T) {
	if _, err := NewImageService().PrepareCover(context.Background(), []byte("not an image"), 100); err == nil {
		t.Error("expected error for invalid image data")
	}
}
