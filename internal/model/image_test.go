// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writeTempPNG writes a width x height PNG and returns its path.
func writeTempPNG(t *testing.T, width, height int) string {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode failed: %v", err)
	}

	path := filepath.Join(t.TempDir(), "test.png")
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return path
}

func TestDownscaleImage_SmallImageKept(t *testing.T) {
	path := writeTempPNG(t, 100, 60)
	data, _ := os.ReadFile(path)

	if _, _, ok := downscaleImage(data); ok {
		t.Error("images within the bound must not be re-encoded")
	}
}

func TestDownscaleImage_LargeImageResized(t *testing.T) {
	path := writeTempPNG(t, 2048, 512)
	data, _ := os.ReadFile(path)

	scaled, mimeType, ok := downscaleImage(data)
	if !ok {
		t.Fatal("expected oversized image to be downscaled")
	}
	if mimeType != "image/jpeg" {
		t.Errorf("expected jpeg re-encode, got %s", mimeType)
	}

	decoded, format, err := image.Decode(bytes.NewReader(scaled))
	if err != nil {
		t.Fatalf("downscaled output not decodable: %v", err)
	}
	if format != "jpeg" {
		t.Errorf("expected jpeg format, got %s", format)
	}
	b := decoded.Bounds()
	if b.Dx() != maxImageDimension {
		t.Errorf("larger dimension should equal %d, got %d", maxImageDimension, b.Dx())
	}
	// Aspect ratio preserved: 2048x512 -> 1024x256
	if b.Dy() != 256 {
		t.Errorf("expected height 256, got %d", b.Dy())
	}
}

func TestDownscaleImage_NotAnImage(t *testing.T) {
	if _, _, ok := downscaleImage([]byte("plain text")); ok {
		t.Error("non-image bytes must not downscale")
	}
}

func TestDataURL_RoundTrips(t *testing.T) {
	path := writeTempPNG(t, 16, 16)
	att, err := NewAttachment(path)
	if err != nil {
		t.Fatal(err)
	}

	url, err := att.DataURL()
	if err != nil {
		t.Fatalf("DataURL failed: %v", err)
	}
	if !strings.HasPrefix(url, "data:image/png;base64,") {
		t.Fatalf("unexpected data URL prefix: %q", url[:30])
	}

	encoded := strings.TrimPrefix(url, "data:image/png;base64,")
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		t.Fatalf("payload not valid base64: %v", err)
	}
	if _, _, err := image.Decode(bytes.NewReader(raw)); err != nil {
		t.Errorf("decoded payload not an image: %v", err)
	}
}
