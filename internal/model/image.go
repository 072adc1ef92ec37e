// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"bytes"
	"image"
	"image/jpeg"

	_ "image/gif" // register decoders for the common formats
	_ "image/png"

	"golang.org/x/image/draw"
)

// maxImageDimension bounds each edge of an image before base64 encoding.
// Vision models downsample anyway; shipping more pixels only inflates the
// request body.
const maxImageDimension = 1024

// downscaleJPEGQuality is the re-encode quality for resized images.
const downscaleJPEGQuality = 85

// downscaleImage resizes the encoded image so the larger dimension equals
// maxImageDimension, preserving aspect ratio, and re-encodes it as JPEG.
// Returns ok=false when the data is not decodable as an image or already
// fits within the bound, in which case the caller keeps the original bytes.
func downscaleImage(data []byte) (scaled []byte, mimeType string, ok bool) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", false
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width <= maxImageDimension && height <= maxImageDimension {
		return nil, "", false
	}

	var newW, newH int
	if width >= height {
		newW = maxImageDimension
		newH = height * maxImageDimension / width
	} else {
		newH = maxImageDimension
		newW = width * maxImageDimension / height
	}
	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: downscaleJPEGQuality}); err != nil {
		return nil, "", false
	}

	return buf.Bytes(), "image/jpeg", true
}
