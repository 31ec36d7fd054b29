// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package imaging validates uploaded and generated images and produces the
// JPEG thumbnails shown in the history and marketplace grids.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif" // register GIF decoder
	"image/jpeg"
	_ "image/png" // register PNG decoder
	"net/http"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // register WebP decoder
)

const (
	// ThumbWidth is the width of grid thumbnails.
	ThumbWidth = 480
	// ThumbQuality is the JPEG quality of thumbnails.
	ThumbQuality = 80
	// MaxPixels rejects decompression bombs (a 4K poster is ~16.8M pixels).
	MaxPixels = 40_000_000
)

// ErrUnsupported is returned for content that is not an accepted image.
var ErrUnsupported = errors.New("imaging: unsupported image type")

var allowedTypes = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// Detect sniffs the content type of data and returns it with the matching
// file extension. Only raster images are accepted.
func Detect(data []byte) (contentType, ext string, err error) {
	contentType = http.DetectContentType(data)
	ext, ok := allowedTypes[contentType]
	if !ok {
		return "", "", fmt.Errorf("%w: %s", ErrUnsupported, contentType)
	}
	return contentType, ext, nil
}

// Extension returns the file extension for an accepted content type, or
// ".png" for anything else.
func Extension(contentType string) string {
	if ext, ok := allowedTypes[contentType]; ok {
		return ext
	}
	return ".png"
}

// Dimensions decodes only the header of data.
func Dimensions(data []byte) (width, height int, err error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, fmt.Errorf("decode config: %w", err)
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return 0, 0, fmt.Errorf("image too large: %dx%d exceeds %d pixels", cfg.Width, cfg.Height, MaxPixels)
	}
	return cfg.Width, cfg.Height, nil
}

// Thumbnail scales data down to maxWidth, preserving the aspect ratio, and
// encodes it as JPEG. Returns nil when the image is already narrow enough.
func Thumbnail(data []byte, maxWidth int) ([]byte, error) {
	width, _, err := Dimensions(data)
	if err != nil {
		return nil, err
	}
	if width <= maxWidth {
		return nil, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	bounds := img.Bounds()
	height := int(float64(bounds.Dy()) * float64(maxWidth) / float64(bounds.Dx()))
	if height < 1 {
		height = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, height))
	// Posters often carry transparency; flatten onto white, not black.
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: ThumbQuality}); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}
