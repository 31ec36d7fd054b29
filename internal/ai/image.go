// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package ai

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
)

// ImageOptions tune a single image generation.
type ImageOptions struct {
	Resolution    string   // "1K", "2K" or "4K"
	ReferenceURLs []string // style reference and content images, in that order
}

// Image is a generated picture.
type Image struct {
	Data        []byte
	ContentType string
}

// ImageGenerator is an optional interface for providers that can create
// images. Claude and Mistral are text-only.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string, opts ImageOptions) (*Image, error)
}

// VisionAnalyzer is an optional interface for providers that accept an
// image as input.
type VisionAnalyzer interface {
	// AnalyzeImage answers instruction about the image at imageURL, which
	// may be an https URL or a data: URL.
	AnalyzeImage(ctx context.Context, imageURL, instruction string) (string, error)
}

// Transcriber is an optional interface for providers with speech-to-text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio io.Reader, filename, language string) (string, error)
}

// SetImageGenerator routes image generation to g regardless of the active
// chat provider. Pass nil to go back to the active provider.
func (r *Registry) SetImageGenerator(g ImageGenerator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.images = g
}

// GenerateImage uses the dedicated image generator when one is set,
// otherwise the active provider (or the first provider that can).
func (r *Registry) GenerateImage(ctx context.Context, prompt string, opts ImageOptions) (*Image, error) {
	r.mu.RLock()
	g := r.images
	r.mu.RUnlock()

	if g == nil {
		var ok bool
		g, _, ok = capable[ImageGenerator](r)
		if !ok {
			return nil, fmt.Errorf("ai: no configured provider supports image generation")
		}
	}
	return g.GenerateImage(ctx, prompt, opts)
}

// SupportsImageGeneration returns true if some backend can generate images.
func (r *Registry) SupportsImageGeneration() bool {
	r.mu.RLock()
	g := r.images
	r.mu.RUnlock()
	if g != nil {
		return true
	}
	_, _, ok := capable[ImageGenerator](r)
	return ok
}

// AnalyzeImage delegates to a provider with vision support.
func (r *Registry) AnalyzeImage(ctx context.Context, imageURL, instruction string) (string, error) {
	v, _, ok := capable[VisionAnalyzer](r)
	if !ok {
		return "", fmt.Errorf("ai: no configured provider supports image analysis")
	}
	return v.AnalyzeImage(ctx, imageURL, instruction)
}

// Transcribe delegates to a provider with speech-to-text.
func (r *Registry) Transcribe(ctx context.Context, audio io.Reader, filename, language string) (string, error) {
	t, _, ok := capable[Transcriber](r)
	if !ok {
		return "", fmt.Errorf("ai: no configured provider supports transcription")
	}
	return t.Transcribe(ctx, audio, filename, language)
}

// decodeDataURL splits "data:image/png;base64,...." into bytes and type.
func decodeDataURL(u string) (*Image, error) {
	rest, ok := strings.CutPrefix(u, "data:")
	if !ok {
		return nil, fmt.Errorf("not a data URL")
	}
	meta, data, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, fmt.Errorf("malformed data URL")
	}
	contentType, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return nil, fmt.Errorf("data URL is not base64")
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("decode data URL: %w", err)
	}
	if contentType == "" {
		contentType = "image/png"
	}
	return &Image{Data: raw, ContentType: contentType}, nil
}
