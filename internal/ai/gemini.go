// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package ai

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"
)

// geminiProvider implements Provider using the Google Gemini REST API
// (POST /v1beta/models/{model}:generateContent).
type geminiProvider struct {
	config ProviderConfig
	api    *apiClient
	images *apiClient
}

// newGemini creates a new Google Gemini provider.
func newGemini(cfg ProviderConfig) *geminiProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://generativelanguage.googleapis.com"
	}
	return &geminiProvider{
		config: cfg,
		api:    newAPIClient("gemini", 60*time.Second, cfg.RequestsPerMinute),
		images: newAPIClient("gemini image", 150*time.Second, cfg.RequestsPerMinute),
	}
}

func (p *geminiProvider) Name() string { return "gemini" }

func (p *geminiProvider) endpoint(model string) string {
	return fmt.Sprintf("%s/v1beta/models/%s:generateContent", p.config.BaseURL, model)
}

func (p *geminiProvider) headers() map[string]string {
	return map[string]string{"x-goog-api-key": p.config.APIKey}
}

// Chat maps the conversation onto Gemini contents; assistant turns use
// the "model" role.
func (p *geminiProvider) Chat(ctx context.Context, systemPrompt string, messages []Message) (string, error) {
	body := geminiRequest{}
	if systemPrompt != "" {
		body.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: systemPrompt}}}
	}
	for _, m := range messages {
		role := "user"
		if m.Role == "assistant" {
			role = "model"
		}
		body.Contents = append(body.Contents, geminiContent{Role: role, Parts: []geminiPart{{Text: m.Content}}})
	}
	return p.generateText(ctx, p.config.Model, body)
}

// AnalyzeImage downloads the image and sends it inline with the instruction.
func (p *geminiProvider) AnalyzeImage(ctx context.Context, imageURL, instruction string) (string, error) {
	part, err := p.inlineImage(ctx, imageURL)
	if err != nil {
		return "", err
	}
	body := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: instruction}, part}}},
	}
	return p.generateText(ctx, p.config.Model, body)
}

func (p *geminiProvider) generateText(ctx context.Context, model string, body geminiRequest) (string, error) {
	var result geminiResponse
	if err := p.api.postJSON(ctx, p.endpoint(model), p.headers(), body, &result); err != nil {
		return "", err
	}
	if len(result.Candidates) == 0 {
		return "", fmt.Errorf("gemini: no candidates returned")
	}
	for _, part := range result.Candidates[0].Content.Parts {
		if part.Text != "" {
			return part.Text, nil
		}
	}
	return "", fmt.Errorf("gemini: no text in response")
}

// GenerateImage uses generateContent with the IMAGE response modality.
// Reference images are downloaded and sent inline.
func (p *geminiProvider) GenerateImage(ctx context.Context, prompt string, opts ImageOptions) (*Image, error) {
	model := p.config.ImageModel
	if model == "" {
		return nil, fmt.Errorf("gemini: image generation requires IMAGE_MODEL to be set")
	}

	parts := []geminiPart{{Text: prompt}}
	for _, u := range opts.ReferenceURLs {
		part, err := p.inlineImage(ctx, u)
		if err != nil {
			return nil, err
		}
		parts = append(parts, part)
	}

	body := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: parts}},
		GenerationConfig: &geminiGenerationConfig{
			ResponseModalities: []string{"IMAGE", "TEXT"},
		},
	}
	if opts.Resolution != "" {
		body.GenerationConfig.ImageConfig = &geminiImageConfig{ImageSize: opts.Resolution}
	}

	var result geminiResponse
	if err := p.images.postJSON(ctx, p.endpoint(model), p.headers(), body, &result); err != nil {
		return nil, err
	}

	for _, c := range result.Candidates {
		for _, part := range c.Content.Parts {
			if part.InlineData == nil || part.InlineData.Data == "" {
				continue
			}
			raw, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
			if err != nil {
				return nil, fmt.Errorf("gemini image decode base64: %w", err)
			}
			contentType := part.InlineData.MimeType
			if contentType == "" {
				contentType = "image/png"
			}
			return &Image{Data: raw, ContentType: contentType}, nil
		}
	}
	return nil, fmt.Errorf("gemini image: no image data in response")
}

// inlineImage turns a data: or http(s) URL into an inline data part.
func (p *geminiProvider) inlineImage(ctx context.Context, u string) (geminiPart, error) {
	if img, err := decodeDataURL(u); err == nil {
		return geminiPart{InlineData: &geminiInlineData{
			MimeType: img.ContentType,
			Data:     base64.StdEncoding.EncodeToString(img.Data),
		}}, nil
	}
	data, contentType, err := p.images.get(ctx, u, nil)
	if err != nil {
		return geminiPart{}, fmt.Errorf("gemini fetch image: %w", err)
	}
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return geminiPart{InlineData: &geminiInlineData{
		MimeType: contentType,
		Data:     base64.StdEncoding.EncodeToString(data),
	}}, nil
}

// --- Gemini API types ---

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiImageConfig struct {
	ImageSize string `json:"imageSize,omitempty"`
}

type geminiGenerationConfig struct {
	ResponseModalities []string           `json:"responseModalities,omitempty"`
	ImageConfig        *geminiImageConfig `json:"imageConfig,omitempty"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent          `json:"system_instruction,omitempty"`
	Contents          []geminiContent         `json:"contents"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiCandidate struct {
	Content geminiContent `json:"content"`
}

type geminiResponse struct {
	Candidates []geminiCandidate `json:"candidates"`
}
