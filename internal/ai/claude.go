// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package ai

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"
)

// claudeProvider implements Provider using the Anthropic Messages API
// (POST /v1/messages).
type claudeProvider struct {
	config ProviderConfig
	api    *apiClient
}

// newClaude creates a new Anthropic Claude provider.
func newClaude(cfg ProviderConfig) *claudeProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.anthropic.com"
	}
	return &claudeProvider{
		config: cfg,
		api:    newAPIClient("claude", 60*time.Second, cfg.RequestsPerMinute),
	}
}

func (p *claudeProvider) Name() string { return "claude" }

func (p *claudeProvider) headers() map[string]string {
	return map[string]string{
		"x-api-key":         p.config.APIKey,
		"anthropic-version": "2023-06-01",
	}
}

// Chat sends the conversation to the Messages API.
func (p *claudeProvider) Chat(ctx context.Context, systemPrompt string, messages []Message) (string, error) {
	msgs := make([]claudeMessage, 0, len(messages))
	for _, m := range messages {
		msgs = append(msgs, claudeMessage{
			Role:    m.Role,
			Content: []claudeBlock{{Type: "text", Text: m.Content}},
		})
	}
	return p.send(ctx, systemPrompt, msgs)
}

// AnalyzeImage sends the image as a url or base64 image block.
func (p *claudeProvider) AnalyzeImage(ctx context.Context, imageURL, instruction string) (string, error) {
	src := &claudeImageSource{Type: "url", URL: imageURL}
	if img, err := decodeDataURL(imageURL); err == nil {
		src = &claudeImageSource{
			Type:      "base64",
			MediaType: img.ContentType,
			Data:      base64.StdEncoding.EncodeToString(img.Data),
		}
	}
	msgs := []claudeMessage{{
		Role: "user",
		Content: []claudeBlock{
			{Type: "image", Source: src},
			{Type: "text", Text: instruction},
		},
	}}
	return p.send(ctx, "", msgs)
}

func (p *claudeProvider) send(ctx context.Context, systemPrompt string, msgs []claudeMessage) (string, error) {
	body := claudeRequest{
		Model:     p.config.Model,
		MaxTokens: 4096,
		System:    systemPrompt,
		Messages:  msgs,
	}

	var result claudeResponse
	if err := p.api.postJSON(ctx, p.config.BaseURL+"/v1/messages", p.headers(), body, &result); err != nil {
		return "", err
	}
	for _, block := range result.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("claude: no text content in response")
}

// --- Anthropic Messages API types ---

type claudeImageSource struct {
	Type      string `json:"type"`
	URL       string `json:"url,omitempty"`
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
}

type claudeBlock struct {
	Type   string             `json:"type"`
	Text   string             `json:"text,omitempty"`
	Source *claudeImageSource `json:"source,omitempty"`
}

type claudeMessage struct {
	Role    string        `json:"role"`
	Content []claudeBlock `json:"content"`
}

type claudeRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens"`
	System    string          `json:"system,omitempty"`
	Messages  []claudeMessage `json:"messages"`
}

type claudeResponse struct {
	Content []claudeBlock `json:"content"`
}
