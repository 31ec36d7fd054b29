// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package ai

import (
	"context"
	"io"
	"time"
)

// mistralProvider implements Provider using Mistral's chat completions
// API, which is OpenAI-compatible.
type mistralProvider struct {
	inner *openAIProvider
}

// newMistral creates a new Mistral provider. Mistral uses an
// OpenAI-compatible API at a different base URL.
func newMistral(cfg ProviderConfig) *mistralProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.mistral.ai/v1"
	}
	if cfg.TranscribeModel == "" || cfg.TranscribeModel == "whisper-1" {
		cfg.TranscribeModel = "voxtral-mini-latest"
	}
	return &mistralProvider{
		inner: &openAIProvider{
			config: cfg,
			api:    newAPIClient("mistral", 60*time.Second, cfg.RequestsPerMinute),
		},
	}
}

func (p *mistralProvider) Name() string { return "mistral" }

// Chat sends a chat completion request to Mistral's API.
func (p *mistralProvider) Chat(ctx context.Context, systemPrompt string, messages []Message) (string, error) {
	return p.inner.Chat(ctx, systemPrompt, messages)
}

// Transcribe uses Mistral's OpenAI-compatible transcription endpoint.
func (p *mistralProvider) Transcribe(ctx context.Context, audio io.Reader, filename, language string) (string, error) {
	return p.inner.Transcribe(ctx, audio, filename, language)
}
