// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package ai

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync/atomic"
	"time"
)

// ModerationResult contains the outcome of a prompt safety check.
type ModerationResult struct {
	Safe       bool     // true if the prompt passes moderation
	Categories []string // flagged category names (empty when safe)
}

// Moderator checks user prompts for policy violations before sending
// them to AI generation endpoints.
type Moderator interface {
	CheckSafety(ctx context.Context, text string) (*ModerationResult, error)
}

// --- OpenAI Moderation (free endpoint) ---

type openAIModerator struct {
	apiKey  string
	baseURL string
	api     *apiClient
}

func newOpenAIModerator(apiKey, baseURL string) *openAIModerator {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &openAIModerator{
		apiKey:  apiKey,
		baseURL: baseURL,
		api:     newAPIClient("moderation", 15*time.Second, 0),
	}
}

func (m *openAIModerator) CheckSafety(ctx context.Context, text string) (*ModerationResult, error) {
	body := moderationRequest{Model: "omni-moderation-latest", Input: text}
	headers := map[string]string{"Authorization": "Bearer " + m.apiKey}

	var result moderationResponse
	if err := m.api.postJSON(ctx, m.baseURL+"/moderations", headers, body, &result); err != nil {
		return nil, err
	}
	if len(result.Results) == 0 || !result.Results[0].Flagged {
		return &ModerationResult{Safe: true}, nil
	}
	return &ModerationResult{Categories: flaggedCategories(result.Results[0].Categories)}, nil
}

// --- Mistral Moderation (paid, fallback) ---

type mistralModerator struct {
	apiKey  string
	baseURL string
	api     *apiClient
}

func newMistralModerator(apiKey, baseURL string) *mistralModerator {
	if baseURL == "" {
		baseURL = "https://api.mistral.ai/v1"
	}
	return &mistralModerator{
		apiKey:  apiKey,
		baseURL: strings.TrimSuffix(baseURL, "/v1"),
		api:     newAPIClient("mistral moderation", 15*time.Second, 0),
	}
}

func (m *mistralModerator) CheckSafety(ctx context.Context, text string) (*ModerationResult, error) {
	body := moderationRequest{Model: "mistral-moderation-latest", Input: text}
	headers := map[string]string{"Authorization": "Bearer " + m.apiKey}

	var result moderationResponse
	if err := m.api.postJSON(ctx, m.baseURL+"/v1/moderations", headers, body, &result); err != nil {
		return nil, err
	}
	if len(result.Results) == 0 {
		return &ModerationResult{Safe: true}, nil
	}
	// Mistral has no top-level "flagged"; any true category flags the prompt.
	flagged := flaggedCategories(result.Results[0].Categories)
	return &ModerationResult{Safe: len(flagged) == 0, Categories: flagged}, nil
}

// flaggedCategories converts "hate/threatening" to "hate (threatening)"
// and returns the flagged names sorted.
func flaggedCategories(cats map[string]bool) []string {
	var out []string
	for cat, on := range cats {
		if !on {
			continue
		}
		display := cat
		if before, after, ok := strings.Cut(cat, "/"); ok {
			display = before + " (" + after + ")"
		}
		out = append(out, strings.ReplaceAll(display, "_", " "))
	}
	sort.Strings(out)
	return out
}

// --- Fallback ---

// fallbackModerator tries primary and switches to secondary for good once
// primary rejects the credentials (project-scoped OpenAI keys cannot call
// the moderation endpoint).
type fallbackModerator struct {
	primary, secondary Moderator
	primaryDisabled    atomic.Bool
}

func newFallbackModerator(primary, secondary Moderator) *fallbackModerator {
	return &fallbackModerator{primary: primary, secondary: secondary}
}

func (f *fallbackModerator) CheckSafety(ctx context.Context, text string) (*ModerationResult, error) {
	if !f.primaryDisabled.Load() {
		res, err := f.primary.CheckSafety(ctx, text)
		if err == nil {
			return res, nil
		}
		ae, ok := AsAPIError(err)
		if !ok || (ae.StatusCode != http.StatusUnauthorized && ae.StatusCode != http.StatusForbidden) {
			return nil, err
		}
		slog.Warn("primary moderation rejected credentials, switching to fallback", "status", ae.StatusCode)
		f.primaryDisabled.Store(true)
	}
	return f.secondary.CheckSafety(ctx, text)
}

// --- Request/Response types ---

type moderationRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type moderationResponse struct {
	Results []moderationResult `json:"results"`
}

type moderationResult struct {
	Flagged    bool            `json:"flagged"`
	Categories map[string]bool `json:"categories"`
}
