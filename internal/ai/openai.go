package ai

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
)

// openAIProvider implements Provider against the OpenAI chat completions
// API. Any OpenAI-compatible gateway works by changing BaseURL; the
// gateway's image-capable models are reached through the same endpoint.
type openAIProvider struct {
	config ProviderConfig
	api    *apiClient
	images *apiClient
}

// newOpenAI creates a new OpenAI provider.
func newOpenAI(cfg ProviderConfig) *openAIProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.TranscribeModel == "" {
		cfg.TranscribeModel = "whisper-1"
	}
	return &openAIProvider{
		config: cfg,
		api:    newAPIClient("openai", 60*time.Second, cfg.RequestsPerMinute),
		images: newAPIClient("openai image", 150*time.Second, cfg.RequestsPerMinute),
	}
}

func (p *openAIProvider) Name() string { return "openai" }

func (p *openAIProvider) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + p.config.APIKey}
}

// Chat sends a chat completion request and returns the assistant's reply.
func (p *openAIProvider) Chat(ctx context.Context, systemPrompt string, messages []Message) (string, error) {
	return p.doChat(ctx, p.api, openAIRequest{
		Model:    p.config.Model,
		Messages: withSystem(systemPrompt, messages),
	})
}

// withSystem prepends the system prompt to the conversation.
func withSystem(systemPrompt string, messages []Message) []openAIMessage {
	out := make([]openAIMessage, 0, len(messages)+1)
	if systemPrompt != "" {
		out = append(out, openAIMessage{Role: "system", Content: systemPrompt})
	}
	for _, m := range messages {
		out = append(out, openAIMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

// doChat performs the chat completions call. Shared with Mistral.
func (p *openAIProvider) doChat(ctx context.Context, api *apiClient, body any) (string, error) {
	var result openAIResponse
	if err := api.postJSON(ctx, p.config.BaseURL+"/chat/completions", p.headers(), body, &result); err != nil {
		return "", err
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("%s: no choices returned", api.name)
	}
	return result.Choices[0].Message.Content, nil
}

// AnalyzeImage sends the image as an image_url content part.
func (p *openAIProvider) AnalyzeImage(ctx context.Context, imageURL, instruction string) (string, error) {
	return p.doChat(ctx, p.api, openAIPartsRequest{
		Model: p.config.Model,
		Messages: []openAIPartsMessage{{
			Role:    "user",
			Content: userParts(instruction, []string{imageURL}),
		}},
	})
}

// GenerateImage asks an image-capable chat model for a picture. The gateway
// answers with data URLs under choices[0].message.images.
func (p *openAIProvider) GenerateImage(ctx context.Context, prompt string, opts ImageOptions) (*Image, error) {
	if p.config.ImageModel == "" {
		return nil, fmt.Errorf("openai: image generation requires IMAGE_MODEL to be set")
	}

	text := prompt
	if opts.Resolution != "" {
		text += "\nOutput resolution: " + opts.Resolution + "."
	}
	body := openAIPartsRequest{
		Model: p.config.ImageModel,
		Messages: []openAIPartsMessage{{
			Role:    "user",
			Content: userParts(text, opts.ReferenceURLs),
		}},
		Modalities: []string{"image", "text"},
	}

	raw, err := p.images.post(ctx, p.config.BaseURL+"/chat/completions", p.headers(), body)
	if err != nil {
		return nil, err
	}

	url := gjson.GetBytes(raw, "choices.0.message.images.0.image_url.url").String()
	if url == "" {
		return nil, fmt.Errorf("openai image: no image in response")
	}
	if img, err := decodeDataURL(url); err == nil {
		return img, nil
	}
	data, contentType, err := p.images.get(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("openai image download: %w", err)
	}
	return &Image{Data: data, ContentType: contentType}, nil
}

// Transcribe posts the audio to /audio/transcriptions as multipart form data.
func (p *openAIProvider) Transcribe(ctx context.Context, audio io.Reader, filename, language string) (string, error) {
	return transcribe(ctx, p.api, p.config.BaseURL, p.config.APIKey, p.config.TranscribeModel, audio, filename, language)
}

func transcribe(ctx context.Context, api *apiClient, baseURL, apiKey, model string, audio io.Reader, filename, language string) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("%s transcribe form: %w", api.name, err)
	}
	if _, err := io.Copy(part, audio); err != nil {
		return "", fmt.Errorf("%s transcribe copy: %w", api.name, err)
	}
	_ = mw.WriteField("model", model)
	if language != "" {
		_ = mw.WriteField("language", language)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("%s transcribe form: %w", api.name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/audio/transcriptions", &buf)
	if err != nil {
		return "", fmt.Errorf("%s transcribe request: %w", api.name, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+apiKey)

	body, _, err := api.send(ctx, req)
	if err != nil {
		return "", err
	}
	return gjson.GetBytes(body, "text").String(), nil
}

// userParts builds a text part followed by one image_url part per URL.
func userParts(text string, imageURLs []string) []openAIPart {
	parts := []openAIPart{{Type: "text", Text: text}}
	for _, u := range imageURLs {
		parts = append(parts, openAIPart{Type: "image_url", ImageURL: &openAIImageURL{URL: u}})
	}
	return parts
}

// --- OpenAI-compatible request/response types ---
// Used by both OpenAI and Mistral providers.

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model    string          `json:"model"`
	Messages []openAIMessage `json:"messages"`
}

type openAIImageURL struct {
	URL string `json:"url"`
}

type openAIPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *openAIImageURL `json:"image_url,omitempty"`
}

type openAIPartsMessage struct {
	Role    string       `json:"role"`
	Content []openAIPart `json:"content"`
}

type openAIPartsRequest struct {
	Model      string               `json:"model"`
	Messages   []openAIPartsMessage `json:"messages"`
	Modalities []string             `json:"modalities,omitempty"`
}

type openAIResponse struct {
	Choices []openAIChoice `json:"choices"`
}

type openAIChoice struct {
	Message openAIMessage `json:"message"`
}
