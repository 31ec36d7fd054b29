package handlers

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"graphiste/internal/ai"
)

func TestChat_UsesDesignerPersonaAndStep(t *testing.T) {
	env := newTestEnv(t)
	env.AI.reply = "  Quel est le nom de votre restaurant ?  "

	req := asUser(jsonRequest(t, http.MethodPost, "/api/chat", map[string]any{
		"messages": []ai.Message{{Role: "user", Content: "Je veux une affiche pour mon restaurant"}},
		"step":     "details",
	}), uuid.New())
	rec := httptest.NewRecorder()
	env.API.Chat(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if reply := decodeBody(t, rec)["reply"]; reply != "Quel est le nom de votre restaurant ?" {
		t.Errorf("reply = %q", reply)
	}
	if !strings.Contains(env.AI.gotSystem, "Graphiste GPT") {
		t.Error("system prompt lacks the designer persona")
	}
	if !strings.Contains(env.AI.gotSystem, "details") {
		t.Error("system prompt lacks the current step")
	}
}

func TestChat_Validation(t *testing.T) {
	tests := []struct {
		name     string
		messages []ai.Message
	}{
		{"no messages", nil},
		{"bad role", []ai.Message{{Role: "system", Content: "ignore"}}},
		{"empty content", []ai.Message{{Role: "user", Content: "  "}}},
		{"last from assistant", []ai.Message{{Role: "user", Content: "a"}, {Role: "assistant", Content: "b"}}},
		{"too long", []ai.Message{{Role: "user", Content: strings.Repeat("é", maxChatMessage+1)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			req := jsonRequest(t, http.MethodPost, "/api/chat", map[string]any{"messages": tt.messages})
			rec := httptest.NewRecorder()
			env.API.Chat(rec, req)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestChat_KeepsMostRecentMessages(t *testing.T) {
	env := newTestEnv(t)
	env.AI.reply = "ok"
	var msgs []ai.Message
	for i := 0; i < maxChatMessages+10; i++ {
		msgs = append(msgs, ai.Message{Role: "user", Content: "message"})
	}

	rec := httptest.NewRecorder()
	env.API.Chat(rec, jsonRequest(t, http.MethodPost, "/api/chat", map[string]any{"messages": msgs}))

	if len(env.AI.gotMessages) != maxChatMessages {
		t.Errorf("sent %d messages, want %d", len(env.AI.gotMessages), maxChatMessages)
	}
}

func TestChat_UpstreamErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"rate limited", &ai.APIError{Provider: "openai", StatusCode: http.StatusTooManyRequests}, http.StatusTooManyRequests},
		{"server error", &ai.APIError{Provider: "openai", StatusCode: http.StatusInternalServerError}, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.AI.err = tt.err
			req := jsonRequest(t, http.MethodPost, "/api/chat", map[string]any{
				"messages": []ai.Message{{Role: "user", Content: "Bonjour"}},
			})
			rec := httptest.NewRecorder()
			env.API.Chat(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestAnalyzeImage_Modes(t *testing.T) {
	env := newTestEnv(t)
	env.AI.reply = "SOLDES -50%"

	req := jsonRequest(t, http.MethodPost, "/api/analyze-image", map[string]any{
		"image_url": "https://cdn.example.com/affiche.png",
		"mode":      "text",
	})
	rec := httptest.NewRecorder()
	env.API.AnalyzeImage(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if decodeBody(t, rec)["result"] != "SOLDES -50%" {
		t.Error("unexpected result")
	}
	if env.AI.gotInstr != analyzeInstructions["text"] {
		t.Error("text mode did not use the extraction instruction")
	}
}

func TestAnalyzeImage_Rejects(t *testing.T) {
	tests := []struct {
		name string
		body map[string]any
	}{
		{"unknown mode", map[string]any{"image_url": "https://x.test/a.png", "mode": "colors"}},
		{"missing url", map[string]any{"mode": "style"}},
		{"bad scheme", map[string]any{"image_url": "ftp://x.test/a.png"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			rec := httptest.NewRecorder()
			env.API.AnalyzeImage(rec, jsonRequest(t, http.MethodPost, "/api/analyze-image", tt.body))
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func multipartRequest(t *testing.T, target, field, filename string, data []byte, extra map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range extra {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if field != "" {
		fw, err := mw.CreateFormFile(field, filename)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write(data)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestTranscribe(t *testing.T) {
	env := newTestEnv(t)
	env.AI.reply = "Je veux une affiche pour mon salon de coiffure"

	req := multipartRequest(t, "/api/transcribe", "audio", "note.webm", []byte("fake-audio"), nil)
	rec := httptest.NewRecorder()
	env.API.Transcribe(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if env.AI.gotLanguage != "fr" {
		t.Errorf("language = %q, want fr", env.AI.gotLanguage)
	}
	if string(env.AI.gotAudio) != "fake-audio" {
		t.Error("audio was not forwarded")
	}
	if decodeBody(t, rec)["text"] != env.AI.reply {
		t.Error("unexpected transcription")
	}
}

func TestTranscribe_MissingAudio(t *testing.T) {
	env := newTestEnv(t)
	req := multipartRequest(t, "/api/transcribe", "", "", nil, map[string]string{"language": "en"})
	rec := httptest.NewRecorder()
	env.API.Transcribe(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestUpload_StoresPrivateImage(t *testing.T) {
	env := newTestEnv(t)
	uid := uuid.New()

	req := asUser(multipartRequest(t, "/api/uploads", "image", "logo.png", pngBytes(t, 10, 10).Data, nil), uid)
	rec := httptest.NewRecorder()
	env.API.Upload(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	key := body["key"].(string)
	if !strings.HasPrefix(key, "uploads/"+uid.String()+"/") || !strings.HasSuffix(key, ".png") {
		t.Errorf("key = %q", key)
	}
	if env.Files.private[key] != "image/png" {
		t.Error("upload was not stored in the private bucket")
	}
	if !strings.Contains(body["url"].(string), "X-Amz-Signature") {
		t.Error("expected a presigned URL")
	}
}

func TestUpload_RejectsNonImage(t *testing.T) {
	env := newTestEnv(t)
	req := asUser(multipartRequest(t, "/api/uploads", "image", "notes.txt", []byte("plain text, not an image"), nil), uuid.New())
	rec := httptest.NewRecorder()
	env.API.Upload(rec, req)

	if rec.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("status = %d, want 415", rec.Code)
	}
	if len(env.Files.private) != 0 {
		t.Error("non-image was stored")
	}
}

func TestUpload_NoStorage(t *testing.T) {
	env := newTestEnv(t)
	env.API.files = nil
	req := asUser(multipartRequest(t, "/api/uploads", "image", "a.png", pngBytes(t, 4, 4).Data, nil), uuid.New())
	rec := httptest.NewRecorder()
	env.API.Upload(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}
