// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"graphiste/internal/ai"
	"graphiste/internal/conversation"
	"graphiste/internal/imaging"
	"graphiste/internal/storage"
)

const (
	// maxAudioSize is the speech-to-text upload limit (25 MB).
	maxAudioSize = 25 << 20
	// maxImageUpload is the reference/content image upload limit (10 MB).
	maxImageUpload = 10 << 20
	// uploadURLExpiry is how long a presigned upload URL stays readable,
	// long enough to finish the wizard and generate.
	uploadURLExpiry = 24 * time.Hour

	maxChatMessages = 30
	maxChatMessage  = 4000
)

// Assistant is the text side of the AI registry.
type Assistant interface {
	Chat(ctx context.Context, systemPrompt string, messages []ai.Message) (string, error)
	AnalyzeImage(ctx context.Context, imageURL, instruction string) (string, error)
	Transcribe(ctx context.Context, audio io.Reader, filename, language string) (string, error)
}

const designerPrompt = `Tu es Graphiste GPT, un graphiste professionnel qui aide des commerçants, églises, associations et entrepreneurs francophones à concevoir des affiches publicitaires.

Règles :
- Réponds en français, de façon chaleureuse et concise (3 phrases maximum sauf demande explicite).
- Pose une seule question à la fois pour compléter le brief : domaine, informations à afficher, style de référence, couleurs, image à intégrer.
- Propose des idées concrètes de slogan, de mise en page et de palette quand c'est utile.
- Ne génère jamais l'image toi-même : l'utilisateur lance la génération depuis l'interface.`

var analyzeInstructions = map[string]string{
	"text": "Extrais tout le texte visible sur cette affiche, ligne par ligne, sans commentaire. " +
		"Conserve l'orthographe exacte, les prix et les dates.",
	"style": "Décris le style graphique de cette affiche pour qu'un graphiste puisse s'en inspirer : " +
		"composition, typographies, palette de couleurs (avec codes hexadécimaux approximatifs), " +
		"ambiance et éléments décoratifs. Réponds en français en 6 points maximum.",
}

// Chat answers the wizard's free-form questions with the designer persona.
func (a *API) Chat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Messages []ai.Message `json:"messages"`
		Step     string       `json:"step"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if msg := validateChat(req.Messages); msg != "" {
		writeError(w, http.StatusBadRequest, msg, "")
		return
	}
	if len(req.Messages) > maxChatMessages {
		req.Messages = req.Messages[len(req.Messages)-maxChatMessages:]
	}

	system := designerPrompt
	if step := conversation.Step(req.Step); step.Valid() {
		system += fmt.Sprintf("\n\nÉtape actuelle de l'assistant : %s. Question posée à l'utilisateur : %s",
			step, conversation.Message(step))
	}

	reply, err := a.assistant.Chat(r.Context(), system, req.Messages)
	if err != nil {
		upstreamFailure(w, r, "chat", err)
		return
	}
	writeOK(w, map[string]any{"reply": strings.TrimSpace(reply)})
}

// AnalyzeImage extracts the text or describes the style of a poster.
func (a *API) AnalyzeImage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ImageURL string `json:"image_url"`
		Mode     string `json:"mode"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Mode == "" {
		req.Mode = "style"
	}
	instruction, ok := analyzeInstructions[req.Mode]
	if !ok {
		writeError(w, http.StatusBadRequest, "Mode d'analyse inconnu (text ou style)", "")
		return
	}
	if !validImageURL(req.ImageURL) {
		writeError(w, http.StatusBadRequest, "URL d'image invalide", "")
		return
	}

	result, err := a.assistant.AnalyzeImage(r.Context(), req.ImageURL, instruction)
	if err != nil {
		upstreamFailure(w, r, "analyze image", err)
		return
	}
	writeOK(w, map[string]any{"result": strings.TrimSpace(result), "mode": req.Mode})
}

// Transcribe converts a voice note to text. Expects a multipart form with
// an "audio" file and an optional "language" field (default fr).
func (a *API) Transcribe(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxAudioSize+1<<20)
	if err := r.ParseMultipartForm(maxAudioSize); err != nil {
		writeError(w, http.StatusBadRequest, "Fichier audio manquant ou trop volumineux (25 Mo maximum)", "")
		return
	}
	file, header, err := r.FormFile("audio")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Fichier audio manquant", "")
		return
	}
	defer file.Close()
	if header.Size > maxAudioSize {
		writeError(w, http.StatusRequestEntityTooLarge, "Fichier audio trop volumineux (25 Mo maximum)", "")
		return
	}

	language := r.FormValue("language")
	if language == "" {
		language = "fr"
	}
	filename := header.Filename
	if filename == "" {
		filename = "audio.webm"
	}

	text, err := a.assistant.Transcribe(r.Context(), file, filename, language)
	if err != nil {
		upstreamFailure(w, r, "transcribe", err)
		return
	}
	writeOK(w, map[string]any{"text": strings.TrimSpace(text)})
}

// Upload stores a reference or content image in the private bucket and
// returns a presigned URL the image model can fetch.
func (a *API) Upload(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	if a.files == nil {
		writeError(w, http.StatusServiceUnavailable, "Le stockage de fichiers n'est pas configuré", "")
		return
	}

	data, ok := readImageUpload(w, r, "image", maxImageUpload)
	if !ok {
		return
	}
	contentType, ext, err := imaging.Detect(data)
	if err != nil {
		writeError(w, http.StatusUnsupportedMediaType, "Format non supporté (PNG, JPEG, WebP ou GIF)", "")
		return
	}

	key := storage.UploadKey(u.ID, uuid.New(), ext)
	if err := a.files.PutPrivate(r.Context(), key, contentType, data); err != nil {
		respondError(w, r, "store upload", err)
		return
	}
	url, err := a.files.PresignPrivate(r.Context(), key, uploadURLExpiry)
	if err != nil {
		respondError(w, r, "presign upload", err)
		return
	}
	writeOK(w, map[string]any{"url": url, "key": key, "content_type": contentType})
}

// readImageUpload reads the named multipart file, writing the 4xx itself
// when it is missing or larger than limit.
func readImageUpload(w http.ResponseWriter, r *http.Request, field string, limit int64) ([]byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, limit+1<<20)
	if err := r.ParseMultipartForm(limit); err != nil {
		writeError(w, http.StatusBadRequest, "Image manquante ou trop volumineuse", "")
		return nil, false
	}
	file, header, err := r.FormFile(field)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Image manquante", "")
		return nil, false
	}
	defer file.Close()
	if header.Size > limit {
		writeError(w, http.StatusRequestEntityTooLarge, "Image trop volumineuse", "")
		return nil, false
	}
	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil || int64(len(data)) > limit {
		writeError(w, http.StatusBadRequest, "Image illisible", "")
		return nil, false
	}
	return data, true
}

// upstreamFailure answers an AI provider error: 429 when the provider is
// throttling us, 502 otherwise.
func upstreamFailure(w http.ResponseWriter, r *http.Request, action string, err error) {
	slog.Error(action+" failed", "error", err, "request_id", requestID(r))
	if apiErr, ok := ai.AsAPIError(err); ok && apiErr.StatusCode == http.StatusTooManyRequests {
		writeError(w, http.StatusTooManyRequests, "Le service IA est saturé. Réessayez dans quelques instants.", "RATE_LIMITED")
		return
	}
	if errors.Is(err, context.DeadlineExceeded) {
		writeError(w, http.StatusGatewayTimeout, "Le service IA n'a pas répondu à temps.", "")
		return
	}
	writeError(w, http.StatusBadGateway, "Le service IA est indisponible.", "UPSTREAM_ERROR")
}

func validateChat(messages []ai.Message) string {
	if len(messages) == 0 {
		return "Au moins un message est requis."
	}
	for _, m := range messages {
		if m.Role != "user" && m.Role != "assistant" {
			return "Rôle de message invalide."
		}
		if strings.TrimSpace(m.Content) == "" {
			return "Message vide."
		}
		if utf8.RuneCountInString(m.Content) > maxChatMessage {
			return "Message trop long (4000 caractères maximum)."
		}
	}
	if messages[len(messages)-1].Role != "user" {
		return "Le dernier message doit venir de l'utilisateur."
	}
	return ""
}

func validImageURL(u string) bool {
	return strings.HasPrefix(u, "https://") || strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "data:image/")
}
