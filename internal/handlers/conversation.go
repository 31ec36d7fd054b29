package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"graphiste/internal/conversation"
	"graphiste/internal/generation"
	"graphiste/internal/models"
)

// conversationView is the wizard state plus the assistant's line for the
// current step.
func conversationView(st conversation.State) map[string]any {
	return map[string]any{
		"state":   st,
		"message": conversation.Message(st.Step),
	}
}

// conversationMessage turns an Advance error into the text shown in the chat.
func conversationMessage(err error) string {
	switch {
	case errors.Is(err, conversation.ErrEmptyInput):
		return "Merci de répondre à la question pour continuer."
	case errors.Is(err, conversation.ErrNotSkippable):
		return "Cette étape ne peut pas être passée."
	case errors.Is(err, conversation.ErrColors):
		return "Indiquez entre 1 et 5 couleurs."
	case errors.Is(err, conversation.ErrBadColor):
		return "Couleur non reconnue. Utilisez un nom (rouge, bleu…) ou un code comme #ff8800."
	case errors.Is(err, conversation.ErrGenerating):
		return "Votre affiche est en cours de génération."
	case errors.Is(err, conversation.ErrResolution):
		return "Résolution inconnue. Choisissez 1K, 2K ou 4K."
	case errors.Is(err, conversation.ErrFinished):
		return "Cette création est terminée. Recommencez pour créer une nouvelle affiche."
	}
	return "Réponse invalide pour cette étape."
}

// Conversation returns the caller's wizard state, starting one if needed.
func (a *API) Conversation(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	st, err := a.convs.Get(r.Context(), u.ID)
	if err != nil {
		respondError(w, r, "load conversation", err)
		return
	}
	writeOK(w, conversationView(st))
}

// AdvanceConversation applies the caller's answer to the current step.
func (a *API) AdvanceConversation(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	var in conversation.Input
	if !decodeJSON(w, r, &in) {
		return
	}

	st, err := a.convs.Get(r.Context(), u.ID)
	if err != nil {
		respondError(w, r, "load conversation", err)
		return
	}

	next, err := conversation.Advance(st, in, a.now())
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error": conversationMessage(err),
			"state": st,
		})
		return
	}

	if err := a.convs.Save(r.Context(), u.ID, next); err != nil {
		respondError(w, r, "save conversation", err)
		return
	}
	writeOK(w, conversationView(next))
}

// ResetConversation discards the wizard and starts over.
func (a *API) ResetConversation(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	if err := a.convs.Delete(r.Context(), u.ID); err != nil {
		respondError(w, r, "reset conversation", err)
		return
	}
	writeOK(w, conversationView(conversation.Reset(a.now())))
}

type generateRequest struct {
	Prompt          string     `json:"prompt"`
	UseConversation bool       `json:"use_conversation"`
	Domain          string     `json:"domain"`
	Resolution      string     `json:"resolution"`
	TemplateID      *uuid.UUID `json:"template_id"`
	ReferenceURLs   []string   `json:"reference_urls"`
}

// Generate creates a poster, either from a free prompt or from the
// caller's finished wizard. The wizard moves to complete on success and
// back to the content image step on failure.
func (a *API) Generate(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	var body generateRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	if body.UseConversation {
		a.generateFromConversation(w, r, u.ID)
		return
	}

	res, err := models.ParseResolution(body.Resolution)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Résolution inconnue", "")
		return
	}
	result, err := a.generator.Generate(r.Context(), u.ID, generation.Request{
		Prompt:        body.Prompt,
		Domain:        body.Domain,
		Resolution:    res,
		TemplateID:    body.TemplateID,
		ReferenceURLs: body.ReferenceURLs,
	})
	if err != nil {
		respondError(w, r, "generate poster", err)
		return
	}
	writeOK(w, map[string]any{
		"image":             result.Image,
		"credits_remaining": result.Balance,
		"free_generation":   result.Free,
	})
}

func (a *API) generateFromConversation(w http.ResponseWriter, r *http.Request, userID uuid.UUID) {
	ctx := r.Context()
	st, err := a.convs.Get(ctx, userID)
	if err != nil {
		respondError(w, r, "load conversation", err)
		return
	}
	if st.Step != conversation.StepGenerating || !st.Ready() {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error": "Terminez les étapes de la conversation avant de générer.",
			"state": st,
		})
		return
	}

	result, genErr := a.generator.Generate(ctx, userID, generation.Request{
		Prompt:        conversation.Prompt(st),
		Domain:        st.Domain,
		Resolution:    st.Resolution,
		TemplateID:    st.ReferenceTemplateID,
		ReferenceURLs: conversation.ReferenceURLs(st),
	})

	var next conversation.State
	if genErr != nil {
		next, err = conversation.Fail(st, a.now())
	} else {
		next, err = conversation.Complete(st, result.Image.ID, result.Image.ImageURL, a.now())
	}
	if err == nil {
		err = a.convs.Save(ctx, userID, next)
	}
	if err != nil {
		slog.Warn("save conversation after generation", "user_id", userID, "error", err)
	}

	if genErr != nil {
		respondError(w, r, "generate poster", genErr)
		return
	}
	writeOK(w, map[string]any{
		"image":             result.Image,
		"credits_remaining": result.Balance,
		"free_generation":   result.Free,
		"state":             next,
		"message":           conversation.Message(next.Step),
	})
}
