package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"graphiste/internal/imaging"
	"graphiste/internal/models"
	"graphiste/internal/slug"
	"graphiste/internal/storage"
)

// maxTemplateUpload bounds a marketplace template image (15 MB).
const maxTemplateUpload = 15 << 20

// Templates lists every template, inactive ones included.
func (a *Admin) Templates(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r, 50, 200)
	q := r.URL.Query()
	items, err := a.store.ListTemplates(r.Context(), models.TemplateFilter{
		Domain: q.Get("domain"),
		Query:  q.Get("q"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		respondError(w, r, "list templates", err)
		return
	}
	writeOK(w, map[string]any{"templates": items, "limit": limit, "offset": offset})
}

// CreateTemplate uploads a template image with its metadata. The form
// carries an "image" file plus title, domain, description, tags and
// colors (comma separated), is_premium and is_active.
func (a *Admin) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	if a.files == nil {
		writeError(w, http.StatusServiceUnavailable, "Le stockage de fichiers n'est pas configuré", "")
		return
	}
	data, ok := readImageUpload(w, r, "image", maxTemplateUpload)
	if !ok {
		return
	}

	fields := templateFields{
		Title:       r.FormValue("title"),
		Domain:      r.FormValue("domain"),
		Description: r.FormValue("description"),
		Tags:        splitList(r.FormValue("tags")),
		Colors:      splitList(r.FormValue("colors")),
	}
	if msg := fields.normalize(); msg != "" {
		writeError(w, http.StatusBadRequest, msg, "")
		return
	}
	contentType, ext, err := imaging.Detect(data)
	if err != nil {
		writeError(w, http.StatusUnsupportedMediaType, "Format non supporté (PNG, JPEG, WebP ou GIF)", "")
		return
	}

	ctx := r.Context()
	s, err := slug.Unique(slug.Generate(fields.Title), func(candidate string) (bool, error) {
		return a.store.TemplateSlugExists(ctx, candidate)
	})
	if err != nil {
		respondError(w, r, "template slug", err)
		return
	}

	id := uuid.New()
	key := storage.TemplateKey(id, "", ext)
	imageURL, err := a.files.PutPublic(ctx, key, contentType, data)
	if err != nil {
		respondError(w, r, "upload template", err)
		return
	}
	keys := []string{key}

	t := &models.ReferenceTemplate{
		Title:       fields.Title,
		Slug:        s,
		Domain:      fields.Domain,
		Description: fields.Description,
		ImageURL:    imageURL,
		S3Key:       key,
		Tags:        fields.Tags,
		Colors:      fields.Colors,
		IsPremium:   parseBool(r.FormValue("is_premium"), false),
		IsActive:    parseBool(r.FormValue("is_active"), true),
	}
	if u := actorID(r); u != uuid.Nil {
		t.CreatedBy = &u
	}

	thumb, err := imaging.Thumbnail(data, imaging.ThumbWidth)
	if err != nil {
		slog.Warn("template thumbnail failed", "key", key, "error", err)
	} else if thumb != nil {
		tk := storage.TemplateKey(id, "_thumb", ".jpg")
		if thumbURL, err := a.files.PutPublic(ctx, tk, "image/jpeg", thumb); err != nil {
			slog.Warn("template thumbnail upload failed", "key", tk, "error", err)
		} else {
			t.ThumbnailURL = &thumbURL
			t.ThumbS3Key = &tk
			keys = append(keys, tk)
		}
	}

	if err := a.store.CreateTemplate(ctx, t); err != nil {
		a.removeFiles(ctx, keys)
		respondError(w, r, "create template", err)
		return
	}
	a.catalog.Invalidate(ctx)

	slog.Info("template created", "template_id", t.ID, "slug", t.Slug, "by", actorID(r))
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "template": t})
}

// UpdateTemplate edits a template's metadata. Omitted fields keep their
// current value.
func (a *Admin) UpdateTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		Title       *string   `json:"title"`
		Domain      *string   `json:"domain"`
		Description *string   `json:"description"`
		Tags        *[]string `json:"tags"`
		Colors      *[]string `json:"colors"`
		IsPremium   *bool     `json:"is_premium"`
		IsActive    *bool     `json:"is_active"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	t, err := a.store.GetTemplate(r.Context(), id)
	if err != nil {
		respondError(w, r, "get template", err)
		return
	}
	if t == nil {
		writeError(w, http.StatusNotFound, "Modèle introuvable", "")
		return
	}

	fields := templateFields{Title: t.Title, Domain: t.Domain, Description: t.Description, Tags: t.Tags, Colors: t.Colors}
	if req.Title != nil {
		fields.Title = *req.Title
	}
	if req.Domain != nil {
		fields.Domain = *req.Domain
	}
	if req.Description != nil {
		fields.Description = *req.Description
	}
	if req.Tags != nil {
		fields.Tags = *req.Tags
	}
	if req.Colors != nil {
		fields.Colors = *req.Colors
	}
	if msg := fields.normalize(); msg != "" {
		writeError(w, http.StatusBadRequest, msg, "")
		return
	}

	t.Title, t.Domain, t.Description = fields.Title, fields.Domain, fields.Description
	t.Tags, t.Colors = fields.Tags, fields.Colors
	if req.IsPremium != nil {
		t.IsPremium = *req.IsPremium
	}
	if req.IsActive != nil {
		t.IsActive = *req.IsActive
	}

	found, err := a.store.UpdateTemplate(r.Context(), t)
	if err != nil {
		respondError(w, r, "update template", err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "Modèle introuvable", "")
		return
	}
	a.catalog.Invalidate(r.Context())
	writeOK(w, map[string]any{"template": t})
}

// SetTemplateActive shows or hides a template in the marketplace.
func (a *Admin) SetTemplateActive(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		Active *bool `json:"active"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Active == nil {
		writeError(w, http.StatusBadRequest, "Le champ active est requis", "")
		return
	}

	found, err := a.store.SetTemplateActive(r.Context(), id, *req.Active)
	if err != nil {
		respondError(w, r, "toggle template", err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "Modèle introuvable", "")
		return
	}
	a.catalog.Invalidate(r.Context())
	writeOK(w, map[string]any{"id": id, "active": *req.Active})
}

// DeleteTemplate removes a template and its stored images.
func (a *Admin) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	t, err := a.store.DeleteTemplate(r.Context(), id)
	if err != nil {
		respondError(w, r, "delete template", err)
		return
	}
	if t == nil {
		writeError(w, http.StatusNotFound, "Modèle introuvable", "")
		return
	}

	keys := []string{t.S3Key}
	if t.ThumbS3Key != nil {
		keys = append(keys, *t.ThumbS3Key)
	}
	a.removeFiles(r.Context(), keys)
	a.catalog.Invalidate(r.Context())

	slog.Info("template deleted", "template_id", id, "by", actorID(r))
	writeOK(w, map[string]any{"id": id})
}

// removeFiles deletes stored objects, logging failures. Leftover objects
// are harmless.
func (a *Admin) removeFiles(ctx context.Context, keys []string) {
	if a.files == nil || len(keys) == 0 {
		return
	}
	if err := a.files.DeletePublic(context.WithoutCancel(ctx), keys...); err != nil {
		slog.Warn("delete template files", "keys", keys, "error", err)
	}
}
