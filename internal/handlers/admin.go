// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"graphiste/internal/cache"
	"graphiste/internal/middleware"
	"graphiste/internal/models"
	"graphiste/internal/store"
)

// AdminStore is the persistence behind the back-office.
type AdminStore interface {
	Stats(ctx context.Context) (*store.Stats, error)
	ListUsers(ctx context.Context, limit, offset int) ([]models.UserSummary, error)
	FindProfile(ctx context.Context, id uuid.UUID) (*models.Profile, error)
	AddRole(ctx context.Context, userID uuid.UUID, role models.Role) error
	RemoveRole(ctx context.Context, userID uuid.UUID, role models.Role) (bool, error)
	GrantCredits(ctx context.Context, userID uuid.UUID, amount int, kind models.CreditKind, description string) (int, error)
	ListPayments(ctx context.Context, status models.PaymentStatus, limit int) ([]models.PaymentTransaction, error)

	ListTemplates(ctx context.Context, f models.TemplateFilter) ([]models.ReferenceTemplate, error)
	GetTemplate(ctx context.Context, id uuid.UUID) (*models.ReferenceTemplate, error)
	TemplateSlugExists(ctx context.Context, slug string) (bool, error)
	CreateTemplate(ctx context.Context, t *models.ReferenceTemplate) error
	UpdateTemplate(ctx context.Context, t *models.ReferenceTemplate) (bool, error)
	SetTemplateActive(ctx context.Context, id uuid.UUID, active bool) (bool, error)
	DeleteTemplate(ctx context.Context, id uuid.UUID) (*models.ReferenceTemplate, error)
}

// AIControl switches the active AI provider at runtime.
type AIControl interface {
	SetActive(name string) error
	ActiveName() string
	SupportsImageGeneration() bool
}

// PublicFiles stores marketplace images in the public bucket.
type PublicFiles interface {
	PutPublic(ctx context.Context, key, contentType string, data []byte) (string, error)
	DeletePublic(ctx context.Context, keys ...string) error
}

// AIProviderInfo describes a configured AI provider to the back-office.
type AIProviderInfo struct {
	Name      string `json:"name"` // "openai", "gemini", "claude", "mistral"
	Label     string `json:"label"`
	HasKey    bool   `json:"has_key"`
	Active    bool   `json:"active"`
	Model     string `json:"model"`
	KeyEnvVar string `json:"key_env_var"`
}

// AIConfig is the provider overview shown in the back-office. It never
// carries API keys.
type AIConfig struct {
	ActiveProvider string           `json:"active_provider"`
	Providers      []AIProviderInfo `json:"providers"`
}

// Admin groups the back-office endpoints. Every route is mounted behind a
// role or permission check in the router.
type Admin struct {
	store   AdminStore
	ai      AIControl
	files   PublicFiles
	catalog *cache.Catalog

	mu       sync.Mutex
	aiConfig AIConfig
}

// NewAdmin creates the back-office handlers. files may be nil when object
// storage is not configured; template uploads then answer 503.
func NewAdmin(st AdminStore, aiCtl AIControl, files PublicFiles, catalog *cache.Catalog, aiCfg AIConfig) *Admin {
	return &Admin{store: st, ai: aiCtl, files: files, catalog: catalog, aiConfig: aiCfg}
}

// Stats returns the dashboard counters.
func (a *Admin) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := a.store.Stats(r.Context())
	if err != nil {
		respondError(w, r, "load stats", err)
		return
	}
	writeOK(w, map[string]any{"stats": st})
}

// Users lists profiles with their roles and plan.
func (a *Admin) Users(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r, 50, 200)
	users, err := a.store.ListUsers(r.Context(), limit, offset)
	if err != nil {
		respondError(w, r, "list users", err)
		return
	}
	writeOK(w, map[string]any{"users": users, "limit": limit, "offset": offset})
}

// AddRole grants a role to a user.
func (a *Admin) AddRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		Role models.Role `json:"role"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if !req.Role.Valid() {
		writeError(w, http.StatusBadRequest, "Rôle inconnu", "")
		return
	}
	if !a.requireProfile(w, r, userID) {
		return
	}

	if err := a.store.AddRole(r.Context(), userID, req.Role); err != nil {
		respondError(w, r, "add role", err)
		return
	}
	slog.Info("role granted", "user_id", userID, "role", req.Role, "by", actorID(r))
	writeOK(w, map[string]any{"user_id": userID, "role": req.Role})
}

// RemoveRole revokes a role. Admins cannot revoke their own admin role.
func (a *Admin) RemoveRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	role := models.Role(chi.URLParam(r, "role"))
	if !role.Valid() {
		writeError(w, http.StatusBadRequest, "Rôle inconnu", "")
		return
	}
	if role == models.RoleAdmin && actorID(r) == userID {
		writeError(w, http.StatusConflict, "Vous ne pouvez pas retirer votre propre rôle administrateur", "")
		return
	}

	removed, err := a.store.RemoveRole(r.Context(), userID, role)
	if err != nil {
		respondError(w, r, "remove role", err)
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, "Cet utilisateur n'a pas ce rôle", "")
		return
	}
	slog.Info("role revoked", "user_id", userID, "role", role, "by", actorID(r))
	writeOK(w, map[string]any{"user_id": userID, "role": role})
}

// GrantCredits adds (or withdraws, with a negative amount) credits.
func (a *Admin) GrantCredits(w http.ResponseWriter, r *http.Request) {
	userID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		Amount int    `json:"amount"`
		Reason string `json:"reason"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if msg := validateGrant(req.Amount, req.Reason); msg != "" {
		writeError(w, http.StatusBadRequest, msg, "")
		return
	}
	if !a.requireProfile(w, r, userID) {
		return
	}

	balance, err := a.store.GrantCredits(r.Context(), userID, req.Amount, models.CreditAdminGrant, strings.TrimSpace(req.Reason))
	if errors.Is(err, store.ErrInsufficientCredits) {
		writeError(w, http.StatusConflict, "Le solde ne peut pas devenir négatif", "INSUFFICIENT_CREDITS")
		return
	}
	if err != nil {
		respondError(w, r, "grant credits", err)
		return
	}
	slog.Info("credits granted", "user_id", userID, "amount", req.Amount, "balance", balance, "by", actorID(r))
	writeOK(w, map[string]any{"user_id": userID, "credits_remaining": balance})
}

// Payments lists recent payments, optionally filtered by status.
func (a *Admin) Payments(w http.ResponseWriter, r *http.Request) {
	status := models.PaymentStatus(r.URL.Query().Get("status"))
	switch status {
	case "", models.PaymentPending, models.PaymentCompleted, models.PaymentFailed, models.PaymentCancelled:
	default:
		writeError(w, http.StatusBadRequest, "Statut inconnu", "")
		return
	}
	limit, _ := pageParams(r, 100, 500)
	items, err := a.store.ListPayments(r.Context(), status, limit)
	if err != nil {
		respondError(w, r, "list payments", err)
		return
	}
	writeOK(w, map[string]any{"payments": items})
}

// AIStatus returns the provider overview.
func (a *Admin) AIStatus(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	cfg := a.aiConfig
	cfg.Providers = append([]AIProviderInfo(nil), a.aiConfig.Providers...)
	a.mu.Unlock()

	writeOK(w, map[string]any{
		"ai":               cfg,
		"active":           a.ai.ActiveName(),
		"image_generation": a.ai.SupportsImageGeneration(),
	})
}

// AISetProvider switches the active AI provider at runtime.
func (a *Admin) AISetProvider(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Provider string `json:"provider"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	name := strings.TrimSpace(req.Provider)
	if name == "" {
		writeError(w, http.StatusBadRequest, "Aucun fournisseur indiqué", "")
		return
	}

	if err := a.ai.SetActive(name); err != nil {
		slog.Warn("failed to switch AI provider", "provider", name, "error", err)
		writeError(w, http.StatusBadRequest, "Fournisseur indisponible (aucune clé API configurée)", "")
		return
	}
	a.refreshAIConfig(name)
	slog.Info("ai provider switched", "provider", name, "by", actorID(r))
	writeOK(w, map[string]any{"active": name})
}

func (a *Admin) refreshAIConfig(active string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.aiConfig.ActiveProvider = active
	for i := range a.aiConfig.Providers {
		a.aiConfig.Providers[i].Active = a.aiConfig.Providers[i].Name == active
	}
}

// requireProfile writes a 404 when the user does not exist.
func (a *Admin) requireProfile(w http.ResponseWriter, r *http.Request, id uuid.UUID) bool {
	p, err := a.store.FindProfile(r.Context(), id)
	if err != nil {
		respondError(w, r, "load profile", err)
		return false
	}
	if p == nil {
		writeError(w, http.StatusNotFound, "Utilisateur introuvable", "")
		return false
	}
	return true
}

// actorID is the id of the admin making the request.
func actorID(r *http.Request) uuid.UUID {
	if u := middleware.UserFromCtx(r.Context()); u != nil {
		return u.ID
	}
	return uuid.Nil
}

func parseBool(s string, def bool) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return b
}
