// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"graphiste/internal/models"
	"graphiste/internal/store"
)

func TestAdminStats(t *testing.T) {
	env := newTestEnv(t)
	env.Store.stats = store.Stats{Users: 12, Images: 40, Revenue: 45000}

	rec := httptest.NewRecorder()
	env.Admin.Stats(rec, httptest.NewRequest(http.MethodGet, "/api/admin/stats", nil))

	stats := decodeBody(t, rec)["stats"].(map[string]any)
	if stats["users"] != float64(12) || stats["revenue"] != float64(45000) {
		t.Errorf("stats = %v", stats)
	}
}

func TestAdminAddRole(t *testing.T) {
	env := newTestEnv(t)
	uid := env.Store.addProfile("modo@example.com")

	req := withParams(jsonRequest(t, http.MethodPost, "/", map[string]string{"role": "moderator"}), "id", uid.String())
	rec := httptest.NewRecorder()
	env.Admin.AddRole(rec, asUser(req, uuid.New(), models.RoleAdmin))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if roles := env.Store.roles[uid]; len(roles) != 1 || roles[0] != models.RoleModerator {
		t.Errorf("roles = %v", roles)
	}
}

func TestAdminAddRole_Rejects(t *testing.T) {
	env := newTestEnv(t)
	uid := env.Store.addProfile("x@example.com")

	tests := []struct {
		name string
		user string
		role string
		want int
	}{
		{"unknown role", uid.String(), "superuser", http.StatusBadRequest},
		{"unknown user", uuid.New().String(), "admin", http.StatusNotFound},
		{"bad id", "nope", "admin", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := withParams(jsonRequest(t, http.MethodPost, "/", map[string]string{"role": tt.role}), "id", tt.user)
			rec := httptest.NewRecorder()
			env.Admin.AddRole(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestAdminRemoveRole(t *testing.T) {
	env := newTestEnv(t)
	uid := env.Store.addProfile("modo@example.com")
	env.Store.roles[uid] = []models.Role{models.RoleModerator}

	req := withParams(httptest.NewRequest(http.MethodDelete, "/", nil), "id", uid.String(), "role", "moderator")
	rec := httptest.NewRecorder()
	env.Admin.RemoveRole(rec, asUser(req, uuid.New(), models.RoleAdmin))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(env.Store.roles[uid]) != 0 {
		t.Errorf("roles = %v, want none", env.Store.roles[uid])
	}

	rec = httptest.NewRecorder()
	env.Admin.RemoveRole(rec, asUser(req, uuid.New(), models.RoleAdmin))
	if rec.Code != http.StatusNotFound {
		t.Errorf("second removal: status = %d, want 404", rec.Code)
	}
}

func TestAdminRemoveRole_CannotDemoteSelf(t *testing.T) {
	env := newTestEnv(t)
	self := env.Store.addProfile("admin@example.com")
	env.Store.roles[self] = []models.Role{models.RoleAdmin}

	req := withParams(httptest.NewRequest(http.MethodDelete, "/", nil), "id", self.String(), "role", "admin")
	rec := httptest.NewRecorder()
	env.Admin.RemoveRole(rec, asUser(req, self, models.RoleAdmin))

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	if len(env.Store.roles[self]) != 1 {
		t.Error("admin role was removed")
	}
}

func TestAdminGrantCredits(t *testing.T) {
	env := newTestEnv(t)
	uid := env.Store.addProfile("client@example.com")

	req := withParams(jsonRequest(t, http.MethodPost, "/", map[string]any{"amount": 25, "reason": "Geste commercial"}), "id", uid.String())
	rec := httptest.NewRecorder()
	env.Admin.GrantCredits(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if decodeBody(t, rec)["credits_remaining"] != float64(25) {
		t.Error("unexpected balance")
	}
}

func TestAdminGrantCredits_Rejects(t *testing.T) {
	env := newTestEnv(t)
	uid := env.Store.addProfile("client@example.com")

	tests := []struct {
		name   string
		amount int
		reason string
		want   int
	}{
		{"zero", 0, "x", http.StatusBadRequest},
		{"no reason", 5, " ", http.StatusBadRequest},
		{"too large", 50_000, "x", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := withParams(jsonRequest(t, http.MethodPost, "/", map[string]any{"amount": tt.amount, "reason": tt.reason}), "id", uid.String())
			rec := httptest.NewRecorder()
			env.Admin.GrantCredits(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestAdminGrantCredits_NegativeBalance(t *testing.T) {
	env := newTestEnv(t)
	uid := env.Store.addProfile("client@example.com")
	env.Store.grantErr = store.ErrInsufficientCredits

	req := withParams(jsonRequest(t, http.MethodPost, "/", map[string]any{"amount": -10, "reason": "Correction"}), "id", uid.String())
	rec := httptest.NewRecorder()
	env.Admin.GrantCredits(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestAdminPayments_StatusFilter(t *testing.T) {
	env := newTestEnv(t)
	env.Store.payments = []models.PaymentTransaction{
		{ID: uuid.New(), Status: models.PaymentCompleted},
		{ID: uuid.New(), Status: models.PaymentPending},
	}

	rec := httptest.NewRecorder()
	env.Admin.Payments(rec, httptest.NewRequest(http.MethodGet, "/api/admin/payments?status=completed", nil))
	if got := len(decodeBody(t, rec)["payments"].([]any)); got != 1 {
		t.Errorf("got %d payments, want 1", got)
	}

	rec = httptest.NewRecorder()
	env.Admin.Payments(rec, httptest.NewRequest(http.MethodGet, "/api/admin/payments?status=refunded", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown status: %d, want 400", rec.Code)
	}
}

func TestAdminAISetProvider(t *testing.T) {
	env := newTestEnv(t)

	rec := httptest.NewRecorder()
	env.Admin.AISetProvider(rec, jsonRequest(t, http.MethodPost, "/", map[string]string{"provider": "mistral"}))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if env.AI.active != "mistral" {
		t.Errorf("active = %q, want mistral", env.AI.active)
	}

	rec = httptest.NewRecorder()
	env.Admin.AIStatus(rec, httptest.NewRequest(http.MethodGet, "/api/admin/ai", nil))
	cfg := decodeBody(t, rec)["ai"].(map[string]any)
	if cfg["active_provider"] != "mistral" {
		t.Errorf("active_provider = %v", cfg["active_provider"])
	}
	for _, p := range cfg["providers"].([]any) {
		p := p.(map[string]any)
		if (p["name"] == "mistral") != (p["active"] == true) {
			t.Errorf("provider %v active = %v", p["name"], p["active"])
		}
	}
}

func TestAdminAISetProvider_Unavailable(t *testing.T) {
	env := newTestEnv(t)
	rec := httptest.NewRecorder()
	env.Admin.AISetProvider(rec, jsonRequest(t, http.MethodPost, "/", map[string]string{"provider": "claude"}))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if env.AI.active != "openai" {
		t.Error("active provider changed")
	}
}

func TestAdminCreateTemplate(t *testing.T) {
	env := newTestEnv(t)
	env.Store.templates[uuid.New()] = &models.ReferenceTemplate{Slug: "fete-de-noel"}

	req := multipartRequest(t, "/api/admin/templates", "image", "noel.png", pngBytes(t, 800, 600).Data, map[string]string{
		"title":     "Fête de Noël",
		"domain":    " Événementiel ",
		"tags":      "noël, fête, Noël",
		"colors":    "rouge, #00AA00",
		"is_active": "false",
	})
	rec := httptest.NewRecorder()
	env.Admin.CreateTemplate(rec, asUser(req, uuid.New(), models.RoleAdmin))

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	tpl := decodeBody(t, rec)["template"].(map[string]any)
	if tpl["slug"] != "fete-de-noel-2" {
		t.Errorf("slug = %v, want fete-de-noel-2", tpl["slug"])
	}
	if tpl["domain"] != "événementiel" {
		t.Errorf("domain = %v", tpl["domain"])
	}
	if tpl["is_active"] != false {
		t.Error("is_active should honour the form")
	}
	if tags := tpl["tags"].([]any); len(tags) != 2 {
		t.Errorf("tags = %v", tags)
	}
	if tpl["thumbnail_url"] == nil {
		t.Error("expected a thumbnail for a wide image")
	}
	if len(env.Files.public) != 2 {
		t.Errorf("stored %d objects, want image and thumbnail", len(env.Files.public))
	}
}

func TestAdminCreateTemplate_Rejects(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		data   []byte
		fields map[string]string
		want   int
	}{
		{"no title", pngBytes(t, 10, 10).Data, map[string]string{"domain": "mode"}, http.StatusBadRequest},
		{"no domain", pngBytes(t, 10, 10).Data, map[string]string{"title": "Soldes"}, http.StatusBadRequest},
		{"bad color", pngBytes(t, 10, 10).Data, map[string]string{"title": "Soldes", "domain": "mode", "colors": "arc-en-ciel"}, http.StatusBadRequest},
		{"not an image", []byte("%PDF-1.4"), map[string]string{"title": "Soldes", "domain": "mode"}, http.StatusUnsupportedMediaType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := multipartRequest(t, "/api/admin/templates", "image", "x.png", tt.data, tt.fields)
			rec := httptest.NewRecorder()
			env.Admin.CreateTemplate(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
	if len(env.Files.public) != 0 {
		t.Error("rejected uploads were stored")
	}
}

func TestAdminCreateTemplate_StoreFailureCleansUp(t *testing.T) {
	env := newTestEnv(t)
	env.Store.createErr = errors.New("insert failed")

	req := multipartRequest(t, "/api/admin/templates", "image", "x.png", pngBytes(t, 20, 20).Data,
		map[string]string{"title": "Soldes", "domain": "mode"})
	rec := httptest.NewRecorder()
	env.Admin.CreateTemplate(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if len(env.Files.deleted) != 1 || !strings.HasPrefix(env.Files.deleted[0], "templates/") {
		t.Errorf("deleted = %v, want the uploaded image", env.Files.deleted)
	}
}

func TestAdminUpdateTemplate_PartialUpdate(t *testing.T) {
	env := newTestEnv(t)
	tpl := &models.ReferenceTemplate{ID: uuid.New(), Title: "Ancien", Slug: "ancien", Domain: "mode", Tags: []string{"a"}, IsActive: true}
	env.Store.templates[tpl.ID] = tpl

	req := withParams(jsonRequest(t, http.MethodPut, "/", map[string]any{"title": "Nouveau titre", "is_premium": true}), "id", tpl.ID.String())
	rec := httptest.NewRecorder()
	env.Admin.UpdateTemplate(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	got := env.Store.templates[tpl.ID]
	if got.Title != "Nouveau titre" || !got.IsPremium {
		t.Errorf("template = %+v", got)
	}
	if got.Domain != "mode" || len(got.Tags) != 1 || !got.IsActive {
		t.Error("omitted fields were changed")
	}
}

func TestAdminSetTemplateActive(t *testing.T) {
	env := newTestEnv(t)
	tpl := &models.ReferenceTemplate{ID: uuid.New(), Title: "X", Domain: "mode", IsActive: true}
	env.Store.templates[tpl.ID] = tpl

	req := withParams(jsonRequest(t, http.MethodPost, "/", map[string]any{"active": false}), "id", tpl.ID.String())
	rec := httptest.NewRecorder()
	env.Admin.SetTemplateActive(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if env.Store.templates[tpl.ID].IsActive {
		t.Error("template still active")
	}

	req = withParams(jsonRequest(t, http.MethodPost, "/", map[string]any{}), "id", tpl.ID.String())
	rec = httptest.NewRecorder()
	env.Admin.SetTemplateActive(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing active: status = %d, want 400", rec.Code)
	}
}

func TestAdminDeleteTemplate_RemovesFiles(t *testing.T) {
	env := newTestEnv(t)
	thumb := "templates/t_thumb.jpg"
	tpl := &models.ReferenceTemplate{ID: uuid.New(), S3Key: "templates/t.png", ThumbS3Key: &thumb}
	env.Store.templates[tpl.ID] = tpl

	req := withParams(httptest.NewRequest(http.MethodDelete, "/", nil), "id", tpl.ID.String())
	rec := httptest.NewRecorder()
	env.Admin.DeleteTemplate(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(env.Files.deleted) != 2 {
		t.Errorf("deleted = %v", env.Files.deleted)
	}

	rec = httptest.NewRecorder()
	env.Admin.DeleteTemplate(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("second delete: status = %d, want 404", rec.Code)
	}
}
