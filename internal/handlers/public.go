// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"graphiste/internal/cache"
	"graphiste/internal/conversation"
	"graphiste/internal/models"
)

// TemplateReader is the read side of the template marketplace.
type TemplateReader interface {
	ListTemplates(ctx context.Context, f models.TemplateFilter) ([]models.ReferenceTemplate, error)
	GetTemplate(ctx context.Context, id uuid.UUID) (*models.ReferenceTemplate, error)
	TemplateDomains(ctx context.Context) ([]string, error)
}

// Public groups the marketplace endpoints, open to anonymous visitors.
// Listings go through the Valkey catalog cache first and fall back to
// Postgres on a miss.
type Public struct {
	templates TemplateReader
	catalog   *cache.Catalog
}

// NewPublic creates the marketplace handlers. catalog may be nil, in
// which case every request reads the database.
func NewPublic(templates TemplateReader, catalog *cache.Catalog) *Public {
	return &Public{templates: templates, catalog: catalog}
}

// Templates lists active templates, optionally narrowed by domain and a
// free-text query on title, description and tags.
func (p *Public) Templates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, offset := pageParams(r, 24, 100)
	f := models.TemplateFilter{
		Domain:     conversation.NormalizeDomain(q.Get("domain")),
		Query:      strings.TrimSpace(q.Get("q")),
		OnlyActive: true,
		Limit:      limit,
		Offset:     offset,
	}

	key := cache.TemplatesKey(f.Domain, f.Query, f.Limit, f.Offset)
	items, err := cache.Fetch(r.Context(), p.catalog, key, func(ctx context.Context) ([]models.ReferenceTemplate, error) {
		return p.templates.ListTemplates(ctx, f)
	})
	if err != nil {
		respondError(w, r, "list templates", err)
		return
	}
	if items == nil {
		items = []models.ReferenceTemplate{}
	}
	writeOK(w, map[string]any{"templates": items, "limit": limit, "offset": offset})
}

// Template returns one active template.
func (p *Public) Template(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	t, err := p.templates.GetTemplate(r.Context(), id)
	if err != nil {
		respondError(w, r, "get template", err)
		return
	}
	if t == nil || !t.IsActive {
		writeError(w, http.StatusNotFound, "Modèle introuvable", "")
		return
	}
	writeOK(w, map[string]any{"template": t})
}

// Domains lists the domains that have at least one active template.
func (p *Public) Domains(w http.ResponseWriter, r *http.Request) {
	domains, err := cache.Fetch(r.Context(), p.catalog, cache.DomainsKey, p.templates.TemplateDomains)
	if err != nil {
		respondError(w, r, "list template domains", err)
		return
	}
	if domains == nil {
		domains = []string{}
	}
	writeOK(w, map[string]any{"domains": domains})
}
