// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package database

import (
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"

	"github.com/BurntSushi/toml"

	"graphiste/internal/models"
)

//go:embed catalog.toml
var catalogTOML []byte

// Catalog is the seed data for plans and role permissions.
type Catalog struct {
	Plans       []CatalogPlan       `toml:"plans"`
	Permissions map[string][]string `toml:"permissions"`
}

// CatalogPlan is one [[plans]] entry in catalog.toml.
type CatalogPlan struct {
	Slug            string `toml:"slug"`
	Name            string `toml:"name"`
	Description     string `toml:"description"`
	PriceFCFA       int    `toml:"price_fcfa"`
	CreditsPerMonth int    `toml:"credits_per_month"`
	MaxResolution   string `toml:"max_resolution"`
	FreeGenerations int    `toml:"free_generations"`
	DurationDays    int    `toml:"duration_days"`
	SortOrder       int    `toml:"sort_order"`
}

// LoadCatalog parses the embedded plan catalog and validates it.
func LoadCatalog() (*Catalog, error) {
	return ParseCatalog(catalogTOML)
}

// ParseCatalog decodes a TOML catalog. Exactly one plan must be free, slugs
// must be unique, and every resolution and role must be known.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := toml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	seen := make(map[string]bool)
	free := 0
	for _, p := range c.Plans {
		if p.Slug == "" || p.Name == "" {
			return nil, fmt.Errorf("catalog: plan missing slug or name")
		}
		if seen[p.Slug] {
			return nil, fmt.Errorf("catalog: duplicate plan slug %q", p.Slug)
		}
		seen[p.Slug] = true
		if _, err := models.ParseResolution(p.MaxResolution); err != nil {
			return nil, fmt.Errorf("catalog: plan %q: %w", p.Slug, err)
		}
		if p.PriceFCFA == 0 {
			free++
		}
	}
	if free != 1 {
		return nil, fmt.Errorf("catalog: want exactly one free plan, got %d", free)
	}
	for role := range c.Permissions {
		if !models.Role(role).Valid() {
			return nil, fmt.Errorf("catalog: unknown role %q", role)
		}
	}
	return &c, nil
}

// Seed upserts the plan catalog and role permissions. It is idempotent:
// plans are keyed by slug and permissions by (role, permission).
func Seed(db *sql.DB) error {
	c, err := LoadCatalog()
	if err != nil {
		return err
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("seed begin: %w", err)
	}
	defer tx.Rollback()

	for _, p := range c.Plans {
		res, _ := models.ParseResolution(p.MaxResolution)
		_, err := tx.Exec(`
			INSERT INTO subscription_plans (slug, name, description, price_fcfa, credits_per_month,
				max_resolution, free_generations, duration_days, sort_order)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (slug) DO UPDATE SET
				name = EXCLUDED.name,
				description = EXCLUDED.description,
				price_fcfa = EXCLUDED.price_fcfa,
				credits_per_month = EXCLUDED.credits_per_month,
				max_resolution = EXCLUDED.max_resolution,
				free_generations = EXCLUDED.free_generations,
				duration_days = EXCLUDED.duration_days,
				sort_order = EXCLUDED.sort_order
		`, p.Slug, p.Name, p.Description, p.PriceFCFA, p.CreditsPerMonth,
			string(res), p.FreeGenerations, p.DurationDays, p.SortOrder)
		if err != nil {
			return fmt.Errorf("seed plan %s: %w", p.Slug, err)
		}
	}

	for role, perms := range c.Permissions {
		for _, perm := range perms {
			_, err := tx.Exec(`
				INSERT INTO role_permissions (role, permission)
				VALUES ($1, $2)
				ON CONFLICT (role, permission) DO NOTHING
			`, role, perm)
			if err != nil {
				return fmt.Errorf("seed permission %s/%s: %w", role, perm, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("seed commit: %w", err)
	}

	slog.Info("catalog seeded", "plans", len(c.Plans), "roles", len(c.Permissions))
	return nil
}
