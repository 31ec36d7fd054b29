// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package models

import (
	"time"

	"github.com/google/uuid"
)

// ReferenceTemplate is a marketplace example poster used to seed the style
// of a new generation.
type ReferenceTemplate struct {
	ID           uuid.UUID  `json:"id"`
	Title        string     `json:"title"`
	Slug         string     `json:"slug"`
	Domain       string     `json:"domain"`
	Description  string     `json:"description"`
	ImageURL     string     `json:"image_url"`
	ThumbnailURL *string    `json:"thumbnail_url,omitempty"`
	S3Key        string     `json:"-"`
	ThumbS3Key   *string    `json:"-"`
	Tags         []string   `json:"tags"`
	Colors       []string   `json:"colors"`
	IsPremium    bool       `json:"is_premium"`
	IsActive     bool       `json:"is_active"`
	UsageCount   int        `json:"usage_count"`
	CreatedBy    *uuid.UUID `json:"created_by,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// TemplateFilter narrows a marketplace listing.
type TemplateFilter struct {
	Domain     string
	Query      string
	OnlyActive bool
	Limit      int
	Offset     int
}
