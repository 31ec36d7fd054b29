// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package models

import (
	"time"

	"github.com/google/uuid"
)

// GeneratedImage is a poster produced for a user.
type GeneratedImage struct {
	ID           uuid.UUID  `json:"id"`
	UserID       uuid.UUID  `json:"user_id"`
	Prompt       string     `json:"prompt"`
	Domain       *string    `json:"domain,omitempty"`
	Resolution   Resolution `json:"resolution"`
	ImageURL     string     `json:"image_url"`
	S3Key        string     `json:"-"`
	ThumbnailURL *string    `json:"thumbnail_url,omitempty"`
	ThumbS3Key   *string    `json:"-"`
	TemplateID   *uuid.UUID `json:"template_id,omitempty"`
	CreditsUsed  int        `json:"credits_used"`
	CreatedAt    time.Time  `json:"created_at"`
}
