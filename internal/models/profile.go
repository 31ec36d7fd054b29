// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package models defines the data structures that map to database tables
// and provides the core types used throughout the application.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Role represents a user's permission level in the back-office.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleModerator Role = "moderator"
	RoleUser      Role = "user"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleModerator, RoleUser:
		return true
	}
	return false
}

// Permission names a back-office capability granted to a role.
type Permission string

const (
	PermTemplatesManage Permission = "templates.manage"
	PermUsersManage     Permission = "users.manage"
	PermPaymentsView    Permission = "payments.view"
	PermStatsView       Permission = "stats.view"
	PermCreditsGrant    Permission = "credits.grant"
)

// Profile mirrors an authenticated user from the auth platform. The ID is
// the auth user ID (the JWT "sub" claim).
type Profile struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	FullName  *string   `json:"full_name,omitempty"`
	Phone     *string   `json:"phone,omitempty"`
	AvatarURL *string   `json:"avatar_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DisplayName returns the full name when set, otherwise the email.
func (p *Profile) DisplayName() string {
	if p.FullName != nil && *p.FullName != "" {
		return *p.FullName
	}
	return p.Email
}

// UserRole is a single role assignment.
type UserRole struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// RolePermission grants a permission to every user holding Role.
type RolePermission struct {
	ID         uuid.UUID  `json:"id"`
	Role       Role       `json:"role"`
	Permission Permission `json:"permission"`
}

// UserSummary is the admin listing row: profile, roles, and plan.
type UserSummary struct {
	Profile
	Roles            []Role `json:"roles"`
	PlanName         string `json:"plan_name"`
	CreditsRemaining int    `json:"credits_remaining"`
	ImageCount       int    `json:"image_count"`
}
