// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package models

import (
	"time"

	"github.com/google/uuid"
)

// SubscriptionPlan is a purchasable (or the free) plan from the catalog.
type SubscriptionPlan struct {
	ID              uuid.UUID  `json:"id"`
	Slug            string     `json:"slug"`
	Name            string     `json:"name"`
	Description     string     `json:"description"`
	PriceFCFA       int        `json:"price_fcfa"`
	Currency        string     `json:"currency"`
	CreditsPerMonth int        `json:"credits_per_month"`
	MaxResolution   Resolution `json:"max_resolution"`
	FreeGenerations int        `json:"free_generations"`
	DurationDays    int        `json:"duration_days"`
	IsActive        bool       `json:"is_active"`
	SortOrder       int        `json:"sort_order"`
}

// IsFree reports whether the plan costs nothing.
func (p *SubscriptionPlan) IsFree() bool {
	return p.PriceFCFA == 0
}

// SubscriptionStatus is the lifecycle state of a user subscription.
type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionExpired   SubscriptionStatus = "expired"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
	SubscriptionPending   SubscriptionStatus = "pending"
)

// UserSubscription holds a user's current plan and balance. There is at
// most one row per user.
type UserSubscription struct {
	ID                  uuid.UUID          `json:"id"`
	UserID              uuid.UUID          `json:"user_id"`
	PlanID              uuid.UUID          `json:"plan_id"`
	Status              SubscriptionStatus `json:"status"`
	CreditsRemaining    int                `json:"credits_remaining"`
	FreeGenerationsUsed int                `json:"free_generations_used"`
	CurrentPeriodStart  time.Time          `json:"current_period_start"`
	CurrentPeriodEnd    *time.Time         `json:"current_period_end,omitempty"`
	CreatedAt           time.Time          `json:"created_at"`
	UpdatedAt           time.Time          `json:"updated_at"`
}

// IsActiveAt reports whether the subscription is active and within its
// period at the given instant. A nil period end never expires.
func (s *UserSubscription) IsActiveAt(now time.Time) bool {
	if s.Status != SubscriptionActive {
		return false
	}
	return s.CurrentPeriodEnd == nil || now.Before(*s.CurrentPeriodEnd)
}
