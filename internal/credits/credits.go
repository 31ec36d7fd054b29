// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package credits decides whether a user may generate a poster at a given
// resolution and what it costs. It is a pure function over a subscription
// row and its plan; persistence of the outcome belongs to the caller.
package credits

import (
	"time"

	"github.com/google/uuid"

	"graphiste/internal/models"
)

// costs is the credit price of one generation per output resolution.
var costs = map[models.Resolution]int{
	models.Resolution1K: 1,
	models.Resolution2K: 2,
	models.Resolution4K: 4,
}

// Cost returns the credit price for res. Unknown resolutions cost 0 and
// are rejected by Check.
func Cost(res models.Resolution) int {
	return costs[res]
}

// CostTable returns a copy of the price table, for display.
func CostTable() map[models.Resolution]int {
	out := make(map[models.Resolution]int, len(costs))
	for k, v := range costs {
		out[k] = v
	}
	return out
}

// Input is everything Check needs. Plan is the plan of Subscription;
// FreePlan applies when the subscription is missing, inactive or expired.
type Input struct {
	UserID       uuid.UUID
	Subscription *models.UserSubscription
	Plan         *models.SubscriptionPlan
	FreePlan     *models.SubscriptionPlan
	Resolution   models.Resolution
	Now          time.Time
}

// Decision is an allowed generation. Exactly one of UseFreeGeneration or
// Cost > 0 is set.
type Decision struct {
	Cost              int
	UseFreeGeneration bool
	Plan              *models.SubscriptionPlan
}

// Check applies the plan rules:
//
//   - no user: AUTHENTICATION_REQUIRED
//   - active paid plan: resolution must not exceed the plan maximum, and the
//     balance must cover the cost (INSUFFICIENT_CREDITS)
//   - otherwise the free plan applies: resolution capped at the free maximum,
//     free generations first, then any granted credits, else FREE_LIMIT_REACHED
func Check(in Input) (*Decision, error) {
	if in.UserID == uuid.Nil {
		return nil, NewError(CodeAuthenticationRequired)
	}
	if in.Resolution.Rank() == 0 {
		return nil, NewError(CodeResolutionNotAllowed)
	}
	cost := Cost(in.Resolution)

	balance, freeUsed := 0, 0
	if in.Subscription != nil {
		balance = in.Subscription.CreditsRemaining
		freeUsed = in.Subscription.FreeGenerationsUsed
	}

	if in.Plan != nil && !in.Plan.IsFree() && in.Subscription != nil && in.Subscription.IsActiveAt(in.Now) {
		if !in.Resolution.AtMost(in.Plan.MaxResolution) {
			return nil, NewError(CodeResolutionNotAllowed)
		}
		if balance < cost {
			return nil, NewError(CodeInsufficientCredits)
		}
		return &Decision{Cost: cost, Plan: in.Plan}, nil
	}

	free := in.FreePlan
	if free == nil {
		free = in.Plan
	}
	if free == nil {
		return nil, NewError(CodeFreeLimitReached)
	}
	if !in.Resolution.AtMost(free.MaxResolution) {
		return nil, NewError(CodeResolutionNotAllowed)
	}
	if freeUsed < free.FreeGenerations {
		return &Decision{UseFreeGeneration: true, Plan: free}, nil
	}
	if balance >= cost {
		return &Decision{Cost: cost, Plan: free}, nil
	}
	return nil, NewError(CodeFreeLimitReached)
}
