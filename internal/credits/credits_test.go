// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package credits

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graphiste/internal/models"
)

var (
	now      = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	freePlan = &models.SubscriptionPlan{Slug: "free", MaxResolution: models.Resolution1K, FreeGenerations: 5}
	proPlan  = &models.SubscriptionPlan{Slug: "pro", PriceFCFA: 12500, MaxResolution: models.Resolution4K, CreditsPerMonth: 100}
	midPlan  = &models.SubscriptionPlan{Slug: "essentiel", PriceFCFA: 5000, MaxResolution: models.Resolution2K, CreditsPerMonth: 30}
)

func activeSub(credits, freeUsed int) *models.UserSubscription {
	end := now.Add(10 * 24 * time.Hour)
	return &models.UserSubscription{
		Status:              models.SubscriptionActive,
		CreditsRemaining:    credits,
		FreeGenerationsUsed: freeUsed,
		CurrentPeriodEnd:    &end,
	}
}

func TestCostTable(t *testing.T) {
	assert.Equal(t, 1, Cost(models.Resolution1K))
	assert.Equal(t, 2, Cost(models.Resolution2K))
	assert.Equal(t, 4, Cost(models.Resolution4K))
	assert.Equal(t, 0, Cost(models.Resolution("8K")))

	table := CostTable()
	table[models.Resolution1K] = 99
	assert.Equal(t, 1, Cost(models.Resolution1K), "CostTable must return a copy")
}

func TestCheck(t *testing.T) {
	user := uuid.New()
	expired := activeSub(50, 0)
	past := now.Add(-time.Hour)
	expired.CurrentPeriodEnd = &past

	tests := []struct {
		name     string
		in       Input
		wantCode Code
		wantCost int
		wantFree bool
	}{
		{
			name:     "anonymous user",
			in:       Input{Resolution: models.Resolution1K},
			wantCode: CodeAuthenticationRequired,
		},
		{
			name:     "free plan uses free generation",
			in:       Input{UserID: user, Subscription: activeSub(0, 2), Plan: freePlan, FreePlan: freePlan, Resolution: models.Resolution1K},
			wantFree: true,
		},
		{
			name:     "no subscription row yet falls back to free plan",
			in:       Input{UserID: user, FreePlan: freePlan, Resolution: models.Resolution1K},
			wantFree: true,
		},
		{
			name:     "free plan 2K not allowed",
			in:       Input{UserID: user, Subscription: activeSub(0, 0), Plan: freePlan, FreePlan: freePlan, Resolution: models.Resolution2K},
			wantCode: CodeResolutionNotAllowed,
		},
		{
			name:     "free limit reached",
			in:       Input{UserID: user, Subscription: activeSub(0, 5), Plan: freePlan, FreePlan: freePlan, Resolution: models.Resolution1K},
			wantCode: CodeFreeLimitReached,
		},
		{
			name:     "free plan with granted credits after limit",
			in:       Input{UserID: user, Subscription: activeSub(3, 5), Plan: freePlan, FreePlan: freePlan, Resolution: models.Resolution1K},
			wantCost: 1,
		},
		{
			name:     "pro plan 4K with enough credits",
			in:       Input{UserID: user, Subscription: activeSub(10, 0), Plan: proPlan, FreePlan: freePlan, Resolution: models.Resolution4K},
			wantCost: 4,
		},
		{
			name:     "pro plan insufficient credits",
			in:       Input{UserID: user, Subscription: activeSub(3, 0), Plan: proPlan, FreePlan: freePlan, Resolution: models.Resolution4K},
			wantCode: CodeInsufficientCredits,
		},
		{
			name:     "exact balance is enough",
			in:       Input{UserID: user, Subscription: activeSub(2, 0), Plan: midPlan, FreePlan: freePlan, Resolution: models.Resolution2K},
			wantCost: 2,
		},
		{
			name:     "mid plan 4K not allowed",
			in:       Input{UserID: user, Subscription: activeSub(100, 0), Plan: midPlan, FreePlan: freePlan, Resolution: models.Resolution4K},
			wantCode: CodeResolutionNotAllowed,
		},
		{
			name:     "expired paid plan falls back to free rules",
			in:       Input{UserID: user, Subscription: expired, Plan: proPlan, FreePlan: freePlan, Resolution: models.Resolution4K},
			wantCode: CodeResolutionNotAllowed,
		},
		{
			name:     "expired paid plan can still spend credits at 1K",
			in:       Input{UserID: user, Subscription: func() *models.UserSubscription { s := *expired; s.FreeGenerationsUsed = 5; return &s }(), Plan: proPlan, FreePlan: freePlan, Resolution: models.Resolution1K},
			wantCost: 1,
		},
		{
			name:     "unknown resolution",
			in:       Input{UserID: user, Subscription: activeSub(10, 0), Plan: proPlan, FreePlan: freePlan, Resolution: models.Resolution("8K")},
			wantCode: CodeResolutionNotAllowed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.in.Now = now
			d, err := Check(tt.in)
			if tt.wantCode != "" {
				require.Error(t, err)
				ce, ok := AsError(err)
				require.True(t, ok, "error should be *credits.Error")
				assert.Equal(t, tt.wantCode, ce.Code)
				assert.NotEmpty(t, ce.Message)
				assert.Nil(t, d)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantCost, d.Cost)
			assert.Equal(t, tt.wantFree, d.UseFreeGeneration)
			assert.NotNil(t, d.Plan)
		})
	}
}

func TestErrorHTTPStatus(t *testing.T) {
	cases := map[Code]int{
		CodeAuthenticationRequired: http.StatusUnauthorized,
		CodeInsufficientCredits:    http.StatusPaymentRequired,
		CodeFreeLimitReached:       http.StatusPaymentRequired,
		CodeResolutionNotAllowed:   http.StatusForbidden,
		Code("OTHER"):              http.StatusBadRequest,
	}
	for code, want := range cases {
		assert.Equal(t, want, (&Error{Code: code}).HTTPStatus(), code)
	}
}

func TestAsErrorUnwraps(t *testing.T) {
	wrapped := fmt.Errorf("generate: %w", NewError(CodeFreeLimitReached))
	ce, ok := AsError(wrapped)
	require.True(t, ok)
	assert.Equal(t, CodeFreeLimitReached, ce.Code)

	_, ok = AsError(errors.New("plain"))
	assert.False(t, ok)
}
