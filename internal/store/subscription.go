package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"graphiste/internal/models"
)

// SubscriptionStore handles user subscriptions.
type SubscriptionStore struct {
	db *sql.DB
}

// NewSubscriptionStore creates a new SubscriptionStore with the given database connection.
func NewSubscriptionStore(db *sql.DB) *SubscriptionStore {
	return &SubscriptionStore{db: db}
}

const subscriptionColumns = `us.id, us.user_id, us.plan_id, us.status, us.credits_remaining,
	us.free_generations_used, us.current_period_start, us.current_period_end, us.created_at, us.updated_at`

func scanSubscription(row scanner, extra ...any) (*models.UserSubscription, error) {
	var s models.UserSubscription
	dest := append([]any{
		&s.ID, &s.UserID, &s.PlanID, &s.Status, &s.CreditsRemaining,
		&s.FreeGenerationsUsed, &s.CurrentPeriodStart, &s.CurrentPeriodEnd, &s.CreatedAt, &s.UpdatedAt,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return &s, nil
}

// insertFreeSubscription gives userID the free plan unless a subscription
// row already exists.
const insertFreeSubscription = `
	INSERT INTO user_subscriptions (user_id, plan_id, status)
	SELECT $1, id, 'active' FROM subscription_plans
	WHERE price_fcfa = 0 ORDER BY sort_order LIMIT 1
	ON CONFLICT (user_id) DO NOTHING`

// GetOrCreateSubscription returns the user's subscription and its plan,
// enrolling the user on the free plan first if needed.
func (s *SubscriptionStore) GetOrCreateSubscription(ctx context.Context, userID uuid.UUID) (*models.UserSubscription, *models.SubscriptionPlan, error) {
	if _, err := s.db.ExecContext(ctx, insertFreeSubscription, userID); err != nil {
		return nil, nil, fmt.Errorf("create free subscription: %w", err)
	}

	var p models.SubscriptionPlan
	row := s.db.QueryRowContext(ctx, `
		SELECT `+subscriptionColumns+`,
			sp.id, sp.slug, sp.name, sp.description, sp.price_fcfa, sp.currency, sp.credits_per_month,
			sp.max_resolution, sp.free_generations, sp.duration_days, sp.is_active, sp.sort_order
		FROM user_subscriptions us
		JOIN subscription_plans sp ON sp.id = us.plan_id
		WHERE us.user_id = $1
	`, userID)
	sub, err := scanSubscription(row,
		&p.ID, &p.Slug, &p.Name, &p.Description, &p.PriceFCFA, &p.Currency, &p.CreditsPerMonth,
		&p.MaxResolution, &p.FreeGenerations, &p.DurationDays, &p.IsActive, &p.SortOrder,
	)
	if err == sql.ErrNoRows {
		return nil, nil, fmt.Errorf("get subscription: free plan not seeded")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("get subscription: %w", err)
	}
	return sub, &p, nil
}

// ExpireSubscriptions marks active subscriptions whose period ended before
// now as expired and returns how many changed.
func (s *SubscriptionStore) ExpireSubscriptions(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE user_subscriptions SET status = 'expired', updated_at = $1
		WHERE status = 'active' AND current_period_end IS NOT NULL AND current_period_end <= $1
	`, now)
	if err != nil {
		return 0, fmt.Errorf("expire subscriptions: %w", err)
	}
	return res.RowsAffected()
}

// activatePlan puts userID on plan inside tx, adding the plan's credits.
// Renewing the same still-running plan extends the current period; any
// other case starts a new period at now. Returns the new balance.
func activatePlan(ctx context.Context, tx *sql.Tx, userID uuid.UUID, plan *models.SubscriptionPlan, now time.Time) (int, error) {
	var curPlan uuid.UUID
	var curStatus models.SubscriptionStatus
	var curStart time.Time
	var curEnd *time.Time
	err := tx.QueryRowContext(ctx, `
		SELECT plan_id, status, current_period_start, current_period_end FROM user_subscriptions
		WHERE user_id = $1 FOR UPDATE
	`, userID).Scan(&curPlan, &curStatus, &curStart, &curEnd)
	if err != nil && err != sql.ErrNoRows {
		return 0, fmt.Errorf("lock subscription: %w", err)
	}

	periodStart, end := now, now.AddDate(0, 0, plan.DurationDays)
	if err == nil && curPlan == plan.ID && curStatus == models.SubscriptionActive && curEnd != nil && curEnd.After(now) {
		periodStart, end = curStart, curEnd.AddDate(0, 0, plan.DurationDays)
	}

	var balance int
	err = tx.QueryRowContext(ctx, `
		INSERT INTO user_subscriptions (user_id, plan_id, status, credits_remaining, current_period_start, current_period_end)
		VALUES ($1, $2, 'active', $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			plan_id = EXCLUDED.plan_id,
			status = 'active',
			credits_remaining = user_subscriptions.credits_remaining + EXCLUDED.credits_remaining,
			current_period_start = EXCLUDED.current_period_start,
			current_period_end = EXCLUDED.current_period_end,
			updated_at = NOW()
		RETURNING credits_remaining
	`, userID, plan.ID, plan.CreditsPerMonth, periodStart, end).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("activate subscription: %w", err)
	}
	return balance, nil
}
