package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"graphiste/internal/models"
)

// PlanStore reads the subscription plan catalog.
type PlanStore struct {
	db *sql.DB
}

// NewPlanStore creates a new PlanStore with the given database connection.
func NewPlanStore(db *sql.DB) *PlanStore {
	return &PlanStore{db: db}
}

const planColumns = `id, slug, name, description, price_fcfa, currency, credits_per_month,
	max_resolution, free_generations, duration_days, is_active, sort_order`

func scanPlan(row scanner) (*models.SubscriptionPlan, error) {
	var p models.SubscriptionPlan
	err := row.Scan(
		&p.ID, &p.Slug, &p.Name, &p.Description, &p.PriceFCFA, &p.Currency, &p.CreditsPerMonth,
		&p.MaxResolution, &p.FreeGenerations, &p.DurationDays, &p.IsActive, &p.SortOrder,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListActivePlans returns purchasable and free plans in display order.
func (s *PlanStore) ListActivePlans(ctx context.Context) ([]models.SubscriptionPlan, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+planColumns+` FROM subscription_plans
		WHERE is_active ORDER BY sort_order, price_fcfa
	`)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()

	plans := []models.SubscriptionPlan{}
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		plans = append(plans, *p)
	}
	return plans, rows.Err()
}

// GetPlanByID returns a plan or nil if not found.
func (s *PlanStore) GetPlanByID(ctx context.Context, id uuid.UUID) (*models.SubscriptionPlan, error) {
	return getPlan(ctx, s.db, `id = $1`, id)
}

// GetPlanBySlug returns a plan or nil if not found.
func (s *PlanStore) GetPlanBySlug(ctx context.Context, slug string) (*models.SubscriptionPlan, error) {
	return getPlan(ctx, s.db, `slug = $1`, slug)
}

// FreePlan returns the free plan (price 0) with the lowest sort order.
func (s *PlanStore) FreePlan(ctx context.Context) (*models.SubscriptionPlan, error) {
	p, err := getPlan(ctx, s.db, `price_fcfa = 0 ORDER BY sort_order LIMIT 1`)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("free plan: not seeded")
	}
	return p, nil
}

func getPlan(ctx context.Context, q rowQuerier, where string, args ...any) (*models.SubscriptionPlan, error) {
	row := q.QueryRowContext(ctx, `SELECT `+planColumns+` FROM subscription_plans WHERE `+where, args...)
	p, err := scanPlan(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get plan: %w", err)
	}
	return p, nil
}
