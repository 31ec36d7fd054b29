package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Stats are the back-office dashboard counters.
type Stats struct {
	Users               int `json:"users"`
	Images              int `json:"images"`
	ImagesToday         int `json:"images_today"`
	ActiveSubscriptions int `json:"active_subscriptions"`
	PaidSubscriptions   int `json:"paid_subscriptions"`
	CompletedPayments   int `json:"completed_payments"`
	Revenue             int `json:"revenue"`
	Templates           int `json:"templates"`
}

// StatsStore computes dashboard aggregates.
type StatsStore struct {
	db *sql.DB
}

// NewStatsStore creates a new StatsStore with the given database connection.
func NewStatsStore(db *sql.DB) *StatsStore {
	return &StatsStore{db: db}
}

// Stats returns the current counters in a single round trip. Revenue sums
// completed payments in FCFA.
func (s *StatsStore) Stats(ctx context.Context) (*Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM profiles),
			(SELECT COUNT(*) FROM generated_images),
			(SELECT COUNT(*) FROM generated_images WHERE created_at >= date_trunc('day', NOW())),
			(SELECT COUNT(*) FROM user_subscriptions WHERE status = 'active'),
			(SELECT COUNT(*) FROM user_subscriptions us JOIN subscription_plans sp ON sp.id = us.plan_id
				WHERE us.status = 'active' AND sp.price_fcfa > 0),
			(SELECT COUNT(*) FROM payment_transactions WHERE status = 'completed'),
			(SELECT COALESCE(SUM(amount), 0) FROM payment_transactions WHERE status = 'completed'),
			(SELECT COUNT(*) FROM reference_templates)
	`).Scan(&st.Users, &st.Images, &st.ImagesToday, &st.ActiveSubscriptions,
		&st.PaidSubscriptions, &st.CompletedPayments, &st.Revenue, &st.Templates)
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	return &st, nil
}
