package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"graphiste/internal/models"
)

// CreditStore handles the credit ledger.
type CreditStore struct {
	db *sql.DB
}

// NewCreditStore creates a new CreditStore with the given database connection.
func NewCreditStore(db *sql.DB) *CreditStore {
	return &CreditStore{db: db}
}

const creditColumns = `id, user_id, amount, kind, description, image_id, payment_id, balance_after, created_at`

// CreditHistory returns the user's latest ledger entries, newest first.
func (s *CreditStore) CreditHistory(ctx context.Context, userID uuid.UUID, limit int) ([]models.CreditTransaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+creditColumns+` FROM credit_transactions
		WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2
	`, userID, clampLimit(limit, 20, 100))
	if err != nil {
		return nil, fmt.Errorf("credit history: %w", err)
	}
	defer rows.Close()

	txs := []models.CreditTransaction{}
	for rows.Next() {
		var c models.CreditTransaction
		if err := rows.Scan(&c.ID, &c.UserID, &c.Amount, &c.Kind, &c.Description,
			&c.ImageID, &c.PaymentID, &c.BalanceAfter, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan credit transaction: %w", err)
		}
		txs = append(txs, c)
	}
	return txs, rows.Err()
}

// GrantCredits adds amount (negative to withdraw) to the user's balance and
// records it in the ledger. The balance never goes below zero.
func (s *CreditStore) GrantCredits(ctx context.Context, userID uuid.UUID, amount int, kind models.CreditKind, description string) (int, error) {
	if amount == 0 {
		return 0, fmt.Errorf("grant credits: amount must not be zero")
	}

	var balance int
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, insertFreeSubscription, userID); err != nil {
			return fmt.Errorf("grant credits: ensure subscription: %w", err)
		}

		err := tx.QueryRowContext(ctx, `
			UPDATE user_subscriptions
			SET credits_remaining = credits_remaining + $2, updated_at = NOW()
			WHERE user_id = $1 AND credits_remaining + $2 >= 0
			RETURNING credits_remaining
		`, userID, amount).Scan(&balance)
		if err == sql.ErrNoRows {
			return ErrInsufficientCredits
		}
		if err != nil {
			return fmt.Errorf("grant credits: %w", err)
		}

		return insertLedger(ctx, tx, models.CreditTransaction{
			UserID: userID, Amount: amount, Kind: kind, Description: description, BalanceAfter: balance,
		})
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}

func insertLedger(ctx context.Context, tx *sql.Tx, c models.CreditTransaction) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO credit_transactions (user_id, amount, kind, description, image_id, payment_id, balance_after)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, c.UserID, c.Amount, c.Kind, c.Description, c.ImageID, c.PaymentID, c.BalanceAfter)
	if err != nil {
		return fmt.Errorf("insert credit transaction: %w", err)
	}
	return nil
}
