package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"graphiste/internal/models"
)

// PaymentStore handles payment transactions.
type PaymentStore struct {
	db *sql.DB
}

// NewPaymentStore creates a new PaymentStore with the given database connection.
func NewPaymentStore(db *sql.DB) *PaymentStore {
	return &PaymentStore{db: db}
}

const paymentColumns = `id, user_id, plan_id, provider, provider_transaction_id, amount, currency,
	status, checkout_url, created_at, updated_at`

func scanPayment(row scanner) (*models.PaymentTransaction, error) {
	var p models.PaymentTransaction
	err := row.Scan(&p.ID, &p.UserID, &p.PlanID, &p.Provider, &p.ProviderTransactionID,
		&p.Amount, &p.Currency, &p.Status, &p.CheckoutURL, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// PaymentUpdate is a verified provider notification.
type PaymentUpdate struct {
	Provider              models.PaymentProvider
	ProviderTransactionID string
	Status                models.PaymentStatus
	// Echoed checkout metadata, used when the provider id was never stored.
	PaymentID *uuid.UUID
	UserID    *uuid.UUID
	PlanID    *uuid.UUID
	Amount    int
	Currency  string
	RawEvent  json.RawMessage
	Now       time.Time
}

// PaymentOutcome is what applying an update changed.
type PaymentOutcome struct {
	Payment        *models.PaymentTransaction
	Duplicate      bool
	Activated      bool
	CreditsGranted int
	Balance        int
}

// CreatePayment inserts a payment and fills in its generated fields.
func (s *PaymentStore) CreatePayment(ctx context.Context, p *models.PaymentTransaction) error {
	if p.Status == "" {
		p.Status = models.PaymentPending
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO payment_transactions (user_id, plan_id, provider, amount, currency, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`, p.UserID, p.PlanID, p.Provider, p.Amount, p.Currency, p.Status).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create payment: %w", err)
	}
	return nil
}

// AttachCheckout stores the provider's transaction id and hosted checkout URL.
func (s *PaymentStore) AttachCheckout(ctx context.Context, id uuid.UUID, providerTxID, checkoutURL string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE payment_transactions
		SET provider_transaction_id = $2, checkout_url = $3, updated_at = NOW()
		WHERE id = $1
	`, id, providerTxID, checkoutURL)
	if err != nil {
		return fmt.Errorf("attach checkout: %w", err)
	}
	return nil
}

// SetPaymentStatus overwrites a payment's status.
func (s *PaymentStore) SetPaymentStatus(ctx context.Context, id uuid.UUID, status models.PaymentStatus) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE payment_transactions SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("set payment status: %w", err)
	}
	return nil
}

// ApplyPayment records a provider notification. The first transition to
// completed activates the plan and grants its credits in the same
// transaction. Repeated or out-of-order notifications change nothing and
// come back with Duplicate set.
func (s *PaymentStore) ApplyPayment(ctx context.Context, u PaymentUpdate) (*PaymentOutcome, error) {
	if u.Now.IsZero() {
		u.Now = time.Now()
	}
	out := &PaymentOutcome{}

	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		p, err := lockPayment(ctx, tx, u)
		if err != nil {
			return err
		}

		if !transitionAllowed(p.Status, u.Status) {
			out.Payment = p
			out.Duplicate = true
			return nil
		}

		row := tx.QueryRowContext(ctx, `
			UPDATE payment_transactions
			SET status = $2, provider_transaction_id = $3, raw_event = $4, updated_at = $5
			WHERE id = $1
			RETURNING `+paymentColumns,
			p.ID, u.Status, u.ProviderTransactionID, rawJSON(u.RawEvent), u.Now)
		if out.Payment, err = scanPayment(row); err != nil {
			return fmt.Errorf("update payment: %w", err)
		}
		if u.Status != models.PaymentCompleted {
			return nil
		}

		plan, err := getPlan(ctx, tx, "id = $1", p.PlanID)
		if err != nil {
			return fmt.Errorf("apply payment: %w", err)
		}
		if plan == nil {
			return fmt.Errorf("apply payment: plan %s not found", p.PlanID)
		}

		balance, err := activatePlan(ctx, tx, p.UserID, plan, u.Now)
		if err != nil {
			return err
		}
		out.Activated = true
		out.CreditsGranted = plan.CreditsPerMonth
		out.Balance = balance

		return insertLedger(ctx, tx, models.CreditTransaction{
			UserID:       p.UserID,
			Amount:       plan.CreditsPerMonth,
			Kind:         models.CreditPurchase,
			Description:  "Abonnement " + plan.Name,
			PaymentID:    &p.ID,
			BalanceAfter: balance,
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// transitionAllowed reports whether a payment in state cur may move to next.
// A completed payment is terminal; a failed or cancelled one may still
// complete when the provider reports a late success.
func transitionAllowed(cur, next models.PaymentStatus) bool {
	switch {
	case cur == next, cur == models.PaymentCompleted:
		return false
	case cur.IsFinal() && next != models.PaymentCompleted:
		return false
	}
	return true
}

// lockPayment finds the payment an update refers to and locks it for the
// rest of the transaction. Lookup order: provider transaction id, then the
// echoed payment id. A notification carrying user and plan metadata but no
// known row creates one.
func lockPayment(ctx context.Context, tx *sql.Tx, u PaymentUpdate) (*models.PaymentTransaction, error) {
	p, err := scanPayment(tx.QueryRowContext(ctx, `
		SELECT `+paymentColumns+` FROM payment_transactions
		WHERE provider = $1 AND provider_transaction_id = $2 FOR UPDATE
	`, u.Provider, u.ProviderTransactionID))
	if err == nil {
		return p, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("find payment: %w", err)
	}

	if u.PaymentID != nil {
		p, err = scanPayment(tx.QueryRowContext(ctx, `
			SELECT `+paymentColumns+` FROM payment_transactions
			WHERE id = $1 AND provider = $2 FOR UPDATE
		`, *u.PaymentID, u.Provider))
		if err == nil {
			return p, nil
		}
		if err != sql.ErrNoRows {
			return nil, fmt.Errorf("find payment: %w", err)
		}
	}

	if u.UserID == nil || u.PlanID == nil {
		return nil, ErrPaymentNotFound
	}
	currency := u.Currency
	if currency == "" {
		currency = "XOF"
	}
	p, err = scanPayment(tx.QueryRowContext(ctx, `
		INSERT INTO payment_transactions (user_id, plan_id, provider, provider_transaction_id, amount, currency, status)
		VALUES ($1, $2, $3, $4, $5, $6, 'pending')
		RETURNING `+paymentColumns,
		*u.UserID, *u.PlanID, u.Provider, u.ProviderTransactionID, u.Amount, currency))
	if err != nil {
		return nil, fmt.Errorf("insert payment: %w", err)
	}
	return p, nil
}

func rawJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

// ListPayments returns the latest payments, optionally filtered by status.
func (s *PaymentStore) ListPayments(ctx context.Context, status models.PaymentStatus, limit int) ([]models.PaymentTransaction, error) {
	query := `SELECT ` + paymentColumns + ` FROM payment_transactions`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	args = append(args, clampLimit(limit, 50, 500))
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, len(args))

	return s.queryPayments(ctx, query, args...)
}

// ListUserPayments returns one user's payments, newest first.
func (s *PaymentStore) ListUserPayments(ctx context.Context, userID uuid.UUID, limit int) ([]models.PaymentTransaction, error) {
	return s.queryPayments(ctx, `
		SELECT `+paymentColumns+` FROM payment_transactions
		WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2
	`, userID, clampLimit(limit, 20, 100))
}

func (s *PaymentStore) queryPayments(ctx context.Context, query string, args ...any) ([]models.PaymentTransaction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	payments := []models.PaymentTransaction{}
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		payments = append(payments, *p)
	}
	return payments, rows.Err()
}

// FailStalePayments marks payments still pending since before as failed.
func (s *PaymentStore) FailStalePayments(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE payment_transactions SET status = 'failed', updated_at = NOW()
		WHERE status = 'pending' AND created_at < $1
	`, before)
	if err != nil {
		return 0, fmt.Errorf("fail stale payments: %w", err)
	}
	return res.RowsAffected()
}
