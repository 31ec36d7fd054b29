// Package store provides database access for every Graphiste entity. Each
// store struct wraps a *sql.DB and exposes typed query methods; Store
// bundles them for callers that need several.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrInsufficientCredits is returned when a debit would make the
	// balance negative.
	ErrInsufficientCredits = errors.New("store: insufficient credits")
	// ErrFreeLimitReached is returned when no free generation is left.
	ErrFreeLimitReached = errors.New("store: free generations exhausted")
	// ErrPaymentNotFound is returned when a webhook matches no payment.
	ErrPaymentNotFound = errors.New("store: payment not found")
)

// Store bundles the per-entity stores.
type Store struct {
	*ProfileStore
	*PlanStore
	*SubscriptionStore
	*CreditStore
	*ImageStore
	*PaymentStore
	*TemplateStore
	*StatsStore
}

// New creates every store on the same connection pool.
func New(db *sql.DB) *Store {
	return &Store{
		ProfileStore:      NewProfileStore(db),
		PlanStore:         NewPlanStore(db),
		SubscriptionStore: NewSubscriptionStore(db),
		CreditStore:       NewCreditStore(db),
		ImageStore:        NewImageStore(db),
		PaymentStore:      NewPaymentStore(db),
		TemplateStore:     NewTemplateStore(db),
		StatsStore:        NewStatsStore(db),
	}
}

// withTx runs fn in a transaction, committing on nil and rolling back
// otherwise.
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// rowQuerier is satisfied by *sql.DB and *sql.Tx.
type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface{ Scan(...any) error }

// stringList scans a TEXT[] selected through to_json().
type stringList []string

func (l *stringList) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*l = []string{}
		return nil
	case []byte:
		return json.Unmarshal(v, (*[]string)(l))
	case string:
		return json.Unmarshal([]byte(v), (*[]string)(l))
	}
	return fmt.Errorf("stringList: unsupported type %T", src)
}

// jsonList encodes a list parameter for json_array_elements_text($n::json),
// the write-side counterpart of stringList.
func jsonList(items []string) string {
	if items == nil {
		items = []string{}
	}
	b, _ := json.Marshal(items)
	return string(b)
}

// clampLimit bounds page sizes.
func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
