// store_test.go provides the shared helpers for store tests: a real
// database for integration tests (skipped when PostgreSQL is not
// available) and sqlmock fixtures for the unit tests.
package store

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"graphiste/internal/database"
	"graphiste/internal/models"
)

// testDSN returns the PostgreSQL connection string for testing.
// Uses environment variables with defaults matching docker-compose.yml.
func testDSN() string {
	host := envOr("POSTGRES_HOST", "localhost")
	port := envOr("POSTGRES_PORT", "5432")
	user := envOr("POSTGRES_USER", "graphiste")
	pass := envOr("POSTGRES_PASSWORD", "changeme")
	name := envOr("POSTGRES_DB", "graphiste")
	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + name + "?sslmode=disable"
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// testDB opens a connection to the test database, runs migrations and
// seeds the plan catalog. If the database is unavailable, the test is
// skipped.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("pgx", testDSN())
	if err != nil {
		t.Skipf("skipping integration test: cannot open DB: %v", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		t.Skipf("skipping integration test: DB not reachable: %v", err)
	}

	if err := database.Migrate(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}
	if err := database.Seed(db); err != nil {
		db.Close()
		t.Fatalf("failed to seed catalog: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

// testProfile creates a throwaway profile. Deleting it cascades to the
// subscription, ledger, images and payments.
func testProfile(t *testing.T, db *sql.DB) uuid.UUID {
	t.Helper()
	id := uuid.New()
	if _, err := NewProfileStore(db).EnsureProfile(context.Background(), id, id.String()+"@test.local", nil); err != nil {
		t.Fatalf("EnsureProfile: %v", err)
	}
	t.Cleanup(func() { db.Exec("DELETE FROM profiles WHERE id = $1", id) })
	return id
}

// newMock returns a sqlmock-backed connection and fails the test if any
// expectation is left unmet.
func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("expectations: %v", err)
		}
		db.Close()
	})
	return db, mock
}

var (
	paymentCols = []string{"id", "user_id", "plan_id", "provider", "provider_transaction_id", "amount",
		"currency", "status", "checkout_url", "created_at", "updated_at"}
	planCols = []string{"id", "slug", "name", "description", "price_fcfa", "currency", "credits_per_month",
		"max_resolution", "free_generations", "duration_days", "is_active", "sort_order"}
	imageCols = []string{"id", "user_id", "prompt", "domain", "resolution", "image_url", "s3_key",
		"thumbnail_url", "thumb_s3_key", "template_id", "credits_used", "created_at"}
	templateCols = []string{"id", "title", "slug", "domain", "description", "image_url", "thumbnail_url",
		"s3_key", "thumb_s3_key", "tags", "colors", "is_premium", "is_active", "usage_count",
		"created_by", "created_at", "updated_at"}
)

func paymentRow(p models.PaymentTransaction) *sqlmock.Rows {
	return sqlmock.NewRows(paymentCols).AddRow(
		p.ID.String(), p.UserID.String(), p.PlanID.String(), string(p.Provider), nullable(p.ProviderTransactionID),
		p.Amount, p.Currency, string(p.Status), nullable(p.CheckoutURL), p.CreatedAt, p.UpdatedAt,
	)
}

func planRow(p models.SubscriptionPlan) *sqlmock.Rows {
	return sqlmock.NewRows(planCols).AddRow(
		p.ID.String(), p.Slug, p.Name, p.Description, p.PriceFCFA, p.Currency, p.CreditsPerMonth,
		string(p.MaxResolution), p.FreeGenerations, p.DurationDays, p.IsActive, p.SortOrder,
	)
}

func imageRow(img models.GeneratedImage) *sqlmock.Rows {
	return sqlmock.NewRows(imageCols).AddRow(
		img.ID.String(), img.UserID.String(), img.Prompt, nil, string(img.Resolution), img.ImageURL, img.S3Key,
		nil, nil, nil, img.CreditsUsed, time.Now(),
	)
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
