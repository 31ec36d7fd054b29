// Command graphiste-admin is the operator CLI: it applies migrations, seeds
// the plan catalog and performs one-off account changes against the
// database configured in the environment.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"

	"graphiste/internal/config"
	"graphiste/internal/database"
	"graphiste/internal/models"
	"graphiste/internal/store"
)

// accounts is the part of the store the account commands use.
type accounts interface {
	FindProfile(ctx context.Context, id uuid.UUID) (*models.Profile, error)
	AddRole(ctx context.Context, userID uuid.UUID, role models.Role) error
	RemoveRole(ctx context.Context, userID uuid.UUID, role models.Role) (bool, error)
	GrantCredits(ctx context.Context, userID uuid.UUID, amount int, kind models.CreditKind, description string) (int, error)
}

// Runner holds the dependencies of every command. The database is opened
// on first use so --help works without one.
type Runner struct {
	output   io.Writer
	connect  func() (*sql.DB, error)
	db       *sql.DB
	accounts accounts
}

// RunnerOpts configures a Runner.
type RunnerOpts struct {
	Output   io.Writer
	Connect  func() (*sql.DB, error)
	Accounts accounts
}

// NewRunner creates a Runner.
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	return &Runner{output: opts.Output, connect: opts.Connect, accounts: opts.Accounts}
}

func (r *Runner) database() (*sql.DB, error) {
	if r.db != nil {
		return r.db, nil
	}
	if r.connect == nil {
		return nil, fmt.Errorf("no database configured")
	}
	db, err := r.connect()
	if err != nil {
		return nil, err
	}
	r.db = db
	return db, nil
}

func (r *Runner) store() (accounts, error) {
	if r.accounts != nil {
		return r.accounts, nil
	}
	db, err := r.database()
	if err != nil {
		return nil, err
	}
	r.accounts = store.New(db)
	return r.accounts, nil
}

// Close releases the database connection, if one was opened.
func (r *Runner) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *Runner) printf(format string, args ...any) {
	fmt.Fprintf(r.output, format, args...)
}

func (r *Runner) app() *cli.Command {
	return &cli.Command{
		Name:  "graphiste-admin",
		Usage: "Operate the Graphiste GPT database",
		Commands: []*cli.Command{
			{
				Name:   "migrate",
				Usage:  "Apply pending database migrations",
				Action: r.Migrate,
			},
			{
				Name:   "seed",
				Usage:  "Upsert subscription plans and role permissions",
				Action: r.Seed,
			},
			{
				Name:  "grant-credits",
				Usage: "Add or withdraw credits for a user",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "user", Usage: "User id", Required: true},
					&cli.IntFlag{Name: "amount", Usage: "Credits to add (negative to withdraw)", Required: true},
					&cli.StringFlag{Name: "reason", Usage: "Recorded on the credit transaction", Required: true},
				},
				Action: r.GrantCredits,
			},
			{
				Name:  "set-role",
				Usage: "Grant or revoke a back-office role",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "user", Usage: "User id", Required: true},
					&cli.StringFlag{Name: "role", Usage: "admin, moderator or user", Required: true},
					&cli.BoolFlag{Name: "remove", Usage: "Revoke the role instead of granting it"},
				},
				Action: r.SetRole,
			},
		},
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	runner := NewRunner(RunnerOpts{
		Connect: func() (*sql.DB, error) { return database.Connect(cfg.DSN()) },
	})
	defer runner.Close()

	if err := runner.app().Run(context.Background(), os.Args); err != nil {
		slog.Error("command failed", "error", err)
		runner.Close()
		os.Exit(1)
	}
}
