package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"

	"graphiste/internal/database"
	"graphiste/internal/models"
)

// maxGrant bounds a single grant from the CLI.
const maxGrant = 100_000

// Migrate applies the embedded migrations.
func (r *Runner) Migrate(ctx context.Context, cmd *cli.Command) error {
	db, err := r.database()
	if err != nil {
		return err
	}
	if err := database.Migrate(db); err != nil {
		return err
	}
	r.printf("migrations applied\n")
	return nil
}

// Seed upserts the plan catalog and role permissions.
func (r *Runner) Seed(ctx context.Context, cmd *cli.Command) error {
	db, err := r.database()
	if err != nil {
		return err
	}
	if err := database.Seed(db); err != nil {
		return err
	}
	r.printf("catalog seeded\n")
	return nil
}

// GrantCredits records an admin grant and prints the new balance.
func (r *Runner) GrantCredits(ctx context.Context, cmd *cli.Command) error {
	userID, err := parseUser(cmd.String("user"))
	if err != nil {
		return err
	}
	amount := int(cmd.Int("amount"))
	if amount == 0 || amount > maxGrant || amount < -maxGrant {
		return fmt.Errorf("--amount must be non-zero and within ±%d", maxGrant)
	}
	reason := strings.TrimSpace(cmd.String("reason"))
	if reason == "" {
		return fmt.Errorf("--reason must not be blank")
	}

	st, err := r.store()
	if err != nil {
		return err
	}
	if err := requireProfile(ctx, st, userID); err != nil {
		return err
	}
	balance, err := st.GrantCredits(ctx, userID, amount, models.CreditAdminGrant, reason)
	if err != nil {
		return fmt.Errorf("grant credits: %w", err)
	}
	r.printf("granted %d credits to %s, balance %d\n", amount, userID, balance)
	return nil
}

// SetRole grants a role, or revokes it with --remove.
func (r *Runner) SetRole(ctx context.Context, cmd *cli.Command) error {
	userID, err := parseUser(cmd.String("user"))
	if err != nil {
		return err
	}
	role := models.Role(strings.ToLower(strings.TrimSpace(cmd.String("role"))))
	if !role.Valid() {
		return fmt.Errorf("unknown role %q", cmd.String("role"))
	}

	st, err := r.store()
	if err != nil {
		return err
	}
	if err := requireProfile(ctx, st, userID); err != nil {
		return err
	}

	if cmd.Bool("remove") {
		removed, err := st.RemoveRole(ctx, userID, role)
		if err != nil {
			return fmt.Errorf("remove role: %w", err)
		}
		if !removed {
			r.printf("%s does not hold %s\n", userID, role)
			return nil
		}
		r.printf("revoked %s from %s\n", role, userID)
		return nil
	}

	if err := st.AddRole(ctx, userID, role); err != nil {
		return fmt.Errorf("add role: %w", err)
	}
	r.printf("granted %s to %s\n", role, userID)
	return nil
}

func parseUser(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return uuid.Nil, fmt.Errorf("--user must be a user id: %w", err)
	}
	return id, nil
}

func requireProfile(ctx context.Context, st accounts, id uuid.UUID) error {
	p, err := st.FindProfile(ctx, id)
	if err != nil {
		return fmt.Errorf("find user: %w", err)
	}
	if p == nil {
		return fmt.Errorf("user %s not found (they must sign in once first)", id)
	}
	return nil
}
