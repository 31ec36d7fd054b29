package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"graphiste/internal/models"
)

// ProfileStore handles profiles, roles and role permissions.
type ProfileStore struct {
	db *sql.DB
}

// NewProfileStore creates a new ProfileStore with the given database connection.
func NewProfileStore(db *sql.DB) *ProfileStore {
	return &ProfileStore{db: db}
}

const profileColumns = `id, email, full_name, phone, avatar_url, created_at, updated_at`

func scanProfile(row scanner) (*models.Profile, error) {
	var p models.Profile
	if err := row.Scan(&p.ID, &p.Email, &p.FullName, &p.Phone, &p.AvatarURL, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// EnsureProfile creates the profile for an authenticated user on first
// sight and keeps the email and name claims current.
func (s *ProfileStore) EnsureProfile(ctx context.Context, id uuid.UUID, email string, fullName *string) (*models.Profile, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO profiles (id, email, full_name)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			full_name = COALESCE(EXCLUDED.full_name, profiles.full_name),
			updated_at = CASE
				WHEN profiles.email IS DISTINCT FROM EXCLUDED.email THEN NOW()
				ELSE profiles.updated_at
			END
		RETURNING `+profileColumns,
		id, email, fullName,
	)
	p, err := scanProfile(row)
	if err != nil {
		return nil, fmt.Errorf("ensure profile: %w", err)
	}
	return p, nil
}

// FindProfile retrieves a profile by id. Returns nil if not found.
func (s *ProfileStore) FindProfile(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id)
	p, err := scanProfile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find profile: %w", err)
	}
	return p, nil
}

// Roles returns the user's roles. Every user implicitly has RoleUser.
func (s *ProfileStore) Roles(ctx context.Context, userID uuid.UUID) ([]models.Role, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT role FROM user_roles WHERE user_id = $1 ORDER BY role`, userID)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	defer rows.Close()

	roles := []models.Role{}
	hasUser := false
	for rows.Next() {
		var r models.Role
		if err := rows.Scan(&r); err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		hasUser = hasUser || r == models.RoleUser
		roles = append(roles, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	if !hasUser {
		roles = append(roles, models.RoleUser)
	}
	return roles, nil
}

// AddRole grants role to the user. Granting an existing role is a no-op.
func (s *ProfileStore) AddRole(ctx context.Context, userID uuid.UUID, role models.Role) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_roles (user_id, role) VALUES ($1, $2)
		ON CONFLICT (user_id, role) DO NOTHING
	`, userID, role)
	if err != nil {
		return fmt.Errorf("add role: %w", err)
	}
	return nil
}

// RemoveRole revokes role. Returns false when the user did not have it.
func (s *ProfileStore) RemoveRole(ctx context.Context, userID uuid.UUID, role models.Role) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM user_roles WHERE user_id = $1 AND role = $2`, userID, role)
	if err != nil {
		return false, fmt.Errorf("remove role: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Permissions returns the union of permissions granted to roles.
func (s *ProfileStore) Permissions(ctx context.Context, roles []models.Role) (map[models.Permission]bool, error) {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT permission FROM role_permissions
		WHERE role IN (SELECT json_array_elements_text($1::json))
	`, jsonList(names))
	if err != nil {
		return nil, fmt.Errorf("list permissions: %w", err)
	}
	defer rows.Close()

	perms := make(map[models.Permission]bool)
	for rows.Next() {
		var p models.Permission
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan permission: %w", err)
		}
		perms[p] = true
	}
	return perms, rows.Err()
}

// ListUsers returns profiles with roles, plan and usage, newest first.
func (s *ProfileStore) ListUsers(ctx context.Context, limit, offset int) ([]models.UserSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.email, p.full_name, p.phone, p.avatar_url, p.created_at, p.updated_at,
			to_json(COALESCE(ARRAY(SELECT r.role FROM user_roles r WHERE r.user_id = p.id ORDER BY r.role), '{}')),
			COALESCE(sp.name, ''),
			COALESCE(us.credits_remaining, 0),
			(SELECT COUNT(*) FROM generated_images gi WHERE gi.user_id = p.id)
		FROM profiles p
		LEFT JOIN user_subscriptions us ON us.user_id = p.id
		LEFT JOIN subscription_plans sp ON sp.id = us.plan_id
		ORDER BY p.created_at DESC
		LIMIT $1 OFFSET $2
	`, clampLimit(limit, 50, 200), offset)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := []models.UserSummary{}
	for rows.Next() {
		var u models.UserSummary
		var roles stringList
		if err := rows.Scan(
			&u.ID, &u.Email, &u.FullName, &u.Phone, &u.AvatarURL, &u.CreatedAt, &u.UpdatedAt,
			&roles, &u.PlanName, &u.CreditsRemaining, &u.ImageCount,
		); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		u.Roles = make([]models.Role, len(roles))
		for i, r := range roles {
			u.Roles[i] = models.Role(r)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
