package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"graphiste/internal/models"
)

// TemplateStore handles the reference template marketplace.
type TemplateStore struct {
	db *sql.DB
}

// NewTemplateStore creates a new TemplateStore with the given database connection.
func NewTemplateStore(db *sql.DB) *TemplateStore {
	return &TemplateStore{db: db}
}

const templateColumns = `id, title, slug, domain, description, image_url, thumbnail_url, s3_key,
	thumb_s3_key, to_json(tags), to_json(colors), is_premium, is_active, usage_count,
	created_by, created_at, updated_at`

func scanTemplate(row scanner) (*models.ReferenceTemplate, error) {
	var t models.ReferenceTemplate
	var tags, colors stringList
	err := row.Scan(
		&t.ID, &t.Title, &t.Slug, &t.Domain, &t.Description, &t.ImageURL, &t.ThumbnailURL, &t.S3Key,
		&t.ThumbS3Key, &tags, &colors, &t.IsPremium, &t.IsActive, &t.UsageCount,
		&t.CreatedBy, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.Tags, t.Colors = tags, colors
	return &t, nil
}

// ListTemplates returns templates matching f, most used first. Query
// matches the title, description or any tag, case-insensitively.
func (s *TemplateStore) ListTemplates(ctx context.Context, f models.TemplateFilter) ([]models.ReferenceTemplate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+templateColumns+` FROM reference_templates
		WHERE (NOT $1 OR is_active)
			AND ($2 = '' OR domain = $2)
			AND ($3 = '' OR title ILIKE '%' || $3 || '%'
				OR description ILIKE '%' || $3 || '%'
				OR EXISTS (SELECT 1 FROM unnest(tags) tag WHERE tag ILIKE '%' || $3 || '%'))
		ORDER BY usage_count DESC, created_at DESC
		LIMIT $4 OFFSET $5
	`, f.OnlyActive, f.Domain, f.Query, clampLimit(f.Limit, 24, 100), max(f.Offset, 0))
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	templates := []models.ReferenceTemplate{}
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		templates = append(templates, *t)
	}
	return templates, rows.Err()
}

// GetTemplate returns a template or nil if not found.
func (s *TemplateStore) GetTemplate(ctx context.Context, id uuid.UUID) (*models.ReferenceTemplate, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+templateColumns+` FROM reference_templates WHERE id = $1`, id)
	t, err := scanTemplate(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	return t, nil
}

// TemplateDomains returns the distinct domains of active templates.
func (s *TemplateStore) TemplateDomains(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT domain FROM reference_templates WHERE is_active ORDER BY domain
	`)
	if err != nil {
		return nil, fmt.Errorf("template domains: %w", err)
	}
	defer rows.Close()

	domains := []string{}
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan domain: %w", err)
		}
		domains = append(domains, d)
	}
	return domains, rows.Err()
}

// TemplateSlugExists checks whether a slug is taken.
func (s *TemplateStore) TemplateSlugExists(ctx context.Context, slug string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM reference_templates WHERE slug = $1)`, slug).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check template slug: %w", err)
	}
	return exists, nil
}

// CreateTemplate inserts t and fills in its generated fields.
func (s *TemplateStore) CreateTemplate(ctx context.Context, t *models.ReferenceTemplate) error {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO reference_templates (title, slug, domain, description, image_url, thumbnail_url,
			s3_key, thumb_s3_key, tags, colors, is_premium, is_active, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8,
			ARRAY(SELECT json_array_elements_text($9::json)),
			ARRAY(SELECT json_array_elements_text($10::json)),
			$11, $12, $13)
		RETURNING `+templateColumns,
		t.Title, t.Slug, t.Domain, t.Description, t.ImageURL, t.ThumbnailURL,
		t.S3Key, t.ThumbS3Key, jsonList(t.Tags), jsonList(t.Colors), t.IsPremium, t.IsActive, t.CreatedBy,
	)
	saved, err := scanTemplate(row)
	if err != nil {
		return fmt.Errorf("create template: %w", err)
	}
	*t = *saved
	return nil
}

// UpdateTemplate saves t's editable metadata. Returns false if the
// template does not exist.
func (s *TemplateStore) UpdateTemplate(ctx context.Context, t *models.ReferenceTemplate) (bool, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE reference_templates SET
			title = $2, domain = $3, description = $4,
			tags = ARRAY(SELECT json_array_elements_text($5::json)),
			colors = ARRAY(SELECT json_array_elements_text($6::json)),
			is_premium = $7, is_active = $8, updated_at = NOW()
		WHERE id = $1
		RETURNING `+templateColumns,
		t.ID, t.Title, t.Domain, t.Description, jsonList(t.Tags), jsonList(t.Colors), t.IsPremium, t.IsActive,
	)
	saved, err := scanTemplate(row)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("update template: %w", err)
	}
	*t = *saved
	return true, nil
}

// SetTemplateActive shows or hides a template in the marketplace.
func (s *TemplateStore) SetTemplateActive(ctx context.Context, id uuid.UUID, active bool) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE reference_templates SET is_active = $2, updated_at = NOW() WHERE id = $1`, id, active)
	if err != nil {
		return false, fmt.Errorf("set template active: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// DeleteTemplate removes a template and returns it so its stored objects
// can be cleaned up. Returns nil if it did not exist.
func (s *TemplateStore) DeleteTemplate(ctx context.Context, id uuid.UUID) (*models.ReferenceTemplate, error) {
	row := s.db.QueryRowContext(ctx, `DELETE FROM reference_templates WHERE id = $1 RETURNING `+templateColumns, id)
	t, err := scanTemplate(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("delete template: %w", err)
	}
	return t, nil
}
