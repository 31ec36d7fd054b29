package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"graphiste/internal/models"
)

// ImageStore handles the generation history.
type ImageStore struct {
	db *sql.DB
}

// NewImageStore creates a new ImageStore with the given database connection.
func NewImageStore(db *sql.DB) *ImageStore {
	return &ImageStore{db: db}
}

const imageColumns = `id, user_id, prompt, domain, resolution, image_url, s3_key,
	thumbnail_url, thumb_s3_key, template_id, credits_used, created_at`

func scanImage(row scanner) (*models.GeneratedImage, error) {
	var img models.GeneratedImage
	err := row.Scan(
		&img.ID, &img.UserID, &img.Prompt, &img.Domain, &img.Resolution, &img.ImageURL, &img.S3Key,
		&img.ThumbnailURL, &img.ThumbS3Key, &img.TemplateID, &img.CreditsUsed, &img.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &img, nil
}

// Charge says how a generation is paid for.
type Charge struct {
	Cost              int
	UseFreeGeneration bool
	FreeLimit         int
}

// RecordGeneration stores a finished generation and pays for it in one
// transaction: the image row, the debit (or free-generation use), its
// ledger entry and the template usage counter. Returns the saved image and
// the balance after the debit.
func (s *ImageStore) RecordGeneration(ctx context.Context, img *models.GeneratedImage, charge Charge) (*models.GeneratedImage, int, error) {
	var saved *models.GeneratedImage
	var balance int

	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		img.CreditsUsed = charge.Cost
		row := tx.QueryRowContext(ctx, `
			INSERT INTO generated_images (user_id, prompt, domain, resolution, image_url, s3_key,
				thumbnail_url, thumb_s3_key, template_id, credits_used)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			RETURNING `+imageColumns,
			img.UserID, img.Prompt, img.Domain, img.Resolution, img.ImageURL, img.S3Key,
			img.ThumbnailURL, img.ThumbS3Key, img.TemplateID, img.CreditsUsed,
		)
		var err error
		saved, err = scanImage(row)
		if err != nil {
			return fmt.Errorf("insert generated image: %w", err)
		}

		if charge.UseFreeGeneration {
			err = tx.QueryRowContext(ctx, `
				UPDATE user_subscriptions
				SET free_generations_used = free_generations_used + 1, updated_at = NOW()
				WHERE user_id = $1 AND free_generations_used < $2
				RETURNING credits_remaining
			`, img.UserID, charge.FreeLimit).Scan(&balance)
			if err == sql.ErrNoRows {
				return ErrFreeLimitReached
			}
			if err != nil {
				return fmt.Errorf("use free generation: %w", err)
			}
		} else {
			err = tx.QueryRowContext(ctx, `
				UPDATE user_subscriptions
				SET credits_remaining = credits_remaining - $2, updated_at = NOW()
				WHERE user_id = $1 AND credits_remaining >= $2
				RETURNING credits_remaining
			`, img.UserID, charge.Cost).Scan(&balance)
			if err == sql.ErrNoRows {
				return ErrInsufficientCredits
			}
			if err != nil {
				return fmt.Errorf("debit credits: %w", err)
			}

			if err := insertLedger(ctx, tx, models.CreditTransaction{
				UserID:       img.UserID,
				Amount:       -charge.Cost,
				Kind:         models.CreditGeneration,
				Description:  fmt.Sprintf("Génération %s", img.Resolution),
				ImageID:      &saved.ID,
				BalanceAfter: balance,
			}); err != nil {
				return err
			}
		}

		if img.TemplateID != nil {
			if _, err := tx.ExecContext(ctx, `
				UPDATE reference_templates SET usage_count = usage_count + 1 WHERE id = $1
			`, *img.TemplateID); err != nil {
				return fmt.Errorf("count template usage: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return saved, balance, nil
}

// ListImages returns the user's generations, newest first.
func (s *ImageStore) ListImages(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.GeneratedImage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+imageColumns+` FROM generated_images
		WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, userID, clampLimit(limit, 24, 100), offset)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	defer rows.Close()

	images := []models.GeneratedImage{}
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan image: %w", err)
		}
		images = append(images, *img)
	}
	return images, rows.Err()
}

// DeleteImage removes one of the user's images and returns the deleted row
// so its objects can be removed from storage. Returns nil if the image does
// not exist or belongs to someone else.
func (s *ImageStore) DeleteImage(ctx context.Context, userID, id uuid.UUID) (*models.GeneratedImage, error) {
	row := s.db.QueryRowContext(ctx, `
		DELETE FROM generated_images WHERE id = $1 AND user_id = $2
		RETURNING `+imageColumns, id, userID)
	img, err := scanImage(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("delete image: %w", err)
	}
	return img, nil
}
