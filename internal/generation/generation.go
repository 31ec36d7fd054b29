// Package generation turns a prompt into a stored, paid-for poster: credit
// gating, moderation, the image call, upload to object storage and the
// transactional debit.
package generation

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"graphiste/internal/ai"
	"graphiste/internal/credits"
	"graphiste/internal/imaging"
	"graphiste/internal/metrics"
	"graphiste/internal/models"
	"graphiste/internal/storage"
	"graphiste/internal/store"
)

const (
	// MaxPrompt caps the prompt length in characters.
	MaxPrompt = 4000
	// MaxReferences caps the images sent along with a prompt.
	MaxReferences = 4
)

// Store is the persistence a generation needs.
type Store interface {
	GetOrCreateSubscription(ctx context.Context, userID uuid.UUID) (*models.UserSubscription, *models.SubscriptionPlan, error)
	FreePlan(ctx context.Context) (*models.SubscriptionPlan, error)
	GetTemplate(ctx context.Context, id uuid.UUID) (*models.ReferenceTemplate, error)
	RecordGeneration(ctx context.Context, img *models.GeneratedImage, charge store.Charge) (*models.GeneratedImage, int, error)
}

// Generator is the AI side: moderation and the image model.
type Generator interface {
	CheckPrompt(ctx context.Context, prompt string) (*ai.ModerationResult, error)
	GenerateImage(ctx context.Context, prompt string, opts ai.ImageOptions) (*ai.Image, error)
}

// Uploader stores generated files in the public bucket.
type Uploader interface {
	PutPublic(ctx context.Context, key, contentType string, data []byte) (string, error)
	DeletePublic(ctx context.Context, keys ...string) error
}

// Request is one generation.
type Request struct {
	Prompt        string
	Domain        string
	Resolution    models.Resolution
	TemplateID    *uuid.UUID
	ReferenceURLs []string
}

// Result is a saved generation and the balance after paying for it.
type Result struct {
	Image   *models.GeneratedImage
	Balance int
	Free    bool
}

// Service runs generations. files may be nil, in which case Generate
// answers UNAVAILABLE.
type Service struct {
	store Store
	ai    Generator
	files Uploader
	now   func() time.Time
}

// NewService wires the dependencies.
func NewService(st Store, gen Generator, files Uploader) *Service {
	return &Service{store: st, ai: gen, files: files, now: time.Now}
}

// Check applies the credit rules for userID at res without generating.
func (s *Service) Check(ctx context.Context, userID uuid.UUID, res models.Resolution) (*credits.Decision, error) {
	if userID == uuid.Nil {
		return nil, credits.NewError(credits.CodeAuthenticationRequired)
	}

	sub, plan, err := s.store.GetOrCreateSubscription(ctx, userID)
	if err != nil {
		return nil, newError(ErrorInternal, "load subscription", err)
	}

	var free *models.SubscriptionPlan
	if plan == nil || !plan.IsFree() {
		free, err = s.store.FreePlan(ctx)
		if err != nil {
			return nil, newError(ErrorInternal, "load free plan", err)
		}
	} else {
		free = plan
	}

	return credits.Check(credits.Input{
		UserID:       userID,
		Subscription: sub,
		Plan:         plan,
		FreePlan:     free,
		Resolution:   res,
		Now:          s.now(),
	})
}

// Generate runs the whole pipeline. Nothing is debited unless the image
// was generated, uploaded and recorded.
func (s *Service) Generate(ctx context.Context, userID uuid.UUID, req Request) (*Result, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, newError(ErrorInvalidInput, "Décrivez l'affiche à générer.", nil)
	}
	if utf8.RuneCountInString(prompt) > MaxPrompt {
		return nil, newError(ErrorInvalidInput, "La description est trop longue (4000 caractères maximum).", nil)
	}
	res := req.Resolution
	if res == "" {
		res = models.Resolution1K
	}
	if s.files == nil {
		return nil, newError(ErrorUnavailable, "object storage not configured", nil)
	}

	decision, err := s.Check(ctx, userID, res)
	if err != nil {
		if _, ok := credits.AsError(err); ok {
			metrics.RecordGeneration(string(res), metrics.OutcomeDenied, 0)
		}
		return nil, err
	}

	refs := req.ReferenceURLs
	var templateID *uuid.UUID
	if req.TemplateID != nil {
		t, err := s.store.GetTemplate(ctx, *req.TemplateID)
		if err != nil {
			return nil, newError(ErrorInternal, "load template", err)
		}
		if t == nil || !t.IsActive {
			return nil, newError(ErrorInvalidInput, "Modèle introuvable.", nil)
		}
		refs = append([]string{t.ImageURL}, refs...)
		templateID = &t.ID
	}
	if len(refs) > MaxReferences {
		refs = refs[:MaxReferences]
	}

	if err := s.moderate(ctx, prompt); err != nil {
		metrics.RecordGeneration(string(res), metrics.OutcomeRejected, 0)
		return nil, err
	}

	start := s.now()
	img, err := s.ai.GenerateImage(ctx, prompt, ai.ImageOptions{Resolution: string(res), ReferenceURLs: refs})
	elapsed := s.now().Sub(start)
	if err != nil {
		metrics.RecordGeneration(string(res), metrics.OutcomeFailed, elapsed)
		return nil, upstreamError(err)
	}

	contentType, ext, err := imaging.Detect(img.Data)
	if err != nil {
		metrics.RecordGeneration(string(res), metrics.OutcomeFailed, elapsed)
		return nil, newError(ErrorUpstream, "provider returned an unusable image", err)
	}

	record, keys, err := s.upload(ctx, userID, img.Data, contentType, ext)
	if err != nil {
		metrics.RecordGeneration(string(res), metrics.OutcomeFailed, elapsed)
		return nil, newError(ErrorInternal, "upload generated image", err)
	}
	record.Prompt = prompt
	record.Resolution = res
	record.TemplateID = templateID
	if d := strings.TrimSpace(req.Domain); d != "" {
		record.Domain = &d
	}

	saved, balance, err := s.store.RecordGeneration(ctx, record, store.Charge{
		Cost:              decision.Cost,
		UseFreeGeneration: decision.UseFreeGeneration,
		FreeLimit:         decision.Plan.FreeGenerations,
	})
	if err != nil {
		metrics.RecordGeneration(string(res), metrics.OutcomeFailed, elapsed)
		if derr := s.files.DeletePublic(context.WithoutCancel(ctx), keys...); derr != nil {
			slog.Warn("remove orphaned generation files", "keys", keys, "error", derr)
		}
		switch {
		case errors.Is(err, store.ErrInsufficientCredits):
			return nil, credits.NewError(credits.CodeInsufficientCredits)
		case errors.Is(err, store.ErrFreeLimitReached):
			return nil, credits.NewError(credits.CodeFreeLimitReached)
		}
		return nil, newError(ErrorInternal, "record generation", err)
	}

	metrics.RecordGeneration(string(res), metrics.OutcomeSuccess, elapsed)
	slog.Info("poster generated",
		"user_id", userID,
		"image_id", saved.ID,
		"resolution", res,
		"credits_used", saved.CreditsUsed,
		"free", decision.UseFreeGeneration,
		"duration", elapsed.String(),
	)
	return &Result{Image: saved, Balance: balance, Free: decision.UseFreeGeneration}, nil
}

// moderate fails open when the moderation API itself errors; the image
// provider applies its own filters.
func (s *Service) moderate(ctx context.Context, prompt string) error {
	result, err := s.ai.CheckPrompt(ctx, prompt)
	if err != nil {
		slog.Warn("moderation check failed, allowing prompt", "error", err)
		return nil
	}
	if result.Safe {
		return nil
	}
	categories := strings.Join(result.Categories, ", ")
	slog.Warn("prompt flagged by moderation", "categories", categories)
	return newError(ErrorPromptRejected, categories, nil)
}

// upload stores the poster and, when it is wider than a thumbnail, a
// JPEG thumbnail. A failed thumbnail is logged and skipped.
func (s *Service) upload(ctx context.Context, userID uuid.UUID, data []byte, contentType, ext string) (*models.GeneratedImage, []string, error) {
	id := uuid.New()
	now := s.now()

	key := storage.GeneratedKey(userID, id, now, "", ext)
	url, err := s.files.PutPublic(ctx, key, contentType, data)
	if err != nil {
		return nil, nil, err
	}
	rec := &models.GeneratedImage{UserID: userID, ImageURL: url, S3Key: key}
	keys := []string{key}

	thumb, err := imaging.Thumbnail(data, imaging.ThumbWidth)
	if err != nil {
		slog.Warn("thumbnail generation failed", "key", key, "error", err)
		return rec, keys, nil
	}
	if thumb == nil {
		return rec, keys, nil
	}

	thumbKey := storage.GeneratedKey(userID, id, now, "_thumb", ".jpg")
	thumbURL, err := s.files.PutPublic(ctx, thumbKey, "image/jpeg", thumb)
	if err != nil {
		slog.Warn("thumbnail upload failed", "key", thumbKey, "error", err)
		return rec, keys, nil
	}
	rec.ThumbnailURL = &thumbURL
	rec.ThumbS3Key = &thumbKey
	return rec, append(keys, thumbKey), nil
}

func upstreamError(err error) error {
	if apiErr, ok := ai.AsAPIError(err); ok && apiErr.StatusCode == http.StatusTooManyRequests {
		return newError(ErrorRateLimited, apiErr.Provider, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return newError(ErrorUpstream, "image generation timed out", err)
	}
	return newError(ErrorUpstream, "image generation failed", err)
}
