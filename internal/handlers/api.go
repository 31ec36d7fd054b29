package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"graphiste/internal/cache"
	"graphiste/internal/conversation"
	"graphiste/internal/credits"
	"graphiste/internal/generation"
	"graphiste/internal/models"
	"graphiste/internal/payments"
)

// AccountStore is the persistence behind the signed-in user's endpoints.
type AccountStore interface {
	FindProfile(ctx context.Context, id uuid.UUID) (*models.Profile, error)
	ListActivePlans(ctx context.Context) ([]models.SubscriptionPlan, error)
	GetOrCreateSubscription(ctx context.Context, userID uuid.UUID) (*models.UserSubscription, *models.SubscriptionPlan, error)
	FreePlan(ctx context.Context) (*models.SubscriptionPlan, error)
	CreditHistory(ctx context.Context, userID uuid.UUID, limit int) ([]models.CreditTransaction, error)
	ListImages(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.GeneratedImage, error)
	DeleteImage(ctx context.Context, userID, id uuid.UUID) (*models.GeneratedImage, error)
	ListUserPayments(ctx context.Context, userID uuid.UUID, limit int) ([]models.PaymentTransaction, error)
}

// Conversations persists the poster wizard.
type Conversations interface {
	Get(ctx context.Context, userID uuid.UUID) (conversation.State, error)
	Save(ctx context.Context, userID uuid.UUID, st conversation.State) error
	Delete(ctx context.Context, userID uuid.UUID) error
}

// Files is the object storage the user endpoints need.
type Files interface {
	PutPrivate(ctx context.Context, key, contentType string, data []byte) error
	PresignPrivate(ctx context.Context, key string, expires time.Duration) (string, error)
	DeletePublic(ctx context.Context, keys ...string) error
}

// API groups the endpoints of signed-in users.
type API struct {
	store     AccountStore
	convs     Conversations
	generator *generation.Service
	assistant Assistant
	files     Files
	payments  *payments.Service
	catalog   *cache.Catalog
	now       func() time.Time
}

// NewAPI creates the user API. files may be nil when object storage is not
// configured; uploads and image deletion then skip storage.
func NewAPI(st AccountStore, convs Conversations, gen *generation.Service, assistant Assistant, files Files, pay *payments.Service, catalog *cache.Catalog) *API {
	return &API{
		store:     st,
		convs:     convs,
		generator: gen,
		assistant: assistant,
		files:     files,
		payments:  pay,
		catalog:   catalog,
		now:       time.Now,
	}
}

// Me returns the caller's profile, roles and permissions.
func (a *API) Me(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	profile, err := a.store.FindProfile(r.Context(), u.ID)
	if err != nil {
		respondError(w, r, "load profile", err)
		return
	}

	perms := make([]models.Permission, 0, len(u.Permissions))
	for p, granted := range u.Permissions {
		if granted {
			perms = append(perms, p)
		}
	}
	writeOK(w, map[string]any{
		"profile":     profile,
		"roles":       u.Roles,
		"permissions": perms,
		"is_admin":    u.HasRole(models.RoleAdmin),
	})
}

// Plans lists the purchasable plans and the credit price per resolution.
func (a *API) Plans(w http.ResponseWriter, r *http.Request) {
	plans, err := cache.Fetch(r.Context(), a.catalog, cache.PlansKey, a.store.ListActivePlans)
	if err != nil {
		respondError(w, r, "list plans", err)
		return
	}
	writeOK(w, map[string]any{
		"plans": plans,
		"costs": credits.CostTable(),
	})
}

// Subscription returns the caller's subscription, creating the free one
// on first use.
func (a *API) Subscription(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	sub, plan, err := a.store.GetOrCreateSubscription(r.Context(), u.ID)
	if err != nil {
		respondError(w, r, "load subscription", err)
		return
	}

	freeLeft := 0
	if plan != nil && sub != nil {
		free := plan
		if !plan.IsFree() {
			if free, err = a.store.FreePlan(r.Context()); err != nil {
				respondError(w, r, "load free plan", err)
				return
			}
		}
		if free != nil && sub.FreeGenerationsUsed < free.FreeGenerations {
			freeLeft = free.FreeGenerations - sub.FreeGenerationsUsed
		}
	}

	balance := 0
	active := false
	if sub != nil {
		balance = sub.CreditsRemaining
		active = sub.IsActiveAt(a.now())
	}
	writeOK(w, map[string]any{
		"subscription":          sub,
		"plan":                  plan,
		"credits_remaining":     balance,
		"free_generations_left": freeLeft,
		"active":                active,
	})
}

// CheckCredits answers whether the caller may generate at a resolution.
// A refusal is a normal answer here, not an error.
func (a *API) CheckCredits(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req struct {
		Resolution string `json:"resolution"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := models.ParseResolution(req.Resolution)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Résolution inconnue", "")
		return
	}

	decision, err := a.generator.Check(r.Context(), u.ID, res)
	if err != nil {
		ce, ok := credits.AsError(err)
		if !ok {
			respondError(w, r, "check credits", err)
			return
		}
		writeOK(w, map[string]any{
			"allowed": false,
			"cost":    credits.Cost(res),
			"code":    ce.Code,
			"message": ce.Message,
		})
		return
	}
	writeOK(w, map[string]any{
		"allowed":         true,
		"cost":            decision.Cost,
		"free_generation": decision.UseFreeGeneration,
	})
}

// CreditHistory lists the caller's latest credit movements.
func (a *API) CreditHistory(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	limit, _ := pageParams(r, 50, 200)
	items, err := a.store.CreditHistory(r.Context(), u.ID, limit)
	if err != nil {
		respondError(w, r, "credit history", err)
		return
	}
	writeOK(w, map[string]any{"transactions": items})
}

// Images lists the caller's generation history, newest first.
func (a *API) Images(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	limit, offset := pageParams(r, 24, 100)
	images, err := a.store.ListImages(r.Context(), u.ID, limit, offset)
	if err != nil {
		respondError(w, r, "list images", err)
		return
	}
	writeOK(w, map[string]any{"images": images})
}

// DeleteImage removes one of the caller's posters and its stored files.
// Credits spent on it are not refunded.
func (a *API) DeleteImage(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	img, err := a.store.DeleteImage(r.Context(), u.ID, id)
	if err != nil {
		respondError(w, r, "delete image", err)
		return
	}
	if img == nil {
		writeError(w, http.StatusNotFound, "Image introuvable", "")
		return
	}

	if a.files != nil {
		keys := []string{img.S3Key}
		if img.ThumbS3Key != nil {
			keys = append(keys, *img.ThumbS3Key)
		}
		if err := a.files.DeletePublic(r.Context(), keys...); err != nil {
			slog.Warn("delete image files", "image_id", img.ID, "error", err)
		}
	}
	writeOK(w, map[string]any{"id": img.ID})
}

// Payments lists the caller's payment attempts.
func (a *API) Payments(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	limit, _ := pageParams(r, 20, 100)
	items, err := a.store.ListUserPayments(r.Context(), u.ID, limit)
	if err != nil {
		respondError(w, r, "list payments", err)
		return
	}
	writeOK(w, map[string]any{"payments": items})
}
