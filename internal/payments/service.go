package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"graphiste/internal/models"
	"graphiste/internal/store"
)

// Store is the persistence the payment flow needs.
type Store interface {
	GetPlanByID(ctx context.Context, id uuid.UUID) (*models.SubscriptionPlan, error)
	CreatePayment(ctx context.Context, p *models.PaymentTransaction) error
	AttachCheckout(ctx context.Context, id uuid.UUID, providerTxID, checkoutURL string) error
	SetPaymentStatus(ctx context.Context, id uuid.UUID, status models.PaymentStatus) error
	ApplyPayment(ctx context.Context, u store.PaymentUpdate) (*store.PaymentOutcome, error)
}

// Service opens checkouts and applies verified webhooks.
type Service struct {
	providers Providers
	store     Store
	returnURL string
	now       func() time.Time
}

// NewService wires the configured providers to the store.
func NewService(providers Providers, st Store, returnURL string) *Service {
	return &Service{providers: providers, store: st, returnURL: returnURL, now: time.Now}
}

// Providers returns the configured gateway names.
func (s *Service) Providers() []string {
	return s.providers.Names()
}

// Init records a pending payment for plan and opens the provider's hosted
// checkout. The returned payment carries the checkout URL.
func (s *Service) Init(ctx context.Context, providerName string, profile *models.Profile, planID uuid.UUID) (*models.PaymentTransaction, error) {
	provider, err := s.providers.Get(providerName)
	if err != nil {
		return nil, err
	}

	plan, err := s.store.GetPlanByID(ctx, planID)
	if err != nil {
		return nil, fmt.Errorf("payment init: %w", err)
	}
	if plan == nil || !plan.IsActive || plan.IsFree() {
		return nil, &Error{Code: CodeInvalidPlan, Reason: "plan cannot be purchased"}
	}

	payment := &models.PaymentTransaction{
		UserID:   profile.ID,
		PlanID:   plan.ID,
		Provider: provider.Name(),
		Amount:   plan.PriceFCFA,
		Currency: plan.Currency,
		Status:   models.PaymentPending,
	}
	if err := s.store.CreatePayment(ctx, payment); err != nil {
		return nil, fmt.Errorf("payment init: %w", err)
	}

	first, last := splitName(profile)
	session, err := provider.InitCheckout(ctx, Checkout{
		PaymentID:   payment.ID,
		UserID:      profile.ID,
		PlanID:      plan.ID,
		Amount:      plan.PriceFCFA,
		Currency:    plan.Currency,
		Description: "Abonnement Graphiste GPT " + plan.Name,
		ReturnURL:   s.returnURL,
		Customer:    Customer{Email: profile.Email, FirstName: first, LastName: last, Phone: deref(profile.Phone)},
	})
	if err != nil {
		if serr := s.store.SetPaymentStatus(ctx, payment.ID, models.PaymentFailed); serr != nil {
			slog.Error("failed to mark payment as failed", "payment_id", payment.ID, "error", serr)
		}
		return nil, err
	}

	if err := s.store.AttachCheckout(ctx, payment.ID, session.ProviderTransactionID, session.CheckoutURL); err != nil {
		return nil, fmt.Errorf("payment init: %w", err)
	}
	payment.ProviderTransactionID = &session.ProviderTransactionID
	payment.CheckoutURL = &session.CheckoutURL

	slog.Info("checkout opened", "provider", provider.Name(), "payment_id", payment.ID, "plan", plan.Slug)
	return payment, nil
}

// WebhookResult is what a webhook delivery did.
type WebhookResult struct {
	Event   *Event
	Outcome *store.PaymentOutcome // nil when the event was ignored
	Ignored bool
}

// HandleWebhook verifies the delivery and applies it. Unknown event types
// and payments we cannot match are acknowledged and ignored.
func (s *Service) HandleWebhook(ctx context.Context, providerName string, header http.Header, body []byte) (*WebhookResult, error) {
	provider, err := s.providers.Get(providerName)
	if err != nil {
		return nil, err
	}

	ev, err := provider.ParseWebhook(header, body, s.now())
	if err != nil {
		return nil, err
	}
	if !ev.Known() || ev.ProviderTransactionID == "" {
		slog.Info("webhook ignored", "provider", ev.Provider, "event", ev.Type)
		return &WebhookResult{Event: ev, Ignored: true}, nil
	}

	out, err := s.store.ApplyPayment(ctx, store.PaymentUpdate{
		Provider:              ev.Provider,
		ProviderTransactionID: ev.ProviderTransactionID,
		Status:                ev.Status,
		PaymentID:             ev.PaymentID,
		UserID:                ev.UserID,
		PlanID:                ev.PlanID,
		Amount:                ev.Amount,
		Currency:              ev.Currency,
		RawEvent:              ev.Raw,
		Now:                   s.now(),
	})
	if errors.Is(err, store.ErrPaymentNotFound) {
		slog.Warn("webhook for unknown payment", "provider", ev.Provider, "transaction", ev.ProviderTransactionID)
		return &WebhookResult{Event: ev, Ignored: true}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("apply %s webhook: %w", ev.Provider, err)
	}

	slog.Info("webhook applied",
		"provider", ev.Provider,
		"event", ev.Type,
		"payment_id", out.Payment.ID,
		"status", out.Payment.Status,
		"duplicate", out.Duplicate,
		"credits_granted", out.CreditsGranted,
	)
	return &WebhookResult{Event: ev, Outcome: out}, nil
}

// splitName derives checkout first/last names from the profile.
func splitName(p *models.Profile) (string, string) {
	name := strings.TrimSpace(deref(p.FullName))
	if name == "" {
		local, _, _ := strings.Cut(p.Email, "@")
		return local, ""
	}
	first, last, _ := strings.Cut(name, " ")
	return first, strings.TrimSpace(last)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
