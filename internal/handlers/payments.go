package handlers

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"graphiste/internal/metrics"
	"graphiste/internal/payments"
)

// maxWebhookBody bounds a webhook delivery.
const maxWebhookBody = 1 << 20

// InitPayment opens a hosted checkout for a plan with the provider named
// in the URL.
func (a *API) InitPayment(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	if a.payments == nil {
		writeError(w, http.StatusServiceUnavailable, "Aucun moyen de paiement n'est configuré", "")
		return
	}
	var req struct {
		PlanID uuid.UUID `json:"plan_id"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.PlanID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "plan_id est requis", string(payments.CodeInvalidPlan))
		return
	}

	profile, err := a.store.FindProfile(r.Context(), u.ID)
	if err != nil {
		respondError(w, r, "load profile", err)
		return
	}
	if profile == nil {
		writeError(w, http.StatusNotFound, "Profil introuvable", "")
		return
	}

	payment, err := a.payments.Init(r.Context(), chi.URLParam(r, "provider"), profile, req.PlanID)
	if err != nil {
		respondError(w, r, "init payment", err)
		return
	}

	checkoutURL := ""
	if payment.CheckoutURL != nil {
		checkoutURL = *payment.CheckoutURL
	}
	writeOK(w, map[string]any{
		"payment_id":   payment.ID,
		"checkout_url": checkoutURL,
		"provider":     payment.Provider,
		"amount":       payment.Amount,
		"currency":     payment.Currency,
	})
}

// Webhooks receives payment gateway notifications.
type Webhooks struct {
	payments *payments.Service
}

// NewWebhooks creates the webhook handler group.
func NewWebhooks(pay *payments.Service) *Webhooks {
	return &Webhooks{payments: pay}
}

// Receive verifies and applies one delivery. Ignored events and duplicate
// deliveries are acknowledged with 200 so the gateway stops retrying.
func (h *Webhooks) Receive(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		metrics.RecordWebhook(provider, "invalid")
		writeError(w, http.StatusRequestEntityTooLarge, "Requête trop volumineuse", "")
		return
	}

	res, err := h.payments.HandleWebhook(r.Context(), provider, r.Header, body)
	if err != nil {
		pe, ok := payments.AsError(err)
		switch {
		case ok && pe.Code == payments.CodeInvalidSignature:
			slog.Warn("webhook signature rejected", "provider", provider, "reason", pe.Reason)
			metrics.RecordWebhook(provider, "invalid_signature")
		case ok && pe.Code == payments.CodeUnknownProvider:
			metrics.RecordWebhook(provider, "unknown_provider")
		default:
			metrics.RecordWebhook(provider, "error")
		}
		respondError(w, r, "apply webhook", err)
		return
	}

	switch {
	case res.Ignored:
		metrics.RecordWebhook(provider, "ignored")
		writeOK(w, map[string]any{"ignored": true})
	case res.Outcome.Duplicate:
		metrics.RecordWebhook(provider, "duplicate")
		writeOK(w, map[string]any{"duplicate": true})
	default:
		metrics.RecordWebhook(provider, "applied")
		writeOK(w, map[string]any{
			"payment_id": res.Outcome.Payment.ID,
			"status":     res.Outcome.Payment.Status,
		})
	}
}
