package payments

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"graphiste/internal/models"
)

// MonerooSignatureHeader carries the hex HMAC-SHA256 of the raw body.
const MonerooSignatureHeader = "X-Moneroo-Signature"

// Moneroo is the Moneroo checkout gateway.
type Moneroo struct {
	api           *apiClient
	webhookSecret string
}

// NewMoneroo creates the gateway client.
func NewMoneroo(baseURL, secretKey, webhookSecret string) *Moneroo {
	return &Moneroo{
		api:           newAPIClient("moneroo", strings.TrimSuffix(baseURL, "/"), secretKey),
		webhookSecret: webhookSecret,
	}
}

func (m *Moneroo) Name() models.PaymentProvider { return models.ProviderMoneroo }

// InitCheckout calls POST /v1/payments/initialize.
func (m *Moneroo) InitCheckout(ctx context.Context, c Checkout) (*Session, error) {
	body := map[string]any{
		"amount":      c.Amount,
		"currency":    c.Currency,
		"description": c.Description,
		"return_url":  c.ReturnURL,
		"customer": map[string]string{
			"email":      c.Customer.Email,
			"first_name": c.Customer.FirstName,
			"last_name":  c.Customer.LastName,
			"phone":      c.Customer.Phone,
		},
		"metadata": c.metadata(),
	}

	raw, err := m.api.post(ctx, "/v1/payments/initialize", body)
	if err != nil {
		return nil, err
	}

	s := &Session{
		ProviderTransactionID: gjson.GetBytes(raw, "data.id").String(),
		CheckoutURL:           gjson.GetBytes(raw, "data.checkout_url").String(),
	}
	if s.ProviderTransactionID == "" || s.CheckoutURL == "" {
		return nil, &Error{Code: CodeProviderError, Reason: "moneroo: incomplete initialize response"}
	}
	return s, nil
}

var monerooStatuses = map[string]models.PaymentStatus{
	"payment.success":   models.PaymentCompleted,
	"payment.failed":    models.PaymentFailed,
	"payment.cancelled": models.PaymentCancelled,
}

// ParseWebhook verifies and decodes a Moneroo webhook.
func (m *Moneroo) ParseWebhook(header http.Header, body []byte, now time.Time) (*Event, error) {
	if err := verifyMoneroo(m.webhookSecret, header.Get(MonerooSignatureHeader), body); err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(body) {
		return nil, invalidSignature("payload is not JSON")
	}

	data := gjson.GetBytes(body, "data")
	ev := &Event{
		Provider:              models.ProviderMoneroo,
		Type:                  gjson.GetBytes(body, "event").String(),
		ProviderTransactionID: data.Get("id").String(),
		Amount:                int(data.Get("amount").Int()),
		Currency:              data.Get("currency").String(),
		PaymentID:             parseUUID(data.Get("metadata.payment_id").String()),
		UserID:                parseUUID(data.Get("metadata.user_id").String()),
		PlanID:                parseUUID(data.Get("metadata.plan_id").String()),
		Raw:                   append([]byte(nil), body...),
	}
	ev.Status = monerooStatuses[ev.Type]
	return ev, nil
}
