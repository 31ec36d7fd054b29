package payments

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"graphiste/internal/models"
)

// FedaPaySignatureHeader carries "t=<unix>,s=<hex>".
const FedaPaySignatureHeader = "X-FEDAPAY-SIGNATURE"

// FedaPay is the FedaPay checkout gateway.
type FedaPay struct {
	api           *apiClient
	webhookSecret string
}

// NewFedaPay creates the gateway client.
func NewFedaPay(baseURL, secretKey, webhookSecret string) *FedaPay {
	return &FedaPay{
		api:           newAPIClient("fedapay", strings.TrimSuffix(baseURL, "/"), secretKey),
		webhookSecret: webhookSecret,
	}
}

func (f *FedaPay) Name() models.PaymentProvider { return models.ProviderFedaPay }

// InitCheckout creates the transaction, then asks for its payment token,
// whose url is the hosted checkout page.
func (f *FedaPay) InitCheckout(ctx context.Context, c Checkout) (*Session, error) {
	body := map[string]any{
		"description":     c.Description,
		"amount":          c.Amount,
		"currency":        map[string]string{"iso": c.Currency},
		"callback_url":    c.ReturnURL,
		"custom_metadata": c.metadata(),
		"customer": map[string]any{
			"firstname": c.Customer.FirstName,
			"lastname":  c.Customer.LastName,
			"email":     c.Customer.Email,
		},
	}

	raw, err := f.api.post(ctx, "/v1/transactions", body)
	if err != nil {
		return nil, err
	}
	// The transaction is nested under a key containing a slash.
	id := gjson.GetBytes(raw, `v1\/transaction.id`).String()
	if id == "" {
		return nil, &Error{Code: CodeProviderError, Reason: "fedapay: no transaction id in response"}
	}

	tok, err := f.api.post(ctx, fmt.Sprintf("/v1/transactions/%s/token", id), nil)
	if err != nil {
		return nil, err
	}
	url := gjson.GetBytes(tok, "url").String()
	if url == "" {
		return nil, &Error{Code: CodeProviderError, Reason: "fedapay: no checkout url in token response"}
	}
	return &Session{ProviderTransactionID: id, CheckoutURL: url}, nil
}

var fedapayStatuses = map[string]models.PaymentStatus{
	"transaction.approved": models.PaymentCompleted,
	"transaction.declined": models.PaymentFailed,
	"transaction.canceled": models.PaymentCancelled,
}

// ParseWebhook verifies and decodes a FedaPay webhook.
func (f *FedaPay) ParseWebhook(header http.Header, body []byte, now time.Time) (*Event, error) {
	if err := verifyFedaPay(f.webhookSecret, header.Get(FedaPaySignatureHeader), body, now); err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(body) {
		return nil, invalidSignature("payload is not JSON")
	}

	entity := gjson.GetBytes(body, "entity")
	ev := &Event{
		Provider:              models.ProviderFedaPay,
		Type:                  gjson.GetBytes(body, "name").String(),
		ProviderTransactionID: entity.Get("id").String(),
		Amount:                int(entity.Get("amount").Int()),
		Currency:              entity.Get("currency.iso").String(),
		PaymentID:             parseUUID(entity.Get("custom_metadata.payment_id").String()),
		UserID:                parseUUID(entity.Get("custom_metadata.user_id").String()),
		PlanID:                parseUUID(entity.Get("custom_metadata.plan_id").String()),
		Raw:                   append([]byte(nil), body...),
	}
	ev.Status = fedapayStatuses[ev.Type]
	return ev, nil
}
