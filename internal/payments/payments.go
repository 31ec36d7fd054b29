// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package payments talks to the mobile-money checkout providers (Moneroo,
// FedaPay): it opens hosted checkouts, verifies signed webhooks and turns
// them into provider-neutral events.
package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/google/uuid"

	"graphiste/internal/models"
)

// Code is a machine-readable webhook or checkout failure.
type Code string

const (
	CodeInvalidSignature Code = "INVALID_SIGNATURE"
	CodeUnknownProvider  Code = "UNKNOWN_PROVIDER"
	CodeInvalidPlan      Code = "INVALID_PLAN"
	CodeProviderError    Code = "PROVIDER_ERROR"
)

// Error is a coded payments failure.
type Error struct {
	Code   Code
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("payments: %s: %s: %v", e.Code, e.Reason, e.Err)
	}
	return fmt.Sprintf("payments: %s: %s", e.Code, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatus maps the code to the status returned by the API.
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case CodeInvalidSignature:
		return http.StatusUnauthorized
	case CodeUnknownProvider:
		return http.StatusNotFound
	case CodeInvalidPlan:
		return http.StatusBadRequest
	}
	return http.StatusBadGateway
}

// AsError extracts a *Error from err.
func AsError(err error) (*Error, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

func invalidSignature(reason string) error {
	return &Error{Code: CodeInvalidSignature, Reason: reason}
}

// Customer identifies the payer on the hosted checkout page.
type Customer struct {
	Email     string
	FirstName string
	LastName  string
	Phone     string
}

// Checkout is a request to open a hosted payment page.
type Checkout struct {
	PaymentID   uuid.UUID
	UserID      uuid.UUID
	PlanID      uuid.UUID
	Amount      int
	Currency    string
	Description string
	ReturnURL   string
	Customer    Customer
}

// metadata is attached to the provider transaction and echoed back in
// webhooks so an event can be matched to our row before the provider id is
// known.
func (c Checkout) metadata() map[string]string {
	return map[string]string{
		"payment_id": c.PaymentID.String(),
		"user_id":    c.UserID.String(),
		"plan_id":    c.PlanID.String(),
	}
}

// Session is an opened checkout.
type Session struct {
	ProviderTransactionID string
	CheckoutURL           string
}

// Event is a verified webhook, normalised across providers.
type Event struct {
	Provider              models.PaymentProvider
	Type                  string
	ProviderTransactionID string
	// Status is empty for event types we do not act on.
	Status    models.PaymentStatus
	Amount    int
	Currency  string
	PaymentID *uuid.UUID
	UserID    *uuid.UUID
	PlanID    *uuid.UUID
	Raw       json.RawMessage
}

// Known reports whether the event maps to a payment status.
func (e *Event) Known() bool {
	return e.Status != ""
}

// Provider is one checkout gateway.
type Provider interface {
	Name() models.PaymentProvider
	InitCheckout(ctx context.Context, c Checkout) (*Session, error)
	ParseWebhook(header http.Header, body []byte, now time.Time) (*Event, error)
}

// Providers indexes the configured gateways by name.
type Providers map[models.PaymentProvider]Provider

// NewProviders indexes ps by name.
func NewProviders(ps ...Provider) Providers {
	out := make(Providers, len(ps))
	for _, p := range ps {
		out[p.Name()] = p
	}
	return out
}

// Get returns the named provider or an UNKNOWN_PROVIDER error.
func (ps Providers) Get(name string) (Provider, error) {
	p, ok := ps[models.PaymentProvider(name)]
	if !ok {
		return nil, &Error{Code: CodeUnknownProvider, Reason: fmt.Sprintf("provider %q is not configured", name)}
	}
	return p, nil
}

// Names lists the configured providers, sorted.
func (ps Providers) Names() []string {
	out := make([]string, 0, len(ps))
	for name := range ps {
		out = append(out, string(name))
	}
	sort.Strings(out)
	return out
}

// parseUUID returns nil for empty or malformed ids.
func parseUUID(s string) *uuid.UUID {
	id, err := uuid.Parse(s)
	if err != nil {
		return nil
	}
	return &id
}
