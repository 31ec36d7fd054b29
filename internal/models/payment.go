// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// PaymentProvider names a payment gateway.
type PaymentProvider string

const (
	ProviderMoneroo PaymentProvider = "moneroo"
	ProviderFedaPay PaymentProvider = "fedapay"
)

// PaymentStatus is the lifecycle state of a payment.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentCancelled PaymentStatus = "cancelled"
)

// IsFinal reports whether no further transition is expected.
func (s PaymentStatus) IsFinal() bool {
	return s == PaymentCompleted || s == PaymentFailed || s == PaymentCancelled
}

// PaymentTransaction records a checkout with an external gateway.
// (Provider, ProviderTransactionID) is unique once the provider has
// assigned an ID.
type PaymentTransaction struct {
	ID                    uuid.UUID       `json:"id"`
	UserID                uuid.UUID       `json:"user_id"`
	PlanID                uuid.UUID       `json:"plan_id"`
	Provider              PaymentProvider `json:"provider"`
	ProviderTransactionID *string         `json:"provider_transaction_id,omitempty"`
	Amount                int             `json:"amount"`
	Currency              string          `json:"currency"`
	Status                PaymentStatus   `json:"status"`
	CheckoutURL           *string         `json:"checkout_url,omitempty"`
	RawEvent              json.RawMessage `json:"-"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}
