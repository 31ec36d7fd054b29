// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package models

import (
	"time"

	"github.com/google/uuid"
)

// CreditKind classifies a credit ledger entry.
type CreditKind string

const (
	CreditPurchase   CreditKind = "purchase"
	CreditGeneration CreditKind = "generation"
	CreditAdminGrant CreditKind = "admin_grant"
	CreditRefund     CreditKind = "refund"
	CreditRenewal    CreditKind = "renewal"
)

// CreditTransaction is one entry in a user's credit ledger. Amount is
// positive for grants and negative for spending.
type CreditTransaction struct {
	ID           uuid.UUID  `json:"id"`
	UserID       uuid.UUID  `json:"user_id"`
	Amount       int        `json:"amount"`
	Kind         CreditKind `json:"kind"`
	Description  string     `json:"description"`
	ImageID      *uuid.UUID `json:"image_id,omitempty"`
	PaymentID    *uuid.UUID `json:"payment_id,omitempty"`
	BalanceAfter int        `json:"balance_after"`
	CreatedAt    time.Time  `json:"created_at"`
}
