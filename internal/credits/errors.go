// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package credits

import (
	"errors"
	"net/http"
)

// Code is a machine-readable reason a generation was refused. The UI maps
// each code to a modal (upgrade, buy credits, sign in).
type Code string

const (
	CodeInsufficientCredits    Code = "INSUFFICIENT_CREDITS"
	CodeFreeLimitReached       Code = "FREE_LIMIT_REACHED"
	CodeResolutionNotAllowed   Code = "RESOLUTION_NOT_ALLOWED"
	CodeAuthenticationRequired Code = "AUTHENTICATION_REQUIRED"
)

// Error is a refused credit check.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return "credits: " + string(e.Code) + ": " + e.Message
}

// HTTPStatus maps the code to the status returned by the API.
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case CodeAuthenticationRequired:
		return http.StatusUnauthorized
	case CodeInsufficientCredits, CodeFreeLimitReached:
		return http.StatusPaymentRequired
	case CodeResolutionNotAllowed:
		return http.StatusForbidden
	}
	return http.StatusBadRequest
}

// AsError extracts a *Error from err, if any.
func AsError(err error) (*Error, bool) {
	var ce *Error
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

var messages = map[Code]string{
	CodeInsufficientCredits:    "Crédits insuffisants pour cette résolution. Rechargez votre compte pour continuer.",
	CodeFreeLimitReached:       "Vous avez utilisé toutes vos générations gratuites. Passez à un abonnement pour continuer.",
	CodeResolutionNotAllowed:   "Cette résolution n'est pas incluse dans votre abonnement.",
	CodeAuthenticationRequired: "Connectez-vous pour générer des affiches.",
}

// NewError returns the refusal for code with its user-facing message.
func NewError(code Code) *Error {
	return &Error{Code: code, Message: messages[code]}
}
