package generation

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode classifies a failed generation for the API layer.
type ErrorCode string

const (
	ErrorInvalidInput   ErrorCode = "INVALID_INPUT"
	ErrorPromptRejected ErrorCode = "PROMPT_REJECTED"
	ErrorRateLimited    ErrorCode = "RATE_LIMITED"
	ErrorUpstream       ErrorCode = "UPSTREAM_ERROR"
	ErrorUnavailable    ErrorCode = "UNAVAILABLE"
	ErrorInternal       ErrorCode = "INTERNAL_ERROR"
)

// Error is a generation failure that is not a credit refusal. Credit
// refusals are returned as *credits.Error.
type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("generation: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("generation: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatus maps the code to the status returned by the API.
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case ErrorInvalidInput:
		return http.StatusBadRequest
	case ErrorPromptRejected:
		return http.StatusUnprocessableEntity
	case ErrorRateLimited:
		return http.StatusTooManyRequests
	case ErrorUpstream:
		return http.StatusBadGateway
	case ErrorUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// Message is the French text shown to the user.
func (e *Error) Message() string {
	switch e.Code {
	case ErrorInvalidInput:
		return e.Reason
	case ErrorPromptRejected:
		return "Votre demande a été refusée par la modération. Reformulez-la et réessayez."
	case ErrorRateLimited:
		return "Le service de génération est saturé. Réessayez dans quelques instants."
	case ErrorUpstream:
		return "La génération de l'image a échoué. Aucun crédit n'a été débité."
	case ErrorUnavailable:
		return "La génération d'images n'est pas disponible pour le moment."
	}
	return "Erreur interne du serveur"
}

// AsError extracts a *Error from err.
func AsError(err error) (*Error, bool) {
	var ge *Error
	if errors.As(err, &ge) {
		return ge, true
	}
	return nil, false
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}
