// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package handlers contains the JSON HTTP handlers of the Graphiste API.
// Handlers are grouped by audience (API for signed-in users, Public for
// the marketplace, Admin for the back-office, Webhooks for payment
// gateways) and receive their dependencies through the handler struct.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"graphiste/internal/credits"
	"graphiste/internal/generation"
	"graphiste/internal/middleware"
	"graphiste/internal/payments"
)

// maxJSONBody bounds JSON request bodies.
const maxJSONBody = 1 << 20

// writeJSON writes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write json response", "error", err)
	}
}

// writeOK writes {"success": true, ...fields}.
func writeOK(w http.ResponseWriter, fields map[string]any) {
	body := map[string]any{"success": true}
	for k, v := range fields {
		body[k] = v
	}
	writeJSON(w, http.StatusOK, body)
}

// writeError writes {"error": msg, "code": code}; code is omitted when empty.
func writeError(w http.ResponseWriter, status int, msg, code string) {
	body := map[string]string{"error": msg}
	if code != "" {
		body["code"] = code
	}
	writeJSON(w, status, body)
}

// respondError maps a domain error to its status and code. Anything
// unrecognised is logged under action and answered with a 500.
func respondError(w http.ResponseWriter, r *http.Request, action string, err error) {
	if ce, ok := credits.AsError(err); ok {
		writeError(w, ce.HTTPStatus(), ce.Message, string(ce.Code))
		return
	}
	if ge, ok := generation.AsError(err); ok {
		status := ge.HTTPStatus()
		if status >= http.StatusInternalServerError || status == http.StatusTooManyRequests {
			slog.Error(action+" failed", "code", ge.Code, "error", err, "request_id", requestID(r))
		}
		writeError(w, status, ge.Message(), string(ge.Code))
		return
	}
	if pe, ok := payments.AsError(err); ok {
		if pe.HTTPStatus() >= http.StatusInternalServerError {
			slog.Error(action+" failed", "code", pe.Code, "error", err, "request_id", requestID(r))
		}
		writeError(w, pe.HTTPStatus(), paymentMessage(pe.Code), string(pe.Code))
		return
	}

	slog.Error(action+" failed", "error", err, "request_id", requestID(r))
	writeError(w, http.StatusInternalServerError, "Erreur interne du serveur", "")
}

func paymentMessage(code payments.Code) string {
	switch code {
	case payments.CodeInvalidSignature:
		return "Signature invalide"
	case payments.CodeUnknownProvider:
		return "Moyen de paiement inconnu"
	case payments.CodeInvalidPlan:
		return "Cet abonnement ne peut pas être acheté"
	}
	return "Le service de paiement est indisponible. Réessayez plus tard."
}

// decodeJSON reads a bounded JSON body into dst. It writes the 400 itself
// and returns false when the body is unusable.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, "Requête trop volumineuse", "")
			return false
		}
		writeError(w, http.StatusBadRequest, "Corps JSON invalide", "")
		return false
	}
	return true
}

// currentUser returns the authenticated user. Routes using it are mounted
// behind RequireAuth, so a nil user is a wiring bug and answered with 401.
func currentUser(w http.ResponseWriter, r *http.Request) (*middleware.User, bool) {
	u := middleware.UserFromCtx(r.Context())
	if u == nil {
		writeError(w, http.StatusUnauthorized, "Authentification requise", middleware.CodeAuthRequired)
		return nil, false
	}
	return u, true
}

// uuidParam parses a UUID route parameter, writing a 400 on failure.
func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Identifiant invalide", "")
		return uuid.Nil, false
	}
	return id, true
}

// pageParams reads limit and offset query parameters, clamping limit to
// [1, max] and offset to >= 0.
func pageParams(r *http.Request, def, max int) (limit, offset int) {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = def
	}
	if limit > max {
		limit = max
	}
	offset, err = strconv.Atoi(r.URL.Query().Get("offset"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return limit, offset
}

func requestID(r *http.Request) string {
	return chimw.GetReqID(r.Context())
}
