// Package handlers exposes the billing services as a JSON API. Every
// handler expects auth.RequireAuth in front of it.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/diewo77/facturly/auth"
	"github.com/diewo77/facturly/httpx"
	"github.com/diewo77/facturly/i18n"
	"github.com/diewo77/facturly/internal/billing"
	"github.com/diewo77/facturly/internal/policy"
	"github.com/diewo77/facturly/validation"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// writeError maps domain errors to HTTP statuses and a localized body.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		ve *billing.ValidationError
		ie *billing.IncompleteInvoiceError
		te *billing.InvalidTransitionError
		ue *billing.UniquenessConflictError
		ne *billing.NotFoundError
		se *billing.StaleVersionError
	)
	switch {
	case errors.As(err, &ve):
		respondError(w, r, http.StatusUnprocessableEntity, "validation_failed", map[string]string{ve.Path(): ve.Reason})
	case errors.As(err, &ie):
		respondError(w, r, http.StatusUnprocessableEntity, "invoice_incomplete", map[string]any{"missing": ie.Missing})
	case errors.As(err, &te):
		respondError(w, r, http.StatusConflict, "invalid_transition", map[string]any{
			"from":    te.From,
			"to":      te.To,
			"allowed": billing.AllowedTransitions(te.From),
		})
	case errors.As(err, &ue):
		respondError(w, r, http.StatusConflict, "number_conflict", map[string]string{"number": ue.Number})
	case errors.As(err, &se):
		respondError(w, r, http.StatusConflict, "stale_version", map[string]any{"id": se.ID, "version": se.Stored})
	case errors.As(err, &ne):
		respondError(w, r, http.StatusNotFound, "not_found", map[string]string{"kind": ne.Kind, "id": ne.ID})
	case errors.Is(err, httpx.ErrBadJSON):
		respondError(w, r, http.StatusBadRequest, "bad_request", nil)
	case errors.Is(err, policy.ErrUnauthorized):
		respondError(w, r, http.StatusForbidden, "forbidden", nil)
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		respondError(w, r, http.StatusInternalServerError, "internal_error", nil)
	}
}

func writeViolations(w http.ResponseWriter, r *http.Request, v validation.Violations) {
	respondError(w, r, http.StatusUnprocessableEntity, "validation_failed", v)
}

func respondError(w http.ResponseWriter, r *http.Request, status int, code string, details any) {
	httpx.JSONErrorMessage(w, status, code, i18n.T(i18n.LangFromContext(r.Context()), code), details)
}

// decodeAndValidate reads the body into dst and runs its validate tags.
// It reports false after writing the error response.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.DecodeJSON(r, dst); err != nil {
		writeError(w, r, err)
		return false
	}
	if v := validation.Struct(dst); !v.Empty() {
		writeViolations(w, r, v)
		return false
	}
	return true
}

func accountID(r *http.Request) uuid.UUID {
	id, _ := auth.UserIDFromContext(r.Context())
	return id
}

// pathID parses the {id} wildcard. Malformed ids are reported as not found.
func pathID(r *http.Request, kind string) (uuid.UUID, error) {
	raw := r.PathValue("id")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, &billing.NotFoundError{Kind: kind, ID: raw}
	}
	return id, nil
}

// Date is a calendar date in JSON, "2006-01-02". RFC 3339 timestamps are
// accepted too.
type Date struct {
	time.Time
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		return nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		if t, err = time.Parse(time.RFC3339, s); err != nil {
			return fmt.Errorf("invalid date %q", s)
		}
	}
	d.Time = t.UTC()
	return nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Format(time.DateOnly))
}

// Ptr returns nil for a missing or zero date.
func (d *Date) Ptr() *time.Time {
	if d == nil || d.IsZero() {
		return nil
	}
	t := d.Time
	return &t
}
