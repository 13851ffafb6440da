// Package i18n translates error codes for API responses.
// French is the default language; English is the only other catalog.
package i18n

import (
	"context"
	"strings"
)

const DefaultLang = "fr"

var catalogs = map[string]map[string]string{
	"fr": {
		"required":             "Requis",
		"must_be_non_negative": "Doit être positif ou nul",
		"out_of_range":         "Hors limites",
		"before_issue_date":    "Antérieure à la date d'émission",
		"invoice_locked":       "La facture n'est plus modifiable",
		"invoice_not_paid":     "La facture n'est pas payée",
		"unknown_field":        "Champ inconnu",
		"invalid_value":        "Valeur invalide",
		"number_immutable":     "Le numéro ne peut plus être modifié",
		"validation_failed":    "Données invalides",
		"invoice_incomplete":   "Facture incomplète",
		"invalid_transition":   "Changement de statut interdit",
		"not_found":            "Introuvable",
		"number_conflict":      "Numéro de facture déjà utilisé",
		"stale_version":        "La facture a été modifiée entre-temps",
		"bad_request":          "Requête invalide",
		"unauthorized":         "Authentification requise",
		"forbidden":            "Accès refusé",
		"internal_error":       "Erreur interne",
		"email":                "Adresse e-mail invalide",
	},
	"en": {
		"required":             "Required",
		"must_be_non_negative": "Must be zero or positive",
		"out_of_range":         "Out of range",
		"before_issue_date":    "Before the issue date",
		"invoice_locked":       "The invoice can no longer be edited",
		"invoice_not_paid":     "The invoice is not paid",
		"unknown_field":        "Unknown field",
		"invalid_value":        "Invalid value",
		"number_immutable":     "The number can no longer be changed",
		"validation_failed":    "Invalid data",
		"invoice_incomplete":   "Invoice incomplete",
		"invalid_transition":   "Status change not allowed",
		"not_found":            "Not found",
		"number_conflict":      "Invoice number already in use",
		"stale_version":        "The invoice was changed in the meantime",
		"bad_request":          "Bad request",
		"unauthorized":         "Authentication required",
		"forbidden":            "Access denied",
		"internal_error":       "Internal error",
		"email":                "Invalid e-mail address",
	},
}

// DetectLanguage picks a supported language from an Accept-Language header.
func DetectLanguage(acceptLanguage string) string {
	for _, part := range strings.Split(acceptLanguage, ",") {
		tag := strings.TrimSpace(strings.SplitN(part, ";", 2)[0])
		base := strings.ToLower(strings.SplitN(tag, "-", 2)[0])
		if _, ok := catalogs[base]; ok {
			return base
		}
	}
	return DefaultLang
}

// T translates code into lang, falling back to French and then to the code.
func T(lang, code string) string {
	if msg, ok := catalogs[lang][code]; ok {
		return msg
	}
	if msg, ok := catalogs[DefaultLang][code]; ok {
		return msg
	}
	return code
}

type ctxKey struct{}

// WithLang stores the request language in ctx.
func WithLang(ctx context.Context, lang string) context.Context {
	return context.WithValue(ctx, ctxKey{}, lang)
}

// LangFromContext returns the request language, or DefaultLang.
func LangFromContext(ctx context.Context) string {
	if lang, ok := ctx.Value(ctxKey{}).(string); ok {
		if _, known := catalogs[lang]; known {
			return lang
		}
	}
	return DefaultLang
}
