package handlers

import (
	"net/http"

	"github.com/diewo77/facturly/httpx"
	"github.com/diewo77/facturly/internal/policy"
	"github.com/diewo77/facturly/internal/services"
	"github.com/google/uuid"
)

// CompanyHandler serves the seller settings used as defaults for new
// invoices.
type CompanyHandler struct {
	company *services.CompanyService
	gate    *policy.Gate[uuid.UUID]
}

func NewCompanyHandler(company *services.CompanyService, gate *policy.Gate[uuid.UUID]) *CompanyHandler {
	return &CompanyHandler{company: company, gate: gate}
}

// Get returns the settings, or defaults when none were saved yet.
func (h *CompanyHandler) Get(w http.ResponseWriter, r *http.Request) {
	cs, err := h.company.Get(r.Context(), accountID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.gate.Authorize(r.Context(), accountID(r), policy.ActionView, policy.ResourceCompany, cs); err != nil {
		writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, cs)
}

func (h *CompanyHandler) Update(w http.ResponseWriter, r *http.Request) {
	var in services.CompanyInput
	if !decodeAndValidate(w, r, &in) {
		return
	}
	cs, err := h.company.Upsert(r.Context(), accountID(r), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, cs)
}
