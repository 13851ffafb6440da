package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/diewo77/facturly/httpx"
	"github.com/diewo77/facturly/internal/billing"
	"github.com/diewo77/facturly/internal/models"
	"github.com/diewo77/facturly/internal/services"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvoiceHandler serves the invoice routes. Authorization of a single
// invoice happens in the service, on the copy it loads.
type InvoiceHandler struct {
	invoices *services.InvoiceService
}

func NewInvoiceHandler(invoices *services.InvoiceService) *InvoiceHandler {
	return &InvoiceHandler{invoices: invoices}
}

type lineItemRequest struct {
	Description string          `json:"description" validate:"max=500"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

func (li lineItemRequest) model() models.LineItem {
	return models.LineItem{Description: li.Description, Quantity: li.Quantity, UnitPrice: li.UnitPrice}
}

type createInvoiceRequest struct {
	ClientID     *uuid.UUID        `json:"client_id"`
	Client       *models.Party     `json:"client"`
	Seller       *models.Party     `json:"seller"`
	Number       string            `json:"number" validate:"max=50"`
	Items        []lineItemRequest `json:"items" validate:"dive"`
	TaxRate      *decimal.Decimal  `json:"tax_rate"`
	IssueDate    *Date             `json:"issue_date"`
	DueDate      *Date             `json:"due_date"`
	Notes        string            `json:"notes"`
	PaymentTerms string            `json:"payment_terms" validate:"max=500"`
}

type updateInvoiceRequest struct {
	Number       *string          `json:"number" validate:"omitempty,max=50"`
	IssueDate    *Date            `json:"issue_date"`
	DueDate      *Date            `json:"due_date"`
	ClearDueDate bool             `json:"clear_due_date"`
	TaxRate      *decimal.Decimal `json:"tax_rate"`
	Notes        *string          `json:"notes"`
	PaymentTerms *string          `json:"payment_terms" validate:"omitempty,max=500"`
}

type updateItemRequest struct {
	Field string          `json:"field" validate:"required,oneof=description quantity unit_price"`
	Value json.RawMessage `json:"value" validate:"required"`
}

type statusRequest struct {
	Status   string `json:"status" validate:"required"`
	PaidDate *Date  `json:"paid_date"`
}

type paidDateRequest struct {
	PaidDate *Date `json:"paid_date" validate:"required"`
}

type invoiceList struct {
	Items []models.Invoice `json:"items"`
	Total int              `json:"total"`
}

// List returns the account's invoices, filtered by ?status= when present.
func (h *InvoiceHandler) List(w http.ResponseWriter, r *http.Request) {
	var filter *models.InvoiceStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		st, err := models.ParseInvoiceStatus(raw)
		if err != nil {
			writeError(w, r, billing.NewFieldError("status", billing.ReasonInvalidValue, raw))
			return
		}
		filter = &st
	}
	list, err := h.invoices.List(r.Context(), accountID(r), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []models.Invoice{}
	}
	httpx.JSON(w, http.StatusOK, invoiceList{Items: list, Total: len(list)})
}

func (h *InvoiceHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createInvoiceRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	in := services.CreateInvoiceInput{
		ClientID:     req.ClientID,
		Client:       req.Client,
		Seller:       req.Seller,
		Number:       req.Number,
		TaxRate:      req.TaxRate,
		IssueDate:    req.IssueDate.Ptr(),
		DueDate:      req.DueDate.Ptr(),
		Notes:        req.Notes,
		PaymentTerms: req.PaymentTerms,
	}
	for _, li := range req.Items {
		in.Items = append(in.Items, li.model())
	}
	inv, err := h.invoices.Create(r.Context(), accountID(r), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, inv)
}

func (h *InvoiceHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "invoice")
	if err != nil {
		writeError(w, r, err)
		return
	}
	inv, err := h.invoices.Get(r.Context(), accountID(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

// Update edits the header of a draft: number, dates, tax rate, notes, terms.
func (h *InvoiceHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateInvoiceRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	id, err := pathID(r, "invoice")
	if err != nil {
		writeError(w, r, err)
		return
	}
	d := billing.Details{
		Number:       req.Number,
		IssueDate:    req.IssueDate.Ptr(),
		DueDate:      req.DueDate.Ptr(),
		ClearDueDate: req.ClearDueDate,
		TaxRate:      req.TaxRate,
		Notes:        req.Notes,
		PaymentTerms: req.PaymentTerms,
	}
	inv, err := h.invoices.UpdateDetails(r.Context(), accountID(r), id, d)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *InvoiceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "invoice")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.invoices.Delete(r.Context(), accountID(r), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *InvoiceHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req lineItemRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	id, err := pathID(r, "invoice")
	if err != nil {
		writeError(w, r, err)
		return
	}
	inv, err := h.invoices.AddItem(r.Context(), accountID(r), id, req.model())
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, inv)
}

func (h *InvoiceHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	index, err := itemIndex(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req updateItemRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	value, err := itemValue(req.Value)
	if err != nil {
		writeError(w, r, billing.NewItemError(index, req.Field, billing.ReasonInvalidValue, string(req.Value)))
		return
	}
	id, err := pathID(r, "invoice")
	if err != nil {
		writeError(w, r, err)
		return
	}
	inv, err := h.invoices.UpdateItem(r.Context(), accountID(r), id, index, req.Field, value)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *InvoiceHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	index, err := itemIndex(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := pathID(r, "invoice")
	if err != nil {
		writeError(w, r, err)
		return
	}
	inv, err := h.invoices.RemoveItem(r.Context(), accountID(r), id, index)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

// SetStatus applies a lifecycle transition.
func (h *InvoiceHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	id, err := pathID(r, "invoice")
	if err != nil {
		writeError(w, r, err)
		return
	}
	inv, err := h.invoices.Transition(r.Context(), accountID(r), id, models.InvoiceStatus(req.Status), req.PaidDate.Ptr())
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *InvoiceHandler) CorrectPaidDate(w http.ResponseWriter, r *http.Request) {
	var req paidDateRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	id, err := pathID(r, "invoice")
	if err != nil {
		writeError(w, r, err)
		return
	}
	inv, err := h.invoices.CorrectPaidDate(r.Context(), accountID(r), id, req.PaidDate.Time)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

// ExportPDF streams the rendered invoice as an attachment.
func (h *InvoiceHandler) ExportPDF(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "invoice")
	if err != nil {
		writeError(w, r, err)
		return
	}
	out, name, err := h.invoices.ExportPDF(r.Context(), accountID(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(len(out)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

func (h *InvoiceHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.invoices.Dashboard(r.Context(), accountID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

func itemIndex(r *http.Request) (int, error) {
	raw := r.PathValue("index")
	i, err := strconv.Atoi(raw)
	if err != nil {
		return 0, billing.NewFieldError("index", billing.ReasonInvalidValue, raw)
	}
	return i, nil
}

// itemValue turns a raw JSON value into what billing.UpdateLineItem
// accepts: strings stay strings and numbers become exact decimals.
func itemValue(raw json.RawMessage) (any, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, err
	}
	return decimal.NewFromString(n.String())
}
