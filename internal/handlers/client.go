package handlers

import (
	"net/http"

	"github.com/diewo77/facturly/httpx"
	"github.com/diewo77/facturly/internal/models"
	"github.com/diewo77/facturly/internal/policy"
	"github.com/diewo77/facturly/internal/services"
	"github.com/google/uuid"
)

type ClientHandler struct {
	clients *services.ClientService
	gate    *policy.Gate[uuid.UUID]
}

func NewClientHandler(clients *services.ClientService, gate *policy.Gate[uuid.UUID]) *ClientHandler {
	return &ClientHandler{clients: clients, gate: gate}
}

func (h *ClientHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.clients.List(r.Context(), accountID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []models.Client{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": list, "total": len(list)})
}

func (h *ClientHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in services.ClientInput
	if !decodeAndValidate(w, r, &in) {
		return
	}
	c, err := h.clients.Create(r.Context(), accountID(r), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, c)
}

func (h *ClientHandler) load(r *http.Request, action policy.Action) (*models.Client, error) {
	id, err := pathID(r, "client")
	if err != nil {
		return nil, err
	}
	c, err := h.clients.Get(r.Context(), accountID(r), id)
	if err != nil {
		return nil, err
	}
	if err := h.gate.Authorize(r.Context(), accountID(r), action, policy.ResourceClient, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (h *ClientHandler) Get(w http.ResponseWriter, r *http.Request) {
	c, err := h.load(r, policy.ActionView)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

// Update replaces the client's details. Existing invoices keep the
// snapshot taken when they were created.
func (h *ClientHandler) Update(w http.ResponseWriter, r *http.Request) {
	var in services.ClientInput
	if !decodeAndValidate(w, r, &in) {
		return
	}
	c, err := h.load(r, policy.ActionUpdate)
	if err != nil {
		writeError(w, r, err)
		return
	}
	c, err = h.clients.Update(r.Context(), accountID(r), c.ID, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func (h *ClientHandler) Delete(w http.ResponseWriter, r *http.Request) {
	c, err := h.load(r, policy.ActionDelete)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.clients.Delete(r.Context(), accountID(r), c.ID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
