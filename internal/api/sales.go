package api

import (
	"net/http"

	"retailpos/m/domain"
)

func (h *Handler) createSale(w http.ResponseWriter, r *http.Request) {
	var req domain.SaleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	receipt, err := h.sales.Record(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, receipt)
}

func (h *Handler) listSales(w http.ResponseWriter, r *http.Request) {
	filter, err := salesFilter(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	list, err := h.sales.List(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"sales": list})
}

func (h *Handler) salesSummary(w http.ResponseWriter, r *http.Request) {
	filter, err := salesFilter(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	summary, err := h.sales.Summary(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

func (h *Handler) getSale(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	sale, err := h.sales.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, sale)
}
