package billing

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/rickshauling/ticketdrop/internal/shared/httpx"
	"github.com/rickshauling/ticketdrop/internal/ticket"
)

type Handler struct {
	Log         *slog.Logger
	Coordinator *Coordinator
}

func (h *Handler) Mount(mux *http.ServeMux, auth *httpx.Auth) {
	mux.Handle("POST /exports", auth.Require(http.HandlerFunc(h.CreateExport), httpx.RoleBiller))
}

type exportRequest struct {
	Filter
	Force bool `json:"force"`
	// Mark defaults to true.
	Mark *bool `json:"mark"`
}

func (h *Handler) CreateExport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req exportRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		ticket.WriteErrorR(w, r, http.StatusBadRequest, "bad_request", "invalid json")
		return
	}
	if err := req.Filter.Validate(); err != nil {
		ticket.WriteErrorR(w, r, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	opts := Options{Force: req.Force, Mark: req.Mark == nil || *req.Mark}
	res, err := h.Coordinator.Export(r.Context(), req.Filter, opts)
	if err != nil {
		if ticket.WriteDomainError(w, r, err) {
			return
		}
		h.Log.Error("export_failed", slog.String("err", err.Error()))
		ticket.WriteErrorR(w, r, http.StatusInternalServerError, "internal_error", "export failed")
		return
	}

	res.Records = nil
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(res)
}
