package ticket

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/rickshauling/ticketdrop/internal/shared/httpx"
)

const maxBodyBytes = 1 << 20

type Handler struct {
	Log    *slog.Logger
	Engine *Engine
}

func (h *Handler) Mount(mux *http.ServeMux, auth *httpx.Auth) {
	dispatch := func(f http.HandlerFunc) http.Handler { return auth.Require(f, httpx.RoleDispatcher) }
	drive := func(f http.HandlerFunc) http.Handler { return auth.Require(f, httpx.RoleDriver, httpx.RoleDispatcher) }
	read := func(f http.HandlerFunc) http.Handler { return auth.Require(f) }

	mux.Handle("POST /tickets", dispatch(h.CreateTicket))
	mux.Handle("GET /tickets", read(h.ListTickets))
	mux.Handle("GET /tickets/{number}", read(h.GetTicket))
	mux.Handle("POST /tickets/{number}/assign", dispatch(h.AssignTicket))
	mux.Handle("PATCH /tickets/{number}", drive(h.UpdateField))
	mux.Handle("POST /tickets/{number}/complete", drive(h.CompleteTicket))
	mux.Handle("GET /tickets/{number}/validation", read(h.CheckTicket))
	mux.Handle("GET /reports/validation", auth.Require(http.HandlerFunc(h.ValidationReport), httpx.RoleDispatcher, httpx.RoleBiller))
}

func (h *Handler) CreateTicket(w http.ResponseWriter, r *http.Request) {
	var req CreateTicketRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	t, _, err := h.Engine.Create(r.Context(), req)
	if err != nil {
		h.fail(w, r, "ticket_create_failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (h *Handler) ListTickets(w http.ResponseWriter, r *http.Request) {
	c := Collection(strings.TrimSpace(r.URL.Query().Get("collection")))
	switch c {
	case "":
		c = CollectionActive
	case CollectionActive, CollectionCompleted:
	default:
		WriteErrorR(w, r, http.StatusBadRequest, "bad_request", fmt.Sprintf("unknown collection %q", c))
		return
	}

	tickets, err := h.Engine.Store.List(r.Context(), c)
	if err != nil {
		h.fail(w, r, "ticket_list_failed", storeErr("list", err))
		return
	}
	if tickets == nil {
		tickets = []Ticket{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"collection": c, "tickets": tickets})
}

func (h *Handler) GetTicket(w http.ResponseWriter, r *http.Request) {
	t, _, err := h.Engine.Find(r.Context(), strings.TrimSpace(r.PathValue("number")))
	if err != nil {
		h.fail(w, r, "ticket_get_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) AssignTicket(w http.ResponseWriter, r *http.Request) {
	t, err := h.Engine.Assign(r.Context(), strings.TrimSpace(r.PathValue("number")))
	if err != nil {
		h.fail(w, r, "ticket_assign_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

type updateFieldRequest struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

func (h *Handler) UpdateField(w http.ResponseWriter, r *http.Request) {
	var req updateFieldRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Field) == "" {
		WriteErrorR(w, r, http.StatusBadRequest, "bad_request", "field is required")
		return
	}

	t, err := h.Engine.UpdateField(r.Context(), strings.TrimSpace(r.PathValue("number")), req.Field, req.Value)
	if err != nil {
		h.fail(w, r, "ticket_update_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

type outcome struct {
	Ticket     Ticket `json:"ticket"`
	Validation Result `json:"validation"`
}

func (h *Handler) CompleteTicket(w http.ResponseWriter, r *http.Request) {
	var in CompletionInput
	if !decodeJSON(w, r, &in) {
		return
	}

	t, res, err := h.Engine.Complete(r.Context(), strings.TrimSpace(r.PathValue("number")), in)
	if err != nil {
		h.fail(w, r, "ticket_complete_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, outcome{Ticket: t, Validation: res})
}

func (h *Handler) CheckTicket(w http.ResponseWriter, r *http.Request) {
	t, _, res, err := h.Engine.Check(r.Context(), strings.TrimSpace(r.PathValue("number")))
	if err != nil {
		h.fail(w, r, "ticket_check_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, outcome{Ticket: t, Validation: res})
}

func (h *Handler) ValidationReport(w http.ResponseWriter, r *http.Request) {
	reports, err := h.Engine.Report(r.Context())
	if err != nil {
		h.fail(w, r, "validation_report_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stages": reports})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, event string, err error) {
	if WriteDomainError(w, r, err) {
		var se *StoreError
		if errors.As(err, &se) {
			h.Log.Error(event, slog.String("err", err.Error()))
		}
		return
	}
	h.Log.Error(event, slog.String("err", err.Error()))
	WriteErrorR(w, r, http.StatusInternalServerError, "internal_error", "internal error")
}

// decodeJSON reads exactly one JSON object from the body, rejecting unknown
// fields. It writes the 400 itself and reports false on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		msg := "invalid json"
		if errors.Is(err, io.EOF) {
			msg = "empty body"
		}
		WriteErrorR(w, r, http.StatusBadRequest, "bad_request", msg)
		return false
	}
	if dec.More() {
		WriteErrorR(w, r, http.StatusBadRequest, "bad_request", "invalid json")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
