package appointments

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/wolfman30/clinic-scheduling/pkg/logging"
)

// IdempotencyHeader carries the client's idempotency key on mutations.
const IdempotencyHeader = "Idempotency-Key"

const maxBodyBytes = 1 << 20

// Handler exposes the engine over HTTP.
type Handler struct {
	engine   Engine
	reviewer Reviewer
	logger   *logging.Logger
}

// NewHandler creates a handler. reviewer may be nil, in which case the
// conflict and slot routes answer 501.
func NewHandler(engine Engine, reviewer Reviewer, logger *logging.Logger) *Handler {
	if engine == nil {
		panic("appointments: engine cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{engine: engine, reviewer: reviewer, logger: logger}
}

// Routes mounts the appointment API on r.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api/appointments", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Get("/overlaps", h.ListWithOverlaps)
		r.Get("/conflicts", h.ConflictSummary)
		r.Get("/slots", h.TimeSlots)
		r.Get("/{id}", h.Get)
		r.Delete("/{id}", h.Delete)
		r.Put("/{id}/status", h.UpdateStatus)
	})
	r.Get("/api/dashboard/metrics", h.Dashboard)
}

type envelope struct {
	Data any `json:"data"`
}

type errorBody struct {
	Error     string        `json:"error"`
	Code      Kind          `json:"code"`
	Fields    []string      `json:"fields,omitempty"`
	Conflicts []ConflictRef `json:"conflicts,omitempty"`
}

// List handles GET /api/appointments.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	records, err := h.engine.List(r.Context(), queryFilters(r))
	if err != nil {
		h.writeError(w, "list", err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Data: records})
}

// ListWithOverlaps handles GET /api/appointments/overlaps.
func (h *Handler) ListWithOverlaps(w http.ResponseWriter, r *http.Request) {
	report, err := h.engine.ListWithOverlaps(r.Context(), queryFilters(r))
	if err != nil {
		h.writeError(w, "list_with_overlaps", err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Data: report})
}

// ConflictSummary handles GET /api/appointments/conflicts.
func (h *Handler) ConflictSummary(w http.ResponseWriter, r *http.Request) {
	if h.reviewer == nil {
		http.Error(w, "conflict review not configured", http.StatusNotImplemented)
		return
	}
	summary, err := h.reviewer.ConflictSummary(r.Context(), strings.TrimSpace(r.URL.Query().Get(FilterDate)))
	if err != nil {
		h.writeError(w, "conflict_summary", err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Data: summary})
}

// TimeSlots handles GET /api/appointments/slots.
func (h *Handler) TimeSlots(w http.ResponseWriter, r *http.Request) {
	if h.reviewer == nil {
		http.Error(w, "slot review not configured", http.StatusNotImplemented)
		return
	}
	q := r.URL.Query()
	slots, err := h.reviewer.TimeSlots(r.Context(), strings.TrimSpace(q.Get(FilterDate)), strings.TrimSpace(q.Get(FilterDoctorName)))
	if err != nil {
		h.writeError(w, "time_slots", err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Data: slots})
}

// Get handles GET /api/appointments/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	rec, err := h.engine.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, "get", err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Data: rec})
}

// Create handles POST /api/appointments.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var body any
	if err := decodeBody(r, &body); err != nil {
		h.writeError(w, "create", invalidArgument("Invalid JSON body"))
		return
	}
	payload, _ := body.(map[string]any)

	rec, err := h.engine.Create(r.Context(), Payload(payload), idempotencyKey(r))
	if err != nil {
		h.writeError(w, "create", err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{Data: rec})
}

type statusRequest struct {
	Status Status `json:"status"`
}

// UpdateStatus handles PUT /api/appointments/{id}/status.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, "update_status", invalidArgument("Invalid JSON body"))
		return
	}

	rec, err := h.engine.UpdateStatus(r.Context(), chi.URLParam(r, "id"), req.Status, idempotencyKey(r))
	if err != nil {
		h.writeError(w, "update_status", err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Data: rec})
}

// Delete handles DELETE /api/appointments/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	removed, err := h.engine.Delete(r.Context(), id)
	if err != nil {
		h.writeError(w, "delete", err)
		return
	}
	if !removed {
		h.writeError(w, "delete", notFound(id))
		return
	}
	writeJSON(w, http.StatusOK, envelope{Data: map[string]any{"id": id, "deleted": true}})
}

// Dashboard handles GET /api/dashboard/metrics.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.engine.Dashboard(r.Context())
	if err != nil {
		h.writeError(w, "dashboard", err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Data: d})
}

func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	status := StatusCode(err)
	body := errorBody{Error: err.Error(), Code: KindOf(err)}

	var engineErr *Error
	if errors.As(err, &engineErr) {
		body.Error = engineErr.Message
		body.Fields = engineErr.Fields
		body.Conflicts = engineErr.Conflicts
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("appointment request failed", "op", op, "error", err)
		if body.Code == "" {
			body.Code = KindRuntime
			body.Error = "internal error"
		}
	}
	writeJSON(w, status, body)
}

// StatusCode maps an engine error to its HTTP status.
func StatusCode(err error) int {
	switch KindOf(err) {
	case KindInvalidArgument, KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// queryFilters copies every query parameter so unknown keys reach the
// engine and are rejected there.
func queryFilters(r *http.Request) Filters {
	q := r.URL.Query()
	filters := make(Filters, len(q))
	for k := range q {
		filters[k] = q.Get(k)
	}
	return filters
}

func idempotencyKey(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(IdempotencyHeader))
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.UseNumber()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
