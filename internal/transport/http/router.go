package httptransport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"femtoclaw/pkg/platform/audit"
	"femtoclaw/pkg/platform/events"
	"femtoclaw/pkg/platform/middleware/requestid"
	"femtoclaw/pkg/requestcontext"
)

// AuditReader is the read side of the audit log.
type AuditReader interface {
	All() []audit.Entry
	ForResource(resource string) []audit.Entry
	ForActor(actor string) []audit.Entry
}

// EventReader is the read side of the event stream.
type EventReader interface {
	All() []events.Event
	ForTrace(traceID uuid.UUID) []events.Event
	OfType(eventType events.Type) []events.Event
}

const healthCheckTimeout = 2 * time.Second

// HealthCheck reports whether a dependency of the process is reachable.
type HealthCheck func(ctx context.Context) error

type namedCheck struct {
	name  string
	check HealthCheck
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithHealthCheck adds a dependency check to /healthz. A failing check turns
// the response into 503.
func WithHealthCheck(name string, check HealthCheck) HandlerOption {
	return func(h *Handler) {
		if check != nil {
			h.checks = append(h.checks, namedCheck{name: name, check: check})
		}
	}
}

// Handler is the thin, read-only inspection layer over the telemetry buffers.
// It never mutates a buffer.
type Handler struct {
	audit   AuditReader
	events  EventReader
	metrics http.Handler
	logger  *slog.Logger
	checks  []namedCheck
}

// NewHandler wires the readers. metrics may be nil to omit /metrics.
func NewHandler(auditLog AuditReader, stream EventReader, metrics http.Handler, logger *slog.Logger, opts ...HandlerOption) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	h := &Handler{
		audit:   auditLog,
		events:  stream,
		metrics: metrics,
		logger:  logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// NewRouter mounts the inspection endpoints behind request-id and access-log
// middleware.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(requestid.Middleware, h.accessLog)
	h.Register(r)
	return r
}

// Register mounts the inspection endpoints on r.
func (h *Handler) Register(r chi.Router) {
	r.Get("/healthz", h.handleHealth)
	r.Get("/telemetry/events", h.handleEvents)
	r.Get("/telemetry/audit", h.handleAudit)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics)
	}
}

type eventsResponse struct {
	Count  int            `json:"count"`
	Events []events.Event `json:"events"`
}

type auditResponse struct {
	Count   int           `json:"count"`
	Entries []audit.Entry `json:"entries"`
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	status := http.StatusOK

	if len(h.checks) > 0 {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		resp.Checks = make(map[string]string, len(h.checks))
		for _, c := range h.checks {
			if err := c.check(ctx); err != nil {
				h.logger.WarnContext(ctx, "health check failed", "check", c.name, "error", err)
				resp.Checks[c.name] = err.Error()
				resp.Status = "unavailable"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[c.name] = "ok"
		}
	}
	writeJSON(w, status, resp)
}

// handleEvents serves GET /telemetry/events?trace_id=&type=. Both filters are
// equality matches and combine with AND.
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	traceRaw, typeRaw := query.Get("trace_id"), query.Get("type")

	var traceID uuid.UUID
	if traceRaw != "" {
		parsed, err := uuid.Parse(traceRaw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_trace_id")
			return
		}
		traceID = parsed
	}
	eventType := events.Type(typeRaw)
	if typeRaw != "" && !eventType.Valid() {
		writeError(w, http.StatusBadRequest, "invalid_event_type")
		return
	}

	var result []events.Event
	switch {
	case traceRaw != "":
		result = h.events.ForTrace(traceID)
		if typeRaw != "" {
			result = filterType(result, eventType)
		}
	case typeRaw != "":
		result = h.events.OfType(eventType)
	default:
		result = h.events.All()
	}
	if result == nil {
		result = []events.Event{}
	}
	writeJSON(w, http.StatusOK, eventsResponse{Count: len(result), Events: result})
}

// handleAudit serves GET /telemetry/audit?resource=&actor=.
func (h *Handler) handleAudit(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	resource, actor := query.Get("resource"), query.Get("actor")

	var result []audit.Entry
	switch {
	case resource != "":
		result = h.audit.ForResource(resource)
		if actor != "" {
			result = filterActor(result, actor)
		}
	case actor != "":
		result = h.audit.ForActor(actor)
	default:
		result = h.audit.All()
	}
	if result == nil {
		result = []audit.Entry{}
	}
	writeJSON(w, http.StatusOK, auditResponse{Count: len(result), Entries: result})
}

func filterType(in []events.Event, eventType events.Type) []events.Event {
	out := make([]events.Event, 0, len(in))
	for _, e := range in {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func filterActor(in []audit.Entry, actor string) []audit.Entry {
	out := make([]audit.Entry, 0, len(in))
	for _, e := range in {
		if e.Actor == actor {
			out = append(out, e)
		}
	}
	return out
}

func (h *Handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		h.logger.DebugContext(r.Context(), "inspection request",
			"request_id", requestcontext.RequestID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
