package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"femtoclaw/pkg/platform/audit"
	"femtoclaw/pkg/platform/events"
	"femtoclaw/pkg/platform/metrics"
)

type RouterSuite struct {
	suite.Suite
	audit  *audit.Log
	stream *events.Stream
	router http.Handler
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	s.audit = audit.NewLog(16)
	s.stream = events.NewStream(16)
	m := metrics.New("femtoclaw_test")
	s.router = NewRouter(NewHandler(s.audit, s.stream, m.Handler(), nil))
}

func (s *RouterSuite) get(target string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *RouterSuite) decodeEvents(rec *httptest.ResponseRecorder) eventsResponse {
	var body eventsResponse
	s.Require().NoError(json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func (s *RouterSuite) TestHealthz() {
	rec := s.get("/healthz", nil)
	s.Equal(http.StatusOK, rec.Code)
	s.JSONEq(`{"status":"ok"}`, rec.Body.String())
}

func (s *RouterSuite) TestHealthz_DependencyChecks() {
	healthy := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("connection refused") }

	s.Run("all checks pass", func() {
		router := NewRouter(NewHandler(s.audit, s.stream, nil, nil, WithHealthCheck("redis", healthy)))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

		s.Equal(http.StatusOK, rec.Code)
		s.JSONEq(`{"status":"ok","checks":{"redis":"ok"}}`, rec.Body.String())
	})

	s.Run("failing check reports unavailable", func() {
		router := NewRouter(NewHandler(s.audit, s.stream, nil, nil,
			WithHealthCheck("redis", down),
			WithHealthCheck("kafka", healthy),
		))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

		s.Equal(http.StatusServiceUnavailable, rec.Code)
		s.JSONEq(`{"status":"unavailable","checks":{"redis":"connection refused","kafka":"ok"}}`, rec.Body.String())
	})

	s.Run("check receives a bounded context", func() {
		var hasDeadline bool
		router := NewRouter(NewHandler(s.audit, s.stream, nil, nil, WithHealthCheck("redis", func(ctx context.Context) error {
			_, hasDeadline = ctx.Deadline()
			return nil
		})))
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

		s.True(hasDeadline)
	})
}

func (s *RouterSuite) TestRequestIDHeader() {
	s.Run("generated when absent", func() {
		rec := s.get("/healthz", nil)
		_, err := uuid.Parse(rec.Header().Get("X-Request-ID"))
		s.NoError(err)
	})

	s.Run("echoed when present", func() {
		rec := s.get("/healthz", http.Header{"X-Request-Id": {"req-123"}})
		s.Equal("req-123", rec.Header().Get("X-Request-ID"))
	})
}

func (s *RouterSuite) TestEvents() {
	trace := uuid.New()
	s.stream.Emit(events.New(events.TypeInputReceived, nil).WithTraceID(trace))
	s.stream.Emit(events.New(events.TypeStateTransition, map[string]any{"to": "done"}).WithTraceID(trace))
	s.stream.Emit(events.New(events.TypeInputReceived, nil))

	s.Run("all in insertion order", func() {
		body := s.decodeEvents(s.get("/telemetry/events", nil))
		s.Require().Equal(3, body.Count)
		s.Equal(events.TypeInputReceived, body.Events[0].Type)
		s.Equal(events.TypeStateTransition, body.Events[1].Type)
	})

	s.Run("by trace", func() {
		body := s.decodeEvents(s.get("/telemetry/events?trace_id="+trace.String(), nil))
		s.Equal(2, body.Count)
		for _, e := range body.Events {
			s.Equal(trace, e.TraceID.UUID)
		}
	})

	s.Run("by type", func() {
		body := s.decodeEvents(s.get("/telemetry/events?type=input_received", nil))
		s.Equal(2, body.Count)
	})

	s.Run("by trace and type", func() {
		body := s.decodeEvents(s.get("/telemetry/events?type=state_transition&trace_id="+trace.String(), nil))
		s.Require().Equal(1, body.Count)
		s.Equal("done", body.Events[0].Payload["to"])
	})

	s.Run("unknown trace yields empty list", func() {
		rec := s.get("/telemetry/events?trace_id="+uuid.NewString(), nil)
		s.Equal(http.StatusOK, rec.Code)
		s.Contains(rec.Body.String(), `"events":[]`)
	})
}

func (s *RouterSuite) TestEvents_BadQuery() {
	tests := []struct {
		name   string
		target string
		code   string
	}{
		{"malformed trace id", "/telemetry/events?trace_id=nope", "invalid_trace_id"},
		{"unknown type", "/telemetry/events?type=nope", "invalid_event_type"},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			rec := s.get(tt.target, nil)
			s.Equal(http.StatusBadRequest, rec.Code)
			s.JSONEq(`{"error":"`+tt.code+`"}`, rec.Body.String())
		})
	}
}

func (s *RouterSuite) TestAudit() {
	s.audit.Record("capability_execution", "agent-1", "fs.read", "read", "ok", nil)
	s.audit.Record("capability_execution", "agent-2", "fs.read", "read", "denied", nil)
	s.audit.Record("memory_write", "agent-1", "memory", "write", "ok", nil)

	decode := func(rec *httptest.ResponseRecorder) auditResponse {
		var body auditResponse
		s.Require().NoError(json.NewDecoder(rec.Body).Decode(&body))
		return body
	}

	s.Equal(3, decode(s.get("/telemetry/audit", nil)).Count)
	s.Equal(2, decode(s.get("/telemetry/audit?resource=fs.read", nil)).Count)
	s.Equal(2, decode(s.get("/telemetry/audit?actor=agent-1", nil)).Count)

	body := decode(s.get("/telemetry/audit?resource=fs.read&actor=agent-2", nil))
	s.Require().Equal(1, body.Count)
	s.Equal("denied", body.Entries[0].Result)

	s.Equal(0, decode(s.get("/telemetry/audit?resource=missing", nil)).Count)
}

func (s *RouterSuite) TestMetricsMounted() {
	rec := s.get("/metrics", nil)
	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), "femtoclaw_test_metrics_rejected_total")
}

func (s *RouterSuite) TestReadOnly() {
	req := httptest.NewRequest(http.MethodDelete, "/telemetry/audit", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	s.Equal(http.StatusMethodNotAllowed, rec.Code)
}
