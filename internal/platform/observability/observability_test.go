package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/campus-merch/api/internal/platform/requestctx"
)

func TestTraceMiddlewareContinuesCloudTraceHeader(t *testing.T) {
	var got requestctx.TraceInfo
	handler := TraceMiddleware("campus-prod")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = requestctx.Trace(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	req.Header.Set(cloudTraceHeader, "4bf92f3577b34da6a3ce929d0e0e4736/42;o=1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", got.TraceID)
	assert.Equal(t, "campus-prod", got.ProjectID)
	assert.True(t, got.Sampled)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736/42;o=1", rec.Header().Get(cloudTraceHeader))
	assert.Equal(t, "projects/campus-prod/traces/4bf92f3577b34da6a3ce929d0e0e4736", loggingTraceResource(got))
}

func TestParseCloudTraceRejectsMalformed(t *testing.T) {
	for _, header := range []string{"", "abc", "nothex/1;o=1", "4bf92f3577b34da6a3ce929d0e0e4736/x", "4bf92f3577b34da6a3ce929d0e0e4736/0"} {
		_, ok := parseCloudTrace(header)
		assert.False(t, ok, header)
	}
}

func TestRequestLoggerAndRecoverer(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	r := chi.NewRouter()
	r.Use(middleware.RequestID, RequestLogger(base), Recoverer(base))
	r.Get("/orders/{id}", func(w http.ResponseWriter, r *http.Request) {
		EventLogger(zap.NewNop())(r.Context(), "order.lookup", map[string]any{"orderId": chi.URLParam(r, "id")})
		w.WriteHeader(http.StatusNoContent)
	})
	r.Get("/boom", func(http.ResponseWriter, *http.Request) {
		panic("kaboom")
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders/ord_1", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal_server_error")

	event := logs.FilterMessage("order.lookup").All()
	require.Len(t, event, 1)
	assert.Equal(t, "ord_1", event[0].ContextMap()["orderId"])
	assert.NotEmpty(t, event[0].ContextMap()["request_id"])

	completed := logs.FilterMessage("request completed").All()
	require.Len(t, completed, 2)
	assert.Equal(t, "/orders/{id}", completed[0].ContextMap()["route"])
	assert.Equal(t, zapcore.ErrorLevel, completed[1].Level)
	assert.Len(t, logs.FilterMessage("panic recovered").All(), 1)
}

func TestEventLoggerWarnsOnError(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := EventLogger(zap.New(core))

	log(context.Background(), "order.stock.restore.failed", map[string]any{"error": "offline"})
	log(context.Background(), "order.created", nil)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, zapcore.InfoLevel, entries[1].Level)
}

func TestCountersCacheInstruments(t *testing.T) {
	counters := NewCounters(noop.NewMeterProvider().Meter("test"), nil)
	counters.Incr(context.Background(), "orders.created", map[string]string{"type": "group"})
	counters.Incr(context.Background(), "orders.created", nil)
	assert.Len(t, counters.counters, 1)
}

func TestNewLoggerAcceptsUnknownLevel(t *testing.T) {
	logger, err := NewLogger("chatty")
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
}
