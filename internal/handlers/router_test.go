package handlers

import (
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/campus-merch/api/internal/domain"
	"github.com/campus-merch/api/internal/services"
)

func TestRouterHealthEndpoints(t *testing.T) {
	now := time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC)
	health := NewHealthHandlers(
		WithHealthSystemService(&stubSystemService{report: services.SystemHealthReport{
			Status:      domain.HealthStatusOK,
			GeneratedAt: now,
			Checks:      map[string]domain.SystemHealthCheck{"firestore": {Status: domain.HealthStatusOK}},
		}}),
		WithHealthClock(func() time.Time { return now }),
	)
	router := NewRouter(WithHealthHandlers(health))

	rr := serve(t, router, http.MethodGet, "/healthz", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("healthz status %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("healthz content type %q", ct)
	}
	if rr := serve(t, router, http.MethodGet, "/readyz", "", nil); rr.Code != http.StatusOK {
		t.Fatalf("readyz status %d", rr.Code)
	}
}

func TestRouterDisabledGroupsAnswerNotImplemented(t *testing.T) {
	router := NewRouter()
	for _, path := range []string{
		"/api/v1/products",
		"/api/v1/orders/o1",
		"/api/v1/group-orders/g1",
		"/api/v1/reviews",
		"/api/v1/internal/maintenance/group-orders:sweep",
	} {
		rr := serve(t, router, http.MethodGet, path, "", nil)
		if rr.Code != http.StatusNotImplemented {
			t.Fatalf("%s: status %d", path, rr.Code)
		}
		if code := errorCodeOf(t, rr); code != "not_implemented" {
			t.Fatalf("%s: error %q", path, code)
		}
	}
}

func TestRouterMountsRegistrars(t *testing.T) {
	noContent := func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	}
	router := NewRouter(WithProductRoutes(noContent), WithDistributionRoutes(noContent))

	for _, path := range []string{"/api/v1/products", "/api/v1/distributions"} {
		if rr := serve(t, router, http.MethodGet, path, "", nil); rr.Code != http.StatusNoContent {
			t.Fatalf("%s: status %d", path, rr.Code)
		}
	}
	if rr := serve(t, router, http.MethodGet, "/api/v1/orders", "", nil); rr.Code != http.StatusNotImplemented {
		t.Fatalf("orders should stay disabled, got %d", rr.Code)
	}
}

func TestRouterUnknownRoute(t *testing.T) {
	rr := serve(t, NewRouter(), http.MethodGet, "/nope", "", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status %d", rr.Code)
	}
	if code := errorCodeOf(t, rr); code != "route_not_found" {
		t.Fatalf("error %q", code)
	}
}

func TestRouterGroupMiddlewaresStayScoped(t *testing.T) {
	tag := func(value string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("X-Group", value)
				next.ServeHTTP(w, r)
			})
		}
	}
	router := NewRouter(
		WithWebhookMiddlewares(tag("webhooks")),
		WithInternalMiddlewares(tag("internal")),
	)

	cases := []struct {
		path string
		want string
	}{
		{"/api/v1/webhooks/payments", "webhooks"},
		{"/api/v1/internal/maintenance/group-orders:sweep", "internal"},
		{"/api/v1/orders", ""},
	}
	for _, tc := range cases {
		rr := serve(t, router, http.MethodPost, tc.path, "", nil)
		if got := rr.Header().Get("X-Group"); got != tc.want {
			t.Fatalf("%s: X-Group %q, want %q", tc.path, got, tc.want)
		}
	}
}

func TestRouterUnknownGroupPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for unknown group")
		}
	}()
	NewRouter(routes("billing", nil))
}
