package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/campus-merch/api/internal/domain"
	"github.com/campus-merch/api/internal/platform/auth"
	"github.com/campus-merch/api/internal/platform/authz"
	"github.com/campus-merch/api/internal/platform/httpx"
	"github.com/campus-merch/api/internal/platform/pagination"
)

const idempotencyHeader = "Idempotency-Key"

// Access bundles the guards shared by authenticated route groups. Nil members are skipped, which
// lets tests inject an identity directly into the request context.
type Access struct {
	Authn       *auth.Authenticator
	Policy      *authz.Enforcer
	Idempotency func(http.Handler) http.Handler
}

func (a Access) authenticate(r chi.Router) {
	if a.Authn != nil {
		r.Use(a.Authn.RequireUser())
	}
}

func (a Access) allow(resource, action string) func(http.Handler) http.Handler {
	if a.Policy == nil {
		return passthrough
	}
	return a.Policy.Require(resource, action)
}

func (a Access) idempotent() func(http.Handler) http.Handler {
	if a.Idempotency == nil {
		return passthrough
	}
	return a.Idempotency
}

func passthrough(next http.Handler) http.Handler { return next }

func requireIdentity(w http.ResponseWriter, r *http.Request) (*auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		httpx.WriteError(r.Context(), w, httpx.Unauthenticated("authentication required"))
		return nil, false
	}
	return identity, true
}

func pathParam(w http.ResponseWriter, r *http.Request, key, label string) (string, bool) {
	value := strings.TrimSpace(chi.URLParam(r, key))
	if value == "" {
		httpx.WriteError(r.Context(), w, httpx.BadRequest(label+" is required"))
		return "", false
	}
	return value, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) bool {
	if err := httpx.DecodeJSON(r, dst, httpx.DefaultBodyLimit, allowEmpty); err != nil {
		httpx.WriteError(r.Context(), w, *err)
		return false
	}
	return true
}

func pageParams(w http.ResponseWriter, r *http.Request) (domain.Pagination, bool) {
	params, err := pagination.FromRequest(r, pagination.Options{})
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.BadRequest(err.Error()))
		return domain.Pagination{}, false
	}
	return domain.Pagination{PageSize: params.PageSize, PageToken: params.PageToken}, true
}

func serviceUnavailable(ctx context.Context, w http.ResponseWriter, name string) {
	httpx.WriteError(ctx, w, httpx.Unavailable(name+"_service_unavailable", name+" service unavailable"))
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

func parseTimeParam(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts.UTC(), nil
	}
	ts, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, err
	}
	return ts.UTC(), nil
}

func trimAll(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
