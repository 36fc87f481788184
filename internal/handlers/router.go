package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/campus-merch/api/internal/platform/httpx"
)

const (
	apiPrefix      = "/api/v1"
	requestTimeout = 60 * time.Second
)

// RouteRegistrar registers a set of routes against the provided router.
type RouteRegistrar func(r chi.Router)

// surface is one route group under /api/v1.
type surface struct {
	name        string
	path        string
	register    RouteRegistrar
	middlewares []func(http.Handler) http.Handler
}

// surfaces lists every route group in mount order.
var surfaces = []struct{ name, path string }{
	{"products", "/products"},
	{"orders", "/orders"},
	{"group_orders", "/group-orders"},
	{"distributions", "/distributions"},
	{"reviews", "/reviews"},
	{"admin", "/admin"},
	{"webhooks", "/webhooks"},
	{"internal", "/internal"},
}

type routerConfig struct {
	middlewares []func(http.Handler) http.Handler
	health      *HealthHandlers
	groups      map[string]*surface
}

func (c *routerConfig) group(name string) *surface {
	if s, ok := c.groups[name]; ok {
		return s
	}
	panic(fmt.Sprintf("handlers: unknown route group %q", name))
}

// Option customises the router configuration before construction.
type Option func(*routerConfig)

// NewRouter builds the chi router. Route groups without a registrar answer 501 so clients can
// tell a disabled surface from a typo.
func NewRouter(opts ...Option) chi.Router {
	cfg := routerConfig{
		middlewares: []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Timeout(requestTimeout),
		},
		groups: make(map[string]*surface, len(surfaces)),
	}
	for _, s := range surfaces {
		cfg.groups[s.name] = &surface{name: s.name, path: s.path}
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.health == nil {
		cfg.health = NewHealthHandlers()
	}

	r := chi.NewRouter()
	for _, mw := range cfg.middlewares {
		if mw != nil {
			r.Use(mw)
		}
	}
	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("route_not_found", "no route for "+req.URL.Path, http.StatusNotFound))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("method_not_allowed", fmt.Sprintf("%s is not allowed on %s", req.Method, req.URL.Path), http.StatusMethodNotAllowed))
	})

	r.Get("/healthz", cfg.health.Healthz)
	r.Get("/readyz", cfg.health.Readyz)

	r.Route(apiPrefix, func(api chi.Router) {
		for _, s := range surfaces {
			mountSurface(api, cfg.groups[s.name])
		}
	})
	return r
}

func mountSurface(api chi.Router, s *surface) {
	api.Route(s.path, func(group chi.Router) {
		for _, mw := range s.middlewares {
			if mw != nil {
				group.Use(mw)
			}
		}
		if s.register != nil {
			s.register(group)
			return
		}
		disabled := func(w http.ResponseWriter, req *http.Request) {
			httpx.WriteError(req.Context(), w, httpx.NewError("not_implemented", s.name+" routes are not enabled", http.StatusNotImplemented))
		}
		group.HandleFunc("/", disabled)
		group.HandleFunc("/*", disabled)
	})
}

func routes(name string, reg RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.group(name).register = reg }
}

func groupMiddlewares(name string, mw []func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		g := cfg.group(name)
		g.middlewares = append(g.middlewares, mw...)
	}
}

// WithMiddlewares appends global middleware, run after request ID, real IP and timeout.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithHealthHandlers overrides the handlers used for /healthz and /readyz.
func WithHealthHandlers(h *HealthHandlers) Option {
	return func(cfg *routerConfig) {
		cfg.health = h
	}
}

// WithProductRoutes mounts the public catalog under /products.
func WithProductRoutes(reg RouteRegistrar) Option { return routes("products", reg) }

// WithOrderRoutes mounts /orders.
func WithOrderRoutes(reg RouteRegistrar) Option { return routes("orders", reg) }

// WithGroupOrderRoutes mounts /group-orders.
func WithGroupOrderRoutes(reg RouteRegistrar) Option { return routes("group_orders", reg) }

// WithDistributionRoutes mounts /distributions.
func WithDistributionRoutes(reg RouteRegistrar) Option { return routes("distributions", reg) }

// WithReviewRoutes mounts /reviews.
func WithReviewRoutes(reg RouteRegistrar) Option { return routes("reviews", reg) }

// WithAdminRoutes mounts /admin.
func WithAdminRoutes(reg RouteRegistrar) Option { return routes("admin", reg) }

// WithWebhookRoutes mounts /webhooks.
func WithWebhookRoutes(reg RouteRegistrar) Option { return routes("webhooks", reg) }

// WithInternalRoutes mounts /internal, the scheduler-only maintenance surface.
func WithInternalRoutes(reg RouteRegistrar) Option { return routes("internal", reg) }

// WithWebhookMiddlewares wraps only the /webhooks group.
func WithWebhookMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return groupMiddlewares("webhooks", mw)
}

// WithInternalMiddlewares wraps only the /internal group, typically with service token checks.
func WithInternalMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return groupMiddlewares("internal", mw)
}
