package secrets

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultFallbackPath = ".secrets.local"
	defaultCacheTTL     = 10 * time.Minute
	meterName           = "github.com/campus-merch/api/internal/platform/secrets"
)

// ErrNotFound reports that neither Secret Manager nor the fallback file holds the reference.
var ErrNotFound = errors.New("secrets: secret not found")

var newSecretManagerClient = func(ctx context.Context, opts ...option.ClientOption) (accessClient, error) {
	return secretmanager.NewClient(ctx, opts...)
}

type accessClient interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// Fetcher resolves secret:// (or sm://) references against Secret Manager. Values are cached for a
// bounded time and a local KEY=VALUE file serves developers without cloud credentials.
type Fetcher struct {
	client     accessClient
	ownsClient bool
	logger     *zap.Logger
	now        func() time.Time

	project    string
	projectMap map[string]string
	env        string
	ttl        time.Duration
	callOpts   []gax.CallOption

	fallbackPath string
	fallbackOnce sync.Once
	fallback     map[string]string

	mu    sync.RWMutex
	cache map[string]cached

	fetches metric.Int64Counter
	latency metric.Float64Histogram
}

type cached struct {
	value   string
	expires time.Time
}

type options struct {
	logger       *zap.Logger
	client       accessClient
	clientOpts   []option.ClientOption
	project      string
	projectMap   map[string]string
	env          string
	ttl          time.Duration
	fallbackPath string
	meter        metric.Meter
	now          func() time.Time
}

// Option customises a Fetcher.
type Option func(*options)

// WithLogger sets the diagnostic logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithProject sets the project used when a reference carries no ?project= override.
func WithProject(projectID string) Option {
	return func(o *options) { o.project = strings.TrimSpace(projectID) }
}

// WithProjectMap maps environment labels to projects, taking precedence over WithProject.
func WithProjectMap(env string, projects map[string]string) Option {
	return func(o *options) {
		o.env = strings.ToLower(strings.TrimSpace(env))
		o.projectMap = make(map[string]string, len(projects))
		for k, v := range projects {
			o.projectMap[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
		}
	}
}

// WithFallbackFile overrides the local fallback file. An empty path disables fallbacks.
func WithFallbackFile(path string) Option {
	return func(o *options) { o.fallbackPath = strings.TrimSpace(path) }
}

// WithCacheTTL bounds how long resolved values are reused.
func WithCacheTTL(ttl time.Duration) Option {
	return func(o *options) { o.ttl = ttl }
}

// WithMeter overrides the OpenTelemetry meter.
func WithMeter(m metric.Meter) Option {
	return func(o *options) { o.meter = m }
}

// WithClientOptions forwards options to the Secret Manager client constructor.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(o *options) { o.clientOpts = append(o.clientOpts, opts...) }
}

func withClient(client accessClient) Option {
	return func(o *options) { o.client = client }
}

func withClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// NewFetcher builds a Fetcher. A Secret Manager client that cannot be created is logged and the
// fetcher runs on the fallback file alone.
func NewFetcher(ctx context.Context, opts ...Option) (*Fetcher, error) {
	o := options{
		logger:       zap.NewNop(),
		fallbackPath: defaultFallbackPath,
		ttl:          defaultCacheTTL,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	meter := o.meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(meterName)
	}

	f := &Fetcher{
		logger:       o.logger,
		now:          o.now,
		project:      o.project,
		projectMap:   o.projectMap,
		env:          o.env,
		ttl:          o.ttl,
		fallbackPath: o.fallbackPath,
		cache:        make(map[string]cached),
		callOpts: []gax.CallOption{
			gax.WithRetry(func() gax.Retryer {
				return gax.OnCodes([]codes.Code{codes.Unavailable, codes.ResourceExhausted}, gax.Backoff{
					Initial:    100 * time.Millisecond,
					Max:        2 * time.Second,
					Multiplier: 2,
				})
			}),
		},
	}

	var err error
	if f.fetches, err = meter.Int64Counter("secrets.fetches", metric.WithDescription("Secret resolutions by source")); err != nil {
		return nil, fmt.Errorf("secrets: register counter: %w", err)
	}
	if f.latency, err = meter.Float64Histogram("secrets.fetch.latency", metric.WithUnit("ms")); err != nil {
		return nil, fmt.Errorf("secrets: register histogram: %w", err)
	}

	if o.client != nil {
		f.client = o.client
		return f, nil
	}
	client, err := newSecretManagerClient(ctx, o.clientOpts...)
	if err != nil {
		f.logger.Warn("secret manager unavailable; using fallback file only", zap.Error(err))
		return f, nil
	}
	f.client = client
	f.ownsClient = true
	return f, nil
}

// Close releases the Secret Manager client when the fetcher created it.
func (f *Fetcher) Close() error {
	if f.ownsClient && f.client != nil {
		return f.client.Close()
	}
	return nil
}

// Resolve returns the value for ref, consulting the cache, Secret Manager and then the fallback file.
// Permission and availability failures fall through to the fallback; other errors are returned.
func (f *Fetcher) Resolve(ctx context.Context, ref string) (string, error) {
	start := f.now()
	parsed, err := parseReference(ref)
	if err != nil {
		return "", err
	}

	if value, ok := f.cached(parsed.key()); ok {
		f.record(ctx, start, "cache")
		return value, nil
	}

	if project := f.projectFor(parsed); project != "" && f.client != nil {
		name := fmt.Sprintf("projects/%s/secrets/%s/versions/%s", project, parsed.name, parsed.version)
		resp, err := f.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name}, f.callOpts...)
		switch {
		case err == nil:
			value := string(resp.GetPayload().GetData())
			f.store(parsed.key(), value)
			f.record(ctx, start, "remote")
			return value, nil
		case status.Code(err) == codes.NotFound:
			f.record(ctx, start, "error")
			return "", fmt.Errorf("%w: %s", ErrNotFound, parsed.canonical)
		case !fallsBack(err):
			f.record(ctx, start, "error")
			return "", fmt.Errorf("secrets: access %s: %w", parsed.canonical, err)
		default:
			f.logger.Debug("secret manager denied; trying fallback", zap.String("secret", parsed.name), zap.Error(err))
		}
	}

	value, ok := f.lookupFallback(parsed)
	if !ok {
		f.record(ctx, start, "error")
		return "", fmt.Errorf("%w: %s", ErrNotFound, parsed.canonical)
	}
	f.store(parsed.key(), value)
	f.record(ctx, start, "fallback")
	return value, nil
}

// Invalidate drops any cached value for ref so the next Resolve refetches it.
func (f *Fetcher) Invalidate(ref string) {
	parsed, err := parseReference(ref)
	if err != nil {
		return
	}
	f.mu.Lock()
	delete(f.cache, parsed.key())
	f.mu.Unlock()
}

func (f *Fetcher) cached(key string) (string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	entry, ok := f.cache[key]
	if !ok || (f.ttl > 0 && !f.now().Before(entry.expires)) {
		return "", false
	}
	return entry.value, true
}

func (f *Fetcher) store(key, value string) {
	f.mu.Lock()
	f.cache[key] = cached{value: value, expires: f.now().Add(f.ttl)}
	f.mu.Unlock()
}

func (f *Fetcher) projectFor(ref reference) string {
	if ref.project != "" {
		return ref.project
	}
	if project := f.projectMap[f.env]; project != "" {
		return project
	}
	return f.project
}

func (f *Fetcher) lookupFallback(ref reference) (string, bool) {
	f.fallbackOnce.Do(func() {
		f.fallback = map[string]string{}
		if f.fallbackPath == "" {
			return
		}
		file, err := os.Open(f.fallbackPath)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				f.logger.Warn("open fallback secrets", zap.String("path", f.fallbackPath), zap.Error(err))
			}
			return
		}
		defer file.Close()
		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			key, value, ok := strings.Cut(line, "=")
			if !ok {
				continue
			}
			parsed, err := parseReference(strings.TrimSpace(key))
			if err != nil {
				continue
			}
			f.fallback[parsed.key()] = strings.TrimSpace(value)
			if parsed.version == "latest" {
				f.fallback[parsed.canonical] = strings.TrimSpace(value)
			}
		}
		if err := scanner.Err(); err != nil {
			f.logger.Warn("read fallback secrets", zap.String("path", f.fallbackPath), zap.Error(err))
		}
	})
	if value, ok := f.fallback[ref.key()]; ok {
		return value, true
	}
	value, ok := f.fallback[ref.canonical]
	return value, ok
}

func (f *Fetcher) record(ctx context.Context, start time.Time, source string) {
	attrs := metric.WithAttributes(attribute.String("source", source))
	f.fetches.Add(ctx, 1, attrs)
	f.latency.Record(ctx, float64(f.now().Sub(start))/float64(time.Millisecond), attrs)
}

type reference struct {
	canonical string
	name      string
	version   string
	project   string
}

func (r reference) key() string {
	return r.canonical + "#" + r.version
}

// parseReference accepts secret://name[?version=N&project=P]; sm:// is an alias.
func parseReference(ref string) (reference, error) {
	trimmed := strings.TrimSpace(ref)
	if strings.HasPrefix(trimmed, "sm://") {
		trimmed = "secret://" + strings.TrimPrefix(trimmed, "sm://")
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return reference{}, fmt.Errorf("secrets: invalid reference %q: %w", ref, err)
	}
	if u.Scheme != "secret" {
		return reference{}, fmt.Errorf("secrets: unsupported reference %q", ref)
	}
	name := strings.Trim(u.Host+u.Path, "/")
	if name == "" {
		return reference{}, fmt.Errorf("secrets: missing secret name in %q", ref)
	}
	query := u.Query()
	version := strings.TrimSpace(query.Get("version"))
	if version == "" {
		version = "latest"
	}
	return reference{
		canonical: "secret://" + name,
		name:      name,
		version:   version,
		project:   strings.TrimSpace(query.Get("project")),
	}, nil
}

func fallsBack(err error) bool {
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated, codes.Unavailable, codes.DeadlineExceeded:
		return true
	default:
		return false
	}
}
