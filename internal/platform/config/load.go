package config

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultOIDCJWKSURL          = "https://www.googleapis.com/oauth2/v3/certs"
	defaultIdempotencyHeader    = "Idempotency-Key"
	defaultIdempotencyTTL       = 24 * time.Hour
	defaultSignedURLTTL         = 15 * time.Minute
	defaultEventsTopic          = "commerce-events"
	defaultWebhookEventTTL      = 72 * time.Hour
	defaultRateLimitReviewWrite = 10
)

var defaultOIDCIssuers = []string{"https://accounts.google.com", "https://cloud.google.com/iap"}

// Option customises Load and EnvironmentValues.
type Option func(*loader)

type loader struct {
	envFile   string
	overrides map[string]string
	systemEnv bool
	resolver  SecretResolver
	required  []string
}

// WithEnvFile reads overrides from path instead of ./.env. An empty path skips the file.
func WithEnvFile(path string) Option {
	return func(l *loader) { l.envFile = path }
}

// WithEnvMap supplies values that win over both the process environment and the env file.
func WithEnvMap(values map[string]string) Option {
	return func(l *loader) { l.overrides = values }
}

// WithoutSystemEnv ignores the process environment.
func WithoutSystemEnv() Option {
	return func(l *loader) { l.systemEnv = false }
}

// WithSecretResolver resolves secret:// and sm:// values.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(l *loader) { l.resolver = resolver }
}

// WithRequiredSecrets makes Load fail when any named field, such as "Payments.StripeAPIKey",
// ends up empty.
func WithRequiredSecrets(names ...string) Option {
	return func(l *loader) { l.required = append(l.required, names...) }
}

func newLoader(opts []Option) *loader {
	l := &loader{envFile: ".env", systemEnv: true}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// env layers the three sources: overrides, then the process environment, then the env file.
type env struct {
	layers []func(string) (string, bool)
}

func (l *loader) env() (env, error) {
	file, err := readEnvFile(l.envFile)
	if err != nil {
		return env{}, err
	}
	var e env
	if l.overrides != nil {
		e.layers = append(e.layers, mapLayer(l.overrides))
	}
	if l.systemEnv {
		e.layers = append(e.layers, os.LookupEnv)
	}
	e.layers = append(e.layers, mapLayer(file))
	return e, nil
}

func mapLayer(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

// raw returns the first non-empty value for key.
func (e env) raw(key string) string {
	for _, layer := range e.layers {
		if v, ok := layer(key); ok && v != "" {
			return v
		}
	}
	return ""
}

func (e env) str(key, fallback string) string {
	if v := e.raw(key); v != "" {
		return v
	}
	return fallback
}

func (e env) lower(key, fallback string) string {
	return strings.ToLower(e.str(key, fallback))
}

func (e env) duration(key string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(e.raw(key)); err == nil {
		return d
	}
	return fallback
}

func (e env) integer(key string, fallback int) int {
	if n, err := strconv.Atoi(e.raw(key)); err == nil {
		return n
	}
	return fallback
}

func (e env) paise(key string, fallback int64) int64 {
	if n, err := strconv.ParseInt(e.raw(key), 10, 64); err == nil {
		return n
	}
	return fallback
}

// list splits a comma separated value, dropping blanks.
func (e env) list(key string) []string {
	out := []string{}
	for _, part := range strings.Split(e.raw(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// pairs parses "label=value,label=value" with lowercased labels.
func (e env) pairs(key string) map[string]string {
	out := make(map[string]string)
	for _, entry := range e.list(key) {
		label, value, ok := strings.Cut(entry, "=")
		label = strings.ToLower(strings.TrimSpace(label))
		value = strings.TrimSpace(value)
		if ok && label != "" && value != "" {
			out[label] = value
		}
	}
	return out
}

// EnvironmentValues returns the merged key/value view Load reads from, so callers can configure
// the secret resolver before loading.
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	l := newLoader(opts)
	values, err := readEnvFile(l.envFile)
	if err != nil {
		return nil, err
	}
	if values == nil {
		values = make(map[string]string)
	}
	if l.systemEnv {
		for _, entry := range os.Environ() {
			key, value, ok := strings.Cut(entry, "=")
			if key = strings.TrimSpace(key); ok && key != "" {
				values[key] = value
			}
		}
	}
	for key, value := range l.overrides {
		values[key] = value
	}
	return values, nil
}

// Load builds the configuration from defaults and the layered environment, resolves secret
// references, then validates the result.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	l := newLoader(opts)
	e, err := l.env()
	if err != nil {
		return Config{}, err
	}

	cfg := fromEnv(e)
	if cfg.Firestore.ProjectID == "" {
		cfg.Firestore.ProjectID = cfg.Firebase.ProjectID
	}
	if len(cfg.Security.OIDC.Issuers) == 0 {
		cfg.Security.OIDC.Issuers = append([]string(nil), defaultOIDCIssuers...)
	}
	if cfg.Security.OIDC.Audience == "" {
		cfg.Security.OIDC.Audience = cfg.Security.OIDC.Audiences[cfg.Security.Environment]
	}

	resolved, err := cfg.resolveSecrets(ctx, l.resolver)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	if missing := missingSecrets(l.required, resolved); missing != nil {
		return Config{}, missing
	}
	return cfg, nil
}

func fromEnv(e env) Config {
	return Config{
		Server: ServerConfig{
			Port:         e.str("API_SERVER_PORT", "8080"),
			ReadTimeout:  e.duration("API_SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: e.duration("API_SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:  e.duration("API_SERVER_IDLE_TIMEOUT", 2*time.Minute),
		},
		Firebase: FirebaseConfig{
			ProjectID:       e.raw("API_FIREBASE_PROJECT_ID"),
			CredentialsFile: e.raw("API_FIREBASE_CREDENTIALS_FILE"),
		},
		Firestore: FirestoreConfig{
			ProjectID:    e.raw("API_FIRESTORE_PROJECT_ID"),
			EmulatorHost: e.raw("API_FIRESTORE_EMULATOR_HOST"),
		},
		Storage: StorageConfig{
			ProofsBucket:    e.raw("API_STORAGE_PROOFS_BUCKET"),
			SignedURLTTL:    e.duration("API_STORAGE_SIGNED_URL_TTL", defaultSignedURLTTL),
			CredentialsFile: e.raw("API_STORAGE_CREDENTIALS_FILE"),
		},
		Payments: PaymentsConfig{
			StripeAPIKey:        e.raw("API_PAYMENTS_STRIPE_API_KEY"),
			StripeWebhookSecret: e.raw("API_PAYMENTS_STRIPE_WEBHOOK_SECRET"),
			SigningSecret:       e.raw("API_PAYMENTS_SIGNING_SECRET"),
			WebhookEventTTL:     e.duration("API_PAYMENTS_WEBHOOK_EVENT_TTL", defaultWebhookEventTTL),
		},
		Events: EventsConfig{
			Backend:      e.lower("API_EVENTS_BACKEND", EventsBackendPubSub),
			Topic:        e.str("API_EVENTS_TOPIC", defaultEventsTopic),
			KafkaBrokers: e.list("API_EVENTS_KAFKA_BROKERS"),
		},
		Redis: RedisConfig{
			Addr:     e.raw("API_REDIS_ADDR"),
			Password: e.raw("API_REDIS_PASSWORD"),
			DB:       e.integer("API_REDIS_DB", 0),
		},
		RateLimits: RateLimitConfig{
			DefaultPerMinute:       e.integer("API_RATELIMIT_DEFAULT_PER_MIN", 120),
			AuthenticatedPerMinute: e.integer("API_RATELIMIT_AUTH_PER_MIN", 240),
			ReviewWritesPerMinute:  e.integer("API_RATELIMIT_REVIEW_WRITES_PER_MIN", defaultRateLimitReviewWrite),
		},
		Security: SecurityConfig{
			Environment: e.lower("API_SECURITY_ENVIRONMENT", "local"),
			OIDC: OIDCConfig{
				JWKSURL:         e.str("API_SECURITY_OIDC_JWKS_URL", defaultOIDCJWKSURL),
				Audience:        e.raw("API_SECURITY_OIDC_AUDIENCE"),
				Audiences:       e.pairs("API_SECURITY_OIDC_AUDIENCES"),
				Issuers:         e.list("API_SECURITY_OIDC_ISSUERS"),
				ServiceAccounts: e.list("API_SECURITY_OIDC_SERVICE_ACCOUNTS"),
			},
		},
		Idempotency: IdempotencyConfig{
			Header:          e.str("API_IDEMPOTENCY_HEADER", defaultIdempotencyHeader),
			TTL:             e.duration("API_IDEMPOTENCY_TTL", defaultIdempotencyTTL),
			CleanupInterval: e.duration("API_IDEMPOTENCY_CLEANUP_INTERVAL", time.Hour),
		},
		Commerce: CommerceConfig{
			TaxRateBasisPoints:    e.paise("API_COMMERCE_TAX_RATE_BP", 1800),
			ShippingFee:           e.paise("API_COMMERCE_SHIPPING_FEE", 5000),
			FreeShippingThreshold: e.paise("API_COMMERCE_FREE_SHIPPING_THRESHOLD", 50000),
			MaintenanceBatchSize:  e.integer("API_COMMERCE_MAINTENANCE_BATCH", 100),
		},
	}
}

// readEnvFile parses KEY=VALUE lines, tolerating comments, export prefixes and quotes. A missing
// file yields no values.
func readEnvFile(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] == '#' {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		key, value, ok := strings.Cut(line, "=")
		if key = strings.TrimSpace(key); !ok || key == "" {
			continue
		}
		values[key] = strings.Trim(strings.TrimSpace(value), `"'`)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return values, nil
}
