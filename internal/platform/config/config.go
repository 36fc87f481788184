package config

import (
	"fmt"
	"strings"
	"time"
)

// Supported domain event sinks.
const (
	EventsBackendPubSub = "pubsub"
	EventsBackendKafka  = "kafka"
	EventsBackendNone   = "none"
)

// Config is the runtime configuration, grouped by concern.
type Config struct {
	Server      ServerConfig
	Firebase    FirebaseConfig
	Firestore   FirestoreConfig
	Storage     StorageConfig
	Payments    PaymentsConfig
	Events      EventsConfig
	Redis       RedisConfig
	RateLimits  RateLimitConfig
	Security    SecurityConfig
	Idempotency IdempotencyConfig
	Commerce    CommerceConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

// FirestoreConfig falls back to the Firebase project when ProjectID is unset.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// StorageConfig names the bucket holding delivery proof images.
type StorageConfig struct {
	ProofsBucket    string
	SignedURLTTL    time.Duration
	CredentialsFile string
}

// PaymentsConfig collects gateway credentials. The three secrets accept secret:// references.
type PaymentsConfig struct {
	StripeAPIKey        string
	StripeWebhookSecret string
	SigningSecret       string
	WebhookEventTTL     time.Duration
}

// EventsConfig selects where domain events are published.
type EventsConfig struct {
	Backend      string
	Topic        string
	KafkaBrokers []string
}

// RedisConfig points at the cache used for idempotency keys and webhook dedupe.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RateLimitConfig holds per-minute request budgets.
type RateLimitConfig struct {
	DefaultPerMinute       int
	AuthenticatedPerMinute int
	ReviewWritesPerMinute  int
}

type SecurityConfig struct {
	Environment string
	OIDC        OIDCConfig
}

// OIDCConfig controls verification of Google-signed scheduler tokens. Audiences maps an
// environment label to its audience and fills Audience when that is unset.
type OIDCConfig struct {
	JWKSURL         string
	Audience        string
	Audiences       map[string]string
	Issuers         []string
	ServiceAccounts []string
}

type IdempotencyConfig struct {
	Header          string
	TTL             time.Duration
	CleanupInterval time.Duration
}

// CommerceConfig carries pricing constants in paise.
type CommerceConfig struct {
	TaxRateBasisPoints    int64
	ShippingFee           int64
	FreeShippingThreshold int64
	MaintenanceBatchSize  int
}

// ValidationError lists the fields that are missing or out of range.
type ValidationError struct {
	fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the offending field names.
func (e *ValidationError) Fields() []string {
	return append([]string(nil), e.fields...)
}

func (c Config) validate() error {
	var bad []string
	check := func(ok bool, field string) {
		if !ok {
			bad = append(bad, field)
		}
	}

	check(c.Server.Port != "", "Server.Port")
	check(c.Firebase.ProjectID != "", "Firebase.ProjectID")
	check(c.Firestore.ProjectID != "", "Firestore.ProjectID")
	switch c.Events.Backend {
	case EventsBackendPubSub, EventsBackendNone:
	case EventsBackendKafka:
		check(len(c.Events.KafkaBrokers) > 0, "Events.KafkaBrokers")
	default:
		bad = append(bad, "Events.Backend")
	}
	check(c.Commerce.TaxRateBasisPoints >= 0, "Commerce.TaxRateBasisPoints")
	check(c.Commerce.ShippingFee >= 0, "Commerce.ShippingFee")
	check(c.Commerce.FreeShippingThreshold >= 0, "Commerce.FreeShippingThreshold")
	check(c.Commerce.MaintenanceBatchSize > 0, "Commerce.MaintenanceBatchSize")
	check(strings.TrimSpace(c.Idempotency.Header) != "", "Idempotency.Header")
	check(c.Idempotency.TTL > 0, "Idempotency.TTL")
	check(c.Idempotency.CleanupInterval > 0, "Idempotency.CleanupInterval")

	if len(bad) > 0 {
		return &ValidationError{fields: bad}
	}
	return nil
}
