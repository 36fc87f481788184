package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/campus-merch/api/internal/di"
	"github.com/campus-merch/api/internal/handlers"
	"github.com/campus-merch/api/internal/payments"
	"github.com/campus-merch/api/internal/platform/auth"
	"github.com/campus-merch/api/internal/platform/authz"
	"github.com/campus-merch/api/internal/platform/config"
	pfirestore "github.com/campus-merch/api/internal/platform/firestore"
	"github.com/campus-merch/api/internal/platform/idempotency"
	"github.com/campus-merch/api/internal/platform/jobs"
	"github.com/campus-merch/api/internal/platform/observability"
	"github.com/campus-merch/api/internal/platform/secrets"
	pstorage "github.com/campus-merch/api/internal/platform/storage"
	"github.com/campus-merch/api/internal/repositories"
	"github.com/campus-merch/api/internal/services"
)

const (
	shutdownTimeout    = 15 * time.Second
	tokenVerifyTimeout = 5 * time.Second
	firestoreDial      = 10 * time.Second
	healthCheckTimeout = 3 * time.Second
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	envValues, err := config.EnvironmentValues()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read environment values: %v\n", err)
		os.Exit(1)
	}

	baseLogger, err := observability.NewLogger(envValues["API_LOG_LEVEL"])
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()
	logger := baseLogger.Named("api")

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
		config.WithRequiredSecrets(requiredSecretNames(envValues)...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}
	buildInfo := buildInfoFromEnv(envValues, cfg, startedAt)

	var gcpOpts []option.ClientOption
	if file := strings.TrimSpace(cfg.Firebase.CredentialsFile); file != "" {
		gcpOpts = append(gcpOpts, option.WithCredentialsFile(file))
	}

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore,
		pfirestore.WithDialTimeout(firestoreDial),
		pfirestore.WithClientOptions(gcpOpts...),
	)
	if _, err := firestoreProvider.Client(ctx); err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	defer func() {
		if err := firestoreProvider.Close(); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	var redisClient goredis.UniversalClient
	if addr := strings.TrimSpace(cfg.Redis.Addr); addr != "" {
		redisClient = goredis.NewClient(&goredis.Options{
			Addr:     addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close error", zap.Error(err))
			}
		}()
	} else {
		logger.Warn("redis not configured; idempotency keys are process local and webhook dedupe is disabled")
	}

	publisher, closePublisher, err := newEventPublisher(ctx, cfg, gcpOpts)
	if err != nil {
		logger.Fatal("failed to initialise event publisher", zap.Error(err))
	}
	defer closePublisher()

	healthRepo, err := newHealthRepository(firestoreProvider, redisClient)
	if err != nil {
		logger.Fatal("failed to initialise health repository", zap.Error(err))
	}

	infra := di.Infrastructure{
		Firestore: firestoreProvider,
		Health:    healthRepo,
		Metrics:   observability.NewCounters(nil, logger.Named("metrics")),
		Logger:    observability.EventLogger(logger.Named("services")),
		Build:     buildInfo,
		Clock:     time.Now,
	}
	if redisClient != nil {
		infra.Redis = redisClient
	}
	if publisher != nil {
		infra.Events = publisher
	}
	if signer := newProofSigner(logger, cfg); signer != nil {
		infra.URLSigner = signer
	}

	var webhookParser *payments.WebhookParser
	if strings.TrimSpace(cfg.Payments.StripeAPIKey) != "" {
		gateway, err := payments.NewStripeGateway(payments.StripeGatewayConfig{
			APIKey: cfg.Payments.StripeAPIKey,
			Logger: payments.StripeLogger(observability.EventLogger(logger.Named("stripe"))),
		})
		if err != nil {
			logger.Fatal("failed to initialise stripe gateway", zap.Error(err))
		}
		infra.Gateway = gateway
	} else {
		logger.Warn("stripe api key not configured; payment orders and refunds are unavailable")
	}
	if secret := strings.TrimSpace(cfg.Payments.StripeWebhookSecret); secret != "" {
		webhookParser, err = payments.NewWebhookParser(secret)
		if err != nil {
			logger.Fatal("failed to initialise stripe webhook parser", zap.Error(err))
		}
	}
	if secret := strings.TrimSpace(cfg.Payments.SigningSecret); secret != "" {
		checkoutSigner, err := payments.NewCheckoutSigner(secret)
		if err != nil {
			logger.Fatal("failed to initialise checkout signer", zap.Error(err))
		}
		infra.Signer = checkoutSigner
	}

	container, err := di.NewContainer(ctx, cfg, infra)
	if err != nil {
		logger.Fatal("failed to build service container", zap.Error(err))
	}
	svc := container.Services

	policy, err := authz.New()
	if err != nil {
		logger.Fatal("failed to initialise authorization policy", zap.Error(err))
	}
	firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(firebaseVerifier, tokenVerifyTimeout)

	idempotencyStore, stopPurge := newIdempotencyStore(logger.Named("idempotency"), cfg, redisClient)
	defer stopPurge()
	access := handlers.Access{
		Authn:  authenticator,
		Policy: policy,
		Idempotency: idempotency.Middleware(
			idempotencyStore,
			idempotency.WithHeader(cfg.Idempotency.Header),
			idempotency.WithTTL(cfg.Idempotency.TTL),
			idempotency.WithLogger(logger.Named("idempotency")),
		),
	}

	var webhooks *handlers.WebhookHandlers
	if webhookParser != nil {
		webhooks = handlers.NewWebhookHandlers(webhookParser, svc.Payments)
	} else {
		logger.Warn("stripe webhook secret not configured; payment webhooks answer 503")
		webhooks = handlers.NewWebhookHandlers(nil, svc.Payments)
	}

	jwks := auth.NewJWKSCache(cfg.Security.OIDC.JWKSURL, nil, time.Now)
	if strings.TrimSpace(cfg.Security.OIDC.Audience) == "" {
		logger.Warn("oidc audience not configured; internal routes will reject requests")
	}
	serviceTokens := auth.RequireServiceToken(jwks, auth.ServiceTokenPolicy{
		Audience: cfg.Security.OIDC.Audience,
		Issuers:  cfg.Security.OIDC.Issuers,
		Emails:   cfg.Security.OIDC.ServiceAccounts,
	})

	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.TraceMiddleware(cfg.Firestore.ProjectID),
			observability.RequestLogger(logger.Named("http")),
			observability.Recoverer(logger.Named("http")),
		),
		handlers.WithHealthHandlers(handlers.NewHealthHandlers(
			handlers.WithHealthSystemService(svc.System),
			handlers.WithHealthBuildInfo(buildInfo),
		)),
		handlers.WithProductRoutes(handlers.NewProductHandlers(svc.Catalog, svc.Reviews).Routes),
		handlers.WithOrderRoutes(handlers.NewOrderHandlers(access, svc.Orders, svc.Payments).Routes),
		handlers.WithGroupOrderRoutes(handlers.NewGroupOrderHandlers(access, svc.GroupOrders).Routes),
		handlers.WithDistributionRoutes(handlers.NewDistributionHandlers(access, svc.Distributions).Routes),
		handlers.WithReviewRoutes(handlers.NewReviewHandlers(access, svc.Reviews,
			handlers.WithReviewRateLimit(cfg.RateLimits.ReviewWritesPerMinute, time.Minute, time.Now),
		).Routes),
		handlers.WithAdminRoutes(handlers.NewAdminHandlers(access, handlers.AdminServices{
			Catalog:       svc.Catalog,
			Orders:        svc.Orders,
			Payments:      svc.Payments,
			GroupOrders:   svc.GroupOrders,
			Distributions: svc.Distributions,
			Reviews:       svc.Reviews,
		}).Routes),
		handlers.WithWebhookRoutes(webhooks.Routes),
		handlers.WithInternalRoutes(handlers.NewInternalHandlers(svc.Maintenance).Routes),
		handlers.WithInternalMiddlewares(serviceTokens),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("api server listening",
			zap.String("addr", server.Addr),
			zap.String("version", buildInfo.Version),
			zap.String("environment", buildInfo.Environment),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err, ok := <-serverErr:
		if ok && err != nil {
			logger.Error("server error", zap.Error(err))
		}
	case <-sigCtx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	logger.Info("api server stopped")
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) services.BuildInfo {
	version := strings.TrimSpace(env["API_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(env["API_BUILD_COMMIT_SHA"])
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(cfg.Security.Environment)
	if environment == "" {
		environment = "local"
	}
	return services.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		return strings.TrimSpace(env[key])
	}

	envLabel := strings.ToLower(lookup("API_SECURITY_ENVIRONMENT"))
	if envLabel == "" {
		envLabel = "local"
	}
	project := lookup("API_SECRET_DEFAULT_PROJECT_ID")
	if project == "" {
		project = lookup("API_FIREBASE_PROJECT_ID")
	}

	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithProject(project),
	}
	if projects := parseKeyValueList(lookup("API_SECRET_PROJECT_IDS")); len(projects) > 0 {
		opts = append(opts, secrets.WithProjectMap(envLabel, projects))
	}
	if path := lookup("API_SECRET_FALLBACK_FILE"); path != "" {
		opts = append(opts, secrets.WithFallbackFile(path))
	}
	if file := lookup("API_FIREBASE_CREDENTIALS_FILE"); file != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(file)))
	}
	return secrets.NewFetcher(ctx, opts...)
}

// requiredSecretNames lists the secrets a deployed environment cannot start without. Local runs
// may leave payment credentials empty.
func requiredSecretNames(env map[string]string) []string {
	environment := strings.ToLower(strings.TrimSpace(env["API_SECURITY_ENVIRONMENT"]))
	if environment == "" || environment == "local" || environment == "test" {
		return nil
	}
	return []string{
		"Payments.StripeAPIKey",
		"Payments.StripeWebhookSecret",
		"Payments.SigningSecret",
	}
}

func parseKeyValueList(raw string) map[string]string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	out := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		if key != "" && value != "" {
			out[key] = value
		}
	}
	return out
}

func newEventPublisher(ctx context.Context, cfg config.Config, gcpOpts []option.ClientOption) (services.EventPublisher, func(), error) {
	switch cfg.Events.Backend {
	case config.EventsBackendKafka:
		publisher, err := jobs.NewKafkaEventPublisher(cfg.Events.KafkaBrokers, cfg.Events.Topic)
		if err != nil {
			return nil, func() {}, err
		}
		return publisher, func() { _ = publisher.Close() }, nil
	case config.EventsBackendPubSub:
		client, err := pubsub.NewClient(ctx, cfg.Firestore.ProjectID, gcpOpts...)
		if err != nil {
			return nil, func() {}, fmt.Errorf("pubsub client: %w", err)
		}
		topic := client.Topic(cfg.Events.Topic)
		topic.EnableMessageOrdering = true
		publisher, err := jobs.NewPubSubEventPublisher(topic)
		if err != nil {
			_ = client.Close()
			return nil, func() {}, err
		}
		return publisher, func() {
			publisher.Stop()
			_ = client.Close()
		}, nil
	default:
		return nil, func() {}, nil
	}
}

func newHealthRepository(provider *pfirestore.Provider, redisClient goredis.UniversalClient) (repositories.HealthRepository, error) {
	checks := []repositories.DependencyCheck{{
		Name:  "firestore",
		Check: provider.Ping,
	}}
	if redisClient != nil {
		checks = append(checks, repositories.DependencyCheck{
			Name:     "redis",
			Optional: true,
			Check: func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			},
		})
	}
	return repositories.NewDependencyHealthRepository(checks, repositories.WithDependencyTimeout(healthCheckTimeout))
}

// newProofSigner returns nil when no signing key is configured, which disables delivery proof
// uploads.
func newProofSigner(logger *zap.Logger, cfg config.Config) *pstorage.Client {
	path := strings.TrimSpace(cfg.Storage.CredentialsFile)
	if path == "" || strings.TrimSpace(cfg.Storage.ProofsBucket) == "" {
		logger.Warn("storage signer not configured; delivery proof uploads are disabled")
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Fatal("failed to read storage signer key", zap.Error(err))
	}
	signer, err := pstorage.ParseServiceAccountKey(data)
	if err != nil {
		logger.Fatal("failed to parse storage signer key", zap.Error(err))
	}
	client, err := pstorage.NewClient(signer)
	if err != nil {
		logger.Fatal("failed to initialise signed url client", zap.Error(err))
	}
	return client
}

func newIdempotencyStore(logger *zap.Logger, cfg config.Config, redisClient goredis.UniversalClient) (idempotency.Store, func()) {
	if redisClient != nil {
		store, err := idempotency.NewRedisStore(redisClient)
		if err != nil {
			logger.Fatal("failed to initialise redis idempotency store", zap.Error(err))
		}
		return store, func() {}
	}

	store := idempotency.NewMemoryStore()
	purgeCtx, cancel := context.WithCancel(context.Background())
	ticker := time.NewTicker(cfg.Idempotency.CleanupInterval)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ticker.C:
				if removed := store.Purge(time.Now().UTC()); removed > 0 {
					logger.Info("idempotency purge removed records", zap.Int("count", removed))
				}
			case <-purgeCtx.Done():
				return
			}
		}
	}()
	return store, func() {
		ticker.Stop()
		cancel()
		wg.Wait()
	}
}
