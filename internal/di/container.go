package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	domain "github.com/campus-merch/api/internal/domain"
	"github.com/campus-merch/api/internal/platform/config"
	pfirestore "github.com/campus-merch/api/internal/platform/firestore"
	"github.com/campus-merch/api/internal/repositories"
	firestoreRepo "github.com/campus-merch/api/internal/repositories/firestore"
	redisRepo "github.com/campus-merch/api/internal/repositories/redis"
	"github.com/campus-merch/api/internal/services"
)

// Infrastructure carries the clients built by the caller. Only Firestore and Health are required;
// a nil member disables the features that depend on it.
type Infrastructure struct {
	Firestore *pfirestore.Provider
	Redis     goredis.UniversalClient
	Health    repositories.HealthRepository
	Events    services.EventPublisher
	Gateway   services.PaymentGateway
	Signer    services.CheckoutSigner
	URLSigner services.SignedURLIssuer
	Metrics   services.Metrics
	Logger    services.Logger
	Build     services.BuildInfo
	Clock     func() time.Time
}

// Repositories groups the persistence adapters shared by the services.
type Repositories struct {
	Products      repositories.ProductRepository
	Orders        repositories.OrderRepository
	GroupOrders   repositories.GroupOrderRepository
	Distributions repositories.DistributionRepository
	Reviews       repositories.ReviewRepository
	Ledger        repositories.EventLedger
	UnitOfWork    repositories.UnitOfWork
}

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Catalog       services.CatalogService
	Orders        services.OrderService
	Payments      services.PaymentService
	GroupOrders   services.GroupOrderService
	Distributions services.DistributionService
	Reviews       services.ReviewService
	Maintenance   services.MaintenanceService
	System        services.SystemService
}

// Container wires repositories and services for runtime use.
type Container struct {
	Config       config.Config
	Repositories Repositories
	Services     Services
}

// NewContainer constructs the runtime dependencies on top of infra.
func NewContainer(ctx context.Context, cfg config.Config, infra Infrastructure) (*Container, error) {
	if infra.Firestore == nil {
		return nil, errors.New("di: firestore provider is required")
	}
	if infra.Health == nil {
		return nil, errors.New("di: health repository is required")
	}
	if infra.Clock == nil {
		infra.Clock = time.Now
	}

	repos, err := buildRepositories(infra)
	if err != nil {
		return nil, err
	}
	svc, err := buildServices(cfg, infra, repos)
	if err != nil {
		return nil, err
	}
	return &Container{Config: cfg, Repositories: repos, Services: svc}, nil
}

func buildRepositories(infra Infrastructure) (Repositories, error) {
	var repos Repositories

	products, err := firestoreRepo.NewProductRepository(infra.Firestore)
	if err != nil {
		return Repositories{}, fmt.Errorf("build product repository: %w", err)
	}
	repos.Products = products

	orders, err := firestoreRepo.NewOrderRepository(infra.Firestore)
	if err != nil {
		return Repositories{}, fmt.Errorf("build order repository: %w", err)
	}
	repos.Orders = orders

	groups, err := firestoreRepo.NewGroupOrderRepository(infra.Firestore)
	if err != nil {
		return Repositories{}, fmt.Errorf("build group order repository: %w", err)
	}
	repos.GroupOrders = groups

	distributions, err := firestoreRepo.NewDistributionRepository(infra.Firestore)
	if err != nil {
		return Repositories{}, fmt.Errorf("build distribution repository: %w", err)
	}
	repos.Distributions = distributions

	reviews, err := firestoreRepo.NewReviewRepository(infra.Firestore)
	if err != nil {
		return Repositories{}, fmt.Errorf("build review repository: %w", err)
	}
	repos.Reviews = reviews

	uow, err := firestoreRepo.NewUnitOfWork(infra.Firestore)
	if err != nil {
		return Repositories{}, fmt.Errorf("build unit of work: %w", err)
	}
	repos.UnitOfWork = uow

	if infra.Redis != nil {
		ledger, err := redisRepo.NewEventLedger(infra.Redis)
		if err != nil {
			return Repositories{}, fmt.Errorf("build event ledger: %w", err)
		}
		repos.Ledger = ledger
	}
	return repos, nil
}

func buildServices(cfg config.Config, infra Infrastructure, repos Repositories) (Services, error) {
	var svc Services

	catalog, err := services.NewCatalogService(services.CatalogServiceDeps{
		Products: repos.Products,
		Clock:    infra.Clock,
		Events:   infra.Events,
		Logger:   infra.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build catalog service: %w", err)
	}
	svc.Catalog = catalog

	groups, err := services.NewGroupOrderService(services.GroupOrderServiceDeps{
		Groups:     repos.GroupOrders,
		Orders:     repos.Orders,
		UnitOfWork: repos.UnitOfWork,
		Clock:      infra.Clock,
		Events:     infra.Events,
		Logger:     infra.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build group order service: %w", err)
	}
	svc.GroupOrders = groups

	var payments services.PaymentService
	orders, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:   repos.Orders,
		Products: repos.Products,
		Groups:   groups,
		Refunds: services.OrderRefunderFunc(func(ctx context.Context, cmd services.RefundCommand) (services.Order, error) {
			return payments.Refund(ctx, cmd)
		}),
		UnitOfWork: repos.UnitOfWork,
		Pricing: domain.PricingPolicy{
			TaxRateBasisPoints:    cfg.Commerce.TaxRateBasisPoints,
			ShippingFee:           cfg.Commerce.ShippingFee,
			FreeShippingThreshold: cfg.Commerce.FreeShippingThreshold,
		},
		Clock:   infra.Clock,
		Events:  infra.Events,
		Metrics: infra.Metrics,
		Logger:  infra.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orders

	paymentDeps := services.PaymentServiceDeps{
		Orders:     repos.Orders,
		Groups:     groups,
		Canceller:  orders,
		Gateway:    infra.Gateway,
		Signer:     infra.Signer,
		EventTTL:   cfg.Payments.WebhookEventTTL,
		UnitOfWork: repos.UnitOfWork,
		Clock:      infra.Clock,
		Events:     infra.Events,
		Metrics:    infra.Metrics,
		Logger:     infra.Logger,
	}
	if repos.Ledger != nil {
		paymentDeps.Ledger = repos.Ledger
	}
	payments, err = services.NewPaymentService(paymentDeps)
	if err != nil {
		return Services{}, fmt.Errorf("build payment service: %w", err)
	}
	svc.Payments = payments

	distributions, err := services.NewDistributionService(services.DistributionServiceDeps{
		Distributions: repos.Distributions,
		Orders:        repos.Orders,
		UnitOfWork:    repos.UnitOfWork,
		URLSigner:     infra.URLSigner,
		ProofsBucket:  cfg.Storage.ProofsBucket,
		ProofURLTTL:   cfg.Storage.SignedURLTTL,
		Clock:         infra.Clock,
		Events:        infra.Events,
		Logger:        infra.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build distribution service: %w", err)
	}
	svc.Distributions = distributions

	reviews, err := services.NewReviewService(services.ReviewServiceDeps{
		Reviews:  repos.Reviews,
		Orders:   repos.Orders,
		Products: repos.Products,
		Clock:    infra.Clock,
		Events:   infra.Events,
		Logger:   infra.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build review service: %w", err)
	}
	svc.Reviews = reviews

	maintenance, err := services.NewMaintenanceService(services.MaintenanceServiceDeps{
		Groups:        groups,
		Distributions: distributions,
		BatchSize:     cfg.Commerce.MaintenanceBatchSize,
		Clock:         infra.Clock,
		Metrics:       infra.Metrics,
		Logger:        infra.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build maintenance service: %w", err)
	}
	svc.Maintenance = maintenance

	system, err := services.NewSystemService(services.SystemServiceDeps{
		HealthRepository: infra.Health,
		Clock:            infra.Clock,
		Build:            infra.Build,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build system service: %w", err)
	}
	svc.System = system

	return svc, nil
}
