package repositories

import (
	"context"
	"time"

	domain "github.com/campus-merch/api/internal/domain"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ProductRepository persists catalog items and their stock counters.
type ProductRepository interface {
	Insert(ctx context.Context, product domain.Product) error
	Update(ctx context.Context, product domain.Product) error
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	List(ctx context.Context, filter ProductListFilter) (domain.CursorPage[domain.Product], error)
	// DecrementStock atomically subtracts every line from stock and adds it to the sales
	// counters. When any product would drop below zero nothing is written and an
	// InventoryError with InventoryErrorInsufficientStock is returned.
	DecrementStock(ctx context.Context, lines []StockLine) error
	// RestoreStock is the inverse of DecrementStock.
	RestoreStock(ctx context.Context, lines []StockLine) error
	UpdateRating(ctx context.Context, productID string, rating domain.ProductRating, updatedAt time.Time) error
}

// StockLine is one product quantity movement.
type StockLine struct {
	ProductID string
	Quantity  int
	Revenue   int64
}

// OrderRepository persists orders.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	FindByIDs(ctx context.Context, orderIDs []string) ([]domain.Order, error)
	FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
	CountByStatus(ctx context.Context) ([]domain.StatusBucket, error)
	CountByPaymentStatus(ctx context.Context) ([]domain.StatusBucket, error)
}

// GroupOrderRepository persists group orders.
type GroupOrderRepository interface {
	Insert(ctx context.Context, group domain.GroupOrder) error
	Update(ctx context.Context, group domain.GroupOrder) error
	FindByID(ctx context.Context, groupID string) (domain.GroupOrder, error)
	List(ctx context.Context, filter GroupOrderListFilter) (domain.CursorPage[domain.GroupOrder], error)
	ListExpired(ctx context.Context, now time.Time, limit int) ([]domain.GroupOrder, error)
}

// DistributionRepository persists fulfillment records.
type DistributionRepository interface {
	Insert(ctx context.Context, distribution domain.Distribution) error
	Update(ctx context.Context, distribution domain.Distribution) error
	FindByID(ctx context.Context, distributionID string) (domain.Distribution, error)
	// FindActiveByOrder returns a RepositoryError with IsNotFound when the order has no
	// active distribution.
	FindActiveByOrder(ctx context.Context, orderID string) (domain.Distribution, error)
	List(ctx context.Context, filter DistributionListFilter) (domain.CursorPage[domain.Distribution], error)
	ListOverdue(ctx context.Context, now time.Time, limit int) ([]domain.Distribution, error)
	CountByStatus(ctx context.Context) ([]domain.StatusBucket, error)
}

// ReviewRepository persists product reviews.
type ReviewRepository interface {
	Insert(ctx context.Context, review domain.Review) error
	Update(ctx context.Context, review domain.Review) error
	FindByID(ctx context.Context, reviewID string) (domain.Review, error)
	// FindByUserAndProduct ignores soft-deleted reviews only when includeDeleted is false.
	FindByUserAndProduct(ctx context.Context, userID, productID string, includeDeleted bool) (domain.Review, error)
	List(ctx context.Context, filter ReviewListFilter) (domain.CursorPage[domain.Review], error)
	// ListRated returns every approved, active review of the product.
	ListRated(ctx context.Context, productID string) ([]domain.Review, error)
	CountByStatus(ctx context.Context) ([]domain.StatusBucket, error)
}

// EventLedger remembers processed gateway event identifiers.
type EventLedger interface {
	// MarkProcessed records eventID and reports false when it had already been recorded.
	MarkProcessed(ctx context.Context, eventID string, ttl time.Duration) (bool, error)
	// Release forgets eventID so a delivery that failed mid-way can be retried.
	Release(ctx context.Context, eventID string) error
}

// HealthRepository collects readiness information for dependencies.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// Filter DTOs shared across repositories ------------------------------------

// ProductListFilter narrows catalog listings.
type ProductListFilter struct {
	Category        *domain.ProductCategory
	Featured        *bool
	SearchTerm      string
	IncludeInactive bool
	Pagination      domain.Pagination
}

// OrderListFilter narrows order listings.
type OrderListFilter struct {
	UserID       string
	GroupOrderID string
	Statuses     []domain.OrderStatus
	Pagination   domain.Pagination
}

// GroupOrderListFilter narrows group order listings.
type GroupOrderListFilter struct {
	Department string
	MemberID   string
	Status     *domain.GroupOrderStatus
	Pagination domain.Pagination
}

// DistributionListFilter narrows distribution listings.
type DistributionListFilter struct {
	AssignedTo   string
	GroupOrderID string
	Statuses     []domain.DistributionStatus
	Pagination   domain.Pagination
}

// ReviewListFilter narrows review listings.
type ReviewListFilter struct {
	ProductID  string
	UserID     string
	Status     *domain.ReviewStatus
	PublicOnly bool
	Pagination domain.Pagination
}
