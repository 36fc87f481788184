package services

import (
	"context"
	"time"

	domain "github.com/campus-merch/api/internal/domain"
	"github.com/campus-merch/api/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination         = domain.Pagination
	Product            = domain.Product
	ProductVariant     = domain.ProductVariant
	ProductCategory    = domain.ProductCategory
	Order              = domain.Order
	OrderItem          = domain.OrderItem
	OrderStatus        = domain.OrderStatus
	Address            = domain.Address
	Pricing            = domain.Pricing
	GroupOrder         = domain.GroupOrder
	GroupOrderSettings = domain.GroupOrderSettings
	GroupOrderStatus   = domain.GroupOrderStatus
	Distribution       = domain.Distribution
	DistributionStatus = domain.DistributionStatus
	DeliveryProof      = domain.DeliveryProof
	Review             = domain.Review
	ReviewSummary      = domain.ReviewSummary
	StatusBucket       = domain.StatusBucket
	SystemHealthReport = domain.SystemHealthReport
)

// CatalogService manages the product catalog.
type CatalogService interface {
	CreateProduct(ctx context.Context, cmd UpsertProductCommand) (Product, error)
	UpdateProduct(ctx context.Context, cmd UpsertProductCommand) (Product, error)
	DeleteProduct(ctx context.Context, cmd DeleteProductCommand) error
	GetProduct(ctx context.Context, productID string, includeInactive bool) (Product, error)
	ListProducts(ctx context.Context, filter ProductListFilter) (domain.CursorPage[Product], error)
}

// OrderService encapsulates checkout and the order status machine.
type OrderService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error)
	GetOrder(ctx context.Context, orderID string, opts OrderReadOptions) (Order, error)
	ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error)
	AdvanceStatus(ctx context.Context, cmd OrderStatusCommand) (Order, error)
	CancelOrder(ctx context.Context, cmd CancelOrderCommand) (Order, error)
	Statistics(ctx context.Context) (OrderStatistics, error)
}

// GroupOrderService owns pooled department purchases and their derived pricing.
type GroupOrderService interface {
	CreateGroupOrder(ctx context.Context, cmd CreateGroupOrderCommand) (GroupOrder, error)
	GetGroupOrder(ctx context.Context, groupID string) (GroupOrder, error)
	ListGroupOrders(ctx context.Context, filter GroupOrderListFilter) (domain.CursorPage[GroupOrder], error)
	AddMember(ctx context.Context, cmd GroupMemberCommand) (GroupOrder, error)
	RemoveMember(ctx context.Context, cmd GroupMemberCommand) (GroupOrder, error)
	UpdateStatus(ctx context.Context, cmd GroupOrderStatusCommand) (GroupOrder, error)
	CloseExpired(ctx context.Context, limit int) (int, error)
	GroupOrderCoordinator
}

// GroupOrderCoordinator is the slice of the group service used by order and payment flows.
type GroupOrderCoordinator interface {
	// CheckJoin reports GroupClosed or NotAMember before any stock is touched.
	CheckJoin(ctx context.Context, groupID, userID string, orderTotal int64) (GroupOrder, error)
	JoinOrder(ctx context.Context, groupID string, order Order) (GroupOrder, error)
	DetachOrder(ctx context.Context, groupID string, order Order) (GroupOrder, error)
	RecordCollection(ctx context.Context, groupID string, amount int64) (GroupOrder, error)
}

// DistributionService tracks fulfillment of confirmed orders.
type DistributionService interface {
	CreateAssignment(ctx context.Context, cmd CreateDistributionCommand) (Distribution, error)
	GetDistribution(ctx context.Context, distributionID string) (Distribution, error)
	ListDistributions(ctx context.Context, filter DistributionListFilter) (domain.CursorPage[Distribution], error)
	ListOverdue(ctx context.Context, limit int) ([]Distribution, error)
	UpdateStatus(ctx context.Context, cmd DistributionStatusCommand) (Distribution, error)
	UpdateItemStatus(ctx context.Context, cmd DistributionItemStatusCommand) (Distribution, error)
	RecordDeliveryProof(ctx context.Context, cmd DeliveryProofCommand) (Distribution, error)
	Cancel(ctx context.Context, cmd CancelDistributionCommand) (Distribution, error)
	MirrorDeliveryToOrder(ctx context.Context, distribution Distribution, actorID string) (Order, error)
	DeliveryProofUploadURL(ctx context.Context, cmd DeliveryProofUploadCommand) (SignedUpload, error)
	Statistics(ctx context.Context) ([]StatusBucket, error)
	RemindOverdue(ctx context.Context, limit int) (int, error)
}

// ReviewService manages verified reviews and product rating aggregates.
type ReviewService interface {
	SubmitReview(ctx context.Context, cmd SubmitReviewCommand) (Review, error)
	UpdateReview(ctx context.Context, cmd UpdateReviewCommand) (Review, error)
	DeleteReview(ctx context.Context, cmd DeleteReviewCommand) error
	ModerateReview(ctx context.Context, cmd ModerateReviewCommand) (Review, error)
	MarkHelpful(ctx context.Context, cmd ReviewHelpfulCommand) (Review, error)
	UnmarkHelpful(ctx context.Context, cmd ReviewHelpfulCommand) (Review, error)
	ListProductReviews(ctx context.Context, productID string, page Pagination) (domain.CursorPage[Review], error)
	ProductSummary(ctx context.Context, productID string) (ReviewSummary, error)
	RecomputeProductRating(ctx context.Context, productID string) (domain.ProductRating, error)
}

// PaymentService reconciles gateway callbacks with order and group payment state.
type PaymentService interface {
	CreatePaymentOrder(ctx context.Context, cmd CreatePaymentOrderCommand) (PaymentOrder, error)
	VerifyPayment(ctx context.Context, cmd VerifyPaymentCommand) (Order, error)
	ApplyGatewayEvent(ctx context.Context, event GatewayEvent) error
	Refund(ctx context.Context, cmd RefundCommand) (Order, error)
	Statistics(ctx context.Context) (PaymentStatistics, error)
}

// MaintenanceService runs the scheduler-triggered sweeps.
type MaintenanceService interface {
	CloseExpiredGroupOrders(ctx context.Context) (MaintenanceResult, error)
	RemindOverdueDistributions(ctx context.Context) (MaintenanceResult, error)
}

// SystemService exposes readiness information.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// Commands ------------------------------------------------------------------

// UpsertProductCommand carries product fields for create and update. ProductID is ignored on create.
type UpsertProductCommand struct {
	ProductID        string
	Name             string
	Description      string
	Category         ProductCategory
	SKU              string
	Price            int64
	DiscountPercent  float64
	Stock            int
	Variants         []ProductVariant
	Images           []string
	Tags             []string
	MinOrderQuantity int
	MaxOrderQuantity int
	Featured         bool
	IsActive         *bool
	ActorID          string
}

// DeleteProductCommand soft deletes a product.
type DeleteProductCommand struct {
	ProductID string
	ActorID   string
}

// ProductListFilter narrows catalog listings.
type ProductListFilter = repositories.ProductListFilter

// OrderItemInput is one requested cart line.
type OrderItemInput struct {
	ProductID    string
	Quantity     int
	VariantType  domain.VariantType
	VariantValue string
}

// CreateOrderCommand places an individual or group order.
type CreateOrderCommand struct {
	UserID          string
	Items           []OrderItemInput
	ShippingAddress Address
	BillingAddress  *Address
	PaymentMethod   domain.PaymentMethod
	GroupOrderID    string
	Discount        int64
	Notes           string
}

// OrderReadOptions controls ownership checks on reads.
type OrderReadOptions struct {
	ActorID string
	IsStaff bool
}

// OrderListFilter narrows order listings.
type OrderListFilter = repositories.OrderListFilter

// OrderStatusCommand moves an order along its status machine.
type OrderStatusCommand struct {
	OrderID string
	Status  OrderStatus
	Note    string
	ActorID string
}

// CancelOrderCommand cancels an order that has not entered fulfillment.
type CancelOrderCommand struct {
	OrderID string
	Reason  string
	ActorID string
	IsStaff bool
}

// OrderStatistics groups order counts and revenue by status.
type OrderStatistics struct {
	TotalOrders  int
	TotalRevenue int64
	ByStatus     []StatusBucket
	GeneratedAt  time.Time
}

// CreateGroupOrderCommand opens a new department group order.
type CreateGroupOrderCommand struct {
	Name        string
	Description string
	Department  string
	OrganizerID string
	Settings    GroupOrderSettings
	MemberIDs   []string
}

// GroupOrderListFilter narrows group order listings.
type GroupOrderListFilter = repositories.GroupOrderListFilter

// GroupMemberCommand adds or removes a member. Only group admins and staff may change membership.
type GroupMemberCommand struct {
	GroupID string
	UserID  string
	Role    domain.GroupMemberRole
	ActorID string
	IsStaff bool
}

// GroupOrderStatusCommand performs a one-way status change from active.
type GroupOrderStatusCommand struct {
	GroupID string
	Status  GroupOrderStatus
	ActorID string
}

// CreateDistributionCommand assigns fulfillment for an order.
type CreateDistributionCommand struct {
	OrderID       string
	AssignedTo    string
	Location      domain.DistributionLocation
	ScheduledDate time.Time
	Carrier       string
	Notes         string
	ActorID       string
}

// DistributionListFilter narrows distribution listings.
type DistributionListFilter = repositories.DistributionListFilter

// DistributionStatusCommand moves a distribution along its status machine.
type DistributionStatusCommand struct {
	DistributionID string
	Status         DistributionStatus
	Note           string
	ActorID        string
}

// DistributionItemStatusCommand updates a single fulfillment line.
type DistributionItemStatusCommand struct {
	DistributionID string
	ItemID         string
	Status         domain.DistributionItemStatus
	Notes          string
	ActorID        string
}

// DeliveryProofCommand records hand-over evidence and completes the distribution.
type DeliveryProofCommand struct {
	DistributionID string
	Signature      string
	ImageURL       string
	ReceiverName   string
	ReceiverPhone  string
	ActorID        string
}

// CancelDistributionCommand cancels a distribution before it leaves for delivery.
type CancelDistributionCommand struct {
	DistributionID string
	Reason         string
	ActorID        string
}

// DeliveryProofUploadCommand requests a signed upload URL for a proof image.
type DeliveryProofUploadCommand struct {
	DistributionID string
	FileName       string
	ContentType    string
	Size           int64
	ActorID        string
}

// SignedUpload describes a signed upload target.
type SignedUpload struct {
	URL       string
	Method    string
	Headers   map[string]string
	ObjectURL string
	ExpiresAt time.Time
}

// SubmitReviewCommand creates a review for a delivered order line.
type SubmitReviewCommand struct {
	UserID     string
	ProductID  string
	OrderID    string
	Rating     int
	Title      string
	Comment    string
	Pros       []string
	Cons       []string
	Images     []string
	Visibility domain.ReviewVisibility
}

// UpdateReviewCommand edits the author's own review.
type UpdateReviewCommand struct {
	ReviewID   string
	ActorID    string
	Rating     *int
	Title      *string
	Comment    *string
	Pros       []string
	Cons       []string
	Images     []string
	Visibility *domain.ReviewVisibility
}

// DeleteReviewCommand soft deletes a review. Staff may delete any review.
type DeleteReviewCommand struct {
	ReviewID string
	ActorID  string
	IsStaff  bool
}

// ModerateReviewCommand sets the moderation status and optional admin reply.
type ModerateReviewCommand struct {
	ReviewID string
	Status   domain.ReviewStatus
	Response string
	ActorID  string
}

// ReviewHelpfulCommand toggles a helpful vote.
type ReviewHelpfulCommand struct {
	ReviewID string
	VoterID  string
}

// CreatePaymentOrderCommand asks the gateway for a payment order covering the order total.
type CreatePaymentOrderCommand struct {
	OrderID        string
	ActorID        string
	Amount         int64
	IdempotencyKey string
}

// PaymentOrder is the gateway order handed back to the client.
type PaymentOrder struct {
	OrderID        string
	GatewayOrderID string
	Amount         int64
	Currency       string
	ClientSecret   string
	Signature      string
}

// VerifyPaymentCommand carries the client-side gateway proof.
type VerifyPaymentCommand struct {
	OrderID          string
	ActorID          string
	GatewayOrderID   string
	GatewayPaymentID string
	Signature        string
}

// GatewayEvent is a normalised webhook delivery.
type GatewayEvent struct {
	ID               string
	Type             string
	GatewayOrderID   string
	GatewayPaymentID string
	Amount           int64
	Reason           string
	OccurredAt       time.Time
}

// RefundCommand refunds a completed payment.
type RefundCommand struct {
	OrderID        string
	Amount         int64
	Reason         string
	ActorID        string
	IdempotencyKey string
}

// PaymentStatistics summarises collected revenue and payment states.
type PaymentStatistics struct {
	CompletedRevenue int64
	RefundedAmount   int64
	ByStatus         []StatusBucket
	GeneratedAt      time.Time
}

// MaintenanceResult reports how many records a sweep touched.
type MaintenanceResult struct {
	Task      string
	Processed int
	RanAt     time.Time
}
