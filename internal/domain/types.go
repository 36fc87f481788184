package domain

import (
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// DefaultCurrency is the ISO currency every monetary amount is expressed in.
const DefaultCurrency = "INR"

// ProductCategory enumerates the closed set of catalog categories.
type ProductCategory string

const (
	ProductCategoryApparel     ProductCategory = "apparel"
	ProductCategoryAccessories ProductCategory = "accessories"
	ProductCategoryStationery  ProductCategory = "stationery"
	ProductCategoryElectronics ProductCategory = "electronics"
	ProductCategorySports      ProductCategory = "sports"
	ProductCategoryBooks       ProductCategory = "books"
	ProductCategoryGifts       ProductCategory = "gifts"
	ProductCategoryOther       ProductCategory = "other"
)

// ProductCategories lists every accepted category in display order.
var ProductCategories = []ProductCategory{
	ProductCategoryApparel,
	ProductCategoryAccessories,
	ProductCategoryStationery,
	ProductCategoryElectronics,
	ProductCategorySports,
	ProductCategoryBooks,
	ProductCategoryGifts,
	ProductCategoryOther,
}

// VariantType enumerates the dimensions a product variant may vary on.
type VariantType string

const (
	VariantTypeSize     VariantType = "size"
	VariantTypeColor    VariantType = "color"
	VariantTypeMaterial VariantType = "material"
	VariantTypeOther    VariantType = "other"
)

// Product is a catalog item. Amounts are stored in the smallest currency unit.
type Product struct {
	ID               string
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
	Rating           ProductRating
	Sales            ProductSales
	IsActive         bool
	CreatedBy        string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ProductVariant groups the selectable options for one variant dimension.
type ProductVariant struct {
	Type    VariantType
	Options []VariantOption
}

// VariantOption is a single selectable value with its own price modifier and stock.
type VariantOption struct {
	Value         string
	PriceModifier int64
	Stock         int
}

// ProductRating holds the aggregate of approved, active reviews.
type ProductRating struct {
	Average float64
	Count   int
}

// ProductSales tracks lifetime sales counters.
type ProductSales struct {
	TotalSold int
	Revenue   int64
}

// OrderStatus enumerates valid lifecycle states for orders.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusRefunded   OrderStatus = "refunded"
)

// OrderType distinguishes individual checkouts from group order contributions.
type OrderType string

const (
	OrderTypeIndividual OrderType = "individual"
	OrderTypeGroup      OrderType = "group"
)

// PaymentMethod enumerates the accepted payment instruments.
type PaymentMethod string

const (
	PaymentMethodRazorpay PaymentMethod = "razorpay"
	PaymentMethodPaytm    PaymentMethod = "paytm"
	PaymentMethodUPI      PaymentMethod = "upi"
	PaymentMethodCOD      PaymentMethod = "cod"
	// PaymentMethodMixed is only valid on group orders whose members paid differently.
	PaymentMethodMixed PaymentMethod = "mixed"
)

// PaymentStatus enumerates payment states for orders.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
	// PaymentStatusPartial applies to group orders only.
	PaymentStatusPartial PaymentStatus = "partial"
)

// OrderDistributionStatus is the coarse fulfillment state mirrored onto an order.
type OrderDistributionStatus string

const (
	OrderDistributionPending   OrderDistributionStatus = "pending"
	OrderDistributionAssigned  OrderDistributionStatus = "assigned"
	OrderDistributionReady     OrderDistributionStatus = "ready"
	OrderDistributionPickedUp  OrderDistributionStatus = "picked_up"
	OrderDistributionDelivered OrderDistributionStatus = "delivered"
)

// Order is one checkout transaction by one user.
type Order struct {
	ID              string
	OrderNumber     string
	UserID          string
	Items           []OrderItem
	OrderType       OrderType
	GroupOrderID    string
	ShippingAddress Address
	BillingAddress  Address
	Pricing         Pricing
	Status          OrderStatus
	Payment         OrderPayment
	Distribution    OrderDistribution
	Timeline        []TimelineEntry
	Notes           string
	IsActive        bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// OrderItem snapshots the purchased product at checkout time.
type OrderItem struct {
	ProductID string
	Name      string
	Quantity  int
	UnitPrice int64
	Variant   *OrderVariant
	LineTotal int64
}

// OrderVariant snapshots the chosen variant option.
type OrderVariant struct {
	Type          VariantType
	Value         string
	PriceModifier int64
}

// Address captures a postal address snapshot.
type Address struct {
	Name       string
	Phone      string
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
	Country    string
}

// OrderPayment records the payment sub-document of an order.
type OrderPayment struct {
	Method           PaymentMethod
	Status           PaymentStatus
	GatewayOrderID   string
	GatewayPaymentID string
	GatewaySignature string
	PaidAt           *time.Time
	RefundedAt       *time.Time
	RefundAmount     int64
	RefundReason     string
}

// OrderDistribution mirrors the fulfillment assignment onto the order.
type OrderDistribution struct {
	AssignedTo    string
	Location      string
	ScheduledDate *time.Time
	Status        OrderDistributionStatus
	DeliveredAt   *time.Time
}

// TimelineEntry is one append-only audit record of a status change.
type TimelineEntry struct {
	Status    string
	Timestamp time.Time
	Note      string
	Actor     string
}

// GroupOrderStatus enumerates the lifecycle of a group order.
type GroupOrderStatus string

const (
	GroupOrderStatusActive    GroupOrderStatus = "active"
	GroupOrderStatusClosed    GroupOrderStatus = "closed"
	GroupOrderStatusCompleted GroupOrderStatus = "completed"
	GroupOrderStatusCancelled GroupOrderStatus = "cancelled"
)

// GroupMemberRole enumerates member roles within a group order.
type GroupMemberRole string

const (
	GroupMemberRoleMember GroupMemberRole = "member"
	GroupMemberRoleAdmin  GroupMemberRole = "admin"
)

// GroupOrder is a department-scoped pooled purchase.
type GroupOrder struct {
	ID          string
	Name        string
	Description string
	Department  string
	OrganizerID string
	Members     []GroupMember
	OrderIDs    []string
	Status      GroupOrderStatus
	Settings    GroupOrderSettings
	Pricing     Pricing
	Payment     GroupOrderPayment
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// GroupMember is one participant of a group order.
type GroupMember struct {
	UserID   string
	Role     GroupMemberRole
	JoinedAt time.Time
}

// GroupOrderSettings holds organizer-configured rules.
type GroupOrderSettings struct {
	AllowMemberOrders    bool
	RequireApproval      bool
	MaxOrderValue        int64
	Deadline             time.Time
	DistributionDate     *time.Time
	DistributionLocation string
}

// GroupOrderPayment tracks pooled collection progress.
type GroupOrderPayment struct {
	Status          PaymentStatus
	CollectedAmount int64
	PendingAmount   int64
	Method          PaymentMethod
}

// DistributionStatus enumerates the fulfillment state machine.
type DistributionStatus string

const (
	DistributionStatusPending   DistributionStatus = "pending"
	DistributionStatusAssigned  DistributionStatus = "assigned"
	DistributionStatusReady     DistributionStatus = "ready"
	DistributionStatusInTransit DistributionStatus = "in_transit"
	DistributionStatusDelivered DistributionStatus = "delivered"
	DistributionStatusCancelled DistributionStatus = "cancelled"
)

// DistributionItemStatus enumerates item-level fulfillment states.
type DistributionItemStatus string

const (
	DistributionItemPending   DistributionItemStatus = "pending"
	DistributionItemPacked    DistributionItemStatus = "packed"
	DistributionItemShipped   DistributionItemStatus = "shipped"
	DistributionItemDelivered DistributionItemStatus = "delivered"
)

// Distribution is the fulfillment record for a single order.
type Distribution struct {
	ID            string
	OrderID       string
	GroupOrderID  string
	AssignedTo    string
	Location      DistributionLocation
	ScheduledDate time.Time
	ActualDate    *time.Time
	Status        DistributionStatus
	Tracking      DistributionTracking
	Items         []DistributionItem
	DeliveryProof *DeliveryProof
	Timeline      []TimelineEntry
	Notes         string
	CancelReason  string
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// DistributionLocation describes the drop-off point.
type DistributionLocation struct {
	Name    string
	Address string
	Contact string
}

// DistributionTracking carries carrier-facing tracking data.
type DistributionTracking struct {
	Number            string
	Carrier           string
	EstimatedDelivery *time.Time
	ActualDelivery    *time.Time
}

// DistributionItem is a per-line fulfillment entry.
type DistributionItem struct {
	ID        string
	ProductID string
	Quantity  int
	Status    DistributionItemStatus
	Notes     string
}

// DeliveryProof records evidence of a completed hand-over.
type DeliveryProof struct {
	Signature     string
	ImageURL      string
	DeliveredBy   string
	ReceiverName  string
	ReceiverPhone string
	RecordedAt    time.Time
}

// ReviewStatus enumerates moderation states.
type ReviewStatus string

const (
	ReviewStatusPending  ReviewStatus = "pending"
	ReviewStatusApproved ReviewStatus = "approved"
	ReviewStatusRejected ReviewStatus = "rejected"
)

// ReviewVisibility enumerates who can read a review.
type ReviewVisibility string

const (
	ReviewVisibilityPublic  ReviewVisibility = "public"
	ReviewVisibilityPrivate ReviewVisibility = "private"
)

// Review is one user's rating of a purchased product.
type Review struct {
	ID            string
	UserID        string
	ProductID     string
	OrderID       string
	Rating        int
	Title         string
	Comment       string
	Pros          []string
	Cons          []string
	Images        []string
	Visibility    ReviewVisibility
	Status        ReviewStatus
	Helpful       ReviewHelpful
	Verified      bool
	AdminResponse *ReviewAdminResponse
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ReviewHelpful keeps the voter set and its cardinality in sync.
type ReviewHelpful struct {
	Count int
	Users []string
}

// ReviewAdminResponse is a moderator reply attached to a review.
type ReviewAdminResponse struct {
	Message     string
	RespondedBy string
	RespondedAt time.Time
}

// ReviewSummary aggregates approved ratings for a product.
type ReviewSummary struct {
	ProductID    string
	Average      float64
	Count        int
	Distribution map[int]int
}

// StatusBucket is one grouped row of a statistics aggregation.
type StatusBucket struct {
	Status string
	Count  int
	Amount int64
}
