package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/campus-merch/api/internal/domain"
	pfirestore "github.com/campus-merch/api/internal/platform/firestore"
	"github.com/campus-merch/api/internal/repositories"
)

const ordersCollection = "orders"

var orderStatuses = []domain.OrderStatus{
	domain.OrderStatusPending,
	domain.OrderStatusConfirmed,
	domain.OrderStatusProcessing,
	domain.OrderStatusShipped,
	domain.OrderStatusDelivered,
	domain.OrderStatusCancelled,
	domain.OrderStatusRefunded,
}

var paymentStatuses = []domain.PaymentStatus{
	domain.PaymentStatusPending,
	domain.PaymentStatusCompleted,
	domain.PaymentStatusFailed,
	domain.PaymentStatusRefunded,
}

// OrderRepository persists orders in Firestore.
type OrderRepository struct {
	base *pfirestore.Collection[orderDocument]
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository: firestore provider is required")
	}
	return &OrderRepository{base: pfirestore.NewCollection[orderDocument](provider, ordersCollection)}, nil
}

// Insert stores a new order. The ID must be unique.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(order.ID)
	if id == "" {
		return errors.New("order repository: order id is required")
	}
	return r.base.Create(ctx, id, encodeOrderDocument(order))
}

// Update replaces the persisted order.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(order.ID)
	if id == "" {
		return errors.New("order repository: order id is required")
	}
	return r.base.Replace(ctx, id, encodeOrderDocument(order))
}

// FindByID fetches a single order.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}
	doc, err := r.base.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// FindByIDs fetches several orders; unknown IDs are skipped.
func (r *OrderRepository) FindByIDs(ctx context.Context, orderIDs []string) ([]domain.Order, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("order repository not initialised")
	}
	ids := stringsOf(orderIDs)
	docs, err := r.base.GetAll(ctx, ids)
	if err != nil {
		return nil, err
	}
	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, doc.Data.toDomain(doc.ID))
	}
	return orders, nil
}

// FindByGatewayOrderID resolves the order a gateway payment order was created for.
func (r *OrderRepository) FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	gatewayOrderID = strings.TrimSpace(gatewayOrderID)
	if gatewayOrderID == "" {
		return domain.Order{}, errors.New("order repository: gateway order id is required")
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("payment.gatewayOrderId", "==", gatewayOrderID).Limit(1)
	})
	if err != nil {
		return domain.Order{}, err
	}
	if len(docs) == 0 {
		return domain.Order{}, errNotFound("orders.find_by_gateway_order", "no order for gateway order %s", gatewayOrderID)
	}
	return docs[0].Data.toDomain(docs[0].ID), nil
}

// List returns orders newest first.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
	}
	limit, fetch := pageLimits(filter.Pagination.PageSize)
	startAfter, err := decodeCreatedCursor(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, fmt.Errorf("order repository: %w", err)
	}
	userID := strings.TrimSpace(filter.UserID)
	groupID := strings.TrimSpace(filter.GroupOrderID)
	statuses := stringsOf(filter.Statuses)

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if userID != "" {
			q = q.Where("userId", "==", userID)
		}
		if groupID != "" {
			q = q.Where("groupOrderId", "==", groupID)
		}
		q = whereIn(q, "status", statuses)
		return newestFirst(q, startAfter, fetch)
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	next := ""
	if limit > 0 && len(docs) == fetch {
		last := docs[limit-1]
		next = encodeCreatedCursor(last.Data.CreatedAt, last.ID)
		docs = docs[:limit]
	}
	items := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		items = append(items, doc.Data.toDomain(doc.ID))
	}
	return domain.CursorPage[domain.Order]{Items: items, NextPageToken: next}, nil
}

// CountByStatus returns order count and summed totals per lifecycle status.
func (r *OrderRepository) CountByStatus(ctx context.Context) ([]domain.StatusBucket, error) {
	return countBuckets(ctx, r.base, "status", "pricing.total", stringsOf(orderStatuses))
}

// CountByPaymentStatus returns order count and summed totals per payment status.
func (r *OrderRepository) CountByPaymentStatus(ctx context.Context) ([]domain.StatusBucket, error) {
	return countBuckets(ctx, r.base, "payment.status", "pricing.total", stringsOf(paymentStatuses))
}

// countBuckets runs one server-side aggregation per status value.
func countBuckets[T any](ctx context.Context, base *pfirestore.Collection[T], field, sumField string, values []string) ([]domain.StatusBucket, error) {
	if base == nil {
		return nil, errors.New("repository not initialised")
	}
	buckets := make([]domain.StatusBucket, 0, len(values))
	for _, value := range values {
		value := value
		agg, err := base.Aggregate(ctx, func(q firestore.Query) firestore.Query {
			return q.Where(field, "==", value)
		}, sumField)
		if err != nil {
			return nil, err
		}
		buckets = append(buckets, domain.StatusBucket{Status: value, Count: int(agg.Count), Amount: agg.Sum})
	}
	return buckets, nil
}

type orderDocument struct {
	OrderNumber     string                    `firestore:"orderNumber"`
	UserID          string                    `firestore:"userId"`
	Items           []orderItemDocument       `firestore:"items"`
	OrderType       string                    `firestore:"orderType"`
	GroupOrderID    string                    `firestore:"groupOrderId,omitempty"`
	ShippingAddress addressDocument           `firestore:"shippingAddress"`
	BillingAddress  addressDocument           `firestore:"billingAddress"`
	Pricing         pricingDocument           `firestore:"pricing"`
	Status          string                    `firestore:"status"`
	Payment         orderPaymentDocument      `firestore:"payment"`
	Distribution    orderDistributionDocument `firestore:"distribution"`
	Timeline        []timelineDocument        `firestore:"timeline"`
	Notes           string                    `firestore:"notes,omitempty"`
	IsActive        bool                      `firestore:"isActive"`
	CreatedAt       time.Time                 `firestore:"createdAt"`
	UpdatedAt       time.Time                 `firestore:"updatedAt"`
}

type orderItemDocument struct {
	ProductID string                `firestore:"productId"`
	Name      string                `firestore:"name"`
	Quantity  int                   `firestore:"quantity"`
	UnitPrice int64                 `firestore:"unitPrice"`
	Variant   *orderVariantDocument `firestore:"variant,omitempty"`
	LineTotal int64                 `firestore:"lineTotal"`
}

type orderVariantDocument struct {
	Type          string `firestore:"type"`
	Value         string `firestore:"value"`
	PriceModifier int64  `firestore:"priceModifier"`
}

type addressDocument struct {
	Name       string `firestore:"name,omitempty"`
	Phone      string `firestore:"phone,omitempty"`
	Line1      string `firestore:"line1,omitempty"`
	Line2      string `firestore:"line2,omitempty"`
	City       string `firestore:"city,omitempty"`
	State      string `firestore:"state,omitempty"`
	PostalCode string `firestore:"postalCode,omitempty"`
	Country    string `firestore:"country,omitempty"`
}

type pricingDocument struct {
	Subtotal int64 `firestore:"subtotal"`
	Discount int64 `firestore:"discount"`
	Tax      int64 `firestore:"tax"`
	Shipping int64 `firestore:"shipping"`
	Total    int64 `firestore:"total"`
}

type orderPaymentDocument struct {
	Method           string     `firestore:"method"`
	Status           string     `firestore:"status"`
	GatewayOrderID   string     `firestore:"gatewayOrderId,omitempty"`
	GatewayPaymentID string     `firestore:"gatewayPaymentId,omitempty"`
	GatewaySignature string     `firestore:"gatewaySignature,omitempty"`
	PaidAt           *time.Time `firestore:"paidAt,omitempty"`
	RefundedAt       *time.Time `firestore:"refundedAt,omitempty"`
	RefundAmount     int64      `firestore:"refundAmount,omitempty"`
	RefundReason     string     `firestore:"refundReason,omitempty"`
}

type orderDistributionDocument struct {
	AssignedTo    string     `firestore:"assignedTo,omitempty"`
	Location      string     `firestore:"location,omitempty"`
	ScheduledDate *time.Time `firestore:"scheduledDate,omitempty"`
	Status        string     `firestore:"status"`
	DeliveredAt   *time.Time `firestore:"deliveredAt,omitempty"`
}

func encodeOrderDocument(o domain.Order) orderDocument {
	doc := orderDocument{
		OrderNumber:     o.OrderNumber,
		UserID:          o.UserID,
		OrderType:       string(o.OrderType),
		GroupOrderID:    o.GroupOrderID,
		ShippingAddress: encodeAddress(o.ShippingAddress),
		BillingAddress:  encodeAddress(o.BillingAddress),
		Pricing:         encodePricing(o.Pricing),
		Status:          string(o.Status),
		Payment: orderPaymentDocument{
			Method:           string(o.Payment.Method),
			Status:           string(o.Payment.Status),
			GatewayOrderID:   o.Payment.GatewayOrderID,
			GatewayPaymentID: o.Payment.GatewayPaymentID,
			GatewaySignature: o.Payment.GatewaySignature,
			PaidAt:           timePtr(o.Payment.PaidAt),
			RefundedAt:       timePtr(o.Payment.RefundedAt),
			RefundAmount:     o.Payment.RefundAmount,
			RefundReason:     o.Payment.RefundReason,
		},
		Distribution: orderDistributionDocument{
			AssignedTo:    o.Distribution.AssignedTo,
			Location:      o.Distribution.Location,
			ScheduledDate: timePtr(o.Distribution.ScheduledDate),
			Status:        string(o.Distribution.Status),
			DeliveredAt:   timePtr(o.Distribution.DeliveredAt),
		},
		Timeline:  encodeTimeline(o.Timeline),
		Notes:     o.Notes,
		IsActive:  o.IsActive,
		CreatedAt: o.CreatedAt.UTC(),
		UpdatedAt: o.UpdatedAt.UTC(),
	}
	for _, item := range o.Items {
		itemDoc := orderItemDocument{
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			LineTotal: item.LineTotal,
		}
		if item.Variant != nil {
			itemDoc.Variant = &orderVariantDocument{
				Type:          string(item.Variant.Type),
				Value:         item.Variant.Value,
				PriceModifier: item.Variant.PriceModifier,
			}
		}
		doc.Items = append(doc.Items, itemDoc)
	}
	return doc
}

func (d orderDocument) toDomain(id string) domain.Order {
	o := domain.Order{
		ID:              id,
		OrderNumber:     d.OrderNumber,
		UserID:          d.UserID,
		OrderType:       domain.OrderType(d.OrderType),
		GroupOrderID:    d.GroupOrderID,
		ShippingAddress: d.ShippingAddress.toDomain(),
		BillingAddress:  d.BillingAddress.toDomain(),
		Pricing:         d.Pricing.toDomain(),
		Status:          domain.OrderStatus(d.Status),
		Payment: domain.OrderPayment{
			Method:           domain.PaymentMethod(d.Payment.Method),
			Status:           domain.PaymentStatus(d.Payment.Status),
			GatewayOrderID:   d.Payment.GatewayOrderID,
			GatewayPaymentID: d.Payment.GatewayPaymentID,
			GatewaySignature: d.Payment.GatewaySignature,
			PaidAt:           timePtr(d.Payment.PaidAt),
			RefundedAt:       timePtr(d.Payment.RefundedAt),
			RefundAmount:     d.Payment.RefundAmount,
			RefundReason:     d.Payment.RefundReason,
		},
		Distribution: domain.OrderDistribution{
			AssignedTo:    d.Distribution.AssignedTo,
			Location:      d.Distribution.Location,
			ScheduledDate: timePtr(d.Distribution.ScheduledDate),
			Status:        domain.OrderDistributionStatus(d.Distribution.Status),
			DeliveredAt:   timePtr(d.Distribution.DeliveredAt),
		},
		Timeline:  decodeTimeline(d.Timeline),
		Notes:     d.Notes,
		IsActive:  d.IsActive,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
	for _, item := range d.Items {
		line := domain.OrderItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			LineTotal: item.LineTotal,
		}
		if item.Variant != nil {
			line.Variant = &domain.OrderVariant{
				Type:          domain.VariantType(item.Variant.Type),
				Value:         item.Variant.Value,
				PriceModifier: item.Variant.PriceModifier,
			}
		}
		o.Items = append(o.Items, line)
	}
	return o
}

func encodeAddress(a domain.Address) addressDocument {
	return addressDocument{
		Name:       a.Name,
		Phone:      a.Phone,
		Line1:      a.Line1,
		Line2:      a.Line2,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Country:    a.Country,
	}
}

func (d addressDocument) toDomain() domain.Address {
	return domain.Address{
		Name:       d.Name,
		Phone:      d.Phone,
		Line1:      d.Line1,
		Line2:      d.Line2,
		City:       d.City,
		State:      d.State,
		PostalCode: d.PostalCode,
		Country:    d.Country,
	}
}

func encodePricing(p domain.Pricing) pricingDocument {
	return pricingDocument{Subtotal: p.Subtotal, Discount: p.Discount, Tax: p.Tax, Shipping: p.Shipping, Total: p.Total}
}

func (d pricingDocument) toDomain() domain.Pricing {
	return domain.Pricing{Subtotal: d.Subtotal, Discount: d.Discount, Tax: d.Tax, Shipping: d.Shipping, Total: d.Total}
}

func encodeTimeline(entries []domain.TimelineEntry) []timelineDocument {
	out := make([]timelineDocument, 0, len(entries))
	for _, e := range entries {
		out = append(out, timelineDocument{Status: e.Status, Timestamp: e.Timestamp.UTC(), Note: e.Note, Actor: e.Actor})
	}
	return out
}

func decodeTimeline(entries []timelineDocument) []domain.TimelineEntry {
	if len(entries) == 0 {
		return nil
	}
	out := make([]domain.TimelineEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, domain.TimelineEntry{Status: e.Status, Timestamp: e.Timestamp, Note: e.Note, Actor: e.Actor})
	}
	return out
}
