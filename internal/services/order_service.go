package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/campus-merch/api/internal/domain"
	"github.com/campus-merch/api/internal/repositories"
)

const (
	orderEventCreated       = "order.created"
	orderEventStatusChanged = "order.status.changed"
	orderEventCancelled     = "order.cancelled"

	orderIDPrefix = "ord_"

	maxOrderPageSize  = 100
	maxOrderLineItems = 50

	metricOrdersCreated = "orders.created"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderIllegalTransition indicates the requested status is not a legal successor.
	ErrOrderIllegalTransition = errors.New("order: illegal status transition")
	// ErrOrderOutOfStock indicates a product cannot cover the requested quantity.
	ErrOrderOutOfStock = errors.New("order: out of stock")
	// ErrOrderForbidden indicates the actor may not act on the order.
	ErrOrderForbidden = errors.New("order: forbidden")
	// ErrOrderConflict indicates a duplicate order id.
	ErrOrderConflict = errors.New("order: conflict")
)

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders       repositories.OrderRepository
	Products     repositories.ProductRepository
	Groups       GroupOrderCoordinator
	Refunds      OrderRefunder
	UnitOfWork   repositories.UnitOfWork
	Pricing      domain.PricingPolicy
	Clock        func() time.Time
	IDGenerator  func() string
	NumberSuffix domain.SuffixFunc
	Events       EventPublisher
	Metrics      Metrics
	Logger       Logger
}

type orderService struct {
	orders     repositories.OrderRepository
	products   repositories.ProductRepository
	groups     GroupOrderCoordinator
	refunds    OrderRefunder
	unitOfWork repositories.UnitOfWork
	pricing    domain.PricingPolicy
	clock      func() time.Time
	newID      func() string
	suffix     domain.SuffixFunc
	sink       eventSink
	metrics    Metrics
	logger     Logger
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("order service: product repository is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}
	policy := deps.Pricing
	if policy == (domain.PricingPolicy{}) {
		policy = domain.DefaultPricingPolicy()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	suffix := deps.NumberSuffix
	if suffix == nil {
		suffix = domain.RandomBase36
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}

	return &orderService{
		orders:     deps.Orders,
		products:   deps.Products,
		groups:     deps.Groups,
		refunds:    deps.Refunds,
		unitOfWork: unit,
		pricing:    policy,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:   idGen,
		suffix:  suffix,
		sink:    eventSink{events: deps.Events, logger: logger, prefix: "order"},
		metrics: metrics,
		logger:  logger,
	}, nil
}

func (s *orderService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return Order{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	if len(cmd.Items) == 0 {
		return Order{}, fmt.Errorf("%w: at least one item is required", ErrOrderInvalidInput)
	}
	if len(cmd.Items) > maxOrderLineItems {
		return Order{}, fmt.Errorf("%w: at most %d items are allowed", ErrOrderInvalidInput, maxOrderLineItems)
	}
	if !cmd.PaymentMethod.IsCheckoutMethod() {
		return Order{}, fmt.Errorf("%w: unsupported payment method %q", ErrOrderInvalidInput, cmd.PaymentMethod)
	}
	shipping, err := normalizeAddress(cmd.ShippingAddress)
	if err != nil {
		return Order{}, fmt.Errorf("%w: shipping address: %v", ErrOrderInvalidInput, err)
	}
	billing := shipping
	if cmd.BillingAddress != nil {
		if billing, err = normalizeAddress(*cmd.BillingAddress); err != nil {
			return Order{}, fmt.Errorf("%w: billing address: %v", ErrOrderInvalidInput, err)
		}
	}
	groupID := strings.TrimSpace(cmd.GroupOrderID)
	if groupID != "" && s.groups == nil {
		return Order{}, fmt.Errorf("%w: group orders are not available", ErrOrderInvalidInput)
	}

	// every line is checked before anything is written so a bad line rejects the whole cart.
	items, stockLines, err := s.resolveItems(ctx, cmd.Items)
	if err != nil {
		return Order{}, err
	}
	pricingLines := make([]domain.PricingLine, 0, len(items))
	for _, item := range items {
		line := domain.PricingLine{UnitPrice: item.UnitPrice, Quantity: item.Quantity}
		if item.Variant != nil {
			line.VariantModifier = item.Variant.PriceModifier
		}
		pricingLines = append(pricingLines, line)
	}
	pricing, err := s.pricing.CalculatePricing(pricingLines, domain.PricingOptions{
		Discount:      cmd.Discount,
		WaiveShipping: groupID != "",
	})
	if err != nil {
		return Order{}, fmt.Errorf("%w: %v", ErrOrderInvalidInput, err)
	}

	if groupID != "" {
		if _, err := s.groups.CheckJoin(ctx, groupID, userID, pricing.Total); err != nil {
			return Order{}, err
		}
	}

	if err := s.products.DecrementStock(ctx, stockLines); err != nil {
		return Order{}, s.mapInventoryError(err)
	}

	now := s.clock()
	order := Order{
		ID:              s.nextOrderID(),
		OrderNumber:     domain.OrderNumber(now, s.suffix),
		UserID:          userID,
		Items:           items,
		OrderType:       domain.OrderTypeIndividual,
		GroupOrderID:    groupID,
		ShippingAddress: shipping,
		BillingAddress:  billing,
		Pricing:         pricing,
		Payment: domain.OrderPayment{
			Method: cmd.PaymentMethod,
			Status: domain.PaymentStatusPending,
		},
		Distribution: domain.OrderDistribution{Status: domain.OrderDistributionPending},
		Notes:        strings.TrimSpace(cmd.Notes),
		IsActive:     true,
		CreatedAt:    now,
	}
	if groupID != "" {
		order.OrderType = domain.OrderTypeGroup
	}
	order.ApplyStatus(domain.OrderStatusPending, now, "Order placed", userID)

	if err := s.runInTx(ctx, func(txCtx context.Context) error {
		return s.orders.Insert(txCtx, order)
	}); err != nil {
		s.restoreStock(ctx, order.ID, stockLines)
		return Order{}, s.mapRepositoryError(err)
	}

	if groupID != "" {
		if _, err := s.groups.JoinOrder(ctx, groupID, order); err != nil {
			s.abandonOrder(ctx, order, stockLines, "group join failed")
			return Order{}, err
		}
	}

	s.metrics.Incr(ctx, metricOrdersCreated, map[string]string{"type": string(order.OrderType)})
	s.sink.publish(ctx, DomainEvent{
		Type:          orderEventCreated,
		AggregateType: "order",
		AggregateID:   order.ID,
		CurrentStatus: string(order.Status),
		ActorID:       userID,
		OccurredAt:    now,
		Metadata: map[string]any{
			"orderNumber":  order.OrderNumber,
			"total":        order.Pricing.Total,
			"groupOrderId": groupID,
		},
	})
	return order, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID string, opts OrderReadOptions) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	if !opts.IsStaff && order.UserID != strings.TrimSpace(opts.ActorID) {
		return Order{}, ErrOrderForbidden
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error) {
	for _, status := range filter.Statuses {
		if !status.IsValid() {
			return domain.CursorPage[Order]{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, status)
		}
	}
	if filter.Pagination.PageSize > maxOrderPageSize {
		filter.Pagination.PageSize = maxOrderPageSize
	}
	filter.UserID = strings.TrimSpace(filter.UserID)
	page, err := s.orders.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Order]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *orderService) AdvanceStatus(ctx context.Context, cmd OrderStatusCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if !cmd.Status.IsValid() {
		return Order{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, cmd.Status)
	}
	switch cmd.Status {
	case domain.OrderStatusCancelled:
		return s.CancelOrder(ctx, CancelOrderCommand{OrderID: orderID, Reason: cmd.Note, ActorID: cmd.ActorID, IsStaff: true})
	case domain.OrderStatusRefunded:
		return s.refund(ctx, orderID, cmd)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	if !order.CanTransitionTo(cmd.Status) {
		return Order{}, fmt.Errorf("%w: %s -> %s", ErrOrderIllegalTransition, order.Status, cmd.Status)
	}

	previous := order.Status
	now := s.clock()
	order.ApplyStatus(cmd.Status, now, strings.TrimSpace(cmd.Note), strings.TrimSpace(cmd.ActorID))
	if cmd.Status == domain.OrderStatusDelivered {
		stamp := now
		order.Distribution.Status = domain.OrderDistributionDelivered
		order.Distribution.DeliveredAt = &stamp
	}
	if err := s.runInTx(ctx, func(txCtx context.Context) error {
		return s.orders.Update(txCtx, order)
	}); err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	s.sink.publish(ctx, DomainEvent{
		Type:           orderEventStatusChanged,
		AggregateType:  "order",
		AggregateID:    order.ID,
		PreviousStatus: string(previous),
		CurrentStatus:  string(order.Status),
		ActorID:        strings.TrimSpace(cmd.ActorID),
		OccurredAt:     now,
		Metadata:       map[string]any{"orderNumber": order.OrderNumber},
	})
	return order, nil
}

// refund hands a staff move to refunded over to the payment flow so money is returned before
// the status changes.
func (s *orderService) refund(ctx context.Context, orderID string, cmd OrderStatusCommand) (Order, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	if !order.CanRefund() {
		return Order{}, fmt.Errorf("%w: %s orders with %s payment cannot be refunded", ErrOrderIllegalTransition, order.Status, order.Payment.Status)
	}
	if s.refunds == nil {
		return Order{}, fmt.Errorf("%w: refunds are not configured", ErrOrderIllegalTransition)
	}
	return s.refunds.Refund(ctx, RefundCommand{
		OrderID: orderID,
		Reason:  strings.TrimSpace(cmd.Note),
		ActorID: strings.TrimSpace(cmd.ActorID),
	})
}

func (s *orderService) CancelOrder(ctx context.Context, cmd CancelOrderCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	actorID := strings.TrimSpace(cmd.ActorID)

	var (
		order    Order
		previous domain.OrderStatus
		now      = s.clock()
	)
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		current, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		if !cmd.IsStaff && current.UserID != actorID {
			return ErrOrderForbidden
		}
		if !current.CanCancel() {
			return fmt.Errorf("%w: %s orders cannot be cancelled", ErrOrderIllegalTransition, current.Status)
		}
		previous = current.Status
		note := strings.TrimSpace(cmd.Reason)
		if note == "" {
			note = "Order cancelled"
		}
		current.ApplyStatus(domain.OrderStatusCancelled, now, note, actorID)
		if err := s.orders.Update(txCtx, current); err != nil {
			return s.mapRepositoryError(err)
		}
		order = current
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.restoreStock(ctx, order.ID, stockLinesFor(order))
	if order.GroupOrderID != "" && s.groups != nil {
		if _, err := s.groups.DetachOrder(ctx, order.GroupOrderID, order); err != nil {
			s.logger(ctx, "order.group.detach.failed", map[string]any{
				"orderId":      order.ID,
				"groupOrderId": order.GroupOrderID,
				"error":        err.Error(),
			})
		}
	}

	s.sink.publish(ctx, DomainEvent{
		Type:           orderEventCancelled,
		AggregateType:  "order",
		AggregateID:    order.ID,
		PreviousStatus: string(previous),
		CurrentStatus:  string(order.Status),
		ActorID:        actorID,
		OccurredAt:     now,
		Metadata:       map[string]any{"orderNumber": order.OrderNumber, "reason": strings.TrimSpace(cmd.Reason)},
	})
	return order, nil
}

func (s *orderService) Statistics(ctx context.Context) (OrderStatistics, error) {
	buckets, err := s.orders.CountByStatus(ctx)
	if err != nil {
		return OrderStatistics{}, s.mapRepositoryError(err)
	}
	stats := OrderStatistics{ByStatus: buckets, GeneratedAt: s.clock()}
	for _, bucket := range buckets {
		stats.TotalOrders += bucket.Count
		switch domain.OrderStatus(bucket.Status) {
		case domain.OrderStatusCancelled, domain.OrderStatusRefunded:
		default:
			stats.TotalRevenue += bucket.Amount
		}
	}
	return stats, nil
}

// resolveItems validates every requested line against the live catalog and snapshots prices.
func (s *orderService) resolveItems(ctx context.Context, inputs []OrderItemInput) ([]OrderItem, []repositories.StockLine, error) {
	products := make(map[string]Product, len(inputs))
	requested := make(map[string]int, len(inputs))
	items := make([]OrderItem, 0, len(inputs))
	revenue := make(map[string]int64, len(inputs))
	var order []string

	for i, input := range inputs {
		productID := strings.TrimSpace(input.ProductID)
		if productID == "" {
			return nil, nil, fmt.Errorf("%w: item %d product id is required", ErrOrderInvalidInput, i)
		}
		if input.Quantity < 1 {
			return nil, nil, fmt.Errorf("%w: item %d quantity must be >= 1", ErrOrderInvalidInput, i)
		}
		product, ok := products[productID]
		if !ok {
			found, err := s.products.FindByID(ctx, productID)
			if err != nil {
				var repoErr repositories.RepositoryError
				if errors.As(err, &repoErr) && repoErr.IsNotFound() {
					return nil, nil, fmt.Errorf("%w: %s", ErrProductNotFound, productID)
				}
				return nil, nil, s.mapRepositoryError(err)
			}
			product = found
			products[productID] = product
			order = append(order, productID)
		}
		if !product.IsActive {
			return nil, nil, fmt.Errorf("%w: product %s is not available", ErrOrderInvalidInput, productID)
		}
		if input.Quantity < product.MinOrderQuantity || (product.MaxOrderQuantity > 0 && input.Quantity > product.MaxOrderQuantity) {
			return nil, nil, fmt.Errorf("%w: quantity for %s must be between %d and %d", ErrOrderInvalidInput, product.Name, product.MinOrderQuantity, product.MaxOrderQuantity)
		}

		item := OrderItem{
			ProductID: product.ID,
			Name:      product.Name,
			Quantity:  input.Quantity,
			UnitPrice: product.FinalPrice(),
		}
		if input.VariantType != "" || strings.TrimSpace(input.VariantValue) != "" {
			variant, err := resolveVariant(product, input.VariantType, input.VariantValue)
			if err != nil {
				return nil, nil, err
			}
			item.Variant = &variant
		}
		modifier := int64(0)
		if item.Variant != nil {
			modifier = item.Variant.PriceModifier
		}
		if item.UnitPrice+modifier < 0 {
			return nil, nil, fmt.Errorf("%w: variant modifier exceeds price for %s", ErrOrderInvalidInput, product.Name)
		}
		item.LineTotal = (item.UnitPrice + modifier) * int64(item.Quantity)

		requested[productID] += input.Quantity
		revenue[productID] += item.LineTotal
		items = append(items, item)
	}

	lines := make([]repositories.StockLine, 0, len(order))
	for _, productID := range order {
		product := products[productID]
		if requested[productID] > product.Stock {
			return nil, nil, fmt.Errorf("%w: %s has %d left, %d requested", ErrOrderOutOfStock, product.Name, product.Stock, requested[productID])
		}
		lines = append(lines, repositories.StockLine{
			ProductID: productID,
			Quantity:  requested[productID],
			Revenue:   revenue[productID],
		})
	}
	return items, lines, nil
}

func resolveVariant(product Product, kind domain.VariantType, value string) (domain.OrderVariant, error) {
	kind = domain.VariantType(strings.ToLower(strings.TrimSpace(string(kind))))
	value = strings.TrimSpace(value)
	idx := slices.IndexFunc(product.Variants, func(v ProductVariant) bool { return v.Type == kind })
	if idx < 0 {
		return domain.OrderVariant{}, fmt.Errorf("%w: %s has no %q variant", ErrOrderInvalidInput, product.Name, kind)
	}
	for _, option := range product.Variants[idx].Options {
		if strings.EqualFold(option.Value, value) {
			return domain.OrderVariant{Type: kind, Value: option.Value, PriceModifier: option.PriceModifier}, nil
		}
	}
	return domain.OrderVariant{}, fmt.Errorf("%w: %s has no %s option %q", ErrOrderInvalidInput, product.Name, kind, value)
}

func stockLinesFor(order Order) []repositories.StockLine {
	byProduct := make(map[string]int, len(order.Items))
	revenue := make(map[string]int64, len(order.Items))
	var ids []string
	for _, item := range order.Items {
		if _, ok := byProduct[item.ProductID]; !ok {
			ids = append(ids, item.ProductID)
		}
		byProduct[item.ProductID] += item.Quantity
		revenue[item.ProductID] += item.LineTotal
	}
	lines := make([]repositories.StockLine, 0, len(ids))
	for _, id := range ids {
		lines = append(lines, repositories.StockLine{ProductID: id, Quantity: byProduct[id], Revenue: revenue[id]})
	}
	return lines
}

// restoreStock is best effort; a failure is logged for manual reconciliation.
func (s *orderService) restoreStock(ctx context.Context, orderID string, lines []repositories.StockLine) {
	if len(lines) == 0 {
		return
	}
	if err := s.products.RestoreStock(ctx, lines); err != nil {
		s.logger(ctx, "order.stock.restore.failed", map[string]any{
			"orderId": orderID,
			"lines":   len(lines),
			"error":   err.Error(),
		})
	}
}

// abandonOrder cancels an order that was persisted but could not be attached to its group.
func (s *orderService) abandonOrder(ctx context.Context, order Order, lines []repositories.StockLine, reason string) {
	order.ApplyStatus(domain.OrderStatusCancelled, s.clock(), reason, "system")
	if err := s.orders.Update(ctx, order); err != nil {
		s.logger(ctx, "order.abandon.failed", map[string]any{"orderId": order.ID, "error": err.Error()})
	}
	s.restoreStock(ctx, order.ID, lines)
}

func (s *orderService) mapInventoryError(err error) error {
	var invErr *repositories.InventoryError
	if errors.As(err, &invErr) {
		switch invErr.Code {
		case repositories.InventoryErrorInsufficientStock:
			return fmt.Errorf("%w: product %s has %d left, %d requested", ErrOrderOutOfStock, invErr.ProductID, invErr.Available, invErr.Requested)
		case repositories.InventoryErrorProductNotFound:
			return fmt.Errorf("%w: %s", ErrProductNotFound, invErr.ProductID)
		case repositories.InventoryErrorInvalidLine:
			return fmt.Errorf("%w: %v", ErrOrderInvalidInput, err)
		}
	}
	return s.mapRepositoryError(err)
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}

	return err
}

func (s *orderService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *orderService) nextOrderID() string {
	return orderIDPrefix + s.newID()
}

func normalizeAddress(addr Address) (Address, error) {
	out := Address{
		Name:       strings.TrimSpace(addr.Name),
		Phone:      strings.TrimSpace(addr.Phone),
		Line1:      strings.TrimSpace(addr.Line1),
		Line2:      strings.TrimSpace(addr.Line2),
		City:       strings.TrimSpace(addr.City),
		State:      strings.TrimSpace(addr.State),
		PostalCode: strings.TrimSpace(addr.PostalCode),
		Country:    strings.ToUpper(strings.TrimSpace(addr.Country)),
	}
	if out.Country == "" {
		out.Country = "IN"
	}
	var missing []string
	if out.Name == "" {
		missing = append(missing, "name")
	}
	if out.Line1 == "" {
		missing = append(missing, "line1")
	}
	if out.City == "" {
		missing = append(missing, "city")
	}
	if out.PostalCode == "" {
		missing = append(missing, "postalCode")
	}
	if len(missing) > 0 {
		return Address{}, fmt.Errorf("missing %s", strings.Join(missing, ", "))
	}
	return out, nil
}
