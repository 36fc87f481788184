package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/campus-merch/api/internal/domain"
	"github.com/campus-merch/api/internal/payments"
	"github.com/campus-merch/api/internal/repositories"
)

const (
	paymentEventCompleted = "payment.completed"
	paymentEventFailed    = "payment.failed"
	paymentEventRefunded  = "payment.refunded"

	metricPaymentsReconciled = "payments.reconciled"

	defaultRefundReason = "Refund requested by admin"
	defaultEventTTL     = 72 * time.Hour
)

var (
	// ErrPaymentInvalidInput signals malformed payment input.
	ErrPaymentInvalidInput = errors.New("payment: invalid input")
	// ErrPaymentInvalidSignature indicates the checkout proof failed verification.
	ErrPaymentInvalidSignature = errors.New("payment: invalid signature")
	// ErrPaymentNotConfirmed indicates the gateway does not report the payment as captured in full.
	ErrPaymentNotConfirmed = errors.New("payment: not confirmed by gateway")
	// ErrPaymentNotCompleted indicates a refund was requested for an unpaid order.
	ErrPaymentNotCompleted = errors.New("payment: payment not completed")
	// ErrPaymentAlreadyRefunded indicates the order was refunded before.
	ErrPaymentAlreadyRefunded = errors.New("payment: already refunded")
	// ErrPaymentAlreadyCompleted indicates the order is already paid.
	ErrPaymentAlreadyCompleted = errors.New("payment: already completed")
	// ErrPaymentForbidden indicates the actor does not own the order.
	ErrPaymentForbidden = errors.New("payment: forbidden")
	// ErrPaymentGatewayUnavailable indicates the gateway is not configured or failed.
	ErrPaymentGatewayUnavailable = errors.New("payment: gateway unavailable")
)

// PaymentGateway is the money-moving collaborator.
type PaymentGateway interface {
	CreateOrder(ctx context.Context, req payments.OrderRequest) (payments.GatewayOrder, error)
	RetrievePayment(ctx context.Context, gatewayOrderID string) (payments.PaymentDetails, error)
	Refund(ctx context.Context, req payments.RefundRequest) (payments.RefundResult, error)
}

// CheckoutSigner issues the checkout token returned with a payment order and checks it on verify.
type CheckoutSigner interface {
	Sign(gatewayOrderID, orderID string) string
	Verify(gatewayOrderID, orderID, signature string) bool
}

// OrderCanceller cancels orders with stock and group side effects.
type OrderCanceller interface {
	CancelOrder(ctx context.Context, cmd CancelOrderCommand) (Order, error)
}

// OrderRefunder returns money for an order and moves it to refunded.
type OrderRefunder interface {
	Refund(ctx context.Context, cmd RefundCommand) (Order, error)
}

// OrderRefunderFunc adapts a function to OrderRefunder. The order and payment services depend on
// each other, so the container binds the refunder late through a closure.
type OrderRefunderFunc func(ctx context.Context, cmd RefundCommand) (Order, error)

func (f OrderRefunderFunc) Refund(ctx context.Context, cmd RefundCommand) (Order, error) {
	return f(ctx, cmd)
}

// PaymentServiceDeps bundles collaborators required to construct the payment service.
type PaymentServiceDeps struct {
	Orders     repositories.OrderRepository
	Groups     GroupOrderCoordinator
	Canceller  OrderCanceller
	Gateway    PaymentGateway
	Signer     CheckoutSigner
	Ledger     repositories.EventLedger
	EventTTL   time.Duration
	UnitOfWork repositories.UnitOfWork
	Clock      func() time.Time
	Events     EventPublisher
	Metrics    Metrics
	Logger     Logger
}

type paymentService struct {
	orders     repositories.OrderRepository
	groups     GroupOrderCoordinator
	canceller  OrderCanceller
	gateway    PaymentGateway
	signer     CheckoutSigner
	ledger     repositories.EventLedger
	eventTTL   time.Duration
	unitOfWork repositories.UnitOfWork
	clock      func() time.Time
	sink       eventSink
	metrics    Metrics
	logger     Logger
}

// NewPaymentService wires dependencies into a concrete PaymentService implementation.
func NewPaymentService(deps PaymentServiceDeps) (PaymentService, error) {
	if deps.Orders == nil {
		return nil, errors.New("payment service: order repository is required")
	}
	if deps.Canceller == nil {
		return nil, errors.New("payment service: order canceller is required")
	}
	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}
	ttl := deps.EventTTL
	if ttl <= 0 {
		ttl = defaultEventTTL
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	return &paymentService{
		orders:     deps.Orders,
		groups:     deps.Groups,
		canceller:  deps.Canceller,
		gateway:    deps.Gateway,
		signer:     deps.Signer,
		ledger:     deps.Ledger,
		eventTTL:   ttl,
		unitOfWork: unit,
		clock: func() time.Time {
			return clock().UTC()
		},
		sink:    eventSink{events: deps.Events, logger: logger, prefix: "payment"},
		metrics: metrics,
		logger:  logger,
	}, nil
}

func (s *paymentService) CreatePaymentOrder(ctx context.Context, cmd CreatePaymentOrderCommand) (PaymentOrder, error) {
	if s.gateway == nil {
		return PaymentOrder{}, ErrPaymentGatewayUnavailable
	}
	order, err := s.findOrder(ctx, cmd.OrderID)
	if err != nil {
		return PaymentOrder{}, err
	}
	if order.UserID != strings.TrimSpace(cmd.ActorID) {
		return PaymentOrder{}, ErrPaymentForbidden
	}
	switch {
	case order.Payment.Status == domain.PaymentStatusCompleted || order.Payment.Status == domain.PaymentStatusRefunded:
		return PaymentOrder{}, ErrPaymentAlreadyCompleted
	case order.Status != domain.OrderStatusPending:
		return PaymentOrder{}, fmt.Errorf("%w: %s orders cannot be paid", ErrPaymentInvalidInput, order.Status)
	case order.Payment.Method == domain.PaymentMethodCOD:
		return PaymentOrder{}, fmt.Errorf("%w: cash on delivery orders are paid at hand-over", ErrPaymentInvalidInput)
	case cmd.Amount != 0 && cmd.Amount != order.Pricing.Total:
		return PaymentOrder{}, fmt.Errorf("%w: amount %d does not match order total %d", ErrPaymentInvalidInput, cmd.Amount, order.Pricing.Total)
	case order.Pricing.Total <= 0:
		return PaymentOrder{}, fmt.Errorf("%w: order total must be positive", ErrPaymentInvalidInput)
	}

	key := strings.TrimSpace(cmd.IdempotencyKey)
	if key == "" {
		key = "payment-" + order.ID
	}
	gatewayOrder, err := s.gateway.CreateOrder(ctx, payments.OrderRequest{
		Reference:   order.ID,
		Amount:      order.Pricing.Total,
		Currency:    payments.Currency,
		Description: "Order " + order.OrderNumber,
		Metadata: map[string]string{
			"orderNumber": order.OrderNumber,
			"userId":      order.UserID,
		},
		IdempotencyKey: key,
	})
	if err != nil {
		return PaymentOrder{}, fmt.Errorf("%w: %v", ErrPaymentGatewayUnavailable, err)
	}

	_, err = s.mutate(ctx, order.ID, func(current *Order, _ time.Time) (bool, error) {
		if current.Payment.Status == domain.PaymentStatusCompleted {
			return false, ErrPaymentAlreadyCompleted
		}
		current.Payment.GatewayOrderID = gatewayOrder.ID
		current.Payment.Status = domain.PaymentStatusPending
		return true, nil
	})
	if err != nil {
		return PaymentOrder{}, err
	}
	out := PaymentOrder{
		OrderID:        order.ID,
		GatewayOrderID: gatewayOrder.ID,
		Amount:         gatewayOrder.Amount,
		Currency:       gatewayOrder.Currency,
		ClientSecret:   gatewayOrder.ClientSecret,
	}
	if s.signer != nil {
		out.Signature = s.signer.Sign(gatewayOrder.ID, order.ID)
	}
	return out, nil
}

// VerifyPayment confirms a checkout with the gateway before marking the order paid. When a
// signer is configured the client must also echo the checkout token issued by CreatePaymentOrder.
func (s *paymentService) VerifyPayment(ctx context.Context, cmd VerifyPaymentCommand) (Order, error) {
	if s.gateway == nil {
		return Order{}, ErrPaymentGatewayUnavailable
	}
	gatewayOrderID := strings.TrimSpace(cmd.GatewayOrderID)
	gatewayPaymentID := strings.TrimSpace(cmd.GatewayPaymentID)
	signature := strings.TrimSpace(cmd.Signature)
	if gatewayOrderID == "" {
		return Order{}, fmt.Errorf("%w: gateway order id is required", ErrPaymentInvalidInput)
	}
	if s.signer != nil && signature == "" {
		return Order{}, fmt.Errorf("%w: signature is required", ErrPaymentInvalidInput)
	}
	order, err := s.findOrder(ctx, cmd.OrderID)
	if err != nil {
		return Order{}, err
	}
	if order.UserID != strings.TrimSpace(cmd.ActorID) {
		return Order{}, ErrPaymentForbidden
	}
	if order.Payment.GatewayOrderID != "" && order.Payment.GatewayOrderID != gatewayOrderID {
		return Order{}, fmt.Errorf("%w: gateway order does not belong to this order", ErrPaymentInvalidSignature)
	}
	if s.signer != nil && !s.signer.Verify(gatewayOrderID, order.ID, signature) {
		return Order{}, ErrPaymentInvalidSignature
	}

	details, err := s.gateway.RetrievePayment(ctx, gatewayOrderID)
	if err != nil {
		return Order{}, fmt.Errorf("%w: %v", ErrPaymentGatewayUnavailable, err)
	}
	switch {
	case details.Reference != "" && details.Reference != order.ID:
		return Order{}, fmt.Errorf("%w: gateway order belongs to %s", ErrPaymentInvalidSignature, details.Reference)
	case details.Status != payments.StatusSucceeded:
		return Order{}, fmt.Errorf("%w: gateway status %s", ErrPaymentNotConfirmed, details.Status)
	case details.Amount != order.Pricing.Total:
		return Order{}, fmt.Errorf("%w: gateway captured %d of %d", ErrPaymentNotConfirmed, details.Amount, order.Pricing.Total)
	case details.Currency != "" && !strings.EqualFold(details.Currency, payments.Currency):
		return Order{}, fmt.Errorf("%w: gateway currency %s", ErrPaymentNotConfirmed, details.Currency)
	}
	if details.GatewayPaymentID != "" {
		gatewayPaymentID = details.GatewayPaymentID
	}

	updated, _, err := s.capture(ctx, order.ID, gatewayOrderID, gatewayPaymentID, signature, strings.TrimSpace(cmd.ActorID), "verify")
	return updated, err
}

func (s *paymentService) ApplyGatewayEvent(ctx context.Context, event GatewayEvent) error {
	switch event.Type {
	case payments.EventPaymentCaptured, payments.EventPaymentFailed, payments.EventRefundCreated:
	default:
		return nil
	}
	eventID := strings.TrimSpace(event.ID)
	if eventID == "" {
		return fmt.Errorf("%w: event id is required", ErrPaymentInvalidInput)
	}
	if strings.TrimSpace(event.GatewayOrderID) == "" {
		return fmt.Errorf("%w: gateway order id is required", ErrPaymentInvalidInput)
	}

	if s.ledger != nil {
		fresh, err := s.ledger.MarkProcessed(ctx, eventID, s.eventTTL)
		if err != nil {
			return fmt.Errorf("payment: record gateway event: %w", err)
		}
		if !fresh {
			s.logger(ctx, "payment.event.duplicate", map[string]any{"eventId": eventID, "type": event.Type})
			return nil
		}
	}

	if err := s.applyEvent(ctx, event); err != nil {
		if s.ledger != nil {
			if releaseErr := s.ledger.Release(ctx, eventID); releaseErr != nil {
				s.logger(ctx, "payment.event.release.failed", map[string]any{"eventId": eventID, "error": releaseErr.Error()})
			}
		}
		return err
	}
	return nil
}

func (s *paymentService) applyEvent(ctx context.Context, event GatewayEvent) error {
	order, err := s.orders.FindByGatewayOrderID(ctx, strings.TrimSpace(event.GatewayOrderID))
	if err != nil {
		if isRepositoryNotFound(err) {
			s.logger(ctx, "payment.event.unmatched", map[string]any{
				"eventId":        event.ID,
				"type":           event.Type,
				"gatewayOrderId": event.GatewayOrderID,
			})
			return nil
		}
		return mapOrderLookupError(err)
	}

	switch event.Type {
	case payments.EventPaymentCaptured:
		if order.Payment.Status != domain.PaymentStatusPending {
			return nil
		}
		_, _, err := s.capture(ctx, order.ID, event.GatewayOrderID, event.GatewayPaymentID, "", "gateway", "webhook")
		return err
	case payments.EventPaymentFailed:
		return s.fail(ctx, order, event)
	case payments.EventRefundCreated:
		return s.recordGatewayRefund(ctx, order, event)
	}
	return nil
}

// capture marks the order paid and confirms it. The reported bool is false when the order
// was already paid, which keeps verify and webhook deliveries idempotent.
func (s *paymentService) capture(ctx context.Context, orderID, gatewayOrderID, gatewayPaymentID, signature, actorID, source string) (Order, bool, error) {
	var previous domain.OrderStatus
	order, err := s.mutate(ctx, orderID, func(order *Order, now time.Time) (bool, error) {
		if order.Payment.Status == domain.PaymentStatusCompleted {
			return false, nil
		}
		if order.Payment.Status == domain.PaymentStatusRefunded {
			return false, ErrPaymentAlreadyRefunded
		}
		previous = order.Status
		paidAt := now
		order.Payment.Status = domain.PaymentStatusCompleted
		order.Payment.GatewayOrderID = gatewayOrderID
		order.Payment.GatewayPaymentID = gatewayPaymentID
		if signature != "" {
			order.Payment.GatewaySignature = signature
		}
		order.Payment.PaidAt = &paidAt
		if order.Status == domain.OrderStatusPending {
			order.ApplyStatus(domain.OrderStatusConfirmed, now, "Payment received", actorID)
		}
		return true, nil
	})
	if err != nil {
		return Order{}, false, err
	}
	if previous == "" {
		return order, false, nil
	}

	if order.GroupOrderID != "" && s.groups != nil {
		if _, err := s.groups.RecordCollection(ctx, order.GroupOrderID, order.Pricing.Total); err != nil {
			s.logger(ctx, "payment.group.collection.failed", map[string]any{
				"orderId":      order.ID,
				"groupOrderId": order.GroupOrderID,
				"amount":       order.Pricing.Total,
				"error":        err.Error(),
			})
		}
	}
	s.metrics.Incr(ctx, metricPaymentsReconciled, map[string]string{"outcome": "captured", "source": source})
	s.sink.publish(ctx, DomainEvent{
		Type:           paymentEventCompleted,
		AggregateType:  "order",
		AggregateID:    order.ID,
		PreviousStatus: string(previous),
		CurrentStatus:  string(order.Status),
		ActorID:        actorID,
		OccurredAt:     order.UpdatedAt,
		Metadata: map[string]any{
			"orderNumber":      order.OrderNumber,
			"amount":           order.Pricing.Total,
			"gatewayOrderId":   gatewayOrderID,
			"gatewayPaymentId": gatewayPaymentID,
		},
	})
	return order, true, nil
}

func (s *paymentService) fail(ctx context.Context, order Order, event GatewayEvent) error {
	if order.Payment.Status != domain.PaymentStatusPending {
		return nil
	}
	updated, err := s.mutate(ctx, order.ID, func(current *Order, _ time.Time) (bool, error) {
		if current.Payment.Status != domain.PaymentStatusPending {
			return false, nil
		}
		current.Payment.Status = domain.PaymentStatusFailed
		return true, nil
	})
	if err != nil {
		return err
	}
	if updated.Payment.Status != domain.PaymentStatusFailed {
		return nil
	}

	reason := "Payment failed"
	if detail := strings.TrimSpace(event.Reason); detail != "" {
		reason += ": " + detail
	}
	if _, err := s.canceller.CancelOrder(ctx, CancelOrderCommand{
		OrderID: order.ID,
		Reason:  reason,
		ActorID: "gateway",
		IsStaff: true,
	}); err != nil && !errors.Is(err, ErrOrderIllegalTransition) {
		return err
	}
	s.metrics.Incr(ctx, metricPaymentsReconciled, map[string]string{"outcome": "failed", "source": "webhook"})
	s.sink.publish(ctx, DomainEvent{
		Type:          paymentEventFailed,
		AggregateType: "order",
		AggregateID:   order.ID,
		CurrentStatus: string(domain.PaymentStatusFailed),
		ActorID:       "gateway",
		OccurredAt:    s.clock(),
		Metadata:      map[string]any{"orderNumber": order.OrderNumber, "reason": event.Reason},
	})
	return nil
}

// recordGatewayRefund mirrors a refund issued outside this service, e.g. from the gateway
// dashboard. Refunds issued through Refund are already recorded and are skipped.
func (s *paymentService) recordGatewayRefund(ctx context.Context, order Order, event GatewayEvent) error {
	if order.Payment.RefundedAt != nil {
		return nil
	}
	refundedAt := event.OccurredAt.UTC()
	if event.OccurredAt.IsZero() {
		refundedAt = s.clock()
	}
	amount := event.Amount
	if amount <= 0 {
		amount = order.Pricing.Total
	}
	updated, err := s.mutate(ctx, order.ID, func(current *Order, now time.Time) (bool, error) {
		if current.Payment.RefundedAt != nil {
			return false, nil
		}
		legal := current.CanTransitionTo(domain.OrderStatusRefunded)
		current.Payment.Status = domain.PaymentStatusRefunded
		current.Payment.RefundedAt = &refundedAt
		current.Payment.RefundAmount = amount
		if current.Payment.RefundReason == "" {
			current.Payment.RefundReason = "Refunded at gateway"
		}
		if legal {
			current.ApplyStatus(domain.OrderStatusRefunded, now, "Refunded at gateway", "gateway")
		} else {
			s.logger(ctx, "payment.refund.status.kept", map[string]any{"orderId": current.ID, "status": string(current.Status)})
		}
		return true, nil
	})
	if err != nil {
		return err
	}
	s.leaveGroup(ctx, updated)
	s.metrics.Incr(ctx, metricPaymentsReconciled, map[string]string{"outcome": "refunded", "source": "webhook"})
	s.sink.publish(ctx, DomainEvent{
		Type:          paymentEventRefunded,
		AggregateType: "order",
		AggregateID:   updated.ID,
		CurrentStatus: string(updated.Status),
		ActorID:       "gateway",
		OccurredAt:    refundedAt,
		Metadata:      map[string]any{"orderNumber": updated.OrderNumber, "amount": amount},
	})
	return nil
}

func (s *paymentService) Refund(ctx context.Context, cmd RefundCommand) (Order, error) {
	order, err := s.findOrder(ctx, cmd.OrderID)
	if err != nil {
		return Order{}, err
	}
	switch {
	case order.Payment.RefundedAt != nil || order.Payment.Status == domain.PaymentStatusRefunded:
		return Order{}, ErrPaymentAlreadyRefunded
	case order.Payment.Status != domain.PaymentStatusCompleted:
		return Order{}, ErrPaymentNotCompleted
	case !order.CanTransitionTo(domain.OrderStatusRefunded):
		return Order{}, fmt.Errorf("%w: %s orders cannot be refunded", ErrOrderIllegalTransition, order.Status)
	}
	amount := cmd.Amount
	if amount == 0 {
		amount = order.Pricing.Total
	}
	if amount < 0 || amount > order.Pricing.Total {
		return Order{}, fmt.Errorf("%w: refund amount must be between 1 and %d", ErrPaymentInvalidInput, order.Pricing.Total)
	}
	reason := strings.TrimSpace(cmd.Reason)
	if reason == "" {
		reason = defaultRefundReason
	}
	actorID := strings.TrimSpace(cmd.ActorID)

	// cash orders carry no gateway reference and are refunded offline.
	if order.Payment.GatewayOrderID != "" {
		if s.gateway == nil {
			return Order{}, ErrPaymentGatewayUnavailable
		}
		key := strings.TrimSpace(cmd.IdempotencyKey)
		if key == "" {
			key = "refund-" + order.ID
		}
		result, err := s.gateway.Refund(ctx, payments.RefundRequest{
			GatewayOrderID: order.Payment.GatewayOrderID,
			Amount:         amount,
			Reason:         reason,
			IdempotencyKey: key,
			Metadata:       map[string]string{"orderId": order.ID, "actorId": actorID},
		})
		if err != nil {
			return Order{}, fmt.Errorf("%w: %v", ErrPaymentGatewayUnavailable, err)
		}
		if result.Status == payments.StatusFailed {
			return Order{}, fmt.Errorf("%w: gateway rejected refund %s", ErrPaymentGatewayUnavailable, result.ID)
		}
	}

	var previous domain.OrderStatus
	updated, err := s.mutate(ctx, order.ID, func(current *Order, now time.Time) (bool, error) {
		if current.Payment.RefundedAt != nil {
			return false, ErrPaymentAlreadyRefunded
		}
		previous = current.Status
		refundedAt := now
		current.Payment.Status = domain.PaymentStatusRefunded
		current.Payment.RefundedAt = &refundedAt
		current.Payment.RefundAmount = amount
		current.Payment.RefundReason = reason
		current.ApplyStatus(domain.OrderStatusRefunded, now, reason, actorID)
		return true, nil
	})
	if err != nil {
		return Order{}, err
	}
	s.leaveGroup(ctx, updated)
	s.metrics.Incr(ctx, metricPaymentsReconciled, map[string]string{"outcome": "refunded", "source": "admin"})
	s.sink.publish(ctx, DomainEvent{
		Type:           paymentEventRefunded,
		AggregateType:  "order",
		AggregateID:    updated.ID,
		PreviousStatus: string(previous),
		CurrentStatus:  string(updated.Status),
		ActorID:        actorID,
		OccurredAt:     updated.UpdatedAt,
		Metadata:       map[string]any{"orderNumber": updated.OrderNumber, "amount": amount, "reason": reason},
	})
	return updated, nil
}

// leaveGroup detaches a refunded order so its money comes off the group pool.
func (s *paymentService) leaveGroup(ctx context.Context, order Order) {
	if order.GroupOrderID == "" || s.groups == nil {
		return
	}
	if _, err := s.groups.DetachOrder(ctx, order.GroupOrderID, order); err != nil {
		s.logger(ctx, "payment.group.detach.failed", map[string]any{
			"orderId":      order.ID,
			"groupOrderId": order.GroupOrderID,
			"error":        err.Error(),
		})
	}
}

func (s *paymentService) Statistics(ctx context.Context) (PaymentStatistics, error) {
	buckets, err := s.orders.CountByPaymentStatus(ctx)
	if err != nil {
		return PaymentStatistics{}, mapOrderLookupError(err)
	}
	stats := PaymentStatistics{ByStatus: buckets, GeneratedAt: s.clock()}
	for _, bucket := range buckets {
		switch domain.PaymentStatus(bucket.Status) {
		case domain.PaymentStatusCompleted:
			stats.CompletedRevenue += bucket.Amount
		case domain.PaymentStatusRefunded:
			stats.RefundedAmount += bucket.Amount
		}
	}
	return stats, nil
}

func (s *paymentService) findOrder(ctx context.Context, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrPaymentInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, mapOrderLookupError(err)
	}
	return order, nil
}

// mutate re-reads the order inside a transaction and writes it when fn reports a change.
func (s *paymentService) mutate(ctx context.Context, orderID string, fn func(order *Order, now time.Time) (bool, error)) (Order, error) {
	var out Order
	err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		order, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return mapOrderLookupError(err)
		}
		now := s.clock()
		changed, err := fn(&order, now)
		if err != nil {
			return err
		}
		if changed {
			order.UpdatedAt = now
			if err := s.orders.Update(txCtx, order); err != nil {
				return mapOrderLookupError(err)
			}
		}
		out = order
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	return out, nil
}
