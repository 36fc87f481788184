package domain

import (
	"slices"
	"time"
)

// orderStatusTransitions lists the legal successors of each order status. processing may
// jump straight to delivered when a distribution hand-over completes without a courier leg.
var orderStatusTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed:  {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusDelivered},
	OrderStatusShipped:    {OrderStatusDelivered},
	OrderStatusDelivered:  {OrderStatusRefunded},
	OrderStatusCancelled:  {OrderStatusRefunded},
	OrderStatusRefunded:   {},
}

// IsValid reports whether the status is a known order status.
func (s OrderStatus) IsValid() bool {
	_, ok := orderStatusTransitions[s]
	return ok
}

// CanTransitionTo reports whether next is a legal successor for this order. Moving to
// refunded additionally requires a completed, not yet refunded payment.
func (o Order) CanTransitionTo(next OrderStatus) bool {
	if !slices.Contains(orderStatusTransitions[o.Status], next) {
		return false
	}
	if next == OrderStatusRefunded {
		return o.CanRefund()
	}
	return true
}

// CanCancel is true while the order has not entered fulfillment.
func (o Order) CanCancel() bool {
	return o.Status == OrderStatusPending || o.Status == OrderStatusConfirmed
}

// CanRefund is true for a completed payment on a delivered or cancelled order that has not
// been refunded yet.
func (o Order) CanRefund() bool {
	if o.Payment.Status != PaymentStatusCompleted || o.Payment.RefundedAt != nil {
		return false
	}
	return o.Status == OrderStatusDelivered || o.Status == OrderStatusCancelled
}

// ApplyStatus sets the status and appends the matching timeline entry in one step.
func (o *Order) ApplyStatus(next OrderStatus, now time.Time, note, actor string) {
	o.Status = next
	o.Timeline = append(o.Timeline, TimelineEntry{
		Status:    string(next),
		Timestamp: now,
		Note:      note,
		Actor:     actor,
	})
	o.UpdatedAt = now
}

// IsCheckoutMethod reports whether m is accepted at checkout.
func (m PaymentMethod) IsCheckoutMethod() bool {
	switch m {
	case PaymentMethodRazorpay, PaymentMethodPaytm, PaymentMethodUPI, PaymentMethodCOD:
		return true
	default:
		return false
	}
}
