package domain

import (
	"math"
	"slices"
	"time"
)

var distributionStatusTransitions = map[DistributionStatus][]DistributionStatus{
	DistributionStatusPending:   {DistributionStatusAssigned, DistributionStatusCancelled},
	DistributionStatusAssigned:  {DistributionStatusReady, DistributionStatusCancelled},
	DistributionStatusReady:     {DistributionStatusInTransit, DistributionStatusCancelled},
	DistributionStatusInTransit: {DistributionStatusDelivered},
	DistributionStatusDelivered: {},
	DistributionStatusCancelled: {},
}

// IsValid reports whether the status is a known distribution status.
func (s DistributionStatus) IsValid() bool {
	_, ok := distributionStatusTransitions[s]
	return ok
}

// IsValid reports whether the item status is known.
func (s DistributionItemStatus) IsValid() bool {
	switch s {
	case DistributionItemPending, DistributionItemPacked, DistributionItemShipped, DistributionItemDelivered:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether next is a legal successor of the current status.
func (d Distribution) CanTransitionTo(next DistributionStatus) bool {
	return slices.Contains(distributionStatusTransitions[d.Status], next)
}

// CanCancel is true before the parcel leaves for delivery.
func (d Distribution) CanCancel() bool {
	switch d.Status {
	case DistributionStatusPending, DistributionStatusAssigned, DistributionStatusReady:
		return true
	default:
		return false
	}
}

// IsOverdue is true once the scheduled date passed without a terminal status.
func (d Distribution) IsOverdue(now time.Time) bool {
	if d.Status == DistributionStatusDelivered || d.Status == DistributionStatusCancelled {
		return false
	}
	return d.ScheduledDate.Before(now)
}

// DaysUntilDelivery returns whole days until the scheduled date, rounded up; negative when late.
func (d Distribution) DaysUntilDelivery(now time.Time) int {
	return int(math.Ceil(d.ScheduledDate.Sub(now).Hours() / 24))
}

// ApplyStatus moves the distribution to next. It appends a timeline entry only when a note
// is supplied, assigns the tracking number on first entry to in_transit, and stamps the
// actual date on first entry to in_transit or delivered.
func (d *Distribution) ApplyStatus(next DistributionStatus, now time.Time, note, actor string, suffix SuffixFunc) {
	d.Status = next
	if note != "" {
		d.Timeline = append(d.Timeline, TimelineEntry{
			Status:    string(next),
			Timestamp: now,
			Note:      note,
			Actor:     actor,
		})
	}
	if next == DistributionStatusInTransit && d.Tracking.Number == "" {
		d.Tracking.Number = TrackingNumber(now, suffix)
	}
	if (next == DistributionStatusInTransit || next == DistributionStatusDelivered) && d.ActualDate == nil {
		stamp := now
		d.ActualDate = &stamp
	}
	if next == DistributionStatusDelivered && d.Tracking.ActualDelivery == nil {
		stamp := now
		d.Tracking.ActualDelivery = &stamp
	}
	d.UpdatedAt = now
}

// ItemsFromOrder copies order lines into pending fulfillment entries.
func ItemsFromOrder(order Order, idFor func(index int) string) []DistributionItem {
	items := make([]DistributionItem, 0, len(order.Items))
	for i, line := range order.Items {
		items = append(items, DistributionItem{
			ID:        idFor(i),
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			Status:    DistributionItemPending,
		})
	}
	return items
}

// MirrorDeliveryToOrder marks the order and its distribution sub-record delivered. It
// reports false without touching the order when the order cannot legally become delivered.
func MirrorDeliveryToOrder(order *Order, deliveredAt time.Time, actor string) bool {
	if order == nil {
		return false
	}
	if order.Status != OrderStatusDelivered {
		if !order.CanTransitionTo(OrderStatusDelivered) {
			return false
		}
		order.ApplyStatus(OrderStatusDelivered, deliveredAt, "Delivered via distribution", actor)
	}
	stamp := deliveredAt
	order.Distribution.Status = OrderDistributionDelivered
	order.Distribution.DeliveredAt = &stamp
	order.UpdatedAt = deliveredAt
	return true
}
