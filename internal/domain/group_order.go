package domain

import (
	"slices"
	"time"
)

// groupOrderStatusTransitions is one-way: every terminal state is only reachable from active.
var groupOrderStatusTransitions = map[GroupOrderStatus][]GroupOrderStatus{
	GroupOrderStatusActive:    {GroupOrderStatusClosed, GroupOrderStatusCompleted, GroupOrderStatusCancelled},
	GroupOrderStatusClosed:    {},
	GroupOrderStatusCompleted: {},
	GroupOrderStatusCancelled: {},
}

// IsValid reports whether the status is a known group order status.
func (s GroupOrderStatus) IsValid() bool {
	_, ok := groupOrderStatusTransitions[s]
	return ok
}

// CanTransitionTo reports whether next is reachable from the current group status.
func (g GroupOrder) CanTransitionTo(next GroupOrderStatus) bool {
	return slices.Contains(groupOrderStatusTransitions[g.Status], next)
}

// IsOpen is true while the group accepts member orders.
func (g GroupOrder) IsOpen(now time.Time) bool {
	return g.Status == GroupOrderStatusActive && now.Before(g.Settings.Deadline) && g.Settings.AllowMemberOrders
}

// MemberCount returns the number of members.
func (g GroupOrder) MemberCount() int { return len(g.Members) }

// OrderCount returns the number of contained orders.
func (g GroupOrder) OrderCount() int { return len(g.OrderIDs) }

// IsMember reports whether userID belongs to the group.
func (g GroupOrder) IsMember(userID string) bool {
	return slices.ContainsFunc(g.Members, func(m GroupMember) bool { return m.UserID == userID })
}

// IsAdmin reports whether userID is an admin member of the group.
func (g GroupOrder) IsAdmin(userID string) bool {
	return slices.ContainsFunc(g.Members, func(m GroupMember) bool {
		return m.UserID == userID && m.Role == GroupMemberRoleAdmin
	})
}

// AddMember appends the user unless already present and reports whether it changed the group.
func (g *GroupOrder) AddMember(userID string, role GroupMemberRole, now time.Time) bool {
	if userID == "" || g.IsMember(userID) {
		return false
	}
	if role == "" {
		role = GroupMemberRoleMember
	}
	g.Members = append(g.Members, GroupMember{UserID: userID, Role: role, JoinedAt: now})
	return true
}

// RemoveMember drops the user and reports whether it was present.
func (g *GroupOrder) RemoveMember(userID string) bool {
	before := len(g.Members)
	g.Members = slices.DeleteFunc(g.Members, func(m GroupMember) bool { return m.UserID == userID })
	return len(g.Members) != before
}

// AddOrder appends the order reference once.
func (g *GroupOrder) AddOrder(orderID string) bool {
	if orderID == "" || slices.Contains(g.OrderIDs, orderID) {
		return false
	}
	g.OrderIDs = append(g.OrderIDs, orderID)
	return true
}

// SumOrderPricing reduces the pricing blocks of the supplied orders into their elementwise sum.
func SumOrderPricing(orders []Order) Pricing {
	var total Pricing
	for _, order := range orders {
		total = total.Add(order.Pricing)
	}
	return total
}

// RemoveOrder drops the order reference and reports whether it was present.
func (g *GroupOrder) RemoveOrder(orderID string) bool {
	before := len(g.OrderIDs)
	g.OrderIDs = slices.DeleteFunc(g.OrderIDs, func(id string) bool { return id == orderID })
	return len(g.OrderIDs) != before
}

// RecalculatePricing replaces the group pricing with the sum over its orders, then re-derives
// the pending amount and pool status. Running it twice on the same orders yields the same block.
func (g *GroupOrder) RecalculatePricing(orders []Order) {
	g.Pricing = SumOrderPricing(orders)
	g.settlePayment()
}

// RecordCollection adds amount to the collected total.
func (g *GroupOrder) RecordCollection(amount int64) {
	g.Payment.CollectedAmount += amount
	g.settlePayment()
}

// ReverseCollection takes back money collected for an order that left the pool. The collected
// total never drops below zero.
func (g *GroupOrder) ReverseCollection(amount int64) {
	g.Payment.CollectedAmount = max(g.Payment.CollectedAmount-amount, 0)
	g.settlePayment()
}

// settlePayment derives the pending amount, then marks the pool completed once nothing is
// pending, partial while some money is in and pending before any is.
func (g *GroupOrder) settlePayment() {
	g.Payment.PendingAmount = g.Pricing.Total - g.Payment.CollectedAmount
	switch {
	case g.Payment.CollectedAmount <= 0:
		g.Payment.Status = PaymentStatusPending
	case g.Payment.PendingAmount <= 0:
		g.Payment.Status = PaymentStatusCompleted
	default:
		g.Payment.Status = PaymentStatusPartial
	}
}
