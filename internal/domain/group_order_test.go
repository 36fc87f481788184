package domain

import (
	"testing"
	"time"
)

func TestGroupOrderPaymentSettlement(t *testing.T) {
	first := Order{ID: "ord_1", Pricing: NewPricing(30000, 0, 5400, 5000)}
	second := Order{ID: "ord_2", Pricing: NewPricing(60000, 0, 10800, 0)}

	var group GroupOrder
	group.RecalculatePricing([]Order{first, second})
	steps := []struct {
		name string
		do   func()
		want GroupOrderPayment
	}{
		{
			name: "nothing collected",
			do:   func() {},
			want: GroupOrderPayment{Status: PaymentStatusPending, PendingAmount: 111200},
		},
		{
			name: "first member pays",
			do:   func() { group.RecordCollection(40400) },
			want: GroupOrderPayment{Status: PaymentStatusPartial, CollectedAmount: 40400, PendingAmount: 70800},
		},
		{
			name: "second member pays",
			do:   func() { group.RecordCollection(70800) },
			want: GroupOrderPayment{Status: PaymentStatusCompleted, CollectedAmount: 111200},
		},
		{
			name: "new unpaid order reopens the pool",
			do: func() {
				group.RecalculatePricing([]Order{first, second, {ID: "ord_3", Pricing: NewPricing(1000, 0, 180, 5000)}})
			},
			want: GroupOrderPayment{Status: PaymentStatusPartial, CollectedAmount: 111200, PendingAmount: 6180},
		},
		{
			name: "paid member leaves",
			do: func() {
				group.ReverseCollection(40400)
				group.RecalculatePricing([]Order{second, {ID: "ord_3", Pricing: NewPricing(1000, 0, 180, 5000)}})
			},
			want: GroupOrderPayment{Status: PaymentStatusPartial, CollectedAmount: 70800, PendingAmount: 6180},
		},
		{
			name: "reversal never goes negative",
			do: func() {
				group.ReverseCollection(1_000_000)
				group.RecalculatePricing(nil)
			},
			want: GroupOrderPayment{Status: PaymentStatusPending},
		},
	}
	for _, step := range steps {
		step.do()
		if group.Payment != step.want {
			t.Fatalf("%s: got %+v, want %+v", step.name, group.Payment, step.want)
		}
	}
}

func TestGroupOrderMembershipAndOrders(t *testing.T) {
	now := time.Date(2024, 9, 2, 8, 0, 0, 0, time.UTC)
	group := GroupOrder{
		Status:   GroupOrderStatusActive,
		Settings: GroupOrderSettings{AllowMemberOrders: true, Deadline: now.Add(time.Hour)},
	}
	if !group.AddMember("head-1", GroupMemberRoleAdmin, now) || group.AddMember("head-1", GroupMemberRoleMember, now) {
		t.Fatal("expected a member to be added exactly once")
	}
	if !group.AddMember("stu-1", "", now) || group.IsAdmin("stu-1") || !group.IsAdmin("head-1") {
		t.Fatalf("unexpected roles %+v", group.Members)
	}
	if !group.AddOrder("ord_1") || group.AddOrder("ord_1") || group.AddOrder("") {
		t.Fatal("expected an order to be added exactly once")
	}
	if !group.IsOpen(now) || group.IsOpen(now.Add(2*time.Hour)) {
		t.Fatal("expected the group open only before its deadline")
	}
	if !group.CanTransitionTo(GroupOrderStatusClosed) {
		t.Fatal("expected active -> closed")
	}
	group.Status = GroupOrderStatusClosed
	if group.CanTransitionTo(GroupOrderStatusActive) || group.IsOpen(now) {
		t.Fatal("expected a closed group to stay closed")
	}
	if !group.RemoveOrder("ord_1") || group.RemoveOrder("ord_1") || !group.RemoveMember("stu-1") {
		t.Fatal("expected removals to report change once")
	}
}

func TestOrderRefundRules(t *testing.T) {
	refundedAt := time.Date(2024, 8, 12, 10, 30, 0, 0, time.UTC)
	cases := []struct {
		name   string
		status OrderStatus
		pay    OrderPayment
		want   bool
	}{
		{name: "delivered and paid", status: OrderStatusDelivered, pay: OrderPayment{Status: PaymentStatusCompleted}, want: true},
		{name: "cancelled after payment", status: OrderStatusCancelled, pay: OrderPayment{Status: PaymentStatusCompleted}, want: true},
		{name: "shipped", status: OrderStatusShipped, pay: OrderPayment{Status: PaymentStatusCompleted}},
		{name: "unpaid cancellation", status: OrderStatusCancelled, pay: OrderPayment{Status: PaymentStatusPending}},
		{name: "already refunded", status: OrderStatusDelivered, pay: OrderPayment{Status: PaymentStatusCompleted, RefundedAt: &refundedAt}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			order := Order{Status: tc.status, Payment: tc.pay}
			if got := order.CanRefund(); got != tc.want {
				t.Fatalf("CanRefund = %v, want %v", got, tc.want)
			}
			if got := order.CanTransitionTo(OrderStatusRefunded); got != tc.want {
				t.Fatalf("CanTransitionTo(refunded) = %v, want %v", got, tc.want)
			}
		})
	}
}
