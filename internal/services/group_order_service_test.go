package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/campus-merch/api/internal/domain"
)

var groupTestNow = time.Date(2024, 9, 2, 8, 0, 0, 0, time.UTC)

func newTestGroupService(t *testing.T, groups *memGroupRepo, orders *memOrderRepo, events *captureEvents, logs *captureLogs) GroupOrderService {
	t.Helper()
	deps := GroupOrderServiceDeps{
		Groups:      groups,
		Orders:      orders,
		Clock:       fixedClock(groupTestNow),
		IDGenerator: sequenceIDs("grp_"),
		Events:      events,
	}
	if logs != nil {
		deps.Logger = logs.log
	}
	svc, err := NewGroupOrderService(deps)
	if err != nil {
		t.Fatalf("new group order service: %v", err)
	}
	return svc
}

func activeGroup(id string) domain.GroupOrder {
	return domain.GroupOrder{
		ID:          id,
		Name:        "Mech Dept Jerseys",
		Department:  "MECH",
		OrganizerID: "head-1",
		Members: []domain.GroupMember{
			{UserID: "head-1", Role: domain.GroupMemberRoleAdmin},
			{UserID: "stu-1", Role: domain.GroupMemberRoleMember},
		},
		Status: domain.GroupOrderStatusActive,
		Settings: domain.GroupOrderSettings{
			AllowMemberOrders: true,
			MaxOrderValue:     100000,
			Deadline:          groupTestNow.Add(48 * time.Hour),
		},
		Payment:  domain.GroupOrderPayment{Status: domain.PaymentStatusPending},
		IsActive: true,
	}
}

func TestGroupOrderServiceCreate(t *testing.T) {
	groups := newMemGroupRepo()
	events := &captureEvents{}
	svc := newTestGroupService(t, groups, newMemOrderRepo(), events, nil)

	group, err := svc.CreateGroupOrder(context.Background(), CreateGroupOrderCommand{
		Name:        " Fest Hoodies ",
		Department:  "CSE",
		OrganizerID: "head-1",
		MemberIDs:   []string{"stu-1", "stu-2", "stu-1", "head-1"},
		Settings: GroupOrderSettings{
			AllowMemberOrders: true,
			Deadline:          groupTestNow.Add(24 * time.Hour),
		},
	})
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	if group.ID != "grp_001" || group.Name != "Fest Hoodies" {
		t.Fatalf("unexpected group %q %q", group.ID, group.Name)
	}
	if group.MemberCount() != 3 {
		t.Fatalf("expected organizer plus two unique members, got %d", group.MemberCount())
	}
	if !group.IsAdmin("head-1") {
		t.Fatal("expected organizer to be a group admin")
	}
	if group.Status != domain.GroupOrderStatusActive || group.Payment.Status != domain.PaymentStatusPending {
		t.Fatalf("expected active pending group, got %s/%s", group.Status, group.Payment.Status)
	}
	if !events.has(groupOrderEventCreated) {
		t.Fatalf("expected created event, got %v", events.types())
	}
}

func TestGroupOrderServiceCreateValidation(t *testing.T) {
	svc := newTestGroupService(t, newMemGroupRepo(), newMemOrderRepo(), nil, nil)
	past := groupTestNow.Add(-time.Hour)
	early := groupTestNow.Add(time.Hour)

	cases := map[string]CreateGroupOrderCommand{
		"missing name":  {Department: "CSE", OrganizerID: "h", Settings: GroupOrderSettings{Deadline: early}},
		"past deadline": {Name: "x", Department: "CSE", OrganizerID: "h", Settings: GroupOrderSettings{Deadline: past}},
		"negative cap":  {Name: "x", Department: "CSE", OrganizerID: "h", Settings: GroupOrderSettings{Deadline: early, MaxOrderValue: -1}},
		"distribution before deadline": {
			Name: "x", Department: "CSE", OrganizerID: "h",
			Settings: GroupOrderSettings{Deadline: early.Add(time.Hour), DistributionDate: &early},
		},
	}
	for name, cmd := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := svc.CreateGroupOrder(context.Background(), cmd); !errors.Is(err, ErrGroupOrderInvalidInput) {
				t.Fatalf("expected invalid input, got %v", err)
			}
		})
	}
}

func TestGroupOrderServiceMembership(t *testing.T) {
	groups := newMemGroupRepo(activeGroup("grp_1"))
	svc := newTestGroupService(t, groups, newMemOrderRepo(), &captureEvents{}, nil)
	ctx := context.Background()

	if _, err := svc.AddMember(ctx, GroupMemberCommand{GroupID: "grp_1", UserID: "stu-9", ActorID: "stu-1"}); !errors.Is(err, ErrGroupOrderForbidden) {
		t.Fatalf("expected plain member to be forbidden, got %v", err)
	}
	group, err := svc.AddMember(ctx, GroupMemberCommand{GroupID: "grp_1", UserID: "stu-9", ActorID: "head-1"})
	if err != nil {
		t.Fatalf("add member: %v", err)
	}
	if !group.IsMember("stu-9") {
		t.Fatal("expected stu-9 to be a member")
	}

	// members may leave on their own.
	group, err = svc.RemoveMember(ctx, GroupMemberCommand{GroupID: "grp_1", UserID: "stu-9", ActorID: "stu-9"})
	if err != nil {
		t.Fatalf("remove self: %v", err)
	}
	if group.IsMember("stu-9") {
		t.Fatal("expected stu-9 removed")
	}
	if _, err := svc.RemoveMember(ctx, GroupMemberCommand{GroupID: "grp_1", UserID: "head-1", IsStaff: true}); !errors.Is(err, ErrGroupOrderInvalidInput) {
		t.Fatalf("expected organizer removal rejected, got %v", err)
	}
}

func TestGroupOrderServiceStatusIsOneWay(t *testing.T) {
	groups := newMemGroupRepo(activeGroup("grp_1"))
	svc := newTestGroupService(t, groups, newMemOrderRepo(), nil, nil)
	ctx := context.Background()

	group, err := svc.UpdateStatus(ctx, GroupOrderStatusCommand{GroupID: "grp_1", Status: domain.GroupOrderStatusClosed, ActorID: "head-1"})
	if err != nil {
		t.Fatalf("close group: %v", err)
	}
	if group.Status != domain.GroupOrderStatusClosed {
		t.Fatalf("expected closed, got %s", group.Status)
	}
	if _, err := svc.UpdateStatus(ctx, GroupOrderStatusCommand{GroupID: "grp_1", Status: domain.GroupOrderStatusActive}); !errors.Is(err, ErrGroupOrderIllegalTransition) {
		t.Fatalf("expected reopen rejected, got %v", err)
	}
	if _, err := svc.AddMember(ctx, GroupMemberCommand{GroupID: "grp_1", UserID: "stu-3", IsStaff: true}); !errors.Is(err, ErrGroupOrderClosed) {
		t.Fatalf("expected closed group to reject members, got %v", err)
	}
}

func TestGroupOrderServiceCheckJoin(t *testing.T) {
	closed := activeGroup("grp_closed")
	closed.Settings.AllowMemberOrders = false
	expired := activeGroup("grp_expired")
	expired.Settings.Deadline = groupTestNow
	groups := newMemGroupRepo(activeGroup("grp_1"), closed, expired)
	svc := newTestGroupService(t, groups, newMemOrderRepo(), nil, nil)
	ctx := context.Background()

	cases := []struct {
		name    string
		groupID string
		userID  string
		total   int64
		want    error
	}{
		{name: "member within cap", groupID: "grp_1", userID: "stu-1", total: 50000},
		{name: "not a member", groupID: "grp_1", userID: "stu-7", total: 100, want: ErrGroupOrderNotMember},
		{name: "over cap", groupID: "grp_1", userID: "stu-1", total: 100001, want: ErrGroupOrderInvalidInput},
		{name: "member orders disabled", groupID: "grp_closed", userID: "stu-1", total: 100, want: ErrGroupOrderClosed},
		{name: "deadline reached", groupID: "grp_expired", userID: "stu-1", total: 100, want: ErrGroupOrderClosed},
		{name: "unknown group", groupID: "grp_missing", userID: "stu-1", total: 100, want: ErrGroupOrderNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CheckJoin(ctx, tc.groupID, tc.userID, tc.total)
			if tc.want == nil {
				if err != nil {
					t.Fatalf("expected join allowed, got %v", err)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestGroupOrderServicePricingIsSumOfOrders(t *testing.T) {
	orders := newMemOrderRepo(
		Order{ID: "ord_1", UserID: "stu-1", Pricing: domain.NewPricing(40000, 0, 7200, 0)},
		Order{ID: "ord_2", UserID: "head-1", Pricing: domain.NewPricing(20000, 1000, 3600, 0)},
	)
	groups := newMemGroupRepo(activeGroup("grp_1"))
	svc := newTestGroupService(t, groups, orders, &captureEvents{}, nil)
	ctx := context.Background()

	for _, id := range []string{"ord_1", "ord_2"} {
		order := orders.get(id)
		if _, err := svc.JoinOrder(ctx, "grp_1", order); err != nil {
			t.Fatalf("join %s: %v", id, err)
		}
	}
	// joining the same order again must not double count it.
	group, err := svc.JoinOrder(ctx, "grp_1", orders.get("ord_1"))
	if err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	want := domain.Pricing{Subtotal: 60000, Discount: 1000, Tax: 10800, Total: 69800}
	if group.Pricing != want {
		t.Fatalf("expected pricing %+v, got %+v", want, group.Pricing)
	}
	if group.OrderCount() != 2 {
		t.Fatalf("expected two orders, got %d", group.OrderCount())
	}

	group, err = svc.RecordCollection(ctx, "grp_1", 47200)
	if err != nil {
		t.Fatalf("record collection: %v", err)
	}
	if group.Payment.Status != domain.PaymentStatusPartial || group.Payment.PendingAmount != 22600 {
		t.Fatalf("expected partial payment with 22600 pending, got %+v", group.Payment)
	}

	group, err = svc.DetachOrder(ctx, "grp_1", orders.get("ord_2"))
	if err != nil {
		t.Fatalf("detach: %v", err)
	}
	if group.Pricing.Total != 47200 || group.Payment.PendingAmount != 0 {
		t.Fatalf("expected pricing of the remaining order, got %+v pending=%d", group.Pricing, group.Payment.PendingAmount)
	}

	if _, err := svc.RecordCollection(ctx, "grp_1", 0); !errors.Is(err, ErrGroupOrderInvalidInput) {
		t.Fatalf("expected zero collection rejected, got %v", err)
	}
}

func TestGroupOrderServiceCloseExpired(t *testing.T) {
	expired := activeGroup("grp_old")
	expired.Settings.Deadline = groupTestNow.Add(-time.Minute)
	groups := newMemGroupRepo(expired, activeGroup("grp_live"))
	events := &captureEvents{}
	svc := newTestGroupService(t, groups, newMemOrderRepo(), events, nil)

	closed, err := svc.CloseExpired(context.Background(), 0)
	if err != nil {
		t.Fatalf("close expired: %v", err)
	}
	if closed != 1 {
		t.Fatalf("expected one group closed, got %d", closed)
	}
	if got := groups.get("grp_old").Status; got != domain.GroupOrderStatusClosed {
		t.Fatalf("expected expired group closed, got %s", got)
	}
	if got := groups.get("grp_live").Status; got != domain.GroupOrderStatusActive {
		t.Fatalf("expected live group untouched, got %s", got)
	}
	if !events.has(groupOrderEventStatusChanged) {
		t.Fatalf("expected status event, got %v", events.types())
	}
}
