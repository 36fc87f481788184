package handlers

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	firebaseauth "firebase.google.com/go/v4/auth"

	domain "github.com/campus-merch/api/internal/domain"
	"github.com/campus-merch/api/internal/platform/auth"
	"github.com/campus-merch/api/internal/platform/authz"
	"github.com/campus-merch/api/internal/services"
)

type stubGroupOrderService struct {
	services.GroupOrderCoordinator

	createFn func(context.Context, services.CreateGroupOrderCommand) (services.GroupOrder, error)
	getFn    func(context.Context, string) (services.GroupOrder, error)
	listFn   func(context.Context, services.GroupOrderListFilter) (domain.CursorPage[services.GroupOrder], error)
	addFn    func(context.Context, services.GroupMemberCommand) (services.GroupOrder, error)
	removeFn func(context.Context, services.GroupMemberCommand) (services.GroupOrder, error)
	statusFn func(context.Context, services.GroupOrderStatusCommand) (services.GroupOrder, error)
}

func (s *stubGroupOrderService) CreateGroupOrder(ctx context.Context, cmd services.CreateGroupOrderCommand) (services.GroupOrder, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return services.GroupOrder{}, errors.New("not implemented")
}

func (s *stubGroupOrderService) GetGroupOrder(ctx context.Context, groupID string) (services.GroupOrder, error) {
	if s.getFn != nil {
		return s.getFn(ctx, groupID)
	}
	return services.GroupOrder{}, errors.New("not implemented")
}

func (s *stubGroupOrderService) ListGroupOrders(ctx context.Context, filter services.GroupOrderListFilter) (domain.CursorPage[services.GroupOrder], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.CursorPage[services.GroupOrder]{}, nil
}

func (s *stubGroupOrderService) AddMember(ctx context.Context, cmd services.GroupMemberCommand) (services.GroupOrder, error) {
	if s.addFn != nil {
		return s.addFn(ctx, cmd)
	}
	return services.GroupOrder{}, errors.New("not implemented")
}

func (s *stubGroupOrderService) RemoveMember(ctx context.Context, cmd services.GroupMemberCommand) (services.GroupOrder, error) {
	if s.removeFn != nil {
		return s.removeFn(ctx, cmd)
	}
	return services.GroupOrder{}, errors.New("not implemented")
}

func (s *stubGroupOrderService) UpdateStatus(ctx context.Context, cmd services.GroupOrderStatusCommand) (services.GroupOrder, error) {
	if s.statusFn != nil {
		return s.statusFn(ctx, cmd)
	}
	return services.GroupOrder{}, errors.New("not implemented")
}

func (s *stubGroupOrderService) CloseExpired(context.Context, int) (int, error) {
	return 0, nil
}

func sampleGroup(id, organizer string, deadline time.Time) services.GroupOrder {
	created := deadline.Add(-72 * time.Hour)
	return services.GroupOrder{
		ID:          id,
		Name:        "CSE fest tees",
		Department:  "cse",
		OrganizerID: organizer,
		Status:      domain.GroupOrderStatusActive,
		Members: []domain.GroupMember{
			{UserID: organizer, Role: domain.GroupMemberRoleAdmin, JoinedAt: created},
			{UserID: "member-1", Role: domain.GroupMemberRoleMember, JoinedAt: created},
		},
		OrderIDs:  []string{"ord-1"},
		Settings:  services.GroupOrderSettings{AllowMemberOrders: true, Deadline: deadline},
		Pricing:   services.Pricing{Subtotal: 100000, Total: 118000},
		Payment:   domain.GroupOrderPayment{Status: domain.PaymentStatusPartial, CollectedAmount: 50000, PendingAmount: 68000},
		IsActive:  true,
		CreatedAt: created,
	}
}

func TestGroupOrderHandlers_Create(t *testing.T) {
	var captured services.CreateGroupOrderCommand
	svc := &stubGroupOrderService{
		createFn: func(_ context.Context, cmd services.CreateGroupOrderCommand) (services.GroupOrder, error) {
			captured = cmd
			return sampleGroup("grp-1", cmd.OrganizerID, cmd.Settings.Deadline), nil
		},
	}
	handler := NewGroupOrderHandlers(Access{}, svc)
	handler.clock = func() time.Time { return time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC) }
	router := NewRouter(WithGroupOrderRoutes(handler.Routes))

	head := &auth.Identity{UID: "head-1", Role: auth.RoleDepartmentHead, Department: "cse"}
	body := `{"name": " CSE fest tees ", "settings": {"deadline": "2024-09-10", "max_order_value": 500000}, "member_ids": [" member-1 ", ""]}`
	rr := serve(t, router, http.MethodPost, "/api/v1/group-orders", body, head)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.OrganizerID != "head-1" || captured.Department != "cse" || captured.Name != "CSE fest tees" {
		t.Fatalf("unexpected command: %#v", captured)
	}
	if !captured.Settings.AllowMemberOrders {
		t.Fatalf("allow_member_orders should default to true")
	}
	if want := time.Date(2024, 9, 10, 0, 0, 0, 0, time.UTC); !captured.Settings.Deadline.Equal(want) {
		t.Fatalf("expected deadline %s, got %s", want, captured.Settings.Deadline)
	}
	if len(captured.MemberIDs) != 1 || captured.MemberIDs[0] != "member-1" {
		t.Fatalf("unexpected member ids: %#v", captured.MemberIDs)
	}

	var resp groupOrderResponse
	decodeResponse(t, rr, &resp)
	if !resp.GroupOrder.IsOpen || resp.GroupOrder.MemberCount != 2 || resp.GroupOrder.OrderCount != 1 {
		t.Fatalf("unexpected payload: %#v", resp.GroupOrder)
	}
	if resp.GroupOrder.Payment.PendingAmount != 68000 {
		t.Fatalf("unexpected payment payload: %#v", resp.GroupOrder.Payment)
	}

	rr = serve(t, router, http.MethodPost, "/api/v1/group-orders", `{"name": "x", "settings": {"deadline": "soon"}}`, head)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad deadline, got %d", rr.Code)
	}
}

func TestGroupOrderHandlers_ListScopesToMembership(t *testing.T) {
	var captured services.GroupOrderListFilter
	svc := &stubGroupOrderService{
		listFn: func(_ context.Context, filter services.GroupOrderListFilter) (domain.CursorPage[services.GroupOrder], error) {
			captured = filter
			return domain.CursorPage[services.GroupOrder]{}, nil
		},
	}
	router := NewRouter(WithGroupOrderRoutes(NewGroupOrderHandlers(Access{}, svc).Routes))

	rr := serve(t, router, http.MethodGet, "/api/v1/group-orders?status=active&department=cse", "", student("user-1"))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if captured.MemberID != "user-1" || captured.Department != "cse" {
		t.Fatalf("unexpected filter: %#v", captured)
	}
	if captured.Status == nil || *captured.Status != domain.GroupOrderStatusActive {
		t.Fatalf("expected active status filter, got %#v", captured.Status)
	}

	rr = serve(t, router, http.MethodGet, "/api/v1/group-orders", "", &auth.Identity{UID: "admin-1", Role: auth.RoleAdmin})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if captured.MemberID != "" {
		t.Fatalf("admins list every group, got member filter %q", captured.MemberID)
	}

	rr = serve(t, router, http.MethodGet, "/api/v1/group-orders?status=archived", "", student("user-1"))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestGroupOrderHandlers_GetHidesForeignGroups(t *testing.T) {
	deadline := time.Now().Add(48 * time.Hour)
	svc := &stubGroupOrderService{
		getFn: func(_ context.Context, groupID string) (services.GroupOrder, error) {
			return sampleGroup(groupID, "head-1", deadline), nil
		},
	}
	router := NewRouter(WithGroupOrderRoutes(NewGroupOrderHandlers(Access{}, svc).Routes))

	rr := serve(t, router, http.MethodGet, "/api/v1/group-orders/grp-1", "", student("member-1"))
	if rr.Code != http.StatusOK {
		t.Fatalf("members should read the group, got %d", rr.Code)
	}

	rr = serve(t, router, http.MethodGet, "/api/v1/group-orders/grp-1", "", student("outsider"))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for outsider, got %d", rr.Code)
	}

	rr = serve(t, router, http.MethodGet, "/api/v1/group-orders/grp-1", "", &auth.Identity{UID: "dist-1", Role: auth.RoleDistributor})
	if rr.Code != http.StatusOK {
		t.Fatalf("staff should read any group, got %d", rr.Code)
	}
}

func TestGroupOrderHandlers_Members(t *testing.T) {
	deadline := time.Now().Add(48 * time.Hour)
	var added, removed services.GroupMemberCommand
	svc := &stubGroupOrderService{
		addFn: func(_ context.Context, cmd services.GroupMemberCommand) (services.GroupOrder, error) {
			added = cmd
			if cmd.ActorID != "head-1" {
				return services.GroupOrder{}, services.ErrGroupOrderForbidden
			}
			return sampleGroup(cmd.GroupID, "head-1", deadline), nil
		},
		removeFn: func(_ context.Context, cmd services.GroupMemberCommand) (services.GroupOrder, error) {
			removed = cmd
			return sampleGroup(cmd.GroupID, "head-1", deadline), nil
		},
	}
	router := NewRouter(WithGroupOrderRoutes(NewGroupOrderHandlers(Access{}, svc).Routes))
	head := &auth.Identity{UID: "head-1", Role: auth.RoleDepartmentHead}

	rr := serve(t, router, http.MethodPost, "/api/v1/group-orders/grp-1/members", `{"user_id": " new-1 ", "role": "ADMIN"}`, head)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if added.UserID != "new-1" || added.Role != domain.GroupMemberRoleAdmin || added.IsStaff {
		t.Fatalf("unexpected add command: %#v", added)
	}

	rr = serve(t, router, http.MethodPost, "/api/v1/group-orders/grp-1/members", `{"user_id": "new-2"}`, &auth.Identity{UID: "head-2", Role: auth.RoleDepartmentHead})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}

	rr = serve(t, router, http.MethodDelete, "/api/v1/group-orders/grp-1/members/member-1", "", &auth.Identity{UID: "admin-1", Role: auth.RoleAdmin})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if removed.UserID != "member-1" || !removed.IsStaff {
		t.Fatalf("unexpected remove command: %#v", removed)
	}
}

type tokenTable map[string]*firebaseauth.Token

func (t tokenTable) VerifyIDToken(_ context.Context, idToken string) (*firebaseauth.Token, error) {
	token, ok := t[idToken]
	if !ok {
		return nil, errors.New("unknown token")
	}
	return token, nil
}

func TestGroupOrderHandlers_PolicyEnforced(t *testing.T) {
	policy, err := authz.New()
	if err != nil {
		t.Fatalf("authz.New: %v", err)
	}
	tokens := tokenTable{
		"student-token": {UID: "user-1", Claims: map[string]any{"role": auth.RoleStudent}},
		"head-token":    {UID: "head-1", Claims: map[string]any{"role": auth.RoleDepartmentHead, "department": "cse"}},
	}
	created := 0
	svc := &stubGroupOrderService{
		createFn: func(_ context.Context, cmd services.CreateGroupOrderCommand) (services.GroupOrder, error) {
			created++
			return sampleGroup("grp-1", cmd.OrganizerID, cmd.Settings.Deadline), nil
		},
	}
	access := Access{Authn: auth.NewAuthenticator(tokens, time.Second), Policy: policy}
	router := NewRouter(WithGroupOrderRoutes(NewGroupOrderHandlers(access, svc).Routes))
	body := `{"name": "tees", "settings": {"deadline": "2030-01-01"}}`

	rr := serve(t, router, http.MethodPost, "/api/v1/group-orders", body, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rr.Code)
	}

	rr = serve(t, router, http.MethodPost, "/api/v1/group-orders", body, nil, "Authorization", "Bearer student-token")
	if rr.Code != http.StatusForbidden {
		t.Fatalf("students may not create group orders, got %d", rr.Code)
	}

	rr = serve(t, router, http.MethodPost, "/api/v1/group-orders", body, nil, "Authorization", "Bearer head-token")
	if rr.Code != http.StatusCreated {
		t.Fatalf("department heads create group orders, got %d: %s", rr.Code, rr.Body.String())
	}
	if created != 1 {
		t.Fatalf("expected one create call, got %d", created)
	}
}
