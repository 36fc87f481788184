package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	domain "github.com/campus-merch/api/internal/domain"
	"github.com/campus-merch/api/internal/platform/auth"
	"github.com/campus-merch/api/internal/services"
)

type stubOrderService struct {
	createFn  func(context.Context, services.CreateOrderCommand) (services.Order, error)
	getFn     func(context.Context, string, services.OrderReadOptions) (services.Order, error)
	listFn    func(context.Context, services.OrderListFilter) (domain.CursorPage[services.Order], error)
	advanceFn func(context.Context, services.OrderStatusCommand) (services.Order, error)
	cancelFn  func(context.Context, services.CancelOrderCommand) (services.Order, error)
	statsFn   func(context.Context) (services.OrderStatistics, error)
}

func (s *stubOrderService) CreateOrder(ctx context.Context, cmd services.CreateOrderCommand) (services.Order, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) GetOrder(ctx context.Context, orderID string, opts services.OrderReadOptions) (services.Order, error) {
	if s.getFn != nil {
		return s.getFn(ctx, orderID, opts)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) ListOrders(ctx context.Context, filter services.OrderListFilter) (domain.CursorPage[services.Order], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.CursorPage[services.Order]{}, nil
}

func (s *stubOrderService) AdvanceStatus(ctx context.Context, cmd services.OrderStatusCommand) (services.Order, error) {
	if s.advanceFn != nil {
		return s.advanceFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) CancelOrder(ctx context.Context, cmd services.CancelOrderCommand) (services.Order, error) {
	if s.cancelFn != nil {
		return s.cancelFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) Statistics(ctx context.Context) (services.OrderStatistics, error) {
	if s.statsFn != nil {
		return s.statsFn(ctx)
	}
	return services.OrderStatistics{}, nil
}

type stubPaymentService struct {
	createFn func(context.Context, services.CreatePaymentOrderCommand) (services.PaymentOrder, error)
	verifyFn func(context.Context, services.VerifyPaymentCommand) (services.Order, error)
	applyFn  func(context.Context, services.GatewayEvent) error
	refundFn func(context.Context, services.RefundCommand) (services.Order, error)
	statsFn  func(context.Context) (services.PaymentStatistics, error)
}

func (s *stubPaymentService) CreatePaymentOrder(ctx context.Context, cmd services.CreatePaymentOrderCommand) (services.PaymentOrder, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return services.PaymentOrder{}, errors.New("not implemented")
}

func (s *stubPaymentService) VerifyPayment(ctx context.Context, cmd services.VerifyPaymentCommand) (services.Order, error) {
	if s.verifyFn != nil {
		return s.verifyFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubPaymentService) ApplyGatewayEvent(ctx context.Context, event services.GatewayEvent) error {
	if s.applyFn != nil {
		return s.applyFn(ctx, event)
	}
	return nil
}

func (s *stubPaymentService) Refund(ctx context.Context, cmd services.RefundCommand) (services.Order, error) {
	if s.refundFn != nil {
		return s.refundFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubPaymentService) Statistics(ctx context.Context) (services.PaymentStatistics, error) {
	if s.statsFn != nil {
		return s.statsFn(ctx)
	}
	return services.PaymentStatistics{}, nil
}

// serve runs a request through router as identity. A nil identity sends an anonymous request.
func serve(t *testing.T, router http.Handler, method, path, body string, identity *auth.Identity, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	if identity != nil {
		req = req.WithContext(auth.WithIdentity(req.Context(), identity))
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func decodeResponse(t *testing.T, rr *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), dst); err != nil {
		t.Fatalf("failed to decode response %q: %v", rr.Body.String(), err)
	}
}

func errorCodeOf(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	decodeResponse(t, rr, &body)
	code, _ := body["error"].(string)
	return code
}

func student(uid string) *auth.Identity {
	return &auth.Identity{UID: uid, Role: auth.RoleStudent, Department: "cse"}
}

func sampleOrder(id, userID string) services.Order {
	created := time.Date(2024, 8, 1, 10, 0, 0, 0, time.UTC)
	return services.Order{
		ID:          id,
		OrderNumber: "ORD-20240801-0001",
		UserID:      userID,
		OrderType:   domain.OrderTypeIndividual,
		Status:      domain.OrderStatusPending,
		Items: []services.OrderItem{{
			ProductID: "prod-hoodie",
			Name:      "Campus Hoodie",
			Quantity:  2,
			UnitPrice: 120000,
			LineTotal: 240000,
			Variant:   &domain.OrderVariant{Type: domain.VariantType("size"), Value: "M"},
		}},
		Pricing: services.Pricing{Subtotal: 240000, Tax: 43200, Total: 283200},
		Payment: domain.OrderPayment{Method: domain.PaymentMethodUPI, Status: domain.PaymentStatusPending},
		Timeline: []domain.TimelineEntry{
			{Status: string(domain.OrderStatusPending), Timestamp: created, Actor: userID},
		},
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestOrderHandlers_CreateOrder(t *testing.T) {
	var captured services.CreateOrderCommand
	svc := &stubOrderService{
		createFn: func(_ context.Context, cmd services.CreateOrderCommand) (services.Order, error) {
			captured = cmd
			return sampleOrder("ord-1", cmd.UserID), nil
		},
	}
	router := NewRouter(WithOrderRoutes(NewOrderHandlers(Access{}, svc, nil).Routes))

	body := `{
		"items": [{"product_id": " prod-hoodie ", "quantity": 2, "variant": {"type": "SIZE", "value": "M"}}],
		"shipping_address": {"name": "Asha", "line1": "Hostel 4", "city": "Pune", "postal_code": "411001"},
		"payment_method": "UPI",
		"group_order_id": " grp-1 "
	}`
	rr := serve(t, router, http.MethodPost, "/api/v1/orders", body, student("user-1"))

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.UserID != "user-1" {
		t.Fatalf("expected user id from identity, got %q", captured.UserID)
	}
	if captured.PaymentMethod != domain.PaymentMethodUPI || captured.GroupOrderID != "grp-1" {
		t.Fatalf("unexpected command: %#v", captured)
	}
	if len(captured.Items) != 1 || captured.Items[0].ProductID != "prod-hoodie" || captured.Items[0].VariantType != "size" {
		t.Fatalf("unexpected items: %#v", captured.Items)
	}
	if captured.ShippingAddress.City != "Pune" || captured.BillingAddress != nil {
		t.Fatalf("unexpected addresses: %#v", captured)
	}

	var resp orderResponse
	decodeResponse(t, rr, &resp)
	if resp.Order.ID != "ord-1" || resp.Order.Pricing.Total != 283200 || resp.Order.Currency != domain.DefaultCurrency {
		t.Fatalf("unexpected payload: %#v", resp.Order)
	}
	if len(resp.Order.Items) != 1 || resp.Order.Items[0].Variant == nil || resp.Order.Items[0].Variant.Value != "M" {
		t.Fatalf("expected variant in payload: %#v", resp.Order.Items)
	}
	if resp.Order.CreatedAt != "2024-08-01T10:00:00Z" {
		t.Fatalf("unexpected created_at %q", resp.Order.CreatedAt)
	}
}

func TestOrderHandlers_CreateOrderValidation(t *testing.T) {
	router := NewRouter(WithOrderRoutes(NewOrderHandlers(Access{}, &stubOrderService{}, nil).Routes))

	rr := serve(t, router, http.MethodPost, "/api/v1/orders", `{"items": []}`, student("user-1"))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty items, got %d", rr.Code)
	}

	rr = serve(t, router, http.MethodPost, "/api/v1/orders", `{"items": [{"product_id": "p", "quantity": 1}]}`, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without identity, got %d", rr.Code)
	}
}

func TestOrderHandlers_CreateOrderErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"out of stock", fmt.Errorf("%w: hoodie", services.ErrOrderOutOfStock), http.StatusConflict, "out_of_stock"},
		{"group closed", services.ErrGroupOrderClosed, http.StatusConflict, "group_order_closed"},
		{"not member", services.ErrGroupOrderNotMember, http.StatusForbidden, "forbidden"},
		{"invalid", fmt.Errorf("%w: quantity", services.ErrOrderInvalidInput), http.StatusBadRequest, "invalid_request"},
		{"unknown product", services.ErrProductNotFound, http.StatusNotFound, "product_not_found"},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, "order_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubOrderService{
				createFn: func(context.Context, services.CreateOrderCommand) (services.Order, error) {
					return services.Order{}, tc.err
				},
			}
			router := NewRouter(WithOrderRoutes(NewOrderHandlers(Access{}, svc, nil).Routes))
			rr := serve(t, router, http.MethodPost, "/api/v1/orders", `{"items": [{"product_id": "p", "quantity": 1}]}`, student("user-1"))
			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rr.Code)
			}
			if code := errorCodeOf(t, rr); code != tc.code {
				t.Fatalf("expected code %s, got %s", tc.code, code)
			}
		})
	}
}

func TestOrderHandlers_ListOrdersScopesStudents(t *testing.T) {
	var captured services.OrderListFilter
	svc := &stubOrderService{
		listFn: func(_ context.Context, filter services.OrderListFilter) (domain.CursorPage[services.Order], error) {
			captured = filter
			return domain.CursorPage[services.Order]{
				Items:         []services.Order{sampleOrder("ord-1", "user-1")},
				NextPageToken: "next",
			}, nil
		},
	}
	router := NewRouter(WithOrderRoutes(NewOrderHandlers(Access{}, svc, nil).Routes))

	rr := serve(t, router, http.MethodGet, "/api/v1/orders?user_id=someone-else&status=pending,shipped&pageSize=5", "", student("user-1"))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.UserID != "user-1" {
		t.Fatalf("students must only list their own orders, got %q", captured.UserID)
	}
	if len(captured.Statuses) != 2 || captured.Statuses[1] != domain.OrderStatusShipped {
		t.Fatalf("unexpected statuses: %#v", captured.Statuses)
	}
	if captured.Pagination.PageSize != 5 {
		t.Fatalf("expected page size 5, got %d", captured.Pagination.PageSize)
	}
	var resp orderListResponse
	decodeResponse(t, rr, &resp)
	if len(resp.Items) != 1 || resp.NextPageToken != "next" || resp.Items[0].Total != 283200 {
		t.Fatalf("unexpected list payload: %#v", resp)
	}

	admin := &auth.Identity{UID: "admin-1", Role: auth.RoleAdmin}
	rr = serve(t, router, http.MethodGet, "/api/v1/orders?user_id=user-9", "", admin)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d", rr.Code)
	}
	if captured.UserID != "user-9" {
		t.Fatalf("expected admin filter to pass through, got %q", captured.UserID)
	}

	rr = serve(t, router, http.MethodGet, "/api/v1/orders?status=lost", "", student("user-1"))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", rr.Code)
	}
}

func TestOrderHandlers_GetOrderPassesOwnership(t *testing.T) {
	var captured services.OrderReadOptions
	svc := &stubOrderService{
		getFn: func(_ context.Context, orderID string, opts services.OrderReadOptions) (services.Order, error) {
			captured = opts
			if orderID == "missing" {
				return services.Order{}, services.ErrOrderNotFound
			}
			return sampleOrder(orderID, "user-1"), nil
		},
	}
	router := NewRouter(WithOrderRoutes(NewOrderHandlers(Access{}, svc, nil).Routes))

	distributor := &auth.Identity{UID: "dist-1", Role: auth.RoleDistributor}
	rr := serve(t, router, http.MethodGet, "/api/v1/orders/ord-1", "", distributor)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if captured.ActorID != "dist-1" || !captured.IsStaff {
		t.Fatalf("unexpected read options: %#v", captured)
	}

	rr = serve(t, router, http.MethodGet, "/api/v1/orders/missing", "", student("user-1"))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestOrderHandlers_CancelOrder(t *testing.T) {
	var captured services.CancelOrderCommand
	svc := &stubOrderService{
		cancelFn: func(_ context.Context, cmd services.CancelOrderCommand) (services.Order, error) {
			captured = cmd
			if cmd.OrderID == "shipped" {
				return services.Order{}, fmt.Errorf("%w: already shipped", services.ErrOrderIllegalTransition)
			}
			order := sampleOrder(cmd.OrderID, cmd.ActorID)
			order.Status = domain.OrderStatusCancelled
			return order, nil
		},
	}
	router := NewRouter(WithOrderRoutes(NewOrderHandlers(Access{}, svc, nil).Routes))

	rr := serve(t, router, http.MethodPost, "/api/v1/orders/ord-1:cancel", `{"reason": " changed my mind "}`, student("user-1"))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.Reason != "changed my mind" || captured.IsStaff {
		t.Fatalf("unexpected cancel command: %#v", captured)
	}

	rr = serve(t, router, http.MethodPost, "/api/v1/orders/shipped:cancel", "", student("user-1"))
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	if code := errorCodeOf(t, rr); code != "order_invalid_state" {
		t.Fatalf("expected order_invalid_state, got %s", code)
	}
}

func TestOrderHandlers_CreatePayment(t *testing.T) {
	var captured services.CreatePaymentOrderCommand
	payments := &stubPaymentService{
		createFn: func(_ context.Context, cmd services.CreatePaymentOrderCommand) (services.PaymentOrder, error) {
			captured = cmd
			return services.PaymentOrder{
				OrderID:        cmd.OrderID,
				GatewayOrderID: "pi_123",
				Amount:         283200,
				Currency:       domain.DefaultCurrency,
				ClientSecret:   "secret_abc",
			}, nil
		},
	}
	router := NewRouter(WithOrderRoutes(NewOrderHandlers(Access{}, &stubOrderService{}, payments).Routes))

	rr := serve(t, router, http.MethodPost, "/api/v1/orders/ord-1/payments:create", "", student("user-1"), idempotencyHeader, " key-1 ")
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.OrderID != "ord-1" || captured.ActorID != "user-1" || captured.IdempotencyKey != "key-1" {
		t.Fatalf("unexpected payment command: %#v", captured)
	}
	var resp paymentOrderResponse
	decodeResponse(t, rr, &resp)
	if resp.GatewayOrderID != "pi_123" || resp.ClientSecret != "secret_abc" {
		t.Fatalf("unexpected payment payload: %#v", resp)
	}
}

func TestOrderHandlers_VerifyPayment(t *testing.T) {
	payments := &stubPaymentService{
		verifyFn: func(_ context.Context, cmd services.VerifyPaymentCommand) (services.Order, error) {
			switch cmd.Signature {
			case "good":
			case "unsettled":
				return services.Order{}, services.ErrPaymentNotConfirmed
			default:
				return services.Order{}, services.ErrPaymentInvalidSignature
			}
			order := sampleOrder(cmd.OrderID, cmd.ActorID)
			order.Status = domain.OrderStatusConfirmed
			order.Payment.Status = domain.PaymentStatusCompleted
			return order, nil
		},
	}
	router := NewRouter(WithOrderRoutes(NewOrderHandlers(Access{}, &stubOrderService{}, payments).Routes))

	rr := serve(t, router, http.MethodPost, "/api/v1/orders/ord-1/payments:verify",
		`{"gateway_order_id": "pi_123", "gateway_payment_id": "ch_1", "signature": "good"}`, student("user-1"))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp orderResponse
	decodeResponse(t, rr, &resp)
	if resp.Order.Status != string(domain.OrderStatusConfirmed) || resp.Order.Payment.Status != string(domain.PaymentStatusCompleted) {
		t.Fatalf("unexpected order payload: %#v", resp.Order)
	}

	rr = serve(t, router, http.MethodPost, "/api/v1/orders/ord-1/payments:verify",
		`{"gateway_order_id": "pi_123", "gateway_payment_id": "ch_1", "signature": "forged"}`, student("user-1"))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if code := errorCodeOf(t, rr); code != "invalid_signature" {
		t.Fatalf("expected invalid_signature, got %s", code)
	}

	rr = serve(t, router, http.MethodPost, "/api/v1/orders/ord-1/payments:verify",
		`{"gateway_order_id": "pi_123", "signature": "unsettled"}`, student("user-1"))
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	if code := errorCodeOf(t, rr); code != "payment_not_confirmed" {
		t.Fatalf("expected payment_not_confirmed, got %s", code)
	}
}

func TestOrderHandlers_ServiceUnavailable(t *testing.T) {
	router := NewRouter(WithOrderRoutes(NewOrderHandlers(Access{}, nil, nil).Routes))

	rr := serve(t, router, http.MethodGet, "/api/v1/orders", "", student("user-1"))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	if code := errorCodeOf(t, rr); code != "order_service_unavailable" {
		t.Fatalf("unexpected code %s", code)
	}
}
