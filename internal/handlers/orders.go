package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/campus-merch/api/internal/domain"
	"github.com/campus-merch/api/internal/platform/authz"
	"github.com/campus-merch/api/internal/platform/httpx"
	"github.com/campus-merch/api/internal/platform/pagination"
	"github.com/campus-merch/api/internal/services"
)

// OrderHandlers exposes checkout, order reads and the payment hand-off for authenticated users.
type OrderHandlers struct {
	access   Access
	orders   services.OrderService
	payments services.PaymentService
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(access Access, orders services.OrderService, payments services.PaymentService) *OrderHandlers {
	return &OrderHandlers{
		access:   access,
		orders:   orders,
		payments: payments,
	}
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	h.access.authenticate(r)
	r.With(h.access.allow(authz.ResourceOrders, authz.ActionCreate), h.access.idempotent()).Post("/", h.createOrder)
	r.With(h.access.allow(authz.ResourceOrders, authz.ActionRead)).Get("/", h.listOrders)
	r.With(h.access.allow(authz.ResourceOrders, authz.ActionRead)).Get("/{orderID}", h.getOrder)
	r.With(h.access.allow(authz.ResourceOrders, authz.ActionCreate)).Post("/{orderID}:cancel", h.cancelOrder)
	r.With(h.access.allow(authz.ResourcePayments, authz.ActionCreate), h.access.idempotent()).Post("/{orderID}/payments:create", h.createPayment)
	r.With(h.access.allow(authz.ResourcePayments, authz.ActionCreate), h.access.idempotent()).Post("/{orderID}/payments:verify", h.verifyPayment)
}

type createOrderRequest struct {
	Items           []orderItemRequest `json:"items"`
	ShippingAddress addressPayload     `json:"shipping_address"`
	BillingAddress  *addressPayload    `json:"billing_address,omitempty"`
	PaymentMethod   string             `json:"payment_method"`
	GroupOrderID    string             `json:"group_order_id,omitempty"`
	Notes           string             `json:"notes,omitempty"`
}

type orderItemRequest struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Variant   *variantRequest `json:"variant,omitempty"`
}

type variantRequest struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

type createPaymentRequest struct {
	Amount int64 `json:"amount,omitempty"`
}

type verifyPaymentRequest struct {
	GatewayOrderID   string `json:"gateway_order_id"`
	GatewayPaymentID string `json:"gateway_payment_id"`
	Signature        string `json:"signature,omitempty"`
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req createOrderRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	if len(req.Items) == 0 {
		httpx.WriteError(ctx, w, httpx.BadRequest("items must not be empty"))
		return
	}

	cmd := services.CreateOrderCommand{
		UserID:          identity.UID,
		Items:           make([]services.OrderItemInput, 0, len(req.Items)),
		ShippingAddress: req.ShippingAddress.toDomain(),
		PaymentMethod:   domain.PaymentMethod(strings.ToLower(strings.TrimSpace(req.PaymentMethod))),
		GroupOrderID:    strings.TrimSpace(req.GroupOrderID),
		Notes:           strings.TrimSpace(req.Notes),
	}
	if req.BillingAddress != nil {
		billing := req.BillingAddress.toDomain()
		cmd.BillingAddress = &billing
	}
	for _, item := range req.Items {
		input := services.OrderItemInput{
			ProductID: strings.TrimSpace(item.ProductID),
			Quantity:  item.Quantity,
		}
		if item.Variant != nil {
			input.VariantType = domain.VariantType(strings.ToLower(strings.TrimSpace(item.Variant.Type)))
			input.VariantValue = strings.TrimSpace(item.Variant.Value)
		}
		cmd.Items = append(cmd.Items, input)
	}

	order, err := h.orders.CreateOrder(ctx, cmd)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	page, ok := pageParams(w, r)
	if !ok {
		return
	}
	query := r.URL.Query()
	filter := services.OrderListFilter{
		UserID:       identity.UID,
		GroupOrderID: strings.TrimSpace(query.Get("group_order_id")),
		Pagination:   page,
	}
	if identity.IsStaff() {
		filter.UserID = strings.TrimSpace(query.Get("user_id"))
	}
	for _, raw := range pagination.List(query, "status") {
		status := domain.OrderStatus(strings.ToLower(raw))
		if !status.IsValid() {
			httpx.WriteError(ctx, w, httpx.BadRequest("unknown order status "+raw))
			return
		}
		filter.Statuses = append(filter.Statuses, status)
	}

	result, err := h.orders.ListOrders(ctx, filter)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	items := make([]orderSummaryPayload, 0, len(result.Items))
	for _, order := range result.Items {
		items = append(items, buildOrderSummary(order))
	}
	httpx.WriteJSON(w, http.StatusOK, orderListResponse{Items: items, NextPageToken: result.NextPageToken})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	orderID, ok := pathParam(w, r, "orderID", "order id")
	if !ok {
		return
	}
	order, err := h.orders.GetOrder(ctx, orderID, services.OrderReadOptions{
		ActorID: identity.UID,
		IsStaff: identity.IsStaff(),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	orderID, ok := pathParam(w, r, "orderID", "order id")
	if !ok {
		return
	}
	var req cancelOrderRequest
	if !decodeBody(w, r, &req, true) {
		return
	}

	order, err := h.orders.CancelOrder(ctx, services.CancelOrderCommand{
		OrderID: orderID,
		Reason:  strings.TrimSpace(req.Reason),
		ActorID: identity.UID,
		IsStaff: identity.IsAdmin(),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) createPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		serviceUnavailable(ctx, w, "payment")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	orderID, ok := pathParam(w, r, "orderID", "order id")
	if !ok {
		return
	}
	var req createPaymentRequest
	if !decodeBody(w, r, &req, true) {
		return
	}

	paymentOrder, err := h.payments.CreatePaymentOrder(ctx, services.CreatePaymentOrderCommand{
		OrderID:        orderID,
		ActorID:        identity.UID,
		Amount:         req.Amount,
		IdempotencyKey: strings.TrimSpace(r.Header.Get(idempotencyHeader)),
	})
	if err != nil {
		writePaymentError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, paymentOrderResponse{
		OrderID:        paymentOrder.OrderID,
		GatewayOrderID: paymentOrder.GatewayOrderID,
		Amount:         paymentOrder.Amount,
		Currency:       paymentOrder.Currency,
		ClientSecret:   paymentOrder.ClientSecret,
		Signature:      paymentOrder.Signature,
	})
}

func (h *OrderHandlers) verifyPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		serviceUnavailable(ctx, w, "payment")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	orderID, ok := pathParam(w, r, "orderID", "order id")
	if !ok {
		return
	}
	var req verifyPaymentRequest
	if !decodeBody(w, r, &req, false) {
		return
	}

	order, err := h.payments.VerifyPayment(ctx, services.VerifyPaymentCommand{
		OrderID:          orderID,
		ActorID:          identity.UID,
		GatewayOrderID:   strings.TrimSpace(req.GatewayOrderID),
		GatewayPaymentID: strings.TrimSpace(req.GatewayPaymentID),
		Signature:        strings.TrimSpace(req.Signature),
	})
	if err != nil {
		writePaymentError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

type paymentOrderResponse struct {
	OrderID        string `json:"order_id"`
	GatewayOrderID string `json:"gateway_order_id"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	ClientSecret   string `json:"client_secret,omitempty"`
	Signature      string `json:"signature,omitempty"`
}

type orderListResponse struct {
	Items         []orderSummaryPayload `json:"items"`
	NextPageToken string                `json:"next_page_token,omitempty"`
}

type orderSummaryPayload struct {
	ID            string `json:"id"`
	OrderNumber   string `json:"order_number"`
	OrderType     string `json:"order_type"`
	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status"`
	Currency      string `json:"currency"`
	Total         int64  `json:"total"`
	CreatedAt     string `json:"created_at"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type orderPayload struct {
	ID              string                   `json:"id"`
	OrderNumber     string                   `json:"order_number"`
	UserID          string                   `json:"user_id"`
	OrderType       string                   `json:"order_type"`
	GroupOrderID    string                   `json:"group_order_id,omitempty"`
	Status          string                   `json:"status"`
	Currency        string                   `json:"currency"`
	Pricing         pricingPayload           `json:"pricing"`
	Items           []orderItemPayload       `json:"items"`
	ShippingAddress addressPayload           `json:"shipping_address"`
	BillingAddress  addressPayload           `json:"billing_address"`
	Payment         orderPaymentPayload      `json:"payment"`
	Distribution    orderDistributionPayload `json:"distribution"`
	Timeline        []timelinePayload        `json:"timeline,omitempty"`
	Notes           string                   `json:"notes,omitempty"`
	CreatedAt       string                   `json:"created_at"`
	UpdatedAt       string                   `json:"updated_at,omitempty"`
}

type pricingPayload struct {
	Subtotal int64 `json:"subtotal"`
	Discount int64 `json:"discount"`
	Tax      int64 `json:"tax"`
	Shipping int64 `json:"shipping"`
	Total    int64 `json:"total"`
}

type orderItemPayload struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice int64           `json:"unit_price"`
	LineTotal int64           `json:"line_total"`
	Variant   *variantPayload `json:"variant,omitempty"`
}

type variantPayload struct {
	Type          string `json:"type"`
	Value         string `json:"value"`
	PriceModifier int64  `json:"price_modifier"`
}

type addressPayload struct {
	Name       string `json:"name"`
	Phone      string `json:"phone,omitempty"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country,omitempty"`
}

type orderPaymentPayload struct {
	Method         string `json:"method"`
	Status         string `json:"status"`
	GatewayOrderID string `json:"gateway_order_id,omitempty"`
	PaidAt         string `json:"paid_at,omitempty"`
	RefundedAt     string `json:"refunded_at,omitempty"`
	RefundAmount   int64  `json:"refund_amount,omitempty"`
}

type orderDistributionPayload struct {
	Status        string `json:"status"`
	AssignedTo    string `json:"assigned_to,omitempty"`
	Location      string `json:"location,omitempty"`
	ScheduledDate string `json:"scheduled_date,omitempty"`
	DeliveredAt   string `json:"delivered_at,omitempty"`
}

type timelinePayload struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Note      string `json:"note,omitempty"`
	Actor     string `json:"actor,omitempty"`
}

func (a addressPayload) toDomain() domain.Address {
	return domain.Address{
		Name:       strings.TrimSpace(a.Name),
		Phone:      strings.TrimSpace(a.Phone),
		Line1:      strings.TrimSpace(a.Line1),
		Line2:      strings.TrimSpace(a.Line2),
		City:       strings.TrimSpace(a.City),
		State:      strings.TrimSpace(a.State),
		PostalCode: strings.TrimSpace(a.PostalCode),
		Country:    strings.TrimSpace(a.Country),
	}
}

func buildAddressPayload(a domain.Address) addressPayload {
	return addressPayload{
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

func buildPricingPayload(p domain.Pricing) pricingPayload {
	return pricingPayload{
		Subtotal: p.Subtotal,
		Discount: p.Discount,
		Tax:      p.Tax,
		Shipping: p.Shipping,
		Total:    p.Total,
	}
}

func buildTimeline(entries []domain.TimelineEntry) []timelinePayload {
	if len(entries) == 0 {
		return nil
	}
	out := make([]timelinePayload, 0, len(entries))
	for _, entry := range entries {
		out = append(out, timelinePayload{
			Status:    entry.Status,
			Timestamp: formatTime(entry.Timestamp),
			Note:      entry.Note,
			Actor:     entry.Actor,
		})
	}
	return out
}

func buildOrderSummary(order services.Order) orderSummaryPayload {
	return orderSummaryPayload{
		ID:            order.ID,
		OrderNumber:   order.OrderNumber,
		OrderType:     string(order.OrderType),
		Status:        string(order.Status),
		PaymentStatus: string(order.Payment.Status),
		Currency:      domain.DefaultCurrency,
		Total:         order.Pricing.Total,
		CreatedAt:     formatTime(order.CreatedAt),
	}
}

func buildOrderPayload(order services.Order) orderPayload {
	payload := orderPayload{
		ID:              order.ID,
		OrderNumber:     order.OrderNumber,
		UserID:          order.UserID,
		OrderType:       string(order.OrderType),
		GroupOrderID:    order.GroupOrderID,
		Status:          string(order.Status),
		Currency:        domain.DefaultCurrency,
		Pricing:         buildPricingPayload(order.Pricing),
		Items:           make([]orderItemPayload, 0, len(order.Items)),
		ShippingAddress: buildAddressPayload(order.ShippingAddress),
		BillingAddress:  buildAddressPayload(order.BillingAddress),
		Payment: orderPaymentPayload{
			Method:         string(order.Payment.Method),
			Status:         string(order.Payment.Status),
			GatewayOrderID: order.Payment.GatewayOrderID,
			PaidAt:         formatTimePtr(order.Payment.PaidAt),
			RefundedAt:     formatTimePtr(order.Payment.RefundedAt),
			RefundAmount:   order.Payment.RefundAmount,
		},
		Distribution: orderDistributionPayload{
			Status:        string(order.Distribution.Status),
			AssignedTo:    order.Distribution.AssignedTo,
			Location:      order.Distribution.Location,
			ScheduledDate: formatTimePtr(order.Distribution.ScheduledDate),
			DeliveredAt:   formatTimePtr(order.Distribution.DeliveredAt),
		},
		Timeline:  buildTimeline(order.Timeline),
		Notes:     order.Notes,
		CreatedAt: formatTime(order.CreatedAt),
		UpdatedAt: formatTime(order.UpdatedAt),
	}
	for _, item := range order.Items {
		entry := orderItemPayload{
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			LineTotal: item.LineTotal,
		}
		if item.Variant != nil {
			entry.Variant = &variantPayload{
				Type:          string(item.Variant.Type),
				Value:         item.Variant.Value,
				PriceModifier: item.Variant.PriceModifier,
			}
		}
		payload.Items = append(payload.Items, entry)
	}
	return payload
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.BadRequest(err.Error()))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NotFound("order_not_found", "order not found"))
	case errors.Is(err, services.ErrProductNotFound):
		httpx.WriteError(ctx, w, httpx.NotFound("product_not_found", err.Error()))
	case errors.Is(err, services.ErrOrderForbidden):
		httpx.WriteError(ctx, w, httpx.Forbidden("order belongs to another user"))
	case errors.Is(err, services.ErrOrderOutOfStock):
		httpx.WriteError(ctx, w, httpx.Conflict("out_of_stock", err.Error()))
	case errors.Is(err, services.ErrOrderIllegalTransition):
		httpx.WriteError(ctx, w, httpx.Conflict("order_invalid_state", err.Error()))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.Conflict("order_conflict", err.Error()))
	case errors.Is(err, services.ErrGroupOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NotFound("group_order_not_found", "group order not found"))
	case errors.Is(err, services.ErrGroupOrderClosed):
		httpx.WriteError(ctx, w, httpx.Conflict("group_order_closed", err.Error()))
	case errors.Is(err, services.ErrGroupOrderNotMember):
		httpx.WriteError(ctx, w, httpx.Forbidden("not a member of the group order"))
	default:
		httpx.WriteError(ctx, w, httpx.Internal("order_error"))
	}
}

func writePaymentError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrPaymentInvalidInput):
		httpx.WriteError(ctx, w, httpx.BadRequest(err.Error()))
	case errors.Is(err, services.ErrPaymentInvalidSignature):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_signature", "payment signature verification failed", http.StatusBadRequest))
	case errors.Is(err, services.ErrPaymentForbidden):
		httpx.WriteError(ctx, w, httpx.Forbidden("order belongs to another user"))
	case errors.Is(err, services.ErrPaymentAlreadyCompleted):
		httpx.WriteError(ctx, w, httpx.Conflict("payment_already_completed", err.Error()))
	case errors.Is(err, services.ErrPaymentAlreadyRefunded):
		httpx.WriteError(ctx, w, httpx.Conflict("payment_already_refunded", err.Error()))
	case errors.Is(err, services.ErrPaymentNotConfirmed):
		httpx.WriteError(ctx, w, httpx.Conflict("payment_not_confirmed", err.Error()))
	case errors.Is(err, services.ErrPaymentNotCompleted):
		httpx.WriteError(ctx, w, httpx.Conflict("payment_not_completed", err.Error()))
	case errors.Is(err, services.ErrPaymentGatewayUnavailable):
		httpx.WriteError(ctx, w, httpx.Unavailable("payment_gateway_unavailable", "payment gateway unavailable"))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NotFound("order_not_found", "order not found"))
	case errors.Is(err, services.ErrOrderIllegalTransition):
		httpx.WriteError(ctx, w, httpx.Conflict("order_invalid_state", err.Error()))
	default:
		httpx.WriteError(ctx, w, httpx.Internal("payment_error"))
	}
}
