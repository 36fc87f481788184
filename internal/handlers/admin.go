package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/campus-merch/api/internal/domain"
	"github.com/campus-merch/api/internal/platform/authz"
	"github.com/campus-merch/api/internal/platform/httpx"
	"github.com/campus-merch/api/internal/services"
)

// AdminServices are the services behind the /admin group. Nil members answer 503.
type AdminServices struct {
	Catalog       services.CatalogService
	Orders        services.OrderService
	Payments      services.PaymentService
	GroupOrders   services.GroupOrderService
	Distributions services.DistributionService
	Reviews       services.ReviewService
}

// AdminHandlers exposes catalog management, status overrides, refunds, moderation and stats.
type AdminHandlers struct {
	access Access
	svc    AdminServices
}

// NewAdminHandlers constructs admin handlers.
func NewAdminHandlers(access Access, svc AdminServices) *AdminHandlers {
	return &AdminHandlers{access: access, svc: svc}
}

// Routes registers the /admin endpoints.
func (h *AdminHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	h.access.authenticate(r)
	a := h.access

	r.Route("/products", func(rt chi.Router) {
		rt.Use(a.allow(authz.ResourceProducts, authz.ActionManage))
		rt.Get("/", h.listProducts)
		rt.Post("/", h.createProduct)
		rt.Get("/{productID}", h.getProduct)
		rt.Put("/{productID}", h.updateProduct)
		rt.Delete("/{productID}", h.deleteProduct)
	})
	r.With(a.allow(authz.ResourceOrders, authz.ActionManage)).Put("/orders/{orderID}/status", h.updateOrderStatus)
	r.With(a.allow(authz.ResourcePayments, authz.ActionRefund), a.idempotent()).Post("/orders/{orderID}:refund", h.refundOrder)
	r.With(a.allow(authz.ResourceGroupOrders, authz.ActionManage)).Put("/group-orders/{groupID}/status", h.updateGroupOrderStatus)
	r.With(a.allow(authz.ResourceReviews, authz.ActionModerate)).Put("/reviews/{reviewID}/status", h.moderateReview)
	r.Route("/stats", func(rt chi.Router) {
		rt.Use(a.allow(authz.ResourceStats, authz.ActionRead))
		rt.Get("/orders", h.orderStats)
		rt.Get("/payments", h.paymentStats)
		rt.Get("/distributions", h.distributionStats)
	})
}

type refundRequest struct {
	Amount int64  `json:"amount,omitempty"`
	Reason string `json:"reason"`
}

type moderateReviewRequest struct {
	Status   string `json:"status"`
	Response string `json:"response,omitempty"`
}

func (h *AdminHandlers) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.svc.Orders == nil {
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
	var req statusRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	status := domain.OrderStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	if !status.IsValid() {
		httpx.WriteError(ctx, w, httpx.BadRequest("unknown order status "+req.Status))
		return
	}
	order, err := h.svc.Orders.AdvanceStatus(ctx, services.OrderStatusCommand{
		OrderID: orderID,
		Status:  status,
		Note:    strings.TrimSpace(req.Note),
		ActorID: identity.UID,
	})
	if err != nil {
		if status == domain.OrderStatusRefunded {
			writePaymentError(ctx, w, err)
			return
		}
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *AdminHandlers) refundOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.svc.Payments == nil {
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
	var req refundRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	order, err := h.svc.Payments.Refund(ctx, services.RefundCommand{
		OrderID:        orderID,
		Amount:         req.Amount,
		Reason:         strings.TrimSpace(req.Reason),
		ActorID:        identity.UID,
		IdempotencyKey: strings.TrimSpace(r.Header.Get(idempotencyHeader)),
	})
	if err != nil {
		writePaymentError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *AdminHandlers) updateGroupOrderStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.svc.GroupOrders == nil {
		serviceUnavailable(ctx, w, "group_order")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	groupID, ok := pathParam(w, r, "groupID", "group order id")
	if !ok {
		return
	}
	var req statusRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	status := domain.GroupOrderStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	if !status.IsValid() {
		httpx.WriteError(ctx, w, httpx.BadRequest("unknown group order status "+req.Status))
		return
	}
	group, err := h.svc.GroupOrders.UpdateStatus(ctx, services.GroupOrderStatusCommand{
		GroupID: groupID,
		Status:  status,
		ActorID: identity.UID,
	})
	if err != nil {
		writeGroupOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, groupOrderResponse{GroupOrder: buildGroupOrderPayload(group)})
}

func (h *AdminHandlers) moderateReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.svc.Reviews == nil {
		serviceUnavailable(ctx, w, "review")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	reviewID, ok := pathParam(w, r, "reviewID", "review id")
	if !ok {
		return
	}
	var req moderateReviewRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	review, err := h.svc.Reviews.ModerateReview(ctx, services.ModerateReviewCommand{
		ReviewID: reviewID,
		Status:   domain.ReviewStatus(strings.ToLower(strings.TrimSpace(req.Status))),
		Response: strings.TrimSpace(req.Response),
		ActorID:  identity.UID,
	})
	if err != nil {
		writeReviewError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, reviewResponse{Review: buildReviewPayload(review)})
}

type statusBucketPayload struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
	Amount int64  `json:"amount,omitempty"`
}

type orderStatsResponse struct {
	TotalOrders  int                   `json:"total_orders"`
	TotalRevenue int64                 `json:"total_revenue"`
	Currency     string                `json:"currency"`
	ByStatus     []statusBucketPayload `json:"by_status"`
	GeneratedAt  string                `json:"generated_at"`
}

type paymentStatsResponse struct {
	CompletedRevenue int64                 `json:"completed_revenue"`
	RefundedAmount   int64                 `json:"refunded_amount"`
	Currency         string                `json:"currency"`
	ByStatus         []statusBucketPayload `json:"by_status"`
	GeneratedAt      string                `json:"generated_at"`
}

type distributionStatsResponse struct {
	ByStatus []statusBucketPayload `json:"by_status"`
}

func buildBuckets(buckets []domain.StatusBucket) []statusBucketPayload {
	out := make([]statusBucketPayload, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, statusBucketPayload{Status: b.Status, Count: b.Count, Amount: b.Amount})
	}
	return out
}

func (h *AdminHandlers) orderStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.svc.Orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	stats, err := h.svc.Orders.Statistics(ctx)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderStatsResponse{
		TotalOrders:  stats.TotalOrders,
		TotalRevenue: stats.TotalRevenue,
		Currency:     domain.DefaultCurrency,
		ByStatus:     buildBuckets(stats.ByStatus),
		GeneratedAt:  formatTime(stats.GeneratedAt),
	})
}

func (h *AdminHandlers) paymentStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.svc.Payments == nil {
		serviceUnavailable(ctx, w, "payment")
		return
	}
	stats, err := h.svc.Payments.Statistics(ctx)
	if err != nil {
		writePaymentError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, paymentStatsResponse{
		CompletedRevenue: stats.CompletedRevenue,
		RefundedAmount:   stats.RefundedAmount,
		Currency:         domain.DefaultCurrency,
		ByStatus:         buildBuckets(stats.ByStatus),
		GeneratedAt:      formatTime(stats.GeneratedAt),
	})
}

func (h *AdminHandlers) distributionStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.svc.Distributions == nil {
		serviceUnavailable(ctx, w, "distribution")
		return
	}
	buckets, err := h.svc.Distributions.Statistics(ctx)
	if err != nil {
		writeDistributionError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, distributionStatsResponse{ByStatus: buildBuckets(buckets)})
}
