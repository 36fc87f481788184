package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/campus-merch/api/internal/domain"
	"github.com/campus-merch/api/internal/platform/authz"
	"github.com/campus-merch/api/internal/platform/httpx"
	"github.com/campus-merch/api/internal/services"
)

// GroupOrderHandlers exposes department group orders.
type GroupOrderHandlers struct {
	access Access
	groups services.GroupOrderService
	clock  func() time.Time
}

// NewGroupOrderHandlers constructs group order handlers.
func NewGroupOrderHandlers(access Access, groups services.GroupOrderService) *GroupOrderHandlers {
	return &GroupOrderHandlers{access: access, groups: groups, clock: time.Now}
}

// Routes registers the /group-orders endpoints.
func (h *GroupOrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	h.access.authenticate(r)
	r.With(h.access.allow(authz.ResourceGroupOrders, authz.ActionCreate)).Post("/", h.createGroupOrder)
	r.With(h.access.allow(authz.ResourceGroupOrders, authz.ActionRead)).Get("/", h.listGroupOrders)
	r.With(h.access.allow(authz.ResourceGroupOrders, authz.ActionRead)).Get("/{groupID}", h.getGroupOrder)
	r.With(h.access.allow(authz.ResourceGroupOrders, authz.ActionManage)).Post("/{groupID}/members", h.addMember)
	r.With(h.access.allow(authz.ResourceGroupOrders, authz.ActionManage)).Delete("/{groupID}/members/{userID}", h.removeMember)
}

type createGroupOrderRequest struct {
	Name        string               `json:"name"`
	Description string               `json:"description,omitempty"`
	Department  string               `json:"department,omitempty"`
	Settings    groupSettingsRequest `json:"settings"`
	MemberIDs   []string             `json:"member_ids,omitempty"`
}

type groupSettingsRequest struct {
	AllowMemberOrders    *bool  `json:"allow_member_orders,omitempty"`
	RequireApproval      bool   `json:"require_approval,omitempty"`
	MaxOrderValue        int64  `json:"max_order_value,omitempty"`
	Deadline             string `json:"deadline"`
	DistributionDate     string `json:"distribution_date,omitempty"`
	DistributionLocation string `json:"distribution_location,omitempty"`
}

type addMemberRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role,omitempty"`
}

func (h *GroupOrderHandlers) createGroupOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.groups == nil {
		serviceUnavailable(ctx, w, "group_order")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req createGroupOrderRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	deadline, err := parseTimeParam(req.Settings.Deadline)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.BadRequest("settings.deadline must be an RFC3339 timestamp or date"))
		return
	}
	settings := services.GroupOrderSettings{
		AllowMemberOrders:    req.Settings.AllowMemberOrders == nil || *req.Settings.AllowMemberOrders,
		RequireApproval:      req.Settings.RequireApproval,
		MaxOrderValue:        req.Settings.MaxOrderValue,
		Deadline:             deadline,
		DistributionLocation: strings.TrimSpace(req.Settings.DistributionLocation),
	}
	if raw := strings.TrimSpace(req.Settings.DistributionDate); raw != "" {
		date, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.BadRequest("settings.distribution_date must be an RFC3339 timestamp or date"))
			return
		}
		settings.DistributionDate = &date
	}
	department := strings.TrimSpace(req.Department)
	if department == "" {
		department = identity.Department
	}

	group, err := h.groups.CreateGroupOrder(ctx, services.CreateGroupOrderCommand{
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
		Department:  department,
		OrganizerID: identity.UID,
		Settings:    settings,
		MemberIDs:   trimAll(req.MemberIDs),
	})
	if err != nil {
		writeGroupOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, groupOrderResponse{GroupOrder: h.buildPayload(group)})
}

func (h *GroupOrderHandlers) listGroupOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.groups == nil {
		serviceUnavailable(ctx, w, "group_order")
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
	filter := services.GroupOrderListFilter{
		Department: strings.TrimSpace(query.Get("department")),
		Pagination: page,
	}
	if !identity.IsAdmin() {
		filter.MemberID = identity.UID
	}
	if raw := strings.ToLower(strings.TrimSpace(query.Get("status"))); raw != "" {
		status := domain.GroupOrderStatus(raw)
		if !status.IsValid() {
			httpx.WriteError(ctx, w, httpx.BadRequest("unknown group order status "+raw))
			return
		}
		filter.Status = &status
	}

	result, err := h.groups.ListGroupOrders(ctx, filter)
	if err != nil {
		writeGroupOrderError(ctx, w, err)
		return
	}
	items := make([]groupOrderPayload, 0, len(result.Items))
	for _, group := range result.Items {
		items = append(items, h.buildPayload(group))
	}
	httpx.WriteJSON(w, http.StatusOK, groupOrderListResponse{Items: items, NextPageToken: result.NextPageToken})
}

func (h *GroupOrderHandlers) getGroupOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.groups == nil {
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
	group, err := h.groups.GetGroupOrder(ctx, groupID)
	if err != nil {
		writeGroupOrderError(ctx, w, err)
		return
	}
	if !identity.IsStaff() && !group.IsMember(identity.UID) && group.OrganizerID != identity.UID {
		httpx.WriteError(ctx, w, httpx.NotFound("group_order_not_found", "group order not found"))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, groupOrderResponse{GroupOrder: h.buildPayload(group)})
}

func (h *GroupOrderHandlers) addMember(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.groups == nil {
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
	var req addMemberRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	group, err := h.groups.AddMember(ctx, services.GroupMemberCommand{
		GroupID: groupID,
		UserID:  strings.TrimSpace(req.UserID),
		Role:    domain.GroupMemberRole(strings.ToLower(strings.TrimSpace(req.Role))),
		ActorID: identity.UID,
		IsStaff: identity.IsAdmin(),
	})
	if err != nil {
		writeGroupOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, groupOrderResponse{GroupOrder: h.buildPayload(group)})
}

func (h *GroupOrderHandlers) removeMember(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.groups == nil {
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
	userID, ok := pathParam(w, r, "userID", "user id")
	if !ok {
		return
	}
	group, err := h.groups.RemoveMember(ctx, services.GroupMemberCommand{
		GroupID: groupID,
		UserID:  userID,
		ActorID: identity.UID,
		IsStaff: identity.IsAdmin(),
	})
	if err != nil {
		writeGroupOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, groupOrderResponse{GroupOrder: h.buildPayload(group)})
}

type groupOrderResponse struct {
	GroupOrder groupOrderPayload `json:"group_order"`
}

type groupOrderListResponse struct {
	Items         []groupOrderPayload `json:"items"`
	NextPageToken string              `json:"next_page_token,omitempty"`
}

type groupOrderPayload struct {
	ID          string               `json:"id"`
	Name        string               `json:"name"`
	Description string               `json:"description,omitempty"`
	Department  string               `json:"department"`
	OrganizerID string               `json:"organizer_id"`
	Status      string               `json:"status"`
	IsOpen      bool                 `json:"is_open"`
	Members     []groupMemberPayload `json:"members"`
	MemberCount int                  `json:"member_count"`
	OrderIDs    []string             `json:"order_ids"`
	OrderCount  int                  `json:"order_count"`
	Settings    groupSettingsPayload `json:"settings"`
	Pricing     pricingPayload       `json:"pricing"`
	Payment     groupPaymentPayload  `json:"payment"`
	CreatedAt   string               `json:"created_at"`
	UpdatedAt   string               `json:"updated_at,omitempty"`
}

type groupMemberPayload struct {
	UserID   string `json:"user_id"`
	Role     string `json:"role"`
	JoinedAt string `json:"joined_at"`
}

type groupSettingsPayload struct {
	AllowMemberOrders    bool   `json:"allow_member_orders"`
	RequireApproval      bool   `json:"require_approval"`
	MaxOrderValue        int64  `json:"max_order_value,omitempty"`
	Deadline             string `json:"deadline"`
	DistributionDate     string `json:"distribution_date,omitempty"`
	DistributionLocation string `json:"distribution_location,omitempty"`
}

type groupPaymentPayload struct {
	Status          string `json:"status"`
	CollectedAmount int64  `json:"collected_amount"`
	PendingAmount   int64  `json:"pending_amount"`
}

func (h *GroupOrderHandlers) buildPayload(group services.GroupOrder) groupOrderPayload {
	payload := buildGroupOrderPayload(group)
	payload.IsOpen = group.IsOpen(h.clock())
	return payload
}

func buildGroupOrderPayload(group services.GroupOrder) groupOrderPayload {
	payload := groupOrderPayload{
		ID:          group.ID,
		Name:        group.Name,
		Description: group.Description,
		Department:  group.Department,
		OrganizerID: group.OrganizerID,
		Status:      string(group.Status),
		Members:     make([]groupMemberPayload, 0, len(group.Members)),
		MemberCount: group.MemberCount(),
		OrderIDs:    append([]string{}, group.OrderIDs...),
		OrderCount:  group.OrderCount(),
		Settings: groupSettingsPayload{
			AllowMemberOrders:    group.Settings.AllowMemberOrders,
			RequireApproval:      group.Settings.RequireApproval,
			MaxOrderValue:        group.Settings.MaxOrderValue,
			Deadline:             formatTime(group.Settings.Deadline),
			DistributionDate:     formatTimePtr(group.Settings.DistributionDate),
			DistributionLocation: group.Settings.DistributionLocation,
		},
		Pricing: buildPricingPayload(group.Pricing),
		Payment: groupPaymentPayload{
			Status:          string(group.Payment.Status),
			CollectedAmount: group.Payment.CollectedAmount,
			PendingAmount:   group.Payment.PendingAmount,
		},
		CreatedAt: formatTime(group.CreatedAt),
		UpdatedAt: formatTime(group.UpdatedAt),
	}
	for _, member := range group.Members {
		payload.Members = append(payload.Members, groupMemberPayload{
			UserID:   member.UserID,
			Role:     string(member.Role),
			JoinedAt: formatTime(member.JoinedAt),
		})
	}
	return payload
}

func writeGroupOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrGroupOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.BadRequest(err.Error()))
	case errors.Is(err, services.ErrGroupOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NotFound("group_order_not_found", "group order not found"))
	case errors.Is(err, services.ErrGroupOrderForbidden):
		httpx.WriteError(ctx, w, httpx.Forbidden("only group admins may change this group order"))
	case errors.Is(err, services.ErrGroupOrderNotMember):
		httpx.WriteError(ctx, w, httpx.Forbidden("not a member of the group order"))
	case errors.Is(err, services.ErrGroupOrderClosed):
		httpx.WriteError(ctx, w, httpx.Conflict("group_order_closed", err.Error()))
	case errors.Is(err, services.ErrGroupOrderIllegalTransition):
		httpx.WriteError(ctx, w, httpx.Conflict("group_order_invalid_state", err.Error()))
	case errors.Is(err, services.ErrGroupOrderConflict):
		httpx.WriteError(ctx, w, httpx.Conflict("group_order_conflict", err.Error()))
	default:
		httpx.WriteError(ctx, w, httpx.Internal("group_order_error"))
	}
}
