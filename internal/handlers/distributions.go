package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/campus-merch/api/internal/domain"
	"github.com/campus-merch/api/internal/platform/auth"
	"github.com/campus-merch/api/internal/platform/authz"
	"github.com/campus-merch/api/internal/platform/httpx"
	"github.com/campus-merch/api/internal/platform/pagination"
	"github.com/campus-merch/api/internal/services"
)

// DistributionHandlers exposes fulfillment tracking to distributors and admins. Distributors only
// see and act on the assignments they hold.
type DistributionHandlers struct {
	access        Access
	distributions services.DistributionService
}

// NewDistributionHandlers constructs distribution handlers.
func NewDistributionHandlers(access Access, distributions services.DistributionService) *DistributionHandlers {
	return &DistributionHandlers{access: access, distributions: distributions}
}

// Routes registers the /distributions endpoints.
func (h *DistributionHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	h.access.authenticate(r)
	read := h.access.allow(authz.ResourceDistributions, authz.ActionRead)
	deliver := h.access.allow(authz.ResourceDistributions, authz.ActionDeliver)
	manage := h.access.allow(authz.ResourceDistributions, authz.ActionManage)

	r.With(manage).Post("/", h.createDistribution)
	r.With(read).Get("/", h.listDistributions)
	r.With(read).Get("/overdue", h.listOverdue)
	r.With(read).Get("/{distributionID}", h.getDistribution)
	r.With(deliver).Put("/{distributionID}/status", h.updateStatus)
	r.With(deliver).Put("/{distributionID}/items/{itemID}/status", h.updateItemStatus)
	r.With(deliver).Post("/{distributionID}/proof", h.recordProof)
	r.With(deliver).Post("/{distributionID}/proof:upload-url", h.proofUploadURL)
	r.With(manage).Post("/{distributionID}:cancel", h.cancelDistribution)
}

type createDistributionRequest struct {
	OrderID       string          `json:"order_id"`
	AssignedTo    string          `json:"assigned_to"`
	Location      locationPayload `json:"location"`
	ScheduledDate string          `json:"scheduled_date"`
	Carrier       string          `json:"carrier,omitempty"`
	Notes         string          `json:"notes,omitempty"`
}

type statusRequest struct {
	Status string `json:"status"`
	Note   string `json:"note,omitempty"`
}

type itemStatusRequest struct {
	Status string `json:"status"`
	Notes  string `json:"notes,omitempty"`
}

type deliveryProofRequest struct {
	Signature     string `json:"signature,omitempty"`
	ImageURL      string `json:"image_url,omitempty"`
	ReceiverName  string `json:"receiver_name"`
	ReceiverPhone string `json:"receiver_phone,omitempty"`
}

type proofUploadRequest struct {
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

func (h *DistributionHandlers) createDistribution(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.distributions == nil {
		serviceUnavailable(ctx, w, "distribution")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req createDistributionRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	scheduled, err := parseTimeParam(req.ScheduledDate)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.BadRequest("scheduled_date must be an RFC3339 timestamp or date"))
		return
	}
	dist, err := h.distributions.CreateAssignment(ctx, services.CreateDistributionCommand{
		OrderID:       strings.TrimSpace(req.OrderID),
		AssignedTo:    strings.TrimSpace(req.AssignedTo),
		Location:      domain.DistributionLocation{Name: req.Location.Name, Address: req.Location.Address, Contact: req.Location.Contact},
		ScheduledDate: scheduled,
		Carrier:       strings.TrimSpace(req.Carrier),
		Notes:         strings.TrimSpace(req.Notes),
		ActorID:       identity.UID,
	})
	if err != nil {
		writeDistributionError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, distributionResponse{Distribution: buildDistributionPayload(dist)})
}

func (h *DistributionHandlers) listDistributions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.distributions == nil {
		serviceUnavailable(ctx, w, "distribution")
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
	filter := services.DistributionListFilter{
		AssignedTo:   strings.TrimSpace(query.Get("assigned_to")),
		GroupOrderID: strings.TrimSpace(query.Get("group_order_id")),
		Pagination:   page,
	}
	if !identity.IsAdmin() {
		filter.AssignedTo = identity.UID
	}
	for _, raw := range pagination.List(query, "status") {
		status := domain.DistributionStatus(strings.ToLower(raw))
		if !status.IsValid() {
			httpx.WriteError(ctx, w, httpx.BadRequest("unknown distribution status "+raw))
			return
		}
		filter.Statuses = append(filter.Statuses, status)
	}

	result, err := h.distributions.ListDistributions(ctx, filter)
	if err != nil {
		writeDistributionError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, distributionListResponse{
		Items:         buildDistributionPayloads(result.Items),
		NextPageToken: result.NextPageToken,
	})
}

func (h *DistributionHandlers) listOverdue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.distributions == nil {
		serviceUnavailable(ctx, w, "distribution")
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
	overdue, err := h.distributions.ListOverdue(ctx, page.PageSize)
	if err != nil {
		writeDistributionError(ctx, w, err)
		return
	}
	if !identity.IsAdmin() {
		mine := overdue[:0]
		for _, dist := range overdue {
			if dist.AssignedTo == identity.UID {
				mine = append(mine, dist)
			}
		}
		overdue = mine
	}
	httpx.WriteJSON(w, http.StatusOK, distributionListResponse{Items: buildDistributionPayloads(overdue)})
}

func (h *DistributionHandlers) getDistribution(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.distributions == nil {
		serviceUnavailable(ctx, w, "distribution")
		return
	}
	dist, _, ok := h.load(w, r)
	if !ok {
		return
	}
	httpx.WriteJSON(w, http.StatusOK, distributionResponse{Distribution: buildDistributionPayload(dist)})
}

func (h *DistributionHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.distributions == nil {
		serviceUnavailable(ctx, w, "distribution")
		return
	}
	dist, identity, ok := h.load(w, r)
	if !ok {
		return
	}
	var req statusRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	updated, err := h.distributions.UpdateStatus(ctx, services.DistributionStatusCommand{
		DistributionID: dist.ID,
		Status:         domain.DistributionStatus(strings.ToLower(strings.TrimSpace(req.Status))),
		Note:           strings.TrimSpace(req.Note),
		ActorID:        identity.UID,
	})
	if err != nil {
		writeDistributionError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, distributionResponse{Distribution: buildDistributionPayload(updated)})
}

func (h *DistributionHandlers) updateItemStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.distributions == nil {
		serviceUnavailable(ctx, w, "distribution")
		return
	}
	dist, identity, ok := h.load(w, r)
	if !ok {
		return
	}
	itemID, ok := pathParam(w, r, "itemID", "item id")
	if !ok {
		return
	}
	var req itemStatusRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	updated, err := h.distributions.UpdateItemStatus(ctx, services.DistributionItemStatusCommand{
		DistributionID: dist.ID,
		ItemID:         itemID,
		Status:         domain.DistributionItemStatus(strings.ToLower(strings.TrimSpace(req.Status))),
		Notes:          strings.TrimSpace(req.Notes),
		ActorID:        identity.UID,
	})
	if err != nil {
		writeDistributionError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, distributionResponse{Distribution: buildDistributionPayload(updated)})
}

func (h *DistributionHandlers) recordProof(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.distributions == nil {
		serviceUnavailable(ctx, w, "distribution")
		return
	}
	dist, identity, ok := h.load(w, r)
	if !ok {
		return
	}
	var req deliveryProofRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	updated, err := h.distributions.RecordDeliveryProof(ctx, services.DeliveryProofCommand{
		DistributionID: dist.ID,
		Signature:      strings.TrimSpace(req.Signature),
		ImageURL:       strings.TrimSpace(req.ImageURL),
		ReceiverName:   strings.TrimSpace(req.ReceiverName),
		ReceiverPhone:  strings.TrimSpace(req.ReceiverPhone),
		ActorID:        identity.UID,
	})
	if err != nil {
		writeDistributionError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, distributionResponse{Distribution: buildDistributionPayload(updated)})
}

func (h *DistributionHandlers) proofUploadURL(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.distributions == nil {
		serviceUnavailable(ctx, w, "distribution")
		return
	}
	dist, identity, ok := h.load(w, r)
	if !ok {
		return
	}
	var req proofUploadRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	upload, err := h.distributions.DeliveryProofUploadURL(ctx, services.DeliveryProofUploadCommand{
		DistributionID: dist.ID,
		FileName:       strings.TrimSpace(req.FileName),
		ContentType:    strings.TrimSpace(req.ContentType),
		Size:           req.Size,
		ActorID:        identity.UID,
	})
	if err != nil {
		writeDistributionError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, signedUploadResponse{
		URL:       upload.URL,
		Method:    upload.Method,
		Headers:   upload.Headers,
		ObjectURL: upload.ObjectURL,
		ExpiresAt: formatTime(upload.ExpiresAt),
	})
}

func (h *DistributionHandlers) cancelDistribution(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.distributions == nil {
		serviceUnavailable(ctx, w, "distribution")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	distributionID, ok := pathParam(w, r, "distributionID", "distribution id")
	if !ok {
		return
	}
	var req reasonRequest
	if !decodeBody(w, r, &req, true) {
		return
	}
	updated, err := h.distributions.Cancel(ctx, services.CancelDistributionCommand{
		DistributionID: distributionID,
		Reason:         strings.TrimSpace(req.Reason),
		ActorID:        identity.UID,
	})
	if err != nil {
		writeDistributionError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, distributionResponse{Distribution: buildDistributionPayload(updated)})
}

// load fetches the distribution named in the path and hides it from distributors it is not
// assigned to.
func (h *DistributionHandlers) load(w http.ResponseWriter, r *http.Request) (services.Distribution, *auth.Identity, bool) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return services.Distribution{}, nil, false
	}
	distributionID, ok := pathParam(w, r, "distributionID", "distribution id")
	if !ok {
		return services.Distribution{}, nil, false
	}
	dist, err := h.distributions.GetDistribution(ctx, distributionID)
	if err != nil {
		writeDistributionError(ctx, w, err)
		return services.Distribution{}, nil, false
	}
	if !identity.IsAdmin() && dist.AssignedTo != identity.UID {
		httpx.WriteError(ctx, w, httpx.NotFound("distribution_not_found", "distribution not found"))
		return services.Distribution{}, nil, false
	}
	return dist, identity, true
}

type distributionResponse struct {
	Distribution distributionPayload `json:"distribution"`
}

type distributionListResponse struct {
	Items         []distributionPayload `json:"items"`
	NextPageToken string                `json:"next_page_token,omitempty"`
}

type signedUploadResponse struct {
	URL       string            `json:"url"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers,omitempty"`
	ObjectURL string            `json:"object_url"`
	ExpiresAt string            `json:"expires_at"`
}

type locationPayload struct {
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
	Contact string `json:"contact,omitempty"`
}

type distributionPayload struct {
	ID            string                    `json:"id"`
	OrderID       string                    `json:"order_id"`
	GroupOrderID  string                    `json:"group_order_id,omitempty"`
	AssignedTo    string                    `json:"assigned_to"`
	Location      locationPayload           `json:"location"`
	ScheduledDate string                    `json:"scheduled_date"`
	ActualDate    string                    `json:"actual_date,omitempty"`
	Status        string                    `json:"status"`
	Tracking      trackingPayload           `json:"tracking"`
	Items         []distributionItemPayload `json:"items"`
	DeliveryProof *deliveryProofPayload     `json:"delivery_proof,omitempty"`
	Timeline      []timelinePayload         `json:"timeline,omitempty"`
	Notes         string                    `json:"notes,omitempty"`
	CancelReason  string                    `json:"cancel_reason,omitempty"`
	CreatedAt     string                    `json:"created_at"`
	UpdatedAt     string                    `json:"updated_at,omitempty"`
}

type trackingPayload struct {
	Number            string `json:"number"`
	Carrier           string `json:"carrier,omitempty"`
	EstimatedDelivery string `json:"estimated_delivery,omitempty"`
	ActualDelivery    string `json:"actual_delivery,omitempty"`
}

type distributionItemPayload struct {
	ID        string `json:"id"`
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Status    string `json:"status"`
	Notes     string `json:"notes,omitempty"`
}

type deliveryProofPayload struct {
	Signature     string `json:"signature,omitempty"`
	ImageURL      string `json:"image_url,omitempty"`
	DeliveredBy   string `json:"delivered_by"`
	ReceiverName  string `json:"receiver_name"`
	ReceiverPhone string `json:"receiver_phone,omitempty"`
	RecordedAt    string `json:"recorded_at"`
}

func buildDistributionPayloads(items []services.Distribution) []distributionPayload {
	out := make([]distributionPayload, 0, len(items))
	for _, dist := range items {
		out = append(out, buildDistributionPayload(dist))
	}
	return out
}

func buildDistributionPayload(dist services.Distribution) distributionPayload {
	payload := distributionPayload{
		ID:            dist.ID,
		OrderID:       dist.OrderID,
		GroupOrderID:  dist.GroupOrderID,
		AssignedTo:    dist.AssignedTo,
		Location:      locationPayload{Name: dist.Location.Name, Address: dist.Location.Address, Contact: dist.Location.Contact},
		ScheduledDate: formatTime(dist.ScheduledDate),
		ActualDate:    formatTimePtr(dist.ActualDate),
		Status:        string(dist.Status),
		Tracking: trackingPayload{
			Number:            dist.Tracking.Number,
			Carrier:           dist.Tracking.Carrier,
			EstimatedDelivery: formatTimePtr(dist.Tracking.EstimatedDelivery),
			ActualDelivery:    formatTimePtr(dist.Tracking.ActualDelivery),
		},
		Items:        make([]distributionItemPayload, 0, len(dist.Items)),
		Timeline:     buildTimeline(dist.Timeline),
		Notes:        dist.Notes,
		CancelReason: dist.CancelReason,
		CreatedAt:    formatTime(dist.CreatedAt),
		UpdatedAt:    formatTime(dist.UpdatedAt),
	}
	for _, item := range dist.Items {
		payload.Items = append(payload.Items, distributionItemPayload{
			ID:        item.ID,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Status:    string(item.Status),
			Notes:     item.Notes,
		})
	}
	if proof := dist.DeliveryProof; proof != nil {
		payload.DeliveryProof = &deliveryProofPayload{
			Signature:     proof.Signature,
			ImageURL:      proof.ImageURL,
			DeliveredBy:   proof.DeliveredBy,
			ReceiverName:  proof.ReceiverName,
			ReceiverPhone: proof.ReceiverPhone,
			RecordedAt:    formatTime(proof.RecordedAt),
		}
	}
	return payload
}

func writeDistributionError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrDistributionInvalidInput):
		httpx.WriteError(ctx, w, httpx.BadRequest(err.Error()))
	case errors.Is(err, services.ErrDistributionNotFound):
		httpx.WriteError(ctx, w, httpx.NotFound("distribution_not_found", "distribution not found"))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NotFound("order_not_found", "order not found"))
	case errors.Is(err, services.ErrDistributionOrderNotReady):
		httpx.WriteError(ctx, w, httpx.Conflict("order_not_ready", err.Error()))
	case errors.Is(err, services.ErrDistributionDuplicate):
		httpx.WriteError(ctx, w, httpx.Conflict("distribution_exists", err.Error()))
	case errors.Is(err, services.ErrDistributionIllegalTransition):
		httpx.WriteError(ctx, w, httpx.Conflict("distribution_invalid_state", err.Error()))
	case errors.Is(err, services.ErrDistributionConflict):
		httpx.WriteError(ctx, w, httpx.Conflict("distribution_conflict", err.Error()))
	case errors.Is(err, services.ErrDistributionUploadsDisabled):
		httpx.WriteError(ctx, w, httpx.Unavailable("uploads_disabled", "delivery proof uploads are not configured"))
	default:
		httpx.WriteError(ctx, w, httpx.Internal("distribution_error"))
	}
}
