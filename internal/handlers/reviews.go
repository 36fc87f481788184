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

const (
	defaultReviewWriteLimit  = 10
	defaultReviewWriteWindow = time.Minute
)

// ReviewHandlers exposes review authoring and helpful votes.
type ReviewHandlers struct {
	access  Access
	reviews services.ReviewService
	limiter *actorLimiter
}

// ReviewOption customises ReviewHandlers.
type ReviewOption func(*ReviewHandlers)

// WithReviewRateLimit bounds review writes per user. A non-positive limit disables limiting.
func WithReviewRateLimit(limit int, window time.Duration, clock func() time.Time) ReviewOption {
	return func(h *ReviewHandlers) {
		h.limiter = newActorLimiter(limit, window, clock)
	}
}

// NewReviewHandlers constructs review handlers.
func NewReviewHandlers(access Access, reviews services.ReviewService, opts ...ReviewOption) *ReviewHandlers {
	h := &ReviewHandlers{
		access:  access,
		reviews: reviews,
		limiter: newActorLimiter(defaultReviewWriteLimit, defaultReviewWriteWindow, nil),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes registers the /reviews endpoints.
func (h *ReviewHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	h.access.authenticate(r)
	write := r.With(h.access.allow(authz.ResourceReviews, authz.ActionCreate), h.limiter.middleware)
	write.Post("/", h.createReview)
	write.Put("/{reviewID}", h.updateReview)
	write.Delete("/{reviewID}", h.deleteReview)
	write.Post("/{reviewID}/helpful", h.markHelpful)
	write.Delete("/{reviewID}/helpful", h.unmarkHelpful)
}

type createReviewRequest struct {
	ProductID  string   `json:"product_id"`
	OrderID    string   `json:"order_id"`
	Rating     int      `json:"rating"`
	Title      string   `json:"title,omitempty"`
	Comment    string   `json:"comment"`
	Pros       []string `json:"pros,omitempty"`
	Cons       []string `json:"cons,omitempty"`
	Images     []string `json:"images,omitempty"`
	Visibility string   `json:"visibility,omitempty"`
}

type updateReviewRequest struct {
	Rating     *int     `json:"rating,omitempty"`
	Title      *string  `json:"title,omitempty"`
	Comment    *string  `json:"comment,omitempty"`
	Pros       []string `json:"pros,omitempty"`
	Cons       []string `json:"cons,omitempty"`
	Images     []string `json:"images,omitempty"`
	Visibility *string  `json:"visibility,omitempty"`
}

func (h *ReviewHandlers) createReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reviews == nil {
		serviceUnavailable(ctx, w, "review")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req createReviewRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	review, err := h.reviews.SubmitReview(ctx, services.SubmitReviewCommand{
		UserID:     identity.UID,
		ProductID:  strings.TrimSpace(req.ProductID),
		OrderID:    strings.TrimSpace(req.OrderID),
		Rating:     req.Rating,
		Title:      req.Title,
		Comment:    req.Comment,
		Pros:       req.Pros,
		Cons:       req.Cons,
		Images:     trimAll(req.Images),
		Visibility: domain.ReviewVisibility(strings.ToLower(strings.TrimSpace(req.Visibility))),
	})
	if err != nil {
		writeReviewError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, reviewResponse{Review: buildReviewPayload(review)})
}

func (h *ReviewHandlers) updateReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reviews == nil {
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
	var req updateReviewRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	cmd := services.UpdateReviewCommand{
		ReviewID: reviewID,
		ActorID:  identity.UID,
		Rating:   req.Rating,
		Title:    req.Title,
		Comment:  req.Comment,
		Pros:     req.Pros,
		Cons:     req.Cons,
		Images:   trimAll(req.Images),
	}
	if req.Visibility != nil {
		visibility := domain.ReviewVisibility(strings.ToLower(strings.TrimSpace(*req.Visibility)))
		cmd.Visibility = &visibility
	}
	review, err := h.reviews.UpdateReview(ctx, cmd)
	if err != nil {
		writeReviewError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, reviewResponse{Review: buildReviewPayload(review)})
}

func (h *ReviewHandlers) deleteReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reviews == nil {
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
	if err := h.reviews.DeleteReview(ctx, services.DeleteReviewCommand{
		ReviewID: reviewID,
		ActorID:  identity.UID,
		IsStaff:  identity.IsAdmin(),
	}); err != nil {
		writeReviewError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ReviewHandlers) markHelpful(w http.ResponseWriter, r *http.Request) {
	if h.reviews == nil {
		serviceUnavailable(r.Context(), w, "review")
		return
	}
	h.helpful(w, r, h.reviews.MarkHelpful)
}

func (h *ReviewHandlers) unmarkHelpful(w http.ResponseWriter, r *http.Request) {
	if h.reviews == nil {
		serviceUnavailable(r.Context(), w, "review")
		return
	}
	h.helpful(w, r, h.reviews.UnmarkHelpful)
}

func (h *ReviewHandlers) helpful(w http.ResponseWriter, r *http.Request, vote func(context.Context, services.ReviewHelpfulCommand) (services.Review, error)) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	reviewID, ok := pathParam(w, r, "reviewID", "review id")
	if !ok {
		return
	}
	review, err := vote(ctx, services.ReviewHelpfulCommand{ReviewID: reviewID, VoterID: identity.UID})
	if err != nil {
		writeReviewError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, helpfulResponse{ReviewID: review.ID, HelpfulCount: review.Helpful.Count})
}

type reviewResponse struct {
	Review reviewPayload `json:"review"`
}

type reviewListResponse struct {
	Items         []reviewPayload `json:"items"`
	NextPageToken string          `json:"next_page_token,omitempty"`
}

type reviewSummaryResponse struct {
	ProductID    string         `json:"product_id"`
	Average      float64        `json:"average"`
	Count        int            `json:"count"`
	Distribution map[string]int `json:"distribution"`
}

type helpfulResponse struct {
	ReviewID     string `json:"review_id"`
	HelpfulCount int    `json:"helpful_count"`
}

type reviewPayload struct {
	ID           string              `json:"id"`
	ProductID    string              `json:"product_id"`
	OrderID      string              `json:"order_id,omitempty"`
	UserID       string              `json:"user_id,omitempty"`
	Rating       int                 `json:"rating"`
	Title        string              `json:"title,omitempty"`
	Comment      string              `json:"comment"`
	Pros         []string            `json:"pros,omitempty"`
	Cons         []string            `json:"cons,omitempty"`
	Images       []string            `json:"images,omitempty"`
	Visibility   string              `json:"visibility,omitempty"`
	Status       string              `json:"status,omitempty"`
	Verified     bool                `json:"verified"`
	HelpfulCount int                 `json:"helpful_count"`
	Reply        *reviewReplyPayload `json:"reply,omitempty"`
	CreatedAt    string              `json:"created_at"`
	UpdatedAt    string              `json:"updated_at,omitempty"`
}

type reviewReplyPayload struct {
	Message     string `json:"message"`
	RespondedBy string `json:"responded_by,omitempty"`
	RespondedAt string `json:"responded_at"`
}

func buildReviewPayload(review services.Review) reviewPayload {
	payload := reviewPayload{
		ID:           review.ID,
		ProductID:    review.ProductID,
		OrderID:      review.OrderID,
		UserID:       review.UserID,
		Rating:       review.Rating,
		Title:        review.Title,
		Comment:      review.Comment,
		Pros:         review.Pros,
		Cons:         review.Cons,
		Images:       review.Images,
		Visibility:   string(review.Visibility),
		Status:       string(review.Status),
		Verified:     review.Verified,
		HelpfulCount: review.Helpful.Count,
		CreatedAt:    formatTime(review.CreatedAt),
		UpdatedAt:    formatTime(review.UpdatedAt),
	}
	if reply := review.AdminResponse; reply != nil {
		payload.Reply = &reviewReplyPayload{
			Message:     reply.Message,
			RespondedBy: reply.RespondedBy,
			RespondedAt: formatTime(reply.RespondedAt),
		}
	}
	return payload
}

// buildPublicReviewPayload omits the order and moderation details other shoppers should not see.
func buildPublicReviewPayload(review services.Review) reviewPayload {
	payload := buildReviewPayload(review)
	payload.OrderID = ""
	payload.Status = ""
	payload.Visibility = ""
	if payload.Reply != nil {
		payload.Reply.RespondedBy = ""
	}
	return payload
}

func writeReviewError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrReviewInvalidInput):
		httpx.WriteError(ctx, w, httpx.BadRequest(err.Error()))
	case errors.Is(err, services.ErrReviewNotFound):
		httpx.WriteError(ctx, w, httpx.NotFound("review_not_found", "review not found"))
	case errors.Is(err, services.ErrProductNotFound):
		httpx.WriteError(ctx, w, httpx.NotFound("product_not_found", "product not found"))
	case errors.Is(err, services.ErrReviewForbidden):
		httpx.WriteError(ctx, w, httpx.Forbidden("insufficient permissions for review"))
	case errors.Is(err, services.ErrReviewNotPurchased):
		httpx.WriteError(ctx, w, httpx.Forbidden("only delivered purchases can be reviewed"))
	case errors.Is(err, services.ErrReviewDuplicate):
		httpx.WriteError(ctx, w, httpx.Conflict("review_exists", err.Error()))
	case errors.Is(err, services.ErrReviewConflict):
		httpx.WriteError(ctx, w, httpx.Conflict("review_conflict", err.Error()))
	default:
		httpx.WriteError(ctx, w, httpx.Internal("review_error"))
	}
}
