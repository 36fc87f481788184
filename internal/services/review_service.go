package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode"

	domain "github.com/campus-merch/api/internal/domain"
	"github.com/campus-merch/api/internal/platform/textutil"
	"github.com/campus-merch/api/internal/repositories"
)

const (
	reviewEventCreated    = "review.created"
	reviewEventUpdated    = "review.updated"
	reviewEventDeleted    = "review.deleted"
	reviewEventModerated  = "review.moderated"
	productEventRated     = "product.rating.updated"
	maxReviewTitleLength  = 120
	maxReviewCommentLen   = 2000
	maxReviewListEntries  = 10
	maxReviewImages       = 5
	maxReviewPageSize     = 50
	defaultReviewPageSize = 20
)

var (
	// ErrReviewInvalidInput indicates validation failures for review operations.
	ErrReviewInvalidInput = errors.New("review: invalid input")
	// ErrReviewNotFound indicates a review could not be located.
	ErrReviewNotFound = errors.New("review: not found")
	// ErrReviewForbidden indicates the actor may not change the review.
	ErrReviewForbidden = errors.New("review: forbidden")
	// ErrReviewNotPurchased indicates the order does not prove a delivered purchase of the product.
	ErrReviewNotPurchased = errors.New("review: product not purchased")
	// ErrReviewDuplicate indicates the user already reviewed the product.
	ErrReviewDuplicate = errors.New("review: duplicate review")
	// ErrReviewConflict signals a duplicate review id.
	ErrReviewConflict = errors.New("review: conflict")
)

// ReviewServiceDeps bundles collaborators required to construct a ReviewService.
type ReviewServiceDeps struct {
	Reviews          repositories.ReviewRepository
	Orders           repositories.OrderRepository
	Products         repositories.ProductRepository
	Clock            func() time.Time
	IDGenerator      func(userID, productID string) string
	Sanitizer        func(string) string
	ProfanityChecker func(string) bool
	Events           EventPublisher
	Logger           Logger
}

type reviewService struct {
	reviews   repositories.ReviewRepository
	orders    repositories.OrderRepository
	products  repositories.ProductRepository
	clock     func() time.Time
	newID     func(userID, productID string) string
	sanitize  func(string) string
	isProfane func(string) bool
	sink      eventSink
	logger    Logger
}

// NewReviewService wires dependencies into a concrete ReviewService implementation.
func NewReviewService(deps ReviewServiceDeps) (ReviewService, error) {
	if deps.Reviews == nil {
		return nil, errors.New("review service: review repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("review service: order repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("review service: product repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = domain.ReviewID
	}
	sanitize := deps.Sanitizer
	if sanitize == nil {
		sanitize = textutil.PlainText
	}
	profanity := deps.ProfanityChecker
	if profanity == nil {
		profanity = basicProfanityChecker
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	return &reviewService{
		reviews:  deps.Reviews,
		orders:   deps.Orders,
		products: deps.Products,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:     idGen,
		sanitize:  sanitize,
		isProfane: profanity,
		sink:      eventSink{events: deps.Events, logger: logger, prefix: "review"},
		logger:    logger,
	}, nil
}

func (s *reviewService) SubmitReview(ctx context.Context, cmd SubmitReviewCommand) (Review, error) {
	userID := strings.TrimSpace(cmd.UserID)
	productID := strings.TrimSpace(cmd.ProductID)
	orderID := strings.TrimSpace(cmd.OrderID)
	switch {
	case userID == "":
		return Review{}, fmt.Errorf("%w: user id is required", ErrReviewInvalidInput)
	case productID == "":
		return Review{}, fmt.Errorf("%w: product id is required", ErrReviewInvalidInput)
	case orderID == "":
		return Review{}, fmt.Errorf("%w: order id is required", ErrReviewInvalidInput)
	case !domain.ValidRating(cmd.Rating):
		return Review{}, fmt.Errorf("%w: rating must be between 1 and 5", ErrReviewInvalidInput)
	}
	visibility, err := normalizeVisibility(cmd.Visibility)
	if err != nil {
		return Review{}, err
	}

	review := Review{
		UserID:     userID,
		ProductID:  productID,
		OrderID:    orderID,
		Rating:     cmd.Rating,
		Title:      cmd.Title,
		Comment:    cmd.Comment,
		Pros:       cmd.Pros,
		Cons:       cmd.Cons,
		Images:     cmd.Images,
		Visibility: visibility,
	}
	if err := s.cleanContent(&review); err != nil {
		return Review{}, err
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		if isRepositoryNotFound(err) {
			return Review{}, fmt.Errorf("%w: order %s not found", ErrReviewNotPurchased, orderID)
		}
		return Review{}, s.mapRepositoryError(err)
	}
	if !orderProvesPurchase(order, userID, productID) {
		return Review{}, ErrReviewNotPurchased
	}

	// deleted reviews still count: a user gets one review per product.
	existing, err := s.reviews.FindByUserAndProduct(ctx, userID, productID, true)
	switch {
	case err == nil:
		return Review{}, fmt.Errorf("%w: review %s exists", ErrReviewDuplicate, existing.ID)
	case !isRepositoryNotFound(err):
		return Review{}, s.mapRepositoryError(err)
	}

	now := s.clock()
	review.ID = s.newID(userID, productID)
	review.Status = domain.ReviewStatusPending
	review.Verified = true
	review.IsActive = true
	review.CreatedAt = now
	review.UpdatedAt = now
	if err := s.reviews.Insert(ctx, review); err != nil {
		if isRepositoryConflict(err) {
			return Review{}, fmt.Errorf("%w: review %s exists", ErrReviewDuplicate, review.ID)
		}
		return Review{}, s.mapRepositoryError(err)
	}
	s.emit(ctx, reviewEventCreated, review, userID)
	return review, nil
}

func (s *reviewService) UpdateReview(ctx context.Context, cmd UpdateReviewCommand) (Review, error) {
	actorID := strings.TrimSpace(cmd.ActorID)
	review, err := s.find(ctx, cmd.ReviewID)
	if err != nil {
		return Review{}, err
	}
	if review.UserID != actorID {
		return Review{}, fmt.Errorf("%w: only the author may edit a review", ErrReviewForbidden)
	}
	if !review.IsActive {
		return Review{}, ErrReviewNotFound
	}
	counted := review.CountsTowardsRating()

	if cmd.Rating != nil {
		if !domain.ValidRating(*cmd.Rating) {
			return Review{}, fmt.Errorf("%w: rating must be between 1 and 5", ErrReviewInvalidInput)
		}
		review.Rating = *cmd.Rating
	}
	if cmd.Title != nil {
		review.Title = *cmd.Title
	}
	if cmd.Comment != nil {
		review.Comment = *cmd.Comment
	}
	if cmd.Pros != nil {
		review.Pros = cmd.Pros
	}
	if cmd.Cons != nil {
		review.Cons = cmd.Cons
	}
	if cmd.Images != nil {
		review.Images = cmd.Images
	}
	if cmd.Visibility != nil {
		visibility, err := normalizeVisibility(*cmd.Visibility)
		if err != nil {
			return Review{}, err
		}
		review.Visibility = visibility
	}
	if err := s.cleanContent(&review); err != nil {
		return Review{}, err
	}

	// edits go back through moderation.
	review.Status = domain.ReviewStatusPending
	review.UpdatedAt = s.clock()
	if err := s.reviews.Update(ctx, review); err != nil {
		return Review{}, s.mapRepositoryError(err)
	}
	if counted {
		s.refreshRating(ctx, review.ProductID)
	}
	s.emit(ctx, reviewEventUpdated, review, actorID)
	return review, nil
}

func (s *reviewService) DeleteReview(ctx context.Context, cmd DeleteReviewCommand) error {
	actorID := strings.TrimSpace(cmd.ActorID)
	review, err := s.find(ctx, cmd.ReviewID)
	if err != nil {
		return err
	}
	if review.UserID != actorID && !cmd.IsStaff {
		return fmt.Errorf("%w: only the author or staff may delete a review", ErrReviewForbidden)
	}
	if !review.IsActive {
		return nil
	}
	counted := review.CountsTowardsRating()
	review.IsActive = false
	review.UpdatedAt = s.clock()
	if err := s.reviews.Update(ctx, review); err != nil {
		return s.mapRepositoryError(err)
	}
	if counted {
		s.refreshRating(ctx, review.ProductID)
	}
	s.emit(ctx, reviewEventDeleted, review, actorID)
	return nil
}

func (s *reviewService) ModerateReview(ctx context.Context, cmd ModerateReviewCommand) (Review, error) {
	switch cmd.Status {
	case domain.ReviewStatusPending, domain.ReviewStatusApproved, domain.ReviewStatusRejected:
	default:
		return Review{}, fmt.Errorf("%w: unsupported status %q", ErrReviewInvalidInput, cmd.Status)
	}
	actorID := strings.TrimSpace(cmd.ActorID)
	review, err := s.find(ctx, cmd.ReviewID)
	if err != nil {
		return Review{}, err
	}
	counted := review.CountsTowardsRating()
	now := s.clock()
	review.Status = cmd.Status
	if response := s.sanitize(cmd.Response); response != "" {
		if s.isProfane(response) {
			return Review{}, fmt.Errorf("%w: response contains profanity", ErrReviewInvalidInput)
		}
		review.AdminResponse = &domain.ReviewAdminResponse{
			Message:     response,
			RespondedBy: actorID,
			RespondedAt: now,
		}
	}
	review.UpdatedAt = now
	if err := s.reviews.Update(ctx, review); err != nil {
		return Review{}, s.mapRepositoryError(err)
	}
	if counted != review.CountsTowardsRating() {
		s.refreshRating(ctx, review.ProductID)
	}
	s.emit(ctx, reviewEventModerated, review, actorID)
	return review, nil
}

func (s *reviewService) MarkHelpful(ctx context.Context, cmd ReviewHelpfulCommand) (Review, error) {
	return s.vote(ctx, cmd, func(review *Review, voterID string) bool {
		return review.MarkHelpful(voterID)
	})
}

func (s *reviewService) UnmarkHelpful(ctx context.Context, cmd ReviewHelpfulCommand) (Review, error) {
	return s.vote(ctx, cmd, func(review *Review, voterID string) bool {
		return review.UnmarkHelpful(voterID)
	})
}

func (s *reviewService) vote(ctx context.Context, cmd ReviewHelpfulCommand, apply func(*Review, string) bool) (Review, error) {
	voterID := strings.TrimSpace(cmd.VoterID)
	if voterID == "" {
		return Review{}, fmt.Errorf("%w: voter id is required", ErrReviewInvalidInput)
	}
	review, err := s.find(ctx, cmd.ReviewID)
	if err != nil {
		return Review{}, err
	}
	if !review.IsActive {
		return Review{}, ErrReviewNotFound
	}
	if review.UserID == voterID {
		return Review{}, fmt.Errorf("%w: authors cannot vote on their own review", ErrReviewInvalidInput)
	}
	if !apply(&review, voterID) {
		return review, nil
	}
	review.UpdatedAt = s.clock()
	if err := s.reviews.Update(ctx, review); err != nil {
		return Review{}, s.mapRepositoryError(err)
	}
	return review, nil
}

func (s *reviewService) ListProductReviews(ctx context.Context, productID string, page Pagination) (domain.CursorPage[Review], error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.CursorPage[Review]{}, fmt.Errorf("%w: product id is required", ErrReviewInvalidInput)
	}
	switch {
	case page.PageSize <= 0:
		page.PageSize = defaultReviewPageSize
	case page.PageSize > maxReviewPageSize:
		page.PageSize = maxReviewPageSize
	}
	approved := domain.ReviewStatusApproved
	result, err := s.reviews.List(ctx, repositories.ReviewListFilter{
		ProductID:  productID,
		Status:     &approved,
		PublicOnly: true,
		Pagination: page,
	})
	if err != nil {
		return domain.CursorPage[Review]{}, s.mapRepositoryError(err)
	}
	return result, nil
}

func (s *reviewService) ProductSummary(ctx context.Context, productID string) (ReviewSummary, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return ReviewSummary{}, fmt.Errorf("%w: product id is required", ErrReviewInvalidInput)
	}
	rated, err := s.reviews.ListRated(ctx, productID)
	if err != nil {
		return ReviewSummary{}, s.mapRepositoryError(err)
	}
	return domain.SummarizeRatings(productID, rated), nil
}

// RecomputeProductRating rebuilds the product rating from approved, active reviews.
func (s *reviewService) RecomputeProductRating(ctx context.Context, productID string) (domain.ProductRating, error) {
	summary, err := s.ProductSummary(ctx, productID)
	if err != nil {
		return domain.ProductRating{}, err
	}
	rating := summary.Rating()
	if err := s.products.UpdateRating(ctx, summary.ProductID, rating, s.clock()); err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return domain.ProductRating{}, fmt.Errorf("%w: %v", ErrProductNotFound, err)
		}
		return domain.ProductRating{}, fmt.Errorf("review: update product rating: %w", err)
	}
	s.sink.publish(ctx, DomainEvent{
		Type:          productEventRated,
		AggregateType: "product",
		AggregateID:   summary.ProductID,
		OccurredAt:    s.clock(),
		Metadata:      map[string]any{"average": rating.Average, "count": rating.Count},
	})
	return rating, nil
}

// refreshRating runs after the review write has been stored, so failures are only logged.
func (s *reviewService) refreshRating(ctx context.Context, productID string) {
	if _, err := s.RecomputeProductRating(ctx, productID); err != nil {
		s.logger(ctx, "review.rating.recompute.failed", map[string]any{
			"productId": productID,
			"error":     err.Error(),
		})
	}
}

func (s *reviewService) cleanContent(review *Review) error {
	review.Title = s.sanitize(review.Title)
	review.Comment = s.sanitize(review.Comment)
	review.Pros = s.cleanList(review.Pros)
	review.Cons = s.cleanList(review.Cons)
	review.Images = cleanImageURLs(review.Images)

	switch {
	case len([]rune(review.Title)) > maxReviewTitleLength:
		return fmt.Errorf("%w: title must be at most %d characters", ErrReviewInvalidInput, maxReviewTitleLength)
	case len([]rune(review.Comment)) > maxReviewCommentLen:
		return fmt.Errorf("%w: comment must be at most %d characters", ErrReviewInvalidInput, maxReviewCommentLen)
	case len(review.Pros) > maxReviewListEntries || len(review.Cons) > maxReviewListEntries:
		return fmt.Errorf("%w: at most %d pros and cons", ErrReviewInvalidInput, maxReviewListEntries)
	case len(review.Images) > maxReviewImages:
		return fmt.Errorf("%w: at most %d images", ErrReviewInvalidInput, maxReviewImages)
	}
	texts := append([]string{review.Title, review.Comment}, review.Pros...)
	texts = append(texts, review.Cons...)
	if slices.ContainsFunc(texts, s.isProfane) {
		return fmt.Errorf("%w: review contains profanity", ErrReviewInvalidInput)
	}
	return nil
}

func (s *reviewService) cleanList(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, value := range values {
		if cleaned := s.sanitize(value); cleaned != "" {
			out = append(out, cleaned)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func cleanImageURLs(values []string) []string {
	var out []string
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" || slices.Contains(out, value) {
			continue
		}
		out = append(out, value)
	}
	return out
}

func normalizeVisibility(visibility domain.ReviewVisibility) (domain.ReviewVisibility, error) {
	switch domain.ReviewVisibility(strings.ToLower(strings.TrimSpace(string(visibility)))) {
	case "", domain.ReviewVisibilityPublic:
		return domain.ReviewVisibilityPublic, nil
	case domain.ReviewVisibilityPrivate:
		return domain.ReviewVisibilityPrivate, nil
	default:
		return "", fmt.Errorf("%w: unsupported visibility %q", ErrReviewInvalidInput, visibility)
	}
}

func orderProvesPurchase(order Order, userID, productID string) bool {
	if order.UserID != userID || order.Status != domain.OrderStatusDelivered {
		return false
	}
	return slices.ContainsFunc(order.Items, func(item OrderItem) bool {
		return item.ProductID == productID
	})
}

func (s *reviewService) find(ctx context.Context, reviewID string) (Review, error) {
	reviewID = strings.TrimSpace(reviewID)
	if reviewID == "" {
		return Review{}, fmt.Errorf("%w: review id is required", ErrReviewInvalidInput)
	}
	review, err := s.reviews.FindByID(ctx, reviewID)
	if err != nil {
		return Review{}, s.mapRepositoryError(err)
	}
	return review, nil
}

func (s *reviewService) emit(ctx context.Context, eventType string, review Review, actorID string) {
	s.sink.publish(ctx, DomainEvent{
		Type:          eventType,
		AggregateType: "review",
		AggregateID:   review.ID,
		CurrentStatus: string(review.Status),
		ActorID:       actorID,
		OccurredAt:    review.UpdatedAt,
		Metadata: map[string]any{
			"productId": review.ProductID,
			"orderId":   review.OrderID,
			"rating":    review.Rating,
			"active":    review.IsActive,
		},
	})
}

func (s *reviewService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrReviewNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrReviewConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("review: repository unavailable: %w", err)
		}
	}
	return err
}

var defaultProfanityTerms = map[string]struct{}{
	"asshole":  {},
	"bastard":  {},
	"bitch":    {},
	"bollocks": {},
	"dick":     {},
	"fuck":     {},
	"fucking":  {},
	"shit":     {},
	"slut":     {},
	"whore":    {},
}

func basicProfanityChecker(input string) bool {
	if input == "" {
		return false
	}
	words := strings.FieldsFunc(strings.ToLower(input), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	return slices.ContainsFunc(words, func(word string) bool {
		_, ok := defaultProfanityTerms[word]
		return ok
	})
}
