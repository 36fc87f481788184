package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/campus-merch/api/internal/domain"
	pfirestore "github.com/campus-merch/api/internal/platform/firestore"
	"github.com/campus-merch/api/internal/repositories"
)

const reviewsCollection = "reviews"

var reviewStatuses = []domain.ReviewStatus{
	domain.ReviewStatusPending,
	domain.ReviewStatusApproved,
	domain.ReviewStatusRejected,
}

// ReviewRepository persists product reviews in Firestore.
type ReviewRepository struct {
	base *pfirestore.Collection[reviewDocument]
}

var _ repositories.ReviewRepository = (*ReviewRepository)(nil)

// NewReviewRepository constructs a Firestore-backed review repository.
func NewReviewRepository(provider *pfirestore.Provider) (*ReviewRepository, error) {
	if provider == nil {
		return nil, errors.New("review repository: firestore provider is required")
	}
	return &ReviewRepository{base: pfirestore.NewCollection[reviewDocument](provider, reviewsCollection)}, nil
}

func (r *ReviewRepository) Insert(ctx context.Context, review domain.Review) error {
	if r == nil || r.base == nil {
		return errors.New("review repository not initialised")
	}
	id := strings.TrimSpace(review.ID)
	if id == "" {
		return errors.New("review repository: review id is required")
	}
	return r.base.Create(ctx, id, encodeReviewDocument(review))
}

func (r *ReviewRepository) Update(ctx context.Context, review domain.Review) error {
	if r == nil || r.base == nil {
		return errors.New("review repository not initialised")
	}
	id := strings.TrimSpace(review.ID)
	if id == "" {
		return errors.New("review repository: review id is required")
	}
	return r.base.Replace(ctx, id, encodeReviewDocument(review))
}

func (r *ReviewRepository) FindByID(ctx context.Context, reviewID string) (domain.Review, error) {
	if r == nil || r.base == nil {
		return domain.Review{}, errors.New("review repository not initialised")
	}
	reviewID = strings.TrimSpace(reviewID)
	if reviewID == "" {
		return domain.Review{}, errors.New("review repository: review id is required")
	}
	doc, err := r.base.Get(ctx, reviewID)
	if err != nil {
		return domain.Review{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *ReviewRepository) FindByUserAndProduct(ctx context.Context, userID, productID string, includeDeleted bool) (domain.Review, error) {
	if r == nil || r.base == nil {
		return domain.Review{}, errors.New("review repository not initialised")
	}
	userID = strings.TrimSpace(userID)
	productID = strings.TrimSpace(productID)
	if userID == "" || productID == "" {
		return domain.Review{}, errors.New("review repository: user id and product id are required")
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("userId", "==", userID).Where("productId", "==", productID)
		if !includeDeleted {
			q = q.Where("isActive", "==", true)
		}
		return q.Limit(1)
	})
	if err != nil {
		return domain.Review{}, err
	}
	if len(docs) == 0 {
		return domain.Review{}, errNotFound("reviews.find_by_user_and_product", "no review by %s for %s", userID, productID)
	}
	return docs[0].Data.toDomain(docs[0].ID), nil
}

func (r *ReviewRepository) List(ctx context.Context, filter repositories.ReviewListFilter) (domain.CursorPage[domain.Review], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Review]{}, errors.New("review repository not initialised")
	}
	limit, fetch := pageLimits(filter.Pagination.PageSize)
	startAfter, err := decodeCreatedCursor(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Review]{}, fmt.Errorf("review repository: %w", err)
	}
	productID := strings.TrimSpace(filter.ProductID)
	userID := strings.TrimSpace(filter.UserID)

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("isActive", "==", true)
		if productID != "" {
			q = q.Where("productId", "==", productID)
		}
		if userID != "" {
			q = q.Where("userId", "==", userID)
		}
		if filter.Status != nil {
			q = q.Where("status", "==", string(*filter.Status))
		}
		if filter.PublicOnly {
			q = q.Where("visibility", "==", string(domain.ReviewVisibilityPublic))
		}
		return newestFirst(q, startAfter, fetch)
	})
	if err != nil {
		return domain.CursorPage[domain.Review]{}, err
	}

	next := ""
	if limit > 0 && len(docs) == fetch {
		last := docs[limit-1]
		next = encodeCreatedCursor(last.Data.CreatedAt, last.ID)
		docs = docs[:limit]
	}
	items := make([]domain.Review, 0, len(docs))
	for _, doc := range docs {
		items = append(items, doc.Data.toDomain(doc.ID))
	}
	return domain.CursorPage[domain.Review]{Items: items, NextPageToken: next}, nil
}

func (r *ReviewRepository) ListRated(ctx context.Context, productID string) ([]domain.Review, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("review repository not initialised")
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return nil, errors.New("review repository: product id is required")
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("productId", "==", productID).
			Where("status", "==", string(domain.ReviewStatusApproved)).
			Where("isActive", "==", true)
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.Review, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.Data.toDomain(doc.ID))
	}
	return out, nil
}

func (r *ReviewRepository) CountByStatus(ctx context.Context) ([]domain.StatusBucket, error) {
	return countBuckets(ctx, r.base, "status", "", stringsOf(reviewStatuses))
}

type reviewDocument struct {
	UserID        string                       `firestore:"userId"`
	ProductID     string                       `firestore:"productId"`
	OrderID       string                       `firestore:"orderId"`
	Rating        int                          `firestore:"rating"`
	Title         string                       `firestore:"title,omitempty"`
	Comment       string                       `firestore:"comment,omitempty"`
	Pros          []string                     `firestore:"pros,omitempty"`
	Cons          []string                     `firestore:"cons,omitempty"`
	Images        []string                     `firestore:"images,omitempty"`
	Visibility    string                       `firestore:"visibility"`
	Status        string                       `firestore:"status"`
	Helpful       reviewHelpfulDocument        `firestore:"helpful"`
	Verified      bool                         `firestore:"verified"`
	AdminResponse *reviewAdminResponseDocument `firestore:"adminResponse,omitempty"`
	IsActive      bool                         `firestore:"isActive"`
	CreatedAt     time.Time                    `firestore:"createdAt"`
	UpdatedAt     time.Time                    `firestore:"updatedAt"`
}

type reviewHelpfulDocument struct {
	Count int      `firestore:"count"`
	Users []string `firestore:"users"`
}

type reviewAdminResponseDocument struct {
	Message     string    `firestore:"message"`
	RespondedBy string    `firestore:"respondedBy"`
	RespondedAt time.Time `firestore:"respondedAt"`
}

func encodeReviewDocument(r domain.Review) reviewDocument {
	doc := reviewDocument{
		UserID:     r.UserID,
		ProductID:  r.ProductID,
		OrderID:    r.OrderID,
		Rating:     r.Rating,
		Title:      r.Title,
		Comment:    r.Comment,
		Pros:       cloneStrings(r.Pros),
		Cons:       cloneStrings(r.Cons),
		Images:     cloneStrings(r.Images),
		Visibility: string(r.Visibility),
		Status:     string(r.Status),
		Helpful:    reviewHelpfulDocument{Count: len(r.Helpful.Users), Users: cloneStrings(r.Helpful.Users)},
		Verified:   r.Verified,
		IsActive:   r.IsActive,
		CreatedAt:  r.CreatedAt.UTC(),
		UpdatedAt:  r.UpdatedAt.UTC(),
	}
	if doc.Helpful.Users == nil {
		doc.Helpful.Users = []string{}
	}
	if a := r.AdminResponse; a != nil {
		doc.AdminResponse = &reviewAdminResponseDocument{Message: a.Message, RespondedBy: a.RespondedBy, RespondedAt: a.RespondedAt.UTC()}
	}
	return doc
}

func (d reviewDocument) toDomain(id string) domain.Review {
	out := domain.Review{
		ID:         id,
		UserID:     d.UserID,
		ProductID:  d.ProductID,
		OrderID:    d.OrderID,
		Rating:     d.Rating,
		Title:      d.Title,
		Comment:    d.Comment,
		Pros:       cloneStrings(d.Pros),
		Cons:       cloneStrings(d.Cons),
		Images:     cloneStrings(d.Images),
		Visibility: domain.ReviewVisibility(d.Visibility),
		Status:     domain.ReviewStatus(d.Status),
		Helpful:    domain.ReviewHelpful{Count: len(d.Helpful.Users), Users: cloneStrings(d.Helpful.Users)},
		Verified:   d.Verified,
		IsActive:   d.IsActive,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
	if a := d.AdminResponse; a != nil {
		out.AdminResponse = &domain.ReviewAdminResponse{Message: a.Message, RespondedBy: a.RespondedBy, RespondedAt: a.RespondedAt}
	}
	return out
}
