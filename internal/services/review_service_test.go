package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	domain "github.com/campus-merch/api/internal/domain"
)

var reviewTestNow = time.Date(2024, 11, 4, 15, 0, 0, 0, time.UTC)

type reviewFixture struct {
	reviews  *memReviewRepo
	orders   *memOrderRepo
	products *memProductRepo
	events   *captureEvents
	logs     *captureLogs
}

func newReviewFixture(reviews ...domain.Review) *reviewFixture {
	delivered := domain.Order{
		ID:     "ord_delivered",
		UserID: "stu-1",
		Status: domain.OrderStatusDelivered,
		Items:  []domain.OrderItem{{ProductID: "prd_tee", Quantity: 1}},
	}
	shipped := delivered
	shipped.ID = "ord_shipped"
	shipped.Status = domain.OrderStatusShipped
	return &reviewFixture{
		reviews:  newMemReviewRepo(reviews...),
		orders:   newMemOrderRepo(delivered, shipped),
		products: newMemProductRepo(domain.Product{ID: "prd_tee", Name: "Campus Tee", IsActive: true}),
		events:   &captureEvents{},
		logs:     &captureLogs{},
	}
}

func (f *reviewFixture) service(t *testing.T) ReviewService {
	t.Helper()
	svc, err := NewReviewService(ReviewServiceDeps{
		Reviews:  f.reviews,
		Orders:   f.orders,
		Products: f.products,
		Clock:    fixedClock(reviewTestNow),
		Events:   f.events,
		Logger:   f.logs.log,
	})
	if err != nil {
		t.Fatalf("new review service: %v", err)
	}
	return svc
}

func approvedReview(id, userID string, rating int) domain.Review {
	return domain.Review{
		ID:         id,
		UserID:     userID,
		ProductID:  "prd_tee",
		OrderID:    "ord_" + userID,
		Rating:     rating,
		Visibility: domain.ReviewVisibilityPublic,
		Status:     domain.ReviewStatusApproved,
		Verified:   true,
		IsActive:   true,
	}
}

func TestNewReviewServiceRequiresRepositories(t *testing.T) {
	if _, err := NewReviewService(ReviewServiceDeps{Orders: newMemOrderRepo(), Products: newMemProductRepo()}); err == nil {
		t.Fatal("expected error without review repository")
	}
	if _, err := NewReviewService(ReviewServiceDeps{Reviews: newMemReviewRepo(), Products: newMemProductRepo()}); err == nil {
		t.Fatal("expected error without order repository")
	}
	if _, err := NewReviewService(ReviewServiceDeps{Reviews: newMemReviewRepo(), Orders: newMemOrderRepo()}); err == nil {
		t.Fatal("expected error without product repository")
	}
}

func TestReviewServiceSubmitReview(t *testing.T) {
	f := newReviewFixture()
	svc := f.service(t)

	review, err := svc.SubmitReview(context.Background(), SubmitReviewCommand{
		UserID:    "stu-1",
		ProductID: "prd_tee",
		OrderID:   "ord_delivered",
		Rating:    4,
		Title:     "<script>alert(1)</script>Soft fabric",
		Comment:   "Fits   well.",
		Pros:      []string{"comfy", "  "},
		Images:    []string{"https://img/1.jpg", "https://img/1.jpg"},
	})
	if err != nil {
		t.Fatalf("submit review: %v", err)
	}
	if review.ID != domain.ReviewID("stu-1", "prd_tee") {
		t.Fatalf("unexpected id %q", review.ID)
	}
	if review.Status != domain.ReviewStatusPending || !review.Verified || !review.IsActive {
		t.Fatalf("expected pending verified active review, got %+v", review)
	}
	if review.Visibility != domain.ReviewVisibilityPublic {
		t.Fatalf("expected public visibility by default, got %q", review.Visibility)
	}
	if strings.Contains(review.Title, "script") || review.Title != "Soft fabric" {
		t.Fatalf("expected sanitised title, got %q", review.Title)
	}
	if review.Comment != "Fits well." {
		t.Fatalf("expected collapsed spaces, got %q", review.Comment)
	}
	if len(review.Pros) != 1 || len(review.Images) != 1 {
		t.Fatalf("expected cleaned lists, got pros=%v images=%v", review.Pros, review.Images)
	}
	if !f.events.has(reviewEventCreated) {
		t.Fatalf("expected created event, got %v", f.events.types())
	}
	// pending reviews do not move the product rating.
	if got := f.products.get("prd_tee").Rating; got.Count != 0 {
		t.Fatalf("expected rating untouched, got %+v", got)
	}
}

func TestReviewServiceSubmitRequiresDeliveredPurchase(t *testing.T) {
	f := newReviewFixture()
	svc := f.service(t)

	cases := map[string]SubmitReviewCommand{
		"order not delivered":  {UserID: "stu-1", ProductID: "prd_tee", OrderID: "ord_shipped", Rating: 5},
		"someone else's":       {UserID: "stu-2", ProductID: "prd_tee", OrderID: "ord_delivered", Rating: 5},
		"product not on order": {UserID: "stu-1", ProductID: "prd_mug", OrderID: "ord_delivered", Rating: 5},
		"missing order":        {UserID: "stu-1", ProductID: "prd_tee", OrderID: "ord_missing", Rating: 5},
	}
	for name, cmd := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := svc.SubmitReview(context.Background(), cmd); !errors.Is(err, ErrReviewNotPurchased) {
				t.Fatalf("expected not purchased, got %v", err)
			}
		})
	}
}

func TestReviewServiceSubmitValidation(t *testing.T) {
	f := newReviewFixture()
	svc := f.service(t)

	base := SubmitReviewCommand{UserID: "stu-1", ProductID: "prd_tee", OrderID: "ord_delivered", Rating: 3}
	cases := map[string]func(*SubmitReviewCommand){
		"rating zero":        func(c *SubmitReviewCommand) { c.Rating = 0 },
		"rating six":         func(c *SubmitReviewCommand) { c.Rating = 6 },
		"long title":         func(c *SubmitReviewCommand) { c.Title = strings.Repeat("a", maxReviewTitleLength+1) },
		"long comment":       func(c *SubmitReviewCommand) { c.Comment = strings.Repeat("b", maxReviewCommentLen+1) },
		"too many images":    func(c *SubmitReviewCommand) { c.Images = []string{"1", "2", "3", "4", "5", "6"} },
		"profanity":          func(c *SubmitReviewCommand) { c.Comment = "this is shit quality" },
		"unknown visibility": func(c *SubmitReviewCommand) { c.Visibility = "friends" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cmd := base
			mutate(&cmd)
			if _, err := svc.SubmitReview(context.Background(), cmd); !errors.Is(err, ErrReviewInvalidInput) {
				t.Fatalf("expected invalid input, got %v", err)
			}
		})
	}
}

func TestReviewServiceSubmitDuplicate(t *testing.T) {
	existing := approvedReview("rev_old", "stu-1", 5)
	f := newReviewFixture(existing)
	svc := f.service(t)
	cmd := SubmitReviewCommand{UserID: "stu-1", ProductID: "prd_tee", OrderID: "ord_delivered", Rating: 2}

	if _, err := svc.SubmitReview(context.Background(), cmd); !errors.Is(err, ErrReviewDuplicate) {
		t.Fatalf("expected duplicate, got %v", err)
	}

	// deleting the review does not free the slot.
	if err := svc.DeleteReview(context.Background(), DeleteReviewCommand{ReviewID: "rev_old", ActorID: "stu-1"}); err != nil {
		t.Fatalf("delete review: %v", err)
	}
	if _, err := svc.SubmitReview(context.Background(), cmd); !errors.Is(err, ErrReviewDuplicate) {
		t.Fatalf("expected duplicate after delete, got %v", err)
	}
	if n := f.reviews.count("stu-1", "prd_tee"); n != 1 {
		t.Fatalf("expected a single review for the pair, got %d", n)
	}
}

// racingReviewRepo hides existing reviews from the lookup, as a concurrent submit would see it.
type racingReviewRepo struct {
	*memReviewRepo
}

func (r racingReviewRepo) FindByUserAndProduct(_ context.Context, userID, productID string, _ bool) (domain.Review, error) {
	return domain.Review{}, notFoundErr("review for", userID+"/"+productID)
}

func TestReviewServiceSubmitConcurrentDuplicate(t *testing.T) {
	f := newReviewFixture()
	svc, err := NewReviewService(ReviewServiceDeps{
		Reviews:  racingReviewRepo{f.reviews},
		Orders:   f.orders,
		Products: f.products,
		Clock:    fixedClock(reviewTestNow),
	})
	if err != nil {
		t.Fatalf("new review service: %v", err)
	}
	cmd := SubmitReviewCommand{UserID: "stu-1", ProductID: "prd_tee", OrderID: "ord_delivered", Rating: 4}

	if _, err := svc.SubmitReview(context.Background(), cmd); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if _, err := svc.SubmitReview(context.Background(), cmd); !errors.Is(err, ErrReviewDuplicate) {
		t.Fatalf("expected id collision to report duplicate, got %v", err)
	}
	if n := f.reviews.count("stu-1", "prd_tee"); n != 1 {
		t.Fatalf("expected a single review for the pair, got %d", n)
	}
}

func TestReviewServiceModerationRecomputesRating(t *testing.T) {
	pending := approvedReview("rev_3", "stu-3", 2)
	pending.Status = domain.ReviewStatusPending
	f := newReviewFixture(approvedReview("rev_1", "stu-1", 5), approvedReview("rev_2", "stu-2", 4), pending)
	svc := f.service(t)
	ctx := context.Background()

	rating, err := svc.RecomputeProductRating(ctx, "prd_tee")
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if rating.Count != 2 || rating.Average != 4.5 {
		t.Fatalf("expected 4.5 over 2, got %+v", rating)
	}

	review, err := svc.ModerateReview(ctx, ModerateReviewCommand{ReviewID: "rev_3", Status: domain.ReviewStatusApproved, Response: "Thanks for the feedback", ActorID: "admin-1"})
	if err != nil {
		t.Fatalf("moderate: %v", err)
	}
	if review.AdminResponse == nil || review.AdminResponse.RespondedBy != "admin-1" {
		t.Fatalf("expected admin response, got %+v", review.AdminResponse)
	}
	product := f.products.get("prd_tee")
	if product.Rating.Count != 3 || product.Rating.Average != 3.7 {
		t.Fatalf("expected 3.7 over 3, got %+v", product.Rating)
	}

	if _, err := svc.ModerateReview(ctx, ModerateReviewCommand{ReviewID: "rev_1", Status: domain.ReviewStatusRejected}); err != nil {
		t.Fatalf("reject: %v", err)
	}
	product = f.products.get("prd_tee")
	if product.Rating.Count != 2 || product.Rating.Average != 3 {
		t.Fatalf("expected 3.0 over 2, got %+v", product.Rating)
	}

	summary, err := svc.ProductSummary(ctx, "prd_tee")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.Distribution[4] != 1 || summary.Distribution[2] != 1 || summary.Distribution[5] != 0 {
		t.Fatalf("unexpected distribution %v", summary.Distribution)
	}

	if _, err := svc.ModerateReview(ctx, ModerateReviewCommand{ReviewID: "rev_2", Status: "hidden"}); !errors.Is(err, ErrReviewInvalidInput) {
		t.Fatalf("expected unknown status rejected, got %v", err)
	}
}

func TestReviewServiceUpdateReturnsToModeration(t *testing.T) {
	f := newReviewFixture(approvedReview("rev_1", "stu-1", 5), approvedReview("rev_2", "stu-2", 3))
	svc := f.service(t)
	ctx := context.Background()
	if _, err := svc.RecomputeProductRating(ctx, "prd_tee"); err != nil {
		t.Fatalf("recompute: %v", err)
	}

	rating := 1
	if _, err := svc.UpdateReview(ctx, UpdateReviewCommand{ReviewID: "rev_1", ActorID: "stu-2", Rating: &rating}); !errors.Is(err, ErrReviewForbidden) {
		t.Fatalf("expected forbidden for another user, got %v", err)
	}
	review, err := svc.UpdateReview(ctx, UpdateReviewCommand{ReviewID: "rev_1", ActorID: "stu-1", Rating: &rating})
	if err != nil {
		t.Fatalf("update review: %v", err)
	}
	if review.Status != domain.ReviewStatusPending || review.Rating != 1 {
		t.Fatalf("expected pending review with new rating, got %s %d", review.Status, review.Rating)
	}
	// the edited review leaves the aggregate until it is approved again.
	product := f.products.get("prd_tee")
	if product.Rating.Count != 1 || product.Rating.Average != 3 {
		t.Fatalf("expected rating of remaining review, got %+v", product.Rating)
	}
}

func TestReviewServiceDeleteByStaffAndRatingFailureLogged(t *testing.T) {
	f := newReviewFixture(approvedReview("rev_1", "stu-1", 5))
	f.products = newMemProductRepo()
	svc := f.service(t)

	if err := svc.DeleteReview(context.Background(), DeleteReviewCommand{ReviewID: "rev_1", ActorID: "stu-9"}); !errors.Is(err, ErrReviewForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if err := svc.DeleteReview(context.Background(), DeleteReviewCommand{ReviewID: "rev_1", ActorID: "admin-1", IsStaff: true}); err != nil {
		t.Fatalf("staff delete: %v", err)
	}
	if f.reviews.get("rev_1").IsActive {
		t.Fatal("expected review soft deleted")
	}
	if !f.logs.has("review.rating.recompute.failed") {
		t.Fatal("expected missing product to be logged during recompute")
	}
}

func TestReviewServiceHelpfulVotes(t *testing.T) {
	f := newReviewFixture(approvedReview("rev_1", "stu-1", 4))
	svc := f.service(t)
	ctx := context.Background()

	if _, err := svc.MarkHelpful(ctx, ReviewHelpfulCommand{ReviewID: "rev_1", VoterID: "stu-1"}); !errors.Is(err, ErrReviewInvalidInput) {
		t.Fatalf("expected own vote rejected, got %v", err)
	}
	for _, voter := range []string{"stu-2", "stu-3", "stu-2"} {
		if _, err := svc.MarkHelpful(ctx, ReviewHelpfulCommand{ReviewID: "rev_1", VoterID: voter}); err != nil {
			t.Fatalf("mark helpful by %s: %v", voter, err)
		}
	}
	review := f.reviews.get("rev_1")
	if review.Helpful.Count != 2 || len(review.Helpful.Users) != 2 {
		t.Fatalf("expected two distinct votes, got %+v", review.Helpful)
	}

	review, err := svc.UnmarkHelpful(ctx, ReviewHelpfulCommand{ReviewID: "rev_1", VoterID: "stu-2"})
	if err != nil {
		t.Fatalf("unmark: %v", err)
	}
	if review.Helpful.Count != 1 || review.Helpful.Users[0] != "stu-3" {
		t.Fatalf("expected stu-3 only, got %+v", review.Helpful)
	}
}

func TestReviewServiceListShowsApprovedPublicOnly(t *testing.T) {
	private := approvedReview("rev_2", "stu-2", 3)
	private.Visibility = domain.ReviewVisibilityPrivate
	pending := approvedReview("rev_3", "stu-3", 1)
	pending.Status = domain.ReviewStatusPending
	f := newReviewFixture(approvedReview("rev_1", "stu-1", 5), private, pending)
	svc := f.service(t)

	page, err := svc.ListProductReviews(context.Background(), "prd_tee", Pagination{})
	if err != nil {
		t.Fatalf("list reviews: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].ID != "rev_1" {
		t.Fatalf("expected only the approved public review, got %+v", page.Items)
	}
}

func TestBasicProfanityChecker(t *testing.T) {
	if !basicProfanityChecker("What the FUCK.") {
		t.Fatal("expected profanity detected regardless of case and punctuation")
	}
	if basicProfanityChecker("Dickens novels at the bookstore") {
		t.Fatal("expected whole-word matching only")
	}
}
