package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	domain "github.com/campus-merch/api/internal/domain"
	"github.com/campus-merch/api/internal/repositories"
)

type testRepoError struct {
	err         error
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *testRepoError) Error() string       { return e.err.Error() }
func (e *testRepoError) Unwrap() error       { return e.err }
func (e *testRepoError) IsNotFound() bool    { return e.notFound }
func (e *testRepoError) IsConflict() bool    { return e.conflict }
func (e *testRepoError) IsUnavailable() bool { return e.unavailable }

func notFoundErr(kind, id string) error {
	return &testRepoError{err: fmt.Errorf("%s %s not found", kind, id), notFound: true}
}

func conflictErr(kind, id string) error {
	return &testRepoError{err: fmt.Errorf("%s %s already exists", kind, id), conflict: true}
}

func unavailableErr() error {
	return &testRepoError{err: errors.New("backend offline"), unavailable: true}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func sequenceIDs(prefix string) func() string {
	var (
		mu sync.Mutex
		n  int
	)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s%03d", prefix, n)
	}
}

type captureEvents struct {
	mu     sync.Mutex
	events []DomainEvent
	err    error
}

func (c *captureEvents) PublishEvent(_ context.Context, event DomainEvent) error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return c.err
}

func (c *captureEvents) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.events))
	for _, event := range c.events {
		out = append(out, event.Type)
	}
	return out
}

func (c *captureEvents) has(eventType string) bool {
	return slices.Contains(c.types(), eventType)
}

type captureMetrics struct {
	mu     sync.Mutex
	counts map[string]int
}

func (m *captureMetrics) Incr(_ context.Context, name string, _ map[string]string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counts == nil {
		m.counts = map[string]int{}
	}
	m.counts[name]++
}

func (m *captureMetrics) count(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[name]
}

type captureLogs struct {
	mu     sync.Mutex
	events []string
}

func (l *captureLogs) log(_ context.Context, event string, _ map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *captureLogs) has(event string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Contains(l.events, event)
}

// memProductRepo ----------------------------------------------------------

type memProductRepo struct {
	mu        sync.Mutex
	products  map[string]domain.Product
	restoreFn func([]repositories.StockLine) error
}

func newMemProductRepo(products ...domain.Product) *memProductRepo {
	repo := &memProductRepo{products: map[string]domain.Product{}}
	for _, product := range products {
		repo.products[product.ID] = product
	}
	return repo
}

func (r *memProductRepo) Insert(_ context.Context, product domain.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.products[product.ID]; ok {
		return conflictErr("product", product.ID)
	}
	r.products[product.ID] = product
	return nil
}

func (r *memProductRepo) Update(_ context.Context, product domain.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.products[product.ID]; !ok {
		return notFoundErr("product", product.ID)
	}
	r.products[product.ID] = product
	return nil
}

func (r *memProductRepo) FindByID(_ context.Context, productID string) (domain.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	product, ok := r.products[productID]
	if !ok {
		return domain.Product{}, notFoundErr("product", productID)
	}
	return product, nil
}

func (r *memProductRepo) List(_ context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var items []domain.Product
	for _, product := range r.products {
		if !filter.IncludeInactive && !product.IsActive {
			continue
		}
		if filter.Category != nil && product.Category != *filter.Category {
			continue
		}
		items = append(items, product)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return domain.CursorPage[domain.Product]{Items: items}, nil
}

func (r *memProductRepo) DecrementStock(_ context.Context, lines []repositories.StockLine) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, line := range lines {
		product, ok := r.products[line.ProductID]
		if !ok {
			return repositories.NewInventoryError(repositories.InventoryErrorProductNotFound, line.ProductID, nil)
		}
		if product.Stock < line.Quantity {
			invErr := repositories.NewInventoryError(repositories.InventoryErrorInsufficientStock, line.ProductID, nil)
			invErr.Available = product.Stock
			invErr.Requested = line.Quantity
			return invErr
		}
	}
	for _, line := range lines {
		product := r.products[line.ProductID]
		product.Stock -= line.Quantity
		product.Sales.TotalSold += line.Quantity
		product.Sales.Revenue += line.Revenue
		r.products[line.ProductID] = product
	}
	return nil
}

func (r *memProductRepo) RestoreStock(_ context.Context, lines []repositories.StockLine) error {
	if r.restoreFn != nil {
		if err := r.restoreFn(lines); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, line := range lines {
		product, ok := r.products[line.ProductID]
		if !ok {
			continue
		}
		product.Stock += line.Quantity
		product.Sales.TotalSold -= line.Quantity
		product.Sales.Revenue -= line.Revenue
		r.products[line.ProductID] = product
	}
	return nil
}

func (r *memProductRepo) UpdateRating(_ context.Context, productID string, rating domain.ProductRating, updatedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	product, ok := r.products[productID]
	if !ok {
		return notFoundErr("product", productID)
	}
	product.Rating = rating
	product.UpdatedAt = updatedAt
	r.products[productID] = product
	return nil
}

func (r *memProductRepo) get(id string) domain.Product {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.products[id]
}

// memOrderRepo ------------------------------------------------------------

type memOrderRepo struct {
	mu       sync.Mutex
	orders   map[string]domain.Order
	updateFn func(domain.Order) error
}

func newMemOrderRepo(orders ...domain.Order) *memOrderRepo {
	repo := &memOrderRepo{orders: map[string]domain.Order{}}
	for _, order := range orders {
		repo.orders[order.ID] = order
	}
	return repo
}

func (r *memOrderRepo) Insert(_ context.Context, order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[order.ID]; ok {
		return conflictErr("order", order.ID)
	}
	r.orders[order.ID] = order
	return nil
}

func (r *memOrderRepo) Update(_ context.Context, order domain.Order) error {
	if r.updateFn != nil {
		if err := r.updateFn(order); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[order.ID]; !ok {
		return notFoundErr("order", order.ID)
	}
	r.orders[order.ID] = order
	return nil
}

func (r *memOrderRepo) FindByID(_ context.Context, orderID string) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[orderID]
	if !ok {
		return domain.Order{}, notFoundErr("order", orderID)
	}
	return order, nil
}

func (r *memOrderRepo) FindByIDs(_ context.Context, orderIDs []string) ([]domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Order, 0, len(orderIDs))
	for _, id := range orderIDs {
		if order, ok := r.orders[id]; ok {
			out = append(out, order)
		}
	}
	return out, nil
}

func (r *memOrderRepo) FindByGatewayOrderID(_ context.Context, gatewayOrderID string) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, order := range r.orders {
		if order.Payment.GatewayOrderID == gatewayOrderID {
			return order, nil
		}
	}
	return domain.Order{}, notFoundErr("gateway order", gatewayOrderID)
}

func (r *memOrderRepo) List(_ context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var items []domain.Order
	for _, order := range r.orders {
		if filter.UserID != "" && order.UserID != filter.UserID {
			continue
		}
		if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, order.Status) {
			continue
		}
		items = append(items, order)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return domain.CursorPage[domain.Order]{Items: items}, nil
}

func (r *memOrderRepo) CountByStatus(context.Context) ([]domain.StatusBucket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return bucketize(r.orders, func(o domain.Order) (string, int64) { return string(o.Status), o.Pricing.Total }), nil
}

func (r *memOrderRepo) CountByPaymentStatus(context.Context) ([]domain.StatusBucket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return bucketize(r.orders, func(o domain.Order) (string, int64) {
		if o.Payment.Status == domain.PaymentStatusRefunded {
			return string(o.Payment.Status), o.Payment.RefundAmount
		}
		return string(o.Payment.Status), o.Pricing.Total
	}), nil
}

func (r *memOrderRepo) get(id string) domain.Order {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.orders[id]
}

func bucketize[T any](items map[string]T, key func(T) (string, int64)) []domain.StatusBucket {
	index := map[string]int{}
	var buckets []domain.StatusBucket
	for _, item := range items {
		status, amount := key(item)
		i, ok := index[status]
		if !ok {
			i = len(buckets)
			index[status] = i
			buckets = append(buckets, domain.StatusBucket{Status: status})
		}
		buckets[i].Count++
		buckets[i].Amount += amount
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Status < buckets[j].Status })
	return buckets
}

// memGroupRepo ------------------------------------------------------------

type memGroupRepo struct {
	mu     sync.Mutex
	groups map[string]domain.GroupOrder
}

func newMemGroupRepo(groups ...domain.GroupOrder) *memGroupRepo {
	repo := &memGroupRepo{groups: map[string]domain.GroupOrder{}}
	for _, group := range groups {
		repo.groups[group.ID] = group
	}
	return repo
}

func (r *memGroupRepo) Insert(_ context.Context, group domain.GroupOrder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.groups[group.ID]; ok {
		return conflictErr("group order", group.ID)
	}
	r.groups[group.ID] = group
	return nil
}

func (r *memGroupRepo) Update(_ context.Context, group domain.GroupOrder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.groups[group.ID]; !ok {
		return notFoundErr("group order", group.ID)
	}
	r.groups[group.ID] = group
	return nil
}

func (r *memGroupRepo) FindByID(_ context.Context, groupID string) (domain.GroupOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	group, ok := r.groups[groupID]
	if !ok {
		return domain.GroupOrder{}, notFoundErr("group order", groupID)
	}
	return group, nil
}

func (r *memGroupRepo) List(_ context.Context, filter repositories.GroupOrderListFilter) (domain.CursorPage[domain.GroupOrder], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var items []domain.GroupOrder
	for _, group := range r.groups {
		if filter.Department != "" && group.Department != filter.Department {
			continue
		}
		if filter.MemberID != "" && !group.IsMember(filter.MemberID) {
			continue
		}
		items = append(items, group)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return domain.CursorPage[domain.GroupOrder]{Items: items}, nil
}

func (r *memGroupRepo) ListExpired(_ context.Context, now time.Time, limit int) ([]domain.GroupOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.GroupOrder
	for _, group := range r.groups {
		if group.Status == domain.GroupOrderStatusActive && !group.Settings.Deadline.After(now) {
			out = append(out, group)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memGroupRepo) get(id string) domain.GroupOrder {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.groups[id]
}

// memDistributionRepo -----------------------------------------------------

type memDistributionRepo struct {
	mu            sync.Mutex
	distributions map[string]domain.Distribution
}

func newMemDistributionRepo(distributions ...domain.Distribution) *memDistributionRepo {
	repo := &memDistributionRepo{distributions: map[string]domain.Distribution{}}
	for _, distribution := range distributions {
		repo.distributions[distribution.ID] = distribution
	}
	return repo
}

func (r *memDistributionRepo) Insert(_ context.Context, distribution domain.Distribution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.distributions[distribution.ID]; ok {
		return conflictErr("distribution", distribution.ID)
	}
	r.distributions[distribution.ID] = distribution
	return nil
}

func (r *memDistributionRepo) Update(_ context.Context, distribution domain.Distribution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.distributions[distribution.ID]; !ok {
		return notFoundErr("distribution", distribution.ID)
	}
	r.distributions[distribution.ID] = distribution
	return nil
}

func (r *memDistributionRepo) FindByID(_ context.Context, distributionID string) (domain.Distribution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	distribution, ok := r.distributions[distributionID]
	if !ok {
		return domain.Distribution{}, notFoundErr("distribution", distributionID)
	}
	return distribution, nil
}

func (r *memDistributionRepo) FindActiveByOrder(_ context.Context, orderID string) (domain.Distribution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, distribution := range r.distributions {
		if distribution.OrderID == orderID && distribution.IsActive && distribution.Status != domain.DistributionStatusCancelled {
			return distribution, nil
		}
	}
	return domain.Distribution{}, notFoundErr("distribution for order", orderID)
}

func (r *memDistributionRepo) List(_ context.Context, filter repositories.DistributionListFilter) (domain.CursorPage[domain.Distribution], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var items []domain.Distribution
	for _, distribution := range r.distributions {
		if filter.AssignedTo != "" && distribution.AssignedTo != filter.AssignedTo {
			continue
		}
		if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, distribution.Status) {
			continue
		}
		items = append(items, distribution)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return domain.CursorPage[domain.Distribution]{Items: items}, nil
}

func (r *memDistributionRepo) ListOverdue(_ context.Context, now time.Time, limit int) ([]domain.Distribution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Distribution
	for _, distribution := range r.distributions {
		if distribution.IsOverdue(now) {
			out = append(out, distribution)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memDistributionRepo) CountByStatus(context.Context) ([]domain.StatusBucket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return bucketize(r.distributions, func(d domain.Distribution) (string, int64) { return string(d.Status), 0 }), nil
}

func (r *memDistributionRepo) get(id string) domain.Distribution {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.distributions[id]
}

// memReviewRepo -----------------------------------------------------------

type memReviewRepo struct {
	mu      sync.Mutex
	reviews map[string]domain.Review
}

func newMemReviewRepo(reviews ...domain.Review) *memReviewRepo {
	repo := &memReviewRepo{reviews: map[string]domain.Review{}}
	for _, review := range reviews {
		repo.reviews[review.ID] = review
	}
	return repo
}

func (r *memReviewRepo) Insert(_ context.Context, review domain.Review) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.reviews[review.ID]; ok {
		return conflictErr("review", review.ID)
	}
	r.reviews[review.ID] = review
	return nil
}

func (r *memReviewRepo) Update(_ context.Context, review domain.Review) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.reviews[review.ID]; !ok {
		return notFoundErr("review", review.ID)
	}
	r.reviews[review.ID] = review
	return nil
}

func (r *memReviewRepo) FindByID(_ context.Context, reviewID string) (domain.Review, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	review, ok := r.reviews[reviewID]
	if !ok {
		return domain.Review{}, notFoundErr("review", reviewID)
	}
	return review, nil
}

func (r *memReviewRepo) FindByUserAndProduct(_ context.Context, userID, productID string, includeDeleted bool) (domain.Review, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, review := range r.reviews {
		if review.UserID != userID || review.ProductID != productID {
			continue
		}
		if !includeDeleted && !review.IsActive {
			continue
		}
		return review, nil
	}
	return domain.Review{}, notFoundErr("review for", userID+"/"+productID)
}

func (r *memReviewRepo) List(_ context.Context, filter repositories.ReviewListFilter) (domain.CursorPage[domain.Review], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var items []domain.Review
	for _, review := range r.reviews {
		if !review.IsActive {
			continue
		}
		if filter.ProductID != "" && review.ProductID != filter.ProductID {
			continue
		}
		if filter.Status != nil && review.Status != *filter.Status {
			continue
		}
		if filter.PublicOnly && review.Visibility != domain.ReviewVisibilityPublic {
			continue
		}
		items = append(items, review)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return domain.CursorPage[domain.Review]{Items: items}, nil
}

func (r *memReviewRepo) ListRated(_ context.Context, productID string) ([]domain.Review, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Review
	for _, review := range r.reviews {
		if review.ProductID == productID && review.IsActive && review.Status == domain.ReviewStatusApproved {
			out = append(out, review)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memReviewRepo) CountByStatus(context.Context) ([]domain.StatusBucket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return bucketize(r.reviews, func(rv domain.Review) (string, int64) { return string(rv.Status), 0 }), nil
}

func (r *memReviewRepo) count(userID, productID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, review := range r.reviews {
		if review.UserID == userID && review.ProductID == productID {
			n++
		}
	}
	return n
}

func (r *memReviewRepo) get(id string) domain.Review {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reviews[id]
}

// memLedger ---------------------------------------------------------------

type memLedger struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (l *memLedger) MarkProcessed(_ context.Context, eventID string, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.seen == nil {
		l.seen = map[string]bool{}
	}
	if l.seen[eventID] {
		return false, nil
	}
	l.seen[eventID] = true
	return true, nil
}

func (l *memLedger) Release(_ context.Context, eventID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.seen, eventID)
	return nil
}
