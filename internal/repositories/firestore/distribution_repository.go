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

const distributionsCollection = "distributions"

var distributionStatuses = []domain.DistributionStatus{
	domain.DistributionStatusPending,
	domain.DistributionStatusAssigned,
	domain.DistributionStatusReady,
	domain.DistributionStatusInTransit,
	domain.DistributionStatusDelivered,
	domain.DistributionStatusCancelled,
}

// openDistributionStatuses are the statuses that can still become overdue.
var openDistributionStatuses = []domain.DistributionStatus{
	domain.DistributionStatusPending,
	domain.DistributionStatusAssigned,
	domain.DistributionStatusReady,
	domain.DistributionStatusInTransit,
}

// DistributionRepository persists distribution records in Firestore.
type DistributionRepository struct {
	base *pfirestore.Collection[distributionDocument]
}

var _ repositories.DistributionRepository = (*DistributionRepository)(nil)

// NewDistributionRepository constructs a Firestore-backed distribution repository.
func NewDistributionRepository(provider *pfirestore.Provider) (*DistributionRepository, error) {
	if provider == nil {
		return nil, errors.New("distribution repository: firestore provider is required")
	}
	return &DistributionRepository{base: pfirestore.NewCollection[distributionDocument](provider, distributionsCollection)}, nil
}

func (r *DistributionRepository) Insert(ctx context.Context, d domain.Distribution) error {
	if r == nil || r.base == nil {
		return errors.New("distribution repository not initialised")
	}
	id := strings.TrimSpace(d.ID)
	if id == "" {
		return errors.New("distribution repository: distribution id is required")
	}
	return r.base.Create(ctx, id, encodeDistributionDocument(d))
}

func (r *DistributionRepository) Update(ctx context.Context, d domain.Distribution) error {
	if r == nil || r.base == nil {
		return errors.New("distribution repository not initialised")
	}
	id := strings.TrimSpace(d.ID)
	if id == "" {
		return errors.New("distribution repository: distribution id is required")
	}
	return r.base.Replace(ctx, id, encodeDistributionDocument(d))
}

func (r *DistributionRepository) FindByID(ctx context.Context, distributionID string) (domain.Distribution, error) {
	if r == nil || r.base == nil {
		return domain.Distribution{}, errors.New("distribution repository not initialised")
	}
	distributionID = strings.TrimSpace(distributionID)
	if distributionID == "" {
		return domain.Distribution{}, errors.New("distribution repository: distribution id is required")
	}
	doc, err := r.base.Get(ctx, distributionID)
	if err != nil {
		return domain.Distribution{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// FindActiveByOrder returns the live, non-cancelled distribution of an order.
func (r *DistributionRepository) FindActiveByOrder(ctx context.Context, orderID string) (domain.Distribution, error) {
	if r == nil || r.base == nil {
		return domain.Distribution{}, errors.New("distribution repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Distribution{}, errors.New("distribution repository: order id is required")
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("orderId", "==", orderID).Where("isActive", "==", true)
	})
	if err != nil {
		return domain.Distribution{}, err
	}
	for _, doc := range docs {
		if doc.Data.Status != string(domain.DistributionStatusCancelled) {
			return doc.Data.toDomain(doc.ID), nil
		}
	}
	return domain.Distribution{}, errNotFound("distributions.find_active_by_order", "no active distribution for order %s", orderID)
}

func (r *DistributionRepository) List(ctx context.Context, filter repositories.DistributionListFilter) (domain.CursorPage[domain.Distribution], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Distribution]{}, errors.New("distribution repository not initialised")
	}
	limit, fetch := pageLimits(filter.Pagination.PageSize)
	startAfter, err := decodeCreatedCursor(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Distribution]{}, fmt.Errorf("distribution repository: %w", err)
	}
	assignee := strings.TrimSpace(filter.AssignedTo)
	groupID := strings.TrimSpace(filter.GroupOrderID)
	statuses := stringsOf(filter.Statuses)

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("isActive", "==", true)
		if assignee != "" {
			q = q.Where("assignedTo", "==", assignee)
		}
		if groupID != "" {
			q = q.Where("groupOrderId", "==", groupID)
		}
		q = whereIn(q, "status", statuses)
		return newestFirst(q, startAfter, fetch)
	})
	if err != nil {
		return domain.CursorPage[domain.Distribution]{}, err
	}

	next := ""
	if limit > 0 && len(docs) == fetch {
		last := docs[limit-1]
		next = encodeCreatedCursor(last.Data.CreatedAt, last.ID)
		docs = docs[:limit]
	}
	items := make([]domain.Distribution, 0, len(docs))
	for _, doc := range docs {
		items = append(items, doc.Data.toDomain(doc.ID))
	}
	return domain.CursorPage[domain.Distribution]{Items: items, NextPageToken: next}, nil
}

// ListOverdue returns open distributions scheduled before now, oldest first.
func (r *DistributionRepository) ListOverdue(ctx context.Context, now time.Time, limit int) ([]domain.Distribution, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("distribution repository not initialised")
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("isActive", "==", true).
			Where("status", "in", stringsOf(openDistributionStatuses)).
			Where("scheduledDate", "<", now.UTC()).
			OrderBy("scheduledDate", firestore.Asc)
		if limit > 0 {
			q = q.Limit(limit)
		}
		return q
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.Distribution, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.Data.toDomain(doc.ID))
	}
	return out, nil
}

// CountByStatus returns the number of active distributions per status.
func (r *DistributionRepository) CountByStatus(ctx context.Context) ([]domain.StatusBucket, error) {
	return countBuckets(ctx, r.base, "status", "", stringsOf(distributionStatuses))
}

type distributionDocument struct {
	OrderID       string                       `firestore:"orderId"`
	GroupOrderID  string                       `firestore:"groupOrderId,omitempty"`
	AssignedTo    string                       `firestore:"assignedTo"`
	Location      distributionLocationDocument `firestore:"location"`
	ScheduledDate time.Time                    `firestore:"scheduledDate"`
	ActualDate    *time.Time                   `firestore:"actualDate,omitempty"`
	Status        string                       `firestore:"status"`
	Tracking      distributionTrackingDocument `firestore:"tracking"`
	Items         []distributionItemDocument   `firestore:"items"`
	DeliveryProof *deliveryProofDocument       `firestore:"deliveryProof,omitempty"`
	Timeline      []timelineDocument           `firestore:"timeline"`
	Notes         string                       `firestore:"notes,omitempty"`
	CancelReason  string                       `firestore:"cancelReason,omitempty"`
	IsActive      bool                         `firestore:"isActive"`
	CreatedAt     time.Time                    `firestore:"createdAt"`
	UpdatedAt     time.Time                    `firestore:"updatedAt"`
}

type distributionLocationDocument struct {
	Name    string `firestore:"name"`
	Address string `firestore:"address,omitempty"`
	Contact string `firestore:"contact,omitempty"`
}

type distributionTrackingDocument struct {
	Number            string     `firestore:"number,omitempty"`
	Carrier           string     `firestore:"carrier,omitempty"`
	EstimatedDelivery *time.Time `firestore:"estimatedDelivery,omitempty"`
	ActualDelivery    *time.Time `firestore:"actualDelivery,omitempty"`
}

type distributionItemDocument struct {
	ID        string `firestore:"id"`
	ProductID string `firestore:"productId"`
	Quantity  int    `firestore:"quantity"`
	Status    string `firestore:"status"`
	Notes     string `firestore:"notes,omitempty"`
}

type deliveryProofDocument struct {
	Signature     string    `firestore:"signature,omitempty"`
	ImageURL      string    `firestore:"imageUrl,omitempty"`
	DeliveredBy   string    `firestore:"deliveredBy"`
	ReceiverName  string    `firestore:"receiverName,omitempty"`
	ReceiverPhone string    `firestore:"receiverPhone,omitempty"`
	RecordedAt    time.Time `firestore:"recordedAt"`
}

func encodeDistributionDocument(d domain.Distribution) distributionDocument {
	doc := distributionDocument{
		OrderID:      d.OrderID,
		GroupOrderID: d.GroupOrderID,
		AssignedTo:   d.AssignedTo,
		Location: distributionLocationDocument{
			Name:    d.Location.Name,
			Address: d.Location.Address,
			Contact: d.Location.Contact,
		},
		ScheduledDate: d.ScheduledDate.UTC(),
		ActualDate:    timePtr(d.ActualDate),
		Status:        string(d.Status),
		Tracking: distributionTrackingDocument{
			Number:            d.Tracking.Number,
			Carrier:           d.Tracking.Carrier,
			EstimatedDelivery: timePtr(d.Tracking.EstimatedDelivery),
			ActualDelivery:    timePtr(d.Tracking.ActualDelivery),
		},
		Timeline:     encodeTimeline(d.Timeline),
		Notes:        d.Notes,
		CancelReason: d.CancelReason,
		IsActive:     d.IsActive,
		CreatedAt:    d.CreatedAt.UTC(),
		UpdatedAt:    d.UpdatedAt.UTC(),
	}
	for _, item := range d.Items {
		doc.Items = append(doc.Items, distributionItemDocument{
			ID:        item.ID,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Status:    string(item.Status),
			Notes:     item.Notes,
		})
	}
	if p := d.DeliveryProof; p != nil {
		doc.DeliveryProof = &deliveryProofDocument{
			Signature:     p.Signature,
			ImageURL:      p.ImageURL,
			DeliveredBy:   p.DeliveredBy,
			ReceiverName:  p.ReceiverName,
			ReceiverPhone: p.ReceiverPhone,
			RecordedAt:    p.RecordedAt.UTC(),
		}
	}
	return doc
}

func (d distributionDocument) toDomain(id string) domain.Distribution {
	out := domain.Distribution{
		ID:           id,
		OrderID:      d.OrderID,
		GroupOrderID: d.GroupOrderID,
		AssignedTo:   d.AssignedTo,
		Location: domain.DistributionLocation{
			Name:    d.Location.Name,
			Address: d.Location.Address,
			Contact: d.Location.Contact,
		},
		ScheduledDate: d.ScheduledDate,
		ActualDate:    timePtr(d.ActualDate),
		Status:        domain.DistributionStatus(d.Status),
		Tracking: domain.DistributionTracking{
			Number:            d.Tracking.Number,
			Carrier:           d.Tracking.Carrier,
			EstimatedDelivery: timePtr(d.Tracking.EstimatedDelivery),
			ActualDelivery:    timePtr(d.Tracking.ActualDelivery),
		},
		Timeline:     decodeTimeline(d.Timeline),
		Notes:        d.Notes,
		CancelReason: d.CancelReason,
		IsActive:     d.IsActive,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
	for _, item := range d.Items {
		out.Items = append(out.Items, domain.DistributionItem{
			ID:        item.ID,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Status:    domain.DistributionItemStatus(item.Status),
			Notes:     item.Notes,
		})
	}
	if p := d.DeliveryProof; p != nil {
		out.DeliveryProof = &domain.DeliveryProof{
			Signature:     p.Signature,
			ImageURL:      p.ImageURL,
			DeliveredBy:   p.DeliveredBy,
			ReceiverName:  p.ReceiverName,
			ReceiverPhone: p.ReceiverPhone,
			RecordedAt:    p.RecordedAt,
		}
	}
	return out
}
