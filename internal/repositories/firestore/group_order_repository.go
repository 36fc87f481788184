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

const groupOrdersCollection = "groupOrders"

// GroupOrderRepository persists group orders in Firestore.
type GroupOrderRepository struct {
	base *pfirestore.Collection[groupOrderDocument]
}

var _ repositories.GroupOrderRepository = (*GroupOrderRepository)(nil)

// NewGroupOrderRepository constructs a Firestore-backed group order repository.
func NewGroupOrderRepository(provider *pfirestore.Provider) (*GroupOrderRepository, error) {
	if provider == nil {
		return nil, errors.New("group order repository: firestore provider is required")
	}
	return &GroupOrderRepository{base: pfirestore.NewCollection[groupOrderDocument](provider, groupOrdersCollection)}, nil
}

func (r *GroupOrderRepository) Insert(ctx context.Context, group domain.GroupOrder) error {
	if r == nil || r.base == nil {
		return errors.New("group order repository not initialised")
	}
	id := strings.TrimSpace(group.ID)
	if id == "" {
		return errors.New("group order repository: group id is required")
	}
	return r.base.Create(ctx, id, encodeGroupOrderDocument(group))
}

func (r *GroupOrderRepository) Update(ctx context.Context, group domain.GroupOrder) error {
	if r == nil || r.base == nil {
		return errors.New("group order repository not initialised")
	}
	id := strings.TrimSpace(group.ID)
	if id == "" {
		return errors.New("group order repository: group id is required")
	}
	return r.base.Replace(ctx, id, encodeGroupOrderDocument(group))
}

func (r *GroupOrderRepository) FindByID(ctx context.Context, groupID string) (domain.GroupOrder, error) {
	if r == nil || r.base == nil {
		return domain.GroupOrder{}, errors.New("group order repository not initialised")
	}
	groupID = strings.TrimSpace(groupID)
	if groupID == "" {
		return domain.GroupOrder{}, errors.New("group order repository: group id is required")
	}
	doc, err := r.base.Get(ctx, groupID)
	if err != nil {
		return domain.GroupOrder{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *GroupOrderRepository) List(ctx context.Context, filter repositories.GroupOrderListFilter) (domain.CursorPage[domain.GroupOrder], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.GroupOrder]{}, errors.New("group order repository not initialised")
	}
	limit, fetch := pageLimits(filter.Pagination.PageSize)
	startAfter, err := decodeCreatedCursor(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.GroupOrder]{}, fmt.Errorf("group order repository: %w", err)
	}
	department := strings.TrimSpace(filter.Department)
	memberID := strings.TrimSpace(filter.MemberID)

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("isActive", "==", true)
		if department != "" {
			q = q.Where("department", "==", department)
		}
		if memberID != "" {
			q = q.Where("memberIds", "array-contains", memberID)
		}
		if filter.Status != nil {
			q = q.Where("status", "==", string(*filter.Status))
		}
		return newestFirst(q, startAfter, fetch)
	})
	if err != nil {
		return domain.CursorPage[domain.GroupOrder]{}, err
	}

	next := ""
	if limit > 0 && len(docs) == fetch {
		last := docs[limit-1]
		next = encodeCreatedCursor(last.Data.CreatedAt, last.ID)
		docs = docs[:limit]
	}
	items := make([]domain.GroupOrder, 0, len(docs))
	for _, doc := range docs {
		items = append(items, doc.Data.toDomain(doc.ID))
	}
	return domain.CursorPage[domain.GroupOrder]{Items: items, NextPageToken: next}, nil
}

// ListExpired returns active groups whose deadline passed before now, oldest deadline first.
func (r *GroupOrderRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]domain.GroupOrder, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("group order repository not initialised")
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("status", "==", string(domain.GroupOrderStatusActive)).
			Where("settings.deadline", "<", now.UTC()).
			OrderBy("settings.deadline", firestore.Asc)
		if limit > 0 {
			q = q.Limit(limit)
		}
		return q
	})
	if err != nil {
		return nil, err
	}
	groups := make([]domain.GroupOrder, 0, len(docs))
	for _, doc := range docs {
		groups = append(groups, doc.Data.toDomain(doc.ID))
	}
	return groups, nil
}

type groupOrderDocument struct {
	Name        string                     `firestore:"name"`
	Description string                     `firestore:"description,omitempty"`
	Department  string                     `firestore:"department"`
	OrganizerID string                     `firestore:"organizerId"`
	Members     []groupMemberDocument      `firestore:"members"`
	MemberIDs   []string                   `firestore:"memberIds"`
	OrderIDs    []string                   `firestore:"orderIds"`
	Status      string                     `firestore:"status"`
	Settings    groupOrderSettingsDocument `firestore:"settings"`
	Pricing     pricingDocument            `firestore:"pricing"`
	Payment     groupOrderPaymentDocument  `firestore:"payment"`
	IsActive    bool                       `firestore:"isActive"`
	CreatedAt   time.Time                  `firestore:"createdAt"`
	UpdatedAt   time.Time                  `firestore:"updatedAt"`
}

type groupMemberDocument struct {
	UserID   string    `firestore:"userId"`
	Role     string    `firestore:"role"`
	JoinedAt time.Time `firestore:"joinedAt"`
}

type groupOrderSettingsDocument struct {
	AllowMemberOrders    bool       `firestore:"allowMemberOrders"`
	RequireApproval      bool       `firestore:"requireApproval"`
	MaxOrderValue        int64      `firestore:"maxOrderValue"`
	Deadline             time.Time  `firestore:"deadline"`
	DistributionDate     *time.Time `firestore:"distributionDate,omitempty"`
	DistributionLocation string     `firestore:"distributionLocation,omitempty"`
}

type groupOrderPaymentDocument struct {
	Status          string `firestore:"status"`
	CollectedAmount int64  `firestore:"collectedAmount"`
	PendingAmount   int64  `firestore:"pendingAmount"`
	Method          string `firestore:"method,omitempty"`
}

func encodeGroupOrderDocument(g domain.GroupOrder) groupOrderDocument {
	doc := groupOrderDocument{
		Name:        g.Name,
		Description: g.Description,
		Department:  g.Department,
		OrganizerID: g.OrganizerID,
		OrderIDs:    cloneStrings(g.OrderIDs),
		Status:      string(g.Status),
		Settings: groupOrderSettingsDocument{
			AllowMemberOrders:    g.Settings.AllowMemberOrders,
			RequireApproval:      g.Settings.RequireApproval,
			MaxOrderValue:        g.Settings.MaxOrderValue,
			Deadline:             g.Settings.Deadline.UTC(),
			DistributionDate:     timePtr(g.Settings.DistributionDate),
			DistributionLocation: g.Settings.DistributionLocation,
		},
		Pricing: encodePricing(g.Pricing),
		Payment: groupOrderPaymentDocument{
			Status:          string(g.Payment.Status),
			CollectedAmount: g.Payment.CollectedAmount,
			PendingAmount:   g.Payment.PendingAmount,
			Method:          string(g.Payment.Method),
		},
		IsActive:  g.IsActive,
		CreatedAt: g.CreatedAt.UTC(),
		UpdatedAt: g.UpdatedAt.UTC(),
	}
	if doc.OrderIDs == nil {
		doc.OrderIDs = []string{}
	}
	doc.MemberIDs = make([]string, 0, len(g.Members))
	for _, m := range g.Members {
		doc.Members = append(doc.Members, groupMemberDocument{UserID: m.UserID, Role: string(m.Role), JoinedAt: m.JoinedAt.UTC()})
		doc.MemberIDs = append(doc.MemberIDs, m.UserID)
	}
	return doc
}

func (d groupOrderDocument) toDomain(id string) domain.GroupOrder {
	g := domain.GroupOrder{
		ID:          id,
		Name:        d.Name,
		Description: d.Description,
		Department:  d.Department,
		OrganizerID: d.OrganizerID,
		OrderIDs:    cloneStrings(d.OrderIDs),
		Status:      domain.GroupOrderStatus(d.Status),
		Settings: domain.GroupOrderSettings{
			AllowMemberOrders:    d.Settings.AllowMemberOrders,
			RequireApproval:      d.Settings.RequireApproval,
			MaxOrderValue:        d.Settings.MaxOrderValue,
			Deadline:             d.Settings.Deadline,
			DistributionDate:     timePtr(d.Settings.DistributionDate),
			DistributionLocation: d.Settings.DistributionLocation,
		},
		Pricing: d.Pricing.toDomain(),
		Payment: domain.GroupOrderPayment{
			Status:          domain.PaymentStatus(d.Payment.Status),
			CollectedAmount: d.Payment.CollectedAmount,
			PendingAmount:   d.Payment.PendingAmount,
			Method:          domain.PaymentMethod(d.Payment.Method),
		},
		IsActive:  d.IsActive,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
	for _, m := range d.Members {
		g.Members = append(g.Members, domain.GroupMember{UserID: m.UserID, Role: domain.GroupMemberRole(m.Role), JoinedAt: m.JoinedAt})
	}
	return g
}
