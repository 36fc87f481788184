package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/campus-merch/api/internal/domain"
	"github.com/campus-merch/api/internal/repositories"
)

const (
	groupOrderIDPrefix = "grp_"

	groupOrderEventCreated       = "group_order.created"
	groupOrderEventStatusChanged = "group_order.status.changed"
	groupOrderEventOrderJoined   = "group_order.order.joined"
	groupOrderEventOrderDetached = "group_order.order.detached"
	groupOrderEventMemberAdded   = "group_order.member.added"
	groupOrderEventMemberRemoved = "group_order.member.removed"

	maxGroupOrderPageSize = 100
	defaultExpiredBatch   = 100
)

var (
	// ErrGroupOrderInvalidInput signals malformed group order input.
	ErrGroupOrderInvalidInput = errors.New("group order: invalid input")
	// ErrGroupOrderNotFound indicates the group order does not exist.
	ErrGroupOrderNotFound = errors.New("group order: not found")
	// ErrGroupOrderClosed indicates the group no longer accepts member orders.
	ErrGroupOrderClosed = errors.New("group order: closed")
	// ErrGroupOrderNotMember indicates the ordering user is not a member of the group.
	ErrGroupOrderNotMember = errors.New("group order: not a member")
	// ErrGroupOrderForbidden indicates the actor is not a group admin.
	ErrGroupOrderForbidden = errors.New("group order: forbidden")
	// ErrGroupOrderIllegalTransition indicates a status change not allowed from the current status.
	ErrGroupOrderIllegalTransition = errors.New("group order: illegal status transition")
	// ErrGroupOrderConflict indicates a duplicate group order id.
	ErrGroupOrderConflict = errors.New("group order: conflict")
)

// GroupOrderServiceDeps bundles collaborators required to construct the group order service.
type GroupOrderServiceDeps struct {
	Groups      repositories.GroupOrderRepository
	Orders      repositories.OrderRepository
	UnitOfWork  repositories.UnitOfWork
	Clock       func() time.Time
	IDGenerator func() string
	Events      EventPublisher
	Logger      Logger
}

type groupOrderService struct {
	groups     repositories.GroupOrderRepository
	orders     repositories.OrderRepository
	unitOfWork repositories.UnitOfWork
	clock      func() time.Time
	newID      func() string
	sink       eventSink
	logger     Logger
}

// NewGroupOrderService wires dependencies into a concrete GroupOrderService implementation.
func NewGroupOrderService(deps GroupOrderServiceDeps) (GroupOrderService, error) {
	if deps.Groups == nil {
		return nil, errors.New("group order service: group order repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("group order service: order repository is required")
	}
	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return groupOrderIDPrefix + ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	return &groupOrderService{
		groups:     deps.Groups,
		orders:     deps.Orders,
		unitOfWork: unit,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		sink:   eventSink{events: deps.Events, logger: logger, prefix: "group_order"},
		logger: logger,
	}, nil
}

func (s *groupOrderService) CreateGroupOrder(ctx context.Context, cmd CreateGroupOrderCommand) (GroupOrder, error) {
	name := strings.TrimSpace(cmd.Name)
	department := strings.TrimSpace(cmd.Department)
	organizer := strings.TrimSpace(cmd.OrganizerID)
	now := s.clock()
	switch {
	case name == "":
		return GroupOrder{}, fmt.Errorf("%w: name is required", ErrGroupOrderInvalidInput)
	case department == "":
		return GroupOrder{}, fmt.Errorf("%w: department is required", ErrGroupOrderInvalidInput)
	case organizer == "":
		return GroupOrder{}, fmt.Errorf("%w: organizer is required", ErrGroupOrderInvalidInput)
	case !cmd.Settings.Deadline.After(now):
		return GroupOrder{}, fmt.Errorf("%w: deadline must be in the future", ErrGroupOrderInvalidInput)
	case cmd.Settings.MaxOrderValue < 0:
		return GroupOrder{}, fmt.Errorf("%w: max order value must be >= 0", ErrGroupOrderInvalidInput)
	case cmd.Settings.DistributionDate != nil && cmd.Settings.DistributionDate.Before(cmd.Settings.Deadline):
		return GroupOrder{}, fmt.Errorf("%w: distribution date must not precede the deadline", ErrGroupOrderInvalidInput)
	}

	settings := cmd.Settings
	settings.Deadline = settings.Deadline.UTC()
	settings.DistributionLocation = strings.TrimSpace(settings.DistributionLocation)
	group := GroupOrder{
		ID:          s.newID(),
		Name:        name,
		Description: strings.TrimSpace(cmd.Description),
		Department:  department,
		OrganizerID: organizer,
		Status:      domain.GroupOrderStatusActive,
		Settings:    settings,
		Payment:     domain.GroupOrderPayment{Status: domain.PaymentStatusPending},
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	group.AddMember(organizer, domain.GroupMemberRoleAdmin, now)
	for _, memberID := range cmd.MemberIDs {
		group.AddMember(strings.TrimSpace(memberID), domain.GroupMemberRoleMember, now)
	}

	if err := s.runInTx(ctx, func(txCtx context.Context) error {
		return s.groups.Insert(txCtx, group)
	}); err != nil {
		return GroupOrder{}, s.mapRepositoryError(err)
	}
	s.sink.publish(ctx, DomainEvent{
		Type:          groupOrderEventCreated,
		AggregateType: "group_order",
		AggregateID:   group.ID,
		CurrentStatus: string(group.Status),
		ActorID:       organizer,
		OccurredAt:    now,
		Metadata:      map[string]any{"department": department, "deadline": settings.Deadline},
	})
	return group, nil
}

func (s *groupOrderService) GetGroupOrder(ctx context.Context, groupID string) (GroupOrder, error) {
	groupID = strings.TrimSpace(groupID)
	if groupID == "" {
		return GroupOrder{}, fmt.Errorf("%w: group order id is required", ErrGroupOrderInvalidInput)
	}
	group, err := s.groups.FindByID(ctx, groupID)
	if err != nil {
		return GroupOrder{}, s.mapRepositoryError(err)
	}
	return group, nil
}

func (s *groupOrderService) ListGroupOrders(ctx context.Context, filter GroupOrderListFilter) (domain.CursorPage[GroupOrder], error) {
	if filter.Status != nil && !filter.Status.IsValid() {
		return domain.CursorPage[GroupOrder]{}, fmt.Errorf("%w: unknown status %q", ErrGroupOrderInvalidInput, *filter.Status)
	}
	if filter.Pagination.PageSize > maxGroupOrderPageSize {
		filter.Pagination.PageSize = maxGroupOrderPageSize
	}
	page, err := s.groups.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[GroupOrder]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *groupOrderService) AddMember(ctx context.Context, cmd GroupMemberCommand) (GroupOrder, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return GroupOrder{}, fmt.Errorf("%w: user id is required", ErrGroupOrderInvalidInput)
	}
	role := cmd.Role
	if role == "" {
		role = domain.GroupMemberRoleMember
	}
	if role != domain.GroupMemberRoleMember && role != domain.GroupMemberRoleAdmin {
		return GroupOrder{}, fmt.Errorf("%w: unknown member role %q", ErrGroupOrderInvalidInput, role)
	}

	var changed bool
	group, err := s.mutate(ctx, cmd.GroupID, func(group *GroupOrder, now time.Time) error {
		if !cmd.IsStaff && !group.IsAdmin(strings.TrimSpace(cmd.ActorID)) {
			return ErrGroupOrderForbidden
		}
		if group.Status != domain.GroupOrderStatusActive {
			return fmt.Errorf("%w: group order is %s", ErrGroupOrderClosed, group.Status)
		}
		changed = group.AddMember(userID, role, now)
		return nil
	})
	if err != nil {
		return GroupOrder{}, err
	}
	if changed {
		s.sink.publish(ctx, DomainEvent{
			Type:          groupOrderEventMemberAdded,
			AggregateType: "group_order",
			AggregateID:   group.ID,
			ActorID:       strings.TrimSpace(cmd.ActorID),
			OccurredAt:    group.UpdatedAt,
			Metadata:      map[string]any{"userId": userID, "role": string(role)},
		})
	}
	return group, nil
}

func (s *groupOrderService) RemoveMember(ctx context.Context, cmd GroupMemberCommand) (GroupOrder, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return GroupOrder{}, fmt.Errorf("%w: user id is required", ErrGroupOrderInvalidInput)
	}
	actorID := strings.TrimSpace(cmd.ActorID)

	var changed bool
	group, err := s.mutate(ctx, cmd.GroupID, func(group *GroupOrder, _ time.Time) error {
		if !cmd.IsStaff && actorID != userID && !group.IsAdmin(actorID) {
			return ErrGroupOrderForbidden
		}
		if userID == group.OrganizerID {
			return fmt.Errorf("%w: the organizer cannot be removed", ErrGroupOrderInvalidInput)
		}
		changed = group.RemoveMember(userID)
		return nil
	})
	if err != nil {
		return GroupOrder{}, err
	}
	if changed {
		s.sink.publish(ctx, DomainEvent{
			Type:          groupOrderEventMemberRemoved,
			AggregateType: "group_order",
			AggregateID:   group.ID,
			ActorID:       actorID,
			OccurredAt:    group.UpdatedAt,
			Metadata:      map[string]any{"userId": userID},
		})
	}
	return group, nil
}

func (s *groupOrderService) UpdateStatus(ctx context.Context, cmd GroupOrderStatusCommand) (GroupOrder, error) {
	if !cmd.Status.IsValid() {
		return GroupOrder{}, fmt.Errorf("%w: unknown status %q", ErrGroupOrderInvalidInput, cmd.Status)
	}
	var previous GroupOrderStatus
	group, err := s.mutate(ctx, cmd.GroupID, func(group *GroupOrder, _ time.Time) error {
		if !group.CanTransitionTo(cmd.Status) {
			return fmt.Errorf("%w: %s -> %s", ErrGroupOrderIllegalTransition, group.Status, cmd.Status)
		}
		previous = group.Status
		group.Status = cmd.Status
		return nil
	})
	if err != nil {
		return GroupOrder{}, err
	}
	s.sink.publish(ctx, DomainEvent{
		Type:           groupOrderEventStatusChanged,
		AggregateType:  "group_order",
		AggregateID:    group.ID,
		PreviousStatus: string(previous),
		CurrentStatus:  string(group.Status),
		ActorID:        strings.TrimSpace(cmd.ActorID),
		OccurredAt:     group.UpdatedAt,
	})
	return group, nil
}

func (s *groupOrderService) CloseExpired(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = defaultExpiredBatch
	}
	now := s.clock()
	expired, err := s.groups.ListExpired(ctx, now, limit)
	if err != nil {
		return 0, s.mapRepositoryError(err)
	}
	closed := 0
	for _, candidate := range expired {
		_, err := s.UpdateStatus(ctx, GroupOrderStatusCommand{
			GroupID: candidate.ID,
			Status:  domain.GroupOrderStatusClosed,
			ActorID: "system",
		})
		if err != nil {
			// a concurrent admin action may already have moved the group on.
			s.logger(ctx, "group_order.close_expired.failed", map[string]any{
				"groupOrderId": candidate.ID,
				"error":        err.Error(),
			})
			continue
		}
		closed++
	}
	return closed, nil
}

func (s *groupOrderService) CheckJoin(ctx context.Context, groupID, userID string, orderTotal int64) (GroupOrder, error) {
	group, err := s.GetGroupOrder(ctx, groupID)
	if err != nil {
		return GroupOrder{}, err
	}
	if err := s.checkJoin(group, strings.TrimSpace(userID), orderTotal); err != nil {
		return GroupOrder{}, err
	}
	return group, nil
}

func (s *groupOrderService) JoinOrder(ctx context.Context, groupID string, order Order) (GroupOrder, error) {
	if strings.TrimSpace(order.ID) == "" {
		return GroupOrder{}, fmt.Errorf("%w: order id is required", ErrGroupOrderInvalidInput)
	}
	group, err := s.mutate(ctx, groupID, func(group *GroupOrder, _ time.Time) error {
		if err := s.checkJoin(*group, order.UserID, order.Pricing.Total); err != nil {
			return err
		}
		group.AddOrder(order.ID)
		return s.recalculate(ctx, group, order)
	})
	if err != nil {
		return GroupOrder{}, err
	}
	s.sink.publish(ctx, DomainEvent{
		Type:          groupOrderEventOrderJoined,
		AggregateType: "group_order",
		AggregateID:   group.ID,
		ActorID:       order.UserID,
		OccurredAt:    group.UpdatedAt,
		Metadata:      map[string]any{"orderId": order.ID, "total": group.Pricing.Total},
	})
	return group, nil
}

// DetachOrder drops a cancelled or refunded order from the group. Money already collected for
// it comes off the pool so the group payment block keeps matching its member orders.
func (s *groupOrderService) DetachOrder(ctx context.Context, groupID string, order Order) (GroupOrder, error) {
	orderID := strings.TrimSpace(order.ID)
	if orderID == "" {
		return GroupOrder{}, fmt.Errorf("%w: order id is required", ErrGroupOrderInvalidInput)
	}
	var (
		changed  bool
		reversed int64
	)
	group, err := s.mutate(ctx, groupID, func(group *GroupOrder, _ time.Time) error {
		changed = group.RemoveOrder(orderID)
		if changed && order.Payment.PaidAt != nil {
			reversed = order.Pricing.Total
			group.ReverseCollection(reversed)
		}
		return s.recalculate(ctx, group)
	})
	if err != nil {
		return GroupOrder{}, err
	}
	if changed {
		s.sink.publish(ctx, DomainEvent{
			Type:          groupOrderEventOrderDetached,
			AggregateType: "group_order",
			AggregateID:   group.ID,
			OccurredAt:    group.UpdatedAt,
			Metadata:      map[string]any{"orderId": orderID, "total": group.Pricing.Total, "reversed": reversed},
		})
	}
	return group, nil
}

func (s *groupOrderService) RecordCollection(ctx context.Context, groupID string, amount int64) (GroupOrder, error) {
	if amount <= 0 {
		return GroupOrder{}, fmt.Errorf("%w: collected amount must be > 0", ErrGroupOrderInvalidInput)
	}
	return s.mutate(ctx, groupID, func(group *GroupOrder, _ time.Time) error {
		group.RecordCollection(amount)
		return nil
	})
}

func (s *groupOrderService) checkJoin(group GroupOrder, userID string, orderTotal int64) error {
	if !group.IsOpen(s.clock()) {
		return fmt.Errorf("%w: %s is not accepting orders", ErrGroupOrderClosed, group.Name)
	}
	if !group.IsMember(userID) {
		return fmt.Errorf("%w: %s", ErrGroupOrderNotMember, group.Name)
	}
	if group.Settings.MaxOrderValue > 0 && orderTotal > group.Settings.MaxOrderValue {
		return fmt.Errorf("%w: order total %d exceeds the group limit of %d", ErrGroupOrderInvalidInput, orderTotal, group.Settings.MaxOrderValue)
	}
	return nil
}

// recalculate reloads every contained order and replaces the group pricing with their sum.
// Orders passed in take precedence over stored copies so a just-written order is never missed.
func (s *groupOrderService) recalculate(ctx context.Context, group *GroupOrder, fresh ...Order) error {
	orders := make([]Order, 0, len(group.OrderIDs))
	if len(group.OrderIDs) > 0 {
		stored, err := s.orders.FindByIDs(ctx, group.OrderIDs)
		if err != nil {
			return fmt.Errorf("group order: load member orders: %w", err)
		}
		orders = stored
	}
	for _, order := range fresh {
		replaced := false
		for i := range orders {
			if orders[i].ID == order.ID {
				orders[i] = order
				replaced = true
				break
			}
		}
		if !replaced {
			orders = append(orders, order)
		}
	}
	group.RecalculatePricing(orders)
	return nil
}

// mutate loads the group, applies fn and persists the result inside one unit of work.
func (s *groupOrderService) mutate(ctx context.Context, groupID string, fn func(group *GroupOrder, now time.Time) error) (GroupOrder, error) {
	groupID = strings.TrimSpace(groupID)
	if groupID == "" {
		return GroupOrder{}, fmt.Errorf("%w: group order id is required", ErrGroupOrderInvalidInput)
	}
	var out GroupOrder
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		group, err := s.groups.FindByID(txCtx, groupID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		now := s.clock()
		if err := fn(&group, now); err != nil {
			return err
		}
		group.UpdatedAt = now
		if err := s.groups.Update(txCtx, group); err != nil {
			return s.mapRepositoryError(err)
		}
		out = group
		return nil
	})
	if err != nil {
		return GroupOrder{}, err
	}
	return out, nil
}

func (s *groupOrderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrGroupOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrGroupOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("group order: repository unavailable: %w", err)
		}
	}
	return err
}

func (s *groupOrderService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}
