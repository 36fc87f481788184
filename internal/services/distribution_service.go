package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/campus-merch/api/internal/domain"
	pstorage "github.com/campus-merch/api/internal/platform/storage"
	"github.com/campus-merch/api/internal/repositories"
)

const (
	distributionIDPrefix = "dst_"

	distributionEventCreated       = "distribution.created"
	distributionEventStatusChanged = "distribution.status.changed"
	distributionEventDelivered     = "distribution.delivered"
	distributionEventCancelled     = "distribution.cancelled"
	distributionEventOverdue       = "distribution.overdue"

	maxDistributionPageSize = 100
	defaultOverdueBatch     = 100
	maxProofImageBytes      = 10 << 20
	defaultProofURLTTL      = 15 * time.Minute
)

var (
	// ErrDistributionInvalidInput signals malformed distribution input.
	ErrDistributionInvalidInput = errors.New("distribution: invalid input")
	// ErrDistributionNotFound indicates the distribution or one of its items does not exist.
	ErrDistributionNotFound = errors.New("distribution: not found")
	// ErrDistributionOrderNotReady indicates the order is not confirmed or processing.
	ErrDistributionOrderNotReady = errors.New("distribution: order not ready")
	// ErrDistributionDuplicate indicates the order already has an active distribution.
	ErrDistributionDuplicate = errors.New("distribution: duplicate distribution")
	// ErrDistributionIllegalTransition indicates the requested status is not a legal successor.
	ErrDistributionIllegalTransition = errors.New("distribution: illegal status transition")
	// ErrDistributionConflict indicates a duplicate distribution id.
	ErrDistributionConflict = errors.New("distribution: conflict")
	// ErrDistributionUploadsDisabled indicates proof uploads are not configured.
	ErrDistributionUploadsDisabled = errors.New("distribution: proof uploads are not configured")
)

var proofImageContentTypes = []string{"image/jpeg", "image/png", "image/webp", "image/heic"}

// SignedURLIssuer signs object storage URLs.
type SignedURLIssuer interface {
	SignedURL(ctx context.Context, bucket, object string, opts pstorage.SignedURLOptions) (pstorage.SignedURLResult, error)
}

// DistributionServiceDeps bundles collaborators required to construct the distribution service.
type DistributionServiceDeps struct {
	Distributions  repositories.DistributionRepository
	Orders         repositories.OrderRepository
	UnitOfWork     repositories.UnitOfWork
	URLSigner      SignedURLIssuer
	ProofsBucket   string
	ProofURLTTL    time.Duration
	Clock          func() time.Time
	IDGenerator    func() string
	TrackingSuffix domain.SuffixFunc
	Events         EventPublisher
	Logger         Logger
}

type distributionService struct {
	distributions repositories.DistributionRepository
	orders        repositories.OrderRepository
	unitOfWork    repositories.UnitOfWork
	signer        SignedURLIssuer
	bucket        string
	proofTTL      time.Duration
	clock         func() time.Time
	newID         func() string
	suffix        domain.SuffixFunc
	sink          eventSink
	logger        Logger
}

// NewDistributionService wires dependencies into a concrete DistributionService implementation.
func NewDistributionService(deps DistributionServiceDeps) (DistributionService, error) {
	if deps.Distributions == nil {
		return nil, errors.New("distribution service: distribution repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("distribution service: order repository is required")
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
		idGen = func() string { return distributionIDPrefix + ulid.Make().String() }
	}
	suffix := deps.TrackingSuffix
	if suffix == nil {
		suffix = domain.RandomBase36
	}
	ttl := deps.ProofURLTTL
	if ttl <= 0 {
		ttl = defaultProofURLTTL
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	return &distributionService{
		distributions: deps.Distributions,
		orders:        deps.Orders,
		unitOfWork:    unit,
		signer:        deps.URLSigner,
		bucket:        strings.TrimSpace(deps.ProofsBucket),
		proofTTL:      ttl,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		suffix: suffix,
		sink:   eventSink{events: deps.Events, logger: logger, prefix: "distribution"},
		logger: logger,
	}, nil
}

func (s *distributionService) CreateAssignment(ctx context.Context, cmd CreateDistributionCommand) (Distribution, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	assignee := strings.TrimSpace(cmd.AssignedTo)
	location := domain.DistributionLocation{
		Name:    strings.TrimSpace(cmd.Location.Name),
		Address: strings.TrimSpace(cmd.Location.Address),
		Contact: strings.TrimSpace(cmd.Location.Contact),
	}
	switch {
	case orderID == "":
		return Distribution{}, fmt.Errorf("%w: order id is required", ErrDistributionInvalidInput)
	case assignee == "":
		return Distribution{}, fmt.Errorf("%w: assignee is required", ErrDistributionInvalidInput)
	case location.Name == "":
		return Distribution{}, fmt.Errorf("%w: location name is required", ErrDistributionInvalidInput)
	case cmd.ScheduledDate.IsZero():
		return Distribution{}, fmt.Errorf("%w: scheduled date is required", ErrDistributionInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Distribution{}, mapOrderLookupError(err)
	}
	if order.Status != domain.OrderStatusConfirmed && order.Status != domain.OrderStatusProcessing {
		return Distribution{}, fmt.Errorf("%w: order is %s", ErrDistributionOrderNotReady, order.Status)
	}
	existing, err := s.distributions.FindActiveByOrder(ctx, orderID)
	switch {
	case err == nil:
		return Distribution{}, fmt.Errorf("%w: %s already tracks order %s", ErrDistributionDuplicate, existing.ID, orderID)
	case !isRepositoryNotFound(err):
		return Distribution{}, s.mapRepositoryError(err)
	}

	now := s.clock()
	actorID := strings.TrimSpace(cmd.ActorID)
	scheduled := cmd.ScheduledDate.UTC()
	distID := s.newID()
	dist := Distribution{
		ID:            distID,
		OrderID:       order.ID,
		GroupOrderID:  order.GroupOrderID,
		AssignedTo:    assignee,
		Location:      location,
		ScheduledDate: scheduled,
		Status:        domain.DistributionStatusPending,
		Tracking: domain.DistributionTracking{
			Carrier:           strings.TrimSpace(cmd.Carrier),
			EstimatedDelivery: &scheduled,
		},
		Items: domain.ItemsFromOrder(order, func(i int) string {
			return fmt.Sprintf("%s-%02d", distID, i+1)
		}),
		Timeline: []domain.TimelineEntry{{
			Status:    string(domain.DistributionStatusPending),
			Timestamp: now,
			Note:      "Distribution created",
			Actor:     actorID,
		}},
		Notes:     strings.TrimSpace(cmd.Notes),
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	order.Distribution = domain.OrderDistribution{
		AssignedTo:    assignee,
		Location:      location.Name,
		ScheduledDate: &scheduled,
		Status:        domain.OrderDistributionAssigned,
	}
	if order.Status == domain.OrderStatusConfirmed {
		order.ApplyStatus(domain.OrderStatusProcessing, now, "Assigned for distribution", actorID)
	}
	order.UpdatedAt = now

	if err := s.runInTx(ctx, func(txCtx context.Context) error {
		if err := s.distributions.Insert(txCtx, dist); err != nil {
			return s.mapRepositoryError(err)
		}
		if err := s.orders.Update(txCtx, order); err != nil {
			return mapOrderLookupError(err)
		}
		return nil
	}); err != nil {
		return Distribution{}, err
	}

	s.sink.publish(ctx, DomainEvent{
		Type:          distributionEventCreated,
		AggregateType: "distribution",
		AggregateID:   dist.ID,
		CurrentStatus: string(dist.Status),
		ActorID:       actorID,
		OccurredAt:    now,
		Metadata:      map[string]any{"orderId": order.ID, "assignedTo": assignee, "scheduledDate": scheduled},
	})
	return dist, nil
}

func (s *distributionService) GetDistribution(ctx context.Context, distributionID string) (Distribution, error) {
	distributionID = strings.TrimSpace(distributionID)
	if distributionID == "" {
		return Distribution{}, fmt.Errorf("%w: distribution id is required", ErrDistributionInvalidInput)
	}
	dist, err := s.distributions.FindByID(ctx, distributionID)
	if err != nil {
		return Distribution{}, s.mapRepositoryError(err)
	}
	return dist, nil
}

func (s *distributionService) ListDistributions(ctx context.Context, filter DistributionListFilter) (domain.CursorPage[Distribution], error) {
	for _, status := range filter.Statuses {
		if !status.IsValid() {
			return domain.CursorPage[Distribution]{}, fmt.Errorf("%w: unknown status %q", ErrDistributionInvalidInput, status)
		}
	}
	if filter.Pagination.PageSize > maxDistributionPageSize {
		filter.Pagination.PageSize = maxDistributionPageSize
	}
	page, err := s.distributions.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Distribution]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *distributionService) ListOverdue(ctx context.Context, limit int) ([]Distribution, error) {
	if limit <= 0 || limit > maxDistributionPageSize {
		limit = maxDistributionPageSize
	}
	items, err := s.distributions.ListOverdue(ctx, s.clock(), limit)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return items, nil
}

func (s *distributionService) UpdateStatus(ctx context.Context, cmd DistributionStatusCommand) (Distribution, error) {
	if !cmd.Status.IsValid() {
		return Distribution{}, fmt.Errorf("%w: unknown status %q", ErrDistributionInvalidInput, cmd.Status)
	}
	if cmd.Status == domain.DistributionStatusCancelled {
		return s.Cancel(ctx, CancelDistributionCommand{DistributionID: cmd.DistributionID, Reason: cmd.Note, ActorID: cmd.ActorID})
	}
	actorID := strings.TrimSpace(cmd.ActorID)

	var previous DistributionStatus
	dist, err := s.mutate(ctx, cmd.DistributionID, func(dist *Distribution, now time.Time) error {
		if !dist.CanTransitionTo(cmd.Status) {
			return fmt.Errorf("%w: %s -> %s", ErrDistributionIllegalTransition, dist.Status, cmd.Status)
		}
		previous = dist.Status
		dist.ApplyStatus(cmd.Status, now, strings.TrimSpace(cmd.Note), actorID, s.suffix)
		return nil
	})
	if err != nil {
		return Distribution{}, err
	}

	if dist.Status == domain.DistributionStatusDelivered {
		s.completeDelivery(ctx, dist, actorID)
	} else {
		s.syncOrderProgress(ctx, dist, actorID)
	}
	s.sink.publish(ctx, DomainEvent{
		Type:           distributionEventStatusChanged,
		AggregateType:  "distribution",
		AggregateID:    dist.ID,
		PreviousStatus: string(previous),
		CurrentStatus:  string(dist.Status),
		ActorID:        actorID,
		OccurredAt:     dist.UpdatedAt,
		Metadata:       map[string]any{"orderId": dist.OrderID, "trackingNumber": dist.Tracking.Number},
	})
	return dist, nil
}

func (s *distributionService) UpdateItemStatus(ctx context.Context, cmd DistributionItemStatusCommand) (Distribution, error) {
	itemID := strings.TrimSpace(cmd.ItemID)
	if itemID == "" {
		return Distribution{}, fmt.Errorf("%w: item id is required", ErrDistributionInvalidInput)
	}
	if !cmd.Status.IsValid() {
		return Distribution{}, fmt.Errorf("%w: unknown item status %q", ErrDistributionInvalidInput, cmd.Status)
	}
	return s.mutate(ctx, cmd.DistributionID, func(dist *Distribution, _ time.Time) error {
		for i := range dist.Items {
			if dist.Items[i].ID != itemID {
				continue
			}
			dist.Items[i].Status = cmd.Status
			if notes := strings.TrimSpace(cmd.Notes); notes != "" {
				dist.Items[i].Notes = notes
			}
			return nil
		}
		return fmt.Errorf("%w: item %s", ErrDistributionNotFound, itemID)
	})
}

func (s *distributionService) RecordDeliveryProof(ctx context.Context, cmd DeliveryProofCommand) (Distribution, error) {
	proof := DeliveryProof{
		Signature:     strings.TrimSpace(cmd.Signature),
		ImageURL:      strings.TrimSpace(cmd.ImageURL),
		DeliveredBy:   strings.TrimSpace(cmd.ActorID),
		ReceiverName:  strings.TrimSpace(cmd.ReceiverName),
		ReceiverPhone: strings.TrimSpace(cmd.ReceiverPhone),
	}
	if proof.Signature == "" && proof.ImageURL == "" && proof.ReceiverName == "" {
		return Distribution{}, fmt.Errorf("%w: a signature, image or receiver name is required", ErrDistributionInvalidInput)
	}

	var previous DistributionStatus
	dist, err := s.mutate(ctx, cmd.DistributionID, func(dist *Distribution, now time.Time) error {
		if dist.Status == domain.DistributionStatusCancelled {
			return fmt.Errorf("%w: distribution is cancelled", ErrDistributionIllegalTransition)
		}
		previous = dist.Status
		proof.RecordedAt = now
		dist.DeliveryProof = &proof
		// proof of hand-over completes the distribution from any open status.
		dist.ApplyStatus(domain.DistributionStatusDelivered, now, "Delivery proof recorded", proof.DeliveredBy, s.suffix)
		stamp := now
		dist.ActualDate = &stamp
		for i := range dist.Items {
			dist.Items[i].Status = domain.DistributionItemDelivered
		}
		return nil
	})
	if err != nil {
		return Distribution{}, err
	}

	s.completeDelivery(ctx, dist, proof.DeliveredBy)
	s.sink.publish(ctx, DomainEvent{
		Type:           distributionEventStatusChanged,
		AggregateType:  "distribution",
		AggregateID:    dist.ID,
		PreviousStatus: string(previous),
		CurrentStatus:  string(dist.Status),
		ActorID:        proof.DeliveredBy,
		OccurredAt:     dist.UpdatedAt,
		Metadata:       map[string]any{"orderId": dist.OrderID, "proof": true},
	})
	return dist, nil
}

func (s *distributionService) Cancel(ctx context.Context, cmd CancelDistributionCommand) (Distribution, error) {
	reason := strings.TrimSpace(cmd.Reason)
	if reason == "" {
		reason = "Distribution cancelled"
	}
	actorID := strings.TrimSpace(cmd.ActorID)

	var previous DistributionStatus
	dist, err := s.mutate(ctx, cmd.DistributionID, func(dist *Distribution, now time.Time) error {
		if !dist.CanCancel() {
			return fmt.Errorf("%w: %s distributions cannot be cancelled", ErrDistributionIllegalTransition, dist.Status)
		}
		previous = dist.Status
		dist.ApplyStatus(domain.DistributionStatusCancelled, now, reason, actorID, s.suffix)
		dist.CancelReason = reason
		return nil
	})
	if err != nil {
		return Distribution{}, err
	}

	if err := s.updateOrder(ctx, dist.OrderID, func(order *Order) bool {
		order.Distribution = domain.OrderDistribution{Status: domain.OrderDistributionPending}
		return true
	}); err != nil {
		s.logger(ctx, "distribution.order.sync.failed", map[string]any{"distributionId": dist.ID, "orderId": dist.OrderID, "error": err.Error()})
	}
	s.sink.publish(ctx, DomainEvent{
		Type:           distributionEventCancelled,
		AggregateType:  "distribution",
		AggregateID:    dist.ID,
		PreviousStatus: string(previous),
		CurrentStatus:  string(dist.Status),
		ActorID:        actorID,
		OccurredAt:     dist.UpdatedAt,
		Metadata:       map[string]any{"orderId": dist.OrderID, "reason": reason},
	})
	return dist, nil
}

// MirrorDeliveryToOrder marks the parent order and its distribution summary delivered.
func (s *distributionService) MirrorDeliveryToOrder(ctx context.Context, dist Distribution, actorID string) (Order, error) {
	if dist.Status != domain.DistributionStatusDelivered {
		return Order{}, fmt.Errorf("%w: distribution is %s", ErrDistributionIllegalTransition, dist.Status)
	}
	deliveredAt := s.clock()
	if dist.ActualDate != nil {
		deliveredAt = dist.ActualDate.UTC()
	}

	order, err := s.orders.FindByID(ctx, dist.OrderID)
	if err != nil {
		return Order{}, mapOrderLookupError(err)
	}
	previous := order.Status
	if !domain.MirrorDeliveryToOrder(&order, deliveredAt, strings.TrimSpace(actorID)) {
		return Order{}, fmt.Errorf("%w: order is %s", ErrOrderIllegalTransition, order.Status)
	}
	if err := s.runInTx(ctx, func(txCtx context.Context) error {
		return s.orders.Update(txCtx, order)
	}); err != nil {
		return Order{}, mapOrderLookupError(err)
	}
	if previous != order.Status {
		s.sink.publish(ctx, DomainEvent{
			Type:           orderEventStatusChanged,
			AggregateType:  "order",
			AggregateID:    order.ID,
			PreviousStatus: string(previous),
			CurrentStatus:  string(order.Status),
			ActorID:        strings.TrimSpace(actorID),
			OccurredAt:     deliveredAt,
			Metadata:       map[string]any{"orderNumber": order.OrderNumber, "distributionId": dist.ID},
		})
	}
	return order, nil
}

func (s *distributionService) DeliveryProofUploadURL(ctx context.Context, cmd DeliveryProofUploadCommand) (SignedUpload, error) {
	if s.signer == nil || s.bucket == "" {
		return SignedUpload{}, ErrDistributionUploadsDisabled
	}
	if cmd.Size <= 0 || cmd.Size > maxProofImageBytes {
		return SignedUpload{}, fmt.Errorf("%w: proof image must be between 1 byte and %d bytes", ErrDistributionInvalidInput, maxProofImageBytes)
	}
	dist, err := s.GetDistribution(ctx, cmd.DistributionID)
	if err != nil {
		return SignedUpload{}, err
	}
	if dist.Status == domain.DistributionStatusCancelled {
		return SignedUpload{}, fmt.Errorf("%w: distribution is cancelled", ErrDistributionIllegalTransition)
	}

	object, err := pstorage.BuildObjectPath(pstorage.PurposeDeliveryProof, pstorage.PathParams{
		DistributionID: dist.ID,
		UploadID:       strings.ToLower(ulid.Make().String()),
		FileName:       cmd.FileName,
	})
	if err != nil {
		return SignedUpload{}, fmt.Errorf("%w: %v", ErrDistributionInvalidInput, err)
	}
	signed, err := s.signer.SignedURL(ctx, s.bucket, object, pstorage.SignedURLOptions{
		Upload: &pstorage.UploadOptions{
			Method:              "PUT",
			ContentType:         cmd.ContentType,
			AllowedContentTypes: proofImageContentTypes,
			MaxSize:             maxProofImageBytes,
			ExpiresIn:           s.proofTTL,
		},
	})
	if err != nil {
		if errors.Is(err, pstorage.ErrContentTypeDenied) || errors.Is(err, pstorage.ErrContentTypeMissing) {
			return SignedUpload{}, fmt.Errorf("%w: %v", ErrDistributionInvalidInput, err)
		}
		return SignedUpload{}, fmt.Errorf("distribution: sign proof upload: %w", err)
	}
	return SignedUpload{
		URL:       signed.URL,
		Method:    signed.Method,
		Headers:   signed.Headers,
		ObjectURL: fmt.Sprintf("gs://%s/%s", s.bucket, object),
		ExpiresAt: signed.ExpiresAt,
	}, nil
}

func (s *distributionService) Statistics(ctx context.Context) ([]StatusBucket, error) {
	buckets, err := s.distributions.CountByStatus(ctx)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return buckets, nil
}

func (s *distributionService) RemindOverdue(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = defaultOverdueBatch
	}
	now := s.clock()
	overdue, err := s.distributions.ListOverdue(ctx, now, limit)
	if err != nil {
		return 0, s.mapRepositoryError(err)
	}
	reminded := 0
	for _, dist := range overdue {
		if !dist.IsOverdue(now) {
			continue
		}
		s.sink.publish(ctx, DomainEvent{
			Type:          distributionEventOverdue,
			AggregateType: "distribution",
			AggregateID:   dist.ID,
			CurrentStatus: string(dist.Status),
			ActorID:       "system",
			OccurredAt:    now,
			Metadata: map[string]any{
				"orderId":       dist.OrderID,
				"assignedTo":    dist.AssignedTo,
				"scheduledDate": dist.ScheduledDate,
				"daysOverdue":   -dist.DaysUntilDelivery(now),
			},
		})
		reminded++
	}
	return reminded, nil
}

// completeDelivery runs the explicit order mirror after a distribution reaches delivered.
// The distribution write has already succeeded, so a mirror failure is logged for follow-up.
func (s *distributionService) completeDelivery(ctx context.Context, dist Distribution, actorID string) {
	if _, err := s.MirrorDeliveryToOrder(ctx, dist, actorID); err != nil {
		s.logger(ctx, "distribution.order.mirror.failed", map[string]any{
			"distributionId": dist.ID,
			"orderId":        dist.OrderID,
			"error":          err.Error(),
		})
	}
	s.sink.publish(ctx, DomainEvent{
		Type:          distributionEventDelivered,
		AggregateType: "distribution",
		AggregateID:   dist.ID,
		CurrentStatus: string(dist.Status),
		ActorID:       actorID,
		OccurredAt:    dist.UpdatedAt,
		Metadata:      map[string]any{"orderId": dist.OrderID},
	})
}

// syncOrderProgress copies intermediate fulfillment progress onto the order summary. Leaving
// for delivery also moves a processing order to shipped.
func (s *distributionService) syncOrderProgress(ctx context.Context, dist Distribution, actorID string) {
	var summary domain.OrderDistributionStatus
	switch dist.Status {
	case domain.DistributionStatusAssigned:
		summary = domain.OrderDistributionAssigned
	case domain.DistributionStatusReady:
		summary = domain.OrderDistributionReady
	case domain.DistributionStatusInTransit:
		summary = domain.OrderDistributionPickedUp
	default:
		return
	}
	err := s.updateOrder(ctx, dist.OrderID, func(order *Order) bool {
		order.Distribution.Status = summary
		order.Distribution.AssignedTo = dist.AssignedTo
		if dist.Status == domain.DistributionStatusInTransit && order.CanTransitionTo(domain.OrderStatusShipped) {
			order.ApplyStatus(domain.OrderStatusShipped, dist.UpdatedAt, "Out for delivery "+dist.Tracking.Number, actorID)
		}
		return true
	})
	if err != nil {
		s.logger(ctx, "distribution.order.sync.failed", map[string]any{
			"distributionId": dist.ID,
			"orderId":        dist.OrderID,
			"error":          err.Error(),
		})
	}
}

func (s *distributionService) updateOrder(ctx context.Context, orderID string, fn func(order *Order) bool) error {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return mapOrderLookupError(err)
	}
	if !fn(&order) {
		return nil
	}
	order.UpdatedAt = s.clock()
	return s.runInTx(ctx, func(txCtx context.Context) error {
		return s.orders.Update(txCtx, order)
	})
}

func (s *distributionService) mutate(ctx context.Context, distributionID string, fn func(dist *Distribution, now time.Time) error) (Distribution, error) {
	distributionID = strings.TrimSpace(distributionID)
	if distributionID == "" {
		return Distribution{}, fmt.Errorf("%w: distribution id is required", ErrDistributionInvalidInput)
	}
	var out Distribution
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		dist, err := s.distributions.FindByID(txCtx, distributionID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		now := s.clock()
		if err := fn(&dist, now); err != nil {
			return err
		}
		dist.UpdatedAt = now
		if err := s.distributions.Update(txCtx, dist); err != nil {
			return s.mapRepositoryError(err)
		}
		out = dist
		return nil
	})
	if err != nil {
		return Distribution{}, err
	}
	return out, nil
}

func (s *distributionService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrDistributionNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrDistributionConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("distribution: repository unavailable: %w", err)
		}
	}
	return err
}

func (s *distributionService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

// mapOrderLookupError maps order repository failures raised by collaborating services.
func mapOrderLookupError(err error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}
	return err
}

func isRepositoryNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

func isRepositoryConflict(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}
