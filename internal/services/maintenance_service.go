package services

import (
	"context"
	"errors"
	"time"
)

const (
	maintenanceTaskCloseGroups   = "close-expired-group-orders"
	maintenanceTaskRemindOverdue = "remind-overdue-distributions"

	defaultMaintenanceBatch = 100
)

// GroupOrderSweeper closes group orders whose deadline passed.
type GroupOrderSweeper interface {
	CloseExpired(ctx context.Context, limit int) (int, error)
}

// OverdueReminder publishes reminders for late distributions.
type OverdueReminder interface {
	RemindOverdue(ctx context.Context, limit int) (int, error)
}

// MaintenanceServiceDeps bundles collaborators required to construct the maintenance service.
type MaintenanceServiceDeps struct {
	Groups        GroupOrderSweeper
	Distributions OverdueReminder
	BatchSize     int
	Clock         func() time.Time
	Metrics       Metrics
	Logger        Logger
}

type maintenanceService struct {
	groups        GroupOrderSweeper
	distributions OverdueReminder
	batchSize     int
	clock         func() time.Time
	metrics       Metrics
	logger        Logger
}

// NewMaintenanceService wires the scheduler-triggered sweeps.
func NewMaintenanceService(deps MaintenanceServiceDeps) (MaintenanceService, error) {
	if deps.Groups == nil {
		return nil, errors.New("maintenance service: group order sweeper is required")
	}
	if deps.Distributions == nil {
		return nil, errors.New("maintenance service: overdue reminder is required")
	}
	batch := deps.BatchSize
	if batch <= 0 {
		batch = defaultMaintenanceBatch
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	return &maintenanceService{
		groups:        deps.Groups,
		distributions: deps.Distributions,
		batchSize:     batch,
		clock: func() time.Time {
			return clock().UTC()
		},
		metrics: metrics,
		logger:  logger,
	}, nil
}

func (s *maintenanceService) CloseExpiredGroupOrders(ctx context.Context) (MaintenanceResult, error) {
	return s.run(ctx, maintenanceTaskCloseGroups, s.groups.CloseExpired)
}

func (s *maintenanceService) RemindOverdueDistributions(ctx context.Context) (MaintenanceResult, error) {
	return s.run(ctx, maintenanceTaskRemindOverdue, s.distributions.RemindOverdue)
}

func (s *maintenanceService) run(ctx context.Context, task string, sweep func(context.Context, int) (int, error)) (MaintenanceResult, error) {
	started := s.clock()
	processed, err := sweep(ctx, s.batchSize)
	result := MaintenanceResult{Task: task, Processed: processed, RanAt: started}
	fields := map[string]any{
		"task":      task,
		"processed": processed,
		"duration":  s.clock().Sub(started).String(),
	}
	if err != nil {
		fields["error"] = err.Error()
		s.logger(ctx, "maintenance.task.failed", fields)
		return result, err
	}
	s.logger(ctx, "maintenance.task.completed", fields)
	s.metrics.Incr(ctx, "maintenance.runs", map[string]string{"task": task})
	return result, nil
}
