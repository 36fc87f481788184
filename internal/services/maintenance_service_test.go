package services

import (
	"context"
	"errors"
	"testing"
	"time"
)

type sweepFunc func(ctx context.Context, limit int) (int, error)

func (f sweepFunc) CloseExpired(ctx context.Context, limit int) (int, error) { return f(ctx, limit) }

func (f sweepFunc) RemindOverdue(ctx context.Context, limit int) (int, error) { return f(ctx, limit) }

func TestNewMaintenanceServiceRequiresSweepers(t *testing.T) {
	noop := sweepFunc(func(context.Context, int) (int, error) { return 0, nil })
	if _, err := NewMaintenanceService(MaintenanceServiceDeps{Distributions: noop}); err == nil {
		t.Fatal("expected error without group sweeper")
	}
	if _, err := NewMaintenanceService(MaintenanceServiceDeps{Groups: noop}); err == nil {
		t.Fatal("expected error without overdue reminder")
	}
}

func TestMaintenanceServiceRunsSweeps(t *testing.T) {
	now := time.Date(2024, 9, 2, 2, 0, 0, 0, time.UTC)
	var limits []int
	groups := sweepFunc(func(_ context.Context, limit int) (int, error) {
		limits = append(limits, limit)
		return 3, nil
	})
	reminders := sweepFunc(func(_ context.Context, limit int) (int, error) {
		limits = append(limits, limit)
		return 0, errors.New("firestore unavailable")
	})
	metrics := &captureMetrics{}
	logs := &captureLogs{}
	svc, err := NewMaintenanceService(MaintenanceServiceDeps{
		Groups:        groups,
		Distributions: reminders,
		Clock:         fixedClock(now),
		Metrics:       metrics,
		Logger:        logs.log,
	})
	if err != nil {
		t.Fatalf("new maintenance service: %v", err)
	}
	ctx := context.Background()

	result, err := svc.CloseExpiredGroupOrders(ctx)
	if err != nil {
		t.Fatalf("close expired: %v", err)
	}
	if result.Task != maintenanceTaskCloseGroups || result.Processed != 3 || !result.RanAt.Equal(now) {
		t.Fatalf("unexpected result %+v", result)
	}
	if !logs.has("maintenance.task.completed") || metrics.count("maintenance.runs") != 1 {
		t.Fatal("expected completed run to be logged and counted")
	}

	result, err = svc.RemindOverdueDistributions(ctx)
	if err == nil {
		t.Fatal("expected sweep error to surface")
	}
	if result.Task != maintenanceTaskRemindOverdue {
		t.Fatalf("expected task name on failure, got %q", result.Task)
	}
	if !logs.has("maintenance.task.failed") || metrics.count("maintenance.runs") != 1 {
		t.Fatal("expected failed run to be logged and not counted")
	}
	if len(limits) != 2 || limits[0] != defaultMaintenanceBatch || limits[1] != defaultMaintenanceBatch {
		t.Fatalf("expected default batch size for both sweeps, got %v", limits)
	}
}
