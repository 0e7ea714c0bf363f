package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	gosync "sync"
	"time"

	"github.com/google/uuid"

	"github.com/listsync/listsync/internal/classify"
	"github.com/listsync/listsync/internal/status"
	pkgsync "github.com/listsync/listsync/internal/sync"
	"github.com/listsync/listsync/internal/sync/state"
	"github.com/listsync/listsync/internal/telemetry"
)

// ErrAlreadyStarted is returned when Start is called twice
var ErrAlreadyStarted = errors.New("coordinator already started")

// Coordinator manages background reconciliation scheduling and execution
type Coordinator interface {
	// Start runs the scheduling loop.
	// Blocks until the context is cancelled, Stop is called or initialization fails.
	Start(ctx context.Context) error

	// Stop gracefully stops the loop, waiting for an in-flight run to finish
	Stop() error

	// TriggerSync queues a run. It returns false if a trigger is already pending.
	TriggerSync() bool

	// RunOnce initializes the status and performs exactly one run
	RunOnce(ctx context.Context) error
}

type defaultCoordinator struct {
	manager   pkgsync.Manager
	statusSvc state.SyncStateService
	cfg       Config

	trigger chan struct{}

	mu         gosync.Mutex
	cancelFunc context.CancelFunc
	done       chan struct{}

	syncMetrics *telemetry.SyncMetrics
}

// Option is a function that configures the coordinator
type Option func(*defaultCoordinator)

// WithSyncMetrics sets the sync metrics for the coordinator
func WithSyncMetrics(metrics *telemetry.SyncMetrics) Option {
	return func(c *defaultCoordinator) {
		c.syncMetrics = metrics
	}
}

// New creates a new coordinator with injected dependencies
func New(
	manager pkgsync.Manager,
	statusSvc state.SyncStateService,
	cfg Config,
	opts ...Option,
) Coordinator {
	c := &defaultCoordinator{
		manager:   manager,
		statusSvc: statusSvc,
		cfg:       cfg,
		trigger:   make(chan struct{}, 1),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Start implements Coordinator
func (c *defaultCoordinator) Start(ctx context.Context) error {
	coordCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	if c.done != nil {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.cancelFunc = cancel
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()

	defer func() {
		close(done)
		slog.Info("Background sync coordinator shutting down", "sync", c.cfg.Name)
	}()

	if err := c.statusSvc.Initialize(ctx, c.cfg.Name, c.cfg.schedule()); err != nil {
		return fmt.Errorf("failed to initialize sync status: %w", err)
	}

	delay := c.cfg.nextDelay()
	if c.cfg.RunOnStart {
		delay = 0
	}
	slog.Info("Starting background sync coordinator",
		"sync", c.cfg.Name,
		"interval", c.cfg.Interval,
		"jitter", c.cfg.Jitter,
		"first_run_in", delay)

	timer := time.NewTimer(delay)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
		case <-c.trigger:
			slog.Info("Manual sync triggered", "sync", c.cfg.Name)
			timer.Stop()
		case <-coordCtx.Done():
			slog.Info("Sync coordinator stopping", "sync", c.cfg.Name)
			return nil
		}

		_ = c.performSync(coordCtx)

		next := c.cfg.nextDelay()
		slog.Debug("Next sync scheduled", "sync", c.cfg.Name, "in", next)
		timer.Reset(next)
	}
}

// Stop implements Coordinator
func (c *defaultCoordinator) Stop() error {
	c.mu.Lock()
	cancel, done := c.cancelFunc, c.done
	c.mu.Unlock()

	if cancel != nil {
		slog.Info("Stopping sync coordinator", "sync", c.cfg.Name)
		cancel()
		<-done
	}
	return nil
}

// TriggerSync implements Coordinator
func (c *defaultCoordinator) TriggerSync() bool {
	select {
	case c.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// RunOnce implements Coordinator
func (c *defaultCoordinator) RunOnce(ctx context.Context) error {
	if err := c.statusSvc.Initialize(ctx, c.cfg.Name, c.cfg.schedule()); err != nil {
		return fmt.Errorf("failed to initialize sync status: %w", err)
	}
	return c.performSync(ctx)
}

// performSync executes one run and records its outcome
func (c *defaultCoordinator) performSync(ctx context.Context) error {
	name := c.cfg.Name
	runID := uuid.NewString()
	ctx = pkgsync.ContextWithRunID(ctx, runID)
	startTime := time.Now()

	var attempt int
	if _, err := c.statusSvc.UpdateStatusAtomically(ctx, name, func(syncStatus *status.SyncStatus) bool {
		now := time.Now()
		syncStatus.Phase = status.SyncPhaseSyncing
		syncStatus.Message = "Sync in progress"
		syncStatus.RunID = runID
		syncStatus.LastAttempt = &now
		syncStatus.AttemptCount++
		attempt = syncStatus.AttemptCount
		return true
	}); err != nil {
		slog.Warn("Failed to persist syncing status", "sync", name, "run_id", runID, "error", err)
	}

	// The final status is written in a defer so that an unexpected failure
	// still moves the status out of Syncing.
	var (
		result   *pkgsync.Result
		syncErr  *pkgsync.Error
		finished bool
	)
	defer func() {
		if _, err := c.statusSvc.UpdateStatusAtomically(context.WithoutCancel(ctx), name, func(syncStatus *status.SyncStatus) bool {
			applyOutcome(syncStatus, result, syncErr, finished)
			return true
		}); err != nil {
			slog.Error("Error updating sync status", "sync", name, "run_id", runID, "error", err)
		}
	}()

	slog.Info("Starting sync operation", "sync", name, "run_id", runID, "attempt", attempt)

	result, syncErr = c.manager.PerformSync(ctx)
	finished = true

	c.recordMetrics(ctx, time.Since(startTime), result, syncErr)

	if syncErr != nil {
		slog.Error("Sync failed",
			"sync", name,
			"run_id", runID,
			"kind", string(syncErr.Kind),
			"stage", syncErr.Stage,
			"error", syncErr.Message)
		return syncErr
	}

	slog.Info("Sync completed successfully",
		"sync", name,
		"run_id", runID,
		"candidates", result.Candidates,
		"written", result.Written,
		"duration", time.Since(startTime))
	return nil
}

func applyOutcome(syncStatus *status.SyncStatus, result *pkgsync.Result, syncErr *pkgsync.Error, finished bool) {
	if result != nil {
		syncStatus.Candidates = result.Candidates
		syncStatus.Created = result.Created
		syncStatus.Updated = result.Updated + result.Unsubscribed
		syncStatus.Skipped = result.Skipped
		syncStatus.Rejected = result.Rejected
		syncStatus.WriteBackFailures = result.WriteBackFailures
	}

	switch {
	case !finished:
		syncStatus.Phase = status.SyncPhaseFailed
		syncStatus.Message = "Unexpected failure while running reconciliation"
	case syncErr != nil:
		syncStatus.Phase = status.SyncPhaseFailed
		syncStatus.Message = syncErr.Message
	default:
		now := time.Now()
		syncStatus.Phase = status.SyncPhaseComplete
		syncStatus.Message = "Sync completed successfully"
		syncStatus.LastSyncTime = &now
		syncStatus.AttemptCount = 0
	}
}

func (c *defaultCoordinator) recordMetrics(
	ctx context.Context,
	duration time.Duration,
	result *pkgsync.Result,
	syncErr *pkgsync.Error,
) {
	c.syncMetrics.RecordRunDuration(ctx, c.cfg.Name, duration, syncErr == nil)
	if result == nil {
		return
	}
	c.syncMetrics.RecordRecords(ctx, c.cfg.Name, string(classify.ActionCreate), int64(result.Created))
	c.syncMetrics.RecordRecords(ctx, c.cfg.Name, string(classify.ActionUpdateSubscribed), int64(result.Updated))
	c.syncMetrics.RecordRecords(ctx, c.cfg.Name, string(classify.ActionUpdateUnsubscribed), int64(result.Unsubscribed))
	c.syncMetrics.RecordRecords(ctx, c.cfg.Name, string(classify.ActionNoOp), int64(result.Skipped))
	c.syncMetrics.RecordWriteBackFailures(ctx, c.cfg.Name, int64(result.WriteBackFailures))
}
