package state

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/listsync/listsync/internal/status"
)

type fileStateService struct {
	statusPersistence status.StatusPersistence

	mu             sync.RWMutex
	cachedStatuses map[string]*status.SyncStatus
}

// NewFileStateService creates a state service caching statuses in memory and
// persisting every change through statusPersistence
func NewFileStateService(statusPersistence status.StatusPersistence) SyncStateService {
	return &fileStateService{
		statusPersistence: statusPersistence,
		cachedStatuses:    make(map[string]*status.SyncStatus),
	}
}

func (f *fileStateService) Initialize(ctx context.Context, name, schedule string) error {
	syncStatus, err := f.statusPersistence.LoadStatus(ctx, name)
	if err != nil {
		slog.Warn("Failed to load sync status, initializing with defaults", "sync", name, "error", err)
		syncStatus = &status.SyncStatus{}
	}

	dirty := syncStatus.SyncSchedule != schedule
	syncStatus.SyncSchedule = schedule

	switch {
	case syncStatus.Phase == "" && syncStatus.LastSyncTime == nil:
		slog.Info("No previous sync status found, initializing with defaults", "sync", name)
		syncStatus.Phase = status.SyncPhaseFailed
		syncStatus.Message = "No previous sync status found"
		dirty = true
	case syncStatus.Phase == status.SyncPhaseSyncing:
		// Only one process owns the status file, so a Syncing status at start-up
		// was left behind by an interrupted run.
		slog.Warn("Previous run was interrupted (status=Syncing), resetting to Failed", "sync", name)
		syncStatus.Phase = status.SyncPhaseFailed
		syncStatus.Message = "Previous sync was interrupted"
		dirty = true
	}

	if dirty {
		if err := f.statusPersistence.SaveStatus(ctx, name, syncStatus); err != nil {
			slog.Warn("Failed to persist initial sync status", "sync", name, "error", err)
		}
	}

	if syncStatus.LastSyncTime != nil {
		slog.Info("Loaded sync status",
			"sync", name,
			"phase", syncStatus.Phase,
			"last_sync", syncStatus.LastSyncTime.Format(time.RFC3339),
			"candidates", syncStatus.Candidates,
		)
	} else {
		slog.Info("Sync status: no previous successful run", "sync", name, "phase", syncStatus.Phase)
	}

	f.mu.Lock()
	f.cachedStatuses[name] = syncStatus
	f.mu.Unlock()
	return nil
}

func (f *fileStateService) GetSyncStatus(_ context.Context, name string) (*status.SyncStatus, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	syncStatus, exists := f.cachedStatuses[name]
	if !exists || syncStatus == nil {
		return nil, fmt.Errorf("%w: %s", ErrStatusNotFound, name)
	}
	statusCopy := *syncStatus
	return &statusCopy, nil
}

func (f *fileStateService) UpdateStatusAtomically(
	ctx context.Context,
	name string,
	testAndUpdateFn func(syncStatus *status.SyncStatus) bool,
) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	current, exists := f.cachedStatuses[name]
	if !exists || current == nil {
		return false, fmt.Errorf("%w: %s", ErrStatusNotFound, name)
	}

	// The function works on a copy so a failed save leaves the cache untouched
	syncStatus := *current
	if !testAndUpdateFn(&syncStatus) {
		return false, nil
	}
	if err := f.statusPersistence.SaveStatus(ctx, name, &syncStatus); err != nil {
		return false, err
	}
	f.cachedStatuses[name] = &syncStatus
	return true, nil
}

func (f *fileStateService) UpdateSyncStatus(ctx context.Context, name string, syncStatus *status.SyncStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.statusPersistence.SaveStatus(ctx, name, syncStatus); err != nil {
		return err
	}
	statusCopy := *syncStatus
	f.cachedStatuses[name] = &statusCopy
	return nil
}
