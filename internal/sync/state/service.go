// Package state contains logic for managing the run state which the server persists.
package state

import (
	"context"
	"errors"

	"github.com/listsync/listsync/internal/status"
)

// ErrStatusNotFound is returned for a sync target that was never initialized
var ErrStatusNotFound = errors.New("sync status not found")

// SyncStateService provides methods for inspecting and updating the run state of a sync target.
//
//go:generate mockgen -destination=mocks/mock_sync_state_service.go -package=mocks github.com/listsync/listsync/internal/sync/state SyncStateService
type SyncStateService interface {
	// Initialize loads the persisted status of the named target, or creates it.
	// It is intended that this is called at application startup. A status left
	// in Syncing by an interrupted process is reset to Failed.
	Initialize(ctx context.Context, name, schedule string) error
	// GetSyncStatus returns a copy of the status of the named target.
	GetSyncStatus(ctx context.Context, name string) (*status.SyncStatus, error)
	// UpdateSyncStatus overrides the status of the named target.
	UpdateSyncStatus(ctx context.Context, name string, syncStatus *status.SyncStatus) error
	// UpdateStatusAtomically fetches the current status, applies testAndUpdateFn
	// and persists the result if the function reports a change, all as a single
	// atomic action. The returned boolean is the one returned by testAndUpdateFn.
	UpdateStatusAtomically(
		ctx context.Context,
		name string,
		testAndUpdateFn func(syncStatus *status.SyncStatus) bool,
	) (bool, error)
}
