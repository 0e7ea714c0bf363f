package app

import (
	"github.com/listsync/listsync/internal/service"
	pkgsync "github.com/listsync/listsync/internal/sync"
	"github.com/listsync/listsync/internal/sync/coordinator"
)

// AppComponents groups all application components
//
//nolint:revive // This name is fine
type AppComponents struct {
	// SyncCoordinator schedules reconciliation runs
	SyncCoordinator coordinator.Coordinator

	// SyncManager runs the reconciliation pipeline
	SyncManager pkgsync.Manager

	// SyncService backs the HTTP API
	SyncService service.SyncService
}
