// Package service provides the operations the HTTP API exposes over a running sync target
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/listsync/listsync/internal/status"
	"github.com/listsync/listsync/internal/sync/state"
)

var (
	// ErrNotReady is returned by CheckReadiness until a run has completed successfully
	ErrNotReady = errors.New("no successful reconciliation run yet")
	// ErrStatusNotFound is returned when the sync target has no status yet
	ErrStatusNotFound = errors.New("sync status not found")
)

//go:generate mockgen -destination=mocks/mock_service.go -package=mocks -source=service.go SyncService

// SyncService defines the operations served over HTTP
type SyncService interface {
	// CheckReadiness returns nil once a reconciliation run has completed successfully
	CheckReadiness(ctx context.Context) error

	// GetStatus returns the current status of the sync target
	GetStatus(ctx context.Context) (*status.SyncStatus, error)

	// TriggerSync queues a run. It returns false if a trigger is already pending.
	TriggerSync(ctx context.Context) bool
}

// Trigger queues reconciliation runs
type Trigger interface {
	TriggerSync() bool
}

type syncService struct {
	name     string
	stateSvc state.SyncStateService
	trigger  Trigger
}

// New creates a SyncService for the named sync target
func New(name string, stateSvc state.SyncStateService, trigger Trigger) SyncService {
	return &syncService{
		name:     name,
		stateSvc: stateSvc,
		trigger:  trigger,
	}
}

func (s *syncService) CheckReadiness(ctx context.Context) error {
	syncStatus, err := s.GetStatus(ctx)
	if err != nil {
		return err
	}
	if syncStatus.LastSyncTime == nil {
		return ErrNotReady
	}
	return nil
}

func (s *syncService) GetStatus(ctx context.Context) (*status.SyncStatus, error) {
	syncStatus, err := s.stateSvc.GetSyncStatus(ctx, s.name)
	if err != nil {
		if errors.Is(err, state.ErrStatusNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrStatusNotFound, s.name)
		}
		return nil, fmt.Errorf("failed to get sync status: %w", err)
	}
	return syncStatus, nil
}

func (s *syncService) TriggerSync(_ context.Context) bool {
	return s.trigger.TriggerSync()
}
