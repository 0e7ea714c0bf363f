// Package status provides run status tracking and persistence for listsync.
package status

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
)

//go:generate mockgen -destination=mocks/mock_status_persistence.go -package=mocks -source=persistence.go StatusPersistence

const (
	// StatusFileName is the name of the status file
	StatusFileName = "status.json"
)

// StatusPersistence defines the interface for run status persistence
//
//nolint:revive // This name is fine
type StatusPersistence interface {
	// SaveStatus saves the status of the named sync target
	SaveStatus(ctx context.Context, name string, status *SyncStatus) error

	// LoadStatus loads the status of the named sync target.
	// Returns an empty SyncStatus if nothing was saved yet (first run).
	LoadStatus(ctx context.Context, name string) (*SyncStatus, error)
}

type fileStatusPersistence struct {
	basePath string
}

// NewFileStatusPersistence creates a file-based status persistence storing
// each target's status under basePath/{name}/status.json
func NewFileStatusPersistence(basePath string) StatusPersistence {
	return &fileStatusPersistence{
		basePath: basePath,
	}
}

// SaveStatus writes the status to a temporary file and renames it into place
func (f *fileStatusPersistence) SaveStatus(_ context.Context, name string, status *SyncStatus) error {
	dir := filepath.Join(f.basePath, name)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create status directory for '%s': %w", name, err)
	}

	filePath := filepath.Join(dir, StatusFileName)

	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal status for '%s': %w", name, err)
	}

	tempPath := filePath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary status file for '%s': %w", name, err)
	}

	if err := os.Rename(tempPath, filePath); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename status file for '%s': %w", name, err)
	}

	return nil
}

// LoadStatus reads the status file of the named target
func (f *fileStatusPersistence) LoadStatus(_ context.Context, name string) (*SyncStatus, error) {
	filePath := filepath.Join(f.basePath, name, StatusFileName)

	// #nosec G304 -- filePath is built from the configured data directory and target name
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return &SyncStatus{}, nil
		}
		return nil, fmt.Errorf("failed to read status file for '%s': %w", name, err)
	}

	var status SyncStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status for '%s': %w", name, err)
	}

	return &status, nil
}
