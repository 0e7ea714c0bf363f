package records

import (
	"context"
	"errors"
)

//go:generate mockgen -destination=mocks/mock_store.go -package=mocks -source=store.go Store

// ErrRecordNotFound is returned when an update targets a record that no longer exists
var ErrRecordNotFound = errors.New("record not found")

// Store is the system of record for contacts
type Store interface {
	// ListCandidates returns every record in view, with all pages drained in arrival order
	ListCandidates(ctx context.Context, fields []string, view string) ([]*Record, error)

	// UpdateRecord writes changes (column name to value) to a single record
	UpdateRecord(ctx context.Context, id string, changes map[string]any) error
}
