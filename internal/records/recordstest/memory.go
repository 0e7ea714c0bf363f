// Package recordstest provides an in-process records.Store for tests of the
// reconciliation pipeline and the application wiring.
package recordstest

import (
	"context"
	"fmt"
	"sync"

	"github.com/listsync/listsync/internal/records"
)

// MemoryStore is an in-process records.Store. It keeps insertion order and
// treats the view as "records whose shadow fields have not converged", the way
// the managed view configured in Airtable does.
type MemoryStore struct {
	mu      sync.Mutex
	fields  records.FieldMap
	order   []string
	records map[string]*records.Record
	// failUpdates makes UpdateRecord fail for the listed ids
	failUpdates map[string]error
}

var _ records.Store = (*MemoryStore)(nil)

// NewMemoryStore creates a MemoryStore holding recs
func NewMemoryStore(fields records.FieldMap, recs ...*records.Record) *MemoryStore {
	s := &MemoryStore{
		fields:      fields,
		records:     map[string]*records.Record{},
		failUpdates: map[string]error{},
	}
	for _, r := range recs {
		s.Put(r)
	}
	return s
}

// Put inserts or replaces a record
func (s *MemoryStore) Put(rec *records.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[rec.ID]; !ok {
		s.order = append(s.order, rec.ID)
	}
	cp := *rec
	s.records[rec.ID] = &cp
}

// Get returns a copy of the record with id
func (s *MemoryStore) Get(id string) (*records.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, false
	}
	cp := *rec
	return &cp, true
}

// FailUpdates makes subsequent updates of id return err
func (s *MemoryStore) FailUpdates(id string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failUpdates[id] = err
}

// ListCandidates implements records.Store
func (s *MemoryStore) ListCandidates(ctx context.Context, _ []string, _ string) ([]*records.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*records.Record
	for _, id := range s.order {
		rec := s.records[id]
		if rec.Converged() {
			continue
		}
		cp := *rec
		out = append(out, &cp)
	}
	return out, nil
}

// UpdateRecord implements records.Store. Changes are merged into the row and
// decoded again, as a PATCH of the row would be.
func (s *MemoryStore) UpdateRecord(ctx context.Context, id string, changes map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err, ok := s.failUpdates[id]; ok {
		return err
	}
	rec, ok := s.records[id]
	if !ok {
		return fmt.Errorf("updating %s: %w", id, records.ErrRecordNotFound)
	}

	row := s.row(rec)
	for column, value := range changes {
		row[column] = value
	}
	s.records[id] = s.fields.Decode(id, row)
	return nil
}

// row encodes rec as column values; an unset checkbox is left out
func (s *MemoryStore) row(rec *records.Record) map[string]any {
	row := map[string]any{
		s.fields.Email:             rec.Email,
		s.fields.FirstName:         rec.FirstName,
		s.fields.LastName:          rec.LastName,
		s.fields.PreviousEmail:     rec.PreviousEmail,
		s.fields.PreviousFirstName: rec.PreviousFirstName,
		s.fields.PreviousLastName:  rec.PreviousLastName,
	}
	if rec.InMailingList != nil {
		row[s.fields.InMailingList] = *rec.InMailingList
	}
	if rec.PreviousInMailingList != nil {
		row[s.fields.PreviousInMailingList] = *rec.PreviousInMailingList
	}
	return row
}
