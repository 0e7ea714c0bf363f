package mailchimp

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyQuery is returned when a search query has no address
	ErrEmptyQuery = errors.New("empty search query")

	// ErrBatchTimeout is returned when a batch does not finish within the configured timeout
	ErrBatchTimeout = errors.New("batch did not finish in time")
)

// OperationFailure describes one failed operation of a batch
type OperationFailure struct {
	OperationID int
	Method      string
	Path        string
	StatusCode  int
	Detail      string
}

// BatchError is returned when any operation of a batch failed.
// The batch is treated as failed as a whole.
type BatchError struct {
	BatchID  string
	Failures []OperationFailure
}

// Error implements the error interface
func (e *BatchError) Error() string {
	if len(e.Failures) == 0 {
		return fmt.Sprintf("batch %s failed", e.BatchID)
	}
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("op %d %s %s: HTTP %d: %s", f.OperationID, f.Method, f.Path, f.StatusCode, f.Detail))
	}
	return fmt.Sprintf("batch %s: %d operation(s) failed: %s", e.BatchID, len(e.Failures), strings.Join(parts, "; "))
}

// MemberRejection is one member a batch subscribe refused
type MemberRejection struct {
	EmailAddress string
	Reason       string
}

// RejectedMembersError is returned by BatchApply when every operation succeeded
// but a batch subscribe refused some of its members. The other members were applied.
type RejectedMembersError struct {
	BatchID  string
	Rejected []MemberRejection
}

// Error implements the error interface
func (e *RejectedMembersError) Error() string {
	parts := make([]string, 0, len(e.Rejected))
	for _, r := range e.Rejected {
		parts = append(parts, r.EmailAddress+": "+r.Reason)
	}
	return fmt.Sprintf("batch %s: %d member(s) rejected: %s", e.BatchID, len(e.Rejected), strings.Join(parts, "; "))
}

// Reason returns why address was refused, or "" when it was not
func (e *RejectedMembersError) Reason(address string) string {
	address = strings.ToLower(strings.TrimSpace(address))
	for _, r := range e.Rejected {
		if strings.ToLower(strings.TrimSpace(r.EmailAddress)) == address {
			if r.Reason == "" {
				return "rejected"
			}
			return r.Reason
		}
	}
	return ""
}
