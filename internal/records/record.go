// Package records holds the contact record model kept in the record store,
// the mapping between logical fields and store columns, and the Airtable
// backed Store implementation.
package records

import "strings"

// Record is one contact row together with its shadow fields.
// The Previous* fields remember the values last pushed to the list provider.
type Record struct {
	ID        string
	Email     string
	FirstName string
	LastName  string
	// InMailingList is nil when the store omitted the value
	InMailingList *bool

	PreviousEmail         string
	PreviousInMailingList *bool
	PreviousFirstName     string
	PreviousLastName      string
}

// Subscribed returns the desired subscription state, treating absent as false
func (r *Record) Subscribed() bool {
	return r.InMailingList != nil && *r.InMailingList
}

// PreviouslySubscribed returns the shadow subscription state, treating absent as false
func (r *Record) PreviouslySubscribed() bool {
	return r.PreviousInMailingList != nil && *r.PreviousInMailingList
}

// QueryAddress returns the address the list provider currently knows this
// contact by: the shadow email, or the live email before the first sync.
func (r *Record) QueryAddress() string {
	if prev := strings.TrimSpace(r.PreviousEmail); prev != "" {
		return prev
	}
	return strings.TrimSpace(r.Email)
}

// Converged reports whether every shadow field already equals its live field
func (r *Record) Converged() bool {
	return r.PreviousEmail == r.Email &&
		r.PreviouslySubscribed() == r.Subscribed() &&
		r.PreviousFirstName == r.FirstName &&
		r.PreviousLastName == r.LastName
}
