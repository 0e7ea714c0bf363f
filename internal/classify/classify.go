// Package classify decides, for one contact record and the list provider's
// search result for it, which list mutation brings the provider up to date.
// Everything here is pure: no I/O and no errors.
package classify

import (
	"strings"

	"github.com/listsync/listsync/internal/mailchimp"
	"github.com/listsync/listsync/internal/records"
)

// Action is the list mutation chosen for a record
type Action string

// Actions
const (
	ActionCreate             Action = "create"
	ActionUpdateSubscribed   Action = "update-subscribed"
	ActionUpdateUnsubscribed Action = "update-unsubscribed"
	ActionNoOp               Action = "no-op"
)

// Reasons attached to a classification
const (
	ReasonConverged  = "converged"
	ReasonNoAddress  = "no-address"
	ReasonNotFound   = "not-found"
	ReasonNotQueried = "not-queried"
	ReasonFound      = "found"
)

// Pair correlates one record with the search result for its query address.
// It lives for a single run.
type Pair struct {
	Record *records.Record
	// Match is the search result; zero when the record was not searched
	Match mailchimp.SearchResult
	// Searched is false when the record was left out of the search batch
	Searched bool

	Subscribed bool
	Exists     bool
	Action     Action
	Reason     string
	// Rejected is set when the list provider refused the pushed member
	Rejected string
}

// Subscribed returns the record's desired subscription state, absent meaning false
func Subscribed(rec *records.Record) bool {
	return rec.Subscribed()
}

// Exists reports whether the search found at least one exact match.
// Ambiguous multiple matches count as existing.
func Exists(result mailchimp.SearchResult) bool {
	return result.ExactMatches.TotalItems != 0
}

// Classify builds the Pair for rec. A record that was not searched is treated
// as not existing remotely.
func Classify(rec *records.Record, result mailchimp.SearchResult, searched bool) *Pair {
	p := &Pair{
		Record:     rec,
		Match:      result,
		Searched:   searched,
		Subscribed: Subscribed(rec),
		Exists:     searched && Exists(result),
	}

	switch {
	case rec.Converged():
		p.Action, p.Reason = ActionNoOp, ReasonConverged
	case strings.TrimSpace(rec.Email) == "":
		p.Action, p.Reason = ActionNoOp, ReasonNoAddress
	case !p.Exists:
		p.Action = ActionCreate
		p.Reason = ReasonNotFound
		if !searched {
			p.Reason = ReasonNotQueried
		}
	case p.Subscribed:
		p.Action, p.Reason = ActionUpdateSubscribed, ReasonFound
	default:
		p.Action, p.Reason = ActionUpdateUnsubscribed, ReasonFound
	}
	return p
}

// Pushes reports whether the pair results in a list mutation and a shadow write-back
func (p *Pair) Pushes() bool {
	return p.Action != ActionNoOp && p.Rejected == ""
}

// MemberBody returns the desired list member state for the pair's record
func (p *Pair) MemberBody() mailchimp.MemberBody {
	rec := p.Record
	return mailchimp.NewMemberBody(strings.TrimSpace(rec.Email), rec.FirstName, rec.LastName, p.Subscribed)
}
