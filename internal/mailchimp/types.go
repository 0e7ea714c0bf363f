// Package mailchimp implements the list provider side of the reconciliation:
// exact-match member search and member create/replace, both submitted through
// the Mailchimp batch operations API and waited on synchronously.
package mailchimp

import (
	// #nosec G501 -- md5 is Mailchimp's subscriber hash, not used for security
	"crypto/md5"
	"encoding/hex"
	"net/http"
	"strings"
)

// Member statuses
const (
	StatusSubscribed   = "subscribed"
	StatusUnsubscribed = "unsubscribed"
)

// SearchQuery asks for exact matches of one address in one list
type SearchQuery struct {
	EmailAddress string
	ListID       string
}

// Member is the subset of a list member returned by search
type Member struct {
	ID           string `json:"id"`
	EmailAddress string `json:"email_address"`
	Status       string `json:"status"`
	ListID       string `json:"list_id"`
}

// MatchSet is one group of search hits
type MatchSet struct {
	TotalItems int      `json:"total_items"`
	Members    []Member `json:"members"`
}

// SearchResult is the search-members response for one query
type SearchResult struct {
	ExactMatches MatchSet `json:"exact_matches"`
	FullSearch   MatchSet `json:"full_search"`
}

// MergeFields carries the audience merge tags kept in sync
type MergeFields struct {
	Email     string `json:"EMAIL"`
	FirstName string `json:"FNAME"`
	LastName  string `json:"LNAME"`
}

// MemberBody is the payload for creating or replacing a member
type MemberBody struct {
	EmailAddress string      `json:"email_address"`
	EmailType    string      `json:"email_type,omitempty"`
	Status       string      `json:"status"`
	MergeFields  MergeFields `json:"merge_fields"`
}

// CreateMembersBody is the payload of a batch subscribe
type CreateMembersBody struct {
	Members        []MemberBody `json:"members"`
	UpdateExisting bool         `json:"update_existing"`
}

// OperationKind is the kind of a list mutation
type OperationKind string

// Operation kinds
const (
	KindCreate  OperationKind = "create"
	KindReplace OperationKind = "replace"
)

// Method returns the HTTP method used for the kind
func (k OperationKind) Method() string {
	if k == KindReplace {
		return http.MethodPut
	}
	return http.MethodPost
}

// Operation is one list mutation submitted through BatchApply
type Operation struct {
	Kind OperationKind
	// Target is the API path, relative to the endpoint
	Target string
	Body   any
}

// StatusFor returns the member status for a subscription flag
func StatusFor(subscribed bool) string {
	if subscribed {
		return StatusSubscribed
	}
	return StatusUnsubscribed
}

// NewMemberBody builds the member payload for a contact
func NewMemberBody(email, firstName, lastName string, subscribed bool) MemberBody {
	return MemberBody{
		EmailAddress: email,
		EmailType:    "html",
		Status:       StatusFor(subscribed),
		MergeFields: MergeFields{
			Email:     email,
			FirstName: firstName,
			LastName:  lastName,
		},
	}
}

// MemberKey returns Mailchimp's subscriber hash: the hex MD5 of the
// lower-cased, trimmed address.
func MemberKey(email string) string {
	// #nosec G401 -- required by the Mailchimp API
	sum := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(email))))
	return hex.EncodeToString(sum[:])
}

// CreateMembersOperation subscribes members to listID in a single call.
// Members that already exist are updated rather than rejected.
func CreateMembersOperation(listID string, members []MemberBody) Operation {
	return Operation{
		Kind:   KindCreate,
		Target: "/lists/" + listID,
		Body: CreateMembersBody{
			Members:        members,
			UpdateExisting: true,
		},
	}
}

// ReplaceMemberOperation replaces the member currently keyed by previousEmail.
// A full replace is used so that a changed email_address is applied.
func ReplaceMemberOperation(listID, previousEmail string, body MemberBody) Operation {
	return Operation{
		Kind:   KindReplace,
		Target: "/lists/" + listID + "/members/" + MemberKey(previousEmail),
		Body:   body,
	}
}
