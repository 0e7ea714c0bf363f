package mailchimp

import "context"

//go:generate mockgen -destination=mocks/mock_provider.go -package=mocks -source=provider.go Provider

// Provider is the mailing list service
type Provider interface {
	// BatchSearchExact runs one search per query and returns results aligned with queries
	BatchSearchExact(ctx context.Context, queries []SearchQuery) ([]SearchResult, error)

	// BatchApply submits every operation as one batch and waits for it to finish.
	// It fails if any operation failed. Members refused by a batch subscribe are
	// reported with *RejectedMembersError; everything else in the batch was applied.
	BatchApply(ctx context.Context, ops []Operation) error
}
