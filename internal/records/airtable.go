package records

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/listsync/listsync/internal/httpclient"
)

// maxPages guards against a store that keeps returning offsets
const maxPages = 10000

// AirtableConfig configures an AirtableStore
type AirtableConfig struct {
	Endpoint string
	BaseID   string
	Table    string
	PageSize int
	Fields   FieldMap
}

// AirtableStore implements Store on top of the Airtable REST API
type AirtableStore struct {
	client   *httpclient.Client
	tableURL string
	pageSize int
	fields   FieldMap
}

type airtableRecord struct {
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields"`
}

type listResponse struct {
	Records []airtableRecord `json:"records"`
	Offset  string           `json:"offset,omitempty"`
}

type updateRequest struct {
	Fields map[string]any `json:"fields"`
}

// NewAirtableStore creates a Store for one Airtable table.
// The client is expected to carry the bearer token and rate limit.
func NewAirtableStore(cfg AirtableConfig, client *httpclient.Client) *AirtableStore {
	tableURL := strings.TrimRight(cfg.Endpoint, "/") + "/v0/" +
		url.PathEscape(cfg.BaseID) + "/" + url.PathEscape(cfg.Table)

	return &AirtableStore{
		client:   client,
		tableURL: tableURL,
		pageSize: cfg.PageSize,
		fields:   cfg.Fields,
	}
}

// ListCandidates implements Store
func (s *AirtableStore) ListCandidates(ctx context.Context, fields []string, view string) ([]*Record, error) {
	var (
		out    []*Record
		offset string
		seen   = map[string]struct{}{}
	)

	for page := 1; ; page++ {
		if page > maxPages {
			return nil, fmt.Errorf("listing %s: more than %d pages", s.tableURL, maxPages)
		}

		var resp listResponse
		if err := s.client.DoJSON(ctx, http.MethodGet, s.listURL(fields, view, offset), nil, &resp); err != nil {
			return nil, fmt.Errorf("listing page %d: %w", page, err)
		}

		for _, r := range resp.Records {
			out = append(out, s.fields.Decode(r.ID, r.Fields))
		}

		slog.Debug("Fetched record page", "page", page, "records", len(resp.Records), "total", len(out))

		if resp.Offset == "" {
			return out, nil
		}
		if _, dup := seen[resp.Offset]; dup {
			return nil, fmt.Errorf("listing page %d: offset %q repeated", page, resp.Offset)
		}
		seen[resp.Offset] = struct{}{}
		offset = resp.Offset
	}
}

// UpdateRecord implements Store
func (s *AirtableStore) UpdateRecord(ctx context.Context, id string, changes map[string]any) error {
	if id == "" {
		return fmt.Errorf("record id is required")
	}

	target := s.tableURL + "/" + url.PathEscape(id)
	err := s.client.DoJSON(ctx, http.MethodPatch, target, updateRequest{Fields: changes}, nil)
	if err != nil {
		var httpErr *httpclient.HTTPError
		if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound {
			return fmt.Errorf("updating %s: %w: %w", id, ErrRecordNotFound, err)
		}
		return fmt.Errorf("updating %s: %w", id, err)
	}
	return nil
}

func (s *AirtableStore) listURL(fields []string, view, offset string) string {
	query := url.Values{}
	if view != "" {
		query.Set("view", view)
	}
	for _, f := range fields {
		if f != "" {
			query.Add("fields[]", f)
		}
	}
	if s.pageSize > 0 {
		query.Set("pageSize", strconv.Itoa(s.pageSize))
	}
	if offset != "" {
		query.Set("offset", offset)
	}
	return s.tableURL + "?" + query.Encode()
}
