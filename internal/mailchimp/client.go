package mailchimp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/goccy/go-json"

	"github.com/listsync/listsync/internal/httpclient"
)

const (
	batchFinished = "finished"

	defaultPollInterval = time.Second
	defaultBatchTimeout = 10 * time.Minute
)

var errBatchPending = errors.New("batch pending")

// ClientConfig configures a Client
type ClientConfig struct {
	// Endpoint is the API root, e.g. https://us6.api.mailchimp.com/3.0
	Endpoint     string
	PollInterval time.Duration
	BatchTimeout time.Duration
}

// Client implements Provider on the Mailchimp batch operations API
type Client struct {
	http         *httpclient.Client
	endpoint     string
	pollInterval time.Duration
	batchTimeout time.Duration
}

var _ Provider = (*Client)(nil)

type batchOperation struct {
	Method      string            `json:"method"`
	Path        string            `json:"path"`
	Params      map[string]string `json:"params,omitempty"`
	Body        string            `json:"body,omitempty"`
	OperationID string            `json:"operation_id"`
}

type batchRequest struct {
	Operations []batchOperation `json:"operations"`
}

type batchStatus struct {
	ID                 string `json:"id"`
	Status             string `json:"status"`
	TotalOperations    int    `json:"total_operations"`
	FinishedOperations int    `json:"finished_operations"`
	ErroredOperations  int    `json:"errored_operations"`
	ResponseBodyURL    string `json:"response_body_url"`
}

type batchResult struct {
	StatusCode  int    `json:"status_code"`
	OperationID string `json:"operation_id"`
	Response    string `json:"response"`
}

type createMembersResponse struct {
	ErrorCount int `json:"error_count"`
	Errors     []struct {
		EmailAddress string `json:"email_address"`
		Error        string `json:"error"`
	} `json:"errors"`
}

type problemDetail struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

// NewClient creates a Client. The http client is expected to carry basic auth and the rate limit.
func NewClient(cfg ClientConfig, client *httpclient.Client) *Client {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = defaultBatchTimeout
	}
	return &Client{
		http:         client,
		endpoint:     strings.TrimRight(cfg.Endpoint, "/"),
		pollInterval: cfg.PollInterval,
		batchTimeout: cfg.BatchTimeout,
	}
}

// BatchSearchExact implements Provider
func (c *Client) BatchSearchExact(ctx context.Context, queries []SearchQuery) ([]SearchResult, error) {
	if len(queries) == 0 {
		return nil, nil
	}

	ops := make([]batchOperation, len(queries))
	for i, q := range queries {
		address := strings.TrimSpace(q.EmailAddress)
		if address == "" {
			return nil, fmt.Errorf("query %d: %w", i, ErrEmptyQuery)
		}
		ops[i] = batchOperation{
			Method: http.MethodGet,
			Path:   "/search-members",
			Params: map[string]string{
				"query":   address,
				"list_id": q.ListID,
			},
			OperationID: strconv.Itoa(i),
		}
	}

	batchID, results, err := c.run(ctx, ops)
	if err != nil {
		return nil, err
	}

	out := make([]SearchResult, len(results))
	for i, r := range results {
		if err := json.Unmarshal([]byte(r.Response), &out[i]); err != nil {
			return nil, fmt.Errorf("batch %s: decoding search result %d: %w", batchID, i, err)
		}
	}
	return out, nil
}

// BatchApply implements Provider
func (c *Client) BatchApply(ctx context.Context, ops []Operation) error {
	if len(ops) == 0 {
		return nil
	}

	batchOps := make([]batchOperation, len(ops))
	for i, op := range ops {
		body, err := json.Marshal(op.Body)
		if err != nil {
			return fmt.Errorf("encoding operation %d: %w", i, err)
		}
		batchOps[i] = batchOperation{
			Method:      op.Kind.Method(),
			Path:        op.Target,
			Body:        string(body),
			OperationID: strconv.Itoa(i),
		}
	}

	batchID, results, err := c.run(ctx, batchOps)
	if err != nil {
		return err
	}

	// A batch subscribe answers 200 even when individual members were rejected
	var rejected []MemberRejection
	for i, r := range results {
		if ops[i].Kind != KindCreate {
			continue
		}
		var resp createMembersResponse
		if err := json.Unmarshal([]byte(r.Response), &resp); err != nil {
			return fmt.Errorf("batch %s: decoding create result %d: %w", batchID, i, err)
		}
		if resp.ErrorCount == 0 {
			continue
		}
		if len(resp.Errors) == 0 {
			return &BatchError{BatchID: batchID, Failures: []OperationFailure{{
				OperationID: i,
				Method:      batchOps[i].Method,
				Path:        batchOps[i].Path,
				StatusCode:  r.StatusCode,
				Detail:      fmt.Sprintf("%d member error(s) without details", resp.ErrorCount),
			}}}
		}
		for _, e := range resp.Errors {
			rejected = append(rejected, MemberRejection{EmailAddress: e.EmailAddress, Reason: e.Error})
		}
	}
	if len(rejected) > 0 {
		slog.WarnContext(ctx, "Batch subscribe rejected members", "batch_id", batchID, "rejected", len(rejected))
		return &RejectedMembersError{BatchID: batchID, Rejected: rejected}
	}
	return nil
}

// run submits ops, waits for the batch and returns its results ordered by operation id
func (c *Client) run(ctx context.Context, ops []batchOperation) (string, []batchResult, error) {
	var submitted batchStatus
	if err := c.http.DoJSON(ctx, http.MethodPost, c.endpoint+"/batches", batchRequest{Operations: ops}, &submitted); err != nil {
		return "", nil, fmt.Errorf("submitting batch: %w", err)
	}
	if submitted.ID == "" {
		return "", nil, fmt.Errorf("submitting batch: response carried no batch id")
	}

	logger := slog.With("batch_id", submitted.ID, "operations", len(ops))
	logger.Debug("Batch submitted")

	status, err := c.wait(ctx, submitted.ID)
	if err != nil {
		return submitted.ID, nil, err
	}

	logger.Debug("Batch finished",
		"finished_operations", status.FinishedOperations,
		"errored_operations", status.ErroredOperations,
	)

	if status.ResponseBodyURL == "" {
		return submitted.ID, nil, fmt.Errorf("batch %s: finished without a response body", submitted.ID)
	}

	archive, err := c.http.Download(ctx, status.ResponseBodyURL)
	if err != nil {
		return submitted.ID, nil, fmt.Errorf("batch %s: downloading results: %w", submitted.ID, err)
	}

	results, err := unpackResults(archive)
	if err != nil {
		return submitted.ID, nil, fmt.Errorf("batch %s: %w", submitted.ID, err)
	}

	ordered, err := orderResults(results, len(ops))
	if err != nil {
		return submitted.ID, nil, fmt.Errorf("batch %s: %w", submitted.ID, err)
	}

	var failures []OperationFailure
	for i, r := range ordered {
		if r.StatusCode < http.StatusBadRequest {
			continue
		}
		failures = append(failures, OperationFailure{
			OperationID: i,
			Method:      ops[i].Method,
			Path:        ops[i].Path,
			StatusCode:  r.StatusCode,
			Detail:      describeProblem(r.Response),
		})
	}
	if len(failures) > 0 {
		return submitted.ID, nil, &BatchError{BatchID: submitted.ID, Failures: failures}
	}

	return submitted.ID, ordered, nil
}

func (c *Client) wait(ctx context.Context, batchID string) (*batchStatus, error) {
	pollCtx, cancel := context.WithTimeout(ctx, c.batchTimeout)
	defer cancel()

	poll := func() (*batchStatus, error) {
		var status batchStatus
		if err := c.http.DoJSON(pollCtx, http.MethodGet, c.endpoint+"/batches/"+batchID, nil, &status); err != nil {
			return nil, backoff.Permanent(fmt.Errorf("polling batch %s: %w", batchID, err))
		}
		if status.Status != batchFinished {
			slog.Debug("Batch pending",
				"batch_id", batchID,
				"status", status.Status,
				"finished_operations", status.FinishedOperations,
				"total_operations", status.TotalOperations,
			)
			return nil, errBatchPending
		}
		return &status, nil
	}

	status, err := backoff.Retry(pollCtx, poll,
		backoff.WithBackOff(backoff.NewConstantBackOff(c.pollInterval)),
		backoff.WithMaxElapsedTime(c.batchTimeout),
	)
	if err == nil {
		return status, nil
	}
	if ctx.Err() == nil && (errors.Is(err, errBatchPending) || errors.Is(pollCtx.Err(), context.DeadlineExceeded)) {
		return nil, fmt.Errorf("batch %s after %s: %w", batchID, c.batchTimeout, ErrBatchTimeout)
	}
	return nil, err
}

func orderResults(results []batchResult, want int) ([]batchResult, error) {
	if len(results) != want {
		return nil, fmt.Errorf("expected %d results, got %d", want, len(results))
	}

	ordered := make([]batchResult, want)
	filled := make([]bool, want)
	for _, r := range results {
		id, err := strconv.Atoi(r.OperationID)
		if err != nil || id < 0 || id >= want {
			return nil, fmt.Errorf("unexpected operation id %q", r.OperationID)
		}
		if filled[id] {
			return nil, fmt.Errorf("duplicate operation id %d", id)
		}
		ordered[id] = r
		filled[id] = true
	}
	return ordered, nil
}

func describeProblem(response string) string {
	var p problemDetail
	if err := json.Unmarshal([]byte(response), &p); err == nil && (p.Title != "" || p.Detail != "") {
		if p.Detail == "" {
			return p.Title
		}
		return strings.TrimSpace(p.Title + ": " + p.Detail)
	}
	if len(response) > 256 {
		return response[:256] + "..."
	}
	return response
}
