package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	gosync "sync"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel/trace"

	"github.com/listsync/listsync/internal/classify"
	"github.com/listsync/listsync/internal/mailchimp"
	"github.com/listsync/listsync/internal/otel"
	"github.com/listsync/listsync/internal/records"
	"github.com/listsync/listsync/internal/telemetry"
)

// EmptyAddressPolicy decides what happens to a record with no address to search for
type EmptyAddressPolicy string

// Empty address policies
const (
	// EmptyAddressSkip leaves the record out of the search. It is classified as
	// not existing and, having no address, is never pushed.
	EmptyAddressSkip EmptyAddressPolicy = "skip"
	// EmptyAddressFail fails the run with a SearchBatchError
	EmptyAddressFail EmptyAddressPolicy = "fail"
)

const defaultWriteBackConcurrency = 4

// Result summarises a reconciliation run
type Result struct {
	RunID             string
	Candidates        int
	Created           int
	Updated           int
	Unsubscribed      int
	Skipped           int
	Rejected          int
	Written           int
	WriteBackFailures int
}

// WriteBackReport is the outcome of SynchronizeRecords
type WriteBackReport struct {
	Written int
	Failed  []RecordFailure
}

// Manager runs the reconciliation pipeline
//
//go:generate mockgen -destination=mocks/mock_manager.go -package=mocks github.com/listsync/listsync/internal/sync Manager
type Manager interface {
	// PairRecords drains the candidate view and correlates every record with
	// the list provider's exact-match search for its query address.
	// The returned pairs are aligned index-for-index with the candidates.
	PairRecords(ctx context.Context) ([]*classify.Pair, *Error)

	// SelectAction classifies every pair and applies the resulting creates
	// and replaces as one batch
	SelectAction(ctx context.Context, pairs []*classify.Pair) ([]*classify.Pair, *Error)

	// SynchronizeRecords writes the shadow fields back for every pushed pair.
	// The report is returned even when some write-backs failed.
	SynchronizeRecords(ctx context.Context, pairs []*classify.Pair) (*WriteBackReport, *Error)

	// PerformSync runs the three stages in sequence. On a write-back error
	// both the Result and the Error are returned.
	PerformSync(ctx context.Context) (*Result, *Error)
}

// Config holds the validated pipeline settings
type Config struct {
	// Name identifies the sync target in logs and spans
	Name                 string
	ListID               string
	View                 string
	Fields               records.FieldMap
	EmptyAddressPolicy   EmptyAddressPolicy
	WriteBackConcurrency int
}

// Option configures the default manager
type Option func(*defaultManager)

// WithTracerProvider sets the tracer provider used for stage spans
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(m *defaultManager) {
		if tp != nil {
			m.tracer = tp.Tracer(telemetry.SyncTracerName)
		}
	}
}

type defaultManager struct {
	store    records.Store
	provider mailchimp.Provider
	cfg      Config
	tracer   trace.Tracer
}

// NewManager creates the default Manager
func NewManager(store records.Store, provider mailchimp.Provider, cfg Config, opts ...Option) Manager {
	if cfg.WriteBackConcurrency < 1 {
		cfg.WriteBackConcurrency = defaultWriteBackConcurrency
	}
	if cfg.EmptyAddressPolicy == "" {
		cfg.EmptyAddressPolicy = EmptyAddressSkip
	}

	m := &defaultManager{
		store:    store,
		provider: provider,
		cfg:      cfg,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

type runIDKey struct{}

// ContextWithRunID returns a context carrying the run id used in logs and errors
func ContextWithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

// RunIDFromContext returns the run id stored by ContextWithRunID
func RunIDFromContext(ctx context.Context) string {
	runID, _ := ctx.Value(runIDKey{}).(string)
	return runID
}

// PerformSync implements Manager
func (m *defaultManager) PerformSync(ctx context.Context) (*Result, *Error) {
	runID := RunIDFromContext(ctx)
	if runID == "" {
		runID = uuid.NewString()
		ctx = ContextWithRunID(ctx, runID)
	}

	ctx, span := otel.StartSpan(ctx, m.tracer, "sync.PerformSync", trace.WithAttributes(
		otel.AttrSyncName.String(m.cfg.Name),
		otel.AttrRunID.String(runID),
	))
	defer span.End()

	slog.InfoContext(ctx, "Starting reconciliation run", "run_id", runID, "sync", m.cfg.Name)

	pairs, syncErr := m.PairRecords(ctx)
	if syncErr != nil {
		return nil, failSpan(span, syncErr)
	}

	pairs, syncErr = m.SelectAction(ctx, pairs)
	if syncErr != nil {
		return nil, failSpan(span, syncErr)
	}

	result := summarize(runID, pairs)

	report, syncErr := m.SynchronizeRecords(ctx, pairs)
	if report != nil {
		result.Written = report.Written
		result.WriteBackFailures = len(report.Failed)
	}

	span.SetAttributes(
		otel.AttrCandidates.Int(result.Candidates),
		otel.AttrCreated.Int(result.Created),
		otel.AttrUpdated.Int(result.Updated+result.Unsubscribed),
		otel.AttrWritten.Int(result.Written),
	)

	if syncErr != nil {
		return result, failSpan(span, syncErr)
	}

	slog.InfoContext(ctx, "Reconciliation run complete",
		"run_id", runID,
		"candidates", result.Candidates,
		"created", result.Created,
		"updated", result.Updated,
		"unsubscribed", result.Unsubscribed,
		"skipped", result.Skipped,
		"rejected", result.Rejected,
		"written", result.Written,
	)
	return result, nil
}

// PairRecords implements Manager
func (m *defaultManager) PairRecords(ctx context.Context) ([]*classify.Pair, *Error) {
	runID := RunIDFromContext(ctx)
	ctx, span := otel.StartSpan(ctx, m.tracer, "sync.PairRecords")
	defer span.End()

	recs, err := m.store.ListCandidates(ctx, m.cfg.Fields.Names(), m.cfg.View)
	if err != nil {
		slog.ErrorContext(ctx, "Fetching candidates failed", "run_id", runID, "stage", StagePair, "error", err)
		return nil, failSpan(span, newError(KindFetch, StagePair, runID, err, "Fetch failed: %v", err))
	}

	pairs := make([]*classify.Pair, len(recs))
	queries := make([]mailchimp.SearchQuery, 0, len(recs))
	queried := make([]int, 0, len(recs))

	for i, rec := range recs {
		pairs[i] = &classify.Pair{Record: rec}

		address := rec.QueryAddress()
		if address == "" {
			if m.cfg.EmptyAddressPolicy == EmptyAddressFail {
				err := fmt.Errorf("record %s: %w", rec.ID, mailchimp.ErrEmptyQuery)
				slog.ErrorContext(ctx, "Record has no address to search for",
					"run_id", runID, "stage", StagePair, "record_id", rec.ID)
				return nil, failSpan(span, newError(KindSearchBatch, StagePair, runID, err, "Search failed: %v", err))
			}
			slog.DebugContext(ctx, "Record has no address, leaving it out of the search",
				"run_id", runID, "record_id", rec.ID)
			continue
		}

		queries = append(queries, mailchimp.SearchQuery{EmailAddress: address, ListID: m.cfg.ListID})
		queried = append(queried, i)
	}

	span.SetAttributes(otel.AttrCandidates.Int(len(recs)), otel.AttrQueries.Int(len(queries)))

	if len(queries) > 0 {
		results, err := m.provider.BatchSearchExact(ctx, queries)
		if err != nil {
			slog.ErrorContext(ctx, "Search batch failed", "run_id", runID, "stage", StagePair, "error", err)
			return nil, failSpan(span, newError(KindSearchBatch, StagePair, runID, err, "Search failed: %v", err))
		}
		if len(results) != len(queries) {
			err := fmt.Errorf("got %d search results for %d queries", len(results), len(queries))
			return nil, failSpan(span, newError(KindSearchBatch, StagePair, runID, err, "Search failed: %v", err))
		}
		for qi, ri := range queried {
			pairs[ri].Match = results[qi]
			pairs[ri].Searched = true
		}
	}

	slog.InfoContext(ctx, "Paired candidates with search results",
		"run_id", runID, "stage", StagePair, "candidates", len(recs), "searched", len(queries))
	return pairs, nil
}

// SelectAction implements Manager
func (m *defaultManager) SelectAction(ctx context.Context, pairs []*classify.Pair) ([]*classify.Pair, *Error) {
	runID := RunIDFromContext(ctx)
	ctx, span := otel.StartSpan(ctx, m.tracer, "sync.SelectAction")
	defer span.End()

	var (
		creates []mailchimp.MemberBody
		ops     []mailchimp.Operation
	)

	for _, p := range pairs {
		*p = *classify.Classify(p.Record, p.Match, p.Searched)

		slog.DebugContext(ctx, "Classified record",
			"run_id", runID,
			"record_id", p.Record.ID,
			"action", string(p.Action),
			"reason", p.Reason,
			"exists", p.Exists,
			"subscribed", p.Subscribed,
		)

		switch p.Action {
		case classify.ActionCreate:
			creates = append(creates, p.MemberBody())
		case classify.ActionUpdateSubscribed, classify.ActionUpdateUnsubscribed:
			ops = append(ops, mailchimp.ReplaceMemberOperation(m.cfg.ListID, p.Record.QueryAddress(), p.MemberBody()))
		case classify.ActionNoOp:
		}
	}

	if len(creates) > 0 {
		ops = append(ops, mailchimp.CreateMembersOperation(m.cfg.ListID, creates))
	}

	span.SetAttributes(otel.AttrCreates.Int(len(creates)), otel.AttrOperations.Int(len(ops)))

	if len(ops) == 0 {
		slog.InfoContext(ctx, "Nothing to apply", "run_id", runID, "stage", StageSelect)
		return pairs, nil
	}

	err := m.provider.BatchApply(ctx, ops)
	var rejected *mailchimp.RejectedMembersError
	if errors.As(err, &rejected) {
		markRejected(ctx, runID, pairs, rejected)
		err = nil
	}
	if err != nil {
		slog.ErrorContext(ctx, "Apply batch failed", "run_id", runID, "stage", StageSelect, "error", err)
		return nil, failSpan(span, newError(KindApplyBatch, StageSelect, runID, err, "Apply failed: %v", err))
	}

	slog.InfoContext(ctx, "Applied list changes",
		"run_id", runID, "stage", StageSelect, "created", len(creates), "operations", len(ops))
	return pairs, nil
}

// SynchronizeRecords implements Manager.
// A run that reached this stage has already changed the list, so the write-backs
// are not cut short by cancellation of ctx.
func (m *defaultManager) SynchronizeRecords(ctx context.Context, pairs []*classify.Pair) (*WriteBackReport, *Error) {
	runID := RunIDFromContext(ctx)
	ctx, span := otel.StartSpan(context.WithoutCancel(ctx), m.tracer, "sync.SynchronizeRecords")
	defer span.End()

	type indexedFailure struct {
		index int
		RecordFailure
	}

	var (
		mu       gosync.Mutex
		failures []indexedFailure
		written  int
	)

	p := pool.New().WithErrors().WithMaxGoroutines(m.cfg.WriteBackConcurrency)
	for i, pair := range pairs {
		if !pair.Pushes() {
			continue
		}
		p.Go(func() error {
			rec := pair.Record
			err := m.store.UpdateRecord(ctx, rec.ID, m.cfg.Fields.ShadowChanges(rec))

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				slog.ErrorContext(ctx, "Writing back shadow fields failed",
					"run_id", runID, "stage", StageSynchronize, "record_id", rec.ID, "error", err)
				failures = append(failures, indexedFailure{index: i, RecordFailure: RecordFailure{RecordID: rec.ID, Err: err}})
				return fmt.Errorf("record %s: %w", rec.ID, err)
			}
			written++
			return nil
		})
	}
	joined := p.Wait()

	sort.Slice(failures, func(a, b int) bool { return failures[a].index < failures[b].index })

	report := &WriteBackReport{Written: written}
	for _, f := range failures {
		report.Failed = append(report.Failed, f.RecordFailure)
	}

	span.SetAttributes(otel.AttrWritten.Int(written), otel.AttrWriteBackFailures.Int(len(failures)))

	if len(report.Failed) > 0 {
		syncErr := newError(KindWriteBack, StageSynchronize, runID, joined,
			"Write-back failed for %d of %d records", len(report.Failed), len(report.Failed)+written)
		syncErr.Failures = report.Failed
		return report, failSpan(span, syncErr)
	}

	slog.InfoContext(ctx, "Wrote back shadow fields", "run_id", runID, "stage", StageSynchronize, "written", written)
	return report, nil
}

// markRejected keeps members the provider refused out of the write-back,
// so they stay candidates for the next run
func markRejected(ctx context.Context, runID string, pairs []*classify.Pair, rejected *mailchimp.RejectedMembersError) {
	for _, p := range pairs {
		if p.Action != classify.ActionCreate {
			continue
		}
		if reason := rejected.Reason(p.MemberBody().EmailAddress); reason != "" {
			p.Rejected = reason
			slog.WarnContext(ctx, "List provider rejected member",
				"run_id", runID, "stage", StageSelect, "record_id", p.Record.ID, "reason", reason)
		}
	}
}

func summarize(runID string, pairs []*classify.Pair) *Result {
	result := &Result{RunID: runID, Candidates: len(pairs)}
	for _, p := range pairs {
		if p.Rejected != "" {
			result.Rejected++
			continue
		}
		switch p.Action {
		case classify.ActionCreate:
			result.Created++
		case classify.ActionUpdateSubscribed:
			result.Updated++
		case classify.ActionUpdateUnsubscribed:
			result.Unsubscribed++
		case classify.ActionNoOp:
			result.Skipped++
		}
	}
	return result
}

func failSpan(span trace.Span, err *Error) *Error {
	otel.RecordError(span, err, otel.AttrErrorKind.String(string(err.Kind)))
	return err
}

// IsKind reports whether err is a pipeline Error of the given kind
func IsKind(err error, kind ErrorKind) bool {
	var syncErr *Error
	return errors.As(err, &syncErr) && syncErr.Kind == kind
}
