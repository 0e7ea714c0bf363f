package sync

import (
	"context"
	"errors"
	gosync "sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/listsync/listsync/internal/classify"
	"github.com/listsync/listsync/internal/mailchimp"
	mailchimpmocks "github.com/listsync/listsync/internal/mailchimp/mocks"
	"github.com/listsync/listsync/internal/records"
	recordsmocks "github.com/listsync/listsync/internal/records/mocks"
	"github.com/listsync/listsync/internal/records/recordstest"
)

const testListID = "list1"

func testFields() records.FieldMap {
	return records.FieldMap{
		Email:                 "Email",
		FirstName:             "First Name",
		LastName:              "Last Name",
		InMailingList:         "In Mailing List",
		PreviousEmail:         "Managed Field: Previous Email Address",
		PreviousInMailingList: "Managed Field: Previous In Mailing List",
		PreviousFirstName:     "Managed Field: Previous First Name",
		PreviousLastName:      "Managed Field: Previous Last Name",
	}
}

func testConfig() Config {
	return Config{
		Name:   "test",
		ListID: testListID,
		View:   "Sync",
		Fields: testFields(),
	}
}

func boolPtr(b bool) *bool { return &b }

// fakeList is an in-memory mailing list keyed by subscriber hash
type fakeList struct {
	mu         gosync.Mutex
	members    map[string]mailchimp.MemberBody
	applyCalls int
	ops        []mailchimp.Operation
}

func newFakeList(members ...mailchimp.MemberBody) *fakeList {
	l := &fakeList{members: map[string]mailchimp.MemberBody{}}
	for _, m := range members {
		l.members[mailchimp.MemberKey(m.EmailAddress)] = m
	}
	return l
}

func (l *fakeList) BatchSearchExact(_ context.Context, queries []mailchimp.SearchQuery) ([]mailchimp.SearchResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	results := make([]mailchimp.SearchResult, len(queries))
	for i, q := range queries {
		if m, ok := l.members[mailchimp.MemberKey(q.EmailAddress)]; ok {
			results[i].ExactMatches = mailchimp.MatchSet{
				TotalItems: 1,
				Members: []mailchimp.Member{{
					ID:           mailchimp.MemberKey(m.EmailAddress),
					EmailAddress: m.EmailAddress,
					Status:       m.Status,
					ListID:       q.ListID,
				}},
			}
		}
	}
	return results, nil
}

func (l *fakeList) BatchApply(_ context.Context, ops []mailchimp.Operation) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.applyCalls++
	l.ops = append(l.ops, ops...)
	for _, op := range ops {
		switch op.Kind {
		case mailchimp.KindCreate:
			for _, m := range op.Body.(mailchimp.CreateMembersBody).Members {
				l.members[mailchimp.MemberKey(m.EmailAddress)] = m
			}
		case mailchimp.KindReplace:
			key := op.Target[len("/lists/"+testListID+"/members/"):]
			if _, ok := l.members[key]; !ok {
				return errors.New("member not found")
			}
			delete(l.members, key)
			body := op.Body.(mailchimp.MemberBody)
			l.members[mailchimp.MemberKey(body.EmailAddress)] = body
		}
	}
	return nil
}

func (l *fakeList) member(email string) (mailchimp.MemberBody, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.members[mailchimp.MemberKey(email)]
	return m, ok
}

func TestPerformSync_Scenarios(t *testing.T) {
	t.Parallel()

	t.Run("new subscriber is created", func(t *testing.T) {
		t.Parallel()

		store := recordstest.NewMemoryStore(testFields(), &records.Record{
			ID: "rec1", Email: "a@x.com", FirstName: "Ann", LastName: "Lee", InMailingList: boolPtr(true),
		})
		list := newFakeList()
		mgr := NewManager(store, list, testConfig())

		result, syncErr := mgr.PerformSync(context.Background())
		require.Nil(t, syncErr)
		assert.Equal(t, 1, result.Candidates)
		assert.Equal(t, 1, result.Created)
		assert.Equal(t, 1, result.Written)
		assert.NotEmpty(t, result.RunID)

		member, ok := list.member("a@x.com")
		require.True(t, ok)
		assert.Equal(t, mailchimp.StatusSubscribed, member.Status)
		assert.Equal(t, "Ann", member.MergeFields.FirstName)

		rec, _ := store.Get("rec1")
		assert.True(t, rec.Converged())
		assert.Equal(t, "a@x.com", rec.PreviousEmail)
	})

	t.Run("email change replaces the member keyed by the old address", func(t *testing.T) {
		t.Parallel()

		store := recordstest.NewMemoryStore(testFields(), &records.Record{
			ID: "rec1", Email: "new@x.com", FirstName: "Ann", InMailingList: boolPtr(true),
			PreviousEmail: "old@x.com", PreviousFirstName: "Ann", PreviousInMailingList: boolPtr(true),
		})
		list := newFakeList(mailchimp.NewMemberBody("old@x.com", "Ann", "", true))
		mgr := NewManager(store, list, testConfig())

		result, syncErr := mgr.PerformSync(context.Background())
		require.Nil(t, syncErr)
		assert.Equal(t, 1, result.Updated)

		require.Len(t, list.ops, 1)
		assert.Equal(t, mailchimp.KindReplace, list.ops[0].Kind)
		assert.Equal(t, "/lists/list1/members/c830183042c178fe75c4522844c0f745", list.ops[0].Target)

		_, oldExists := list.member("old@x.com")
		assert.False(t, oldExists)
		member, ok := list.member("new@x.com")
		require.True(t, ok)
		assert.Equal(t, "new@x.com", member.EmailAddress)

		rec, _ := store.Get("rec1")
		assert.Equal(t, "new@x.com", rec.PreviousEmail)
		assert.True(t, rec.Converged())
	})

	t.Run("unsubscribe keeps the member with unsubscribed status", func(t *testing.T) {
		t.Parallel()

		store := recordstest.NewMemoryStore(testFields(), &records.Record{
			ID: "rec1", Email: "a@x.com", InMailingList: boolPtr(false),
			PreviousEmail: "a@x.com", PreviousInMailingList: boolPtr(true),
		})
		list := newFakeList(mailchimp.NewMemberBody("a@x.com", "", "", true))
		mgr := NewManager(store, list, testConfig())

		result, syncErr := mgr.PerformSync(context.Background())
		require.Nil(t, syncErr)
		assert.Equal(t, 1, result.Unsubscribed)

		member, ok := list.member("a@x.com")
		require.True(t, ok)
		assert.Equal(t, mailchimp.StatusUnsubscribed, member.Status)

		rec, _ := store.Get("rec1")
		require.NotNil(t, rec.PreviousInMailingList)
		assert.False(t, *rec.PreviousInMailingList)
	})

	t.Run("name only change is pushed", func(t *testing.T) {
		t.Parallel()

		store := recordstest.NewMemoryStore(testFields(), &records.Record{
			ID: "rec1", Email: "a@x.com", FirstName: "Annie", InMailingList: boolPtr(true),
			PreviousEmail: "a@x.com", PreviousFirstName: "Ann", PreviousInMailingList: boolPtr(true),
		})
		list := newFakeList(mailchimp.NewMemberBody("a@x.com", "Ann", "", true))
		mgr := NewManager(store, list, testConfig())

		_, syncErr := mgr.PerformSync(context.Background())
		require.Nil(t, syncErr)

		member, _ := list.member("a@x.com")
		assert.Equal(t, "Annie", member.MergeFields.FirstName)
	})
}

func TestPerformSync_Idempotent(t *testing.T) {
	t.Parallel()

	store := recordstest.NewMemoryStore(testFields(),
		&records.Record{ID: "rec1", Email: "a@x.com", InMailingList: boolPtr(true)},
		&records.Record{ID: "rec2", Email: "b@x.com", InMailingList: boolPtr(false)},
		&records.Record{
			ID: "rec3", Email: "c@x.com", InMailingList: boolPtr(false),
			PreviousEmail: "c@x.com", PreviousInMailingList: boolPtr(true),
		},
	)
	list := newFakeList(mailchimp.NewMemberBody("c@x.com", "", "", true))
	mgr := NewManager(store, list, testConfig())

	first, syncErr := mgr.PerformSync(context.Background())
	require.Nil(t, syncErr)
	assert.Equal(t, 3, first.Candidates)
	assert.Equal(t, 1, list.applyCalls)

	second, syncErr := mgr.PerformSync(context.Background())
	require.Nil(t, syncErr)
	assert.Equal(t, 0, second.Candidates)
	assert.Equal(t, 0, second.Written)
	assert.Equal(t, 1, list.applyCalls, "a converged store must not reach the list provider")
}

func TestPerformSync_PartialWriteBackFailure(t *testing.T) {
	t.Parallel()

	store := recordstest.NewMemoryStore(testFields(),
		&records.Record{ID: "A", Email: "a@x.com", InMailingList: boolPtr(true)},
		&records.Record{ID: "B", Email: "b@x.com", InMailingList: boolPtr(true)},
		&records.Record{ID: "C", Email: "c@x.com", InMailingList: boolPtr(true)},
	)
	writeErr := errors.New("row locked")
	store.FailUpdates("B", writeErr)
	list := newFakeList()
	mgr := NewManager(store, list, testConfig())

	result, syncErr := mgr.PerformSync(context.Background())
	require.NotNil(t, syncErr)
	require.NotNil(t, result)

	assert.Equal(t, KindWriteBack, syncErr.Kind)
	assert.Equal(t, StageSynchronize, syncErr.Stage)
	assert.Equal(t, result.RunID, syncErr.RunID)
	require.Len(t, syncErr.Failures, 1)
	assert.Equal(t, "B", syncErr.Failures[0].RecordID)
	assert.ErrorIs(t, syncErr, writeErr)

	assert.Equal(t, 3, result.Created)
	assert.Equal(t, 2, result.Written)
	assert.Equal(t, 1, result.WriteBackFailures)

	for _, id := range []string{"A", "C"} {
		rec, _ := store.Get(id)
		assert.True(t, rec.Converged(), id)
	}
	rec, _ := store.Get("B")
	assert.False(t, rec.Converged())
}

func TestPerformSync_RejectedMemberDoesNotBlockOthers(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	provider := mailchimpmocks.NewMockProvider(ctrl)
	store := recordstest.NewMemoryStore(testFields(),
		&records.Record{ID: "A", Email: "a@x.com", InMailingList: boolPtr(true)},
		&records.Record{ID: "B", Email: "B@x.com", InMailingList: boolPtr(true)},
		&records.Record{ID: "C", Email: "c@x.com", InMailingList: boolPtr(true)},
	)

	provider.EXPECT().BatchSearchExact(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, queries []mailchimp.SearchQuery) ([]mailchimp.SearchResult, error) {
			return make([]mailchimp.SearchResult, len(queries)), nil
		})
	provider.EXPECT().BatchApply(gomock.Any(), gomock.Any()).Return(&mailchimp.RejectedMembersError{
		BatchID:  "b1",
		Rejected: []mailchimp.MemberRejection{{EmailAddress: "b@x.com", Reason: "looks fake or invalid"}},
	})

	mgr := NewManager(store, provider, testConfig())
	result, syncErr := mgr.PerformSync(context.Background())
	require.Nil(t, syncErr)
	require.NotNil(t, result)

	assert.Equal(t, 2, result.Created)
	assert.Equal(t, 1, result.Rejected)
	assert.Equal(t, 2, result.Written)
	assert.Zero(t, result.WriteBackFailures)

	for _, id := range []string{"A", "C"} {
		rec, _ := store.Get(id)
		assert.True(t, rec.Converged(), id)
	}
	rec, _ := store.Get("B")
	assert.False(t, rec.Converged())
}

func TestPairRecords_Errors(t *testing.T) {
	t.Parallel()

	t.Run("fetch error never reaches the provider", func(t *testing.T) {
		t.Parallel()
		ctrl := gomock.NewController(t)
		store := recordsmocks.NewMockStore(ctrl)
		provider := mailchimpmocks.NewMockProvider(ctrl)

		fetchErr := errors.New("airtable down")
		store.EXPECT().ListCandidates(gomock.Any(), testFields().Names(), "Sync").Return(nil, fetchErr)

		mgr := NewManager(store, provider, testConfig())
		result, syncErr := mgr.PerformSync(ContextWithRunID(context.Background(), "run-1"))
		assert.Nil(t, result)
		require.NotNil(t, syncErr)
		assert.Equal(t, KindFetch, syncErr.Kind)
		assert.Equal(t, StagePair, syncErr.Stage)
		assert.Equal(t, "run-1", syncErr.RunID)
		assert.ErrorIs(t, syncErr, fetchErr)
		assert.True(t, IsKind(syncErr, KindFetch))
	})

	t.Run("search error stops the run", func(t *testing.T) {
		t.Parallel()
		ctrl := gomock.NewController(t)
		store := recordsmocks.NewMockStore(ctrl)
		provider := mailchimpmocks.NewMockProvider(ctrl)

		store.EXPECT().ListCandidates(gomock.Any(), gomock.Any(), gomock.Any()).
			Return([]*records.Record{{ID: "rec1", Email: "a@x.com"}}, nil)
		provider.EXPECT().BatchSearchExact(gomock.Any(), gomock.Any()).Return(nil, errors.New("batch failed"))

		mgr := NewManager(store, provider, testConfig())
		_, syncErr := mgr.PerformSync(context.Background())
		require.NotNil(t, syncErr)
		assert.Equal(t, KindSearchBatch, syncErr.Kind)
	})

	t.Run("short search result is rejected", func(t *testing.T) {
		t.Parallel()
		ctrl := gomock.NewController(t)
		store := recordsmocks.NewMockStore(ctrl)
		provider := mailchimpmocks.NewMockProvider(ctrl)

		store.EXPECT().ListCandidates(gomock.Any(), gomock.Any(), gomock.Any()).
			Return([]*records.Record{{ID: "rec1", Email: "a@x.com"}, {ID: "rec2", Email: "b@x.com"}}, nil)
		provider.EXPECT().BatchSearchExact(gomock.Any(), gomock.Any()).Return([]mailchimp.SearchResult{{}}, nil)

		mgr := NewManager(store, provider, testConfig())
		_, syncErr := mgr.PairRecords(context.Background())
		require.NotNil(t, syncErr)
		assert.Equal(t, KindSearchBatch, syncErr.Kind)
	})

	t.Run("empty address fails under the fail policy", func(t *testing.T) {
		t.Parallel()
		ctrl := gomock.NewController(t)
		store := recordsmocks.NewMockStore(ctrl)
		provider := mailchimpmocks.NewMockProvider(ctrl)

		store.EXPECT().ListCandidates(gomock.Any(), gomock.Any(), gomock.Any()).
			Return([]*records.Record{{ID: "rec1", Email: "  "}}, nil)

		cfg := testConfig()
		cfg.EmptyAddressPolicy = EmptyAddressFail
		mgr := NewManager(store, provider, cfg)

		_, syncErr := mgr.PairRecords(context.Background())
		require.NotNil(t, syncErr)
		assert.Equal(t, KindSearchBatch, syncErr.Kind)
		assert.ErrorIs(t, syncErr, mailchimp.ErrEmptyQuery)
	})
}

func TestPairRecords_Alignment(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	store := recordsmocks.NewMockStore(ctrl)
	provider := mailchimpmocks.NewMockProvider(ctrl)

	recs := []*records.Record{
		{ID: "rec1", Email: "a@x.com"},
		{ID: "rec2", Email: ""},
		{ID: "rec3", Email: "new@x.com", PreviousEmail: "old@x.com"},
	}
	store.EXPECT().ListCandidates(gomock.Any(), gomock.Any(), gomock.Any()).Return(recs, nil)

	found := mailchimp.SearchResult{ExactMatches: mailchimp.MatchSet{TotalItems: 1}}
	provider.EXPECT().BatchSearchExact(gomock.Any(), []mailchimp.SearchQuery{
		{EmailAddress: "a@x.com", ListID: testListID},
		{EmailAddress: "old@x.com", ListID: testListID},
	}).Return([]mailchimp.SearchResult{{}, found}, nil)

	mgr := NewManager(store, provider, testConfig())
	pairs, syncErr := mgr.PairRecords(context.Background())
	require.Nil(t, syncErr)
	require.Len(t, pairs, 3)

	for i, p := range pairs {
		assert.Same(t, recs[i], p.Record)
	}
	assert.True(t, pairs[0].Searched)
	assert.Equal(t, 0, pairs[0].Match.ExactMatches.TotalItems)
	assert.False(t, pairs[1].Searched)
	assert.True(t, pairs[2].Searched)
	assert.Equal(t, 1, pairs[2].Match.ExactMatches.TotalItems)
}

func TestPairRecords_NothingToSearch(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	store := recordsmocks.NewMockStore(ctrl)
	provider := mailchimpmocks.NewMockProvider(ctrl)

	store.EXPECT().ListCandidates(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil)

	mgr := NewManager(store, provider, testConfig())
	pairs, syncErr := mgr.PairRecords(context.Background())
	require.Nil(t, syncErr)
	assert.Empty(t, pairs)
}

func TestSelectAction(t *testing.T) {
	t.Parallel()

	t.Run("replaces first then a single create", func(t *testing.T) {
		t.Parallel()
		ctrl := gomock.NewController(t)
		provider := mailchimpmocks.NewMockProvider(ctrl)

		exists := mailchimp.SearchResult{ExactMatches: mailchimp.MatchSet{TotalItems: 1}}
		pairs := []*classify.Pair{
			{Record: &records.Record{ID: "r1", Email: "a@x.com", InMailingList: boolPtr(true)}, Searched: true},
			{Record: &records.Record{ID: "r2", Email: "b@x.com", PreviousEmail: "b@x.com", PreviousInMailingList: boolPtr(true)}, Match: exists, Searched: true},
			{Record: &records.Record{ID: "r3", Email: "c@x.com", InMailingList: boolPtr(true)}, Searched: true},
		}

		var got []mailchimp.Operation
		provider.EXPECT().BatchApply(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, ops []mailchimp.Operation) error {
				got = ops
				return nil
			})

		mgr := NewManager(recordsmocks.NewMockStore(ctrl), provider, testConfig())
		out, syncErr := mgr.SelectAction(context.Background(), pairs)
		require.Nil(t, syncErr)

		assert.Equal(t, classify.ActionCreate, out[0].Action)
		assert.Equal(t, classify.ActionUpdateUnsubscribed, out[1].Action)
		assert.Equal(t, classify.ActionCreate, out[2].Action)

		require.Len(t, got, 2)
		assert.Equal(t, mailchimp.KindReplace, got[0].Kind)
		assert.Equal(t, "/lists/list1/members/"+mailchimp.MemberKey("b@x.com"), got[0].Target)
		assert.Equal(t, mailchimp.KindCreate, got[1].Kind)
		body := got[1].Body.(mailchimp.CreateMembersBody)
		require.Len(t, body.Members, 2)
		assert.Equal(t, "a@x.com", body.Members[0].EmailAddress)
		assert.Equal(t, "c@x.com", body.Members[1].EmailAddress)
	})

	t.Run("apply error prevents write-back", func(t *testing.T) {
		t.Parallel()
		ctrl := gomock.NewController(t)
		store := recordsmocks.NewMockStore(ctrl)
		provider := mailchimpmocks.NewMockProvider(ctrl)

		store.EXPECT().ListCandidates(gomock.Any(), gomock.Any(), gomock.Any()).
			Return([]*records.Record{{ID: "rec1", Email: "a@x.com", InMailingList: boolPtr(true)}}, nil)
		provider.EXPECT().BatchSearchExact(gomock.Any(), gomock.Any()).Return([]mailchimp.SearchResult{{}}, nil)
		applyErr := &mailchimp.BatchError{BatchID: "b1"}
		provider.EXPECT().BatchApply(gomock.Any(), gomock.Any()).Return(applyErr)

		mgr := NewManager(store, provider, testConfig())
		result, syncErr := mgr.PerformSync(context.Background())
		assert.Nil(t, result)
		require.NotNil(t, syncErr)
		assert.Equal(t, KindApplyBatch, syncErr.Kind)
		assert.Equal(t, StageSelect, syncErr.Stage)

		var batchErr *mailchimp.BatchError
		assert.ErrorAs(t, syncErr, &batchErr)
	})

	t.Run("nothing to apply skips the provider", func(t *testing.T) {
		t.Parallel()
		ctrl := gomock.NewController(t)
		provider := mailchimpmocks.NewMockProvider(ctrl)

		pairs := []*classify.Pair{
			{Record: &records.Record{ID: "r1"}},
		}
		mgr := NewManager(recordsmocks.NewMockStore(ctrl), provider, testConfig())
		out, syncErr := mgr.SelectAction(context.Background(), pairs)
		require.Nil(t, syncErr)
		assert.Equal(t, classify.ActionNoOp, out[0].Action)
	})
}

func TestSynchronizeRecords(t *testing.T) {
	t.Parallel()

	t.Run("only pushed pairs are written back", func(t *testing.T) {
		t.Parallel()
		ctrl := gomock.NewController(t)
		store := recordsmocks.NewMockStore(ctrl)

		pushed := &records.Record{ID: "r1", Email: "a@x.com", FirstName: "Ann", InMailingList: boolPtr(true)}
		pairs := []*classify.Pair{
			{Record: pushed, Action: classify.ActionCreate},
			{Record: &records.Record{ID: "r2"}, Action: classify.ActionNoOp},
		}

		store.EXPECT().UpdateRecord(gomock.Any(), "r1", testFields().ShadowChanges(pushed)).Return(nil)

		mgr := NewManager(store, mailchimpmocks.NewMockProvider(ctrl), testConfig())
		report, syncErr := mgr.SynchronizeRecords(context.Background(), pairs)
		require.Nil(t, syncErr)
		assert.Equal(t, 1, report.Written)
		assert.Empty(t, report.Failed)
	})

	t.Run("write-back survives cancellation", func(t *testing.T) {
		t.Parallel()
		store := recordstest.NewMemoryStore(testFields(), &records.Record{ID: "r1", Email: "a@x.com"})

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		pairs := []*classify.Pair{{
			Record: &records.Record{ID: "r1", Email: "a@x.com"},
			Action: classify.ActionCreate,
		}}
		mgr := NewManager(store, newFakeList(), testConfig())
		report, syncErr := mgr.SynchronizeRecords(ctx, pairs)
		require.Nil(t, syncErr)
		assert.Equal(t, 1, report.Written)

		rec, _ := store.Get("r1")
		assert.Equal(t, "a@x.com", rec.PreviousEmail)
	})
}
