package coordinator

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/mock/gomock"

	"github.com/listsync/listsync/internal/status"
	"github.com/listsync/listsync/internal/sync"
	syncmocks "github.com/listsync/listsync/internal/sync/mocks"
	"github.com/listsync/listsync/internal/sync/state"
	statemocks "github.com/listsync/listsync/internal/sync/state/mocks"
	"github.com/listsync/listsync/internal/telemetry"
)

const testTarget = "mailing-list"

func testConfig() Config {
	return Config{
		Name:     testTarget,
		Interval: time.Hour,
	}
}

func newStateService(t *testing.T) state.SyncStateService {
	t.Helper()
	return state.NewFileStateService(status.NewFileStatusPersistence(t.TempDir()))
}

func TestConfig_NextDelay(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		cfg      Config
		min, max time.Duration
	}{
		{
			name: "no jitter",
			cfg:  Config{Interval: 10 * time.Minute},
			min:  10 * time.Minute,
			max:  10 * time.Minute,
		},
		{
			name: "jitter either side",
			cfg:  Config{Interval: 10 * time.Minute, Jitter: 30 * time.Second},
			min:  9*time.Minute + 30*time.Second,
			max:  10*time.Minute + 30*time.Second,
		},
		{
			name: "never negative",
			cfg:  Config{Interval: time.Second, Jitter: time.Minute},
			min:  0,
			max:  time.Minute + time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			for range 100 {
				d := tt.cfg.nextDelay()
				assert.GreaterOrEqual(t, d, tt.min)
				assert.LessOrEqual(t, d, tt.max)
			}
		})
	}
}

func TestCoordinator_TriggerSync_SingleSlot(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	coord := New(syncmocks.NewMockManager(ctrl), statemocks.NewMockSyncStateService(ctrl), testConfig())

	assert.True(t, coord.TriggerSync())
	assert.False(t, coord.TriggerSync(), "a second trigger must not queue while one is pending")
}

func TestCoordinator_RunOnce(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		perform func(ctx context.Context) (*sync.Result, *sync.Error)
		wantErr bool
		check   func(t *testing.T, s *status.SyncStatus)
	}{
		{
			name: "success",
			perform: func(ctx context.Context) (*sync.Result, *sync.Error) {
				return &sync.Result{
					RunID:        sync.RunIDFromContext(ctx),
					Candidates:   5,
					Created:      2,
					Updated:      1,
					Unsubscribed: 1,
					Skipped:      1,
					Written:      4,
				}, nil
			},
			check: func(t *testing.T, s *status.SyncStatus) {
				t.Helper()
				assert.Equal(t, status.SyncPhaseComplete, s.Phase)
				assert.Equal(t, "Sync completed successfully", s.Message)
				assert.NotNil(t, s.LastSyncTime)
				assert.NotNil(t, s.LastAttempt)
				assert.Equal(t, 0, s.AttemptCount)
				assert.Equal(t, 5, s.Candidates)
				assert.Equal(t, 2, s.Created)
				assert.Equal(t, 2, s.Updated)
				assert.Equal(t, 1, s.Skipped)
				assert.NotEmpty(t, s.RunID)
			},
		},
		{
			name: "fetch failure",
			perform: func(ctx context.Context) (*sync.Result, *sync.Error) {
				return nil, &sync.Error{
					Kind:    sync.KindFetch,
					Stage:   sync.StagePair,
					RunID:   sync.RunIDFromContext(ctx),
					Message: "Fetch failed: airtable down",
				}
			},
			wantErr: true,
			check: func(t *testing.T, s *status.SyncStatus) {
				t.Helper()
				assert.Equal(t, status.SyncPhaseFailed, s.Phase)
				assert.Equal(t, "Fetch failed: airtable down", s.Message)
				assert.Nil(t, s.LastSyncTime)
				assert.Equal(t, 1, s.AttemptCount)
			},
		},
		{
			name: "write-back failure keeps the counts",
			perform: func(ctx context.Context) (*sync.Result, *sync.Error) {
				runID := sync.RunIDFromContext(ctx)
				return &sync.Result{RunID: runID, Candidates: 3, Created: 3, Written: 2, WriteBackFailures: 1},
					&sync.Error{Kind: sync.KindWriteBack, RunID: runID, Message: "Write-back failed for 1 of 3 records"}
			},
			wantErr: true,
			check: func(t *testing.T, s *status.SyncStatus) {
				t.Helper()
				assert.Equal(t, status.SyncPhaseFailed, s.Phase)
				assert.Equal(t, 3, s.Created)
				assert.Equal(t, 1, s.WriteBackFailures)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			manager := syncmocks.NewMockManager(ctrl)
			stateSvc := newStateService(t)

			var runID string
			manager.EXPECT().PerformSync(gomock.Any()).DoAndReturn(
				func(ctx context.Context) (*sync.Result, *sync.Error) {
					runID = sync.RunIDFromContext(ctx)
					current, err := stateSvc.GetSyncStatus(ctx, testTarget)
					require.NoError(t, err)
					assert.Equal(t, status.SyncPhaseSyncing, current.Phase)
					assert.Equal(t, runID, current.RunID)
					return tt.perform(ctx)
				})

			coord := New(manager, stateSvc, testConfig())
			err := coord.RunOnce(context.Background())
			if tt.wantErr {
				var syncErr *sync.Error
				require.ErrorAs(t, err, &syncErr)
			} else {
				require.NoError(t, err)
			}

			final, err := stateSvc.GetSyncStatus(context.Background(), testTarget)
			require.NoError(t, err)
			assert.Equal(t, runID, final.RunID)
			assert.Equal(t, "1h0m0s", final.SyncSchedule)
			tt.check(t, final)
		})
	}
}

func TestCoordinator_AttemptCountAccumulates(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	manager := syncmocks.NewMockManager(ctrl)
	stateSvc := newStateService(t)

	failure := &sync.Error{Kind: sync.KindSearchBatch, Message: "Search failed"}
	gomock.InOrder(
		manager.EXPECT().PerformSync(gomock.Any()).Return(nil, failure),
		manager.EXPECT().PerformSync(gomock.Any()).Return(nil, failure),
		manager.EXPECT().PerformSync(gomock.Any()).Return(&sync.Result{}, nil),
	)

	coord := New(manager, stateSvc, testConfig())
	ctx := context.Background()

	require.Error(t, coord.RunOnce(ctx))
	require.Error(t, coord.RunOnce(ctx))
	s, err := stateSvc.GetSyncStatus(ctx, testTarget)
	require.NoError(t, err)
	assert.Equal(t, 2, s.AttemptCount)

	require.NoError(t, coord.RunOnce(ctx))
	s, err = stateSvc.GetSyncStatus(ctx, testTarget)
	require.NoError(t, err)
	assert.Equal(t, 0, s.AttemptCount)
}

func TestCoordinator_PanicLeavesFailedStatus(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	manager := syncmocks.NewMockManager(ctrl)
	stateSvc := newStateService(t)

	manager.EXPECT().PerformSync(gomock.Any()).DoAndReturn(
		func(context.Context) (*sync.Result, *sync.Error) {
			panic("boom")
		})

	coord := New(manager, stateSvc, testConfig())
	assert.Panics(t, func() { _ = coord.RunOnce(context.Background()) })

	s, err := stateSvc.GetSyncStatus(context.Background(), testTarget)
	require.NoError(t, err)
	assert.Equal(t, status.SyncPhaseFailed, s.Phase)
	assert.Equal(t, "Unexpected failure while running reconciliation", s.Message)
}

func TestCoordinator_Start(t *testing.T) {
	t.Parallel()

	t.Run("runs on start then stops", func(t *testing.T) {
		t.Parallel()

		ctrl := gomock.NewController(t)
		manager := syncmocks.NewMockManager(ctrl)
		ran := make(chan struct{}, 1)
		manager.EXPECT().PerformSync(gomock.Any()).DoAndReturn(
			func(context.Context) (*sync.Result, *sync.Error) {
				ran <- struct{}{}
				return &sync.Result{}, nil
			})

		cfg := testConfig()
		cfg.RunOnStart = true
		coord := New(manager, newStateService(t), cfg)

		errCh := make(chan error, 1)
		go func() { errCh <- coord.Start(context.Background()) }()

		select {
		case <-ran:
		case <-time.After(5 * time.Second):
			t.Fatal("run on start did not happen")
		}

		require.NoError(t, coord.Stop())
		require.NoError(t, <-errCh)
	})

	t.Run("manual trigger runs without waiting for the interval", func(t *testing.T) {
		t.Parallel()

		ctrl := gomock.NewController(t)
		manager := syncmocks.NewMockManager(ctrl)
		ran := make(chan struct{}, 1)
		manager.EXPECT().PerformSync(gomock.Any()).DoAndReturn(
			func(context.Context) (*sync.Result, *sync.Error) {
				ran <- struct{}{}
				return &sync.Result{}, nil
			})

		coord := New(manager, newStateService(t), testConfig())

		ctx, cancel := context.WithCancel(context.Background())
		errCh := make(chan error, 1)
		go func() { errCh <- coord.Start(ctx) }()

		require.True(t, coord.TriggerSync())

		select {
		case <-ran:
		case <-time.After(5 * time.Second):
			t.Fatal("manual trigger did not run")
		}

		cancel()
		require.NoError(t, <-errCh)
	})

	t.Run("initialize error is returned", func(t *testing.T) {
		t.Parallel()

		ctrl := gomock.NewController(t)
		stateSvc := statemocks.NewMockSyncStateService(ctrl)
		stateSvc.EXPECT().Initialize(gomock.Any(), testTarget, "1h0m0s").Return(errors.New("disk gone"))

		coord := New(syncmocks.NewMockManager(ctrl), stateSvc, testConfig())
		err := coord.Start(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to initialize sync status")
		require.NoError(t, coord.Stop())
	})

	t.Run("second start is rejected", func(t *testing.T) {
		t.Parallel()

		ctrl := gomock.NewController(t)
		coord := New(syncmocks.NewMockManager(ctrl), newStateService(t), testConfig()).(*defaultCoordinator)

		errCh := make(chan error, 1)
		go func() { errCh <- coord.Start(context.Background()) }()

		require.Eventually(t, func() bool {
			coord.mu.Lock()
			defer coord.mu.Unlock()
			return coord.done != nil
		}, 5*time.Second, 10*time.Millisecond)

		assert.ErrorIs(t, coord.Start(context.Background()), ErrAlreadyStarted)

		require.NoError(t, coord.Stop())
		require.NoError(t, <-errCh)
	})
}

func TestCoordinator_TriggerDuringRunWaitsForIt(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	manager := syncmocks.NewMockManager(ctrl)

	var (
		active, peak, runs atomic.Int32
		firstReturned      atomic.Bool
	)
	firstStarted := make(chan struct{})
	release := make(chan struct{})
	secondStarted := make(chan bool, 1)

	manager.EXPECT().PerformSync(gomock.Any()).DoAndReturn(
		func(context.Context) (*sync.Result, *sync.Error) {
			n := active.Add(1)
			defer active.Add(-1)
			for p := peak.Load(); n > p && !peak.CompareAndSwap(p, n); p = peak.Load() {
			}

			if runs.Add(1) == 1 {
				close(firstStarted)
				<-release
				firstReturned.Store(true)
			} else {
				secondStarted <- firstReturned.Load()
			}
			return &sync.Result{}, nil
		}).Times(2)

	cfg := testConfig()
	cfg.RunOnStart = true
	coord := New(manager, newStateService(t), cfg)

	errCh := make(chan error, 1)
	go func() { errCh <- coord.Start(context.Background()) }()

	select {
	case <-firstStarted:
	case <-time.After(5 * time.Second):
		t.Fatal("run on start did not happen")
	}

	accepted := 0
	for range 20 {
		if coord.TriggerSync() {
			accepted++
		}
		time.Sleep(time.Millisecond)
	}
	assert.Equal(t, 1, accepted, "only one trigger is queued while a run is in flight")

	close(release)

	select {
	case afterFirst := <-secondStarted:
		assert.True(t, afterFirst, "queued run started before the in-flight run returned")
	case <-time.After(5 * time.Second):
		t.Fatal("queued trigger did not run")
	}

	require.NoError(t, coord.Stop())
	require.NoError(t, <-errCh)

	assert.Equal(t, int32(1), peak.Load())
	assert.Equal(t, int32(2), runs.Load())
}

func TestCoordinator_RecordsMetrics(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	metrics, err := telemetry.NewSyncMetrics(provider)
	require.NoError(t, err)

	ctrl := gomock.NewController(t)
	manager := syncmocks.NewMockManager(ctrl)
	manager.EXPECT().PerformSync(gomock.Any()).Return(&sync.Result{
		Candidates: 4, Created: 2, Skipped: 2, WriteBackFailures: 1,
	}, nil)

	coord := New(manager, newStateService(t), testConfig(), WithSyncMetrics(metrics))
	require.NoError(t, coord.RunOnce(context.Background()))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	names := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			names[m.Name] = true
		}
	}
	assert.True(t, names["listsync_run_duration_seconds"])
	assert.True(t, names["listsync_records_total"])
	assert.True(t, names["listsync_writeback_failures_total"])
}
