// Package coordinator runs reconciliation in the background.
//
// It sits on top of sync.Manager and handles:
//
//   - Fixed-delay scheduling: the timer is re-armed only after a run returns,
//     so runs never overlap
//   - An optional run on start-up
//   - Manual triggers, queued in a single slot
//   - Status bookkeeping and run metrics
//   - Graceful shutdown
//
// # Usage Example
//
//	coord := coordinator.New(manager, stateService, coordinator.Config{
//	    Name:       "mailing-list",
//	    Interval:   10 * time.Minute,
//	    Jitter:     30 * time.Second,
//	    RunOnStart: true,
//	}, coordinator.WithSyncMetrics(metrics))
//
//	go coord.Start(ctx)
//	...
//	coord.TriggerSync()
//	...
//	coord.Stop()
//
// # Status
//
// Each run moves the status to Syncing and bumps the attempt count before calling
// PerformSync. The final status (Complete or Failed, with the run counts) is written
// in a deferred block, so a run that panics still leaves a Failed status behind.
// A successful run resets the attempt count and records LastSyncTime.
//
// # Error Handling
//
// Failed runs are logged and recorded in the status. The coordinator keeps running
// and the next attempt happens after the next delay or trigger. Status persistence
// errors are logged but never stop a run.
package coordinator
