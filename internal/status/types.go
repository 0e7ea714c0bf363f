package status

import "time"

// SyncPhase represents the current phase of a reconciliation run
type SyncPhase string

const (
	// SyncPhaseSyncing means a run is in progress
	SyncPhaseSyncing SyncPhase = "Syncing"

	// SyncPhaseComplete means the last run completed successfully
	SyncPhaseComplete SyncPhase = "Complete"

	// SyncPhaseFailed means the last run failed
	SyncPhaseFailed SyncPhase = "Failed"
)

// SyncStatus represents the state of reconciliation for one sync target
type SyncStatus struct {
	// Phase represents the current phase
	Phase SyncPhase `json:"phase"`

	// Message provides additional information about the status, such as the last error
	Message string `json:"message,omitempty"`

	// RunID identifies the most recent run
	RunID string `json:"runId,omitempty"`

	// LastAttempt is the timestamp of the last run attempt
	LastAttempt *time.Time `json:"lastAttempt,omitempty"`

	// AttemptCount is the number of attempts since the last success
	AttemptCount int `json:"attemptCount,omitempty"`

	// LastSyncTime is the timestamp of the last successful run
	LastSyncTime *time.Time `json:"lastSyncTime,omitempty"`

	// Candidates is the number of records read from the view by the last run
	Candidates int `json:"candidates"`

	// Created is the number of members created by the last run
	Created int `json:"created"`

	// Updated is the number of members replaced by the last run, unsubscribes included
	Updated int `json:"updated"`

	// Skipped is the number of candidates that needed no list change
	Skipped int `json:"skipped"`

	// Rejected is the number of members the list provider refused
	Rejected int `json:"rejected"`

	// WriteBackFailures is the number of records whose shadow fields could not be written
	WriteBackFailures int `json:"writeBackFailures"`

	// SyncSchedule is the configured interval (e.g., "10m")
	SyncSchedule string `json:"syncSchedule,omitempty"`
}
