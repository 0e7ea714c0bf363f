package sync

import "fmt"

// ErrorKind classifies why a run failed
type ErrorKind string

// Error kinds
const (
	// KindFetch means the record store could not be read. Nothing was pushed.
	KindFetch ErrorKind = "FetchError"
	// KindSearchBatch means the correlation search failed. Nothing was pushed.
	KindSearchBatch ErrorKind = "SearchBatchError"
	// KindApplyBatch means the list mutation batch failed. Nothing was written back.
	KindApplyBatch ErrorKind = "ApplyBatchError"
	// KindWriteBack means one or more shadow write-backs failed after a successful apply
	KindWriteBack ErrorKind = "WriteBackError"
)

// Pipeline stages
const (
	StagePair        = "pair-records"
	StageSelect      = "select-action"
	StageSynchronize = "synchronize-records"
)

// RecordFailure is one record whose shadow fields could not be written back
type RecordFailure struct {
	RecordID string
	Err      error
}

// Error is a structured pipeline error
type Error struct {
	Err      error
	Message  string
	Kind     ErrorKind
	Stage    string
	RunID    string
	Failures []RecordFailure
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind ErrorKind, stage, runID string, err error, format string, args ...any) *Error {
	return &Error{
		Err:     err,
		Message: fmt.Sprintf(format, args...),
		Kind:    kind,
		Stage:   stage,
		RunID:   runID,
	}
}
