package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is the root of every missing-record error.
	ErrNotFound = errors.New("not found")
	// ErrRiddleNotFound is returned when a riddle id does not exist.
	ErrRiddleNotFound = fmt.Errorf("riddle %w", ErrNotFound)
	// ErrCompetitionNotFound is returned when a competition id does not exist.
	ErrCompetitionNotFound = fmt.Errorf("competition %w", ErrNotFound)
	// ErrUserNotFound is returned when a user id does not exist.
	ErrUserNotFound = fmt.Errorf("user %w", ErrNotFound)

	// ErrAlreadyScored signals that another caller won the scoring transition.
	ErrAlreadyScored = errors.New("riddle already scored")
	// ErrRiddleOpen is returned when scoring is requested before the riddle ends.
	ErrRiddleOpen = errors.New("riddle is still open")
	// ErrRiddleNotStarted rejects answers submitted before the window opens.
	ErrRiddleNotStarted = errors.New("riddle has not started")
	// ErrRiddleClosed rejects answers submitted after the window ends.
	ErrRiddleClosed = errors.New("riddle is closed")
	// ErrAlreadyAnswered is the best-effort duplicate submission guard.
	ErrAlreadyAnswered = errors.New("user already answered this riddle")
	// ErrEmptyAnswer rejects blank submissions.
	ErrEmptyAnswer = errors.New("answer is empty")
	// ErrAlreadyJoined is returned when a user joins a competition twice.
	ErrAlreadyJoined = errors.New("user already joined competition")
)

// TransientStoreError wraps an I/O failure during a read or write. The whole
// scoring call can be retried from scratch.
type TransientStoreError struct {
	Op  string
	Err error
}

func (e *TransientStoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *TransientStoreError) Unwrap() error {
	return e.Err
}

// PartialWriteError reports that some answer writes were issued before a failure
// and the terminal riddle update never happened. Re-running ScoreRiddle recomputes
// every answer, so retrying converges on the same result.
type PartialWriteError struct {
	RiddleID string
	Written  int
	Err      error
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("riddle %s: partial write after %d records: %v", e.RiddleID, e.Written, e.Err)
}

func (e *PartialWriteError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err is a store failure that a fresh call may fix.
func IsRetryable(err error) bool {
	var transient *TransientStoreError
	var partial *PartialWriteError
	return errors.As(err, &transient) || errors.As(err, &partial)
}

// RolledBackError marks a transaction failure after which the store discarded
// every write. Nothing from the failed attempt persisted.
type RolledBackError struct {
	Err error
}

func (e *RolledBackError) Error() string {
	return "transaction rolled back: " + e.Err.Error()
}

func (e *RolledBackError) Unwrap() error {
	return e.Err
}

// RolledBack wraps err unless it is nil or already marked.
func RolledBack(err error) error {
	if err == nil || IsRolledBack(err) {
		return err
	}
	return &RolledBackError{Err: err}
}

// IsRolledBack reports whether err came from a transaction that left no writes.
func IsRolledBack(err error) bool {
	var rb *RolledBackError
	return errors.As(err, &rb)
}
