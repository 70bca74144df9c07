// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package model

// Status is the client-visible lifecycle of a test session.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusAborted   Status = "ABORTED"
	StatusError     Status = "ERROR"
)

// IsTerminal returns true if the status is a final state.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusAborted, StatusError:
		return true
	}
	return false
}

// CanTransition reports whether moving from s to next is a legal lifecycle step.
// Terminal states have no outgoing transitions.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusRunning || next == StatusAborted || next == StatusError
	case StatusRunning:
		return next.IsTerminal()
	default:
		return false
	}
}

// FinalResult is the PASS/FAIL/ABORT verdict of a terminal session.
type FinalResult string

const (
	FinalPass  FinalResult = "PASS"
	FinalFail  FinalResult = "FAIL"
	FinalAbort FinalResult = "ABORT"
)

// PointResult is the outcome of a single executed test point.
type PointResult string

const (
	PointPass  PointResult = "PASS"
	PointFail  PointResult = "FAIL"
	PointSkip  PointResult = "SKIP"
	PointError PointResult = "ERROR"
)

// CountsAsFailure reports whether a point result contributes to fail_items.
// FAIL, ERROR and SKIP all do; only PASS does not.
func (r PointResult) CountsAsFailure() bool {
	return r != PointPass
}
