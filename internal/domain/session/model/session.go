// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package model holds the persisted session and result records and their
// lifecycle enums.
package model

import "time"

// Session is one execution attempt of a test plan against one product.
type Session struct {
	ID           string      `json:"session_id"`
	SerialNumber string      `json:"serial_number"`
	StationID    string      `json:"station_id"`
	ProjectID    string      `json:"project_id,omitempty"`
	UserID       string      `json:"user_id,omitempty"`
	Status       Status      `json:"status"`
	FinalResult  FinalResult `json:"final_result,omitempty"` // set only on terminal states
	RunAllTest   bool        `json:"run_all_test"`

	StartTime  *time.Time `json:"start_time,omitempty"`
	EndTime    *time.Time `json:"end_time,omitempty"`
	TotalItems int        `json:"total_items"`
	PassItems  int        `json:"pass_items"`
	FailItems  int        `json:"fail_items"`

	CreatedAt time.Time `json:"created_at"`
}

// Result is one immutable row per executed (or skipped) test point.
type Result struct {
	SessionID  string      `json:"session_id"`
	TestPlanID string      `json:"test_plan_id"`
	ItemNo     int         `json:"item_no"`
	ItemName   string      `json:"item_name"`

	// MeasuredValue stores any of the three value types verbatim; empty
	// string when the point produced no value.
	MeasuredValue string   `json:"measured_value"`
	LowerLimit    *float64 `json:"lower_limit,omitempty"` // snapshot from the plan at execution time
	UpperLimit    *float64 `json:"upper_limit,omitempty"`

	Result       PointResult `json:"result"`
	ErrorMessage string      `json:"error_message,omitempty"`

	ExecutionDurationMS int64     `json:"execution_duration_ms"`
	TestTime            time.Time `json:"test_time"`
}

// Snapshot is the progress view returned by Engine.Status and published on
// the progress bus. Readers always observe a complete snapshot.
type Snapshot struct {
	SessionID     string      `json:"session_id"`
	Status        Status      `json:"status"`
	ExecutedCount int         `json:"executed"`
	Total         int         `json:"total"`
	CurrentItem   string      `json:"current_item,omitempty"`
	PassItems     int         `json:"pass_items"`
	FailItems     int         `json:"fail_items"`
	FinalResult   FinalResult `json:"final_result,omitempty"`
}
