// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldSessionID    = "session_id"
	FieldRequestID    = "request_id"
	FieldSerialNumber = "serial_number"
	FieldStationID    = "station_id"
	FieldInstrumentID = "instrument_id"

	// Execution fields
	FieldEvent       = "event"
	FieldComponent   = "component"
	FieldItemNo      = "item_no"
	FieldItemName    = "item_name"
	FieldExecuteName = "execute_name"
	FieldSwitchMode  = "switch_mode"
	FieldResult      = "result"
	FieldMeasured    = "measured_value"
	FieldDurationMS  = "duration_ms"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// Path fields
	FieldPath = "path"
)
