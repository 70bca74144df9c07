// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package model

import "time"

// SFCLog is one audit row for a call against the external SFC (MES) service.
type SFCLog struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Operation string    `json:"operation"`
	Request   string    `json:"request"`
	Response  string    `json:"response"`
	Status    string    `json:"status"` // success | failure
	CreatedAt time.Time `json:"created_at"`
}
