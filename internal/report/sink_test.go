// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package report

import (
	"context"
	"encoding/csv"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/webpdtool/internal/domain/session/model"
	"github.com/ManuGH/webpdtool/internal/domain/session/store"
)

func seedSession(t *testing.T, s store.Store) *model.Session {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	sess := &model.Session{
		ID:           "sess-1",
		SerialNumber: "SN001",
		StationID:    "ST-10",
		Status:       model.StatusCompleted,
		FinalResult:  model.FinalPass,
		TotalItems:   2,
		PassItems:    2,
		StartTime:    &now,
		EndTime:      &now,
		CreatedAt:    now,
	}
	require.NoError(t, s.CreateSession(ctx, sess))

	lower, upper := 11.5, 12.5
	require.NoError(t, s.SaveResult(ctx, &model.Result{
		SessionID: "sess-1", ItemNo: 10, ItemName: "vcc-check",
		MeasuredValue: "12.01", LowerLimit: &lower, UpperLimit: &upper,
		Result: model.PointPass, ExecutionDurationMS: 42, TestTime: now,
	}))
	require.NoError(t, s.SaveResult(ctx, &model.Result{
		SessionID: "sess-1", ItemNo: 20, ItemName: "fw-version",
		MeasuredValue: "FW-1.2", Result: model.PointPass, TestTime: now,
	}))
	return sess
}

func TestWritesReport(t *testing.T) {
	s := store.NewMemory()
	sess := seedSession(t, s)

	dir := t.TempDir()
	sink, err := NewCSVSink(dir, s)
	require.NoError(t, err)

	require.NoError(t, sink.OnSessionTerminal(context.Background(), "sess-1", model.StatusCompleted))

	raw, err := os.ReadFile(sink.Path(sess))
	require.NoError(t, err)
	content := string(raw)
	assert.Contains(t, content, "session_id,sess-1")
	assert.Contains(t, content, "final_result,PASS")

	// The per-point table parses as CSV with the expected columns.
	idx := strings.Index(content, "item_no,")
	require.Positive(t, idx)
	rows, err := csv.NewReader(strings.NewReader(content[idx:])).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3) // header + 2 points
	assert.Equal(t, "vcc-check", rows[1][1])
	assert.Equal(t, "12.01", rows[1][2])
	assert.Equal(t, "11.5", rows[1][3])
	assert.Equal(t, "", rows[2][3]) // no limits
}

func TestDuplicateNotificationIsNoop(t *testing.T) {
	s := store.NewMemory()
	sess := seedSession(t, s)

	sink, err := NewCSVSink(t.TempDir(), s)
	require.NoError(t, err)

	require.NoError(t, sink.OnSessionTerminal(context.Background(), "sess-1", model.StatusCompleted))
	first, err := os.Stat(sink.Path(sess))
	require.NoError(t, err)

	require.NoError(t, sink.OnSessionTerminal(context.Background(), "sess-1", model.StatusCompleted))
	second, err := os.Stat(sink.Path(sess))
	require.NoError(t, err)
	assert.Equal(t, first.ModTime(), second.ModTime())
}

func TestUnknownSession(t *testing.T) {
	sink, err := NewCSVSink(t.TempDir(), store.NewMemory())
	require.NoError(t, err)
	require.Error(t, sink.OnSessionTerminal(context.Background(), "ghost", model.StatusCompleted))
}
