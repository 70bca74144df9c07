// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package report writes one CSV report per terminal session into the
// configured report directory. Writes are atomic and durable (fsync before
// rename), and a second notification for the same session is a no-op.
package report

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/renameio/v2"

	"github.com/ManuGH/webpdtool/internal/domain/session/model"
	"github.com/ManuGH/webpdtool/internal/domain/session/ports"
	"github.com/ManuGH/webpdtool/internal/log"
)

var csvHeader = []string{
	"item_no", "item_name", "measured_value",
	"lower_limit", "upper_limit", "result", "error_message",
	"duration_ms", "test_time",
}

// CSVSink renders terminal sessions to <dir>/<serial>_<session>.csv.
type CSVSink struct {
	dir   string
	store ports.ResultRepository
}

// NewCSVSink creates the report directory if needed.
func NewCSVSink(dir string, store ports.ResultRepository) (*CSVSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("report: create dir: %w", err)
	}
	return &CSVSink{dir: dir, store: store}, nil
}

// OnSessionTerminal writes the session's report. A report that already
// exists is left untouched, which makes duplicate notifications harmless.
func (s *CSVSink) OnSessionTerminal(ctx context.Context, sessionID string, status model.Status) error {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("report: load session: %w", err)
	}

	path := s.Path(sess)
	if _, err := os.Stat(path); err == nil {
		log.WithComponent("report").Debug().
			Str(log.FieldSessionID, sessionID).
			Str(log.FieldPath, path).
			Msg("report already written")
		return nil
	}

	results, err := s.store.ListResults(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("report: load results: %w", err)
	}

	pending, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("report: create pending file: %w", err)
	}
	defer func() {
		if err := pending.Cleanup(); err != nil {
			log.WithComponent("report").Debug().Err(err).Msg("cleanup pending report")
		}
	}()

	if err := writeCSV(pending, sess, results); err != nil {
		return fmt.Errorf("report: write: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("report: replace: %w", err)
	}

	log.WithComponent("report").Info().
		Str("event", "report.written").
		Str(log.FieldSessionID, sessionID).
		Str(log.FieldPath, path).
		Int("rows", len(results)).
		Msg("session report written")
	return nil
}

// Path returns the report location for a session.
func (s *CSVSink) Path(sess *model.Session) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s_%s.csv", sess.SerialNumber, sess.ID))
}

func writeCSV(w io.Writer, sess *model.Session, results []model.Result) error {
	cw := csv.NewWriter(w)

	// Session summary block ahead of the per-point table.
	summary := [][]string{
		{"session_id", sess.ID},
		{"serial_number", sess.SerialNumber},
		{"station_id", sess.StationID},
		{"status", string(sess.Status)},
		{"final_result", string(sess.FinalResult)},
		{"total_items", strconv.Itoa(sess.TotalItems)},
		{"pass_items", strconv.Itoa(sess.PassItems)},
		{"fail_items", strconv.Itoa(sess.FailItems)},
		{"start_time", formatTime(sess.StartTime)},
		{"end_time", formatTime(sess.EndTime)},
	}
	for _, row := range summary {
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	// Blank row between the summary block and the per-point table.
	if err := cw.Write([]string{""}); err != nil {
		return err
	}

	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for i := range results {
		r := &results[i]
		row := []string{
			strconv.Itoa(r.ItemNo),
			r.ItemName,
			r.MeasuredValue,
			formatLimit(r.LowerLimit),
			formatLimit(r.UpperLimit),
			string(r.Result),
			r.ErrorMessage,
			strconv.FormatInt(r.ExecutionDurationMS, 10),
			r.TestTime.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatLimit(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'g', -1, 64)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

var _ ports.ReportSink = (*CSVSink)(nil)
