// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/webpdtool/internal/domain/plan"
	"github.com/ManuGH/webpdtool/internal/domain/session/model"
	"github.com/ManuGH/webpdtool/internal/domain/session/ports"
	"github.com/ManuGH/webpdtool/internal/persistence/sqlite"
)

const schemaVersion = 1

// SQLiteStore persists sessions, results, plans and SFC audit rows in one
// database file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (and migrates) the store at dbPath.
func OpenSQLite(dbPath string) (*SQLiteStore, error) {
	db, err := sqlite.Open(dbPath, sqlite.DefaultConfig())
	if err != nil {
		return nil, err
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("result store: migration failed: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) migrate() error {
	var current int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&current); err != nil {
		return err
	}
	if current >= schemaVersion {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	schema := `
	CREATE TABLE IF NOT EXISTS test_sessions (
		session_id TEXT PRIMARY KEY,
		serial_number TEXT NOT NULL,
		station_id TEXT NOT NULL,
		project_id TEXT,
		user_id TEXT,
		status TEXT NOT NULL,
		final_result TEXT,
		run_all_test INTEGER NOT NULL DEFAULT 0,
		start_time_ms INTEGER,
		end_time_ms INTEGER,
		total_items INTEGER NOT NULL DEFAULT 0,
		pass_items INTEGER NOT NULL DEFAULT 0,
		fail_items INTEGER NOT NULL DEFAULT 0,
		created_at_ms INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_serial ON test_sessions(serial_number);

	CREATE TABLE IF NOT EXISTS test_results (
		session_id TEXT NOT NULL REFERENCES test_sessions(session_id),
		test_plan_id TEXT NOT NULL,
		item_no INTEGER NOT NULL,
		item_name TEXT NOT NULL,
		measured_value TEXT NOT NULL DEFAULT '',
		lower_limit REAL,
		upper_limit REAL,
		result TEXT NOT NULL,
		error_message TEXT,
		execution_duration_ms INTEGER NOT NULL DEFAULT 0,
		test_time_ms INTEGER NOT NULL,
		PRIMARY KEY (session_id, item_no)
	);

	CREATE TABLE IF NOT EXISTS test_plans (
		station_id TEXT NOT NULL,
		item_no INTEGER NOT NULL,
		point_json TEXT NOT NULL,
		sequence_order INTEGER NOT NULL,
		PRIMARY KEY (station_id, item_no)
	);

	CREATE TABLE IF NOT EXISTS sfc_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		operation TEXT NOT NULL,
		request TEXT NOT NULL,
		response TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at_ms INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sfc_logs_session ON sfc_logs(session_id);
	`
	if _, err := tx.Exec(schema); err != nil {
		return err
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return err
	}
	return tx.Commit()
}

func msOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

func timeFromMS(ms sql.NullInt64) *time.Time {
	if !ms.Valid {
		return nil
	}
	t := time.UnixMilli(ms.Int64).UTC()
	return &t
}

func (s *SQLiteStore) CreateSession(ctx context.Context, sess *model.Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO test_sessions (session_id, serial_number, station_id, project_id, user_id,
			status, final_result, run_all_test, start_time_ms, end_time_ms,
			total_items, pass_items, fail_items, created_at_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.SerialNumber, sess.StationID, sess.ProjectID, sess.UserID,
		string(sess.Status), string(sess.FinalResult), boolToInt(sess.RunAllTest),
		msOrNil(sess.StartTime), msOrNil(sess.EndTime),
		sess.TotalItems, sess.PassItems, sess.FailItems, sess.CreatedAt.UnixMilli())
	return err
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*model.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT session_id, serial_number, station_id, project_id, user_id,
			status, final_result, run_all_test, start_time_ms, end_time_ms,
			total_items, pass_items, fail_items, created_at_ms
		FROM test_sessions WHERE session_id = ?`, id)
	return scanSession(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*model.Session, error) {
	var (
		sess                model.Session
		status, finalResult string
		projectID, userID   sql.NullString
		runAll              int
		startMS, endMS      sql.NullInt64
		createdMS           int64
	)
	err := row.Scan(&sess.ID, &sess.SerialNumber, &sess.StationID, &projectID, &userID,
		&status, &finalResult, &runAll, &startMS, &endMS,
		&sess.TotalItems, &sess.PassItems, &sess.FailItems, &createdMS)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ports.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	sess.ProjectID = projectID.String
	sess.UserID = userID.String
	sess.Status = model.Status(status)
	sess.FinalResult = model.FinalResult(finalResult)
	sess.RunAllTest = runAll != 0
	sess.StartTime = timeFromMS(startMS)
	sess.EndTime = timeFromMS(endMS)
	sess.CreatedAt = time.UnixMilli(createdMS).UTC()
	return &sess, nil
}

func (s *SQLiteStore) UpdateSession(ctx context.Context, sess *model.Session) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE test_sessions SET status = ?, final_result = ?, start_time_ms = ?, end_time_ms = ?,
			total_items = ?, pass_items = ?, fail_items = ?
		WHERE session_id = ?`,
		string(sess.Status), string(sess.FinalResult), msOrNil(sess.StartTime), msOrNil(sess.EndTime),
		sess.TotalItems, sess.PassItems, sess.FailItems, sess.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ports.ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) ListSessions(ctx context.Context) ([]model.Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, serial_number, station_id, project_id, user_id,
			status, final_result, run_all_test, start_time_ms, end_time_ms,
			total_items, pass_items, fail_items, created_at_ms
		FROM test_sessions ORDER BY created_at_ms`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []model.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sess)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveResult(ctx context.Context, r *model.Result) error {
	// At-least-once writers may retry the same row: REPLACE keeps the
	// (session_id, item_no) uniqueness contract.
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO test_results (session_id, test_plan_id, item_no, item_name,
			measured_value, lower_limit, upper_limit, result, error_message,
			execution_duration_ms, test_time_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.SessionID, r.TestPlanID, r.ItemNo, r.ItemName,
		r.MeasuredValue, r.LowerLimit, r.UpperLimit, string(r.Result), r.ErrorMessage,
		r.ExecutionDurationMS, r.TestTime.UnixMilli())
	return err
}

func (s *SQLiteStore) ListResults(ctx context.Context, sessionID string) ([]model.Result, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, test_plan_id, item_no, item_name, measured_value,
			lower_limit, upper_limit, result, error_message, execution_duration_ms, test_time_ms
		FROM test_results WHERE session_id = ? ORDER BY item_no`, sessionID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []model.Result
	for rows.Next() {
		var (
			r      model.Result
			result string
			errMsg sql.NullString
			lower  sql.NullFloat64
			upper  sql.NullFloat64
			testMS int64
		)
		if err := rows.Scan(&r.SessionID, &r.TestPlanID, &r.ItemNo, &r.ItemName, &r.MeasuredValue,
			&lower, &upper, &result, &errMsg, &r.ExecutionDurationMS, &testMS); err != nil {
			return nil, err
		}
		if lower.Valid {
			v := lower.Float64
			r.LowerLimit = &v
		}
		if upper.Valid {
			v := upper.Float64
			r.UpperLimit = &v
		}
		r.Result = model.PointResult(result)
		r.ErrorMessage = errMsg.String
		r.TestTime = time.UnixMilli(testMS).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveSFCLog(ctx context.Context, l *model.SFCLog) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO sfc_logs (session_id, operation, request, response, status, created_at_ms)
		VALUES (?, ?, ?, ?, ?, ?)`,
		l.SessionID, l.Operation, l.Request, l.Response, l.Status, l.CreatedAt.UnixMilli())
	if err != nil {
		return err
	}
	if id, err := res.LastInsertId(); err == nil {
		l.ID = id
	}
	return nil
}

func (s *SQLiteStore) LoadPlan(ctx context.Context, stationID string) ([]plan.Point, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT point_json FROM test_plans WHERE station_id = ?
		ORDER BY sequence_order, item_no`, stationID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []plan.Point
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var p plan.Point
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("result store: corrupt plan row: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ports.ErrNotFound
	}
	return out, nil
}

func (s *SQLiteStore) SavePlan(ctx context.Context, stationID string, points []plan.Point) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM test_plans WHERE station_id = ?", stationID); err != nil {
		return err
	}
	for i := range points {
		raw, err := json.Marshal(&points[i])
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO test_plans (station_id, item_no, point_json, sequence_order)
			VALUES (?, ?, ?, ?)`,
			stationID, points[i].ItemNo, string(raw), points[i].SequenceOrder); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) Stations(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT station_id FROM test_plans ORDER BY station_id")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ Store = (*SQLiteStore)(nil)
