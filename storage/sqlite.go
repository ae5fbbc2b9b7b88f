// Package storage persists job-schedule trees in SQLite. It is the durable
// implementation of the reconciler's Store boundary; the whole tree is saved
// in one transaction so a mid-save failure never leaves a partial tree.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/autoapitester/api-acceptor/payload"
	"github.com/autoapitester/api-acceptor/reconciler"
	"github.com/autoapitester/api-acceptor/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS job_schedules (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id          INTEGER NOT NULL,
	name             TEXT NOT NULL,
	description      TEXT NOT NULL DEFAULT '',
	schedule_type    TEXT NOT NULL,
	run_at_time      TEXT,
	interval_minutes INTEGER,
	is_active        INTEGER NOT NULL DEFAULT 1,
	last_run_at      TIMESTAMP,
	next_run_at      TIMESTAMP,
	created_at       TIMESTAMP NOT NULL,
	updated_at       TIMESTAMP
);

CREATE TABLE IF NOT EXISTS test_suites (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	job_id       INTEGER NOT NULL REFERENCES job_schedules(id) ON DELETE CASCADE,
	name         TEXT NOT NULL,
	endpoint     TEXT NOT NULL,
	method       TEXT NOT NULL,
	headers      TEXT,
	base_payload TEXT,
	description  TEXT NOT NULL DEFAULT '',
	is_active    INTEGER NOT NULL DEFAULT 1,
	created_at   TIMESTAMP NOT NULL,
	created_by   TEXT NOT NULL DEFAULT '',
	updated_at   TIMESTAMP,
	updated_by   TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS test_cases (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	suite_id        INTEGER NOT NULL REFERENCES test_suites(id) ON DELETE CASCADE,
	name            TEXT NOT NULL,
	override        TEXT,
	expected_status INTEGER NOT NULL DEFAULT 200
);

CREATE INDEX IF NOT EXISTS idx_job_schedules_user ON job_schedules(user_id);
CREATE INDEX IF NOT EXISTS idx_test_suites_job ON test_suites(job_id);
CREATE INDEX IF NOT EXISTS idx_test_cases_suite ON test_cases(suite_id);
`

// Open opens a SQLite database at the specified path with the settings the
// store needs. The pragmas ride in the DSN so every pooled connection gets
// them, and the pool is pinned to one connection: a :memory: database is
// per-connection, so a second connection would see an empty database.
func Open(path string, logger *zap.SugaredLogger) (*sql.DB, error) {
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if logger != nil {
		logger.Debugw("database opened", "path", path)
	}
	return db, nil
}

// SQLiteStore implements reconciler.Store on a SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	log *zap.SugaredLogger
}

// NewSQLiteStore creates the schema if needed and returns a ready store.
func NewSQLiteStore(db *sql.DB, log *zap.SugaredLogger) (*SQLiteStore, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, errors.Wrap(err, "failed to create schema")
	}
	return &SQLiteStore{db: db, log: log}, nil
}

var _ reconciler.Store = (*SQLiteStore)(nil)

// Load returns the schedule with its full tree.
func (s *SQLiteStore) Load(ctx context.Context, id int64) (*types.JobSchedule, error) {
	job, err := s.loadJobRow(ctx, id)
	if err != nil {
		return nil, err
	}

	suites, err := s.loadSuites(ctx, id)
	if err != nil {
		return nil, err
	}
	job.Suites = suites
	return job, nil
}

func (s *SQLiteStore) loadJobRow(ctx context.Context, id int64) (*types.JobSchedule, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, description, schedule_type, run_at_time,
		       interval_minutes, is_active, last_run_at, next_run_at,
		       created_at, updated_at
		FROM job_schedules WHERE id = ?`, id)

	var (
		job       types.JobSchedule
		jobID     int64
		runAt     sql.NullString
		interval  sql.NullInt64
		lastRun   sql.NullTime
		nextRun   sql.NullTime
		updatedAt sql.NullTime
	)
	err := row.Scan(&jobID, &job.UserID, &job.Name, &job.Description,
		&job.ScheduleType, &runAt, &interval, &job.IsActive,
		&lastRun, &nextRun, &job.CreatedAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, &reconciler.NotFoundError{Kind: "job schedule", ID: id}
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load job schedule")
	}

	job.ID = types.ExistingID(jobID)
	if runAt.Valid {
		t, err := types.ParseTimeOfDay(runAt.String)
		if err != nil {
			return nil, errors.Wrapf(err, "corrupt run_at_time for job %d", jobID)
		}
		job.RunAtTime = &t
	}
	if interval.Valid {
		v := int(interval.Int64)
		job.IntervalMinutes = &v
	}
	job.LastRunAt = timePtr(lastRun)
	job.NextRunAt = timePtr(nextRun)
	job.UpdatedAt = timePtr(updatedAt)
	return &job, nil
}

func (s *SQLiteStore) loadSuites(ctx context.Context, jobID int64) ([]*types.TestSuite, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, endpoint, method, headers, base_payload,
		       description, is_active, created_at, created_by, updated_at, updated_by
		FROM test_suites WHERE job_id = ? ORDER BY id`, jobID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load suites")
	}

	// Drain the suite rows completely before issuing the per-suite case
	// queries; the pool holds a single connection.
	var suites []*types.TestSuite
	for rows.Next() {
		var (
			suite     types.TestSuite
			suiteID   int64
			headers   sql.NullString
			basePay   sql.NullString
			updatedAt sql.NullTime
		)
		err := rows.Scan(&suiteID, &suite.Name, &suite.Endpoint, &suite.Method,
			&headers, &basePay, &suite.Description, &suite.IsActive,
			&suite.CreatedAt, &suite.CreatedBy, &updatedAt, &suite.UpdatedBy)
		if err != nil {
			rows.Close()
			return nil, errors.Wrap(err, "failed to scan suite")
		}
		suite.ID = types.ExistingID(suiteID)
		suite.UpdatedAt = timePtr(updatedAt)
		if headers.Valid {
			if err := json.Unmarshal([]byte(headers.String), &suite.Headers); err != nil {
				rows.Close()
				return nil, errors.Wrapf(err, "corrupt headers for suite %d", suiteID)
			}
		}
		if basePay.Valid {
			var v payload.Value
			if err := json.Unmarshal([]byte(basePay.String), &v); err != nil {
				rows.Close()
				return nil, errors.Wrapf(err, "corrupt base payload for suite %d", suiteID)
			}
			suite.BasePayload = v
		}
		suites = append(suites, &suite)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	if err := rows.Close(); err != nil {
		return nil, errors.Wrap(err, "failed to close suite rows")
	}

	for _, suite := range suites {
		suiteID, _ := suite.ID.Value()
		cases, err := s.loadCases(ctx, suiteID)
		if err != nil {
			return nil, err
		}
		suite.Cases = cases
	}
	return suites, nil
}

func (s *SQLiteStore) loadCases(ctx context.Context, suiteID int64) ([]*types.TestCase, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, override, expected_status
		FROM test_cases WHERE suite_id = ? ORDER BY id`, suiteID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load cases")
	}
	defer rows.Close()

	var cases []*types.TestCase
	for rows.Next() {
		var (
			tc       types.TestCase
			caseID   int64
			override sql.NullString
		)
		if err := rows.Scan(&caseID, &tc.Name, &override, &tc.ExpectedStatus); err != nil {
			return nil, errors.Wrap(err, "failed to scan case")
		}
		tc.ID = types.ExistingID(caseID)
		if override.Valid {
			var v payload.Value
			if err := json.Unmarshal([]byte(override.String), &v); err != nil {
				return nil, errors.Wrapf(err, "corrupt override for case %d", caseID)
			}
			tc.Override = v
		}
		cases = append(cases, &tc)
	}
	return cases, rows.Err()
}

// Save persists the whole tree in one transaction. New entities get storage
// ids assigned in place; rows absent from the tree are deleted, cascading
// from suite to cases.
func (s *SQLiteStore) Save(ctx context.Context, job *types.JobSchedule) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	if err := s.saveJobRow(ctx, tx, job); err != nil {
		return err
	}
	jobID, _ := job.ID.Value()

	if err := s.saveSuites(ctx, tx, jobID, job.Suites); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit")
	}
	s.log.Debugw("job schedule saved", "job_id", jobID, "suites", len(job.Suites))
	return nil
}

func (s *SQLiteStore) saveJobRow(ctx context.Context, tx *sql.Tx, job *types.JobSchedule) error {
	runAt := timeOfDayString(job.RunAtTime)
	interval := intValue(job.IntervalMinutes)

	if job.ID.IsNew() {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO job_schedules
				(user_id, name, description, schedule_type, run_at_time,
				 interval_minutes, is_active, last_run_at, next_run_at,
				 created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			job.UserID, job.Name, job.Description, job.ScheduleType, runAt,
			interval, job.IsActive, job.LastRunAt, job.NextRunAt,
			job.CreatedAt, job.UpdatedAt)
		if err != nil {
			return errors.Wrap(err, "failed to insert job schedule")
		}
		id, err := res.LastInsertId()
		if err != nil {
			return errors.Wrap(err, "failed to read job schedule id")
		}
		job.ID = types.ExistingID(id)
		return nil
	}

	id, _ := job.ID.Value()
	res, err := tx.ExecContext(ctx, `
		UPDATE job_schedules SET
			user_id = ?, name = ?, description = ?, schedule_type = ?,
			run_at_time = ?, interval_minutes = ?, is_active = ?,
			last_run_at = ?, next_run_at = ?, updated_at = ?
		WHERE id = ?`,
		job.UserID, job.Name, job.Description, job.ScheduleType,
		runAt, interval, job.IsActive, job.LastRunAt, job.NextRunAt,
		job.UpdatedAt, id)
	if err != nil {
		return errors.Wrap(err, "failed to update job schedule")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to read affected rows")
	}
	if n == 0 {
		return &reconciler.NotFoundError{Kind: "job schedule", ID: id}
	}
	return nil
}

func (s *SQLiteStore) saveSuites(ctx context.Context, tx *sql.Tx, jobID int64, suites []*types.TestSuite) error {
	keep := make(map[int64]bool, len(suites))
	for _, suite := range suites {
		if err := s.saveSuiteRow(ctx, tx, jobID, suite); err != nil {
			return err
		}
		suiteID, _ := suite.ID.Value()
		keep[suiteID] = true

		if err := s.saveCases(ctx, tx, suiteID, suite.Cases); err != nil {
			return err
		}
	}

	// Remove suites absent from the tree, cascading to their cases in code.
	// The cascade must hold even on a connection without the FK pragma.
	stale, err := staleChildIDs(ctx, tx, "test_suites", "job_id", jobID, keep)
	if err != nil {
		return err
	}
	for _, suiteID := range stale {
		if _, err := tx.ExecContext(ctx, "DELETE FROM test_cases WHERE suite_id = ?", suiteID); err != nil {
			return errors.Wrap(err, "failed to delete cases of removed suite")
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM test_suites WHERE id = ?", suiteID); err != nil {
			return errors.Wrap(err, "failed to delete removed suite")
		}
	}
	return nil
}

func (s *SQLiteStore) saveSuiteRow(ctx context.Context, tx *sql.Tx, jobID int64, suite *types.TestSuite) error {
	headers, err := nullJSON(suite.Headers)
	if err != nil {
		return errors.Wrap(err, "failed to encode headers")
	}
	basePay, err := nullJSON(suite.BasePayload)
	if err != nil {
		return errors.Wrap(err, "failed to encode base payload")
	}

	if suite.ID.IsNew() {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO test_suites
				(job_id, name, endpoint, method, headers, base_payload,
				 description, is_active, created_at, created_by, updated_at, updated_by)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			jobID, suite.Name, suite.Endpoint, suite.Method, headers, basePay,
			suite.Description, suite.IsActive, suite.CreatedAt, suite.CreatedBy,
			suite.UpdatedAt, suite.UpdatedBy)
		if err != nil {
			return errors.Wrap(err, "failed to insert suite")
		}
		id, err := res.LastInsertId()
		if err != nil {
			return errors.Wrap(err, "failed to read suite id")
		}
		suite.ID = types.ExistingID(id)
		return nil
	}

	id, _ := suite.ID.Value()
	res, err := tx.ExecContext(ctx, `
		UPDATE test_suites SET
			name = ?, endpoint = ?, method = ?, headers = ?, base_payload = ?,
			description = ?, is_active = ?, updated_at = ?, updated_by = ?
		WHERE id = ? AND job_id = ?`,
		suite.Name, suite.Endpoint, suite.Method, headers, basePay,
		suite.Description, suite.IsActive, suite.UpdatedAt, suite.UpdatedBy,
		id, jobID)
	if err != nil {
		return errors.Wrap(err, "failed to update suite")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to read affected rows")
	}
	if n == 0 {
		return &reconciler.NotFoundError{Kind: "test suite", ID: id}
	}
	return nil
}

func (s *SQLiteStore) saveCases(ctx context.Context, tx *sql.Tx, suiteID int64, cases []*types.TestCase) error {
	keep := make(map[int64]bool, len(cases))
	for _, tc := range cases {
		override, err := nullJSON(tc.Override)
		if err != nil {
			return errors.Wrap(err, "failed to encode case override")
		}

		if tc.ID.IsNew() {
			res, err := tx.ExecContext(ctx, `
				INSERT INTO test_cases (suite_id, name, override, expected_status)
				VALUES (?, ?, ?, ?)`,
				suiteID, tc.Name, override, tc.ExpectedStatus)
			if err != nil {
				return errors.Wrap(err, "failed to insert case")
			}
			id, err := res.LastInsertId()
			if err != nil {
				return errors.Wrap(err, "failed to read case id")
			}
			tc.ID = types.ExistingID(id)
		} else {
			id, _ := tc.ID.Value()
			res, err := tx.ExecContext(ctx, `
				UPDATE test_cases SET name = ?, override = ?, expected_status = ?
				WHERE id = ? AND suite_id = ?`,
				tc.Name, override, tc.ExpectedStatus, id, suiteID)
			if err != nil {
				return errors.Wrap(err, "failed to update case")
			}
			n, err := res.RowsAffected()
			if err != nil {
				return errors.Wrap(err, "failed to read affected rows")
			}
			if n == 0 {
				return &reconciler.NotFoundError{Kind: "test case", ID: id}
			}
		}

		caseID, _ := tc.ID.Value()
		keep[caseID] = true
	}

	stale, err := staleChildIDs(ctx, tx, "test_cases", "suite_id", suiteID, keep)
	if err != nil {
		return err
	}
	for _, id := range stale {
		if _, err := tx.ExecContext(ctx, "DELETE FROM test_cases WHERE id = ?", id); err != nil {
			return errors.Wrap(err, "failed to delete removed case")
		}
	}
	return nil
}

// staleChildIDs lists children of parentID whose ids are not in keep.
func staleChildIDs(ctx context.Context, tx *sql.Tx, table, parentCol string, parentID int64, keep map[int64]bool) ([]int64, error) {
	rows, err := tx.QueryContext(ctx,
		fmt.Sprintf("SELECT id FROM %s WHERE %s = ?", table, parentCol), parentID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list %s", table)
	}
	defer rows.Close()

	var stale []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrapf(err, "failed to scan %s id", table)
		}
		if !keep[id] {
			stale = append(stale, id)
		}
	}
	return stale, rows.Err()
}

// Delete removes the schedule and its whole tree. The children go first,
// inside one transaction, so the cascade never depends on the FK pragma.
func (s *SQLiteStore) Delete(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM test_cases WHERE suite_id IN
			(SELECT id FROM test_suites WHERE job_id = ?)`, id); err != nil {
		return errors.Wrap(err, "failed to delete cases")
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM test_suites WHERE job_id = ?", id); err != nil {
		return errors.Wrap(err, "failed to delete suites")
	}

	res, err := tx.ExecContext(ctx, "DELETE FROM job_schedules WHERE id = ?", id)
	if err != nil {
		return errors.Wrap(err, "failed to delete job schedule")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to read affected rows")
	}
	if n == 0 {
		return &reconciler.NotFoundError{Kind: "job schedule", ID: id}
	}
	return errors.Wrap(tx.Commit(), "failed to commit")
}

// ListByUser returns the user's schedules, newest first, without suite trees.
func (s *SQLiteStore) ListByUser(ctx context.Context, userID int64) ([]*types.JobSchedule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM job_schedules
		WHERE user_id = ? ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list job schedules")
	}

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, errors.Wrap(err, "failed to scan job schedule id")
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	if err := rows.Close(); err != nil {
		return nil, errors.Wrap(err, "failed to close job schedule rows")
	}

	jobs := make([]*types.JobSchedule, 0, len(ids))
	for _, id := range ids {
		job, err := s.loadJobRow(ctx, id)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func timeOfDayString(t *types.TimeOfDay) any {
	if t == nil {
		return nil
	}
	return t.String()
}

func intValue(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

// nullJSON encodes v as JSON text, or NULL when there is nothing to store.
func nullJSON(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if m, ok := v.(map[string]string); ok && len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
