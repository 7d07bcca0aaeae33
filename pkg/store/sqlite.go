// Copyright 2026 Wandercast
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/wandercast/wandercast/pkg/content"
	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// SQLiteJobRepo provides durable job persistence using SQLite.
// Thread-safe for concurrent access. Suitable for production use.
type SQLiteJobRepo struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteJobRepo opens (or creates) the job database at dbPath.
func NewSQLiteJobRepo(dbPath string) (*SQLiteJobRepo, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	repo := &SQLiteJobRepo{db: db, dbPath: dbPath}
	if err := repo.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return repo, nil
}

// initSchema creates the jobs table if it doesn't exist.
func (s *SQLiteJobRepo) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		query_text TEXT NOT NULL,
		request_kind TEXT NOT NULL,
		preferences_snapshot BLOB,
		status TEXT NOT NULL,
		progress INTEGER NOT NULL DEFAULT 0,
		result BLOB,
		script_text TEXT NOT NULL DEFAULT '',
		audio_url TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		completed_at INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_jobs_owner ON jobs(owner_id);
	CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
	CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs(created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteJobRepo) Create(ctx context.Context, job *Job) error {
	now := time.Now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, owner_id, query_text, request_kind, preferences_snapshot,
			status, progress, result, script_text, audio_url, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.OwnerID, job.QueryText, string(job.RequestKind), job.PreferencesSnapshot,
		string(job.Status), job.Progress, job.Result, job.ScriptText, job.AudioURL, job.Error,
		job.CreatedAt.Unix(), job.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}
	return nil
}

func (s *SQLiteJobRepo) Get(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, query_text, request_kind, preferences_snapshot,
			status, progress, result, script_text, audio_url, error,
			created_at, updated_at, completed_at
		FROM jobs WHERE id = ?`, id)
	return scanJob(row)
}

// terminalStatuses is the SQL filter that keeps terminal rows immutable.
const terminalStatuses = `('completed', 'failed', 'cancelled')`

func (s *SQLiteJobRepo) UpdateStatus(ctx context.Context, id string, status JobStatus) error {
	now := time.Now().Unix()
	var res sql.Result
	var err error
	if status.Terminal() {
		res, err = s.db.ExecContext(ctx,
			`UPDATE jobs SET status = ?, updated_at = ?, completed_at = ?
			WHERE id = ? AND status NOT IN `+terminalStatuses,
			string(status), now, now, id)
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE jobs SET status = ?, updated_at = ?
			WHERE id = ? AND status NOT IN `+terminalStatuses,
			string(status), now, id)
	}
	if err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Distinguish a missing row from a terminal one.
		if _, getErr := s.Get(ctx, id); getErr != nil {
			return getErr
		}
		return ErrTerminalStatus
	}
	return nil
}

func (s *SQLiteJobRepo) UpdateProgress(ctx context.Context, id string, progress int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET progress = ?, updated_at = ? WHERE id = ?`,
		progress, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to update progress: %w", err)
	}
	return requireRow(res)
}

func (s *SQLiteJobRepo) SetResult(ctx context.Context, id string, result []byte) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET result = ?, updated_at = ? WHERE id = ?`,
		result, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to set result: %w", err)
	}
	return requireRow(res)
}

func (s *SQLiteJobRepo) SetError(ctx context.Context, id string, message string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET error = ?, updated_at = ? WHERE id = ?`,
		message, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to set error: %w", err)
	}
	return requireRow(res)
}

func (s *SQLiteJobRepo) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	return requireRow(res)
}

func (s *SQLiteJobRepo) ListByOwner(ctx context.Context, owner string, skip, limit int, status JobStatus) ([]*Job, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, owner_id, query_text, request_kind, preferences_snapshot,
			status, progress, result, script_text, audio_url, error,
			created_at, updated_at, completed_at
		FROM jobs WHERE owner_id = ?`
	args := []any{owner}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, skip)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	jobs := make([]*Job, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// Close closes the underlying database.
func (s *SQLiteJobRepo) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var job Job
	var kind, status string
	var createdAt, updatedAt int64
	var completedAt sql.NullInt64

	err := row.Scan(&job.ID, &job.OwnerID, &job.QueryText, &kind, &job.PreferencesSnapshot,
		&status, &job.Progress, &job.Result, &job.ScriptText, &job.AudioURL, &job.Error,
		&createdAt, &updatedAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}

	job.RequestKind = content.RequestKind(kind)
	job.Status = JobStatus(status)
	job.CreatedAt = time.Unix(createdAt, 0)
	job.UpdatedAt = time.Unix(updatedAt, 0)
	if completedAt.Valid {
		t := time.Unix(completedAt.Int64, 0)
		job.CompletedAt = &t
	}
	return &job, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

var _ JobRepo = (*SQLiteJobRepo)(nil)
