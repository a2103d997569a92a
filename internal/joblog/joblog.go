// Package joblog writes and queries the job_logs audit table.
//
// Every mutating operation opens exactly one IN_PROGRESS record before any
// rows move and closes it on every exit path. The failure path writes
// through a connection outside the operation's transaction so the record
// survives a rollback.
package joblog

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dbsmedya/logops/internal/logger"
)

// Job statuses.
const (
	StatusInProgress = "IN_PROGRESS"
	StatusSuccess    = "SUCCESS"
	StatusFailed     = "FAILED"
)

// Job types.
const (
	JobArchive = "ARCHIVE"
	JobDelete  = "DELETE"
	JobOther   = "OTHER"
)

// Job sources.
const (
	SourceChatbot = "CHATBOT"
	SourceScript  = "SCRIPT"
)

// Logger writes job_logs records.
type Logger struct {
	log *logger.Logger
}

// NewLogger creates a job logger.
func NewLogger(log *logger.Logger) *Logger {
	if log == nil {
		log = logger.NewDefault()
	}
	return &Logger{log: log}
}

// Start inserts an IN_PROGRESS record and returns its id.
// The insert runs on db directly (auto-commit) so the record exists even
// if the surrounding operation later rolls back.
func (l *Logger) Start(ctx context.Context, db *sql.DB, jobType, tableName, source, reason string) (int64, error) {
	res, err := db.ExecContext(ctx, `
		INSERT INTO job_logs (job_type, table_name, status, source, reason, records_affected, started_at)
		VALUES (?, ?, ?, ?, ?, 0, NOW())`,
		jobType, tableName, StatusInProgress, source, reason)
	if err != nil {
		return 0, fmt.Errorf("start job log: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("job log id: %w", err)
	}

	l.log.WithJob(id).WithTable(tableName).Infof("job started: %s", jobType)
	return id, nil
}

// Complete finalizes a job record with its terminal status.
func (l *Logger) Complete(ctx context.Context, db *sql.DB, id int64, status string, recordsAffected int64, reason string) error {
	if status != StatusSuccess && status != StatusFailed {
		return fmt.Errorf("invalid terminal status %q", status)
	}

	_, err := db.ExecContext(ctx, `
		UPDATE job_logs
		SET status = ?, records_affected = ?, reason = ?, finished_at = NOW()
		WHERE id = ?`,
		status, recordsAffected, reason, id)
	if err != nil {
		return fmt.Errorf("complete job log %d: %w", id, err)
	}

	l.log.WithJob(id).Infof("job finished: %s (%d records)", status, recordsAffected)
	return nil
}

// LogFailed records a failure for an operation that could not even begin
// its transaction: one row, already terminal.
func (l *Logger) LogFailed(ctx context.Context, db *sql.DB, jobType, tableName, source, reason string) (int64, error) {
	res, err := db.ExecContext(ctx, `
		INSERT INTO job_logs (job_type, table_name, status, source, reason, records_affected, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, 0, NOW(), NOW())`,
		jobType, tableName, StatusFailed, source, reason)
	if err != nil {
		return 0, fmt.Errorf("log failed job: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("job log id: %w", err)
	}

	l.log.WithJob(id).WithTable(tableName).Warnf("job failed before start: %s", reason)
	return id, nil
}
