package lifecycle

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/dbsmedya/logops/internal/apperr"
	"github.com/dbsmedya/logops/internal/config"
	"github.com/dbsmedya/logops/internal/joblog"
	"github.com/dbsmedya/logops/internal/lock"
	"github.com/dbsmedya/logops/internal/logger"
	"github.com/dbsmedya/logops/internal/sqlutil"
	"github.com/dbsmedya/logops/internal/tables"
	"github.com/dbsmedya/logops/internal/types"
)

// mysqlDuplicateEntry is the server error number for a duplicate key.
const mysqlDuplicateEntry = 1062

// Preview describes what an operation would touch, without touching it.
type Preview struct {
	Table                string           `json:"table"`
	Operation            string           `json:"operation"`
	Filters              string           `json:"filters"`
	MatchCount           int64            `json:"match_count"`
	Sample               *types.RecordSet `json:"-"`
	RequiresConfirmation bool             `json:"requires_confirmation"`
}

// ArchiveStats reports a completed archive run. PreviewCount is the number
// of rows matched at execution time; RecordsArchived excludes duplicates
// that already sat in the archive, while RecordsDeleted covers both.
type ArchiveStats struct {
	JobID             int64         `json:"job_id"`
	Table             string        `json:"table"`
	PreviewCount      int64         `json:"preview_count"`
	RecordsArchived   int64         `json:"records_archived"`
	RecordsDeleted    int64         `json:"records_deleted"`
	DuplicatesSkipped int64         `json:"duplicates_skipped"`
	Duration          time.Duration `json:"-"`
	Reason            string        `json:"reason"`
}

// DeleteStats reports a completed archive-purge run.
type DeleteStats struct {
	JobID          int64         `json:"job_id"`
	Table          string        `json:"table"`
	RecordsDeleted int64         `json:"records_deleted"`
	Duration       time.Duration `json:"-"`
	Reason         string        `json:"reason"`
}

// Engine runs archive and delete operations against one region's database.
type Engine struct {
	jobs      *joblog.Logger
	retention config.RetentionConfig
	log       *logger.Logger
	now       func() time.Time
}

// NewEngine creates an engine with the given retention policy.
func NewEngine(jobs *joblog.Logger, retention config.RetentionConfig, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.NewDefault()
	}
	return &Engine{
		jobs:      jobs,
		retention: retention,
		log:       log,
		now:       time.Now,
	}
}

// withDefaultBound supplies the upper bound when the caller set none:
// strictly older than minAgeDays days. A stricter bound already present
// is honored unchanged.
func (e *Engine) withDefaultBound(f Filters, minAgeDays int) Filters {
	if f.DateEnd == "" {
		f.DateEnd = tables.EncodeTime(e.now().AddDate(0, 0, -minAgeDays))
		f.DateComparison = CompareOlderThan
	}
	return f
}

// checkRetention refuses operations whose date boundary reaches inside the
// retention window.
func (e *Engine) checkRetention(f Filters, minAgeDays int, op string) error {
	if f.DateEnd == "" {
		return apperr.SafetyRule("%s requires a date boundary at least %d days in the past", op, minAgeDays)
	}
	end, err := tables.DecodeTime(f.DateEnd)
	if err != nil {
		return apperr.Validation("date_end %q is not a valid YYYYMMDDHHMMSS timestamp", f.DateEnd)
	}
	cutoff := e.now().AddDate(0, 0, -minAgeDays)
	if end.After(cutoff) {
		return apperr.SafetyRule("%s boundary %s is inside the %d-day retention window (oldest allowed: %s)",
			op, tables.FormatReadable(f.DateEnd), minAgeDays, cutoff.Format("2006-01-02 15:04:05"))
	}
	return nil
}

// PreviewArchive counts and samples the rows an archive run would move.
// No data changes.
func (e *Engine) PreviewArchive(ctx context.Context, db *sql.DB, tableName string, f Filters) (*Preview, error) {
	t, err := tables.Lookup(tableName)
	if err != nil {
		return nil, apperr.Validation("cannot archive %q: %v", tableName, err)
	}
	if err := f.Validate(t); err != nil {
		return nil, err
	}
	f = e.withDefaultBound(f, e.retention.ArchiveMinAgeDays)
	if err := e.checkRetention(f, e.retention.ArchiveMinAgeDays, "archive"); err != nil {
		return nil, err
	}
	return e.preview(ctx, db, t, t.Name, "archive", f)
}

// PreviewDelete counts and samples the rows a purge would remove from an
// archive table. No data changes.
func (e *Engine) PreviewDelete(ctx context.Context, db *sql.DB, tableName string, f Filters) (*Preview, error) {
	if !tables.IsArchive(tableName) {
		return nil, apperr.Validation("delete only applies to archive tables, not %q", tableName)
	}
	t, err := tables.LookupAny(tableName)
	if err != nil {
		return nil, apperr.Validation("%v", err)
	}
	if err := f.Validate(t); err != nil {
		return nil, err
	}
	f = e.withDefaultBound(f, e.retention.DeleteMinAgeDays)
	if err := e.checkRetention(f, e.retention.DeleteMinAgeDays, "delete"); err != nil {
		return nil, err
	}
	return e.preview(ctx, db, t, t.ArchiveName, "delete", f)
}

func (e *Engine) preview(ctx context.Context, db *sql.DB, t tables.Table, physical, op string, f Filters) (*Preview, error) {
	where, args := f.whereClause(t, physical)
	whereSQL := ""
	if where != "" {
		whereSQL = " WHERE " + where
	}

	var count int64
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s%s", sqlutil.QuoteIdentifier(physical), whereSQL)
	if err := db.QueryRowContext(ctx, countQuery, args...).Scan(&count); err != nil {
		return nil, fmt.Errorf("count matching rows: %w", err)
	}
	if f.Limit > 0 && count > int64(f.Limit) {
		count = int64(f.Limit)
	}

	sampleRows := e.retention.PreviewSampleRows
	if sampleRows <= 0 {
		sampleRows = 5
	}
	sampleQuery := fmt.Sprintf("SELECT * FROM %s%s ORDER BY %s.%s ASC LIMIT %d",
		sqlutil.QuoteIdentifier(physical), whereSQL,
		sqlutil.QuoteIdentifier(physical), sqlutil.QuoteIdentifier(t.TimeColumn), sampleRows)

	rows, err := db.QueryContext(ctx, sampleQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("sample matching rows: %w", err)
	}
	defer rows.Close()

	sample, err := types.Collect(rows)
	if err != nil {
		return nil, fmt.Errorf("collect sample: %w", err)
	}
	timeCols := tables.TimeColumns()
	sample.RewriteStrings(func(col string) bool { return timeCols[col] }, tables.FormatReadable)

	return &Preview{
		Table:                physical,
		Operation:            op,
		Filters:              f.Describe(),
		MatchCount:           count,
		Sample:               sample,
		RequiresConfirmation: count > 0,
	}, nil
}

// ExecuteArchive moves the filter-matched rows of a main table into its
// archive twin and removes them from the main table, all inside a single
// transaction guarded by the region+table advisory lock. Rows whose natural
// key already exists in the archive are not copied again but are still
// removed from the main table.
func (e *Engine) ExecuteArchive(ctx context.Context, db *sql.DB, region, tableName string, f Filters) (*ArchiveStats, error) {
	t, err := tables.Lookup(tableName)
	if err != nil {
		return nil, apperr.Validation("cannot archive %q: %v", tableName, err)
	}
	if err := f.Validate(t); err != nil {
		return nil, err
	}
	f = e.withDefaultBound(f, e.retention.ArchiveMinAgeDays)
	if err := e.checkRetention(f, e.retention.ArchiveMinAgeDays, "archive"); err != nil {
		return nil, err
	}

	jobID, err := e.jobs.Start(ctx, db, joblog.JobArchive, t.Name, joblog.SourceChatbot,
		"Archive requested: "+f.Describe())
	if err != nil {
		return nil, fmt.Errorf("open job log: %w", err)
	}

	log := e.log.WithRegion(region).WithJob(jobID).WithTable(t.Name)

	var stats *ArchiveStats
	runErr := lock.WithTableLock(ctx, db, region, t.Name, func() error {
		var err error
		stats, err = e.runArchive(ctx, db, t, f, jobID, log)
		return err
	})
	if runErr != nil {
		// The failure record must survive the rollback, so it goes through
		// the pool, not the transaction.
		if logErr := e.jobs.Complete(ctx, db, jobID, joblog.StatusFailed, 0, runErr.Error()); logErr != nil {
			log.Errorf("failed to record job failure: %v", logErr)
		}
		return nil, runErr
	}

	stats.JobID = jobID
	if err := e.jobs.Complete(ctx, db, jobID, joblog.StatusSuccess, stats.RecordsArchived, stats.Reason); err != nil {
		log.Errorf("failed to finalize job log: %v", err)
	}

	e.verifyNoConflicts(ctx, db, t, f, log)
	return stats, nil
}

func (e *Engine) runArchive(ctx context.Context, db *sql.DB, t tables.Table, f Filters, jobID int64, log *logger.Logger) (*ArchiveStats, error) {
	start := e.now()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if tx != nil {
			log.Warn("rolling back archive transaction")
			if rbErr := tx.Rollback(); rbErr != nil {
				log.Errorf("rollback failed: %v", rbErr)
			}
		}
	}()

	keys, err := candidateKeys(ctx, tx, t, f)
	if err != nil {
		return nil, err
	}

	stats := &ArchiveStats{Table: t.Name, PreviewCount: int64(len(keys))}
	if len(keys) == 0 {
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("commit transaction: %w", err)
		}
		tx = nil
		stats.Reason = "Archive completed - Archived: 0, Deleted: 0, Skipped duplicates: 0"
		stats.Duration = e.now().Sub(start)
		log.Info("no rows matched the archive filter")
		return stats, nil
	}

	existing, err := probeExisting(ctx, tx, t, keys, e.retention.DuplicateProbeBatch)
	if err != nil {
		return nil, err
	}
	var duplicates int64
	for _, key := range keys {
		if existing[key.fingerprint()] {
			duplicates++
		}
	}
	log.Infof("archiving %d rows (%d already in archive)", len(keys), duplicates)

	archived, err := e.bulkInsert(ctx, tx, t, f, existing)
	if err != nil {
		var myErr *mysql.MySQLError
		if errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry {
			log.Warnf("bulk insert hit a duplicate key, switching to row-by-row: %v", err)
			var skipped int64
			archived, skipped, err = insertRowByRow(ctx, tx, t, keys, existing)
			if err != nil {
				return nil, err
			}
			// skipped counts probed duplicates plus late arrivals.
			duplicates = skipped
		} else {
			return nil, err
		}
	}

	deleted, err := e.deleteMatched(ctx, tx, t, t.Name, f)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	tx = nil

	stats.RecordsArchived = archived
	stats.RecordsDeleted = deleted
	stats.DuplicatesSkipped = duplicates
	stats.Duration = e.now().Sub(start)
	stats.Reason = fmt.Sprintf("Archive completed - Archived: %d, Deleted: %d, Skipped duplicates: %d",
		archived, deleted, duplicates)

	log.Infof("archive complete: archived=%d deleted=%d skipped=%d duration=%s",
		archived, deleted, duplicates, stats.Duration)
	return stats, nil
}

// bulkInsert copies matched rows into the archive in one statement. The
// NOT EXISTS guard excludes rows already archived; NULL-keyed rows are
// excluded because they cannot be deduplicated.
func (e *Engine) bulkInsert(ctx context.Context, tx *sql.Tx, t tables.Table, f Filters, existing map[string]bool) (int64, error) {
	columnList := quotedColumnList(t.Columns)
	main := sqlutil.QuoteIdentifier(t.Name)
	archive := sqlutil.QuoteIdentifier(t.ArchiveName)

	where, args := f.whereClause(t, t.Name)
	conds := make([]string, 0, 4)
	if where != "" {
		conds = append(conds, where)
	}

	// Probed duplicates are excluded directly when the key is a single
	// column and the list stays bounded; the NOT EXISTS below covers the
	// rest either way.
	batch := e.retention.DuplicateProbeBatch
	if batch <= 0 {
		batch = 1000
	}
	if len(t.DuplicateKey) == 1 && len(existing) > 0 && len(existing) <= batch {
		placeholders := make([]string, 0, len(existing))
		for fp := range existing {
			placeholders = append(placeholders, "?")
			args = append(args, fp)
		}
		conds = append(conds, fmt.Sprintf("%s.%s NOT IN (%s)",
			main, sqlutil.QuoteIdentifier(t.DuplicateKey[0]), strings.Join(placeholders, ", ")))
	}

	joinConds := make([]string, len(t.DuplicateKey))
	for i, col := range t.DuplicateKey {
		joinConds[i] = fmt.Sprintf("arch.%s = %s.%s",
			sqlutil.QuoteIdentifier(col), main, sqlutil.QuoteIdentifier(col))
	}
	conds = append(conds, fmt.Sprintf("NOT EXISTS (SELECT 1 FROM %s AS arch WHERE %s)",
		archive, strings.Join(joinConds, " AND ")))

	for _, col := range t.DuplicateKey {
		conds = append(conds, fmt.Sprintf("%s.%s IS NOT NULL", main, sqlutil.QuoteIdentifier(col)))
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s WHERE %s",
		archive, columnList, columnList, main, strings.Join(conds, " AND "))
	if f.Limit > 0 {
		query += fmt.Sprintf(" ORDER BY %s.%s ASC LIMIT %d",
			main, sqlutil.QuoteIdentifier(t.TimeColumn), f.Limit)
	}

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("bulk insert into archive: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("bulk insert rows affected: %w", err)
	}
	return affected, nil
}

// deleteMatched removes the filter-matched rows from the given physical
// table. With a limit, the oldest N rows are scoped through a derived table
// so MySQL accepts the self-referencing delete. NULL-keyed rows are always
// left in place.
func (e *Engine) deleteMatched(ctx context.Context, tx querier, t tables.Table, physical string, f Filters) (int64, error) {
	table := sqlutil.QuoteIdentifier(physical)
	pk := sqlutil.QuoteIdentifier(t.PrimaryKey)

	where, args := f.whereClause(t, physical)
	conds := make([]string, 0, 3)
	if where != "" {
		conds = append(conds, where)
	}
	for _, col := range t.DuplicateKey {
		conds = append(conds, fmt.Sprintf("%s.%s IS NOT NULL", table, sqlutil.QuoteIdentifier(col)))
	}
	condSQL := strings.Join(conds, " AND ")

	var query string
	if f.Limit > 0 {
		query = fmt.Sprintf(
			"DELETE FROM %s WHERE %s IN (SELECT %s FROM (SELECT %s.%s FROM %s WHERE %s ORDER BY %s.%s ASC LIMIT %d) AS limited_records)",
			table, pk, pk,
			table, pk, table, condSQL,
			table, sqlutil.QuoteIdentifier(t.TimeColumn), f.Limit)
	} else {
		query = fmt.Sprintf("DELETE FROM %s WHERE %s", table, condSQL)
	}

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete matched rows: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete rows affected: %w", err)
	}
	return affected, nil
}

// verifyNoConflicts checks after commit that no filter-matched row exists
// in both tables. A hit means another writer re-inserted rows mid-flight;
// it is logged for investigation, never acted on.
func (e *Engine) verifyNoConflicts(ctx context.Context, db *sql.DB, t tables.Table, f Filters, log *logger.Logger) {
	main := sqlutil.QuoteIdentifier(t.Name)
	archive := sqlutil.QuoteIdentifier(t.ArchiveName)

	joinConds := make([]string, len(t.DuplicateKey))
	for i, col := range t.DuplicateKey {
		joinConds[i] = fmt.Sprintf("%s.%s = arch.%s", main, sqlutil.QuoteIdentifier(col), sqlutil.QuoteIdentifier(col))
	}

	where, args := f.whereClause(t, t.Name)
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s INNER JOIN %s AS arch ON %s",
		main, archive, strings.Join(joinConds, " AND "))
	if where != "" {
		query += " WHERE " + where
	}

	var conflicts int64
	if err := db.QueryRowContext(ctx, query, args...).Scan(&conflicts); err != nil {
		log.Warnf("post-archive verification failed: %v", err)
		return
	}
	if conflicts > 0 {
		log.Warnf("post-archive verification found %d rows present in both %s and %s",
			conflicts, t.Name, t.ArchiveName)
	}
}

// ExecuteDelete purges the filter-matched rows from an archive table inside
// a transaction guarded by the region+table advisory lock.
func (e *Engine) ExecuteDelete(ctx context.Context, db *sql.DB, region, tableName string, f Filters) (*DeleteStats, error) {
	if !tables.IsArchive(tableName) {
		return nil, apperr.Validation("delete only applies to archive tables, not %q", tableName)
	}
	t, err := tables.LookupAny(tableName)
	if err != nil {
		return nil, apperr.Validation("%v", err)
	}
	if err := f.Validate(t); err != nil {
		return nil, err
	}
	f = e.withDefaultBound(f, e.retention.DeleteMinAgeDays)
	if err := e.checkRetention(f, e.retention.DeleteMinAgeDays, "delete"); err != nil {
		return nil, err
	}

	jobID, err := e.jobs.Start(ctx, db, joblog.JobDelete, t.ArchiveName, joblog.SourceChatbot,
		"Delete requested: "+f.Describe())
	if err != nil {
		return nil, fmt.Errorf("open job log: %w", err)
	}

	log := e.log.WithRegion(region).WithJob(jobID).WithTable(t.ArchiveName)

	var stats *DeleteStats
	runErr := lock.WithTableLock(ctx, db, region, t.ArchiveName, func() error {
		var err error
		stats, err = e.runDelete(ctx, db, t, f, log)
		return err
	})
	if runErr != nil {
		if logErr := e.jobs.Complete(ctx, db, jobID, joblog.StatusFailed, 0, runErr.Error()); logErr != nil {
			log.Errorf("failed to record job failure: %v", logErr)
		}
		return nil, runErr
	}

	stats.JobID = jobID
	if err := e.jobs.Complete(ctx, db, jobID, joblog.StatusSuccess, stats.RecordsDeleted, stats.Reason); err != nil {
		log.Errorf("failed to finalize job log: %v", err)
	}
	return stats, nil
}

func (e *Engine) runDelete(ctx context.Context, db *sql.DB, t tables.Table, f Filters, log *logger.Logger) (*DeleteStats, error) {
	start := e.now()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if tx != nil {
			log.Warn("rolling back delete transaction")
			if rbErr := tx.Rollback(); rbErr != nil {
				log.Errorf("rollback failed: %v", rbErr)
			}
		}
	}()

	// Purges drop NULL-keyed rows too; the dedup guard only matters when
	// rows move between tables.
	where, args := f.whereClause(t, t.ArchiveName)
	query := "DELETE FROM " + sqlutil.QuoteIdentifier(t.ArchiveName)
	if f.Limit > 0 {
		table := sqlutil.QuoteIdentifier(t.ArchiveName)
		pk := sqlutil.QuoteIdentifier(t.PrimaryKey)
		inner := fmt.Sprintf("SELECT %s.%s FROM %s", table, pk, table)
		if where != "" {
			inner += " WHERE " + where
		}
		inner += fmt.Sprintf(" ORDER BY %s.%s ASC LIMIT %d",
			table, sqlutil.QuoteIdentifier(t.TimeColumn), f.Limit)
		query += fmt.Sprintf(" WHERE %s IN (SELECT %s FROM (%s) AS limited_records)", pk, pk, inner)
	} else if where != "" {
		query += " WHERE " + where
	}

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("delete archived rows: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("delete rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	tx = nil

	stats := &DeleteStats{
		Table:          t.ArchiveName,
		RecordsDeleted: deleted,
		Duration:       e.now().Sub(start),
		Reason:         fmt.Sprintf("Delete completed - Deleted: %d", deleted),
	}
	log.Infof("delete complete: deleted=%d duration=%s", deleted, stats.Duration)
	return stats, nil
}
