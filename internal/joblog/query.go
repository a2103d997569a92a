package joblog

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dbsmedya/logops/internal/logger"
)

// Entry is one job_logs row.
type Entry struct {
	ID              int64      `json:"id"`
	SchemaName      string     `json:"schema_name,omitempty"`
	JobType         string     `json:"job_type"`
	TableName       string     `json:"table_name"`
	Status          string     `json:"status"`
	Source          string     `json:"source"`
	Reason          string     `json:"reason"`
	RecordsAffected int64      `json:"records_affected"`
	StartedAt       time.Time  `json:"started_at"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
}

// DurationSeconds returns the job runtime, or zero while in progress.
func (e *Entry) DurationSeconds() float64 {
	if e.FinishedAt == nil {
		return 0
	}
	return e.FinishedAt.Sub(e.StartedAt).Seconds()
}

// Filters is the union of supported job-log query filters; every field is
// optional.
type Filters struct {
	Status     []string `json:"status,omitempty"`
	JobType    []string `json:"job_type,omitempty"`
	TableName  []string `json:"table_name,omitempty"`
	SchemaName []string `json:"schema_name,omitempty"`
	Source     []string `json:"source,omitempty"`
	ID         []int64  `json:"id,omitempty"`

	MinRecordsAffected *int64 `json:"min_records_affected,omitempty"`
	MaxRecordsAffected *int64 `json:"max_records_affected,omitempty"`

	StartedAfter   *time.Time `json:"started_after,omitempty"`
	StartedBefore  *time.Time `json:"started_before,omitempty"`
	FinishedAfter  *time.Time `json:"finished_after,omitempty"`
	FinishedBefore *time.Time `json:"finished_before,omitempty"`

	// DateRange accepts shortcuts: today, yesterday, this_week, this_month,
	// last_7_days, last_30_days, last_month, last_N_minutes, last_N_hours,
	// last_N_days, from_M/D/YYYY_to_M/D/YYYY.
	DateRange string `json:"date_range,omitempty"`

	ReasonContains string `json:"reason_contains,omitempty"`

	FailedOnly      bool `json:"failed_only,omitempty"`
	SuccessfulOnly  bool `json:"successful_only,omitempty"`
	InProgressOnly  bool `json:"in_progress_only,omitempty"`
	ZeroRecordsOnly bool `json:"zero_records_only,omitempty"`
	HasRecordsOnly  bool `json:"has_records_only,omitempty"`
	ChatbotOnly     bool `json:"chatbot_only,omitempty"`
	ScriptOnly      bool `json:"script_only,omitempty"`

	// OrderBy defaults to started_at; results come newest-first unless
	// OrderAsc is set.
	OrderBy  string `json:"order_by,omitempty"`
	OrderAsc bool   `json:"order_asc,omitempty"`
	Limit    int    `json:"limit,omitempty"`
	Offset   int    `json:"offset,omitempty"`
}

// Summary aggregates job-log statistics.
type Summary struct {
	Total           int64            `json:"total"`
	ByStatus        map[string]int64 `json:"by_status"`
	ByJobType       map[string]int64 `json:"by_job_type"`
	RecordsAffected int64            `json:"records_affected"`
	OldestStartedAt *time.Time       `json:"oldest_started_at,omitempty"`
	NewestStartedAt *time.Time       `json:"newest_started_at,omitempty"`
}

// Service queries job_logs with the filter union above.
type Service struct {
	log *logger.Logger

	// now is swappable for date-range tests.
	now func() time.Time
}

// NewService creates a job-log query service.
func NewService(log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault()
	}
	return &Service{log: log, now: time.Now}
}

// orderableColumns whitelists ORDER BY targets.
var orderableColumns = map[string]bool{
	"id": true, "schema_name": true, "job_type": true, "table_name": true,
	"status": true, "source": true, "records_affected": true,
	"started_at": true, "finished_at": true,
}

const defaultLimit = 50

// Query returns matching entries from db.
func (s *Service) Query(ctx context.Context, db *sql.DB, f Filters) ([]Entry, error) {
	where, args, err := s.buildWhere(f)
	if err != nil {
		return nil, err
	}

	orderBy := "started_at"
	if f.OrderBy != "" {
		if !orderableColumns[f.OrderBy] {
			return nil, fmt.Errorf("cannot order by column %q", f.OrderBy)
		}
		orderBy = f.OrderBy
	}
	direction := "DESC"
	if f.OrderAsc {
		direction = "ASC"
	}

	limit := f.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`
		SELECT id, COALESCE(schema_name, ''), job_type, table_name, status, source,
		       COALESCE(reason, ''), records_affected, started_at, finished_at
		FROM job_logs
		%s
		ORDER BY %s %s
		LIMIT %d OFFSET %d`, where, orderBy, direction, limit, offset)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query job logs: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var finished sql.NullTime
		if err := rows.Scan(&e.ID, &e.SchemaName, &e.JobType, &e.TableName, &e.Status,
			&e.Source, &e.Reason, &e.RecordsAffected, &e.StartedAt, &finished); err != nil {
			return nil, fmt.Errorf("scan job log: %w", err)
		}
		if finished.Valid {
			t := finished.Time
			e.FinishedAt = &t
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Summarize aggregates counts by status and job type for the same filters.
func (s *Service) Summarize(ctx context.Context, db *sql.DB, f Filters) (*Summary, error) {
	where, args, err := s.buildWhere(f)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT status, job_type, COUNT(*), COALESCE(SUM(records_affected), 0),
		       MIN(started_at), MAX(started_at)
		FROM job_logs
		%s
		GROUP BY status, job_type`, where)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("summarize job logs: %w", err)
	}
	defer rows.Close()

	summary := &Summary{
		ByStatus:  make(map[string]int64),
		ByJobType: make(map[string]int64),
	}
	for rows.Next() {
		var status, jobType string
		var count, records int64
		var oldest, newest sql.NullTime
		if err := rows.Scan(&status, &jobType, &count, &records, &oldest, &newest); err != nil {
			return nil, fmt.Errorf("scan job log summary: %w", err)
		}
		summary.Total += count
		summary.ByStatus[status] += count
		summary.ByJobType[jobType] += count
		summary.RecordsAffected += records
		if oldest.Valid && (summary.OldestStartedAt == nil || oldest.Time.Before(*summary.OldestStartedAt)) {
			t := oldest.Time
			summary.OldestStartedAt = &t
		}
		if newest.Valid && (summary.NewestStartedAt == nil || newest.Time.After(*summary.NewestStartedAt)) {
			t := newest.Time
			summary.NewestStartedAt = &t
		}
	}
	return summary, rows.Err()
}

func (s *Service) buildWhere(f Filters) (string, []interface{}, error) {
	var conds []string
	var args []interface{}

	addIn := func(column string, values []string) {
		if len(values) == 0 {
			return
		}
		placeholders := make([]string, len(values))
		for i, v := range values {
			placeholders[i] = "?"
			args = append(args, v)
		}
		conds = append(conds, fmt.Sprintf("%s IN (%s)", column, strings.Join(placeholders, ", ")))
	}

	addIn("status", f.Status)
	addIn("job_type", f.JobType)
	addIn("table_name", f.TableName)
	addIn("schema_name", f.SchemaName)
	addIn("source", f.Source)

	if len(f.ID) > 0 {
		placeholders := make([]string, len(f.ID))
		for i, id := range f.ID {
			placeholders[i] = "?"
			args = append(args, id)
		}
		conds = append(conds, fmt.Sprintf("id IN (%s)", strings.Join(placeholders, ", ")))
	}

	if f.MinRecordsAffected != nil {
		conds = append(conds, "records_affected >= ?")
		args = append(args, *f.MinRecordsAffected)
	}
	if f.MaxRecordsAffected != nil {
		conds = append(conds, "records_affected <= ?")
		args = append(args, *f.MaxRecordsAffected)
	}

	if f.StartedAfter != nil {
		conds = append(conds, "started_at >= ?")
		args = append(args, *f.StartedAfter)
	}
	if f.StartedBefore != nil {
		conds = append(conds, "started_at <= ?")
		args = append(args, *f.StartedBefore)
	}
	if f.FinishedAfter != nil {
		conds = append(conds, "finished_at >= ?")
		args = append(args, *f.FinishedAfter)
	}
	if f.FinishedBefore != nil {
		conds = append(conds, "finished_at <= ?")
		args = append(args, *f.FinishedBefore)
	}

	if f.DateRange != "" {
		start, end, err := s.resolveDateRange(f.DateRange)
		if err != nil {
			return "", nil, err
		}
		conds = append(conds, "started_at >= ?", "started_at <= ?")
		args = append(args, start, end)
	}

	if f.ReasonContains != "" {
		conds = append(conds, "reason LIKE ?")
		args = append(args, "%"+f.ReasonContains+"%")
	}

	if f.FailedOnly {
		conds = append(conds, "status = ?")
		args = append(args, StatusFailed)
	}
	if f.SuccessfulOnly {
		conds = append(conds, "status = ?")
		args = append(args, StatusSuccess)
	}
	if f.InProgressOnly {
		conds = append(conds, "status = ?")
		args = append(args, StatusInProgress)
	}
	if f.ZeroRecordsOnly {
		conds = append(conds, "records_affected = 0")
	}
	if f.HasRecordsOnly {
		conds = append(conds, "records_affected > 0")
	}
	if f.ChatbotOnly {
		conds = append(conds, "source = ?")
		args = append(args, SourceChatbot)
	}
	if f.ScriptOnly {
		conds = append(conds, "source = ?")
		args = append(args, SourceScript)
	}

	if len(conds) == 0 {
		return "", nil, nil
	}
	return "WHERE " + strings.Join(conds, " AND "), args, nil
}

var (
	lastUnitsPattern = regexp.MustCompile(`^last_(\d+)_(minutes?|hours?|days?)$`)
	fromToPattern    = regexp.MustCompile(`^from_(\d{1,2})/(\d{1,2})/(\d{4})_to_(\d{1,2})/(\d{1,2})/(\d{4})$`)
)

// resolveDateRange converts a shortcut into an inclusive [start, end] window.
func (s *Service) resolveDateRange(shortcut string) (time.Time, time.Time, error) {
	now := s.now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	switch shortcut {
	case "today":
		return midnight, now, nil
	case "yesterday":
		return midnight.AddDate(0, 0, -1), midnight.Add(-time.Second), nil
	case "this_week":
		// Week starts Monday.
		offset := (int(now.Weekday()) + 6) % 7
		return midnight.AddDate(0, 0, -offset), now, nil
	case "this_month":
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()), now, nil
	case "last_7_days":
		return now.AddDate(0, 0, -7), now, nil
	case "last_30_days":
		return now.AddDate(0, 0, -30), now, nil
	case "last_month":
		firstOfThis := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		return firstOfThis.AddDate(0, -1, 0), firstOfThis.Add(-time.Second), nil
	}

	if m := lastUnitsPattern.FindStringSubmatch(shortcut); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil || n <= 0 {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid date range %q", shortcut)
		}
		switch strings.TrimSuffix(m[2], "s") {
		case "minute":
			return now.Add(-time.Duration(n) * time.Minute), now, nil
		case "hour":
			return now.Add(-time.Duration(n) * time.Hour), now, nil
		case "day":
			return now.AddDate(0, 0, -n), now, nil
		}
	}

	if m := fromToPattern.FindStringSubmatch(shortcut); m != nil {
		month1, _ := strconv.Atoi(m[1])
		day1, _ := strconv.Atoi(m[2])
		year1, _ := strconv.Atoi(m[3])
		month2, _ := strconv.Atoi(m[4])
		day2, _ := strconv.Atoi(m[5])
		year2, _ := strconv.Atoi(m[6])

		start := time.Date(year1, time.Month(month1), day1, 0, 0, 0, 0, now.Location())
		end := time.Date(year2, time.Month(month2), day2, 23, 59, 59, 0, now.Location())
		if end.Before(start) {
			return time.Time{}, time.Time{}, fmt.Errorf("date range %q ends before it starts", shortcut)
		}
		return start, end, nil
	}

	return time.Time{}, time.Time{}, fmt.Errorf("unknown date range %q", shortcut)
}
