// Package datefilter converts natural-language date phrases into concrete
// time ranges and table-specific string encodings.
package datefilter

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dbsmedya/logops/internal/apperr"
	"github.com/dbsmedya/logops/internal/tables"
)

// Operation is the comparison implied by a parsed phrase.
type Operation string

const (
	OpBetween     Operation = "between"
	OpGreaterThan Operation = "greater_than"
	OpLessThan    Operation = "less_than"
	OpEquals      Operation = "equals"
)

// Range carries one format-specific encoding of the parsed window.
type Range struct {
	Operation Operation `json:"operation"`
	StartDate string    `json:"start_date,omitempty"`
	EndDate   string    `json:"end_date,omitempty"`
}

// Formats holds the parsed window in every encoding a caller might need.
type Formats struct {
	ActivitiesTransactions Range `json:"activities_transactions"` // YYYYMMDDHHMMSS
	JobLogs                Range `json:"job_logs"`                // ISO-8601
	GenericDatetime        Range `json:"generic_datetime"`        // YYYY-MM-DD HH:MM:SS
	DateOnly               Range `json:"date_only"`               // YYYY-MM-DD
}

// Result is the outcome of parsing one phrase.
type Result struct {
	Success     bool       `json:"success"`
	Operation   Operation  `json:"operation,omitempty"`
	StartDate   *time.Time `json:"start_date,omitempty"`
	EndDate     *time.Time `json:"end_date,omitempty"`
	Description string     `json:"description,omitempty"`
	Confidence  float64    `json:"confidence"`
	Formats     Formats    `json:"formats"`
	Assumptions []string   `json:"assumptions,omitempty"`
}

// Parser parses date expressions against an injectable clock.
type Parser struct {
	now func() time.Time
}

// New creates a Parser using the wall clock.
func New() *Parser {
	return &Parser{now: time.Now}
}

// NewAt creates a Parser with a fixed reference time, for deterministic
// parsing in tests and previews.
func NewAt(now func() time.Time) *Parser {
	return &Parser{now: now}
}

var months = map[string]time.Month{
	"january": time.January, "february": time.February, "march": time.March,
	"april": time.April, "may": time.May, "june": time.June,
	"july": time.July, "august": time.August, "september": time.September,
	"october": time.October, "november": time.November, "december": time.December,
	"jan": time.January, "feb": time.February, "mar": time.March, "apr": time.April,
	"jun": time.June, "jul": time.July, "aug": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dec": time.December,
}

var (
	olderThanPattern = regexp.MustCompile(`older\s+than\s+(\d+)\s+(day|week|month|year)s?`)
	lastNPattern     = regexp.MustCompile(`(?:last|past)\s+(\d+)\s+(day|week|month|year)s?`)
	quarterPattern   = regexp.MustCompile(`q([1-4])\s+(\d{4})`)
	monthYearPattern = regexp.MustCompile(`\b(january|february|march|april|may|june|july|august|september|october|november|december|jan|feb|mar|apr|jun|jul|aug|sep|oct|nov|dec)\b(?:\s+(\d{4}))?`)
	rangePattern     = regexp.MustCompile(`(?:from|between)\s+(.+?)\s+(?:to|and)\s+(.+)`)
	slashDatePattern = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{4})\b`)
	isoDatePattern   = regexp.MustCompile(`\b(\d{4})-(\d{1,2})-(\d{1,2})\b`)
	yearPattern      = regexp.MustCompile(`\b(20\d{2})\b`)
)

// Parse converts a phrase into a Result. Failure returns a ParseFailure
// error; callers must not fabricate ranges on failure.
func (p *Parser) Parse(phrase string) (*Result, error) {
	normalized := strings.ToLower(strings.TrimSpace(phrase))
	if normalized == "" {
		return nil, apperr.New(apperr.KindParseFailure, "empty date expression")
	}

	now := p.now()

	// Relative: "older than N units".
	if m := olderThanPattern.FindStringSubmatch(normalized); m != nil {
		n, _ := strconv.Atoi(m[1])
		end := subtractUnits(now, n, m[2])
		return p.result(OpLessThan, nil, &end,
			fmt.Sprintf("older than %d %s(s)", n, m[2]), 1.0, nil), nil
	}

	// Relative: "last N units".
	if m := lastNPattern.FindStringSubmatch(normalized); m != nil {
		n, _ := strconv.Atoi(m[1])
		start := subtractUnits(now, n, m[2])
		return p.result(OpGreaterThan, &start, nil,
			fmt.Sprintf("last %d %s(s)", n, m[2]), 1.0, nil), nil
	}

	// Vague terms resolve with recorded assumptions.
	if r, ok := p.parseVague(normalized, now); ok {
		return r, nil
	}

	// Explicit ranges: "from A to B", "between A and B".
	if m := rangePattern.FindStringSubmatch(normalized); m != nil {
		start, err1 := p.parseAbsoluteStart(m[1], now)
		end, err2 := p.parseAbsoluteEnd(m[2], now)
		if err1 == nil && err2 == nil {
			if end.Before(start) {
				return nil, apperr.New(apperr.KindParseFailure,
					"date range ends before it starts: %q", phrase)
			}
			return p.result(OpBetween, &start, &end,
				fmt.Sprintf("from %s to %s", m[1], m[2]), 1.0, nil), nil
		}
	}

	// Quarters: "Q1 2025".
	if m := quarterPattern.FindStringSubmatch(normalized); m != nil {
		q, _ := strconv.Atoi(m[1])
		year, _ := strconv.Atoi(m[2])
		start := time.Date(year, time.Month((q-1)*3+1), 1, 0, 0, 0, 0, now.Location())
		end := start.AddDate(0, 3, 0).Add(-time.Second)
		return p.result(OpBetween, &start, &end,
			fmt.Sprintf("Q%d %d", q, year), 1.0, nil), nil
	}

	// Month, with or without a year.
	if m := monthYearPattern.FindStringSubmatch(normalized); m != nil {
		month := months[m[1]]
		var assumptions []string
		confidence := 1.0
		year := now.Year()
		if m[2] != "" {
			year, _ = strconv.Atoi(m[2])
		} else {
			assumptions = append(assumptions,
				fmt.Sprintf("assumed current year %d for month %q", year, m[1]))
			confidence = 0.8
		}
		start := time.Date(year, month, 1, 0, 0, 0, 0, now.Location())
		end := start.AddDate(0, 1, 0).Add(-time.Second)
		return p.result(OpBetween, &start, &end,
			fmt.Sprintf("%s %d", m[1], year), confidence, assumptions), nil
	}

	// Single absolute dates.
	if m := slashDatePattern.FindStringSubmatch(normalized); m != nil {
		month, _ := strconv.Atoi(m[1])
		day, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		return p.singleDay(year, time.Month(month), day, now, normalized)
	}
	if m := isoDatePattern.FindStringSubmatch(normalized); m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		day, _ := strconv.Atoi(m[3])
		return p.singleDay(year, time.Month(month), day, now, normalized)
	}

	// Bare year.
	if m := yearPattern.FindStringSubmatch(normalized); m != nil {
		year, _ := strconv.Atoi(m[1])
		start := time.Date(year, time.January, 1, 0, 0, 0, 0, now.Location())
		end := time.Date(year, time.December, 31, 23, 59, 59, 0, now.Location())
		return p.result(OpBetween, &start, &end, fmt.Sprintf("year %d", year), 1.0, nil), nil
	}

	// Simple day words.
	switch {
	case strings.Contains(normalized, "yesterday"):
		day := now.AddDate(0, 0, -1)
		return p.singleDay(day.Year(), day.Month(), day.Day(), now, "yesterday")
	case strings.Contains(normalized, "today"):
		return p.singleDay(now.Year(), now.Month(), now.Day(), now, "today")
	}

	return nil, apperr.New(apperr.KindParseFailure, "could not parse date expression %q", phrase)
}

// parseVague resolves fuzzy phrases, always recording an assumption.
func (p *Parser) parseVague(normalized string, now time.Time) (*Result, bool) {
	switch {
	case strings.Contains(normalized, "recent") || strings.Contains(normalized, "latest"):
		start := now.AddDate(0, 0, -7)
		return p.result(OpGreaterThan, &start, nil, "recent (last 7 days)", 0.7,
			[]string{`interpreted "recent" as the last 7 days`}), true

	case strings.Contains(normalized, "old data") || strings.Contains(normalized, "old records"):
		end := now.AddDate(-1, 0, 0)
		return p.result(OpLessThan, nil, &end, "old data (older than 1 year)", 0.7,
			[]string{`interpreted "old data" as older than one year`}), true

	case strings.Contains(normalized, "holiday season"):
		year := now.Year()
		if now.Month() < time.December {
			year--
		}
		start := time.Date(year, time.December, 1, 0, 0, 0, 0, now.Location())
		end := time.Date(year+1, time.January, 7, 23, 59, 59, 0, now.Location())
		return p.result(OpBetween, &start, &end, "holiday season (Dec 1 - Jan 7)", 0.7,
			[]string{"interpreted \"holiday season\" as December 1 through January 7"}), true
	}
	return nil, false
}

// parseAbsoluteStart parses one endpoint of an explicit range, snapping to
// the start of the day/month.
func (p *Parser) parseAbsoluteStart(s string, now time.Time) (time.Time, error) {
	return p.parseAbsolute(s, now, false)
}

// parseAbsoluteEnd parses one endpoint, snapping to the end of the
// day/month (23:59:59).
func (p *Parser) parseAbsoluteEnd(s string, now time.Time) (time.Time, error) {
	return p.parseAbsolute(s, now, true)
}

func (p *Parser) parseAbsolute(s string, now time.Time, endOfPeriod bool) (time.Time, error) {
	s = strings.TrimSpace(s)

	if m := slashDatePattern.FindStringSubmatch(s); m != nil {
		month, _ := strconv.Atoi(m[1])
		day, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		return dayBound(year, time.Month(month), day, now.Location(), endOfPeriod), nil
	}

	if m := isoDatePattern.FindStringSubmatch(s); m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		day, _ := strconv.Atoi(m[3])
		return dayBound(year, time.Month(month), day, now.Location(), endOfPeriod), nil
	}

	if m := monthYearPattern.FindStringSubmatch(s); m != nil {
		month := months[m[1]]
		year := now.Year()
		if m[2] != "" {
			year, _ = strconv.Atoi(m[2])
		}
		start := time.Date(year, month, 1, 0, 0, 0, 0, now.Location())
		if endOfPeriod {
			return start.AddDate(0, 1, 0).Add(-time.Second), nil
		}
		return start, nil
	}

	return time.Time{}, fmt.Errorf("unparseable range endpoint %q", s)
}

func (p *Parser) singleDay(year int, month time.Month, day int, now time.Time, desc string) (*Result, error) {
	start := dayBound(year, month, day, now.Location(), false)
	end := dayBound(year, month, day, now.Location(), true)
	if start.Month() != month || start.Day() != day {
		return nil, apperr.New(apperr.KindParseFailure, "invalid calendar date in %q", desc)
	}
	return p.result(OpEquals, &start, &end, desc, 1.0, nil), nil
}

func dayBound(year int, month time.Month, day int, loc *time.Location, end bool) time.Time {
	if end {
		return time.Date(year, month, day, 23, 59, 59, 0, loc)
	}
	return time.Date(year, month, day, 0, 0, 0, 0, loc)
}

func subtractUnits(now time.Time, n int, unit string) time.Time {
	switch unit {
	case "day":
		return now.AddDate(0, 0, -n)
	case "week":
		return now.AddDate(0, 0, -7*n)
	case "month":
		return now.AddDate(0, -n, 0)
	default: // year
		return now.AddDate(-n, 0, 0)
	}
}

func (p *Parser) result(op Operation, start, end *time.Time, desc string, confidence float64, assumptions []string) *Result {
	r := &Result{
		Success:     true,
		Operation:   op,
		StartDate:   start,
		EndDate:     end,
		Description: desc,
		Confidence:  confidence,
		Assumptions: assumptions,
	}
	r.Formats = Formats{
		ActivitiesTransactions: encodeRange(op, start, end, tables.TimeLayout),
		JobLogs:                encodeRange(op, start, end, time.RFC3339),
		GenericDatetime:        encodeRange(op, start, end, "2006-01-02 15:04:05"),
		DateOnly:               encodeRange(op, start, end, "2006-01-02"),
	}
	return r
}

func encodeRange(op Operation, start, end *time.Time, layout string) Range {
	r := Range{Operation: op}
	if start != nil {
		r.StartDate = start.Format(layout)
	}
	if end != nil {
		r.EndDate = end.Format(layout)
	}
	return r
}
