package datefilter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbsmedya/logops/internal/apperr"
)

// Reference clock: 2025-10-15 12:00:00.
var refNow = time.Date(2025, 10, 15, 12, 0, 0, 0, time.UTC)

func refParser() *Parser {
	return NewAt(func() time.Time { return refNow })
}

func TestOlderThan(t *testing.T) {
	p := refParser()

	r, err := p.Parse("older than 7 days")
	require.NoError(t, err)
	assert.True(t, r.Success)
	assert.Equal(t, OpLessThan, r.Operation)
	require.NotNil(t, r.EndDate)
	assert.Equal(t, refNow.AddDate(0, 0, -7), *r.EndDate)
	assert.Nil(t, r.StartDate)
	assert.Equal(t, 1.0, r.Confidence)
	assert.Empty(t, r.Assumptions)
	assert.Equal(t, "20251008120000", r.Formats.ActivitiesTransactions.EndDate)

	r, err = p.Parse("archive everything older than 3 months")
	require.NoError(t, err)
	assert.Equal(t, OpLessThan, r.Operation)
	assert.Equal(t, refNow.AddDate(0, -3, 0), *r.EndDate)

	r, err = p.Parse("older than 1 year")
	require.NoError(t, err)
	assert.Equal(t, refNow.AddDate(-1, 0, 0), *r.EndDate)
}

func TestLastN(t *testing.T) {
	p := refParser()

	r, err := p.Parse("last 30 days")
	require.NoError(t, err)
	assert.Equal(t, OpGreaterThan, r.Operation)
	require.NotNil(t, r.StartDate)
	assert.Equal(t, refNow.AddDate(0, 0, -30), *r.StartDate)
	assert.Nil(t, r.EndDate)

	r, err = p.Parse("past 2 weeks")
	require.NoError(t, err)
	assert.Equal(t, refNow.AddDate(0, 0, -14), *r.StartDate)
}

func TestMonthAndYear(t *testing.T) {
	p := refParser()

	r, err := p.Parse("january 2024")
	require.NoError(t, err)
	assert.Equal(t, OpBetween, r.Operation)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), *r.StartDate)
	assert.Equal(t, time.Date(2024, 1, 31, 23, 59, 59, 0, time.UTC), *r.EndDate)
	assert.Equal(t, 1.0, r.Confidence)

	// Bare month assumes the current year and records it.
	r, err = p.Parse("show me september")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC), *r.StartDate)
	assert.Less(t, r.Confidence, 1.0)
	require.Len(t, r.Assumptions, 1)
	assert.Contains(t, r.Assumptions[0], "2025")
}

func TestQuarter(t *testing.T) {
	p := refParser()

	r, err := p.Parse("Q1 2025")
	require.NoError(t, err)
	assert.Equal(t, OpBetween, r.Operation)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), *r.StartDate)
	assert.Equal(t, time.Date(2025, 3, 31, 23, 59, 59, 0, time.UTC), *r.EndDate)
}

func TestExplicitRange(t *testing.T) {
	p := refParser()

	r, err := p.Parse("from 9/1/2025 to 9/30/2025")
	require.NoError(t, err)
	assert.Equal(t, OpBetween, r.Operation)
	assert.Equal(t, time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC), *r.StartDate)
	assert.Equal(t, time.Date(2025, 9, 30, 23, 59, 59, 0, time.UTC), *r.EndDate)

	r, err = p.Parse("between january 2025 and march 2025")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), *r.StartDate)
	assert.Equal(t, time.Date(2025, 3, 31, 23, 59, 59, 0, time.UTC), *r.EndDate)

	_, err = p.Parse("from 9/30/2025 to 9/1/2025")
	assert.Error(t, err)
}

func TestSingleDates(t *testing.T) {
	p := refParser()

	r, err := p.Parse("10/5/2025")
	require.NoError(t, err)
	assert.Equal(t, OpEquals, r.Operation)
	assert.Equal(t, time.Date(2025, 10, 5, 0, 0, 0, 0, time.UTC), *r.StartDate)
	assert.Equal(t, time.Date(2025, 10, 5, 23, 59, 59, 0, time.UTC), *r.EndDate)

	r, err = p.Parse("2025-10-05")
	require.NoError(t, err)
	assert.Equal(t, OpEquals, r.Operation)

	r, err = p.Parse("yesterday")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 10, 14, 0, 0, 0, 0, time.UTC), *r.StartDate)
	assert.Equal(t, time.Date(2025, 10, 14, 23, 59, 59, 0, time.UTC), *r.EndDate)
}

func TestVagueTerms(t *testing.T) {
	p := refParser()

	r, err := p.Parse("recent transactions")
	require.NoError(t, err)
	assert.Equal(t, OpGreaterThan, r.Operation)
	assert.Equal(t, refNow.AddDate(0, 0, -7), *r.StartDate)
	assert.Less(t, r.Confidence, 1.0)
	assert.NotEmpty(t, r.Assumptions)

	r, err = p.Parse("old data")
	require.NoError(t, err)
	assert.Equal(t, OpLessThan, r.Operation)
	assert.Equal(t, refNow.AddDate(-1, 0, 0), *r.EndDate)

	r, err = p.Parse("holiday season")
	require.NoError(t, err)
	assert.Equal(t, OpBetween, r.Operation)
	assert.Equal(t, time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC), *r.StartDate)
	assert.Equal(t, time.Date(2025, 1, 7, 23, 59, 59, 0, time.UTC), *r.EndDate)
}

func TestBareYear(t *testing.T) {
	p := refParser()

	r, err := p.Parse("2024")
	require.NoError(t, err)
	assert.Equal(t, OpBetween, r.Operation)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), *r.StartDate)
	assert.Equal(t, time.Date(2024, 12, 31, 23, 59, 59, 0, time.UTC), *r.EndDate)
}

func TestParseFailure(t *testing.T) {
	p := refParser()

	for _, phrase := range []string{"", "whenever", "the big batch", "2/30/2025"} {
		_, err := p.Parse(phrase)
		require.Error(t, err, phrase)
		assert.Equal(t, apperr.KindParseFailure, apperr.KindOf(err), phrase)
	}
}

func TestFormats(t *testing.T) {
	p := refParser()

	r, err := p.Parse("january 2024")
	require.NoError(t, err)

	assert.Equal(t, "20240101000000", r.Formats.ActivitiesTransactions.StartDate)
	assert.Equal(t, "20240131235959", r.Formats.ActivitiesTransactions.EndDate)
	assert.Equal(t, "2024-01-01 00:00:00", r.Formats.GenericDatetime.StartDate)
	assert.Equal(t, "2024-01-01", r.Formats.DateOnly.StartDate)
	assert.Equal(t, "2024-01-01T00:00:00Z", r.Formats.JobLogs.StartDate)
}
