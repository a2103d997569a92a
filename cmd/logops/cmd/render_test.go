package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dbsmedya/logops/internal/chat"
	"github.com/dbsmedya/logops/internal/lifecycle"
)

func TestRenderTableAlignment(t *testing.T) {
	var buf bytes.Buffer
	renderTable(&buf, []string{"Table", "Rows"}, [][]string{
		{"dsiactivities", "1200"},
		{"dsitransactionlog", "87"},
	})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Len(t, lines, 4)

	// Every row pads its first column to the widest value.
	assert.Contains(t, lines[0], "Table")
	assert.Contains(t, lines[2], "dsiactivities      1200")
	assert.Contains(t, lines[3], "dsitransactionlog  87")
}

func TestRenderStatsCard(t *testing.T) {
	var buf bytes.Buffer
	renderResponse(&buf, &chat.Response{
		Reply:    "Table statistics for US",
		CardType: chat.CardStats,
		Card: chat.StatsCard{
			Region: "US",
			Tables: []*lifecycle.TableStats{
				{Table: "dsiactivities", RowCount: 100,
					OldestTime: "2025-01-01 00:00:00", NewestTime: "2025-10-01 00:00:00"},
			},
		},
	})

	out := buf.String()
	assert.Contains(t, out, "Table statistics for US")
	assert.Contains(t, out, "dsiactivities")
	assert.Contains(t, out, "2025-01-01 00:00:00")
}

func TestRenderConfirmationCard(t *testing.T) {
	var buf bytes.Buffer
	renderResponse(&buf, &chat.Response{
		Reply:    "Found 42 records to archive.",
		CardType: chat.CardConfirmation,
		Card: chat.ConfirmationCard{
			Operation:   "archive",
			Table:       "dsiactivities",
			Region:      "US",
			Filters:     "PostedTime <= 2025-09-01 00:00:00",
			MatchCount:  42,
			ConfirmWith: chat.ConfirmArchive,
			CancelWith:  "CANCEL",
		},
	})

	out := buf.String()
	assert.Contains(t, out, "Matching records: 42")
	assert.Contains(t, out, chat.ConfirmArchive)
	assert.Contains(t, out, "CANCEL")
}

func TestRenderErrorCard(t *testing.T) {
	var buf bytes.Buffer
	renderResponse(&buf, &chat.Response{
		Reply:    "Archive refused",
		CardType: chat.CardError,
		Card:     chat.ErrorCard{Kind: "safety_rule", Message: "records too recent"},
	})

	out := buf.String()
	assert.Contains(t, out, "safety_rule")
	assert.Contains(t, out, "records too recent")
}

func TestRenderPlainReply(t *testing.T) {
	var buf bytes.Buffer
	renderResponse(&buf, &chat.Response{
		Reply:    "Hello there.",
		CardType: chat.CardConversational,
	})
	assert.Equal(t, "Hello there.\n", buf.String())
}

func TestCellString(t *testing.T) {
	assert.Equal(t, "NULL", cellString(nil))
	assert.Equal(t, "abc", cellString([]byte("abc")))
	assert.Equal(t, "abc", cellString("abc"))
	assert.Equal(t, "42", cellString(int64(42)))
}
