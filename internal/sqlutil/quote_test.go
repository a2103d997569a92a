package sqlutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuoteIdentifier(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "main table", input: "dsiactivities", expected: "`dsiactivities`"},
		{name: "archive table", input: "dsitransactionlogarchive", expected: "`dsitransactionlogarchive`"},
		{name: "mixed case column", input: "PostedTime", expected: "`PostedTime`"},
		{name: "underscore", input: "job_logs", expected: "`job_logs`"},
		{name: "empty", input: "", expected: "``"},
		{name: "embedded backtick escaped", input: "bad`name", expected: "`bad``name`"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, QuoteIdentifier(tt.input))
		})
	}
}

func TestIsValidIdentifier(t *testing.T) {
	valid := []string{"dsiactivities", "WhenReceived", "job_logs", "GUID", "table123", "___"}
	for _, name := range valid {
		assert.True(t, IsValidIdentifier(name), name)
	}

	invalid := []string{
		"",
		"my table",
		"db.table",
		"bad`name",
		"dsiactivities; DROP TABLE dsiactivities--",
		"col'name",
		"table*",
		"name$",
	}
	for _, name := range invalid {
		assert.False(t, IsValidIdentifier(name), name)
	}
}
