package router

import (
	"regexp"
	"strings"

	"github.com/dbsmedya/logops/internal/tables"
)

// Fallback classifiers, checked in order. Delete outranks archive because
// purge requests usually mention the word "archive" too ("clean up the
// activities archive").
var (
	healthPattern  = regexp.MustCompile(`(?i)\b(health|healthy|alive|uptime|are you (ok|up|there))\b`)
	regionPattern  = regexp.MustCompile(`(?i)\bregions?\b.*\b(status|connect\w*|online|available)\b|\b(status|connect\w*)\b.*\bregions?\b|\bwhich regions\b`)
	statsPattern   = regexp.MustCompile(`(?i)\b(stats|statistics|count|how (many|much)|row ?counts?|record ?counts?|table sizes?|overview|summary)\b`)
	deletePattern  = regexp.MustCompile(`(?i)\b(delete|purge|clean\s*(up)?|remove|drop)\b`)
	archivePattern = regexp.MustCompile(`(?i)\barchiv\w*\b`)
	sqlPattern     = regexp.MustCompile(`(?i)^\s*select\b|\b(run|execute)\b.*\b(query|sql)\b|\bsql query\b`)
	limitPattern   = regexp.MustCompile(`(?i)\b(?:first|top|limit|only)\s+(\d+)\b`)

	// dateVocabPattern spots date talk. A mutation request without any of
	// these words carries no parseable boundary, so the decision leaves the
	// date expression empty and the orchestrator asks for one.
	dateVocabPattern = regexp.MustCompile(`(?i)\b(older|before|after|between|since|until|last|past|ago|earlier|prior|previous|recent|latest|today|yesterday|old data|holiday|q[1-4]|quarter|jan(uary)?|feb(ruary)?|mar(ch)?|apr(il)?|may|jun(e)?|jul(y)?|aug(ust)?|sep(tember)?|oct(ober)?|nov(ember)?|dec(ember)?|\d{4}|days?|weeks?|months?|years?|hours?)\b`)
)

// dateExpressionFrom returns the message as a date expression when it
// contains date vocabulary, "" otherwise.
func dateExpressionFrom(msg string) string {
	if dateVocabPattern.MatchString(msg) {
		return msg
	}
	return ""
}

// classify is the pattern fallback used when the model path is unavailable
// or unparseable.
func (r *Router) classify(message string) *Decision {
	msg := strings.TrimSpace(message)

	switch {
	case sqlPattern.MatchString(msg):
		d := &Decision{Action: ActionSQLQuery}
		if regexp.MustCompile(`(?i)^\s*select\b`).MatchString(msg) {
			d.Query = msg
		}
		return d

	case healthPattern.MatchString(msg):
		return &Decision{Action: ActionHealthCheck}

	case regionPattern.MatchString(msg):
		return &Decision{Action: ActionRegionStatus}

	case deletePattern.MatchString(msg) && archivePattern.MatchString(msg):
		d := &Decision{Action: ActionDelete, DateExpression: dateExpressionFrom(msg)}
		d.Table = tableFromMessage(msg, true)
		d.Limit = limitFromMessage(msg)
		return d

	case archivePattern.MatchString(msg):
		d := &Decision{Action: ActionArchive, DateExpression: dateExpressionFrom(msg)}
		d.Table = tableFromMessage(msg, false)
		d.Limit = limitFromMessage(msg)
		return d

	case statsPattern.MatchString(msg):
		return &Decision{
			Action:         ActionStats,
			Table:          tableFromMessage(msg, false),
			DateExpression: dateExpressionFrom(msg),
		}

	default:
		return &Decision{Action: ActionConversational}
	}
}

// tableFromMessage finds the table the message talks about, "" when none.
// With wantArchive, main-table mentions resolve to their archive twin.
func tableFromMessage(msg string, wantArchive bool) string {
	lower := strings.ToLower(msg)

	var t tables.Table
	switch {
	case strings.Contains(lower, "transaction"):
		t, _ = tables.Lookup(tables.TransactionLog)
	case strings.Contains(lower, "activit"):
		t, _ = tables.Lookup(tables.Activities)
	default:
		return ""
	}

	if wantArchive {
		return t.ArchiveName
	}
	return t.Name
}

func limitFromMessage(msg string) int {
	m := limitPattern.FindStringSubmatch(msg)
	if m == nil {
		return 0
	}
	n := 0
	for _, c := range m[1] {
		n = n*10 + int(c-'0')
	}
	return n
}
