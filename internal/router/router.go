// Package router turns a chat message into one of the fixed operations.
//
// The primary path asks the language model for a single routing line and
// parses it. When no model is configured, or the model's answer does not
// parse, a pattern fallback classifies the message instead, so the core
// operations keep working without an LLM.
package router

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/dbsmedya/logops/internal/llm"
	"github.com/dbsmedya/logops/internal/logger"
	"github.com/dbsmedya/logops/internal/tables"
)

// Action is the routed operation.
type Action int

const (
	ActionConversational Action = iota
	ActionStats
	ActionArchive
	ActionDelete
	ActionRegionStatus
	ActionHealthCheck
	ActionSQLQuery
	ActionClarify
)

// String returns the tool name the action corresponds to.
func (a Action) String() string {
	switch a {
	case ActionStats:
		return "get_table_stats"
	case ActionArchive:
		return "archive_records"
	case ActionDelete:
		return "delete_archived_records"
	case ActionRegionStatus:
		return "region_status"
	case ActionHealthCheck:
		return "health_check"
	case ActionSQLQuery:
		return "execute_sql_query"
	case ActionClarify:
		return "clarify"
	default:
		return "conversational"
	}
}

// toolActions maps routing-line tool names back to actions.
var toolActions = map[string]Action{
	"get_table_stats":         ActionStats,
	"archive_records":         ActionArchive,
	"delete_archived_records": ActionDelete,
	"region_status":           ActionRegionStatus,
	"health_check":            ActionHealthCheck,
	"execute_sql_query":       ActionSQLQuery,
}

// Decision is the routed outcome of one message.
type Decision struct {
	Action Action

	Table          string
	DateExpression string
	AgentName      string
	ServerName     string
	UserID         string
	DeviceID       string
	Limit          int

	// Query carries the statement for execute_sql_query.
	Query string

	// Question is the clarification to ask the user.
	Question string
}

// filterPayload is the filters_json object of a routing line.
type filterPayload struct {
	DateExpression string `json:"date_expression,omitempty"`
	AgentName      string `json:"agent_name,omitempty"`
	ServerName     string `json:"server_name,omitempty"`
	UserID         string `json:"user_id,omitempty"`
	DeviceID       string `json:"device_id,omitempty"`
	Limit          int    `json:"limit,omitempty"`
	Query          string `json:"query,omitempty"`
}

// FiltersJSON renders the decision's filter fields as a filters_json
// object, "" when none are set. The rendering round-trips through
// Previous.Filters for back-reference resolution.
func (d *Decision) FiltersJSON() string {
	p := filterPayload{
		DateExpression: d.DateExpression,
		AgentName:      d.AgentName,
		ServerName:     d.ServerName,
		UserID:         d.UserID,
		DeviceID:       d.DeviceID,
		Limit:          d.Limit,
	}
	if p == (filterPayload{}) {
		return ""
	}
	b, err := json.Marshal(p)
	if err != nil {
		return ""
	}
	return string(b)
}

// Previous is the session's most recent operational turn. It resolves
// references like "archive those" to the table and filters of that turn.
type Previous struct {
	Table   string
	Filters string // filters_json recorded with the turn
	Tool    string
}

var (
	mcpLinePattern    = regexp.MustCompile(`(?m)^\s*MCP_TOOL:\s*(\S+)\s+(\S+)\s*(\{.*\})?\s*$`)
	clarifyPattern    = regexp.MustCompile(`(?m)^\s*CLARIFY_(TABLE|DATE):\s*(.+)$`)
	nonePattern       = regexp.MustCompile(`(?m)^\s*None\s*$`)
	pronounRefPattern = regexp.MustCompile(`(?i)\b(them|those|these|it|that table|the same)\b`)
)

// Router classifies messages.
type Router struct {
	llm *llm.Client
	log *logger.Logger
}

// New creates a router. A nil client disables the model path.
func New(client *llm.Client, log *logger.Logger) *Router {
	if log == nil {
		log = logger.NewDefault()
	}
	return &Router{llm: client, log: log}
}

// Route classifies one message. prev is the session's most recent
// operational turn, used to resolve references like "delete those".
func (r *Router) Route(ctx context.Context, message string, history []llm.Turn, prev Previous) *Decision {
	if r.llm != nil {
		line, err := r.llm.RouteIntent(ctx, message, history)
		if err == nil {
			if d, ok := r.parseRoutingLine(line); ok {
				r.inheritContext(d, message, prev)
				return d
			}
			r.log.Warnf("unparseable routing line %q, falling back to patterns", line)
		} else {
			r.log.Warnf("intent routing failed, falling back to patterns: %v", err)
		}
	}

	d := r.classify(message)
	r.inheritContext(d, message, prev)
	return d
}

// inheritContext fills in the table and filters from the previous
// operational turn when the message refers back to it instead of naming
// its own.
func (r *Router) inheritContext(d *Decision, message string, prev Previous) {
	if prev.Table == "" && prev.Filters == "" {
		return
	}
	if d.Action != ActionArchive && d.Action != ActionDelete && d.Action != ActionStats {
		return
	}
	if !pronounRefPattern.MatchString(message) {
		return
	}

	if d.Table == "" && prev.Table != "" {
		switch d.Action {
		case ActionArchive:
			// Archiving always targets the main table, whatever was last shown.
			if main, err := tables.LookupAny(prev.Table); err == nil {
				d.Table = main.Name
			}
		case ActionDelete:
			if t, err := tables.LookupAny(prev.Table); err == nil {
				d.Table = t.ArchiveName
			}
		default:
			d.Table = prev.Table
		}
	}

	if d.DateExpression != "" || prev.Filters == "" {
		return
	}
	var p filterPayload
	if err := json.Unmarshal([]byte(prev.Filters), &p); err != nil {
		r.log.Warnf("bad inherited filters %q: %v", prev.Filters, err)
		return
	}
	d.DateExpression = p.DateExpression
	if d.AgentName == "" {
		d.AgentName = p.AgentName
	}
	if d.ServerName == "" {
		d.ServerName = p.ServerName
	}
	if d.UserID == "" {
		d.UserID = p.UserID
	}
	if d.DeviceID == "" {
		d.DeviceID = p.DeviceID
	}
	if d.Limit == 0 {
		d.Limit = p.Limit
	}
}

// parseRoutingLine interprets one model answer. Returns ok=false when the
// answer matches none of the protocol forms.
func (r *Router) parseRoutingLine(line string) (*Decision, bool) {
	if m := mcpLinePattern.FindStringSubmatch(line); m != nil {
		action, ok := toolActions[m[1]]
		if !ok {
			return nil, false
		}
		d := &Decision{Action: action}
		if m[2] != "-" {
			d.Table = normalizeTable(m[2])
		}
		if m[3] != "" {
			var p filterPayload
			if err := json.Unmarshal([]byte(m[3]), &p); err != nil {
				r.log.Warnf("bad filters_json %q: %v", m[3], err)
			} else {
				d.DateExpression = p.DateExpression
				d.AgentName = p.AgentName
				d.ServerName = p.ServerName
				d.UserID = p.UserID
				d.DeviceID = p.DeviceID
				d.Limit = p.Limit
				d.Query = p.Query
			}
		}
		return d, true
	}

	if m := clarifyPattern.FindStringSubmatch(line); m != nil {
		return &Decision{Action: ActionClarify, Question: strings.TrimSpace(m[2])}, true
	}

	if nonePattern.MatchString(line) {
		return &Decision{Action: ActionConversational}, true
	}

	return nil, false
}

// normalizeTable maps loose table references to canonical names.
func normalizeTable(s string) string {
	name := strings.ToLower(strings.TrimSpace(s))
	name = strings.Trim(name, `"'`+"`")

	if tables.IsKnown(name) {
		return name
	}
	switch {
	case strings.Contains(name, "transaction") && strings.Contains(name, "arch"):
		return tables.TransactionArchive
	case strings.Contains(name, "activit") && strings.Contains(name, "arch"):
		return tables.ActivitiesArchive
	case strings.Contains(name, "transaction"):
		return tables.TransactionLog
	case strings.Contains(name, "activit"):
		return tables.Activities
	}
	return name
}
