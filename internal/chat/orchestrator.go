package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/dbsmedya/logops/internal/apperr"
	"github.com/dbsmedya/logops/internal/auth"
	"github.com/dbsmedya/logops/internal/datefilter"
	"github.com/dbsmedya/logops/internal/joblog"
	"github.com/dbsmedya/logops/internal/lifecycle"
	"github.com/dbsmedya/logops/internal/llm"
	"github.com/dbsmedya/logops/internal/logger"
	"github.com/dbsmedya/logops/internal/region"
	"github.com/dbsmedya/logops/internal/router"
	"github.com/dbsmedya/logops/internal/sqlguard"
	"github.com/dbsmedya/logops/internal/tables"
)

var greetingPattern = regexp.MustCompile(`(?i)^\s*(hi|hello|hey|howdy|good\s+(morning|afternoon|evening))\b`)

// Request is one inbound chat message.
type Request struct {
	SessionID string `json:"session_id"`
	Region    string `json:"region"`
	Role      string `json:"role" binding:"required"`
	Message   string `json:"message" binding:"required"`

	// Token confirms a specific previewed operation; optional.
	Token string `json:"token,omitempty"`
}

// Orchestrator wires routing, permissions, previews and execution into a
// conversation.
type Orchestrator struct {
	regions *region.Manager
	engine  *lifecycle.Engine
	guard   *sqlguard.Executor
	intents *router.Router
	llm     *llm.Client
	dates   *datefilter.Parser
	store   *Store
	pending *pendingRegistry
	log     *logger.Logger
}

// NewOrchestrator assembles the chat pipeline. client and store may be nil:
// routing then falls back to patterns and history is not persisted.
func NewOrchestrator(regions *region.Manager, engine *lifecycle.Engine, guard *sqlguard.Executor,
	client *llm.Client, store *Store, log *logger.Logger) *Orchestrator {
	if log == nil {
		log = logger.NewDefault()
	}
	return &Orchestrator{
		regions: regions,
		engine:  engine,
		guard:   guard,
		intents: router.New(client, log),
		llm:     client,
		dates:   datefilter.New(),
		store:   store,
		pending: newPendingRegistry(),
		log:     log,
	}
}

// Handle processes one message. Failures become typed error cards; the
// returned response is always usable.
func (o *Orchestrator) Handle(ctx context.Context, req Request) *Response {
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}
	resp := &Response{SessionID: req.SessionID}

	if !auth.IsValidRole(req.Role) {
		resp.CardType = CardAccessDenied
		resp.Reply = fmt.Sprintf("Unknown role %q. Valid roles: %s, %s.", req.Role, auth.RoleAdmin, auth.RoleMonitor)
		resp.Card = ErrorCard{Kind: apperr.KindPermissionDenied.String(), Message: resp.Reply}
		return resp
	}

	if req.Region == "" {
		req.Region = o.regions.DefaultRegion(ctx)
	}
	if !o.regions.IsValid(ctx, req.Region) {
		return o.errorResponse(resp, apperr.InvalidRegion(req.Region))
	}

	message := strings.TrimSpace(req.Message)
	upper := strings.ToUpper(message)

	if cancelWords[upper] {
		return o.handleCancel(req, resp)
	}
	if upper == ConfirmArchive || upper == ConfirmDelete || req.Token != "" {
		return o.handleConfirmation(ctx, req, resp, upper)
	}
	if greetingPattern.MatchString(message) {
		return o.welcome(req, resp)
	}

	history, prev := o.context(ctx, req.SessionID)
	d := o.intents.Route(ctx, message, history, prev)
	o.log.WithSession(req.SessionID).WithRegion(req.Region).Debugf("routed %q to %s", message, d.Action)

	// Only operational turns are persisted; small talk stays ephemeral.
	if d.Action != router.ActionConversational {
		o.recordTurn(ctx, req, TurnRecord{
			TurnRole:  "user",
			Message:   req.Message,
			Tool:      d.Action.String(),
			TableName: d.Table,
			Filters:   d.FiltersJSON(),
		})
	}

	switch d.Action {
	case router.ActionStats:
		return o.handleStats(ctx, req, resp, d)
	case router.ActionArchive:
		return o.handleArchive(ctx, req, resp, d)
	case router.ActionDelete:
		return o.handleDelete(ctx, req, resp, d)
	case router.ActionRegionStatus:
		return o.handleRegionStatus(ctx, req, resp)
	case router.ActionHealthCheck:
		return o.handleHealth(ctx, req, resp)
	case router.ActionSQLQuery:
		return o.handleSQL(ctx, req, resp, d, message)
	case router.ActionClarify:
		resp.CardType = CardConversational
		resp.Reply = d.Question
		o.recordTurn(ctx, req, TurnRecord{TurnRole: "assistant", Message: resp.Reply, CardType: resp.CardType, Tool: "clarify"})
		return resp
	default:
		return o.handleConversation(ctx, req, resp, message, history)
	}
}

// context loads the router inputs; failures degrade to an empty context.
func (o *Orchestrator) context(ctx context.Context, sessionID string) ([]llm.Turn, router.Previous) {
	if o.store == nil {
		return nil, router.Previous{}
	}
	history, err := o.store.History(ctx, sessionID)
	if err != nil {
		o.log.WithSession(sessionID).Warnf("chat history unavailable: %v", err)
	}
	op, err := o.store.LastOperation(ctx, sessionID)
	if err != nil {
		o.log.WithSession(sessionID).Warnf("operation context unavailable: %v", err)
	}
	return history, router.Previous{Table: op.Table, Filters: op.Filters, Tool: op.Tool}
}

func (o *Orchestrator) welcome(req Request, resp *Response) *Response {
	resp.CardType = CardWelcome
	resp.Reply = fmt.Sprintf("Hello! You are connected to region %s as %s. I can show table statistics, archive old log records, purge old archive records, check region status and run read-only queries.", req.Region, req.Role)
	resp.Card = WelcomeCard{
		Region:     req.Region,
		Role:       req.Role,
		Operations: auth.Operations(req.Role),
		Tables:     tables.AllNames(),
	}
	return resp
}

func (o *Orchestrator) handleStats(ctx context.Context, req Request, resp *Response, d *router.Decision) *Response {
	if err := auth.Require(req.Role, auth.OpSelect); err != nil {
		return o.deniedResponse(resp, err)
	}
	f, err := o.buildFilters(d)
	if err != nil {
		return o.errorResponse(resp, err)
	}
	db, err := o.regionDB(ctx, req.Region)
	if err != nil {
		return o.errorResponse(resp, err)
	}

	var stats []*lifecycle.TableStats
	if d.Table != "" {
		s, err := o.engine.Stats(ctx, db, d.Table, f)
		if err != nil {
			return o.errorResponse(resp, err)
		}
		stats = []*lifecycle.TableStats{s}
	} else {
		stats, err = o.engine.AllStats(ctx, db, f)
		if err != nil {
			return o.errorResponse(resp, err)
		}
	}

	var total int64
	for _, s := range stats {
		total += s.RowCount
	}
	resp.CardType = CardStats
	card := StatsCard{Region: req.Region, Tables: stats}
	if f.IsEmpty() {
		resp.Reply = fmt.Sprintf("Region %s holds %d rows across %d tables.", req.Region, total, len(stats))
	} else {
		card.Filters = f.Describe()
		resp.Reply = fmt.Sprintf("Region %s holds %d rows across %d tables matching %s.",
			req.Region, total, len(stats), f.Describe())
	}
	resp.Card = card
	o.recordTurn(ctx, req, TurnRecord{
		TurnRole: "assistant", Message: resp.Reply, CardType: resp.CardType,
		Tool: "get_table_stats", TableName: d.Table, Filters: d.FiltersJSON(),
	})
	return resp
}

func (o *Orchestrator) handleArchive(ctx context.Context, req Request, resp *Response, d *router.Decision) *Response {
	if err := auth.Require(req.Role, auth.OpArchive); err != nil {
		return o.deniedResponse(resp, err)
	}
	if d.Table == "" {
		resp.CardType = CardConversational
		resp.Reply = fmt.Sprintf("Which table should I archive: %s?", strings.Join(tables.MainNames(), " or "))
		o.recordTurn(ctx, req, TurnRecord{TurnRole: "assistant", Message: resp.Reply, CardType: resp.CardType, Tool: "clarify"})
		return resp
	}
	if d.DateExpression == "" {
		resp.CardType = CardConversational
		resp.Reply = fmt.Sprintf("Up to which date should I archive %s? For example: \"older than 3 months\".", d.Table)
		o.recordTurn(ctx, req, TurnRecord{TurnRole: "assistant", Message: resp.Reply, CardType: resp.CardType, Tool: "clarify", TableName: d.Table})
		return resp
	}

	f, err := o.buildFilters(d)
	if err != nil {
		return o.errorResponse(resp, err)
	}
	db, err := o.regionDB(ctx, req.Region)
	if err != nil {
		return o.errorResponse(resp, err)
	}

	preview, err := o.engine.PreviewArchive(ctx, db, d.Table, f)
	if err != nil {
		return o.errorResponse(resp, err)
	}
	if preview.MatchCount == 0 {
		resp.CardType = CardConversational
		resp.Reply = fmt.Sprintf("No records in %s match %s; nothing to archive.", d.Table, f.Describe())
		o.recordTurn(ctx, req, TurnRecord{
			TurnRole: "assistant", Message: resp.Reply, CardType: resp.CardType,
			Tool: "archive_records", TableName: d.Table, Filters: d.FiltersJSON(),
		})
		return resp
	}

	op := o.pending.Put(req.SessionID, "archive", req.Region, d.Table, f, d.FiltersJSON(), preview.MatchCount)
	resp.CardType = CardConfirmation
	resp.Token = op.Token
	resp.Reply = fmt.Sprintf("This will archive %d records from %s (%s) and remove them from the main table. Reply %q to proceed or CANCEL to abort.",
		preview.MatchCount, d.Table, f.Describe(), ConfirmArchive)
	resp.Card = ConfirmationCard{
		Operation:      "archive",
		Table:          d.Table,
		Region:         req.Region,
		Filters:        f.Describe(),
		MatchCount:     preview.MatchCount,
		Sample:         preview.Sample.Maps(),
		ConfirmWith:    ConfirmArchive,
		CancelWith:     "CANCEL",
		Token:          op.Token,
		ExpiresSeconds: int(pendingTTL.Seconds()),
	}
	o.recordTurn(ctx, req, TurnRecord{
		TurnRole: "assistant", Message: resp.Reply, CardType: resp.CardType,
		Tool: "archive_records", TableName: d.Table, Filters: d.FiltersJSON(),
	})
	return resp
}

func (o *Orchestrator) handleDelete(ctx context.Context, req Request, resp *Response, d *router.Decision) *Response {
	if err := auth.Require(req.Role, auth.OpDeleteArchive); err != nil {
		return o.deniedResponse(resp, err)
	}
	if d.Table == "" {
		resp.CardType = CardConversational
		resp.Reply = fmt.Sprintf("Which archive table should I purge: %s or %s?", tables.ActivitiesArchive, tables.TransactionArchive)
		o.recordTurn(ctx, req, TurnRecord{TurnRole: "assistant", Message: resp.Reply, CardType: resp.CardType, Tool: "clarify"})
		return resp
	}
	// Deleting always targets the archive twin.
	if tables.IsMain(d.Table) {
		archive, _ := tables.ArchiveOf(d.Table)
		d.Table = archive
	}
	if d.DateExpression == "" {
		resp.CardType = CardConversational
		resp.Reply = fmt.Sprintf("Up to which date should I purge %s? For example: \"older than 1 year\".", d.Table)
		o.recordTurn(ctx, req, TurnRecord{TurnRole: "assistant", Message: resp.Reply, CardType: resp.CardType, Tool: "clarify", TableName: d.Table})
		return resp
	}

	f, err := o.buildFilters(d)
	if err != nil {
		return o.errorResponse(resp, err)
	}
	db, err := o.regionDB(ctx, req.Region)
	if err != nil {
		return o.errorResponse(resp, err)
	}

	preview, err := o.engine.PreviewDelete(ctx, db, d.Table, f)
	if err != nil {
		return o.errorResponse(resp, err)
	}
	if preview.MatchCount == 0 {
		resp.CardType = CardConversational
		resp.Reply = fmt.Sprintf("No records in %s match %s; nothing to delete.", d.Table, f.Describe())
		o.recordTurn(ctx, req, TurnRecord{
			TurnRole: "assistant", Message: resp.Reply, CardType: resp.CardType,
			Tool: "delete_archived_records", TableName: d.Table, Filters: d.FiltersJSON(),
		})
		return resp
	}

	op := o.pending.Put(req.SessionID, "delete", req.Region, d.Table, f, d.FiltersJSON(), preview.MatchCount)
	resp.CardType = CardConfirmation
	resp.Token = op.Token
	resp.Reply = fmt.Sprintf("This will permanently delete %d records from %s (%s). Reply %q to proceed or CANCEL to abort.",
		preview.MatchCount, d.Table, f.Describe(), ConfirmDelete)
	resp.Card = ConfirmationCard{
		Operation:      "delete",
		Table:          d.Table,
		Region:         req.Region,
		Filters:        f.Describe(),
		MatchCount:     preview.MatchCount,
		Sample:         preview.Sample.Maps(),
		ConfirmWith:    ConfirmDelete,
		CancelWith:     "CANCEL",
		Token:          op.Token,
		ExpiresSeconds: int(pendingTTL.Seconds()),
	}
	o.recordTurn(ctx, req, TurnRecord{
		TurnRole: "assistant", Message: resp.Reply, CardType: resp.CardType,
		Tool: "delete_archived_records", TableName: d.Table, Filters: d.FiltersJSON(),
	})
	return resp
}

func (o *Orchestrator) handleConfirmation(ctx context.Context, req Request, resp *Response, literal string) *Response {
	var op *PendingOp
	if req.Token != "" {
		op = o.pending.GetByToken(req.Token)
	} else {
		op = o.pending.Get(req.SessionID)
	}
	if op == nil {
		return o.errorResponse(resp, apperr.Validation("there is no pending operation to confirm; previews expire after %s", pendingTTL))
	}

	expected := ConfirmArchive
	if op.Operation == "delete" {
		expected = ConfirmDelete
	}
	if literal != expected && req.Token == "" {
		return o.errorResponse(resp, apperr.Validation("the pending operation is %s; reply %q to proceed or CANCEL to abort", op.Operation, expected))
	}

	if err := auth.Require(req.Role, auth.OpConfirmOperations); err != nil {
		return o.deniedResponse(resp, err)
	}

	// A client disconnect must not abort the transaction mid-run; the
	// operation finishes and the result lands in job_logs either way.
	ctx = context.WithoutCancel(ctx)

	db, err := o.regionDB(ctx, op.Region)
	if err != nil {
		return o.errorResponse(resp, err)
	}

	defer o.pending.Drop(op.SessionID)

	tool := "delete_archived_records"
	if op.Operation == "archive" {
		tool = "archive_records"
	}
	o.recordTurn(ctx, req, TurnRecord{
		TurnRole: "user", Message: req.Message, Tool: tool,
		TableName: op.Table, Filters: op.FiltersJSON,
	})

	if op.Operation == "archive" {
		stats, err := o.engine.ExecuteArchive(ctx, db, op.Region, op.Table, op.Filters)
		if err != nil {
			return o.executeFailed(ctx, req, resp, op, tool, err)
		}
		resp.CardType = CardSuccess
		resp.Reply = fmt.Sprintf("Archived %d records from %s (deleted %d, skipped %d duplicates). Job #%d.",
			stats.RecordsArchived, op.Table, stats.RecordsDeleted, stats.DuplicatesSkipped, stats.JobID)
		resp.Card = SuccessCard{
			Operation:         "archive",
			Table:             op.Table,
			Region:            op.Region,
			JobID:             stats.JobID,
			PreviewCount:      stats.PreviewCount,
			RecordsArchived:   stats.RecordsArchived,
			RecordsDeleted:    stats.RecordsDeleted,
			DuplicatesSkipped: stats.DuplicatesSkipped,
		}
		o.recordTurn(ctx, req, TurnRecord{
			TurnRole: "assistant", Message: resp.Reply, CardType: resp.CardType,
			Tool: tool, TableName: op.Table, Filters: op.FiltersJSON,
			RecordsAffected: stats.RecordsArchived, Status: joblog.StatusSuccess,
		})
		return resp
	}

	stats, err := o.engine.ExecuteDelete(ctx, db, op.Region, op.Table, op.Filters)
	if err != nil {
		return o.executeFailed(ctx, req, resp, op, tool, err)
	}
	resp.CardType = CardSuccess
	resp.Reply = fmt.Sprintf("Deleted %d records from %s. Job #%d.", stats.RecordsDeleted, op.Table, stats.JobID)
	resp.Card = SuccessCard{
		Operation:      "delete",
		Table:          op.Table,
		Region:         op.Region,
		JobID:          stats.JobID,
		RecordsDeleted: stats.RecordsDeleted,
	}
	o.recordTurn(ctx, req, TurnRecord{
		TurnRole: "assistant", Message: resp.Reply, CardType: resp.CardType,
		Tool: tool, TableName: op.Table, Filters: op.FiltersJSON,
		RecordsAffected: stats.RecordsDeleted, Status: joblog.StatusSuccess,
	})
	return resp
}

// executeFailed records the failed execution turn and builds its error card.
func (o *Orchestrator) executeFailed(ctx context.Context, req Request, resp *Response, op *PendingOp, tool string, err error) *Response {
	out := o.errorResponse(resp, err)
	o.recordTurn(ctx, req, TurnRecord{
		TurnRole: "assistant", Message: out.Reply, CardType: out.CardType,
		Tool: tool, TableName: op.Table, Filters: op.FiltersJSON,
		Status: joblog.StatusFailed, ErrorMessage: err.Error(),
	})
	return out
}

func (o *Orchestrator) handleCancel(req Request, resp *Response) *Response {
	op := o.pending.Get(req.SessionID)
	o.pending.Drop(req.SessionID)

	resp.CardType = CardCancelled
	if op == nil {
		resp.Reply = "Nothing to cancel."
	} else {
		resp.Reply = fmt.Sprintf("Cancelled the pending %s of %s. No data was changed.", op.Operation, op.Table)
	}
	return resp
}

func (o *Orchestrator) handleRegionStatus(ctx context.Context, req Request, resp *Response) *Response {
	status := o.regions.ConnectionStatus(ctx)
	resp.CardType = CardRegionStatus
	var connected []string
	for name, up := range status {
		if up {
			connected = append(connected, name)
		}
	}
	if len(connected) == 0 {
		resp.Reply = "No regions are currently connected."
	} else {
		resp.Reply = fmt.Sprintf("Connected regions: %s.", strings.Join(connected, ", "))
	}
	resp.Card = RegionStatusCard{Current: req.Region, Regions: status}
	o.recordTurn(ctx, req, TurnRecord{TurnRole: "assistant", Message: resp.Reply, CardType: resp.CardType, Tool: "region_status"})
	return resp
}

func (o *Orchestrator) handleHealth(ctx context.Context, req Request, resp *Response) *Response {
	card := HealthCard{Region: req.Region, LLMActive: o.llm != nil}

	report, err := o.regions.TestConnection(ctx, req.Region)
	if err != nil {
		card.Healthy = false
		resp.Reply = fmt.Sprintf("Region %s is not healthy: %v", req.Region, err)
	} else {
		card.Healthy = report.Healthy
		card.Report = report
		resp.Reply = fmt.Sprintf("Region %s is healthy. %s", req.Region, report.Message)
	}

	resp.CardType = CardHealth
	resp.Card = card
	o.recordTurn(ctx, req, TurnRecord{TurnRole: "assistant", Message: resp.Reply, CardType: resp.CardType, Tool: "health_check"})
	return resp
}

func (o *Orchestrator) handleSQL(ctx context.Context, req Request, resp *Response, d *router.Decision, message string) *Response {
	if err := auth.Require(req.Role, auth.OpSelect); err != nil {
		return o.deniedResponse(resp, err)
	}

	query := d.Query
	if query == "" && o.llm != nil {
		generated, err := o.llm.GenerateSQL(ctx, message)
		if err != nil {
			return o.errorResponse(resp, err)
		}
		query = generated
	}
	if query == "" {
		resp.CardType = CardConversational
		resp.Reply = "I could not turn that into a query. Try phrasing it as a SELECT statement."
		o.recordTurn(ctx, req, TurnRecord{TurnRole: "assistant", Message: resp.Reply, CardType: resp.CardType, Tool: "clarify"})
		return resp
	}

	db, err := o.regionDB(ctx, req.Region)
	if err != nil {
		return o.errorResponse(resp, err)
	}

	result, err := o.guard.Execute(ctx, db, query)
	if err != nil {
		return o.errorResponse(resp, err)
	}

	resp.CardType = CardSQLResults
	resp.Reply = fmt.Sprintf("Query returned %d rows.", result.RowCount)
	resp.Card = SQLResultsCard{Result: result}
	o.recordTurn(ctx, req, TurnRecord{TurnRole: "assistant", Message: resp.Reply, CardType: resp.CardType, Tool: "execute_sql_query"})
	return resp
}

func (o *Orchestrator) handleConversation(ctx context.Context, req Request, resp *Response, message string, history []llm.Turn) *Response {
	resp.CardType = CardConversational
	if o.llm != nil {
		reply, err := o.llm.Reply(ctx, message, history)
		if err == nil {
			resp.Reply = reply
			return resp
		}
		o.log.WithSession(req.SessionID).Warnf("conversational reply failed: %v", err)
	}
	resp.Reply = "I can show table statistics, archive old log records, purge old archive records, check region status and run read-only queries. What would you like to do?"
	return resp
}

// buildFilters converts a routed decision into engine filters, resolving
// the date expression.
func (o *Orchestrator) buildFilters(d *router.Decision) (lifecycle.Filters, error) {
	f := lifecycle.Filters{
		AgentName:  d.AgentName,
		ServerName: d.ServerName,
		UserID:     d.UserID,
		DeviceID:   d.DeviceID,
		Limit:      d.Limit,
	}
	if d.DateExpression == "" {
		return f, nil
	}

	res, err := o.dates.Parse(d.DateExpression)
	if err != nil {
		return f, err
	}

	switch res.Operation {
	case datefilter.OpLessThan:
		f.DateEnd = res.Formats.ActivitiesTransactions.EndDate
		f.DateComparison = lifecycle.CompareOlderThan
	case datefilter.OpGreaterThan:
		f.DateStart = res.Formats.ActivitiesTransactions.StartDate
	default:
		f.DateStart = res.Formats.ActivitiesTransactions.StartDate
		f.DateEnd = res.Formats.ActivitiesTransactions.EndDate
	}
	return f, nil
}

// regionDB returns a live connection for the region, connecting lazily.
func (o *Orchestrator) regionDB(ctx context.Context, regionName string) (*sql.DB, error) {
	if db, err := o.regions.DB(regionName); err == nil {
		return db, nil
	}
	if err := o.regions.Connect(ctx, regionName); err != nil {
		return nil, err
	}
	return o.regions.DB(regionName)
}

func (o *Orchestrator) errorResponse(resp *Response, err error) *Response {
	kind := apperr.KindOf(err)

	message := err.Error()
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		message = appErr.Message
	}

	resp.CardType = CardError
	resp.Reply = message
	resp.Card = ErrorCard{Kind: kind.String(), Message: message}
	return resp
}

func (o *Orchestrator) deniedResponse(resp *Response, err error) *Response {
	out := o.errorResponse(resp, err)
	out.CardType = CardAccessDenied
	return out
}

// recordTurn persists one operational turn, filling in the session fields
// from the request. A nil store degrades to no history.
func (o *Orchestrator) recordTurn(ctx context.Context, req Request, rec TurnRecord) {
	if o.store == nil {
		return
	}
	rec.SessionID = req.SessionID
	rec.UserRole = req.Role
	rec.Region = req.Region
	if err := o.store.Record(ctx, rec); err != nil {
		o.log.WithSession(req.SessionID).Warnf("chat turn not recorded: %v", err)
	}
}
