// Package chat orchestrates conversations: routing, confirmation flow,
// permission checks and card-shaped responses.
package chat

import (
	"github.com/dbsmedya/logops/internal/lifecycle"
	"github.com/dbsmedya/logops/internal/region"
	"github.com/dbsmedya/logops/internal/sqlguard"
)

// Card types carried in responses. Clients key their rendering off these.
const (
	CardWelcome        = "welcome_card"
	CardStats          = "stats_card"
	CardConfirmation   = "confirmation_card"
	CardSuccess        = "success_card"
	CardCancelled      = "cancelled_card"
	CardError          = "error_card"
	CardAccessDenied   = "access_denied_card"
	CardConversational = "conversational_card"
	CardRegionStatus   = "region_status_card"
	CardHealth         = "health_card"
	CardSQLResults     = "sql_query_results"
	CardJobLogs        = "job_logs_table"
)

// Response is the orchestrator's answer to one message.
type Response struct {
	SessionID string      `json:"session_id"`
	Reply     string      `json:"reply"`
	CardType  string      `json:"card_type"`
	Card      interface{} `json:"card,omitempty"`

	// Token identifies a pending operation awaiting confirmation.
	Token string `json:"token,omitempty"`
}

// WelcomeCard lists what the current role may do.
type WelcomeCard struct {
	Region     string   `json:"region"`
	Role       string   `json:"role"`
	Operations []string `json:"operations"`
	Tables     []string `json:"tables"`
}

// StatsCard carries per-table statistics.
type StatsCard struct {
	Region  string                  `json:"region"`
	Filters string                  `json:"filters,omitempty"`
	Tables  []*lifecycle.TableStats `json:"tables"`
}

// ConfirmationCard previews a destructive operation and names the literal
// that executes it.
type ConfirmationCard struct {
	Operation      string                   `json:"operation"`
	Table          string                   `json:"table"`
	Region         string                   `json:"region"`
	Filters        string                   `json:"filters"`
	MatchCount     int64                    `json:"match_count"`
	Sample         []map[string]interface{} `json:"sample,omitempty"`
	ConfirmWith    string                   `json:"confirm_with"`
	CancelWith     string                   `json:"cancel_with"`
	Token          string                   `json:"token"`
	ExpiresSeconds int                      `json:"expires_seconds"`
}

// SuccessCard reports a completed archive or delete.
type SuccessCard struct {
	Operation         string `json:"operation"`
	Table             string `json:"table"`
	Region            string `json:"region"`
	JobID             int64  `json:"job_id"`
	PreviewCount      int64  `json:"preview_count,omitempty"`
	RecordsArchived   int64  `json:"records_archived,omitempty"`
	RecordsDeleted    int64  `json:"records_deleted"`
	DuplicatesSkipped int64  `json:"duplicates_skipped,omitempty"`
}

// ErrorCard carries a typed failure.
type ErrorCard struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// RegionStatusCard reports per-region connection state.
type RegionStatusCard struct {
	Current string          `json:"current"`
	Regions map[string]bool `json:"regions"`
}

// HealthCard reports service and database health.
type HealthCard struct {
	Healthy   bool                 `json:"healthy"`
	Region    string               `json:"region"`
	Report    *region.HealthReport `json:"report,omitempty"`
	LLMActive bool                 `json:"llm_active"`
}

// SQLResultsCard wraps a guarded query result.
type SQLResultsCard struct {
	*sqlguard.Result
}
