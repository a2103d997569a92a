package chat

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dbsmedya/logops/internal/llm"
)

// historyDepth bounds how many prior turns feed the router.
const historyDepth = 5

// TurnRecord is one persisted chat turn. Only operational turns are
// stored; greetings and small talk never reach the table.
type TurnRecord struct {
	SessionID string
	TurnRole  string // "user" or "assistant"
	UserRole  string
	Region    string
	Message   string
	CardType  string
	Tool      string
	TableName string

	// Filters is the filters_json of the routed operation, "" when the
	// turn carried none.
	Filters string

	// Execution outcome, zero-valued on preview and clarify turns.
	RecordsAffected int64
	Status          string
	ErrorMessage    string
}

// OpContext is what the session's most recent operational turn targeted.
type OpContext struct {
	Table   string
	Filters string
	Tool    string
}

// Store persists conversation turns in the chatops_log table on the
// control database.
type Store struct {
	db *sql.DB
}

// NewStore creates a turn store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Record appends one turn.
func (s *Store) Record(ctx context.Context, rec TurnRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chatops_log (session_id, turn_role, user_role, region, message, card_type,
		                         tool, table_name, filters_applied, records_affected,
		                         operation_status, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NOW())`,
		rec.SessionID, rec.TurnRole, rec.UserRole, rec.Region, rec.Message, rec.CardType,
		rec.Tool, rec.TableName, rec.Filters, rec.RecordsAffected,
		rec.Status, rec.ErrorMessage)
	if err != nil {
		return fmt.Errorf("record chat turn: %w", err)
	}
	return nil
}

// History returns the most recent turns of a session, oldest first, ready
// to feed the router as conversation context.
func (s *Store) History(ctx context.Context, sessionID string) ([]llm.Turn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT turn_role, message
		FROM chatops_log
		WHERE session_id = ?
		ORDER BY id DESC
		LIMIT ?`,
		sessionID, historyDepth)
	if err != nil {
		return nil, fmt.Errorf("load chat history: %w", err)
	}
	defer rows.Close()

	var turns []llm.Turn
	for rows.Next() {
		var t llm.Turn
		if err := rows.Scan(&t.Role, &t.Content); err != nil {
			return nil, fmt.Errorf("scan chat turn: %w", err)
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chat history: %w", err)
	}

	// Reverse into chronological order.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// LastOperation returns the table, filters and tool of the session's most
// recent table-targeting turn, zero-valued when none. Used to resolve
// references like "archive those".
func (s *Store) LastOperation(ctx context.Context, sessionID string) (OpContext, error) {
	var c OpContext
	err := s.db.QueryRowContext(ctx, `
		SELECT table_name, COALESCE(filters_applied, ''), tool
		FROM chatops_log
		WHERE session_id = ? AND tool <> '' AND table_name <> ''
		ORDER BY id DESC
		LIMIT 1`,
		sessionID).Scan(&c.Table, &c.Filters, &c.Tool)
	if err == sql.ErrNoRows {
		return OpContext{}, nil
	}
	if err != nil {
		return OpContext{}, fmt.Errorf("load last operation: %w", err)
	}
	return c, nil
}
