package chat

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dbsmedya/logops/internal/lifecycle"
)

// Confirmation literals. CONFIRM must name the pending operation; any of
// the cancel words abandons it.
const (
	ConfirmArchive = "CONFIRM ARCHIVE"
	ConfirmDelete  = "CONFIRM DELETE"
)

var cancelWords = map[string]bool{
	"CANCEL": true,
	"ABORT":  true,
	"NO":     true,
}

// pendingTTL bounds how long a previewed operation stays confirmable.
const pendingTTL = 5 * time.Minute

// PendingOp is a previewed operation awaiting its confirmation literal.
type PendingOp struct {
	Token       string
	SessionID   string
	Operation   string // "archive" or "delete"
	Region      string
	Table       string
	Filters     lifecycle.Filters
	FiltersJSON string // routed filters_json, carried into the turn log
	MatchCount  int64
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// Expired reports whether the operation can no longer be confirmed.
func (p *PendingOp) Expired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}

// pendingRegistry holds at most one pending operation per session.
type pendingRegistry struct {
	mu  sync.Mutex
	ops map[string]*PendingOp // keyed by session id
	now func() time.Time
}

func newPendingRegistry() *pendingRegistry {
	return &pendingRegistry{
		ops: make(map[string]*PendingOp),
		now: time.Now,
	}
}

// Put registers a previewed operation, replacing any earlier one for the
// session, and returns its token.
func (r *pendingRegistry) Put(sessionID, operation, regionName, table string, f lifecycle.Filters, filtersJSON string, matchCount int64) *PendingOp {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	op := &PendingOp{
		Token:       uuid.NewString(),
		SessionID:   sessionID,
		Operation:   operation,
		Region:      regionName,
		Table:       table,
		Filters:     f,
		FiltersJSON: filtersJSON,
		MatchCount:  matchCount,
		CreatedAt:   now,
		ExpiresAt:   now.Add(pendingTTL),
	}
	r.ops[sessionID] = op
	return op
}

// Get returns the session's pending operation, nil when none or expired.
// Expired entries are dropped on access.
func (r *pendingRegistry) Get(sessionID string) *PendingOp {
	r.mu.Lock()
	defer r.mu.Unlock()

	op, ok := r.ops[sessionID]
	if !ok {
		return nil
	}
	if op.Expired(r.now()) {
		delete(r.ops, sessionID)
		return nil
	}
	return op
}

// GetByToken finds a pending operation by its token across sessions.
func (r *pendingRegistry) GetByToken(token string) *PendingOp {
	r.mu.Lock()
	defer r.mu.Unlock()

	for sessionID, op := range r.ops {
		if op.Token != token {
			continue
		}
		if op.Expired(r.now()) {
			delete(r.ops, sessionID)
			return nil
		}
		return op
	}
	return nil
}

// Drop removes the session's pending operation.
func (r *pendingRegistry) Drop(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.ops, sessionID)
}
