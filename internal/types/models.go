// internal/types/models.go
package types

import "time"

// Entry roles. Transcript pruning treats RoleSystem entries as
// non-evictable.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Entry is a single role-tagged turn in a session history or transcript.
type Entry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Session is an in-memory conversation session owned by a principal.
// LastAccessedAt moves forward on every mutation and drives both TTL
// expiry and per-owner capacity eviction.
type Session struct {
	ID             SessionID      `json:"id"`
	Owner          OwnerID        `json:"owner"`
	CreatedAt      time.Time      `json:"created_at"`
	LastAccessedAt time.Time      `json:"last_accessed_at"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	History        []Entry        `json:"history"`
}

// Finding is one observation from a monitoring cycle. Subject is the
// join key for trend classification across cycles.
type Finding struct {
	Subject     string `json:"subject"`
	Severity    string `json:"severity"`
	Description string `json:"description"`
}

// CycleRecord is the immutable result of one monitoring cycle.
type CycleRecord struct {
	ID         RecordID  `json:"id"`
	CapturedAt time.Time `json:"captured_at"`
	Status     string    `json:"status"`
	Findings   []Finding `json:"findings"`
}

// Statuses recorded per cycle.
const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
)
