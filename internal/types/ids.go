// internal/types/ids.go
package types

import (
	"time"

	"github.com/google/uuid"
)

type SessionID string
type OwnerID string
type RecordID string

func NewSessionID() SessionID {
	return SessionID(uuid.New().String())
}

// NewRecordID derives a record identifier from the capture time. The
// fixed-width UTC layout keeps identifiers lexically sortable by recency.
func NewRecordID(capturedAt time.Time) RecordID {
	return RecordID("cycle-" + capturedAt.UTC().Format("20060102T150405.000000000Z"))
}
