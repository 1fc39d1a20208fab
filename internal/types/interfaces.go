// internal/types/interfaces.go
package types

import "context"

// RecordSource is the persistence boundary the history loader reads
// cycle records from. Implementations return records oldest-first and
// surface per-record parse failures to the caller's skip logic, not as
// batch errors.
type RecordSource interface {
	Append(ctx context.Context, record *CycleRecord) error
	Load(ctx context.Context) ([]*CycleRecord, error)
}

// Inspector is the external cluster-inspection collaborator. One call
// produces the findings for a single monitoring cycle of a target.
type Inspector interface {
	Inspect(ctx context.Context, target string) ([]Finding, error)
}
