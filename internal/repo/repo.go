package repo

import "time"

// GateEvent is one audit row: a scan, a resolved submission, or a stale
// response that was discarded.
type GateEvent struct {
	ID        string    `json:"id"`
	CycleID   string    `json:"cycle_id"`
	Kind      string    `json:"kind"` // scan, entry, exit, stale
	RawText   string    `json:"raw_text"`
	Encoded   string    `json:"encoded"`
	Outcome   string    `json:"outcome"`
	CreatedAt time.Time `json:"created_at"`
}

type Repository interface {
	// Record appends an audit event.
	Record(cycleID, kind, rawText, encoded, outcome string) error

	// Recent returns the latest n events, newest first.
	Recent(n int) ([]GateEvent, error)

	// Close closes the underlying store.
	Close() error
}
