package audit

import (
	"errors"
	"time"
)

// Change captures a single field mutation.
type Change struct {
	Old any `json:"old"`
	New any `json:"new"`
}

// Entry represents a record stored in audit_logs. Changes hold a before/after
// diff keyed by field name, with every value reduced to a JSON-safe primitive.
// Once sealed (Immutable=true, ContentHash set) a row must never be mutated.
type Entry struct {
	ID          int64
	OrgID       int64
	ActorID     int64
	Action      string
	Entity      string
	EntityID    string
	Changes     map[string]Change
	Meta        map[string]any
	ContentHash *string
	PrevID      *int64
	Immutable   bool
	At          time.Time
}

var (
	// ErrSealedImmutable indicates an attempt to mutate a sealed row. This is
	// a logic error in the caller, not a recoverable condition.
	ErrSealedImmutable = errors.New("audit: sealed entry is immutable")
	// ErrChainBroken indicates hash verification failed.
	ErrChainBroken = errors.New("audit: hash chain broken")
)
