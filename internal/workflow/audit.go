package workflow

import "time"

// AuditLogEntry records one status change of a return request. Entries are
// append-only: once created they are never mutated, and the entries for a
// given return id ordered by timestamp reconstruct its full history.
type AuditLogEntry struct {
	ReturnID   string    `json:"return_id"`
	FromStatus Status    `json:"from_status"`
	ToStatus   Status    `json:"to_status"`
	Notes      string    `json:"notes,omitempty"`
	UserID     string    `json:"user_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewAuditLogEntry builds the audit record for one transition. It does not
// validate the transition; callers check CanTransition first and only
// construct the entry once they are committed to applying the change.
func NewAuditLogEntry(returnID string, from, to Status, notes, userID string) AuditLogEntry {
	return AuditLogEntry{
		ReturnID:   returnID,
		FromStatus: from,
		ToStatus:   to,
		Notes:      notes,
		UserID:     userID,
		Timestamp:  time.Now().UTC(),
	}
}
