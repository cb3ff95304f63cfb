package database

import "time"

// Journal entry statuses.
const (
	StatusPrepared = "prepared"
	StatusSent     = "sent"
	StatusFailed   = "failed"
)

// DispatchRecord is one journal entry describing a dispatch run.
type DispatchRecord struct {
	ID            string    `json:"id"`
	CreatedAt     time.Time `json:"createdAt"`
	Filename      string    `json:"filename"`
	DeclaredMIME  string    `json:"declaredMime,omitempty"`
	ResolvedClass string    `json:"resolvedClass"`
	Kind          string    `json:"kind,omitempty"`
	MIME          string    `json:"mime,omitempty"`
	Converted     bool      `json:"converted"`
	Fallback      bool      `json:"fallback"`
	Status        string    `json:"status"`
	Error         string    `json:"error,omitempty"`
	Recipient     string    `json:"recipient,omitempty"`
	DurationMs    int64     `json:"durationMs"`
}
