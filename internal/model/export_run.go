package model

import "time"

// ExportRun is the persisted summary of one export.
type ExportRun struct {
	ID        string `json:"id"`
	AccountID string `json:"account_id"`

	Root    string `json:"root"`
	Formats string `json:"formats"`

	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`

	// Error holds the run-level error, if the run did not complete.
	Error string `json:"error,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Duration returns how long the run took.
func (r ExportRun) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
