package model

import "time"

// RunStatus represents the current state of a cleanup run.
type RunStatus string

const (
	RunStatusQueued   RunStatus = "queued"
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// IsTerminal reports whether the status is a final state.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusComplete || s == RunStatusFailed
}

// Run is one cleanup pass over a single source file.
type Run struct {
	ID        string    `json:"id"`
	SourceID  string    `json:"source_id"`
	InputPath string    `json:"input_path"`
	Status    RunStatus `json:"status"`
	Summary   *Summary  `json:"summary,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
