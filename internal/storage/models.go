package storage

import "time"

// RunStatus is the lifecycle state of one recorded effect run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusErrored   RunStatus = "errored"
)

// EffectRun is one launch of a scripted effect, kept for history and for
// reporting the last-known state of an instance's priority slots across a
// restart.
type EffectRun struct {
	ID          string                 `json:"id"`
	Instance    string                 `json:"instance"`
	Effect      string                 `json:"effect"`
	Priority    int                    `json:"priority"`
	Args        map[string]interface{} `json:"args"`
	Status      RunStatus              `json:"status"`
	Error       string                 `json:"error,omitempty"`
	StartedAt   time.Time              `json:"started_at"`
	CompletedAt time.Time              `json:"completed_at,omitempty"`
}
