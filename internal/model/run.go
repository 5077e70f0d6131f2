package model

import "time"

// Operation names a pipeline entry point.
type Operation string

const (
	OperationIngest  Operation = "ingest"
	OperationEnrich  Operation = "enrich"
	OperationScore   Operation = "score"
	OperationRescore Operation = "rescore"
)

// RunStatus represents the state of a pipeline run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run records one invocation of a pipeline operation.
type Run struct {
	ID         string     `json:"id"`
	Operation  Operation  `json:"operation"`
	Status     RunStatus  `json:"status"`
	Candidates int        `json:"candidates"`
	Processed  int        `json:"processed"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}
