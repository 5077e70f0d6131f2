package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/venturesignal/internal/model"
	"github.com/sells-group/venturesignal/internal/store"
)

// maxRuns bounds how many recent runs a snapshot inspects.
const maxRuns = 1000

// OperationSummary aggregates runs of one operation.
type OperationSummary struct {
	Total     int        `json:"total"`
	Complete  int        `json:"complete"`
	Failed    int        `json:"failed"`
	Running   int        `json:"running"`
	Processed int        `json:"processed"`
	LastRunAt *time.Time `json:"last_run_at,omitempty"`
	LastError string     `json:"last_error,omitempty"`
}

// RunSnapshot holds a point-in-time view of recent pipeline activity.
type RunSnapshot struct {
	Total         int                                   `json:"total"`
	Complete      int                                   `json:"complete"`
	Failed        int                                   `json:"failed"`
	Running       int                                   `json:"running"`
	FailRate      float64                               `json:"fail_rate"`
	ByOperation   map[model.Operation]*OperationSummary `json:"by_operation"`
	LookbackHours int                                   `json:"lookback_hours"`
	CollectedAt   time.Time                             `json:"collected_at"`
}

// RunLister is the slice of store.Store the collector needs.
type RunLister interface {
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error)
}

// Collector summarizes the run log.
type Collector struct {
	runs RunLister
	now  func() time.Time
}

// NewCollector creates a new run collector.
func NewCollector(runs RunLister) *Collector {
	return &Collector{runs: runs, now: time.Now}
}

// Collect summarizes runs started within the lookback window. A
// non-positive lookback includes every listed run.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*RunSnapshot, error) {
	now := c.now().UTC()
	snap := &RunSnapshot{
		ByOperation:   make(map[model.Operation]*OperationSummary),
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}

	runs, err := c.runs.ListRuns(ctx, store.RunFilter{Limit: maxRuns})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	var cutoff time.Time
	if lookbackHours > 0 {
		cutoff = now.Add(-time.Duration(lookbackHours) * time.Hour)
	}

	// Runs arrive newest first.
	for _, r := range runs {
		if r.StartedAt.Before(cutoff) {
			continue
		}
		op := snap.ByOperation[r.Operation]
		if op == nil {
			op = &OperationSummary{}
			started := r.StartedAt
			op.LastRunAt = &started
			op.LastError = r.Error
			snap.ByOperation[r.Operation] = op
		}

		snap.Total++
		op.Total++
		op.Processed += r.Processed
		switch r.Status {
		case model.RunStatusComplete:
			snap.Complete++
			op.Complete++
		case model.RunStatusFailed:
			snap.Failed++
			op.Failed++
		case model.RunStatusRunning:
			snap.Running++
			op.Running++
		}
	}

	if finished := snap.Complete + snap.Failed; finished > 0 {
		snap.FailRate = float64(snap.Failed) / float64(finished)
	}
	return snap, nil
}
