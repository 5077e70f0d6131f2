//go:build !integration

package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/venturesignal/internal/model"
	"github.com/sells-group/venturesignal/internal/monitoring"
)

func TestFormatRunsList(t *testing.T) {
	started := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	finished := started.Add(95 * time.Second)

	runs := []model.Run{
		{
			ID:         "0d5c2f7e-1111-2222-3333-444455556666",
			Operation:  model.OperationScore,
			Status:     model.RunStatusComplete,
			Candidates: 20,
			Processed:  18,
			StartedAt:  started,
			FinishedAt: &finished,
		},
		{
			ID:        "short",
			Operation: model.OperationEnrich,
			Status:    model.RunStatusRunning,
			StartedAt: started,
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs, started.Add(10*time.Second))
	out := buf.String()

	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "OPERATION")
	assert.Contains(t, out, "0d5c2f7e")
	assert.NotContains(t, out, "0d5c2f7e-1111")
	assert.Contains(t, out, "score")
	assert.Contains(t, out, "1m35s")
	assert.Contains(t, out, "short")
	assert.Contains(t, out, "running")
	assert.Contains(t, out, "10s")
	assert.Contains(t, out, "2025-06-01 12:00")
}

func TestFormatRunStats(t *testing.T) {
	snap := &monitoring.RunSnapshot{
		Total:    5,
		Complete: 3,
		Failed:   1,
		Running:  1,
		FailRate: 0.25,
		ByOperation: map[model.Operation]*monitoring.OperationSummary{
			model.OperationScore:  {Total: 3, Complete: 2, Failed: 1, Processed: 40, LastError: "pipeline: score: commit"},
			model.OperationIngest: {Total: 2, Complete: 1, Running: 1, Processed: 300},
		},
	}

	var buf bytes.Buffer
	formatRunStats(&buf, snap)
	out := buf.String()

	assert.Contains(t, out, "Total runs:")
	assert.Contains(t, out, "25.0%")
	assert.Contains(t, out, "Last error:")
	assert.Contains(t, out, "pipeline: score: commit")
	// Operations are listed alphabetically.
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("ingest:")), bytes.Index(buf.Bytes(), []byte("score:")))
}

func TestFormatRunStats_Empty(t *testing.T) {
	var buf bytes.Buffer
	formatRunStats(&buf, &monitoring.RunSnapshot{ByOperation: map[model.Operation]*monitoring.OperationSummary{}})
	assert.Contains(t, buf.String(), "Total runs:")
	assert.Contains(t, buf.String(), "0.0%")
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "abcdefgh", truncateID("abcdefghijklmnop"))
	assert.Equal(t, "abc", truncateID("abc"))
	assert.Equal(t, "", truncateID(""))
}
