//go:build !integration

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/venturesignal/internal/model"
)

func TestRunOperation_Dispatch(t *testing.T) {
	ctx := context.Background()
	runner := &mockRunner{}
	runner.On("Ingest", ctx).Return(1, nil)
	runner.On("Enrich", ctx).Return(2, nil)
	runner.On("Score", ctx, 10).Return(3, nil)
	runner.On("RescoreAll", ctx, 15).Return(4, nil)

	n, err := runOperation(ctx, runner, model.OperationIngest, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = runOperation(ctx, runner, model.OperationEnrich, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = runOperation(ctx, runner, model.OperationScore, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = runOperation(ctx, runner, model.OperationRescore, 15)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	runner.AssertExpectations(t)
}

func TestRunOperation_Error(t *testing.T) {
	runner := &mockRunner{}
	runner.On("Score", mock.Anything, 20).Return(0, assert.AnError)

	_, err := runOperation(context.Background(), runner, model.OperationScore, 20)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestWriteResult(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeResult(&buf, model.OperationRescore, 42))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, map[string]any{"status": "completed", "companies_rescored": float64(42)}, got)
}

func TestValidateBatchSize(t *testing.T) {
	assert.NoError(t, validateBatchSize(0))
	assert.NoError(t, validateBatchSize(1))
	assert.NoError(t, validateBatchSize(100))

	err := validateBatchSize(-1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "between 0 and 100")
	assert.Error(t, validateBatchSize(101))
}

func TestOperationCommands_Registered(t *testing.T) {
	for _, name := range []string{"ingest", "enrich", "score", "rescore", "migrate", "runs", "serve"} {
		cmd, _, err := rootCmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}

	score, _, _ := rootCmd.Find([]string{"score"})
	assert.NotNil(t, score.Flags().Lookup("batch-size"))
	ingest, _, _ := rootCmd.Find([]string{"ingest"})
	assert.Nil(t, ingest.Flags().Lookup("batch-size"))
}
