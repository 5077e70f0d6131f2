package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/venturesignal/internal/model"
)

// operationRunner is the slice of *pipeline.Pipeline the commands and the
// HTTP triggers drive.
type operationRunner interface {
	Ingest(ctx context.Context) (int, error)
	Enrich(ctx context.Context) (int, error)
	Score(ctx context.Context, batchSize int) (int, error)
	RescoreAll(ctx context.Context, batchSize int) (int, error)
}

// resultKeys names the count field reported for each operation.
var resultKeys = map[model.Operation]string{
	model.OperationIngest:  "companies_upserted",
	model.OperationEnrich:  "companies_enriched",
	model.OperationScore:   "companies_scored",
	model.OperationRescore: "companies_rescored",
}

// operationResult builds the completion payload for op.
func operationResult(op model.Operation, n int) map[string]any {
	return map[string]any{
		"status":       "completed",
		resultKeys[op]: n,
	}
}

// runOperation dispatches op to the runner.
func runOperation(ctx context.Context, r operationRunner, op model.Operation, batchSize int) (int, error) {
	switch op {
	case model.OperationIngest:
		return r.Ingest(ctx)
	case model.OperationEnrich:
		return r.Enrich(ctx)
	case model.OperationScore:
		return r.Score(ctx, batchSize)
	default:
		return r.RescoreAll(ctx, batchSize)
	}
}

func writeResult(out io.Writer, op model.Operation, n int) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(operationResult(op, n))
}

// operationCmd builds the cobra command for one pipeline operation. mode
// selects the config validation rules.
func operationCmd(op model.Operation, mode, short string, batched bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   string(op),
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			batchSize := 0
			if batched {
				batchSize, _ = cmd.Flags().GetInt("batch-size")
				if err := validateBatchSize(batchSize); err != nil {
					return err
				}
			}

			env, err := initPipeline(ctx, mode)
			if err != nil {
				return err
			}
			defer env.Close()

			n, err := runOperation(ctx, env.Pipeline, op, batchSize)
			if err != nil {
				return err
			}
			return writeResult(os.Stdout, op, n)
		},
	}
	if batched {
		cmd.Flags().Int("batch-size", 0, "companies per scoring batch (1-100, 0 uses scoring.batch_size)")
	}
	return cmd
}

func init() {
	rootCmd.AddCommand(
		operationCmd(model.OperationIngest, "ingest", "Fetch the startup dataset and upsert every company", false),
		operationCmd(model.OperationEnrich, "enrich", "Scrape websites of companies that have no enrichment yet", false),
		operationCmd(model.OperationScore, "score", "Score one batch of unscored companies", true),
		operationCmd(model.OperationRescore, "score", "Delete all scores and rescore every company with the current thesis", true),
	)
}
