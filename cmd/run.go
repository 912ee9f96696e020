package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/appraisal-precheck/internal/model"
)

var (
	runEvidencePath   string
	runIdempotencyKey string
)

var runCmd = &cobra.Command{
	Use:   "run <appraisal-id>",
	Short: "Run pre-screening for one appraisal",
	Long:  "Reads an evidence file (photos, metadata, notes), runs the full pre-screening pipeline, and prints the decision.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		appraisalID := args[0]

		data, err := os.ReadFile(runEvidencePath)
		if err != nil {
			return eris.Wrap(err, "read evidence file")
		}
		var inputs model.EvidenceInputs
		if err := json.Unmarshal(data, &inputs); err != nil {
			return eris.Wrap(err, "parse evidence file")
		}
		if inputs.AppraisalID == "" {
			inputs.AppraisalID = appraisalID
		}

		key := runIdempotencyKey
		if key == "" {
			key = uuid.NewString()
		}

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		run, created, err := env.Engine.Register(ctx, appraisalID, key)
		if err != nil {
			return err
		}
		if !created {
			zap.L().Info("existing run found for idempotency key",
				zap.String("run_id", run.ID),
				zap.String("status", string(run.Status)),
			)
		}

		done, err := env.Engine.Run(ctx, run.ID, &inputs)
		if err != nil {
			return err
		}

		out, err := json.MarshalIndent(done, "", "  ")
		if err != nil {
			return eris.Wrap(err, "encode result")
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	runCmd.Flags().StringVarP(&runEvidencePath, "evidence", "e", "", "path to evidence JSON file (required)")
	runCmd.Flags().StringVarP(&runIdempotencyKey, "key", "k", "", "idempotency key (default: random UUID)")
	_ = runCmd.MarkFlagRequired("evidence")
	rootCmd.AddCommand(runCmd)
}
