package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect pre-screening run history",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list <appraisal-id>",
	Short: "List runs for an appraisal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		runs, err := st.ListRuns(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs list")
		}
		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "RUN ID\tSTATUS\tDECISION\tSCORE\tCREATED")
		for _, r := range runs {
			decision, score := "-", "-"
			if r.Outputs != nil && r.Outputs.Decision != nil {
				decision = string(r.Outputs.Decision.Status)
				score = fmt.Sprintf("%d", r.Outputs.Decision.Score)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				r.ID, r.Status, decision, score, r.CreatedAt.Format(time.RFC3339))
		}
		return w.Flush()
	},
}

// -- runs get --

var runsGetCmd = &cobra.Command{
	Use:   "get <run-id>",
	Short: "Show one run with its full outputs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(run, "", "  ")
		if err != nil {
			return eris.Wrap(err, "encode run")
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsGetCmd)
	rootCmd.AddCommand(runsCmd)
}
