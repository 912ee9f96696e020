package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var (
	ledgerRunID  string
	ledgerOutput string
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger <appraisal-id>",
	Short: "Export the audit ledger for an appraisal",
	Long:  "Prints the appraisal's ledger events in chronological order, optionally narrowed to one run or written to a file.",
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

		events, err := st.ListEvents(ctx, args[0], ledgerRunID)
		if err != nil {
			return eris.Wrap(err, "ledger export")
		}

		out, err := json.MarshalIndent(events, "", "  ")
		if err != nil {
			return eris.Wrap(err, "encode ledger")
		}

		if ledgerOutput != "" {
			if err := os.WriteFile(ledgerOutput, out, 0o644); err != nil {
				return eris.Wrap(err, "write ledger file")
			}
			fmt.Fprintf(os.Stderr, "Wrote %d events to %s\n", len(events), ledgerOutput)
			return nil
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	ledgerCmd.Flags().StringVar(&ledgerRunID, "run", "", "narrow to one pipeline run id")
	ledgerCmd.Flags().StringVarP(&ledgerOutput, "output", "o", "", "write events to a file instead of stdout")
	rootCmd.AddCommand(ledgerCmd)
}
