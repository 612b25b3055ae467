package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"posture/internal/detector"
	"posture/internal/rules"
	"posture/internal/store"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	var record bool

	cmd := &cobra.Command{
		Use:   "check <user> <capture.json>",
		Short: "Classify a single capture against a user's calibration",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			var st *store.Store
			if record {
				st, err = store.Open(cfg)
				if err != nil {
					return err
				}
				defer func() { _ = st.Close() }()
			}

			session, err := detector.NewSession(cfg, logger, st, args[0])
			if err != nil {
				return err
			}
			if err := session.Load(); err != nil {
				return err
			}

			result, err := session.PredictFile(cmd.Context(), args[1])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "ML Prediction : %s\n", result.ModelLabel)
			fmt.Fprintf(out, "Manual Label  : %s  |  Score: %.2f\n", result.RuleLabel, result.Score)

			rows := make([][]string, 0, len(result.Details))
			for _, detail := range result.Details {
				rows = append(rows, []string{
					titleCaser.String(detail.Region),
					formatDegrees(detail.Angle),
					detail.Status,
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Region", "Angle", "Status"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignLeft},
			))

			for _, detail := range result.Details {
				if detail.Status != rules.StatusGood {
					fmt.Fprintf(out, "  %s\n", detail.Suggestion)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&record, "record", false, "Record the result in prediction history")
	return cmd
}
