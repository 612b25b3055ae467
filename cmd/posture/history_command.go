package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"posture/internal/store"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect training and prediction history",
	}

	historyCmd.AddCommand(newHistoryRunsCommand(ctx))
	historyCmd.AddCommand(newHistoryPredictionsCommand(ctx))

	return historyCmd
}

func newHistoryRunsCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs <user>",
		Short: "List a user's training runs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openHistory(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			runs, err := st.ListTrainingRuns(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No training runs recorded for %s\n", args[0])
				return nil
			}

			rows := make([][]string, 0, len(runs))
			for _, run := range runs {
				rows = append(rows, []string{
					formatTimestamp(run.CreatedAt),
					shortID(run.RunID),
					strconv.Itoa(run.SampleCount),
					strconv.Itoa(run.SkippedCount),
					strconv.Itoa(len(run.Labels)),
					fmt.Sprintf("%+.1f/%+.1f/%+.1f", run.Offsets.Neck, run.Offsets.Back, run.Offsets.Legs),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"When", "Run", "Samples", "Skipped", "Labels", "Offsets (N/B/L)"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight},
			))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum rows to show")
	return cmd
}

func newHistoryPredictionsCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "predictions <user>",
		Short: "List a user's recent predictions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openHistory(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			predictions, err := st.ListPredictions(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			if len(predictions) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No predictions recorded for %s\n", args[0])
				return nil
			}

			rows := make([][]string, 0, len(predictions))
			for _, p := range predictions {
				rows = append(rows, []string{
					formatTimestamp(p.CreatedAt),
					p.Capture,
					p.ModelLabel,
					p.RuleLabel,
					fmt.Sprintf("%.2f", p.Score),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"When", "Capture", "Prediction", "Rule Label", "Score"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
			))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum rows to show")
	return cmd
}

func openHistory(ctx *commandContext) (*store.Store, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, err
	}
	return store.Open(cfg)
}

func formatTimestamp(ts time.Time) string {
	if ts.IsZero() {
		return "-"
	}
	return ts.Local().Format("2006-01-02 15:04:05")
}

func shortID(id string) string {
	if idx := strings.IndexByte(id, '-'); idx > 0 {
		return id[:idx]
	}
	return id
}
