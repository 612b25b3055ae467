package main

import (
	"fmt"
	"math"
	"strings"

	"github.com/spf13/cobra"

	"posture/internal/detector"
	"posture/internal/notify"
	"posture/internal/store"
)

func newTrainCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "train <user>",
		Short: "Prepare the corpus and train a user's personalized model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			st, err := store.Open(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			session, err := detector.NewSession(cfg, logger, st, args[0])
			if err != nil {
				return err
			}

			result, err := session.Train(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Training complete for %s (run %s)\n", args[0], result.RunID)
			fmt.Fprintf(out, "  Samples: %d  Skipped: %d  Labels: %s\n",
				result.Samples, result.Skipped, strings.Join(result.Labels, ", "))
			if hasOffset(result.Offsets.Neck, result.Offsets.Back, result.Offsets.Legs) {
				fmt.Fprintf(out, "  Reference offsets (deg): neck=%+.2f, back=%+.2f, legs=%+.2f\n",
					result.Offsets.Neck, result.Offsets.Back, result.Offsets.Legs)
			}

			publisher, err := notify.New(cfg, logger)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warn: event publisher unavailable: %v\n", err)
				return nil
			}
			defer publisher.Close()
			_ = publisher.PublishTraining(notify.TrainingEvent{
				User:    args[0],
				RunID:   result.RunID,
				Samples: result.Samples,
				Skipped: result.Skipped,
			})
			return nil
		},
	}
}

func hasOffset(values ...float64) bool {
	for _, value := range values {
		if math.Abs(value) > 1e-6 {
			return true
		}
	}
	return false
}
