package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"posture/internal/detector"
	"posture/internal/notify"
	"posture/internal/store"
	"posture/internal/watch"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var incremental bool

	cmd := &cobra.Command{
		Use:   "watch <user>",
		Short: "Watch the user's prediction folder and classify new captures",
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

			if cmd.Flags().Changed("incremental") {
				cfg.Watch.IncrementalTraining = incremental
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

			publisher, err := notify.New(cfg, logger)
			if err != nil {
				logger.Warn("event publisher unavailable")
				publisher = notify.Nop()
			}
			defer publisher.Close()

			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			watcher := watch.New(cfg, session, nil, publisher, logger)
			err = watcher.Run(signalCtx)
			if signalCtx.Err() != nil {
				return nil
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&incremental, "incremental", false, "Append classified captures to the training corpus in base-reference space")
	return cmd
}
