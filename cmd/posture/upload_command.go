package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"posture/internal/stream"
)

func newUploadCommand() *cobra.Command {
	var relayURL string
	var loop bool
	var interval time.Duration

	cmd := &cobra.Command{
		Use:         "upload <frame.jpg> [frame.jpg ...]",
		Short:       "Push JPEG frames to a stream relay's /upload endpoint",
		Args:        cobra.MinimumNArgs(1),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			uploader := stream.NewUploader(relayURL)

			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			for {
				for _, path := range args {
					if err := uploader.UploadFile(signalCtx, path); err != nil {
						if signalCtx.Err() != nil {
							return nil
						}
						return err
					}
					if !loop {
						continue
					}
					select {
					case <-signalCtx.Done():
						return nil
					case <-time.After(interval):
					}
				}
				if !loop {
					break
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Uploaded %d frame(s) to %s\n", len(args), relayURL)
			return nil
		},
	}

	cmd.Flags().StringVar(&relayURL, "relay", "http://localhost:5000", "Base URL of the stream relay")
	cmd.Flags().BoolVar(&loop, "loop", false, "Cycle through the frames until interrupted")
	cmd.Flags().DurationVar(&interval, "interval", 33*time.Millisecond, "Delay between frames when looping")
	return cmd
}
